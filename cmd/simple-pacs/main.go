package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/ilyakaznacheev/cleanenv"
	"golang.org/x/sync/errgroup"

	"github.com/tendant/simple-pacs/pkg/simplepacs"
	"github.com/tendant/simple-pacs/pkg/simplepacs/config"
	"github.com/tendant/simple-pacs/pkg/simplepacs/dcm"
)

// CmdConfig holds command-level settings; service settings come from the
// config package (STORE_DIR, PDF_*, DATABASE_URL).
type CmdConfig struct {
	IngestWorkers int    `env:"INGEST_WORKERS" env-default:"4"`
	LogLevel      string `env:"LOG_LEVEL" env-default:"info"`
}

func main() {
	var cmdCfg CmdConfig
	if err := cleanenv.ReadEnv(&cmdCfg); err != nil {
		slog.Error("Failed to read configuration", "err", err)
		os.Exit(1)
	}

	logger := newLogger(cmdCfg.LogLevel)
	slog.SetDefault(logger)

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	ctx := context.Background()
	cfg, err := config.Load(config.WithEnv(""), config.WithLogger(logger))
	if err != nil {
		logger.Error("Failed to load configuration", "err", err)
		os.Exit(1)
	}
	svc, err := cfg.BuildService(ctx)
	if err != nil {
		logger.Error("Failed to build service", "err", err)
		os.Exit(1)
	}

	switch os.Args[1] {
	case "ingest":
		err = runIngest(ctx, svc, logger, cmdCfg.IngestWorkers, os.Args[2:])
	case "previews":
		err = runPreviews(ctx, svc, os.Args[2:])
	case "sheet":
		err = runSheet(ctx, svc, os.Args[2:])
	case "locate":
		err = runLocate(ctx, svc, os.Args[2:])
	case "recent":
		err = runRecent(ctx, svc, os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error("Command failed", "err", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage: simple-pacs <command> [arguments]

Commands:
  ingest <path>...           ingest DICOM files or directories of .dcm files
  previews [-limit n] <dir|series-uid>
                             ensure previews for a series (-1 for all)
  sheet series <dir|series-uid>
                             rebuild a series contact sheet
  sheet study <dir|study-uid>
                             rebuild a study contact sheet
  locate study <uid>         print the directory of a study
  locate series <uid>        print the directory of a series
  recent [-days n]           list studies ingested in the last n days

Configuration is taken from the environment: STORE_DIR, PDF_HEADER,
PDF_COLS, PDF_ROWS, PDF_STUDY, PDF_LAYOUT_PRESET, PDF_LAYOUT_SPEC,
DATABASE_URL, INGEST_WORKERS, LOG_LEVEL.
`)
}

// runIngest walks the given paths and ingests every DICOM file found,
// bounded by the worker limit. Individual failures are logged and counted
// rather than aborting the batch.
func runIngest(ctx context.Context, svc simplepacs.Service, logger *slog.Logger, workers int, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("ingest: at least one path is required")
	}
	if workers < 1 {
		workers = 1
	}

	files, err := collectInstanceFiles(args)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("ingest: no DICOM files found under %s", strings.Join(args, ", "))
	}

	var ok, failed atomic.Int64
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			if err := ingestFile(ctx, svc, file); err != nil {
				failed.Add(1)
				logger.Error("Ingest failed", "file", file, "err", err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	logger.Info("Ingest finished", "ingested", ok.Load(), "failed", failed.Load())
	if failed.Load() > 0 {
		return fmt.Errorf("ingest: %d of %d files failed", failed.Load(), len(files))
	}
	return nil
}

func ingestFile(ctx context.Context, svc simplepacs.Service, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	obj, err := dcm.FromBytes(data)
	if err != nil {
		return err
	}
	res, err := svc.Ingest(ctx, obj)
	if err != nil {
		return err
	}
	fmt.Println(res.InstancePath)
	return nil
}

// collectInstanceFiles expands arguments into a file list. Explicit file
// arguments are taken as-is; directories are walked for .dcm files.
func collectInstanceFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() && strings.EqualFold(filepath.Ext(path), simplepacs.InstanceExt) {
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

func runPreviews(ctx context.Context, svc simplepacs.Service, args []string) error {
	fset := flag.NewFlagSet("previews", flag.ExitOnError)
	limit := fset.Int("limit", simplepacs.AllPreviews, "maximum previews to ensure (-1 for all)")
	if err := fset.Parse(args); err != nil {
		return err
	}
	if fset.NArg() != 1 {
		return fmt.Errorf("previews: exactly one series directory or UID is required")
	}

	dir, err := resolveSeries(ctx, svc, fset.Arg(0))
	if err != nil {
		return err
	}
	previews, notes, err := svc.EnsurePreviews(ctx, dir, *limit)
	if err != nil {
		return err
	}
	for _, p := range previews {
		fmt.Println(p)
	}
	for _, n := range notes {
		fmt.Fprintln(os.Stderr, "note: "+n)
	}
	return nil
}

func runSheet(ctx context.Context, svc simplepacs.Service, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("sheet: expected 'series' or 'study' and a directory or UID")
	}

	var (
		dest string
		err  error
	)
	switch args[0] {
	case "series":
		var dir string
		if dir, err = resolveSeries(ctx, svc, args[1]); err == nil {
			dest, err = svc.ComposeSeriesSheet(ctx, dir)
		}
	case "study":
		var dir string
		if dir, err = resolveStudy(ctx, svc, args[1]); err == nil {
			dest, err = svc.ComposeStudySheet(ctx, dir)
		}
	default:
		return fmt.Errorf("sheet: unknown scope %q", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Println(dest)
	return nil
}

func runLocate(ctx context.Context, svc simplepacs.Service, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("locate: expected 'study' or 'series' and a UID")
	}

	var (
		dir string
		err error
	)
	switch args[0] {
	case "study":
		dir, err = svc.LocateStudy(ctx, args[1])
	case "series":
		dir, err = svc.LocateSeries(ctx, args[1])
	default:
		return fmt.Errorf("locate: unknown scope %q", args[0])
	}
	if err != nil {
		return err
	}
	fmt.Println(dir)
	return nil
}

func runRecent(ctx context.Context, svc simplepacs.Service, args []string) error {
	fset := flag.NewFlagSet("recent", flag.ExitOnError)
	days := fset.Int("days", 7, "number of day buckets to scan")
	if err := fset.Parse(args); err != nil {
		return err
	}

	summaries, err := svc.ListRecentStudies(ctx, *days)
	if err != nil {
		return err
	}
	for _, s := range summaries {
		line := fmt.Sprintf("%s  %s  series=%d previews=%d",
			s.Day.Format("2006-01-02"), s.StudyUID, s.SeriesCount, s.PreviewCount)
		if s.Metadata.PatientName != "" {
			line += "  " + s.Metadata.PatientName
		}
		fmt.Println(line)
	}
	return nil
}

// resolveSeries accepts either an existing series directory or a series UID.
func resolveSeries(ctx context.Context, svc simplepacs.Service, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return arg, nil
	}
	return svc.LocateSeries(ctx, arg)
}

// resolveStudy accepts either an existing study directory or a study UID.
func resolveStudy(ctx context.Context, svc simplepacs.Service, arg string) (string, error) {
	if info, err := os.Stat(arg); err == nil && info.IsDir() {
		return arg, nil
	}
	return svc.LocateStudy(ctx, arg)
}
