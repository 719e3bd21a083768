package simplepacs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/simple-pacs/pkg/simplepacs/pixel"
)

// service implements the Service interface
type service struct {
	store       Store
	decoder     Decoder
	composer    Composer
	index       LocatorIndex
	logger      *slog.Logger
	header      string
	studySheets bool
}

// Option represents a functional option for configuring the service
type Option func(*service)

// WithStore sets the storage substrate for the service
func WithStore(store Store) Option {
	return func(s *service) {
		s.store = store
	}
}

// WithDecoder sets the instance decoder for the service
func WithDecoder(decoder Decoder) Option {
	return func(s *service) {
		s.decoder = decoder
	}
}

// WithComposer sets the contact-sheet composer for the service
func WithComposer(composer Composer) Option {
	return func(s *service) {
		s.composer = composer
	}
}

// WithLocatorIndex sets the optional UID locator index
func WithLocatorIndex(index LocatorIndex) Option {
	return func(s *service) {
		s.index = index
	}
}

// WithLogger sets the logger; slog.Default() is used otherwise
func WithLogger(logger *slog.Logger) Option {
	return func(s *service) {
		s.logger = logger
	}
}

// WithHeader sets the header text drawn on every contact-sheet page
func WithHeader(header string) Option {
	return func(s *service) {
		s.header = header
	}
}

// WithStudySheets enables regeneration of the parent study sheet on ingest
func WithStudySheets(enabled bool) Option {
	return func(s *service) {
		s.studySheets = enabled
	}
}

// New creates a new service instance with the given options
func New(options ...Option) (Service, error) {
	s := &service{
		studySheets: true,
	}

	for _, option := range options {
		option(s)
	}

	if s.store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if s.decoder == nil {
		return nil, fmt.Errorf("decoder is required")
	}
	if s.composer == nil {
		return nil, fmt.Errorf("composer is required")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Ingestion orchestrator

func (s *service) Ingest(ctx context.Context, obj ImagingObject) (*IngestResult, error) {
	res := &IngestResult{
		StudyUID:  uidOrGenerated(obj.StudyUID()),
		SeriesUID: uidOrGenerated(obj.SeriesUID()),
		ObjectUID: uidOrGenerated(obj.ObjectUID()),
		Stage:     StageReceived,
	}

	date, ok := obj.EffectiveDate()
	if !ok {
		date = time.Now()
	}

	seriesDir := s.store.SeriesDir(date, res.StudyUID, res.SeriesUID)
	path, err := s.store.SaveInstance(ctx, seriesDir, res.ObjectUID, obj.Encoded())
	if err != nil {
		return res, &StoreError{Op: "save instance", Path: seriesDir, Err: err}
	}
	res.Stage = StagePersisted
	res.SeriesDir = seriesDir
	res.InstancePath = path
	s.logger.Info("stored instance",
		"object_uid", res.ObjectUID,
		"series_uid", res.SeriesUID,
		"study_uid", res.StudyUID,
		"path", path)

	s.recordLocation(ctx, res.StudyUID, res.SeriesUID, seriesDir)

	// Preview generation. Failure leaves the object durably stored.
	res.PreviewPath, res.PreviewErr = s.generatePreview(ctx, obj, seriesDir)
	if res.PreviewErr != nil {
		s.logger.Warn("preview generation failed",
			"object_uid", res.ObjectUID, "error", res.PreviewErr)
	}
	res.Stage = StagePreviewAttempted

	// Sheet regeneration from already-present previews; no further preview
	// generation at this stage. A failed sheet leaves a stale or
	// diagnostic document rather than aborting.
	res.SeriesSheetPath, res.SeriesSheetErr = s.composeSeriesSheet(ctx, seriesDir, false)
	if res.SeriesSheetErr != nil {
		s.logger.Warn("series sheet regeneration failed",
			"series_dir", seriesDir, "error", res.SeriesSheetErr)
	}
	if s.studySheets {
		res.StudySheetPath, res.StudySheetErr = s.composeStudySheet(ctx, filepath.Dir(seriesDir))
		if res.StudySheetErr != nil {
			s.logger.Warn("study sheet regeneration failed",
				"study_dir", filepath.Dir(seriesDir), "error", res.StudySheetErr)
		}
	}
	res.Stage = StageSheetsAttempted

	res.Stage = StageDone
	return res, nil
}

// generatePreview normalizes the object's first frame and persists it as a
// new preview for the series, honoring the not-representable signal.
func (s *service) generatePreview(ctx context.Context, obj ImagingObject, seriesDir string) (string, error) {
	if !obj.HasPixelData() {
		return "", ErrNoPixelData
	}
	frame, err := obj.Frame()
	if err != nil {
		return "", err
	}
	img, err := pixel.Normalize(frame, obj.Inverted())
	if err != nil {
		return "", err
	}
	return s.store.SavePreview(ctx, seriesDir, previewSortKey(obj), img)
}

func previewSortKey(obj ImagingObject) int {
	if n, ok := obj.InstanceNumber(); ok {
		return n
	}
	return UnknownInstanceNumber
}

// uidOrGenerated substitutes a generated identifier for an absent or
// path-hostile UID supplied by an untrusted sender.
func uidOrGenerated(uid string) string {
	uid = strings.TrimSpace(uid)
	if uid == "" {
		return uuid.NewString()
	}
	// Keep the UID usable as a single path element.
	uid = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, uid)
	if uid == "." || uid == ".." {
		return uuid.NewString()
	}
	return uid
}

// Preview cache

func (s *service) EnsurePreviews(ctx context.Context, seriesDir string, limit int) ([]string, []string, error) {
	if limit == 0 {
		return nil, nil, nil
	}

	unlock := s.store.Lock(seriesDir)
	defer unlock()

	var notes []string
	previews, err := s.store.ListPreviews(seriesDir)
	if err != nil {
		return nil, nil, &StoreError{Op: "list previews", Path: seriesDir, Err: err}
	}

	instances, err := s.store.ListInstances(seriesDir)
	if err != nil {
		return nil, nil, &StoreError{Op: "list instances", Path: seriesDir, Err: err}
	}
	if len(instances) == 0 {
		return previews, notes, nil
	}

	target := len(instances)
	if limit >= 0 && limit < target {
		target = limit
	}
	if len(previews) >= target {
		return previews[:target], notes, nil
	}

	// Instances are covered in filename order, so the first len(previews)
	// of them already have a preview; generating for those again would
	// allocate a second file for the same instance.
	for _, path := range instances[len(previews):] {
		if len(previews) >= target {
			break
		}
		if err := ctx.Err(); err != nil {
			return previews, notes, err
		}

		obj, err := s.decoder.Decode(path)
		if err != nil {
			notes = append(notes, fmt.Sprintf("failed to read %s: %v", filepath.Base(path), err))
			continue
		}
		if !obj.HasPixelData() {
			notes = append(notes, fmt.Sprintf("%s has no pixel data", filepath.Base(path)))
			continue
		}

		frame, err := obj.Frame()
		if err != nil {
			notes = append(notes, fmt.Sprintf("failed to decode pixels of %s: %v", filepath.Base(path), err))
			continue
		}
		img, err := pixel.Normalize(frame, obj.Inverted())
		if err != nil {
			notes = append(notes, fmt.Sprintf("%s is not representable: %v", filepath.Base(path), err))
			continue
		}

		saved, err := s.store.SavePreview(ctx, seriesDir, previewSortKey(obj), img)
		if err != nil {
			s.logger.Warn("failed to save preview", "instance", path, "error", err)
			notes = append(notes, fmt.Sprintf("failed to save preview for %s: %v", filepath.Base(path), err))
			continue
		}
		previews = append(previews, saved)
	}

	sort.Strings(previews)
	if len(previews) > target {
		previews = previews[:target]
	}
	return previews, notes, nil
}

// Contact sheets

func (s *service) ComposeSeriesSheet(ctx context.Context, seriesDir string) (string, error) {
	return s.composeSeriesSheet(ctx, seriesDir, true)
}

// composeSeriesSheet rebuilds the series sheet wholesale. When generation
// is not allowed (the ingest trigger) the sheet is drawn from previews
// already on disk.
func (s *service) composeSeriesSheet(ctx context.Context, seriesDir string, generate bool) (string, error) {
	var (
		previews []string
		notes    []string
		err      error
	)
	if generate {
		previews, notes, err = s.EnsurePreviews(ctx, seriesDir, AllPreviews)
		if err != nil {
			return "", err
		}
	} else {
		previews, err = s.store.ListPreviews(seriesDir)
		if err != nil {
			return "", &StoreError{Op: "list previews", Path: seriesDir, Err: err}
		}
	}

	dest := filepath.Join(seriesDir, SeriesSheetName)
	if len(previews) == 0 {
		if generate {
			notes = append(notes, "no previews available for this series")
		}
		if err := s.composer.ComposeDiagnostic(dest, s.header, notes); err != nil {
			return "", err
		}
		return dest, nil
	}

	subtitle := "Series: " + filepath.Base(seriesDir)
	if err := s.composer.Compose(previews, dest, s.header, subtitle); err != nil {
		return "", err
	}
	return dest, nil
}

func (s *service) ComposeStudySheet(ctx context.Context, studyDir string) (string, error) {
	return s.composeStudySheet(ctx, studyDir)
}

// composeStudySheet rebuilds the study sheet from one preview per series,
// generating a first preview for a series when it has none.
func (s *service) composeStudySheet(ctx context.Context, studyDir string) (string, error) {
	seriesDirs, err := s.store.ListSeriesDirs(studyDir)
	if err != nil {
		return "", &StoreError{Op: "list series", Path: studyDir, Err: err}
	}

	var (
		previews []string
		notes    []string
	)
	for _, dir := range seriesDirs {
		p, n, err := s.EnsurePreviews(ctx, dir, 1)
		if err != nil {
			s.logger.Warn("ensure previews failed for series", "series_dir", dir, "error", err)
			notes = append(notes, fmt.Sprintf("series %s: %v", filepath.Base(dir), err))
			continue
		}
		previews = append(previews, p...)
		notes = append(notes, n...)
	}

	dest := filepath.Join(studyDir, StudySheetName)
	if len(previews) == 0 {
		notes = append(notes, "no previews could be created for this study")
		if err := s.composer.ComposeDiagnostic(dest, s.header, notes); err != nil {
			return "", err
		}
		return dest, nil
	}

	if err := s.composer.Compose(previews, dest, s.header, ""); err != nil {
		return "", err
	}
	return dest, nil
}

// Hierarchy resolution

func (s *service) LocateStudy(ctx context.Context, studyUID string) (string, error) {
	if dir, ok := s.lookupIndexed(ctx, studyUID, true); ok {
		return dir, nil
	}
	dir, err := s.store.LocateStudy(studyUID)
	if err != nil {
		return "", err
	}
	if s.index != nil {
		if err := s.index.RecordStudy(ctx, studyUID, dir); err != nil {
			s.logger.Warn("locator index backfill failed", "study_uid", studyUID, "error", err)
		}
	}
	return dir, nil
}

func (s *service) LocateSeries(ctx context.Context, seriesUID string) (string, error) {
	if dir, ok := s.lookupIndexed(ctx, seriesUID, false); ok {
		return dir, nil
	}
	dir, err := s.store.LocateSeries(seriesUID)
	if err != nil {
		return "", err
	}
	if s.index != nil {
		if err := s.index.RecordSeries(ctx, seriesUID, dir); err != nil {
			s.logger.Warn("locator index backfill failed", "series_uid", seriesUID, "error", err)
		}
	}
	return dir, nil
}

// lookupIndexed consults the optional locator index and verifies the
// indexed directory still exists; anything else falls through to the
// filesystem scan.
func (s *service) lookupIndexed(ctx context.Context, uid string, study bool) (string, bool) {
	if s.index == nil {
		return "", false
	}
	var (
		dir string
		err error
	)
	if study {
		dir, err = s.index.LookupStudy(ctx, uid)
	} else {
		dir, err = s.index.LookupSeries(ctx, uid)
	}
	if err != nil {
		if !errors.Is(err, ErrStudyNotFound) && !errors.Is(err, ErrSeriesNotFound) {
			s.logger.Warn("locator index lookup failed", "uid", uid, "error", err)
		}
		return "", false
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return "", false
	}
	return dir, true
}

func (s *service) recordLocation(ctx context.Context, studyUID, seriesUID, seriesDir string) {
	if s.index == nil {
		return
	}
	if err := s.index.RecordStudy(ctx, studyUID, filepath.Dir(seriesDir)); err != nil {
		s.logger.Warn("locator index record failed", "study_uid", studyUID, "error", err)
	}
	if err := s.index.RecordSeries(ctx, seriesUID, seriesDir); err != nil {
		s.logger.Warn("locator index record failed", "series_uid", seriesUID, "error", err)
	}
}

// Metadata

func (s *service) StudyMetadata(ctx context.Context, studyDir string) (StudyMetadata, error) {
	seriesDirs, err := s.store.ListSeriesDirs(studyDir)
	if err != nil {
		return StudyMetadata{}, &StoreError{Op: "list series", Path: studyDir, Err: err}
	}

	var meta StudyMetadata
	for _, dir := range seriesDirs {
		instances, err := s.store.ListInstances(dir)
		if err != nil || len(instances) == 0 {
			continue
		}
		obj, err := s.decoder.DecodeHeader(instances[0])
		if err != nil {
			continue
		}
		meta.merge(obj.Metadata())
		if meta.PatientName != "" || meta.PatientID != "" {
			break
		}
	}
	return meta, nil
}

func (s *service) ListRecentStudies(ctx context.Context, days int) ([]StudySummary, error) {
	var summaries []StudySummary
	now := time.Now()
	for i := 0; i < days; i++ {
		day := now.AddDate(0, 0, -i)
		dayDir := s.store.DayDir(day)
		studyDirs, err := s.store.ListStudyDirs(dayDir)
		if err != nil {
			continue
		}
		for _, dir := range studyDirs {
			summary := StudySummary{
				StudyUID: filepath.Base(dir),
				Dir:      dir,
				Day:      time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location()),
			}
			summary.Metadata, _ = s.StudyMetadata(ctx, dir)

			seriesDirs, err := s.store.ListSeriesDirs(dir)
			if err == nil {
				summary.SeriesCount = len(seriesDirs)
				for _, sd := range seriesDirs {
					previews, err := s.store.ListPreviews(sd)
					if err != nil {
						continue
					}
					summary.PreviewCount += len(previews)
					if summary.FirstPreview == "" && len(previews) > 0 {
						summary.FirstPreview = previews[0]
					}
				}
			}
			summaries = append(summaries, summary)
		}
	}
	return summaries, nil
}
