// Package fs is the filesystem storage substrate for the imaging
// hierarchy: root/YYYY/MM/DD/studyUID/seriesUID with sibling previews and
// contact sheets. All file writes are atomic (temp file plus rename) and
// preview filename allocation is collision-free under concurrency.
package fs

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/tendant/simple-pacs/pkg/simplepacs"
)

// Store is a filesystem implementation of the simplepacs.Store interface
type Store struct {
	root  string
	locks dirLocks
}

// Config options for the filesystem store
type Config struct {
	// Root is the base directory for the imaging hierarchy
	Root string
}

// New creates a new filesystem store, creating the root if needed
func New(config Config) (*Store, error) {
	if config.Root == "" {
		return nil, errors.New("storage root is required")
	}
	if err := os.MkdirAll(config.Root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage root: %w", err)
	}
	root, err := filepath.Abs(config.Root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve storage root: %w", err)
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// DayDir returns the date bucket directory for t.
func (s *Store) DayDir(t time.Time) string {
	return filepath.Join(s.root,
		fmt.Sprintf("%04d", t.Year()),
		fmt.Sprintf("%02d", int(t.Month())),
		fmt.Sprintf("%02d", t.Day()))
}

// SeriesDir returns the series directory for the given placement date. The
// path is fully determined by (date, studyUID, seriesUID).
func (s *Store) SeriesDir(t time.Time, studyUID, seriesUID string) string {
	return filepath.Join(s.DayDir(t), studyUID, seriesUID)
}

// SaveInstance writes the encoded object into seriesDir atomically.
func (s *Store) SaveInstance(ctx context.Context, seriesDir, objectUID string, data []byte) (string, error) {
	if err := os.MkdirAll(seriesDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create series directory: %w", err)
	}
	path := filepath.Join(seriesDir, objectUID+simplepacs.InstanceExt)
	if err := writeFileAtomic(path, data); err != nil {
		return "", err
	}
	return path, nil
}

// ListInstances lists stored instance files in filename order.
func (s *Store) ListInstances(seriesDir string) ([]string, error) {
	return sortedGlob(filepath.Join(seriesDir, "*"+simplepacs.InstanceExt))
}

// ListPreviews lists preview files in filename order; the iNNNNN_MMMM
// naming makes that sort key order then disambiguator order.
func (s *Store) ListPreviews(seriesDir string) ([]string, error) {
	return sortedGlob(filepath.Join(seriesDir, simplepacs.PreviewDirName, "*.png"))
}

// SavePreview encodes img as PNG under seriesDir/previews, claiming the
// next free disambiguator for sortKey with an O_EXCL sidecar marker so
// concurrent writers never allocate the same index.
func (s *Store) SavePreview(ctx context.Context, seriesDir string, sortKey int, img image.Image) (string, error) {
	previewsDir := filepath.Join(seriesDir, simplepacs.PreviewDirName)
	if err := os.MkdirAll(previewsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create previews directory: %w", err)
	}

	path, claim, err := claimPreviewPath(previewsDir, sortKey)
	if err != nil {
		return "", err
	}
	defer os.Remove(claim)

	tmp, err := os.CreateTemp(previewsDir, ".preview-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	if err := png.Encode(tmp, img); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write preview: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to finalize preview: %w", err)
	}
	return path, nil
}

// claimPreviewPath reserves the first free iNNNNN_MMMM.png name for
// sortKey by exclusively creating a ".claim" sidecar next to it. The
// final name only appears once the encoded file is renamed into place, so
// a writer that dies mid-encode never leaves a half-written entry in
// preview listings; its stale sidecar just retires that one index.
func claimPreviewPath(previewsDir string, sortKey int) (path, claim string, err error) {
	if sortKey < 0 {
		sortKey = 0
	}
	if sortKey > simplepacs.UnknownInstanceNumber {
		sortKey = simplepacs.UnknownInstanceNumber
	}
	for index := 1; ; index++ {
		candidate := filepath.Join(previewsDir, fmt.Sprintf("i%05d_%04d.png", sortKey, index))
		marker := candidate + ".claim"
		f, err := os.OpenFile(marker, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", "", fmt.Errorf("failed to allocate preview path: %w", err)
		}
		f.Close()
		if _, err := os.Stat(candidate); err == nil {
			// A finished preview already owns this index.
			os.Remove(marker)
			continue
		}
		return candidate, marker, nil
	}
}

// ListStudyDirs lists study directories under a date bucket in name order.
func (s *Store) ListStudyDirs(dayDir string) ([]string, error) {
	return sortedSubdirs(dayDir)
}

// ListSeriesDirs lists series directories under a study in name order.
func (s *Store) ListSeriesDirs(studyDir string) ([]string, error) {
	return sortedSubdirs(studyDir)
}

// LocateStudy probes every date bucket for studyUID and returns the match
// with the latest modification time. Recency is a deliberate heuristic for
// duplicate UIDs across dates, not an identity guarantee.
func (s *Store) LocateStudy(studyUID string) (string, error) {
	var matches []string
	for _, dayDir := range s.dayDirs() {
		candidate := filepath.Join(dayDir, studyUID)
		if isDir(candidate) {
			matches = append(matches, candidate)
		}
	}
	dir, ok := latest(matches)
	if !ok {
		return "", simplepacs.ErrStudyNotFound
	}
	return dir, nil
}

// LocateSeries probes every study in every date bucket for seriesUID and
// returns the match with the latest modification time.
func (s *Store) LocateSeries(seriesUID string) (string, error) {
	var matches []string
	for _, dayDir := range s.dayDirs() {
		studyDirs, err := sortedSubdirs(dayDir)
		if err != nil {
			continue
		}
		for _, studyDir := range studyDirs {
			candidate := filepath.Join(studyDir, seriesUID)
			if isDir(candidate) {
				matches = append(matches, candidate)
			}
		}
	}
	dir, ok := latest(matches)
	if !ok {
		return "", simplepacs.ErrSeriesNotFound
	}
	return dir, nil
}

// Lock serializes ensure-and-generate work per directory path.
func (s *Store) Lock(dir string) func() {
	return s.locks.lock(dir)
}

// dayDirs enumerates root/YYYY/MM/DD directories whose components are all
// numeric, in lexical order.
func (s *Store) dayDirs() []string {
	var days []string
	for _, yearDir := range numericSubdirs(s.root) {
		for _, monthDir := range numericSubdirs(yearDir) {
			days = append(days, numericSubdirs(monthDir)...)
		}
	}
	return days
}

func numericSubdirs(dir string) []string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() && isNumeric(entry.Name()) {
			dirs = append(dirs, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs
}

func isNumeric(name string) bool {
	if name == "" {
		return false
	}
	for _, r := range name {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// latest returns the path with the largest modification time.
func latest(paths []string) (string, bool) {
	var (
		best     string
		bestTime time.Time
	)
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if best == "" || info.ModTime().After(bestTime) {
			best = path
			bestTime = info.ModTime()
		}
	}
	return best, best != ""
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func sortedGlob(pattern string) ([]string, error) {
	paths, err := filepath.Glob(pattern)
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)
	return paths, nil
}

func sortedSubdirs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var dirs []string
	for _, entry := range entries {
		if entry.IsDir() {
			dirs = append(dirs, filepath.Join(dir, entry.Name()))
		}
	}
	sort.Strings(dirs)
	return dirs, nil
}

// writeFileAtomic writes data to path via a temp file in the same
// directory followed by a rename, so readers never observe partial
// content and concurrent writers resolve to last-writer-wins.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".write-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to finalize file: %w", err)
	}
	return nil
}

// dirLocks is a keyed mutex set; entries persist for the life of the
// store, bounded by the number of directories touched.
type dirLocks struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (d *dirLocks) lock(key string) func() {
	d.mu.Lock()
	if d.m == nil {
		d.m = make(map[string]*sync.Mutex)
	}
	l, ok := d.m[key]
	if !ok {
		l = &sync.Mutex{}
		d.m[key] = l
	}
	d.mu.Unlock()

	l.Lock()
	return l.Unlock
}
