package fs_test

import (
	"context"
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pacs/pkg/simplepacs"
	fsstore "github.com/tendant/simple-pacs/pkg/simplepacs/store/fs"
)

func newTestStore(t *testing.T) *fsstore.Store {
	t.Helper()
	store, err := fsstore.New(fsstore.Config{Root: t.TempDir()})
	require.NoError(t, err)
	return store
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 4, 4))
}

func TestNewRequiresRoot(t *testing.T) {
	_, err := fsstore.New(fsstore.Config{})
	assert.Error(t, err)
}

func TestSeriesDirLayout(t *testing.T) {
	store := newTestStore(t)
	date := time.Date(2024, 1, 1, 15, 4, 5, 0, time.UTC)

	dir := store.SeriesDir(date, "S1", "R1")
	assert.Equal(t, filepath.Join(store.Root(), "2024", "01", "01", "S1", "R1"), dir)
}

func TestSaveInstance(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seriesDir := store.SeriesDir(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "S1", "R1")

	path, err := store.SaveInstance(ctx, seriesDir, "I1", []byte("payload"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(seriesDir, "I1.dcm"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), data)

	// No temp files left behind.
	instances, err := store.ListInstances(seriesDir)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, instances)
}

func TestSavePreviewNaming(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seriesDir := store.SeriesDir(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "S1", "R1")
	require.NoError(t, os.MkdirAll(seriesDir, 0o755))

	first, err := store.SavePreview(ctx, seriesDir, 1, testImage())
	require.NoError(t, err)
	assert.Equal(t, "i00001_0001.png", filepath.Base(first))

	second, err := store.SavePreview(ctx, seriesDir, 1, testImage())
	require.NoError(t, err)
	assert.Equal(t, "i00001_0002.png", filepath.Base(second))

	other, err := store.SavePreview(ctx, seriesDir, 12, testImage())
	require.NoError(t, err)
	assert.Equal(t, "i00012_0001.png", filepath.Base(other))

	sentinel, err := store.SavePreview(ctx, seriesDir, simplepacs.UnknownInstanceNumber, testImage())
	require.NoError(t, err)
	assert.Equal(t, "i999999_0001.png", filepath.Base(sentinel))

	previews, err := store.ListPreviews(seriesDir)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second, other, sentinel}, previews)

	// Successful saves release their claim markers and temp files.
	leftovers, err := filepath.Glob(filepath.Join(seriesDir, simplepacs.PreviewDirName, "*.claim"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
	leftovers, err = filepath.Glob(filepath.Join(seriesDir, simplepacs.PreviewDirName, ".preview-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestSavePreviewSkipsInterruptedClaim(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seriesDir := store.SeriesDir(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "S1", "R1")
	previewsDir := filepath.Join(seriesDir, simplepacs.PreviewDirName)
	require.NoError(t, os.MkdirAll(previewsDir, 0o755))

	// A writer that died between claiming an index and finalizing the
	// encoded file leaves only its sidecar marker behind.
	stale := filepath.Join(previewsDir, "i00001_0001.png.claim")
	require.NoError(t, os.WriteFile(stale, nil, 0o644))

	path, err := store.SavePreview(ctx, seriesDir, 1, testImage())
	require.NoError(t, err)
	assert.Equal(t, "i00001_0002.png", filepath.Base(path))

	// The retired index never surfaces in listings.
	previews, err := store.ListPreviews(seriesDir)
	require.NoError(t, err)
	assert.Equal(t, []string{path}, previews)
}

func TestSavePreviewConcurrentAllocation(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	seriesDir := store.SeriesDir(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), "S1", "R1")
	require.NoError(t, os.MkdirAll(seriesDir, 0o755))

	const writers = 16
	paths := make([]string, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			path, err := store.SavePreview(ctx, seriesDir, 7, testImage())
			assert.NoError(t, err)
			paths[i] = path
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for _, path := range paths {
		assert.False(t, seen[path], "duplicate preview path %s", path)
		seen[path] = true
	}

	previews, err := store.ListPreviews(seriesDir)
	require.NoError(t, err)
	assert.Len(t, previews, writers)
}

func TestLocateStudy(t *testing.T) {
	store := newTestStore(t)

	t.Run("NotFound", func(t *testing.T) {
		_, err := store.LocateStudy("missing")
		assert.ErrorIs(t, err, simplepacs.ErrStudyNotFound)
	})

	t.Run("RecencyTieBreak", func(t *testing.T) {
		older := filepath.Join(store.Root(), "2023", "12", "31", "S1")
		newer := filepath.Join(store.Root(), "2024", "01", "01", "S1")
		require.NoError(t, os.MkdirAll(older, 0o755))
		require.NoError(t, os.MkdirAll(newer, 0o755))

		base := time.Now().Add(-time.Hour)
		require.NoError(t, os.Chtimes(older, base, base))
		require.NoError(t, os.Chtimes(newer, base.Add(time.Minute), base.Add(time.Minute)))

		dir, err := store.LocateStudy("S1")
		require.NoError(t, err)
		assert.Equal(t, newer, dir)

		// Flip the modification times; the other duplicate wins.
		require.NoError(t, os.Chtimes(older, base.Add(2*time.Minute), base.Add(2*time.Minute)))
		dir, err = store.LocateStudy("S1")
		require.NoError(t, err)
		assert.Equal(t, older, dir)
	})

	t.Run("IgnoresNonNumericBuckets", func(t *testing.T) {
		decoy := filepath.Join(store.Root(), "trash", "01", "01", "S2")
		require.NoError(t, os.MkdirAll(decoy, 0o755))

		_, err := store.LocateStudy("S2")
		assert.ErrorIs(t, err, simplepacs.ErrStudyNotFound)
	})
}

func TestLocateSeries(t *testing.T) {
	store := newTestStore(t)

	seriesDir := filepath.Join(store.Root(), "2024", "02", "03", "S1", "R9")
	require.NoError(t, os.MkdirAll(seriesDir, 0o755))

	dir, err := store.LocateSeries("R9")
	require.NoError(t, err)
	assert.Equal(t, seriesDir, dir)

	_, err = store.LocateSeries("R10")
	assert.ErrorIs(t, err, simplepacs.ErrSeriesNotFound)
}

func TestListSeriesDirsMissingStudy(t *testing.T) {
	store := newTestStore(t)
	dirs, err := store.ListSeriesDirs(filepath.Join(store.Root(), "nope"))
	assert.NoError(t, err)
	assert.Empty(t, dirs)
}

func TestLockSerializes(t *testing.T) {
	store := newTestStore(t)

	var inside int
	var maxInside int
	var mu sync.Mutex

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := store.Lock("some/dir")
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxInside {
				maxInside = inside
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInside)
}

func TestDayDirFormatting(t *testing.T) {
	store := newTestStore(t)
	for _, tc := range []struct {
		date time.Time
		want string
	}{
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), filepath.Join("2024", "01", "01")},
		{time.Date(1999, 12, 31, 0, 0, 0, 0, time.UTC), filepath.Join("1999", "12", "31")},
	} {
		t.Run(fmt.Sprint(tc.date.Year()), func(t *testing.T) {
			assert.Equal(t, filepath.Join(store.Root(), tc.want), store.DayDir(tc.date))
		})
	}
}
