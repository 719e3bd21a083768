package sheet

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-pacs/pkg/simplepacs"
)

func writePNG(t *testing.T, dir, name string, w, h int) string {
	t.Helper()
	img := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetGray(x, y, color.Gray{Y: uint8((x + y) % 256)})
		}
	}
	path := filepath.Join(dir, name)
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, img))
	require.NoError(t, f.Close())
	return path
}

// pdfPages counts page objects in a rendered document.
func pdfPages(t *testing.T, path string) int {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("%PDF")), "not a PDF")
	return bytes.Count(data, []byte("/Type /Page")) - bytes.Count(data, []byte("/Type /Pages"))
}

func TestPageCount(t *testing.T) {
	tests := []struct {
		n, cols, rows, want int
	}{
		{0, 2, 4, 0},
		{1, 2, 4, 1},
		{8, 2, 4, 1},
		{9, 2, 4, 2},
		{16, 2, 4, 2},
		{17, 2, 4, 3},
		{5, 1, 1, 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, PageCount(tt.n, tt.cols, tt.rows),
			"PageCount(%d, %d, %d)", tt.n, tt.cols, tt.rows)
	}
}

func TestPageSubtitle(t *testing.T) {
	assert.Equal(t, "Series: R1", pageSubtitle("Series: R1", 1, 1))
	assert.Equal(t, "Series: R1 - page 2 of 3", pageSubtitle("Series: R1", 2, 3))
	assert.Equal(t, "page 1 of 2", pageSubtitle("", 1, 2))
	assert.Equal(t, "", pageSubtitle("", 1, 1))
}

func TestFitRect(t *testing.T) {
	// Wide image in a square cell: width-bound, vertically centered.
	x, y, w, h := fitRect(0, 0, 100, 100, 200, 100)
	assert.InDelta(t, 0.0, x, 1e-9)
	assert.InDelta(t, 25.0, y, 1e-9)
	assert.InDelta(t, 100.0, w, 1e-9)
	assert.InDelta(t, 50.0, h, 1e-9)

	// Tall image: height-bound, horizontally centered.
	x, y, w, h = fitRect(10, 10, 100, 100, 50, 200)
	assert.InDelta(t, 47.5, x, 1e-9)
	assert.InDelta(t, 10.0, y, 1e-9)
	assert.InDelta(t, 25.0, w, 1e-9)
	assert.InDelta(t, 100.0, h, 1e-9)
}

func TestSlotRects(t *testing.T) {
	abs := slotRects([]Rect{{X: 0.5, Y: 0.25, W: 0.5, H: 0.5}}, 10, 20, 100, 200)
	require.Len(t, abs, 1)
	assert.InDelta(t, 60.0, abs[0].X, 1e-9)
	assert.InDelta(t, 70.0, abs[0].Y, 1e-9)
	assert.InDelta(t, 50.0, abs[0].W, 1e-9)
	assert.InDelta(t, 100.0, abs[0].H, 1e-9)
}

func TestNewComposer(t *testing.T) {
	t.Run("DefaultsClampGrid", func(t *testing.T) {
		c, err := NewComposer(Config{})
		require.NoError(t, err)
		assert.Equal(t, 1, c.cols)
		assert.Equal(t, 1, c.rows)
	})

	t.Run("NamedPreset", func(t *testing.T) {
		c, err := NewComposer(Config{Preset: PresetFeatured8})
		require.NoError(t, err)
		assert.Len(t, c.slots, 8)
	})

	t.Run("UnknownPreset", func(t *testing.T) {
		_, err := NewComposer(Config{Preset: "nope"})
		assert.Error(t, err)
	})

	t.Run("SlotOutOfBounds", func(t *testing.T) {
		_, err := NewComposer(Config{Slots: []Rect{{X: 0.8, Y: 0, W: 0.5, H: 0.5}}})
		assert.Error(t, err)
	})
}

func TestComposeGridPagination(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 5; i++ {
		paths = append(paths, writePNG(t, dir, "p"+string(rune('a'+i))+".png", 20, 30))
	}

	c, err := NewComposer(Config{Cols: 2, Rows: 2})
	require.NoError(t, err)

	dest := filepath.Join(dir, "sheet.pdf")
	require.NoError(t, c.Compose(paths, dest, "Clinic", "Series: R1"))
	assert.Equal(t, 2, pdfPages(t, dest))

	// Atomic write leaves no temp files behind.
	leftovers, err := filepath.Glob(filepath.Join(dir, ".sheet-*"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestComposeSinglePageNoIndicator(t *testing.T) {
	dir := t.TempDir()
	p := writePNG(t, dir, "one.png", 16, 16)

	c, err := NewComposer(Config{Cols: 2, Rows: 4})
	require.NoError(t, err)

	dest := filepath.Join(dir, "sheet.pdf")
	require.NoError(t, c.Compose([]string{p}, dest, "Clinic", ""))
	assert.Equal(t, 1, pdfPages(t, dest))
}

func TestComposeMosaicSinglePage(t *testing.T) {
	dir := t.TempDir()
	var paths []string
	for i := 0; i < 12; i++ {
		paths = append(paths, writePNG(t, dir, "m"+string(rune('a'+i))+".png", 24, 24))
	}

	c, err := NewComposer(Config{Preset: PresetFeatured8})
	require.NoError(t, err)

	dest := filepath.Join(dir, "mosaic.pdf")
	require.NoError(t, c.Compose(paths, dest, "Clinic", "Series: R1"))
	assert.Equal(t, 1, pdfPages(t, dest))
}

func TestComposeSkipsUndecodableImages(t *testing.T) {
	dir := t.TempDir()
	good := writePNG(t, dir, "good.png", 16, 16)
	bad := filepath.Join(dir, "bad.png")
	require.NoError(t, os.WriteFile(bad, []byte("not an image"), 0o644))

	c, err := NewComposer(Config{Cols: 2, Rows: 2})
	require.NoError(t, err)

	dest := filepath.Join(dir, "sheet.pdf")
	require.NoError(t, c.Compose([]string{bad, good}, dest, "", ""))
	assert.Equal(t, 1, pdfPages(t, dest))
}

func TestComposeNoImages(t *testing.T) {
	c, err := NewComposer(Config{Cols: 2, Rows: 2})
	require.NoError(t, err)

	err = c.Compose(nil, filepath.Join(t.TempDir(), "sheet.pdf"), "", "")
	assert.ErrorIs(t, err, simplepacs.ErrNoImages)
}

func TestComposeDiagnostic(t *testing.T) {
	dir := t.TempDir()
	c, err := NewComposer(Config{Cols: 2, Rows: 4})
	require.NoError(t, err)

	dest := filepath.Join(dir, "diag.pdf")
	lines := []string{"a.dcm has no pixel data", "a.dcm has no pixel data", "failed to read b.dcm"}
	require.NoError(t, c.ComposeDiagnostic(dest, "Clinic", lines))
	assert.GreaterOrEqual(t, pdfPages(t, dest), 1)

	// Empty notes still produce a valid document.
	dest2 := filepath.Join(dir, "diag2.pdf")
	require.NoError(t, c.ComposeDiagnostic(dest2, "", nil))
	assert.GreaterOrEqual(t, pdfPages(t, dest2), 1)
}

func TestDedup(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, dedup([]string{"b", "a", "b", "c", "a"}))
	assert.Nil(t, dedup(nil))
}
