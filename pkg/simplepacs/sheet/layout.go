package sheet

import "fmt"

// Rect is a layout slot normalized to the page content area: x, y are the
// top-left corner and w, h the extent, all in [0, 1].
type Rect struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// PresetFeatured8 is the built-in mosaic: two large slots on top, six
// thumbnails below.
const PresetFeatured8 = "featured8"

var presets = map[string][]Rect{
	PresetFeatured8: {
		{X: 0.00, Y: 0.00, W: 0.66, H: 0.45},
		{X: 0.66, Y: 0.00, W: 0.34, H: 0.45},
		{X: 0.00, Y: 0.48, W: 0.33, H: 0.25},
		{X: 0.33, Y: 0.48, W: 0.33, H: 0.25},
		{X: 0.66, Y: 0.48, W: 0.34, H: 0.25},
		{X: 0.00, Y: 0.75, W: 0.33, H: 0.25},
		{X: 0.33, Y: 0.75, W: 0.33, H: 0.25},
		{X: 0.66, Y: 0.75, W: 0.34, H: 0.25},
	},
}

// Preset returns the slot list for a named mosaic preset.
func Preset(name string) ([]Rect, bool) {
	slots, ok := presets[name]
	return slots, ok
}

// PageCount returns the number of grid pages needed for n images.
func PageCount(n, cols, rows int) int {
	if n <= 0 {
		return 0
	}
	perPage := cols * rows
	if perPage < 1 {
		perPage = 1
	}
	return (n + perPage - 1) / perPage
}

// pageSubtitle appends the page indicator to the subtitle, but only when
// the document spans more than one page.
func pageSubtitle(subtitle string, page, total int) string {
	if total <= 1 {
		return subtitle
	}
	if subtitle == "" {
		return fmt.Sprintf("page %d of %d", page, total)
	}
	return fmt.Sprintf("%s - page %d of %d", subtitle, page, total)
}

// fitRect scales (iw, ih) by the largest aspect-preserving factor that
// fits inside (cw, ch) and centers the result within the cell at (cx, cy).
func fitRect(cx, cy, cw, ch, iw, ih float64) (x, y, w, h float64) {
	if iw <= 0 || ih <= 0 {
		return cx, cy, 0, 0
	}
	scale := cw / iw
	if s := ch / ih; s < scale {
		scale = s
	}
	w = iw * scale
	h = ih * scale
	x = cx + (cw-w)/2
	y = cy + (ch-h)/2
	return x, y, w, h
}

// grid is the per-page cell geometry for the uniform layout.
type grid struct {
	cols, rows   int
	originX      float64
	originY      float64
	cellW, cellH float64
}

// cell returns the rectangle of the i-th cell on a page, filled row-major.
func (g grid) cell(i int) (x, y, w, h float64) {
	row := i / g.cols
	col := i % g.cols
	x = g.originX + float64(col)*(g.cellW+gutterX)
	y = g.originY + float64(row)*(g.cellH+gutterY)
	return x, y, g.cellW, g.cellH
}

// slotRects maps normalized mosaic slots onto the content area.
func slotRects(slots []Rect, contentX, contentY, contentW, contentH float64) []Rect {
	abs := make([]Rect, len(slots))
	for i, r := range slots {
		abs[i] = Rect{
			X: contentX + r.X*contentW,
			Y: contentY + r.Y*contentH,
			W: r.W * contentW,
			H: r.H * contentH,
		}
	}
	return abs
}
