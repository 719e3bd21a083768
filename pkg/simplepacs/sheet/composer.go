// Package sheet composes contact-sheet PDFs from preview rasters: a
// uniform paginated grid, an optional named mosaic layout, and a
// diagnostic text document for when no image can be rendered.
package sheet

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/go-pdf/fpdf"
	"github.com/tendant/simple-pacs/pkg/simplepacs"
)

const (
	marginX = 24.0
	marginY = 24.0
	gutterX = 12.0
	gutterY = 12.0

	headerFontSize   = 13.0
	subtitleFontSize = 10.0
	bodyFontSize     = 10.0
	headerLineH      = 20.0
	subtitleLineH    = 16.0
	headerBlockPad   = 8.0
	bodyLineH        = 14.0

	mosaicPad = 6.0
)

// Config controls the sheet layout. When Slots is set (directly or via a
// Preset name) every document is a single mosaic page; otherwise images
// flow through a Cols x Rows grid, one page at a time.
type Config struct {
	Cols   int
	Rows   int
	Preset string
	Slots  []Rect
	Logger *slog.Logger
}

// Composer renders contact sheets on A4 portrait pages. It implements
// simplepacs.Composer; all writes go through a temp file and rename.
type Composer struct {
	cols   int
	rows   int
	slots  []Rect
	logger *slog.Logger
}

// NewComposer creates a composer from the given layout configuration.
func NewComposer(cfg Config) (*Composer, error) {
	c := &Composer{
		cols:   cfg.Cols,
		rows:   cfg.Rows,
		slots:  cfg.Slots,
		logger: cfg.Logger,
	}
	if c.cols < 1 {
		c.cols = 1
	}
	if c.rows < 1 {
		c.rows = 1
	}
	if c.logger == nil {
		c.logger = slog.Default()
	}

	if len(c.slots) == 0 && cfg.Preset != "" {
		slots, ok := Preset(cfg.Preset)
		if !ok {
			return nil, fmt.Errorf("unknown layout preset %q", cfg.Preset)
		}
		c.slots = slots
	}
	for i, r := range c.slots {
		if r.W <= 0 || r.H <= 0 || r.X < 0 || r.Y < 0 || r.X+r.W > 1.001 || r.Y+r.H > 1.001 {
			return nil, fmt.Errorf("layout slot %d out of bounds: %+v", i, r)
		}
	}
	return c, nil
}

// Compose lays the images out into a paginated document at dest. Images
// that cannot be probed are skipped with a warning; their cell stays
// empty so the remaining layout is unaffected.
func (c *Composer) Compose(imagePaths []string, dest, header, subtitle string) error {
	if len(imagePaths) == 0 {
		return simplepacs.ErrNoImages
	}

	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(false, 0)
	if header != "" {
		pdf.SetTitle(header, true)
	}

	if len(c.slots) > 0 {
		c.composeMosaic(pdf, imagePaths, header, subtitle)
	} else {
		c.composeGrid(pdf, imagePaths, header, subtitle)
	}
	return c.write(pdf, dest)
}

func (c *Composer) composeGrid(pdf *fpdf.Fpdf, imagePaths []string, header, subtitle string) {
	pageW, pageH := pdf.GetPageSize()
	total := PageCount(len(imagePaths), c.cols, c.rows)
	perPage := c.cols * c.rows

	// The page indicator counts as a subtitle for layout purposes.
	headerH := headerBlockHeight(header, subtitle != "" || total > 1)
	contentW := pageW - 2*marginX
	contentH := pageH - 2*marginY - headerH
	g := grid{
		cols:    c.cols,
		rows:    c.rows,
		originX: marginX,
		originY: marginY + headerH,
		cellW:   (contentW - float64(c.cols-1)*gutterX) / float64(c.cols),
		cellH:   (contentH - float64(c.rows-1)*gutterY) / float64(c.rows),
	}

	for page := 0; page < total; page++ {
		pdf.AddPage()
		c.drawHeader(pdf, pageW, header, pageSubtitle(subtitle, page+1, total))
		for i := 0; i < perPage; i++ {
			idx := page*perPage + i
			if idx >= len(imagePaths) {
				break
			}
			x, y, w, h := g.cell(i)
			c.placeImage(pdf, imagePaths[idx], x, y, w, h, 0)
		}
	}
}

// composeMosaic draws a single page; images beyond the slot count are
// dropped.
func (c *Composer) composeMosaic(pdf *fpdf.Fpdf, imagePaths []string, header, subtitle string) {
	pageW, pageH := pdf.GetPageSize()
	headerH := headerBlockHeight(header, subtitle != "")
	slots := slotRects(c.slots, marginX, marginY+headerH,
		pageW-2*marginX, pageH-2*marginY-headerH)

	pdf.AddPage()
	c.drawHeader(pdf, pageW, header, subtitle)
	for i, path := range imagePaths {
		if i >= len(slots) {
			break
		}
		r := slots[i]
		c.placeImage(pdf, path, r.X, r.Y, r.W, r.H, mosaicPad)
	}
}

// ComposeDiagnostic writes a text listing of diagnostic lines, deduplicated
// in first-seen order. The document always has at least one page.
func (c *Composer) ComposeDiagnostic(dest, header string, lines []string) error {
	pdf := fpdf.New("P", "pt", "A4", "")
	pdf.SetAutoPageBreak(true, marginY)
	pdf.AddPage()

	pageW, _ := pdf.GetPageSize()
	c.drawHeader(pdf, pageW, header, "")

	pdf.SetFont("Helvetica", "", bodyFontSize)
	pdf.SetXY(marginX, marginY+headerBlockHeight(header, false))
	pdf.MultiCell(pageW-2*marginX, bodyLineH,
		"No images could be rendered for this document. The notes below explain why.",
		"", "L", false)
	pdf.Ln(bodyLineH / 2)
	for _, line := range dedup(lines) {
		pdf.SetX(marginX)
		pdf.MultiCell(pageW-2*marginX, bodyLineH, "- "+line, "", "L", false)
	}
	return c.write(pdf, dest)
}

// headerBlockHeight is the vertical space reserved above the content area.
func headerBlockHeight(header string, hasSubtitle bool) float64 {
	h := 0.0
	if header != "" {
		h += headerLineH
	}
	if hasSubtitle {
		h += subtitleLineH
	}
	if h > 0 {
		h += headerBlockPad
	}
	return h
}

func (c *Composer) drawHeader(pdf *fpdf.Fpdf, pageW float64, header, subtitle string) {
	y := marginY
	if header != "" {
		pdf.SetFont("Helvetica", "B", headerFontSize)
		pdf.Text((pageW-pdf.GetStringWidth(header))/2, y+headerFontSize, header)
		y += headerLineH
	}
	if subtitle != "" {
		pdf.SetFont("Helvetica", "", subtitleFontSize)
		pdf.Text((pageW-pdf.GetStringWidth(subtitle))/2, y+subtitleFontSize, subtitle)
	}
}

// placeImage fits the image into the cell, aspect preserved and centered.
// The image is probed first so an unreadable file never poisons the
// document's error state.
func (c *Composer) placeImage(pdf *fpdf.Fpdf, path string, cx, cy, cw, ch, pad float64) {
	cx += pad
	cy += pad
	cw -= 2 * pad
	ch -= 2 * pad
	if cw <= 0 || ch <= 0 {
		return
	}

	f, err := os.Open(path)
	if err != nil {
		c.logger.Warn("skipping unreadable image", "path", path, "error", err)
		return
	}
	cfg, kind, err := image.DecodeConfig(f)
	f.Close()
	if err != nil {
		c.logger.Warn("skipping undecodable image", "path", path, "error", err)
		return
	}

	x, y, w, h := fitRect(cx, cy, cw, ch, float64(cfg.Width), float64(cfg.Height))
	if w <= 0 || h <= 0 {
		return
	}
	pdf.ImageOptions(path, x, y, w, h, false,
		fpdf.ImageOptions{ImageType: kind}, 0, "")
}

// write finalizes the document into dest via a temp file in the same
// directory so readers never observe a partial PDF.
func (c *Composer) write(pdf *fpdf.Fpdf, dest string) error {
	if err := pdf.Error(); err != nil {
		return &simplepacs.SheetError{Dest: dest, Err: err}
	}
	dir := filepath.Dir(dest)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &simplepacs.SheetError{Dest: dest, Err: err}
	}

	tmp, err := os.CreateTemp(dir, ".sheet-*.pdf")
	if err != nil {
		return &simplepacs.SheetError{Dest: dest, Err: err}
	}
	tmpName := tmp.Name()
	tmp.Close()

	if err := pdf.OutputFileAndClose(tmpName); err != nil {
		os.Remove(tmpName)
		return &simplepacs.SheetError{Dest: dest, Err: err}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		os.Remove(tmpName)
		return &simplepacs.SheetError{Dest: dest, Err: err}
	}
	return nil
}

func dedup(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	var out []string
	for _, line := range lines {
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
