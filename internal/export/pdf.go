// Package export renders a board to PDF.
package export

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/starford/maplab/internal/models"
)

const (
	pageMargin = 36.0 // points
	notePad    = 6.0
	fontSize   = 11.0
	lineHeight = 13.0
)

// fontFamilies maps note font classes onto the PDF core fonts.
var fontFamilies = map[string]string{
	"font-ibm-plex-mono": "Courier",
	"font-roboto-mono":   "Courier",
	"font-pt-serif":      "Times",
}

// PDF writes notes to w as a single landscape A4 page. The board is scaled
// uniformly so every note fits inside the page margins.
func PDF(w io.Writer, title string, notes []models.Note) error {
	pdf := gofpdf.New("L", "pt", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetCreator("maplab", true)
	pdf.SetAutoPageBreak(false, 0)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pageW, pageH := pdf.GetPageSize()
	minX, minY, scale := fit(notes, pageW-2*pageMargin, pageH-2*pageMargin)

	for _, n := range notes {
		x := pageMargin + (n.X-minX)*scale
		y := pageMargin + (n.Y-minY)*scale
		w := n.Width * scale
		h := n.Height * scale

		fr, fg, fb := parseHex(n.FillColor, 255)
		sr, sg, sb := parseHex(n.StrokeColor, 0)

		pdf.SetAlpha(n.FillOpacity, "Normal")
		pdf.SetFillColor(fr, fg, fb)
		pdf.Rect(x, y, w, h, "F")

		if n.StrokeWidth > 0 {
			pdf.SetAlpha(n.StrokeOpacity, "Normal")
			pdf.SetDrawColor(sr, sg, sb)
			pdf.SetLineWidth(n.StrokeWidth * scale)
			pdf.Rect(x, y, w, h, "D")
		}

		if n.Text != "" {
			pdf.SetAlpha(1, "Normal")
			family := fontFamilies[n.FontClassName]
			if family == "" {
				family = "Helvetica"
			}
			pdf.SetFont(family, "", fontSize*scale)
			pdf.SetTextColor(0, 0, 0)
			pdf.ClipRect(x, y, w, h, false)
			pdf.SetXY(x+notePad*scale, y+notePad*scale)
			pdf.MultiCell(w-2*notePad*scale, lineHeight*scale, tr(n.Text), "", "L", false)
			pdf.ClipEnd()
		}
	}

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("export: render pdf: %w", err)
	}
	return nil
}

// fit returns the board origin and the scale that maps the bounding box of
// notes into a maxW x maxH area. Boards smaller than the area are not
// enlarged.
func fit(notes []models.Note, maxW, maxH float64) (minX, minY, scale float64) {
	if len(notes) == 0 {
		return 0, 0, 1
	}
	minX, minY = math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, n := range notes {
		minX = min(minX, n.X)
		minY = min(minY, n.Y)
		maxX = max(maxX, n.X+n.Width)
		maxY = max(maxY, n.Y+n.Height)
	}
	scale = min(1, maxW/(maxX-minX), maxH/(maxY-minY))
	return minX, minY, scale
}

// parseHex parses #rgb, #rrggbb or #rrggbbaa. Unparseable colours fall back
// to the grey level def.
func parseHex(s string, def int) (r, g, b int) {
	h := strings.TrimPrefix(s, "#")
	if len(h) == 3 {
		h = string([]byte{h[0], h[0], h[1], h[1], h[2], h[2]})
	}
	if len(h) == 8 {
		h = h[:6]
	}
	if len(h) != 6 {
		return def, def, def
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return def, def, def
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
