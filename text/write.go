package text

import (
	"golang.org/x/text/unicode/norm"

	"github.com/gogpu/uistream/vertex"
)

// Measure returns the advance width of the widest line of s and the number
// of vertices WriteString writes for it. Glyphs are rasterized on demand.
func Measure(fonts *FontStorage, f *Font, s string) (width float32, vertices int) {
	var pen float32
	prev := rune(-1)
	for _, r := range norm.NFC.String(s) {
		if r == '\n' {
			width = max(width, pen)
			pen, prev = 0, -1
			continue
		}
		if prev >= 0 {
			pen += fonts.Kern(f, prev, r)
		}
		g := fonts.GetGlyphInfo(f, r)
		if g.Visible() {
			vertices += vertex.QuadVertices
		}
		pen += g.Advance
		prev = r
	}
	return max(width, pen), vertices
}

// WriteString writes one quad per visible glyph of s into dst, with the
// pen starting at (x, y) on the baseline. The string is normalized to NFC
// first, and '\n' starts a new line. It returns the unused tail of dst and
// the pen position after the last glyph. Glyphs that do not fit in dst are
// dropped.
func WriteString(dst []vertex.Vertex, fonts *FontStorage, f *Font, s string, x, y float32, color uint32) ([]vertex.Vertex, float32) {
	pen := x
	prev := rune(-1)
	for _, r := range norm.NFC.String(s) {
		if r == '\n' {
			pen, prev = x, -1
			y += float32(f.Metrics.LineHeight)
			continue
		}
		if prev >= 0 {
			pen += fonts.Kern(f, prev, r)
		}
		g := fonts.GetGlyphInfo(f, r)
		if g.Visible() && len(dst) >= vertex.QuadVertices {
			x0 := pen + g.XOffset
			y0 := y + g.YOffset
			dst = vertex.Quad(dst, x0, y0, x0+g.Width, y0+g.Height, g.UV, color)
		}
		pen += g.Advance
		prev = r
	}
	return dst, pen
}
