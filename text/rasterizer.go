package text

import (
	"fmt"
	"image"
	"image/draw"

	"golang.org/x/image/font"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/font/sfnt"
	"golang.org/x/image/math/fixed"
)

// Rasterizer turns font files into rasterizable sources.
type Rasterizer interface {
	Load(data []byte) (Source, error)
}

// Source is a parsed font file, shared by every size.
type Source interface {
	// Name returns the family name, or "".
	Name() string

	// EMMetrics returns metrics relative to the EM square.
	EMMetrics() EMMetrics

	// Face returns a face rasterizing at size pixels per EM.
	Face(size float64) (Face, error)
}

// Face rasterizes glyphs at one size.
type Face interface {
	// Glyph returns the coverage bitmap of r.
	Glyph(r rune) (Bitmap, error)

	// Kern returns the kerning adjustment between a and b in pixels.
	Kern(a, b rune) float64

	// Metrics returns the pixel metrics at the face size.
	Metrics() Metrics

	Close() error
}

// EMMetrics holds vertical metrics as fractions of the EM size.
type EMMetrics struct {
	Ascent     float64
	Descent    float64
	LineHeight float64
}

// Metrics holds vertical metrics in pixels.
type Metrics struct {
	Ascent     float64
	Descent    float64
	LineHeight float64
}

// Bitmap is a rasterized glyph.
type Bitmap struct {
	// Width and Height are the coverage size in pixels.
	Width  int
	Height int

	// Pixels holds Width*Height coverage bytes, row major.
	Pixels []byte

	// XOffset and YOffset locate the top-left corner of the bitmap
	// relative to the pen position on the baseline (Y grows down).
	XOffset int
	YOffset int

	// Advance is the horizontal pen advance in pixels.
	Advance float64
}

// OpenTypeRasterizer rasterizes TrueType and OpenType fonts with
// golang.org/x/image/font/opentype.
type OpenTypeRasterizer struct {
	// Hinting is the hinting mode of created faces. Default none.
	Hinting font.Hinting
}

// Load implements Rasterizer.
func (r OpenTypeRasterizer) Load(data []byte) (Source, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFontData
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("text: failed to parse font: %w", err)
	}
	return &otSource{font: f, hinting: r.Hinting}, nil
}

type otSource struct {
	font    *opentype.Font
	hinting font.Hinting
}

func (s *otSource) Name() string {
	name, err := s.font.Name(nil, sfnt.NameIDFamily)
	if err != nil {
		return ""
	}
	return name
}

func (s *otSource) EMMetrics() EMMetrics {
	upem := int(s.font.UnitsPerEm())
	if upem == 0 {
		return EMMetrics{}
	}
	// At one pixel per font unit the metrics come back in font units.
	m, err := s.font.Metrics(nil, fixed.I(upem), font.HintingNone)
	if err != nil {
		return EMMetrics{}
	}
	em := float64(upem)
	return EMMetrics{
		Ascent:     fixedToFloat64(m.Ascent) / em,
		Descent:    fixedToFloat64(m.Descent) / em,
		LineHeight: fixedToFloat64(m.Height) / em,
	}
}

func (s *otSource) Face(size float64) (Face, error) {
	if size <= 0 {
		return nil, ErrInvalidSize
	}
	face, err := opentype.NewFace(s.font, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: s.hinting,
	})
	if err != nil {
		return nil, fmt.Errorf("text: failed to create face: %w", err)
	}
	return &otFace{face: face}, nil
}

type otFace struct {
	face font.Face
}

func (f *otFace) Glyph(r rune) (Bitmap, error) {
	dr, mask, maskp, advance, ok := f.face.Glyph(fixed.Point26_6{}, r)
	if !ok {
		return Bitmap{}, fmt.Errorf("%w: %U", ErrGlyphNotFound, r)
	}
	bm := Bitmap{
		Width:   dr.Dx(),
		Height:  dr.Dy(),
		XOffset: dr.Min.X,
		YOffset: dr.Min.Y,
		Advance: fixedToFloat64(advance),
	}
	if dr.Empty() {
		bm.Width, bm.Height = 0, 0
		return bm, nil
	}
	alpha := image.NewAlpha(image.Rect(0, 0, bm.Width, bm.Height))
	draw.Draw(alpha, alpha.Bounds(), mask, maskp, draw.Src)
	bm.Pixels = alpha.Pix
	return bm, nil
}

func (f *otFace) Kern(a, b rune) float64 {
	return fixedToFloat64(f.face.Kern(a, b))
}

func (f *otFace) Metrics() Metrics {
	m := f.face.Metrics()
	return Metrics{
		Ascent:     fixedToFloat64(m.Ascent),
		Descent:    fixedToFloat64(m.Descent),
		LineHeight: fixedToFloat64(m.Height),
	}
}

func (f *otFace) Close() error { return f.face.Close() }

// fixedToFloat64 converts fixed.Int26_6 to float64.
func fixedToFloat64(x fixed.Int26_6) float64 {
	return float64(x) / 64.0
}
