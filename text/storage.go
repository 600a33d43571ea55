package text

import (
	"fmt"
	"io/fs"
	"log/slog"
	"math"
	"path"
	"unicode/utf8"

	"golang.org/x/image/font/gofont/goregular"

	"github.com/gogpu/uistream/atlas"
	"github.com/gogpu/uistream/internal/logging"
)

// DefaultFamily is the path under which the built-in Go Regular face is
// cached. It is used for the empty family and for families that cannot be
// resolved.
const DefaultFamily = "builtin/goregular.ttf"

// Config configures a FontStorage.
type Config struct {
	// Fonts resolves families: a family is a slash-separated path to a
	// font file in Fonts. Nil resolves every family to the default face.
	Fonts fs.FS

	// Rasterizer parses fonts and rasterizes glyphs. Default
	// OpenTypeRasterizer.
	Rasterizer Rasterizer

	// Shaping enables HarfBuzz pair kerning through go-text instead of
	// the rasterizer's kern table.
	Shaping bool

	// Logger receives placeholder and fallback warnings. Nil means silent.
	Logger *slog.Logger
}

// FontResource is one font file shared by every size.
type FontResource struct {
	Path   string
	Name   string
	EM     EMMetrics
	data   []byte
	source Source
	kerner Kerner
}

// Font is a font resource at one pixel size.
type Font struct {
	Resource *FontResource
	Size     float64
	Metrics  Metrics

	face        Face
	glyphs      map[rune]Glyph
	placeholder Glyph
}

type fontKey struct {
	path string
	size float64
}

// Glyph is the atlas location and metrics of one rasterized character.
type Glyph struct {
	Rune rune

	// UV addresses the glyph in the atlas: top-left (U0, V0), bottom-right
	// (U1, V1) and layer.
	UV atlas.UVRect

	Advance float32
	Width   float32
	Height  float32
	XOffset float32
	YOffset float32

	// Placeholder marks the opaque box substituted for a glyph that could
	// not be rasterized.
	Placeholder bool
}

// Visible reports whether the glyph covers any pixels.
func (g Glyph) Visible() bool { return g.Width > 0 && g.Height > 0 }

// FontStorage is the font cache. Fonts are keyed by resolved file path,
// then by (path, size). Glyphs are created lazily and never evicted until
// Close.
//
// FontStorage is not safe for concurrent use.
type FontStorage struct {
	atlas  *atlas.Atlas
	fonts  fs.FS
	raster Rasterizer
	shape  bool
	log    *slog.Logger

	resources map[string]*FontResource
	sized     map[fontKey]*Font
	closed    bool

	rasterized   int
	placeholders int
}

// New creates a font cache packing glyphs into a.
func New(a *atlas.Atlas, cfg Config) *FontStorage {
	if cfg.Rasterizer == nil {
		cfg.Rasterizer = OpenTypeRasterizer{}
	}
	return &FontStorage{
		atlas:     a,
		fonts:     cfg.Fonts,
		raster:    cfg.Rasterizer,
		shape:     cfg.Shaping,
		log:       logging.OrNop(cfg.Logger),
		resources: make(map[string]*FontResource),
		sized:     make(map[fontKey]*Font),
	}
}

// GetFont returns the font for family at size pixels per EM.
func (s *FontStorage) GetFont(family string, size float64) (*Font, error) {
	if s.closed {
		return nil, ErrStorageClosed
	}
	if size <= 0 || math.IsNaN(size) || math.IsInf(size, 0) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSize, size)
	}
	res, err := s.resource(family)
	if err != nil {
		return nil, err
	}
	key := fontKey{res.Path, size}
	if f, ok := s.sized[key]; ok {
		return f, nil
	}

	face, err := res.source.Face(size)
	if err != nil {
		return nil, fmt.Errorf("text: face %s at %v: %w", res.Path, size, err)
	}
	f := &Font{
		Resource: res,
		Size:     size,
		Metrics:  face.Metrics(),
		face:     face,
		glyphs:   make(map[rune]Glyph),
	}
	f.placeholder = s.placeholderFor(f)
	s.sized[key] = f
	return f, nil
}

// resource returns the cached resource for family, loading it on a miss.
// Families that cannot be resolved fall back to the default face.
func (s *FontStorage) resource(family string) (*FontResource, error) {
	p := s.resolve(family)
	if res, ok := s.resources[p]; ok {
		return res, nil
	}

	var data []byte
	if p == DefaultFamily {
		data = goregular.TTF
	} else {
		b, err := fs.ReadFile(s.fonts, p)
		if err != nil {
			s.log.Warn("text: font not found, using default", "family", family, "err", err)
			def, derr := s.resource("")
			if derr == nil {
				s.resources[p] = def
			}
			return def, derr
		}
		data = b
	}

	src, err := s.raster.Load(data)
	if err != nil {
		return nil, fmt.Errorf("text: load %s: %w", p, err)
	}
	res := &FontResource{
		Path:   p,
		Name:   src.Name(),
		EM:     src.EMMetrics(),
		data:   data,
		source: src,
	}
	if s.shape {
		k, err := NewShapingKerner(data)
		if err != nil {
			s.log.Warn("text: shaping kerner unavailable", "path", p, "err", err)
		} else {
			res.kerner = k
		}
	}
	s.resources[p] = res
	s.log.Debug("text: font loaded", "path", p, "name", res.Name)
	return res, nil
}

func (s *FontStorage) resolve(family string) string {
	if family == "" || s.fonts == nil {
		return DefaultFamily
	}
	p := path.Clean(family)
	if !fs.ValidPath(p) {
		return DefaultFamily
	}
	return p
}

// placeholderFor builds the opaque box glyph of f: a box over the white
// block, half an EM wide and as tall as the ascent.
func (s *FontStorage) placeholderFor(f *Font) Glyph {
	h := float32(math.Round(f.Metrics.Ascent * 0.7))
	w := float32(math.Round(f.Size * 0.5))
	return Glyph{
		Rune:        utf8.RuneError,
		UV:          s.atlas.WhiteUV(),
		Advance:     float32(math.Round(f.Size * 0.6)),
		Width:       max(w, 1),
		Height:      max(h, 1),
		XOffset:     float32(math.Round(f.Size * 0.05)),
		YOffset:     -max(h, 1),
		Placeholder: true,
	}
}

// GetGlyphInfo returns the glyph for r in f, rasterizing and staging it
// into the atlas on first use. It never fails: a glyph that cannot be
// rasterized or packed resolves to the font's placeholder.
func (s *FontStorage) GetGlyphInfo(f *Font, r rune) Glyph {
	if g, ok := f.glyphs[r]; ok {
		return g
	}
	g := s.rasterize(f, r)
	f.glyphs[r] = g
	return g
}

func (s *FontStorage) rasterize(f *Font, r rune) Glyph {
	bm, err := f.face.Glyph(r)
	if err != nil {
		return s.fallback(f, r, err)
	}
	g := Glyph{
		Rune:    r,
		Advance: float32(bm.Advance),
		Width:   float32(bm.Width),
		Height:  float32(bm.Height),
		XOffset: float32(bm.XOffset),
		YOffset: float32(bm.YOffset),
	}
	if bm.Width == 0 || bm.Height == 0 {
		g.Width, g.Height = 0, 0
		return g
	}
	if len(bm.Pixels) != bm.Width*bm.Height {
		return s.fallback(f, r, fmt.Errorf("text: bitmap of %d bytes for %dx%d", len(bm.Pixels), bm.Width, bm.Height))
	}

	region, err := s.atlas.Insert(bm.Width, bm.Height, expandCoverage(bm.Pixels, s.atlas.Format().BytesPerPixel()))
	if err != nil {
		return s.fallback(f, r, err)
	}
	g.UV = s.atlas.UV(region)
	s.rasterized++
	return g
}

func (s *FontStorage) fallback(f *Font, r rune, err error) Glyph {
	s.placeholders++
	s.log.Warn("text: glyph unavailable, using placeholder",
		"rune", fmt.Sprintf("%U", r), "font", f.Resource.Path, "size", f.Size, "err", err)
	g := f.placeholder
	g.Rune = r
	return g
}

// expandCoverage converts one coverage byte per pixel to bpp bytes per
// pixel: white with coverage alpha when the atlas has four channels.
func expandCoverage(cov []byte, bpp int) []byte {
	if bpp <= 1 {
		return cov
	}
	out := make([]byte, len(cov)*bpp)
	for i, c := range cov {
		px := out[i*bpp : (i+1)*bpp]
		for j := range px {
			px[j] = 0xFF
		}
		px[bpp-1] = c
	}
	return out
}

// Kern returns the kerning adjustment between a and b in f, in pixels.
func (s *FontStorage) Kern(f *Font, a, b rune) float32 {
	if k := f.Resource.kerner; k != nil {
		return float32(k.Kern(a, b, f.Size))
	}
	return float32(f.face.Kern(a, b))
}

// Placeholder returns the placeholder glyph of f.
func (s *FontStorage) Placeholder(f *Font) Glyph { return f.placeholder }

// Stats reports cache sizes.
type Stats struct {
	Resources    int
	Fonts        int
	Glyphs       int
	Rasterized   int
	Placeholders int
}

// Stats returns cache statistics.
func (s *FontStorage) Stats() Stats {
	st := Stats{
		Resources:    len(s.resources),
		Fonts:        len(s.sized),
		Rasterized:   s.rasterized,
		Placeholders: s.placeholders,
	}
	for _, f := range s.sized {
		st.Glyphs += len(f.glyphs)
	}
	return st
}

// Close releases every face and drops all cached glyphs. The atlas is not
// closed.
func (s *FontStorage) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for _, f := range s.sized {
		if err := f.face.Close(); err != nil {
			s.log.Debug("text: face close", "font", f.Resource.Path, "err", err)
		}
	}
	clear(s.sized)
	clear(s.resources)
}
