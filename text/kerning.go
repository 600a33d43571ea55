package text

import (
	"bytes"
	"fmt"

	"github.com/go-text/typesetting/di"
	"github.com/go-text/typesetting/font"
	"github.com/go-text/typesetting/language"
	"github.com/go-text/typesetting/shaping"
	"github.com/gogpu/uistream/internal/cache"
	"golang.org/x/image/math/fixed"
)

// kernCacheSize bounds the pair cache of a ShapingKerner.
const kernCacheSize = 4096

// Kerner returns pair kerning adjustments in pixels.
type Kerner interface {
	Kern(a, b rune, size float64) float64
}

// ShapingKerner derives pair kerning from HarfBuzz shaping with
// go-text/typesetting, which covers GPOS kerning that the legacy kern
// table lookup misses.
//
// ShapingKerner is not safe for concurrent use.
type ShapingKerner struct {
	face   *font.Face
	shaper shaping.HarfbuzzShaper
	pairs  *cache.Cache[kernKey, float64]
	runes  [2]rune
}

type kernKey struct {
	a, b rune
	size float64
}

// NewShapingKerner parses data for kerning.
func NewShapingKerner(data []byte) (*ShapingKerner, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFontData
	}
	face, err := font.ParseTTF(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("text: failed to parse font for shaping: %w", err)
	}
	return &ShapingKerner{
		face:  font.NewFace(face.Font),
		pairs: cache.New[kernKey, float64](kernCacheSize),
	}, nil
}

// Kern implements Kerner. The adjustment is the difference between the
// advance of a followed by b and the advance of a alone.
func (k *ShapingKerner) Kern(a, b rune, size float64) float64 {
	key := kernKey{a, b, size}
	if v, ok := k.pairs.Get(key); ok {
		return v
	}
	k.runes = [2]rune{a, b}
	pair := k.advance(k.runes[:2], size)
	single := k.advance(k.runes[:1], size)
	v := pair - single
	k.pairs.Put(key, v)
	return v
}

// advance returns the advance of the first glyph of runes.
func (k *ShapingKerner) advance(runes []rune, size float64) float64 {
	out := k.shaper.Shape(shaping.Input{
		Text:      runes,
		RunStart:  0,
		RunEnd:    len(runes),
		Direction: di.DirectionLTR,
		Face:      k.face,
		Size:      fixed.Int26_6(size * 64),
		Script:    language.LookupScript(runes[0]),
		Language:  language.NewLanguage("en"),
	})
	if len(out.Glyphs) == 0 {
		return 0
	}
	return float64(out.Glyphs[0].Advance) / 64
}
