package text

import "errors"

// Sentinel errors for text package.
var (
	// ErrEmptyFontData is returned when font data is empty.
	ErrEmptyFontData = errors.New("text: empty font data")

	// ErrGlyphNotFound is returned when a face has no glyph for a rune.
	ErrGlyphNotFound = errors.New("text: glyph not found")

	// ErrInvalidSize is returned for non-positive font sizes.
	ErrInvalidSize = errors.New("text: invalid font size")

	// ErrStorageClosed is returned by a closed FontStorage.
	ErrStorageClosed = errors.New("text: font storage closed")
)
