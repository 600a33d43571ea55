package atlas

import "errors"

// Atlas-related errors.
var (
	// ErrAtlasFull is returned when a region does not fit and the atlas
	// already has its maximum number of layers.
	ErrAtlasFull = errors.New("atlas: glyph atlas is full")

	// ErrAtlasClosed is returned when operating on a closed atlas.
	ErrAtlasClosed = errors.New("atlas: glyph atlas is closed")

	// ErrRegionTooLarge is returned when a region exceeds the layer size.
	ErrRegionTooLarge = errors.New("atlas: region larger than an atlas layer")

	// ErrPixelSize is returned when pixel data does not match its region.
	ErrPixelSize = errors.New("atlas: pixel data does not match region size")
)
