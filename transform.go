package uistream

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gogpu/uistream/gpucore"
)

// Orientation is the pre-rotation the presentation engine expects.
type Orientation uint8

// Orientations, counter-clockwise.
const (
	Rotate0 Orientation = iota
	Rotate90
	Rotate180
	Rotate270
)

func (o Orientation) String() string {
	switch o {
	case Rotate0:
		return "0"
	case Rotate90:
		return "90"
	case Rotate180:
		return "180"
	case Rotate270:
		return "270"
	default:
		return fmt.Sprintf("Orientation(%d)", o)
	}
}

// Swapchain describes the render target the UI is drawn to.
type Swapchain struct {
	// Width and Height are the physical extent in pixels.
	Width  int
	Height int

	Format      gpucore.Format
	Orientation Orientation
}

// LogicalSize returns the size UI coordinates span: the physical extent,
// transposed for quarter-turn orientations.
func (s Swapchain) LogicalSize() (width, height int) {
	if s.Orientation == Rotate90 || s.Orientation == Rotate270 {
		return s.Height, s.Width
	}
	return s.Width, s.Height
}

func (s Swapchain) validate() error {
	if s.Width <= 0 || s.Height <= 0 || s.Format == gpucore.FormatUndefined || s.Orientation > Rotate270 {
		return fmt.Errorf("%w: %dx%d %v rotate %v", ErrInvalidSwapchain, s.Width, s.Height, s.Format, s.Orientation)
	}
	return nil
}

// Mat4 is a column-major 4x4 matrix.
type Mat4 [16]float32

// Apply transforms the point (x, y, 0, 1) and returns its x and y.
func (m Mat4) Apply(x, y float32) (float32, float32) {
	return m[0]*x + m[4]*y + m[12], m[1]*x + m[5]*y + m[13]
}

// ScreenTransform maps UI pixels (origin top-left, Y down) of the logical
// size to normalized device coordinates, then rotates by the orientation.
func ScreenTransform(s Swapchain) Mat4 {
	w, h := s.LogicalSize()
	sx, sy := 2/float64(w), -2/float64(h)
	tx, ty := -1.0, 1.0

	var c, n float64
	switch s.Orientation {
	case Rotate90:
		c, n = 0, 1
	case Rotate180:
		c, n = -1, 0
	case Rotate270:
		c, n = 0, -1
	default:
		c, n = 1, 0
	}
	return Mat4{
		float32(c * sx), float32(n * sx), 0, 0,
		float32(-n * sy), float32(c * sy), 0, 0,
		0, 0, 1, 0,
		float32(c*tx - n*ty), float32(n*tx + c*ty), 0, 1,
	}
}

// Bytes returns the little-endian std140 encoding of m.
func (m Mat4) Bytes() []byte {
	b := make([]byte, 64)
	for i, v := range m {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}
