package atlas

import "fmt"

// Region is a rectangle on one layer of the atlas, in texels.
type Region struct {
	Layer  int
	X      int
	Y      int
	Width  int
	Height int
}

// IsValid returns true if the region has valid dimensions.
func (r Region) IsValid() bool {
	return r.Width > 0 && r.Height > 0
}

// Contains returns true if the point (x, y) of the same layer is inside the region.
func (r Region) Contains(x, y int) bool {
	return x >= r.X && x < r.X+r.Width && y >= r.Y && y < r.Y+r.Height
}

// Overlaps reports whether two regions share a texel.
func (r Region) Overlaps(o Region) bool {
	if r.Layer != o.Layer || !r.IsValid() || !o.IsValid() {
		return false
	}
	return r.X < o.X+o.Width && o.X < r.X+r.Width &&
		r.Y < o.Y+o.Height && o.Y < r.Y+r.Height
}

// String returns a string representation of the region.
func (r Region) String() string {
	return fmt.Sprintf("Region(L%d %d,%d %dx%d)", r.Layer, r.X, r.Y, r.Width, r.Height)
}

// shelf is the line currently being filled.
type shelf struct {
	y      int // Top Y coordinate of this shelf
	height int // Height of this shelf (tallest item so far, padded)
	nextX  int // Next available X position on this shelf
}

// Packer implements shelf packing across the layers of an array texture.
//
// Items are placed left to right on the current shelf. When the remaining
// width is insufficient the cursor opens a new shelf below; when the layer
// has no vertical space left it moves to the next layer. Earlier shelves
// are never revisited, so a packed region never moves.
type Packer struct {
	width   int
	height  int
	layers  int
	padding int

	layer   int
	current shelf

	allocCount int
	usedArea   int
}

// NewPacker creates a packer for layers of width x height texels.
func NewPacker(width, height, layers, padding int) *Packer {
	if layers < 1 {
		layers = 1
	}
	if padding < 0 {
		padding = 0
	}
	return &Packer{
		width:   width,
		height:  height,
		layers:  layers,
		padding: padding,
	}
}

// Pack finds space for a width x height rectangle. Zero-sized requests
// succeed with an empty region and consume nothing. It returns false when
// every layer is exhausted.
func (p *Packer) Pack(width, height int) (Region, bool) {
	if width <= 0 || height <= 0 {
		return Region{Layer: p.layer}, true
	}
	if width > p.width || height > p.height {
		return Region{}, false
	}

	for p.layer < p.layers {
		s := &p.current
		if s.nextX+width > p.width {
			s.y += s.height
			s.nextX = 0
			s.height = 0
		}
		if s.y+height > p.height {
			p.layer++
			p.current = shelf{}
			continue
		}

		region := Region{Layer: p.layer, X: s.nextX, Y: s.y, Width: width, Height: height}
		s.nextX += width + p.padding
		if height+p.padding > s.height {
			s.height = height + p.padding
		}
		p.allocCount++
		p.usedArea += width * height
		return region, true
	}
	return Region{}, false
}

// Grow raises the layer count. Packing continues on the first new layer
// once the current ones are exhausted.
func (p *Packer) Grow(layers int) {
	if layers > p.layers {
		p.layers = layers
	}
}

// Layers returns the number of layers the packer may fill.
func (p *Packer) Layers() int { return p.layers }

// Reset clears all allocations, making every layer available again.
func (p *Packer) Reset() {
	p.layer = 0
	p.current = shelf{}
	p.allocCount = 0
	p.usedArea = 0
}

// AllocCount returns the number of successful allocations.
func (p *Packer) AllocCount() int { return p.allocCount }

// Utilization returns the fraction of texels used (0.0 to 1.0).
func (p *Packer) Utilization() float64 {
	total := p.width * p.height * p.layers
	if total == 0 {
		return 0
	}
	return float64(p.usedArea) / float64(total)
}
