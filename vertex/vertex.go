// Package vertex defines the UI vertex layout and the stream pool that
// carries per-frame UI geometry to the GPU.
package vertex

import (
	"unsafe"

	"github.com/gogpu/uistream/atlas"
	"github.com/gogpu/uistream/gpucore"
)

// Vertex is one UI vertex: pixel position, atlas or image texture
// coordinates with array layer, and a packed RGBA8 color.
type Vertex struct {
	X, Y  float32
	U, V  float32
	Layer float32
	Color uint32
}

// Size is the size of a Vertex in bytes.
const Size = int(unsafe.Sizeof(Vertex{}))

// QuadVertices is the vertex count of one quad (two triangles).
const QuadVertices = 6

// RGBA packs an 8-bit color with red in the lowest byte, matching unorm8x4.
func RGBA(r, g, b, a uint8) uint32 {
	return uint32(r) | uint32(g)<<8 | uint32(b)<<16 | uint32(a)<<24
}

// White is opaque white.
var White = RGBA(0xFF, 0xFF, 0xFF, 0xFF)

// Attributes returns the vertex layout matching Vertex.
func Attributes() []gpucore.VertexAttribute {
	return []gpucore.VertexAttribute{
		{Format: gpucore.VertexFloat32x2, Offset: 0, Location: 0},
		{Format: gpucore.VertexFloat32x3, Offset: 8, Location: 1},
		{Format: gpucore.VertexUnorm8x4, Offset: 20, Location: 2},
	}
}

// Quad writes the two triangles of the rectangle (x0, y0)-(x1, y1) mapped to
// uv into dst and returns the rest of dst. dst must hold QuadVertices.
func Quad(dst []Vertex, x0, y0, x1, y1 float32, uv atlas.UVRect, color uint32) []Vertex {
	l := float32(uv.Layer)
	tl := Vertex{X: x0, Y: y0, U: uv.U0, V: uv.V0, Layer: l, Color: color}
	tr := Vertex{X: x1, Y: y0, U: uv.U1, V: uv.V0, Layer: l, Color: color}
	bl := Vertex{X: x0, Y: y1, U: uv.U0, V: uv.V1, Layer: l, Color: color}
	br := Vertex{X: x1, Y: y1, U: uv.U1, V: uv.V1, Layer: l, Color: color}
	dst[0], dst[1], dst[2] = tl, tr, bl
	dst[3], dst[4], dst[5] = bl, tr, br
	return dst[QuadVertices:]
}

// Rect writes a solid rectangle sampling a single texel (usually the
// atlas white block) and returns the rest of dst.
func Rect(dst []Vertex, x0, y0, x1, y1 float32, white atlas.UVRect, color uint32) []Vertex {
	return Quad(dst, x0, y0, x1, y1, white, color)
}

// asVertices views a host-visible mapping as vertices.
func asVertices(b []byte) []Vertex {
	n := len(b) / Size
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*Vertex)(unsafe.Pointer(&b[0])), n) //nolint:gosec // mapping holds n vertices
}
