package gpucore

import "fmt"

// Resource IDs
//
// These opaque IDs represent GPU resources. Each device implementation
// maintains a mapping between IDs and actual backend resources.

// BufferID is an opaque handle to a GPU buffer.
type BufferID uint64

// ImageID is an opaque handle to a (possibly layered) 2D image.
type ImageID uint64

// ViewID is an opaque handle to an image view.
type ViewID uint64

// SamplerID is an opaque handle to a sampler.
type SamplerID uint64

// DescriptorID is an opaque handle to a descriptor set.
type DescriptorID uint64

// PipelineID is an opaque handle to a render pipeline.
type PipelineID uint64

// FenceID is an opaque handle to a fence.
type FenceID uint64

// InvalidID is the zero value, representing an invalid/null resource.
const InvalidID = 0

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapWrite marks a host-visible buffer the CPU writes through MapBuffer.
	BufferUsageMapWrite BufferUsage = 1 << 0

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 1

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 2

	// BufferUsageVertex indicates the buffer can be used as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << 3

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 4
)

// ImageUsage is a bitmask specifying how an image will be used.
type ImageUsage uint32

// Image usage flags.
const (
	ImageUsageCopySrc ImageUsage = 1 << 0
	ImageUsageCopyDst ImageUsage = 1 << 1
	ImageUsageSampled ImageUsage = 1 << 2
	ImageUsageTarget  ImageUsage = 1 << 3
)

// Format specifies the pixel format of an image.
type Format uint32

// Image formats.
const (
	FormatUndefined Format = iota
	FormatR8Unorm
	FormatRGBA8Unorm
	FormatBGRA8Unorm
)

// BytesPerPixel returns the size of one pixel in bytes.
func (f Format) BytesPerPixel() int {
	switch f {
	case FormatR8Unorm:
		return 1
	case FormatRGBA8Unorm, FormatBGRA8Unorm:
		return 4
	default:
		return 0
	}
}

// String returns a string representation of the format.
func (f Format) String() string {
	switch f {
	case FormatR8Unorm:
		return "R8Unorm"
	case FormatRGBA8Unorm:
		return "RGBA8Unorm"
	case FormatBGRA8Unorm:
		return "BGRA8Unorm"
	default:
		return fmt.Sprintf("Format(%d)", uint32(f))
	}
}

// Filter selects sampler filtering.
type Filter uint8

// Sampler filters.
const (
	FilterNearest Filter = iota
	FilterLinear
)

// DescriptorKind selects the layout of a descriptor set.
type DescriptorKind uint8

// Descriptor set layouts used by the UI pipeline.
const (
	// DescriptorUniform binds the screen transform uniform buffer (set 0).
	DescriptorUniform DescriptorKind = iota

	// DescriptorImage binds one image view and a sampler (set 1).
	DescriptorImage
)

// VertexFormat is the format of one vertex attribute.
type VertexFormat uint8

// Vertex attribute formats.
const (
	VertexFloat32 VertexFormat = iota
	VertexFloat32x2
	VertexFloat32x3
	VertexUnorm8x4
)

// BufferDesc describes a buffer.
type BufferDesc struct {
	Label string
	Size  int
	Usage BufferUsage
}

// ImageDesc describes a 2D image with one or more array layers.
type ImageDesc struct {
	Label  string
	Width  int
	Height int
	Layers int
	Format Format
	Usage  ImageUsage
}

// SamplerDesc describes a sampler.
type SamplerDesc struct {
	Label  string
	Filter Filter
}

// DescriptorWrite binds resources into a descriptor set. Image sets use
// View and Sampler, uniform sets use Buffer and Size.
type DescriptorWrite struct {
	Set     DescriptorID
	View    ViewID
	Sampler SamplerID
	Buffer  BufferID
	Size    int
}

// VertexAttribute describes one attribute of the vertex layout.
type VertexAttribute struct {
	Format   VertexFormat
	Offset   int
	Location int
}

// PipelineDesc describes the UI render pipeline: one interleaved vertex
// buffer, a uniform set at group 0 and an image set at group 1, alpha
// blended into a single color target.
type PipelineDesc struct {
	Label        string
	WGSL         string
	VertexStride int
	Attributes   []VertexAttribute
	TargetFormat Format
}

// BufferCopy is one region of a buffer to buffer copy, in bytes.
type BufferCopy struct {
	SrcOffset int
	DstOffset int
	Size      int
}

// BufferImageCopy is one region of a buffer to image copy. Pixel rows are
// tightly packed starting at BufferOffset unless BytesPerRow says otherwise.
type BufferImageCopy struct {
	BufferOffset int
	BytesPerRow  int
	Layer        int
	X, Y         int
	Width        int
	Height       int
}

// ImageCopy copies a rectangle of one layer between images.
type ImageCopy struct {
	SrcLayer int
	DstLayer int
	X, Y     int
	Width    int
	Height   int
}

// Limits reports device limits relevant to image and atlas sizing.
type Limits struct {
	MaxImageDimension int
	MaxImageLayers    int
}

// DefaultLimits returns conservative limits every WebGPU device supports.
func DefaultLimits() Limits {
	return Limits{MaxImageDimension: 8192, MaxImageLayers: 256}
}
