package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/uistream/gpucore"
)

func textureFormat(f gpucore.Format) (gputypes.TextureFormat, error) {
	switch f {
	case gpucore.FormatR8Unorm:
		return gputypes.TextureFormatR8Unorm, nil
	case gpucore.FormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, nil
	case gpucore.FormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, nil
	default:
		return 0, fmt.Errorf("%w: %v", ErrUnsupportedFormat, f)
	}
}

// FormatOf maps a surface format reported by the host to a gpucore format.
// Unknown formats map to gpucore.FormatUndefined.
func FormatOf(f gputypes.TextureFormat) gpucore.Format {
	switch f {
	case gputypes.TextureFormatR8Unorm:
		return gpucore.FormatR8Unorm
	case gputypes.TextureFormatRGBA8Unorm:
		return gpucore.FormatRGBA8Unorm
	case gputypes.TextureFormatBGRA8Unorm:
		return gpucore.FormatBGRA8Unorm
	default:
		return gpucore.FormatUndefined
	}
}

// bufferUsage drops MapWrite: host-visible buffers have no hal buffer.
func bufferUsage(u gpucore.BufferUsage) gputypes.BufferUsage {
	var out gputypes.BufferUsage
	if u&gpucore.BufferUsageCopySrc != 0 {
		out |= gputypes.BufferUsageCopySrc
	}
	if u&gpucore.BufferUsageCopyDst != 0 {
		out |= gputypes.BufferUsageCopyDst
	}
	if u&gpucore.BufferUsageVertex != 0 {
		out |= gputypes.BufferUsageVertex
	}
	if u&gpucore.BufferUsageUniform != 0 {
		out |= gputypes.BufferUsageUniform
	}
	return out
}

func textureUsage(u gpucore.ImageUsage) gputypes.TextureUsage {
	var out gputypes.TextureUsage
	if u&gpucore.ImageUsageCopySrc != 0 {
		out |= gputypes.TextureUsageCopySrc
	}
	if u&gpucore.ImageUsageCopyDst != 0 {
		out |= gputypes.TextureUsageCopyDst
	}
	if u&gpucore.ImageUsageSampled != 0 {
		out |= gputypes.TextureUsageTextureBinding
	}
	if u&gpucore.ImageUsageTarget != 0 {
		out |= gputypes.TextureUsageRenderAttachment
	}
	return out
}

func filterMode(f gpucore.Filter) gputypes.FilterMode {
	if f == gpucore.FilterLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func vertexFormat(f gpucore.VertexFormat) gputypes.VertexFormat {
	switch f {
	case gpucore.VertexFloat32:
		return gputypes.VertexFormatFloat32
	case gpucore.VertexFloat32x2:
		return gputypes.VertexFormatFloat32x2
	case gpucore.VertexFloat32x3:
		return gputypes.VertexFormatFloat32x3
	default:
		return gputypes.VertexFormatUnorm8x4
	}
}

func vertexLayout(desc gpucore.PipelineDesc) []gputypes.VertexBufferLayout {
	attrs := make([]gputypes.VertexAttribute, len(desc.Attributes))
	for i, a := range desc.Attributes {
		attrs[i] = gputypes.VertexAttribute{
			Format:         vertexFormat(a.Format),
			Offset:         uint64(a.Offset),   //nolint:gosec // offsets are small
			ShaderLocation: uint32(a.Location), //nolint:gosec // locations are small
		}
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: uint64(desc.VertexStride), //nolint:gosec // stride is small
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  attrs,
	}}
}

// littleEndianWords packs SPIR-V bytes into 32-bit words.
func littleEndianWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = uint32(b[i*4]) |
			uint32(b[i*4+1])<<8 |
			uint32(b[i*4+2])<<16 |
			uint32(b[i*4+3])<<24
	}
	return words
}
