package native

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/wgpu/hal"
)

// Recorder records commands into a hal command encoder. Draw state opens a
// render pass on the target lazily; copies and barriers close it. The
// first error is kept and returned by Device.Submit.
//
// Copies out of host-visible buffers become queue writes, which execute
// before any command buffer submitted after them. A write recorded after
// encoded commands therefore ends the current command buffer, so that
// Submit replays writes and command buffers in recording order.
//
// Recorder is not safe for concurrent use.
type Recorder struct {
	dev   *Device
	enc   hal.CommandEncoder
	label string

	target hal.TextureView
	clear  *gputypes.Color
	pass   hal.RenderPassEncoder

	// writes are queue uploads out of host-visible buffers recorded since
	// the last cut. They run before the current command buffer.
	writes  []func()
	encoded bool
	chunks  []chunk

	err  error
	done bool
}

// chunk is one command buffer and the queue writes that precede it.
type chunk struct {
	writes []func()
	cmds   hal.CommandBuffer
}

var _ gpucore.CommandRecorder = (*Recorder)(nil)

// SetTarget sets the color attachment draws render into. The target keeps
// its contents.
func (r *Recorder) SetTarget(view hal.TextureView) {
	r.endPass()
	r.target, r.clear = view, nil
}

// ClearTarget is SetTarget with the target cleared to c when the first
// draw opens the render pass.
func (r *Recorder) ClearTarget(view hal.TextureView, c gputypes.Color) {
	r.endPass()
	r.target, r.clear = view, &c
}

// Err returns the first recording error.
func (r *Recorder) Err() error { return r.err }

func (r *Recorder) fail(err error) {
	if r.err == nil {
		r.err = err
	}
}

func (r *Recorder) beginPass() bool {
	if r.pass != nil {
		return true
	}
	if r.target == nil {
		r.fail(ErrNoTarget)
		return false
	}
	att := hal.RenderPassColorAttachment{
		View:    r.target,
		LoadOp:  gputypes.LoadOpLoad,
		StoreOp: gputypes.StoreOpStore,
	}
	if r.clear != nil {
		att.LoadOp, att.ClearValue = gputypes.LoadOpClear, *r.clear
		r.clear = nil
	}
	r.encoded = true
	r.pass = r.enc.BeginRenderPass(&hal.RenderPassDescriptor{
		Label:            r.label + "_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{att},
	})
	return true
}

// queueWrite appends a queue write, cutting the command buffer first when
// it already holds commands the write must follow.
func (r *Recorder) queueWrite(w func()) {
	if r.encoded {
		r.cut()
	}
	r.writes = append(r.writes, w)
}

// cut ends the current command buffer and continues on a new encoder.
func (r *Recorder) cut() {
	r.endPass()
	cmds, err := r.enc.EndEncoding()
	if err != nil {
		r.fail(fmt.Errorf("native: end encoding %q: %w", r.label, err))
		return
	}
	r.chunks = append(r.chunks, chunk{writes: r.writes, cmds: cmds})
	r.writes, r.encoded = nil, false

	enc, err := r.dev.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: r.label})
	if err == nil {
		err = enc.BeginEncoding(r.label)
	}
	if err != nil {
		r.fail(fmt.Errorf("native: continue encoding %q: %w", r.label, err))
		return
	}
	r.enc = enc
}

// queued returns the number of queue writes recorded.
func (r *Recorder) queued() int {
	n := len(r.writes)
	for _, c := range r.chunks {
		n += len(c.writes)
	}
	return n
}

func (r *Recorder) endPass() {
	if r.pass != nil {
		r.pass.End()
		r.pass = nil
	}
}

func (r *Recorder) buffer(id gpucore.BufferID) *buffer {
	r.dev.mu.Lock()
	b := r.dev.buffers[id]
	r.dev.mu.Unlock()
	if b == nil {
		r.fail(fmt.Errorf("%w: buffer %d", ErrUnknownResource, id))
	}
	return b
}

func (r *Recorder) texture(id gpucore.ImageID) *texture {
	r.dev.mu.Lock()
	t := r.dev.textures[id]
	r.dev.mu.Unlock()
	if t == nil {
		r.fail(fmt.Errorf("%w: image %d", ErrUnknownResource, id))
	}
	return t
}

// CopyBuffer copies buffer regions. Copies out of a host-visible buffer
// become queue writes.
func (r *Recorder) CopyBuffer(src, dst gpucore.BufferID, regions []gpucore.BufferCopy) {
	s, d := r.buffer(src), r.buffer(dst)
	if s == nil || d == nil {
		return
	}
	if d.raw == nil {
		r.fail(fmt.Errorf("%w: copy into buffer %d", ErrHostBuffer, dst))
		return
	}
	if s.raw == nil {
		for _, c := range regions {
			data := s.shadow[c.SrcOffset : c.SrcOffset+c.Size]
			off := uint64(c.DstOffset) //nolint:gosec // offsets are non-negative
			r.queueWrite(func() { r.dev.queue.WriteBuffer(d.raw, off, data) })
		}
		return
	}
	r.endPass()
	r.encoded = true
	copies := make([]hal.BufferCopy, len(regions))
	for i, c := range regions {
		copies[i] = hal.BufferCopy{
			SrcOffset: uint64(c.SrcOffset), //nolint:gosec // offsets are non-negative
			DstOffset: uint64(c.DstOffset), //nolint:gosec // offsets are non-negative
			Size:      uint64(c.Size),      //nolint:gosec // sizes are non-negative
		}
	}
	r.enc.CopyBufferToBuffer(s.raw, d.raw, copies)
}

// CopyBufferToImage copies pixel rows into image layers.
func (r *Recorder) CopyBufferToImage(src gpucore.BufferID, dst gpucore.ImageID, regions []gpucore.BufferImageCopy) {
	s, t := r.buffer(src), r.texture(dst)
	if s == nil || t == nil {
		return
	}
	bpp := t.desc.Format.BytesPerPixel()
	copies := make([]hal.BufferTextureCopy, len(regions))
	for i, c := range regions {
		bpr := c.BytesPerRow
		if bpr == 0 {
			bpr = c.Width * bpp
		}
		copies[i] = hal.BufferTextureCopy{
			BufferLayout: hal.ImageDataLayout{
				Offset:       uint64(c.BufferOffset), //nolint:gosec // offsets are non-negative
				BytesPerRow:  uint32(bpr),            //nolint:gosec // rows fit uint32
				RowsPerImage: uint32(c.Height),       //nolint:gosec // heights fit uint32
			},
			TextureBase: hal.ImageCopyTexture{
				Texture: t.raw,
				Origin:  hal.Origin3D{X: uint32(c.X), Y: uint32(c.Y), Z: uint32(c.Layer)}, //nolint:gosec // in bounds
				Aspect:  gputypes.TextureAspectAll,
			},
			Size: hal.Extent3D{Width: uint32(c.Width), Height: uint32(c.Height), DepthOrArrayLayers: 1}, //nolint:gosec // in bounds
		}
	}
	if s.raw == nil {
		data := s.shadow
		for _, c := range copies {
			r.queueWrite(func() {
				r.dev.queue.WriteTexture(&c.TextureBase, data, &c.BufferLayout, &c.Size)
			})
		}
		return
	}
	r.endPass()
	r.encoded = true
	r.enc.CopyBufferToTexture(s.raw, t.raw, copies)
}

// CopyImage copies layer rectangles between images.
func (r *Recorder) CopyImage(src, dst gpucore.ImageID, regions []gpucore.ImageCopy) {
	s, d := r.texture(src), r.texture(dst)
	if s == nil || d == nil {
		return
	}
	r.endPass()
	r.encoded = true
	copies := make([]hal.TextureCopy, len(regions))
	for i, c := range regions {
		//nolint:gosec // regions are within the image bounds
		var (
			x, y   = uint32(c.X), uint32(c.Y)
			w, h   = uint32(c.Width), uint32(c.Height)
			sz, dz = uint32(c.SrcLayer), uint32(c.DstLayer)
		)
		copies[i] = hal.TextureCopy{
			SrcBase: hal.ImageCopyTexture{Texture: s.raw, Origin: hal.Origin3D{X: x, Y: y, Z: sz}, Aspect: gputypes.TextureAspectAll},
			DstBase: hal.ImageCopyTexture{Texture: d.raw, Origin: hal.Origin3D{X: x, Y: y, Z: dz}, Aspect: gputypes.TextureAspectAll},
			Size:    hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		}
	}
	r.enc.CopyTextureToTexture(s.raw, d.raw, copies)
}

// BufferBarrier transitions a device buffer. Host-visible buffers need none.
func (r *Recorder) BufferBarrier(buf gpucore.BufferID, from, to gpucore.BufferUsage) {
	b := r.buffer(buf)
	if b == nil || b.raw == nil {
		return
	}
	r.endPass()
	r.encoded = true
	r.enc.TransitionBuffers([]hal.BufferBarrier{{
		Buffer: b.raw,
		Usage: hal.BufferUsageTransition{
			OldUsage: bufferUsage(from),
			NewUsage: bufferUsage(to),
		},
	}})
}

// ImageBarrier transitions an image.
func (r *Recorder) ImageBarrier(img gpucore.ImageID, from, to gpucore.ImageUsage) {
	t := r.texture(img)
	if t == nil {
		return
	}
	r.endPass()
	r.encoded = true
	r.enc.TransitionTextures([]hal.TextureBarrier{{
		Texture: t.raw,
		Usage: hal.TextureUsageTransition{
			OldUsage: textureUsage(from),
			NewUsage: textureUsage(to),
		},
	}})
}

// BindPipeline binds a render pipeline.
func (r *Recorder) BindPipeline(id gpucore.PipelineID) {
	r.dev.mu.Lock()
	p := r.dev.pipelines[id]
	r.dev.mu.Unlock()
	if p == nil {
		r.fail(fmt.Errorf("%w: pipeline %d", ErrUnknownResource, id))
		return
	}
	if r.beginPass() {
		r.pass.SetPipeline(p.raw)
	}
}

// BindVertexBuffer binds buf at vertex slot 0.
func (r *Recorder) BindVertexBuffer(buf gpucore.BufferID, offset int) {
	b := r.buffer(buf)
	if b == nil {
		return
	}
	if b.raw == nil {
		r.fail(fmt.Errorf("%w: vertex buffer %d", ErrHostBuffer, buf))
		return
	}
	if r.beginPass() {
		r.pass.SetVertexBuffer(0, b.raw, uint64(offset)) //nolint:gosec // offset is non-negative
	}
}

// BindDescriptor binds a descriptor set's current bind group.
func (r *Recorder) BindDescriptor(group int, set gpucore.DescriptorID) {
	r.dev.mu.Lock()
	s := r.dev.sets[set]
	r.dev.mu.Unlock()
	if s == nil || s.group == nil {
		r.fail(fmt.Errorf("%w: descriptor set %d", ErrUnknownResource, set))
		return
	}
	if r.beginPass() {
		r.pass.SetBindGroup(uint32(group), s.group, nil) //nolint:gosec // group is 0 or 1
	}
}

// Draw draws non-indexed triangles.
func (r *Recorder) Draw(vertexCount, firstVertex int) {
	if r.beginPass() {
		r.pass.Draw(uint32(vertexCount), 1, uint32(firstVertex), 0) //nolint:gosec // bounded by the vertex pool
	}
}

// finish ends the recording and returns its chunks in submission order.
// A failed recording is discarded.
func (r *Recorder) finish() ([]chunk, error) {
	if r.done {
		return nil, fmt.Errorf("native: recorder %q already submitted", r.label)
	}
	r.done = true
	r.endPass()
	if r.err != nil {
		r.enc.DiscardEncoding()
		r.release()
		return nil, fmt.Errorf("native: record %q: %w", r.label, r.err)
	}
	cmds, err := r.enc.EndEncoding()
	if err != nil {
		r.release()
		return nil, fmt.Errorf("native: end encoding %q: %w", r.label, err)
	}
	chunks := append(r.chunks, chunk{writes: r.writes, cmds: cmds})
	r.chunks, r.writes = nil, nil
	return chunks, nil
}

// release frees the command buffers of chunks already cut.
func (r *Recorder) release() {
	for _, c := range r.chunks {
		r.dev.device.FreeCommandBuffer(c.cmds)
	}
	r.chunks, r.writes = nil, nil
}
