package vertex

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/internal/logging"
	"github.com/gogpu/uistream/internal/ring"
)

// Stream pool errors.
var (
	// ErrRequestTooLarge is returned when a request exceeds the pool capacity.
	ErrRequestTooLarge = errors.New("vertex: request exceeds stream capacity")

	// ErrCapacity is returned when a request would overwrite vertices a
	// frame in flight still reads.
	ErrCapacity = errors.New("vertex: stream pool exhausted")

	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("vertex: stream pool is closed")
)

// DefaultCapacity is the default number of vertices in the stream.
const DefaultCapacity = 1 << 16

// Config holds configuration for creating a StreamPool.
type Config struct {
	// Capacity is the number of vertices. Default DefaultCapacity.
	Capacity int

	// FramesInFlight is how many frames the GPU may still be reading.
	FramesInFlight int

	// Logger receives diagnostics. Nil means silent.
	Logger *slog.Logger
}

// StreamPool is a fixed-capacity circular vertex buffer: a host-visible
// staging copy the CPU writes and a device-local copy the GPU draws from.
//
// Each RequestUIBuffer claims the next contiguous span, wrapping to slot 0
// when the tail is too short. Only the latest span is current: Upload copies
// it and draws address it. Spans stay reserved until the frame that last
// used them has completed.
//
// StreamPool is not safe for concurrent use.
type StreamPool struct {
	dev gpucore.Device
	log *slog.Logger

	ring           *ring.Ring
	framesInFlight uint64
	frame          uint64

	staging gpucore.BufferID
	vbuf    gpucore.BufferID
	cpu     []Vertex

	read  int
	write int
	dirty bool

	requests int
	rejected int
	uploads  int
	closed   bool
}

// New allocates the staging and vertex buffers.
func New(dev gpucore.Device, cfg Config) (*StreamPool, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.FramesInFlight < 1 {
		cfg.FramesInFlight = 2
	}
	size := cfg.Capacity * Size

	staging, err := dev.CreateBuffer(gpucore.BufferDesc{
		Label: "ui_vertex_staging",
		Size:  size,
		Usage: gpucore.BufferUsageMapWrite | gpucore.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create vertex staging buffer: %w", err)
	}
	vbuf, err := dev.CreateBuffer(gpucore.BufferDesc{
		Label: "ui_vertices",
		Size:  size,
		Usage: gpucore.BufferUsageVertex | gpucore.BufferUsageCopyDst,
	})
	if err != nil {
		dev.DestroyBuffer(staging)
		return nil, fmt.Errorf("create vertex buffer: %w", err)
	}
	mapped, err := dev.MapBuffer(staging)
	if err != nil {
		dev.DestroyBuffer(vbuf)
		dev.DestroyBuffer(staging)
		return nil, fmt.Errorf("map vertex staging buffer: %w", err)
	}

	return &StreamPool{
		dev:            dev,
		log:            logging.OrNop(cfg.Logger),
		ring:           ring.New(cfg.Capacity),
		framesInFlight: uint64(cfg.FramesInFlight),
		staging:        staging,
		vbuf:           vbuf,
		cpu:            asVertices(mapped[:size]),
	}, nil
}

// BeginFrame starts frame number frame and releases the spans of frames
// that have completed.
func (p *StreamPool) BeginFrame(frame uint64) {
	p.frame = frame
	if frame > p.framesInFlight {
		p.ring.Retire(frame - p.framesInFlight)
	}
}

// RequestUIBuffer claims n vertices and returns them for writing. The span
// becomes the current range. It fails, without touching the current
// range, when n exceeds the capacity or would overwrite a span a frame in
// flight still reads.
func (p *StreamPool) RequestUIBuffer(n int) ([]Vertex, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}
	span, err := p.ring.Claim(n, p.frame)
	if err != nil {
		p.rejected++
		if errors.Is(err, ring.ErrTooLarge) {
			p.log.Warn("vertex: request exceeds capacity", "n", n, "capacity", p.ring.Capacity())
			return nil, fmt.Errorf("%w: %d > %d", ErrRequestTooLarge, n, p.ring.Capacity())
		}
		p.log.Warn("vertex: stream exhausted", "n", n, "free", p.ring.Free())
		return nil, fmt.Errorf("%w: %v", ErrCapacity, err)
	}
	if span.Offset == 0 && p.write != 0 {
		p.log.Debug("vertex: stream wrapped", "n", n, "previous", p.write)
	}

	p.requests++
	p.read, p.write = span.Offset, span.End()
	p.dirty = n > 0
	return p.cpu[p.read:p.write:p.write], nil
}

// Upload records the copy of the current range into the vertex buffer
// followed by a barrier, if the range changed since the last upload.
func (p *StreamPool) Upload(cmd gpucore.CommandRecorder) bool {
	if p.closed || !p.dirty {
		return false
	}
	off := p.read * Size
	cmd.CopyBuffer(p.staging, p.vbuf, []gpucore.BufferCopy{{
		SrcOffset: off,
		DstOffset: off,
		Size:      (p.write - p.read) * Size,
	}})
	cmd.BufferBarrier(p.vbuf, gpucore.BufferUsageCopyDst, gpucore.BufferUsageVertex)
	p.dirty = false
	p.uploads++
	return true
}

// Retain keeps the current span reserved until this frame completes. Call
// it when a frame draws a span requested by an earlier frame.
func (p *StreamPool) Retain() {
	p.ring.Renew(p.frame)
}

// Buffer returns the device-local vertex buffer.
func (p *StreamPool) Buffer() gpucore.BufferID { return p.vbuf }

// Range returns the current span.
func (p *StreamPool) Range() ring.Span {
	return ring.Span{Offset: p.read, Len: p.write - p.read}
}

// Dirty reports whether the current range still has to be uploaded.
func (p *StreamPool) Dirty() bool { return p.dirty }

// Capacity returns the number of vertices in the stream.
func (p *StreamPool) Capacity() int { return p.ring.Capacity() }

// Stats reports stream pool activity.
type Stats struct {
	Capacity int
	Live     int
	Requests int
	Rejected int
	Uploads  int
	Wraps    int
}

// Stats returns current statistics.
func (p *StreamPool) Stats() Stats {
	return Stats{
		Capacity: p.ring.Capacity(),
		Live:     p.ring.Live(),
		Requests: p.requests,
		Rejected: p.rejected,
		Uploads:  p.uploads,
		Wraps:    p.ring.Wraps(),
	}
}

// Close destroys both buffers. The caller guarantees the GPU is idle.
func (p *StreamPool) Close() {
	if p.closed {
		return
	}
	p.closed = true
	p.cpu = nil
	p.dev.DestroyBuffer(p.vbuf)
	p.dev.DestroyBuffer(p.staging)
}
