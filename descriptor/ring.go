// Package descriptor implements the image descriptor ring: a fixed pool of
// image descriptor sets handed out in ring order, written in deferred
// batches, plus one fallback set for geometry sampling the glyph atlas.
package descriptor

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/internal/logging"
	"github.com/gogpu/uistream/internal/ring"
)

// Descriptor ring errors.
var (
	// ErrRingFull is returned by Push when every slot is held by the
	// current frame or a frame in flight.
	ErrRingFull = errors.New("descriptor: ring exhausted")

	// ErrRingClosed is returned when operating on a closed ring.
	ErrRingClosed = errors.New("descriptor: ring is closed")
)

// DefaultCapacity is the default number of image descriptor sets: the
// ceiling on distinct images drawn by the frames in flight together.
const DefaultCapacity = 256

// Config holds configuration for creating a Ring.
type Config struct {
	// Capacity is the number of image descriptor sets. Default DefaultCapacity.
	Capacity int

	// FramesInFlight is how many frames the GPU may still be reading.
	FramesInFlight int

	// FallbackSampler is the sampler of the fallback set. Zero means the
	// ring's image sampler.
	FallbackSampler gpucore.SamplerID

	// Logger receives diagnostics. Nil means silent.
	Logger *slog.Logger
}

// Ring hands out descriptor sets in ring order. Push records a pending
// write at slot (start + written) mod N; Commit flushes the pending writes
// in at most two contiguous batches, split at the wrap boundary. Slots
// pushed in a frame stay reserved until that frame has completed.
//
// Ring is not safe for concurrent use.
type Ring struct {
	dev     gpucore.Device
	log     *slog.Logger
	sampler gpucore.SamplerID
	fbSamp  gpucore.SamplerID

	sets     []gpucore.DescriptorID
	fallback gpucore.DescriptorID
	pending  []gpucore.DescriptorWrite

	cursor         *ring.Ring
	framesInFlight uint64
	frame          uint64

	start   int
	written int
	base    int

	pushes   int
	batches  int
	rejected int
	closed   bool
}

// New preallocates the image descriptor sets and the fallback set. Every
// set samples through sampler.
func New(dev gpucore.Device, sampler gpucore.SamplerID, cfg Config) (*Ring, error) {
	if cfg.Capacity <= 0 {
		cfg.Capacity = DefaultCapacity
	}
	if cfg.FramesInFlight < 1 {
		cfg.FramesInFlight = 2
	}
	if cfg.FallbackSampler == gpucore.InvalidID {
		cfg.FallbackSampler = sampler
	}
	r := &Ring{
		dev:            dev,
		log:            logging.OrNop(cfg.Logger),
		sampler:        sampler,
		fbSamp:         cfg.FallbackSampler,
		sets:           make([]gpucore.DescriptorID, 0, cfg.Capacity),
		pending:        make([]gpucore.DescriptorWrite, cfg.Capacity),
		cursor:         ring.New(cfg.Capacity),
		framesInFlight: uint64(cfg.FramesInFlight),
	}

	fallback, err := dev.CreateDescriptorSet(gpucore.DescriptorImage, "ui_fallback")
	if err != nil {
		return nil, fmt.Errorf("create fallback descriptor: %w", err)
	}
	r.fallback = fallback

	for i := 0; i < cfg.Capacity; i++ {
		set, err := dev.CreateDescriptorSet(gpucore.DescriptorImage, "ui_image")
		if err != nil {
			r.Close()
			return nil, fmt.Errorf("create image descriptor %d: %w", i, err)
		}
		r.sets = append(r.sets, set)
	}
	return r, nil
}

// BeginFrame starts frame number frame and releases the slots of frames
// that have completed.
func (r *Ring) BeginFrame(frame uint64) {
	r.frame = frame
	if frame > r.framesInFlight {
		r.cursor.Retire(frame - r.framesInFlight)
	}
}

// Push reserves the next slot for view and records its pending write. It
// returns the slot index.
func (r *Ring) Push(view gpucore.ViewID) (int, error) {
	if r.closed {
		return 0, ErrRingClosed
	}
	span, err := r.cursor.Claim(1, r.frame)
	if err != nil {
		r.rejected++
		r.log.Warn("descriptor: ring exhausted", "capacity", len(r.sets), "written", r.written)
		return 0, fmt.Errorf("%w: %d slots in use", ErrRingFull, r.cursor.Live())
	}
	if r.written == 0 {
		r.start = span.Offset
	}
	slot := span.Offset
	r.pending[slot] = gpucore.DescriptorWrite{Set: r.sets[slot], View: view, Sampler: r.sampler}
	r.written++
	r.pushes++
	return slot, nil
}

// Commit flushes the pending writes, advances start past them and resets
// written. Base then reports the first slot committed.
func (r *Ring) Commit() error {
	if r.closed {
		return ErrRingClosed
	}
	r.base = r.start
	if r.written == 0 {
		return nil
	}

	first, second := ring.Split(r.start, r.written, len(r.sets))
	for _, s := range [2]ring.Span{first, second} {
		if s.Empty() {
			continue
		}
		if err := r.dev.WriteDescriptors(r.pending[s.Offset:s.End()]); err != nil {
			return fmt.Errorf("write descriptors %v: %w", s, err)
		}
		r.batches++
	}
	if !second.Empty() {
		r.log.Debug("descriptor: commit wrapped", "first", first, "second", second)
	}

	r.start = (r.start + r.written) % len(r.sets)
	r.written = 0
	return nil
}

// Set returns the descriptor set of a slot.
func (r *Ring) Set(slot int) gpucore.DescriptorID { return r.sets[slot] }

// Fallback returns the set bound for untextured jobs.
func (r *Ring) Fallback() gpucore.DescriptorID { return r.fallback }

// SetFallback points the fallback set at view.
func (r *Ring) SetFallback(view gpucore.ViewID) error {
	if r.closed {
		return ErrRingClosed
	}
	return r.dev.WriteDescriptors([]gpucore.DescriptorWrite{{
		Set:     r.fallback,
		View:    view,
		Sampler: r.fbSamp,
	}})
}

// Capacity returns N.
func (r *Ring) Capacity() int { return len(r.sets) }

// Start returns the slot the next batch begins at.
func (r *Ring) Start() int { return r.start }

// Written returns the number of pending writes.
func (r *Ring) Written() int { return r.written }

// Base returns the first slot of the last committed batch.
func (r *Ring) Base() int { return r.base }

// Stats reports ring activity.
type Stats struct {
	Capacity int
	Live     int
	Pushes   int
	Batches  int
	Rejected int
}

// Stats returns current statistics.
func (r *Ring) Stats() Stats {
	return Stats{
		Capacity: len(r.sets),
		Live:     r.cursor.Live(),
		Pushes:   r.pushes,
		Batches:  r.batches,
		Rejected: r.rejected,
	}
}

// Close destroys every descriptor set. The caller guarantees the GPU is idle.
func (r *Ring) Close() {
	if r.closed {
		return
	}
	r.closed = true
	for _, s := range r.sets {
		r.dev.DestroyDescriptorSet(s)
	}
	r.sets = nil
	if r.fallback != gpucore.InvalidID {
		r.dev.DestroyDescriptorSet(r.fallback)
	}
}
