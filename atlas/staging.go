package atlas

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/internal/logging"
)

// DefaultStagingBufferSize is the size of one staging buffer (64 KiB).
const DefaultStagingBufferSize = 64 << 10

// stagingAlign keeps every region's buffer offset texel and word aligned.
const stagingAlign = 4

type stagingBuffer struct {
	id      gpucore.BufferID
	data    []byte
	used    int
	regions []gpucore.BufferImageCopy
}

func (b *stagingBuffer) fits(n int) bool { return b.used+n <= len(b.data) }

// StagingPool owns the host-visible buffers glyph pixels pass through on
// their way into the atlas image.
//
// A buffer is taken from the free list on the first write (free→active),
// moved to the full list when the next write no longer fits (active→full),
// handed to the frame that flushes it (full→in flight), and returned to the
// free list when that frame slot is reused (in flight→free).
type StagingPool struct {
	dev        gpucore.Device
	bufferSize int
	log        *slog.Logger

	free     []*stagingBuffer
	active   *stagingBuffer
	full     []*stagingBuffer
	inFlight [][]*stagingBuffer
	all      []*stagingBuffer
}

// NewStagingPool creates an empty pool. Buffers are allocated on demand.
func NewStagingPool(dev gpucore.Device, bufferSize, framesInFlight int, log *slog.Logger) *StagingPool {
	if bufferSize <= 0 {
		bufferSize = DefaultStagingBufferSize
	}
	if framesInFlight < 1 {
		framesInFlight = 1
	}
	return &StagingPool{
		dev:        dev,
		bufferSize: bufferSize,
		log:        logging.OrNop(log),
		inFlight:   make([][]*stagingBuffer, framesInFlight),
	}
}

// Write stages pixels for region. Rows are tightly packed, bytesPerPixel
// wide per texel.
func (p *StagingPool) Write(region Region, pixels []byte, bytesPerPixel int) error {
	n := len(pixels)
	if n != region.Width*region.Height*bytesPerPixel {
		return fmt.Errorf("%w: %d bytes for %v", ErrPixelSize, n, region)
	}
	if n == 0 {
		return nil
	}

	if p.active == nil || !p.active.fits(n) {
		if p.active != nil {
			p.full = append(p.full, p.active)
			p.active = nil
		}
		b, err := p.take(n)
		if err != nil {
			return err
		}
		p.active = b
	}

	b := p.active
	offset := b.used
	copy(b.data[offset:], pixels)
	b.regions = append(b.regions, gpucore.BufferImageCopy{
		BufferOffset: offset,
		BytesPerRow:  region.Width * bytesPerPixel,
		Layer:        region.Layer,
		X:            region.X,
		Y:            region.Y,
		Width:        region.Width,
		Height:       region.Height,
	})
	b.used = (offset + n + stagingAlign - 1) &^ (stagingAlign - 1)
	if b.used > len(b.data) {
		b.used = len(b.data)
	}
	return nil
}

// take returns a free buffer with room for n bytes, allocating one when
// the free list has none large enough.
func (p *StagingPool) take(n int) (*stagingBuffer, error) {
	for i, b := range p.free {
		if len(b.data) >= n {
			last := len(p.free) - 1
			p.free[i] = p.free[last]
			p.free = p.free[:last]
			return b, nil
		}
	}

	size := p.bufferSize
	if n > size {
		size = (n + stagingAlign - 1) &^ (stagingAlign - 1)
	}
	id, err := p.dev.CreateBuffer(gpucore.BufferDesc{
		Label: "atlas_staging",
		Size:  size,
		Usage: gpucore.BufferUsageMapWrite | gpucore.BufferUsageCopySrc,
	})
	if err != nil {
		return nil, fmt.Errorf("create staging buffer: %w", err)
	}
	data, err := p.dev.MapBuffer(id)
	if err != nil {
		p.dev.DestroyBuffer(id)
		return nil, fmt.Errorf("map staging buffer: %w", err)
	}
	b := &stagingBuffer{id: id, data: data[:size]}
	p.all = append(p.all, b)
	p.log.Debug("atlas: staging buffer allocated", "size", size, "buffers", len(p.all))
	return b, nil
}

// Flush records one buffer→image copy per pending buffer into dst and
// hands the buffers to frame slot. It returns the number of regions copied.
func (p *StagingPool) Flush(cmd gpucore.CommandRecorder, dst gpucore.ImageID, slot int) int {
	if p.active != nil {
		p.full = append(p.full, p.active)
		p.active = nil
	}
	regions := 0
	for _, b := range p.full {
		if len(b.regions) > 0 {
			cmd.CopyBufferToImage(b.id, dst, b.regions)
			regions += len(b.regions)
		}
		p.inFlight[slot] = append(p.inFlight[slot], b)
	}
	p.full = p.full[:0]
	return regions
}

// Recycle returns the buffers flushed by slot to the free list. Call it
// once the slot's previous frame is known to have completed.
func (p *StagingPool) Recycle(slot int) {
	for _, b := range p.inFlight[slot] {
		b.used = 0
		b.regions = b.regions[:0]
		p.free = append(p.free, b)
	}
	p.inFlight[slot] = p.inFlight[slot][:0]
}

// Pending returns the number of regions waiting for the next flush.
func (p *StagingPool) Pending() int {
	n := 0
	if p.active != nil {
		n += len(p.active.regions)
	}
	for _, b := range p.full {
		n += len(b.regions)
	}
	return n
}

// Buffers returns the number of staging buffers allocated.
func (p *StagingPool) Buffers() int { return len(p.all) }

// FreeBuffers returns the number of buffers on the free list.
func (p *StagingPool) FreeBuffers() int { return len(p.free) }

// Close destroys every staging buffer.
func (p *StagingPool) Close() {
	for _, b := range p.all {
		p.dev.DestroyBuffer(b.id)
	}
	p.all = nil
	p.free = nil
	p.full = nil
	p.active = nil
	for i := range p.inFlight {
		p.inFlight[i] = nil
	}
}
