package imagestore

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/gogpu/uistream/gpucore"
)

// ErrUploadTimeout is returned when a slot's previous uploads did not
// complete within the configured timeout.
var ErrUploadTimeout = errors.New("imagestore: upload fence timeout")

// uploadSlot is the upload command buffer state of one frame slot.
type uploadSlot struct {
	fence     gpucore.FenceID
	rec       gpucore.CommandRecorder
	staging   []gpucore.BufferID
	submitted bool
	waited    bool
	timedOut  bool
}

// uploader records image uploads into per-slot command buffers. Before a
// slot's command buffer is reused its fence is waited on, at most once per
// frame, and the staging buffers of the completed uploads are destroyed.
type uploader struct {
	dev     gpucore.Device
	log     *slog.Logger
	timeout time.Duration

	slots   []uploadSlot
	cur     int
	pending int
	waits   int
}

func newUploader(dev gpucore.Device, framesInFlight int, timeout time.Duration, log *slog.Logger) (*uploader, error) {
	u := &uploader{
		dev:     dev,
		log:     log,
		timeout: timeout,
		slots:   make([]uploadSlot, framesInFlight),
	}
	for i := range u.slots {
		f, err := dev.CreateFence()
		if err != nil {
			u.close()
			return nil, fmt.Errorf("create upload fence: %w", err)
		}
		u.slots[i].fence = f
	}
	return u, nil
}

func (u *uploader) begin(slot int) {
	u.cur = slot
	u.slots[slot].waited = false
	u.slots[slot].timedOut = false
}

// prepare returns the current slot ready for recording.
func (u *uploader) prepare() (*uploadSlot, error) {
	s := &u.slots[u.cur]
	if s.submitted && !s.waited {
		if s.timedOut {
			return nil, fmt.Errorf("%w after %v", ErrUploadTimeout, u.timeout)
		}
		u.waits++
		ok, err := u.dev.WaitFence(s.fence, u.timeout)
		if err != nil {
			return nil, fmt.Errorf("wait upload fence: %w", err)
		}
		if !ok {
			s.timedOut = true
			return nil, fmt.Errorf("%w after %v", ErrUploadTimeout, u.timeout)
		}
		for _, b := range s.staging {
			u.dev.DestroyBuffer(b)
		}
		s.staging = s.staging[:0]
		s.submitted = false
		s.waited = true
	}
	if s.rec == nil {
		rec, err := u.dev.BeginCommands("image_upload")
		if err != nil {
			return nil, fmt.Errorf("begin upload commands: %w", err)
		}
		s.rec = rec
	}
	return s, nil
}

// record stages pixels and records their copy into dst.
func (u *uploader) record(dst gpucore.ImageID, pixels *image.RGBA) error {
	s, err := u.prepare()
	if err != nil {
		return err
	}
	size := len(pixels.Pix)
	buf, err := u.dev.CreateBuffer(gpucore.BufferDesc{
		Label: "image_staging",
		Size:  size,
		Usage: gpucore.BufferUsageMapWrite | gpucore.BufferUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create image staging buffer: %w", err)
	}
	data, err := u.dev.MapBuffer(buf)
	if err != nil {
		u.dev.DestroyBuffer(buf)
		return fmt.Errorf("map image staging buffer: %w", err)
	}
	copy(data, pixels.Pix)
	s.staging = append(s.staging, buf)

	b := pixels.Bounds()
	s.rec.CopyBufferToImage(buf, dst, []gpucore.BufferImageCopy{{
		BytesPerRow: pixels.Stride,
		Width:       b.Dx(),
		Height:      b.Dy(),
	}})
	s.rec.ImageBarrier(dst, gpucore.ImageUsageCopyDst, gpucore.ImageUsageSampled)
	u.pending++
	return nil
}

// flush submits the current slot's uploads, if any.
func (u *uploader) flush() error {
	s := &u.slots[u.cur]
	if s.rec == nil {
		return nil
	}
	rec := s.rec
	s.rec = nil
	if err := u.dev.Submit(rec, s.fence); err != nil {
		return fmt.Errorf("submit image uploads: %w", err)
	}
	u.log.Debug("imagestore: uploads submitted", "slot", u.cur, "images", u.pending)
	s.submitted = true
	u.pending = 0
	return nil
}

// close waits for outstanding uploads and releases every staging buffer
// and fence.
func (u *uploader) close() {
	for i := range u.slots {
		s := &u.slots[i]
		if s.submitted {
			if ok, err := u.dev.WaitFence(s.fence, u.timeout); err != nil || !ok {
				u.log.Warn("imagestore: upload fence not signaled at close", "slot", i, "err", err)
			}
		}
		for _, b := range s.staging {
			u.dev.DestroyBuffer(b)
		}
		s.staging = nil
		s.rec = nil
		if s.fence != gpucore.InvalidID {
			u.dev.DestroyFence(s.fence)
			s.fence = gpucore.InvalidID
		}
	}
}
