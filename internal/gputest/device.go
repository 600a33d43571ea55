// Package gputest provides an in-memory gpucore.Device that records every
// command and tracks live resources, for tests of the frame-path packages.
package gputest

import (
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/uistream/gpucore"
)

// ErrInjected is returned by creation calls named in Device.Fail.
var ErrInjected = errors.New("gputest: injected failure")

// Op identifies a recorded command.
type Op int

// Recorded command kinds.
const (
	OpCopyBuffer Op = iota
	OpCopyBufferToImage
	OpCopyImage
	OpBufferBarrier
	OpImageBarrier
	OpBindPipeline
	OpBindVertexBuffer
	OpBindDescriptor
	OpDraw
)

// Command is one recorded command. Only the fields relevant to Op are set.
type Command struct {
	Op           Op
	Src, Dst     uint64
	BufferCopies []gpucore.BufferCopy
	ImageCopies  []gpucore.BufferImageCopy
	LayerCopies  []gpucore.ImageCopy
	Group        int
	Set          gpucore.DescriptorID
	Offset       int
	VertexCount  int
	FirstVertex  int
}

// Recorder is a gpucore.CommandRecorder that keeps every command.
type Recorder struct {
	Label    string
	Commands []Command
}

var _ gpucore.CommandRecorder = (*Recorder)(nil)

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) CopyBuffer(src, dst gpucore.BufferID, regions []gpucore.BufferCopy) {
	r.Commands = append(r.Commands, Command{Op: OpCopyBuffer, Src: uint64(src), Dst: uint64(dst),
		BufferCopies: append([]gpucore.BufferCopy(nil), regions...)})
}

func (r *Recorder) CopyBufferToImage(src gpucore.BufferID, dst gpucore.ImageID, regions []gpucore.BufferImageCopy) {
	r.Commands = append(r.Commands, Command{Op: OpCopyBufferToImage, Src: uint64(src), Dst: uint64(dst),
		ImageCopies: append([]gpucore.BufferImageCopy(nil), regions...)})
}

func (r *Recorder) CopyImage(src, dst gpucore.ImageID, regions []gpucore.ImageCopy) {
	r.Commands = append(r.Commands, Command{Op: OpCopyImage, Src: uint64(src), Dst: uint64(dst),
		LayerCopies: append([]gpucore.ImageCopy(nil), regions...)})
}

func (r *Recorder) BufferBarrier(buf gpucore.BufferID, _, _ gpucore.BufferUsage) {
	r.Commands = append(r.Commands, Command{Op: OpBufferBarrier, Dst: uint64(buf)})
}

func (r *Recorder) ImageBarrier(img gpucore.ImageID, _, _ gpucore.ImageUsage) {
	r.Commands = append(r.Commands, Command{Op: OpImageBarrier, Dst: uint64(img)})
}

func (r *Recorder) BindPipeline(id gpucore.PipelineID) {
	r.Commands = append(r.Commands, Command{Op: OpBindPipeline, Dst: uint64(id)})
}

func (r *Recorder) BindVertexBuffer(buf gpucore.BufferID, offset int) {
	r.Commands = append(r.Commands, Command{Op: OpBindVertexBuffer, Dst: uint64(buf), Offset: offset})
}

func (r *Recorder) BindDescriptor(group int, set gpucore.DescriptorID) {
	r.Commands = append(r.Commands, Command{Op: OpBindDescriptor, Group: group, Set: set})
}

func (r *Recorder) Draw(vertexCount, firstVertex int) {
	r.Commands = append(r.Commands, Command{Op: OpDraw, VertexCount: vertexCount, FirstVertex: firstVertex})
}

// Filter returns the commands of the given kind in recording order.
func (r *Recorder) Filter(op Op) []Command {
	var out []Command
	for _, c := range r.Commands {
		if c.Op == op {
			out = append(out, c)
		}
	}
	return out
}

// Count returns the number of commands of the given kind.
func (r *Recorder) Count(op Op) int { return len(r.Filter(op)) }

// Reset drops all recorded commands.
func (r *Recorder) Reset() { r.Commands = r.Commands[:0] }

type buffer struct {
	desc gpucore.BufferDesc
	data []byte
}

// Device is an in-memory gpucore.Device. It is not safe for concurrent use.
type Device struct {
	// Fail names creation calls that return ErrInjected, keyed by
	// "buffer", "image", "view", "sampler", "descriptor", "pipeline",
	// "fence" or "commands".
	Fail map[string]bool

	// FenceTimeout makes WaitFence report a timeout.
	FenceTimeout bool

	// DescriptorBatches holds every WriteDescriptors call.
	DescriptorBatches [][]gpucore.DescriptorWrite

	// Submitted holds every submitted recorder in order.
	Submitted []*Recorder

	// FenceWaits counts WaitFence calls.
	FenceWaits int

	// DestroyedImages lists destroyed images in order.
	DestroyedImages []gpucore.ImageID

	limits      gpucore.Limits
	nextID      uint64
	buffers     map[gpucore.BufferID]*buffer
	images      map[gpucore.ImageID]gpucore.ImageDesc
	views       map[gpucore.ViewID]gpucore.ImageID
	samplers    map[gpucore.SamplerID]gpucore.SamplerDesc
	descriptors map[gpucore.DescriptorID]gpucore.DescriptorKind
	pipelines   map[gpucore.PipelineID]gpucore.PipelineDesc
	fences      map[gpucore.FenceID]bool
	bound       map[gpucore.DescriptorID]gpucore.DescriptorWrite
}

var _ gpucore.Device = (*Device)(nil)

// NewDevice creates an empty device with default limits.
func NewDevice() *Device {
	return &Device{
		Fail:        make(map[string]bool),
		limits:      gpucore.DefaultLimits(),
		nextID:      1,
		buffers:     make(map[gpucore.BufferID]*buffer),
		images:      make(map[gpucore.ImageID]gpucore.ImageDesc),
		views:       make(map[gpucore.ViewID]gpucore.ImageID),
		samplers:    make(map[gpucore.SamplerID]gpucore.SamplerDesc),
		descriptors: make(map[gpucore.DescriptorID]gpucore.DescriptorKind),
		pipelines:   make(map[gpucore.PipelineID]gpucore.PipelineDesc),
		fences:      make(map[gpucore.FenceID]bool),
		bound:       make(map[gpucore.DescriptorID]gpucore.DescriptorWrite),
	}
}

// SetLimits overrides the reported device limits.
func (d *Device) SetLimits(l gpucore.Limits) { d.limits = l }

func (d *Device) newID() uint64 {
	id := d.nextID
	d.nextID++
	return id
}

func (d *Device) fail(kind string) error {
	if d.Fail[kind] {
		return fmt.Errorf("%w: create %s", ErrInjected, kind)
	}
	return nil
}

func (d *Device) Limits() gpucore.Limits { return d.limits }

func (d *Device) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	if err := d.fail("buffer"); err != nil {
		return gpucore.InvalidID, err
	}
	if desc.Size <= 0 {
		return gpucore.InvalidID, fmt.Errorf("gputest: buffer size must be positive")
	}
	id := gpucore.BufferID(d.newID())
	d.buffers[id] = &buffer{desc: desc, data: make([]byte, desc.Size)}
	return id, nil
}

func (d *Device) DestroyBuffer(id gpucore.BufferID) { delete(d.buffers, id) }

func (d *Device) MapBuffer(id gpucore.BufferID) ([]byte, error) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("gputest: buffer %d not found", id)
	}
	if b.desc.Usage&gpucore.BufferUsageMapWrite == 0 {
		return nil, fmt.Errorf("gputest: buffer %d is not host visible", id)
	}
	return b.data, nil
}

func (d *Device) WriteBuffer(id gpucore.BufferID, offset int, data []byte) {
	if b, ok := d.buffers[id]; ok {
		copy(b.data[offset:], data)
	}
}

func (d *Device) CreateImage(desc gpucore.ImageDesc) (gpucore.ImageID, error) {
	if err := d.fail("image"); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.ImageID(d.newID())
	d.images[id] = desc
	return id, nil
}

func (d *Device) DestroyImage(id gpucore.ImageID) {
	if _, ok := d.images[id]; ok {
		delete(d.images, id)
		d.DestroyedImages = append(d.DestroyedImages, id)
	}
}

func (d *Device) CreateImageView(img gpucore.ImageID) (gpucore.ViewID, error) {
	if err := d.fail("view"); err != nil {
		return gpucore.InvalidID, err
	}
	if _, ok := d.images[img]; !ok {
		return gpucore.InvalidID, fmt.Errorf("gputest: image %d not found", img)
	}
	id := gpucore.ViewID(d.newID())
	d.views[id] = img
	return id, nil
}

func (d *Device) DestroyImageView(id gpucore.ViewID) { delete(d.views, id) }

func (d *Device) CreateSampler(desc gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	if err := d.fail("sampler"); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.SamplerID(d.newID())
	d.samplers[id] = desc
	return id, nil
}

func (d *Device) DestroySampler(id gpucore.SamplerID) { delete(d.samplers, id) }

func (d *Device) CreateDescriptorSet(kind gpucore.DescriptorKind, _ string) (gpucore.DescriptorID, error) {
	if err := d.fail("descriptor"); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.DescriptorID(d.newID())
	d.descriptors[id] = kind
	return id, nil
}

func (d *Device) DestroyDescriptorSet(id gpucore.DescriptorID) {
	delete(d.descriptors, id)
	delete(d.bound, id)
}

func (d *Device) WriteDescriptors(writes []gpucore.DescriptorWrite) error {
	for _, w := range writes {
		if _, ok := d.descriptors[w.Set]; !ok {
			return fmt.Errorf("gputest: descriptor set %d not found", w.Set)
		}
		d.bound[w.Set] = w
	}
	d.DescriptorBatches = append(d.DescriptorBatches, append([]gpucore.DescriptorWrite(nil), writes...))
	return nil
}

func (d *Device) CreatePipeline(desc gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	if err := d.fail("pipeline"); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.PipelineID(d.newID())
	d.pipelines[id] = desc
	return id, nil
}

func (d *Device) DestroyPipeline(id gpucore.PipelineID) { delete(d.pipelines, id) }

func (d *Device) CreateFence() (gpucore.FenceID, error) {
	if err := d.fail("fence"); err != nil {
		return gpucore.InvalidID, err
	}
	id := gpucore.FenceID(d.newID())
	d.fences[id] = true
	return id, nil
}

func (d *Device) DestroyFence(id gpucore.FenceID) { delete(d.fences, id) }

func (d *Device) WaitFence(id gpucore.FenceID, _ time.Duration) (bool, error) {
	if _, ok := d.fences[id]; !ok {
		return false, fmt.Errorf("gputest: fence %d not found", id)
	}
	d.FenceWaits++
	return !d.FenceTimeout, nil
}

func (d *Device) BeginCommands(label string) (gpucore.CommandRecorder, error) {
	if err := d.fail("commands"); err != nil {
		return nil, err
	}
	return &Recorder{Label: label}, nil
}

func (d *Device) Submit(rec gpucore.CommandRecorder, _ gpucore.FenceID) error {
	r, ok := rec.(*Recorder)
	if !ok {
		return fmt.Errorf("gputest: foreign recorder %T", rec)
	}
	d.Submitted = append(d.Submitted, r)
	return nil
}

// Image returns the descriptor of a live image.
func (d *Device) Image(id gpucore.ImageID) (gpucore.ImageDesc, bool) {
	desc, ok := d.images[id]
	return desc, ok
}

// ViewImage returns the image a live view was created for.
func (d *Device) ViewImage(id gpucore.ViewID) (gpucore.ImageID, bool) {
	img, ok := d.views[id]
	return img, ok
}

// Bound returns the last write applied to a descriptor set.
func (d *Device) Bound(id gpucore.DescriptorID) (gpucore.DescriptorWrite, bool) {
	w, ok := d.bound[id]
	return w, ok
}

// HasBuffer reports whether the buffer is live.
func (d *Device) HasBuffer(id gpucore.BufferID) bool {
	_, ok := d.buffers[id]
	return ok
}

// BufferData returns the contents of a live buffer.
func (d *Device) BufferData(id gpucore.BufferID) ([]byte, bool) {
	b, ok := d.buffers[id]
	if !ok {
		return nil, false
	}
	return b.data, true
}

// Pipelines returns the descriptors of the live pipelines.
func (d *Device) Pipelines() []gpucore.PipelineDesc {
	out := make([]gpucore.PipelineDesc, 0, len(d.pipelines))
	for _, desc := range d.pipelines {
		out = append(out, desc)
	}
	return out
}

// LiveImages returns the number of live images.
func (d *Device) LiveImages() int { return len(d.images) }

// Live returns the number of live resources of every kind.
func (d *Device) Live() int {
	return len(d.buffers) + len(d.images) + len(d.views) + len(d.samplers) +
		len(d.descriptors) + len(d.pipelines) + len(d.fences)
}
