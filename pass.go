package uistream

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/uistream/atlas"
	"github.com/gogpu/uistream/descriptor"
	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/imagestore"
	"github.com/gogpu/uistream/sampler"
	"github.com/gogpu/uistream/text"
	"github.com/gogpu/uistream/vertex"
)

//go:embed shaders/ui.wgsl
var shaderSource string

// ShaderSource returns the WGSL source of the UI pipeline.
func ShaderSource() string { return shaderSource }

// Uniform and descriptor groups of the UI pipeline.
const (
	groupScreen  = 0
	groupTexture = 1
	uniformSize  = 64
)

// Pass is the UI pass orchestrator. It owns the glyph atlas, font cache,
// vertex stream, descriptor ring and image cache of one device, and turns
// each frame's submissions into an ordered job list drawn with one
// pipeline.
//
// All methods must be called from the submission goroutine.
type Pass struct {
	cfg Config
	log *slog.Logger

	dev         gpucore.Device
	samplers    *sampler.Manager
	atlas       *atlas.Atlas
	fonts       *text.FontStorage
	vertices    *vertex.StreamPool
	descriptors *descriptor.Ring
	images      *imagestore.Storage

	uniform    gpucore.BufferID
	uniformSet gpucore.DescriptorID
	pipeline   gpucore.PipelineID
	pipeFormat gpucore.Format

	swapchain      Swapchain
	hasSwapchain   bool
	transformDirty bool
	atlasGen       uint64

	frame     uint64
	slot      int
	requested bool
	jobs      jobList

	dropped int
	draws   int
}

// New creates a pass. No GPU resource exists before OnInitDevice.
func New(opts ...Option) *Pass {
	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Pass{cfg: cfg}
}

// OnInitDevice allocates every pool on dev. Any creation failure releases
// what was already created and is returned.
func (p *Pass) OnInitDevice(dev gpucore.Device) (err error) {
	if p.dev != nil {
		return ErrAlreadyInitialized
	}
	cfg := p.cfg.withDefaults()
	p.log = cfg.Logger
	p.dev = dev
	defer func() {
		if err != nil {
			p.release()
			p.dev = nil
		}
	}()

	p.samplers = sampler.NewManager(dev)
	point, err := p.samplers.Point()
	if err != nil {
		return fmt.Errorf("uistream: %w", err)
	}
	linear, err := p.samplers.Linear()
	if err != nil {
		return fmt.Errorf("uistream: %w", err)
	}

	if p.atlas, err = atlas.New(dev, cfg.Atlas); err != nil {
		return fmt.Errorf("uistream: glyph atlas: %w", err)
	}
	p.fonts = text.New(p.atlas, cfg.Fonts)

	if p.vertices, err = vertex.New(dev, cfg.Vertex); err != nil {
		return fmt.Errorf("uistream: vertex stream: %w", err)
	}

	dcfg := cfg.Descriptors
	dcfg.FallbackSampler = point
	if p.descriptors, err = descriptor.New(dev, linear, dcfg); err != nil {
		return fmt.Errorf("uistream: descriptor ring: %w", err)
	}
	if err = p.descriptors.SetFallback(p.atlas.View()); err != nil {
		return fmt.Errorf("uistream: fallback descriptor: %w", err)
	}
	p.atlasGen = p.atlas.Generation()

	if p.images, err = imagestore.New(dev, cfg.Loader, cfg.Images); err != nil {
		return fmt.Errorf("uistream: image cache: %w", err)
	}

	if p.uniform, err = dev.CreateBuffer(gpucore.BufferDesc{
		Label: "ui_screen",
		Size:  uniformSize,
		Usage: gpucore.BufferUsageUniform | gpucore.BufferUsageCopyDst,
	}); err != nil {
		return fmt.Errorf("uistream: create screen uniform: %w", err)
	}
	if p.uniformSet, err = dev.CreateDescriptorSet(gpucore.DescriptorUniform, "ui_screen"); err != nil {
		return fmt.Errorf("uistream: create screen descriptor: %w", err)
	}
	if err = dev.WriteDescriptors([]gpucore.DescriptorWrite{{
		Set:    p.uniformSet,
		Buffer: p.uniform,
		Size:   uniformSize,
	}}); err != nil {
		return fmt.Errorf("uistream: write screen descriptor: %w", err)
	}

	p.frame, p.slot, p.jobs = 0, 0, p.jobs[:0]
	p.transformDirty = true
	if p.hasSwapchain {
		if err = p.createPipeline(p.swapchain.Format); err != nil {
			return err
		}
	}
	p.log.Info("uistream: device initialized",
		"framesInFlight", cfg.FramesInFlight,
		"vertices", p.vertices.Capacity(),
		"descriptors", p.descriptors.Capacity())
	return nil
}

// OnDestroyDevice releases every pool. The caller guarantees the GPU is
// idle. Images still cached are leaks: they are logged, force-released
// and reported.
func (p *Pass) OnDestroyDevice() LeakReport {
	if p.dev == nil {
		return LeakReport{}
	}
	var report LeakReport
	if p.images != nil {
		report.Images = p.images.Close()
	}
	p.release()
	p.dev = nil
	p.log.Info("uistream: device destroyed", "leaks", report.Count())
	return report
}

// release destroys every resource created so far, in reverse order.
func (p *Pass) release() {
	if p.pipeline != gpucore.InvalidID {
		p.dev.DestroyPipeline(p.pipeline)
		p.pipeline = gpucore.InvalidID
	}
	if p.uniformSet != gpucore.InvalidID {
		p.dev.DestroyDescriptorSet(p.uniformSet)
		p.uniformSet = gpucore.InvalidID
	}
	if p.uniform != gpucore.InvalidID {
		p.dev.DestroyBuffer(p.uniform)
		p.uniform = gpucore.InvalidID
	}
	if p.images != nil {
		p.images.Close()
		p.images = nil
	}
	if p.descriptors != nil {
		p.descriptors.Close()
		p.descriptors = nil
	}
	if p.vertices != nil {
		p.vertices.Close()
		p.vertices = nil
	}
	if p.fonts != nil {
		p.fonts.Close()
		p.fonts = nil
	}
	if p.atlas != nil {
		p.atlas.Close()
		p.atlas = nil
	}
	if p.samplers != nil {
		p.samplers.Close()
		p.samplers = nil
	}
}

// OnSwapchainCreated records the render target and (re)creates the
// pipeline for its format. The screen transform is rewritten at the next
// UploadGPUData.
func (p *Pass) OnSwapchainCreated(sc Swapchain) error {
	if err := sc.validate(); err != nil {
		return err
	}
	p.swapchain, p.hasSwapchain = sc, true
	p.transformDirty = true
	if p.dev == nil {
		return nil
	}
	if p.pipeline != gpucore.InvalidID && p.pipeFormat == sc.Format {
		return nil
	}
	if err := p.createPipeline(sc.Format); err != nil {
		return err
	}
	w, h := sc.LogicalSize()
	p.log.Info("uistream: swapchain created", "width", w, "height", h,
		"format", sc.Format, "orientation", sc.Orientation)
	return nil
}

// OnSwapchainDestroyed drops the pipeline. Frames recorded before the next
// OnSwapchainCreated draw nothing.
func (p *Pass) OnSwapchainDestroyed() {
	p.hasSwapchain = false
	if p.dev != nil && p.pipeline != gpucore.InvalidID {
		p.dev.DestroyPipeline(p.pipeline)
		p.pipeline = gpucore.InvalidID
	}
}

func (p *Pass) createPipeline(format gpucore.Format) error {
	if p.pipeline != gpucore.InvalidID {
		p.dev.DestroyPipeline(p.pipeline)
		p.pipeline = gpucore.InvalidID
	}
	id, err := p.dev.CreatePipeline(gpucore.PipelineDesc{
		Label:        "ui",
		WGSL:         shaderSource,
		VertexStride: vertex.Size,
		Attributes:   vertex.Attributes(),
		TargetFormat: format,
	})
	if err != nil {
		return fmt.Errorf("uistream: create pipeline: %w", err)
	}
	p.pipeline, p.pipeFormat = id, format
	return nil
}

// BeginFrame starts the next frame, recorded on frame slot slot. The frame
// that last used slot has completed: its dying atlas images, staging
// buffers, vertex spans, descriptor slots and upload command buffers are
// reclaimed.
func (p *Pass) BeginFrame(slot int) {
	if p.dev == nil {
		return
	}
	p.frame++
	p.slot = slot
	p.atlas.BeginFrame(slot)
	p.vertices.BeginFrame(p.frame)
	p.descriptors.BeginFrame(p.frame)
	p.images.BeginFrame(slot)
	p.jobs = p.jobs[:0]
	p.requested = false
}

// RequestUIBuffer returns n writable vertices for this frame's geometry.
// Only one span is drawn per frame: a second request replaces the first and
// discards the jobs submitted against it.
func (p *Pass) RequestUIBuffer(n int) ([]vertex.Vertex, error) {
	if p.dev == nil {
		return nil, ErrNotInitialized
	}
	vs, err := p.vertices.RequestUIBuffer(n)
	if err != nil {
		if errors.Is(err, vertex.ErrCapacity) || errors.Is(err, vertex.ErrRequestTooLarge) {
			return nil, fmt.Errorf("%w: %w", ErrCapacity, err)
		}
		return nil, err
	}
	if len(p.jobs) > 0 {
		p.log.Warn("uistream: vertex span replaced, dropping jobs", "jobs", len(p.jobs))
		p.dropped += len(p.jobs)
		p.jobs = p.jobs[:0]
	}
	p.requested = true
	return vs, nil
}

// fits reports whether n more vertices stay inside the current span.
func (p *Pass) fits(n int) bool {
	if p.jobs.vertices()+n <= p.vertices.Range().Len {
		return true
	}
	p.dropped++
	p.log.Warn("uistream: submission exceeds vertex span",
		"n", n, "submitted", p.jobs.vertices(), "span", p.vertices.Range().Len)
	return false
}

// SubmitRectangle submits one solid rectangle (6 vertices).
func (p *Pass) SubmitRectangle() {
	p.SubmitText(vertex.QuadVertices)
}

// SubmitText submits n vertices of glyph or rectangle quads.
func (p *Pass) SubmitText(n int) {
	if p.dev == nil || n <= 0 || !p.fits(n) {
		return
	}
	p.jobs = p.jobs.untextured(n)
}

// SubmitImage submits one image quad (6 vertices) as its own job bound to
// the next descriptor ring slot.
func (p *Pass) SubmitImage(img *imagestore.Image) error {
	if p.dev == nil {
		return ErrNotInitialized
	}
	if img == nil || img.Freed() {
		return ErrInvalidImage
	}
	if !p.fits(vertex.QuadVertices) {
		return ErrSpanOverrun
	}
	slot, err := p.descriptors.Push(img.View())
	if err != nil {
		if errors.Is(err, descriptor.ErrRingFull) {
			return fmt.Errorf("%w: %w", ErrCapacity, err)
		}
		return err
	}
	p.jobs = append(p.jobs, Job{Kind: JobTextured, Vertices: vertex.QuadVertices, Image: img, Slot: slot})
	return nil
}

// UploadGPUData records the frame's transfers into frame.Commands, outside
// any render pass: descriptor commits, staged glyph pixels, the atlas
// descriptor refresh after growth, the screen transform after a
// resolution or orientation change, and the vertex partial copy. Image
// uploads are submitted on their own command buffer.
func (p *Pass) UploadGPUData(frame gpucore.Frame) error {
	if p.dev == nil {
		return ErrNotInitialized
	}
	cmd := frame.Commands
	if err := p.descriptors.Commit(); err != nil {
		return fmt.Errorf("uistream: %w", err)
	}
	p.atlas.Flush(cmd)
	if gen := p.atlas.Generation(); gen != p.atlasGen {
		if err := p.descriptors.SetFallback(p.atlas.View()); err != nil {
			return fmt.Errorf("uistream: refresh atlas descriptor: %w", err)
		}
		p.atlasGen = gen
	}
	if p.transformDirty && p.hasSwapchain {
		p.dev.WriteBuffer(p.uniform, 0, ScreenTransform(p.swapchain).Bytes())
		p.transformDirty = false
	}
	p.vertices.Upload(cmd)
	if err := p.images.Flush(); err != nil {
		return fmt.Errorf("uistream: %w", err)
	}
	return nil
}

// Execute records the frame's draws into frame.Commands, inside the render
// pass: the pipeline and vertex buffer are bound once, then every job is
// drawn in submission order with a running base vertex. A textured job
// binds the ring slot its SubmitImage reserved. Garbage collection
// for the frame slot runs at the end whether or not anything was drawn.
func (p *Pass) Execute(frame gpucore.Frame) {
	if p.dev == nil {
		return
	}
	if len(p.jobs) > 0 && p.pipeline != gpucore.InvalidID {
		p.draw(frame)
	}
	p.images.CollectGarbage(frame.Slot)
}

func (p *Pass) draw(frame gpucore.Frame) {
	cmd := frame.Commands
	cmd.BindPipeline(p.pipeline)
	cmd.BindDescriptor(groupScreen, p.uniformSet)
	cmd.BindVertexBuffer(p.vertices.Buffer(), p.vertices.Range().Offset*vertex.Size)

	bound := gpucore.DescriptorID(gpucore.InvalidID)
	base := 0
	for _, j := range p.jobs {
		set := p.descriptors.Fallback()
		if j.Kind == JobTextured {
			set = p.descriptors.Set(j.Slot)
			p.images.MarkInUse(j.Image, frame.Slot)
		}
		if set != bound {
			cmd.BindDescriptor(groupTexture, set)
			bound = set
		}
		cmd.Draw(j.Vertices, base)
		base += j.Vertices
		p.draws++
	}
	if !p.requested {
		p.vertices.Retain()
	}
}

// GetFont returns the font for family at size pixels per EM.
func (p *Pass) GetFont(family string, size float64) (*text.Font, error) {
	if p.dev == nil {
		return nil, ErrNotInitialized
	}
	return p.fonts.GetFont(family, size)
}

// GetGlyphInfo returns the atlas coordinates and metrics of r in f. The
// coordinates stay valid for every frame.
func (p *Pass) GetGlyphInfo(f *text.Font, r rune) text.Glyph {
	return p.fonts.GetGlyphInfo(f, r)
}

// WhiteUV returns atlas coordinates sampling an opaque texel, for solid
// rectangles written with vertex.Rect.
func (p *Pass) WhiteUV() atlas.UVRect { return p.atlas.WhiteUV() }

// Fonts returns the font cache, or nil before OnInitDevice.
func (p *Pass) Fonts() *text.FontStorage { return p.fonts }

// Images returns the image cache, or nil before OnInitDevice.
func (p *Pass) Images() *imagestore.Storage { return p.images }

// Jobs returns the jobs submitted this frame. The slice is reused by the
// next BeginFrame.
func (p *Pass) Jobs() []Job { return p.jobs }

// Swapchain returns the current render target description.
func (p *Pass) Swapchain() (Swapchain, bool) { return p.swapchain, p.hasSwapchain }

// Stats aggregates the statistics of every pool.
type Stats struct {
	Frame       uint64
	Jobs        int
	Draws       int
	Dropped     int
	Atlas       atlas.Stats
	Fonts       text.Stats
	Vertices    vertex.Stats
	Descriptors descriptor.Stats
	Images      imagestore.Stats
}

// Stats returns current statistics. It is zero before OnInitDevice.
func (p *Pass) Stats() Stats {
	if p.dev == nil {
		return Stats{}
	}
	return Stats{
		Frame:       p.frame,
		Jobs:        len(p.jobs),
		Draws:       p.draws,
		Dropped:     p.dropped,
		Atlas:       p.atlas.Stats(),
		Fonts:       p.fonts.Stats(),
		Vertices:    p.vertices.Stats(),
		Descriptors: p.descriptors.Stats(),
		Images:      p.images.Stats(),
	}
}
