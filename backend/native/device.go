package native

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/internal/logging"
	"github.com/gogpu/wgpu/hal"
)

// Config holds configuration for creating a Device.
type Config struct {
	// Limits are the limits the hal device was opened with. Zero means
	// gputypes.DefaultLimits().
	Limits gputypes.Limits

	// CompileSPIRV compiles pipeline shaders from WGSL to SPIR-V with naga
	// before handing them to the hal device. Backends that consume WGSL
	// directly leave it off.
	CompileSPIRV bool

	// Logger receives diagnostics. Nil means silent.
	Logger *slog.Logger
}

type buffer struct {
	raw    hal.Buffer
	shadow []byte
}

type texture struct {
	raw  hal.Texture
	desc gpucore.ImageDesc
}

type textureView struct {
	raw   hal.TextureView
	image gpucore.ImageID
}

type descriptorSet struct {
	kind  gpucore.DescriptorKind
	label string
	group hal.BindGroup
}

type renderPipeline struct {
	shader hal.ShaderModule
	raw    hal.RenderPipeline
}

type fence struct {
	raw    hal.Fence
	value  uint64
	serial uint64
}

// graveyard entries are destroyed once submission serial has completed.
type retired struct {
	serial uint64
	group  hal.BindGroup
	cmds   hal.CommandBuffer
}

// Device implements gpucore.Device on a hal device and queue.
//
// Device is safe for concurrent use; recorders are not.
type Device struct {
	device hal.Device
	queue  hal.Queue
	log    *slog.Logger
	limits gpucore.Limits
	spirv  bool

	uniformLayout hal.BindGroupLayout
	imageLayout   hal.BindGroupLayout
	pipeLayout    hal.PipelineLayout

	nextID atomic.Uint64

	mu        sync.Mutex
	buffers   map[gpucore.BufferID]*buffer
	textures  map[gpucore.ImageID]*texture
	views     map[gpucore.ViewID]*textureView
	samplers  map[gpucore.SamplerID]hal.Sampler
	sets      map[gpucore.DescriptorID]*descriptorSet
	pipelines map[gpucore.PipelineID]*renderPipeline
	fences    map[gpucore.FenceID]*fence

	// queueFence signals submissions made without a caller fence.
	queueFence *fence

	serial           uint64
	completed        uint64
	buffersSubmitted uint64
	graveyard        []retired
}

// closeTimeout bounds each fence wait in Close.
const closeTimeout = 5 * time.Second

var _ gpucore.Device = (*Device)(nil)

// New wraps an opened hal device and its queue. The caller keeps
// ownership of both; Close releases only what the Device created.
func New(device hal.Device, queue hal.Queue, cfg Config) (*Device, error) {
	if device == nil || queue == nil {
		return nil, ErrNilHALDevice
	}
	limits := cfg.Limits
	if limits.MaxTextureDimension2D == 0 {
		limits = gputypes.DefaultLimits()
	}
	d := &Device{
		device: device,
		queue:  queue,
		log:    logging.OrNop(cfg.Logger),
		limits: gpucore.Limits{
			MaxImageDimension: int(limits.MaxTextureDimension2D),
			MaxImageLayers:    int(limits.MaxTextureArrayLayers),
		},
		spirv:     cfg.CompileSPIRV,
		buffers:   make(map[gpucore.BufferID]*buffer),
		textures:  make(map[gpucore.ImageID]*texture),
		views:     make(map[gpucore.ViewID]*textureView),
		samplers:  make(map[gpucore.SamplerID]hal.Sampler),
		sets:      make(map[gpucore.DescriptorID]*descriptorSet),
		pipelines: make(map[gpucore.PipelineID]*renderPipeline),
		fences:    make(map[gpucore.FenceID]*fence),
	}
	d.nextID.Store(1)
	if err := d.createLayouts(); err != nil {
		d.destroyLayouts()
		return nil, err
	}
	raw, err := device.CreateFence()
	if err != nil {
		d.destroyLayouts()
		return nil, fmt.Errorf("native: create queue fence: %w", err)
	}
	d.queueFence = &fence{raw: raw}
	return d, nil
}

func (d *Device) newID() uint64 {
	return d.nextID.Add(1) - 1
}

func (d *Device) createLayouts() error {
	var err error
	d.uniformLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "ui_screen_layout",
		Entries: []gputypes.BindGroupLayoutEntry{{
			Binding:    0,
			Visibility: gputypes.ShaderStageVertex,
			Buffer:     &gputypes.BufferBindingLayout{Type: gputypes.BufferBindingTypeUniform},
		}},
	})
	if err != nil {
		return fmt.Errorf("native: create uniform layout: %w", err)
	}
	d.imageLayout, err = d.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label: "ui_image_layout",
		Entries: []gputypes.BindGroupLayoutEntry{
			{
				Binding:    0,
				Visibility: gputypes.ShaderStageFragment,
				Texture: &gputypes.TextureBindingLayout{
					SampleType:    gputypes.TextureSampleTypeFloat,
					ViewDimension: gputypes.TextureViewDimension2DArray,
				},
			},
			{
				Binding:    1,
				Visibility: gputypes.ShaderStageFragment,
				Sampler:    &gputypes.SamplerBindingLayout{Type: gputypes.SamplerBindingTypeFiltering},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("native: create image layout: %w", err)
	}
	d.pipeLayout, err = d.device.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            "ui_pipeline_layout",
		BindGroupLayouts: []hal.BindGroupLayout{d.uniformLayout, d.imageLayout},
	})
	if err != nil {
		return fmt.Errorf("native: create pipeline layout: %w", err)
	}
	return nil
}

func (d *Device) destroyLayouts() {
	if d.pipeLayout != nil {
		d.device.DestroyPipelineLayout(d.pipeLayout)
		d.pipeLayout = nil
	}
	if d.imageLayout != nil {
		d.device.DestroyBindGroupLayout(d.imageLayout)
		d.imageLayout = nil
	}
	if d.uniformLayout != nil {
		d.device.DestroyBindGroupLayout(d.uniformLayout)
		d.uniformLayout = nil
	}
}

// Limits returns the device limits.
func (d *Device) Limits() gpucore.Limits { return d.limits }

// HAL returns the wrapped hal device and queue.
func (d *Device) HAL() (hal.Device, hal.Queue) { return d.device, d.queue }

// CreateBuffer creates a buffer. Host-visible buffers are backed by CPU
// memory only.
func (d *Device) CreateBuffer(desc gpucore.BufferDesc) (gpucore.BufferID, error) {
	b := &buffer{}
	if desc.Usage&gpucore.BufferUsageMapWrite != 0 {
		b.shadow = make([]byte, desc.Size)
	} else {
		raw, err := d.device.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label,
			Size:  uint64(desc.Size), //nolint:gosec // sizes are validated by callers
			Usage: bufferUsage(desc.Usage),
		})
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: create buffer %q: %w", desc.Label, err)
		}
		b.raw = raw
	}
	id := gpucore.BufferID(d.newID())
	d.mu.Lock()
	d.buffers[id] = b
	d.mu.Unlock()
	return id, nil
}

// DestroyBuffer destroys a buffer.
func (d *Device) DestroyBuffer(id gpucore.BufferID) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	delete(d.buffers, id)
	d.mu.Unlock()
	if ok && b.raw != nil {
		d.device.DestroyBuffer(b.raw)
	}
}

// MapBuffer returns the CPU memory of a host-visible buffer.
func (d *Device) MapBuffer(id gpucore.BufferID) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b, ok := d.buffers[id]
	if !ok {
		return nil, fmt.Errorf("%w: buffer %d", ErrUnknownResource, id)
	}
	if b.shadow == nil {
		return nil, fmt.Errorf("native: buffer %d is not host visible", id)
	}
	return b.shadow, nil
}

// WriteBuffer writes data through the queue.
func (d *Device) WriteBuffer(id gpucore.BufferID, offset int, data []byte) {
	d.mu.Lock()
	b, ok := d.buffers[id]
	d.mu.Unlock()
	switch {
	case !ok:
		d.log.Warn("native: write to unknown buffer", "buffer", id)
	case b.shadow != nil:
		copy(b.shadow[offset:], data)
	default:
		d.queue.WriteBuffer(b.raw, uint64(offset), data) //nolint:gosec // offset is non-negative
	}
}

// CreateImage creates a 2D texture with desc.Layers array layers.
func (d *Device) CreateImage(desc gpucore.ImageDesc) (gpucore.ImageID, error) {
	format, err := textureFormat(desc.Format)
	if err != nil {
		return gpucore.InvalidID, err
	}
	layers := max(desc.Layers, 1)
	raw, err := d.device.CreateTexture(&hal.TextureDescriptor{
		Label: desc.Label,
		Size: hal.Extent3D{
			Width:              uint32(desc.Width),  //nolint:gosec // clamped to device limits
			Height:             uint32(desc.Height), //nolint:gosec // clamped to device limits
			DepthOrArrayLayers: uint32(layers),      //nolint:gosec // clamped to device limits
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         textureUsage(desc.Usage),
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create image %q: %w", desc.Label, err)
	}
	desc.Layers = layers
	id := gpucore.ImageID(d.newID())
	d.mu.Lock()
	d.textures[id] = &texture{raw: raw, desc: desc}
	d.mu.Unlock()
	return id, nil
}

// DestroyImage destroys an image.
func (d *Device) DestroyImage(id gpucore.ImageID) {
	d.mu.Lock()
	t, ok := d.textures[id]
	delete(d.textures, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyTexture(t.raw)
	}
}

// CreateImageView creates a 2D-array view covering every layer.
func (d *Device) CreateImageView(id gpucore.ImageID) (gpucore.ViewID, error) {
	d.mu.Lock()
	t, ok := d.textures[id]
	d.mu.Unlock()
	if !ok {
		return gpucore.InvalidID, fmt.Errorf("%w: image %d", ErrUnknownResource, id)
	}
	format, _ := textureFormat(t.desc.Format)
	raw, err := d.device.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           t.desc.Label + "_view",
		Format:          format,
		Dimension:       gputypes.TextureViewDimension2DArray,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: uint32(t.desc.Layers), //nolint:gosec // clamped to device limits
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create view of image %d: %w", id, err)
	}
	vid := gpucore.ViewID(d.newID())
	d.mu.Lock()
	d.views[vid] = &textureView{raw: raw, image: id}
	d.mu.Unlock()
	return vid, nil
}

// DestroyImageView destroys an image view.
func (d *Device) DestroyImageView(id gpucore.ViewID) {
	d.mu.Lock()
	v, ok := d.views[id]
	delete(d.views, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyTextureView(v.raw)
	}
}

// CreateSampler creates a clamp-to-edge sampler.
func (d *Device) CreateSampler(desc gpucore.SamplerDesc) (gpucore.SamplerID, error) {
	filter := filterMode(desc.Filter)
	raw, err := d.device.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: gputypes.AddressModeClampToEdge,
		AddressModeV: gputypes.AddressModeClampToEdge,
		AddressModeW: gputypes.AddressModeClampToEdge,
		MagFilter:    filter,
		MinFilter:    filter,
		MipmapFilter: gputypes.FilterModeNearest,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create sampler %q: %w", desc.Label, err)
	}
	id := gpucore.SamplerID(d.newID())
	d.mu.Lock()
	d.samplers[id] = raw
	d.mu.Unlock()
	return id, nil
}

// DestroySampler destroys a sampler.
func (d *Device) DestroySampler(id gpucore.SamplerID) {
	d.mu.Lock()
	s, ok := d.samplers[id]
	delete(d.samplers, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroySampler(s)
	}
}

// CreateDescriptorSet creates an empty descriptor set. Its bind group is
// created by the first WriteDescriptors naming it.
func (d *Device) CreateDescriptorSet(kind gpucore.DescriptorKind, label string) (gpucore.DescriptorID, error) {
	if kind != gpucore.DescriptorUniform && kind != gpucore.DescriptorImage {
		return gpucore.InvalidID, fmt.Errorf("native: unknown descriptor kind %d", kind)
	}
	id := gpucore.DescriptorID(d.newID())
	d.mu.Lock()
	d.sets[id] = &descriptorSet{kind: kind, label: label}
	d.mu.Unlock()
	return id, nil
}

// DestroyDescriptorSet destroys a descriptor set once no submission may
// still read it.
func (d *Device) DestroyDescriptorSet(id gpucore.DescriptorID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.sets[id]
	delete(d.sets, id)
	if ok && s.group != nil {
		d.retireLocked(retired{group: s.group})
	}
}

// WriteDescriptors rebuilds the bind group of every written set. Bind
// groups are immutable in WebGPU, so the replaced group is kept alive
// until the submissions that may reference it have completed.
func (d *Device) WriteDescriptors(writes []gpucore.DescriptorWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		s, ok := d.sets[w.Set]
		if !ok {
			return fmt.Errorf("%w: descriptor set %d", ErrUnknownResource, w.Set)
		}
		desc, err := d.bindGroupLocked(s, w)
		if err != nil {
			return err
		}
		group, err := d.device.CreateBindGroup(desc)
		if err != nil {
			return fmt.Errorf("native: write descriptor set %d: %w", w.Set, err)
		}
		if s.group != nil {
			d.retireLocked(retired{group: s.group})
		}
		s.group = group
	}
	return nil
}

func (d *Device) bindGroupLocked(s *descriptorSet, w gpucore.DescriptorWrite) (*hal.BindGroupDescriptor, error) {
	if s.kind == gpucore.DescriptorUniform {
		b, ok := d.buffers[w.Buffer]
		if !ok || b.raw == nil {
			return nil, fmt.Errorf("%w: uniform buffer %d", ErrUnknownResource, w.Buffer)
		}
		return &hal.BindGroupDescriptor{
			Label:  s.label,
			Layout: d.uniformLayout,
			Entries: []gputypes.BindGroupEntry{
				{Binding: 0, Resource: gputypes.BufferBinding{
					Buffer: b.raw.NativeHandle(), Offset: 0, Size: uint64(w.Size), //nolint:gosec // uniform size
				}},
			},
		}, nil
	}
	v, ok := d.views[w.View]
	if !ok {
		return nil, fmt.Errorf("%w: view %d", ErrUnknownResource, w.View)
	}
	smp, ok := d.samplers[w.Sampler]
	if !ok {
		return nil, fmt.Errorf("%w: sampler %d", ErrUnknownResource, w.Sampler)
	}
	return &hal.BindGroupDescriptor{
		Label:  s.label,
		Layout: d.imageLayout,
		Entries: []gputypes.BindGroupEntry{
			{Binding: 0, Resource: gputypes.TextureViewBinding{TextureView: v.raw.NativeHandle()}},
			{Binding: 1, Resource: gputypes.SamplerBinding{Sampler: smp.NativeHandle()}},
		},
	}, nil
}

// CreatePipeline creates the UI render pipeline for desc.TargetFormat,
// with premultiplied alpha blending.
func (d *Device) CreatePipeline(desc gpucore.PipelineDesc) (gpucore.PipelineID, error) {
	format, err := textureFormat(desc.TargetFormat)
	if err != nil {
		return gpucore.InvalidID, err
	}
	source := hal.ShaderSource{WGSL: desc.WGSL}
	if d.spirv {
		code, err := naga.Compile(desc.WGSL)
		if err != nil {
			return gpucore.InvalidID, fmt.Errorf("native: compile shader %q: %w", desc.Label, err)
		}
		source = hal.ShaderSource{SPIRV: littleEndianWords(code)}
	}
	shader, err := d.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label + "_shader",
		Source: source,
	})
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create shader %q: %w", desc.Label, err)
	}

	blend := gputypes.BlendStatePremultiplied()
	raw, err := d.device.CreateRenderPipeline(&hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: d.pipeLayout,
		Vertex: hal.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
			Buffers:    vertexLayout(desc),
		},
		Fragment: &hal.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []gputypes.ColorTargetState{{
				Format:    format,
				Blend:     &blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology: gputypes.PrimitiveTopologyTriangleList,
			CullMode: gputypes.CullModeNone,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	})
	if err != nil {
		d.device.DestroyShaderModule(shader)
		return gpucore.InvalidID, fmt.Errorf("native: create pipeline %q: %w", desc.Label, err)
	}
	id := gpucore.PipelineID(d.newID())
	d.mu.Lock()
	d.pipelines[id] = &renderPipeline{shader: shader, raw: raw}
	d.mu.Unlock()
	return id, nil
}

// DestroyPipeline destroys a pipeline and its shader module.
func (d *Device) DestroyPipeline(id gpucore.PipelineID) {
	d.mu.Lock()
	p, ok := d.pipelines[id]
	delete(d.pipelines, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyRenderPipeline(p.raw)
		d.device.DestroyShaderModule(p.shader)
	}
}

// CreateFence creates a timeline fence.
func (d *Device) CreateFence() (gpucore.FenceID, error) {
	raw, err := d.device.CreateFence()
	if err != nil {
		return gpucore.InvalidID, fmt.Errorf("native: create fence: %w", err)
	}
	id := gpucore.FenceID(d.newID())
	d.mu.Lock()
	d.fences[id] = &fence{raw: raw}
	d.mu.Unlock()
	return id, nil
}

// DestroyFence destroys a fence.
func (d *Device) DestroyFence(id gpucore.FenceID) {
	d.mu.Lock()
	f, ok := d.fences[id]
	delete(d.fences, id)
	d.mu.Unlock()
	if ok {
		d.device.DestroyFence(f.raw)
	}
}

// WaitFence waits for the last submission signaling the fence. Completion
// also releases bind groups and command buffers retired up to that
// submission.
func (d *Device) WaitFence(id gpucore.FenceID, timeout time.Duration) (bool, error) {
	d.mu.Lock()
	f, ok := d.fences[id]
	var value, serial uint64
	if ok {
		value, serial = f.value, f.serial
	}
	d.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("%w: fence %d", ErrUnknownResource, id)
	}
	if value == 0 {
		return true, nil
	}
	done, err := d.device.Wait(f.raw, value, timeout)
	if err != nil {
		return false, fmt.Errorf("native: wait fence %d: %w", id, err)
	}
	if done {
		d.mu.Lock()
		d.completeLocked(serial)
		d.mu.Unlock()
	}
	return done, nil
}

// BeginCommands starts a new recording.
func (d *Device) BeginCommands(label string) (gpucore.CommandRecorder, error) {
	enc, err := d.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("native: create command encoder: %w", err)
	}
	if err := enc.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("native: begin encoding: %w", err)
	}
	return &Recorder{dev: d, enc: enc, label: label}, nil
}

// Submit ends the recording and submits it. Queue writes and command
// buffers are replayed in recording order; only the last command buffer
// signals the fence.
func (d *Device) Submit(rec gpucore.CommandRecorder, id gpucore.FenceID) error {
	r, ok := rec.(*Recorder)
	if !ok || r.dev != d {
		return ErrForeignRecorder
	}
	chunks, err := r.finish()
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	f := d.queueFence
	if id != gpucore.InvalidID {
		if f, ok = d.fences[id]; !ok {
			for _, c := range chunks {
				d.device.FreeCommandBuffer(c.cmds)
			}
			return fmt.Errorf("%w: fence %d", ErrUnknownResource, id)
		}
	}

	last := len(chunks) - 1
	for i, c := range chunks {
		for _, w := range c.writes {
			w()
		}
		if i == last {
			break
		}
		if err := d.queue.Submit([]hal.CommandBuffer{c.cmds}, nil, 0); err != nil {
			for _, rest := range chunks[i:] {
				d.device.FreeCommandBuffer(rest.cmds)
			}
			return fmt.Errorf("native: submit %q: %w", r.label, err)
		}
		d.buffersSubmitted++
		// Freed once the fenced submission that follows has completed.
		d.graveyard = append(d.graveyard, retired{serial: d.serial + 1, cmds: c.cmds})
	}

	cmds := chunks[last].cmds
	d.serial++
	f.value++
	f.serial = d.serial
	if err := d.queue.Submit([]hal.CommandBuffer{cmds}, f.raw, f.value); err != nil {
		d.device.FreeCommandBuffer(cmds)
		return fmt.Errorf("native: submit %q: %w", r.label, err)
	}
	d.buffersSubmitted++
	d.graveyard = append(d.graveyard, retired{serial: d.serial, cmds: cmds})
	return nil
}

// retireLocked queues g for destruction after the next submission, which
// may still reference it, has completed.
func (d *Device) retireLocked(g retired) {
	g.serial = d.serial + 1
	d.graveyard = append(d.graveyard, g)
}

func (d *Device) completeLocked(serial uint64) {
	if serial > d.completed {
		d.completed = serial
	}
	kept := d.graveyard[:0]
	for _, g := range d.graveyard {
		if g.serial > d.completed {
			kept = append(kept, g)
			continue
		}
		d.destroyRetired(g)
	}
	clear(d.graveyard[len(kept):])
	d.graveyard = kept
}

func (d *Device) destroyRetired(g retired) {
	if g.group != nil {
		d.device.DestroyBindGroup(g.group)
	}
	if g.cmds != nil {
		d.device.FreeCommandBuffer(g.cmds)
	}
}

// Stats reports live resource counts.
type Stats struct {
	Buffers     int
	Images      int
	Views       int
	Samplers    int
	Descriptors int
	Pipelines   int
	Fences      int
	Retired     int
	Submissions uint64

	// CommandBuffers counts command buffers handed to the queue. A
	// submission cut by queue writes uses more than one.
	CommandBuffers uint64
}

// Stats returns live resource counts.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return Stats{
		Buffers:        len(d.buffers),
		Images:         len(d.textures),
		Views:          len(d.views),
		Samplers:       len(d.samplers),
		Descriptors:    len(d.sets),
		Pipelines:      len(d.pipelines),
		Fences:         len(d.fences),
		Retired:        len(d.graveyard),
		Submissions:    d.serial,
		CommandBuffers: d.buffersSubmitted,
	}
}

// Close waits for every submission and destroys every resource still
// alive. Leftovers are logged: a clean shutdown destroys everything first.
func (d *Device) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.queueFence == nil {
		return
	}

	fences := []*fence{d.queueFence}
	for _, f := range d.fences {
		fences = append(fences, f)
	}
	for _, f := range fences {
		if f.value == 0 {
			continue
		}
		if done, err := d.device.Wait(f.raw, f.value, closeTimeout); err != nil || !done {
			d.log.Warn("native: submission still pending at close", "done", done, "err", err)
		}
	}

	for _, g := range d.graveyard {
		d.destroyRetired(g)
	}
	d.graveyard = nil
	live := len(d.buffers) + len(d.textures) + len(d.views) + len(d.samplers) +
		len(d.sets) + len(d.pipelines) + len(d.fences)
	if live > 0 {
		d.log.Warn("native: destroying leaked resources", "count", live)
	}
	for id, s := range d.sets {
		if s.group != nil {
			d.device.DestroyBindGroup(s.group)
		}
		delete(d.sets, id)
	}
	for id, p := range d.pipelines {
		d.device.DestroyRenderPipeline(p.raw)
		d.device.DestroyShaderModule(p.shader)
		delete(d.pipelines, id)
	}
	for id, v := range d.views {
		d.device.DestroyTextureView(v.raw)
		delete(d.views, id)
	}
	for id, t := range d.textures {
		d.device.DestroyTexture(t.raw)
		delete(d.textures, id)
	}
	for id, b := range d.buffers {
		if b.raw != nil {
			d.device.DestroyBuffer(b.raw)
		}
		delete(d.buffers, id)
	}
	for id, s := range d.samplers {
		d.device.DestroySampler(s)
		delete(d.samplers, id)
	}
	for id, f := range d.fences {
		d.device.DestroyFence(f.raw)
		delete(d.fences, id)
	}
	d.device.DestroyFence(d.queueFence.raw)
	d.queueFence = nil
	d.destroyLayouts()
}
