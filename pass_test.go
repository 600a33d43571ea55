package uistream

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"testing/fstest"

	"github.com/gogpu/uistream/atlas"
	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/imagestore"
	"github.com/gogpu/uistream/internal/gputest"
	"github.com/gogpu/uistream/vertex"
)

func testAssets(t *testing.T) fstest.MapFS {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xC0
	}
	img.Set(0, 0, color.NRGBA{R: 0xFF, A: 0xFF})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error: %v", err)
	}
	return fstest.MapFS{
		"ui/a.png": {Data: buf.Bytes()},
		"ui/b.png": {Data: buf.Bytes()},
	}
}

var testSwapchain = Swapchain{Width: 800, Height: 600, Format: gpucore.FormatBGRA8Unorm}

func newTestPass(t *testing.T, dev *gputest.Device, opts ...Option) *Pass {
	t.Helper()
	opts = append([]Option{WithLoader(imagestore.NewFSLoader(testAssets(t)))}, opts...)
	p := New(opts...)
	if err := p.OnInitDevice(dev); err != nil {
		t.Fatalf("OnInitDevice() error: %v", err)
	}
	if err := p.OnSwapchainCreated(testSwapchain); err != nil {
		t.Fatalf("OnSwapchainCreated() error: %v", err)
	}
	return p
}

func newFrame(slot int) (gpucore.Frame, *gputest.Recorder) {
	rec := gputest.NewRecorder()
	return gpucore.Frame{Slot: slot, Commands: rec}, rec
}

func loadImage(t *testing.T, p *Pass, path string) *imagestore.Image {
	t.Helper()
	img, err := p.Images().Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}
	return img
}

func TestEndToEndJobList(t *testing.T) {
	dev := gputest.NewDevice()
	p := newTestPass(t, dev)
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	img := loadImage(t, p, "ui/a.png")
	defer p.Images().Release(img)

	if _, err := p.RequestUIBuffer(42); err != nil {
		t.Fatalf("RequestUIBuffer() error: %v", err)
	}
	p.SubmitRectangle()
	p.SubmitRectangle()
	p.SubmitRectangle()
	if err := p.SubmitImage(img); err != nil {
		t.Fatalf("SubmitImage() error: %v", err)
	}
	p.SubmitRectangle()
	p.SubmitRectangle()

	jobs := p.Jobs()
	want := []Job{
		{Kind: JobUntextured, Vertices: 18},
		{Kind: JobTextured, Vertices: 6, Image: img, Slot: 0},
		{Kind: JobUntextured, Vertices: 12},
	}
	if len(jobs) != len(want) {
		t.Fatalf("jobs = %v, want %v", jobs, want)
	}
	for i := range want {
		if jobs[i] != want[i] {
			t.Errorf("job %d = %v, want %v", i, jobs[i], want[i])
		}
	}

	frame, rec := newFrame(0)
	if err := p.UploadGPUData(frame); err != nil {
		t.Fatalf("UploadGPUData() error: %v", err)
	}
	rec.Reset()
	p.Execute(frame)

	draws := rec.Filter(gputest.OpDraw)
	if len(draws) != 3 {
		t.Fatalf("draws = %d, want 3", len(draws))
	}
	for i, wantBase := range []int{0, 18, 24} {
		if draws[i].FirstVertex != wantBase || draws[i].VertexCount != want[i].Vertices {
			t.Errorf("draw %d = (%d from %d), want (%d from %d)",
				i, draws[i].VertexCount, draws[i].FirstVertex, want[i].Vertices, wantBase)
		}
	}
	if n := rec.Count(gputest.OpBindPipeline); n != 1 {
		t.Errorf("pipeline bound %d times, want 1", n)
	}
	if n := rec.Count(gputest.OpBindVertexBuffer); n != 1 {
		t.Errorf("vertex buffer bound %d times, want 1", n)
	}

	binds := rec.Filter(gputest.OpBindDescriptor)
	wantSets := []gpucore.DescriptorID{p.uniformSet, p.descriptors.Fallback(), p.descriptors.Set(0), p.descriptors.Fallback()}
	if len(binds) != len(wantSets) {
		t.Fatalf("descriptor binds = %d, want %d", len(binds), len(wantSets))
	}
	for i, set := range wantSets {
		if binds[i].Set != set {
			t.Errorf("bind %d set = %d, want %d", i, binds[i].Set, set)
		}
	}
	if w, ok := dev.Bound(p.descriptors.Set(0)); !ok || w.View != img.View() {
		t.Errorf("ring slot 0 bound to %v, want image view %d", w.View, img.View())
	}
}

func TestSubmitCoalescesUntextured(t *testing.T) {
	p := newTestPass(t, gputest.NewDevice())
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	if _, err := p.RequestUIBuffer(11); err != nil {
		t.Fatalf("RequestUIBuffer() error: %v", err)
	}
	p.SubmitRectangle()
	p.SubmitText(5)

	jobs := p.Jobs()
	if len(jobs) != 1 || jobs[0].Kind != JobUntextured || jobs[0].Vertices != 11 {
		t.Errorf("jobs = %v, want one untextured job of 11", jobs)
	}
}

func TestSubmitImageTwice(t *testing.T) {
	dev := gputest.NewDevice()
	p := newTestPass(t, dev)
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	img := loadImage(t, p, "ui/a.png")
	defer p.Images().Release(img)
	if _, err := p.RequestUIBuffer(12); err != nil {
		t.Fatalf("RequestUIBuffer() error: %v", err)
	}

	for want := range 2 {
		if err := p.SubmitImage(img); err != nil {
			t.Fatalf("SubmitImage() error: %v", err)
		}
		if got := p.descriptors.Written(); got != want+1 {
			t.Errorf("ring written = %d after %d submissions, want %d", got, want+1, want+1)
		}
	}
	jobs := p.Jobs()
	if len(jobs) != 2 || jobs[0].Slot != 0 || jobs[1].Slot != 1 {
		t.Fatalf("jobs = %v, want two textured jobs on slots 0 and 1", jobs)
	}

	frame, rec := newFrame(0)
	if err := p.UploadGPUData(frame); err != nil {
		t.Fatalf("UploadGPUData() error: %v", err)
	}
	p.Execute(frame)
	if n := rec.Count(gputest.OpDraw); n != 2 {
		t.Errorf("draws = %d, want 2", n)
	}
	if start := p.descriptors.Start(); start != 2 {
		t.Errorf("ring start = %d, want 2", start)
	}
}

func TestSubmitBeyondSpanIsDropped(t *testing.T) {
	p := newTestPass(t, gputest.NewDevice())
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	img := loadImage(t, p, "ui/a.png")
	defer p.Images().Release(img)
	if _, err := p.RequestUIBuffer(6); err != nil {
		t.Fatalf("RequestUIBuffer() error: %v", err)
	}
	p.SubmitRectangle()
	p.SubmitRectangle()
	if err := p.SubmitImage(img); !errors.Is(err, ErrSpanOverrun) {
		t.Errorf("SubmitImage() error = %v, want ErrSpanOverrun", err)
	}
	if jobs := p.Jobs(); len(jobs) != 1 || jobs[0].Vertices != 6 {
		t.Errorf("jobs = %v, want one job of 6", jobs)
	}
	if st := p.Stats(); st.Dropped != 2 {
		t.Errorf("Dropped = %d, want 2", st.Dropped)
	}
}

func TestCapacityErrors(t *testing.T) {
	p := newTestPass(t, gputest.NewDevice(), WithVertexCapacity(12), WithDescriptorCapacity(1))
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	if _, err := p.RequestUIBuffer(13); !errors.Is(err, ErrCapacity) || !errors.Is(err, vertex.ErrRequestTooLarge) {
		t.Errorf("RequestUIBuffer(13) error = %v, want ErrCapacity wrapping ErrRequestTooLarge", err)
	}
	if _, err := p.RequestUIBuffer(12); err != nil {
		t.Fatalf("RequestUIBuffer(12) error: %v", err)
	}

	img := loadImage(t, p, "ui/a.png")
	defer p.Images().Release(img)
	if err := p.SubmitImage(img); err != nil {
		t.Fatalf("first SubmitImage() error: %v", err)
	}
	if err := p.SubmitImage(img); !errors.Is(err, ErrCapacity) {
		t.Errorf("second SubmitImage() error = %v, want ErrCapacity", err)
	}
	if jobs := p.Jobs(); len(jobs) != 1 {
		t.Errorf("jobs = %d, want 1", len(jobs))
	}
}

func TestReleasedImageFreedAfterFramesInFlight(t *testing.T) {
	dev := gputest.NewDevice()
	p := newTestPass(t, dev, WithFramesInFlight(2))
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	img := loadImage(t, p, "ui/b.png")
	if _, err := p.RequestUIBuffer(6); err != nil {
		t.Fatalf("RequestUIBuffer() error: %v", err)
	}
	if err := p.SubmitImage(img); err != nil {
		t.Fatalf("SubmitImage() error: %v", err)
	}
	frame, _ := newFrame(0)
	if err := p.UploadGPUData(frame); err != nil {
		t.Fatalf("UploadGPUData() error: %v", err)
	}
	p.Execute(frame)

	// The caller drops its reference right after submission.
	if !p.Images().Release(img) {
		t.Fatal("Release() not honored")
	}

	// Frame 2 on slot 1 while frame 1 may still execute.
	p.BeginFrame(1)
	f, _ := newFrame(1)
	if err := p.UploadGPUData(f); err != nil {
		t.Fatalf("UploadGPUData() error: %v", err)
	}
	p.Execute(f)
	if img.Freed() {
		t.Fatal("image freed while frame on slot 0 may be in flight")
	}

	// Frame 3 reuses slot 0: frame 1 has completed.
	p.BeginFrame(0)
	f, _ = newFrame(0)
	_ = p.UploadGPUData(f)
	p.Execute(f)
	if !img.Freed() {
		t.Error("image not freed once its frame completed")
	}
}

func TestReplacedSpanBindsEachJobsImage(t *testing.T) {
	dev := gputest.NewDevice()
	p := newTestPass(t, dev)
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	a := loadImage(t, p, "ui/a.png")
	defer p.Images().Release(a)
	b := loadImage(t, p, "ui/b.png")
	defer p.Images().Release(b)

	if _, err := p.RequestUIBuffer(6); err != nil {
		t.Fatalf("RequestUIBuffer() error: %v", err)
	}
	if err := p.SubmitImage(a); err != nil {
		t.Fatalf("SubmitImage(a) error: %v", err)
	}
	// The second request replaces the span and drops the job drawing a.
	if _, err := p.RequestUIBuffer(6); err != nil {
		t.Fatalf("second RequestUIBuffer() error: %v", err)
	}
	if err := p.SubmitImage(b); err != nil {
		t.Fatalf("SubmitImage(b) error: %v", err)
	}
	if jobs := p.Jobs(); len(jobs) != 1 || jobs[0].Image != b {
		t.Fatalf("jobs = %v, want one job drawing b", jobs)
	}

	frame, rec := newFrame(0)
	if err := p.UploadGPUData(frame); err != nil {
		t.Fatalf("UploadGPUData() error: %v", err)
	}
	rec.Reset()
	p.Execute(frame)

	var views []gpucore.ViewID
	for _, c := range rec.Filter(gputest.OpBindDescriptor) {
		if c.Group != groupTexture {
			continue
		}
		w, ok := dev.Bound(c.Set)
		if !ok {
			t.Fatalf("bound set %d was never written", c.Set)
		}
		views = append(views, w.View)
	}
	if len(views) != 1 || views[0] != b.View() {
		t.Errorf("texture views bound = %v, want [%d] (a is %d)", views, b.View(), a.View())
	}
	if !p.Images().InUse(b) {
		t.Error("drawn image b not marked in use")
	}
	if p.Images().InUse(a) {
		t.Error("dropped image a marked in use")
	}
}

func TestUploadWritesScreenTransform(t *testing.T) {
	dev := gputest.NewDevice()
	p := newTestPass(t, dev)
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	frame, _ := newFrame(0)
	if err := p.UploadGPUData(frame); err != nil {
		t.Fatalf("UploadGPUData() error: %v", err)
	}
	data, ok := dev.BufferData(p.uniform)
	if !ok {
		t.Fatal("uniform buffer missing")
	}
	if !bytes.Equal(data, ScreenTransform(testSwapchain).Bytes()) {
		t.Error("uniform does not hold the screen transform")
	}

	rotated := Swapchain{Width: 600, Height: 800, Format: gpucore.FormatBGRA8Unorm, Orientation: Rotate90}
	if err := p.OnSwapchainCreated(rotated); err != nil {
		t.Fatalf("OnSwapchainCreated() error: %v", err)
	}
	p.BeginFrame(1)
	frame, _ = newFrame(1)
	_ = p.UploadGPUData(frame)
	data, _ = dev.BufferData(p.uniform)
	if !bytes.Equal(data, ScreenTransform(rotated).Bytes()) {
		t.Error("uniform not rewritten after orientation change")
	}
}

func TestUploadCopiesVerticesOnlyWhenChanged(t *testing.T) {
	p := newTestPass(t, gputest.NewDevice())
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	vs, _ := p.RequestUIBuffer(6)
	vertex.Rect(vs, 0, 0, 10, 10, p.WhiteUV(), vertex.White)
	p.SubmitRectangle()
	frame, rec := newFrame(0)
	_ = p.UploadGPUData(frame)
	if n := rec.Count(gputest.OpCopyBuffer); n != 1 {
		t.Errorf("vertex copies = %d, want 1", n)
	}

	p.BeginFrame(1)
	p.SubmitRectangle()
	frame, rec = newFrame(1)
	_ = p.UploadGPUData(frame)
	if n := rec.Count(gputest.OpCopyBuffer); n != 0 {
		t.Errorf("vertex copies of unchanged geometry = %d, want 0", n)
	}
	p.Execute(frame)
	if n := rec.Count(gputest.OpDraw); n != 1 {
		t.Errorf("draws of retained geometry = %d, want 1", n)
	}
}

func TestRetainedSpanStaysReserved(t *testing.T) {
	p := newTestPass(t, gputest.NewDevice(), WithFramesInFlight(2))
	defer p.OnDestroyDevice()

	for i := range 5 {
		slot := i % 2
		p.BeginFrame(slot)
		if i == 0 {
			if _, err := p.RequestUIBuffer(6); err != nil {
				t.Fatalf("RequestUIBuffer() error: %v", err)
			}
		}
		p.SubmitRectangle()
		f, _ := newFrame(slot)
		_ = p.UploadGPUData(f)
		p.Execute(f)
	}
	if live := p.Stats().Vertices.Live; live != 6 {
		t.Errorf("live vertices = %d, want the drawn span of 6 still reserved", live)
	}
}

func TestAtlasGrowthRefreshesFallback(t *testing.T) {
	dev := gputest.NewDevice()
	p := newTestPass(t, dev, WithAtlasConfig(atlas.Config{
		Width:     64,
		Height:    64,
		MaxLayers: 8,
		Format:    gpucore.FormatRGBA8Unorm,
	}))
	defer p.OnDestroyDevice()

	p.BeginFrame(0)
	f, err := p.GetFont("", 40)
	if err != nil {
		t.Fatalf("GetFont() error: %v", err)
	}
	first := p.GetGlyphInfo(f, 'W')
	for _, r := range "ABCDEFGHIJ" {
		p.GetGlyphInfo(f, r)
	}
	if p.atlas.Layers() < 2 {
		t.Fatalf("atlas layers = %d, want growth", p.atlas.Layers())
	}
	if again := p.GetGlyphInfo(f, 'W'); again.UV != first.UV {
		t.Errorf("UV changed across growth: %+v -> %+v", first.UV, again.UV)
	}

	frame, rec := newFrame(0)
	if err := p.UploadGPUData(frame); err != nil {
		t.Fatalf("UploadGPUData() error: %v", err)
	}
	if rec.Count(gputest.OpCopyImage) != 1 {
		t.Errorf("layer copies = %d, want 1", rec.Count(gputest.OpCopyImage))
	}
	w, ok := dev.Bound(p.descriptors.Fallback())
	if !ok || w.View != p.atlas.View() {
		t.Errorf("fallback bound to view %d, want current atlas view %d", w.View, p.atlas.View())
	}
}

func TestOnInitDeviceFailures(t *testing.T) {
	for _, kind := range []string{"sampler", "image", "view", "buffer", "descriptor", "fence"} {
		t.Run(kind, func(t *testing.T) {
			dev := gputest.NewDevice()
			dev.Fail[kind] = true
			p := New()
			if err := p.OnInitDevice(dev); !errors.Is(err, gputest.ErrInjected) {
				t.Fatalf("OnInitDevice() error = %v, want ErrInjected", err)
			}
			if live := dev.Live(); live != 0 {
				t.Errorf("Live() = %d after failed init, want 0", live)
			}
			dev.Fail[kind] = false
			if err := p.OnInitDevice(dev); err != nil {
				t.Fatalf("retry OnInitDevice() error: %v", err)
			}
			p.OnDestroyDevice()
		})
	}
}

func TestOnDestroyDeviceReportsLeaks(t *testing.T) {
	dev := gputest.NewDevice()
	p := newTestPass(t, dev)

	p.BeginFrame(0)
	loadImage(t, p, "ui/a.png")
	released := loadImage(t, p, "ui/b.png")
	p.Images().Release(released)

	report := p.OnDestroyDevice()
	if report.Count() != 1 || report.Images[0] != "ui/a.png" {
		t.Errorf("LeakReport = %+v, want [ui/a.png]", report)
	}
	if report.Err() == nil {
		t.Error("LeakReport.Err() = nil with a leak")
	}
	if live := dev.Live(); live != 0 {
		t.Errorf("Live() = %d after OnDestroyDevice, want 0", live)
	}
	if _, err := p.RequestUIBuffer(1); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("RequestUIBuffer() after destroy error = %v, want ErrNotInitialized", err)
	}
}

func TestSwapchainLifecycle(t *testing.T) {
	dev := gputest.NewDevice()
	p := newTestPass(t, dev)
	defer p.OnDestroyDevice()

	if err := p.OnSwapchainCreated(Swapchain{Width: 0, Height: 10, Format: gpucore.FormatBGRA8Unorm}); !errors.Is(err, ErrInvalidSwapchain) {
		t.Errorf("OnSwapchainCreated(empty) error = %v, want ErrInvalidSwapchain", err)
	}
	if got := dev.Pipelines(); len(got) != 1 || got[0].TargetFormat != gpucore.FormatBGRA8Unorm {
		t.Fatalf("pipelines = %+v, want one BGRA8 pipeline", got)
	}
	if err := p.OnSwapchainCreated(Swapchain{Width: 10, Height: 10, Format: gpucore.FormatRGBA8Unorm}); err != nil {
		t.Fatalf("OnSwapchainCreated() error: %v", err)
	}
	if got := dev.Pipelines(); len(got) != 1 || got[0].TargetFormat != gpucore.FormatRGBA8Unorm {
		t.Errorf("pipelines after format change = %+v, want one RGBA8 pipeline", got)
	}

	p.OnSwapchainDestroyed()
	if got := dev.Pipelines(); len(got) != 0 {
		t.Errorf("pipelines after destroy = %d, want 0", len(got))
	}

	p.BeginFrame(0)
	p.RequestUIBuffer(6)
	p.SubmitRectangle()
	f, rec := newFrame(0)
	_ = p.UploadGPUData(f)
	p.Execute(f)
	if n := rec.Count(gputest.OpDraw); n != 0 {
		t.Errorf("draws without swapchain = %d, want 0", n)
	}
}
