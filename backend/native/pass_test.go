package native_test

import (
	"bytes"
	"image"
	"image/png"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/uistream"
	"github.com/gogpu/uistream/atlas"
	"github.com/gogpu/uistream/backend/native"
	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/imagestore"
	"github.com/gogpu/uistream/text"
	"github.com/gogpu/uistream/vertex"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

func openNoop(t *testing.T) (hal.Device, hal.Queue) {
	t.Helper()
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() {
		openDev.Device.Destroy()
		instance.Destroy()
	})
	return openDev.Device, openDev.Queue
}

func pngAsset(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))); err != nil {
		t.Fatalf("png.Encode() error: %v", err)
	}
	return buf.Bytes()
}

// TestPassFramesOnHAL drives the UI pass through several frames on the
// hal noop backend, then checks that shutdown leaves nothing alive.
func TestPassFramesOnHAL(t *testing.T) {
	device, queue := openNoop(t)
	dev, err := native.New(device, queue, native.Config{})
	if err != nil {
		t.Fatalf("native.New() error: %v", err)
	}
	defer dev.Close()

	target, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "swapchain",
		Size:          hal.Extent3D{Width: 320, Height: 240, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		t.Fatalf("CreateTexture() error: %v", err)
	}
	defer device.DestroyTexture(target)
	view, err := device.CreateTextureView(target, &hal.TextureViewDescriptor{
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		t.Fatalf("CreateTextureView() error: %v", err)
	}
	defer device.DestroyTextureView(view)

	assets := fstest.MapFS{"icons/logo.png": {Data: pngAsset(t, 16, 16)}}
	p := uistream.New(uistream.WithLoader(imagestore.NewFSLoader(assets)))
	if err := p.OnInitDevice(dev); err != nil {
		t.Fatalf("OnInitDevice() error: %v", err)
	}
	if err := p.OnSwapchainCreated(uistream.Swapchain{
		Width: 320, Height: 240, Format: gpucore.FormatBGRA8Unorm,
	}); err != nil {
		t.Fatalf("OnSwapchainCreated() error: %v", err)
	}

	const frames = 2
	fences := make([]gpucore.FenceID, frames)
	for i := range fences {
		if fences[i], err = dev.CreateFence(); err != nil {
			t.Fatalf("CreateFence() error: %v", err)
		}
	}

	logo, err := p.Images().Load("icons/logo.png")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	font, err := p.GetFont(text.DefaultFamily, 18)
	if err != nil {
		t.Fatalf("GetFont() error: %v", err)
	}

	for i := range 5 {
		slot := i % frames
		if done, err := dev.WaitFence(fences[slot], time.Second); err != nil || !done {
			t.Fatalf("frame %d: WaitFence() = %v, %v", i, done, err)
		}
		p.BeginFrame(slot)

		_, textVerts := text.Measure(p.Fonts(), font, "hello")
		buf, err := p.RequestUIBuffer(6 + 6 + textVerts)
		if err != nil {
			t.Fatalf("frame %d: RequestUIBuffer() error: %v", i, err)
		}
		buf = vertex.Rect(buf, 10, 10, 100, 40, p.WhiteUV(), vertex.RGBA(40, 40, 40, 255))
		p.SubmitRectangle()
		buf = vertex.Quad(buf, 110, 10, 126, 26, atlas.UVRect{U1: 1, V1: 1}, vertex.RGBA(255, 255, 255, 255))
		if err := p.SubmitImage(logo); err != nil {
			t.Fatalf("frame %d: SubmitImage() error: %v", i, err)
		}
		rest, _ := text.WriteString(buf, p.Fonts(), font, "hello", 12, 30, vertex.RGBA(255, 255, 255, 255))
		p.SubmitText(len(buf) - len(rest))

		rec, err := dev.BeginCommands("frame")
		if err != nil {
			t.Fatalf("frame %d: BeginCommands() error: %v", i, err)
		}
		frame := gpucore.Frame{Slot: slot, Commands: rec}
		if err := p.UploadGPUData(frame); err != nil {
			t.Fatalf("frame %d: UploadGPUData() error: %v", i, err)
		}
		rec.(*native.Recorder).ClearTarget(view, gputypes.Color{A: 1})
		p.Execute(frame)
		if err := dev.Submit(rec, fences[slot]); err != nil {
			t.Fatalf("frame %d: Submit() error: %v", i, err)
		}
	}

	if st := p.Stats(); st.Draws == 0 || st.Dropped != 0 {
		t.Errorf("Stats() = %+v, want draws and no drops", st)
	}

	p.Images().Release(logo)
	for _, f := range fences {
		if done, err := dev.WaitFence(f, time.Second); err != nil || !done {
			t.Fatalf("final WaitFence() = %v, %v", done, err)
		}
	}
	if report := p.OnDestroyDevice(); report.Count() != 0 {
		t.Errorf("leaks = %v, want none", report.Images)
	}
	for _, f := range fences {
		dev.DestroyFence(f)
	}

	st := dev.Stats()
	if live := st.Buffers + st.Images + st.Views + st.Samplers + st.Descriptors + st.Pipelines + st.Fences; live != 0 {
		t.Errorf("device Stats() = %+v after shutdown, want no live resources", st)
	}
}
