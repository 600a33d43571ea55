// Command uistream-demo streams a small UI through the pass for a number
// of frames on the headless hal backend and prints the resulting stats.
package main

import (
	"flag"
	"fmt"
	"io/fs"
	"log"
	"log/slog"
	"os"
	"path"
	"strings"
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

func main() {
	var (
		width   = flag.Int("width", 800, "swapchain width")
		height  = flag.Int("height", 600, "swapchain height")
		frames  = flag.Int("frames", 120, "frames to render")
		flight  = flag.Int("flight", uistream.DefaultFramesInFlight, "frames in flight")
		images  = flag.String("images", "", "directory of images to draw")
		message = flag.String("text", "Hello, uistream!", "text to draw")
		size    = flag.Float64("size", 24, "font size in pixels")
		verbose = flag.Bool("v", false, "log pass diagnostics")
	)
	flag.Parse()

	if *verbose {
		uistream.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	device, queue, cleanup, err := openHeadless()
	if err != nil {
		log.Fatalf("Failed to open device: %v", err)
	}
	defer cleanup()

	dev, err := native.New(device, queue, native.Config{Logger: uistream.Logger()})
	if err != nil {
		log.Fatalf("Failed to wrap device: %v", err)
	}
	defer dev.Close()

	var assets fs.FS = os.DirFS(".")
	if *images != "" {
		assets = os.DirFS(*images)
	}
	p := uistream.New(
		uistream.WithFramesInFlight(*flight),
		uistream.WithLoader(imagestore.NewFSLoader(assets)),
	)
	if err := p.OnInitDevice(dev); err != nil {
		log.Fatalf("Failed to initialize pass: %v", err)
	}
	sc := uistream.Swapchain{Width: *width, Height: *height, Format: gpucore.FormatBGRA8Unorm}
	if err := p.OnSwapchainCreated(sc); err != nil {
		log.Fatalf("Failed to create swapchain: %v", err)
	}

	target, err := newTarget(device, *width, *height)
	if err != nil {
		log.Fatalf("Failed to create target: %v", err)
	}
	defer target.destroy(device)

	var loaded []*imagestore.Image
	if *images != "" {
		loaded = loadImages(p, assets)
	}

	d := demo{pass: p, dev: dev, view: target.view, images: loaded, text: *message, size: *size}
	start := time.Now()
	if err := d.run(*frames, *flight); err != nil {
		log.Fatalf("Frame loop failed: %v", err)
	}
	elapsed := time.Since(start)

	for _, img := range loaded {
		p.Images().Release(img)
	}
	st := p.Stats()
	report := p.OnDestroyDevice()
	if report.Count() > 0 {
		log.Printf("Leaked images: %s", strings.Join(report.Images, ", "))
	}

	log.Printf("Rendered %d frames in %v (%dx%d, %d in flight)", *frames, elapsed, *width, *height, *flight)
	log.Printf("Draws: %d, dropped vertices: %d", st.Draws, st.Dropped)
	log.Printf("Atlas: %s", st.Atlas)
	log.Printf("Fonts: %d resources, %d glyphs, %d placeholders", st.Fonts.Resources, st.Fonts.Glyphs, st.Fonts.Placeholders)
	log.Printf("Images: %d loads, %d hits, %d freed", st.Images.Loads, st.Images.Hits, st.Images.Freed)
}

func openHeadless() (hal.Device, hal.Queue, func(), error) {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return nil, nil, nil, err
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return nil, nil, nil, fmt.Errorf("no adapter")
	}
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return nil, nil, nil, err
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup, nil
}

type renderTarget struct {
	tex  hal.Texture
	view hal.TextureView
}

func newTarget(device hal.Device, w, h int) (*renderTarget, error) {
	tex, err := device.CreateTexture(&hal.TextureDescriptor{
		Label:         "demo_target",
		Size:          hal.Extent3D{Width: uint32(w), Height: uint32(h), DepthOrArrayLayers: 1}, //nolint:gosec // flag values
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Usage:         gputypes.TextureUsageRenderAttachment,
	})
	if err != nil {
		return nil, err
	}
	view, err := device.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label:         "demo_target_view",
		Format:        gputypes.TextureFormatBGRA8Unorm,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		device.DestroyTexture(tex)
		return nil, err
	}
	return &renderTarget{tex: tex, view: view}, nil
}

func (t *renderTarget) destroy(device hal.Device) {
	device.DestroyTextureView(t.view)
	device.DestroyTexture(t.tex)
}

var imageExts = map[string]bool{
	".png": true, ".jpg": true, ".jpeg": true, ".gif": true,
	".bmp": true, ".tif": true, ".tiff": true, ".webp": true,
}

func loadImages(p *uistream.Pass, assets fs.FS) []*imagestore.Image {
	entries, err := fs.ReadDir(assets, ".")
	if err != nil {
		log.Printf("Failed to list images: %v", err)
		return nil
	}
	var out []*imagestore.Image
	for _, e := range entries {
		if e.IsDir() || !imageExts[strings.ToLower(path.Ext(e.Name()))] {
			continue
		}
		img, err := p.Images().Load(e.Name())
		if err != nil {
			log.Printf("Skipping %s: %v", e.Name(), err)
			continue
		}
		out = append(out, img)
	}
	return out
}

type demo struct {
	pass   *uistream.Pass
	dev    *native.Device
	view   hal.TextureView
	images []*imagestore.Image
	text   string
	size   float64
}

func (d *demo) run(frames, flight int) error {
	fences := make([]gpucore.FenceID, flight)
	for i := range fences {
		f, err := d.dev.CreateFence()
		if err != nil {
			return err
		}
		fences[i] = f
		defer d.dev.DestroyFence(f)
	}
	font, err := d.pass.GetFont(text.DefaultFamily, d.size)
	if err != nil {
		return err
	}

	for i := range frames {
		slot := i % flight
		if _, err := d.dev.WaitFence(fences[slot], time.Second); err != nil {
			return err
		}
		d.pass.BeginFrame(slot)
		if err := d.record(font, i); err != nil {
			return err
		}

		rec, err := d.dev.BeginCommands("demo_frame")
		if err != nil {
			return err
		}
		frame := gpucore.Frame{Slot: slot, Commands: rec}
		if err := d.pass.UploadGPUData(frame); err != nil {
			return err
		}
		rec.(*native.Recorder).ClearTarget(d.view, gputypes.Color{R: 0.1, G: 0.1, B: 0.12, A: 1})
		d.pass.Execute(frame)
		if err := d.dev.Submit(rec, fences[slot]); err != nil {
			return err
		}
	}
	for _, f := range fences {
		if _, err := d.dev.WaitFence(f, time.Second); err != nil {
			return err
		}
	}
	return nil
}

// record writes one frame: a panel, a counter line and a row of images.
func (d *demo) record(font *text.Font, frame int) error {
	fonts := d.pass.Fonts()
	counter := fmt.Sprintf("frame %d", frame)
	_, msgVerts := text.Measure(fonts, font, d.text)
	_, cntVerts := text.Measure(fonts, font, counter)
	n := vertex.QuadVertices*(1+len(d.images)) + msgVerts + cntVerts

	buf, err := d.pass.RequestUIBuffer(n)
	if err != nil {
		return err
	}
	buf = vertex.Rect(buf, 20, 20, 420, 140, d.pass.WhiteUV(), vertex.RGBA(30, 30, 40, 230))
	d.pass.SubmitRectangle()

	baseline := 20 + float32(font.Metrics.Ascent) + 12
	white := vertex.RGBA(255, 255, 255, 255)
	rest, _ := text.WriteString(buf, fonts, font, d.text, 32, baseline, white)
	rest, _ = text.WriteString(rest, fonts, font, counter, 32, baseline+float32(font.Metrics.LineHeight), white)
	d.pass.SubmitText(len(buf) - len(rest))
	buf = rest

	x := float32(20)
	full := atlas.UVRect{U1: 1, V1: 1}
	for _, img := range d.images {
		buf = vertex.Quad(buf, x, 160, x+64, 224, full, white)
		if err := d.pass.SubmitImage(img); err != nil {
			return err
		}
		x += 72
	}
	return nil
}
