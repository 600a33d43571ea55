package imagestore

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"testing/fstest"

	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/internal/gputest"
)

func pngData(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 0x80, A: 0xff})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("png.Encode() error: %v", err)
	}
	return buf.Bytes()
}

func testAssets(t *testing.T) fstest.MapFS {
	t.Helper()
	return fstest.MapFS{
		"icons/a.png":    {Data: pngData(t, 8, 4)},
		"icons/b.png":    {Data: pngData(t, 16, 16)},
		"icons/c.png":    {Data: pngData(t, 4, 4)},
		"icons/d.png":    {Data: pngData(t, 2, 6)},
		"photos/big.png": {Data: pngData(t, 100, 50)},
		"broken.png":     {Data: []byte("not an image")},
	}
}

func newTestStorage(t *testing.T, dev *gputest.Device, cfg Config) *Storage {
	t.Helper()
	s, err := New(dev, NewFSLoader(testAssets(t)), cfg)
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	return s
}

func TestLoadCachesByPath(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestStorage(t, dev, DefaultConfig())
	defer s.Close()

	a, err := s.Load("icons/a.png")
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if a.RefCount() != 2 {
		t.Errorf("RefCount() after load = %d, want 2", a.RefCount())
	}
	if w, h := a.Size(); w != 8 || h != 4 {
		t.Errorf("Size() = %dx%d, want 8x4", w, h)
	}
	if a.Format() != "png" {
		t.Errorf("Format() = %q, want png", a.Format())
	}
	again, err := s.Load("icons/a.png")
	if err != nil {
		t.Fatalf("second Load() error: %v", err)
	}
	if again != a {
		t.Error("second Load() returned a different image")
	}
	if a.RefCount() != 3 {
		t.Errorf("RefCount() after second load = %d, want 3", a.RefCount())
	}
	st := s.Stats()
	if st.Loads != 1 || st.Hits != 1 || st.Cached != 1 {
		t.Errorf("Stats() = %v, want 1 load, 1 hit, 1 cached", st)
	}
	if dev.LiveImages() != 1 {
		t.Errorf("LiveImages() = %d, want 1", dev.LiveImages())
	}
}

func TestReleaseHonoredOnlyAtTwo(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestStorage(t, dev, DefaultConfig())
	defer s.Close()

	img, _ := s.Load("icons/a.png")
	s.Acquire(img) // second external holder

	if s.Release(img) {
		t.Fatal("Release() evicted an image with another holder")
	}
	if img.RefCount() != 2 || !img.Cached() {
		t.Fatalf("after deferred release refs=%d cached=%v, want 2 true", img.RefCount(), img.Cached())
	}
	if !s.Release(img) {
		t.Fatal("Release() at two references was not honored")
	}
	if img.Cached() {
		t.Error("evicted image still cached")
	}
	if _, ok := s.Lookup("icons/a.png"); ok {
		t.Error("Lookup() found an evicted image")
	}
	if img.Freed() {
		t.Error("Release() freed GPU resources directly")
	}
	if s.Release(img) {
		t.Error("Release() of an evicted image reported eviction")
	}

	s.BeginFrame(0)
	if n := s.CollectGarbage(0); n != 1 {
		t.Errorf("CollectGarbage() freed %d, want 1", n)
	}
	if !img.Freed() || dev.LiveImages() != 0 {
		t.Errorf("image not freed: freed=%v live=%d", img.Freed(), dev.LiveImages())
	}
	if st := s.Stats(); st.Deferred != 1 || st.Freed != 1 {
		t.Errorf("Stats() = %v, want 1 deferred, 1 freed", st)
	}
}

func TestDrawnImageNotFreedWhileInFlight(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestStorage(t, dev, Config{FramesInFlight: 2})
	defer s.Close()

	img, _ := s.Load("icons/b.png")

	// Frame 1 on slot 0 draws the image, then the caller releases it.
	s.BeginFrame(0)
	s.MarkInUse(img, 0)
	if !s.Release(img) {
		t.Fatal("Release() not honored")
	}
	if n := s.CollectGarbage(0); n != 0 {
		t.Fatalf("freed %d in the frame that drew it", n)
	}

	// Frame 2 on slot 1; frame 1 may still be executing.
	s.BeginFrame(1)
	if n := s.CollectGarbage(1); n != 0 {
		t.Fatalf("freed %d while the drawing frame may be in flight", n)
	}
	if img.Freed() {
		t.Fatal("image freed early")
	}

	// Frame 3 reuses slot 0: frame 1 has completed.
	s.BeginFrame(0)
	if n := s.CollectGarbage(0); n != 1 {
		t.Errorf("CollectGarbage() freed %d, want 1", n)
	}
	if !img.Freed() {
		t.Error("image not freed after frames in flight elapsed")
	}
}

func TestUploadsSubmittedPerSlot(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestStorage(t, dev, Config{FramesInFlight: 2})
	defer s.Close()

	s.BeginFrame(0)
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if len(dev.Submitted) != 0 {
		t.Fatalf("empty Flush() submitted %d recorders", len(dev.Submitted))
	}

	if _, err := s.Load("icons/a.png"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if _, err := s.Load("icons/b.png"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if err := s.Flush(); err != nil {
		t.Fatalf("Flush() error: %v", err)
	}
	if len(dev.Submitted) != 1 {
		t.Fatalf("submitted %d recorders, want 1", len(dev.Submitted))
	}
	if got := dev.Submitted[0].Count(gputest.OpCopyBufferToImage); got != 2 {
		t.Errorf("recorded %d image copies, want 2", got)
	}
	if dev.FenceWaits != 0 {
		t.Errorf("FenceWaits = %d, want 0 before the slot is reused", dev.FenceWaits)
	}

	// Slot 1 has nothing in flight.
	s.BeginFrame(1)
	if _, err := s.Load("photos/big.png"); err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if dev.FenceWaits != 0 {
		t.Errorf("FenceWaits = %d, want 0 on a fresh slot", dev.FenceWaits)
	}
	_ = s.Flush()

	// Slot 0 comes round: one wait however many uploads follow.
	staged := append([]gpucore.BufferID(nil), s.uploads.slots[0].staging...)
	if len(staged) != 2 {
		t.Fatalf("slot 0 holds %d staging buffers, want 2", len(staged))
	}
	s.BeginFrame(0)
	mustLoad(t, s, "icons/a.png") // cache hit, no upload
	if dev.FenceWaits != 0 {
		t.Errorf("cache hit waited on the fence %d times", dev.FenceWaits)
	}
	mustLoad(t, s, "icons/c.png")
	mustLoad(t, s, "icons/d.png")
	if dev.FenceWaits != 1 {
		t.Errorf("FenceWaits = %d, want 1 per frame", dev.FenceWaits)
	}
	for _, b := range staged {
		if dev.HasBuffer(b) {
			t.Errorf("staging buffer %d of the completed frame still alive", b)
		}
	}
	if got := len(s.uploads.slots[0].staging); got != 2 {
		t.Errorf("slot 0 holds %d staging buffers, want 2", got)
	}
}

func mustLoad(t *testing.T, s *Storage, p string) *Image {
	t.Helper()
	img, err := s.Load(p)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", p, err)
	}
	return img
}

func TestUploadFenceTimeout(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestStorage(t, dev, Config{FramesInFlight: 1})
	defer s.Close()

	s.BeginFrame(0)
	mustLoad(t, s, "icons/a.png")
	_ = s.Flush()

	dev.FenceTimeout = true
	s.BeginFrame(0)
	_, err := s.Load("icons/b.png")
	if !errors.Is(err, ErrUploadTimeout) {
		t.Fatalf("Load() error = %v, want ErrUploadTimeout", err)
	}
	if _, ok := s.Lookup("icons/b.png"); ok {
		t.Error("failed load left a cache entry")
	}
	if dev.LiveImages() != 1 {
		t.Errorf("LiveImages() = %d, want 1", dev.LiveImages())
	}

	waits := s.uploads.waits
	if _, err := s.Load("icons/b.png"); !errors.Is(err, ErrUploadTimeout) {
		t.Fatalf("second Load() error = %v, want ErrUploadTimeout", err)
	}
	if s.uploads.waits != waits {
		t.Errorf("waits = %d, want %d: fence waited twice in one frame", s.uploads.waits, waits)
	}

	dev.FenceTimeout = false
	s.BeginFrame(0)
	s.Release(mustLoad(t, s, "icons/b.png"))
}

func TestLoadDownscales(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestStorage(t, dev, Config{MaxDimension: 40})
	defer s.Close()

	img := mustLoad(t, s, "photos/big.png")
	if w, h := img.Size(); w != 40 || h != 20 {
		t.Errorf("Size() = %dx%d, want 40x20", w, h)
	}
	desc, ok := dev.Image(img.image)
	if !ok {
		t.Fatal("GPU image missing")
	}
	if desc.Width != 40 || desc.Height != 20 || desc.Layers != 1 {
		t.Errorf("image desc = %+v, want 40x20x1", desc)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path string
		fail string
		want error
	}{
		{name: "escaping path", path: "../secret.png", want: ErrInvalidPath},
		{name: "missing", path: "icons/none.png"},
		{name: "undecodable", path: "broken.png"},
		{name: "image creation", path: "icons/a.png", fail: "image", want: gputest.ErrInjected},
		{name: "view creation", path: "icons/a.png", fail: "view", want: gputest.ErrInjected},
		{name: "staging buffer", path: "icons/a.png", fail: "buffer", want: gputest.ErrInjected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := gputest.NewDevice()
			s := newTestStorage(t, dev, DefaultConfig())
			defer s.Close()
			if tt.fail != "" {
				dev.Fail[tt.fail] = true
			}
			_, err := s.Load(tt.path)
			if err == nil {
				t.Fatal("Load() succeeded")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Errorf("Load() error = %v, want %v", err, tt.want)
			}
			if s.Len() != 0 || dev.LiveImages() != 0 {
				t.Errorf("failed load left state: cached=%d images=%d", s.Len(), dev.LiveImages())
			}
		})
	}
}

func TestCloseReportsLeaks(t *testing.T) {
	dev := gputest.NewDevice()
	s := newTestStorage(t, dev, DefaultConfig())

	s.BeginFrame(0)
	b := mustLoad(t, s, "icons/b.png")
	a := mustLoad(t, s, "icons/a.png")
	evicted := mustLoad(t, s, "photos/big.png")
	s.MarkInUse(evicted, 0)
	s.Release(evicted)
	_ = s.Flush()

	leaked := s.Close()
	if len(leaked) != 2 || leaked[0] != "icons/a.png" || leaked[1] != "icons/b.png" {
		t.Errorf("Close() leaked = %v, want [icons/a.png icons/b.png]", leaked)
	}
	for _, img := range []*Image{a, b, evicted} {
		if !img.Freed() {
			t.Errorf("%v not freed at Close", img)
		}
	}
	if dev.Live() != 0 {
		t.Errorf("Live() = %d after Close, want 0", dev.Live())
	}
	if _, err := s.Load("icons/a.png"); !errors.Is(err, ErrStorageClosed) {
		t.Errorf("Load() after Close error = %v, want ErrStorageClosed", err)
	}
	if s.Close() != nil {
		t.Error("second Close() reported leaks")
	}
}

func TestNewFenceFailure(t *testing.T) {
	dev := gputest.NewDevice()
	dev.Fail["fence"] = true
	if _, err := New(dev, NewFSLoader(fstest.MapFS{}), DefaultConfig()); !errors.Is(err, gputest.ErrInjected) {
		t.Fatalf("New() error = %v, want ErrInjected", err)
	}
	if dev.Live() != 0 {
		t.Errorf("Live() = %d, want 0", dev.Live())
	}
}
