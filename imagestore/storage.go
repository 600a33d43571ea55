package imagestore

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/internal/logging"
)

// Default configuration values.
const (
	DefaultMaxDimension   = 4096
	DefaultFramesInFlight = 2
	DefaultUploadTimeout  = time.Second
)

// ErrStorageClosed is returned by operations on a closed Storage.
var ErrStorageClosed = errors.New("imagestore: storage closed")

// Config configures a Storage.
type Config struct {
	// MaxDimension bounds the longest side of decoded images. Larger images
	// are downscaled. Clamped to the device's maximum texture dimension.
	MaxDimension int

	// FramesInFlight is the number of frame slots.
	FramesInFlight int

	// UploadTimeout bounds the per-frame upload fence wait.
	UploadTimeout time.Duration

	// Logger receives cache diagnostics. Nil means silent.
	Logger *slog.Logger
}

// DefaultConfig returns the default storage configuration.
func DefaultConfig() Config {
	return Config{
		MaxDimension:   DefaultMaxDimension,
		FramesInFlight: DefaultFramesInFlight,
		UploadTimeout:  DefaultUploadTimeout,
	}
}

func (c Config) withDefaults(limits gpucore.Limits) Config {
	if c.MaxDimension <= 0 {
		c.MaxDimension = DefaultMaxDimension
	}
	if limits.MaxImageDimension > 0 && c.MaxDimension > limits.MaxImageDimension {
		c.MaxDimension = limits.MaxImageDimension
	}
	if c.FramesInFlight <= 0 {
		c.FramesInFlight = DefaultFramesInFlight
	}
	if c.UploadTimeout <= 0 {
		c.UploadTimeout = DefaultUploadTimeout
	}
	c.Logger = logging.OrNop(c.Logger)
	return c
}

// Stats reports cache activity.
type Stats struct {
	Cached   int
	Doomed   int
	Tracked  int
	Loads    int
	Hits     int
	Freed    int
	Deferred int
}

// String returns a string representation of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("Stats{cached=%d doomed=%d tracked=%d loads=%d hits=%d freed=%d deferred=%d}",
		s.Cached, s.Doomed, s.Tracked, s.Loads, s.Hits, s.Freed, s.Deferred)
}

// Storage is the image cache.
//
// Images are keyed by asset path. Each cached image carries one reference
// owned by the cache, so a freshly loaded image has a count of two. An
// external Release is honored only when the count is exactly two; it then
// removes the image from the cache and schedules its destruction, which
// CollectGarbage performs once no frame in flight draws it.
//
// Storage is not safe for concurrent use.
type Storage struct {
	dev    gpucore.Device
	loader Loader
	cfg    Config
	log    *slog.Logger

	cache   map[string]*Image
	doomed  []*Image
	tracker *InUseTracker
	uploads *uploader
	slot    int
	closed  bool

	stats Stats
}

// New creates an image cache reading assets through loader.
func New(dev gpucore.Device, loader Loader, cfg Config) (*Storage, error) {
	cfg = cfg.withDefaults(dev.Limits())
	up, err := newUploader(dev, cfg.FramesInFlight, cfg.UploadTimeout, cfg.Logger)
	if err != nil {
		return nil, err
	}
	return &Storage{
		dev:     dev,
		loader:  loader,
		cfg:     cfg,
		log:     cfg.Logger,
		cache:   make(map[string]*Image),
		tracker: NewInUseTracker(cfg.FramesInFlight),
		uploads: up,
	}, nil
}

// BeginFrame selects the upload slot for the frame about to be recorded.
func (s *Storage) BeginFrame(slot int) {
	s.slot = slot % s.cfg.FramesInFlight
	s.uploads.begin(s.slot)
}

// Load returns the image at assetPath, loading and uploading it on a cache
// miss. The caller owns one reference and must Release it.
func (s *Storage) Load(assetPath string) (*Image, error) {
	if s.closed {
		return nil, ErrStorageClosed
	}
	if img, ok := s.cache[assetPath]; ok {
		img.refs++
		s.stats.Hits++
		return img, nil
	}
	if s.loader == nil {
		return nil, fmt.Errorf("imagestore: load %q: no loader", assetPath)
	}

	rc, err := s.loader.Open(assetPath)
	if err != nil {
		return nil, fmt.Errorf("imagestore: open %q: %w", assetPath, err)
	}
	defer rc.Close()
	pixels, format, err := decodeRGBA(rc, s.cfg.MaxDimension)
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", assetPath, err)
	}

	b := pixels.Bounds()
	img := &Image{
		path:   assetPath,
		format: format,
		width:  b.Dx(),
		height: b.Dy(),
	}
	img.image, err = s.dev.CreateImage(gpucore.ImageDesc{
		Label:  assetPath,
		Width:  img.width,
		Height: img.height,
		Layers: 1,
		Format: gpucore.FormatRGBA8Unorm,
		Usage:  gpucore.ImageUsageCopyDst | gpucore.ImageUsageSampled,
	})
	if err != nil {
		return nil, fmt.Errorf("imagestore: create image %q: %w", assetPath, err)
	}
	img.view, err = s.dev.CreateImageView(img.image)
	if err != nil {
		s.dev.DestroyImage(img.image)
		return nil, fmt.Errorf("imagestore: create view %q: %w", assetPath, err)
	}
	if err := s.uploads.record(img.image, pixels); err != nil {
		s.dev.DestroyImageView(img.view)
		s.dev.DestroyImage(img.image)
		return nil, fmt.Errorf("imagestore: upload %q: %w", assetPath, err)
	}

	img.refs = 2
	img.cached = true
	s.cache[assetPath] = img
	s.stats.Loads++
	s.log.Debug("imagestore: loaded", "path", assetPath, "format", format,
		"width", img.width, "height", img.height)
	return img, nil
}

// Acquire adds an external reference to img.
func (s *Storage) Acquire(img *Image) *Image {
	img.refs++
	return img
}

// Release drops one external reference. It reports whether the image was
// evicted, which happens only when the count is exactly two at the moment
// of release. Eviction schedules destruction for CollectGarbage.
func (s *Storage) Release(img *Image) bool {
	switch {
	case img == nil:
		return false
	case !img.cached || img.refs < 2:
		s.log.Warn("imagestore: release of unreferenced image", "path", img.path, "refs", img.refs)
		return false
	case img.refs > 2:
		img.refs--
		s.stats.Deferred++
		return false
	}
	img.refs = 0
	img.cached = false
	delete(s.cache, img.path)
	s.doomed = append(s.doomed, img)
	s.log.Debug("imagestore: evicted", "path", img.path)
	return true
}

// MarkInUse records that img is drawn in the frame recorded on slot.
func (s *Storage) MarkInUse(img *Image, slot int) {
	s.tracker.MarkInUse(img, slot)
}

// InUse reports whether a frame in flight still draws img.
func (s *Storage) InUse(img *Image) bool { return s.tracker.InUse(img) }

// CollectGarbage ends the frame recorded on slot: it counts down every
// slot of the in-use tracker (see InUseTracker) and frees every evicted
// image no frame in flight still draws. It returns the number of images
// freed. slot only labels the diagnostics.
func (s *Storage) CollectGarbage(slot int) int {
	s.tracker.Sweep()
	kept := s.doomed[:0]
	freed := 0
	for _, img := range s.doomed {
		if s.tracker.InUse(img) {
			kept = append(kept, img)
			continue
		}
		s.free(img)
		freed++
	}
	clear(s.doomed[len(kept):])
	s.doomed = kept
	if freed > 0 {
		s.log.Debug("imagestore: collected", "slot", slot, "freed", freed, "pending", len(kept))
	}
	return freed
}

func (s *Storage) free(img *Image) {
	if img.freed {
		return
	}
	s.tracker.Forget(img)
	s.dev.DestroyImageView(img.view)
	s.dev.DestroyImage(img.image)
	img.view = gpucore.InvalidID
	img.image = gpucore.InvalidID
	img.freed = true
	s.stats.Freed++
}

// Flush submits the uploads recorded during the current frame.
func (s *Storage) Flush() error {
	if s.closed {
		return nil
	}
	return s.uploads.flush()
}

// Lookup returns the cached image for assetPath without adding a reference.
func (s *Storage) Lookup(assetPath string) (*Image, bool) {
	img, ok := s.cache[assetPath]
	return img, ok
}

// Len returns the number of cached images.
func (s *Storage) Len() int { return len(s.cache) }

// Stats returns cache statistics.
func (s *Storage) Stats() Stats {
	st := s.stats
	st.Cached = len(s.cache)
	st.Doomed = len(s.doomed)
	st.Tracked = s.tracker.Len()
	return st
}

// Close frees every image. Images still cached are leaks: each is logged
// and force-released. Close returns the paths of the leaked images.
func (s *Storage) Close() []string {
	if s.closed {
		return nil
	}
	s.closed = true
	s.uploads.close()

	var leaked []string
	for p, img := range s.cache {
		s.log.Warn("imagestore: image leaked", "path", p, "refs", img.refs-1)
		leaked = append(leaked, p)
		img.cached = false
		img.refs = 0
		s.free(img)
	}
	clear(s.cache)
	for _, img := range s.doomed {
		s.free(img)
	}
	s.doomed = nil
	slices.Sort(leaked)
	return leaked
}
