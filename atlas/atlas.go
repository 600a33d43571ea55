// Package atlas implements the glyph atlas: a layered image filled by a
// shelf packer, fed through a pool of staging buffers, and grown by
// reallocation without ever moving a packed glyph.
//
// Growth allocates an image with one more layer and copies the old layers
// across on the next Flush. The old image is retired into the dying slot of
// the frame that recorded the copy and destroyed when that frame slot is
// reused, after every frame that could still sample it has completed.
package atlas

import (
	"fmt"
	"log/slog"

	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/internal/logging"
)

// Default atlas settings.
const (
	// DefaultLayerSize is the default layer dimension (1024x1024).
	DefaultLayerSize = 1024

	// MinLayerSize is the minimum layer dimension (64x64).
	MinLayerSize = 64

	// DefaultMaxLayers bounds atlas growth.
	DefaultMaxLayers = 16

	// DefaultShelfPadding is the padding between packed regions.
	DefaultShelfPadding = 1

	// DefaultFramesInFlight is the number of frames the GPU may be behind.
	DefaultFramesInFlight = 2

	// whiteSize is the side of the opaque block reserved at the origin of
	// layer 0.
	whiteSize = 4
)

// Config holds configuration for creating an Atlas.
type Config struct {
	// Width and Height are the layer dimensions. Default DefaultLayerSize.
	Width  int
	Height int

	// InitialLayers is the layer count of the first image. Default 1.
	InitialLayers int

	// MaxLayers bounds growth. Default DefaultMaxLayers, clamped to the
	// device limit.
	MaxLayers int

	// Padding is the spacing between regions. Default DefaultShelfPadding.
	Padding int

	// Format is the texel format. Default gpucore.FormatR8Unorm.
	Format gpucore.Format

	// FramesInFlight sizes the dying-image and staging slot arrays.
	FramesInFlight int

	// StagingBufferSize is the size of one staging buffer.
	StagingBufferSize int

	// Logger receives diagnostics. Nil means silent.
	Logger *slog.Logger
}

// DefaultConfig returns the default atlas configuration.
func DefaultConfig() Config {
	return Config{
		Width:             DefaultLayerSize,
		Height:            DefaultLayerSize,
		InitialLayers:     1,
		MaxLayers:         DefaultMaxLayers,
		Padding:           DefaultShelfPadding,
		Format:            gpucore.FormatR8Unorm,
		FramesInFlight:    DefaultFramesInFlight,
		StagingBufferSize: DefaultStagingBufferSize,
	}
}

func (c Config) withDefaults(limits gpucore.Limits) Config {
	d := DefaultConfig()
	if c.Width < MinLayerSize {
		c.Width = d.Width
	}
	if c.Height < MinLayerSize {
		c.Height = d.Height
	}
	if limits.MaxImageDimension > 0 {
		c.Width = min(c.Width, limits.MaxImageDimension)
		c.Height = min(c.Height, limits.MaxImageDimension)
	}
	if c.InitialLayers < 1 {
		c.InitialLayers = 1
	}
	if c.MaxLayers < 1 {
		c.MaxLayers = d.MaxLayers
	}
	if limits.MaxImageLayers > 0 {
		c.MaxLayers = min(c.MaxLayers, limits.MaxImageLayers)
	}
	c.InitialLayers = min(c.InitialLayers, c.MaxLayers)
	if c.Padding < 0 {
		c.Padding = d.Padding
	}
	if c.Format.BytesPerPixel() == 0 {
		c.Format = d.Format
	}
	if c.FramesInFlight < 1 {
		c.FramesInFlight = d.FramesInFlight
	}
	if c.StagingBufferSize <= 0 {
		c.StagingBufferSize = d.StagingBufferSize
	}
	return c
}

// UVRect holds normalized texture coordinates of a region.
type UVRect struct {
	U0, V0 float32 // top-left
	U1, V1 float32 // bottom-right
	Layer  int
}

// Stats reports atlas usage.
type Stats struct {
	Layers          int
	Generation      uint64
	Glyphs          int
	Utilization     float64
	StagingBuffers  int
	PendingRegions  int
	DyingImages     int
	GrowthCount     int
	RegionsUploaded int
}

// String returns a human-readable representation of the stats.
func (s Stats) String() string {
	return fmt.Sprintf("Atlas: %d layers (gen %d), %d glyphs, %.1f%% used, %d staging, %d dying",
		s.Layers, s.Generation, s.Glyphs, s.Utilization*100, s.StagingBuffers, s.DyingImages)
}

type retired struct {
	image gpucore.ImageID
	view  gpucore.ViewID
}

// growth is an old image whose layers still have to be copied into the
// current one.
type growth struct {
	src    retired
	layers int
}

// Atlas is a growable layered glyph image. It is not safe for concurrent
// use; all calls happen on the submission goroutine.
type Atlas struct {
	dev gpucore.Device
	cfg Config
	log *slog.Logger

	packer  *Packer
	staging *StagingPool

	image      gpucore.ImageID
	view       gpucore.ViewID
	layers     int
	generation uint64
	pending    *growth

	dying [][]retired
	slot  int

	white    Region
	growths  int
	uploaded int
	closed   bool
}

// New creates an atlas and its first image. The opaque block used by
// untextured geometry is reserved and staged immediately.
func New(dev gpucore.Device, cfg Config) (*Atlas, error) {
	cfg = cfg.withDefaults(dev.Limits())
	a := &Atlas{
		dev:    dev,
		cfg:    cfg,
		log:    logging.OrNop(cfg.Logger),
		packer: NewPacker(cfg.Width, cfg.Height, cfg.InitialLayers, cfg.Padding),
		dying:  make([][]retired, cfg.FramesInFlight),
	}
	a.staging = NewStagingPool(dev, cfg.StagingBufferSize, cfg.FramesInFlight, a.log)

	img, view, err := a.createImage(cfg.InitialLayers)
	if err != nil {
		return nil, err
	}
	a.image, a.view, a.layers = img, view, cfg.InitialLayers

	white, err := a.Reserve(whiteSize, whiteSize)
	if err != nil {
		a.Close()
		return nil, err
	}
	pixels := make([]byte, whiteSize*whiteSize*cfg.Format.BytesPerPixel())
	for i := range pixels {
		pixels[i] = 0xFF
	}
	if err := a.Write(white, pixels); err != nil {
		a.Close()
		return nil, err
	}
	a.white = white

	a.log.Debug("atlas: created", "width", cfg.Width, "height", cfg.Height,
		"layers", cfg.InitialLayers, "format", cfg.Format)
	return a, nil
}

func (a *Atlas) createImage(layers int) (gpucore.ImageID, gpucore.ViewID, error) {
	img, err := a.dev.CreateImage(gpucore.ImageDesc{
		Label:  "glyph_atlas",
		Width:  a.cfg.Width,
		Height: a.cfg.Height,
		Layers: layers,
		Format: a.cfg.Format,
		Usage:  gpucore.ImageUsageCopySrc | gpucore.ImageUsageCopyDst | gpucore.ImageUsageSampled,
	})
	if err != nil {
		return gpucore.InvalidID, gpucore.InvalidID, fmt.Errorf("create atlas image: %w", err)
	}
	view, err := a.dev.CreateImageView(img)
	if err != nil {
		a.dev.DestroyImage(img)
		return gpucore.InvalidID, gpucore.InvalidID, fmt.Errorf("create atlas view: %w", err)
	}
	return img, view, nil
}

// Reserve packs a width x height region, growing the atlas by one layer
// when the current layers are exhausted.
func (a *Atlas) Reserve(width, height int) (Region, error) {
	if a.closed {
		return Region{}, ErrAtlasClosed
	}
	if width > a.cfg.Width || height > a.cfg.Height {
		return Region{}, fmt.Errorf("%w: %dx%d", ErrRegionTooLarge, width, height)
	}
	if r, ok := a.packer.Pack(width, height); ok {
		return r, nil
	}
	if err := a.grow(); err != nil {
		return Region{}, err
	}
	r, ok := a.packer.Pack(width, height)
	if !ok {
		return Region{}, fmt.Errorf("%w: %dx%d after growth", ErrAtlasFull, width, height)
	}
	return r, nil
}

// grow allocates an image with one more layer. Packed regions keep their
// layer and texel coordinates, so issued UVs stay valid.
func (a *Atlas) grow() error {
	if a.layers >= a.cfg.MaxLayers {
		return fmt.Errorf("%w: %d layers", ErrAtlasFull, a.layers)
	}
	layers := a.layers + 1
	img, view, err := a.createImage(layers)
	if err != nil {
		return err
	}

	old := retired{image: a.image, view: a.view}
	if a.pending == nil {
		a.pending = &growth{src: old, layers: a.layers}
	} else {
		// The intermediate image never received pixels nor a descriptor.
		a.retire(old)
	}

	a.image, a.view, a.layers = img, view, layers
	a.generation++
	a.growths++
	a.packer.Grow(layers)
	a.log.Debug("atlas: grown", "layers", layers, "generation", a.generation)
	return nil
}

func (a *Atlas) retire(r retired) {
	a.dying[a.slot] = append(a.dying[a.slot], r)
}

// Write stages pixels for a region returned by Reserve. Rows are tightly
// packed in the atlas format.
func (a *Atlas) Write(r Region, pixels []byte) error {
	if a.closed {
		return ErrAtlasClosed
	}
	return a.staging.Write(r, pixels, a.cfg.Format.BytesPerPixel())
}

// Insert reserves a region and stages its pixels.
func (a *Atlas) Insert(width, height int, pixels []byte) (Region, error) {
	r, err := a.Reserve(width, height)
	if err != nil {
		return Region{}, err
	}
	if err := a.Write(r, pixels); err != nil {
		return Region{}, err
	}
	return r, nil
}

// UV returns the normalized coordinates of a region. They depend only on
// the layer size, which never changes, so growth leaves them untouched.
func (a *Atlas) UV(r Region) UVRect {
	w, h := float32(a.cfg.Width), float32(a.cfg.Height)
	return UVRect{
		U0:    float32(r.X) / w,
		V0:    float32(r.Y) / h,
		U1:    float32(r.X+r.Width) / w,
		V1:    float32(r.Y+r.Height) / h,
		Layer: r.Layer,
	}
}

// WhiteUV returns coordinates inside the opaque block, for geometry that
// should render its vertex color unmodulated.
func (a *Atlas) WhiteUV() UVRect {
	uv := a.UV(a.white)
	cu, cv := (uv.U0+uv.U1)/2, (uv.V0+uv.V1)/2
	return UVRect{U0: cu, V0: cv, U1: cu, V1: cv, Layer: uv.Layer}
}

// WhiteRegion returns the opaque block.
func (a *Atlas) WhiteRegion() Region { return a.white }

// Flush records pending work into cmd: the layer copy of a pending growth
// first, then every staged region. It returns the number of regions copied.
func (a *Atlas) Flush(cmd gpucore.CommandRecorder) int {
	if a.closed {
		return 0
	}
	touched := false
	if g := a.pending; g != nil {
		copies := make([]gpucore.ImageCopy, g.layers)
		for i := range copies {
			copies[i] = gpucore.ImageCopy{
				SrcLayer: i,
				DstLayer: i,
				Width:    a.cfg.Width,
				Height:   a.cfg.Height,
			}
		}
		cmd.ImageBarrier(g.src.image, gpucore.ImageUsageSampled, gpucore.ImageUsageCopySrc)
		cmd.CopyImage(g.src.image, a.image, copies)
		a.retire(g.src)
		a.pending = nil
		touched = true
	}

	n := a.staging.Flush(cmd, a.image, a.slot)
	if n > 0 || touched {
		cmd.ImageBarrier(a.image, gpucore.ImageUsageCopyDst, gpucore.ImageUsageSampled)
	}
	a.uploaded += n
	return n
}

// BeginFrame destroys the images retired the last time slot was recorded
// and recycles that slot's staging buffers. The caller guarantees the
// slot's previous frame has completed.
func (a *Atlas) BeginFrame(slot int) {
	if a.closed {
		return
	}
	slot %= len(a.dying)
	for _, r := range a.dying[slot] {
		a.destroy(r)
	}
	if n := len(a.dying[slot]); n > 0 {
		a.log.Debug("atlas: retired images destroyed", "slot", slot, "count", n)
	}
	a.dying[slot] = a.dying[slot][:0]
	a.staging.Recycle(slot)
	a.slot = slot
}

func (a *Atlas) destroy(r retired) {
	a.dev.DestroyImageView(r.view)
	a.dev.DestroyImage(r.image)
}

// Image returns the current atlas image.
func (a *Atlas) Image() gpucore.ImageID { return a.image }

// View returns the view of the current atlas image.
func (a *Atlas) View() gpucore.ViewID { return a.view }

// Layers returns the current layer count.
func (a *Atlas) Layers() int { return a.layers }

// Generation increments every time the atlas image is replaced.
func (a *Atlas) Generation() uint64 { return a.generation }

// Format returns the texel format.
func (a *Atlas) Format() gpucore.Format { return a.cfg.Format }

// LayerSize returns the width and height of one layer.
func (a *Atlas) LayerSize() (int, int) { return a.cfg.Width, a.cfg.Height }

// Stats returns current usage statistics.
func (a *Atlas) Stats() Stats {
	dying := 0
	for _, d := range a.dying {
		dying += len(d)
	}
	return Stats{
		Layers:          a.layers,
		Generation:      a.generation,
		Glyphs:          a.packer.AllocCount(),
		Utilization:     a.packer.Utilization(),
		StagingBuffers:  a.staging.Buffers(),
		PendingRegions:  a.staging.Pending(),
		DyingImages:     dying,
		GrowthCount:     a.growths,
		RegionsUploaded: a.uploaded,
	}
}

// Close destroys the atlas image, every retired image and the staging
// buffers. The caller guarantees the GPU is idle.
func (a *Atlas) Close() {
	if a.closed {
		return
	}
	a.closed = true
	for i, d := range a.dying {
		for _, r := range d {
			a.destroy(r)
		}
		a.dying[i] = nil
	}
	if a.pending != nil {
		a.destroy(a.pending.src)
		a.pending = nil
	}
	if a.image != gpucore.InvalidID {
		a.destroy(retired{image: a.image, view: a.view})
	}
	a.staging.Close()
}
