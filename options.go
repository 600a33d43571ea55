package uistream

import (
	"io/fs"
	"log/slog"

	"github.com/gogpu/uistream/atlas"
	"github.com/gogpu/uistream/descriptor"
	"github.com/gogpu/uistream/gpucore"
	"github.com/gogpu/uistream/imagestore"
	"github.com/gogpu/uistream/text"
	"github.com/gogpu/uistream/vertex"
)

// Frames in flight bounds.
const (
	DefaultFramesInFlight = 2
	MaxFramesInFlight     = 8
)

// Config holds the configuration of a Pass. The per-component configs
// take their FramesInFlight and Logger from the Pass.
type Config struct {
	// FramesInFlight is how many frames the GPU may execute while the CPU
	// records the next. It sizes the dying atlas slots, the in-use tracker
	// and the release lag of every ring. Default 2, range 1..8.
	FramesInFlight int

	Atlas       atlas.Config
	Vertex      vertex.Config
	Descriptors descriptor.Config
	Images      imagestore.Config
	Fonts       text.Config

	// Loader resolves image asset paths. Nil disables image loading.
	Loader imagestore.Loader

	// Logger receives diagnostics. Nil means the package Logger at
	// OnInitDevice.
	Logger *slog.Logger
}

// DefaultConfig returns the default pass configuration. The atlas stores
// white RGBA texels with glyph coverage in alpha, so glyphs, rectangles
// and images share one shader.
func DefaultConfig() Config {
	a := atlas.DefaultConfig()
	a.Format = gpucore.FormatRGBA8Unorm
	return Config{
		FramesInFlight: DefaultFramesInFlight,
		Atlas:          a,
		Vertex:         vertex.Config{Capacity: vertex.DefaultCapacity},
		Descriptors:    descriptor.Config{Capacity: descriptor.DefaultCapacity},
		Images:         imagestore.DefaultConfig(),
	}
}

func (c Config) withDefaults() Config {
	switch {
	case c.FramesInFlight <= 0:
		c.FramesInFlight = DefaultFramesInFlight
	case c.FramesInFlight > MaxFramesInFlight:
		c.FramesInFlight = MaxFramesInFlight
	}
	if c.Logger == nil {
		c.Logger = Logger()
	}
	c.Atlas.FramesInFlight = c.FramesInFlight
	c.Atlas.Logger = c.Logger
	c.Vertex.FramesInFlight = c.FramesInFlight
	c.Vertex.Logger = c.Logger
	c.Descriptors.FramesInFlight = c.FramesInFlight
	c.Descriptors.Logger = c.Logger
	c.Images.FramesInFlight = c.FramesInFlight
	c.Images.Logger = c.Logger
	c.Fonts.Logger = c.Logger
	return c
}

// Option configures a Pass during creation.
//
// Example:
//
//	p := uistream.New(
//	    uistream.WithFramesInFlight(3),
//	    uistream.WithLoader(imagestore.NewDirLoader("assets")),
//	)
type Option func(*Config)

// WithConfig replaces the whole configuration.
func WithConfig(cfg Config) Option {
	return func(c *Config) {
		*c = cfg
	}
}

// WithFramesInFlight sets the number of frames in flight.
func WithFramesInFlight(n int) Option {
	return func(c *Config) {
		c.FramesInFlight = n
	}
}

// WithAtlasConfig sets the glyph atlas configuration.
func WithAtlasConfig(cfg atlas.Config) Option {
	return func(c *Config) {
		c.Atlas = cfg
	}
}

// WithVertexCapacity sets the number of vertices in the stream.
func WithVertexCapacity(n int) Option {
	return func(c *Config) {
		c.Vertex.Capacity = n
	}
}

// WithDescriptorCapacity sets the number of image descriptor sets, the
// ceiling on distinct image draws across the frames in flight.
func WithDescriptorCapacity(n int) Option {
	return func(c *Config) {
		c.Descriptors.Capacity = n
	}
}

// WithMaxImageDimension bounds the longest side of loaded images.
func WithMaxImageDimension(n int) Option {
	return func(c *Config) {
		c.Images.MaxDimension = n
	}
}

// WithLoader sets the image asset loader.
func WithLoader(l imagestore.Loader) Option {
	return func(c *Config) {
		c.Loader = l
	}
}

// WithFonts sets the file system font families resolve in.
func WithFonts(fsys fs.FS) Option {
	return func(c *Config) {
		c.Fonts.Fonts = fsys
	}
}

// WithRasterizer sets the glyph rasterizer.
func WithRasterizer(r text.Rasterizer) Option {
	return func(c *Config) {
		c.Fonts.Rasterizer = r
	}
}

// WithShaping enables HarfBuzz pair kerning.
func WithShaping(enabled bool) Option {
	return func(c *Config) {
		c.Fonts.Shaping = enabled
	}
}

// WithLogger sets the logger of the pass and its components.
func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
