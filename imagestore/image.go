package imagestore

import (
	"fmt"

	"github.com/gogpu/uistream/gpucore"
)

// Image is a cached, reference-counted GPU image.
//
// The reference count is shared between the cache, which holds one
// reference while the image is cached, and every external holder.
type Image struct {
	path   string
	format string
	width  int
	height int
	refs   int

	image gpucore.ImageID
	view  gpucore.ViewID

	cached bool
	freed  bool
}

// Path returns the asset path the image was loaded from.
func (img *Image) Path() string { return img.path }

// Format returns the name of the decoded format ("png", "jpeg", ...).
func (img *Image) Format() string { return img.format }

// Size returns the image dimensions in pixels after any downscaling.
func (img *Image) Size() (width, height int) { return img.width, img.height }

// View returns the image view bound by descriptor sets.
func (img *Image) View() gpucore.ViewID { return img.view }

// RefCount returns the externally visible reference count, including the
// cache's own reference while cached.
func (img *Image) RefCount() int { return img.refs }

// Cached reports whether the image is still in the cache.
func (img *Image) Cached() bool { return img.cached }

// Freed reports whether the GPU resources have been destroyed.
func (img *Image) Freed() bool { return img.freed }

// String returns a string representation of the image.
func (img *Image) String() string {
	return fmt.Sprintf("Image(%s %dx%d refs=%d)", img.path, img.width, img.height, img.refs)
}
