package imagestore

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"io"
	"io/fs"
	"os"
	"path"

	_ "golang.org/x/image/bmp"  // register BMP decoder
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// Decoding errors.
var (
	// ErrEmptyImage is returned for images with no pixels.
	ErrEmptyImage = errors.New("imagestore: empty image")

	// ErrInvalidPath is returned for asset paths that are not valid fs paths.
	ErrInvalidPath = errors.New("imagestore: invalid asset path")
)

// Loader resolves asset paths to image data. It is the asset-loading
// collaborator; asset paths are the only identifiers Storage accepts.
type Loader interface {
	Open(assetPath string) (io.ReadCloser, error)
}

// FSLoader loads assets from a file system.
type FSLoader struct {
	fsys fs.FS
}

// NewFSLoader creates a loader reading from fsys.
func NewFSLoader(fsys fs.FS) *FSLoader {
	return &FSLoader{fsys: fsys}
}

// NewDirLoader creates a loader reading from the directory root.
func NewDirLoader(root string) *FSLoader {
	return NewFSLoader(os.DirFS(root))
}

// Open opens an asset. Paths are slash separated and relative to the root.
func (l *FSLoader) Open(assetPath string) (io.ReadCloser, error) {
	p := path.Clean(assetPath)
	if !fs.ValidPath(p) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, assetPath)
	}
	return l.fsys.Open(p)
}

// decodeRGBA decodes PNG, JPEG, GIF, BMP, TIFF or WebP data into a
// premultiplied RGBA image at the origin, scaled down to fit maxDim.
func decodeRGBA(r io.Reader, maxDim int) (*image.RGBA, string, error) {
	src, format, err := image.Decode(r)
	if err != nil {
		return nil, "", fmt.Errorf("imagestore: decode: %w", err)
	}
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= 0 || h <= 0 {
		return nil, format, ErrEmptyImage
	}

	if maxDim > 0 && (w > maxDim || h > maxDim) {
		dw, dh := fitWithin(w, h, maxDim)
		dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
		xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, b, xdraw.Src, nil)
		return dst, format, nil
	}

	if rgba, ok := src.(*image.RGBA); ok && b.Min == (image.Point{}) && rgba.Stride == 4*w {
		return rgba, format, nil
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), src, b.Min, xdraw.Src)
	return dst, format, nil
}

// fitWithin scales w x h down so the longer side equals maxDim.
func fitWithin(w, h, maxDim int) (int, int) {
	if w >= h {
		return maxDim, max(1, h*maxDim/w)
	}
	return max(1, w*maxDim/h), maxDim
}
