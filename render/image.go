package render

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	_ "image/png"  // register PNG decoder
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"  // register BMP decoder
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder
)

// ErrUnsupportedImage is returned for files that are not a decodable
// image format.
var ErrUnsupportedImage = errors.New("render: unsupported image format")

// ImageLoader reads image files and converts them to straight-alpha RGBA
// pixels ready for upload.
type ImageLoader struct {
	// Root is prepended to relative paths.
	Root string

	// MaxSize bounds both dimensions; larger images are downscaled to
	// fit, keeping their aspect ratio. Zero disables the bound.
	MaxSize int
}

// Resolve returns the file path for an image reference.
func (l ImageLoader) Resolve(path string) string {
	if l.Root == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(l.Root, path)
}

// Load reads and decodes the image at path.
func (l ImageLoader) Load(path string) (*image.NRGBA, error) {
	data, err := os.ReadFile(l.Resolve(path))
	if err != nil {
		return nil, fmt.Errorf("render: read image: %w", err)
	}
	return l.Decode(data)
}

// Decode converts encoded image bytes to NRGBA pixels.
func (l ImageLoader) Decode(data []byte) (*image.NRGBA, error) {
	if !filetype.IsImage(data) {
		return nil, ErrUnsupportedImage
	}
	src, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		if errors.Is(err, image.ErrFormat) {
			return nil, ErrUnsupportedImage
		}
		return nil, fmt.Errorf("render: decode image: %w", err)
	}

	b := src.Bounds()
	if b.Empty() {
		return nil, fmt.Errorf("render: %s image is empty", format)
	}
	if l.MaxSize > 0 && (b.Dx() > l.MaxSize || b.Dy() > l.MaxSize) {
		return imaging.Fit(src, l.MaxSize, l.MaxSize, imaging.Lanczos), nil
	}
	return imaging.Clone(src), nil
}
