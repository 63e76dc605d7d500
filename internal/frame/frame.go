// Package frame decodes still video frames and bounds their size before they
// are handed to a barcode decoder.
package frame

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// MaxBytes caps a single encoded frame. A 4K JPEG from a phone camera stays
// well below this.
const MaxBytes = 16 << 20

// ErrUnsupported is returned for data that is not a known image format.
var ErrUnsupported = errors.New("frame: unsupported image format")

var frameExts = map[string]string{
	".jpg": "jpeg", ".jpeg": "jpeg", ".png": "png", ".gif": "gif",
	".webp": "webp", ".bmp": "bmp", ".tif": "tiff", ".tiff": "tiff",
}

// IsFrameFile reports whether path has an extension Load can decode.
func IsFrameFile(path string) bool {
	_, ok := frameExts[strings.ToLower(filepath.Ext(path))]
	return ok
}

// Sniff returns the image format of data based on its magic bytes, or "".
func Sniff(data []byte) string {
	switch {
	case bytes.HasPrefix(data, []byte{0xFF, 0xD8, 0xFF}):
		return "jpeg"
	case bytes.HasPrefix(data, []byte("\x89PNG\r\n\x1a\n")):
		return "png"
	case bytes.HasPrefix(data, []byte("GIF8")):
		return "gif"
	case len(data) >= 12 && string(data[0:4]) == "RIFF" && string(data[8:12]) == "WEBP":
		return "webp"
	case bytes.HasPrefix(data, []byte("BM")):
		return "bmp"
	case bytes.HasPrefix(data, []byte("II*\x00")), bytes.HasPrefix(data, []byte("MM\x00*")):
		return "tiff"
	default:
		return ""
	}
}

// Decode decodes one encoded frame.
func Decode(data []byte) (image.Image, error) {
	if len(data) > MaxBytes {
		return nil, fmt.Errorf("frame: %d bytes exceeds limit", len(data))
	}
	format := Sniff(data)
	if format == "" {
		return nil, ErrUnsupported
	}
	img, err := decodeFormat(format, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("frame: decode %s: %w", format, err)
	}
	return img, nil
}

// Load reads and decodes the image file at path.
func Load(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("frame: read %q: %w", path, err)
	}
	return Decode(data)
}

func decodeFormat(format string, r io.Reader) (image.Image, error) {
	switch format {
	case "jpeg":
		return jpeg.Decode(r)
	case "png":
		return png.Decode(r)
	case "gif":
		return gif.Decode(r)
	case "webp":
		return webp.Decode(r)
	case "bmp":
		return bmp.Decode(r)
	case "tiff":
		return tiff.Decode(r)
	default:
		return nil, ErrUnsupported
	}
}

// Fit scales src down so its width is at most maxWidth, preserving the aspect
// ratio. Frames that already fit, and a non-positive maxWidth, return src.
func Fit(src image.Image, maxWidth int) image.Image {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	if maxWidth <= 0 || w <= maxWidth || w == 0 || h == 0 {
		return src
	}

	newH := h * maxWidth / w
	if newH < 1 {
		newH = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, maxWidth, newH))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), src, b, draw.Src, nil)
	return dst
}
