package pipeline

import (
	"errors"
	"fmt"
	"image"
	"strings"
)

const (
	FormatPNG  = "png"
	FormatJPEG = "jpeg"
)

// MaxPixels bounds the decoded source and the resize target. Larger images
// are rejected before any pixel buffer is allocated.
const MaxPixels int64 = 1 << 26

var errPixelBudget = errors.New("image exceeds pixel budget")

func checkPixelBudget(width, height int) error {
	if int64(width)*int64(height) > MaxPixels {
		return fmt.Errorf("%w: %dx%d is more than %d pixels", errPixelBudget, width, height, MaxPixels)
	}
	return nil
}

// Image is a decoded pixel buffer owned by a single operation. Codecs whose
// images hold native memory also implement Close.
type Image interface {
	Bounds() image.Rectangle
}

type Codec interface {
	Decode(data []byte) (Image, error)
	Resize(img Image, width, height int) (Image, error)
	Crop(img Image, rect image.Rectangle) (Image, error)
	Encode(img Image, format string) ([]byte, error)
}

func normalizeOutputFormat(format string) string {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "jpg", "jpeg":
		return FormatJPEG
	default:
		return FormatPNG
	}
}

func contentTypeForFormat(format string) string {
	switch normalizeOutputFormat(format) {
	case FormatJPEG:
		return "image/jpeg"
	default:
		return "image/png"
	}
}

func release(img Image) {
	if c, ok := img.(interface{ Close() }); ok {
		c.Close()
	}
}
