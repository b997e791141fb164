package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/png"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

var errEmptyRegion = errors.New("crop region is empty")

type imagingCodec struct {
	filter imaging.ResampleFilter
}

func newImagingCodec() imagingCodec {
	return imagingCodec{filter: imaging.CatmullRom}
}

func (c imagingCodec) Decode(data []byte) (Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	if err := checkPixelBudget(cfg.Width, cfg.Height); err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return img, nil
}

// Resize stretches to exactly width x height; the aspect ratio is not kept.
func (c imagingCodec) Resize(img Image, width, height int) (Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("resize requires positive dimensions, got %dx%d", width, height)
	}
	if err := checkPixelBudget(width, height); err != nil {
		return nil, err
	}
	src, err := asStdImage(img)
	if err != nil {
		return nil, err
	}
	if src.Bounds().Empty() {
		return nil, errors.New("source image has invalid dimensions")
	}
	return imaging.Resize(src, width, height, c.filter), nil
}

func (c imagingCodec) Crop(img Image, rect image.Rectangle) (Image, error) {
	src, err := asStdImage(img)
	if err != nil {
		return nil, err
	}
	if rect.Intersect(src.Bounds()).Empty() {
		return nil, fmt.Errorf("%w: %v", errEmptyRegion, rect)
	}
	return imaging.Crop(src, rect), nil
}

func (c imagingCodec) Encode(img Image, format string) ([]byte, error) {
	src, err := asStdImage(img)
	if err != nil {
		return nil, err
	}

	target, err := imaging.FormatFromExtension(normalizeOutputFormat(format))
	if err != nil {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, src, target, imaging.PNGCompressionLevel(png.DefaultCompression)); err != nil {
		return nil, fmt.Errorf("encode %s: %w", normalizeOutputFormat(format), err)
	}
	return buf.Bytes(), nil
}

func asStdImage(img Image) (image.Image, error) {
	src, ok := img.(image.Image)
	if !ok {
		return nil, fmt.Errorf("unsupported image type %T", img)
	}
	return src, nil
}
