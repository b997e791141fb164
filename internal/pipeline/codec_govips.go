//go:build govips && cgo

package pipeline

import (
	"fmt"
	"image"

	"github.com/davidbyttow/govips/v2/vips"
)

type vipsImage struct {
	ref *vips.ImageRef
}

func (i *vipsImage) Bounds() image.Rectangle {
	return image.Rect(0, 0, i.ref.Width(), i.ref.Height())
}

func (i *vipsImage) Close() {
	i.ref.Close()
}

type govipsCodec struct{}

func (govipsCodec) Decode(data []byte) (Image, error) {
	ref, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	// libvips loads lazily, so the header dimensions are known before pixels are read.
	if err := checkPixelBudget(ref.Width(), ref.Height()); err != nil {
		ref.Close()
		return nil, fmt.Errorf("decode source image: %w", err)
	}
	return &vipsImage{ref: ref}, nil
}

func (govipsCodec) Resize(img Image, width, height int) (Image, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("resize requires positive dimensions, got %dx%d", width, height)
	}
	if err := checkPixelBudget(width, height); err != nil {
		return nil, err
	}
	out, err := copyVips(img)
	if err != nil {
		return nil, err
	}
	if err := out.ref.ThumbnailWithSize(width, height, vips.InterestingNone, vips.SizeForce); err != nil {
		out.Close()
		return nil, fmt.Errorf("resize image: %w", err)
	}
	return out, nil
}

func (govipsCodec) Crop(img Image, rect image.Rectangle) (Image, error) {
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return nil, fmt.Errorf("%w: %v", errEmptyRegion, rect)
	}
	out, err := copyVips(img)
	if err != nil {
		return nil, err
	}
	if err := out.ref.ExtractArea(rect.Min.X, rect.Min.Y, rect.Dx(), rect.Dy()); err != nil {
		out.Close()
		return nil, fmt.Errorf("crop image: %w", err)
	}
	return out, nil
}

func (govipsCodec) Encode(img Image, format string) ([]byte, error) {
	vi, ok := img.(*vipsImage)
	if !ok {
		return nil, fmt.Errorf("unsupported image type %T", img)
	}

	switch normalizeOutputFormat(format) {
	case FormatJPEG:
		data, _, err := vi.ref.ExportJpeg(vips.NewJpegExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}
		return data, nil
	default:
		data, _, err := vi.ref.ExportPng(vips.NewPngExportParams())
		if err != nil {
			return nil, fmt.Errorf("encode png: %w", err)
		}
		return data, nil
	}
}

func copyVips(img Image) (*vipsImage, error) {
	vi, ok := img.(*vipsImage)
	if !ok {
		return nil, fmt.Errorf("unsupported image type %T", img)
	}
	ref, err := vi.ref.Copy()
	if err != nil {
		return nil, fmt.Errorf("copy image: %w", err)
	}
	return &vipsImage{ref: ref}, nil
}
