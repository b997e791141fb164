package pipeline

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/dunamismax/pixelfn/internal/domain"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type BlobStore interface {
	Get(ctx context.Context, container, name string) ([]byte, error)
	Put(ctx context.Context, container, name string, data []byte, contentType string) error
}

type LogStore interface {
	InsertRow(ctx context.Context, table string, row domain.LogRecord) error
}

type URLBuilder interface {
	BlobURL(container, name string) string
}

type Config struct {
	SourceContainer string
	DestContainer   string
	LogTable        string
}

// OperationError is the single failure shape for anything that goes wrong
// after validation. Its message is the underlying error's message.
type OperationError struct {
	Op  string
	Err error
}

func (e *OperationError) Error() string {
	return e.Err.Error()
}

func (e *OperationError) Unwrap() error {
	return e.Err
}

type Output struct {
	Name   string
	URL    string
	Format string
	Bytes  int
	Width  int
	Height int
}

type ResizeResult struct {
	Output Output
}

type SplitResult struct {
	Top    Output
	Bottom Output
}

type Processor struct {
	cfg    Config
	blobs  BlobStore
	logs   LogStore
	codec  Codec
	urls   URLBuilder
	tracer trace.Tracer
}

func NewProcessor(cfg Config, blobs BlobStore, logs LogStore, codec Codec, urls URLBuilder) (*Processor, error) {
	switch {
	case blobs == nil:
		return nil, errors.New("blob store is required")
	case logs == nil:
		return nil, errors.New("log store is required")
	case codec == nil:
		return nil, errors.New("codec is required")
	case urls == nil:
		return nil, errors.New("url builder is required")
	}
	if strings.TrimSpace(cfg.SourceContainer) == "" || strings.TrimSpace(cfg.DestContainer) == "" {
		return nil, errors.New("source and destination containers are required")
	}
	if strings.TrimSpace(cfg.LogTable) == "" {
		return nil, errors.New("log table is required")
	}

	return &Processor{
		cfg:    cfg,
		blobs:  blobs,
		logs:   logs,
		codec:  codec,
		urls:   urls,
		tracer: otel.Tracer("pixelfn/pipeline"),
	}, nil
}

// Resize fetches a blob, stretches it to the requested size, stores it as PNG
// and logs the result. Nothing is rolled back when a later step fails.
func (p *Processor) Resize(ctx context.Context, req domain.ResizeRequest) (ResizeResult, error) {
	if err := req.Validate(); err != nil {
		return ResizeResult{}, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.resize", trace.WithAttributes(
		attribute.String("blob.name", req.BlobName),
		attribute.Int("resize.width", req.Width),
		attribute.Int("resize.height", req.Height),
	))
	defer span.End()

	out, err := p.resize(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "resize failed")
		return ResizeResult{}, &OperationError{Op: domain.OperationResize, Err: err}
	}

	span.SetStatus(codes.Ok, "resized")
	return ResizeResult{Output: out}, nil
}

func (p *Processor) resize(ctx context.Context, req domain.ResizeRequest) (Output, error) {
	src, err := p.fetchImage(ctx, req.BlobName)
	if err != nil {
		return Output{}, err
	}
	defer release(src)

	resized, err := p.codec.Resize(src, req.Width, req.Height)
	if err != nil {
		return Output{}, fmt.Errorf("resize image: %w", err)
	}
	defer release(resized)

	data, err := p.codec.Encode(resized, FormatPNG)
	if err != nil {
		return Output{}, err
	}

	out, err := p.upload(ctx, domain.ResizedBlobName(req.BlobName, req.Width, req.Height), resized, data)
	if err != nil {
		return Output{}, err
	}

	row := domain.NewResizeLogRecord(out.Name, out.URL, req.Width, req.Height)
	if err := p.logs.InsertRow(ctx, p.cfg.LogTable, row); err != nil {
		return Output{}, err
	}
	return out, nil
}

// Split cuts the image at its vertical midpoint. The top half gets
// height/2 rows, the bottom half the rest.
func (p *Processor) Split(ctx context.Context, req domain.SplitRequest) (SplitResult, error) {
	if err := req.Validate(); err != nil {
		return SplitResult{}, err
	}

	ctx, span := p.tracer.Start(ctx, "pipeline.split", trace.WithAttributes(
		attribute.String("blob.name", req.BlobName),
	))
	defer span.End()

	res, err := p.split(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "split failed")
		return SplitResult{}, &OperationError{Op: domain.OperationSplit, Err: err}
	}

	span.SetStatus(codes.Ok, "split")
	return res, nil
}

func (p *Processor) split(ctx context.Context, req domain.SplitRequest) (SplitResult, error) {
	src, err := p.fetchImage(ctx, req.BlobName)
	if err != nil {
		return SplitResult{}, err
	}
	defer release(src)

	topRect, bottomRect := SplitBounds(src.Bounds())

	top, err := p.codec.Crop(src, topRect)
	if err != nil {
		return SplitResult{}, fmt.Errorf("crop top half: %w", err)
	}
	defer release(top)

	bottom, err := p.codec.Crop(src, bottomRect)
	if err != nil {
		return SplitResult{}, fmt.Errorf("crop bottom half: %w", err)
	}
	defer release(bottom)

	topData, err := p.codec.Encode(top, FormatPNG)
	if err != nil {
		return SplitResult{}, err
	}
	bottomData, err := p.codec.Encode(bottom, FormatPNG)
	if err != nil {
		return SplitResult{}, err
	}

	topOut, err := p.upload(ctx, domain.TopBlobName(req.BlobName), top, topData)
	if err != nil {
		return SplitResult{}, err
	}
	bottomOut, err := p.upload(ctx, domain.BottomBlobName(req.BlobName), bottom, bottomData)
	if err != nil {
		return SplitResult{}, err
	}

	row := domain.NewSplitLogRecord(req.BlobName, topOut.URL, bottomOut.URL)
	if err := p.logs.InsertRow(ctx, p.cfg.LogTable, row); err != nil {
		return SplitResult{}, err
	}
	return SplitResult{Top: topOut, Bottom: bottomOut}, nil
}

// SplitBounds returns the full-width top and bottom halves of bounds.
func SplitBounds(bounds image.Rectangle) (top, bottom image.Rectangle) {
	mid := bounds.Min.Y + bounds.Dy()/2
	top = image.Rect(bounds.Min.X, bounds.Min.Y, bounds.Max.X, mid)
	bottom = image.Rect(bounds.Min.X, mid, bounds.Max.X, bounds.Max.Y)
	return top, bottom
}

func (p *Processor) fetchImage(ctx context.Context, name string) (Image, error) {
	data, err := p.blobs.Get(ctx, p.cfg.SourceContainer, name)
	if err != nil {
		return nil, err
	}
	return p.codec.Decode(data)
}

func (p *Processor) upload(ctx context.Context, name string, img Image, data []byte) (Output, error) {
	if err := p.blobs.Put(ctx, p.cfg.DestContainer, name, data, contentTypeForFormat(FormatPNG)); err != nil {
		return Output{}, err
	}

	bounds := img.Bounds()
	return Output{
		Name:   name,
		URL:    p.urls.BlobURL(p.cfg.DestContainer, name),
		Format: FormatPNG,
		Bytes:  len(data),
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
	}, nil
}
