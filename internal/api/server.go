package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/dunamismax/pixelfn/internal/domain"
	"github.com/dunamismax/pixelfn/internal/pipeline"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	resizeSuccessMessage = "Image resized successfully!"
	splitSuccessMessage  = "Image split successfully!"

	badRequestPrefix = "Bad request. "
	failurePrefix    = "Error processing the image: "
)

type imageProcessor interface {
	Resize(ctx context.Context, req domain.ResizeRequest) (pipeline.ResizeResult, error)
	Split(ctx context.Context, req domain.SplitRequest) (pipeline.SplitResult, error)
}

type Server struct {
	logger                zerolog.Logger
	processor             imageProcessor
	metrics               *metrics
	tracer                trace.Tracer
	rateLimiter           RateLimiter
	rateLimitUserIDHeader string
	mux                   *http.ServeMux
}

type Option func(*Server)

// WithRateLimiter enables per-subject limits on the transform routes. The
// subject is read from userIDHeader, defaulting to X-User-ID.
func WithRateLimiter(limiter RateLimiter, userIDHeader string) Option {
	return func(s *Server) {
		s.rateLimiter = limiter
		if userIDHeader != "" {
			s.rateLimitUserIDHeader = userIDHeader
		}
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(s *Server) {
		s.tracer = tracer
	}
}

func NewServer(logger zerolog.Logger, processor imageProcessor, opts ...Option) *Server {
	s := &Server{
		logger:                logger,
		processor:             processor,
		metrics:               newMetrics(),
		tracer:                otel.Tracer("pixelfn/api"),
		rateLimitUserIDHeader: "X-User-ID",
		mux:                   http.NewServeMux(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withTracing(s.metrics.withHTTPMetrics(s.withRateLimit(s.mux))))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /api/resize", s.handleResize)
	s.mux.HandleFunc("POST /api/split", s.handleSplit)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	var req domain.ResizeRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, domain.OperationResize, req.BlobName, err)
		return
	}

	res, err := s.processor.Resize(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, domain.OperationResize, req.BlobName, err)
		return
	}

	s.metrics.observeOperation(domain.OperationResize, outcomeSucceeded, res.Output.Bytes)
	s.requestLogger(r).Info().
		Str("operation", domain.OperationResize).
		Str("blob_name", req.BlobName).
		Str("output", res.Output.Name).
		Msg("image resized")
	writeJSON(w, http.StatusOK, domain.ResizeResponse{
		Message: resizeSuccessMessage,
		BlobURL: res.Output.URL,
	})
}

func (s *Server) handleSplit(w http.ResponseWriter, r *http.Request) {
	var req domain.SplitRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeFailure(w, r, domain.OperationSplit, req.BlobName, err)
		return
	}

	res, err := s.processor.Split(r.Context(), req)
	if err != nil {
		s.writeFailure(w, r, domain.OperationSplit, req.BlobName, err)
		return
	}

	s.metrics.observeOperation(domain.OperationSplit, outcomeSucceeded, res.Top.Bytes+res.Bottom.Bytes)
	s.requestLogger(r).Info().
		Str("operation", domain.OperationSplit).
		Str("blob_name", req.BlobName).
		Str("top", res.Top.Name).
		Str("bottom", res.Bottom.Name).
		Msg("image split")
	writeJSON(w, http.StatusOK, domain.SplitResponse{
		Message:       splitSuccessMessage,
		TopBlobURL:    res.Top.URL,
		BottomBlobURL: res.Bottom.URL,
	})
}

// writeFailure maps validation errors to 400 and everything else to 500.
// Both bodies are plain text.
func (s *Server) writeFailure(w http.ResponseWriter, r *http.Request, op, blobName string, err error) {
	var verr *domain.ValidationError
	rejected := errors.As(err, &verr)

	event := s.requestLogger(r).Error().Err(err).Str("operation", op).Str("blob_name", blobName)
	if rejected {
		event.Str("field", verr.Field).Msg("request rejected")
		s.metrics.observeOperation(op, outcomeRejected, 0)
		writeText(w, http.StatusBadRequest, badRequestPrefix+verr.Message)
		return
	}

	event.Msg("image operation failed")
	s.metrics.observeOperation(op, outcomeFailed, 0)
	writeText(w, http.StatusInternalServerError, failurePrefix+err.Error())
}

func (s *Server) requestLogger(r *http.Request) *zerolog.Logger {
	if l := zerolog.Ctx(r.Context()); l.GetLevel() != zerolog.Disabled {
		return l
	}
	return &s.logger
}

// decodeJSON reads a single JSON value of at most 1 MiB. Unknown fields are
// ignored; type mismatches are validation failures.
func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := decoder.Decode(into); err != nil {
		return &domain.ValidationError{Message: fmt.Sprintf("invalid JSON body: %v", err)}
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return &domain.ValidationError{Message: "invalid JSON body: multiple JSON values are not allowed"}
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
