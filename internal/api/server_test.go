package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dunamismax/pixelfn/internal/domain"
	"github.com/dunamismax/pixelfn/internal/pipeline"
	"github.com/dunamismax/pixelfn/internal/ratelimit"
	"github.com/dunamismax/pixelfn/internal/storage"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	resizeCalls int
	splitCalls  int
	resizeErr   error
	splitErr    error
	gotResize   domain.ResizeRequest
}

func (f *fakeProcessor) Resize(_ context.Context, req domain.ResizeRequest) (pipeline.ResizeResult, error) {
	f.resizeCalls++
	f.gotResize = req
	if err := req.Validate(); err != nil {
		return pipeline.ResizeResult{}, err
	}
	if f.resizeErr != nil {
		return pipeline.ResizeResult{}, f.resizeErr
	}
	name := domain.ResizedBlobName(req.BlobName, req.Width, req.Height)
	return pipeline.ResizeResult{Output: pipeline.Output{
		Name:  name,
		URL:   "https://acct.blob.core.windows.net/dest/" + name,
		Bytes: 128,
	}}, nil
}

func (f *fakeProcessor) Split(_ context.Context, req domain.SplitRequest) (pipeline.SplitResult, error) {
	f.splitCalls++
	if err := req.Validate(); err != nil {
		return pipeline.SplitResult{}, err
	}
	if f.splitErr != nil {
		return pipeline.SplitResult{}, f.splitErr
	}
	return pipeline.SplitResult{
		Top:    pipeline.Output{Name: domain.TopBlobName(req.BlobName), URL: "https://acct.blob.core.windows.net/dest/" + domain.TopBlobName(req.BlobName), Bytes: 10},
		Bottom: pipeline.Output{Name: domain.BottomBlobName(req.BlobName), URL: "https://acct.blob.core.windows.net/dest/" + domain.BottomBlobName(req.BlobName), Bytes: 12},
	}, nil
}

type fakeLimiter struct {
	decision ratelimit.Decision
	err      error
	subjects []string
}

func (f *fakeLimiter) Allow(_ context.Context, subject string) (ratelimit.Decision, error) {
	f.subjects = append(f.subjects, subject)
	return f.decision, f.err
}

func serve(t *testing.T, srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestResizeSuccess(t *testing.T) {
	proc := &fakeProcessor{}
	srv := NewServer(zerolog.Nop(), proc)

	rec := serve(t, srv, http.MethodPost, "/api/resize", `{"blob_name":"cat.jpg","width":100,"height":50}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var resp domain.ResizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Image resized successfully!", resp.Message)
	assert.Equal(t, "https://acct.blob.core.windows.net/dest/resized_100x50_cat.jpg", resp.BlobURL)
	assert.Equal(t, domain.ResizeRequest{BlobName: "cat.jpg", Width: 100, Height: 50}, proc.gotResize)
}

func TestSplitSuccess(t *testing.T) {
	srv := NewServer(zerolog.Nop(), &fakeProcessor{})

	rec := serve(t, srv, http.MethodPost, "/api/split", `{"blob_name":"banner.png","extra":true}`)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp domain.SplitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Image split successfully!", resp.Message)
	assert.Equal(t, "https://acct.blob.core.windows.net/dest/top_banner.png", resp.TopBlobURL)
	assert.Equal(t, "https://acct.blob.core.windows.net/dest/bottom_banner.png", resp.BottomBlobURL)
}

func TestBadRequests(t *testing.T) {
	cases := []struct {
		name string
		path string
		body string
		want string
	}{
		{name: "resize missing height", path: "/api/resize", body: `{"blob_name":"cat.jpg","width":100}`, want: "Bad request. 'blob_name', 'width' and 'height' are required."},
		{name: "resize missing name", path: "/api/resize", body: `{"width":1,"height":1}`, want: "Bad request. 'blob_name', 'width' and 'height' are required."},
		{name: "resize negative width", path: "/api/resize", body: `{"blob_name":"cat.jpg","width":-5,"height":10}`, want: "Bad request. 'width' must be a positive integer."},
		{name: "resize negative height", path: "/api/resize", body: `{"blob_name":"cat.jpg","width":5,"height":-10}`, want: "Bad request. 'height' must be a positive integer."},
		{name: "split missing name", path: "/api/split", body: `{}`, want: "Bad request. 'blob_name' is required."},
		{name: "split empty name", path: "/api/split", body: `{"blob_name":""}`, want: "Bad request. 'blob_name' is required."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := NewServer(zerolog.Nop(), &fakeProcessor{})
			rec := serve(t, srv, http.MethodPost, tc.path, tc.body)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
			assert.Equal(t, tc.want, rec.Body.String())
		})
	}
}

func TestInvalidJSONNeverReachesProcessor(t *testing.T) {
	bodies := []string{
		`not json`,
		`{"blob_name":"cat.jpg","width":"100","height":50}`,
		`{"blob_name":"cat.jpg","width":10.5,"height":50}`,
		`{"blob_name":"a"}{"blob_name":"b"}`,
		``,
	}
	for _, body := range bodies {
		proc := &fakeProcessor{}
		srv := NewServer(zerolog.Nop(), proc)
		rec := serve(t, srv, http.MethodPost, "/api/resize", body)

		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
		assert.True(t, strings.HasPrefix(rec.Body.String(), "Bad request. invalid JSON body: "), rec.Body.String())
		assert.Zero(t, proc.resizeCalls, body)
	}
}

func TestOperationFailureIs500WithUnderlyingMessage(t *testing.T) {
	cause := fmt.Errorf("get blob src/missing.jpg: %w", storage.ErrBlobNotFound)
	proc := &fakeProcessor{
		resizeErr: &pipeline.OperationError{Op: domain.OperationResize, Err: cause},
		splitErr:  &pipeline.OperationError{Op: domain.OperationSplit, Err: errors.New("table unavailable")},
	}
	srv := NewServer(zerolog.Nop(), proc)

	rec := serve(t, srv, http.MethodPost, "/api/resize", `{"blob_name":"missing.jpg","width":10,"height":10}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "text/plain; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "Error processing the image: "+cause.Error(), rec.Body.String())

	rec = serve(t, srv, http.MethodPost, "/api/split", `{"blob_name":"x.png"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Error processing the image: table unavailable", rec.Body.String())
}

func TestFailuresAreLoggedWithRequestID(t *testing.T) {
	var buf bytes.Buffer
	proc := &fakeProcessor{resizeErr: &pipeline.OperationError{Op: domain.OperationResize, Err: errors.New("boom")}}
	srv := NewServer(zerolog.New(&buf), proc)

	serve(t, srv, http.MethodPost, "/api/resize", `{"blob_name":"cat.jpg","width":1,"height":1}`, HeaderRequestID, "req-42")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "error", entry["level"])
	assert.Equal(t, "boom", entry["error"])
	assert.Equal(t, "resize", entry["operation"])
	assert.Equal(t, "cat.jpg", entry["blob_name"])
	assert.Equal(t, "req-42", entry["request_id"])
}

func TestRequestIDHeader(t *testing.T) {
	srv := NewServer(zerolog.Nop(), &fakeProcessor{})

	rec := serve(t, srv, http.MethodGet, "/healthz", "", HeaderRequestID, "abc-123")
	assert.Equal(t, "abc-123", rec.Header().Get(HeaderRequestID))

	rec = serve(t, srv, http.MethodGet, "/healthz", "")
	assert.Len(t, rec.Header().Get(HeaderRequestID), 36)

	rec = serve(t, srv, http.MethodGet, "/healthz", "", HeaderRequestID, "bad id")
	assert.NotEqual(t, "bad id", rec.Header().Get(HeaderRequestID))
}

func TestHealthz(t *testing.T) {
	srv := NewServer(zerolog.Nop(), &fakeProcessor{})
	rec := serve(t, srv, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestMethodNotAllowed(t *testing.T) {
	srv := NewServer(zerolog.Nop(), &fakeProcessor{})
	rec := serve(t, srv, http.MethodGet, "/api/resize", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestMetricsExposeOperations(t *testing.T) {
	proc := &fakeProcessor{splitErr: &pipeline.OperationError{Op: domain.OperationSplit, Err: errors.New("x")}}
	srv := NewServer(zerolog.Nop(), proc)

	serve(t, srv, http.MethodPost, "/api/resize", `{"blob_name":"cat.jpg","width":1,"height":1}`)
	serve(t, srv, http.MethodPost, "/api/resize", `{"blob_name":"cat.jpg"}`)
	serve(t, srv, http.MethodPost, "/api/split", `{"blob_name":"cat.jpg"}`)

	rec := serve(t, srv, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	text := string(body)

	assert.Contains(t, text, `pixelfn_image_operations_total{operation="resize",outcome="succeeded"} 1`)
	assert.Contains(t, text, `pixelfn_image_operations_total{operation="resize",outcome="rejected"} 1`)
	assert.Contains(t, text, `pixelfn_image_operations_total{operation="split",outcome="failed"} 1`)
	assert.Contains(t, text, `pixelfn_blob_bytes_written_total{operation="resize"} 128`)
	assert.Contains(t, text, `pixelfn_api_requests_total{method="POST",route="/api/resize",status="400"} 1`)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/api/resize", routeLabel("/api/resize"))
	assert.Equal(t, "/healthz", routeLabel("/healthz"))
	assert.Equal(t, "unmatched", routeLabel("/api/resize/extra"))
}

func TestRateLimitRejects(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: false, RetryAfter: 2400 * time.Millisecond}}
	proc := &fakeProcessor{}
	srv := NewServer(zerolog.Nop(), proc, WithRateLimiter(limiter, "X-Tenant"))

	rec := serve(t, srv, http.MethodPost, "/api/resize", `{"blob_name":"cat.jpg","width":1,"height":1}`, "X-Tenant", "alice")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rec.Body.String())
	assert.Equal(t, "2", rec.Header().Get("Retry-After"))
	assert.Equal(t, []string{"alice:/api/resize"}, limiter.subjects)
	assert.Zero(t, proc.resizeCalls)
}

func TestRateLimitSkipsReadsAndFailsOpen(t *testing.T) {
	limiter := &fakeLimiter{err: errors.New("redis down")}
	proc := &fakeProcessor{}
	srv := NewServer(zerolog.Nop(), proc, WithRateLimiter(limiter, ""))

	rec := serve(t, srv, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, limiter.subjects)

	rec = serve(t, srv, http.MethodPost, "/api/split", `{"blob_name":"cat.jpg"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"anonymous:/api/split"}, limiter.subjects)
	assert.Equal(t, 1, proc.splitCalls)
}

func TestRateLimitAllowedSetsRemaining(t *testing.T) {
	limiter := &fakeLimiter{decision: ratelimit.Decision{Allowed: true, Remaining: 7}}
	srv := NewServer(zerolog.Nop(), &fakeProcessor{}, WithRateLimiter(limiter, ""))

	rec := serve(t, srv, http.MethodPost, "/api/split", `{"blob_name":"cat.jpg"}`, "X-User-ID", "bob")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "7", rec.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, []string{"bob:/api/split"}, limiter.subjects)
}
