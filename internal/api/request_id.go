package api

import (
	"net/http"
	"strings"

	"github.com/dunamismax/pixelfn/internal/id"
)

const HeaderRequestID = "X-Request-ID"

// withRequestID echoes or assigns a request id and puts a logger carrying it
// on the request context.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if !id.Valid(rid) {
			rid = id.New()
		}
		w.Header().Set(HeaderRequestID, rid)

		logger := s.logger.With().Str("request_id", rid).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}
