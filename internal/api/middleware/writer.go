package middleware

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// unmatchedRoute labels requests no route matched.
const unmatchedRoute = "unmatched"

// statusWriter records the status code and body size written through it.
type statusWriter struct {
	http.ResponseWriter
	statusCode int
	written    int64
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.statusCode = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.written += int64(n)
	return n, err
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// routeInfo returns the matched chi route pattern and session id. It is only
// meaningful after the router has served r; outside a chi router the pattern
// is the raw path.
func routeInfo(r *http.Request) (pattern, sessionID string) {
	rctx := chi.RouteContext(r.Context())
	if rctx == nil {
		return r.URL.Path, ""
	}
	pattern = rctx.RoutePattern()
	if pattern == "" {
		pattern = unmatchedRoute
	}
	return pattern, rctx.URLParam(SessionIDParam)
}
