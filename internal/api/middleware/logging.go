package middleware

import (
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// quiet reports high-frequency routes, logged at debug level while they
// succeed.
func quiet(route string) bool {
	switch route {
	case "/v1/sessions/{" + SessionIDParam + "}/position",
		"/v1/sessions/{" + SessionIDParam + "}/telemetry",
		"/v1/ops/health":
		return true
	}
	return false
}

// Logger returns a middleware that logs HTTP requests. Server errors log at
// error level, client errors at warn.
func Logger(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := newStatusWriter(w)

			next.ServeHTTP(wrapped, r)

			route, sessionID := routeInfo(r)

			var event *zerolog.Event
			switch status := wrapped.statusCode; {
			case status >= http.StatusInternalServerError:
				event = log.Error()
			case status >= http.StatusBadRequest:
				event = log.Warn()
			case quiet(route):
				event = log.Debug()
			default:
				event = log.Info()
			}

			spanCtx := trace.SpanContextFromContext(r.Context())
			traceID := ""
			spanID := ""
			if spanCtx.IsValid() {
				traceID = spanCtx.TraceID().String()
				spanID = spanCtx.SpanID().String()
			}

			if sessionID != "" {
				event = event.Str("session_id", sessionID)
			}
			event.
				Str("request_id", GetRequestID(r.Context())).
				Str("trace_id", traceID).
				Str("span_id", spanID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Str("route", route).
				Int("status", wrapped.statusCode).
				Int64("bytes", wrapped.written).
				Dur("duration", time.Since(start)).
				Str("remote_addr", r.RemoteAddr).
				Str("user_agent", r.UserAgent()).
				Msg("request completed")
		})
	}
}
