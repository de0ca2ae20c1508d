package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/api/models"
)

// Recovery returns a middleware that recovers from panics and answers with a
// 500 problem. http.ErrAbortHandler is re-raised so the server drops the
// connection as usual.
func Recovery(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				requestID := GetRequestID(r.Context())
				route, sessionID := routeInfo(r)
				event := log.Error().
					Str("request_id", requestID).
					Str("method", r.Method).
					Str("route", route).
					Interface("error", rec).
					Str("stack", string(debug.Stack()))
				if sessionID != "" {
					event = event.Str("session_id", sessionID)
				}
				event.Msg("panic recovered")

				problem := models.NewInternalError(requestID, "an unexpected error occurred")
				problem.Instance = r.URL.Path
				problem.Write(w)
			}()

			next.ServeHTTP(w, r)
		})
	}
}
