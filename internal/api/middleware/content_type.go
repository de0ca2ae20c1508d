package middleware

import (
	"mime"
	"net/http"

	"github.com/wayfinder/wayfinder/internal/api/models"
)

// ContentTypeJSON sets the Content-Type header to application/json.
func ContentTypeJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Only set if not already set (allows handlers to override)
		if w.Header().Get("Content-Type") == "" {
			w.Header().Set("Content-Type", "application/json")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireJSON rejects POST, PUT and PATCH requests that carry a body with a
// Content-Type other than application/json. Bodiless commands such as
// POST /reset pass without a header.
func RequireJSON(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength == 0 {
			next.ServeHTTP(w, r)
			return
		}

		contentType := r.Header.Get("Content-Type")
		if contentType != "" {
			if mediaType, _, err := mime.ParseMediaType(contentType); err == nil && mediaType == "application/json" {
				next.ServeHTTP(w, r)
				return
			}
		}

		problem := models.NewUnsupportedMediaType(GetRequestID(r.Context()), "Content-Type must be application/json")
		problem.Instance = r.URL.Path
		problem.Write(w)
	})
}
