package handler

import (
	"errors"
	"net/http"

	"github.com/wayfinder/wayfinder/internal/api/response"
	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/navigation"
	"github.com/wayfinder/wayfinder/internal/routing"
	"github.com/wayfinder/wayfinder/internal/session"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// writeError maps a domain error to its problem response.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, session.ErrNotFound), errors.Is(err, venue.ErrVenueNotFound):
		response.NotFound(w, r, err.Error())
	case errors.Is(err, navigation.ErrInvalidTransition), errors.Is(err, navigation.ErrPreconditionFailed):
		response.Conflict(w, r, err.Error())
	case errors.Is(err, location.ErrPermissionDenied):
		response.Forbidden(w, r, err.Error())
	case errors.Is(err, location.ErrGeocodeFailed), errors.Is(err, location.ErrPositionUnavailable):
		response.Unprocessable(w, r, err.Error())
	case errors.Is(err, session.ErrLimitReached):
		response.TooManyRequests(w, r, err.Error())
	case errors.Is(err, routing.ErrRouteUnavailable), errors.Is(err, session.ErrClosed):
		response.ServiceUnavailable(w, r, err.Error())
	default:
		response.InternalError(w, r, "internal error")
	}
}
