package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/wayfinder/wayfinder/internal/api/models"
	"github.com/wayfinder/wayfinder/internal/api/response"
	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// VenueHandler handles venue directory endpoints.
type VenueHandler struct {
	venues venue.Directory
}

// NewVenueHandler creates a new VenueHandler.
func NewVenueHandler(venues venue.Directory) *VenueHandler {
	return &VenueHandler{venues: venues}
}

// ListVenues handles GET /v1/venues. With lat and lon query parameters the
// list is the nearby search, ranked by distance within radius meters.
func (h *VenueHandler) ListVenues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("lat") == "" && q.Get("lon") == "" {
		venues, err := h.venues.List(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		if venues == nil {
			venues = []venue.Venue{}
		}
		response.JSON(w, r, http.StatusOK, models.PagedVenues{
			Items: venues,
			Meta:  models.PagedResponseMeta{Total: len(venues)},
		})
		return
	}

	var fieldErrors []models.FieldError
	lat, err := strconv.ParseFloat(q.Get("lat"), 64)
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lat", Message: "must be a number", Code: "INVALID"})
	}
	lon, err := strconv.ParseFloat(q.Get("lon"), 64)
	if err != nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lon", Message: "must be a number", Code: "INVALID"})
	}
	radius := 50000.0
	if s := q.Get("radius"); s != "" {
		if radius, err = strconv.ParseFloat(s, 64); err != nil || radius <= 0 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "radius", Message: "must be a positive number", Code: "INVALID"})
		}
	}
	limit := 20
	if s := q.Get("limit"); s != "" {
		if limit, err = strconv.Atoi(s); err != nil || limit <= 0 || limit > 100 {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "limit", Message: "must be between 1 and 100", Code: "OUT_OF_RANGE"})
		}
	}
	if len(fieldErrors) == 0 {
		if err := (location.Coordinate{Lat: lat, Lon: lon}).Validate(); err != nil {
			fieldErrors = append(fieldErrors, models.FieldError{Field: "lat/lon", Message: err.Error(), Code: "OUT_OF_RANGE"})
		}
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid nearby query", fieldErrors)
		return
	}

	ranked, err := h.venues.Nearby(r.Context(), location.Coordinate{Lat: lat, Lon: lon}, radius, limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if ranked == nil {
		ranked = []venue.Ranked{}
	}
	response.JSON(w, r, http.StatusOK, models.PagedNearbyVenues{
		Items: ranked,
		Meta:  models.PagedResponseMeta{Total: len(ranked)},
	})
}

// GetVenue handles GET /v1/venues/{venueId}.
func (h *VenueHandler) GetVenue(w http.ResponseWriter, r *http.Request) {
	v, err := h.venues.Get(r.Context(), chi.URLParam(r, "venueId"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, v)
}
