package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wayfinder/wayfinder/internal/api/middleware"
	"github.com/wayfinder/wayfinder/internal/api/models"
	"github.com/wayfinder/wayfinder/internal/api/response"
	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/session"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// SessionHandler handles navigation session endpoints.
type SessionHandler struct {
	sessions *session.Manager
	venues   venue.Directory
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(sessions *session.Manager, venues venue.Directory) *SessionHandler {
	return &SessionHandler{sessions: sessions, venues: venues}
}

// session resolves the {sessionId} route parameter, writing a 404 when it is
// unknown.
func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	return lookupSession(h.sessions, w, r)
}

func lookupSession(m *session.Manager, w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, middleware.SessionIDParam)
	if id == "" {
		response.BadRequest(w, r, "sessionId is required", nil)
		return nil, false
	}
	s, err := m.Get(id)
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}
	return s, true
}

// CreateSession handles POST /v1/sessions - start a navigation session.
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.sessions.Create()
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, r, "/v1/sessions/"+s.ID, sessionView(s))
}

// GetSession handles GET /v1/sessions/{sessionId}.
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, sessionView(s))
}

// DeleteSession handles DELETE /v1/sessions/{sessionId} - end a session and
// release its resources.
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, middleware.SessionIDParam)
	if err := h.sessions.Delete(id); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// Initialize handles POST /v1/sessions/{sessionId}/initialize - acquire a fix
// and list nearby venues.
func (h *SessionHandler) Initialize(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Machine.Initialize(r.Context()); err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionView(s))
}

// ReportPosition handles POST /v1/sessions/{sessionId}/position - a device fix
// from the client.
func (h *SessionHandler) ReportPosition(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var input models.PositionRequest
	if !response.Decode(w, r, &input) {
		return
	}

	var fieldErrors []models.FieldError
	if input.Lat == nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lat", Message: "required", Code: "REQUIRED"})
	}
	if input.Lon == nil {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "lon", Message: "required", Code: "REQUIRED"})
	}
	if input.Accuracy != nil && *input.Accuracy < 0 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "accuracy", Message: "must not be negative", Code: "OUT_OF_RANGE"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid position", fieldErrors)
		return
	}

	c := location.Coordinate{Lat: *input.Lat, Lon: *input.Lon}
	if err := c.Validate(); err != nil {
		response.BadRequest(w, r, err.Error(), []models.FieldError{
			{Field: "lat/lon", Message: err.Error(), Code: "OUT_OF_RANGE"},
		})
		return
	}
	if err := s.ReportPosition(c, input.Accuracy); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w, r)
}

// SetManualLocation handles POST /v1/sessions/{sessionId}/manual-location.
func (h *SessionHandler) SetManualLocation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var input models.ManualLocationRequest
	if !response.Decode(w, r, &input) {
		return
	}
	address := strings.TrimSpace(input.Address)
	if address == "" {
		response.BadRequest(w, r, "address is required", []models.FieldError{
			{Field: "address", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	if err := s.Machine.SetManualLocation(r.Context(), address); err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionView(s))
}

// SelectVenue handles POST /v1/sessions/{sessionId}/venue - plan a route to a
// venue and start outdoor navigation.
func (h *SessionHandler) SelectVenue(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var input models.SelectVenueRequest
	if !response.Decode(w, r, &input) {
		return
	}
	if input.VenueID == "" {
		response.BadRequest(w, r, "venueId is required", []models.FieldError{
			{Field: "venueId", Message: "required", Code: "REQUIRED"},
		})
		return
	}

	v, err := h.venues.Get(r.Context(), input.VenueID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.Machine.SelectVenue(r.Context(), *v); err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionView(s))
}

// ToggleViewMode handles POST /v1/sessions/{sessionId}/view-mode:toggle.
func (h *SessionHandler) ToggleViewMode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, models.ViewModeResponse{ViewMode: s.Machine.ToggleViewMode()})
}

// SwitchToIndoor handles POST /v1/sessions/{sessionId}/indoor.
func (h *SessionHandler) SwitchToIndoor(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Machine.SwitchToIndoorMode(); err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionView(s))
}

// SwitchToOutdoor handles POST /v1/sessions/{sessionId}/outdoor.
func (h *SessionHandler) SwitchToOutdoor(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Machine.SwitchToOutdoorMode(); err != nil {
		writeError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, sessionView(s))
}

// Reset handles POST /v1/sessions/{sessionId}/reset - back to location
// detection.
func (h *SessionHandler) Reset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	s.Machine.Reset()
	response.JSON(w, r, http.StatusOK, sessionView(s))
}

func sessionView(s *session.Session) models.Session {
	return models.Session{
		ID:        s.ID,
		CreatedAt: models.Timestamp(s.CreatedAt),
		LastSeen:  models.Timestamp(s.LastSeen()),
		State:     s.Machine.State(),
		Waypoints: s.Renderer.Waypoints(),
		Notices:   models.NoticesFrom(s.Notices.Recent()),
		Render: models.RenderStatus{
			Settings:        s.Settings.Get(),
			TargetFrameRate: s.Cache.TargetFrameRate(),
			LiveResources:   s.Cache.LiveResources(),
			Stats:           s.Cache.Stats(),
		},
	}
}
