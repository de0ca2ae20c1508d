package handler

import (
	"net/http"

	"github.com/wayfinder/wayfinder/internal/api/models"
	"github.com/wayfinder/wayfinder/internal/api/response"
	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/session"
)

// QualityHandler handles client telemetry and render quality endpoints.
type QualityHandler struct {
	sessions *session.Manager
}

// NewQualityHandler creates a new QualityHandler.
func NewQualityHandler(sessions *session.Manager) *QualityHandler {
	return &QualityHandler{sessions: sessions}
}

// ReportTelemetry handles POST /v1/sessions/{sessionId}/telemetry - device
// memory, battery and thermal readings from the client.
func (h *QualityHandler) ReportTelemetry(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(h.sessions, w, r)
	if !ok {
		return
	}

	var input models.TelemetryRequest
	if !response.Decode(w, r, &input) {
		return
	}

	var fieldErrors []models.FieldError
	if input.MemoryUsage < 0 || input.MemoryUsage > 1 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "memoryUsage", Message: "must be between 0 and 1", Code: "OUT_OF_RANGE"})
	}
	if input.BatteryLevel < 0 || input.BatteryLevel > 1 {
		fieldErrors = append(fieldErrors, models.FieldError{Field: "batteryLevel", Message: "must be between 0 and 1", Code: "OUT_OF_RANGE"})
	}
	thermal := input.ThermalState
	switch thermal {
	case "":
		thermal = render.ThermalNominal
	case render.ThermalNominal, render.ThermalFair, render.ThermalSerious, render.ThermalCritical:
	default:
		fieldErrors = append(fieldErrors, models.FieldError{Field: "thermalState", Message: "unknown thermal state", Code: "INVALID_ENUM"})
	}
	if len(fieldErrors) > 0 {
		response.BadRequest(w, r, "invalid telemetry", fieldErrors)
		return
	}

	s.ReportTelemetry(input.MemoryUsage, input.BatteryLevel, thermal)
	response.NoContent(w, r)
}

// GetQuality handles GET /v1/sessions/{sessionId}/quality.
func (h *QualityHandler) GetQuality(w http.ResponseWriter, r *http.Request) {
	s, ok := lookupSession(h.sessions, w, r)
	if !ok {
		return
	}
	response.JSON(w, r, http.StatusOK, qualityView(s))
}

// EnableBatterySaving handles POST /v1/sessions/{sessionId}/quality:battery-saving.
func (h *QualityHandler) EnableBatterySaving(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(s *session.Session) { s.Quality.EnableBatterySavingMode() })
}

// EnableHighQuality handles POST /v1/sessions/{sessionId}/quality:high.
func (h *QualityHandler) EnableHighQuality(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(s *session.Session) { s.Quality.EnableHighQualityMode() })
}

// EnableAdaptive handles POST /v1/sessions/{sessionId}/quality:adaptive.
func (h *QualityHandler) EnableAdaptive(w http.ResponseWriter, r *http.Request) {
	h.apply(w, r, func(s *session.Session) { s.Quality.EnableAdaptiveQuality() })
}

func (h *QualityHandler) apply(w http.ResponseWriter, r *http.Request, fn func(*session.Session)) {
	s, ok := lookupSession(h.sessions, w, r)
	if !ok {
		return
	}
	fn(s)
	response.JSON(w, r, http.StatusOK, qualityView(s))
}

func qualityView(s *session.Session) models.Quality {
	st := s.Quality.Status()
	tier, settings := s.Quality.RecommendedSettings()
	recs := s.Quality.PerformanceRecommendations()
	if recs == nil {
		recs = []string{}
	}
	return models.Quality{
		PerformanceMode:     st.PerformanceMode,
		Adaptive:            st.Adaptive,
		TargetFrameRate:     st.TargetFrameRate,
		Settings:            st.Settings,
		Latest:              st.Latest,
		RecommendedTier:     tier,
		RecommendedSettings: settings,
		Recommendations:     recs,
	}
}
