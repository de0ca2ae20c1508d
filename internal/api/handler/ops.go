// Package handler provides HTTP handlers for the wayfinder API.
package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/wayfinder/wayfinder/internal/api/models"
	"github.com/wayfinder/wayfinder/internal/api/response"
	"github.com/wayfinder/wayfinder/internal/provider/resilience"
)

// Pinger checks a backing dependency, e.g. *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SessionCounter reports the number of live sessions.
type SessionCounter interface {
	Len() int
}

// OpsConfig holds the dependencies of the operational endpoints.
type OpsConfig struct {
	Version   string
	BuildTime string

	// Registry tracks upstream provider health (optional).
	Registry *resilience.Registry

	// Database is checked by readiness and status when set.
	Database Pinger

	// Sessions is reported by status when set.
	Sessions SessionCounter
}

// OpsHandler handles operational endpoints.
type OpsHandler struct {
	cfg OpsConfig
}

// NewOpsHandler creates a new OpsHandler.
func NewOpsHandler(cfg OpsConfig) *OpsHandler {
	return &OpsHandler{cfg: cfg}
}

// HealthCheck handles GET /v1/ops/health - liveness check.
func (h *OpsHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
		Details: map[string]interface{}{
			"version":   h.cfg.Version,
			"buildTime": h.cfg.BuildTime,
		},
	}
	response.JSON(w, r, http.StatusOK, health)
}

// ReadinessCheck handles GET /v1/ops/ready - readiness check.
func (h *OpsHandler) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Database != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.cfg.Database.Ping(ctx); err != nil {
			response.ServiceUnavailable(w, r, "database unavailable")
			return
		}
	}
	health := models.Health{
		Status: models.HealthStatusOK,
		Time:   models.Timestamp(time.Now()),
	}
	response.JSON(w, r, http.StatusOK, health)
}

// SystemStatus handles GET /v1/ops/status - provider and subsystem status.
func (h *OpsHandler) SystemStatus(w http.ResponseWriter, r *http.Request) {
	status := models.SystemStatus{
		Status:     models.HealthStatusOK,
		Time:       models.Timestamp(time.Now()),
		Subsystems: []models.SubsystemStatus{},
		Providers:  []models.ProviderStatus{},
	}

	if h.cfg.Sessions != nil {
		status.Sessions = h.cfg.Sessions.Len()
		detail := strconv.Itoa(status.Sessions) + " live"
		status.Subsystems = append(status.Subsystems, models.SubsystemStatus{
			Name:   "sessions",
			Status: models.HealthStatusOK,
			Detail: &detail,
		})
	}

	if h.cfg.Database != nil {
		db := models.SubsystemStatus{Name: "postgres", Status: models.HealthStatusOK}
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		if err := h.cfg.Database.Ping(ctx); err != nil {
			msg := err.Error()
			db.Status = models.HealthStatusFail
			db.Detail = &msg
			status.Status = models.HealthStatusDegraded
		}
		cancel()
		status.Subsystems = append(status.Subsystems, db)
	}

	if h.cfg.Registry != nil {
		for _, up := range h.cfg.Registry.Snapshot() {
			p := models.ProviderStatus{
				Provider:            up.Name,
				Status:              providerStatus(up.Status()),
				Breaker:             up.State.String(),
				ConsecutiveFailures: up.Counts.ConsecutiveFailures,
				LastSuccessAt:       models.TimestampPtr(up.LastSuccessAt),
				LastFailureAt:       models.TimestampPtr(up.LastFailureAt),
			}
			if up.LastError != "" {
				msg := up.LastError
				p.Message = &msg
			}
			if p.Status != models.HealthStatusOK {
				status.Status = models.HealthStatusDegraded
				status.ActiveDegradationFlags = append(status.ActiveDegradationFlags, up.Name+"_"+up.Status())
			}
			status.Providers = append(status.Providers, p)
		}
	}

	response.JSON(w, r, http.StatusOK, status)
}

func providerStatus(s string) models.HealthStatus {
	switch s {
	case resilience.StatusUnhealthy:
		return models.HealthStatusFail
	case resilience.StatusDegraded:
		return models.HealthStatusDegraded
	default:
		return models.HealthStatusOK
	}
}
