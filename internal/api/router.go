// Package api provides the HTTP API for wayfinder.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/api/handler"
	"github.com/wayfinder/wayfinder/internal/api/middleware"
	"github.com/wayfinder/wayfinder/internal/provider/resilience"
	"github.com/wayfinder/wayfinder/internal/session"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// RouterConfig holds configuration for the router.
type RouterConfig struct {
	Version     string
	BuildTime   string
	Logger      zerolog.Logger
	ServiceName string
	Metrics     *middleware.Metrics
	RequireTLS  bool

	// Sessions owns the live navigation sessions (required).
	Sessions *session.Manager

	// Venues is the venue directory (required).
	Venues venue.Directory

	// Registry reports upstream provider health (optional).
	Registry *resilience.Registry

	// Database is checked by readiness when set.
	Database handler.Pinger
}

// NewRouter creates a new chi router with all API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Set default service name if not provided
	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "wayfinder-api"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)            // Generate/propagate request ID first
	r.Use(middleware.Tracing(serviceName)) // Distributed tracing
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Middleware()) // HTTP metrics
	}
	r.Use(middleware.Logger(cfg.Logger))         // Structured logging
	r.Use(middleware.Recovery(cfg.Logger))       // Panic recovery
	r.Use(chimiddleware.RealIP)                  // Real IP extraction
	r.Use(middleware.SecurityHeaders)            // Security headers (HSTS, CSP, etc.)
	r.Use(middleware.RequireTLS(cfg.RequireTLS)) // TLS enforcement
	r.Use(middleware.ContentTypeJSON)            // JSON content type

	// Initialize handlers
	opsConfig := handler.OpsConfig{
		Version:   cfg.Version,
		BuildTime: cfg.BuildTime,
		Registry:  cfg.Registry,
		Database:  cfg.Database,
	}
	if cfg.Sessions != nil {
		opsConfig.Sessions = cfg.Sessions
	}
	opsHandler := handler.NewOpsHandler(opsConfig)
	venueHandler := handler.NewVenueHandler(cfg.Venues)
	sessionHandler := handler.NewSessionHandler(cfg.Sessions, cfg.Venues)
	qualityHandler := handler.NewQualityHandler(cfg.Sessions)

	// Create rate limit middleware for different endpoint categories
	expensiveRateLimit := middleware.RateLimitByIP(middleware.ExpensiveRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit)   // 100 req/min
	sessionRateLimit := middleware.RateLimitBySession(middleware.StandardRateLimit)
	telemetryRateLimit := middleware.RateLimitBySession(middleware.TelemetryRateLimit)

	// API v1 routes
	r.Route("/v1", func(r chi.Router) {
		// Ops endpoints (public)
		r.Route("/ops", func(r chi.Router) {
			r.Get("/health", opsHandler.HealthCheck)
			r.Get("/ready", opsHandler.ReadinessCheck)
			r.With(standardRateLimit).Get("/status", opsHandler.SystemStatus)
		})

		// Venue directory - standard rate limiting
		r.Route("/venues", func(r chi.Router) {
			r.Use(standardRateLimit)
			r.Get("/", venueHandler.ListVenues)
			r.Get("/{venueId}", venueHandler.GetVenue)
		})

		// Navigation sessions
		r.Route("/sessions", func(r chi.Router) {
			r.Use(middleware.RequireJSON)
			r.With(expensiveRateLimit).Post("/", sessionHandler.CreateSession)

			r.Route("/{"+middleware.SessionIDParam+"}", func(r chi.Router) {
				// High-frequency client reports
				r.Group(func(r chi.Router) {
					r.Use(telemetryRateLimit)
					r.Post("/position", sessionHandler.ReportPosition)
					r.Post("/telemetry", qualityHandler.ReportTelemetry)
				})

				r.Group(func(r chi.Router) {
					r.Use(sessionRateLimit)
					r.Get("/", sessionHandler.GetSession)
					r.Delete("/", sessionHandler.DeleteSession)

					// Location and venue selection; these may call upstream providers
					r.With(expensiveRateLimit).Post("/initialize", sessionHandler.Initialize)
					r.With(expensiveRateLimit).Post("/manual-location", sessionHandler.SetManualLocation)
					r.With(expensiveRateLimit).Post("/venue", sessionHandler.SelectVenue)

					r.Post("/view-mode:toggle", sessionHandler.ToggleViewMode)
					r.Post("/indoor", sessionHandler.SwitchToIndoor)
					r.Post("/outdoor", sessionHandler.SwitchToOutdoor)
					r.Post("/reset", sessionHandler.Reset)

					// Render quality
					r.Get("/quality", qualityHandler.GetQuality)
					r.Post("/quality:battery-saving", qualityHandler.EnableBatterySaving)
					r.Post("/quality:high", qualityHandler.EnableHighQuality)
					r.Post("/quality:adaptive", qualityHandler.EnableAdaptive)
				})
			})
		})
	})

	return r
}
