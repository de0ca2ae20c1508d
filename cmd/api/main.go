// Package main provides the entrypoint for the Wayfinder API server.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/api"
	"github.com/wayfinder/wayfinder/internal/api/handler"
	"github.com/wayfinder/wayfinder/internal/api/middleware"
	"github.com/wayfinder/wayfinder/internal/config"
	"github.com/wayfinder/wayfinder/internal/database"
	"github.com/wayfinder/wayfinder/internal/events/pubsub"
	"github.com/wayfinder/wayfinder/internal/location/nominatim"
	"github.com/wayfinder/wayfinder/internal/provider/resilience"
	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/routing"
	"github.com/wayfinder/wayfinder/internal/routing/openrouteservice"
	"github.com/wayfinder/wayfinder/internal/session"
	"github.com/wayfinder/wayfinder/internal/telemetry"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	const serviceName = "wayfinder-api"

	// Setup structured logging
	log := zerolog.New(os.Stdout).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	if level, parseErr := zerolog.ParseLevel(cfg.LogLevel); parseErr == nil && cfg.LogLevel != "" {
		log = log.Level(level)
	}

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting Wayfinder API")

	// Initialize OpenTelemetry
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, cfg.TelemetryConfig(serviceName, Version))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Float64("sample_ratio", cfg.Telemetry.SampleRatio).
			Msg("OpenTelemetry initialized")
	}

	// Initialize metrics
	httpMetrics, err := middleware.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize HTTP metrics")
	}
	renderMetrics, err := render.NewMetrics()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize render metrics")
	}

	// Venue directory: Postgres when configured, the built-in seeds otherwise
	var (
		venues venue.Directory
		pinger handler.Pinger
	)
	if dbConfig := cfg.DatabaseConfig(); dbConfig.Enabled() {
		pool, dbErr := connectDatabase(ctx, dbConfig, log)
		if dbErr != nil {
			log.Fatal().Err(dbErr).Msg("failed to prepare database")
		}
		defer pool.Close()
		venues = venue.NewPostgresDirectory(pool)
		pinger = pool
	} else {
		venues = venue.NewInMemoryDirectory(venue.SeedVenues()...)
		log.Warn().Msg("no database configured, serving the built-in venue directory")
	}

	registry := resilience.NewRegistry()

	template := cfg.SessionConfig()
	template.Venues = venues
	template.Engine = routeEngine(cfg.Providers.OpenRouteService, registry, log)
	template.Metrics = renderMetrics
	template.Logger = log
	if nc := cfg.Providers.Nominatim; nc.Enabled {
		template.Geocoder = nominatim.NewClient(nominatim.Config{
			BaseURL:      nc.BaseURL,
			UserAgent:    nc.UserAgent,
			Email:        nc.Email,
			CountryCodes: nc.CountryCodes,
			Timeout:      nc.Timeout,
			Registry:     registry,
			Logger:       log,
		})
		log.Info().Msg("nominatim geocoder initialized")
	} else {
		log.Warn().Msg("nominatim disabled - manual locations will fail")
	}

	managerConfig := cfg.ManagerConfig(template)

	// Navigation event stream (optional)
	if pc := cfg.PubSub; pc.ProjectID != "" {
		sender, psErr := pubsub.NewTopicSender(ctx, pc.ProjectID, pc.Topic)
		if psErr != nil {
			log.Fatal().Err(psErr).Msg("failed to create pubsub publisher")
		}
		defer func() {
			if closeErr := sender.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub publisher")
			}
		}()

		forwarder := pubsub.NewForwarder(pubsub.Config{
			Sender:    sender,
			Logger:    log,
			QueueSize: pc.QueueSize,
		})
		forwarder.Start(ctx)
		defer forwarder.Stop()

		managerConfig.Hooks = append(managerConfig.Hooks, func(s *session.Session) func() {
			return forwarder.Attach(s.ID, s.Machine)
		})
		log.Info().
			Str("project_id", pc.ProjectID).
			Str("topic", pc.Topic).
			Msg("navigation events forwarded to pubsub")
	}

	sessions := session.NewManager(managerConfig)
	sessions.Start(ctx)
	defer sessions.Close()

	// Create router with configuration
	routerConfig := api.RouterConfig{
		Version:     Version,
		BuildTime:   BuildTime,
		Logger:      log,
		ServiceName: serviceName,
		Metrics:     httpMetrics,
		RequireTLS:  cfg.Server.RequireTLS,
		Sessions:    sessions,
		Venues:      venues,
		Registry:    registry,
		Database:    pinger,
	}
	router := api.NewRouter(routerConfig)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		log.Error().Err(err).Msg("server error")
	}

	log.Info().Msg("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("server stopped")
}

// connectDatabase opens the pool, applies the schema and seeds an empty
// venues table.
func connectDatabase(ctx context.Context, cfg database.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	pool, err := database.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("database connected")

	if err := database.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	dir := venue.NewPostgresDirectory(pool)
	existing, err := dir.List(ctx)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if len(existing) == 0 {
		for _, v := range venue.SeedVenues() {
			if err := dir.Upsert(ctx, v); err != nil {
				pool.Close()
				return nil, err
			}
		}
		log.Info().Int("venues", len(venue.SeedVenues())).Msg("venue directory seeded")
	}
	return pool, nil
}

// routeEngine returns an OpenRouteService-backed engine when an API key is
// configured and straight-line routes otherwise.
func routeEngine(cfg config.OpenRouteServiceConfig, registry *resilience.Registry, log zerolog.Logger) routing.Engine {
	if cfg.APIKey == "" {
		log.Warn().Msg("no OpenRouteService API key - using straight-line routes")
		return routing.StubEngine{}
	}

	client := openrouteservice.NewClient(openrouteservice.ClientConfig{
		APIKey:   cfg.APIKey,
		BaseURL:  cfg.BaseURL,
		Timeout:  cfg.Timeout,
		Language: cfg.Language,
		Registry: registry,
		Logger:   log,
	})
	cached := routing.NewCachingProvider(routing.CacheConfig{
		Provider: client,
		Logger:   log,
		TTL:      cfg.CacheTTL,
	})
	log.Info().Msg("OpenRouteService directions initialized")
	return routing.NewDirectionsEngine(routing.DirectionsEngineConfig{
		Provider: cached,
		Logger:   log,
	})
}
