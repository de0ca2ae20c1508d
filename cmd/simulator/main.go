// Package main runs a headless navigation session: a simulated device walks
// from a start point to a venue while the state machine, resource cache,
// waypoint renderer and quality controller run as they would on a device.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/config"
	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/navigation"
	"github.com/wayfinder/wayfinder/internal/notify"
	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/routing"
	"github.com/wayfinder/wayfinder/internal/session"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

type options struct {
	venueID   string
	start     location.Coordinate
	speed     float64
	step      time.Duration
	battery   float64
	drain     float64
	reportFor time.Duration
}

func parseFlags() options {
	var o options
	flag.StringVar(&o.venueID, "venue", "sandton-city", "destination venue id")
	flag.Float64Var(&o.start.Lat, "lat", -26.1100, "start latitude")
	flag.Float64Var(&o.start.Lon, "lon", 28.0500, "start longitude")
	flag.Float64Var(&o.speed, "speed", 25, "walking speed in meters per second")
	flag.DurationVar(&o.step, "step", 500*time.Millisecond, "time between position updates")
	flag.Float64Var(&o.battery, "battery", 0.9, "starting battery level (0-1)")
	flag.Float64Var(&o.drain, "drain", 0.01, "battery drained per position update")
	flag.DurationVar(&o.reportFor, "linger", 5*time.Second, "how long to keep running after arrival")
	flag.Parse()
	return o
}

func main() {
	opts := parseFlags()

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly}).
		With().
		Timestamp().
		Str("service", "wayfinder-simulator").
		Str("version", Version).
		Logger()

	cfg, err := config.Load(".")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	venues := venue.NewInMemoryDirectory(venue.SeedVenues()...)
	target, err := venues.Get(ctx, opts.venueID)
	if err != nil {
		log.Fatal().Err(err).Str("venue_id", opts.venueID).Msg("unknown venue")
	}

	template := cfg.SessionConfig()
	template.Venues = venues
	template.Engine = routing.StubEngine{}
	template.Logger = log
	template.FrameLoop = true

	s := session.New(template)
	defer s.Close()

	arrived := make(chan navigation.ArrivalEvent, 1)
	s.AddSubscription(s.Machine.OnPhaseChange(func(c navigation.PhaseChange) {
		log.Info().
			Str("from", string(c.From)).
			Str("to", string(c.To)).
			Str("venue_id", c.VenueID).
			Msg("phase changed")
	}))
	s.AddSubscription(s.Machine.OnArrival(func(a navigation.ArrivalEvent) {
		select {
		case arrived <- a:
		default:
		}
	}))

	log.Info().
		Str("build_time", BuildTime).
		Str("venue_id", target.ID).
		Float64("distance_meters", location.Distance(opts.start, target.Location)).
		Msg("starting simulation")

	s.Start(ctx)

	if err := s.ReportPosition(opts.start, nil); err != nil {
		log.Fatal().Err(err).Msg("invalid start position")
	}
	if err := s.Machine.Initialize(ctx); err != nil {
		log.Fatal().Err(err).Msg("initialize failed")
	}
	if err := s.Machine.SelectVenue(ctx, *target); err != nil {
		log.Fatal().Err(err).Msg("route planning failed")
	}
	if route := s.Machine.State().Route; route != nil {
		log.Info().
			Float64("distance_meters", route.DistanceMeters).
			Float64("duration_seconds", route.DurationSeconds).
			Int("waypoints", len(s.Renderer.Waypoints())).
			Msg("route planned")
	}

	if !walk(ctx, s, target.Location, opts, arrived, log) {
		log.Info().Msg("simulation interrupted")
		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(opts.reportFor):
	}
	report(s, log)
}

// walk moves the device towards dest until arrival or ctx ends, feeding
// battery and memory readings as it goes. It reports whether the user arrived.
func walk(ctx context.Context, s *session.Session, dest location.Coordinate, opts options,
	arrived <-chan navigation.ArrivalEvent, log zerolog.Logger) bool {
	ticker := time.NewTicker(opts.step)
	defer ticker.Stop()

	stride := opts.speed * opts.step.Seconds()
	battery := opts.battery
	advised := make(map[string]bool)
	var lastNotice time.Time

	for step := 1; ; step++ {
		select {
		case <-ctx.Done():
			return false
		case a := <-arrived:
			log.Info().
				Str("venue_id", a.Venue.ID).
				Float64("distance_meters", a.DistanceMeters).
				Msg("arrived")
			return true
		case <-ticker.C:
		}

		pos := s.Device.MoveTowards(dest, stride)
		battery = max(battery-opts.drain, 0.05)
		s.ReportTelemetry(memoryUsage(s), battery, thermalFor(step))

		if step%10 == 0 {
			log.Debug().
				Float64("lat", pos.Lat).
				Float64("lon", pos.Lon).
				Float64("remaining_meters", location.Distance(pos, dest)).
				Msg("walking")
		}
		for _, advice := range s.Quality.PerformanceRecommendations() {
			if !advised[advice] {
				log.Warn().Str("advice", advice).Msg("performance advisory")
				advised[advice] = true
			}
		}
		if n, ok := s.Notices.Last(); ok && n.At.After(lastNotice) {
			lastNotice = n.At
			if n.Level == notify.LevelError {
				log.Error().Str("code", n.Code).Msg(n.Message)
			}
		}
	}
}

// memoryUsage approximates memory pressure from the live resource count.
func memoryUsage(s *session.Session) float64 {
	return min(0.3+float64(s.Cache.LiveResources())/200, 1)
}

// thermalFor warms the device up the longer the walk runs.
func thermalFor(step int) render.ThermalState {
	switch {
	case step > 240:
		return render.ThermalSerious
	case step > 120:
		return render.ThermalFair
	default:
		return render.ThermalNominal
	}
}

func report(s *session.Session, log zerolog.Logger) {
	st := s.Quality.Status()
	tier, _ := s.Quality.RecommendedSettings()
	stats := s.Cache.Stats()
	state := s.Machine.State()

	log.Info().
		Str("phase", string(state.Phase)).
		Bool("indoor", state.IndoorMode).
		Bool("performance_mode", st.PerformanceMode).
		Float64("target_frame_rate", st.TargetFrameRate).
		Str("recommended_tier", string(tier)).
		Int("live_resources", s.Cache.LiveResources()).
		Int("evictions", stats.Evictions).
		Int("cleanups", stats.Cleanups).
		Int("throttles", stats.Throttles).
		Msg("simulation finished")
}
