// Package session bundles one user's navigation core: location provider,
// state machine, render resource cache, waypoint renderer and quality
// controller, wired together and torn down as a unit.
package session

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/location/simulated"
	"github.com/wayfinder/wayfinder/internal/navigation"
	"github.com/wayfinder/wayfinder/internal/notify"
	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/render/cache"
	"github.com/wayfinder/wayfinder/internal/render/quality"
	"github.com/wayfinder/wayfinder/internal/render/waypoint"
	"github.com/wayfinder/wayfinder/internal/routing"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// Config is the template every session is built from.
type Config struct {
	// Venues is the shared venue directory (required).
	Venues venue.Directory

	// Engine plans routes (default: routing.StubEngine).
	Engine routing.Engine

	// Geocoder resolves manual addresses (optional).
	Geocoder location.Geocoder

	// Metrics records render instruments (optional).
	Metrics *render.Metrics

	// Logger is the parent logger; each session adds its id.
	Logger zerolog.Logger

	// Navigation tunes the state machine. Locator, Engine, Venues, Notices
	// and Logger are filled in per session.
	Navigation navigation.Config

	// Cache tunes the resource cache. Settings, Monitor, Metrics and Logger
	// are filled in per session.
	Cache cache.Config

	// Quality tunes the quality controller. Source, Settings, Pacer, Metrics
	// and Logger are filled in per session.
	Quality quality.Config

	// InitialTier is the starting quality preset (default: medium).
	InitialTier render.Tier

	// FrameLoop runs the renderer at the cache's target frame rate while the
	// session is started. Without it frames are driven by the caller.
	FrameLoop bool

	// NoticeHistory is how many notices a session keeps (default: 20).
	NoticeHistory int

	// WatchInterval is the device tracking interval (default: 1 second).
	WatchInterval time.Duration

	// Now is the clock (default: time.Now).
	Now func() time.Time
}

// Session is one navigation session and everything it owns.
type Session struct {
	ID        string
	CreatedAt time.Time

	Device   *simulated.Device
	Location *location.Provider
	Machine  *navigation.Machine
	Settings *render.SettingsStore
	Monitor  *render.ReportedMonitor
	Cache    *cache.ResourceCache
	Scene    *waypoint.HeadlessScene
	Renderer *waypoint.Renderer
	Quality  *quality.Controller
	Notices  *notify.Recorder

	logger    zerolog.Logger
	now       func() time.Time
	frameLoop bool
	lastSeen  atomic.Int64

	mu       sync.Mutex
	routeKey string
	origin   *location.Coordinate
	cancel   context.CancelFunc
	done     chan struct{}
	unsubs   []func()
	closed   bool
}

// New builds a stopped session from cfg.
func New(cfg Config) *Session {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	tier := cfg.InitialTier
	if tier == "" {
		tier = render.TierMedium
	}
	watch := cfg.WatchInterval
	if watch == 0 {
		watch = time.Second
	}

	id := uuid.NewString()
	logger := cfg.Logger.With().Str("session_id", id).Logger()
	notices := notify.NewRecorder(cfg.NoticeHistory, notify.LogSink{Logger: logger})

	device := simulated.NewDevice()
	provider := location.NewProvider(location.ProviderConfig{
		Device:   device,
		Geocoder: cfg.Geocoder,
		Notices:  notices,
		Logger:   logger,
		Watch:    location.WatchOptions{Interval: watch, DistanceFilter: 1},
	})

	navCfg := cfg.Navigation
	navCfg.Locator = provider
	navCfg.Engine = cfg.Engine
	navCfg.Venues = cfg.Venues
	navCfg.Notices = notices
	navCfg.Logger = logger
	machine := navigation.NewMachine(navCfg)

	settings := render.NewSettingsStore(render.Preset(tier), logger)
	monitor := render.NewReportedMonitor()

	cacheCfg := cfg.Cache
	cacheCfg.Settings = settings
	cacheCfg.Monitor = monitor
	cacheCfg.Metrics = cfg.Metrics
	cacheCfg.Logger = logger
	rc := cache.New(cacheCfg)

	scene := waypoint.NewHeadlessScene()
	renderer := waypoint.NewRenderer(waypoint.Config{
		Scene:    scene,
		Cache:    rc,
		Settings: settings,
		Metrics:  cfg.Metrics,
		Logger:   logger,
	})

	qualityCfg := cfg.Quality
	qualityCfg.Source = rc
	qualityCfg.Settings = settings
	qualityCfg.Pacer = rc
	qualityCfg.Metrics = cfg.Metrics
	qualityCfg.Logger = logger
	controller := quality.New(qualityCfg)

	s := &Session{
		ID:        id,
		CreatedAt: now(),
		Device:    device,
		Location:  provider,
		Machine:   machine,
		Settings:  settings,
		Monitor:   monitor,
		Cache:     rc,
		Scene:     scene,
		Renderer:  renderer,
		Quality:   controller,
		Notices:   notices,
		logger:    logger,
		now:       now,
		frameLoop: cfg.FrameLoop,
	}
	s.Touch()
	s.unsubs = append(s.unsubs, machine.OnStateChange(s.onStateChange))
	return s
}

var _ quality.Pacer = (*cache.ResourceCache)(nil)

// Start launches the session's background work: cache sampling, quality
// control and, when enabled, the frame loop.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || s.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.Cache.Start(ctx)
	s.Quality.Start(ctx)

	if s.frameLoop {
		s.done = make(chan struct{})
		go func(done chan struct{}) {
			defer close(done)
			_ = s.Renderer.RunAt(ctx) //nolint:errcheck // returns when the session stops
		}(s.done)
	}
	s.logger.Debug().Bool("frame_loop", s.frameLoop).Msg("session started")
}

// Close stops everything the session runs and releases its resources. It is
// idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel, done, unsubs := s.cancel, s.done, s.unsubs
	s.unsubs = nil
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
	for _, off := range unsubs {
		off()
	}

	s.Quality.Stop()
	s.Machine.Close()
	s.Renderer.Dispose()
	s.Cache.Dispose()
	s.Location.Close()

	s.logger.Info().Msg("session closed")
}

// Closed reports whether Close was called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// AddSubscription ties off to the session's lifetime.
func (s *Session) AddSubscription(off func()) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		off()
		return
	}
	s.unsubs = append(s.unsubs, off)
	s.mu.Unlock()
}

// Touch marks the session as used now.
func (s *Session) Touch() {
	s.lastSeen.Store(s.now().UnixNano())
}

// LastSeen returns when the session was last used.
func (s *Session) LastSeen() time.Time {
	return time.Unix(0, s.lastSeen.Load())
}

// ReportPosition moves the device. While tracking, the fix flows through the
// provider into the machine.
func (s *Session) ReportPosition(c location.Coordinate, accuracy *float64) error {
	if err := c.Validate(); err != nil {
		return fmt.Errorf("%w: %v", location.ErrPositionUnavailable, err)
	}
	if accuracy != nil {
		s.Device.SetAccuracy(*accuracy)
	}
	s.Device.SetPosition(c)
	return nil
}

// ReportTelemetry feeds client readings into the device monitor and applies
// them to the cache at once.
func (s *Session) ReportTelemetry(memory, battery float64, thermal render.ThermalState) {
	s.Monitor.Report(memory, battery, thermal)
	s.Cache.CheckMemory()
}

// onStateChange keeps the scene in step with the route and the user's
// position. It only touches the renderer and scene, never the machine.
func (s *Session) onStateChange(c navigation.StateChange) {
	route := c.Current.Route

	s.mu.Lock()
	key := routeKey(route)
	changed := key != s.routeKey
	s.routeKey = key
	if route == nil {
		s.origin = nil
	} else {
		origin := route.StartLocation.Coordinate
		s.origin = &origin
	}
	origin := s.origin
	s.mu.Unlock()

	if changed {
		s.Renderer.ClearAll()
		for _, wp := range waypoint.FromRoute(route) {
			if err := s.Renderer.AddWaypoint(wp); err != nil {
				s.logger.Warn().Err(err).Str("waypoint_id", wp.ID).Msg("route waypoint not placed")
			}
		}
		if route != nil {
			s.logger.Debug().
				Str("venue_id", route.Destination.ID).
				Int("waypoints", len(route.Waypoints)).
				Msg("route waypoints placed")
		}
	}

	if origin != nil && c.Current.CurrentLocation != nil {
		s.Scene.SetViewerPosition(waypoint.LocalPosition(*origin, c.Current.CurrentLocation.Coordinate))
	} else if route == nil {
		s.Scene.SetViewerPosition(waypoint.Vec3{})
	}
}

func routeKey(r *routing.NavigationRoute) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("%s|%.6f,%.6f|%s|%d",
		r.Destination.ID, r.StartLocation.Lat, r.StartLocation.Lon, r.Polyline, len(r.Waypoints))
}
