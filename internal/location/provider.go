package location

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/events"
	"github.com/wayfinder/wayfinder/internal/notify"
)

// ProviderConfig holds configuration for the location provider.
type ProviderConfig struct {
	// Device is the platform location service (required).
	Device Device

	// Geocoder resolves addresses (optional). Without it reverse geocoding is
	// skipped and GeocodeAddress always fails.
	Geocoder Geocoder

	// Notices receives user-facing failure notices (optional).
	Notices notify.Sink

	// Logger for provider operations.
	Logger zerolog.Logger

	// Watch controls continuous tracking (default: every 2s or 5m of movement).
	Watch WatchOptions

	// FixTimeout bounds a single fix request (default: 15 seconds).
	FixTimeout time.Duration

	// GeocodeTimeout bounds a single geocoding call (default: 5 seconds).
	GeocodeTimeout time.Duration
}

// Provider acquires and tracks the user's position and fans updates out to subscribers.
type Provider struct {
	device         Device
	geocoder       Geocoder
	notices        notify.Sink
	logger         zerolog.Logger
	watch          WatchOptions
	fixTimeout     time.Duration
	geocodeTimeout time.Duration

	updates *events.Bus[UserLocation]

	mu      sync.RWMutex
	current *UserLocation

	trackMu   sync.Mutex
	stopWatch func()
}

// NewProvider creates a location provider.
func NewProvider(cfg ProviderConfig) *Provider {
	watch := cfg.Watch
	if watch.Interval == 0 {
		watch.Interval = 2 * time.Second
	}
	if watch.DistanceFilter == 0 {
		watch.DistanceFilter = 5
	}

	fixTimeout := cfg.FixTimeout
	if fixTimeout == 0 {
		fixTimeout = 15 * time.Second
	}

	geocodeTimeout := cfg.GeocodeTimeout
	if geocodeTimeout == 0 {
		geocodeTimeout = 5 * time.Second
	}

	notices := cfg.Notices
	if notices == nil {
		notices = notify.Discard
	}

	return &Provider{
		device:         cfg.Device,
		geocoder:       cfg.Geocoder,
		notices:        notices,
		logger:         cfg.Logger,
		watch:          watch,
		fixTimeout:     fixTimeout,
		geocodeTimeout: geocodeTimeout,
		updates:        events.NewBus[UserLocation]("location", cfg.Logger),
	}
}

// RequestFix asks for permission, takes a single fix and reverse geocodes it.
// On failure the user is notified and (nil, err) is returned; err wraps
// ErrPermissionDenied or ErrPositionUnavailable.
func (p *Provider) RequestFix(ctx context.Context) (*UserLocation, error) {
	granted, err := p.requestPermission(ctx)
	if err != nil || !granted {
		if err == nil {
			err = ErrPermissionDenied
		} else {
			err = fmt.Errorf("%w: %v", ErrPermissionDenied, err)
		}
		p.fail(notify.CodePermissionDenied, "Location access is required to find venues near you.", err)
		return nil, err
	}

	fixCtx, cancel := context.WithTimeout(ctx, p.fixTimeout)
	defer cancel()

	fix, err := p.currentPosition(fixCtx)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
		p.fail(notify.CodePositionUnavailable, "We could not determine your position. Try again or enter an address.", err)
		return nil, err
	}

	loc := UserLocation{
		Coordinate: fix.Coordinate,
		Accuracy:   fix.Accuracy,
		Timestamp:  fix.Timestamp,
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	loc.Address = p.reverseGeocode(ctx, loc.Coordinate)

	p.logger.Debug().
		Float64("lat", loc.Lat).
		Float64("lon", loc.Lon).
		Str("address", loc.Address).
		Msg("acquired position fix")

	p.publish(loc)
	return &loc, nil
}

func (p *Provider) requestPermission(ctx context.Context) (granted bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			granted, err = false, fmt.Errorf("device panic: %v", r)
		}
	}()
	return p.device.RequestPermission(ctx)
}

func (p *Provider) currentPosition(ctx context.Context) (fix Fix, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("device panic: %v", r)
		}
	}()
	fix, err = p.device.CurrentPosition(ctx)
	if err == nil {
		err = fix.Coordinate.Validate()
	}
	return fix, err
}

// reverseGeocode returns an address for c, or "" when geocoding is unavailable.
func (p *Provider) reverseGeocode(ctx context.Context, c Coordinate) string {
	if p.geocoder == nil {
		return ""
	}

	geoCtx, cancel := context.WithTimeout(ctx, p.geocodeTimeout)
	defer cancel()

	address, err := p.geocoder.Reverse(geoCtx, c)
	if err != nil {
		p.logger.Warn().Err(err).
			Float64("lat", c.Lat).
			Float64("lon", c.Lon).
			Msg("reverse geocoding failed")
		return ""
	}
	return address
}

// StartTracking subscribes to continuous position updates. It is a no-op when
// tracking is already active. Tracking outlives ctx's cancellation; call
// StopTracking to end it.
func (p *Provider) StartTracking(ctx context.Context) error {
	p.trackMu.Lock()
	defer p.trackMu.Unlock()

	if p.stopWatch != nil {
		return nil
	}

	stop, err := p.device.Watch(context.WithoutCancel(ctx), p.watch, p.onFix)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrPositionUnavailable, err)
		p.fail(notify.CodePositionUnavailable, "Live position updates are unavailable.", err)
		return err
	}
	if stop == nil {
		stop = func() {}
	}
	p.stopWatch = stop

	p.logger.Debug().
		Dur("interval", p.watch.Interval).
		Float64("distance_filter", p.watch.DistanceFilter).
		Msg("location tracking started")
	return nil
}

// StopTracking ends continuous updates. It is safe to call when not tracking.
func (p *Provider) StopTracking() {
	p.trackMu.Lock()
	defer p.trackMu.Unlock()

	if p.stopWatch == nil {
		return
	}
	p.stopWatch()
	p.stopWatch = nil

	p.logger.Debug().Msg("location tracking stopped")
}

// Tracking reports whether continuous updates are active.
func (p *Provider) Tracking() bool {
	p.trackMu.Lock()
	defer p.trackMu.Unlock()
	return p.stopWatch != nil
}

func (p *Provider) onFix(fix Fix) {
	if err := fix.Coordinate.Validate(); err != nil {
		p.logger.Warn().Err(err).Msg("dropping invalid fix")
		return
	}

	loc := UserLocation{
		Coordinate: fix.Coordinate,
		Accuracy:   fix.Accuracy,
		Timestamp:  fix.Timestamp,
	}
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	p.publish(loc)
}

// SetLocation adopts loc as the current position and publishes it, as if the
// device had produced it.
func (p *Provider) SetLocation(loc UserLocation) {
	if loc.Timestamp.IsZero() {
		loc.Timestamp = time.Now()
	}
	p.publish(loc)
}

func (p *Provider) publish(loc UserLocation) {
	p.mu.Lock()
	cpy := loc
	p.current = &cpy
	p.mu.Unlock()

	p.updates.Publish(loc)
}

// CurrentLocation returns the most recent location, if any.
func (p *Provider) CurrentLocation() (UserLocation, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.current == nil {
		return UserLocation{}, false
	}
	return *p.current, true
}

// Subscribe registers fn for every published location and returns an unsubscribe func.
func (p *Provider) Subscribe(fn func(UserLocation)) (unsubscribe func()) {
	return p.updates.Subscribe(fn)
}

// CalculateDistance returns the haversine distance between a and b in meters.
func (p *Provider) CalculateDistance(a, b Coordinate) float64 {
	return Distance(a, b)
}

// IsWithinProximity reports whether the current position is within radius meters
// of point. It is false when there is no current position.
func (p *Provider) IsWithinProximity(point Coordinate, radius float64) bool {
	current, ok := p.CurrentLocation()
	if !ok {
		return false
	}
	return Distance(current.Coordinate, point) <= radius
}

// GeocodeAddress resolves a free-form address. Failures wrap ErrGeocodeFailed.
func (p *Provider) GeocodeAddress(ctx context.Context, address string) (*UserLocation, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		err := fmt.Errorf("%w: empty address", ErrGeocodeFailed)
		p.fail(notify.CodeGeocodeFailed, "Enter an address to search for.", err)
		return nil, err
	}
	if p.geocoder == nil {
		err := fmt.Errorf("%w: no geocoder configured", ErrGeocodeFailed)
		p.fail(notify.CodeGeocodeFailed, "Address search is unavailable.", err)
		return nil, err
	}

	geoCtx, cancel := context.WithTimeout(ctx, p.geocodeTimeout)
	defer cancel()

	c, err := p.geocoder.Forward(geoCtx, address)
	if err == nil {
		err = c.Validate()
	}
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrGeocodeFailed, err)
		p.fail(notify.CodeGeocodeFailed, fmt.Sprintf("We could not find %q.", address), err)
		return nil, err
	}

	return &UserLocation{
		Coordinate: c,
		Address:    address,
		Timestamp:  time.Now(),
	}, nil
}

// Close stops tracking and drops all subscribers.
func (p *Provider) Close() {
	p.StopTracking()
	p.updates.Clear()
}

func (p *Provider) fail(code, message string, err error) {
	p.logger.Warn().Err(err).Str("code", code).Msg("location operation failed")
	p.notices.Notify(notify.New(notify.LevelError, code, message))
}
