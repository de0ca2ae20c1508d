package navigation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/events"
	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/notify"
	"github.com/wayfinder/wayfinder/internal/routing"
	"github.com/wayfinder/wayfinder/internal/task"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// Locator is the part of location.Provider the machine depends on.
type Locator interface {
	RequestFix(ctx context.Context) (*location.UserLocation, error)
	StartTracking(ctx context.Context) error
	StopTracking()
	GeocodeAddress(ctx context.Context, address string) (*location.UserLocation, error)
	SetLocation(loc location.UserLocation)
	CurrentLocation() (location.UserLocation, bool)
	IsWithinProximity(point location.Coordinate, radius float64) bool
	CalculateDistance(a, b location.Coordinate) float64
	Subscribe(fn func(location.UserLocation)) (unsubscribe func())
}

// Config holds configuration for the navigation machine.
type Config struct {
	// Locator supplies positions (required).
	Locator Locator

	// Engine plans routes (default: routing.StubEngine).
	Engine routing.Engine

	// Venues is the venue directory used for nearby search (required).
	Venues venue.Directory

	// Notices receives user-facing notices (optional).
	Notices notify.Sink

	// Logger for machine operations.
	Logger zerolog.Logger

	// ProximityInterval is how often arrival is checked (default: 5 seconds).
	ProximityInterval time.Duration

	// ArrivalRadius is the distance in meters that counts as arrived (default: 100).
	ArrivalRadius float64

	// IndoorSwitchDelay is the pause between arrival and the automatic indoor
	// switch for indoor-capable venues (default: 2 seconds).
	IndoorSwitchDelay time.Duration

	// NearbyRadius bounds the nearby venue search in meters (default: 50 km).
	NearbyRadius float64

	// NearbyLimit caps the nearby venue list (default: 20).
	NearbyLimit int
}

// Machine is the navigation state machine for one session.
//
// Every mutation goes through setState, which serializes writers and
// dispatches change notifications before the next writer runs. Handlers
// registered with OnStateChange, OnPhaseChange and OnArrival may read the
// machine but must not call its mutating methods synchronously.
type Machine struct {
	locator Locator
	engine  routing.Engine
	venues  venue.Directory
	notices notify.Sink
	logger  zerolog.Logger

	proximityInterval time.Duration
	arrivalRadius     float64
	indoorSwitchDelay time.Duration
	nearbyRadius      float64
	nearbyLimit       int

	stateBus   *events.Bus[StateChange]
	phaseBus   *events.Bus[PhaseChange]
	arrivalBus *events.Bus[ArrivalEvent]

	// writeMu serializes setState callers across mutation and dispatch.
	writeMu sync.Mutex
	mu      sync.RWMutex
	state   State

	pollMu  sync.Mutex
	poller  *task.Periodic
	pollGen uint64

	indoorMu    sync.Mutex
	indoorTimer *time.Timer
	indoorGen   uint64

	planMu  sync.Mutex
	planGen uint64

	ctx         context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	closeOnce   sync.Once
}

var _ Locator = (*location.Provider)(nil)

// errStale rejects an update computed against a superseded state.
var errStale = errors.New("stale update")

// NewMachine creates a machine in PhaseInitializing and subscribes it to
// location updates.
func NewMachine(cfg Config) *Machine {
	engine := cfg.Engine
	if engine == nil {
		engine = routing.StubEngine{}
	}
	notices := cfg.Notices
	if notices == nil {
		notices = notify.Discard
	}
	proximityInterval := cfg.ProximityInterval
	if proximityInterval == 0 {
		proximityInterval = 5 * time.Second
	}
	arrivalRadius := cfg.ArrivalRadius
	if arrivalRadius == 0 {
		arrivalRadius = 100
	}
	indoorSwitchDelay := cfg.IndoorSwitchDelay
	if indoorSwitchDelay == 0 {
		indoorSwitchDelay = 2 * time.Second
	}
	nearbyRadius := cfg.NearbyRadius
	if nearbyRadius == 0 {
		nearbyRadius = venue.DefaultNearbyRadius
	}
	nearbyLimit := cfg.NearbyLimit
	if nearbyLimit == 0 {
		nearbyLimit = venue.DefaultNearbyLimit
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Machine{
		locator:           cfg.Locator,
		engine:            engine,
		venues:            cfg.Venues,
		notices:           notices,
		logger:            cfg.Logger,
		proximityInterval: proximityInterval,
		arrivalRadius:     arrivalRadius,
		indoorSwitchDelay: indoorSwitchDelay,
		nearbyRadius:      nearbyRadius,
		nearbyLimit:       nearbyLimit,
		stateBus:          events.NewBus[StateChange]("navigation.state", cfg.Logger),
		phaseBus:          events.NewBus[PhaseChange]("navigation.phase", cfg.Logger),
		arrivalBus:        events.NewBus[ArrivalEvent]("navigation.arrival", cfg.Logger),
		state: State{
			Phase:    PhaseInitializing,
			ViewMode: ViewFirstPerson,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	m.unsubscribe = m.locator.Subscribe(m.onLocation)
	return m
}

// State returns a copy of the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Clone()
}

// Phase returns the current phase.
func (m *Machine) Phase() Phase {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state.Phase
}

// OnStateChange registers fn for every accepted state update.
func (m *Machine) OnStateChange(fn func(StateChange)) (unsubscribe func()) {
	return m.stateBus.Subscribe(fn)
}

// OnPhaseChange registers fn for every phase change.
func (m *Machine) OnPhaseChange(fn func(PhaseChange)) (unsubscribe func()) {
	return m.phaseBus.Subscribe(fn)
}

// OnArrival registers fn for arrival at the selected venue.
func (m *Machine) OnArrival(fn func(ArrivalEvent)) (unsubscribe func()) {
	return m.arrivalBus.Subscribe(fn)
}

// setState is the single entry point for state mutation. fn edits a copy of
// the current state; the change is rejected if fn fails or the resulting
// phase change is not an allowed edge.
func (m *Machine) setState(fn func(*State) error) error {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	prev := m.state.Clone()
	next := m.state.Clone()
	if err := fn(&next); err != nil {
		m.mu.Unlock()
		return err
	}
	if !CanTransition(prev.Phase, next.Phase) {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, prev.Phase, next.Phase)
	}
	m.state = next
	m.mu.Unlock()

	current := next.Clone()
	m.stateBus.Publish(StateChange{Previous: prev, Current: current})

	if prev.Phase != current.Phase {
		change := PhaseChange{From: prev.Phase, To: current.Phase, At: time.Now()}
		if current.SelectedVenue != nil {
			change.VenueID = current.SelectedVenue.ID
		}
		m.logger.Info().
			Str("from", string(prev.Phase)).
			Str("to", string(current.Phase)).
			Str("venue_id", change.VenueID).
			Msg("navigation phase changed")
		m.phaseBus.Publish(change)
	}
	return nil
}

// Initialize starts a session: it clears any previous selection, acquires a
// fix and, on success, enters venue selection with the nearby venues. On a
// failed fix the machine stays in PhaseLocationDetection and the error is
// returned.
func (m *Machine) Initialize(ctx context.Context) error {
	m.stopActivity()

	err := m.setState(func(s *State) error {
		clearSelection(s)
		s.NearbyVenues = nil
		s.Phase = PhaseLocationDetection
		return nil
	})
	if err != nil {
		return err
	}

	loc, err := m.locator.RequestFix(ctx)
	if err != nil {
		return err
	}
	return m.enterVenueSelection(ctx, *loc)
}

// SetManualLocation geocodes address and treats the result as a fresh fix.
// It is accepted during location detection and venue selection; on failure the
// state is unchanged.
func (m *Machine) SetManualLocation(ctx context.Context, address string) error {
	phase := m.Phase()
	if phase != PhaseLocationDetection && phase != PhaseVenueSelection {
		return fmt.Errorf("%w: manual location during %s", ErrInvalidTransition, phase)
	}

	loc, err := m.locator.GeocodeAddress(ctx, address)
	if err != nil {
		return err
	}

	m.locator.SetLocation(*loc)
	return m.enterVenueSelection(ctx, *loc)
}

func (m *Machine) enterVenueSelection(ctx context.Context, loc location.UserLocation) error {
	nearby, err := m.venues.Nearby(ctx, loc.Coordinate, m.nearbyRadius, m.nearbyLimit)
	if err != nil {
		m.logger.Warn().Err(err).Msg("nearby venue search failed")
		nearby = nil
	}

	return m.setState(func(s *State) error {
		cpy := loc
		s.CurrentLocation = &cpy
		s.NearbyVenues = nearby
		s.Phase = PhaseVenueSelection
		return nil
	})
}

// SelectVenue plans a route to v and starts outdoor navigation. It fails with
// ErrPreconditionFailed when there is no current location, and with an error
// wrapping routing.ErrRouteUnavailable when planning fails, in which case the
// machine returns to venue selection.
func (m *Machine) SelectVenue(ctx context.Context, v venue.Venue) error {
	current := m.State()
	if current.CurrentLocation == nil {
		err := fmt.Errorf("%w: no current location", ErrPreconditionFailed)
		m.notices.Notify(notify.New(notify.LevelWarning, notify.CodePreconditionFailed,
			"We need your location before planning a route."))
		return err
	}

	m.planMu.Lock()
	m.planGen++
	gen := m.planGen
	m.planMu.Unlock()

	selected := v.Clone()
	err := m.setState(func(s *State) error {
		s.SelectedVenue = &selected
		s.Route = nil
		s.IndoorMode = false
		s.Phase = PhaseRoutePlanning
		return nil
	})
	if err != nil {
		return err
	}
	m.stopPoller()
	m.cancelIndoorSwitch()

	origin := *current.CurrentLocation
	route, err := m.engine.PlanRoute(ctx, origin, selected)
	if err == nil && route == nil {
		err = routing.ErrRouteUnavailable
	}
	if err != nil {
		if !errors.Is(err, routing.ErrRouteUnavailable) {
			err = fmt.Errorf("%w: %w", routing.ErrRouteUnavailable, err)
		}
		m.logger.Warn().Err(err).Str("venue_id", v.ID).Msg("route planning failed")
		m.notices.Notify(notify.New(notify.LevelError, notify.CodeRouteUnavailable,
			fmt.Sprintf("We could not plan a route to %s.", v.Name)))

		_ = m.setState(func(s *State) error { //nolint:errcheck // a stale plan leaves the newer state alone
			if !m.planCurrent(gen) || s.Phase != PhaseRoutePlanning {
				return errStale
			}
			s.SelectedVenue = nil
			s.Phase = PhaseVenueSelection
			return nil
		})
		return err
	}

	err = m.setState(func(s *State) error {
		if !m.planCurrent(gen) || s.Phase != PhaseRoutePlanning {
			return errStale
		}
		s.Route = route.Clone()
		s.Phase = PhaseOutdoorNavigation
		return nil
	})
	if errors.Is(err, errStale) {
		m.logger.Debug().Str("venue_id", v.ID).Msg("discarding superseded route")
		return nil
	}
	if err != nil {
		return err
	}

	m.logger.Info().
		Str("venue_id", v.ID).
		Float64("distance_m", route.DistanceMeters).
		Float64("duration_s", route.DurationSeconds).
		Int("waypoints", len(route.Waypoints)).
		Msg("route planned")

	if err := m.locator.StartTracking(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("continuous tracking unavailable, relying on last fix")
	}
	m.startPoller()
	return nil
}

func (m *Machine) planCurrent(gen uint64) bool {
	m.planMu.Lock()
	defer m.planMu.Unlock()
	return gen == m.planGen
}

// ToggleViewMode flips between first-person and overhead presentation and
// returns the new mode.
func (m *Machine) ToggleViewMode() ViewMode {
	var mode ViewMode
	_ = m.setState(func(s *State) error { //nolint:errcheck // self-loop is always allowed
		if s.ViewMode == ViewOverhead {
			s.ViewMode = ViewFirstPerson
		} else {
			s.ViewMode = ViewOverhead
		}
		mode = s.ViewMode
		return nil
	})
	return mode
}

// SwitchToIndoorMode enters indoor navigation and suspends proximity polling.
// The selected venue must support indoor navigation.
func (m *Machine) SwitchToIndoorMode() error {
	err := m.setState(func(s *State) error {
		if err := requireIndoorVenue(s); err != nil {
			return err
		}
		s.IndoorMode = true
		s.Phase = PhaseIndoorNavigation
		return nil
	})
	if err != nil {
		return err
	}
	m.stopPoller()
	m.cancelIndoorSwitch()
	return nil
}

// SwitchToOutdoorMode leaves indoor navigation and resumes proximity polling.
// The selected venue must support indoor navigation.
func (m *Machine) SwitchToOutdoorMode() error {
	err := m.setState(func(s *State) error {
		if err := requireIndoorVenue(s); err != nil {
			return err
		}
		s.IndoorMode = false
		s.Phase = PhaseOutdoorNavigation
		return nil
	})
	if err != nil {
		return err
	}
	m.cancelIndoorSwitch()
	m.startPoller()
	return nil
}

func requireIndoorVenue(s *State) error {
	if s.SelectedVenue == nil {
		return fmt.Errorf("%w: no venue selected", ErrPreconditionFailed)
	}
	if !s.SelectedVenue.HasIndoorNavigation {
		return fmt.Errorf("%w: %s has no indoor navigation", ErrPreconditionFailed, s.SelectedVenue.ID)
	}
	return nil
}

// Reset stops tracking, polling and any pending indoor switch, clears the
// selection and returns to location detection.
func (m *Machine) Reset() {
	m.stopActivity()

	_ = m.setState(func(s *State) error { //nolint:errcheck // location detection is reachable from every phase
		clearSelection(s)
		s.NearbyVenues = nil
		s.Phase = PhaseLocationDetection
		return nil
	})
}

// Close resets the machine and releases its subscriptions. It is idempotent.
func (m *Machine) Close() {
	m.closeOnce.Do(func() {
		m.stopActivity()
		m.unsubscribe()
		m.cancel()
		m.stateBus.Clear()
		m.phaseBus.Clear()
		m.arrivalBus.Clear()
	})
}

// Polling reports whether the proximity poller is running.
func (m *Machine) Polling() bool {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	return m.poller != nil && m.poller.Running()
}

// IndoorSwitchPending reports whether an automatic indoor switch is scheduled.
func (m *Machine) IndoorSwitchPending() bool {
	m.indoorMu.Lock()
	defer m.indoorMu.Unlock()
	return m.indoorTimer != nil
}

func clearSelection(s *State) {
	s.SelectedVenue = nil
	s.Route = nil
	s.IndoorMode = false
}

func (m *Machine) stopActivity() {
	m.planMu.Lock()
	m.planGen++
	m.planMu.Unlock()

	m.locator.StopTracking()
	m.stopPoller()
	m.cancelIndoorSwitch()
}

func (m *Machine) onLocation(loc location.UserLocation) {
	_ = m.setState(func(s *State) error { //nolint:errcheck // self-loop is always allowed
		cpy := loc
		s.CurrentLocation = &cpy
		return nil
	})
}

// startPoller replaces any running poller with a new one. Ticks from a
// replaced poller are discarded by generation.
func (m *Machine) startPoller() {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	if m.poller != nil {
		m.poller.Stop()
		m.poller = nil
	}
	m.pollGen++
	gen := m.pollGen

	m.poller = task.NewPeriodic("proximity", m.proximityInterval, func(context.Context) {
		m.checkProximity(gen)
	}, m.logger)
	m.poller.Start(m.ctx)
}

func (m *Machine) stopPoller() {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()

	m.pollGen++
	if m.poller != nil {
		m.poller.Stop()
		m.poller = nil
	}
}

func (m *Machine) pollCurrent(gen uint64) bool {
	m.pollMu.Lock()
	defer m.pollMu.Unlock()
	return gen == m.pollGen
}

func (m *Machine) checkProximity(gen uint64) {
	if !m.pollCurrent(gen) {
		return
	}

	s := m.State()
	if s.Phase != PhaseOutdoorNavigation || s.IndoorMode || s.SelectedVenue == nil {
		return
	}
	target := *s.SelectedVenue
	if !m.locator.IsWithinProximity(target.Location, m.arrivalRadius) {
		return
	}

	m.arrive(gen, target)
}

func (m *Machine) arrive(gen uint64, target venue.Venue) {
	err := m.setState(func(s *State) error {
		if !m.pollCurrent(gen) || s.Phase != PhaseOutdoorNavigation ||
			s.SelectedVenue == nil || s.SelectedVenue.ID != target.ID {
			return errStale
		}
		s.Phase = PhaseArrived
		return nil
	})
	if err != nil {
		return
	}
	m.stopPoller()

	event := ArrivalEvent{Venue: target, At: time.Now()}
	if loc, ok := m.locator.CurrentLocation(); ok {
		event.Location = loc
		event.DistanceMeters = m.locator.CalculateDistance(loc.Coordinate, target.Location)
	}

	m.logger.Info().
		Str("venue_id", target.ID).
		Float64("distance_m", event.DistanceMeters).
		Msg("arrived at venue")
	m.notices.Notify(notify.New(notify.LevelInfo, notify.CodeArrived,
		fmt.Sprintf("You have arrived at %s.", target.Name)))
	m.arrivalBus.Publish(event)

	if target.HasIndoorNavigation {
		m.scheduleIndoorSwitch()
	}
}

func (m *Machine) scheduleIndoorSwitch() {
	m.indoorMu.Lock()
	defer m.indoorMu.Unlock()

	if m.indoorTimer != nil {
		m.indoorTimer.Stop()
	}
	m.indoorGen++
	gen := m.indoorGen
	m.indoorTimer = time.AfterFunc(m.indoorSwitchDelay, func() {
		m.autoIndoor(gen)
	})
}

func (m *Machine) cancelIndoorSwitch() {
	m.indoorMu.Lock()
	defer m.indoorMu.Unlock()

	m.indoorGen++
	if m.indoorTimer != nil {
		m.indoorTimer.Stop()
		m.indoorTimer = nil
	}
}

func (m *Machine) autoIndoor(gen uint64) {
	m.indoorMu.Lock()
	if gen != m.indoorGen {
		m.indoorMu.Unlock()
		return
	}
	m.indoorTimer = nil
	m.indoorMu.Unlock()

	err := m.setState(func(s *State) error {
		if s.Phase != PhaseArrived {
			return errStale
		}
		if err := requireIndoorVenue(s); err != nil {
			return err
		}
		s.IndoorMode = true
		s.Phase = PhaseIndoorNavigation
		return nil
	})
	if err != nil {
		m.logger.Debug().Err(err).Msg("automatic indoor switch skipped")
	}
}
