package routing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/venue"
	"github.com/wayfinder/wayfinder/pkg/polyline"
)

const tracerName = "github.com/wayfinder/wayfinder/internal/routing"

// WalkingSpeed is the assumed pedestrian speed in meters per second.
const WalkingSpeed = 1.4

// StubEngine plans a straight two-waypoint walk: depart at the origin and
// arrive at the venue. Duration assumes WalkingSpeed.
type StubEngine struct {
	// Delay simulates planning latency.
	Delay time.Duration
}

// PlanRoute implements Engine.
func (e StubEngine) PlanRoute(ctx context.Context, origin location.UserLocation, destination venue.Venue) (*NavigationRoute, error) {
	if err := validateEndpoints(origin.Coordinate, destination.Location); err != nil {
		return nil, err
	}
	if e.Delay > 0 {
		select {
		case <-time.After(e.Delay):
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrRouteUnavailable, ctx.Err())
		}
	}

	distance := location.Distance(origin.Coordinate, destination.Location)
	path := []polyline.Coordinate{
		{Lat: origin.Lat, Lon: origin.Lon},
		{Lat: destination.Location.Lat, Lon: destination.Location.Lon},
	}

	return &NavigationRoute{
		StartLocation: origin,
		Destination:   destination.Clone(),
		Waypoints: []RouteWaypoint{
			{
				Lat:         origin.Lat,
				Lon:         origin.Lon,
				Instruction: "Start walking towards " + destination.Name,
				Maneuver:    ManeuverDepart,
			},
			{
				Lat:            destination.Location.Lat,
				Lon:            destination.Location.Lon,
				Instruction:    "Arrive at " + destination.Name,
				DistanceMeters: distance,
				Maneuver:       ManeuverArrive,
			},
		},
		DistanceMeters:  distance,
		DurationSeconds: distance / WalkingSpeed,
		Polyline:        polyline.Encode(path),
		Provider:        "stub",
	}, nil
}

// DirectionsEngineConfig holds configuration for DirectionsEngine.
type DirectionsEngineConfig struct {
	// Provider supplies turn-by-turn directions (required). Wrap it in a
	// CachingProvider to reuse responses.
	Provider Provider

	// Profile is the routing profile (default: ProfileWalk).
	Profile RouteProfile

	// Logger for engine operations.
	Logger zerolog.Logger
}

// DirectionsEngine plans routes with a directions provider.
type DirectionsEngine struct {
	provider Provider
	profile  RouteProfile
	logger   zerolog.Logger
	tracer   trace.Tracer
}

// NewDirectionsEngine creates a provider-backed engine.
func NewDirectionsEngine(cfg DirectionsEngineConfig) *DirectionsEngine {
	profile := cfg.Profile
	if profile == "" {
		profile = ProfileWalk
	}
	return &DirectionsEngine{
		provider: cfg.Provider,
		profile:  profile,
		logger:   cfg.Logger,
		tracer:   otel.Tracer(tracerName),
	}
}

// PlanRoute implements Engine using the first route the provider returns.
func (e *DirectionsEngine) PlanRoute(ctx context.Context, origin location.UserLocation, destination venue.Venue) (*NavigationRoute, error) {
	ctx, span := e.tracer.Start(ctx, "routing.PlanRoute",
		trace.WithAttributes(
			attribute.String("routing.provider", e.provider.Name()),
			attribute.String("routing.profile", string(e.profile)),
			attribute.String("venue.id", destination.ID),
		),
	)
	defer span.End()

	route, err := e.plan(ctx, origin, destination)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "route planning failed")
		e.logger.Warn().Err(err).
			Str("venue_id", destination.ID).
			Str("provider", e.provider.Name()).
			Msg("route planning failed")
		return nil, err
	}

	span.SetAttributes(
		attribute.Float64("routing.distance_m", route.DistanceMeters),
		attribute.Int("routing.waypoints", len(route.Waypoints)),
	)
	return route, nil
}

func (e *DirectionsEngine) plan(ctx context.Context, origin location.UserLocation, destination venue.Venue) (*NavigationRoute, error) {
	if err := validateEndpoints(origin.Coordinate, destination.Location); err != nil {
		return nil, err
	}

	resp, err := e.provider.GetDirections(ctx, DirectionsRequest{
		Origin:      origin.Coordinate,
		Destination: destination.Location,
		Profile:     e.profile,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRouteUnavailable, err)
	}
	if len(resp.Routes) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrRouteUnavailable, ErrNoRouteFound)
	}

	best := resp.Routes[0]
	geometry, err := polyline.Decode(best.GeometryPolyline)
	if err != nil {
		return nil, fmt.Errorf("%w: decode geometry: %w", ErrRouteUnavailable, err)
	}

	return &NavigationRoute{
		StartLocation:   origin,
		Destination:     destination.Clone(),
		Waypoints:       waypointsFromSteps(best.Steps, geometry, origin.Coordinate, destination),
		DistanceMeters:  best.DistanceMeters,
		DurationSeconds: best.DurationSeconds,
		Polyline:        best.GeometryPolyline,
		Provider:        resp.Provider,
	}, nil
}

// waypointsFromSteps places one waypoint at the start of every step and closes
// the route with an arrival at the venue.
func waypointsFromSteps(steps []Step, geometry []polyline.Coordinate, origin location.Coordinate, destination venue.Venue) []RouteWaypoint {
	waypoints := make([]RouteWaypoint, 0, len(steps)+1)
	cumulative := 0.0

	for i, step := range steps {
		if step.Maneuver == ManeuverArrive {
			break
		}
		at := origin
		if step.GeometryIndex >= 0 && step.GeometryIndex < len(geometry) {
			at = location.Coordinate{Lat: geometry[step.GeometryIndex].Lat, Lon: geometry[step.GeometryIndex].Lon}
		}
		maneuver := step.Maneuver
		if i == 0 {
			maneuver = ManeuverDepart
		}
		waypoints = append(waypoints, RouteWaypoint{
			Lat:            at.Lat,
			Lon:            at.Lon,
			Instruction:    step.Text,
			DistanceMeters: cumulative,
			Maneuver:       maneuver,
		})
		cumulative += step.DistanceMeters
	}

	if len(waypoints) == 0 {
		waypoints = append(waypoints, RouteWaypoint{
			Lat:         origin.Lat,
			Lon:         origin.Lon,
			Instruction: "Start walking towards " + destination.Name,
			Maneuver:    ManeuverDepart,
		})
	}

	return append(waypoints, RouteWaypoint{
		Lat:            destination.Location.Lat,
		Lon:            destination.Location.Lon,
		Instruction:    "Arrive at " + destination.Name,
		DistanceMeters: cumulative,
		Maneuver:       ManeuverArrive,
	})
}

func validateEndpoints(origin, destination location.Coordinate) error {
	if err := origin.Validate(); err != nil {
		return fmt.Errorf("%w: origin: %w", ErrRouteUnavailable, errors.Join(ErrInvalidCoordinates, err))
	}
	if err := destination.Validate(); err != nil {
		return fmt.Errorf("%w: destination: %w", ErrRouteUnavailable, errors.Join(ErrInvalidCoordinates, err))
	}
	return nil
}

var (
	_ Engine = StubEngine{}
	_ Engine = (*DirectionsEngine)(nil)
)
