// Package routing plans walking routes from the user's position to a venue.
package routing

import (
	"context"
	"errors"
	"time"

	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// Sentinel errors for routing operations.
var (
	// ErrRouteUnavailable indicates no route could be planned. Every Engine
	// failure wraps it.
	ErrRouteUnavailable = errors.New("route unavailable")
	// ErrProviderUnavailable indicates the directions provider is down or its circuit breaker is open.
	ErrProviderUnavailable = errors.New("routing provider unavailable")
	// ErrNoRouteFound indicates no valid route exists between the given points.
	ErrNoRouteFound = errors.New("no route found between the given points")
	// ErrRateLimitExceeded indicates the API quota has been exceeded.
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	// ErrInvalidCoordinates indicates the provided coordinates are invalid or out of range.
	ErrInvalidCoordinates = errors.New("invalid coordinates")
)

// Engine plans a route to a destination venue.
type Engine interface {
	PlanRoute(ctx context.Context, origin location.UserLocation, destination venue.Venue) (*NavigationRoute, error)
}

// Maneuver describes what the user does at a waypoint.
type Maneuver string

// Maneuvers.
const (
	ManeuverDepart   Maneuver = "depart"
	ManeuverStraight Maneuver = "straight"
	ManeuverLeft     Maneuver = "turn-left"
	ManeuverRight    Maneuver = "turn-right"
	ManeuverUTurn    Maneuver = "u-turn"
	ManeuverArrive   Maneuver = "arrive"
)

// RouteWaypoint is a point along a route. DistanceMeters is cumulative from the start.
type RouteWaypoint struct {
	Lat            float64  `json:"lat"`
	Lon            float64  `json:"lon"`
	Instruction    string   `json:"instruction"`
	DistanceMeters float64  `json:"distanceMeters"`
	Maneuver       Maneuver `json:"maneuver"`
}

// Coordinate returns the waypoint position.
func (w RouteWaypoint) Coordinate() location.Coordinate {
	return location.Coordinate{Lat: w.Lat, Lon: w.Lon}
}

// NavigationRoute is a planned route. It is replaced wholesale on re-planning.
type NavigationRoute struct {
	StartLocation   location.UserLocation `json:"startLocation"`
	Destination     venue.Venue           `json:"destination"`
	Waypoints       []RouteWaypoint       `json:"waypoints"`
	DistanceMeters  float64               `json:"distanceMeters"`
	DurationSeconds float64               `json:"durationSeconds"`
	Polyline        string                `json:"polyline"`
	Provider        string                `json:"provider"`
}

// Clone returns a deep copy of r.
func (r *NavigationRoute) Clone() *NavigationRoute {
	if r == nil {
		return nil
	}
	cpy := *r
	cpy.Destination = r.Destination.Clone()
	cpy.Waypoints = append([]RouteWaypoint(nil), r.Waypoints...)
	return &cpy
}

// Provider defines the interface for directions providers.
type Provider interface {
	// GetDirections retrieves route directions between two points.
	GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error)
	// Name returns the provider identifier for logging and metrics.
	Name() string
}

// RouteProfile represents a routing profile.
type RouteProfile string

const (
	// ProfileWalk is the foot-walking profile for pedestrian routing.
	ProfileWalk RouteProfile = "foot-walking"
	// ProfileWheelchair routes avoid steps and steep inclines.
	ProfileWheelchair RouteProfile = "wheelchair"
)

// DirectionsRequest is the request for computing routes.
type DirectionsRequest struct {
	Origin      location.Coordinate
	Destination location.Coordinate
	Profile     RouteProfile
}

// DirectionsResponse is the provider response.
type DirectionsResponse struct {
	Routes    []Route
	Provider  string
	FetchedAt time.Time
}

// Route is a single route option from a provider.
type Route struct {
	GeometryPolyline string  // Encoded polyline (precision 5)
	DistanceMeters   float64 // Total distance in meters
	DurationSeconds  float64 // Total duration in seconds
	Steps            []Step  // Turn-by-turn steps
}

// Step is a turn-by-turn instruction.
type Step struct {
	Text           string
	DistanceMeters float64 // Length of this step
	DurationSecs   float64
	Maneuver       Maneuver
	// GeometryIndex is the index into the decoded geometry where the step begins.
	GeometryIndex int
}

// Error provides detailed error information from a directions provider.
type Error struct {
	Provider string // Provider that generated the error
	Code     string // Error code from the provider
	Message  string // Human-readable error message
	Err      error  // Underlying error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if the error is transient and the request can be retried.
func (e *Error) IsRetryable() bool {
	return errors.Is(e.Err, ErrProviderUnavailable) || errors.Is(e.Err, ErrRateLimitExceeded)
}
