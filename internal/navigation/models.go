// Package navigation owns the wayfinding session state: which phase the user
// is in, where they are, where they are going and how they get there.
package navigation

import (
	"errors"
	"time"

	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/routing"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// Sentinel errors for navigation operations.
var (
	// ErrInvalidTransition indicates a phase change outside the allowed edges.
	ErrInvalidTransition = errors.New("invalid phase transition")
	// ErrPreconditionFailed indicates an operation was attempted without its
	// prerequisites, e.g. selecting a venue before the user has a location.
	ErrPreconditionFailed = errors.New("precondition failed")
)

// Phase is a stage of the navigation life-cycle.
type Phase string

// Phases.
const (
	PhaseInitializing      Phase = "initializing"
	PhaseLocationDetection Phase = "location_detection"
	PhaseVenueSelection    Phase = "venue_selection"
	PhaseRoutePlanning     Phase = "route_planning"
	PhaseOutdoorNavigation Phase = "outdoor_navigation"
	PhaseIndoorNavigation  Phase = "indoor_navigation"
	PhaseArrived           Phase = "arrived"
)

// Phases lists every phase in life-cycle order.
var Phases = []Phase{
	PhaseInitializing,
	PhaseLocationDetection,
	PhaseVenueSelection,
	PhaseRoutePlanning,
	PhaseOutdoorNavigation,
	PhaseIndoorNavigation,
	PhaseArrived,
}

// edges lists the allowed transitions besides self-loops and the reset edge
// into PhaseLocationDetection, which is allowed from every phase.
var edges = map[Phase][]Phase{
	PhaseVenueSelection:    {PhaseRoutePlanning},
	PhaseRoutePlanning:     {PhaseOutdoorNavigation, PhaseVenueSelection},
	PhaseOutdoorNavigation: {PhaseIndoorNavigation, PhaseArrived, PhaseRoutePlanning},
	PhaseIndoorNavigation:  {PhaseOutdoorNavigation, PhaseArrived, PhaseRoutePlanning},
	PhaseArrived:           {PhaseIndoorNavigation, PhaseRoutePlanning},
	PhaseLocationDetection: {PhaseVenueSelection},
}

// CanTransition reports whether the machine may move from one phase to another.
func CanTransition(from, to Phase) bool {
	if from == to || to == PhaseLocationDetection {
		return true
	}
	for _, p := range edges[from] {
		if p == to {
			return true
		}
	}
	return false
}

// ViewMode is how the navigation view is presented.
type ViewMode string

// View modes.
const (
	ViewFirstPerson ViewMode = "first_person"
	ViewOverhead    ViewMode = "overhead"
)

// State is a snapshot of a navigation session. Values handed out by the
// Machine are copies.
type State struct {
	Phase           Phase                    `json:"phase"`
	ViewMode        ViewMode                 `json:"viewMode"`
	CurrentLocation *location.UserLocation   `json:"currentLocation,omitempty"`
	SelectedVenue   *venue.Venue             `json:"selectedVenue,omitempty"`
	Route           *routing.NavigationRoute `json:"route,omitempty"`
	IndoorMode      bool                     `json:"indoorMode"`
	NearbyVenues    []venue.Ranked           `json:"nearbyVenues"`
}

// Clone returns a deep copy of s.
func (s State) Clone() State {
	if s.CurrentLocation != nil {
		loc := *s.CurrentLocation
		s.CurrentLocation = &loc
	}
	if s.SelectedVenue != nil {
		v := s.SelectedVenue.Clone()
		s.SelectedVenue = &v
	}
	s.Route = s.Route.Clone()
	if s.NearbyVenues != nil {
		nearby := make([]venue.Ranked, len(s.NearbyVenues))
		for i, r := range s.NearbyVenues {
			nearby[i] = venue.Ranked{Venue: r.Venue.Clone(), DistanceMeters: r.DistanceMeters}
		}
		s.NearbyVenues = nearby
	}
	return s
}

// StateChange is published after every accepted state update.
type StateChange struct {
	Previous State
	Current  State
}

// PhaseChange is published when an update moves the machine to a new phase.
type PhaseChange struct {
	From    Phase
	To      Phase
	VenueID string
	At      time.Time
}

// ArrivalEvent is published when the user reaches the selected venue.
type ArrivalEvent struct {
	Venue          venue.Venue
	Location       location.UserLocation
	DistanceMeters float64
	At             time.Time
}
