package waypoint

import (
	"fmt"
	"math"

	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/routing"
)

// LocalPosition projects point into the scene frame anchored at origin. The
// projection is a flat tangent plane, accurate over walking distances.
func LocalPosition(origin, point location.Coordinate) Vec3 {
	d := location.Distance(origin, point)
	if d == 0 {
		return Vec3{}
	}
	theta := location.Bearing(origin, point) * math.Pi / 180
	return Vec3{X: d * math.Sin(theta), Z: -d * math.Cos(theta)}
}

// FromRoute converts a planned route into markers anchored at the route's
// start. The final waypoint is the active destination marker.
func FromRoute(route *routing.NavigationRoute) []Waypoint {
	if route == nil || len(route.Waypoints) == 0 {
		return nil
	}

	origin := route.StartLocation.Coordinate
	out := make([]Waypoint, 0, len(route.Waypoints))
	for i, rw := range route.Waypoints {
		remaining := route.DistanceMeters - rw.DistanceMeters
		if remaining < 0 {
			remaining = 0
		}
		wp := Waypoint{
			ID:          fmt.Sprintf("route-%d", i),
			Position:    LocalPosition(origin, rw.Coordinate()),
			Type:        typeForManeuver(rw.Maneuver),
			Title:       rw.Instruction,
			Description: string(rw.Maneuver),
			Distance:    &remaining,
		}
		if rw.Maneuver == routing.ManeuverArrive {
			wp.Title = route.Destination.Name
			wp.Description = rw.Instruction
			wp.Active = true
		}
		out = append(out, wp)
	}
	return out
}

func typeForManeuver(m routing.Maneuver) Type {
	switch m {
	case routing.ManeuverArrive:
		return TypeDestination
	case routing.ManeuverLeft, routing.ManeuverRight, routing.ManeuverUTurn:
		return TypeTurn
	default:
		return TypeCheckpoint
	}
}
