// Package venue provides the directory of destinations a user can navigate to.
package venue

import (
	"errors"
	"time"

	"github.com/wayfinder/wayfinder/internal/location"
)

// ErrVenueNotFound is returned when a venue doesn't exist.
var ErrVenueNotFound = errors.New("venue not found")

// Venue categories.
const (
	CategoryMall          = "mall"
	CategoryStore         = "store"
	CategoryRestaurant    = "restaurant"
	CategoryEntertainment = "entertainment"
)

// Venue is a navigable destination. It is read-only for the navigation core.
type Venue struct {
	ID                  string              `json:"id"`
	Name                string              `json:"name"`
	Address             string              `json:"address"`
	Location            location.Coordinate `json:"location"`
	Category            string              `json:"category"`
	HasIndoorNavigation bool                `json:"hasIndoorNavigation"`
	Amenities           []string            `json:"amenities,omitempty"`
	UpdatedAt           time.Time           `json:"updatedAt"`
}

// Clone returns a deep copy of v.
func (v Venue) Clone() Venue {
	if v.Amenities != nil {
		v.Amenities = append([]string(nil), v.Amenities...)
	}
	return v
}

// Ranked pairs a venue with its distance from a query origin.
type Ranked struct {
	Venue
	DistanceMeters float64 `json:"distanceMeters"`
}
