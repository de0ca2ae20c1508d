package venue

import (
	"context"
	"sort"

	"github.com/wayfinder/wayfinder/internal/location"
)

// Nearby search defaults.
const (
	DefaultNearbyRadius = 50_000.0
	DefaultNearbyLimit  = 20
)

// Directory defines the interface for venue lookups.
type Directory interface {
	// Get retrieves a venue by ID.
	Get(ctx context.Context, id string) (*Venue, error)

	// List returns every venue ordered by name.
	List(ctx context.Context) ([]Venue, error)

	// Nearby returns venues within radius meters of origin, nearest first,
	// at most limit of them.
	Nearby(ctx context.Context, origin location.Coordinate, radius float64, limit int) ([]Ranked, error)
}

// Rank filters venues to those within radius of origin and orders them by
// ascending distance, ties broken by name. limit <= 0 means no limit.
func Rank(venues []Venue, origin location.Coordinate, radius float64, limit int) []Ranked {
	ranked := make([]Ranked, 0, len(venues))
	for _, v := range venues {
		d := location.Distance(origin, v.Location)
		if d > radius {
			continue
		}
		ranked = append(ranked, Ranked{Venue: v.Clone(), DistanceMeters: d})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].DistanceMeters != ranked[j].DistanceMeters {
			return ranked[i].DistanceMeters < ranked[j].DistanceMeters
		}
		return ranked[i].Name < ranked[j].Name
	})

	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
