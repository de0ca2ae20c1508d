package venue

import (
	"context"
	"sort"
	"sync"

	"github.com/wayfinder/wayfinder/internal/location"
)

// InMemoryDirectory is an in-memory implementation of Directory, used by tests,
// the simulator and deployments without a database.
type InMemoryDirectory struct {
	mu     sync.RWMutex
	venues map[string]Venue
}

// NewInMemoryDirectory creates a directory holding venues.
func NewInMemoryDirectory(venues ...Venue) *InMemoryDirectory {
	d := &InMemoryDirectory{venues: make(map[string]Venue, len(venues))}
	for _, v := range venues {
		d.venues[v.ID] = v.Clone()
	}
	return d
}

// Put adds or replaces a venue.
func (d *InMemoryDirectory) Put(v Venue) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.venues[v.ID] = v.Clone()
}

// Get retrieves a venue by ID.
func (d *InMemoryDirectory) Get(_ context.Context, id string) (*Venue, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	v, ok := d.venues[id]
	if !ok {
		return nil, ErrVenueNotFound
	}
	cpy := v.Clone()
	return &cpy, nil
}

// List returns every venue ordered by name.
func (d *InMemoryDirectory) List(_ context.Context) ([]Venue, error) {
	return d.snapshot(), nil
}

// Nearby returns venues within radius meters of origin, nearest first.
func (d *InMemoryDirectory) Nearby(ctx context.Context, origin location.Coordinate, radius float64, limit int) ([]Ranked, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Rank(d.snapshot(), origin, radius, limit), nil
}

func (d *InMemoryDirectory) snapshot() []Venue {
	d.mu.RLock()
	out := make([]Venue, 0, len(d.venues))
	for _, v := range d.venues {
		out = append(out, v.Clone())
	}
	d.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

var _ Directory = (*InMemoryDirectory)(nil)
