package venue

import (
	"context"
	"errors"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wayfinder/wayfinder/internal/location"
)

// PostgresDirectory is a PostgreSQL implementation of Directory.
type PostgresDirectory struct {
	pool *pgxpool.Pool
}

// NewPostgresDirectory creates a new PostgreSQL venue directory.
func NewPostgresDirectory(pool *pgxpool.Pool) *PostgresDirectory {
	return &PostgresDirectory{pool: pool}
}

const venueColumns = `
	id, name, address, lat, lon, category,
	has_indoor_navigation, amenities, updated_at
`

// Get retrieves a venue by ID.
func (d *PostgresDirectory) Get(ctx context.Context, id string) (*Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues WHERE id = $1`

	v, err := scanVenue(d.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrVenueNotFound
		}
		return nil, err
	}
	return v, nil
}

// List returns every venue ordered by name.
func (d *PostgresDirectory) List(ctx context.Context) ([]Venue, error) {
	query := `SELECT ` + venueColumns + ` FROM venues ORDER BY name`
	return d.query(ctx, query)
}

// Nearby prefilters with a bounding box in SQL and ranks by great-circle
// distance in Go.
func (d *PostgresDirectory) Nearby(ctx context.Context, origin location.Coordinate, radius float64, limit int) ([]Ranked, error) {
	latDelta := radius / location.EarthRadiusMeters * 180 / math.Pi
	lonDelta := 180.0
	if cos := math.Cos(origin.Lat * math.Pi / 180); cos > 1e-6 {
		lonDelta = math.Min(180, latDelta/cos)
	}

	query := `SELECT ` + venueColumns + `
		FROM venues
		WHERE lat BETWEEN $1 AND $2
		  AND lon BETWEEN $3 AND $4
	`

	venues, err := d.query(ctx, query,
		origin.Lat-latDelta, origin.Lat+latDelta,
		origin.Lon-lonDelta, origin.Lon+lonDelta,
	)
	if err != nil {
		return nil, err
	}
	return Rank(venues, origin, radius, limit), nil
}

// Upsert inserts or updates a venue.
func (d *PostgresDirectory) Upsert(ctx context.Context, v Venue) error {
	query := `
		INSERT INTO venues (
			id, name, address, lat, lon, category,
			has_indoor_navigation, amenities, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			address = EXCLUDED.address,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			category = EXCLUDED.category,
			has_indoor_navigation = EXCLUDED.has_indoor_navigation,
			amenities = EXCLUDED.amenities,
			updated_at = NOW()
	`

	_, err := d.pool.Exec(ctx, query,
		v.ID, v.Name, v.Address, v.Location.Lat, v.Location.Lon, v.Category,
		v.HasIndoorNavigation, v.Amenities,
	)
	return err
}

func (d *PostgresDirectory) query(ctx context.Context, query string, args ...any) ([]Venue, error) {
	rows, err := d.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var venues []Venue
	for rows.Next() {
		v, err := scanVenue(rows)
		if err != nil {
			return nil, err
		}
		venues = append(venues, *v)
	}
	return venues, rows.Err()
}

func scanVenue(row pgx.Row) (*Venue, error) {
	var v Venue
	err := row.Scan(
		&v.ID,
		&v.Name,
		&v.Address,
		&v.Location.Lat,
		&v.Location.Lon,
		&v.Category,
		&v.HasIndoorNavigation,
		&v.Amenities,
		&v.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

var _ Directory = (*PostgresDirectory)(nil)
