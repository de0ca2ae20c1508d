// Package location acquires and tracks the device position and answers distance
// and proximity questions about it.
package location

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for location operations.
var (
	// ErrPermissionDenied indicates the user refused location access.
	ErrPermissionDenied = errors.New("location permission denied")
	// ErrPositionUnavailable indicates the device could not produce a fix.
	ErrPositionUnavailable = errors.New("position unavailable")
	// ErrGeocodeFailed indicates an address could not be resolved to coordinates.
	ErrGeocodeFailed = errors.New("geocode failed")
)

// Coordinate is a WGS84 point in degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Validate checks that the coordinate is within WGS84 bounds.
func (c Coordinate) Validate() error {
	if c.Lat < -90 || c.Lat > 90 {
		return fmt.Errorf("latitude %f out of range [-90, 90]", c.Lat)
	}
	if c.Lon < -180 || c.Lon > 180 {
		return fmt.Errorf("longitude %f out of range [-180, 180]", c.Lon)
	}
	return nil
}

// UserLocation is an immutable snapshot of where the user is.
type UserLocation struct {
	Coordinate
	// Accuracy is the horizontal accuracy radius in meters, when known.
	Accuracy *float64 `json:"accuracy,omitempty"`
	// Address is a human-readable address from reverse geocoding, when known.
	Address   string    `json:"address,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Fix is a raw position reported by a Device.
type Fix struct {
	Coordinate
	Accuracy  *float64
	Timestamp time.Time
}

// WatchOptions controls continuous position updates.
type WatchOptions struct {
	// Interval is the minimum time between updates.
	Interval time.Duration
	// DistanceFilter is the minimum movement in meters that triggers an update.
	DistanceFilter float64
}

// Device is the platform location service.
type Device interface {
	// RequestPermission asks the user for location access.
	RequestPermission(ctx context.Context) (bool, error)
	// CurrentPosition returns a single fix.
	CurrentPosition(ctx context.Context) (Fix, error)
	// Watch delivers fixes to fn until stop is called or ctx is done.
	Watch(ctx context.Context, opts WatchOptions, fn func(Fix)) (stop func(), err error)
}

// Geocoder converts between addresses and coordinates.
type Geocoder interface {
	// Forward resolves an address to a coordinate.
	Forward(ctx context.Context, address string) (Coordinate, error)
	// Reverse resolves a coordinate to a human-readable address.
	Reverse(ctx context.Context, c Coordinate) (string, error)
}

// Error provides detailed error information from a geocoding provider.
type Error struct {
	Provider string
	Code     string
	Message  string
	Err      error
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
