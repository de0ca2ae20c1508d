// Package nominatim implements location.Geocoder against the OpenStreetMap
// Nominatim API.
package nominatim

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/provider/resilience"
)

const (
	// DefaultBaseURL is the public Nominatim instance.
	DefaultBaseURL = "https://nominatim.openstreetmap.org"

	// ProviderName identifies this provider.
	ProviderName = "nominatim"
)

// ErrNoResults is returned when a search matches nothing.
var ErrNoResults = errors.New("nominatim: no results")

// Config holds configuration for the Nominatim client.
type Config struct {
	// BaseURL overrides DefaultBaseURL.
	BaseURL string

	// UserAgent identifies the application. The public instance requires one.
	UserAgent string

	// Email is passed as a contact address for heavy users (optional).
	Email string

	// CountryCodes limits forward searches, e.g. "za" (optional).
	CountryCodes string

	// Timeout for HTTP requests (default: 5 seconds).
	Timeout time.Duration

	// Registry receives upstream outcomes (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client geocodes addresses with Nominatim.
type Client struct {
	baseURL      string
	email        string
	countryCodes string
	http         *resilience.Client
	logger       zerolog.Logger
}

// NewClient creates a Nominatim client.
func NewClient(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = "wayfinder/1.0"
	}

	clientCfg := resilience.DefaultClientConfig(ProviderName)
	clientCfg.Timeout = timeout
	clientCfg.UserAgent = userAgent
	clientCfg.Registry = cfg.Registry
	clientCfg.Logger = cfg.Logger

	return &Client{
		baseURL:      baseURL,
		email:        cfg.Email,
		countryCodes: cfg.CountryCodes,
		http:         resilience.NewClient(clientCfg),
		logger:       cfg.Logger.With().Str("provider", ProviderName).Logger(),
	}
}

type place struct {
	Lat         string `json:"lat"`
	Lon         string `json:"lon"`
	DisplayName string `json:"display_name"`
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// Forward implements location.Geocoder.
func (c *Client) Forward(ctx context.Context, address string) (location.Coordinate, error) {
	q := url.Values{}
	q.Set("q", address)
	q.Set("format", "jsonv2")
	q.Set("limit", "1")
	if c.countryCodes != "" {
		q.Set("countrycodes", c.countryCodes)
	}
	c.addContact(q)

	var places []place
	if err := c.http.GetJSON(ctx, c.baseURL+"/search?"+q.Encode(), &places); err != nil {
		return location.Coordinate{}, c.wrap("search_failed", "address search failed", err)
	}
	if len(places) == 0 {
		return location.Coordinate{}, c.wrap("no_results", "address not found", ErrNoResults)
	}

	coord, err := places[0].coordinate()
	if err != nil {
		return location.Coordinate{}, c.wrap("invalid_response", "invalid coordinates in response", err)
	}

	c.logger.Debug().
		Str("address", address).
		Str("match", places[0].DisplayName).
		Msg("geocoded address")
	return coord, nil
}

// Reverse implements location.Geocoder.
func (c *Client) Reverse(ctx context.Context, coord location.Coordinate) (string, error) {
	q := url.Values{}
	q.Set("lat", strconv.FormatFloat(coord.Lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(coord.Lon, 'f', 6, 64))
	q.Set("format", "jsonv2")
	c.addContact(q)

	var resp reverseResponse
	if err := c.http.GetJSON(ctx, c.baseURL+"/reverse?"+q.Encode(), &resp); err != nil {
		return "", c.wrap("reverse_failed", "reverse geocoding failed", err)
	}
	if resp.Error != "" {
		return "", c.wrap("no_results", resp.Error, ErrNoResults)
	}
	return resp.DisplayName, nil
}

func (c *Client) addContact(q url.Values) {
	if c.email != "" {
		q.Set("email", c.email)
	}
}

func (c *Client) wrap(code, message string, err error) error {
	return &location.Error{
		Provider: ProviderName,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

func (p place) coordinate() (location.Coordinate, error) {
	lat, err := strconv.ParseFloat(p.Lat, 64)
	if err != nil {
		return location.Coordinate{}, fmt.Errorf("parse lat %q: %w", p.Lat, err)
	}
	lon, err := strconv.ParseFloat(p.Lon, 64)
	if err != nil {
		return location.Coordinate{}, fmt.Errorf("parse lon %q: %w", p.Lon, err)
	}
	c := location.Coordinate{Lat: lat, Lon: lon}
	return c, c.Validate()
}

var _ location.Geocoder = (*Client)(nil)
