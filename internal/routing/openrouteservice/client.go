// Package openrouteservice provides a directions provider backed by the
// OpenRouteService API.
package openrouteservice

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/provider/resilience"
	"github.com/wayfinder/wayfinder/internal/routing"
)

const (
	// ProviderName identifies this routing provider.
	ProviderName = "openrouteservice"

	// DefaultBaseURL is the OpenRouteService API base URL.
	DefaultBaseURL = "https://api.openrouteservice.org"

	// DefaultTimeout is the default request timeout.
	DefaultTimeout = 10 * time.Second
)

// HTTPDoer is an interface for executing HTTP requests.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// ClientConfig holds configuration for the OpenRouteService client.
type ClientConfig struct {
	// APIKey is the ORS API key (required).
	APIKey string

	// BaseURL is the API base URL (optional, defaults to ORS API).
	BaseURL string

	// HTTPClient is the HTTP client to use (optional).
	// If nil, uses a resilient client with defaults.
	HTTPClient HTTPDoer

	// Timeout is the request timeout (optional, defaults to 10s).
	Timeout time.Duration

	// Language for instruction text (default: "en").
	Language string

	// Registry is the provider registry for health tracking (optional).
	Registry *resilience.Registry

	// Logger for client operations.
	Logger zerolog.Logger
}

// Client is an OpenRouteService API client.
type Client struct {
	apiKey     string
	baseURL    string
	language   string
	httpClient HTTPDoer
	logger     zerolog.Logger
}

// NewClient creates a new OpenRouteService client.
func NewClient(cfg ClientConfig) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}

	language := cfg.Language
	if language == "" {
		language = "en"
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		clientCfg := resilience.DefaultClientConfig(ProviderName)
		clientCfg.Timeout = timeout
		clientCfg.Registry = cfg.Registry
		clientCfg.Logger = cfg.Logger
		httpClient = resilience.NewClient(clientCfg)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		baseURL:    baseURL,
		language:   language,
		httpClient: httpClient,
		logger:     cfg.Logger,
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return ProviderName
}

// GetDirections retrieves walking directions between two points.
func (c *Client) GetDirections(ctx context.Context, req routing.DirectionsRequest) (*routing.DirectionsResponse, error) {
	if err := req.Origin.Validate(); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_ORIGIN",
			Message:  "invalid origin coordinates",
			Err:      routing.ErrInvalidCoordinates,
		}
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     "INVALID_DESTINATION",
			Message:  "invalid destination coordinates",
			Err:      routing.ErrInvalidCoordinates,
		}
	}

	profile := req.Profile
	if profile == "" {
		profile = routing.ProfileWalk
	}

	body, err := json.Marshal(orsRequest{
		// ORS uses [lon, lat] order (GeoJSON)
		Coordinates: [][]float64{
			{req.Origin.Lon, req.Origin.Lat},
			{req.Destination.Lon, req.Destination.Lat},
		},
		Instructions: true,
		Geometry:     true,
		Units:        "m",
		Language:     c.language,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/v2/directions/%s", c.baseURL, profile)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", c.apiKey)
	httpReq.Header.Set("Accept", "application/json")

	c.logger.Debug().
		Str("profile", string(profile)).
		Float64("origin_lat", req.Origin.Lat).
		Float64("origin_lon", req.Origin.Lon).
		Float64("dest_lat", req.Destination.Lat).
		Float64("dest_lon", req.Destination.Lon).
		Msg("requesting directions from ORS")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		code, message := "REQUEST_FAILED", "failed to reach routing provider"
		if errors.Is(err, resilience.ErrCircuitOpen) {
			code, message = "CIRCUIT_OPEN", "routing provider temporarily disabled"
		}
		return nil, &routing.Error{
			Provider: ProviderName,
			Code:     code,
			Message:  message,
			Err:      errors.Join(routing.ErrProviderUnavailable, err),
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, c.handleErrorResponse(resp.StatusCode, respBody)
	}

	var orsResp orsResponse
	if err := json.Unmarshal(respBody, &orsResp); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	result := toDirectionsResponse(&orsResp)

	c.logger.Debug().
		Int("route_count", len(result.Routes)).
		Msg("received directions from ORS")

	return result, nil
}

// handleErrorResponse maps ORS error responses to domain errors.
func (c *Client) handleErrorResponse(statusCode int, body []byte) error {
	var orsErr orsErrorResponse
	_ = json.Unmarshal(body, &orsErr) //nolint:errcheck // falls back to status mapping

	message := orsErr.Error.Message
	if message == "" {
		message = fmt.Sprintf("routing provider returned status %d", statusCode)
	}

	switch {
	case orsErr.Error.Code == orsErrorCodeRouteNotFound || statusCode == http.StatusNotFound:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "NO_ROUTE",
			Message:  message,
			Err:      routing.ErrNoRouteFound,
		}
	case statusCode == http.StatusTooManyRequests:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "RATE_LIMIT",
			Message:  "API rate limit exceeded, please try again later",
			Err:      routing.ErrRateLimitExceeded,
		}
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "FORBIDDEN",
			Message:  "API access denied - check API key configuration",
			Err:      routing.ErrProviderUnavailable,
		}
	case statusCode == http.StatusBadRequest:
		return &routing.Error{
			Provider: ProviderName,
			Code:     "BAD_REQUEST",
			Message:  message,
			Err:      routing.ErrInvalidCoordinates,
		}
	case statusCode >= 500:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("SERVER_%d", statusCode),
			Message:  "routing provider is temporarily unavailable",
			Err:      routing.ErrProviderUnavailable,
		}
	default:
		return &routing.Error{
			Provider: ProviderName,
			Code:     fmt.Sprintf("HTTP_%d", statusCode),
			Message:  message,
			Err:      routing.ErrProviderUnavailable,
		}
	}
}

func toDirectionsResponse(resp *orsResponse) *routing.DirectionsResponse {
	routes := make([]routing.Route, 0, len(resp.Routes))

	for i := range resp.Routes {
		orsRoute := &resp.Routes[i]
		route := routing.Route{
			GeometryPolyline: orsRoute.Geometry,
			DistanceMeters:   orsRoute.Summary.Distance,
			DurationSeconds:  orsRoute.Summary.Duration,
		}

		for j := range orsRoute.Segments {
			for _, step := range orsRoute.Segments[j].Steps {
				index := -1
				if len(step.WayPoints) > 0 {
					index = step.WayPoints[0]
				}
				route.Steps = append(route.Steps, routing.Step{
					Text:           step.Instruction,
					DistanceMeters: step.Distance,
					DurationSecs:   step.Duration,
					Maneuver:       maneuver(step.Type),
					GeometryIndex:  index,
				})
			}
		}

		routes = append(routes, route)
	}

	return &routing.DirectionsResponse{
		Routes:    routes,
		Provider:  ProviderName,
		FetchedAt: time.Now(),
	}
}

func maneuver(stepType int) routing.Maneuver {
	switch stepType {
	case stepLeft, stepSharpLeft, stepSlightLeft, stepKeepLeft:
		return routing.ManeuverLeft
	case stepRight, stepSharpRight, stepSlightRight, stepKeepRight:
		return routing.ManeuverRight
	case stepUTurn:
		return routing.ManeuverUTurn
	case stepGoal:
		return routing.ManeuverArrive
	case stepDepart:
		return routing.ManeuverDepart
	default:
		return routing.ManeuverStraight
	}
}

var _ routing.Provider = (*Client)(nil)
