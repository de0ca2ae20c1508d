package openrouteservice

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/provider/resilience"
	"github.com/wayfinder/wayfinder/internal/routing"
	"github.com/wayfinder/wayfinder/pkg/polyline"
)

var (
	cbd          = location.Coordinate{Lat: -26.2041, Lon: 28.0473}
	braamfontein = location.Coordinate{Lat: -26.1906, Lon: 28.0369}
)

func directionsFixture() string {
	geometry := polyline.Encode([]polyline.Coordinate{
		{Lat: cbd.Lat, Lon: cbd.Lon},
		{Lat: -26.1980, Lon: 28.0473},
		{Lat: braamfontein.Lat, Lon: braamfontein.Lon},
	})
	return fmt.Sprintf(`{
		"routes": [{
			"summary": {"distance": 2150.4, "duration": 1548.2},
			"geometry": %q,
			"segments": [{
				"steps": [
					{"distance": 680, "duration": 490, "type": 11, "instruction": "Head north on Rissik Street", "way_points": [0, 1]},
					{"distance": 1470.4, "duration": 1058.2, "type": 0, "instruction": "Turn left onto Jorissen Street", "way_points": [1, 2]},
					{"distance": 0, "duration": 0, "type": 10, "instruction": "Arrive at Jorissen Street", "way_points": [2, 2]}
				]
			}]
		}]
	}`, geometry)
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	return NewClient(ClientConfig{
		APIKey:     "mock123",
		BaseURL:    server.URL,
		HTTPClient: server.Client(),
		Logger:     zerolog.Nop(),
	})
}

func TestClient_GetDirections_Success(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v2/directions/foot-walking", r.URL.Path)
		assert.Equal(t, "mock123", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var body orsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, [][]float64{{cbd.Lon, cbd.Lat}, {braamfontein.Lon, braamfontein.Lat}}, body.Coordinates)
		assert.True(t, body.Instructions)
		assert.Equal(t, "en", body.Language)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(directionsFixture()))
	})

	resp, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:      cbd,
		Destination: braamfontein,
	})
	require.NoError(t, err)

	assert.Equal(t, ProviderName, resp.Provider)
	require.Len(t, resp.Routes, 1)

	route := resp.Routes[0]
	assert.InDelta(t, 2150.4, route.DistanceMeters, 1e-9)
	assert.InDelta(t, 1548.2, route.DurationSeconds, 1e-9)
	require.Len(t, route.Steps, 3)
	assert.Equal(t, routing.ManeuverDepart, route.Steps[0].Maneuver)
	assert.Equal(t, routing.ManeuverLeft, route.Steps[1].Maneuver)
	assert.Equal(t, 1, route.Steps[1].GeometryIndex)
	assert.Equal(t, routing.ManeuverArrive, route.Steps[2].Maneuver)

	decoded, err := polyline.Decode(route.GeometryPolyline)
	require.NoError(t, err)
	assert.Len(t, decoded, 3)
}

func TestClient_GetDirections_InvalidCoordinates(t *testing.T) {
	client := newTestClient(t, func(http.ResponseWriter, *http.Request) {
		t.Error("provider must not be called")
	})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
		Origin:      location.Coordinate{Lat: 95, Lon: 0},
		Destination: braamfontein,
	})
	assert.ErrorIs(t, err, routing.ErrInvalidCoordinates)

	var routingErr *routing.Error
	require.ErrorAs(t, err, &routingErr)
	assert.Equal(t, "INVALID_ORIGIN", routingErr.Code)
}

func TestClient_GetDirections_ErrorMapping(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		code     string
		sentinel error
	}{
		{
			name:     "route not found",
			status:   http.StatusNotFound,
			body:     `{"error":{"code":2009,"message":"Route could not be found"}}`,
			code:     "NO_ROUTE",
			sentinel: routing.ErrNoRouteFound,
		},
		{
			name:     "unroutable point reported as bad request",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":2009,"message":"Could not find routable point"}}`,
			code:     "NO_ROUTE",
			sentinel: routing.ErrNoRouteFound,
		},
		{
			name:     "bad request",
			status:   http.StatusBadRequest,
			body:     `{"error":{"code":2003,"message":"Parameter 'coordinates' has incorrect value"}}`,
			code:     "BAD_REQUEST",
			sentinel: routing.ErrInvalidCoordinates,
		},
		{
			name:     "rate limited",
			status:   http.StatusTooManyRequests,
			body:     `{"error":"Rate limit exceeded"}`,
			code:     "RATE_LIMIT",
			sentinel: routing.ErrRateLimitExceeded,
		},
		{
			name:     "forbidden",
			status:   http.StatusForbidden,
			body:     `not json`,
			code:     "FORBIDDEN",
			sentinel: routing.ErrProviderUnavailable,
		},
		{
			name:     "server error",
			status:   http.StatusServiceUnavailable,
			body:     ``,
			code:     "SERVER_503",
			sentinel: routing.ErrProviderUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{
				Origin:      cbd,
				Destination: braamfontein,
			})

			var routingErr *routing.Error
			require.ErrorAs(t, err, &routingErr)
			assert.Equal(t, tt.code, routingErr.Code)
			assert.ErrorIs(t, err, tt.sentinel)
		})
	}
}

type failingDoer struct{ err error }

func (f failingDoer) Do(*http.Request) (*http.Response, error) { return nil, f.err }

func TestClient_GetDirections_TransportErrors(t *testing.T) {
	client := NewClient(ClientConfig{HTTPClient: failingDoer{err: resilience.ErrCircuitOpen}, Logger: zerolog.Nop()})

	_, err := client.GetDirections(context.Background(), routing.DirectionsRequest{Origin: cbd, Destination: braamfontein})
	var routingErr *routing.Error
	require.ErrorAs(t, err, &routingErr)
	assert.Equal(t, "CIRCUIT_OPEN", routingErr.Code)
	assert.True(t, routingErr.IsRetryable())
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)

	client = NewClient(ClientConfig{HTTPClient: failingDoer{err: errors.New("dial tcp: refused")}, Logger: zerolog.Nop()})
	_, err = client.GetDirections(context.Background(), routing.DirectionsRequest{Origin: cbd, Destination: braamfontein})
	require.ErrorAs(t, err, &routingErr)
	assert.Equal(t, "REQUEST_FAILED", routingErr.Code)
}

func TestManeuver(t *testing.T) {
	assert.Equal(t, routing.ManeuverRight, maneuver(stepSlightRight))
	assert.Equal(t, routing.ManeuverLeft, maneuver(stepKeepLeft))
	assert.Equal(t, routing.ManeuverUTurn, maneuver(stepUTurn))
	assert.Equal(t, routing.ManeuverStraight, maneuver(stepEnterRound))
	assert.Equal(t, routing.ManeuverStraight, maneuver(99))
}

func TestClient_Name(t *testing.T) {
	assert.Equal(t, ProviderName, NewClient(ClientConfig{}).Name())
}
