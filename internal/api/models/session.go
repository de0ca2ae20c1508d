package models

import (
	"github.com/wayfinder/wayfinder/internal/navigation"
	"github.com/wayfinder/wayfinder/internal/notify"
	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/render/cache"
	"github.com/wayfinder/wayfinder/internal/render/waypoint"
	"github.com/wayfinder/wayfinder/internal/venue"
)

// Session is the externally visible state of a navigation session.
type Session struct {
	ID        string              `json:"id"`
	CreatedAt Timestamp           `json:"createdAt"`
	LastSeen  Timestamp           `json:"lastSeen"`
	State     navigation.State    `json:"state"`
	Waypoints []waypoint.Waypoint `json:"waypoints"`
	Notices   []Notice            `json:"notices"`
	Render    RenderStatus        `json:"render"`
}

// RenderStatus summarizes the session's render resources.
type RenderStatus struct {
	Settings        render.QualitySettings `json:"settings"`
	TargetFrameRate float64                `json:"targetFrameRate"`
	LiveResources   int                    `json:"liveResources"`
	Stats           cache.Stats            `json:"stats"`
}

// Notice is a user-facing message raised by the session.
type Notice struct {
	Level   string    `json:"level"`
	Code    string    `json:"code"`
	Message string    `json:"message"`
	At      Timestamp `json:"at"`
}

// NoticesFrom converts recorded notices, oldest first.
func NoticesFrom(ns []notify.Notice) []Notice {
	out := make([]Notice, 0, len(ns))
	for _, n := range ns {
		out = append(out, Notice{
			Level:   string(n.Level),
			Code:    n.Code,
			Message: n.Message,
			At:      Timestamp(n.At),
		})
	}
	return out
}

// PositionRequest reports a device fix.
type PositionRequest struct {
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
	Accuracy *float64 `json:"accuracy,omitempty"`
}

// ManualLocationRequest sets the user's location from an address.
type ManualLocationRequest struct {
	Address string `json:"address"`
}

// SelectVenueRequest picks the destination venue.
type SelectVenueRequest struct {
	VenueID string `json:"venueId"`
}

// ViewModeResponse is returned by the view mode toggle.
type ViewModeResponse struct {
	ViewMode navigation.ViewMode `json:"viewMode"`
}

// TelemetryRequest carries client-reported device readings. Ratios are in
// [0, 1].
type TelemetryRequest struct {
	MemoryUsage  float64             `json:"memoryUsage"`
	BatteryLevel float64             `json:"batteryLevel"`
	ThermalState render.ThermalState `json:"thermalState"`
}

// Quality is the quality controller's view of a session.
type Quality struct {
	PerformanceMode     bool                      `json:"performanceMode"`
	Adaptive            bool                      `json:"adaptive"`
	TargetFrameRate     float64                   `json:"targetFrameRate"`
	Settings            render.QualitySettings    `json:"settings"`
	Latest              render.PerformanceMetrics `json:"latest"`
	RecommendedTier     render.Tier               `json:"recommendedTier"`
	RecommendedSettings render.QualitySettings    `json:"recommendedSettings"`
	Recommendations     []string                  `json:"recommendations"`
}

// PagedVenues is the venue directory listing.
type PagedVenues struct {
	Items []venue.Venue      `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}

// PagedNearbyVenues is the nearby venue search result, closest first.
type PagedNearbyVenues struct {
	Items []venue.Ranked     `json:"items"`
	Meta  PagedResponseMeta `json:"meta"`
}
