// Package waypoint renders and animates AR waypoint markers.
package waypoint

import (
	"errors"
	"math"
)

// Sentinel errors for renderer operations.
var (
	ErrDisposed       = errors.New("waypoint renderer disposed")
	ErrWaypointExists = errors.New("waypoint already exists")
	ErrInvalidID      = errors.New("waypoint id is required")
)

// Vec3 is a point in the scene, in meters. X points east, Y up and -Z north.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DistanceTo returns the Euclidean distance between v and o.
func (v Vec3) DistanceTo(o Vec3) float64 {
	dx, dy, dz := v.X-o.X, v.Y-o.Y, v.Z-o.Z
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// Type classifies a waypoint for styling.
type Type string

// Waypoint types.
const (
	TypeDestination Type = "destination"
	TypeCheckpoint  Type = "checkpoint"
	TypeTurn        Type = "turn"
	TypePOI         Type = "poi"
	TypeShop        Type = "shop"
	TypeExit        Type = "exit"
)

// Waypoint is a marker placed in the scene by a caller.
type Waypoint struct {
	ID          string   `json:"id"`
	Position    Vec3     `json:"position"`
	Type        Type     `json:"type"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	Color       string   `json:"color,omitempty"`
	Active      bool     `json:"active"`
}

// Style is the visual treatment of a waypoint type.
type Style struct {
	Scale         float64 `json:"scale"`
	Color         string  `json:"color"`
	Emissive      string  `json:"emissive"`
	Opacity       float64 `json:"opacity"`
	PulseSpeed    float64 `json:"pulseSpeed"`
	GlowIntensity float64 `json:"glowIntensity"`
}

// DefaultStyle applies to types missing from the style table.
var DefaultStyle = Style{
	Scale:         1.0,
	Color:         "#ffffff",
	Emissive:      "#888888",
	Opacity:       0.8,
	PulseSpeed:    1.0,
	GlowIntensity: 0.3,
}

// DefaultStyles returns a fresh copy of the built-in style table.
func DefaultStyles() map[Type]Style {
	return map[Type]Style{
		TypeDestination: {Scale: 1.5, Color: "#00ff88", Emissive: "#00aa55", Opacity: 0.9, PulseSpeed: 2.0, GlowIntensity: 0.8},
		TypeCheckpoint:  {Scale: 1.0, Color: "#4488ff", Emissive: "#2266cc", Opacity: 0.8, PulseSpeed: 1.5, GlowIntensity: 0.5},
		TypeTurn:        {Scale: 1.2, Color: "#ffaa00", Emissive: "#cc8800", Opacity: 0.85, PulseSpeed: 2.5, GlowIntensity: 0.6},
		TypePOI:         {Scale: 0.8, Color: "#ff44aa", Emissive: "#cc2288", Opacity: 0.75, PulseSpeed: 1.0, GlowIntensity: 0.4},
		TypeShop:        {Scale: 0.9, Color: "#aa44ff", Emissive: "#8822cc", Opacity: 0.8, PulseSpeed: 1.2, GlowIntensity: 0.5},
		TypeExit:        {Scale: 1.1, Color: "#ff4444", Emissive: "#cc2222", Opacity: 0.9, PulseSpeed: 3.0, GlowIntensity: 0.7},
	}
}

// Animation constants.
const (
	pulseAmplitude = 0.1
	glowAmplitude  = 0.2
	glowSpeedRatio = 0.8

	referenceDistance = 10.0
	minDistanceFactor = 0.5
	maxDistanceFactor = 2.0
)

// PulseScale returns the pulsing scale of s at elapsed seconds t. It stays
// within 10% of s.Scale.
func PulseScale(s Style, t float64) float64 {
	return s.Scale * (1 + math.Sin(t*s.PulseSpeed)*pulseAmplitude)
}

// GlowIntensity returns the glow of s at elapsed seconds t: a pulse of up to
// 20% around s.GlowIntensity. The pulse is a post-processing effect, so it
// runs only on tiers whose preset enables PostProcessing (high); on low and
// medium the glow holds at its base intensity.
func GlowIntensity(s Style, t float64, postProcessing bool) float64 {
	if !postProcessing {
		return s.GlowIntensity
	}
	return s.GlowIntensity * (1 + math.Sin(t*s.PulseSpeed*glowSpeedRatio)*glowAmplitude)
}

// DistanceFactor scales a marker so it stays legible at any distance from
// the viewer.
func DistanceFactor(d float64) float64 {
	if d <= 0 {
		return maxDistanceFactor
	}
	f := referenceDistance / d
	switch {
	case f < minDistanceFactor:
		return minDistanceFactor
	case f > maxDistanceFactor:
		return maxDistanceFactor
	default:
		return f
	}
}
