// Package render holds the types shared by the AR rendering components: the
// quality settings record, device telemetry and the resources the cache pools.
package render

import (
	"errors"
	"time"
)

// ErrUnknownTier is returned when a tier name is not low, medium or high.
var ErrUnknownTier = errors.New("unknown quality tier")

// Tier is a quality level.
type Tier string

// Tiers.
const (
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// ParseTier parses a tier name.
func ParseTier(s string) (Tier, error) {
	switch t := Tier(s); t {
	case TierLow, TierMedium, TierHigh:
		return t, nil
	default:
		return "", ErrUnknownTier
	}
}

// QualitySettings is the active rendering quality tuple.
type QualitySettings struct {
	ModelQuality    Tier `json:"modelQuality"`
	TextureQuality  Tier `json:"textureQuality"`
	LightingQuality Tier `json:"lightingQuality"`
	ShadowQuality   Tier `json:"shadowQuality"`
	AntiAliasing    bool `json:"antiAliasing"`
	PostProcessing  bool `json:"postProcessing"`
}

var presets = map[Tier]QualitySettings{
	TierLow: {
		ModelQuality:    TierLow,
		TextureQuality:  TierLow,
		LightingQuality: TierLow,
		ShadowQuality:   TierLow,
	},
	TierMedium: {
		ModelQuality:    TierMedium,
		TextureQuality:  TierMedium,
		LightingQuality: TierMedium,
		ShadowQuality:   TierLow,
		AntiAliasing:    true,
	},
	TierHigh: {
		ModelQuality:    TierHigh,
		TextureQuality:  TierHigh,
		LightingQuality: TierHigh,
		ShadowQuality:   TierHigh,
		AntiAliasing:    true,
		PostProcessing:  true,
	},
}

// Preset returns the settings for a device-capability tier. Unknown tiers get
// the medium preset.
func Preset(t Tier) QualitySettings {
	if s, ok := presets[t]; ok {
		return s
	}
	return presets[TierMedium]
}

// ThermalState is the device's reported thermal pressure.
type ThermalState string

// Thermal states.
const (
	ThermalNominal  ThermalState = "nominal"
	ThermalFair     ThermalState = "fair"
	ThermalSerious  ThermalState = "serious"
	ThermalCritical ThermalState = "critical"
)

// Throttling reports whether the state calls for reduced work.
func (t ThermalState) Throttling() bool {
	return t == ThermalSerious || t == ThermalCritical
}

// PerformanceMetrics is one telemetry sample. Ratios are in [0, 1].
type PerformanceMetrics struct {
	FrameRate    float64       `json:"frameRate"`
	MemoryUsage  float64       `json:"memoryUsage"`
	BatteryLevel float64       `json:"batteryLevel"`
	ThermalState ThermalState  `json:"thermalState"`
	RenderTime   time.Duration `json:"renderTime"`
	UpdatedAt    time.Time     `json:"updatedAt"`
}

// MetricsSource supplies the latest telemetry sample.
type MetricsSource interface {
	Metrics() PerformanceMetrics
}

// Kind identifies one of the pooled resource families.
type Kind string

// Resource kinds.
const (
	KindMaterial Kind = "material"
	KindGeometry Kind = "geometry"
	KindTexture  Kind = "texture"
)

// Resource is a disposable renderable resource.
type Resource interface {
	Kind() Kind
	Dispose()
}
