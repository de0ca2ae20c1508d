// Package quality adapts rendering quality to live device telemetry.
package quality

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/task"
)

// Pacer owns the target frame rate. The controller reads the target back from
// it, so throttling done by the pacer is seen on the next tick.
type Pacer interface {
	SetTargetFrameRate(fps float64)
	TargetFrameRate() float64
}

// Config holds configuration for a Controller.
type Config struct {
	// Source supplies telemetry samples (required).
	Source render.MetricsSource

	// Settings is the shared settings record the controller switches (required).
	Settings *render.SettingsStore

	// Pacer owns the target frame rate (optional). Without one the controller
	// keeps its own target.
	Pacer Pacer

	// Metrics records performance mode switches (optional).
	Metrics *render.Metrics

	// Logger for controller decisions.
	Logger zerolog.Logger

	// Interval is the sampling period (default: 1 second).
	Interval time.Duration

	// TargetFrameRate is the frame rate goal when there is no Pacer
	// (default: 60).
	TargetFrameRate float64

	// FrameRateTolerance is the fraction of the target a measured frame rate
	// may fall to before performance mode engages (default: 0.9).
	FrameRateTolerance float64

	// MemoryThreshold is the memory ratio above which performance mode
	// engages (default: 0.8).
	MemoryThreshold float64

	// BatteryThreshold is the battery ratio below which performance mode
	// engages (default: 0.2).
	BatteryThreshold float64

	// DisableThermalThrottling ignores the device thermal state.
	DisableThermalThrottling bool

	// HistorySize is how many samples feed RecommendedSettings (default: 10).
	HistorySize int
}

// Frame rate targets of the explicit presets.
const (
	BatterySavingFrameRate = 20
	HighQualityFrameRate   = 60
)

// Status is a snapshot of the controller's decision state.
type Status struct {
	PerformanceMode bool                      `json:"performanceMode"`
	Adaptive        bool                      `json:"adaptive"`
	TargetFrameRate float64                   `json:"targetFrameRate"`
	Settings        render.QualitySettings    `json:"settings"`
	Latest          render.PerformanceMetrics `json:"latest"`
}

// Controller samples telemetry every tick and flips the shared settings
// between the reduced and full presets.
type Controller struct {
	source   render.MetricsSource
	settings *render.SettingsStore
	pacer    Pacer
	metrics  *render.Metrics
	logger   zerolog.Logger

	tolerance        float64
	memoryThreshold  float64
	batteryThreshold float64
	thermal          bool
	historySize      int

	ticker *task.Periodic

	mu              sync.Mutex
	target          float64
	adaptive        bool
	performanceMode bool
	latest          render.PerformanceMetrics
	history         []render.PerformanceMetrics
}

// New creates a stopped Controller with adaptive quality enabled.
func New(cfg Config) *Controller {
	interval := cfg.Interval
	if interval == 0 {
		interval = time.Second
	}
	target := cfg.TargetFrameRate
	if target == 0 {
		target = 60
	}
	tolerance := cfg.FrameRateTolerance
	if tolerance == 0 {
		tolerance = 0.9
	}
	memoryThreshold := cfg.MemoryThreshold
	if memoryThreshold == 0 {
		memoryThreshold = 0.8
	}
	batteryThreshold := cfg.BatteryThreshold
	if batteryThreshold == 0 {
		batteryThreshold = 0.2
	}
	historySize := cfg.HistorySize
	if historySize == 0 {
		historySize = 10
	}

	c := &Controller{
		source:           cfg.Source,
		settings:         cfg.Settings,
		pacer:            cfg.Pacer,
		metrics:          cfg.Metrics,
		logger:           cfg.Logger,
		tolerance:        tolerance,
		memoryThreshold:  memoryThreshold,
		batteryThreshold: batteryThreshold,
		thermal:          !cfg.DisableThermalThrottling,
		historySize:      historySize,
		target:           target,
		adaptive:         true,
	}
	c.ticker = task.NewPeriodic("render.quality", interval, func(context.Context) {
		c.Tick()
	}, cfg.Logger)
	return c
}

// Start begins periodic sampling.
func (c *Controller) Start(ctx context.Context) {
	c.ticker.Start(ctx)
}

// Stop halts sampling.
func (c *Controller) Stop() {
	c.ticker.Stop()
}

// Running reports whether sampling is active.
func (c *Controller) Running() bool {
	return c.ticker.Running()
}

// Tick takes one telemetry sample and re-evaluates performance mode. There is
// no hysteresis: a metric hovering at a threshold can flip the mode on every
// tick. A zero frame rate means no frame was counted in the sample window and
// leaves the frame rate out of the decision.
func (c *Controller) Tick() {
	sample := c.source.Metrics()
	target := c.TargetFrameRate()

	c.mu.Lock()
	c.latest = sample
	c.history = append(c.history, sample)
	if len(c.history) > c.historySize {
		c.history = append(c.history[:0:0], c.history[len(c.history)-c.historySize:]...)
	}
	if !c.adaptive {
		c.mu.Unlock()
		return
	}
	want := c.shouldReduceLocked(sample, target)
	if want == c.performanceMode {
		c.mu.Unlock()
		return
	}
	c.performanceMode = want
	c.mu.Unlock()

	preset := render.TierHigh
	if want {
		preset = render.TierLow
	}
	c.settings.Apply(preset)
	c.metrics.RecordQualitySwitch(want)
	c.logger.Info().
		Bool("performance_mode", want).
		Str("preset", string(preset)).
		Float64("frame_rate", sample.FrameRate).
		Float64("target_frame_rate", target).
		Float64("memory_usage", sample.MemoryUsage).
		Float64("battery_level", sample.BatteryLevel).
		Str("thermal_state", string(sample.ThermalState)).
		Msg("quality mode switched")
}

func (c *Controller) shouldReduceLocked(m render.PerformanceMetrics, target float64) bool {
	switch {
	case c.belowTarget(m.FrameRate, target):
		return true
	case m.MemoryUsage > c.memoryThreshold:
		return true
	case m.BatteryLevel < c.batteryThreshold:
		return true
	case c.thermal && m.ThermalState.Throttling():
		return true
	default:
		return false
	}
}

func (c *Controller) belowTarget(fps, target float64) bool {
	return fps > 0 && fps < target*c.tolerance
}

// TargetFrameRate returns the pacer's target, or the controller's own when it
// has no pacer.
func (c *Controller) TargetFrameRate() float64 {
	if c.pacer != nil {
		return c.pacer.TargetFrameRate()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// RecommendedSettings derives a device-capability tier from the recent
// average frame rate and memory pressure and returns its preset.
func (c *Controller) RecommendedSettings() (render.Tier, render.QualitySettings) {
	c.mu.Lock()
	history := append([]render.PerformanceMetrics(nil), c.history...)
	c.mu.Unlock()

	tier := recommendTier(history)
	return tier, render.Preset(tier)
}

func recommendTier(history []render.PerformanceMetrics) render.Tier {
	if len(history) == 0 {
		return render.TierMedium
	}

	var fps, memory float64
	for _, m := range history {
		fps += m.FrameRate
		memory += m.MemoryUsage
	}
	fps /= float64(len(history))
	memory /= float64(len(history))

	switch {
	case fps >= 50 && memory < 0.6:
		return render.TierHigh
	case fps >= 30 && memory < 0.8:
		return render.TierMedium
	default:
		return render.TierLow
	}
}

// EnableBatterySavingMode switches to the low preset with a 20 fps target.
func (c *Controller) EnableBatterySavingMode() {
	c.setMode(render.TierLow, BatterySavingFrameRate, true, true)
}

// EnableHighQualityMode switches to the high preset with a 60 fps target and
// turns adaptive quality off.
func (c *Controller) EnableHighQualityMode() {
	c.setMode(render.TierHigh, HighQualityFrameRate, false, false)
}

// EnableAdaptiveQuality turns adaptive switching back on. The next tick
// re-evaluates performance mode from scratch.
func (c *Controller) EnableAdaptiveQuality() {
	c.mu.Lock()
	c.adaptive = true
	c.mu.Unlock()
}

func (c *Controller) setMode(tier render.Tier, fps float64, adaptive, performanceMode bool) {
	c.mu.Lock()
	c.target = fps
	c.adaptive = adaptive
	c.performanceMode = performanceMode
	c.mu.Unlock()

	c.settings.Apply(tier)
	if c.pacer != nil {
		c.pacer.SetTargetFrameRate(fps)
	}
	c.logger.Info().
		Str("preset", string(tier)).
		Float64("target_frame_rate", fps).
		Bool("adaptive", adaptive).
		Msg("quality preset applied")
}

// PerformanceRecommendations returns advisories for the latest sample.
func (c *Controller) PerformanceRecommendations() []string {
	target := c.TargetFrameRate()
	c.mu.Lock()
	m := c.latest
	c.mu.Unlock()

	var out []string
	if c.belowTarget(m.FrameRate, target) {
		out = append(out, fmt.Sprintf("Frame rate %.0f fps is below the %.0f fps target: reduce model and shadow quality.", m.FrameRate, target))
	}
	if m.MemoryUsage > c.memoryThreshold {
		out = append(out, fmt.Sprintf("Memory usage is at %.0f%%: close other apps or lower texture quality.", m.MemoryUsage*100))
	}
	if m.BatteryLevel < c.batteryThreshold {
		out = append(out, fmt.Sprintf("Battery is at %.0f%%: enable battery saving mode.", m.BatteryLevel*100))
	}
	if m.ThermalState.Throttling() {
		out = append(out, fmt.Sprintf("Device thermal state is %s: let the device cool down.", m.ThermalState))
	}
	return out
}

// Status returns the controller state.
func (c *Controller) Status() Status {
	target := c.TargetFrameRate()
	c.mu.Lock()
	defer c.mu.Unlock()
	return Status{
		PerformanceMode: c.performanceMode,
		Adaptive:        c.adaptive,
		TargetFrameRate: target,
		Settings:        c.settings.Get(),
		Latest:          c.latest,
	}
}

// PerformanceMode reports whether the reduced preset is active.
func (c *Controller) PerformanceMode() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.performanceMode
}
