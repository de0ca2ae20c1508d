package quality_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/render/quality"
)

type fakeSource struct {
	mu sync.Mutex
	m  render.PerformanceMetrics
}

func (s *fakeSource) Metrics() render.PerformanceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.m
}

func (s *fakeSource) Set(m render.PerformanceMetrics) {
	s.mu.Lock()
	s.m = m
	s.mu.Unlock()
}

type recordingPacer struct {
	mu      sync.Mutex
	target  float64
	targets []float64
}

func (p *recordingPacer) SetTargetFrameRate(fps float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.target = fps
	p.targets = append(p.targets, fps)
}

func (p *recordingPacer) TargetFrameRate() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.target
}

func healthy() render.PerformanceMetrics {
	return render.PerformanceMetrics{
		FrameRate:    60,
		MemoryUsage:  0.4,
		BatteryLevel: 0.9,
		ThermalState: render.ThermalNominal,
	}
}

func newController(t *testing.T, mutate func(*quality.Config)) (*quality.Controller, *fakeSource, *render.SettingsStore, *recordingPacer) {
	t.Helper()
	source := &fakeSource{m: healthy()}
	settings := render.NewSettingsStore(render.Preset(render.TierHigh), zerolog.Nop())
	pacer := &recordingPacer{target: 60}
	cfg := quality.Config{
		Source:   source,
		Settings: settings,
		Pacer:    pacer,
		Logger:   zerolog.Nop(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	c := quality.New(cfg)
	t.Cleanup(c.Stop)
	return c, source, settings, pacer
}

func TestController_PerformanceModeTriggers(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*render.PerformanceMetrics)
	}{
		{"low frame rate", func(m *render.PerformanceMetrics) { m.FrameRate = 45 }},
		{"memory pressure", func(m *render.PerformanceMetrics) { m.MemoryUsage = 0.85 }},
		{"low battery", func(m *render.PerformanceMetrics) { m.BatteryLevel = 0.15 }},
		{"serious thermal", func(m *render.PerformanceMetrics) { m.ThermalState = render.ThermalSerious }},
		{"critical thermal", func(m *render.PerformanceMetrics) { m.ThermalState = render.ThermalCritical }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, source, settings, _ := newController(t, nil)

			c.Tick()
			assert.False(t, c.PerformanceMode())

			m := healthy()
			tt.mutate(&m)
			source.Set(m)
			c.Tick()

			assert.True(t, c.PerformanceMode())
			assert.Equal(t, render.Preset(render.TierLow), settings.Get())

			source.Set(healthy())
			c.Tick()
			assert.False(t, c.PerformanceMode())
			assert.Equal(t, render.Preset(render.TierHigh), settings.Get())
		})
	}
}

func TestController_ThresholdBoundaries(t *testing.T) {
	c, source, _, _ := newController(t, nil)

	m := healthy()
	m.MemoryUsage = 0.8
	m.BatteryLevel = 0.2
	source.Set(m)
	c.Tick()
	assert.False(t, c.PerformanceMode(), "thresholds are exclusive")
}

func TestController_FrameRateTolerance(t *testing.T) {
	c, source, _, _ := newController(t, nil)

	m := healthy()
	m.FrameRate = 57
	source.Set(m)
	c.Tick()
	assert.False(t, c.PerformanceMode(), "slightly under target is healthy")

	m.FrameRate = 54
	source.Set(m)
	c.Tick()
	assert.False(t, c.PerformanceMode(), "tolerance bound is exclusive")

	m.FrameRate = 53
	source.Set(m)
	c.Tick()
	assert.True(t, c.PerformanceMode())
}

func TestController_ZeroFrameRateIgnored(t *testing.T) {
	c, source, settings, _ := newController(t, nil)

	m := healthy()
	m.FrameRate = 0
	source.Set(m)
	c.Tick()
	assert.False(t, c.PerformanceMode(), "no frames counted yet")
	assert.Equal(t, render.Preset(render.TierHigh), settings.Get())
	assert.Empty(t, c.PerformanceRecommendations())

	m.MemoryUsage = 0.9
	source.Set(m)
	c.Tick()
	assert.True(t, c.PerformanceMode(), "other criteria still apply")
}

func TestController_FollowsPacerTarget(t *testing.T) {
	c, source, settings, pacer := newController(t, nil)

	// the pacer throttles on its own
	pacer.mu.Lock()
	pacer.target = 50
	pacer.mu.Unlock()

	m := healthy()
	m.FrameRate = 48
	source.Set(m)
	c.Tick()

	assert.False(t, c.PerformanceMode())
	assert.Equal(t, render.Preset(render.TierHigh), settings.Get())
	assert.Equal(t, 50.0, c.Status().TargetFrameRate)
	assert.Equal(t, 50.0, c.TargetFrameRate())
}

func TestController_OwnTargetWithoutPacer(t *testing.T) {
	c, _, _, _ := newController(t, func(cfg *quality.Config) {
		cfg.Pacer = nil
		cfg.TargetFrameRate = 30
	})
	assert.Equal(t, 30.0, c.TargetFrameRate())

	c.EnableHighQualityMode()
	assert.Equal(t, 60.0, c.TargetFrameRate())
}

func TestController_ThermalThrottlingDisabled(t *testing.T) {
	c, source, _, _ := newController(t, func(cfg *quality.Config) {
		cfg.DisableThermalThrottling = true
	})

	m := healthy()
	m.ThermalState = render.ThermalCritical
	source.Set(m)
	c.Tick()
	assert.False(t, c.PerformanceMode())
}

func TestController_NoHysteresis(t *testing.T) {
	c, source, settings, _ := newController(t, nil)

	var switches int
	settings.OnChange(func(render.SettingsChange) { switches++ })

	for i := 0; i < 6; i++ {
		m := healthy()
		if i%2 == 0 {
			m.FrameRate = 53.9
		}
		source.Set(m)
		c.Tick()
	}
	assert.Equal(t, 6, switches, "a metric oscillating around the threshold flips every tick")
}

func TestController_BatterySavingMode(t *testing.T) {
	c, source, settings, pacer := newController(t, nil)

	c.EnableBatterySavingMode()
	status := c.Status()
	assert.Equal(t, 20.0, status.TargetFrameRate)
	assert.True(t, status.Adaptive)
	assert.True(t, status.PerformanceMode)
	assert.Equal(t, render.Preset(render.TierLow), settings.Get())
	assert.Equal(t, []float64{20}, pacer.targets)

	m := healthy()
	m.FrameRate = 25
	m.BatteryLevel = 0.1
	source.Set(m)
	c.Tick()
	assert.True(t, c.PerformanceMode(), "still reduced on low battery")
}

func TestController_HighQualityModeDisablesAdaptation(t *testing.T) {
	c, source, settings, pacer := newController(t, nil)

	c.EnableHighQualityMode()
	assert.Equal(t, render.Preset(render.TierHigh), settings.Get())
	assert.Equal(t, []float64{60}, pacer.targets)

	m := healthy()
	m.FrameRate = 10
	m.MemoryUsage = 0.95
	source.Set(m)
	c.Tick()

	status := c.Status()
	assert.False(t, status.Adaptive)
	assert.False(t, status.PerformanceMode)
	assert.Equal(t, render.Preset(render.TierHigh), settings.Get())
	assert.Equal(t, m, status.Latest, "samples are still recorded")

	c.EnableAdaptiveQuality()
	c.Tick()
	assert.True(t, c.PerformanceMode())
	assert.Equal(t, render.Preset(render.TierLow), settings.Get())
}

func TestController_RecommendedSettings(t *testing.T) {
	tests := []struct {
		name    string
		samples []render.PerformanceMetrics
		want    render.Tier
	}{
		{"no samples", nil, render.TierMedium},
		{"fast and roomy", []render.PerformanceMetrics{{FrameRate: 58, MemoryUsage: 0.3}, {FrameRate: 60, MemoryUsage: 0.4}}, render.TierHigh},
		{"fast but crowded", []render.PerformanceMetrics{{FrameRate: 60, MemoryUsage: 0.7}}, render.TierMedium},
		{"middling", []render.PerformanceMetrics{{FrameRate: 35, MemoryUsage: 0.5}, {FrameRate: 40, MemoryUsage: 0.5}}, render.TierMedium},
		{"slow", []render.PerformanceMetrics{{FrameRate: 20, MemoryUsage: 0.3}, {FrameRate: 25, MemoryUsage: 0.3}}, render.TierLow},
		{"memory bound", []render.PerformanceMetrics{{FrameRate: 60, MemoryUsage: 0.9}}, render.TierLow},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, source, _, _ := newController(t, nil)
			for _, s := range tt.samples {
				source.Set(s)
				c.Tick()
			}
			tier, settings := c.RecommendedSettings()
			assert.Equal(t, tt.want, tier)
			assert.Equal(t, render.Preset(tt.want), settings)
		})
	}
}

func TestController_HistoryIsBounded(t *testing.T) {
	c, source, _, _ := newController(t, func(cfg *quality.Config) {
		cfg.HistorySize = 3
	})

	for i := 0; i < 10; i++ {
		source.Set(render.PerformanceMetrics{FrameRate: 10, MemoryUsage: 0.9})
		c.Tick()
	}
	for i := 0; i < 3; i++ {
		source.Set(healthy())
		c.Tick()
	}

	tier, _ := c.RecommendedSettings()
	assert.Equal(t, render.TierHigh, tier, "only the last three samples count")
}

func TestController_PerformanceRecommendations(t *testing.T) {
	c, source, _, _ := newController(t, nil)

	c.Tick()
	assert.Empty(t, c.PerformanceRecommendations())

	source.Set(render.PerformanceMetrics{
		FrameRate:    30,
		MemoryUsage:  0.9,
		BatteryLevel: 0.1,
		ThermalState: render.ThermalSerious,
	})
	c.Tick()

	advice := c.PerformanceRecommendations()
	require.Len(t, advice, 4)
	assert.Contains(t, advice[0], "30 fps")
	assert.Contains(t, advice[1], "90%")
	assert.Contains(t, advice[2], "10%")
	assert.Contains(t, advice[3], "serious")
}

func TestController_StartStop(t *testing.T) {
	c, source, settings, _ := newController(t, func(cfg *quality.Config) {
		cfg.Interval = 5 * time.Millisecond
	})

	m := healthy()
	m.FrameRate = 10
	source.Set(m)

	c.Start(context.Background())
	assert.True(t, c.Running())
	assert.Eventually(t, func() bool {
		return settings.Get() == render.Preset(render.TierLow)
	}, time.Second, 5*time.Millisecond)

	c.Stop()
	assert.False(t, c.Running())
}
