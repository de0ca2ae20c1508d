// Package cache pools the renderable resources used by the AR waypoint
// renderer and samples the render loop's performance.
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/render/arena"
	"github.com/wayfinder/wayfinder/internal/task"
)

// Config holds configuration for a ResourceCache.
type Config struct {
	// Settings is the shared quality settings record (default: medium preset).
	Settings *render.SettingsStore

	// Monitor reports memory, battery and thermal readings
	// (default: render.RuntimeMonitor).
	Monitor render.DeviceMonitor

	// Metrics records evictions and throttles (optional).
	Metrics *render.Metrics

	// Logger for cache operations.
	Logger zerolog.Logger

	// MaterialLimit, GeometryLimit and TextureLimit are the per-store
	// eviction thresholds (defaults: 50, 50, 30).
	MaterialLimit int
	GeometryLimit int
	TextureLimit  int

	// EvictBatch is how many entries an overflow evicts (default: 10).
	EvictBatch int

	// TargetFrameRate is the initial frame rate goal (default: 60).
	TargetFrameRate float64

	// MinFrameRate floors thermal throttling (default: 20).
	MinFrameRate float64

	// ThrottleStep is the target reduction per throttle (default: 10).
	ThrottleStep float64

	// ThrottleRatio is the fraction of the target below which the frame rate
	// counts as degraded (default: 0.8).
	ThrottleRatio float64

	// MemoryThreshold is the memory ratio that triggers cleanup (default: 0.8).
	MemoryThreshold float64

	// FrameRateInterval, MemoryInterval and ThermalInterval are the sampling
	// periods (defaults: 1s, 5s, 10s).
	FrameRateInterval time.Duration
	MemoryInterval    time.Duration
	ThermalInterval   time.Duration

	// Now is the clock (default: time.Now).
	Now func() time.Time
}

// Stats counts the cache's self-correcting conditions.
type Stats struct {
	Overflows int `json:"overflows"`
	Evictions int `json:"evictions"`
	Cleanups  int `json:"cleanups"`
	Throttles int `json:"throttles"`
}

// ResourceCache owns three resource stores backed by one arena, frame timing
// and the periodic frame-rate, memory and thermal checks.
type ResourceCache struct {
	settings *render.SettingsStore
	monitor  render.DeviceMonitor
	metrics  *render.Metrics
	logger   zerolog.Logger
	now      func() time.Time

	batch           int
	minFrameRate    float64
	throttleStep    float64
	throttleRatio   float64
	memoryThreshold float64

	arena      *arena.Arena
	materials  *Store
	geometries *Store
	textures   *Store

	frameTask   *task.Periodic
	memoryTask  *task.Periodic
	thermalTask *task.Periodic

	mu          sync.Mutex
	target      float64
	frames      int
	windowStart time.Time
	frameStart  time.Time
	inFrame     bool
	fpsWindow   []float64
	current     render.PerformanceMetrics
	stats       Stats
	disposed    bool
}

// New creates a stopped ResourceCache.
func New(cfg Config) *ResourceCache {
	settings := cfg.Settings
	if settings == nil {
		settings = render.NewSettingsStore(render.Preset(render.TierMedium), cfg.Logger)
	}
	monitor := cfg.Monitor
	if monitor == nil {
		monitor = render.NewRuntimeMonitor(0)
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	materialLimit := cfg.MaterialLimit
	if materialLimit == 0 {
		materialLimit = 50
	}
	geometryLimit := cfg.GeometryLimit
	if geometryLimit == 0 {
		geometryLimit = 50
	}
	textureLimit := cfg.TextureLimit
	if textureLimit == 0 {
		textureLimit = 30
	}
	batch := cfg.EvictBatch
	if batch == 0 {
		batch = 10
	}
	target := cfg.TargetFrameRate
	if target == 0 {
		target = 60
	}
	minFrameRate := cfg.MinFrameRate
	if minFrameRate == 0 {
		minFrameRate = 20
	}
	throttleStep := cfg.ThrottleStep
	if throttleStep == 0 {
		throttleStep = 10
	}
	throttleRatio := cfg.ThrottleRatio
	if throttleRatio == 0 {
		throttleRatio = 0.8
	}
	memoryThreshold := cfg.MemoryThreshold
	if memoryThreshold == 0 {
		memoryThreshold = 0.8
	}
	frameRateInterval := cfg.FrameRateInterval
	if frameRateInterval == 0 {
		frameRateInterval = time.Second
	}
	memoryInterval := cfg.MemoryInterval
	if memoryInterval == 0 {
		memoryInterval = 5 * time.Second
	}
	thermalInterval := cfg.ThermalInterval
	if thermalInterval == 0 {
		thermalInterval = 10 * time.Second
	}

	c := &ResourceCache{
		settings:        settings,
		monitor:         monitor,
		metrics:         cfg.Metrics,
		logger:          cfg.Logger,
		now:             now,
		batch:           batch,
		minFrameRate:    minFrameRate,
		throttleStep:    throttleStep,
		throttleRatio:   throttleRatio,
		memoryThreshold: memoryThreshold,
		arena:           arena.New(),
		target:          target,
		windowStart:     now(),
	}
	c.materials = newStore(render.KindMaterial, materialLimit, batch, c.arena, c.onEvict)
	c.geometries = newStore(render.KindGeometry, geometryLimit, batch, c.arena, c.onEvict)
	c.textures = newStore(render.KindTexture, textureLimit, batch, c.arena, c.onEvict)
	c.current = render.PerformanceMetrics{
		BatteryLevel: 1,
		ThermalState: render.ThermalNominal,
		UpdatedAt:    c.windowStart,
	}

	c.frameTask = task.NewPeriodic("render.frame_rate", frameRateInterval, func(context.Context) {
		c.sampleFrameRate()
	}, cfg.Logger)
	c.memoryTask = task.NewPeriodic("render.memory", memoryInterval, func(context.Context) {
		c.CheckMemory()
	}, cfg.Logger)
	c.thermalTask = task.NewPeriodic("render.thermal", thermalInterval, func(context.Context) {
		c.checkThermal()
	}, cfg.Logger)

	return c
}

// Materials returns the material store.
func (c *ResourceCache) Materials() *Store { return c.materials }

// Geometries returns the geometry store.
func (c *ResourceCache) Geometries() *Store { return c.geometries }

// Textures returns the texture store.
func (c *ResourceCache) Textures() *Store { return c.textures }

// Store returns the store for kind, or nil for an unknown kind.
func (c *ResourceCache) Store(kind render.Kind) *Store {
	switch kind {
	case render.KindMaterial:
		return c.materials
	case render.KindGeometry:
		return c.geometries
	case render.KindTexture:
		return c.textures
	default:
		return nil
	}
}

// Settings returns the shared settings record.
func (c *ResourceCache) Settings() *render.SettingsStore {
	return c.settings
}

// Release returns a lease. The resource is disposed once neither its store
// nor any other lease holds it. Releasing after Dispose is a no-op.
func (c *ResourceCache) Release(l Lease) {
	if l.Handle.IsZero() {
		return
	}
	if _, err := c.arena.Release(l.Handle); err != nil {
		c.logger.Debug().
			Str("kind", string(l.Kind)).
			Str("key", l.Key).
			Stringer("handle", l.Handle).
			Msg("release of stale lease ignored")
	}
}

// LiveResources returns the number of undisposed resources.
func (c *ResourceCache) LiveResources() int {
	return c.arena.Len()
}

// DisposedResources returns how many resources have been disposed.
func (c *ResourceCache) DisposedResources() int {
	return c.arena.Disposed()
}

func (c *ResourceCache) onEvict(kind render.Kind, reason string, keys []string) {
	c.mu.Lock()
	c.stats.Evictions += len(keys)
	if reason == ReasonOverflow {
		c.stats.Overflows++
	}
	c.mu.Unlock()

	c.metrics.RecordEviction(kind, reason, len(keys))

	msg := "resources evicted"
	if reason == ReasonOverflow {
		msg = "cache overflow"
	}
	c.logger.Debug().
		Str("kind", string(kind)).
		Str("reason", reason).
		Int("evicted", len(keys)).
		Msg(msg)
}

// StartFrame marks the beginning of a render pass.
func (c *ResourceCache) StartFrame() {
	c.mu.Lock()
	c.frameStart = c.now()
	c.inFrame = true
	c.mu.Unlock()
}

// EndFrame records the render time of the pass begun by StartFrame and counts
// the frame.
func (c *ResourceCache) EndFrame() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.inFrame {
		return
	}
	c.inFrame = false
	c.current.RenderTime = c.now().Sub(c.frameStart)
	c.frames++
}

// Start launches the sampling loops. They end on Stop, Dispose or when ctx
// is cancelled.
func (c *ResourceCache) Start(ctx context.Context) {
	c.mu.Lock()
	disposed := c.disposed
	c.windowStart = c.now()
	c.frames = 0
	c.mu.Unlock()
	if disposed {
		return
	}

	c.frameTask.Start(ctx)
	c.memoryTask.Start(ctx)
	c.thermalTask.Start(ctx)
}

// Stop halts the sampling loops.
func (c *ResourceCache) Stop() {
	c.frameTask.Stop()
	c.memoryTask.Stop()
	c.thermalTask.Stop()
}

// Running reports whether the sampling loops are active.
func (c *ResourceCache) Running() bool {
	return c.frameTask.Running()
}

// Metrics returns the latest performance sample.
func (c *ResourceCache) Metrics() render.PerformanceMetrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stats returns the advisory condition counters.
func (c *ResourceCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// TargetFrameRate returns the frame rate goal.
func (c *ResourceCache) TargetFrameRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.target
}

// SetTargetFrameRate changes the frame rate goal. Values below the throttle
// floor are raised to it.
func (c *ResourceCache) SetTargetFrameRate(fps float64) {
	if fps < c.minFrameRate {
		fps = c.minFrameRate
	}
	c.mu.Lock()
	c.target = fps
	c.mu.Unlock()

	c.metrics.RecordTarget(fps)
}

// FrameInterval returns the pause between frames at the target rate.
func (c *ResourceCache) FrameInterval() time.Duration {
	return time.Duration(float64(time.Second) / c.TargetFrameRate())
}

func (c *ResourceCache) sampleFrameRate() {
	c.mu.Lock()
	now := c.now()
	elapsed := now.Sub(c.windowStart).Seconds()
	if elapsed <= 0 {
		c.mu.Unlock()
		return
	}
	fps := float64(c.frames) / elapsed
	c.frames = 0
	c.windowStart = now
	c.current.FrameRate = fps
	c.current.UpdatedAt = now
	c.fpsWindow = append(c.fpsWindow, fps)
	c.mu.Unlock()

	c.metrics.RecordFrameRate(fps)
}

// CheckMemory takes a device reading and runs a cleanup pass when memory
// usage is above the threshold. The memory loop calls it periodically.
func (c *ResourceCache) CheckMemory() {
	memory := c.monitor.MemoryUsage()
	battery := c.monitor.BatteryLevel()
	thermal := c.monitor.ThermalState()

	c.mu.Lock()
	c.current.MemoryUsage = memory
	c.current.BatteryLevel = battery
	c.current.ThermalState = thermal
	c.current.UpdatedAt = c.now()
	c.mu.Unlock()

	if memory <= c.memoryThreshold {
		return
	}
	c.cleanup(memory)
}

func (c *ResourceCache) cleanup(memory float64) {
	materials := len(c.materials.EvictOldest(c.batch, ReasonMemory))
	geometries := len(c.geometries.EvictOldest(c.batch, ReasonMemory))

	var textures int
	if c.settings.Get().TextureQuality == render.TierLow {
		textures = c.textures.Clear(ReasonTexture)
	} else {
		textures = len(c.textures.EvictOldest(c.batch, ReasonMemory))
	}

	c.mu.Lock()
	c.stats.Cleanups++
	c.mu.Unlock()

	c.metrics.RecordCleanup()
	c.logger.Info().
		Float64("memory_usage", memory).
		Int("materials", materials).
		Int("geometries", geometries).
		Int("textures", textures).
		Msg("memory pressure cleanup")
}

// checkThermal lowers the target frame rate one step when the device reports a
// serious or critical thermal state, or when the frame rate averaged since the
// last check fell below the throttle ratio of the target. Windows with no
// counted frames do not count as slow.
func (c *ResourceCache) checkThermal() {
	thermal := c.monitor.ThermalState()

	c.mu.Lock()
	window := c.fpsWindow
	c.fpsWindow = nil
	target := c.target

	var sum float64
	for _, fps := range window {
		sum += fps
	}
	var avg float64
	if len(window) > 0 {
		avg = sum / float64(len(window))
	}
	hot := thermal.Throttling()
	slow := avg > 0 && avg < target*c.throttleRatio
	if (!hot && !slow) || target <= c.minFrameRate {
		c.mu.Unlock()
		return
	}

	next := target - c.throttleStep
	if next < c.minFrameRate {
		next = c.minFrameRate
	}
	c.target = next
	c.stats.Throttles++
	c.mu.Unlock()

	cause := "frame_rate"
	if hot {
		cause = "thermal_state"
	}
	c.metrics.RecordThrottle(next)
	c.logger.Warn().
		Str("cause", cause).
		Str("thermal_state", string(thermal)).
		Float64("frame_rate", avg).
		Float64("previous_target", target).
		Float64("target", next).
		Msg("thermal throttled")
}

// Dispose stops sampling, disposes every pooled resource and empties the
// stores. Leases still held become stale. It is safe to call more than once.
func (c *ResourceCache) Dispose() {
	c.mu.Lock()
	if c.disposed {
		c.mu.Unlock()
		return
	}
	c.disposed = true
	c.mu.Unlock()

	c.Stop()
	c.materials.Clear(ReasonDispose)
	c.geometries.Clear(ReasonDispose)
	c.textures.Clear(ReasonDispose)
	remaining := c.arena.Clear()

	c.mu.Lock()
	c.frames = 0
	c.fpsWindow = nil
	c.inFrame = false
	c.mu.Unlock()

	c.logger.Debug().Int("leased", remaining).Msg("resource cache disposed")
}

var _ render.MetricsSource = (*ResourceCache)(nil)
