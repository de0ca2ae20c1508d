package waypoint

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/render/cache"
)

// DefaultRotationSpeed is the spin of active markers in radians per second.
const DefaultRotationSpeed = 0.5

// Config holds configuration for a Renderer.
type Config struct {
	// Scene receives the waypoint nodes (required).
	Scene Scene

	// Cache shares geometries, materials and textures across markers (required).
	Cache *cache.ResourceCache

	// Factory builds resources on cache misses (default: MeshFactory).
	Factory ResourceFactory

	// Settings drives resource detail and glow animation (default: the
	// cache's settings).
	Settings *render.SettingsStore

	// Metrics records per-marker frame failures (optional).
	Metrics *render.Metrics

	// Logger for renderer events.
	Logger zerolog.Logger

	// RotationSpeed overrides DefaultRotationSpeed.
	RotationSpeed float64

	// Now overrides the clock used by Run (default: time.Now).
	Now func() time.Time
}

type marker struct {
	wp     Waypoint
	style  Style
	node   Node
	leases []cache.Lease
}

// Renderer owns the waypoint markers in a scene and animates them each frame.
type Renderer struct {
	scene    Scene
	cache    *cache.ResourceCache
	factory  ResourceFactory
	settings *render.SettingsStore
	metrics  *render.Metrics
	logger   zerolog.Logger
	spin     float64
	now      func() time.Time

	unsubscribe func()
	stop        chan struct{}
	disposeOnce sync.Once

	mu        sync.Mutex
	disposed  bool
	styles    map[Type]Style
	markers   map[string]*marker
	order     []string
	start     time.Time
	lastFrame time.Time
}

// NewRenderer creates a Renderer and subscribes it to settings changes so
// markers rebuild at the new detail tier.
func NewRenderer(cfg Config) *Renderer {
	factory := cfg.Factory
	if factory == nil {
		factory = NewMeshFactory()
	}
	settings := cfg.Settings
	if settings == nil {
		settings = cfg.Cache.Settings()
	}
	spin := cfg.RotationSpeed
	if spin == 0 {
		spin = DefaultRotationSpeed
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	r := &Renderer{
		scene:    cfg.Scene,
		cache:    cfg.Cache,
		factory:  factory,
		settings: settings,
		metrics:  cfg.Metrics,
		logger:   cfg.Logger,
		spin:     spin,
		now:      now,
		stop:     make(chan struct{}),
		styles:   DefaultStyles(),
		markers:  make(map[string]*marker),
	}
	r.unsubscribe = settings.OnChange(r.onSettingsChange)
	return r
}

// AddWaypoint places a marker for wp.
func (r *Renderer) AddWaypoint(wp Waypoint) error {
	if wp.ID == "" {
		return ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return ErrDisposed
	}
	if _, ok := r.markers[wp.ID]; ok {
		return fmt.Errorf("%w: %s", ErrWaypointExists, wp.ID)
	}
	return r.addLocked(wp)
}

// UpdateWaypoint replaces the marker for wp.ID, creating it when absent.
func (r *Renderer) UpdateWaypoint(wp Waypoint) error {
	if wp.ID == "" {
		return ErrInvalidID
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return ErrDisposed
	}
	r.removeLocked(wp.ID)
	return r.addLocked(wp)
}

// RemoveWaypoint removes the marker with id and releases its resources.
func (r *Renderer) RemoveWaypoint(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.removeLocked(id)
}

// ClearAll removes every marker.
func (r *Renderer) ClearAll() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clearLocked()
}

// Waypoints returns the placed waypoints in insertion order.
func (r *Renderer) Waypoints() []Waypoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Waypoint, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.markers[id].wp)
	}
	return out
}

// Waypoint returns the placed waypoint with id.
func (r *Renderer) Waypoint(id string) (Waypoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.markers[id]
	if !ok {
		return Waypoint{}, false
	}
	return m.wp, true
}

// Len returns the number of markers.
func (r *Renderer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.markers)
}

// SetWaypointStyle overrides the style of t. Markers of that type are rebuilt.
func (r *Renderer) SetWaypointStyle(t Type, s Style) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return ErrDisposed
	}
	r.styles[t] = s
	return r.rebuildLocked(func(m *marker) bool { return m.wp.Type == t })
}

// Style returns the style applied to t.
func (r *Renderer) Style(t Type) Style {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.styleLocked(t)
}

// Styles returns the full style table.
func (r *Renderer) Styles() map[Type]Style {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make(map[Type]Style, len(r.styles))
	for t, s := range r.styles {
		out[t] = s
	}
	return out
}

func (r *Renderer) styleLocked(t Type) Style {
	if s, ok := r.styles[t]; ok {
		return s
	}
	return DefaultStyle
}

func (r *Renderer) addLocked(wp Waypoint) error {
	style := r.styleLocked(wp.Type)
	if wp.Color != "" {
		style.Color = wp.Color
	}

	leases, err := r.acquireLocked(wp, style, r.settings.Get())
	if err != nil {
		return err
	}

	m := &marker{
		wp:     wp,
		style:  style,
		leases: leases,
		node: Node{
			ID:       wp.ID,
			Type:     wp.Type,
			Position: wp.Position,
			Scale:    style.Scale,
			Glow:     style.GlowIntensity,
			Opacity:  style.Opacity,
			Color:    style.Color,
			Emissive: style.Emissive,
		},
	}
	bindLeases(&m.node, leases)

	r.markers[wp.ID] = m
	r.order = append(r.order, wp.ID)
	r.scene.Attach(m.node)

	r.logger.Debug().
		Str("waypoint_id", wp.ID).
		Str("type", string(wp.Type)).
		Msg("waypoint added")
	return nil
}

func (r *Renderer) acquireLocked(wp Waypoint, style Style, q render.QualitySettings) ([]cache.Lease, error) {
	var leases []cache.Lease
	fail := func(err error) ([]cache.Lease, error) {
		for _, l := range leases {
			r.cache.Release(l)
		}
		return nil, fmt.Errorf("build waypoint %s: %w", wp.ID, err)
	}

	geometry, err := r.cache.Geometries().Acquire(geometryKey(wp.Type, q), func() (render.Resource, error) {
		return r.factory.Geometry(wp.Type, q)
	})
	if err != nil {
		return fail(err)
	}
	leases = append(leases, geometry)

	material, err := r.cache.Materials().Acquire(materialKey(style, q), func() (render.Resource, error) {
		return r.factory.Material(style, q)
	})
	if err != nil {
		return fail(err)
	}
	leases = append(leases, material)

	if wp.Title != "" {
		texture, err := r.cache.Textures().Acquire(textureKey(wp.Title, q), func() (render.Resource, error) {
			return r.factory.Texture(wp.Title, q)
		})
		if err != nil {
			return fail(err)
		}
		leases = append(leases, texture)
	}
	return leases, nil
}

func bindLeases(n *Node, leases []cache.Lease) {
	n.Geometry, n.Material, n.Texture = nil, nil, nil
	for _, l := range leases {
		switch l.Kind {
		case render.KindGeometry:
			n.Geometry = l.Resource
		case render.KindMaterial:
			n.Material = l.Resource
		case render.KindTexture:
			n.Texture = l.Resource
		}
	}
}

func (r *Renderer) removeLocked(id string) bool {
	m, ok := r.markers[id]
	if !ok {
		return false
	}

	r.scene.Detach(id)
	for _, l := range m.leases {
		r.cache.Release(l)
	}
	delete(r.markers, id)
	for i, oid := range r.order {
		if oid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

func (r *Renderer) clearLocked() int {
	n := len(r.order)
	for _, id := range append([]string(nil), r.order...) {
		r.removeLocked(id)
	}
	return n
}

// rebuildLocked re-acquires the resources of every marker matching keep at
// the current settings. Animation state carries over.
func (r *Renderer) rebuildLocked(keep func(*marker) bool) error {
	q := r.settings.Get()
	var errs []error
	for _, id := range r.order {
		m := r.markers[id]
		if !keep(m) {
			continue
		}

		style := r.styleLocked(m.wp.Type)
		if m.wp.Color != "" {
			style.Color = m.wp.Color
		}
		leases, err := r.acquireLocked(m.wp, style, q)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, l := range m.leases {
			r.cache.Release(l)
		}

		m.style = style
		m.leases = leases
		m.node.Opacity = style.Opacity
		m.node.Color = style.Color
		m.node.Emissive = style.Emissive
		bindLeases(&m.node, leases)
		r.scene.Update(m.node)
	}
	return errors.Join(errs...)
}

func (r *Renderer) onSettingsChange(change render.SettingsChange) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return
	}
	if err := r.rebuildLocked(func(*marker) bool { return true }); err != nil {
		r.logger.Warn().Err(err).Msg("waypoint rebuild after settings change failed")
		return
	}
	r.logger.Debug().
		Str("model_quality", string(change.Current.ModelQuality)).
		Int("waypoints", len(r.order)).
		Msg("waypoints rebuilt")
}

// Frame advances the marker animations to now and pushes the nodes to the
// scene. A marker that fails to update is skipped for this frame without
// affecting the others. It returns the number of markers updated.
func (r *Renderer) Frame(now time.Time) int {
	r.cache.StartFrame()
	defer r.cache.EndFrame()

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.disposed {
		return 0
	}
	if r.start.IsZero() {
		r.start = now
		r.lastFrame = now
	}
	t := now.Sub(r.start).Seconds()
	dt := now.Sub(r.lastFrame).Seconds()
	r.lastFrame = now

	postProcessing := r.settings.Get().PostProcessing
	viewer := r.scene.ViewerPosition()

	var updated int
	for _, id := range r.order {
		if r.animate(r.markers[id], t, dt, postProcessing, viewer) {
			updated++
		}
	}
	return updated
}

func (r *Renderer) animate(m *marker, t, dt float64, postProcessing bool, viewer Vec3) (ok bool) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.RecordFrameFailure()
			r.logger.Error().
				Str("waypoint_id", m.wp.ID).
				Interface("panic", p).
				Msg("waypoint frame update failed")
			ok = false
		}
	}()

	n := m.node
	n.Scale = PulseScale(m.style, t) * DistanceFactor(viewer.DistanceTo(m.wp.Position))
	n.Glow = GlowIntensity(m.style, t, postProcessing)
	if m.wp.Active {
		n.Rotation += dt * r.spin
	}
	r.scene.Update(n)
	m.node = n
	return true
}

// Run drives Frame from frames until ctx is done, frames is closed or the
// renderer is disposed.
func (r *Renderer) Run(ctx context.Context, frames <-chan time.Time) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case at, ok := <-frames:
			if !ok {
				return nil
			}
			r.Frame(at)
		}
	}
}

// RunAt drives Frame on a ticker at the cache's target frame rate. Ticks are
// fixed-rate, so frame work does not stretch the interval. The ticker follows
// target changes after the frame that observes them.
func (r *Renderer) RunAt(ctx context.Context) error {
	interval := r.cache.FrameInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stop:
			return nil
		case <-ticker.C:
			r.Frame(r.now())
			if next := r.cache.FrameInterval(); next != interval {
				interval = next
				ticker.Reset(interval)
			}
		}
	}
}

// Dispose removes all markers, releases their resources and stops Run.
// Calling it again is a no-op.
func (r *Renderer) Dispose() {
	r.disposeOnce.Do(func() {
		r.unsubscribe()
		close(r.stop)

		r.mu.Lock()
		n := r.clearLocked()
		r.disposed = true
		r.mu.Unlock()

		r.logger.Debug().Int("waypoints", n).Msg("waypoint renderer disposed")
	})
}

// Disposed reports whether Dispose was called.
func (r *Renderer) Disposed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

func geometryKey(t Type, q render.QualitySettings) string {
	return fmt.Sprintf("geometry:%s:%s", t, q.ModelQuality)
}

func materialKey(s Style, q render.QualitySettings) string {
	return fmt.Sprintf("material:%s:%s:%.2f:%s", s.Color, s.Emissive, s.Opacity, q.LightingQuality)
}

func textureKey(label string, q render.QualitySettings) string {
	return fmt.Sprintf("texture:%s:%s", label, q.TextureQuality)
}

