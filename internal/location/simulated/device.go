// Package simulated provides an in-process location.Device whose position is
// driven by code: API clients pushing positions, tests, and the simulator.
package simulated

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/wayfinder/wayfinder/internal/location"
)

// Errors returned by the simulated device.
var (
	ErrNotPermitted = errors.New("simulated device: permission not granted")
	ErrNoPosition   = errors.New("simulated device: no position set")
)

type watcher struct {
	opts      location.WatchOptions
	fn        func(location.Fix)
	last      *location.Fix
	lastSent  time.Time
	cancelCtx func() bool
}

// Device is a controllable location.Device.
type Device struct {
	mu       sync.Mutex
	granted  bool
	position *location.Fix
	accuracy *float64
	failWith error
	nextID   int
	watchers map[int]*watcher
	now      func() time.Time
}

// Option configures a Device.
type Option func(*Device)

// WithPermission sets the initial permission answer (default: granted).
func WithPermission(granted bool) Option {
	return func(d *Device) { d.granted = granted }
}

// WithPosition sets the initial position.
func WithPosition(c location.Coordinate) Option {
	return func(d *Device) {
		d.position = &location.Fix{Coordinate: c}
	}
}

// WithClock overrides the time source used for fix timestamps.
func WithClock(now func() time.Time) Option {
	return func(d *Device) { d.now = now }
}

// NewDevice creates a simulated device.
func NewDevice(opts ...Option) *Device {
	d := &Device{
		granted:  true,
		watchers: make(map[int]*watcher),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.position != nil {
		d.position.Timestamp = d.now()
	}
	return d
}

// SetPermission changes the answer to future permission requests.
func (d *Device) SetPermission(granted bool) {
	d.mu.Lock()
	d.granted = granted
	d.mu.Unlock()
}

// SetAccuracy sets the accuracy reported with subsequent fixes.
func (d *Device) SetAccuracy(meters float64) {
	d.mu.Lock()
	d.accuracy = &meters
	d.mu.Unlock()
}

// FailPositions makes CurrentPosition return err until called with nil.
func (d *Device) FailPositions(err error) {
	d.mu.Lock()
	d.failWith = err
	d.mu.Unlock()
}

// Position returns the current simulated position.
func (d *Device) Position() (location.Coordinate, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.position == nil {
		return location.Coordinate{}, false
	}
	return d.position.Coordinate, true
}

// SetPosition moves the device and notifies watchers whose distance filter or
// interval is satisfied.
func (d *Device) SetPosition(c location.Coordinate) {
	d.mu.Lock()
	fix := location.Fix{Coordinate: c, Accuracy: d.accuracy, Timestamp: d.now()}
	d.position = &fix

	type delivery struct {
		fn  func(location.Fix)
		fix location.Fix
	}
	var due []delivery
	for _, w := range d.watchers {
		if !w.due(fix) {
			continue
		}
		f := fix
		w.last = &f
		w.lastSent = fix.Timestamp
		due = append(due, delivery{fn: w.fn, fix: fix})
	}
	d.mu.Unlock()

	for _, dl := range due {
		dl.fn(dl.fix)
	}
}

func (w *watcher) due(fix location.Fix) bool {
	if w.last == nil {
		return true
	}
	if location.Distance(w.last.Coordinate, fix.Coordinate) >= w.opts.DistanceFilter {
		return true
	}
	return fix.Timestamp.Sub(w.lastSent) >= w.opts.Interval
}

// MoveTowards steps the device up to meters towards target and returns the new position.
func (d *Device) MoveTowards(target location.Coordinate, meters float64) location.Coordinate {
	current, ok := d.Position()
	if !ok {
		d.SetPosition(target)
		return target
	}

	remaining := location.Distance(current, target)
	next := target
	if remaining > meters {
		next = location.Offset(current, location.Bearing(current, target), meters)
	}
	d.SetPosition(next)
	return next
}

// RequestPermission implements location.Device.
func (d *Device) RequestPermission(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.granted, nil
}

// CurrentPosition implements location.Device.
func (d *Device) CurrentPosition(ctx context.Context) (location.Fix, error) {
	if err := ctx.Err(); err != nil {
		return location.Fix{}, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.granted {
		return location.Fix{}, ErrNotPermitted
	}
	if d.failWith != nil {
		return location.Fix{}, d.failWith
	}
	if d.position == nil {
		return location.Fix{}, ErrNoPosition
	}
	fix := *d.position
	if fix.Accuracy == nil {
		fix.Accuracy = d.accuracy
	}
	return fix, nil
}

// Watch implements location.Device. The current position, if any, is delivered
// immediately on the calling goroutine.
func (d *Device) Watch(ctx context.Context, opts location.WatchOptions, fn func(location.Fix)) (func(), error) {
	d.mu.Lock()
	if !d.granted {
		d.mu.Unlock()
		return nil, ErrNotPermitted
	}

	d.nextID++
	id := d.nextID
	w := &watcher{opts: opts, fn: fn}
	d.watchers[id] = w

	var initial *location.Fix
	if d.position != nil {
		f := *d.position
		w.last = &f
		w.lastSent = f.Timestamp
		initial = &f
	}
	d.mu.Unlock()

	remove := func() {
		d.mu.Lock()
		delete(d.watchers, id)
		d.mu.Unlock()
	}
	w.cancelCtx = context.AfterFunc(ctx, remove)

	if initial != nil {
		fn(*initial)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			w.cancelCtx()
			remove()
		})
	}, nil
}

// Watchers returns the number of active watches.
func (d *Device) Watchers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.watchers)
}

var _ location.Device = (*Device)(nil)
