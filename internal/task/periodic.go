// Package task provides cancellable periodic jobs owned by a single component.
package task

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Func is the work run on every tick.
type Func func(ctx context.Context)

// Periodic runs a Func at a fixed interval on its own goroutine.
// Start and Stop are idempotent; a stopped Periodic can be started again.
type Periodic struct {
	name     string
	interval time.Duration
	fn       Func
	logger   zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPeriodic creates a stopped periodic task.
func NewPeriodic(name string, interval time.Duration, fn Func, logger zerolog.Logger) *Periodic {
	if interval <= 0 {
		interval = time.Second
	}
	return &Periodic{
		name:     name,
		interval: interval,
		fn:       fn,
		logger:   logger,
	}
}

// Name returns the task name.
func (p *Periodic) Name() string {
	return p.name
}

// Interval returns the tick interval.
func (p *Periodic) Interval() time.Duration {
	return p.interval
}

// Start launches the loop. It returns false if the task is already running.
// The loop also ends when ctx is cancelled.
func (p *Periodic) Start(ctx context.Context) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.runningLocked() {
		return false
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel = cancel
	p.done = done

	go p.loop(loopCtx, done)

	p.logger.Debug().
		Str("task", p.name).
		Dur("interval", p.interval).
		Msg("periodic task started")
	return true
}

// Stop cancels the loop. It does not wait for an in-flight tick to return, so it
// is safe to call from inside the task's own Func.
func (p *Periodic) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel == nil {
		return
	}
	p.cancel()
	p.cancel = nil

	p.logger.Debug().Str("task", p.name).Msg("periodic task stopped")
}

// Running reports whether the loop goroutine is alive.
func (p *Periodic) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.runningLocked()
}

func (p *Periodic) runningLocked() bool {
	if p.done == nil || p.cancel == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done returns a channel closed when the most recently started loop exits.
// It returns a closed channel if the task was never started.
func (p *Periodic) Done() <-chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done == nil {
		closed := make(chan struct{})
		close(closed)
		return closed
	}
	return p.done
}

func (p *Periodic) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			p.tick(ctx)
		}
	}
}

func (p *Periodic) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error().
				Str("task", p.name).
				Err(fmt.Errorf("panic: %v", r)).
				Str("stack", string(debug.Stack())).
				Msg("periodic task tick panicked")
		}
	}()
	p.fn(ctx)
}
