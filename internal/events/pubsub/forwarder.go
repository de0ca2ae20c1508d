// Package pubsub forwards navigation session events to a message topic for
// downstream analytics.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/navigation"
)

// Event types.
const (
	TypePhaseChange = "phase_change"
	TypeArrival     = "arrival"
)

// ErrQueueFull is reported when events arrive faster than they can be sent.
var ErrQueueFull = errors.New("event queue full")

// Event is the message body published for a session event.
type Event struct {
	SessionID     string    `json:"session_id"`
	Type          string    `json:"type"`
	Phase         string    `json:"phase"`
	PreviousPhase string    `json:"previous_phase,omitempty"`
	VenueID       string    `json:"venue_id,omitempty"`
	Distance      *float64  `json:"distance_meters,omitempty"`
	At            time.Time `json:"at"`
}

// Sender delivers one encoded event.
type Sender interface {
	Send(ctx context.Context, data []byte, attributes map[string]string) error
}

// Source is the part of navigation.Machine the forwarder listens to.
type Source interface {
	OnPhaseChange(fn func(navigation.PhaseChange)) (unsubscribe func())
	OnArrival(fn func(navigation.ArrivalEvent)) (unsubscribe func())
}

var _ Source = (*navigation.Machine)(nil)

// Config holds configuration for a Forwarder.
type Config struct {
	// Sender delivers events (required).
	Sender Sender

	// Logger for forwarder operations.
	Logger zerolog.Logger

	// QueueSize bounds buffered events (default: 256).
	QueueSize int

	// SendTimeout bounds one delivery (default: 10 seconds).
	SendTimeout time.Duration
}

// Forwarder queues session events and sends them from a background worker,
// so machine handlers never block on the network.
type Forwarder struct {
	sender  Sender
	logger  zerolog.Logger
	timeout time.Duration
	queue   chan Event

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	sent    int
	failed  int
	dropped int
}

// Stats counts delivery outcomes.
type Stats struct {
	Sent    int `json:"sent"`
	Failed  int `json:"failed"`
	Dropped int `json:"dropped"`
}

// NewForwarder creates a stopped Forwarder.
func NewForwarder(cfg Config) *Forwarder {
	size := cfg.QueueSize
	if size == 0 {
		size = 256
	}
	timeout := cfg.SendTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &Forwarder{
		sender:  cfg.Sender,
		logger:  cfg.Logger,
		timeout: timeout,
		queue:   make(chan Event, size),
	}
}

// Attach subscribes to src and tags its events with sessionID.
func (f *Forwarder) Attach(sessionID string, src Source) (detach func()) {
	offPhase := src.OnPhaseChange(func(c navigation.PhaseChange) {
		f.Enqueue(Event{
			SessionID:     sessionID,
			Type:          TypePhaseChange,
			Phase:         string(c.To),
			PreviousPhase: string(c.From),
			VenueID:       c.VenueID,
			At:            c.At,
		})
	})
	offArrival := src.OnArrival(func(a navigation.ArrivalEvent) {
		d := a.DistanceMeters
		f.Enqueue(Event{
			SessionID: sessionID,
			Type:      TypeArrival,
			Phase:     string(navigation.PhaseArrived),
			VenueID:   a.Venue.ID,
			Distance:  &d,
			At:        a.At,
		})
	})
	return func() {
		offPhase()
		offArrival()
	}
}

// Enqueue buffers ev for delivery. When the queue is full the event is
// dropped and ErrQueueFull returned.
func (f *Forwarder) Enqueue(ev Event) error {
	select {
	case f.queue <- ev:
		return nil
	default:
		f.mu.Lock()
		f.dropped++
		f.mu.Unlock()
		f.logger.Warn().
			Str("session_id", ev.SessionID).
			Str("type", ev.Type).
			Msg("event dropped, queue full")
		return ErrQueueFull
	}
}

// Start launches the delivery worker. It is a no-op when already running.
func (f *Forwarder) Start(ctx context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	f.done = make(chan struct{})
	go f.run(ctx, f.done)

	f.logger.Info().Int("queue_size", cap(f.queue)).Msg("event forwarder started")
}

// Stop halts the worker after it finishes the event in flight. Queued events
// stay queued for the next Start.
func (f *Forwarder) Stop() {
	f.mu.Lock()
	cancel, done := f.cancel, f.done
	f.cancel, f.done = nil, nil
	f.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Stats returns delivery counters.
func (f *Forwarder) Stats() Stats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return Stats{Sent: f.sent, Failed: f.failed, Dropped: f.dropped}
}

func (f *Forwarder) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-f.queue:
			f.send(ctx, ev)
		}
	}
}

func (f *Forwarder) send(ctx context.Context, ev Event) {
	logger := f.logger.With().
		Str("session_id", ev.SessionID).
		Str("type", ev.Type).
		Str("phase", ev.Phase).
		Logger()

	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error().Err(err).Msg("failed to encode event")
		f.count(false)
		return
	}

	sendCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	start := time.Now()
	err = f.sender.Send(sendCtx, data, map[string]string{
		"type":       ev.Type,
		"session_id": ev.SessionID,
	})
	if err != nil {
		logger.Error().Err(err).Msg("failed to publish event")
		f.count(false)
		return
	}

	logger.Debug().Dur("duration", time.Since(start)).Msg("event published")
	f.count(true)
}

func (f *Forwarder) count(ok bool) {
	f.mu.Lock()
	if ok {
		f.sent++
	} else {
		f.failed++
	}
	f.mu.Unlock()
}
