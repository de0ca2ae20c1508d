package pubsub_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfinder/wayfinder/internal/events"
	"github.com/wayfinder/wayfinder/internal/events/pubsub"
	"github.com/wayfinder/wayfinder/internal/navigation"
	"github.com/wayfinder/wayfinder/internal/venue"
)

type message struct {
	data  []byte
	attrs map[string]string
}

type fakeSender struct {
	mu   sync.Mutex
	msgs []message
	err  error
}

func (s *fakeSender) Send(_ context.Context, data []byte, attrs map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.msgs = append(s.msgs, message{data: data, attrs: attrs})
	return nil
}

func (s *fakeSender) messages() []message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]message(nil), s.msgs...)
}

type fakeSource struct {
	phases   *events.Bus[navigation.PhaseChange]
	arrivals *events.Bus[navigation.ArrivalEvent]
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		phases:   events.NewBus[navigation.PhaseChange]("phase", zerolog.Nop()),
		arrivals: events.NewBus[navigation.ArrivalEvent]("arrival", zerolog.Nop()),
	}
}

func (s *fakeSource) OnPhaseChange(fn func(navigation.PhaseChange)) func() {
	return s.phases.Subscribe(fn)
}

func (s *fakeSource) OnArrival(fn func(navigation.ArrivalEvent)) func() {
	return s.arrivals.Subscribe(fn)
}

func TestForwarder_PublishesSessionEvents(t *testing.T) {
	sender := &fakeSender{}
	f := pubsub.NewForwarder(pubsub.Config{Sender: sender, Logger: zerolog.Nop()})
	src := newFakeSource()
	detach := f.Attach("s-1", src)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	src.phases.Publish(navigation.PhaseChange{
		From:    navigation.PhaseRoutePlanning,
		To:      navigation.PhaseOutdoorNavigation,
		VenueID: "sandton-city",
		At:      at,
	})
	src.arrivals.Publish(navigation.ArrivalEvent{
		Venue:          venue.Venue{ID: "sandton-city"},
		DistanceMeters: 42,
		At:             at,
	})

	f.Start(context.Background())
	t.Cleanup(f.Stop)

	require.Eventually(t, func() bool { return len(sender.messages()) == 2 }, time.Second, 5*time.Millisecond)

	msgs := sender.messages()
	var phase pubsub.Event
	require.NoError(t, json.Unmarshal(msgs[0].data, &phase))
	assert.Equal(t, "s-1", phase.SessionID)
	assert.Equal(t, pubsub.TypePhaseChange, phase.Type)
	assert.Equal(t, "outdoor_navigation", phase.Phase)
	assert.Equal(t, "route_planning", phase.PreviousPhase)
	assert.Equal(t, "sandton-city", phase.VenueID)
	assert.True(t, at.Equal(phase.At))
	assert.Equal(t, pubsub.TypePhaseChange, msgs[0].attrs["type"])

	var raw map[string]any
	require.NoError(t, json.Unmarshal(msgs[1].data, &raw))
	assert.Equal(t, "arrival", raw["type"])
	assert.Equal(t, "arrived", raw["phase"])
	assert.Equal(t, 42.0, raw["distance_meters"])

	detach()
	src.phases.Publish(navigation.PhaseChange{To: navigation.PhaseLocationDetection})
	assert.Equal(t, 0, src.phases.Len())
	assert.Equal(t, pubsub.Stats{Sent: 2}, f.Stats())
}

func TestForwarder_DropsWhenQueueFull(t *testing.T) {
	f := pubsub.NewForwarder(pubsub.Config{Sender: &fakeSender{}, QueueSize: 2, Logger: zerolog.Nop()})

	require.NoError(t, f.Enqueue(pubsub.Event{SessionID: "a"}))
	require.NoError(t, f.Enqueue(pubsub.Event{SessionID: "b"}))
	assert.ErrorIs(t, f.Enqueue(pubsub.Event{SessionID: "c"}), pubsub.ErrQueueFull)
	assert.Equal(t, 1, f.Stats().Dropped)
}

func TestForwarder_CountsFailures(t *testing.T) {
	sender := &fakeSender{err: errors.New("unavailable")}
	f := pubsub.NewForwarder(pubsub.Config{Sender: sender, Logger: zerolog.Nop()})
	f.Start(context.Background())
	t.Cleanup(f.Stop)

	require.NoError(t, f.Enqueue(pubsub.Event{SessionID: "a", Type: pubsub.TypeArrival}))
	assert.Eventually(t, func() bool { return f.Stats().Failed == 1 }, time.Second, 5*time.Millisecond)
}

func TestForwarder_StartStop(t *testing.T) {
	f := pubsub.NewForwarder(pubsub.Config{Sender: &fakeSender{}, Logger: zerolog.Nop()})

	f.Stop()
	f.Start(context.Background())
	f.Start(context.Background())
	f.Stop()
	f.Stop()
}
