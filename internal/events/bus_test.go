package events_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/wayfinder/wayfinder/internal/events"
)

func TestBus_PublishInSubscriptionOrder(t *testing.T) {
	bus := events.NewBus[int]("test", zerolog.Nop())

	var got []string
	bus.Subscribe(func(v int) { got = append(got, "a") })
	bus.Subscribe(func(v int) { got = append(got, "b") })
	bus.Subscribe(func(v int) { got = append(got, "c") })

	failed := bus.Publish(1)

	assert.Zero(t, failed)
	assert.Equal(t, []string{"a", "b", "c"}, got)
}

func TestBus_PanickingSubscriberIsIsolated(t *testing.T) {
	bus := events.NewBus[string]("test", zerolog.Nop())

	var received []string
	bus.Subscribe(func(v string) { received = append(received, "first:"+v) })
	bus.Subscribe(func(string) { panic("boom") })
	bus.Subscribe(func(v string) { received = append(received, "last:"+v) })

	failed := bus.Publish("x")

	assert.Equal(t, 1, failed)
	assert.Equal(t, []string{"first:x", "last:x"}, received)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := events.NewBus[int]("test", zerolog.Nop())

	count := 0
	unsubscribe := bus.Subscribe(func(int) { count++ })
	bus.Subscribe(func(int) {})
	assert.Equal(t, 2, bus.Len())

	bus.Publish(1)
	unsubscribe()
	unsubscribe()
	bus.Publish(2)

	assert.Equal(t, 1, count)
	assert.Equal(t, 1, bus.Len())
}

func TestBus_UnsubscribeDuringPublish(t *testing.T) {
	bus := events.NewBus[int]("test", zerolog.Nop())

	var unsubscribe func()
	calls := 0
	unsubscribe = bus.Subscribe(func(int) {
		calls++
		unsubscribe()
	})

	bus.Publish(1)
	bus.Publish(2)

	assert.Equal(t, 1, calls)
	assert.Zero(t, bus.Len())
}

func TestBus_NilHandler(t *testing.T) {
	bus := events.NewBus[int]("test", zerolog.Nop())
	unsubscribe := bus.Subscribe(nil)
	unsubscribe()
	assert.Zero(t, bus.Len())
}

func TestBus_Clear(t *testing.T) {
	bus := events.NewBus[int]("test", zerolog.Nop())
	bus.Subscribe(func(int) {})
	bus.Subscribe(func(int) {})
	bus.Clear()
	assert.Zero(t, bus.Len())
	assert.Zero(t, bus.Publish(1))
}
