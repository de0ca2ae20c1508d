// Package events provides typed in-process publish/subscribe.
//
// A Bus delivers every published value to each subscriber in subscription order.
// Subscribers are isolated from each other: a panicking handler is recovered and
// logged, and delivery continues with the next handler.
package events

import (
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Handler receives published values.
type Handler[T any] func(T)

type subscription[T any] struct {
	id      uint64
	handler Handler[T]
}

// Bus fans out values of type T to subscribers.
type Bus[T any] struct {
	name   string
	logger zerolog.Logger

	mu     sync.RWMutex
	nextID uint64
	subs   []subscription[T]
}

// NewBus creates a bus. The name is used in log lines only.
func NewBus[T any](name string, logger zerolog.Logger) *Bus[T] {
	return &Bus[T]{
		name:   name,
		logger: logger,
	}
}

// Subscribe registers a handler and returns a function that removes it.
// The returned function is safe to call more than once.
func (b *Bus[T]) Subscribe(h Handler[T]) (unsubscribe func()) {
	if h == nil {
		return func() {}
	}

	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription[T]{id: id, handler: h})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus[T]) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for i, s := range b.subs {
		if s.id == id {
			b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
			return
		}
	}
}

// Publish delivers v to every current subscriber and returns how many handlers failed.
// Handlers run synchronously on the caller's goroutine.
func (b *Bus[T]) Publish(v T) int {
	b.mu.RLock()
	subs := make([]subscription[T], len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	failed := 0
	for _, s := range subs {
		if err := b.deliver(s.handler, v); err != nil {
			failed++
			b.logger.Error().
				Err(err).
				Str("bus", b.name).
				Uint64("subscriber", s.id).
				Msg("subscriber failed")
		}
	}
	return failed
}

func (b *Bus[T]) deliver(h Handler[T], v T) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	h(v)
	return nil
}

// Len returns the number of subscribers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Clear removes every subscriber.
func (b *Bus[T]) Clear() {
	b.mu.Lock()
	b.subs = nil
	b.mu.Unlock()
}
