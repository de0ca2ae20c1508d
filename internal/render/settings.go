package render

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/events"
)

// SettingsChange is published when the active settings are replaced.
type SettingsChange struct {
	Previous QualitySettings
	Current  QualitySettings
}

// SettingsStore holds the one active QualitySettings tuple shared by the
// cache, the waypoint renderer and the quality controller.
type SettingsStore struct {
	mu       sync.RWMutex
	settings QualitySettings
	bus      *events.Bus[SettingsChange]
}

// NewSettingsStore creates a store holding initial.
func NewSettingsStore(initial QualitySettings, logger zerolog.Logger) *SettingsStore {
	return &SettingsStore{
		settings: initial,
		bus:      events.NewBus[SettingsChange]("render.settings", logger),
	}
}

// Get returns the active settings.
func (s *SettingsStore) Get() QualitySettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Set replaces the active settings. Subscribers are notified only when the
// value changes. It reports whether it did.
func (s *SettingsStore) Set(next QualitySettings) bool {
	s.mu.Lock()
	prev := s.settings
	if prev == next {
		s.mu.Unlock()
		return false
	}
	s.settings = next
	s.mu.Unlock()

	s.bus.Publish(SettingsChange{Previous: prev, Current: next})
	return true
}

// Apply switches to the preset for t.
func (s *SettingsStore) Apply(t Tier) bool {
	return s.Set(Preset(t))
}

// OnChange registers fn for settings changes.
func (s *SettingsStore) OnChange(fn func(SettingsChange)) (unsubscribe func()) {
	return s.bus.Subscribe(fn)
}
