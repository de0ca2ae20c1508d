// Package resilience wraps calls to upstream providers (geocoding, directions)
// with timeouts, retries and a circuit breaker, and tracks their health.
package resilience

import (
	"time"

	"github.com/sony/gobreaker/v2"
)

// BreakerConfig configures the circuit breaker in front of an upstream.
type BreakerConfig struct {
	// Name identifies the breaker in logs and health reports.
	Name string

	// HalfOpenRequests is the number of probes allowed while half-open (default: 1).
	HalfOpenRequests uint32

	// Window clears the counts periodically while closed. Zero keeps them
	// until the next state change.
	Window time.Duration

	// Cooldown is how long the breaker stays open before probing (default: 30s).
	Cooldown time.Duration

	// MinRequests is the sample size needed before the breaker can trip (default: 5).
	MinRequests uint32

	// FailureRatio trips the breaker once reached (default: 0.5).
	FailureRatio float64

	// OnStateChange observes transitions.
	OnStateChange func(name string, from, to gobreaker.State)
}

// DefaultBreakerConfig returns the breaker settings used for upstream providers.
func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:             name,
		HalfOpenRequests: 1,
		Cooldown:         30 * time.Second,
		MinRequests:      5,
		FailureRatio:     0.5,
	}
}

// ShouldTrip reports whether counts warrant opening the breaker.
func (c BreakerConfig) ShouldTrip(counts gobreaker.Counts) bool {
	if counts.Requests == 0 || counts.Requests < c.MinRequests {
		return false
	}
	return float64(counts.TotalFailures)/float64(counts.Requests) >= c.FailureRatio
}

func newBreaker[T any](cfg BreakerConfig) *gobreaker.CircuitBreaker[T] {
	if cfg.HalfOpenRequests == 0 {
		cfg.HalfOpenRequests = 1
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.MinRequests == 0 {
		cfg.MinRequests = 5
	}
	if cfg.FailureRatio == 0 {
		cfg.FailureRatio = 0.5
	}

	return gobreaker.NewCircuitBreaker[T](gobreaker.Settings{
		Name:          cfg.Name,
		MaxRequests:   cfg.HalfOpenRequests,
		Interval:      cfg.Window,
		Timeout:       cfg.Cooldown,
		ReadyToTrip:   cfg.ShouldTrip,
		OnStateChange: cfg.OnStateChange,
	})
}
