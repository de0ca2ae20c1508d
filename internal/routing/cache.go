package routing

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CacheConfig holds configuration for the directions cache.
type CacheConfig struct {
	// Provider is the upstream directions provider (required).
	Provider Provider

	// Logger for cache operations.
	Logger zerolog.Logger

	// TTL is how long a response is served fresh (default: 5 minutes).
	TTL time.Duration

	// GridSize quantizes origins and destinations in degrees (default: 0.0005, ~55m).
	// Requests whose endpoints fall in the same cells share a cached response.
	GridSize float64

	// StaleIfError allows serving an expired response when the provider fails (default: 15 minutes).
	StaleIfError time.Duration

	// MaxEntries bounds the cache; the oldest entry is dropped when full (default: 256).
	MaxEntries int

	// Now overrides the clock.
	Now func() time.Time
}

// CachingProvider decorates a Provider with a TTL cache and stale-if-error fallback.
type CachingProvider struct {
	provider     Provider
	logger       zerolog.Logger
	ttl          time.Duration
	gridSize     float64
	staleIfError time.Duration
	maxEntries   int
	now          func() time.Time

	mu      sync.Mutex
	entries map[string]*cachedDirections
}

type cachedDirections struct {
	response  *DirectionsResponse
	fetchedAt time.Time
}

// NewCachingProvider creates a caching decorator.
func NewCachingProvider(cfg CacheConfig) *CachingProvider {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	gridSize := cfg.GridSize
	if gridSize == 0 {
		gridSize = 0.0005
	}
	staleIfError := cfg.StaleIfError
	if staleIfError == 0 {
		staleIfError = 15 * time.Minute
	}
	maxEntries := cfg.MaxEntries
	if maxEntries == 0 {
		maxEntries = 256
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &CachingProvider{
		provider:     cfg.Provider,
		logger:       cfg.Logger,
		ttl:          ttl,
		gridSize:     gridSize,
		staleIfError: staleIfError,
		maxEntries:   maxEntries,
		now:          now,
		entries:      make(map[string]*cachedDirections),
	}
}

// Name returns the underlying provider name.
func (c *CachingProvider) Name() string {
	return c.provider.Name()
}

// GetDirections returns a fresh cached response or fetches one.
func (c *CachingProvider) GetDirections(ctx context.Context, req DirectionsRequest) (*DirectionsResponse, error) {
	key := c.key(req)
	now := c.now()

	c.mu.Lock()
	cached, ok := c.entries[key]
	c.mu.Unlock()

	if ok && now.Sub(cached.fetchedAt) < c.ttl {
		c.logger.Debug().Str("cache_key", key).Msg("directions cache hit")
		return cached.response, nil
	}

	resp, err := c.provider.GetDirections(ctx, req)
	if err != nil {
		if ok && now.Sub(cached.fetchedAt) < c.staleIfError {
			c.logger.Warn().Err(err).
				Time("fetched_at", cached.fetchedAt).
				Str("cache_key", key).
				Msg("serving stale directions after provider error")
			return cached.response, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[key] = &cachedDirections{response: resp, fetchedAt: now}
	c.evictLocked(now)
	c.mu.Unlock()

	return resp, nil
}

// Len returns the number of cached responses.
func (c *CachingProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Invalidate drops every cached response.
func (c *CachingProvider) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cachedDirections)
}

// evictLocked drops entries past the stale window, then the oldest entries
// until the cache fits.
func (c *CachingProvider) evictLocked(now time.Time) {
	for key, e := range c.entries {
		if now.Sub(e.fetchedAt) >= c.staleIfError {
			delete(c.entries, key)
		}
	}
	for len(c.entries) > c.maxEntries {
		var oldestKey string
		var oldest time.Time
		for key, e := range c.entries {
			if oldestKey == "" || e.fetchedAt.Before(oldest) {
				oldestKey, oldest = key, e.fetchedAt
			}
		}
		delete(c.entries, oldestKey)
	}
}

// key quantizes both endpoints to the grid.
// Format: {profile}:{originLat},{originLon}:{destLat},{destLon}.
func (c *CachingProvider) key(req DirectionsRequest) string {
	cell := func(v float64) int64 { return int64(math.Floor(v / c.gridSize)) }
	return fmt.Sprintf("%s:%d,%d:%d,%d",
		req.Profile,
		cell(req.Origin.Lat), cell(req.Origin.Lon),
		cell(req.Destination.Lat), cell(req.Destination.Lon),
	)
}

var _ Provider = (*CachingProvider)(nil)
