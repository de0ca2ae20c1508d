package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/sony/gobreaker/v2"
)

var (
	// ErrCircuitOpen is returned without contacting the upstream while its breaker is open.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// ClientConfig holds configuration for an upstream HTTP client.
type ClientConfig struct {
	// Name identifies the upstream (e.g. "nominatim").
	Name string

	// UserAgent is sent with every request when set. Public geocoders
	// reject anonymous clients.
	UserAgent string

	// Timeout bounds a single attempt (default: 10 seconds).
	Timeout time.Duration

	// MaxRetries is the number of retries after the first attempt (default: 2).
	MaxRetries uint64

	// InitialInterval is the first backoff delay (default: 200ms).
	InitialInterval time.Duration

	// MaxInterval caps the backoff delay (default: 2 seconds).
	MaxInterval time.Duration

	// Breaker overrides DefaultBreakerConfig(Name).
	Breaker *BreakerConfig

	// Registry, when set, has the client registered and receives outcomes.
	Registry *Registry

	// Logger for retry and breaker events.
	Logger zerolog.Logger
}

// DefaultClientConfig returns sensible defaults for an upstream client.
func DefaultClientConfig(name string) ClientConfig {
	breaker := DefaultBreakerConfig(name)
	return ClientConfig{
		Name:            name,
		Timeout:         10 * time.Second,
		MaxRetries:      2,
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		Breaker:         &breaker,
	}
}

// Client performs HTTP calls to one upstream with retries and a circuit breaker.
// 5xx and 429 responses count as failures and are retried; other statuses are
// returned to the caller as-is.
type Client struct {
	name      string
	userAgent string
	http      *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	registry  *Registry
	logger    zerolog.Logger

	maxRetries      uint64
	initialInterval time.Duration
	maxInterval     time.Duration
}

// NewClient creates an upstream client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.InitialInterval == 0 {
		cfg.InitialInterval = 200 * time.Millisecond
	}
	if cfg.MaxInterval == 0 {
		cfg.MaxInterval = 2 * time.Second
	}

	breakerCfg := DefaultBreakerConfig(cfg.Name)
	if cfg.Breaker != nil {
		breakerCfg = *cfg.Breaker
		if breakerCfg.Name == "" {
			breakerCfg.Name = cfg.Name
		}
	}
	logger := cfg.Logger.With().Str("upstream", cfg.Name).Logger()
	observe := breakerCfg.OnStateChange
	breakerCfg.OnStateChange = func(name string, from, to gobreaker.State) {
		logger.Warn().Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		if observe != nil {
			observe(name, from, to)
		}
	}

	c := &Client{
		name:            cfg.Name,
		userAgent:       cfg.UserAgent,
		http:            &http.Client{Timeout: cfg.Timeout},
		breaker:         newBreaker[*http.Response](breakerCfg), //nolint:bodyclose // type param, not response
		registry:        cfg.Registry,
		logger:          logger,
		maxRetries:      cfg.MaxRetries,
		initialInterval: cfg.InitialInterval,
		maxInterval:     cfg.MaxInterval,
	}
	if c.registry != nil {
		c.registry.Register(c)
	}
	return c
}

// Name returns the upstream name.
func (c *Client) Name() string {
	return c.name
}

// State returns the breaker state.
func (c *Client) State() gobreaker.State {
	return c.breaker.State()
}

// Counts returns the breaker counters for the current generation.
func (c *Client) Counts() gobreaker.Counts {
	return c.breaker.Counts()
}

// Do executes req. When retries are exhausted on 5xx/429 the last response is
// returned with a nil error so the caller can inspect it.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	if c.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.initialInterval
	bo.MaxInterval = c.maxInterval
	bo.MaxElapsedTime = 0

	var last *http.Response
	attempt := 0

	operation := func() error {
		attempt++
		if last != nil {
			drain(last)
			last = nil
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) { //nolint:bodyclose // returned to caller
			r, err := c.http.Do(cloneForAttempt(ctx, req))
			if err != nil {
				return nil, err
			}
			if retryable(r.StatusCode) {
				return r, &StatusError{StatusCode: r.StatusCode}
			}
			return r, nil
		})
		if err != nil {
			if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
				return backoff.Permanent(ErrCircuitOpen)
			}
			last = resp
			c.logger.Debug().Err(err).Int("attempt", attempt).Msg("upstream attempt failed")
			return err
		}
		last = resp
		return nil
	}

	err := backoff.Retry(operation, backoff.WithContext(backoff.WithMaxRetries(bo, c.maxRetries), ctx))
	if err != nil {
		if last != nil {
			c.record(&StatusError{StatusCode: last.StatusCode})
			return last, nil
		}
		c.record(err)
		return nil, err
	}

	c.record(nil)
	return last, nil
}

// GetJSON performs a GET and decodes a 2xx JSON body into out. Other statuses
// yield a *StatusError carrying a truncated body.
func (c *Client) GetJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	return c.DoJSON(req, out)
}

// DoJSON executes req and decodes a 2xx JSON body into out.
func (c *Client) DoJSON(req *http.Request, out any) error {
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.name, err)
	}
	return nil
}

func (c *Client) record(err error) {
	if c.registry == nil {
		return
	}
	if err != nil {
		c.registry.RecordFailure(c.name, err)
		return
	}
	c.registry.RecordSuccess(c.name)
}

func cloneForAttempt(ctx context.Context, req *http.Request) *http.Request {
	r := req.Clone(ctx)
	if req.GetBody != nil {
		if body, err := req.GetBody(); err == nil {
			r.Body = body
		}
	}
	return r
}

func retryable(status int) bool {
	return status >= 500 || status == http.StatusTooManyRequests
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}

// StatusError reports an unexpected HTTP status from an upstream.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, http.StatusText(e.StatusCode))
}
