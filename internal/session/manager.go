package session

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/wayfinder/wayfinder/internal/task"
)

// Sentinel errors for session management.
var (
	ErrNotFound     = errors.New("session not found")
	ErrLimitReached = errors.New("session limit reached")
	ErrClosed       = errors.New("session manager closed")
)

// Hook runs against every new session before it starts, e.g. to attach an
// event forwarder. The returned function runs when the session closes.
type Hook func(s *Session) (detach func())

// ManagerConfig holds configuration for a Manager.
type ManagerConfig struct {
	// Session is the template for new sessions.
	Session Config

	// Hooks run for each created session (optional).
	Hooks []Hook

	// MaxSessions caps concurrent sessions (default: 1000).
	MaxSessions int

	// IdleTimeout closes sessions unused for this long. Zero disables reaping.
	IdleTimeout time.Duration

	// ReapInterval is how often idle sessions are looked for (default: 1 minute).
	ReapInterval time.Duration

	// Logger for manager operations.
	Logger zerolog.Logger
}

// Manager owns the live sessions of a process.
type Manager struct {
	template    Config
	hooks       []Hook
	maxSessions int
	idleTimeout time.Duration
	logger      zerolog.Logger
	reaper      *task.Periodic

	mu       sync.RWMutex
	ctx      context.Context
	sessions map[string]*Session
	closed   bool
}

// NewManager creates a Manager. Sessions it creates are started with ctx
// passed to Start, or context.Background before Start is called.
func NewManager(cfg ManagerConfig) *Manager {
	maxSessions := cfg.MaxSessions
	if maxSessions == 0 {
		maxSessions = 1000
	}
	reapInterval := cfg.ReapInterval
	if reapInterval == 0 {
		reapInterval = time.Minute
	}

	m := &Manager{
		template:    cfg.Session,
		hooks:       cfg.Hooks,
		maxSessions: maxSessions,
		idleTimeout: cfg.IdleTimeout,
		logger:      cfg.Logger,
		ctx:         context.Background(),
		sessions:    make(map[string]*Session),
	}
	m.reaper = task.NewPeriodic("session.reaper", reapInterval, func(context.Context) {
		m.ReapIdle()
	}, cfg.Logger)
	return m
}

// Start sets the parent context for sessions and launches idle reaping.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.ctx = ctx
	m.mu.Unlock()

	if m.idleTimeout > 0 {
		m.reaper.Start(ctx)
	}
}

// Create builds, hooks and starts a new session.
func (m *Manager) Create() (*Session, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if len(m.sessions) >= m.maxSessions {
		m.mu.Unlock()
		return nil, ErrLimitReached
	}
	s := New(m.template)
	m.sessions[s.ID] = s
	ctx := m.ctx
	m.mu.Unlock()

	for _, hook := range m.hooks {
		if detach := hook(s); detach != nil {
			s.AddSubscription(detach)
		}
	}
	s.Start(ctx)

	m.logger.Info().Str("session_id", s.ID).Msg("session created")
	return s, nil
}

// Get returns the session with id and marks it used.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	s.Touch()
	return s, nil
}

// Delete closes and forgets the session with id.
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}
	s.Close()
	return nil
}

// List returns the live sessions, oldest first.
func (m *Manager) List() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// ReapIdle closes sessions unused for longer than the idle timeout and
// returns how many were closed.
func (m *Manager) ReapIdle() int {
	if m.idleTimeout <= 0 {
		return 0
	}
	now := m.template.now()

	m.mu.Lock()
	var idle []*Session
	for id, s := range m.sessions {
		if now.Sub(s.LastSeen()) > m.idleTimeout {
			idle = append(idle, s)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, s := range idle {
		s.Close()
	}
	if len(idle) > 0 {
		m.logger.Info().Int("sessions", len(idle)).Msg("idle sessions closed")
	}
	return len(idle)
}

// Close stops reaping and closes every session. Create fails afterwards.
func (m *Manager) Close() {
	m.reaper.Stop()

	m.mu.Lock()
	m.closed = true
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		s.Close()
	}
}

func (c Config) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}
