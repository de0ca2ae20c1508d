package cache

import (
	"errors"
	"reflect"
	"sync"

	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/render/arena"
)

// ErrNilResource is returned when a build function produces no resource.
var ErrNilResource = errors.New("resource builder returned nil")

// Eviction reasons.
const (
	ReasonOverflow = "overflow"
	ReasonMemory   = "memory"
	ReasonTexture  = "texture_tier"
	ReasonDispose  = "dispose"
)

// Lease is a caller's reference to a pooled resource. It must be returned
// with ResourceCache.Release.
type Lease struct {
	Kind     render.Kind
	Key      string
	Handle   arena.Handle
	Resource render.Resource
}

// Store is a size-bounded keyed pool of one resource kind. Entries are
// evicted in insertion order, oldest first; reads do not refresh an entry.
type Store struct {
	kind    render.Kind
	limit   int
	batch   int
	arena   *arena.Arena
	onEvict func(kind render.Kind, reason string, keys []string)

	mu    sync.Mutex
	order []string
	index map[string]arena.Handle
}

func newStore(kind render.Kind, limit, batch int, a *arena.Arena, onEvict func(render.Kind, string, []string)) *Store {
	return &Store{
		kind:    kind,
		limit:   limit,
		batch:   batch,
		arena:   a,
		onEvict: onEvict,
		index:   make(map[string]arena.Handle),
	}
}

// Kind returns the resource kind held by the store.
func (s *Store) Kind() render.Kind {
	return s.kind
}

// Limit returns the eviction threshold.
func (s *Store) Limit() int {
	return s.limit
}

// Get returns the resource stored under key without taking a reference.
func (s *Store) Get(key string) (render.Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.index[key]
	if !ok {
		return nil, false
	}
	return s.arena.Get(h)
}

// Set stores res under key. Replacing an entry keeps its insertion position
// and releases the previous resource. Setting the resource already stored
// under key is a no-op.
func (s *Store) Set(key string, res render.Resource) error {
	if res == nil {
		return ErrNilResource
	}

	s.mu.Lock()
	old, replacing := s.index[key]
	if replacing {
		if cur, ok := s.arena.Get(old); ok && sameResource(cur, res) {
			s.mu.Unlock()
			return nil
		}
	}
	h := s.arena.Insert(res)
	if replacing {
		s.index[key] = h
		_, _ = s.arena.Release(old) //nolint:errcheck // the store owns old
		s.mu.Unlock()
		return nil
	}
	s.addLocked(key, h)
	evicted := s.trimLocked()
	s.mu.Unlock()

	s.report(ReasonOverflow, evicted)
	return nil
}

// Acquire returns the resource under key, building and storing it first when
// absent. The returned lease holds a reference, so the resource survives
// eviction until the lease is released.
func (s *Store) Acquire(key string, build func() (render.Resource, error)) (Lease, error) {
	s.mu.Lock()
	if h, ok := s.index[key]; ok {
		if err := s.arena.Retain(h); err == nil {
			res, _ := s.arena.Get(h)
			s.mu.Unlock()
			return Lease{Kind: s.kind, Key: key, Handle: h, Resource: res}, nil
		}
		s.removeLocked(key)
	}

	res, err := build()
	if err == nil && res == nil {
		err = ErrNilResource
	}
	if err != nil {
		s.mu.Unlock()
		return Lease{}, err
	}

	h := s.arena.Insert(res)
	_ = s.arena.Retain(h) //nolint:errcheck // h was just inserted
	s.addLocked(key, h)
	evicted := s.trimLocked()
	s.mu.Unlock()

	s.report(ReasonOverflow, evicted)
	return Lease{Kind: s.kind, Key: key, Handle: h, Resource: res}, nil
}

// Delete removes key and releases the store's reference to it.
func (s *Store) Delete(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.index[key]
	if !ok {
		return false
	}
	s.removeLocked(key)
	_, _ = s.arena.Release(h) //nolint:errcheck // the store owns h
	return true
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Keys returns the keys in insertion order, oldest first.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

// EvictOldest evicts up to n of the oldest entries and returns their keys.
func (s *Store) EvictOldest(n int, reason string) []string {
	s.mu.Lock()
	evicted := s.evictLocked(n)
	s.mu.Unlock()

	s.report(reason, evicted)
	return evicted
}

// Clear evicts every entry.
func (s *Store) Clear(reason string) int {
	s.mu.Lock()
	evicted := s.evictLocked(len(s.order))
	s.mu.Unlock()

	s.report(reason, evicted)
	return len(evicted)
}

func (s *Store) addLocked(key string, h arena.Handle) {
	s.index[key] = h
	s.order = append(s.order, key)
}

func (s *Store) removeLocked(key string) {
	delete(s.index, key)
	for i, k := range s.order {
		if k == key {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}

// trimLocked evicts a batch once the store exceeds its limit, never leaving
// it at or above the limit. The newest entry always survives.
func (s *Store) trimLocked() []string {
	n := len(s.order)
	if n <= s.limit {
		return nil
	}
	count := s.batch
	if n-count >= s.limit {
		count = n - s.limit + 1
	}
	if count > n-1 {
		count = n - 1
	}
	return s.evictLocked(count)
}

func (s *Store) evictLocked(n int) []string {
	if n > len(s.order) {
		n = len(s.order)
	}
	if n <= 0 {
		return nil
	}

	evicted := make([]string, n)
	copy(evicted, s.order[:n])
	s.order = append(s.order[:0:0], s.order[n:]...)

	for _, key := range evicted {
		h := s.index[key]
		delete(s.index, key)
		_, _ = s.arena.Release(h) //nolint:errcheck // the store owns h
	}
	return evicted
}

func (s *Store) report(reason string, keys []string) {
	if len(keys) == 0 || s.onEvict == nil {
		return
	}
	s.onEvict(s.kind, reason, keys)
}

func sameResource(a, b render.Resource) bool {
	if reflect.TypeOf(a) != reflect.TypeOf(b) || !reflect.TypeOf(a).Comparable() {
		return false
	}
	return a == b
}
