// Package arena owns disposable render resources behind generational,
// reference-counted handles. A resource is disposed exactly once, when its
// last reference is released or the arena is cleared.
package arena

import (
	"errors"
	"fmt"
	"sync"

	"github.com/wayfinder/wayfinder/internal/render"
)

// ErrStaleHandle is returned for a handle whose slot has been released and
// possibly reused.
var ErrStaleHandle = errors.New("stale resource handle")

// Handle refers to one resource in an Arena. The zero Handle is never valid.
type Handle struct {
	index uint32
	gen   uint32
}

// IsZero reports whether h is the zero Handle.
func (h Handle) IsZero() bool {
	return h.gen == 0
}

// String formats the handle for logs.
func (h Handle) String() string {
	return fmt.Sprintf("%d#%d", h.index, h.gen)
}

type slot struct {
	res  render.Resource
	refs int
	gen  uint32
}

// Arena is safe for concurrent use.
type Arena struct {
	mu       sync.Mutex
	slots    []slot
	free     []uint32
	live     int
	disposed int
}

// New creates an empty arena.
func New() *Arena {
	return &Arena{}
}

// Insert adds res with one reference held by the caller.
func (a *Arena) Insert(res render.Resource) Handle {
	a.mu.Lock()
	defer a.mu.Unlock()

	var idx uint32
	if n := len(a.free); n > 0 {
		idx = a.free[n-1]
		a.free = a.free[:n-1]
	} else {
		a.slots = append(a.slots, slot{})
		idx = uint32(len(a.slots) - 1)
	}

	s := &a.slots[idx]
	s.gen++
	s.res = res
	s.refs = 1
	a.live++
	return Handle{index: idx, gen: s.gen}
}

func (a *Arena) lookupLocked(h Handle) (*slot, error) {
	if h.IsZero() || int(h.index) >= len(a.slots) {
		return nil, ErrStaleHandle
	}
	s := &a.slots[h.index]
	if s.gen != h.gen || s.refs == 0 {
		return nil, ErrStaleHandle
	}
	return s, nil
}

// Get returns the resource behind h.
func (a *Arena) Get(h Handle) (render.Resource, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookupLocked(h)
	if err != nil {
		return nil, false
	}
	return s.res, true
}

// Retain adds a reference to h.
func (a *Arena) Retain(h Handle) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookupLocked(h)
	if err != nil {
		return err
	}
	s.refs++
	return nil
}

// Release drops a reference to h and disposes the resource when it was the
// last one. It reports whether the resource was disposed.
func (a *Arena) Release(h Handle) (bool, error) {
	a.mu.Lock()
	s, err := a.lookupLocked(h)
	if err != nil {
		a.mu.Unlock()
		return false, err
	}
	s.refs--
	if s.refs > 0 {
		a.mu.Unlock()
		return false, nil
	}
	res := a.freeLocked(h.index)
	a.mu.Unlock()

	res.Dispose()
	return true, nil
}

// Refs returns the reference count of h, or zero for a stale handle.
func (a *Arena) Refs(h Handle) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	s, err := a.lookupLocked(h)
	if err != nil {
		return 0
	}
	return s.refs
}

// Len returns the number of live resources.
func (a *Arena) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.live
}

// Disposed returns how many resources the arena has disposed.
func (a *Arena) Disposed() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.disposed
}

// Clear disposes every live resource regardless of outstanding references.
// Every existing handle becomes stale.
func (a *Arena) Clear() int {
	a.mu.Lock()
	var doomed []render.Resource
	for i := range a.slots {
		if a.slots[i].refs > 0 {
			doomed = append(doomed, a.freeLocked(uint32(i)))
		}
	}
	a.mu.Unlock()

	for _, res := range doomed {
		res.Dispose()
	}
	return len(doomed)
}

func (a *Arena) freeLocked(idx uint32) render.Resource {
	s := &a.slots[idx]
	res := s.res
	s.res = nil
	s.refs = 0
	a.free = append(a.free, idx)
	a.live--
	a.disposed++
	return res
}
