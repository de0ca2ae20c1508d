package arena_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfinder/wayfinder/internal/render"
	"github.com/wayfinder/wayfinder/internal/render/arena"
)

type fakeResource struct {
	mu       sync.Mutex
	disposed int
}

func (r *fakeResource) Kind() render.Kind { return render.KindMaterial }

func (r *fakeResource) Dispose() {
	r.mu.Lock()
	r.disposed++
	r.mu.Unlock()
}

func (r *fakeResource) Disposed() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disposed
}

func TestArena_RefCounting(t *testing.T) {
	a := arena.New()
	res := &fakeResource{}

	h := a.Insert(res)
	assert.False(t, h.IsZero())
	assert.Equal(t, 1, a.Refs(h))
	assert.Equal(t, 1, a.Len())

	require.NoError(t, a.Retain(h))
	assert.Equal(t, 2, a.Refs(h))

	disposed, err := a.Release(h)
	require.NoError(t, err)
	assert.False(t, disposed)
	assert.Zero(t, res.Disposed())

	got, ok := a.Get(h)
	require.True(t, ok)
	assert.Same(t, res, got)

	disposed, err = a.Release(h)
	require.NoError(t, err)
	assert.True(t, disposed)
	assert.Equal(t, 1, res.Disposed())
	assert.Zero(t, a.Len())
	assert.Equal(t, 1, a.Disposed())
}

func TestArena_StaleHandles(t *testing.T) {
	a := arena.New()

	_, err := a.Release(arena.Handle{})
	assert.ErrorIs(t, err, arena.ErrStaleHandle)

	first := a.Insert(&fakeResource{})
	_, err = a.Release(first)
	require.NoError(t, err)

	second := a.Insert(&fakeResource{})
	assert.NotEqual(t, first, second, "slot reuse bumps the generation")

	_, err = a.Release(first)
	assert.ErrorIs(t, err, arena.ErrStaleHandle)
	assert.ErrorIs(t, a.Retain(first), arena.ErrStaleHandle)
	_, ok := a.Get(first)
	assert.False(t, ok)
	assert.Zero(t, a.Refs(first))

	assert.Equal(t, 1, a.Refs(second), "stale release must not touch the new occupant")
}

func TestArena_ClearDisposesOnce(t *testing.T) {
	a := arena.New()
	resources := []*fakeResource{{}, {}, {}}
	var handles []arena.Handle
	for _, r := range resources {
		handles = append(handles, a.Insert(r))
	}
	require.NoError(t, a.Retain(handles[0]))

	_, err := a.Release(handles[2])
	require.NoError(t, err)

	assert.Equal(t, 2, a.Clear())
	assert.Zero(t, a.Clear())
	for _, r := range resources {
		assert.Equal(t, 1, r.Disposed())
	}

	_, err = a.Release(handles[0])
	assert.ErrorIs(t, err, arena.ErrStaleHandle)
	assert.Zero(t, a.Len())
}

func TestArena_Concurrent(t *testing.T) {
	a := arena.New()
	res := &fakeResource{}
	h := a.Insert(res)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.Retain(h); err == nil {
				_, _ = a.Release(h)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, a.Refs(h))
	assert.Zero(t, res.Disposed())
}
