package simulated_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wayfinder/wayfinder/internal/location"
	"github.com/wayfinder/wayfinder/internal/location/simulated"
)

var origin = location.Coordinate{Lat: -26.2041, Lon: 28.0473}

func TestDevice_CurrentPosition(t *testing.T) {
	d := simulated.NewDevice()

	_, err := d.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, simulated.ErrNoPosition)

	d.SetPosition(origin)
	d.SetAccuracy(8)
	fix, err := d.CurrentPosition(context.Background())
	require.NoError(t, err)
	assert.Equal(t, origin, fix.Coordinate)
	require.NotNil(t, fix.Accuracy)
	assert.Equal(t, 8.0, *fix.Accuracy)

	boom := errors.New("gps offline")
	d.FailPositions(boom)
	_, err = d.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, boom)

	d.FailPositions(nil)
	d.SetPermission(false)
	_, err = d.CurrentPosition(context.Background())
	assert.ErrorIs(t, err, simulated.ErrNotPermitted)

	granted, err := d.RequestPermission(context.Background())
	require.NoError(t, err)
	assert.False(t, granted)
}

func TestDevice_Watch_DistanceFilter(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	d := simulated.NewDevice(
		simulated.WithPosition(origin),
		simulated.WithClock(func() time.Time { return now }),
	)

	var got []location.Coordinate
	stop, err := d.Watch(context.Background(), location.WatchOptions{
		Interval:       time.Minute,
		DistanceFilter: 10,
	}, func(f location.Fix) { got = append(got, f.Coordinate) })
	require.NoError(t, err)
	defer stop()

	require.Len(t, got, 1, "initial position delivered synchronously")

	d.SetPosition(location.Offset(origin, 90, 3))
	assert.Len(t, got, 1, "below distance filter and interval")

	far := location.Offset(origin, 90, 50)
	d.SetPosition(far)
	require.Len(t, got, 2)
	assert.Equal(t, far, got[1])

	now = now.Add(2 * time.Minute)
	d.SetPosition(location.Offset(far, 0, 1))
	assert.Len(t, got, 3, "interval elapsed")
}

func TestDevice_Watch_StopAndContext(t *testing.T) {
	d := simulated.NewDevice()

	stop, err := d.Watch(context.Background(), location.WatchOptions{}, func(location.Fix) {})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Watchers())
	stop()
	stop()
	assert.Zero(t, d.Watchers())

	ctx, cancel := context.WithCancel(context.Background())
	_, err = d.Watch(ctx, location.WatchOptions{}, func(location.Fix) {})
	require.NoError(t, err)
	assert.Equal(t, 1, d.Watchers())
	cancel()
	assert.Eventually(t, func() bool { return d.Watchers() == 0 }, time.Second, 5*time.Millisecond)
}

func TestDevice_Watch_NotPermitted(t *testing.T) {
	d := simulated.NewDevice(simulated.WithPermission(false))
	_, err := d.Watch(context.Background(), location.WatchOptions{}, func(location.Fix) {})
	assert.ErrorIs(t, err, simulated.ErrNotPermitted)
	assert.Zero(t, d.Watchers())
}

func TestDevice_MoveTowards(t *testing.T) {
	d := simulated.NewDevice(simulated.WithPosition(origin))
	target := location.Offset(origin, 45, 100)

	p := d.MoveTowards(target, 40)
	assert.InDelta(t, 40, location.Distance(origin, p), 0.01)
	assert.InDelta(t, 60, location.Distance(p, target), 0.05)

	d.MoveTowards(target, 40)
	p = d.MoveTowards(target, 40)
	assert.Equal(t, target, p)

	current, ok := d.Position()
	require.True(t, ok)
	assert.Equal(t, target, current)
}
