package render

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/wayfinder/wayfinder/internal/render"

// Metrics holds the OpenTelemetry instruments for the rendering components.
// A nil *Metrics records nothing.
type Metrics struct {
	evictions     metric.Int64Counter
	cleanups      metric.Int64Counter
	throttles     metric.Int64Counter
	qualitySwitch metric.Int64Counter
	frameRate     metric.Float64Gauge
	targetRate    metric.Float64Gauge
	frameFailures metric.Int64Counter
}

// NewMetrics creates the render instruments on the global meter provider.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)

	evictions, err := meter.Int64Counter(
		"render.cache.evictions",
		metric.WithDescription("Number of resources evicted from the render cache"),
		metric.WithUnit("{resource}"),
	)
	if err != nil {
		return nil, err
	}

	cleanups, err := meter.Int64Counter(
		"render.cache.cleanups",
		metric.WithDescription("Number of memory pressure cleanups"),
		metric.WithUnit("{cleanup}"),
	)
	if err != nil {
		return nil, err
	}

	throttles, err := meter.Int64Counter(
		"render.thermal.throttles",
		metric.WithDescription("Number of target frame rate reductions"),
		metric.WithUnit("{throttle}"),
	)
	if err != nil {
		return nil, err
	}

	qualitySwitch, err := meter.Int64Counter(
		"render.quality.switches",
		metric.WithDescription("Number of performance mode switches"),
		metric.WithUnit("{switch}"),
	)
	if err != nil {
		return nil, err
	}

	frameRate, err := meter.Float64Gauge(
		"render.frame_rate",
		metric.WithDescription("Measured frames per second"),
		metric.WithUnit("{frame}/s"),
	)
	if err != nil {
		return nil, err
	}

	targetRate, err := meter.Float64Gauge(
		"render.frame_rate.target",
		metric.WithDescription("Target frames per second"),
		metric.WithUnit("{frame}/s"),
	)
	if err != nil {
		return nil, err
	}

	frameFailures, err := meter.Int64Counter(
		"render.waypoint.frame_failures",
		metric.WithDescription("Number of waypoint updates skipped after a failure"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		evictions:     evictions,
		cleanups:      cleanups,
		throttles:     throttles,
		qualitySwitch: qualitySwitch,
		frameRate:     frameRate,
		targetRate:    targetRate,
		frameFailures: frameFailures,
	}, nil
}

// RecordEviction records n resources of kind evicted for reason.
func (m *Metrics) RecordEviction(kind Kind, reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.evictions.Add(context.TODO(), int64(n), metric.WithAttributes(
		attribute.String("render.kind", string(kind)),
		attribute.String("render.reason", reason),
	))
}

// RecordCleanup records a memory pressure cleanup.
func (m *Metrics) RecordCleanup() {
	if m == nil {
		return
	}
	m.cleanups.Add(context.TODO(), 1)
}

// RecordThrottle records a target frame rate reduction.
func (m *Metrics) RecordThrottle(target float64) {
	if m == nil {
		return
	}
	ctx := context.TODO()
	m.throttles.Add(ctx, 1)
	m.targetRate.Record(ctx, target)
}

// RecordTarget records a new target frame rate.
func (m *Metrics) RecordTarget(target float64) {
	if m == nil {
		return
	}
	m.targetRate.Record(context.TODO(), target)
}

// RecordQualitySwitch records a performance mode flip.
func (m *Metrics) RecordQualitySwitch(performanceMode bool) {
	if m == nil {
		return
	}
	m.qualitySwitch.Add(context.TODO(), 1, metric.WithAttributes(
		attribute.Bool("render.performance_mode", performanceMode),
	))
}

// RecordFrameRate records a measured frame rate.
func (m *Metrics) RecordFrameRate(fps float64) {
	if m == nil {
		return
	}
	m.frameRate.Record(context.TODO(), fps)
}

// RecordFrameFailure records a waypoint update that failed during a frame.
func (m *Metrics) RecordFrameFailure() {
	if m == nil {
		return
	}
	m.frameFailures.Add(context.TODO(), 1)
}
