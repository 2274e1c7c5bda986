package observability

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// MetricsRecorder records sync-core metrics.
// Use NewMetricsRecorder() for OTel metrics or NoopMetrics{} when disabled.
type MetricsRecorder interface {
	// RecordProbe records a connectivity probe with its outcome and latency.
	RecordProbe(ctx context.Context, online bool, latency time.Duration)

	// RecordTransition records an online/offline flip.
	RecordTransition(ctx context.Context, online bool)

	// RecordEnqueue records a record added to the outbox.
	RecordEnqueue(ctx context.Context, recordType string)

	// RecordDelivery records one delivery attempt.
	RecordDelivery(ctx context.Context, success bool, duration time.Duration)

	// RecordFlush records a flush pass with its duration and queue depth after.
	RecordFlush(ctx context.Context, synced, failed int, duration time.Duration, depth int)
}

// otelMetrics implements MetricsRecorder using OpenTelemetry.
type otelMetrics struct {
	probes          metric.Int64Counter
	probeLatency    metric.Float64Histogram
	transitions     metric.Int64Counter
	enqueues        metric.Int64Counter
	deliveries      metric.Int64Counter
	deliveryLatency metric.Float64Histogram
	flushLatency    metric.Float64Histogram
	queueDepth      metric.Int64Gauge
	syncedRecords   metric.Int64Counter
}

var (
	defaultMetrics     *otelMetrics
	defaultMetricsOnce sync.Once
	defaultMetricsErr  error
)

// getDefaultMetrics returns the default OTel metrics instance.
// Lazily initializes the metrics on first call.
func getDefaultMetrics() (*otelMetrics, error) {
	defaultMetricsOnce.Do(func() {
		defaultMetrics, defaultMetricsErr = newOtelMetrics()
	})
	return defaultMetrics, defaultMetricsErr
}

// newOtelMetrics creates a new OTel metrics instance.
func newOtelMetrics() (*otelMetrics, error) {
	meter := otel.Meter("syncforge")

	probes, err := meter.Int64Counter("syncforge.probe.count",
		metric.WithDescription("Number of connectivity probes"),
	)
	if err != nil {
		return nil, err
	}

	probeLatency, err := meter.Float64Histogram("syncforge.probe.latency_ms",
		metric.WithDescription("Connectivity probe latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	transitions, err := meter.Int64Counter("syncforge.connectivity.transitions",
		metric.WithDescription("Number of online/offline transitions"),
	)
	if err != nil {
		return nil, err
	}

	enqueues, err := meter.Int64Counter("syncforge.outbox.enqueues",
		metric.WithDescription("Number of records enqueued"),
	)
	if err != nil {
		return nil, err
	}

	deliveries, err := meter.Int64Counter("syncforge.outbox.deliveries",
		metric.WithDescription("Number of delivery attempts"),
	)
	if err != nil {
		return nil, err
	}

	deliveryLatency, err := meter.Float64Histogram("syncforge.outbox.delivery_latency_ms",
		metric.WithDescription("Delivery attempt latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	flushLatency, err := meter.Float64Histogram("syncforge.outbox.flush_latency_ms",
		metric.WithDescription("Flush pass latency in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	queueDepth, err := meter.Int64Gauge("syncforge.outbox.queue_depth",
		metric.WithDescription("Records remaining in the outbox after a flush"),
	)
	if err != nil {
		return nil, err
	}

	syncedRecords, err := meter.Int64Counter("syncforge.outbox.synced",
		metric.WithDescription("Records successfully delivered"),
	)
	if err != nil {
		return nil, err
	}

	return &otelMetrics{
		probes:          probes,
		probeLatency:    probeLatency,
		transitions:     transitions,
		enqueues:        enqueues,
		deliveries:      deliveries,
		deliveryLatency: deliveryLatency,
		flushLatency:    flushLatency,
		queueDepth:      queueDepth,
		syncedRecords:   syncedRecords,
	}, nil
}

// NewMetricsRecorder returns a MetricsRecorder that uses OpenTelemetry.
// If metrics initialization fails, returns a no-op recorder.
//
// The recorder uses the global OTel meter provider. Configure the provider
// before calling this function:
//
//	import "go.opentelemetry.io/otel"
//	otel.SetMeterProvider(yourProvider)
func NewMetricsRecorder() MetricsRecorder {
	m, err := getDefaultMetrics()
	if err != nil {
		slog.Warn("metrics initialization failed, using no-op recorder",
			slog.String("error", err.Error()))
		return NoopMetrics{}
	}
	return m
}

// RecordProbe records a connectivity probe.
func (m *otelMetrics) RecordProbe(ctx context.Context, online bool, latency time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("online", online),
	}
	m.probes.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.probeLatency.Record(ctx, float64(latency.Milliseconds()), metric.WithAttributes(attrs...))
}

// RecordTransition records an online/offline flip.
func (m *otelMetrics) RecordTransition(ctx context.Context, online bool) {
	m.transitions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("online", online)))
}

// RecordEnqueue records a record added to the outbox.
func (m *otelMetrics) RecordEnqueue(ctx context.Context, recordType string) {
	m.enqueues.Add(ctx, 1, metric.WithAttributes(attribute.String("record_type", recordType)))
}

// RecordDelivery records one delivery attempt.
func (m *otelMetrics) RecordDelivery(ctx context.Context, success bool, duration time.Duration) {
	attrs := []attribute.KeyValue{
		attribute.Bool("success", success),
	}
	m.deliveries.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.deliveryLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if success {
		m.syncedRecords.Add(ctx, 1)
	}
}

// RecordFlush records a flush pass.
func (m *otelMetrics) RecordFlush(ctx context.Context, synced, failed int, duration time.Duration, depth int) {
	attrs := []attribute.KeyValue{
		attribute.Int("synced", synced),
		attribute.Int("failed", failed),
	}
	m.flushLatency.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	m.queueDepth.Record(ctx, int64(depth))
}
