// Package observe provides application-wide observability primitives for
// Voxfill: OpenTelemetry metrics, tracing helpers, and the Prometheus
// exporter bridge.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can be
// scraped via the standard /metrics endpoint. A package-level default
// [Metrics] instance ([DefaultMetrics]) is provided for convenience; tests
// should use [NewMetrics] with a custom [metric.MeterProvider] to avoid
// cross-test pollution.
package observe

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Voxfill metrics.
const meterName = "github.com/voxfill/voxfill"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms per pipeline stage ---

	// TranscribeDuration tracks end-to-end transcription latency across all
	// layers of one invocation.
	TranscribeDuration metric.Float64Histogram

	// ExtractDuration tracks field extraction latency.
	ExtractDuration metric.Float64Histogram

	// RewriteDuration tracks field rewrite latency.
	RewriteDuration metric.Float64Histogram

	// FillDuration tracks the whole gesture-to-bound-form flow.
	FillDuration metric.Float64Histogram

	// --- Counters ---

	// LayerAttempts counts pipeline layer attempts. Use with attributes:
	//   attribute.String("pipeline", ...), attribute.String("layer", ...), attribute.String("status", ...)
	LayerAttempts metric.Int64Counter

	// FieldsBound counts form fields successfully written.
	FieldsBound metric.Int64Counter

	// BridgeMessages counts bridge frames. Use with attributes:
	//   attribute.String("op", ...), attribute.String("direction", ...)
	BridgeMessages metric.Int64Counter

	// --- Error counters ---

	// PipelineFailures counts invocations where every layer of a pipeline
	// failed. Use with attribute: attribute.String("pipeline", ...)
	PipelineFailures metric.Int64Counter

	// --- Gauges ---

	// ActiveRecordings tracks the number of live voice recordings.
	ActiveRecordings metric.Int64UpDownCounter

	// ConnectedExtensions tracks the number of open bridge connections.
	ConnectedExtensions metric.Int64UpDownCounter
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// speech and LLM round-trips.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	// Histograms.
	if met.TranscribeDuration, err = m.Float64Histogram("voxfill.transcribe.duration",
		metric.WithDescription("Latency of one transcription invocation across all layers."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ExtractDuration, err = m.Float64Histogram("voxfill.extract.duration",
		metric.WithDescription("Latency of field extraction."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.RewriteDuration, err = m.Float64Histogram("voxfill.rewrite.duration",
		metric.WithDescription("Latency of field rewriting."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.FillDuration, err = m.Float64Histogram("voxfill.fill.duration",
		metric.WithDescription("End-to-end latency from stop gesture to bound form."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	// Counters.
	if met.LayerAttempts, err = m.Int64Counter("voxfill.layer.attempts",
		metric.WithDescription("Total pipeline layer attempts by pipeline, layer, and status."),
	); err != nil {
		return nil, err
	}
	if met.FieldsBound, err = m.Int64Counter("voxfill.fields.bound",
		metric.WithDescription("Total form fields written."),
	); err != nil {
		return nil, err
	}
	if met.BridgeMessages, err = m.Int64Counter("voxfill.bridge.messages",
		metric.WithDescription("Total bridge frames by op and direction."),
	); err != nil {
		return nil, err
	}

	// Error counters.
	if met.PipelineFailures, err = m.Int64Counter("voxfill.pipeline.failures",
		metric.WithDescription("Total invocations where every layer of a pipeline failed."),
	); err != nil {
		return nil, err
	}

	// Gauges (UpDownCounters).
	if met.ActiveRecordings, err = m.Int64UpDownCounter("voxfill.active_recordings",
		metric.WithDescription("Number of live voice recordings."),
	); err != nil {
		return nil, err
	}
	if met.ConnectedExtensions, err = m.Int64UpDownCounter("voxfill.connected_extensions",
		metric.WithDescription("Number of open extension bridge connections."),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// defaultMetrics is the lazily-initialised package-level Metrics instance.
var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics] instance, creating it on
// first call using [otel.GetMeterProvider]. Subsequent calls return the same
// pointer. Panics if instrument creation fails (should not happen with the
// global provider).
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// Attr is a convenience alias for [attribute.String] to reduce verbosity at
// call sites.
func Attr(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// RecordLayerAttempt records one pipeline layer attempt with the standard
// attribute set.
func (m *Metrics) RecordLayerAttempt(ctx context.Context, pipeline, layer, status string) {
	m.LayerAttempts.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("pipeline", pipeline),
			attribute.String("layer", layer),
			attribute.String("status", status),
		),
	)
}

// RecordPipelineFailure records one total pipeline failure.
func (m *Metrics) RecordPipelineFailure(ctx context.Context, pipeline string) {
	m.PipelineFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("pipeline", pipeline)),
	)
}

// RecordBridgeMessage records one bridge frame.
func (m *Metrics) RecordBridgeMessage(ctx context.Context, op, direction string) {
	m.BridgeMessages.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("direction", direction),
		),
	)
}
