// Package observe provides application-wide observability primitives for
// Squawkbox: OpenTelemetry metrics, distributed tracing, structured logging,
// and HTTP middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. A Prometheus
// exporter bridge is available via [InitProvider] so that metrics can still be
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

// meterName is the instrumentation scope name used for all Squawkbox metrics.
const meterName = "github.com/MrWong99/squawkbox"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use — the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// ProbeAttempts counts gateway probe requests. Use with attributes:
	//   attribute.String("host", ...), attribute.String("status", ...)
	ProbeAttempts metric.Int64Counter

	// DispatchAttempts counts speech dispatch requests against gateway
	// endpoints. Use with attributes:
	//   attribute.String("endpoint", ...), attribute.Int("variant", ...),
	//   attribute.String("outcome", ...)
	DispatchAttempts metric.Int64Counter

	// TierOutcomes counts fallback-chain tier results. Use with attributes:
	//   attribute.String("tier", ...), attribute.String("outcome", ...)
	TierOutcomes metric.Int64Counter

	// QueueDrops counts voice commands dropped because the command queue was
	// full.
	QueueDrops metric.Int64Counter

	// PlaybackDuration tracks wall time spent streaming one decoded clip to
	// the audio sink.
	PlaybackDuration metric.Float64Histogram

	// HTTPRequestDuration tracks HTTP request processing time on the
	// diagnostic server. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...),
	//   attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) sized for
// LAN speech round-trips and clip playback times.
var latencyBuckets = []float64{
	0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider]. Returns an error if any instrument creation fails.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.ProbeAttempts, err = m.Int64Counter("squawkbox.probe.attempts",
		metric.WithDescription("Total gateway probe requests by host and status."),
	); err != nil {
		return nil, err
	}
	if met.DispatchAttempts, err = m.Int64Counter("squawkbox.dispatch.attempts",
		metric.WithDescription("Total speech dispatch requests by endpoint, payload variant, and outcome."),
	); err != nil {
		return nil, err
	}
	if met.TierOutcomes, err = m.Int64Counter("squawkbox.tier.outcomes",
		metric.WithDescription("Fallback chain tier results by tier and outcome."),
	); err != nil {
		return nil, err
	}
	if met.QueueDrops, err = m.Int64Counter("squawkbox.queue.drops",
		metric.WithDescription("Voice commands dropped because the command queue was full."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackDuration, err = m.Float64Histogram("squawkbox.playback.duration",
		metric.WithDescription("Wall time streaming one decoded clip to the audio sink."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("squawkbox.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
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
			panic("observe: creating default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordTier is a convenience wrapper for [Metrics.TierOutcomes].
func (m *Metrics) RecordTier(ctx context.Context, tier, outcome string) {
	m.TierOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tier", tier),
		attribute.String("outcome", outcome),
	))
}
