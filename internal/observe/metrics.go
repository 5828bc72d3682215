// Package observe provides application-wide observability primitives for
// Parrot: OpenTelemetry metrics, tracing, structured logging, and HTTP
// middleware for the optional diagnostics listener.
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
	"errors"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all Parrot metrics.
const meterName = "github.com/MrWong99/parrot"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use; the underlying OTel types handle
// their own synchronisation.
type Metrics struct {
	// --- Latency histograms ---

	// ChatDuration tracks chat completion latency.
	ChatDuration metric.Float64Histogram

	// TTSDuration tracks remote text-to-speech synthesis latency.
	TTSDuration metric.Float64Histogram

	// --- Domain histograms ---

	// PronunciationScore records every computed match percentage (0-100).
	PronunciationScore metric.Int64Histogram

	// --- Counters ---

	// ProviderRequests counts provider API calls. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...), attribute.String("status", ...)
	ProviderRequests metric.Int64Counter

	// RecognitionSessions counts started captures. Use with attribute:
	//   attribute.String("mode", ...)
	RecognitionSessions metric.Int64Counter

	// PlaybackUtterances counts utterances handed to a speech backend. Use
	// with attribute:
	//   attribute.String("backend", ...)
	PlaybackUtterances metric.Int64Counter

	// --- Error counters ---

	// ProviderErrors counts provider errors. Use with attributes:
	//   attribute.String("provider", ...), attribute.String("kind", ...)
	ProviderErrors metric.Int64Counter

	// ProviderFailovers counts calls a fallback chain moved past a backend.
	// Attributes: kind, provider (the backend that was skipped or failed).
	ProviderFailovers metric.Int64Counter

	// --- Gauges ---

	// ActiveCaptures tracks the number of recognition sessions currently
	// listening.
	ActiveCaptures metric.Int64UpDownCounter

	// --- HTTP middleware ---

	// HTTPRequestDuration tracks diagnostics requests by method, route and
	// status_class. Recorded by [Middleware].
	HTTPRequestDuration metric.Float64Histogram
}

// latencyBuckets defines histogram bucket boundaries (in seconds) for remote
// request latencies.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// scoreBuckets groups match percentages into tenths.
var scoreBuckets = []float64{
	10, 20, 30, 40, 50, 60, 70, 80, 90, 100,
}

// NewMetrics creates every instrument on mp. All creation errors are
// reported together.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	met := &Metrics{}
	var errs []error
	keep := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	latency := func(name, desc string) metric.Float64Histogram {
		h, err := m.Float64Histogram(name, metric.WithDescription(desc), metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...))
		keep(err)
		return h
	}
	counter := func(name, desc string) metric.Int64Counter {
		c, err := m.Int64Counter(name, metric.WithDescription(desc))
		keep(err)
		return c
	}

	met.ChatDuration = latency("parrot.chat.duration", "Latency of chat completion requests.")
	met.TTSDuration = latency("parrot.tts.duration", "Latency of remote text-to-speech synthesis.")

	var err error
	met.PronunciationScore, err = m.Int64Histogram("parrot.pronunciation.score",
		metric.WithDescription("Pronunciation match percentage per finished attempt."),
		metric.WithUnit("%"),
		metric.WithExplicitBucketBoundaries(scoreBuckets...),
	)
	keep(err)

	met.ProviderRequests = counter("parrot.provider.requests", "Provider API requests by provider, kind, and status.")
	met.ProviderErrors = counter("parrot.provider.errors", "Provider errors by provider and kind.")
	met.ProviderFailovers = counter("parrot.provider.failovers", "Calls that moved past a failing or tripped backend.")
	met.RecognitionSessions = counter("parrot.recognition.sessions", "Speech captures started, by mode.")
	met.PlaybackUtterances = counter("parrot.playback.utterances", "Utterances spoken, by backend.")

	met.ActiveCaptures, err = m.Int64UpDownCounter("parrot.active_captures",
		metric.WithDescription("Recognition sessions currently listening."))
	keep(err)

	// Diagnostics requests are fast; the SDK default buckets fit them.
	met.HTTPRequestDuration, err = m.Float64Histogram("parrot.http.request.duration",
		metric.WithDescription("Diagnostics listener latency by method, route, and status class."),
		metric.WithUnit("s"))
	keep(err)

	if len(errs) > 0 {
		return nil, fmt.Errorf("observe: create instruments: %w", errors.Join(errs...))
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

// RecordProviderRequest is a convenience method that records a provider
// request counter increment with the standard attribute set.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError is a convenience method that records a provider error
// counter increment.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// RecordFailover records that a fallback chain of kind moved past provider.
func (m *Metrics) RecordFailover(ctx context.Context, kind, provider string) {
	m.ProviderFailovers.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("kind", kind),
			attribute.String("provider", provider),
		),
	)
}

// RecordScore records one pronunciation match percentage.
func (m *Metrics) RecordScore(ctx context.Context, percentage int) {
	m.PronunciationScore.Record(ctx, int64(percentage))
}

// RecordCapture records a started capture in the given mode ("learning" or
// "chat").
func (m *Metrics) RecordCapture(ctx context.Context, mode string) {
	m.RecognitionSessions.Add(ctx, 1,
		metric.WithAttributes(attribute.String("mode", mode)),
	)
}

// RecordUtterance records one utterance spoken by backend.
func (m *Metrics) RecordUtterance(ctx context.Context, backend string) {
	m.PlaybackUtterances.Add(ctx, 1,
		metric.WithAttributes(attribute.String("backend", backend)),
	)
}
