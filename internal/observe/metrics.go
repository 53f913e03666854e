// Package observe provides the OpenTelemetry metric instruments for idiolect
// and the HTTP middleware that records request latency.
//
// Tests should build a [Metrics] with [NewMetrics] over a manual-reader
// MeterProvider; the server wires the Prometheus exporter via [InitProvider].
package observe

import (
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all idiolect metrics.
const meterName = "github.com/kalambet/idiolect"

// Metrics holds all OpenTelemetry metric instruments for the application.
// All fields are safe for concurrent use.
type Metrics struct {
	// MessagesAnalyzed counts messages folded into a style profile.
	MessagesAnalyzed metric.Int64Counter

	// PhrasesPruned counts phrase entries dropped by the top-K prune.
	PhrasesPruned metric.Int64Counter

	// Rebuilds counts full profile rebuilds. Use with attribute:
	//   attribute.String("status", "ok"|"error")
	Rebuilds metric.Int64Counter

	// RebuildDuration tracks how long a rebuild replay takes.
	RebuildDuration metric.Float64Histogram

	// StoreErrors counts profile store failures. Use with attributes:
	//   attribute.String("op", ...), attribute.String("kind", "storage"|"corrupt")
	StoreErrors metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Use with attributes:
	//   attribute.String("method", ...), attribute.String("route", ...), attribute.Int("status", ...)
	HTTPRequestDuration metric.Float64Histogram
}

// durationBuckets covers sub-millisecond updates up to multi-second rebuilds.
var durationBuckets = []float64{
	0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30,
}

// NewMetrics creates a fully initialised [Metrics] struct using the given
// [metric.MeterProvider].
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.MessagesAnalyzed, err = m.Int64Counter("idiolect.style.messages_analyzed",
		metric.WithDescription("Messages folded into a style profile."),
	); err != nil {
		return nil, err
	}
	if met.PhrasesPruned, err = m.Int64Counter("idiolect.style.phrases_pruned",
		metric.WithDescription("Phrase entries dropped when the phrase table was pruned."),
	); err != nil {
		return nil, err
	}
	if met.Rebuilds, err = m.Int64Counter("idiolect.style.rebuilds",
		metric.WithDescription("Full style profile rebuilds."),
	); err != nil {
		return nil, err
	}
	if met.RebuildDuration, err = m.Float64Histogram("idiolect.style.rebuild.duration",
		metric.WithDescription("Latency of a full style profile rebuild."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StoreErrors, err = m.Int64Counter("idiolect.style.store_errors",
		metric.WithDescription("Style profile store failures."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("idiolect.http.request.duration",
		metric.WithDescription("Latency of HTTP requests."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(durationBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}
