// Package metrics defines a small metrics-provider abstraction so the rest
// of the SDK can record counters/gauges/histograms without depending on a
// concrete backend. Ported from the teacher's engine/telemetry/metrics
// Provider interface; the desmo SDK ships two implementations, Prometheus
// and OpenTelemetry, selected by Config.MetricsBackend.
package metrics

import (
	"context"
	"net/http"
)

// CommonOpts names a metric: Namespace/Subsystem/Name compose the final
// identifier, Labels declares the label keys observers will supply values
// for.
type CommonOpts struct {
	Namespace, Subsystem, Name, Help string
	Labels                           []string
}

type CounterOpts struct{ CommonOpts }
type GaugeOpts struct{ CommonOpts }
type HistogramOpts struct {
	CommonOpts
	Buckets []float64
}

type Counter interface{ Inc(delta float64, labels ...string) }
type Gauge interface {
	Set(v float64, labels ...string)
	Add(delta float64, labels ...string)
}
type Histogram interface{ Observe(v float64, labels ...string) }
type Timer interface{ ObserveDuration(labels ...string) }

// Provider constructs metric instruments and reports backend health.
type Provider interface {
	NewCounter(opts CounterOpts) Counter
	NewGauge(opts GaugeOpts) Gauge
	NewHistogram(opts HistogramOpts) Histogram
	NewTimer(h HistogramOpts) func() Timer
	Health(ctx context.Context) error
	// MetricsHandler returns an HTTP exposition handler, or nil if the
	// backend doesn't expose one (e.g. the OTEL push-based bridge).
	MetricsHandler() http.Handler
}

// --- no-op provider: used when the configured backend is "noop". ---

type noopProvider struct{}

func NewNoop() Provider { return noopProvider{} }

type noopCounter struct{}
type noopGauge struct{}
type noopHistogram struct{}
type noopTimer struct{}

func (noopProvider) NewCounter(CounterOpts) Counter       { return noopCounter{} }
func (noopProvider) NewGauge(GaugeOpts) Gauge             { return noopGauge{} }
func (noopProvider) NewHistogram(HistogramOpts) Histogram { return noopHistogram{} }
func (noopProvider) NewTimer(HistogramOpts) func() Timer  { return func() Timer { return noopTimer{} } }
func (noopProvider) Health(context.Context) error         { return nil }
func (noopProvider) MetricsHandler() http.Handler         { return nil }

func (noopCounter) Inc(float64, ...string)      {}
func (noopGauge) Set(float64, ...string)        {}
func (noopGauge) Add(float64, ...string)        {}
func (noopHistogram) Observe(float64, ...string) {}
func (noopTimer) ObserveDuration(...string)     {}

var _ Provider = noopProvider{}
