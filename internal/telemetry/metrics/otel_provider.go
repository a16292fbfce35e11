package metrics

// OpenTelemetry metrics bridge implementing the Provider interface, ported
// from the teacher's engine/telemetry/metrics OTEL bridge. Gauges simulate
// Set semantics via an UpDownCounter delta application since OTEL has no
// native "set" instrument.

import (
	"context"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func nowNanos() int64 { return time.Now().UnixNano() }

// OTelProviderOptions configures an OTEL-backed provider.
type OTelProviderOptions struct {
	ServiceName string
}

// NewOTelProvider returns a Provider backed by an OTEL MeterProvider with
// zero-config defaults. No reader or exporter is attached, and the SDK
// MeterProvider is not exposed to callers.
func NewOTelProvider(opts OTelProviderOptions) Provider {
	name := opts.ServiceName
	if name == "" {
		name = "desmo"
	}
	mp := sdkmetric.NewMeterProvider()
	meter := mp.Meter(name)
	return &otelProvider{
		mp:       mp,
		meter:    meter,
		gaugeVal: make(map[string]float64),
	}
}

type otelProvider struct {
	mp    *sdkmetric.MeterProvider
	meter metric.Meter

	mu       sync.Mutex
	gaugeVal map[string]float64
}

func (p *otelProvider) NewCounter(opts CounterOpts) Counter {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64Counter(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopCounter{}
	}
	return &otelCounter{c: inst}
}

func (p *otelProvider) NewGauge(opts GaugeOpts) Gauge {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64UpDownCounter(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopGauge{}
	}
	return &otelGauge{g: inst, provider: p, id: name}
}

func (p *otelProvider) NewHistogram(opts HistogramOpts) Histogram {
	name := buildOTelName(opts.CommonOpts)
	inst, err := p.meter.Float64Histogram(name, metric.WithDescription(opts.Help))
	if err != nil {
		return noopHistogram{}
	}
	return &otelHistogram{h: inst}
}

func (p *otelProvider) NewTimer(h HistogramOpts) func() Timer {
	hist := p.NewHistogram(h)
	return func() Timer { return &otelTimer{h: hist, start: nowNanos()} }
}

func (p *otelProvider) Health(ctx context.Context) error { return nil }

// MetricsHandler returns nil: the OTEL bridge is push/pull-exporter
// driven, not scrape-handler driven (unlike the Prometheus provider).
func (p *otelProvider) MetricsHandler() http.Handler { return nil }

var _ Provider = (*otelProvider)(nil)

func buildOTelName(c CommonOpts) string {
	parts := []string{}
	if c.Namespace != "" {
		parts = append(parts, c.Namespace)
	}
	if c.Subsystem != "" {
		parts = append(parts, c.Subsystem)
	}
	if c.Name != "" {
		parts = append(parts, c.Name)
	}
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += "."
		}
		out += p
	}
	return out
}

type otelCounter struct{ c metric.Float64Counter }

func (c *otelCounter) Inc(delta float64, labels ...string) {
	c.c.Add(context.Background(), delta)
}

type otelGauge struct {
	g        metric.Float64UpDownCounter
	provider *otelProvider
	id       string
}

func (g *otelGauge) Set(v float64, labels ...string) {
	g.provider.mu.Lock()
	prev := g.provider.gaugeVal[g.id]
	g.provider.gaugeVal[g.id] = v
	g.provider.mu.Unlock()
	g.g.Add(context.Background(), v-prev)
}

func (g *otelGauge) Add(delta float64, labels ...string) {
	g.provider.mu.Lock()
	g.provider.gaugeVal[g.id] += delta
	g.provider.mu.Unlock()
	g.g.Add(context.Background(), delta)
}

type otelHistogram struct{ h metric.Float64Histogram }

func (h *otelHistogram) Observe(v float64, labels ...string) {
	h.h.Record(context.Background(), v)
}

type otelTimer struct {
	h     Histogram
	start int64
}

func (t *otelTimer) ObserveDuration(labels ...string) {
	t.h.Observe(float64(nowNanos()-t.start)/1e9, labels...)
}
