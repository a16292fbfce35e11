package desmo

import (
	"context"
	"fmt"

	"github.com/kubocreate/desmo-go-sdk/internal/clock"
	"github.com/kubocreate/desmo-go-sdk/internal/queue"
	"github.com/kubocreate/desmo-go-sdk/internal/runtimeconfig"
	"github.com/kubocreate/desmo-go-sdk/internal/store"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/events"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/metrics"
	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/tracing"
	"github.com/kubocreate/desmo-go-sdk/internal/transport"
)

// NewReadingSink creates the callback sink push-style sensor adapters
// should be constructed against before they are ever started (spec §4.5,
// §9 "Callback-driven producers"). Build the adapters wired to this sink,
// assemble them into a Sensors value, and pass both to NewClient.
func NewReadingSink() ReadingSink {
	return &readingRouter{}
}

// ClientOptions are the host-supplied collaborators a Client coordinates.
// Every field is optional; a nil adapter or provider degrades gracefully.
type ClientOptions struct {
	Sink    ReadingSink
	Sensors Sensors
	Device  Device

	Battery BatteryProvider
	Screen  ScreenProvider
	Network NetworkProvider
}

// Client is the top-level SDK facade: one per host process, constructed
// once and released on shutdown (spec §9 "Global singleton with
// lifecycle" — modeled here as an explicit handle rather than ambient
// state).
type Client struct {
	cfg      Config
	store    *store.Store
	overlay  *runtimeconfig.Manager
	bus      events.Bus
	metrics  metrics.Provider
	sessions *SessionController
}

// NewClient validates cfg, opens the durable store, wires the metrics and
// event backends named by cfg, and assembles the session controller.
func NewClient(cfg Config, opts ClientOptions) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	dir := cfg.StoreDir
	if dir == "" {
		dir = store.DefaultDir()
	}
	st, err := store.Open(dir)
	if err != nil {
		return nil, fmt.Errorf("open durable telemetry store: %w", err)
	}

	provider := newMetricsProvider(cfg.MetricsBackend)
	bus := events.NewBus(provider)
	tracer := tracing.New("desmo-go-sdk", cfg.LoggingEnabled)

	transportClient := transport.New(cfg.Environment.baseURL(), cfg.ApiKey)
	q := queue.New(st, &telemetryUploader{transport: transportClient}, bus, cfg.MaxAttempts, provider)

	var overlay *runtimeconfig.Manager
	if cfg.RuntimeConfigPath != "" {
		overlay = runtimeconfig.NewManager(cfg.RuntimeConfigPath)
		if err := overlay.Start(); err != nil {
			bus.Publish(events.Event{
				Time:     clock.System{}.Now(),
				Category: events.CategorySession,
				Type:     "runtime_config_unavailable",
				Severity: events.SeverityWarn,
				Fields:   map[string]interface{}{"error": err.Error()},
			})
		}
	}

	router, ok := opts.Sink.(*readingRouter)
	if !ok || router == nil {
		router = &readingRouter{}
	}

	clk := clock.System{}
	cs := newContextSnapshotter(opts.Battery, opts.Screen, opts.Network, clk)
	cs.activity = opts.Sensors.Activity
	lifecycle := &lifecycleAdapter{}

	sessions := newSessionController(cfg, transportClient, clk, q, bus, provider, tracer, overlay, cs, opts.Sensors, opts.Device, router, lifecycle)

	return &Client{
		cfg:      cfg,
		store:    st,
		overlay:  overlay,
		bus:      bus,
		metrics:  provider,
		sessions: sessions,
	}, nil
}

// StartSession begins a new recording session. See SessionController.
func (c *Client) StartSession(ctx context.Context, deliveryID string, sessionType SessionType, externalRiderID *string, address *Address, startLocation *Position) Result[Session] {
	return c.sessions.StartSession(ctx, deliveryID, sessionType, externalRiderID, address, startLocation)
}

// StopSession ends the active recording session. See SessionController.
func (c *Client) StopSession(ctx context.Context) Result[Session] {
	return c.sessions.StopSession(ctx)
}

// OnForeground notifies the client the host app entered the foreground.
func (c *Client) OnForeground() { c.sessions.lifecycle.Foreground() }

// OnBackground notifies the client the host app entered the background.
func (c *Client) OnBackground() { c.sessions.lifecycle.Background() }

// Events exposes the structured logging bus for host observability
// integrations (spec SPEC_FULL §4.12).
func (c *Client) Events() events.Bus { return c.bus }

// Metrics exposes the active metrics provider, primarily so a host can
// mount MetricsHandler() on its own HTTP mux (spec SPEC_FULL §4.11).
func (c *Client) Metrics() metrics.Provider { return c.metrics }

// Close releases the durable store and runtime config watcher. The
// active session, if any, is left recording; stop it explicitly first.
func (c *Client) Close() error {
	if c.overlay != nil {
		_ = c.overlay.Close()
	}
	return c.store.Close()
}

func newMetricsProvider(backend string) metrics.Provider {
	switch backend {
	case "otel":
		return metrics.NewOTelProvider(metrics.OTelProviderOptions{ServiceName: "desmo-go-sdk"})
	case "noop":
		return metrics.NewNoop()
	default:
		return metrics.NewPrometheusProvider(metrics.PrometheusProviderOptions{})
	}
}
