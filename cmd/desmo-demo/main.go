package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	desmo "github.com/kubocreate/desmo-go-sdk"
	"github.com/kubocreate/desmo-go-sdk/internal/clock"
)

// syntheticIMU is a stand-in for a platform IMU adapter: it pushes
// fabricated readings to the sink it was constructed with at a fixed
// cadence, exactly the "injected callback" contract described in spec
// §4.5 and §9.
type syntheticIMU struct {
	kind desmo.ReadingKind
	freq time.Duration
	sink desmo.ReadingSink

	cancel context.CancelFunc
}

func newSyntheticIMU(kind desmo.ReadingKind, hz int, sink desmo.ReadingSink) *syntheticIMU {
	return &syntheticIMU{kind: kind, freq: time.Second / time.Duration(hz), sink: sink}
}

func (s *syntheticIMU) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	go func() {
		t := time.NewTicker(s.freq)
		defer t.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-t.C:
				s.sink.OnReading(desmo.Reading{
					Kind:                s.kind,
					EventMonotonicNanos: clock.System{}.MonotonicNanos(),
					Vector3:             [3]float64{0.01, -0.02, 9.81},
					Quaternion:          [4]float64{0, 0, 0, 1},
				})
			}
		}
	}()
	return nil
}

func (s *syntheticIMU) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
}

func (s *syntheticIMU) IsAvailable() bool { return true }

func main() {
	var (
		apiKey      string
		environment string
		duration    time.Duration
		metricsAddr string
		sampleHz    int
		showVersion bool
	)
	flag.StringVar(&apiKey, "api-key", "pk_demo", "Desmo API key (must start with pk_)")
	flag.StringVar(&environment, "environment", "sandbox", "sandbox|live")
	flag.DurationVar(&duration, "duration", 10*time.Second, "how long to record before stopping")
	flag.StringVar(&metricsAddr, "metrics", "", "expose the metrics provider's handler on this address (e.g. :9090)")
	flag.IntVar(&sampleHz, "sample-rate-hz", 50, "synthetic accelerometer push rate")
	flag.BoolVar(&showVersion, "version", false, "show version and exit")
	flag.Parse()

	if showVersion {
		fmt.Println("desmo-demo – desmo-go-sdk reference CLI")
		return
	}

	cfg := desmo.DefaultConfig(apiKey)
	cfg.Environment = desmo.Environment(environment)
	cfg.LoggingEnabled = true
	cfg.Telemetry.SampleRateHz = sampleHz
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	sink := desmo.NewReadingSink()
	sensors := desmo.Sensors{
		Accelerometer: newSyntheticIMU(desmo.ReadingAccelerometer, sampleHz, sink),
		Gyroscope:     newSyntheticIMU(desmo.ReadingGyroscope, sampleHz, sink),
		Gravity:       newSyntheticIMU(desmo.ReadingGravity, sampleHz, sink),
	}
	device := desmo.Device{Platform: "linux", SdkVersion: "demo", Model: "desmo-demo-cli"}

	client, err := desmo.NewClient(cfg, desmo.ClientOptions{Sink: sink, Sensors: sensors, Device: device})
	if err != nil {
		log.Fatalf("create client: %v", err)
	}
	defer func() { _ = client.Close() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		log.Println("signal received; stopping session early")
		cancel()
	}()

	if metricsAddr != "" {
		if handler := client.Metrics().MetricsHandler(); handler != nil {
			mux := http.NewServeMux()
			mux.Handle("/metrics", handler)
			go func() {
				log.Printf("metrics listening on %s", metricsAddr)
				_ = http.ListenAndServe(metricsAddr, mux)
			}()
		}
	}

	sub := client.Events().Subscribe(64)
	defer client.Events().Unsubscribe(sub)
	go func() {
		for ev := range sub.C() {
			log.Printf("[%s] %s.%s %v", ev.Severity, ev.Category, ev.Type, ev.Fields)
		}
	}()

	result := client.StartSession(ctx, "demo-delivery-1", desmo.SessionDrop, nil, nil, nil)
	session, err := result.Unwrap()
	if err != nil {
		log.Fatalf("start session: %v", err)
	}
	log.Printf("recording session %s", session.SessionID)

	select {
	case <-time.After(duration):
	case <-ctx.Done():
	}

	stopResult := client.StopSession(context.Background())
	final, err := stopResult.Unwrap()
	if err != nil {
		log.Fatalf("stop session: %v", err)
	}
	log.Printf("session %s finished with status %s", final.SessionID, final.Status)
}
