// Package events implements the SDK's structured logging output path: a
// category/severity tagged publish-subscribe bus. Ported from the
// teacher's engine/internal/telemetry/events event bus, trimmed to the
// categories this SDK's components actually emit.
package events

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kubocreate/desmo-go-sdk/internal/telemetry/metrics"
)

const (
	CategorySession   = "session"
	CategoryBuffer    = "buffer"
	CategoryUpload    = "upload"
	CategoryStore     = "store"
	CategorySensor    = "sensor"
	CategoryLifecycle = "lifecycle"
)

const (
	SeverityInfo  = "info"
	SeverityWarn  = "warn"
	SeverityError = "error"
)

// Event is one structured log record.
type Event struct {
	Time     time.Time              `json:"time"`
	Category string                 `json:"category"`
	Type     string                 `json:"type"`
	Severity string                 `json:"severity,omitempty"`
	TraceID  string                 `json:"trace_id,omitempty"`
	SpanID   string                 `json:"span_id,omitempty"`
	Fields   map[string]interface{} `json:"fields,omitempty"`
}

// Subscription is a live channel receiving published events.
type Subscription interface {
	C() <-chan Event
	Close() error
	ID() int64
}

// Bus publishes events to every live subscriber; a full subscriber buffer
// drops the event rather than blocking the publisher.
type Bus interface {
	Publish(ev Event)
	Subscribe(buffer int) Subscription
	Unsubscribe(sub Subscription) error
}

// NewBus constructs a Bus. provider may be nil to disable metrics
// instrumentation. A Bus starts with zero subscribers; Publish then only
// updates the published counters.
func NewBus(provider metrics.Provider) Bus {
	b := &eventBus{subs: make(map[int64]*subscriber)}
	if provider != nil {
		b.mPublished = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "events", Name: "published_total", Help: "total events published"}})
		b.mDropped = provider.NewCounter(metrics.CounterOpts{CommonOpts: metrics.CommonOpts{Namespace: "desmo", Subsystem: "events", Name: "dropped_total", Help: "total events dropped due to backpressure"}})
	}
	return b
}

type eventBus struct {
	mu     sync.RWMutex
	subs   map[int64]*subscriber
	nextID int64

	published atomic.Uint64
	dropped   atomic.Uint64

	mPublished metrics.Counter
	mDropped   metrics.Counter
}

type subscriber struct {
	id  int64
	ch  chan Event
	bus *eventBus
}

func (s *subscriber) C() <-chan Event { return s.ch }
func (s *subscriber) ID() int64       { return s.id }
func (s *subscriber) Close() error    { return s.bus.Unsubscribe(s) }

func (b *eventBus) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	b.published.Add(1)
	if b.mPublished != nil {
		b.mPublished.Inc(1)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- ev:
		default:
			b.dropped.Add(1)
			if b.mDropped != nil {
				b.mDropped.Inc(1)
			}
		}
	}
}

func (b *eventBus) Subscribe(buffer int) Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	sub := &subscriber{id: id, ch: make(chan Event, buffer), bus: b}
	b.subs[id] = sub
	return sub
}

func (b *eventBus) Unsubscribe(sub Subscription) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	s, ok := b.subs[sub.ID()]
	if !ok {
		return errUnknownSubscriber
	}
	close(s.ch)
	delete(b.subs, sub.ID())
	return nil
}

var errUnknownSubscriber = errors.New("events: unknown subscriber")
