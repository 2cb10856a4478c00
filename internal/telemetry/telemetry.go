// Package telemetry carries structured events out of the order-construction
// core. The core never logs directly; it emits Events to an injected Sink.
package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// Kind names an event emitted by the cart or checkout core.
type Kind string

const (
	CartLoaded          Kind = "cart.loaded"
	CartPersisted       Kind = "cart.persisted"
	CartPersistFailed   Kind = "cart.persist_failed"
	CartCorruptSnapshot Kind = "cart.corrupt_snapshot"
	CartDriftRepaired   Kind = "cart.drift_repaired"
	CartMigrated        Kind = "cart.migrated"
	CartQuotaRetry      Kind = "cart.quota_retry"

	DiscountApplied  Kind = "checkout.discount_applied"
	DiscountRejected Kind = "checkout.discount_rejected"
	DiscountStale    Kind = "checkout.discount_stale"
	StaleResponse    Kind = "checkout.stale_response"
	OrderSubmitted   Kind = "checkout.order_submitted"
	OrderFailed      Kind = "checkout.order_failed"
	PaymentOpened    Kind = "checkout.payment_opened"
	PaymentFailed    Kind = "checkout.payment_failed"
)

// Event is a single structured occurrence. Attrs holds flat string values so
// sinks can map them to log fields or metric attributes without reflection.
type Event struct {
	Kind  Kind
	Attrs map[string]string
}

// Attr returns the named attribute or "".
func (e Event) Attr(name string) string {
	return e.Attrs[name]
}

// Sink receives events.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// New builds an event from alternating key/value pairs.
func New(kind Kind, kv ...string) Event {
	e := Event{Kind: kind}
	if len(kv) > 0 {
		e.Attrs = make(map[string]string, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			e.Attrs[kv[i]] = kv[i+1]
		}
	}
	return e
}

// Nop discards every event.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

// Multi fans an event out to several sinks in order.
type Multi []Sink

func (m Multi) Emit(ctx context.Context, e Event) {
	for _, s := range m {
		s.Emit(ctx, e)
	}
}

// ZapSink writes events as structured log entries. Failure kinds are logged
// at warn, everything else at debug.
type ZapSink struct {
	lg *zap.Logger
}

// NewZapSink returns a sink writing to lg.
func NewZapSink(lg *zap.Logger) *ZapSink {
	return &ZapSink{lg: lg}
}

func (s *ZapSink) Emit(_ context.Context, e Event) {
	fields := make([]zap.Field, 0, len(e.Attrs)+1)
	fields = append(fields, zap.String("event", string(e.Kind)))
	for k, v := range e.Attrs {
		fields = append(fields, zap.String(k, v))
	}
	switch e.Kind {
	case CartPersistFailed, CartCorruptSnapshot, CartDriftRepaired, OrderFailed, PaymentFailed:
		s.lg.Warn("Checkout core event", fields...)
	default:
		s.lg.Debug("Checkout core event", fields...)
	}
}

// MeterSink counts events by kind on a single otel counter.
type MeterSink struct {
	events metric.Int64Counter
}

// NewMeterSink registers the kart.core.events counter on the given meter.
func NewMeterSink(m metric.Meter) (*MeterSink, error) {
	c, err := m.Int64Counter("kart.core.events",
		metric.WithDescription("Order-construction core events by kind"),
	)
	if err != nil {
		return nil, err
	}
	return &MeterSink{events: c}, nil
}

func (s *MeterSink) Emit(ctx context.Context, e Event) {
	s.events.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", string(e.Kind))))
}

// Recorder keeps every event in memory. Tests assert on it.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns how many events of kind were recorded.
func (r *Recorder) Count(kind Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

// Last returns the most recent event of kind.
func (r *Recorder) Last(kind Kind) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.events) - 1; i >= 0; i-- {
		if r.events[i].Kind == kind {
			return r.events[i], true
		}
	}
	return Event{}, false
}
