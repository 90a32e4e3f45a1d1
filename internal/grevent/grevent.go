// Package grevent implements the control plane's in-process event bus
// (§4.C): synchronous, exact-topic-match publish/subscribe with
// subscription-order delivery and no replay. It is a deliberately
// simplified descendant of caddyserver/caddy's modules/caddyevents/app.go,
// stripped of that package's DOM-style module-namespace propagation and
// CloudEvent envelope (no such semantics are called for here) but keeping
// its per-event UUID correlation id and structured logging.
package grevent

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/grout-project/groutd/internal/grlog"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

var (
	log    = grlog.Named("event")
	tracer = otel.Tracer("groutd/grevent")
)

// Event is delivered to every Handler subscribed to its Topic, in the
// order each Handler subscribed.
type Event struct {
	ID      uuid.UUID
	Topic   string
	Payload any
}

// Handler reacts to an Event. Handlers run synchronously on the publisher's
// goroutine, in subscription order; a Handler must not block.
type Handler func(ctx context.Context, ev Event)

// Bus is a topic-keyed registry of Handlers. The zero value is usable.
type Bus struct {
	mu   sync.RWMutex
	subs map[string][]Handler
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{subs: make(map[string][]Handler)}
}

// Subscribe registers handler to be called for every future Publish on
// topic, appended after any existing subscribers of that exact topic.
// There is no wildcard or prefix matching: the match is exact-string, per
// §4.C.
func (b *Bus) Subscribe(topic string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs == nil {
		b.subs = make(map[string][]Handler)
	}
	b.subs[topic] = append(b.subs[topic], handler)
}

// Publish delivers payload to every Handler subscribed to topic, in
// subscription order, synchronously on the calling goroutine. A Handler
// that panics does not prevent subsequent Handlers on the same topic from
// running; the panic is logged and swallowed, since the bus has no
// supervisor to report it to.
func (b *Bus) Publish(ctx context.Context, topic string, payload any) Event {
	ev := Event{ID: uuid.New(), Topic: topic, Payload: payload}

	ctx, span := tracer.Start(ctx, "event.publish")
	defer span.End()

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subs[topic]...)
	b.mu.RUnlock()

	log.Debug("publishing event",
		zap.String("topic", topic),
		zap.String("id", ev.ID.String()),
		zap.Int("subscribers", len(handlers)),
	)

	for _, h := range handlers {
		b.dispatchOne(ctx, h, ev)
	}
	return ev
}

func (b *Bus) dispatchOne(ctx context.Context, h Handler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("event handler panicked",
				zap.String("topic", ev.Topic),
				zap.String("id", ev.ID.String()),
				zap.Any("panic", r),
			)
		}
	}()
	h(ctx, ev)
}

// SubscriberCount reports how many handlers are currently subscribed to
// topic; it exists for tests and diagnostics.
func (b *Bus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[topic])
}
