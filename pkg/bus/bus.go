package bus

import (
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

// Event is a single message delivered to subscribers of a (topic, tenant) pair.
type Event struct {
	ID       string         `json:"id"`
	Topic    string         `json:"topic"`
	TenantID string         `json:"tenantId"`
	Payload  map[string]any `json:"payload"`
	Time     time.Time      `json:"time"`
}

// Handler handles a published event. Handlers run synchronously in publish
// order; a panicking handler is recovered and does not affect the others.
type Handler func(event Event)

// Subscription identifies a registered handler so it can be cancelled
// individually, without tearing down other handlers on the same key.
type Subscription struct {
	bus     *Bus
	key     subKey
	id      uint64
	handler Handler
}

// Cancel removes this subscription from the bus. Safe to call twice.
func (s *Subscription) Cancel() {
	s.bus.cancel(s)
}

type subKey struct {
	topic    string
	tenantID string
}

// Bus is an in-process publish/subscribe channel scoped by topic and tenant.
// Delivery is best-effort and non-persistent: events published while nobody
// is subscribed are lost, and that is acceptable by contract.
type Bus struct {
	mu     sync.RWMutex
	subs   map[subKey][]*Subscription
	nextID uint64
	logger zerolog.Logger
}

// New creates a new event bus.
func New(logger zerolog.Logger) *Bus {
	return &Bus{
		subs:   make(map[subKey][]*Subscription),
		logger: logger.With().Str("component", "event-bus").Logger(),
	}
}

// Subscribe registers a handler for the (topic, tenantID) pair.
func (b *Bus) Subscribe(topic, tenantID string, handler Handler) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	key := subKey{topic: topic, tenantID: tenantID}
	b.nextID++
	sub := &Subscription{
		bus:     b,
		key:     key,
		id:      b.nextID,
		handler: handler,
	}
	b.subs[key] = append(b.subs[key], sub)

	b.logger.Debug().
		Str("topic", topic).
		Str("tenant", tenantID).
		Msg("Subscribed")

	return sub
}

// Unsubscribe removes all handlers registered for the (topic, tenantID) pair.
func (b *Bus) Unsubscribe(topic, tenantID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subs, subKey{topic: topic, tenantID: tenantID})
}

// Publish delivers an event to every handler subscribed under exactly this
// (topic, tenantID) pair. Fire-and-forget: the publisher gets no delivery
// report, and a failing handler never prevents the remaining handlers from
// running. Returns the number of handlers invoked.
func (b *Bus) Publish(topic, tenantID string, payload map[string]any) int {
	b.mu.RLock()
	subs := b.subs[subKey{topic: topic, tenantID: tenantID}]
	handlers := make([]Handler, len(subs))
	for i, sub := range subs {
		handlers[i] = sub.handler
	}
	b.mu.RUnlock()

	if len(handlers) == 0 {
		return 0
	}

	id, err := gonanoid.New()
	if err != nil {
		id = ""
	}

	event := Event{
		ID:       id,
		Topic:    topic,
		TenantID: tenantID,
		Payload:  payload,
		Time:     time.Now(),
	}

	for _, handler := range handlers {
		b.invoke(handler, event)
	}

	return len(handlers)
}

// invoke runs a single handler with panic isolation.
func (b *Bus) invoke(handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error().
				Interface("panic", r).
				Str("topic", event.Topic).
				Str("tenant", event.TenantID).
				Str("event", event.ID).
				Msg("Subscriber panicked")
		}
	}()
	handler(event)
}

// SubscriberCount returns the number of handlers for a (topic, tenantID) pair.
func (b *Bus) SubscriberCount(topic, tenantID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[subKey{topic: topic, tenantID: tenantID}])
}

func (b *Bus) cancel(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subs[sub.key]
	for i, s := range subs {
		if s.id == sub.id {
			b.subs[sub.key] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(b.subs[sub.key]) == 0 {
		delete(b.subs, sub.key)
	}
}
