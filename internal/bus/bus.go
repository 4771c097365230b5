// Package bus implements the in-process typed publish/subscribe
// registry every inbound frame is fanned out through.
package bus

import (
	"sync"

	"go.uber.org/zap"

	"github.com/motorlot/realtime-go/schema"
)

// Handler consumes one published event.
type Handler func(schema.Event)

// Bus routes events to subscribers by event type. Dispatch is
// synchronous on the publisher's goroutine so per-room frame order is
// preserved end to end.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[schema.EventType]map[uint64]Handler
	log    *zap.Logger
}

// New creates an empty bus.
func New(log *zap.Logger) *Bus {
	if log == nil {
		log = zap.NewNop()
	}
	return &Bus{
		subs: make(map[schema.EventType]map[uint64]Handler),
		log:  log,
	}
}

// Subscribe registers a handler for one event type and returns its
// unsubscribe func.
func (b *Bus) Subscribe(typ schema.EventType, h Handler) func() {
	if h == nil {
		return func() {}
	}
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	handlers, ok := b.subs[typ]
	if !ok {
		handlers = make(map[uint64]Handler)
		b.subs[typ] = handlers
	}
	handlers[id] = h
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		if handlers, ok := b.subs[typ]; ok {
			delete(handlers, id)
			if len(handlers) == 0 {
				delete(b.subs, typ)
			}
		}
		b.mu.Unlock()
	}
}

// Publish delivers the event to every subscriber of its type. A
// panicking handler is logged and isolated so it cannot break dispatch
// to the remaining subscribers.
func (b *Bus) Publish(evt schema.Event) {
	b.mu.RLock()
	handlers := make([]Handler, 0, len(b.subs[evt.Type]))
	for _, h := range b.subs[evt.Type] {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		b.dispatch(evt, h)
	}
}

func (b *Bus) dispatch(evt schema.Event, h Handler) {
	defer func() {
		if r := recover(); r != nil {
			b.log.Error("event handler panicked",
				zap.String("event", string(evt.Type)),
				zap.Any("panic", r))
		}
	}()
	h(evt)
}
