// Package bus implements the push-event subscription bus the engine consumes
// backend events through. It is injected into components explicitly so tests
// can drive them with synchronously published events.
package bus

import (
	"log/slog"
	"sync"
)

// Handler receives a decoded event payload.
type Handler func(payload any)

// Bus is the subscription surface components depend on.
type Bus interface {
	// Subscribe registers a handler for the named event and returns its
	// unsubscribe token. The token is idempotent.
	Subscribe(event string, h Handler) (unsubscribe func())
}

// Publisher is the delivery surface transports depend on.
type Publisher interface {
	Publish(event string, payload any)
}

type subscription struct {
	id      uint64
	handler Handler
}

// Dispatcher is the in-process Bus/Publisher implementation. Handlers for a
// given event name are invoked in subscription order; a handler panic is
// recovered and logged and does not prevent delivery to later handlers.
type Dispatcher struct {
	logger *slog.Logger

	mu     sync.Mutex
	nextID uint64
	subs   map[string][]subscription
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher(logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		logger: logger,
		subs:   make(map[string][]subscription),
	}
}

// Subscribe registers a handler for the named event.
func (d *Dispatcher) Subscribe(event string, h Handler) func() {
	d.mu.Lock()
	d.nextID++
	id := d.nextID
	d.subs[event] = append(d.subs[event], subscription{id: id, handler: h})
	d.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { d.remove(event, id) })
	}
}

func (d *Dispatcher) remove(event string, id uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	subs := d.subs[event]
	for i, s := range subs {
		if s.id == id {
			d.subs[event] = append(subs[:i:i], subs[i+1:]...)
			break
		}
	}
	if len(d.subs[event]) == 0 {
		delete(d.subs, event)
	}
}

// Publish delivers the payload to every handler subscribed to the event.
// Publishing an event with no subscribers is a no-op.
func (d *Dispatcher) Publish(event string, payload any) {
	d.mu.Lock()
	subs := make([]subscription, len(d.subs[event]))
	copy(subs, d.subs[event])
	d.mu.Unlock()

	for _, s := range subs {
		d.invoke(event, s, payload)
	}
}

// invoke runs a single handler, isolating panics from other handlers.
func (d *Dispatcher) invoke(event string, s subscription, payload any) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("event handler panicked", "event", event, "panic", r)
		}
	}()
	s.handler(payload)
}
