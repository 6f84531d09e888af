package bus

import "sync"

// Scope owns a set of subscriptions and tears them all down on Close. Every
// subscription made for a bounded lifetime (a view, a session) goes through a
// scope; a subscription that outlives its owner is a leak.
type Scope struct {
	bus Bus

	mu     sync.Mutex
	unsubs []func()
	closed bool
}

// NewScope creates an open scope over the given bus.
func NewScope(b Bus) *Scope {
	return &Scope{bus: b}
}

// Subscribe registers a handler whose lifetime is bound to the scope.
// Subscribing on a closed scope is a no-op.
func (s *Scope) Subscribe(event string, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.unsubs = append(s.unsubs, s.bus.Subscribe(event, h))
}

// Close unsubscribes everything registered through the scope. Idempotent.
func (s *Scope) Close() {
	s.mu.Lock()
	unsubs := s.unsubs
	s.unsubs = nil
	s.closed = true
	s.mu.Unlock()

	for _, unsub := range unsubs {
		unsub()
	}
}
