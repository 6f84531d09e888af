// Package state holds the authoritative local copy of each entity collection
// and its derived filtered/sorted views. Mutation is always a full snapshot
// replacement, never in-place edits, so readers mid-render see a consistent
// slice.
package state

import "sync"

// Entity is anything addressable by a stable opaque id.
type Entity interface {
	EntityID() string
}

// Collection is a copy-on-write store for one entity collection. Optimistic
// local mutations (Upsert, Remove, Patch) apply immediately; authoritative
// state arrives only via Replace after a refetch or an event-driven patch.
type Collection[T Entity] struct {
	mu    sync.RWMutex
	items []T
}

// NewCollection creates an empty collection.
func NewCollection[T Entity]() *Collection[T] {
	return &Collection[T]{}
}

// Snapshot returns the current immutable snapshot. Callers must not modify
// the returned slice.
func (c *Collection[T]) Snapshot() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.items
}

// Len returns the number of items in the current snapshot.
func (c *Collection[T]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Get returns the item with the given id.
func (c *Collection[T]) Get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, item := range c.items {
		if item.EntityID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// Replace installs a fresh authoritative snapshot.
func (c *Collection[T]) Replace(items []T) {
	next := make([]T, len(items))
	copy(next, items)

	c.mu.Lock()
	c.items = next
	c.mu.Unlock()
}

// Upsert replaces the item with a matching id, or appends it.
func (c *Collection[T]) Upsert(item T) {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := make([]T, len(c.items), len(c.items)+1)
	copy(next, c.items)

	for i, existing := range next {
		if existing.EntityID() == item.EntityID() {
			next[i] = item
			c.items = next
			return
		}
	}
	c.items = append(next, item)
}

// Remove deletes the item with the given id, preserving order.
func (c *Collection[T]) Remove(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, item := range c.items {
		if item.EntityID() == id {
			next := make([]T, 0, len(c.items)-1)
			next = append(next, c.items[:i]...)
			next = append(next, c.items[i+1:]...)
			c.items = next
			return true
		}
	}
	return false
}

// Patch applies fn to the item with the given id, replacing the snapshot.
func (c *Collection[T]) Patch(id string, fn func(T) T) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	for i, item := range c.items {
		if item.EntityID() == id {
			next := make([]T, len(c.items))
			copy(next, c.items)
			next[i] = fn(item)
			c.items = next
			return true
		}
	}
	return false
}
