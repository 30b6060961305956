// Package state holds the observable containers the components publish
// through: a Cell carries the latest value of a view, a Queue carries
// notices that must be consumed exactly once.
package state

import "sync"

// Cell is a single-writer observable value. Set replaces the value as a
// whole; observers never see a partially updated value.
type Cell[T any] struct {
	mu        sync.RWMutex
	value     T
	observers map[int]func(T)
	next      int
}

func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{value: initial, observers: make(map[int]func(T))}
}

func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set stores v and calls every observer with it. Observers run on the
// caller's goroutine and must not block.
func (c *Cell[T]) Set(v T) {
	c.mu.Lock()
	c.value = v
	observers := make([]func(T), 0, len(c.observers))
	for _, fn := range c.observers {
		observers = append(observers, fn)
	}
	c.mu.Unlock()

	for _, fn := range observers {
		fn(v)
	}
}

// Subscribe registers fn and immediately calls it with the current value.
// The returned func removes the observer; calling it twice is harmless.
func (c *Cell[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.next
	c.next++
	c.observers[id] = fn
	current := c.value
	c.mu.Unlock()

	fn(current)

	return func() {
		c.mu.Lock()
		delete(c.observers, id)
		c.mu.Unlock()
	}
}
