// Package event provides a small synchronous publish/subscribe bus used to
// fan adapter callbacks and controller state changes out to their listeners.
package event

import (
	"slices"
	"sync"
)

// Bus delivers published values to every registered handler, in the
// publisher's goroutine. The zero value is ready to use.
type Bus[T any] struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]func(T)
}

// Subscribe registers fn and returns a function that removes it again.
// The returned function is safe to call more than once.
func (b *Bus[T]) Subscribe(fn func(T)) (unsubscribe func()) {
	b.mu.Lock()
	if b.subs == nil {
		b.subs = make(map[uint64]func(T))
	}
	b.nextID++
	id := b.nextID
	b.subs[id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Publish calls every handler registered at the time of the call.
// Handlers run without the bus lock held, so they may subscribe or
// unsubscribe themselves.
func (b *Bus[T]) Publish(v T) {
	b.mu.RLock()
	ids := make([]uint64, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.RUnlock()

	// Deliver in subscription order.
	slices.Sort(ids)
	for _, id := range ids {
		b.mu.RLock()
		fn, ok := b.subs[id]
		b.mu.RUnlock()
		if ok {
			fn(v)
		}
	}
}

// Len returns the number of registered handlers.
func (b *Bus[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
