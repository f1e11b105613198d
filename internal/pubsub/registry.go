// Package pubsub provides a typed publish/subscribe registry keyed by event
// kind.
package pubsub

import (
	"sync"

	"github.com/rs/zerolog/log"
)

type subscriber[V any] struct {
	id      uint64
	handler func(V)
}

// Registry maps event kinds to subscriber sets. Emit dispatches to a
// snapshot of the set, so handlers may subscribe or unsubscribe while being
// called.
type Registry[K comparable, V any] struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[K][]subscriber[V]
}

// New returns an empty registry.
func New[K comparable, V any]() *Registry[K, V] {
	return &Registry[K, V]{subs: make(map[K][]subscriber[V])}
}

// Subscribe registers handler for kind and returns a function removing it.
// Calling the returned function more than once is a no-op.
func (r *Registry[K, V]) Subscribe(kind K, handler func(V)) func() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	id := r.nextID
	r.subs[kind] = append(r.subs[kind], subscriber[V]{id: id, handler: handler})

	var once sync.Once
	return func() {
		once.Do(func() { r.remove(kind, id) })
	}
}

func (r *Registry[K, V]) remove(kind K, id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs := r.subs[kind]
	for i := range subs {
		if subs[i].id != id {
			continue
		}

		next := make([]subscriber[V], 0, len(subs)-1)
		next = append(next, subs[:i]...)
		next = append(next, subs[i+1:]...)
		if len(next) == 0 {
			delete(r.subs, kind)
		} else {
			r.subs[kind] = next
		}

		return
	}
}

// Emit calls every handler subscribed to kind. A panicking handler is
// logged and does not prevent delivery to the others.
func (r *Registry[K, V]) Emit(kind K, value V) {
	r.mu.Lock()
	snapshot := r.subs[kind]
	r.mu.Unlock()

	for _, sub := range snapshot {
		dispatch(kind, sub.handler, value)
	}
}

func dispatch[K comparable, V any](kind K, handler func(V), value V) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Interface("event", kind).Interface("panic", rec).Msg("Event handler panicked")
		}
	}()

	handler(value)
}

// Count returns the number of handlers subscribed to kind.
func (r *Registry[K, V]) Count(kind K) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.subs[kind])
}

// Clear removes every subscription.
func (r *Registry[K, V]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.subs = make(map[K][]subscriber[V])
}
