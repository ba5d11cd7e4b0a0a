package engine

import (
	"sync"

	"github.com/google/uuid"
)

// registry is a UUID-keyed handle registry. The UUID string is the only
// thing a client ever holds; everything stateful stays on this side.
type registry[T any] struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]T
}

func newRegistry[T any]() *registry[T] {
	return &registry[T]{byID: make(map[uuid.UUID]T)}
}

// add registers v under a fresh UUID and returns it.
func (r *registry[T]) add(v T) uuid.UUID {
	id := uuid.New()
	r.mu.Lock()
	r.byID[id] = v
	r.mu.Unlock()
	return id
}

func (r *registry[T]) get(id uuid.UUID) (T, bool) {
	r.mu.RLock()
	v, ok := r.byID[id]
	r.mu.RUnlock()
	return v, ok
}

func (r *registry[T]) remove(id uuid.UUID) {
	r.mu.Lock()
	delete(r.byID, id)
	r.mu.Unlock()
}

func (r *registry[T]) values() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]T, 0, len(r.byID))
	for _, v := range r.byID {
		out = append(out, v)
	}
	return out
}
