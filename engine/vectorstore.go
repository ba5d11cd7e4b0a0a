package engine

import (
	"sync"

	"github.com/google/uuid"

	"github.com/kvgo-db/kvgo/vector"
	"github.com/kvgo-db/kvgo/wire"
)

// vectorHandle is a transaction-scoped handle on a database vector store.
// Mutations buffer on the handle and publish only when the owning
// transaction commits; reads go against the committed store.
type vectorHandle struct {
	store *vector.Store

	mu      sync.Mutex
	pending []func(*vector.Store)
}

func (h *vectorHandle) queueUpsert(items []wire.VectorItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, it := range items {
		id := it.ID
		if id == "" {
			id = uuid.NewString()
		}
		vec := append([]float32(nil), it.Vector...)
		payload := it.Payload
		h.pending = append(h.pending, func(s *vector.Store) {
			s.Upsert(id, vec, payload)
		})
	}
}

func (h *vectorHandle) queueRemove(items []wire.VectorItem) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, it := range items {
		id := it.ID
		h.pending = append(h.pending, func(s *vector.Store) {
			s.Remove(id)
		})
	}
}

func (h *vectorHandle) apply() {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, fn := range pending {
		fn(h.store)
	}
}
