package engine

import (
	"sync"

	"github.com/kvgo-db/kvgo/search"
	"github.com/kvgo-db/kvgo/wire"
)

// searchHandle is a transaction-scoped handle on a database search index.
// Document adds and removes buffer until commit; queries run against the
// committed index.
type searchHandle struct {
	index *search.MemoryIndex

	mu      sync.Mutex
	pending []func(*search.MemoryIndex)
}

func (h *searchHandle) queueAdd(doc wire.SearchDoc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, text := doc.ID, doc.Text
	h.pending = append(h.pending, func(idx *search.MemoryIndex) {
		idx.AddDocument(id, text)
	})
}

func (h *searchHandle) queueRemove(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.pending = append(h.pending, func(idx *search.MemoryIndex) {
		idx.RemoveDocument(id)
	})
}

func (h *searchHandle) apply() {
	h.mu.Lock()
	pending := h.pending
	h.pending = nil
	h.mu.Unlock()
	for _, fn := range pending {
		fn(h.index)
	}
}
