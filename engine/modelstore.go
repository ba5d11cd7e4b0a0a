package engine

import (
	"sort"
	"sync"
)

// modelStore is a named document store for model blobs, keyed by name.
type modelStore struct {
	mu     sync.Mutex
	models map[string][]byte
}

func newModelStore() *modelStore {
	return &modelStore{models: make(map[string][]byte)}
}

func (m *modelStore) save(name string, blob []byte) {
	m.mu.Lock()
	m.models[name] = blob
	m.mu.Unlock()
}

func (m *modelStore) get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	blob, ok := m.models[name]
	return blob, ok
}

func (m *modelStore) delete(name string) {
	m.mu.Lock()
	delete(m.models, name)
	m.mu.Unlock()
}

func (m *modelStore) names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.models))
	for name := range m.models {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (m *modelStore) len() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int64(len(m.models))
}

// modelHandle is the transaction-scoped view of a model store: saves and
// deletes buffer until commit, reads see the pending overlay first.
type modelHandle struct {
	store *modelStore

	mu      sync.Mutex
	saves   map[string][]byte
	deletes map[string]struct{}
}

func (h *modelHandle) queueSave(name string, blob []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.saves == nil {
		h.saves = make(map[string][]byte)
	}
	h.saves[name] = blob
	delete(h.deletes, name)
}

func (h *modelHandle) queueDelete(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.deletes == nil {
		h.deletes = make(map[string]struct{})
	}
	h.deletes[name] = struct{}{}
	delete(h.saves, name)
}

func (h *modelHandle) get(name string) ([]byte, bool) {
	h.mu.Lock()
	if blob, ok := h.saves[name]; ok {
		h.mu.Unlock()
		return blob, true
	}
	if _, gone := h.deletes[name]; gone {
		h.mu.Unlock()
		return nil, false
	}
	h.mu.Unlock()
	return h.store.get(name)
}

func (h *modelHandle) list() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]struct{})
	for _, name := range h.store.names() {
		if _, gone := h.deletes[name]; gone {
			continue
		}
		seen[name] = struct{}{}
	}
	for name := range h.saves {
		seen[name] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (h *modelHandle) count() int64 {
	return int64(len(h.list()))
}

func (h *modelHandle) apply() {
	h.mu.Lock()
	saves, deletes := h.saves, h.deletes
	h.saves, h.deletes = nil, nil
	h.mu.Unlock()
	for name := range deletes {
		h.store.delete(name)
	}
	for name, blob := range saves {
		h.store.save(name, blob)
	}
}
