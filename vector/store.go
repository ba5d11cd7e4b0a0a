// Package vector provides the similarity store attached to a database:
// exact cosine search over an in-memory collection.
package vector

import (
	"math"
	"sort"
	"sync"
)

// Match is one scored search result.
type Match struct {
	ID      string
	Score   float32
	Payload any
}

type item struct {
	vector  []float32
	norm    float32
	payload any
}

// Store is a brute-force vector store. Exact search keeps semantics simple;
// collections here are per-database working sets, not billion-scale
// corpora.
type Store struct {
	mu    sync.RWMutex
	items map[string]item
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{items: make(map[string]item)}
}

// Upsert inserts or replaces a vector under id.
func (s *Store) Upsert(id string, vector []float32, payload any) {
	s.mu.Lock()
	s.items[id] = item{
		vector:  vector,
		norm:    norm(vector),
		payload: payload,
	}
	s.mu.Unlock()
}

// Remove drops a vector. Reports whether it existed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.items[id]
	delete(s.items, id)
	return ok
}

// Search returns the k nearest vectors by cosine similarity. A zero k means
// all of them.
func (s *Store) Search(query []float32, k int) []Match {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qn := norm(query)
	if qn == 0 {
		return nil
	}

	matches := make([]Match, 0, len(s.items))
	for id, it := range s.items {
		if it.norm == 0 {
			continue
		}
		matches = append(matches, Match{
			ID:      id,
			Score:   dot(query, it.vector) / (qn * it.norm),
			Payload: it.payload,
		})
	}
	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Score != matches[j].Score {
			return matches[i].Score > matches[j].Score
		}
		return matches[i].ID < matches[j].ID
	})
	if k > 0 && len(matches) > k {
		matches = matches[:k]
	}
	return matches
}

// Count reports the number of stored vectors.
func (s *Store) Count() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.items))
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}

func norm(v []float32) float32 {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	return float32(math.Sqrt(float64(sum)))
}
