// Package search provides the in-memory keyword index attached to a
// database: BM25 ranking over roaring-bitmap postings.
package search

import (
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	k1 = 1.2
	b  = 0.75
)

// Hit is one ranked query result.
type Hit struct {
	ID    string
	Score float64
}

// MemoryIndex is an in-memory BM25 index. Postings are roaring bitmaps over
// internal document numbers; term frequencies ride in a sidecar map.
type MemoryIndex struct {
	mu       sync.RWMutex
	postings map[string]*roaring.Bitmap
	tf       map[string]map[uint32]int

	nextDoc    uint32
	docIDs     map[string]uint32
	docNames   map[uint32]string
	docLengths map[uint32]int

	totalLength int64
}

// NewMemoryIndex creates an empty index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{
		postings:   make(map[string]*roaring.Bitmap),
		tf:         make(map[string]map[uint32]int),
		docIDs:     make(map[string]uint32),
		docNames:   make(map[uint32]string),
		docLengths: make(map[uint32]int),
	}
}

// Very simple tokenizer: lowercase and split by whitespace.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// AddDocument indexes a document, replacing any previous content under the
// same id.
func (idx *MemoryIndex) AddDocument(id, text string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if doc, ok := idx.docIDs[id]; ok {
		idx.removeLocked(id, doc)
	}

	doc := idx.nextDoc
	idx.nextDoc++
	idx.docIDs[id] = doc
	idx.docNames[doc] = id

	tokens := tokenize(text)
	idx.docLengths[doc] = len(tokens)
	idx.totalLength += int64(len(tokens))

	counts := make(map[string]int)
	for _, t := range tokens {
		counts[t]++
	}
	for t, count := range counts {
		bm, ok := idx.postings[t]
		if !ok {
			bm = roaring.New()
			idx.postings[t] = bm
			idx.tf[t] = make(map[uint32]int)
		}
		bm.Add(doc)
		idx.tf[t][doc] = count
	}
}

// RemoveDocument drops a document. Reports whether it was indexed.
func (idx *MemoryIndex) RemoveDocument(id string) bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	doc, ok := idx.docIDs[id]
	if !ok {
		return false
	}
	idx.removeLocked(id, doc)
	return true
}

func (idx *MemoryIndex) removeLocked(id string, doc uint32) {
	for t, bm := range idx.postings {
		if !bm.Contains(doc) {
			continue
		}
		bm.Remove(doc)
		delete(idx.tf[t], doc)
		if bm.IsEmpty() {
			delete(idx.postings, t)
			delete(idx.tf, t)
		}
	}
	idx.totalLength -= int64(idx.docLengths[doc])
	delete(idx.docLengths, doc)
	delete(idx.docNames, doc)
	delete(idx.docIDs, id)
}

// Query returns the top k documents by BM25 score. A zero k means all
// matching documents.
func (idx *MemoryIndex) Query(text string, k int) []Hit {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docIDs)
	if n == 0 {
		return nil
	}
	avgLen := float64(idx.totalLength) / float64(n)

	scores := make(map[uint32]float64)
	for _, t := range tokenize(text) {
		bm, ok := idx.postings[t]
		if !ok {
			continue
		}
		df := float64(bm.GetCardinality())
		idf := math.Log(1 + (float64(n)-df+0.5)/(df+0.5))

		it := bm.Iterator()
		for it.HasNext() {
			doc := it.Next()
			f := float64(idx.tf[t][doc])
			norm := 1 - b + b*float64(idx.docLengths[doc])/avgLen
			scores[doc] += idf * (f * (k1 + 1)) / (f + k1*norm)
		}
	}

	hits := make([]Hit, 0, len(scores))
	for doc, score := range scores {
		hits = append(hits, Hit{ID: idx.docNames[doc], Score: score})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ID < hits[j].ID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// Count reports the number of indexed documents.
func (idx *MemoryIndex) Count() int64 {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return int64(len(idx.docIDs))
}
