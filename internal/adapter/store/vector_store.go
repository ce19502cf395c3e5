package store

import (
	"sync"

	"ragctx/internal/adapter/vecmath"
)

// vectorIndex is the in-memory mirror of the vectors bucket.
// Uses brute-force search for simplicity; can be replaced with HNSW for larger indexes.
type vectorIndex struct {
	mu      sync.RWMutex
	vectors map[string][]float32
}

func newVectorIndex() *vectorIndex {
	return &vectorIndex{vectors: make(map[string][]float32)}
}

func (x *vectorIndex) put(id string, v []float32) {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors[id] = v
}

func (x *vectorIndex) delete(ids ...string) {
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, id := range ids {
		delete(x.vectors, id)
	}
}

func (x *vectorIndex) reset() {
	x.mu.Lock()
	defer x.mu.Unlock()
	x.vectors = make(map[string][]float32)
}

func (x *vectorIndex) len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.vectors)
}

// search returns the k ids nearest to query by cosine similarity.
func (x *vectorIndex) search(query []float32, k int) []vecmath.Scored {
	x.mu.RLock()
	scores := make([]vecmath.Scored, 0, len(x.vectors))
	for id, v := range x.vectors {
		scores = append(scores, vecmath.Scored{ID: id, Score: vecmath.CosineSimilarity(query, v)})
	}
	x.mu.RUnlock()

	return vecmath.TopK(scores, k)
}
