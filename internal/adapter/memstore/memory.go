package memstore

import (
	"context"
	"fmt"
	"sync"

	"ragctx/internal/adapter/vecmath"
	"ragctx/internal/domain"
)

// MemoryStore is a process-local PassageStore. Search is brute-force cosine
// similarity.
type MemoryStore struct {
	mu          sync.RWMutex
	passages    map[string]domain.StoredPassage
	docPassages map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		passages:    make(map[string]domain.StoredPassage),
		docPassages: make(map[string][]string),
	}
}

func (s *MemoryStore) Upsert(ctx context.Context, passages []domain.StoredPassage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range passages {
		if p.ID == "" {
			return fmt.Errorf("passage without id in document %s", p.DocID)
		}
		if _, exists := s.passages[p.ID]; !exists {
			s.docPassages[p.DocID] = append(s.docPassages[p.DocID], p.ID)
		}
		s.passages[p.ID] = p
	}
	return nil
}

func (s *MemoryStore) Search(ctx context.Context, query []float32, k int) ([]domain.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	scores := make([]vecmath.Scored, 0, len(s.passages))
	for id, p := range s.passages {
		scores = append(scores, vecmath.Scored{ID: id, Score: vecmath.CosineSimilarity(query, p.Vector)})
	}

	top := vecmath.TopK(scores, k)
	results := make([]domain.Passage, len(top))
	for i, sc := range top {
		results[i] = s.passages[sc.ID].Passage(sc.Score)
	}
	return results, nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, docID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, id := range s.docPassages[docID] {
		delete(s.passages, id)
	}
	delete(s.docPassages, docID)
	return nil
}

func (s *MemoryStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.passages), nil
}

func (s *MemoryStore) Close() error {
	return nil
}
