package usecase

import (
	"context"
	"errors"
	"fmt"

	"ragctx/internal/domain"
	"ragctx/internal/port"
)

// RetrieveUseCase handles search and retrieval operations.
type RetrieveUseCase struct {
	embedder          port.Embedder
	store             port.PassageStore
	minScoreThreshold float64 // Filter results below this score (0 = disabled)
}

// NewRetrieveUseCase creates a new retrieve use case.
func NewRetrieveUseCase(
	embedder port.Embedder,
	store port.PassageStore,
	minScoreThreshold float64,
) *RetrieveUseCase {
	return &RetrieveUseCase{
		embedder:          embedder,
		store:             store,
		minScoreThreshold: minScoreThreshold,
	}
}

// Embed returns the embedding of a single query.
func (u *RetrieveUseCase) Embed(ctx context.Context, query string) ([]float32, error) {
	vectors, err := u.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, errors.New("embed query: provider returned no vector")
	}
	return vectors[0], nil
}

// Search embeds query and returns the topK most similar passages.
func (u *RetrieveUseCase) Search(ctx context.Context, query string, topK int) ([]domain.Passage, error) {
	vector, err := u.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return u.SearchVector(ctx, vector, topK)
}

// SearchVector returns the topK passages most similar to an existing query
// embedding, best first.
func (u *RetrieveUseCase) SearchVector(ctx context.Context, vector []float32, topK int) ([]domain.Passage, error) {
	results, err := u.store.Search(ctx, vector, topK)
	if err != nil {
		return nil, fmt.Errorf("search passages: %w", err)
	}

	if u.minScoreThreshold > 0 {
		results = u.filterByThreshold(results)
	}

	return results, nil
}

// filterByThreshold removes results below the minimum score threshold.
func (u *RetrieveUseCase) filterByThreshold(results []domain.Passage) []domain.Passage {
	filtered := make([]domain.Passage, 0, len(results))
	for _, r := range results {
		if r.Score >= u.minScoreThreshold {
			filtered = append(filtered, r)
		}
	}
	return filtered
}
