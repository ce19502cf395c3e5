package port

import (
	"context"

	"ragctx/internal/domain"
)

// PassageStore persists embedded passages and answers similarity queries.
type PassageStore interface {
	// Upsert adds or replaces passages.
	Upsert(ctx context.Context, passages []domain.StoredPassage) error

	// Search returns the k passages most similar to the query vector,
	// ordered by descending score.
	Search(ctx context.Context, query []float32, k int) ([]domain.Passage, error)

	// DeleteDocument removes every passage belonging to docID.
	DeleteDocument(ctx context.Context, docID string) error

	// Count returns the number of stored passages.
	Count(ctx context.Context) (int, error)

	Close() error
}
