package port

import "ragctx/internal/domain"

// Chunker splits a loaded document into passages for embedding. Chunks must
// be returned in document order with Seq set.
type Chunker interface {
	Chunk(doc domain.Document, content string) ([]domain.Chunk, error)
}
