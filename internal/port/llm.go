package port

import (
	"context"

	"ragctx/internal/domain"
)

// CompletionProvider turns a chat transcript into generated text.
type CompletionProvider interface {
	Complete(ctx context.Context, messages []domain.Message, opts domain.CompletionOptions) (domain.Completion, error)

	// ModelName returns the name of the model or deployment.
	ModelName() string
}

// AnswerCache is a semantic cache keyed by prompt embeddings.
type AnswerCache interface {
	// Lookup returns the closest cached answer within the cache's distance
	// threshold.
	Lookup(ctx context.Context, vector []float32) (domain.CachedAnswer, bool, error)

	Store(ctx context.Context, prompt string, vector []float32, response string) error

	// Invalidate drops every entry. Answers go stale when the index changes.
	Invalidate(ctx context.Context) error
}
