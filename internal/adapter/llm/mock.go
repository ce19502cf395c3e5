package llm

import (
	"context"
	"strings"
	"sync"

	"ragctx/internal/domain"
)

// MockProvider answers without a network call. By default it echoes the
// last user message; set Reply to return a fixed text, or Err to fail.
type MockProvider struct {
	Reply string
	Err   error

	mu    sync.Mutex
	calls [][]domain.Message
}

func NewMockProvider() *MockProvider {
	return &MockProvider{}
}

func (p *MockProvider) Complete(ctx context.Context, msgs []domain.Message, opts domain.CompletionOptions) (domain.Completion, error) {
	if err := ctx.Err(); err != nil {
		return domain.Completion{}, err
	}

	p.mu.Lock()
	p.calls = append(p.calls, append([]domain.Message(nil), msgs...))
	p.mu.Unlock()

	if p.Err != nil {
		return domain.Completion{}, p.Err
	}

	text := p.Reply
	if text == "" {
		for i := len(msgs) - 1; i >= 0; i-- {
			if msgs[i].Role == domain.RoleUser {
				text = "echo: " + msgs[i].Content
				break
			}
		}
	}

	prompt := 0
	for _, m := range msgs {
		prompt += len(strings.Fields(m.Content))
	}
	completion := len(strings.Fields(text))
	return domain.Completion{
		Text:  text,
		Model: "mock",
		Usage: domain.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		},
	}, nil
}

func (p *MockProvider) ModelName() string {
	return "mock"
}

// Calls returns the message lists received so far.
func (p *MockProvider) Calls() [][]domain.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][]domain.Message(nil), p.calls...)
}
