package usecase

import (
	"context"
	"fmt"
	"time"

	"ragctx/internal/domain"
	"ragctx/internal/logger"
	"ragctx/internal/port"
)

// AskOptions control one retrieval-augmented answer.
type AskOptions struct {
	Budget       int
	Overhead     int
	TopK         int
	SystemPrompt string
	Completion   domain.CompletionOptions
}

// AskUseCase answers questions from indexed passages: embed, consult the
// semantic cache, search, assemble, complete, then cache the answer.
type AskUseCase struct {
	retriever *RetrieveUseCase
	assembler *Assembler
	llm       port.CompletionProvider
	cache     port.AnswerCache
	opts      AskOptions
	log       logger.Logger
}

// NewAskUseCase creates an ask use case. cache may be nil.
func NewAskUseCase(
	retriever *RetrieveUseCase,
	assembler *Assembler,
	llm port.CompletionProvider,
	cache port.AnswerCache,
	opts AskOptions,
	log logger.Logger,
) *AskUseCase {
	if log == nil {
		log = logger.Discard()
	}
	return &AskUseCase{
		retriever: retriever,
		assembler: assembler,
		llm:       llm,
		cache:     cache,
		opts:      opts,
		log:       log,
	}
}

// Ask answers a single question with no conversation history.
func (u *AskUseCase) Ask(ctx context.Context, query string) (domain.Answer, error) {
	return u.answer(ctx, query, nil, nil)
}

// Prepare embeds, searches and assembles without calling the model.
func (u *AskUseCase) Prepare(ctx context.Context, query string) (domain.AssembledPrompt, error) {
	vector, err := u.retriever.Embed(ctx, query)
	if err != nil {
		return domain.AssembledPrompt{}, err
	}
	return u.prepare(ctx, query, vector)
}

func (u *AskUseCase) prepare(ctx context.Context, query string, vector []float32) (domain.AssembledPrompt, error) {
	candidates, err := u.retriever.SearchVector(ctx, vector, u.opts.TopK)
	if err != nil {
		return domain.AssembledPrompt{}, err
	}
	prompt, err := u.assembler.Assemble(query, candidates, u.opts.Budget, u.opts.Overhead)
	if err != nil {
		return domain.AssembledPrompt{}, fmt.Errorf("assemble prompt: %w", err)
	}
	u.log.Debug("assembled prompt",
		"candidates", len(candidates),
		"included", prompt.Included,
		"tokens", prompt.UsedTokens,
		"available", prompt.Available)
	return prompt, nil
}

// fitFunc adjusts the final message list before it is sent, e.g. to trim
// conversation history.
type fitFunc func([]domain.Message) ([]domain.Message, error)

func (u *AskUseCase) answer(ctx context.Context, query string, history []domain.Message, fit fitFunc) (domain.Answer, error) {
	start := time.Now()

	vector, err := u.retriever.Embed(ctx, query)
	if err != nil {
		return domain.Answer{}, err
	}

	// Cached answers are keyed on the question alone, so they are only
	// valid without conversation history.
	useCache := u.cache != nil && len(history) == 0

	if useCache {
		hit, ok, err := u.cache.Lookup(ctx, vector)
		switch {
		case err != nil:
			u.log.Warn("answer cache lookup failed", "error", err)
		case ok:
			u.log.Debug("answer cache hit", "distance", hit.Distance)
			return domain.Answer{
				Query:    query,
				Text:     hit.Response,
				Cached:   true,
				Duration: time.Since(start),
			}, nil
		}
	}

	prompt, err := u.prepare(ctx, query, vector)
	if err != nil {
		return domain.Answer{}, err
	}

	msgs := make([]domain.Message, 0, len(history)+2)
	if u.opts.SystemPrompt != "" {
		msgs = append(msgs, domain.Message{Role: domain.RoleSystem, Content: u.opts.SystemPrompt})
	}
	msgs = append(msgs, history...)
	msgs = append(msgs, domain.Message{Role: domain.RoleUser, Content: prompt.Prompt})

	if fit != nil {
		if msgs, err = fit(msgs); err != nil {
			return domain.Answer{}, err
		}
	}

	completion, err := u.llm.Complete(ctx, msgs, u.opts.Completion)
	if err != nil {
		return domain.Answer{}, fmt.Errorf("complete: %w", err)
	}

	if useCache {
		if err := u.cache.Store(ctx, query, vector, completion.Text); err != nil {
			u.log.Warn("answer cache store failed", "error", err)
		}
	}

	return domain.Answer{
		Query:    query,
		Text:     completion.Text,
		Prompt:   prompt,
		Usage:    completion.Usage,
		Duration: time.Since(start),
	}, nil
}

// ChatSession keeps a conversation across questions. History holds the raw
// questions and answers; retrieved passages are only sent with the newest
// question. The oldest turns are dropped when the conversation outgrows
// the token budget.
type ChatSession struct {
	ask     *AskUseCase
	counter *MessageCounter
	history []domain.Message
}

// NewChatSession starts an empty conversation.
func NewChatSession(ask *AskUseCase, counter *MessageCounter) *ChatSession {
	return &ChatSession{ask: ask, counter: counter}
}

// Send answers query in the context of the previous turns.
func (s *ChatSession) Send(ctx context.Context, query string) (domain.Answer, error) {
	limit := s.ask.opts.Budget
	maxResponse := s.ask.opts.Completion.MaxTokens
	kept := len(s.history)

	fit := func(msgs []domain.Message) ([]domain.Message, error) {
		trimmed, err := s.counter.TrimHistory(msgs, limit, maxResponse)
		if err != nil {
			return nil, err
		}
		kept -= len(msgs) - len(trimmed)
		return trimmed, nil
	}

	answer, err := s.ask.answer(ctx, query, s.history, fit)
	if err != nil {
		return domain.Answer{}, err
	}

	if kept < len(s.history) {
		s.history = s.history[len(s.history)-max(kept, 0):]
	}
	s.history = append(s.history,
		domain.Message{Role: domain.RoleUser, Content: query},
		domain.Message{Role: domain.RoleAssistant, Content: answer.Text},
	)
	return answer, nil
}

// History returns a copy of the conversation so far.
func (s *ChatSession) History() []domain.Message {
	return append([]domain.Message(nil), s.history...)
}

// Reset forgets the conversation.
func (s *ChatSession) Reset() {
	s.history = nil
}
