// Package llm implements chat completion providers.
package llm

import (
	"context"
	"errors"
	"fmt"

	"ragctx/internal/adapter/openaiapi"
	"ragctx/internal/domain"
)

type chatRequest struct {
	Model       string           `json:"model,omitempty"`
	Messages    []domain.Message `json:"messages"`
	Temperature float64          `json:"temperature"`
	TopP        float64          `json:"top_p,omitempty"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
}

type chatResponse struct {
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   domain.Usage `json:"usage"`
}

type chatChoice struct {
	Index        int            `json:"index"`
	Message      domain.Message `json:"message"`
	FinishReason string         `json:"finish_reason"`
}

// ChatProvider calls the chat completions endpoint of OpenAI or an Azure
// OpenAI deployment.
type ChatProvider struct {
	client *openaiapi.Client
	model  string
}

// NewChatProvider creates a provider. For Azure, model is the deployment name.
func NewChatProvider(cfg openaiapi.Config, model string) (*ChatProvider, error) {
	if model == "" {
		return nil, errors.New("completion model is required")
	}
	client, err := openaiapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("completion client: %w", err)
	}
	return &ChatProvider{client: client, model: model}, nil
}

func (p *ChatProvider) Complete(ctx context.Context, msgs []domain.Message, opts domain.CompletionOptions) (domain.Completion, error) {
	req := chatRequest{
		Messages:    msgs,
		Temperature: opts.Temperature,
		TopP:        opts.TopP,
		MaxTokens:   opts.MaxTokens,
	}
	if p.client.Provider() != openaiapi.ProviderAzure {
		req.Model = p.model
	}

	var resp chatResponse
	if err := p.client.Post(ctx, p.model, "/chat/completions", req, &resp); err != nil {
		return domain.Completion{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, errors.New("chat completion: no choices returned")
	}

	model := resp.Model
	if model == "" {
		model = p.model
	}
	return domain.Completion{
		Text:  resp.Choices[0].Message.Content,
		Model: model,
		Usage: resp.Usage,
	}, nil
}

func (p *ChatProvider) ModelName() string {
	return p.model
}
