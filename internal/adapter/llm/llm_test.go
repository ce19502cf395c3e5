package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragctx/internal/adapter/openaiapi"
	"ragctx/internal/domain"
)

func TestChatProvider_Complete(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"model": "gpt-3.5-turbo-0613",
			"choices": [{"index": 0, "message": {"role": "assistant", "content": "Champ is a dog."}, "finish_reason": "stop"}],
			"usage": {"prompt_tokens": 20, "completion_tokens": 5, "total_tokens": 25}
		}`))
	}))
	defer srv.Close()

	p, err := NewChatProvider(openaiapi.Config{BaseURL: srv.URL, APIKey: "k"}, "gpt-3.5-turbo")
	require.NoError(t, err)

	msgs := []domain.Message{
		{Role: domain.RoleSystem, Content: "be brief"},
		{Role: domain.RoleUser, Content: "who is Champ?"},
	}
	c, err := p.Complete(context.Background(), msgs, domain.CompletionOptions{Temperature: 0.5, TopP: 0.95, MaxTokens: 100})
	require.NoError(t, err)

	assert.Equal(t, "Champ is a dog.", c.Text)
	assert.Equal(t, "gpt-3.5-turbo-0613", c.Model)
	assert.Equal(t, domain.Usage{PromptTokens: 20, CompletionTokens: 5, TotalTokens: 25}, c.Usage)

	assert.Equal(t, "gpt-3.5-turbo", got.Model)
	assert.Equal(t, msgs, got.Messages)
	assert.Equal(t, 0.5, got.Temperature)
	assert.Equal(t, 100, got.MaxTokens)
}

func TestChatProvider_AzureOmitsModel(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/openai/deployments/chat-dep/chat/completions", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "ok"}}]}`))
	}))
	defer srv.Close()

	p, err := NewChatProvider(openaiapi.Config{Provider: openaiapi.ProviderAzure, BaseURL: srv.URL, APIKey: "k"}, "chat-dep")
	require.NoError(t, err)

	c, err := p.Complete(context.Background(), []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, domain.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "ok", c.Text)
	assert.Equal(t, "chat-dep", c.Model)
	assert.NotContains(t, body, "model")
}

func TestChatProvider_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	p, err := NewChatProvider(openaiapi.Config{BaseURL: srv.URL, APIKey: "k"}, "m")
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), nil, domain.CompletionOptions{})
	assert.Error(t, err)
}

func TestMockProvider(t *testing.T) {
	p := NewMockProvider()
	ctx := context.Background()

	c, err := p.Complete(ctx, []domain.Message{
		{Role: domain.RoleSystem, Content: "sys"},
		{Role: domain.RoleUser, Content: "hello world"},
	}, domain.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "echo: hello world", c.Text)
	assert.Equal(t, 3, c.Usage.PromptTokens)
	assert.Equal(t, 3, c.Usage.CompletionTokens)

	p.Reply = "fixed"
	c, err = p.Complete(ctx, nil, domain.CompletionOptions{})
	require.NoError(t, err)
	assert.Equal(t, "fixed", c.Text)

	boom := errors.New("boom")
	p.Err = boom
	_, err = p.Complete(ctx, nil, domain.CompletionOptions{})
	assert.Same(t, boom, err)

	assert.Len(t, p.Calls(), 3)
}
