package embedding

import (
	"context"
	"fmt"

	"ragctx/internal/adapter/openaiapi"
)

type OpenAIEmbedder struct {
	client    *openaiapi.Client
	model     string
	dimension int
	batchSize int
}

type embeddingRequest struct {
	Input []string `json:"input"`
	Model string   `json:"model,omitempty"`
}

type embeddingResponse struct {
	Data  []embeddingData `json:"data"`
	Usage embeddingUsage  `json:"usage"`
}

type embeddingData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type embeddingUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// NewOpenAIEmbedder creates an embedder for an OpenAI or Azure OpenAI
// endpoint. A zero dimension is looked up from the model name.
func NewOpenAIEmbedder(cfg openaiapi.Config, model string, dimension, batchSize int) (*OpenAIEmbedder, error) {
	client, err := openaiapi.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("embedding client: %w", err)
	}

	if dimension <= 0 {
		dimension = modelDimension(model)
	}
	if batchSize <= 0 {
		batchSize = 100
	}

	return &OpenAIEmbedder{
		client:    client,
		model:     model,
		dimension: dimension,
		batchSize: batchSize,
	}, nil
}

func modelDimension(model string) int {
	switch model {
	case "text-embedding-3-large":
		return 3072
	case "nomic-embed-text":
		return 768
	case "mxbai-embed-large":
		return 1024
	case "all-minilm":
		return 384
	default: // text-embedding-ada-002, text-embedding-3-small
		return 1536
	}
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	allEmbeddings := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += e.batchSize {
		end := min(i+e.batchSize, len(texts))

		embeddings, err := e.embedBatch(ctx, texts[i:end])
		if err != nil {
			return nil, err
		}
		allEmbeddings = append(allEmbeddings, embeddings...)
	}

	return allEmbeddings, nil
}

func (e *OpenAIEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	req := embeddingRequest{Input: texts}
	if e.client.Provider() != openaiapi.ProviderAzure {
		req.Model = e.model
	}

	var resp embeddingResponse
	if err := e.client.Post(ctx, e.model, "/embeddings", req, &resp); err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(texts), err)
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index >= 0 && data.Index < len(embeddings) {
			embeddings[data.Index] = data.Embedding
		}
	}
	for i, emb := range embeddings {
		if emb == nil {
			return nil, fmt.Errorf("embed %d texts: missing embedding for input %d", len(texts), i)
		}
	}

	return embeddings, nil
}

func (e *OpenAIEmbedder) Dimension() int {
	return e.dimension
}

func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
