package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ragctx/config"
	"ragctx/internal/adapter/cache"
	"ragctx/internal/adapter/chunker"
	"ragctx/internal/adapter/embedding"
	"ragctx/internal/adapter/llm"
	"ragctx/internal/adapter/memstore"
	"ragctx/internal/adapter/openaiapi"
	"ragctx/internal/adapter/redisstore"
	"ragctx/internal/adapter/store"
	"ragctx/internal/adapter/tokens"
	"ragctx/internal/domain"
	"ragctx/internal/logger"
	"ragctx/internal/port"
	"ragctx/internal/usecase"
)

func newCounter(c *config.Config) (port.TokenCounter, error) {
	counter, err := tokens.NewRegistry().Counter(c.Tokens.Encoding)
	if err != nil {
		return nil, err
	}
	if c.Tokens.CacheSize <= 0 {
		return counter, nil
	}
	return tokens.NewCachedCounter(counter, c.Tokens.CacheSize)
}

func newMessageCounter(c *config.Config, counter port.TokenCounter) *usecase.MessageCounter {
	return usecase.NewMessageCounter(counter, c.Tokens.PerMessageOverhead, c.Tokens.PerNameAdjustment, c.Tokens.ReplyPriming)
}

func newChunker(c *config.Config, counter port.TokenCounter) (port.Chunker, error) {
	switch c.Index.Chunker {
	case "line":
		return chunker.NewLineChunker(c.Index.ChunkTokens, c.Index.ChunkOverlap, counter), nil
	case "sentence":
		return chunker.NewSentenceChunker(), nil
	case "wrap":
		return chunker.NewWrapChunker(c.Index.WrapWidth), nil
	default:
		return nil, fmt.Errorf("unsupported chunker: %s", c.Index.Chunker)
	}
}

func newEmbedder(c *config.Config) (port.Embedder, error) {
	var (
		embedder port.Embedder
		err      error
	)
	switch c.Embedding.Provider {
	case "mock":
		embedder = embedding.NewMockEmbedder(c.Embedding.Dimension)
	case openaiapi.ProviderOpenAI, openaiapi.ProviderAzure:
		embedder, err = embedding.NewOpenAIEmbedder(openaiapi.Config{
			Provider:   c.Embedding.Provider,
			BaseURL:    c.Embedding.BaseURL,
			APIKey:     c.Embedding.APIKey,
			APIVersion: c.Embedding.APIVersion,
			Timeout:    c.Embedding.Timeout,
			RetryCount: c.Embedding.RetryCount,
		}, c.Embedding.Model, c.Embedding.Dimension, c.Embedding.BatchSize)
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", c.Embedding.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	if c.Embedding.CacheSize <= 0 {
		return embedder, nil
	}
	return embedding.NewCachedEmbedder(embedder, c.Embedding.CacheSize)
}

func newProvider(c *config.Config) (port.CompletionProvider, error) {
	switch c.Completion.Provider {
	case "mock":
		return llm.NewMockProvider(), nil
	case openaiapi.ProviderOpenAI, openaiapi.ProviderAzure:
		p, err := llm.NewChatProvider(openaiapi.Config{
			Provider:   c.Completion.Provider,
			BaseURL:    c.Completion.BaseURL,
			APIKey:     c.Completion.APIKey,
			APIVersion: c.Completion.APIVersion,
			Timeout:    c.Completion.Timeout,
			RetryCount: c.Completion.RetryCount,
		}, c.Completion.Model)
		if err != nil {
			return nil, fmt.Errorf("failed to create completion provider: %w", err)
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported completion provider: %s", c.Completion.Provider)
	}
}

// boltPath resolves the bolt file relative to dir.
func boltPath(c *config.Config, dir string) string {
	if c.Store.Path == "" {
		return config.IndexDBPath(dir)
	}
	if filepath.IsAbs(c.Store.Path) {
		return c.Store.Path
	}
	return filepath.Join(dir, c.Store.Path)
}

// openedStore is a passage store plus the bolt handle when the backend is
// bolt, for schema checks.
type openedStore struct {
	port.PassageStore
	bolt *store.BoltStore
	path string
}

// openStore opens the configured passage store. Without create, a missing
// bolt file is reported as domain.ErrNotFound.
func openStore(ctx context.Context, c *config.Config, dir string, dimension int, create bool) (*openedStore, error) {
	switch c.Store.Backend {
	case "bolt":
		path := boltPath(c, dir)
		if create {
			var err error
			if c.Store.Path == "" {
				err = config.EnsureDataDir(dir)
			} else {
				err = os.MkdirAll(filepath.Dir(path), 0755)
			}
			if err != nil {
				return nil, fmt.Errorf("failed to create data directory: %w", err)
			}
		} else if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("index %s: %w (run 'ragctx index' first)", path, domain.ErrNotFound)
		}
		st, err := store.NewBoltStore(path, dimension)
		if err != nil {
			return nil, fmt.Errorf("failed to open index store: %w", err)
		}
		return &openedStore{PassageStore: st, bolt: st, path: path}, nil
	case "redis":
		client, err := redisstore.OpenClient(ctx, c.Store.RedisURL)
		if err != nil {
			return nil, err
		}
		return &openedStore{PassageStore: redisstore.New(client, c.Store.Prefix), path: c.Store.RedisURL}, nil
	case "memory":
		return &openedStore{PassageStore: memstore.NewMemoryStore(), path: "memory"}, nil
	default:
		return nil, fmt.Errorf("unsupported store backend: %s", c.Store.Backend)
	}
}

func indexSettings(c *config.Config, embedder port.Embedder) store.IndexSettings {
	return store.IndexSettings{
		EmbeddingModel: embedder.ModelName(),
		Dimension:      embedder.Dimension(),
		Chunker:        c.Index.Chunker,
		ChunkTokens:    c.Index.ChunkTokens,
		ChunkOverlap:   c.Index.ChunkOverlap,
		WrapWidth:      c.Index.WrapWidth,
	}
}

// newAnswerCache returns a nil cache when caching is disabled. The returned
// close func is never nil.
func newAnswerCache(ctx context.Context, c *config.Config) (port.AnswerCache, func() error, error) {
	noop := func() error { return nil }
	if !c.Cache.Enabled {
		return nil, noop, nil
	}
	switch c.Cache.Backend {
	case "memory":
		return cache.NewMemoryCache(c.Cache.MaxEntries, c.Cache.TTL, c.Cache.DistanceThreshold), noop, nil
	case "redis":
		client, err := redisstore.OpenClient(ctx, c.Cache.RedisURL)
		if err != nil {
			return nil, noop, fmt.Errorf("answer cache: %w", err)
		}
		return cache.NewRedisCache(client, c.Cache.Prefix, c.Cache.TTL, c.Cache.DistanceThreshold), client.Close, nil
	default:
		return nil, noop, fmt.Errorf("unsupported cache backend: %s", c.Cache.Backend)
	}
}

func askOptions(c *config.Config) usecase.AskOptions {
	return usecase.AskOptions{
		Budget:       c.Assemble.Budget,
		Overhead:     c.Assemble.Overhead,
		TopK:         c.Retrieve.TopK,
		SystemPrompt: c.Assemble.SystemPrompt,
		Completion: domain.CompletionOptions{
			Temperature: c.Completion.Temperature,
			TopP:        c.Completion.TopP,
			MaxTokens:   c.Completion.MaxTokens,
		},
	}
}

// pipeline holds everything the query-side commands share.
type pipeline struct {
	counter   port.TokenCounter
	retriever *usecase.RetrieveUseCase
	assembler *usecase.Assembler
	store     *openedStore
	closers   []func() error
}

func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		errs = append(errs, p.closers[i]())
	}
	return errors.Join(errs...)
}

// newPipeline opens an existing index for retrieval and assembly.
func newPipeline(ctx context.Context, c *config.Config, dir string) (*pipeline, error) {
	counter, err := newCounter(c)
	if err != nil {
		return nil, err
	}
	embedder, err := newEmbedder(c)
	if err != nil {
		return nil, err
	}
	st, err := openStore(ctx, c, dir, embedder.Dimension(), false)
	if err != nil {
		return nil, err
	}
	return &pipeline{
		counter:   counter,
		retriever: usecase.NewRetrieveUseCase(embedder, st, c.Retrieve.MinScore),
		assembler: usecase.NewAssembler(counter, c.Assemble.Preamble),
		store:     st,
		closers:   []func() error{st.Close},
	}, nil
}

// askUseCase adds the completion provider and answer cache to p.
func (p *pipeline) askUseCase(ctx context.Context, c *config.Config, log logger.Logger) (*usecase.AskUseCase, error) {
	provider, err := newProvider(c)
	if err != nil {
		return nil, err
	}
	answers, closeCache, err := newAnswerCache(ctx, c)
	if err != nil {
		return nil, err
	}
	p.closers = append(p.closers, closeCache)
	return usecase.NewAskUseCase(p.retriever, p.assembler, provider, answers, askOptions(c), log), nil
}
