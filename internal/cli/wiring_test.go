package cli

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragctx/config"
	"ragctx/internal/adapter/cache"
	"ragctx/internal/adapter/chunker"
	"ragctx/internal/adapter/embedding"
	"ragctx/internal/adapter/llm"
	"ragctx/internal/adapter/memstore"
	"ragctx/internal/adapter/redisstore"
	"ragctx/internal/domain"
	"ragctx/internal/port"
)

func mockConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Tokens.Encoding = "words"
	cfg.Embedding.Provider = "mock"
	cfg.Embedding.Dimension = 32
	cfg.Completion.Provider = "mock"
	return cfg
}

func TestNewChunker(t *testing.T) {
	cfg := mockConfig()
	counter, err := newCounter(cfg)
	require.NoError(t, err)

	tests := []struct {
		name string
		want port.Chunker
	}{
		{"line", &chunker.LineChunker{}},
		{"sentence", &chunker.SentenceChunker{}},
		{"wrap", &chunker.WrapChunker{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg.Index.Chunker = tt.name
			got, err := newChunker(cfg, counter)
			require.NoError(t, err)
			assert.IsType(t, tt.want, got)
		})
	}

	cfg.Index.Chunker = "ast"
	_, err = newChunker(cfg, counter)
	assert.Error(t, err)
}

func TestNewCounter(t *testing.T) {
	cfg := mockConfig()
	counter, err := newCounter(cfg)
	require.NoError(t, err)

	n, err := counter.CountTokens("three little words")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	cfg.Tokens.CacheSize = 0
	counter, err = newCounter(cfg)
	require.NoError(t, err)
	n, err = counter.CountTokens("one")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestNewEmbedder(t *testing.T) {
	cfg := mockConfig()
	e, err := newEmbedder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &embedding.CachedEmbedder{}, e)
	assert.Equal(t, 32, e.Dimension())

	cfg.Embedding.CacheSize = 0
	e, err = newEmbedder(cfg)
	require.NoError(t, err)
	assert.IsType(t, &embedding.MockEmbedder{}, e)

	cfg.Embedding.Provider = "openai"
	cfg.Embedding.APIKey = ""
	_, err = newEmbedder(cfg)
	assert.Error(t, err, "missing api key")

	cfg.Embedding.Provider = "ollama"
	_, err = newEmbedder(cfg)
	assert.Error(t, err)
}

func TestNewEmbedder_OwnRetryCount(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	cfg := mockConfig()
	cfg.Embedding.Provider = "openai"
	cfg.Embedding.BaseURL = srv.URL
	cfg.Embedding.APIKey = "test-key"
	cfg.Embedding.CacheSize = 0
	cfg.Embedding.RetryCount = 1
	cfg.Completion.RetryCount = 0

	e, err := newEmbedder(cfg)
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), []string{"hello"})
	require.Error(t, err)
	assert.Equal(t, int32(2), hits.Load(), "one attempt plus one embedding retry")
}

func TestNewProvider(t *testing.T) {
	cfg := mockConfig()
	p, err := newProvider(cfg)
	require.NoError(t, err)
	assert.IsType(t, &llm.MockProvider{}, p)

	cfg.Completion.Provider = "azure"
	cfg.Completion.APIKey = "key"
	cfg.Completion.BaseURL = "https://example.openai.azure.com"
	p, err = newProvider(cfg)
	require.NoError(t, err)
	assert.Equal(t, cfg.Completion.Model, p.ModelName())

	cfg.Completion.Provider = "anthropic"
	_, err = newProvider(cfg)
	assert.Error(t, err)
}

func TestOpenStore_Bolt(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig()
	dir := t.TempDir()

	_, err := openStore(ctx, cfg, dir, 32, false)
	require.ErrorIs(t, err, domain.ErrNotFound)

	st, err := openStore(ctx, cfg, dir, 32, true)
	require.NoError(t, err)
	require.NotNil(t, st.bolt)
	assert.Equal(t, config.IndexDBPath(dir), st.path)
	require.NoError(t, st.Close())

	st, err = openStore(ctx, cfg, dir, 32, false)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestOpenStore_BoltCreatesDataDir(t *testing.T) {
	dir := t.TempDir()
	cfg := mockConfig()

	st, err := openStore(context.Background(), cfg, dir, 32, true)
	require.NoError(t, err)
	defer st.Close()
	assert.DirExists(t, filepath.Join(dir, ".ragctx"))
	assert.Equal(t, config.IndexDBPath(dir), st.path)
}

func TestOpenStore_BoltCustomPath(t *testing.T) {
	cfg := mockConfig()
	dir := t.TempDir()
	cfg.Store.Path = filepath.Join("data", "passages.db")

	st, err := openStore(context.Background(), cfg, dir, 32, true)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, filepath.Join(dir, "data", "passages.db"), st.path)
}

func TestOpenStore_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := mockConfig()
	cfg.Store.Backend = "redis"
	cfg.Store.RedisURL = "redis://" + mr.Addr()

	st, err := openStore(context.Background(), cfg, t.TempDir(), 32, false)
	require.NoError(t, err)
	defer st.Close()
	assert.IsType(t, &redisstore.Store{}, st.PassageStore)
	assert.Nil(t, st.bolt)
}

func TestOpenStore_Memory(t *testing.T) {
	cfg := mockConfig()
	cfg.Store.Backend = "memory"

	st, err := openStore(context.Background(), cfg, t.TempDir(), 32, false)
	require.NoError(t, err)
	assert.IsType(t, &memstore.MemoryStore{}, st.PassageStore)
}

func TestNewAnswerCache(t *testing.T) {
	ctx := context.Background()
	cfg := mockConfig()

	c, closeFn, err := newAnswerCache(ctx, cfg)
	require.NoError(t, err)
	assert.Nil(t, c, "disabled")
	assert.NoError(t, closeFn())

	cfg.Cache.Enabled = true
	c, _, err = newAnswerCache(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &cache.MemoryCache{}, c)

	mr := miniredis.RunT(t)
	cfg.Cache.Backend = "redis"
	cfg.Cache.RedisURL = "redis://" + mr.Addr()
	c, closeFn, err = newAnswerCache(ctx, cfg)
	require.NoError(t, err)
	assert.IsType(t, &cache.RedisCache{}, c)
	assert.NoError(t, closeFn())
}

func TestAskOptions(t *testing.T) {
	cfg := mockConfig()
	opts := askOptions(cfg)
	assert.Equal(t, cfg.Assemble.Budget, opts.Budget)
	assert.Equal(t, cfg.Assemble.Overhead, opts.Overhead)
	assert.Equal(t, cfg.Retrieve.TopK, opts.TopK)
	assert.Equal(t, cfg.Completion.MaxTokens, opts.Completion.MaxTokens)
	assert.Equal(t, cfg.Completion.TopP, opts.Completion.TopP)
}
