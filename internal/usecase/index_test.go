package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragctx/internal/adapter/chunker"
	"ragctx/internal/adapter/embedding"
	"ragctx/internal/adapter/fs"
	"ragctx/internal/adapter/memstore"
	"ragctx/internal/adapter/tokens"
	"ragctx/internal/port"
)

func writePost(t *testing.T, dir, name string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0644))
}

func newIndexer(embedder port.Embedder, store port.PassageStore) *IndexUseCase {
	walker := fs.NewWalker([]string{"**/*.json", "**/*.md"}, nil)
	return NewIndexUseCase(
		walker,
		walker,
		chunker.NewLineChunker(20, 0, tokens.WordCounter{}),
		embedder,
		store,
		IndexOptions{BatchSize: 2, Concurrency: 2},
		nil,
	)
}

func blogFixture(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	writePost(t, dir, "champ.json", blogPost{
		URL:     "https://blog.example.com/champ",
		Title:   "Champ",
		Content: "Champ is a white dog.\nHe likes long walks.",
	})
	writePost(t, dir, "archive.json", []blogPost{
		{URL: "https://blog.example.com/tea", Title: "Tea", Content: "Green tea is brewed at 80 degrees."},
		{URL: "https://blog.example.com/empty", Title: "Empty", Content: "  "},
		{Title: "No URL", Content: "Posts without a url fall back to the file path."},
	})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.md"), []byte("# Notes\nRedis caches answers."), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ignored.txt"), []byte("not included"), 0644))
	return dir
}

func TestIndex_IndexesPostsAndText(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	uc := newIndexer(embedding.NewMockEmbedder(64), store)

	var mu sync.Mutex
	var calls []int
	result, err := uc.Index(ctx, blogFixture(t), func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		calls = append(calls, done)
	})
	require.NoError(t, err)

	assert.Equal(t, 3, result.FilesIndexed)
	assert.Equal(t, 0, result.FilesFailed)
	assert.Equal(t, 4, result.Documents, "empty posts are skipped")
	assert.Equal(t, 4, result.Passages)
	assert.ElementsMatch(t, []int{1, 2, 3}, calls)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	retriever := NewRetrieveUseCase(embedding.NewMockEmbedder(64), store, 0)
	got, err := retriever.Search(ctx, "what color is Champ the dog", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "https://blog.example.com/champ", got[0].SourceID)
	assert.Equal(t, "Champ", got[0].Title)
}

func TestIndex_ReindexReplacesPassages(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	uc := newIndexer(embedding.NewMockEmbedder(32), store)
	dir := blogFixture(t)

	_, err := uc.Index(ctx, dir, nil)
	require.NoError(t, err)
	_, err = uc.Index(ctx, dir, nil)
	require.NoError(t, err)

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestIndex_BadFileIsRecorded(t *testing.T) {
	ctx := context.Background()
	dir := blogFixture(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "broken.json"), []byte("{not json"), 0644))

	result, err := newIndexer(embedding.NewMockEmbedder(16), memstore.NewMemoryStore()).Index(ctx, dir, nil)
	require.NoError(t, err)

	assert.Equal(t, 3, result.FilesIndexed)
	assert.Equal(t, 1, result.FilesFailed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "broken.json")
}

type failingEmbedder struct {
	*embedding.MockEmbedder
	err error
}

func (e failingEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, e.err
}

func TestIndex_EmbedderErrorFailsFiles(t *testing.T) {
	ctx := context.Background()
	store := memstore.NewMemoryStore()
	uc := newIndexer(failingEmbedder{embedding.NewMockEmbedder(8), errors.New("rate limited")}, store)

	result, err := uc.Index(ctx, blogFixture(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, result.FilesFailed)
	assert.Contains(t, result.Errors[0], "rate limited")

	n, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestIndex_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newIndexer(embedding.NewMockEmbedder(8), memstore.NewMemoryStore()).Index(ctx, blogFixture(t), nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLoadDocuments_SourceFallback(t *testing.T) {
	file := port.SourceFile{Path: "/posts/archive.json", RelPath: "archive.json"}
	content := `[{"title":"a","content":"x"},{"title":"b","content":"y"}]`

	docs, err := loadDocuments(file, content)
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "archive.json#0", docs[0].doc.SourceID)
	assert.Equal(t, "archive.json#1", docs[1].doc.SourceID)
	assert.NotEqual(t, docs[0].doc.ID, docs[1].doc.ID)

	docs, err = loadDocuments(port.SourceFile{Path: "/posts/hello.md", RelPath: "hello.md"}, "# hi")
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "hello.md", docs[0].doc.SourceID)
	assert.Equal(t, "hello", docs[0].doc.Title)
}
