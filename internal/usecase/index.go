package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"ragctx/internal/domain"
	"ragctx/internal/logger"
	"ragctx/internal/port"
)

// IndexUseCase handles file indexing operations.
type IndexUseCase struct {
	walker   port.FileWalker
	reader   port.FileReader
	chunker  port.Chunker
	embedder port.Embedder
	store    port.PassageStore
	opts     IndexOptions
	log      logger.Logger
}

// IndexOptions tune embedding throughput.
type IndexOptions struct {
	BatchSize   int // texts per embedding request
	Concurrency int // files processed in parallel
}

// NewIndexUseCase creates a new index use case.
func NewIndexUseCase(
	walker port.FileWalker,
	reader port.FileReader,
	chunker port.Chunker,
	embedder port.Embedder,
	store port.PassageStore,
	opts IndexOptions,
	log logger.Logger,
) *IndexUseCase {
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	if log == nil {
		log = logger.Discard()
	}
	return &IndexUseCase{
		walker:   walker,
		reader:   reader,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		opts:     opts,
		log:      log,
	}
}

// IndexResult contains the results of an indexing operation.
type IndexResult struct {
	FilesIndexed int
	FilesFailed  int
	Documents    int
	Passages     int
	Errors       []string
	Duration     time.Duration
}

// ProgressFunc is called after each file with the number of files finished
// and the total.
type ProgressFunc func(done, total int)

// blogPost is the JSON layout of an exported blog post.
type blogPost struct {
	URL         string `json:"url"`
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishDate string `json:"publish_date"`
	Content     string `json:"content"`
}

type loadedDoc struct {
	doc     domain.Document
	content string
}

// Index indexes files under root. A file that fails to load, chunk or embed
// is recorded in the result and skipped; only context cancellation and walk
// errors abort the run.
func (u *IndexUseCase) Index(ctx context.Context, root string, progress ProgressFunc) (*IndexResult, error) {
	start := time.Now()

	files, err := u.walker.Walk(root)
	if err != nil {
		return nil, fmt.Errorf("failed to walk directory: %w", err)
	}
	u.log.Info("indexing", "root", root, "files", len(files))

	result := &IndexResult{}
	var mu sync.Mutex
	done := 0

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(u.opts.Concurrency)

	for _, file := range files {
		g.Go(func() error {
			docs, passages, err := u.indexFile(gctx, file)

			mu.Lock()
			defer mu.Unlock()
			done++
			if progress != nil {
				progress(done, len(files))
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				result.FilesFailed++
				result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", file.RelPath, err))
				u.log.Warn("failed to index file", "path", file.RelPath, "error", err)
				return nil
			}
			result.FilesIndexed++
			result.Documents += docs
			result.Passages += passages
			u.log.Debug("indexed file", "path", file.RelPath, "documents", docs, "passages", passages)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result.Duration = time.Since(start)
	u.log.Info("indexing complete",
		"files", result.FilesIndexed,
		"failed", result.FilesFailed,
		"passages", result.Passages,
		"duration", result.Duration.Round(time.Millisecond))
	return result, nil
}

// indexFile replaces the passages of every document in one file.
func (u *IndexUseCase) indexFile(ctx context.Context, file port.SourceFile) (int, int, error) {
	content, err := u.reader.ReadFile(file.Path)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read file: %w", err)
	}

	docs, err := loadDocuments(file, content)
	if err != nil {
		return 0, 0, err
	}

	passages := 0
	for _, ld := range docs {
		n, err := u.indexDocument(ctx, ld)
		if err != nil {
			return 0, 0, err
		}
		passages += n
	}
	return len(docs), passages, nil
}

func (u *IndexUseCase) indexDocument(ctx context.Context, ld loadedDoc) (int, error) {
	chunks, err := u.chunker.Chunk(ld.doc, ld.content)
	if err != nil {
		return 0, fmt.Errorf("failed to chunk content: %w", err)
	}

	stored := make([]domain.StoredPassage, len(chunks))
	for i, c := range chunks {
		stored[i] = domain.StoredPassage{
			ID:       c.ID,
			DocID:    ld.doc.ID,
			SourceID: ld.doc.SourceID,
			Title:    ld.doc.Title,
			Text:     c.Text,
		}
	}

	for i := 0; i < len(stored); i += u.opts.BatchSize {
		end := min(i+u.opts.BatchSize, len(stored))
		texts := make([]string, 0, end-i)
		for _, p := range stored[i:end] {
			texts = append(texts, p.Text)
		}
		vectors, err := u.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("failed to embed passages: %w", err)
		}
		if len(vectors) != len(texts) {
			return 0, fmt.Errorf("embedder returned %d vectors for %d passages", len(vectors), len(texts))
		}
		for j, v := range vectors {
			stored[i+j].Vector = v
		}
	}

	if err := u.store.DeleteDocument(ctx, ld.doc.ID); err != nil {
		return 0, fmt.Errorf("failed to delete old passages: %w", err)
	}
	if len(stored) == 0 {
		return 0, nil
	}
	if err := u.store.Upsert(ctx, stored); err != nil {
		return 0, fmt.Errorf("failed to store passages: %w", err)
	}
	return len(stored), nil
}

// loadDocuments turns a file into documents. A .json file holds one blog
// post or an array of them; anything else is a single text document.
func loadDocuments(file port.SourceFile, content string) ([]loadedDoc, error) {
	modTime := file.ModTime

	if !strings.EqualFold(filepath.Ext(file.Path), ".json") {
		return []loadedDoc{{
			doc: domain.Document{
				ID:       generateDocID(file.RelPath),
				Path:     file.Path,
				SourceID: file.RelPath,
				Title:    strings.TrimSuffix(filepath.Base(file.Path), filepath.Ext(file.Path)),
				ModTime:  modTime,
			},
			content: content,
		}}, nil
	}

	var posts []blogPost
	trimmed := strings.TrimSpace(content)
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &posts); err != nil {
			return nil, fmt.Errorf("failed to parse posts: %w", err)
		}
	} else {
		var post blogPost
		if err := json.Unmarshal([]byte(trimmed), &post); err != nil {
			return nil, fmt.Errorf("failed to parse post: %w", err)
		}
		posts = []blogPost{post}
	}

	docs := make([]loadedDoc, 0, len(posts))
	for i, p := range posts {
		if strings.TrimSpace(p.Content) == "" {
			continue
		}
		source := p.URL
		if source == "" {
			source = file.RelPath
			if len(posts) > 1 {
				source += "#" + strconv.Itoa(i)
			}
		}
		docs = append(docs, loadedDoc{
			doc: domain.Document{
				ID:          generateDocID(source),
				Path:        file.Path,
				SourceID:    source,
				Title:       p.Title,
				Description: p.Description,
				PublishDate: p.PublishDate,
				ModTime:     modTime,
			},
			content: p.Content,
		})
	}
	return docs, nil
}

// generateDocID creates a stable ID for a document from its source.
func generateDocID(source string) string {
	hash := sha256.Sum256([]byte(source))
	return hex.EncodeToString(hash[:8])
}
