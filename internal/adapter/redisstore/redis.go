// Package redisstore keeps passages in Redis hashes, one per passage, with
// the embedding stored as little-endian float32 bytes. Search scans the
// prefix and ranks by cosine similarity in process, so it runs against any
// Redis without the search module.
package redisstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"ragctx/internal/adapter/vecmath"
	"ragctx/internal/domain"
)

const (
	fieldDocID     = "doc_id"
	fieldSourceID  = "source_id"
	fieldTitle     = "title"
	fieldText      = "text"
	fieldEmbedding = "embedding"

	scanCount = 500
)

// Store is a PassageStore backed by Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
}

// New creates a store whose keys live under prefix ("post" gives
// post:passage:<id> and post:doc:<doc id>).
func New(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ragctx"
	}
	return &Store{client: client, prefix: prefix}
}

// OpenClient parses a redis:// URL and checks the connection.
func OpenClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	return client, nil
}

func (s *Store) passageKey(id string) string {
	return s.prefix + ":passage:" + id
}

func (s *Store) docKey(docID string) string {
	return s.prefix + ":doc:" + docID
}

func (s *Store) Upsert(ctx context.Context, passages []domain.StoredPassage) error {
	if len(passages) == 0 {
		return nil
	}
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, p := range passages {
			if p.ID == "" {
				return fmt.Errorf("passage without id in document %s", p.DocID)
			}
			pipe.HSet(ctx, s.passageKey(p.ID),
				fieldDocID, p.DocID,
				fieldSourceID, p.SourceID,
				fieldTitle, p.Title,
				fieldText, p.Text,
				fieldEmbedding, vecmath.Encode(p.Vector),
			)
			pipe.SAdd(ctx, s.docKey(p.DocID), p.ID)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis upsert: %w", err)
	}
	return nil
}

// keys returns every passage key under the prefix.
func (s *Store) keys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix+":passage:*", scanCount).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("redis scan: %w", err)
	}
	return keys, nil
}

func (s *Store) Search(ctx context.Context, query []float32, k int) ([]domain.Passage, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return nil, err
	}
	if len(keys) == 0 || k <= 0 {
		return nil, nil
	}

	cmds := make([]*redis.StringCmd, len(keys))
	_, err = s.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		for i, key := range keys {
			cmds[i] = pipe.HGet(ctx, key, fieldEmbedding)
		}
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis load embeddings: %w", err)
	}

	scores := make([]vecmath.Scored, 0, len(keys))
	for i, cmd := range cmds {
		blob, err := cmd.Bytes()
		if err != nil {
			continue // passage deleted between scan and read
		}
		vec, err := vecmath.Decode(blob)
		if err != nil {
			return nil, fmt.Errorf("decode %s: %w", keys[i], err)
		}
		scores = append(scores, vecmath.Scored{ID: keys[i], Score: vecmath.CosineSimilarity(query, vec)})
	}

	top := vecmath.TopK(scores, k)
	results := make([]domain.Passage, 0, len(top))
	for _, sc := range top {
		fields, err := s.client.HMGet(ctx, sc.ID, fieldSourceID, fieldTitle, fieldText).Result()
		if err != nil {
			return nil, fmt.Errorf("redis load passage: %w", err)
		}
		results = append(results, domain.Passage{
			ID:       strings.TrimPrefix(sc.ID, s.prefix+":passage:"),
			SourceID: asString(fields[0]),
			Title:    asString(fields[1]),
			Text:     asString(fields[2]),
			Score:    sc.Score,
		})
	}
	return results, nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func (s *Store) DeleteDocument(ctx context.Context, docID string) error {
	ids, err := s.client.SMembers(ctx, s.docKey(docID)).Result()
	if err != nil {
		return fmt.Errorf("redis members: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.passageKey(id))
	}
	keys = append(keys, s.docKey(docID))
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}
	return nil
}

func (s *Store) Count(ctx context.Context) (int, error) {
	keys, err := s.keys(ctx)
	if err != nil {
		return 0, err
	}
	return len(keys), nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
