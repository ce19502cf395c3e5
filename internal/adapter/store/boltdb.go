package store

import (
	"context"
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"
	"ragctx/internal/adapter/vecmath"
	"ragctx/internal/domain"
)

var (
	bucketPassages    = []byte("passages")
	bucketVectors     = []byte("vectors")
	bucketDocPassages = []byte("doc_passages")
	bucketMeta        = []byte("meta")
)

// BoltStore is a PassageStore persisted in a single bbolt file. Vectors are
// mirrored in memory for brute-force search.
type BoltStore struct {
	db        *bbolt.DB
	dimension int
	index     *vectorIndex
}

type passageMeta struct {
	DocID    string `json:"doc_id"`
	SourceID string `json:"source_id"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`
}

// NewBoltStore opens (or creates) the store at path. A positive dimension
// makes Upsert and Search reject vectors of any other length.
func NewBoltStore(path string, dimension int) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		buckets := [][]byte{bucketPassages, bucketVectors, bucketDocPassages, bucketMeta}
		for _, b := range buckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("failed to create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{
		db:        db,
		dimension: dimension,
		index:     newVectorIndex(),
	}
	if err := s.loadVectors(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to load vectors: %w", err)
	}
	return s, nil
}

func (s *BoltStore) DB() *bbolt.DB {
	return s.db
}

// loadVectors mirrors the vectors bucket into the in-memory index.
func (s *BoltStore) loadVectors() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketVectors).ForEach(func(k, v []byte) error {
			vec, err := vecmath.Decode(v)
			if err != nil {
				return nil // Skip corrupted entries
			}
			s.index.put(string(k), vec)
			return nil
		})
	})
}

func (s *BoltStore) checkDimension(v []float32) error {
	if s.dimension > 0 && len(v) != s.dimension {
		return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dimension, len(v))
	}
	return nil
}

func (s *BoltStore) Upsert(ctx context.Context, passages []domain.StoredPassage) error {
	for _, p := range passages {
		if p.ID == "" {
			return fmt.Errorf("passage without id in document %s", p.DocID)
		}
		if err := s.checkDimension(p.Vector); err != nil {
			return err
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		pb := tx.Bucket(bucketPassages)
		vb := tx.Bucket(bucketVectors)
		docs := tx.Bucket(bucketDocPassages)

		docIDs := make(map[string][]string)
		for _, p := range passages {
			data, err := json.Marshal(passageMeta{
				DocID:    p.DocID,
				SourceID: p.SourceID,
				Title:    p.Title,
				Text:     p.Text,
			})
			if err != nil {
				return err
			}
			if err := pb.Put([]byte(p.ID), data); err != nil {
				return err
			}
			if err := vb.Put([]byte(p.ID), vecmath.Encode(p.Vector)); err != nil {
				return err
			}
			docIDs[p.DocID] = append(docIDs[p.DocID], p.ID)
		}

		for docID, ids := range docIDs {
			existing, err := readIDs(docs, docID)
			if err != nil {
				return err
			}
			if err := writeIDs(docs, docID, mergeIDs(existing, ids)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	for _, p := range passages {
		s.index.put(p.ID, p.Vector)
	}
	return nil
}

func (s *BoltStore) Search(ctx context.Context, query []float32, k int) ([]domain.Passage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.checkDimension(query); err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}

	top := s.index.search(query, k)
	if len(top) == 0 {
		return nil, nil
	}

	results := make([]domain.Passage, 0, len(top))
	err := s.db.View(func(tx *bbolt.Tx) error {
		pb := tx.Bucket(bucketPassages)
		for _, sc := range top {
			data := pb.Get([]byte(sc.ID))
			if data == nil {
				continue
			}
			var meta passageMeta
			if err := json.Unmarshal(data, &meta); err != nil {
				return fmt.Errorf("decode passage %s: %w", sc.ID, err)
			}
			results = append(results, domain.Passage{
				ID:       sc.ID,
				Text:     meta.Text,
				SourceID: meta.SourceID,
				Title:    meta.Title,
				Score:    sc.Score,
			})
		}
		return nil
	})
	return results, err
}

func (s *BoltStore) DeleteDocument(ctx context.Context, docID string) error {
	var removed []string
	err := s.db.Update(func(tx *bbolt.Tx) error {
		docs := tx.Bucket(bucketDocPassages)
		ids, err := readIDs(docs, docID)
		if err != nil {
			return err
		}
		pb := tx.Bucket(bucketPassages)
		vb := tx.Bucket(bucketVectors)
		for _, id := range ids {
			if err := pb.Delete([]byte(id)); err != nil {
				return err
			}
			if err := vb.Delete([]byte(id)); err != nil {
				return err
			}
		}
		removed = ids
		return docs.Delete([]byte(docID))
	})
	if err != nil {
		return err
	}

	s.index.delete(removed...)
	return nil
}

func (s *BoltStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bbolt.Tx) error {
		n = tx.Bucket(bucketPassages).Stats().KeyN
		return nil
	})
	return n, err
}

// Documents returns the ids of all indexed documents.
func (s *BoltStore) Documents() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketDocPassages).ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func readIDs(b *bbolt.Bucket, key string) ([]string, error) {
	data := b.Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	var ids []string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("decode passage list for %s: %w", key, err)
	}
	return ids, nil
}

func writeIDs(b *bbolt.Bucket, key string, ids []string) error {
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func mergeIDs(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing)+len(added))
	out := make([]string, 0, len(existing)+len(added))
	for _, list := range [][]string{existing, added} {
		for _, id := range list {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
