// Package storetest exercises any port.PassageStore implementation against
// the same behavior.
package storetest

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"ragctx/internal/domain"
	"ragctx/internal/port"
)

// Passage builds a stored passage for doc with a fixed vector.
func Passage(doc, id string, vector ...float32) domain.StoredPassage {
	return domain.StoredPassage{
		ID:       id,
		DocID:    doc,
		SourceID: "https://example.com/" + doc,
		Title:    "Title " + doc,
		Text:     "text of " + id,
		Vector:   vector,
	}
}

// Run runs the conformance suite. newStore must return an empty store.
func Run(t *testing.T, newStore func(t *testing.T) port.PassageStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("search ranks by cosine similarity", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []domain.StoredPassage{
			Passage("d1", "p1", 1, 0, 0),
			Passage("d1", "p2", 0.7, 0.7, 0),
			Passage("d2", "p3", 0, 0, 1),
		}))

		got, err := s.Search(ctx, []float32{1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, got, 2)
		assert.Equal(t, "p1", got[0].ID)
		assert.Equal(t, "p2", got[1].ID)
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
		assert.Greater(t, got[0].Score, got[1].Score)
		assert.Equal(t, "https://example.com/d1", got[0].SourceID)
		assert.Equal(t, "Title d1", got[0].Title)
		assert.Equal(t, "text of p1", got[0].Text)
	})

	t.Run("k larger than store", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []domain.StoredPassage{Passage("d1", "p1", 1, 0)}))

		got, err := s.Search(ctx, []float32{1, 0}, 10)
		require.NoError(t, err)
		assert.Len(t, got, 1)
	})

	t.Run("empty store", func(t *testing.T) {
		s := newStore(t)
		got, err := s.Search(ctx, []float32{1, 0}, 3)
		require.NoError(t, err)
		assert.Empty(t, got)

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("upsert replaces by id", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Upsert(ctx, []domain.StoredPassage{Passage("d1", "p1", 1, 0)}))
		updated := Passage("d1", "p1", 0, 1)
		updated.Text = "updated"
		require.NoError(t, s.Upsert(ctx, []domain.StoredPassage{updated}))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.Search(ctx, []float32{0, 1}, 1)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "updated", got[0].Text)
		assert.InDelta(t, 1.0, got[0].Score, 1e-6)
	})

	t.Run("delete document removes only its passages", func(t *testing.T) {
		s := newStore(t)
		var batch []domain.StoredPassage
		for i := 0; i < 3; i++ {
			batch = append(batch, Passage("d1", fmt.Sprintf("d1-%d", i), 1, float32(i)))
		}
		batch = append(batch, Passage("d2", "d2-0", 0, 1))
		require.NoError(t, s.Upsert(ctx, batch))

		require.NoError(t, s.DeleteDocument(ctx, "d1"))
		require.NoError(t, s.DeleteDocument(ctx, "missing"))

		n, err := s.Count(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		got, err := s.Search(ctx, []float32{1, 0}, 5)
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "d2-0", got[0].ID)
	})
}
