package vector_test

import (
	"context"
	"testing"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/log"
	"github.com/quarrylabs/quarry/internal/testutil"
	"github.com/quarrylabs/quarry/internal/vector"
)

// axisVec returns a unit vector along one axis of the embedding space.
// Distinct axes are orthogonal, so similarity structure is fully predictable.
func axisVec(axis int) []float32 {
	v := make([]float32, config.EmbeddingDimension)
	v[axis] = 1
	return v
}

// blendVec returns a vector between two axes; closer to axis a for weight > 0.5.
func blendVec(a, b int, weight float32) []float32 {
	v := make([]float32, config.EmbeddingDimension)
	v[a] = weight
	v[b] = 1 - weight
	return v
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := vector.New(vector.NewPgxQuerier(db.Pool), log.NewNop())

	// Two documents on orthogonal axes plus one blended between them.
	if _, err := store.Insert(ctx, "all about apples", axisVec(0), "hash-a", map[string]string{"source_name": "a.txt"}); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := store.Insert(ctx, "all about bridges", axisVec(1), "hash-b", nil); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}
	if _, err := store.Insert(ctx, "apples on bridges", blendVec(0, 1, 0.9), "hash-c", nil); err != nil {
		t.Fatalf("Insert() error = %v", err)
	}

	t.Run("count", func(t *testing.T) {
		count, err := store.Count(ctx)
		if err != nil {
			t.Fatalf("Count() error = %v", err)
		}
		if count != 3 {
			t.Errorf("Count() = %d, want 3", count)
		}
	})

	t.Run("exists by hash", func(t *testing.T) {
		exists, err := store.ExistsByHash(ctx, "hash-a")
		if err != nil {
			t.Fatalf("ExistsByHash() error = %v", err)
		}
		if !exists {
			t.Error("inserted hash not found")
		}

		exists, err = store.ExistsByHash(ctx, "hash-missing")
		if err != nil {
			t.Fatalf("ExistsByHash() error = %v", err)
		}
		if exists {
			t.Error("missing hash reported as existing")
		}
	})

	t.Run("search orders by similarity", func(t *testing.T) {
		docs, err := store.Query(ctx, axisVec(0), 0.5, 10)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}

		// The apple document matches exactly; the blend is close; the
		// orthogonal bridge document falls below threshold.
		if len(docs) != 2 {
			t.Fatalf("got %d docs, want 2: %+v", len(docs), docs)
		}
		if docs[0].Document.Content != "all about apples" {
			t.Errorf("top doc = %q, want exact match first", docs[0].Document.Content)
		}
		if docs[0].Similarity < docs[1].Similarity {
			t.Error("results not ordered by descending similarity")
		}
		if docs[0].Similarity < 0.999 {
			t.Errorf("exact match similarity = %v, want ~1", docs[0].Similarity)
		}
	})

	t.Run("threshold filters", func(t *testing.T) {
		docs, err := store.Query(ctx, axisVec(0), 0.999, 10)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(docs) != 1 {
			t.Errorf("got %d docs above 0.999, want only the exact match", len(docs))
		}
	})

	t.Run("limit bounds results", func(t *testing.T) {
		docs, err := store.Query(ctx, axisVec(0), 0.0, 1)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(docs) != 1 {
			t.Errorf("got %d docs with limit 1", len(docs))
		}
	})

	t.Run("metadata round trip", func(t *testing.T) {
		docs, err := store.Query(ctx, axisVec(0), 0.999, 1)
		if err != nil {
			t.Fatalf("Query() error = %v", err)
		}
		if len(docs) != 1 {
			t.Fatalf("got %d docs", len(docs))
		}
		if docs[0].Document.Metadata["source_name"] != "a.txt" {
			t.Errorf("metadata = %v", docs[0].Document.Metadata)
		}
	})
}
