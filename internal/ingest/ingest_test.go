package ingest

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/quarrylabs/quarry/internal/log"
	"github.com/quarrylabs/quarry/internal/testutil"
	"github.com/quarrylabs/quarry/internal/vector"
)

// fakeDocStore is an in-memory DocumentStore for tests.
type fakeDocStore struct {
	mu       sync.Mutex
	inserted []insertedDoc
	hashes   map[string]bool

	failExists bool
	failInsert bool
}

type insertedDoc struct {
	content    string
	embedding  []float32
	sourceHash string
	metadata   map[string]string
}

func newFakeDocStore() *fakeDocStore {
	return &fakeDocStore{hashes: make(map[string]bool)}
}

func (f *fakeDocStore) Insert(_ context.Context, content string, embedding []float32, sourceHash string, metadata map[string]string) (vector.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failInsert {
		return vector.Document{}, errors.New("insert failed")
	}
	f.inserted = append(f.inserted, insertedDoc{content, embedding, sourceHash, metadata})
	f.hashes[sourceHash] = true
	return vector.Document{ID: strconv.Itoa(len(f.inserted)), Content: content, SourceHash: sourceHash}, nil
}

func (f *fakeDocStore) ExistsByHash(_ context.Context, sourceHash string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failExists {
		return false, errors.New("exists check failed")
	}
	return f.hashes[sourceHash], nil
}

func newTestIngestor(store DocumentStore, opts Options) *Ingestor {
	return New(testutil.NewStubEmbedder(8), store, opts, log.NewNop())
}

func TestIngestStoresAllChunks(t *testing.T) {
	ctx := context.Background()
	store := newFakeDocStore()
	ing := newTestIngestor(store, Options{ChunkSize: 10, ChunkOverlap: 2})

	content := []byte(strings.Repeat("abcdefgh", 5)) // 40 runes -> several chunks

	result, err := ing.Ingest(ctx, "doc.txt", content)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Chunks != len(store.inserted) {
		t.Errorf("Result.Chunks = %d, store has %d", result.Chunks, len(store.inserted))
	}
	if result.Chunks < 2 {
		t.Errorf("Result.Chunks = %d, want multiple chunks", result.Chunks)
	}
	if result.SourceHash != SourceHash(content) {
		t.Errorf("Result.SourceHash = %s, want content hash", result.SourceHash)
	}

	wantHash := SourceHash(content)
	for i, doc := range store.inserted {
		if doc.sourceHash != wantHash {
			t.Errorf("chunk %d sourceHash = %s, want %s", i, doc.sourceHash, wantHash)
		}
		if doc.metadata["source_name"] != "doc.txt" {
			t.Errorf("chunk %d source_name = %q", i, doc.metadata["source_name"])
		}
		if doc.metadata["chunk_index"] != strconv.Itoa(i) {
			t.Errorf("chunk %d chunk_index = %q", i, doc.metadata["chunk_index"])
		}
		if doc.metadata["ingested_at"] == "" {
			t.Errorf("chunk %d missing ingested_at", i)
		}
		if len(doc.embedding) != 8 {
			t.Errorf("chunk %d embedding dimension = %d, want 8", i, len(doc.embedding))
		}
	}
}

func TestIngestRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	store := newFakeDocStore()
	embedder := testutil.NewStubEmbedder(8)
	ing := New(embedder, store, Options{}, log.NewNop())

	content := []byte("some document content")
	if _, err := ing.Ingest(ctx, "first.txt", content); err != nil {
		t.Fatalf("first Ingest() error = %v", err)
	}
	callsAfterFirst := embedder.Calls()

	// Same bytes under a different name: identity is the content hash.
	_, err := ing.Ingest(ctx, "second.txt", content)
	if !errors.Is(err, ErrDuplicateContent) {
		t.Fatalf("Ingest() error = %v, want ErrDuplicateContent", err)
	}

	// The gate runs before embedding: no provider call for the duplicate.
	if embedder.Calls() != callsAfterFirst {
		t.Errorf("embedder called %d times for duplicate, want 0", embedder.Calls()-callsAfterFirst)
	}
}

func TestIngestEmptyContent(t *testing.T) {
	ing := newTestIngestor(newFakeDocStore(), Options{})

	if _, err := ing.Ingest(context.Background(), "empty.txt", nil); err == nil {
		t.Error("Ingest(empty) should fail")
	}
}

func TestIngestDedupCheckFailure(t *testing.T) {
	store := newFakeDocStore()
	store.failExists = true
	ing := newTestIngestor(store, Options{})

	_, err := ing.Ingest(context.Background(), "doc.txt", []byte("content"))
	if err == nil {
		t.Fatal("Ingest() should fail when dedup check fails")
	}
	if errors.Is(err, ErrDuplicateContent) {
		t.Error("backend failure must not masquerade as a duplicate")
	}
}

func TestIngestEmbedderFailure(t *testing.T) {
	store := newFakeDocStore()
	embedder := testutil.NewStubEmbedder(8)
	embedder.Fail(errors.New("quota exceeded"))
	ing := New(embedder, store, Options{}, log.NewNop())

	if _, err := ing.Ingest(context.Background(), "doc.txt", []byte("content")); err == nil {
		t.Fatal("Ingest() should propagate embedder failure")
	}
	if len(store.inserted) != 0 {
		t.Errorf("%d chunks inserted despite embedder failure", len(store.inserted))
	}
}

func TestIngestInsertFailure(t *testing.T) {
	store := newFakeDocStore()
	store.failInsert = true
	ing := newTestIngestor(store, Options{})

	if _, err := ing.Ingest(context.Background(), "doc.txt", []byte("content")); err == nil {
		t.Error("Ingest() should propagate insert failure")
	}
}

func TestIngestBatchesLargeDocuments(t *testing.T) {
	ctx := context.Background()
	store := newFakeDocStore()
	embedder := testutil.NewStubEmbedder(8)
	// 50 chunks of 10 runes with no overlap: four embed batches of <= 16.
	ing := New(embedder, store, Options{ChunkSize: 10, ChunkOverlap: 0}, log.NewNop())

	content := []byte(strings.Repeat("0123456789", 50))
	result, err := ing.Ingest(ctx, "big.txt", content)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}

	if result.Chunks != 50 {
		t.Errorf("Result.Chunks = %d, want 50", result.Chunks)
	}
	// ceil(50/16) = 4 batches.
	if embedder.Calls() != 4 {
		t.Errorf("embedder called %d times, want 4 batches", embedder.Calls())
	}
}

func TestIngestThrottledIngestCompletes(t *testing.T) {
	ctx := context.Background()
	store := newFakeDocStore()
	embedder := testutil.NewStubEmbedder(8)
	// High rate: the throttle path runs on every batch without stalling the test.
	ing := New(embedder, store, Options{ChunkSize: 10, ChunkOverlap: 0, EmbedRate: 1000}, log.NewNop())

	content := []byte(strings.Repeat("0123456789", 50))
	result, err := ing.Ingest(ctx, "big.txt", content)
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if result.Chunks != 50 {
		t.Errorf("Result.Chunks = %d, want 50", result.Chunks)
	}
	if embedder.Calls() != 4 {
		t.Errorf("embedder called %d times, want 4 batches", embedder.Calls())
	}
}

func TestIngestThrottleAbortsOnCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	store := newFakeDocStore()
	embedder := testutil.NewStubEmbedder(8)
	ing := New(embedder, store, Options{ChunkSize: 10, ChunkOverlap: 0, EmbedRate: 1}, log.NewNop())

	_, err := ing.Ingest(ctx, "doc.txt", []byte(strings.Repeat("0123456789", 5)))
	if err == nil {
		t.Fatal("Ingest() error = nil, want throttle interruption")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Ingest() error = %v, want context.Canceled in chain", err)
	}
	if !strings.Contains(err.Error(), "embedding throttle interrupted") {
		t.Errorf("Ingest() error = %q, want throttle interruption message", err)
	}
	if embedder.Calls() != 0 {
		t.Errorf("embedder called %d times, want 0 after canceled throttle wait", embedder.Calls())
	}
	if len(store.inserted) != 0 {
		t.Errorf("store has %d inserts, want 0", len(store.inserted))
	}
}
