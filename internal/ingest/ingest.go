// Package ingest implements the document ingestion pipeline: deduplication
// gate → chunking → batch embedding → vector store insert.
//
// The gate runs FIRST: duplicate content is rejected before any embedding
// work, so a re-upload costs one hash and one existence check, never a
// provider call.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/quarrylabs/quarry/internal/vector"
)

// embedBatchSize bounds how many chunks go to the provider per call.
const embedBatchSize = 16

// Embedder is the embedding capability the pipeline consumes.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// DocumentStore is the storage capability the pipeline consumes.
// vector.Store satisfies this interface.
type DocumentStore interface {
	Insert(ctx context.Context, content string, embedding []float32, sourceHash string, metadata map[string]string) (vector.Document, error)
	ExistsByHash(ctx context.Context, sourceHash string) (bool, error)
}

// Result summarizes one ingestion.
type Result struct {
	SourceHash string
	Chunks     int
	Duration   time.Duration
}

// Options configures an Ingestor.
type Options struct {
	// ChunkSize and ChunkOverlap configure the splitter (runes).
	// Zero values use the package defaults.
	ChunkSize    int
	ChunkOverlap int

	// EmbedRate throttles embedding batch calls (batches per second) to
	// protect provider quota during large ingests. Zero means no throttle.
	EmbedRate float64
}

// Ingestor runs the ingestion pipeline.
//
// Ingestor is safe for concurrent use by multiple goroutines.
type Ingestor struct {
	embedder Embedder
	store    DocumentStore
	logger   *slog.Logger

	chunkSize    int
	chunkOverlap int
	limiter      *rate.Limiter
}

// New creates an Ingestor.
func New(embedder Embedder, store DocumentStore, opts Options, logger *slog.Logger) *Ingestor {
	if logger == nil {
		logger = slog.Default()
	}

	chunkSize := opts.ChunkSize
	chunkOverlap := opts.ChunkOverlap
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
		chunkOverlap = DefaultChunkOverlap
	}

	var limiter *rate.Limiter
	if opts.EmbedRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.EmbedRate), 1)
	}

	return &Ingestor{
		embedder:     embedder,
		store:        store,
		logger:       logger,
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		limiter:      limiter,
	}
}

// Ingest runs the full pipeline for one extracted source document.
//
// sourceName is carried as metadata only; identity is the content hash, so
// the same bytes under a different name are still rejected with
// ErrDuplicateContent.
func (in *Ingestor) Ingest(ctx context.Context, sourceName string, content []byte) (*Result, error) {
	start := time.Now()

	if len(content) == 0 {
		return nil, fmt.Errorf("content is empty")
	}

	// Dedup gate first — before any embedding work is performed.
	hash := SourceHash(content)
	exists, err := in.store.ExistsByHash(ctx, hash)
	if err != nil {
		return nil, fmt.Errorf("dedup check failed: %w", err)
	}
	if exists {
		return nil, fmt.Errorf("%w (hash %s)", ErrDuplicateContent, hash)
	}

	chunks := SplitText(string(content), in.chunkSize, in.chunkOverlap)
	if len(chunks) == 0 {
		return nil, fmt.Errorf("content produced no chunks")
	}

	inserted := 0
	for batchStart := 0; batchStart < len(chunks); batchStart += embedBatchSize {
		batchEnd := batchStart + embedBatchSize
		if batchEnd > len(chunks) {
			batchEnd = len(chunks)
		}
		batch := chunks[batchStart:batchEnd]

		if in.limiter != nil {
			if err := in.limiter.Wait(ctx); err != nil {
				return nil, fmt.Errorf("embedding throttle interrupted: %w", err)
			}
		}

		embeddings, err := in.embedder.EmbedBatch(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("embedding chunks %d-%d: %w", batchStart, batchEnd-1, err)
		}

		for i, chunk := range batch {
			metadata := map[string]string{
				"source_name": sourceName,
				"chunk_index": strconv.Itoa(batchStart + i),
				"ingested_at": start.Format(time.RFC3339),
			}
			if _, err := in.store.Insert(ctx, chunk, embeddings[i], hash, metadata); err != nil {
				return nil, fmt.Errorf("inserting chunk %d: %w", batchStart+i, err)
			}
			inserted++
		}
	}

	result := &Result{
		SourceHash: hash,
		Chunks:     inserted,
		Duration:   time.Since(start),
	}

	in.logger.Info("ingested document",
		"source", sourceName,
		"hash", hash,
		"chunks", inserted,
		"duration", result.Duration)
	return result, nil
}
