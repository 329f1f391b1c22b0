// Package retrieval composes the query-time pipeline: embed the query, try
// the semantic cache, fall through to vector similarity search, and render
// retrieved documents as grounded context for downstream consumption.
//
// Within one query the call order is a strict contract: cache lookup happens
// before vector search, and any cache write happens only after retrieval
// produced an answer. Nothing is promised between distinct queries.
package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/quarrylabs/quarry/internal/vector"
)

// NoContextSentinel is returned by BuildContextString for an empty result so
// downstream consumers can branch on content rather than string length.
const NoContextSentinel = "No relevant information found in the knowledge base."

// ErrRetrievalFailed marks failures on the critical retrieval path (embedding
// generation, vector search). There is no safe default context to fabricate,
// so these propagate to the caller instead of degrading to an empty answer —
// the user-facing layer should present "temporarily unavailable", never a
// made-up empty-context response.
var ErrRetrievalFailed = errors.New("retrieval failed")

// Per-call bound on embedding generation.
const embedTimeout = 15 * time.Second

// Embedder is the embedding capability the orchestrator consumes.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Cache is the semantic cache capability the orchestrator consumes.
// semcache.Cache satisfies this interface.
type Cache interface {
	Lookup(ctx context.Context, queryEmbedding []float32, threshold float64) (string, bool)
	Store(ctx context.Context, query string, embedding []float32, response string, ttl time.Duration)
}

// SearchStore is the similarity-search capability the orchestrator consumes.
// vector.Store satisfies this interface.
type SearchStore interface {
	Query(ctx context.Context, embedding []float32, threshold float64, limit int) ([]vector.ScoredDocument, error)
}

// Result is the outcome of one Retrieve call.
// On a cache hit, CachedResponse holds the previously served response and
// Documents is empty — the vector store was never consulted.
type Result struct {
	Documents      []vector.ScoredDocument
	CacheHit       bool
	CachedResponse string
}

// Config holds orchestrator tuning.
type Config struct {
	// CacheThreshold is the cosine similarity for a semantic cache hit.
	CacheThreshold float64

	// CacheTTL is the sliding TTL applied on every cache write.
	CacheTTL time.Duration
}

// Retriever orchestrates Embedder → Cache → SearchStore.
//
// Retriever is safe for concurrent use by multiple goroutines.
type Retriever struct {
	embedder Embedder
	cache    Cache
	store    SearchStore
	cfg      Config
	logger   *slog.Logger
}

// New creates a Retriever.
func New(embedder Embedder, cache Cache, store SearchStore, cfg Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		cache:    cache,
		store:    store,
		cfg:      cfg,
		logger:   logger,
	}
}

// Retrieve runs the query pipeline: embed → cache lookup → (hit: return) |
// (miss: similarity search with topK results at or above threshold, ordered
// by descending similarity).
//
// Embedding and search failures return ErrRetrievalFailed-wrapped errors; a
// timeout is a retrieval failure, never a silent "no relevant documents".
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int, threshold float64) (*Result, error) {
	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		return nil, err
	}

	if response, ok := r.cache.Lookup(ctx, embedding, r.cfg.CacheThreshold); ok {
		r.logger.Debug("query served from semantic cache", "query", query)
		return &Result{CacheHit: true, CachedResponse: response}, nil
	}

	docs, err := r.store.Query(ctx, embedding, threshold, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: similarity search: %v", ErrRetrievalFailed, err)
	}

	r.logger.Debug("retrieved documents", "query", query, "count", len(docs), "top_k", topK)
	return &Result{Documents: docs}, nil
}

// BuildContextString renders retrieved documents as an ordered human-readable
// context block, each annotated with a percentage relevance score. An empty
// input returns NoContextSentinel, never "".
func BuildContextString(docs []vector.ScoredDocument) string {
	if len(docs) == 0 {
		return NoContextSentinel
	}

	var b strings.Builder
	for i, doc := range docs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] (%.1f%% relevant)\n%s", i+1, doc.Similarity*100, doc.Document.Content)
	}
	return b.String()
}

// CacheQueryResponse re-embeds the query and writes (query, response) into
// the semantic cache with the configured TTL.
//
// Best-effort: embedding and cache failures are logged and never propagate —
// a response that was already served must not turn into an error because
// caching it failed.
func (r *Retriever) CacheQueryResponse(ctx context.Context, query, response string) {
	embedding, err := r.embedQuery(ctx, query)
	if err != nil {
		r.logger.Warn("skipping cache write: embedding failed", "query", query, "error", err)
		return
	}

	r.cache.Store(ctx, query, embedding, response, r.cfg.CacheTTL)
}

// embedQuery generates the query embedding with a per-call timeout.
func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	embedding, err := r.embedder.Embed(embedCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: embedding timeout: %v", ErrRetrievalFailed, err)
		}
		return nil, fmt.Errorf("%w: embedding query: %v", ErrRetrievalFailed, err)
	}
	return embedding, nil
}
