// Package vector manages document chunks with vector similarity search
// backed by PostgreSQL + pgvector.
package vector

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
)

// Default timeout for similarity search queries.
const defaultQueryTimeout = 10 * time.Second

// Querier defines the interface for database operations on documents.
// Following Go best practices: interfaces are defined by the consumer, not the
// provider (similar to http.RoundTripper, sql.Driver, io.Reader).
//
// This interface allows Store to depend on abstraction rather than concrete
// implementation, improving testability and flexibility. The production
// implementation lives in queries.go (pgx); tests use an in-memory fake.
type Querier interface {
	// InsertDocument inserts a document chunk
	InsertDocument(ctx context.Context, arg InsertDocumentParams) error

	// SearchDocuments performs vector similarity search, returning rows with
	// similarity >= MinSimilarity ordered by similarity descending
	SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error)

	// ExistsBySourceHash reports whether any chunk carries the given source hash
	ExistsBySourceHash(ctx context.Context, sourceHash string) (bool, error)

	// CountDocuments counts all document chunks
	CountDocuments(ctx context.Context) (int64, error)
}

// InsertDocumentParams carries one chunk insert.
type InsertDocumentParams struct {
	ID         string
	Content    string
	SourceHash string
	Embedding  *pgvector.Vector
	Metadata   []byte
	CreatedAt  time.Time
}

// SearchDocumentsParams carries one similarity search.
type SearchDocumentsParams struct {
	QueryEmbedding *pgvector.Vector
	MinSimilarity  float64
	ResultLimit    int32
}

// SearchDocumentsRow is one similarity search result row.
type SearchDocumentsRow struct {
	ID         string
	Content    string
	SourceHash string
	Metadata   []byte
	CreatedAt  time.Time
	Similarity float64
}

// Store manages document chunks with vector search capabilities.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	queries Querier
	logger  *slog.Logger
}

// New creates a new Store instance.
//
// Example (production):
//
//	store := vector.New(vector.NewPgxQuerier(pool), slog.Default())
//
// Example (testing with fake):
//
//	store := vector.New(fakeQuerier, log.NewNop())
func New(querier Querier, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		queries: querier,
		logger:  logger,
	}
}

// Insert stores a document chunk with its pre-computed embedding.
// A fresh UUID is assigned; the returned Document reflects what was stored.
func (s *Store) Insert(ctx context.Context, content string, embedding []float32, sourceHash string, metadata map[string]string) (Document, error) {
	metadataJSON, err := json.Marshal(metadata)
	if err != nil {
		return Document{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	doc := Document{
		ID:         uuid.NewString(),
		Content:    content,
		SourceHash: sourceHash,
		Metadata:   metadata,
		CreatedAt:  time.Now(),
	}

	vec := pgvector.NewVector(embedding)
	err = s.queries.InsertDocument(ctx, InsertDocumentParams{
		ID:         doc.ID,
		Content:    doc.Content,
		SourceHash: doc.SourceHash,
		Embedding:  &vec,
		Metadata:   metadataJSON,
		CreatedAt:  doc.CreatedAt,
	})
	if err != nil {
		return Document{}, fmt.Errorf("failed to insert document %q: %w", doc.ID, err)
	}

	s.logger.Debug("inserted document chunk",
		"id", doc.ID,
		"source_hash", sourceHash,
		"content_length", len(content))
	return doc, nil
}

// Query performs similarity search against the stored chunks.
// Results are ordered by descending cosine similarity and every result
// satisfies Similarity >= threshold. Applies a 10-second timeout to prevent
// long-running vector searches from blocking the query path.
func (s *Store) Query(ctx context.Context, embedding []float32, threshold float64, limit int) ([]ScoredDocument, error) {
	if limit < 1 {
		return nil, fmt.Errorf("limit must be positive, got %d", limit)
	}

	queryCtx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	vec := pgvector.NewVector(embedding)
	rows, err := s.queries.SearchDocuments(queryCtx, SearchDocumentsParams{
		QueryEmbedding: &vec,
		MinSimilarity:  threshold,
		ResultLimit:    int32(limit), // #nosec G115 -- limit validated positive and small
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("similarity search timeout: %w", err)
		}
		return nil, fmt.Errorf("similarity search failed: %w", err)
	}

	return s.rowsToScored(rows), nil
}

// ExistsByHash reports whether any stored chunk carries the given source hash.
func (s *Store) ExistsByHash(ctx context.Context, sourceHash string) (bool, error) {
	exists, err := s.queries.ExistsBySourceHash(ctx, sourceHash)
	if err != nil {
		return false, fmt.Errorf("failed to check source hash: %w", err)
	}
	return exists, nil
}

// Count returns the total number of stored chunks.
func (s *Store) Count(ctx context.Context) (int64, error) {
	count, err := s.queries.CountDocuments(ctx)
	if err != nil {
		return 0, fmt.Errorf("count failed: %w", err)
	}
	return count, nil
}

// rowsToScored converts query rows to business model results.
func (s *Store) rowsToScored(rows []SearchDocumentsRow) []ScoredDocument {
	results := make([]ScoredDocument, 0, len(rows))

	for _, row := range rows {
		var metadata map[string]string
		if len(row.Metadata) > 0 {
			if err := json.Unmarshal(row.Metadata, &metadata); err != nil {
				s.logger.Warn("failed to parse metadata", "document_id", row.ID, "error", err)
				metadata = make(map[string]string)
			}
		}

		results = append(results, ScoredDocument{
			Document: Document{
				ID:         row.ID,
				Content:    row.Content,
				SourceHash: row.SourceHash,
				Metadata:   metadata,
				CreatedAt:  row.CreatedAt,
			},
			Similarity: row.Similarity,
		})
	}

	return results
}
