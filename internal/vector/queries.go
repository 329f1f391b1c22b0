package vector

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PgxQuerier is the production Querier backed by a pgx connection pool.
// SQL mirrors the schema in db/migrations: documents(id, content, source_hash,
// embedding vector(1536), metadata jsonb, created_at).
type PgxQuerier struct {
	pool *pgxpool.Pool
}

// NewPgxQuerier creates a Querier over the given pool.
func NewPgxQuerier(pool *pgxpool.Pool) *PgxQuerier {
	return &PgxQuerier{pool: pool}
}

const insertDocumentSQL = `
INSERT INTO documents (id, content, source_hash, embedding, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6)
`

// InsertDocument inserts a document chunk.
func (q *PgxQuerier) InsertDocument(ctx context.Context, arg InsertDocumentParams) error {
	_, err := q.pool.Exec(ctx, insertDocumentSQL,
		arg.ID, arg.Content, arg.SourceHash, arg.Embedding, arg.Metadata, arg.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// searchDocumentsSQL computes cosine similarity as 1 - cosine distance.
// The <=> operator uses the ivfflat/hnsw index when present; ordering by the
// raw distance expression (not the aliased similarity) keeps the index usable.
const searchDocumentsSQL = `
SELECT id, content, source_hash, metadata, created_at,
       1 - (embedding <=> $1) AS similarity
FROM documents
WHERE 1 - (embedding <=> $1) >= $2
ORDER BY embedding <=> $1
LIMIT $3
`

// SearchDocuments performs vector similarity search ordered by descending similarity.
func (q *PgxQuerier) SearchDocuments(ctx context.Context, arg SearchDocumentsParams) ([]SearchDocumentsRow, error) {
	rows, err := q.pool.Query(ctx, searchDocumentsSQL,
		arg.QueryEmbedding, arg.MinSimilarity, arg.ResultLimit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var results []SearchDocumentsRow
	for rows.Next() {
		var row SearchDocumentsRow
		if err := rows.Scan(&row.ID, &row.Content, &row.SourceHash, &row.Metadata, &row.CreatedAt, &row.Similarity); err != nil {
			return nil, fmt.Errorf("scan search row: %w", err)
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search rows: %w", err)
	}
	return results, nil
}

const existsBySourceHashSQL = `
SELECT EXISTS (SELECT 1 FROM documents WHERE source_hash = $1)
`

// ExistsBySourceHash reports whether any chunk carries the given source hash.
func (q *PgxQuerier) ExistsBySourceHash(ctx context.Context, sourceHash string) (bool, error) {
	var exists bool
	if err := q.pool.QueryRow(ctx, existsBySourceHashSQL, sourceHash).Scan(&exists); err != nil {
		return false, fmt.Errorf("exists by source hash: %w", err)
	}
	return exists, nil
}

const countDocumentsSQL = `SELECT COUNT(*) FROM documents`

// CountDocuments counts all document chunks.
func (q *PgxQuerier) CountDocuments(ctx context.Context) (int64, error) {
	var count int64
	if err := q.pool.QueryRow(ctx, countDocumentsSQL).Scan(&count); err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return count, nil
}
