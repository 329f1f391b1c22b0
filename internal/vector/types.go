package vector

import "time"

// Document represents a stored content chunk with its embedding metadata.
// SourceHash is the SHA-256 digest of the whole source document the chunk
// came from; every chunk of one upload carries the same hash, so duplicate
// detection operates at source-document granularity.
type Document struct {
	ID         string            // Unique identifier
	Content    string            // Chunk text content
	SourceHash string            // Digest of the full source document
	Metadata   map[string]string // Optional metadata (source name, chunk index, etc.)
	CreatedAt  time.Time         // Creation timestamp
}

// ScoredDocument is a single similarity-search result.
type ScoredDocument struct {
	Document   Document
	Similarity float64 // Cosine similarity score (1 = identical direction)
}
