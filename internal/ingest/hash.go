package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrDuplicateContent is returned when the exact byte content of a source
// document has been ingested before. Callers must distinguish it from generic
// ingestion failure: it is an expected, non-retriable condition (409-class,
// not 500-class).
var ErrDuplicateContent = errors.New("duplicate content: source already ingested")

// SourceHash returns the SHA-256 hex digest of the exact byte content.
//
// The hash is pure and deterministic: byte-identical content always yields
// the identical digest regardless of filename, MIME framing, or ingestion
// path, so the same source uploaded twice is always detected. It is computed
// once over the whole source document — never per chunk — and stored
// redundantly on every chunk record.
func SourceHash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
