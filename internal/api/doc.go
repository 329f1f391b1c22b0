// Package api implements the JSON HTTP surface of the quarry service.
//
// It is deliberately thin plumbing: route handlers decode requests, call the
// retrieval/ingestion components, and map their errors onto HTTP status
// codes. All algorithmic work lives in internal/retrieval, internal/ingest,
// internal/semcache, and internal/ratelimit.
//
// Error mapping:
//   - ingest.ErrDuplicateContent     → 409 Conflict (expected, non-retriable)
//   - retrieval.ErrRetrievalFailed   → 503 Service Unavailable
//   - rate limit exceeded            → 429 Too Many Requests + Retry-After
package api
