package semcache

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultBucketKey is the hash bucket holding all cache entries.
const DefaultBucketKey = "quarry:semcache"

// KV is the minimal hash-bucket contract the cache is built on.
// Following Go best practices: interfaces are defined by the consumer, not the
// provider. The production implementation wraps a Redis client (redis.go);
// tests use an in-memory fake.
type KV interface {
	// HSet sets one field in the bucket
	HSet(ctx context.Context, key, field, value string) error

	// HGetAll reads all fields of the bucket
	HGetAll(ctx context.Context, key string) (map[string]string, error)

	// HDel deletes fields from the bucket
	HDel(ctx context.Context, key string, fields ...string) error

	// Expire sets the TTL on the whole bucket
	Expire(ctx context.Context, key string, ttl time.Duration) error

	// HLen counts the fields in the bucket
	HLen(ctx context.Context, key string) (int64, error)
}

// Entry is one cached (query, embedding, response) triple.
// Entries are immutable after creation; they disappear via bucket TTL expiry
// or capacity eviction, never by mutation.
type Entry struct {
	ID        string    `json:"id"`
	Query     string    `json:"query"`
	Embedding []float32 `json:"embedding"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
}

// Config holds cache construction parameters.
type Config struct {
	// BucketKey is the hash bucket name. Empty uses DefaultBucketKey.
	BucketKey string

	// MaxEntries bounds the live entry count. Must be positive.
	MaxEntries int
}

// Cache is a semantic response cache over a hash-bucket KV.
//
// Cache is safe for concurrent use by multiple goroutines. Store calls are
// serialized in-process so the insert+evict sequence cannot race with itself;
// see the package documentation for the cross-process capacity caveat.
type Cache struct {
	kv         KV
	bucketKey  string
	maxEntries int
	logger     *slog.Logger

	mu sync.Mutex // serializes Store (insert + capacity enforcement)
}

// New creates a Cache.
//
// Example (production):
//
//	cache := semcache.New(semcache.NewRedisKV(rdb), semcache.Config{MaxEntries: 500}, logger)
//
// Example (testing):
//
//	cache := semcache.New(newFakeKV(), semcache.Config{MaxEntries: 3}, log.NewNop())
func New(kv KV, cfg Config, logger *slog.Logger) (*Cache, error) {
	if kv == nil {
		return nil, fmt.Errorf("kv is required")
	}
	if cfg.MaxEntries < 1 {
		return nil, fmt.Errorf("max entries must be positive, got %d", cfg.MaxEntries)
	}
	if logger == nil {
		logger = slog.Default()
	}

	bucketKey := cfg.BucketKey
	if bucketKey == "" {
		bucketKey = DefaultBucketKey
	}

	return &Cache{
		kv:         kv,
		bucketKey:  bucketKey,
		maxEntries: cfg.MaxEntries,
		logger:     logger,
	}, nil
}

// Lookup scans all live entries and returns the response of the first entry
// whose cosine similarity to queryEmbedding meets or exceeds threshold.
//
// The second return is false on a miss. Backing-store failures are swallowed
// and reported as a miss: the caller falls through to the full retrieval path,
// which is always a correct (if slower) answer.
func (c *Cache) Lookup(ctx context.Context, queryEmbedding []float32, threshold float64) (string, bool) {
	fields, err := c.kv.HGetAll(ctx, c.bucketKey)
	if err != nil {
		c.logger.Warn("cache lookup failed, treating as miss", "error", err)
		return "", false
	}

	for field, raw := range fields {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			c.logger.Warn("skipping undecodable cache entry", "field", field, "error", err)
			continue
		}

		if sim := Cosine(queryEmbedding, entry.Embedding); sim >= threshold {
			c.logger.Debug("semantic cache hit",
				"entry_id", entry.ID,
				"similarity", sim,
				"cached_query", entry.Query)
			return entry.Response, true
		}
	}

	return "", false
}

// Store inserts a new entry and refreshes the cache-wide sliding TTL, then
// enforces the capacity bound by evicting oldest entries.
//
// Store is best-effort and returns nothing: a failed cache write must never
// fail the query that produced the response. Failures are logged.
func (c *Cache) Store(ctx context.Context, query string, embedding []float32, response string, ttl time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := Entry{
		ID:        uuid.NewString(),
		Query:     query,
		Embedding: embedding,
		Response:  response,
		Timestamp: time.Now(),
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache store failed: marshal", "error", err)
		return
	}

	if err := c.kv.HSet(ctx, c.bucketKey, entry.ID, string(raw)); err != nil {
		c.logger.Warn("cache store failed: write", "error", err)
		return
	}

	// Sliding TTL over the whole bucket: every write pushes expiry out.
	if err := c.kv.Expire(ctx, c.bucketKey, ttl); err != nil {
		c.logger.Warn("cache store: failed to refresh TTL", "error", err)
	}

	c.enforceCapacity(ctx)
}

// Len returns the current live entry count, or an error if the backing store
// is unreachable.
func (c *Cache) Len(ctx context.Context) (int, error) {
	n, err := c.kv.HLen(ctx, c.bucketKey)
	if err != nil {
		return 0, fmt.Errorf("cache len: %w", err)
	}
	return int(n), nil
}

// enforceCapacity evicts oldest-by-timestamp entries until the count is back
// at the bound. Triggered only on insert, never on lookup. A failed eviction
// pass logs and leaves the cache oversized rather than lose served-fine data;
// the next successful insert retries.
func (c *Cache) enforceCapacity(ctx context.Context) {
	count, err := c.kv.HLen(ctx, c.bucketKey)
	if err != nil {
		c.logger.Warn("cache eviction skipped: count failed", "error", err)
		return
	}
	excess := int(count) - c.maxEntries
	if excess <= 0 {
		return
	}

	fields, err := c.kv.HGetAll(ctx, c.bucketKey)
	if err != nil {
		c.logger.Warn("cache eviction skipped: read failed", "error", err)
		return
	}

	type aged struct {
		field string
		ts    time.Time
	}
	entries := make([]aged, 0, len(fields))
	for field, raw := range fields {
		var entry Entry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			// Undecodable entries are the first to go.
			entries = append(entries, aged{field: field})
			continue
		}
		entries = append(entries, aged{field: field, ts: entry.Timestamp})
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].ts.Before(entries[j].ts)
	})

	if excess > len(entries) {
		excess = len(entries)
	}
	victims := make([]string, 0, excess)
	for _, e := range entries[:excess] {
		victims = append(victims, e.field)
	}

	if err := c.kv.HDel(ctx, c.bucketKey, victims...); err != nil {
		c.logger.Warn("cache eviction failed, cache left oversized", "victims", len(victims), "error", err)
		return
	}

	c.logger.Debug("evicted oldest cache entries", "evicted", len(victims), "bound", c.maxEntries)
}
