package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// counterKeyPrefix namespaces rate limit counters in the shared store.
const counterKeyPrefix = "quarry:ratelimit"

// Counter is the atomic-counter contract the distributed backend is built on.
// Following Go best practices: interfaces are defined by the consumer, not the
// provider. Production implementation is RedisCounter; tests use a fake.
type Counter interface {
	// Incr atomically increments the counter and returns the new value.
	Incr(ctx context.Context, key string) (int64, error)

	// Expire sets the TTL on the counter key.
	Expire(ctx context.Context, key string, ttl time.Duration) error
}

// Distributed is a fixed-window limiter over a shared atomic counter.
//
// All mutable state lives in the external store, so any number of service
// instances share one quota per key with no in-process coordination. The
// fixed-window algorithm admits up to 2×max requests across a window boundary
// in the worst case — an accepted approximation, not a bug.
//
// Counters are created by the first increment in a window and auto-expire via
// the store-managed TTL; expiry is the destructor, there is no explicit
// delete path.
type Distributed struct {
	counter     Counter
	window      time.Duration
	maxRequests int
	logger      *slog.Logger

	// timeout bounds each store round-trip so a stalled backend cannot stall
	// the request path.
	timeout time.Duration
}

// NewDistributed creates a distributed limiter over the given counter store.
func NewDistributed(counter Counter, window time.Duration, maxRequests int, logger *slog.Logger) *Distributed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributed{
		counter:     counter,
		window:      window,
		maxRequests: maxRequests,
		logger:      logger,
		timeout:     2 * time.Second,
	}
}

// Allow reports whether the caller may proceed, counting this call against
// the caller's window. Store failures FAIL OPEN with a warning (see package
// documentation).
func (d *Distributed) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	counterKey := fmt.Sprintf("%s:%s", counterKeyPrefix, key)

	count, err := d.counter.Incr(ctx, counterKey)
	if err != nil {
		d.logger.Warn("rate limit backend unavailable, failing open", "key", key, "error", err)
		return true
	}

	// First increment of a fresh window: arm the store-managed expiry.
	if count == 1 {
		if err := d.counter.Expire(ctx, counterKey, d.window); err != nil {
			d.logger.Warn("failed to set rate limit window expiry", "key", key, "error", err)
		}
	}

	return count <= int64(d.maxRequests)
}

// Close implements Limiter. The distributed backend holds no local resources.
func (*Distributed) Close() {}

// RedisCounter adapts a go-redis client to the Counter interface.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter wraps the given Redis client.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

// Incr atomically increments the counter and returns the new value.
func (r *RedisCounter) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

// Expire sets the TTL on the counter key.
func (r *RedisCounter) Expire(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("redis expire %s: %w", key, err)
	}
	return nil
}
