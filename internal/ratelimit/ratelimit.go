// Package ratelimit provides admission control with two interchangeable
// backends sharing one contract: a process-local fixed-window counter and a
// Redis-backed distributed fixed-window counter.
//
// Backend selection is resolved once at startup from configuration (see New);
// the rest of the system depends only on the Limiter interface.
//
// Failure policy: both backends FAIL OPEN. A backend communication failure
// logs a warning and admits the request — availability of the query path
// outweighs strict quota enforcement. This is a deliberate policy decision,
// not an incidental default.
package ratelimit

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quarrylabs/quarry/internal/config"
)

// Limiter answers "may this caller proceed?". Allow is side-effecting: every
// call counts against the caller's window, whether admitted or not observed —
// implementations increment state for the key.
//
// Implementations are safe for concurrent use by multiple goroutines.
type Limiter interface {
	// Allow reports whether the caller identified by key may proceed.
	Allow(key string) bool

	// Close releases background resources (the local backend's sweeper).
	Close()
}

// New selects and constructs a Limiter from configuration.
// The redis client is only used by the "redis" backend and may be nil for
// the "local" backend.
func New(cfg *config.Config, client *redis.Client, logger *slog.Logger) (Limiter, error) {
	window := cfg.RateLimitWindow()
	maxReqs := cfg.RateLimitMaxRequests

	switch cfg.RateLimitBackend {
	case config.RateLimitBackendLocal:
		return NewLocal(window, maxReqs, logger), nil
	case config.RateLimitBackendRedis:
		if client == nil {
			return nil, fmt.Errorf("redis rate limit backend requires a redis client")
		}
		return NewDistributed(NewRedisCounter(client), window, maxReqs, logger), nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidRateLimitBackend, cfg.RateLimitBackend)
	}
}

// clock abstracts time.Now for deterministic window tests.
type clock func() time.Time
