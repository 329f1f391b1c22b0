package ratelimit

import (
	"log/slog"
	"sync"
	"time"
)

// record tracks one caller's fixed window.
type record struct {
	count   int
	resetAt time.Time
}

// Local is an in-process fixed-window limiter: each key gets up to maxRequests
// per window, counted from its first request in the window.
//
// A background sweeper removes expired records to bound memory. The sweep is
// maintenance only — it never runs on the request path — and is safe to run
// concurrently with Allow.
//
// State lives in process memory and does not survive restarts; deployments
// with multiple instances should use the distributed backend instead.
type Local struct {
	mu      sync.Mutex
	records map[string]*record

	window      time.Duration
	maxRequests int
	logger      *slog.Logger
	now         clock

	stop chan struct{}
	done chan struct{}
}

// NewLocal creates a local limiter and starts its sweeper.
// Call Close when done to stop the sweeper goroutine.
func NewLocal(window time.Duration, maxRequests int, logger *slog.Logger) *Local {
	if logger == nil {
		logger = slog.Default()
	}

	l := &Local{
		records:     make(map[string]*record),
		window:      window,
		maxRequests: maxRequests,
		logger:      logger,
		now:         time.Now,
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}

	go l.sweep()
	return l
}

// Allow reports whether the caller may proceed, counting this call against
// the caller's window.
func (l *Local) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	r, ok := l.records[key]
	if !ok || now.After(r.resetAt) {
		l.records[key] = &record{count: 1, resetAt: now.Add(l.window)}
		return true
	}

	if r.count >= l.maxRequests {
		return false
	}

	r.count++
	return true
}

// Close stops the background sweeper and waits for it to exit.
func (l *Local) Close() {
	close(l.stop)
	<-l.done
}

// sweep periodically removes expired records so the key map stays bounded by
// the set of recently active callers.
func (l *Local) sweep() {
	defer close(l.done)

	ticker := time.NewTicker(l.window)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.removeExpired()
		}
	}
}

func (l *Local) removeExpired() {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, r := range l.records {
		if now.After(r.resetAt) {
			delete(l.records, key)
			removed++
		}
	}

	if removed > 0 {
		l.logger.Debug("swept expired rate limit records", "removed", removed, "remaining", len(l.records))
	}
}
