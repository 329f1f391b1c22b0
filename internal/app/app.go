// Package app provides application initialization and dependency injection.
//
// App is the container that wires configuration, storage, the embedder, the
// semantic cache, the rate limiter, and the retrieval/ingestion pipelines.
// Construction happens in Setup; Close releases everything in reverse order.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/embed"
	"github.com/quarrylabs/quarry/internal/ingest"
	"github.com/quarrylabs/quarry/internal/ratelimit"
	"github.com/quarrylabs/quarry/internal/retrieval"
	"github.com/quarrylabs/quarry/internal/semcache"
	"github.com/quarrylabs/quarry/internal/vector"
)

// App is the core application container.
type App struct {
	Config *config.Config
	Logger *slog.Logger

	// Infrastructure
	DBPool *pgxpool.Pool
	Redis  *redis.Client

	// Domain components
	Embedder  *embed.GenkitEmbedder
	Store     *vector.Store
	Cache     *semcache.Cache
	Limiter   ratelimit.Limiter
	Retriever *retrieval.Retriever
	Ingestor  *ingest.Ingestor

	otelShutdown func(context.Context) error
}

// Shutdown bound for trace export flush.
const otelShutdownTimeout = 5 * time.Second

// Close gracefully shuts down all resources in reverse initialization order.
// Safe to call on a partially constructed App.
func (a *App) Close() error {
	if a.Logger != nil {
		a.Logger.Info("shutting down application")
	}

	if a.Limiter != nil {
		a.Limiter.Close()
	}

	var firstErr error
	if a.Redis != nil {
		if err := a.Redis.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if a.DBPool != nil {
		a.DBPool.Close()
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), otelShutdownTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	return firstErr
}
