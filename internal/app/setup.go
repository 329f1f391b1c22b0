package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/quarrylabs/quarry/db"
	"github.com/quarrylabs/quarry/internal/config"
	"github.com/quarrylabs/quarry/internal/database"
	"github.com/quarrylabs/quarry/internal/embed"
	"github.com/quarrylabs/quarry/internal/ingest"
	"github.com/quarrylabs/quarry/internal/observability"
	"github.com/quarrylabs/quarry/internal/ratelimit"
	"github.com/quarrylabs/quarry/internal/retrieval"
	"github.com/quarrylabs/quarry/internal/semcache"
	"github.com/quarrylabs/quarry/internal/vector"
)

// Startup bound on the Redis connectivity check.
const redisPingTimeout = 5 * time.Second

// Setup creates and initializes the application.
// Returns an App with embedded cleanup — call Close() to release.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *App, retErr error) {
	a := &App{Config: cfg, Logger: logger}

	// On error, clean up everything already initialized
	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	shutdown, err := observability.Setup(ctx, observability.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	})
	if err != nil {
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	a.otelShutdown = shutdown

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	a.DBPool = pool

	rdb, err := provideRedis(ctx, cfg)
	if err != nil {
		return nil, err
	}
	a.Redis = rdb

	embedder, err := embed.New(ctx, cfg.EmbedderModel, config.EmbeddingDimension)
	if err != nil {
		return nil, fmt.Errorf("initializing embedder: %w", err)
	}
	a.Embedder = embedder

	a.Store = vector.New(vector.NewPgxQuerier(pool), logger)

	cache, err := semcache.New(semcache.NewRedisKV(rdb), semcache.Config{
		MaxEntries: cfg.CacheMaxEntries,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing semantic cache: %w", err)
	}
	a.Cache = cache

	limiter, err := ratelimit.New(cfg, rdb, logger)
	if err != nil {
		return nil, fmt.Errorf("initializing rate limiter: %w", err)
	}
	a.Limiter = limiter

	a.Retriever = retrieval.New(embedder, cache, a.Store, retrieval.Config{
		CacheThreshold: cfg.CacheThreshold,
		CacheTTL:       cfg.CacheTTL(),
	}, logger)

	a.Ingestor = ingest.New(embedder, a.Store, ingest.Options{
		EmbedRate: cfg.IngestEmbedRate,
	}, logger)

	return a, nil
}

// provideRedis connects to Redis and verifies reachability. The cache and the
// distributed limiter both degrade gracefully at request time, but a dead
// Redis at startup is a deployment problem worth failing loudly on.
func provideRedis(ctx context.Context, cfg *config.Config) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("connecting to redis at %s: %w", cfg.RedisAddr, err)
	}

	return rdb, nil
}
