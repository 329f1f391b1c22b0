// Package database constructs the PostgreSQL connection pool shared by all
// vector store consumers. Migrations run separately via the db package.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quarrylabs/quarry/internal/config"
)

// NewPool creates a PostgreSQL connection pool from configuration.
// Pool is configured with sensible defaults for connection management and
// connectivity is verified with a short ping so startup fails fast when the
// database is unreachable. The caller owns the returned pool and must Close it.
func NewPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection config: %w", err)
	}

	// Configure connection pool settings
	poolCfg.MaxConns = 10                      // Maximum number of connections in the pool
	poolCfg.MinConns = 2                       // Minimum number of connections to keep open
	poolCfg.MaxConnLifetime = 30 * time.Minute // Maximum lifetime of a connection
	poolCfg.MaxConnIdleTime = 5 * time.Minute  // Maximum idle time before closing
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Verify connectivity with timeout to fail fast if database is unreachable
	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}
