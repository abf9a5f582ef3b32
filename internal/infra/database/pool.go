// Package database constructs the pgxpool used by the Postgres-backed
// OrderStore. It exists separately from internal/infra/persistence/postgres
// so the pool's lifecycle (open at startup, close at shutdown) is owned by
// the process entrypoint rather than by the repository package.
package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Connect opens a pgxpool against dsn and verifies connectivity with a
// ping before returning. Callers are responsible for closing the returned
// pool on shutdown.
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("database: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("database: open pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database: ping: %w", err)
	}

	return pool, nil
}
