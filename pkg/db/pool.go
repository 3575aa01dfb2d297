// Package db provides database connection pooling via pgx and the fault log store.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
)

const logPrefix = "db:pool"

// PoolParams tunes NewPool. Zero values use the defaults.
type PoolParams struct {
	MaxConns int32
	MinConns int32
}

// NewPool creates a new pgx connection pool from the given database URL.
func NewPool(ctx context.Context, databaseURL string, params ...PoolParams) (*pgxpool.Pool, error) {
	slog.Info(fmt.Sprintf("%s - Connecting to database", logPrefix))

	config, err := poolConfig(databaseURL, params...)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to create pool: %w", logPrefix, err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%s - failed to ping database: %w", logPrefix, err)
	}

	slog.Info(fmt.Sprintf("%s - Database connection established (max=%d)", logPrefix, config.MaxConns))
	return pool, nil
}

// poolConfig parses databaseURL and applies the pool sizes. Later params win.
func poolConfig(databaseURL string, params ...PoolParams) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%s - failed to parse database URL: %w", logPrefix, err)
	}

	config.MaxConns = 20
	config.MinConns = 2
	for _, p := range params {
		if p.MaxConns > 0 {
			config.MaxConns = p.MaxConns
		}
		if p.MinConns > 0 {
			config.MinConns = p.MinConns
		}
	}
	if config.MinConns > config.MaxConns {
		return nil, fmt.Errorf("%s - min connections %d exceed max %d", logPrefix, config.MinConns, config.MaxConns)
	}
	return config, nil
}
