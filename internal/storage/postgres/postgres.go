// Package postgres archives classified transfers in Postgres.
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"poolwatch/internal/storage"
)

// maxArchiveConns caps the pool. The archiver writes from a single goroutine.
const maxArchiveConns = 4

// Pool is the pgx pool shared by the transfer archive and migrations.
type Pool struct {
	*pgxpool.Pool
}

// NewPool opens a pool for dsn and waits for the server to answer a ping.
func NewPool(ctx context.Context, dsn string) (*Pool, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%w: empty postgres dsn", storage.ErrInvalidInput)
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres dsn: %w", err)
	}
	if cfg.MaxConns > maxArchiveConns {
		cfg.MaxConns = maxArchiveConns
	}
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres unreachable at %s: %w", cfg.ConnConfig.Host, err)
	}
	return &Pool{Pool: pool}, nil
}
