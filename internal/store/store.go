// Package store is the time-series persistence layer: schema
// management, batched upserts for ticks and depth levels, signal rows,
// the instrument master read, and the compression/retention sweepers
// that enforce the lifecycle rules named in the data model.
package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store owns the connection pool shared by every persistence
// component in the process.
type Store struct {
	log  *slog.Logger
	Pool *pgxpool.Pool
}

// Open connects to databaseURL and verifies connectivity with a ping.
func Open(ctx context.Context, databaseURL string, log *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}
	return &Store{log: log, Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// Migrate creates every table and index the core needs if they do not
// already exist. It is safe to call on every process start.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements {
		if _, err := s.Pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// batchExecTimeout bounds a single batched SQL operation, matching the
// 30s SQL batch timeout named in the concurrency model.
func batchExecTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, d)
}
