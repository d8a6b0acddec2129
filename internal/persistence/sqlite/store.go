package sqlite

import (
	"context"
	"fmt"

	"github.com/example/groupsync/internal/persistence"
)

// Store implements persistence.Store on top of SQLite.
type Store struct {
	pool *ConnectionPool
}

var _ persistence.Store = (*Store)(nil)

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, config Config) (*Store, error) {
	pool, err := NewConnectionPool(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.MigrateUp(); err != nil {
		_ = pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// NewStore wraps an existing pool. The caller is responsible for migrations.
func NewStore(pool *ConnectionPool) *Store {
	return &Store{pool: pool}
}

// Pool exposes the connection pool for health checks and migrations.
func (s *Store) Pool() *ConnectionPool {
	return s.pool
}

// Ping checks that the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.db.PingContext(ctx); err != nil {
		return fmt.Errorf("sqlite: ping: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (s *Store) Close() error {
	return s.pool.Close()
}
