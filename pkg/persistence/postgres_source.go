package persistence

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/verge-graph/verge/pkg/txn"
)

// PostgresSource produces resource connections backed by PostgreSQL
// transactions. Each connection opens one SQL transaction from the pool;
// the enlisted resource commits or rolls it back when the kernel
// transaction completes.
type PostgresSource struct {
	name string
	pool *pgxpool.Pool
}

// NewPostgresSource connects a pool to the given DSN
func NewPostgresSource(ctx context.Context, name, dsn string) (*PostgresSource, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres source %s: %w", name, err)
	}
	return &PostgresSource{name: name, pool: pool}, nil
}

// Name identifies the source
func (s *PostgresSource) Name() string {
	return s.name
}

// CreateConnection begins a SQL transaction and wraps it as a resource
// connection
func (s *PostgresSource) CreateConnection(ctx context.Context) (ResourceConnection, error) {
	sqlTx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin postgres transaction: %w", err)
	}
	return &PostgresConnection{
		res: &postgresResource{tx: sqlTx},
	}, nil
}

// Close releases the underlying connection pool
func (s *PostgresSource) Close() {
	s.pool.Close()
}

// PostgresConnection is a ResourceConnection over one pgx transaction
type PostgresConnection struct {
	res       *postgresResource
	destroyed atomic.Bool
}

// Resource returns the enlistable handle
func (c *PostgresConnection) Resource() txn.Resource {
	return c.res
}

// Tx exposes the SQL transaction for callers that need to run statements
// on this connection
func (c *PostgresConnection) Tx() pgx.Tx {
	return c.res.tx
}

// Destroy rolls back the SQL transaction if it is still open, returning
// the pooled connection. Effective exactly once.
func (c *PostgresConnection) Destroy() error {
	if !c.destroyed.CompareAndSwap(false, true) {
		return ErrConnectionDestroyed
	}
	// Rollback after a completed transaction reports ErrTxClosed, which
	// just means there is nothing left to release.
	if err := c.res.tx.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return fmt.Errorf("release postgres connection: %w", err)
	}
	return nil
}

type postgresResource struct {
	tx   pgx.Tx
	done atomic.Bool
}

func (r *postgresResource) Commit(ctx context.Context) error {
	if !r.done.CompareAndSwap(false, true) {
		return nil
	}
	return r.tx.Commit(ctx)
}

func (r *postgresResource) Rollback(ctx context.Context) error {
	if !r.done.CompareAndSwap(false, true) {
		return nil
	}
	if err := r.tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return err
	}
	return nil
}
