// Package store provides the Postgres-backed and in-memory implementations
// of the engine's WorkflowStore and ExecutionStore contracts, grounded on
// albert-saclot-workflow-go-challenge's pgx/v5 storage layer: a narrow DB
// interface satisfied by both *pgxpool.Pool and pgxmock, transaction-wrapped
// multi-table hydration, and a delete-and-reinsert upsert strategy for child
// rows.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/flowbase/workflow-engine/internal/platform/config"
)

// DB abstracts the pool operations the store layer uses. Satisfied by
// *pgxpool.Pool in production and pgxmock.PgxPoolIface in tests.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// querier is satisfied by both pgx.Tx and DB, letting hydration helpers run
// inside or outside a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresWorkflowStore is the Postgres-backed engine.WorkflowStore adapter.
type PostgresWorkflowStore struct {
	db DB
}

// NewPostgresWorkflowStore wraps an already-connected pool. Use Connect to
// dial one from config.
func NewPostgresWorkflowStore(db DB) *PostgresWorkflowStore {
	return &PostgresWorkflowStore{db: db}
}

// PostgresExecutionStore is the Postgres-backed engine.ExecutionStore adapter.
type PostgresExecutionStore struct {
	db DB
}

// NewPostgresExecutionStore wraps an already-connected pool. Use Connect to
// dial one from config.
func NewPostgresExecutionStore(db DB) *PostgresExecutionStore {
	return &PostgresExecutionStore{db: db}
}

// Connect opens a pgxpool against cfg and pings it.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxOpenConns)
	poolCfg.MinConns = int32(cfg.MaxIdleConns)
	poolCfg.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return pool, nil
}
