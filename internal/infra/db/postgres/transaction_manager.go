package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"course-access-bot/internal/domain"
	"course-access-bot/internal/domain/ports/repository"
)

var _ repository.TransactionManager = (*TxManager)(nil)

// TxManager implements repository.TransactionManager for Postgres (pgx).
// The whole transaction, commit included, runs under the store timeout.
type TxManager struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func NewTxManager(pool *pgxpool.Pool, timeout time.Duration) *TxManager {
	return &TxManager{pool: pool, timeout: timeout}
}

// WithTx opens a DB transaction and passes the tx handle to fn.
// If fn returns an error, the transaction is rolled back; otherwise it is committed.
func (m *TxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.timeout)
		defer cancel()
	}

	tx, err := m.pool.BeginTx(ctx, txOpt)
	if err != nil {
		return domain.StoreError("begin tx", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return domain.StoreError("commit tx", err)
	}
	return nil
}

type querier interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
}

func getExecutor(pool *pgxpool.Pool, tx repository.Tx) (querier, error) {
	switch v := tx.(type) {
	case pgx.Tx:
		return v, nil
	case *pgxpool.Conn:
		return v, nil
	case *pgxpool.Pool:
		return v, nil
	case nil:
		if pool != nil {
			return pool, nil
		}
		return nil, domain.ErrInvalidExecContext
	default:
		return nil, domain.ErrInvalidExecContext
	}
}

func inTx(tx repository.Tx) bool {
	_, ok := tx.(pgx.Tx)
	return ok
}

// store bundles the pool with the per-call timeout applied outside transactions.
type store struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

func (s store) bound(ctx context.Context, tx repository.Tx) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 || inTx(tx) {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s store) execSQL(ctx context.Context, tx repository.Tx, op, q string, args ...interface{}) (pgconn.CommandTag, error) {
	ex, err := getExecutor(s.pool, tx)
	if err != nil {
		return nil, err
	}
	ctx, cancel := s.bound(ctx, tx)
	defer cancel()
	tag, err := ex.Exec(ctx, q, args...)
	if err != nil {
		return nil, domain.StoreError(op, err)
	}
	return tag, nil
}

// pickRow runs a single-row query and hands the row to scan before the
// call's context is released. pgx.ErrNoRows becomes domain.ErrNotFound.
func (s store) pickRow(ctx context.Context, tx repository.Tx, op, q string, scan func(pgx.Row) error, args ...interface{}) error {
	ex, err := getExecutor(s.pool, tx)
	if err != nil {
		return err
	}
	ctx, cancel := s.bound(ctx, tx)
	defer cancel()
	if err := scan(ex.QueryRow(ctx, q, args...)); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ErrNotFound
		}
		return domain.StoreError(op, err)
	}
	return nil
}

func (s store) queryRows(ctx context.Context, tx repository.Tx, op, q string, each func(pgx.Rows) error, args ...interface{}) error {
	ex, err := getExecutor(s.pool, tx)
	if err != nil {
		return err
	}
	ctx, cancel := s.bound(ctx, tx)
	defer cancel()
	rows, err := ex.Query(ctx, q, args...)
	if err != nil {
		return domain.StoreError(op, err)
	}
	defer rows.Close()
	for rows.Next() {
		if err := each(rows); err != nil {
			return domain.StoreError(op, err)
		}
	}
	if err := rows.Err(); err != nil {
		return domain.StoreError(op, err)
	}
	return nil
}
