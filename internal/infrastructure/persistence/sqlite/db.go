package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/pkg/database"
	"go.uber.org/zap"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const txKey contextKey = "tx"

// DB wraps the database connection and implements port.TransactionManager.
// Repositories obtain their executor from it so they join the transaction
// carried by ctx.
type DB struct {
	conn   *database.DB
	logger *zap.Logger
}

// NewDB creates a new database wrapper
func NewDB(conn *database.DB, logger *zap.Logger) *DB {
	return &DB{
		conn:   conn,
		logger: logger,
	}
}

// Dialect returns the SQL flavour of the underlying connection.
func (db *DB) Dialect() database.Dialect {
	return db.conn.Dialect()
}

// WithTransaction implements port.TransactionManager.
// A nested call joins the transaction already carried by ctx.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if tx := extractTx(ctx); tx != nil {
		return fn(ctx)
	}

	// SQLite connections open with _txlock=immediate, so BEGIN already holds
	// the database write lock.
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		db.logger.Error("Failed to begin transaction", zap.Error(err))
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	txCtx := context.WithValue(ctx, txKey, tx)

	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			db.logger.Error("Transaction panicked, rolled back", zap.Any("panic", p))
			panic(p)
		}
	}()

	if err := fn(txCtx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			db.logger.Error("Failed to rollback transaction", zap.Error(rbErr))
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		db.logger.Error("Failed to commit transaction", zap.Error(err))
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// WithFlowTransaction implements port.TransactionManager. It runs fn in a
// transaction that holds the flow's row lock on Postgres, or the database
// write lock on SQLite.
func (db *DB) WithFlowTransaction(ctx context.Context, flowID string, fn func(ctx context.Context) error) error {
	return db.WithTransaction(ctx, func(ctx context.Context) error {
		query := "SELECT id FROM approval_flows WHERE id = ?"
		if db.conn.Dialect() == database.DialectPostgres {
			query += " FOR UPDATE"
		}

		var id string
		err := db.Executor(ctx).QueryRowContext(ctx, query, flowID).Scan(&id)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("flow %s: %w", flowID, workflow.ErrFlowNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock flow: %w", err)
		}

		return fn(ctx)
	})
}

// Executor returns the transaction carried by ctx, or the connection pool.
// Queries are written with ? placeholders and rebound for the dialect.
func (db *DB) Executor(ctx context.Context) Executor {
	var inner Executor = db.conn.DB
	if tx := extractTx(ctx); tx != nil {
		inner = tx
	}
	return &boundExecutor{inner: inner, dialect: db.conn.Dialect()}
}

// extractTx retrieves transaction from context if present
func extractTx(ctx context.Context) *sql.Tx {
	if tx, ok := ctx.Value(txKey).(*sql.Tx); ok {
		return tx
	}
	return nil
}

// Executor covers both *sql.DB and *sql.Tx
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

type boundExecutor struct {
	inner   Executor
	dialect database.Dialect
}

func (e *boundExecutor) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	return e.inner.ExecContext(ctx, database.Rebind(e.dialect, query), args...)
}

func (e *boundExecutor) QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	return e.inner.QueryContext(ctx, database.Rebind(e.dialect, query), args...)
}

func (e *boundExecutor) QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row {
	return e.inner.QueryRowContext(ctx, database.Rebind(e.dialect, query), args...)
}

// Verify interface compliance
var _ port.TransactionManager = (*DB)(nil)
