package database

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/civicrewards/rewards-api/internal/pkg/errs"
)

// Postgres error codes the domain layer cares about.
const (
	CodeUniqueViolation = "23505"
	CodeCheckViolation  = "23514"
)

var (
	ErrTransactionBegin  = errors.New("failed to begin transaction")
	ErrTransactionCommit = errors.New("failed to commit transaction")
)

// Queryer is satisfied by both *sqlx.DB and *sqlx.Tx.
type Queryer interface {
	sqlx.QueryerContext
	sqlx.ExecerContext
	GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// WithTx runs fn inside a single READ COMMITTED transaction. The transaction is
// committed only if fn returns nil; any error rolls back every statement fn issued.
// WithTx never retries.
func WithTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return errs.Wrap(errors.Join(ErrTransactionBegin, err), "begin tx")
	}

	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Warn().Err(rbErr).Msg("failed to rollback transaction")
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return errs.Wrap(errors.Join(ErrTransactionCommit, err), "commit tx")
	}
	return nil
}

// WithSnapshot runs fn inside a read-only REPEATABLE READ transaction so every
// query fn issues sees the same committed state.
func WithSnapshot(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
	if err != nil {
		return errs.Wrap(errors.Join(ErrTransactionBegin, err), "begin snapshot")
	}

	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			log.Warn().Err(rbErr).Msg("failed to release snapshot")
		}
	}()

	return fn(tx)
}

// IsUniqueViolation reports whether err is a Postgres unique_violation,
// optionally restricted to a named constraint or index.
func IsUniqueViolation(err error, constraint string) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || string(pqErr.Code) != CodeUniqueViolation {
		return false
	}
	return constraint == "" || pqErr.Constraint == constraint
}

// IsCheckViolation reports whether err is a Postgres check_violation.
func IsCheckViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == CodeCheckViolation
}
