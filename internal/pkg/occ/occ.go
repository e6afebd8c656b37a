// Package occ implements the optimistic concurrency guard used for every
// versioned aggregate (wallets, benefits) and for state-guarded rows.
//
// A guarded update is a single conditional statement of the form
//
//	UPDATE t SET ..., version = version + 1 WHERE id = $1 AND version = $2 [AND extra guard] RETURNING ...
//
// When no row matches, the caller gets ErrConflict and must re-read current
// state before deciding what to report. The guard never retries.
package occ

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"github.com/civicrewards/rewards-api/internal/pkg/errs"
	"github.com/civicrewards/rewards-api/internal/pkg/metrics"
)

// ErrConflict means the guarded row no longer matched the expected version or state.
var ErrConflict = errors.New("concurrency conflict, re-read and try again")

// Update runs a guarded UPDATE ... RETURNING and scans the updated row into dest.
// aggregate labels conflict metrics ("wallet", "benefit", "redemption", ...).
func Update(ctx context.Context, q sqlx.QueryerContext, aggregate string, dest interface{}, query string, args ...interface{}) error {
	err := classify(sqlx.GetContext(ctx, q, dest, query, args...))
	if errors.Is(err, ErrConflict) {
		metrics.Default().ObserveConflict(aggregate)
	}
	return err
}

// Resolve disambiguates a zero-row guarded update. probe re-reads the row and
// returns the domain error explaining the miss (insufficient stock, row gone, ...),
// or nil when the only explanation left is a concurrent version change.
func Resolve(ctx context.Context, probe func(ctx context.Context) error) error {
	if err := probe(ctx); err != nil {
		return err
	}
	return ErrConflict
}

func classify(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return ErrConflict
	default:
		return errs.Wrap(err, "guarded update")
	}
}
