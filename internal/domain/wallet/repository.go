package wallet

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicrewards/rewards-api/internal/pkg/database"
	"github.com/civicrewards/rewards-api/internal/pkg/errs"
	"github.com/civicrewards/rewards-api/internal/pkg/occ"
)

const queryTimeout = 3 * time.Second

const walletColumns = `id, user_id, balance, version, created_at, updated_at`

const transactionColumns = `id, wallet_id, type, amount, description, benefit_id, metadata, created_at`

// Repository is the only writer of wallets and point_transactions. Every method
// takes the Queryer to run on so callers can compose them inside one transaction.
type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) DB() *sqlx.DB {
	return r.db
}

func (r *Repository) Create(ctx context.Context, q database.Queryer, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := q.GetContext(ctx, &w, `
		INSERT INTO wallets (id, user_id, balance, version)
		VALUES ($1, $2, 0, 0)
		RETURNING `+walletColumns,
		uuid.New(), userID,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "wallets_user_id_key") {
			return nil, ErrWalletExists
		}
		return nil, errs.Wrap(err, "wallet repository create")
	}
	return &w, nil
}

func (r *Repository) GetByUserID(ctx context.Context, q database.Queryer, userID uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := q.GetContext(ctx, &w, `SELECT `+walletColumns+` FROM wallets WHERE user_id = $1`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, errs.Wrap(err, "wallet repository get by user")
	}
	return &w, nil
}

func (r *Repository) getByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*Wallet, error) {
	var w Wallet
	err := q.GetContext(ctx, &w, `SELECT `+walletColumns+` FROM wallets WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, errs.Wrap(err, "wallet repository get")
	}
	return &w, nil
}

// ApplyDelta adds delta to the balance of w if its version is still current and
// the result stays non-negative. A miss is resolved by re-reading the wallet:
// ErrInsufficientBalance when the delta no longer fits, otherwise ErrConcurrencyConflict.
func (r *Repository) ApplyDelta(ctx context.Context, q database.Queryer, w *Wallet, delta int64) (*Wallet, error) {
	var updated Wallet
	err := occ.Update(ctx, q, "wallet", &updated, `
		UPDATE wallets
		SET balance = balance + $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND balance + $3 >= 0
		RETURNING `+walletColumns,
		w.ID, w.Version, delta,
	)
	if errors.Is(err, occ.ErrConflict) {
		return nil, occ.Resolve(ctx, func(ctx context.Context) error {
			current, err := r.getByID(ctx, q, w.ID)
			if err != nil {
				return err
			}
			if current.Balance+delta < 0 {
				return ErrInsufficientBalance
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *Repository) InsertTransaction(ctx context.Context, q database.Queryer, t *Transaction) error {
	err := q.GetContext(ctx, &t.CreatedAt, `
		INSERT INTO point_transactions (id, wallet_id, type, amount, description, benefit_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at`,
		t.ID, t.WalletID, t.Type, t.Amount, t.Description, t.BenefitID, t.Metadata,
	)
	if err != nil {
		return errs.Wrap(err, "wallet repository insert transaction")
	}
	return nil
}

// ListTransactions returns ledger entries newest first.
func (r *Repository) ListTransactions(ctx context.Context, q database.Queryer, walletID uuid.UUID, limit, offset int) ([]Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Transaction, 0)
	err := q.SelectContext(ctx, &items, `
		SELECT `+transactionColumns+`
		FROM point_transactions
		WHERE wallet_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		walletID, limit, offset,
	)
	if err != nil {
		return nil, errs.Wrap(err, "wallet repository list transactions")
	}
	return items, nil
}

func (r *Repository) CountTransactions(ctx context.Context, q database.Queryer, walletID uuid.UUID) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var total int
	if err := q.GetContext(ctx, &total, `SELECT COUNT(*) FROM point_transactions WHERE wallet_id = $1`, walletID); err != nil {
		return 0, errs.Wrap(err, "wallet repository count transactions")
	}
	return total, nil
}

// Reconcile reads the balance and the ledger sums in one statement so they
// come from the same snapshot.
func (r *Repository) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var row struct {
		Balance int64 `db:"balance"`
		Earned  int64 `db:"earned"`
		Spent   int64 `db:"spent"`
	}
	err := r.db.GetContext(ctx, &row, `
		SELECT
			w.balance,
			COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'EARNED'), 0) AS earned,
			COALESCE(SUM(t.amount) FILTER (WHERE t.type = 'SPENT'), 0) AS spent
		FROM wallets w
		LEFT JOIN point_transactions t ON t.wallet_id = w.id
		WHERE w.user_id = $1
		GROUP BY w.id, w.balance`,
		userID,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		return nil, errs.Wrap(err, "wallet repository reconcile")
	}

	return &Reconciliation{
		UserID:     userID,
		Balance:    row.Balance,
		Earned:     row.Earned,
		Spent:      row.Spent,
		Consistent: row.Balance == row.Earned-row.Spent,
	}, nil
}
