package wallet

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicrewards/rewards-api/internal/pkg/cache"
	"github.com/civicrewards/rewards-api/internal/pkg/database"
	"github.com/civicrewards/rewards-api/internal/pkg/logger"
	"github.com/civicrewards/rewards-api/internal/pkg/metrics"
)

const (
	defaultRecentLimit = 10
	defaultPageLimit   = 20
	maxPageLimit       = 100
)

// Service is the points ledger. It is the only path that mutates wallets.
type Service struct {
	db          *sqlx.DB
	repo        *Repository
	invalidator *cache.Invalidator
	balanceTTL  time.Duration
}

func NewService(repo *Repository, invalidator *cache.Invalidator, balanceTTL time.Duration) *Service {
	return &Service{
		db:          repo.DB(),
		repo:        repo,
		invalidator: invalidator,
		balanceTTL:  balanceTTL,
	}
}

// CreditPoints adds amount to the user's wallet and records an EARNED entry.
func (s *Service) CreditPoints(ctx context.Context, userID uuid.UUID, amount int64, description string, actorID uuid.UUID) (*Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	var receipt *Receipt
	err := database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		receipt, err = s.CreditPointsTx(ctx, tx, userID, amount, description, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Committed(ctx, receipt)
	return receipt, nil
}

// CreditPointsTx is CreditPoints inside a caller-owned transaction. The caller
// commits and then calls Committed.
func (s *Service) CreditPointsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, actorID uuid.UUID) (*Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	w, err := s.repo.GetByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}

	var actor *uuid.UUID
	if actorID != uuid.Nil {
		actor = &actorID
	}
	return s.apply(ctx, tx, w, TransactionTypeEarned, amount, description, nil, actor)
}

// DebitPoints removes amount from the user's wallet and records a SPENT entry.
// The balance is checked before the transaction starts and again by the guarded update.
func (s *Service) DebitPoints(ctx context.Context, userID uuid.UUID, amount int64, description string, benefitID *uuid.UUID) (*Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	current, err := s.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if current.Balance < amount {
		return nil, ErrInsufficientBalance
	}

	var receipt *Receipt
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		receipt, err = s.DebitPointsTx(ctx, tx, userID, amount, description, benefitID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.Committed(ctx, receipt)
	return receipt, nil
}

// DebitPointsTx is DebitPoints inside a caller-owned transaction.
func (s *Service) DebitPointsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, benefitID *uuid.UUID) (*Receipt, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}

	w, err := s.repo.GetByUserID(ctx, tx, userID)
	if err != nil {
		return nil, err
	}
	if w.Balance < amount {
		return nil, ErrInsufficientBalance
	}

	actor := userID
	return s.apply(ctx, tx, w, TransactionTypeSpent, amount, description, benefitID, &actor)
}

func (s *Service) apply(ctx context.Context, tx *sqlx.Tx, w *Wallet, txType TransactionType, amount int64, description string, benefitID, actorID *uuid.UUID) (*Receipt, error) {
	delta := amount
	if txType == TransactionTypeSpent {
		delta = -amount
	}

	updated, err := s.repo.ApplyDelta(ctx, tx, w, delta)
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			logger.LogWarn(ctx, "wallet update lost race",
				"user_id", w.UserID.String(),
				"wallet_version", w.Version,
				"type", string(txType),
			)
		}
		return nil, err
	}

	entry := &Transaction{
		ID:          uuid.New(),
		WalletID:    w.ID,
		Type:        txType,
		Amount:      amount,
		Description: description,
		BenefitID:   benefitID,
		Metadata: Metadata{
			PreviousBalance: w.Balance,
			NewBalance:      updated.Balance,
			ActorID:         actorID,
		},
	}
	if err := s.repo.InsertTransaction(ctx, tx, entry); err != nil {
		return nil, err
	}

	return &Receipt{Wallet: updated, Transaction: entry}, nil
}

// Committed runs the post-commit side effects of a ledger mutation.
func (s *Service) Committed(ctx context.Context, r *Receipt) {
	if r == nil || r.Wallet == nil || r.Transaction == nil {
		return
	}

	s.invalidator.WalletBalance(ctx, r.Wallet.UserID)
	metrics.Default().ObserveMutation(string(r.Transaction.Type))

	logger.LogInfo(ctx, "ledger mutation committed",
		"user_id", r.Wallet.UserID.String(),
		"amount", r.Transaction.Amount,
		"type", string(r.Transaction.Type),
		"balance", r.Wallet.Balance,
		"version", r.Wallet.Version,
	)
}

// GetBalance returns the wallet balance plus the limit most recent entries.
// The wallet and its entries come from one snapshot and are cached together.
func (s *Service) GetBalance(ctx context.Context, userID uuid.UUID, limit int) (*Balance, error) {
	if limit <= 0 {
		limit = defaultRecentLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	return cache.Load(ctx, s.invalidator, cache.WalletBalanceKey(userID), strconv.Itoa(limit), s.balanceTTL,
		func(ctx context.Context) (*Balance, error) {
			var out *Balance
			err := database.WithSnapshot(ctx, s.db, func(tx *sqlx.Tx) error {
				w, err := s.repo.GetByUserID(ctx, tx, userID)
				if err != nil {
					return err
				}
				recent, err := s.repo.ListTransactions(ctx, tx, w.ID, limit, 0)
				if err != nil {
					return err
				}
				out = &Balance{
					UserID:       userID,
					Balance:      w.Balance,
					Version:      w.Version,
					Transactions: recent,
				}
				return nil
			})
			return out, err
		})
}

func (s *Service) GetTransactionHistory(ctx context.Context, userID uuid.UUID, page, limit int) (*History, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	history := &History{Page: page, Limit: limit}
	err := database.WithSnapshot(ctx, s.db, func(tx *sqlx.Tx) error {
		w, err := s.repo.GetByUserID(ctx, tx, userID)
		if err != nil {
			return err
		}
		if history.Items, err = s.repo.ListTransactions(ctx, tx, w.ID, limit, (page-1)*limit); err != nil {
			return err
		}
		history.Total, err = s.repo.CountTransactions(ctx, tx, w.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return history, nil
}

// Reconcile checks balance == sum(EARNED) - sum(SPENT) for one wallet.
func (s *Service) Reconcile(ctx context.Context, userID uuid.UUID) (*Reconciliation, error) {
	rec, err := s.repo.Reconcile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !rec.Consistent {
		logger.LogError(ctx, ErrLedgerMismatch, "wallet ledger mismatch",
			"user_id", userID.String(),
			"balance", rec.Balance,
			"earned", rec.Earned,
			"spent", rec.Spent,
		)
	}
	return rec, nil
}

// Wallet reads the current wallet straight from the store, bypassing the cache.
func (s *Service) Wallet(ctx context.Context, userID uuid.UUID) (*Wallet, error) {
	return s.repo.GetByUserID(ctx, s.db, userID)
}
