package user

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/pkg/database"
	"github.com/civicrewards/rewards-api/internal/pkg/errs"
)

// WalletCreator provisions the wallet that belongs to a new user.
type WalletCreator interface {
	Create(ctx context.Context, q database.Queryer, userID uuid.UUID) (*wallet.Wallet, error)
}

// Repository defines user data access interface
type Repository interface {
	Create(ctx context.Context, user *User) (*wallet.Wallet, error)
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
}

type repository struct {
	db      *sqlx.DB
	wallets WalletCreator
}

// NewRepository creates new user repository
func NewRepository(db *sqlx.DB, wallets WalletCreator) Repository {
	return &repository{db: db, wallets: wallets}
}

// Create inserts the user and its empty wallet atomically.
func (r *repository) Create(ctx context.Context, u *User) (*wallet.Wallet, error) {
	if !IsValidRole(string(u.Role)) {
		return nil, ErrInvalidRole
	}
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}

	var w *wallet.Wallet
	err := database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		err := tx.GetContext(ctx, u, `
			INSERT INTO users (id, email, full_name, role)
			VALUES ($1, $2, $3, $4)
			RETURNING id, email, full_name, role, created_at, updated_at`,
			u.ID, u.Email, u.FullName, u.Role,
		)
		if err != nil {
			if database.IsUniqueViolation(err, "users_email_key") {
				return ErrEmailAlreadyExists
			}
			return errs.Wrap(err, "user repository create")
		}

		w, err = r.wallets.Create(ctx, tx, u.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

// GetByID returns user by ID
func (r *repository) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	var u User
	err := r.db.GetContext(ctx, &u, `
		SELECT id, email, full_name, role, created_at, updated_at
		FROM users WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, errs.Wrap(err, "user repository get by id")
	}
	return &u, nil
}
