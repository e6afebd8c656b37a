package benefit

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

const benefitColumns = `id, merchant_id, title, description, points_cost, stock, active, version, created_at, updated_at`

const redemptionColumns = `id, user_id, benefit_id, qr_code, status, points_spent, transaction_id,
	scanned_by_merchant_id, redeemed_at, expires_at, created_at, updated_at`

type Repository struct {
	db *sqlx.DB
}

func NewRepository(db *sqlx.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a catalog item. Catalog editing is an admin concern; the ledger
// only needs it for provisioning and tests.
func (r *Repository) Create(ctx context.Context, b *Benefit) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	err := r.db.GetContext(ctx, b, `
		INSERT INTO benefits (id, merchant_id, title, description, points_cost, stock, active)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+benefitColumns,
		b.ID, b.MerchantID, b.Title, b.Description, b.PointsCost, b.Stock, b.Active,
	)
	if err != nil {
		return errs.Wrap(err, "benefit repository create")
	}
	return nil
}

func (r *Repository) GetByID(ctx context.Context, q database.Queryer, id uuid.UUID) (*Benefit, error) {
	var b Benefit
	err := q.GetContext(ctx, &b, `SELECT `+benefitColumns+` FROM benefits WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBenefitNotFound
		}
		return nil, errs.Wrap(err, "benefit repository get")
	}
	return &b, nil
}

// ListActive returns the active catalog, newest first.
func (r *Repository) ListActive(ctx context.Context) ([]Benefit, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Benefit, 0)
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+benefitColumns+`
		FROM benefits
		WHERE active = TRUE
		ORDER BY created_at DESC`)
	if err != nil {
		return nil, errs.Wrap(err, "benefit repository list active")
	}
	return items, nil
}

// DecrementStock takes qty units from b if its version is current, it is still
// active and enough stock remains. A miss is resolved with a follow-up read.
func (r *Repository) DecrementStock(ctx context.Context, q database.Queryer, b *Benefit, qty int) (*Benefit, error) {
	var updated Benefit
	err := occ.Update(ctx, q, "benefit", &updated, `
		UPDATE benefits
		SET stock = stock - $3, version = version + 1, updated_at = now()
		WHERE id = $1 AND version = $2 AND active = TRUE AND stock >= $3
		RETURNING `+benefitColumns,
		b.ID, b.Version, qty,
	)
	if errors.Is(err, occ.ErrConflict) {
		return nil, occ.Resolve(ctx, func(ctx context.Context) error {
			current, err := r.GetByID(ctx, q, b.ID)
			if err != nil {
				return err
			}
			if !current.Active {
				return ErrBenefitInactive
			}
			if current.Stock < qty {
				return ErrInsufficientStock
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (r *Repository) CreateRedemption(ctx context.Context, q database.Queryer, red *Redemption) error {
	err := q.GetContext(ctx, red, `
		INSERT INTO benefit_redemptions (id, user_id, benefit_id, qr_code, status, points_spent, transaction_id, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING `+redemptionColumns,
		red.ID, red.UserID, red.BenefitID, red.QRCode, red.Status, red.PointsSpent, red.TransactionID, red.ExpiresAt,
	)
	if err != nil {
		return errs.Wrap(err, "benefit repository create redemption")
	}
	return nil
}

func (r *Repository) GetRedemptionByQRCode(ctx context.Context, q database.Queryer, code string) (*Redemption, error) {
	var red Redemption
	err := q.GetContext(ctx, &red, `SELECT `+redemptionColumns+` FROM benefit_redemptions WHERE qr_code = $1`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, errs.Wrap(err, "benefit repository get redemption by code")
	}
	return &red, nil
}

func (r *Repository) GetRedemptionByID(ctx context.Context, id uuid.UUID) (*Redemption, error) {
	var red Redemption
	err := r.db.GetContext(ctx, &red, `SELECT `+redemptionColumns+` FROM benefit_redemptions WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRedemptionNotFound
		}
		return nil, errs.Wrap(err, "benefit repository get redemption")
	}
	return &red, nil
}

// MarkRedeemed is the single ISSUED -> REDEEMED writer. Only one concurrent
// caller can match status = 'ISSUED'; the others are told why they lost.
func (r *Repository) MarkRedeemed(ctx context.Context, q database.Queryer, id, merchantID uuid.UUID, now time.Time) (*Redemption, error) {
	var updated Redemption
	err := occ.Update(ctx, q, "redemption", &updated, `
		UPDATE benefit_redemptions
		SET status = 'REDEEMED', scanned_by_merchant_id = $2, redeemed_at = $3, updated_at = now()
		WHERE id = $1 AND status = 'ISSUED' AND expires_at >= $3
		RETURNING `+redemptionColumns,
		id, merchantID, now,
	)
	if errors.Is(err, occ.ErrConflict) {
		return nil, occ.Resolve(ctx, func(ctx context.Context) error {
			var current Redemption
			if err := q.GetContext(ctx, &current, `SELECT `+redemptionColumns+` FROM benefit_redemptions WHERE id = $1`, id); err != nil {
				if errors.Is(err, sql.ErrNoRows) {
					return ErrRedemptionNotFound
				}
				return errs.Wrap(err, "benefit repository reread redemption")
			}
			switch {
			case current.Status == StatusRedeemed:
				return ErrAlreadyRedeemed
			case current.Expired(now):
				return ErrExpired
			}
			return nil
		})
	}
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkExpired flips an ISSUED redemption to EXPIRED. It reports whether the row changed.
func (r *Repository) MarkExpired(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE benefit_redemptions
		SET status = 'EXPIRED', updated_at = now()
		WHERE id = $1 AND status = 'ISSUED'`, id)
	if err != nil {
		return false, errs.Wrap(err, "benefit repository mark expired")
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, errs.Wrap(err, "benefit repository mark expired rows")
	}
	return rows == 1, nil
}

func (r *Repository) ListRedemptionsByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]Redemption, int, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	items := make([]Redemption, 0)
	err := r.db.SelectContext(ctx, &items, `
		SELECT `+redemptionColumns+`
		FROM benefit_redemptions
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`,
		userID, limit, offset,
	)
	if err != nil {
		return nil, 0, errs.Wrap(err, "benefit repository list redemptions")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM benefit_redemptions WHERE user_id = $1`, userID); err != nil {
		return nil, 0, errs.Wrap(err, "benefit repository count redemptions")
	}
	return items, total, nil
}
