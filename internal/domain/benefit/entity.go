package benefit

import (
	"time"

	"github.com/google/uuid"

	"github.com/civicrewards/rewards-api/internal/domain/user"
)

// Benefit is a merchant catalog item redeemable for points.
type Benefit struct {
	ID          uuid.UUID `db:"id" json:"id"`
	MerchantID  uuid.UUID `db:"merchant_id" json:"merchant_id"`
	Title       string    `db:"title" json:"title"`
	Description string    `db:"description" json:"description"`
	PointsCost  int64     `db:"points_cost" json:"points_cost"`
	Stock       int       `db:"stock" json:"stock"`
	Active      bool      `db:"active" json:"active"`
	Version     int64     `db:"version" json:"version"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Redeemable reports whether a new redemption may be issued right now.
func (b *Benefit) Redeemable() bool {
	return b.Active && b.Stock > 0
}

type Summary struct {
	ID          uuid.UUID `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	PointsCost  int64     `json:"points_cost"`
}

func (b *Benefit) Summary() Summary {
	return Summary{ID: b.ID, Title: b.Title, Description: b.Description, PointsCost: b.PointsCost}
}

// RedemptionStatus: ISSUED -> REDEEMED | EXPIRED. Both targets are terminal.
type RedemptionStatus string

const (
	StatusIssued   RedemptionStatus = "ISSUED"
	StatusRedeemed RedemptionStatus = "REDEEMED"
	StatusExpired  RedemptionStatus = "EXPIRED"
)

type Redemption struct {
	ID                  uuid.UUID        `db:"id" json:"id"`
	UserID              uuid.UUID        `db:"user_id" json:"user_id"`
	BenefitID           uuid.UUID        `db:"benefit_id" json:"benefit_id"`
	QRCode              string           `db:"qr_code" json:"qr_code"`
	Status              RedemptionStatus `db:"status" json:"status"`
	PointsSpent         int64            `db:"points_spent" json:"points_spent"`
	TransactionID       *uuid.UUID       `db:"transaction_id" json:"transaction_id,omitempty"`
	ScannedByMerchantID *uuid.UUID       `db:"scanned_by_merchant_id" json:"scanned_by_merchant_id,omitempty"`
	RedeemedAt          *time.Time       `db:"redeemed_at" json:"redeemed_at,omitempty"`
	ExpiresAt           time.Time        `db:"expires_at" json:"expires_at"`
	CreatedAt           time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time        `db:"updated_at" json:"updated_at"`
}

// Expired reports whether the redemption can no longer be scanned at now.
func (r *Redemption) Expired(now time.Time) bool {
	return r.Status == StatusExpired || (r.Status == StatusIssued && now.After(r.ExpiresAt))
}

// EffectiveStatus is the status a reader should see; an ISSUED redemption
// past its window reads as EXPIRED even before a scan flips it.
func (r *Redemption) EffectiveStatus(now time.Time) RedemptionStatus {
	if r.Status == StatusIssued && now.After(r.ExpiresAt) {
		return StatusExpired
	}
	return r.Status
}

// RedeemResult is returned to the citizen after a successful redeem.
type RedeemResult struct {
	Redemption *Redemption `json:"redemption"`
	Benefit    Summary     `json:"benefit"`
	Balance    int64       `json:"balance"`
	Stock      int         `json:"stock"`
}

// ScanResult is the merchant's confirmation payload.
type ScanResult struct {
	Redemption    *Redemption  `json:"redemption"`
	User          user.Summary `json:"user"`
	Benefit       Summary      `json:"benefit"`
	PointsCharged int64        `json:"points_charged"`
}

type RedemptionPage struct {
	Items []Redemption
	Total int
	Page  int
	Limit int
}
