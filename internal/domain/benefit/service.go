package benefit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicrewards/rewards-api/internal/domain/user"
	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/pkg/cache"
	"github.com/civicrewards/rewards-api/internal/pkg/clock"
	"github.com/civicrewards/rewards-api/internal/pkg/database"
	"github.com/civicrewards/rewards-api/internal/pkg/logger"
	"github.com/civicrewards/rewards-api/internal/pkg/metrics"
)

const (
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Ledger is the part of the points ledger a redemption needs.
type Ledger interface {
	Wallet(ctx context.Context, userID uuid.UUID) (*wallet.Wallet, error)
	DebitPointsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, benefitID *uuid.UUID) (*wallet.Receipt, error)
	Committed(ctx context.Context, r *wallet.Receipt)
}

// UserReader resolves the citizen shown on a merchant's scan confirmation.
type UserReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (*user.User, error)
}

type Config struct {
	RedemptionTTL time.Duration
	CatalogTTL    time.Duration
}

type Service struct {
	db          *sqlx.DB
	repo        *Repository
	ledger      Ledger
	users       UserReader
	invalidator *cache.Invalidator
	clock       clock.Clock
	cfg         Config
}

func NewService(db *sqlx.DB, repo *Repository, ledger Ledger, users UserReader, invalidator *cache.Invalidator, clk clock.Clock, cfg Config) *Service {
	if clk == nil {
		clk = clock.NewRealClock()
	}
	if cfg.RedemptionTTL <= 0 {
		cfg.RedemptionTTL = 72 * time.Hour
	}
	return &Service{
		db:          db,
		repo:        repo,
		ledger:      ledger,
		users:       users,
		invalidator: invalidator,
		clock:       clk,
		cfg:         cfg,
	}
}

// Redeem spends the benefit's cost from the user's wallet, takes one unit of
// stock and issues a scan-once redemption code. All writes share one transaction.
func (s *Service) Redeem(ctx context.Context, userID, benefitID uuid.UUID) (*RedeemResult, error) {
	b, err := s.repo.GetByID(ctx, s.db, benefitID)
	if err != nil {
		return nil, err
	}
	if !b.Active {
		return nil, ErrBenefitInactive
	}
	if b.Stock <= 0 {
		return nil, ErrInsufficientStock
	}

	w, err := s.ledger.Wallet(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w.Balance < b.PointsCost {
		return nil, wallet.ErrInsufficientBalance
	}

	code, err := NewQRCode()
	if err != nil {
		return nil, err
	}

	var (
		receipt    *wallet.Receipt
		updated    *Benefit
		redemption *Redemption
	)
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		current, err := s.repo.GetByID(ctx, tx, benefitID)
		if err != nil {
			return err
		}

		receipt, err = s.ledger.DebitPointsTx(ctx, tx, userID, current.PointsCost, "Redeemed: "+current.Title, &current.ID)
		if err != nil {
			return err
		}

		updated, err = s.repo.DecrementStock(ctx, tx, current, 1)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		redemption = &Redemption{
			ID:            uuid.New(),
			UserID:        userID,
			BenefitID:     current.ID,
			QRCode:        code,
			Status:        StatusIssued,
			PointsSpent:   current.PointsCost,
			TransactionID: &receipt.Transaction.ID,
			ExpiresAt:     now.Add(s.cfg.RedemptionTTL),
		}
		return s.repo.CreateRedemption(ctx, tx, redemption)
	})
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) || errors.Is(err, ErrInsufficientStock) {
			logger.LogWarn(ctx, "redemption rolled back",
				"user_id", userID.String(),
				"benefit_id", benefitID.String(),
				"error", err.Error(),
			)
		}
		return nil, err
	}

	s.ledger.Committed(ctx, receipt)
	s.invalidator.BenefitStock(ctx, benefitID)
	metrics.Default().ObserveRedemption(string(StatusIssued))

	logger.LogInfo(ctx, "benefit redeemed",
		"user_id", userID.String(),
		"benefit_id", benefitID.String(),
		"redemption_id", redemption.ID.String(),
		"points", redemption.PointsSpent,
		"stock", updated.Stock,
	)

	return &RedeemResult{
		Redemption: redemption,
		Benefit:    updated.Summary(),
		Balance:    receipt.Wallet.Balance,
		Stock:      updated.Stock,
	}, nil
}

// ScanAndRedeem is the merchant-side ISSUED -> REDEEMED transition. Points and
// stock were settled at redeem time, so a scan moves no balances.
func (s *Service) ScanAndRedeem(ctx context.Context, qrCode string, merchantID uuid.UUID) (*ScanResult, error) {
	qrCode = NormalizeQRCode(qrCode)
	if qrCode == "" {
		return nil, ErrRedemptionNotFound
	}

	red, err := s.repo.GetRedemptionByQRCode(ctx, s.db, qrCode)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	switch {
	case red.Status == StatusRedeemed:
		return nil, ErrAlreadyRedeemed
	case red.Expired(now):
		s.expire(ctx, red)
		return nil, ErrExpired
	}

	b, err := s.repo.GetByID(ctx, s.db, red.BenefitID)
	if err != nil {
		return nil, err
	}
	owner, err := s.users.GetByID(ctx, red.UserID)
	if err != nil {
		return nil, err
	}

	var updated *Redemption
	err = database.WithTx(ctx, s.db, func(tx *sqlx.Tx) error {
		var err error
		updated, err = s.repo.MarkRedeemed(ctx, tx, red.ID, merchantID, now)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyRedeemed) {
			logger.LogWarn(ctx, "duplicate scan lost race",
				"redemption_id", red.ID.String(),
				"merchant_id", merchantID.String(),
			)
		}
		if errors.Is(err, ErrExpired) {
			s.expire(ctx, red)
		}
		return nil, err
	}

	metrics.Default().ObserveRedemption(string(StatusRedeemed))
	logger.LogInfo(ctx, "redemption scanned",
		"redemption_id", updated.ID.String(),
		"merchant_id", merchantID.String(),
		"user_id", updated.UserID.String(),
	)

	return &ScanResult{
		Redemption:    updated,
		User:          owner.Summary(),
		Benefit:       b.Summary(),
		PointsCharged: updated.PointsSpent,
	}, nil
}

func (s *Service) expire(ctx context.Context, red *Redemption) {
	if red.Status != StatusIssued {
		return
	}
	changed, err := s.repo.MarkExpired(ctx, red.ID)
	if err != nil {
		logger.LogWarn(ctx, "failed to mark redemption expired", "redemption_id", red.ID.String(), "error", err.Error())
		return
	}
	if changed {
		metrics.Default().ObserveRedemption(string(StatusExpired))
	}
}

// ListCatalog returns active benefits, read through the catalog cache key.
func (s *Service) ListCatalog(ctx context.Context) ([]Benefit, error) {
	return cache.Load(ctx, s.invalidator, cache.BenefitCatalogKey, "", s.cfg.CatalogTTL, s.repo.ListActive)
}

func (s *Service) GetBenefit(ctx context.Context, id uuid.UUID) (*Benefit, error) {
	return cache.Load(ctx, s.invalidator, cache.BenefitKey(id), "", s.cfg.CatalogTTL,
		func(ctx context.Context) (*Benefit, error) {
			return s.repo.GetByID(ctx, s.db, id)
		})
}

// ListUserRedemptions pages through a user's redemptions. Lapsed codes are
// reported as EXPIRED without writing.
func (s *Service) ListUserRedemptions(ctx context.Context, userID uuid.UUID, page, limit int) (*RedemptionPage, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = defaultPageLimit
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}

	items, total, err := s.repo.ListRedemptionsByUser(ctx, userID, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	for i := range items {
		items[i].Status = items[i].EffectiveStatus(now)
	}
	return &RedemptionPage{Items: items, Total: total, Page: page, Limit: limit}, nil
}

func (s *Service) GetUserRedemption(ctx context.Context, userID, redemptionID uuid.UUID) (*Redemption, error) {
	red, err := s.repo.GetRedemptionByID(ctx, redemptionID)
	if err != nil {
		return nil, err
	}
	if red.UserID != userID {
		return nil, ErrRedemptionNotFound
	}
	red.Status = red.EffectiveStatus(s.clock.Now())
	return red, nil
}
