package benefit_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/civicrewards/rewards-api/internal/domain/benefit"
	"github.com/civicrewards/rewards-api/internal/domain/user"
	"github.com/civicrewards/rewards-api/internal/domain/wallet"
	"github.com/civicrewards/rewards-api/internal/pkg/cache"
	"github.com/civicrewards/rewards-api/internal/pkg/clock"
	"github.com/civicrewards/rewards-api/internal/pkg/database/dbtest"
)

type fixture struct {
	db       *sqlx.DB
	repo     *benefit.Repository
	wallets  *wallet.Service
	svc      *benefit.Service
	clock    *clock.MockClock
	cache    *cache.MemoryCache
	merchant uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	db := dbtest.Open(t)
	f := &fixture{
		db:    db,
		repo:  benefit.NewRepository(db),
		clock: clock.NewMockClock(time.Now().UTC()),
	}
	f.cache = cache.NewMemoryCache(f.clock)
	inv := cache.NewInvalidator(f.cache)
	f.wallets = wallet.NewService(wallet.NewRepository(db), inv, time.Minute)
	f.svc = f.newService(f.wallets)
	f.merchant = dbtest.CreateUser(t, db, user.RoleMerchant)
	return f
}

func (f *fixture) newService(ledger benefit.Ledger) *benefit.Service {
	users := user.NewRepository(f.db, wallet.NewRepository(f.db))
	return benefit.NewService(f.db, f.repo, ledger, users, cache.NewInvalidator(f.cache), f.clock, benefit.Config{
		RedemptionTTL: 72 * time.Hour,
		CatalogTTL:    time.Minute,
	})
}

func (f *fixture) citizen(t *testing.T, balance int64) uuid.UUID {
	t.Helper()
	id := dbtest.CreateUser(t, f.db, user.RoleCitizen)
	if balance > 0 {
		if _, err := f.wallets.CreditPoints(context.Background(), id, balance, "seed", uuid.Nil); err != nil {
			t.Fatalf("seed wallet failed: %v", err)
		}
	}
	return id
}

func (f *fixture) benefit(t *testing.T, cost int64, stock int, active bool) *benefit.Benefit {
	t.Helper()
	b := &benefit.Benefit{
		MerchantID: f.merchant,
		Title:      "Coffee",
		PointsCost: cost,
		Stock:      stock,
		Active:     active,
	}
	if err := f.repo.Create(context.Background(), b); err != nil {
		t.Fatalf("create benefit failed: %v", err)
	}
	return b
}

func (f *fixture) balance(t *testing.T, userID uuid.UUID) int64 {
	t.Helper()
	w, err := f.wallets.Wallet(context.Background(), userID)
	if err != nil {
		t.Fatalf("read wallet failed: %v", err)
	}
	return w.Balance
}

func (f *fixture) stock(t *testing.T, id uuid.UUID) int {
	t.Helper()
	b, err := f.repo.GetByID(context.Background(), f.db, id)
	if err != nil {
		t.Fatalf("read benefit failed: %v", err)
	}
	return b.Stock
}

func TestRedeemSpendsExactBalanceAndLastUnit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.citizen(t, 100)
	b := f.benefit(t, 100, 1, true)

	result, err := f.svc.Redeem(ctx, userID, b.ID)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}
	if result.Balance != 0 || result.Stock != 0 {
		t.Fatalf("expected balance 0 and stock 0, got %d and %d", result.Balance, result.Stock)
	}
	if result.Redemption.Status != benefit.StatusIssued || result.Redemption.QRCode == "" {
		t.Fatalf("unexpected redemption: %+v", result.Redemption)
	}
	if result.Redemption.TransactionID == nil {
		t.Fatal("expected redemption to reference its SPENT transaction")
	}
	if f.balance(t, userID) != 0 || f.stock(t, b.ID) != 0 {
		t.Fatal("store does not reflect the redemption")
	}

	rec, err := f.wallets.Reconcile(ctx, userID)
	if err != nil {
		t.Fatalf("reconcile failed: %v", err)
	}
	if !rec.Consistent || rec.Spent != 100 {
		t.Fatalf("unexpected reconciliation: %+v", rec)
	}

	// No stock left: the next redemption must not be created.
	other := f.citizen(t, 100)
	if _, err := f.svc.Redeem(ctx, other, b.ID); !errors.Is(err, benefit.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
}

func TestRedeemInsufficientBalanceChangesNothing(t *testing.T) {
	f := newFixture(t)

	userID := f.citizen(t, 50)
	b := f.benefit(t, 100, 3, true)

	if _, err := f.svc.Redeem(context.Background(), userID, b.ID); !errors.Is(err, wallet.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if f.balance(t, userID) != 50 || f.stock(t, b.ID) != 3 {
		t.Fatal("balance or stock changed after a rejected redeem")
	}
}

func TestRedeemRejectsInactiveAndUnknownBenefit(t *testing.T) {
	f := newFixture(t)

	userID := f.citizen(t, 500)
	inactive := f.benefit(t, 10, 5, false)

	if _, err := f.svc.Redeem(context.Background(), userID, inactive.ID); !errors.Is(err, benefit.ErrBenefitInactive) {
		t.Fatalf("expected ErrBenefitInactive, got %v", err)
	}
	if _, err := f.svc.Redeem(context.Background(), userID, uuid.New()); !errors.Is(err, benefit.ErrBenefitNotFound) {
		t.Fatalf("expected ErrBenefitNotFound, got %v", err)
	}
}

// drainingLedger empties the benefit's stock from another connection right
// after the wallet debit, so the stock guard fails inside the transaction.
type drainingLedger struct {
	*wallet.Service
	db        *sqlx.DB
	benefitID uuid.UUID
}

func (l *drainingLedger) DebitPointsTx(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID, amount int64, description string, benefitID *uuid.UUID) (*wallet.Receipt, error) {
	receipt, err := l.Service.DebitPointsTx(ctx, tx, userID, amount, description, benefitID)
	if err != nil {
		return nil, err
	}
	if _, err := l.db.ExecContext(ctx, `UPDATE benefits SET stock = 0, version = version + 1 WHERE id = $1`, l.benefitID); err != nil {
		return nil, err
	}
	return receipt, nil
}

func TestRedeemRollsBackDebitWhenStockGuardFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.citizen(t, 200)
	b := f.benefit(t, 80, 1, true)

	svc := f.newService(&drainingLedger{Service: f.wallets, db: f.db, benefitID: b.ID})

	if _, err := svc.Redeem(ctx, userID, b.ID); !errors.Is(err, benefit.ErrInsufficientStock) {
		t.Fatalf("expected ErrInsufficientStock, got %v", err)
	}
	if got := f.balance(t, userID); got != 200 {
		t.Fatalf("expected balance untouched at 200, got %d", got)
	}

	history, err := f.wallets.GetTransactionHistory(ctx, userID, 1, 10)
	if err != nil {
		t.Fatalf("history failed: %v", err)
	}
	if history.Total != 1 {
		t.Fatalf("expected only the seed transaction, got %d", history.Total)
	}

	page, err := f.svc.ListUserRedemptions(ctx, userID, 1, 10)
	if err != nil {
		t.Fatalf("list redemptions failed: %v", err)
	}
	if page.Total != 0 {
		t.Fatalf("expected no redemption row, got %d", page.Total)
	}
}

func TestScanTwiceSequentially(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.citizen(t, 100)
	b := f.benefit(t, 40, 2, true)

	redeemed, err := f.svc.Redeem(ctx, userID, b.ID)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	scan, err := f.svc.ScanAndRedeem(ctx, redeemed.Redemption.QRCode, f.merchant)
	if err != nil {
		t.Fatalf("first scan failed: %v", err)
	}
	if scan.Redemption.Status != benefit.StatusRedeemed || scan.PointsCharged != 40 || scan.User.ID != userID {
		t.Fatalf("unexpected scan result: %+v", scan)
	}
	if scan.Redemption.ScannedByMerchantID == nil || *scan.Redemption.ScannedByMerchantID != f.merchant {
		t.Fatal("expected scanning merchant to be recorded")
	}

	if _, err := f.svc.ScanAndRedeem(ctx, redeemed.Redemption.QRCode, f.merchant); !errors.Is(err, benefit.ErrAlreadyRedeemed) {
		t.Fatalf("expected ErrAlreadyRedeemed, got %v", err)
	}

	if f.balance(t, userID) != 60 || f.stock(t, b.ID) != 1 {
		t.Fatal("scanning must not move balance or stock")
	}
}

func TestConcurrentDoubleScanHasOneWinner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.citizen(t, 100)
	b := f.benefit(t, 25, 5, true)
	secondMerchant := dbtest.CreateUser(t, f.db, user.RoleMerchant)

	redeemed, err := f.svc.Redeem(ctx, userID, b.ID)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	merchants := []uuid.UUID{f.merchant, secondMerchant}
	results := make([]error, len(merchants))

	var wg sync.WaitGroup
	start := make(chan struct{})
	for i, m := range merchants {
		wg.Add(1)
		go func(i int, m uuid.UUID) {
			defer wg.Done()
			<-start
			_, results[i] = f.svc.ScanAndRedeem(ctx, redeemed.Redemption.QRCode, m)
		}(i, m)
	}
	close(start)
	wg.Wait()

	winners, losers := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, benefit.ErrAlreadyRedeemed):
			losers++
		default:
			t.Fatalf("unexpected scan error: %v", err)
		}
	}
	if winners != 1 || losers != 1 {
		t.Fatalf("expected one winner and one loser, got %d/%d", winners, losers)
	}
	if f.balance(t, userID) != 75 || f.stock(t, b.ID) != 4 {
		t.Fatal("balance and stock must reflect exactly one redemption")
	}
}

func TestScanAfterWindowExpires(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.citizen(t, 100)
	b := f.benefit(t, 10, 1, true)

	redeemed, err := f.svc.Redeem(ctx, userID, b.ID)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	f.clock.Add(73 * time.Hour)

	if _, err := f.svc.ScanAndRedeem(ctx, redeemed.Redemption.QRCode, f.merchant); !errors.Is(err, benefit.ErrExpired) {
		t.Fatalf("expected ErrExpired, got %v", err)
	}

	var status string
	if err := f.db.Get(&status, `SELECT status FROM benefit_redemptions WHERE id = $1`, redeemed.Redemption.ID); err != nil {
		t.Fatalf("read status failed: %v", err)
	}
	if status != string(benefit.StatusExpired) {
		t.Fatalf("expected status flipped to EXPIRED, got %s", status)
	}

	if _, err := f.svc.ScanAndRedeem(ctx, redeemed.Redemption.QRCode, f.merchant); !errors.Is(err, benefit.ErrExpired) {
		t.Fatalf("expected ErrExpired on rescan, got %v", err)
	}
}

func TestScanUnknownCode(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.ScanAndRedeem(context.Background(), "RWD-DOESNOTEXIST", f.merchant); !errors.Is(err, benefit.ErrRedemptionNotFound) {
		t.Fatalf("expected ErrRedemptionNotFound, got %v", err)
	}
	if _, err := f.svc.ScanAndRedeem(context.Background(), "   ", f.merchant); !errors.Is(err, benefit.ErrRedemptionNotFound) {
		t.Fatalf("expected ErrRedemptionNotFound for blank code, got %v", err)
	}
}

func TestCatalogCacheInvalidatedAfterRedeem(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.citizen(t, 100)
	b := f.benefit(t, 10, 3, true)

	if _, err := f.svc.GetBenefit(ctx, b.ID); err != nil {
		t.Fatalf("get benefit failed: %v", err)
	}
	if _, err := f.svc.ListCatalog(ctx); err != nil {
		t.Fatalf("list catalog failed: %v", err)
	}

	keys := []string{cache.BenefitCatalogKey, cache.BenefitKey(b.ID)}
	generations := make(map[string]int64, len(keys))
	for _, key := range keys {
		gen, err := cache.Generation(ctx, f.cache, key)
		if err != nil {
			t.Fatalf("read generation of %s failed: %v", key, err)
		}
		generations[key] = gen
	}

	if _, err := f.svc.Redeem(ctx, userID, b.ID); err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	for _, key := range keys {
		if _, err := f.cache.Get(ctx, cache.EntryKey(key, generations[key], "")); !errors.Is(err, cache.ErrMiss) {
			t.Fatalf("expected %s invalidated, got %v", key, err)
		}
	}

	fresh, err := f.svc.GetBenefit(ctx, b.ID)
	if err != nil {
		t.Fatalf("get benefit failed: %v", err)
	}
	if fresh.Stock != 2 {
		t.Fatalf("expected fresh stock 2, got %d", fresh.Stock)
	}
}

func TestUserRedemptionsReportLapsedAsExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	userID := f.citizen(t, 100)
	b := f.benefit(t, 10, 2, true)

	redeemed, err := f.svc.Redeem(ctx, userID, b.ID)
	if err != nil {
		t.Fatalf("redeem failed: %v", err)
	}

	f.clock.Add(100 * time.Hour)

	got, err := f.svc.GetUserRedemption(ctx, userID, redeemed.Redemption.ID)
	if err != nil {
		t.Fatalf("get redemption failed: %v", err)
	}
	if got.Status != benefit.StatusExpired {
		t.Fatalf("expected EXPIRED view, got %s", got.Status)
	}

	if _, err := f.svc.GetUserRedemption(ctx, uuid.New(), redeemed.Redemption.ID); !errors.Is(err, benefit.ErrRedemptionNotFound) {
		t.Fatalf("expected other users to get ErrRedemptionNotFound, got %v", err)
	}
}
