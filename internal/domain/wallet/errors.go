package wallet

import (
	"errors"

	"github.com/civicrewards/rewards-api/internal/pkg/occ"
)

var (
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletExists        = errors.New("wallet already exists")
	ErrInvalidAmount       = errors.New("amount must be a positive integer")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrConcurrencyConflict = occ.ErrConflict
	ErrLedgerMismatch      = errors.New("wallet balance does not match ledger")
)
