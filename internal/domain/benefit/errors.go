package benefit

import (
	"errors"

	"github.com/civicrewards/rewards-api/internal/pkg/occ"
)

var (
	ErrBenefitNotFound     = errors.New("benefit not found")
	ErrBenefitInactive     = errors.New("benefit is not active")
	ErrInsufficientStock   = errors.New("benefit is out of stock")
	ErrRedemptionNotFound  = errors.New("redemption not found")
	ErrAlreadyRedeemed     = errors.New("redemption already redeemed")
	ErrExpired             = errors.New("redemption expired")
	ErrConcurrencyConflict = occ.ErrConflict
)
