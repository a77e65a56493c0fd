package apperrors

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrAccountAlreadyExists = errors.New("account already exists")
	ErrAccountNotFound      = errors.New("account not found")

	ErrTransactionNotFound = errors.New("transaction not found")

	// Returned when the only balance data available is a stale mirror read.
	// Authorization paths must refuse instead of guessing.
	ErrStaleBalance = errors.New("balance data is stale")

	// Remote ledger could not be reached. Reads may degrade to the mirror,
	// writes fail closed.
	ErrLedgerUnavailable = errors.New("remote ledger unavailable")

	// An operation whose idempotency key was already processed.
	// The prior result is returned alongside, never re-applied.
	ErrDuplicateOperation = errors.New("operation already processed")

	ErrInsufficientFunds = errors.New("insufficient funds")

	ErrReferralCodeInvalid   = errors.New("referral code invalid")
	ErrReferralAlreadyExists = errors.New("referral already registered for this pair")
	ErrSelfReferral          = errors.New("account can not refer itself")

	ErrCouponNotFound   = errors.New("coupon not found")
	ErrCouponExpired    = errors.New("coupon is outside its validity window")
	ErrCouponExhausted  = errors.New("coupon usage cap reached")
	ErrCouponNotAllowed = errors.New("coupon not allowed for this account")

	ErrPriceInvalid = errors.New("list price must be non-negative")

	ErrPlanUnknown = errors.New("unknown plan tier")
)

// InsufficientFundsError carries the shortfall so callers can present it
// together with an "add funds" path.
type InsufficientFundsError struct {
	Requested decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: requested %s, available %s", e.Requested, e.Available)
}

// Unwrap makes errors.Is(err, ErrInsufficientFunds) work for typed values
func (e *InsufficientFundsError) Unwrap() error {
	return ErrInsufficientFunds
}

func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}
