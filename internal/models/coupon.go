package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	CouponKindFixed      = "fixed"
	CouponKindPercentage = "percentage"
)

type Coupon struct {
	ID        uuid.UUID
	CreatedAt time.Time
	Code      string

	// fixed: Value is the credited amount
	// percentage: Value percent of the base amount is credited
	Kind  string
	Value decimal.Decimal

	// Pool the credit lands in (wallet or plan)
	Pool string

	UsageCap  int
	UsedCount int

	// Empty slice means open to all accounts
	AllowedAccounts []uuid.UUID

	ValidFrom  time.Time
	ValidUntil time.Time
}

func (c Coupon) AllowedFor(accountID uuid.UUID) bool {
	if len(c.AllowedAccounts) == 0 {
		return true
	}
	for _, id := range c.AllowedAccounts {
		if id == accountID {
			return true
		}
	}
	return false
}

func (c Coupon) ValidAt(t time.Time) bool {
	return !t.Before(c.ValidFrom) && !t.After(c.ValidUntil)
}

func (c Coupon) Exhausted() bool {
	return c.UsedCount >= c.UsageCap
}

// CouponRedemption records one idempotent coupon use.
// Unique per (coupon, account, invocation id).
type CouponRedemption struct {
	ID            uuid.UUID
	CreatedAt     time.Time
	CouponID      uuid.UUID
	AccountID     uuid.UUID
	InvocationID  string
	TransactionID uuid.UUID
}
