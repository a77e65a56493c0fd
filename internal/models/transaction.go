package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionKindRecharge           = "recharge"
	TransactionKindConsultation       = "consultation"
	TransactionKindPlanPurchase       = "plan_purchase"
	TransactionKindReferralBonus      = "referral_bonus"
	TransactionKindReferralCommission = "referral_commission"
	TransactionKindCoupon             = "coupon"
)

const (
	TransactionStatusPending   = "pending"
	TransactionStatusConfirmed = "confirmed"
	TransactionStatusFailed    = "failed"
)

// Transaction is one balance-affecting event. Amount is signed: credits are
// positive, debits negative. A transaction is immutable once it reaches a
// terminal status (confirmed or failed).
type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	AccountID   uuid.UUID       `json:"account_id"`
	Amount      decimal.Decimal `json:"amount"`
	Pool        string          `json:"pool"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
	Status      string          `json:"status"`

	// Causing external event: payment id for recharges, referred account id
	// for referral credits, coupon code for coupon credits
	ReferenceID *string `json:"reference_id,omitempty"`
}

func (t Transaction) Terminal() bool {
	return t.Status == TransactionStatusConfirmed || t.Status == TransactionStatusFailed
}

// Credit reports whether the transaction adds funds to its pool
func (t Transaction) Credit() bool {
	return t.Amount.IsPositive()
}
