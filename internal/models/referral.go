package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// Created at registration, before the referred account's first
	// qualifying recharge
	ReferralStatusPending = "pending"
	// At least one commission has been credited
	ReferralStatusActive = "active"
	// Disabled by support, no further commissions
	ReferralStatusInactive = "inactive"
)

// ReferralRecord links a referrer to an account it referred. Shared by both
// accounts but mutated only by the referral engine.
type ReferralRecord struct {
	ID         uuid.UUID       `json:"id"`
	CreatedAt  time.Time       `json:"created_at"`
	ReferrerID uuid.UUID       `json:"referrer_id"`
	ReferredID uuid.UUID       `json:"referred_id"`
	Earned     decimal.Decimal `json:"earned"`
	Status     string          `json:"status"`
}
