// Package mirror persists the last-known remote ledger state per account.
// It exists only so read paths can degrade when the ledger is unreachable:
// everything served from here is stale by definition and must never
// authorize a debit.
package mirror

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/models"
)

// Mirror is the persisted local copy of remote state
type Mirror interface {
	SaveBalance(ctx context.Context, snapshot models.BalanceSnapshot) error

	// Second return is false when nothing was ever mirrored for the account
	LoadBalance(ctx context.Context, accountID uuid.UUID) (models.BalanceSnapshot, bool, error)

	// Bounded, most-recent-first
	SaveTransactions(ctx context.Context, accountID uuid.UUID, transactions []models.Transaction) error
	LoadTransactions(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, bool, error)

	SaveReferralEarnings(ctx context.Context, accountID uuid.UUID, earnings []ReferralEarning) error
	LoadReferralEarnings(ctx context.Context, accountID uuid.UUID) ([]ReferralEarning, bool, error)
}

// ReferralEarning is the display projection of a referral record
type ReferralEarning struct {
	ReferredID uuid.UUID       `json:"referred_id"`
	Earned     decimal.Decimal `json:"earned"`
	Status     string          `json:"status"`
}
