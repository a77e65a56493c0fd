package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	// Withdrawable pool, funded by recharges and referral commissions
	PoolWallet = "wallet"
	// Non-withdrawable pool, funded by plan purchases and registration bonuses
	PoolPlan = "plan"
)

// BalanceSnapshot is the two-pool balance of one account as reported by the
// remote ledger. Stale is set when the value was served from the local
// mirror because the ledger was unreachable; stale snapshots are display
// only and never authorize a debit.
type BalanceSnapshot struct {
	AccountID uuid.UUID       `json:"account_id"`
	Wallet    decimal.Decimal `json:"wallet_balance"`
	Plan      decimal.Decimal `json:"plan_balance"`
	Stale     bool            `json:"stale"`
	FetchedAt time.Time       `json:"fetched_at"`
}

// Available is the combined amount a debit may draw on
func (b BalanceSnapshot) Available() decimal.Decimal {
	return b.Plan.Add(b.Wallet)
}
