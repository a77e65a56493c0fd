package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/ledgerapi"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/mirror"
)

// FakeLedger is an in-memory stand-in for the remote ledger API.
// Mimics the remote contract: atomic per-call mutations, declines debits
// that would leave a pool negative, can simulate an outage.
type FakeLedger struct {
	mu       sync.Mutex
	balances map[uuid.UUID]ledgerapi.Balance

	// When set every call fails as if the ledger were unreachable
	Unreachable bool
	// Fail this many upcoming Credit calls, then recover
	FailNextCredits int
}

func NewFakeLedger() *FakeLedger {
	return &FakeLedger{balances: make(map[uuid.UUID]ledgerapi.Balance)}
}

func (f *FakeLedger) SetBalance(accountID uuid.UUID, wallet string, plan string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[accountID] = ledgerapi.Balance{
		Wallet: decimal.RequireFromString(wallet),
		Plan:   decimal.RequireFromString(plan),
	}
}

func (f *FakeLedger) Balance(_ context.Context, accountID uuid.UUID) (ledgerapi.Balance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unreachable {
		return ledgerapi.Balance{}, ledgerapi.NewError(ledgerapi.CodeTransport, 0, errors.New("fake ledger is down"))
	}
	return f.balances[accountID], nil
}

func (f *FakeLedger) Credit(_ context.Context, accountID uuid.UUID, pool string, amount decimal.Decimal, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unreachable {
		return ledgerapi.NewError(ledgerapi.CodeTransport, 0, errors.New("fake ledger is down"))
	}
	if f.FailNextCredits > 0 {
		f.FailNextCredits--
		return ledgerapi.NewError(ledgerapi.CodeTransport, 0, errors.New("fake ledger dropped the credit"))
	}

	b := f.balances[accountID]
	if pool == models.PoolPlan {
		b.Plan = b.Plan.Add(amount)
	} else {
		b.Wallet = b.Wallet.Add(amount)
	}
	f.balances[accountID] = b
	return nil
}

func (f *FakeLedger) Debit(_ context.Context, accountID uuid.UUID, amounts ledgerapi.DebitAmounts, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Unreachable {
		return ledgerapi.NewError(ledgerapi.CodeTransport, 0, errors.New("fake ledger is down"))
	}

	b := f.balances[accountID]
	plan := b.Plan.Sub(amounts.Plan)
	wallet := b.Wallet.Sub(amounts.Wallet)
	if plan.IsNegative() || wallet.IsNegative() {
		return ledgerapi.NewError(ledgerapi.CodeDeclined, 0, errors.New("fake ledger declined debit"))
	}

	f.balances[accountID] = ledgerapi.Balance{Wallet: wallet, Plan: plan}
	return nil
}

// FakeMirror keeps mirrored state in process memory
type FakeMirror struct {
	mu           sync.Mutex
	balances     map[uuid.UUID]models.BalanceSnapshot
	transactions map[uuid.UUID][]models.Transaction
	earnings     map[uuid.UUID][]mirror.ReferralEarning
}

func NewFakeMirror() *FakeMirror {
	return &FakeMirror{
		balances:     make(map[uuid.UUID]models.BalanceSnapshot),
		transactions: make(map[uuid.UUID][]models.Transaction),
		earnings:     make(map[uuid.UUID][]mirror.ReferralEarning),
	}
}

func (f *FakeMirror) SaveBalance(_ context.Context, snapshot models.BalanceSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.balances[snapshot.AccountID] = snapshot
	return nil
}

func (f *FakeMirror) LoadBalance(_ context.Context, accountID uuid.UUID) (models.BalanceSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	snapshot, ok := f.balances[accountID]
	return snapshot, ok, nil
}

func (f *FakeMirror) SaveTransactions(_ context.Context, accountID uuid.UUID, transactions []models.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transactions[accountID] = transactions
	return nil
}

func (f *FakeMirror) LoadTransactions(_ context.Context, accountID uuid.UUID) ([]models.Transaction, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	transactions, ok := f.transactions[accountID]
	return transactions, ok, nil
}

func (f *FakeMirror) SaveReferralEarnings(_ context.Context, accountID uuid.UUID, earnings []mirror.ReferralEarning) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.earnings[accountID] = earnings
	return nil
}

func (f *FakeMirror) LoadReferralEarnings(_ context.Context, accountID uuid.UUID) ([]mirror.ReferralEarning, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	earnings, ok := f.earnings[accountID]
	return earnings, ok, nil
}
