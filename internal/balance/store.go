// Package balance is the single entry point to the two spendable pools of
// an account. The remote ledger is the source of truth; a local mirror is
// read only when the ledger is unreachable and only for display. All
// mutations serialize per account and commit the pool change together with
// the recorded transaction.
package balance

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/ledgerapi"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/mirror"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
)

// RemoteLedger is the part of the ledger API the store depends on
type RemoteLedger interface {
	Balance(ctx context.Context, accountID uuid.UUID) (ledgerapi.Balance, error)
	Credit(ctx context.Context, accountID uuid.UUID, pool string, amount decimal.Decimal, reference string) error
	Debit(ctx context.Context, accountID uuid.UUID, amounts ledgerapi.DebitAmounts, reference string) error
}

// TxMeta describes the recorded transaction of a mutation
type TxMeta struct {
	Kind        string
	Description string
	ReferenceID *string
}

type Store struct {
	remote   RemoteLedger
	mirror   mirror.Mirror
	storage  repository.Storage
	notifier *Notifier
	locks    *keyedMutex
	logger   logger.Logger
}

func NewStore(remote RemoteLedger, m mirror.Mirror, storage repository.Storage, notifier *Notifier, l logger.Logger) *Store {
	return &Store{
		remote:   remote,
		mirror:   m,
		storage:  storage,
		notifier: notifier,
		locks:    newKeyedMutex(),
		logger:   l,
	}
}

// WithAccountLock runs fn while holding the account's mutation lock.
// Every read-check-write sequence against the same account must happen
// inside one call, including any remote round-trips it contains.
func (s *Store) WithAccountLock(accountID uuid.UUID, fn func() error) error {
	s.locks.Lock(accountID)
	defer s.locks.Unlock(accountID)
	return fn()
}

// Get returns the account balance for display. Falls back to the mirror
// when the ledger is unreachable; such snapshots are flagged stale.
func (s *Store) Get(ctx context.Context, accountID uuid.UUID) (models.BalanceSnapshot, error) {
	snapshot, err := s.fresh(ctx, accountID)
	if err == nil {
		return snapshot, nil
	}

	if !ledgerapi.IsTransport(err) {
		return snapshot, err
	}

	mirrored, found, merr := s.mirror.LoadBalance(ctx, accountID)
	if merr != nil {
		s.logger.Error("Mirror read failed", "account_id", accountID, "error", merr)
	}
	if !found || merr != nil {
		return snapshot, fmt.Errorf("no mirrored balance for account %s: %w", accountID, apperrors.ErrLedgerUnavailable)
	}

	mirrored.Stale = true
	return mirrored, nil
}

// Fresh returns the balance directly from the remote ledger and never
// degrades to the mirror. Authorization paths use this and fail closed.
func (s *Store) Fresh(ctx context.Context, accountID uuid.UUID) (models.BalanceSnapshot, error) {
	snapshot, err := s.fresh(ctx, accountID)
	if err != nil {
		if ledgerapi.IsTransport(err) {
			return snapshot, fmt.Errorf("refusing stale balance for account %s: %w", accountID, apperrors.ErrStaleBalance)
		}
		return snapshot, err
	}

	return snapshot, nil
}

func (s *Store) fresh(ctx context.Context, accountID uuid.UUID) (models.BalanceSnapshot, error) {
	var snapshot models.BalanceSnapshot

	remote, err := s.remote.Balance(ctx, accountID)
	if err != nil {
		return snapshot, err
	}

	snapshot = models.BalanceSnapshot{
		AccountID: accountID,
		Wallet:    remote.Wallet,
		Plan:      remote.Plan,
		FetchedAt: time.Now(),
	}

	// Best effort: display fallback must not break the read path
	if err := s.mirror.SaveBalance(ctx, snapshot); err != nil {
		s.logger.Warn("Mirror update failed", "account_id", accountID, "error", err)
	}

	return snapshot, nil
}

// Credit adds amount to one pool and records a confirmed transaction.
// Pool update and record commit together or not at all.
func (s *Store) Credit(ctx context.Context, accountID uuid.UUID, pool string, amount decimal.Decimal, meta TxMeta) (models.Transaction, error) {
	var created models.Transaction

	if !amount.IsPositive() {
		return created, fmt.Errorf("credit amount must be positive, got %s", amount)
	}

	err := s.WithAccountLock(accountID, func() error {
		return s.storage.InTx(ctx, func(st repository.Storage) error {
			var err error
			created, err = st.Transaction().CreateTransaction(ctx, models.Transaction{
				AccountID:   accountID,
				Amount:      amount,
				Pool:        pool,
				Kind:        meta.Kind,
				Description: meta.Description,
				Status:      models.TransactionStatusConfirmed,
				ReferenceID: meta.ReferenceID,
			})
			if err != nil {
				return err
			}

			return s.remote.Credit(ctx, accountID, pool, amount, created.ID.String())
		})
	})
	if err != nil {
		return created, fmt.Errorf("credit failed for account %s: %w", accountID, err)
	}

	s.notifier.Notify(created)
	return created, nil
}

// Debit removes amount from one pool. Fails with InsufficientFundsError
// when the pool alone can not cover it; no partial debit happens.
func (s *Store) Debit(ctx context.Context, accountID uuid.UUID, pool string, amount decimal.Decimal, meta TxMeta) (models.Transaction, error) {
	var created models.Transaction

	if !amount.IsPositive() {
		return created, fmt.Errorf("debit amount must be positive, got %s", amount)
	}

	err := s.WithAccountLock(accountID, func() error {
		snapshot, err := s.Fresh(ctx, accountID)
		if err != nil {
			return err
		}

		available := snapshot.Plan
		amounts := ledgerapi.DebitAmounts{Plan: amount}
		if pool == models.PoolWallet {
			available = snapshot.Wallet
			amounts = ledgerapi.DebitAmounts{Wallet: amount}
		}

		if available.LessThan(amount) {
			return &apperrors.InsufficientFundsError{Requested: amount, Available: available}
		}

		return s.storage.InTx(ctx, func(st repository.Storage) error {
			created, err = st.Transaction().CreateTransaction(ctx, models.Transaction{
				AccountID:   accountID,
				Amount:      amount.Neg(),
				Pool:        pool,
				Kind:        meta.Kind,
				Description: meta.Description,
				Status:      models.TransactionStatusConfirmed,
				ReferenceID: meta.ReferenceID,
			})
			if err != nil {
				return err
			}

			return s.remote.Debit(ctx, accountID, amounts, created.ID.String())
		})
	})
	if err != nil {
		return created, err
	}

	s.notifier.Notify(created)
	return created, nil
}

// DebitPools removes the already-computed split in one remote operation and
// records one confirmed transaction per touched pool. The split decision is
// the caller's; the caller must hold the account lock via WithAccountLock.
func (s *Store) DebitPools(ctx context.Context, accountID uuid.UUID, fromPlan decimal.Decimal, fromWallet decimal.Decimal, meta TxMeta) ([]models.Transaction, error) {
	if fromPlan.IsNegative() || fromWallet.IsNegative() {
		return nil, fmt.Errorf("debit split must be non-negative, got plan=%s wallet=%s", fromPlan, fromWallet)
	}

	var created []models.Transaction
	err := s.storage.InTx(ctx, func(st repository.Storage) error {
		created = created[:0]

		for _, part := range []struct {
			pool   string
			amount decimal.Decimal
		}{
			{models.PoolPlan, fromPlan},
			{models.PoolWallet, fromWallet},
		} {
			if part.amount.IsZero() {
				continue
			}

			t, err := st.Transaction().CreateTransaction(ctx, models.Transaction{
				AccountID:   accountID,
				Amount:      part.amount.Neg(),
				Pool:        part.pool,
				Kind:        meta.Kind,
				Description: meta.Description,
				Status:      models.TransactionStatusConfirmed,
				ReferenceID: meta.ReferenceID,
			})
			if err != nil {
				return err
			}
			created = append(created, t)
		}

		if len(created) == 0 {
			return nil
		}

		return s.remote.Debit(ctx, accountID,
			ledgerapi.DebitAmounts{Plan: fromPlan, Wallet: fromWallet},
			created[0].ID.String())
	})
	if err != nil {
		return nil, err
	}

	for _, t := range created {
		s.notifier.Notify(t)
	}
	return created, nil
}

// Apply pushes the pool effect of an already-recorded transaction to the
// remote ledger. Used by the ledger service when confirming pending
// credits; the caller owns both the row transition and the account lock.
func (s *Store) Apply(ctx context.Context, t models.Transaction) error {
	if t.Credit() {
		return s.remote.Credit(ctx, t.AccountID, t.Pool, t.Amount, t.ID.String())
	}

	amounts := ledgerapi.DebitAmounts{}
	switch t.Pool {
	case models.PoolPlan:
		amounts.Plan = t.Amount.Neg()
	default:
		amounts.Wallet = t.Amount.Neg()
	}
	return s.remote.Debit(ctx, t.AccountID, amounts, t.ID.String())
}
