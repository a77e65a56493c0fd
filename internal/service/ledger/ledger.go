// Package ledger manages the transaction lifecycle: recording pending
// entries, settling them to a terminal status, and listing history. The
// pool effect of a credit is applied to the remote ledger at confirmation
// time, in the same database transaction as the status transition.
package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/mirror"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
)

type Service struct {
	storage  repository.Storage
	store    *balance.Store
	mirror   mirror.Mirror
	notifier *balance.Notifier
	logger   logger.Logger
}

func NewService(storage repository.Storage, store *balance.Store, m mirror.Mirror, notifier *balance.Notifier, l logger.Logger) *Service {
	return &Service{
		storage:  storage,
		store:    store,
		mirror:   m,
		notifier: notifier,
		logger:   l,
	}
}

// Record creates a pending transaction. No pool is touched until the
// transaction is confirmed. Amount is signed the way it will settle.
func (s *Service) Record(ctx context.Context, accountID uuid.UUID, pool string, amount decimal.Decimal, meta balance.TxMeta) (models.Transaction, error) {
	created, err := s.storage.Transaction().CreateTransaction(ctx, models.Transaction{
		AccountID:   accountID,
		Amount:      amount,
		Pool:        pool,
		Kind:        meta.Kind,
		Description: meta.Description,
		Status:      models.TransactionStatusPending,
		ReferenceID: meta.ReferenceID,
	})
	if err != nil {
		return created, fmt.Errorf("record transaction for account %s: %w", accountID, err)
	}

	s.logger.Info("Transaction recorded",
		"transaction_id", created.ID, "account_id", accountID, "kind", meta.Kind, "amount", amount)
	return created, nil
}

// Confirm settles a pending transaction and applies its pool effect to the
// remote ledger. Status transition and remote call commit together or not
// at all; when the pool credit fails the transaction is settled as failed
// instead of lingering pending. A transaction that already reached a
// terminal status is returned unchanged.
func (s *Service) Confirm(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	t, err := s.storage.Transaction().GetTransaction(ctx, id)
	if err != nil {
		return t, err
	}
	if t.Terminal() {
		return t, nil
	}

	var transitioned bool
	var applyFailed bool
	err = s.store.WithAccountLock(t.AccountID, func() error {
		txErr := s.storage.InTx(ctx, func(st repository.Storage) error {
			// Re-check under the lock: another settler may have won
			current, err := st.Transaction().GetTransaction(ctx, id)
			if err != nil {
				return err
			}
			if current.Terminal() {
				t = current
				return nil
			}

			t, err = st.Transaction().SetStatus(ctx, id, models.TransactionStatusConfirmed)
			if err != nil {
				return err
			}

			transitioned = true
			if err := s.store.Apply(ctx, t); err != nil {
				applyFailed = true
				return err
			}
			return nil
		})

		// The rollback left the row pending. Settle it as failed so the
		// ledger record and the pool effect never diverge.
		if applyFailed {
			if t, err = s.storage.Transaction().SetStatus(ctx, id, models.TransactionStatusFailed); err != nil {
				s.logger.Error("Failed to fail transaction after credit error", "transaction_id", id, "error", err)
			}
		}
		return txErr
	})
	if err != nil {
		return t, fmt.Errorf("confirm transaction %s: %w", id, err)
	}

	if transitioned {
		s.logger.Info("Transaction confirmed", "transaction_id", t.ID, "account_id", t.AccountID, "kind", t.Kind)
		s.notifier.Notify(t)
	}
	return t, nil
}

// Fail marks a pending transaction failed. A pending transaction never
// touched a pool, so nothing is reversed. Terminal statuses are preserved.
func (s *Service) Fail(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	t, err := s.storage.Transaction().SetStatus(ctx, id, models.TransactionStatusFailed)
	if err != nil {
		return t, fmt.Errorf("fail transaction %s: %w", id, err)
	}

	if t.Status == models.TransactionStatusFailed {
		s.logger.Info("Transaction failed", "transaction_id", t.ID, "account_id", t.AccountID, "kind", t.Kind)
	}
	return t, nil
}

// History lists the account's transactions, most recent first. The default
// first page additionally refreshes the display mirror.
func (s *Service) History(ctx context.Context, accountID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	transactions, err := s.storage.Transaction().ListTransactions(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("list transactions for account %s: %w", accountID, err)
	}

	if opts.Offset == 0 && len(opts.Statuses) == 0 && len(opts.Kinds) == 0 {
		if err := s.mirror.SaveTransactions(ctx, accountID, transactions); err != nil {
			s.logger.Warn("Mirror update failed", "account_id", accountID, "error", err)
		}
	}

	return transactions, nil
}
