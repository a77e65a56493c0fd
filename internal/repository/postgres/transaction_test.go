package postgres

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
	"github.com/consultaplus/carteira/internal/testutil"
)

func Test_TransactionRepo(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	withRepo := func(t *testing.T, testFunc func(r *TransactionRepo, account models.Account)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			account := mustAccount(t, &AccountRepo{DB: tx}, "cliente@example.com", "FRIEND01")
			testFunc(&TransactionRepo{DB: tx}, account)
		})
	}

	recharge := func(account models.Account, amount string, reference string) models.Transaction {
		return models.Transaction{
			AccountID:   account.ID,
			Amount:      decimal.RequireFromString(amount),
			Pool:        models.PoolWallet,
			Kind:        models.TransactionKindRecharge,
			Description: "Recarga via PIX",
			ReferenceID: &reference,
		}
	}

	t.Run("create fills defaults", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, account models.Account) {
			created, err := r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))

			require.NoError(t, err)
			assert.NotEqual(t, uuid.Nil, created.ID, "ID should be generated")
			assert.Equal(t, models.TransactionStatusPending, created.Status, "status defaults to pending")
			assert.WithinDuration(t, time.Now(), created.CreatedAt, time.Second)
			assert.True(t, created.Amount.Equal(decimal.RequireFromString("100.00")))
		})
	})

	t.Run("create for unknown account fails", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, _ models.Account) {
			tx := models.Transaction{
				AccountID: uuid.New(),
				Amount:    decimal.RequireFromString("10.00"),
				Pool:      models.PoolWallet,
				Kind:      models.TransactionKindRecharge,
			}

			_, err := r.CreateTransaction(t.Context(), tx)

			assert.ErrorIs(t, err, apperrors.ErrAccountNotFound)
		})
	})

	t.Run("one live recharge per payment reference", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, account models.Account) {
			_, err := r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))
			require.NoError(t, err)

			_, err = r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))
			assert.ErrorIs(t, err, apperrors.ErrDuplicateOperation)
		})
	})

	t.Run("failed recharge frees the reference", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, account models.Account) {
			created, err := r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))
			require.NoError(t, err)

			_, err = r.SetStatus(t.Context(), created.ID, models.TransactionStatusFailed)
			require.NoError(t, err)

			// A retried payment may register again once the first attempt failed
			_, err = r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))
			assert.NoError(t, err)
		})
	})

	t.Run("get by reference skips failed", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, account models.Account) {
			created, err := r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))
			require.NoError(t, err)

			got, err := r.GetByReference(t.Context(), models.TransactionKindRecharge, "pay-1")
			require.NoError(t, err)
			assert.Equal(t, created.ID, got.ID)

			_, err = r.SetStatus(t.Context(), created.ID, models.TransactionStatusFailed)
			require.NoError(t, err)

			_, err = r.GetByReference(t.Context(), models.TransactionKindRecharge, "pay-1")
			assert.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
		})
	})

	t.Run("set status transitions pending only", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, account models.Account) {
			created, err := r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))
			require.NoError(t, err)

			confirmed, err := r.SetStatus(t.Context(), created.ID, models.TransactionStatusConfirmed)
			require.NoError(t, err)
			assert.Equal(t, models.TransactionStatusConfirmed, confirmed.Status)

			// Terminal status is never overwritten, stored row returned as is
			got, err := r.SetStatus(t.Context(), created.ID, models.TransactionStatusFailed)
			require.NoError(t, err)
			assert.Equal(t, models.TransactionStatusConfirmed, got.Status)
		})
	})

	t.Run("set status unknown id", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, _ models.Account) {
			_, err := r.SetStatus(t.Context(), uuid.New(), models.TransactionStatusConfirmed)

			assert.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
		})
	})

	t.Run("list transactions", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, account models.Account) {
			first, err := r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))
			require.NoError(t, err)
			second, err := r.CreateTransaction(t.Context(), models.Transaction{
				AccountID:   account.ID,
				Amount:      decimal.RequireFromString("-10.00"),
				Pool:        models.PoolWallet,
				Kind:        models.TransactionKindConsultation,
				Status:      models.TransactionStatusConfirmed,
				Description: "Consulta de CPF",
			})
			require.NoError(t, err)

			t.Run("most recent first", func(t *testing.T) {
				listed, err := r.ListTransactions(t.Context(), account.ID, repository.ListTransactionsOpts{})

				require.NoError(t, err)
				require.Len(t, listed, 2)
				assert.Equal(t, second.ID, listed[0].ID)
				assert.Equal(t, first.ID, listed[1].ID)
			})

			t.Run("filter by kind", func(t *testing.T) {
				listed, err := r.ListTransactions(t.Context(), account.ID, repository.ListTransactionsOpts{
					Kinds: []string{models.TransactionKindConsultation},
				})

				require.NoError(t, err)
				require.Len(t, listed, 1)
				assert.Equal(t, second.ID, listed[0].ID)
			})

			t.Run("filter by status", func(t *testing.T) {
				listed, err := r.ListTransactions(t.Context(), account.ID, repository.ListTransactionsOpts{
					Statuses: []string{models.TransactionStatusPending},
				})

				require.NoError(t, err)
				require.Len(t, listed, 1)
				assert.Equal(t, first.ID, listed[0].ID)
			})

			t.Run("limit and offset", func(t *testing.T) {
				listed, err := r.ListTransactions(t.Context(), account.ID, repository.ListTransactionsOpts{
					Limit:  1,
					Offset: 1,
				})

				require.NoError(t, err)
				require.Len(t, listed, 1)
				assert.Equal(t, first.ID, listed[0].ID)
			})
		})
	})

	t.Run("list pending oldest first", func(t *testing.T) {
		withRepo(t, func(r *TransactionRepo, account models.Account) {
			first, err := r.CreateTransaction(t.Context(), recharge(account, "100.00", "pay-1"))
			require.NoError(t, err)
			_, err = r.CreateTransaction(t.Context(), recharge(account, "50.00", "pay-2"))
			require.NoError(t, err)

			pending, err := r.ListPending(t.Context(), 1)

			require.NoError(t, err)
			require.Len(t, pending, 1)
			assert.Equal(t, first.ID, pending[0].ID, "oldest pending entry settles first")
		})
	})
}
