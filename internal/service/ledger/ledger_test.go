package ledger

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
	"github.com/consultaplus/carteira/internal/repository/postgres"
	"github.com/consultaplus/carteira/internal/testutil"
)

func TestService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	type fixture struct {
		service  *Service
		ledger   *testutil.FakeLedger
		storage  repository.Storage
		account  models.Account
		notified *[]models.Transaction
	}

	withFixture := func(t *testing.T, fn func(f fixture)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fakeLedger := testutil.NewFakeLedger()
			notifier := balance.NewNotifier()

			var notified []models.Transaction
			notifier.Subscribe(func(tr models.Transaction) { notified = append(notified, tr) })

			store := balance.NewStore(fakeLedger, testutil.NewFakeMirror(), storage, notifier, logger.NewNoOp())
			service := NewService(storage, store, testutil.NewFakeMirror(), notifier, logger.NewNoOp())

			account, err := storage.Account().CreateAccount(t.Context(), repository.CreateAccountParams{
				Email:          "settle@example.com",
				HashedPassword: "hash",
				ReferralCode:   "SETTLE",
			})
			require.NoError(t, err)

			fn(fixture{service: service, ledger: fakeLedger, storage: storage, account: account, notified: &notified})
		})
	}

	recordRecharge := func(t *testing.T, f fixture, amount string) models.Transaction {
		reference := "pay-123"
		created, err := f.service.Record(t.Context(), f.account.ID, models.PoolWallet,
			decimal.RequireFromString(amount), balance.TxMeta{
				Kind:        models.TransactionKindRecharge,
				Description: "Recarga via PIX",
				ReferenceID: &reference,
			})
		require.NoError(t, err)
		return created
	}

	t.Run("Record creates pending without pool effect", func(t *testing.T) {
		withFixture(t, func(f fixture) {
			created := recordRecharge(t, f, "50.00")

			require.Equal(t, models.TransactionStatusPending, created.Status)
			require.Empty(t, *f.notified, "pending entries are not announced")

			remote, err := f.ledger.Balance(t.Context(), f.account.ID)
			require.NoError(t, err)
			require.True(t, remote.Wallet.IsZero(), "pending must not touch the pool")
		})
	})

	t.Run("Record rejects duplicate recharge reference", func(t *testing.T) {
		withFixture(t, func(f fixture) {
			recordRecharge(t, f, "50.00")

			reference := "pay-123"
			_, err := f.service.Record(t.Context(), f.account.ID, models.PoolWallet,
				decimal.RequireFromString("50.00"), balance.TxMeta{
					Kind:        models.TransactionKindRecharge,
					ReferenceID: &reference,
				})

			require.Error(t, err)
		})
	})

	t.Run("Confirm settles and credits the pool", func(t *testing.T) {
		withFixture(t, func(f fixture) {
			created := recordRecharge(t, f, "50.00")

			confirmed, err := f.service.Confirm(t.Context(), created.ID)

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusConfirmed, confirmed.Status)

			remote, err := f.ledger.Balance(t.Context(), f.account.ID)
			require.NoError(t, err)
			require.True(t, remote.Wallet.Equal(decimal.RequireFromString("50.00")))

			require.Len(t, *f.notified, 1)
			require.Equal(t, created.ID, (*f.notified)[0].ID)
		})
	})

	t.Run("Confirm is idempotent", func(t *testing.T) {
		withFixture(t, func(f fixture) {
			created := recordRecharge(t, f, "50.00")

			_, err := f.service.Confirm(t.Context(), created.ID)
			require.NoError(t, err)
			again, err := f.service.Confirm(t.Context(), created.ID)

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusConfirmed, again.Status)

			remote, err := f.ledger.Balance(t.Context(), f.account.ID)
			require.NoError(t, err)
			require.True(t, remote.Wallet.Equal(decimal.RequireFromString("50.00")), "pool must be credited exactly once")
			require.Len(t, *f.notified, 1, "subscribers must hear each settlement once")
		})
	})

	t.Run("Confirm fails the transaction when ledger unreachable", func(t *testing.T) {
		withFixture(t, func(f fixture) {
			created := recordRecharge(t, f, "50.00")
			f.ledger.Unreachable = true

			_, err := f.service.Confirm(t.Context(), created.ID)

			require.Error(t, err)

			// The record and the pool effect must not diverge: no credit
			// happened, so the transaction settles as failed
			stored, err := f.storage.Transaction().GetTransaction(t.Context(), created.ID)
			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusFailed, stored.Status)
			require.Empty(t, *f.notified)
		})
	})

	t.Run("Fail marks pending failed", func(t *testing.T) {
		withFixture(t, func(f fixture) {
			created := recordRecharge(t, f, "50.00")

			failed, err := f.service.Fail(t.Context(), created.ID)

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusFailed, failed.Status)

			remote, err := f.ledger.Balance(t.Context(), f.account.ID)
			require.NoError(t, err)
			require.True(t, remote.Wallet.IsZero())
		})
	})

	t.Run("Fail never downgrades a confirmed transaction", func(t *testing.T) {
		withFixture(t, func(f fixture) {
			created := recordRecharge(t, f, "50.00")
			_, err := f.service.Confirm(t.Context(), created.ID)
			require.NoError(t, err)

			stored, err := f.service.Fail(t.Context(), created.ID)

			require.NoError(t, err)
			require.Equal(t, models.TransactionStatusConfirmed, stored.Status)
		})
	})

	t.Run("History lists most recent first", func(t *testing.T) {
		withFixture(t, func(f fixture) {
			first := recordRecharge(t, f, "10.00")
			second, err := f.service.Record(t.Context(), f.account.ID, models.PoolWallet,
				decimal.RequireFromString("20.00"), balance.TxMeta{Kind: models.TransactionKindRecharge})
			require.NoError(t, err)

			history, err := f.service.History(t.Context(), f.account.ID, repository.ListTransactionsOpts{})

			require.NoError(t, err)
			require.Len(t, history, 2)
			require.Equal(t, second.ID, history[0].ID)
			require.Equal(t, first.ID, history[1].ID)
		})
	})
}
