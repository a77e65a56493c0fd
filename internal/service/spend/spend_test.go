package spend

import (
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
	"github.com/consultaplus/carteira/internal/repository/postgres"
	"github.com/consultaplus/carteira/internal/testutil"
)

func TestAuthorizeAndDebit(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	type fixture struct {
		authorizer *Authorizer
		ledger     *testutil.FakeLedger
		storage    repository.Storage
		account    models.Account
	}

	withFixture := func(t *testing.T, wallet, plan string, fn func(f fixture)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fakeLedger := testutil.NewFakeLedger()
			store := balance.NewStore(fakeLedger, testutil.NewFakeMirror(), storage, balance.NewNotifier(), logger.NewNoOp())

			account, err := storage.Account().CreateAccount(t.Context(), repository.CreateAccountParams{
				Email:          "spender@example.com",
				HashedPassword: "hash",
				ReferralCode:   "SPEND1",
			})
			require.NoError(t, err)
			fakeLedger.SetBalance(account.ID, wallet, plan)

			fn(fixture{
				authorizer: NewAuthorizer(store, logger.NewNoOp()),
				ledger:     fakeLedger,
				storage:    storage,
				account:    account,
			})
		})
	}

	meta := balance.TxMeta{Kind: models.TransactionKindConsultation, Description: "Consulta de CPF"}

	t.Run("splits across plan then wallet", func(t *testing.T) {
		withFixture(t, "10.00", "5.00", func(f fixture) {
			created, err := f.authorizer.AuthorizeAndDebit(t.Context(), f.account.ID, decimal.RequireFromString("8.00"), meta)

			require.NoError(t, err)
			require.Len(t, created, 2)
			require.Equal(t, models.PoolPlan, created[0].Pool)
			require.True(t, created[0].Amount.Equal(decimal.RequireFromString("-5.00")))
			require.Equal(t, models.PoolWallet, created[1].Pool)
			require.True(t, created[1].Amount.Equal(decimal.RequireFromString("-3.00")))

			remote, err := f.ledger.Balance(t.Context(), f.account.ID)
			require.NoError(t, err)
			require.True(t, remote.Plan.IsZero())
			require.True(t, remote.Wallet.Equal(decimal.RequireFromString("7.00")))
		})
	})

	t.Run("plan alone covers the charge", func(t *testing.T) {
		withFixture(t, "10.00", "5.00", func(f fixture) {
			created, err := f.authorizer.AuthorizeAndDebit(t.Context(), f.account.ID, decimal.RequireFromString("5.00"), meta)

			require.NoError(t, err)
			require.Len(t, created, 1, "wallet was not touched so only one transaction exists")
			require.Equal(t, models.PoolPlan, created[0].Pool)

			remote, err := f.ledger.Balance(t.Context(), f.account.ID)
			require.NoError(t, err)
			require.True(t, remote.Wallet.Equal(decimal.RequireFromString("10.00")))
		})
	})

	t.Run("combined shortfall declines without mutation", func(t *testing.T) {
		withFixture(t, "5.00", "0", func(f fixture) {
			_, err := f.authorizer.AuthorizeAndDebit(t.Context(), f.account.ID, decimal.RequireFromString("8.00"), meta)

			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

			var insufficientErr *apperrors.InsufficientFundsError
			require.ErrorAs(t, err, &insufficientErr)
			require.True(t, insufficientErr.Available.Equal(decimal.RequireFromString("5.00")))

			transactions, err := f.storage.Transaction().ListTransactions(t.Context(), f.account.ID, repository.ListTransactionsOpts{})
			require.NoError(t, err)
			require.Empty(t, transactions, "declined charge must leave no trace in the ledger")

			remote, err := f.ledger.Balance(t.Context(), f.account.ID)
			require.NoError(t, err)
			require.True(t, remote.Wallet.Equal(decimal.RequireFromString("5.00")))
		})
	})

	t.Run("declines when ledger unreachable", func(t *testing.T) {
		withFixture(t, "100.00", "0", func(f fixture) {
			f.ledger.Unreachable = true

			_, err := f.authorizer.AuthorizeAndDebit(t.Context(), f.account.ID, decimal.RequireFromString("8.00"), meta)

			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrStaleBalance, "authorization must fail closed, never trust the mirror")
		})
	})

	t.Run("rejects non-positive amount", func(t *testing.T) {
		withFixture(t, "10.00", "0", func(f fixture) {
			_, err := f.authorizer.AuthorizeAndDebit(t.Context(), f.account.ID, decimal.Zero, meta)
			require.Error(t, err)
		})
	})
}
