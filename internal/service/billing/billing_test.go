package billing

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
	"github.com/consultaplus/carteira/internal/service/ledger"
	"github.com/consultaplus/carteira/internal/service/spend"
	"github.com/consultaplus/carteira/internal/testutil"
)

func TestService(t *testing.T) {
	t.Parallel()

	pg := testutil.StartPostgresContainer(t)
	t.Cleanup(pg.Terminate)

	type fixture struct {
		service *Service
		ledger  *testutil.FakeLedger
		storage repository.Storage
		account models.Account
	}

	withFixture := func(t *testing.T, tier string, wallet string, fn func(f fixture)) {
		testutil.InTx(pg.Pool, t, func(tx pgx.Tx) {
			storage := postgres.NewStorage(tx)
			fakeLedger := testutil.NewFakeLedger()
			notifier := balance.NewNotifier()
			store := balance.NewStore(fakeLedger, testutil.NewFakeMirror(), storage, notifier, logger.NewNoOp())
			ledgerService := ledger.NewService(storage, store, testutil.NewFakeMirror(), notifier, logger.NewNoOp())
			authorizer := spend.NewAuthorizer(store, logger.NewNoOp())

			account, err := storage.Account().CreateAccount(t.Context(), repository.CreateAccountParams{
				Email:          "cliente@example.com",
				HashedPassword: "hash",
				PlanTier:       tier,
				ReferralCode:   "BILL01",
			})
			require.NoError(t, err)
			fakeLedger.SetBalance(account.ID, wallet, "0")

			fn(fixture{
				service: NewService(storage, store, ledgerService, authorizer, nil, logger.NewNoOp()),
				ledger:  fakeLedger,
				storage: storage,
				account: account,
			})
		})
	}

	t.Run("recharge lifecycle", func(t *testing.T) {
		t.Run("created pending", func(t *testing.T) {
			withFixture(t, models.TierFree, "0", func(f fixture) {
				created, err := f.service.CreateRecharge(t.Context(), f.account.ID, decimal.RequireFromString("100.00"), "pay-1")

				require.NoError(t, err)
				require.Equal(t, models.TransactionStatusPending, created.Status)
				require.NotNil(t, created.ReferenceID)
				require.Equal(t, "pay-1", *created.ReferenceID)

				remote, err := f.ledger.Balance(t.Context(), f.account.ID)
				require.NoError(t, err)
				require.True(t, remote.Wallet.IsZero(), "wallet waits for the gateway verdict")
			})
		})

		t.Run("same payment can not be recharged twice", func(t *testing.T) {
			withFixture(t, models.TierFree, "0", func(f fixture) {
				_, err := f.service.CreateRecharge(t.Context(), f.account.ID, decimal.RequireFromString("100.00"), "pay-1")
				require.NoError(t, err)

				_, err = f.service.CreateRecharge(t.Context(), f.account.ID, decimal.RequireFromString("100.00"), "pay-1")

				require.ErrorIs(t, err, apperrors.ErrDuplicateOperation)
			})
		})

		t.Run("approved settles into the wallet", func(t *testing.T) {
			withFixture(t, models.TierFree, "0", func(f fixture) {
				_, err := f.service.CreateRecharge(t.Context(), f.account.ID, decimal.RequireFromString("100.00"), "pay-1")
				require.NoError(t, err)

				settled, err := f.service.SettleRecharge(t.Context(), "pay-1", true)

				require.NoError(t, err)
				require.Equal(t, models.TransactionStatusConfirmed, settled.Status)

				remote, err := f.ledger.Balance(t.Context(), f.account.ID)
				require.NoError(t, err)
				require.True(t, remote.Wallet.Equal(decimal.RequireFromString("100.00")))
			})
		})

		t.Run("declined fails the transaction", func(t *testing.T) {
			withFixture(t, models.TierFree, "0", func(f fixture) {
				_, err := f.service.CreateRecharge(t.Context(), f.account.ID, decimal.RequireFromString("100.00"), "pay-1")
				require.NoError(t, err)

				settled, err := f.service.SettleRecharge(t.Context(), "pay-1", false)

				require.NoError(t, err)
				require.Equal(t, models.TransactionStatusFailed, settled.Status)

				remote, err := f.ledger.Balance(t.Context(), f.account.ID)
				require.NoError(t, err)
				require.True(t, remote.Wallet.IsZero())
			})
		})

		t.Run("unknown payment", func(t *testing.T) {
			withFixture(t, models.TierFree, "0", func(f fixture) {
				_, err := f.service.SettleRecharge(t.Context(), "pay-nope", true)

				require.ErrorIs(t, err, apperrors.ErrTransactionNotFound)
			})
		})
	})

	t.Run("Charge", func(t *testing.T) {
		t.Run("tier discount applied", func(t *testing.T) {
			withFixture(t, models.TierPro, "50.00", func(f fixture) {
				result, err := f.service.Charge(t.Context(), f.account, decimal.RequireFromString("10.00"), "39053344705", "Consulta de CPF")

				require.NoError(t, err)
				require.True(t, result.FinalPrice.Equal(decimal.RequireFromString("9.00")), "pro tier pays 10 percent less")
				require.True(t, result.DiscountPercent.Equal(decimal.NewFromInt(10)))
				require.Len(t, result.Transactions, 1)

				remote, err := f.ledger.Balance(t.Context(), f.account.ID)
				require.NoError(t, err)
				require.True(t, remote.Wallet.Equal(decimal.RequireFromString("41.00")))
			})
		})

		t.Run("free tier pays list price", func(t *testing.T) {
			withFixture(t, models.TierFree, "50.00", func(f fixture) {
				result, err := f.service.Charge(t.Context(), f.account, decimal.RequireFromString("10.00"), "39053344705", "Consulta de CPF")

				require.NoError(t, err)
				require.True(t, result.FinalPrice.Equal(decimal.RequireFromString("10.00")))
			})
		})

		t.Run("charge references the consulted document", func(t *testing.T) {
			withFixture(t, models.TierFree, "50.00", func(f fixture) {
				result, err := f.service.Charge(t.Context(), f.account, decimal.RequireFromString("10.00"), "39053344705", "Consulta de CPF")

				require.NoError(t, err)
				require.Len(t, result.Transactions, 1)
				require.NotNil(t, result.Transactions[0].ReferenceID)
				require.Equal(t, "39053344705", *result.Transactions[0].ReferenceID)
			})
		})

		t.Run("insufficient funds", func(t *testing.T) {
			withFixture(t, models.TierFree, "5.00", func(f fixture) {
				_, err := f.service.Charge(t.Context(), f.account, decimal.RequireFromString("10.00"), "39053344705", "Consulta de CPF")

				require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)
			})
		})
	})

	t.Run("PurchasePlan", func(t *testing.T) {
		t.Run("debits wallet, loads plan pool, moves tier", func(t *testing.T) {
			withFixture(t, models.TierFree, "100.00", func(f fixture) {
				updated, err := f.service.PurchasePlan(t.Context(), f.account, models.TierStart)

				require.NoError(t, err)
				require.Equal(t, models.TierStart, updated.PlanTier)

				remote, err := f.ledger.Balance(t.Context(), f.account.ID)
				require.NoError(t, err)
				require.True(t, remote.Wallet.Equal(decimal.RequireFromString("51.00")), "start plan costs 49.00")
				require.True(t, remote.Plan.Equal(decimal.RequireFromString("55.00")), "start plan loads 55.00")
			})
		})

		t.Run("unknown tier", func(t *testing.T) {
			withFixture(t, models.TierFree, "100.00", func(f fixture) {
				_, err := f.service.PurchasePlan(t.Context(), f.account, "diamond")

				require.ErrorIs(t, err, apperrors.ErrPlanUnknown)
			})
		})

		t.Run("failed plan credit refunds the wallet", func(t *testing.T) {
			withFixture(t, models.TierFree, "100.00", func(f fixture) {
				f.ledger.FailNextCredits = 1

				_, err := f.service.PurchasePlan(t.Context(), f.account, models.TierStart)

				require.Error(t, err)

				remote, err := f.ledger.Balance(t.Context(), f.account.ID)
				require.NoError(t, err)
				require.True(t, remote.Wallet.Equal(decimal.RequireFromString("100.00")), "the debited price comes back")
				require.True(t, remote.Plan.IsZero())

				stored, err := f.storage.Account().GetAccountByID(t.Context(), f.account.ID)
				require.NoError(t, err)
				require.Equal(t, models.TierFree, stored.PlanTier, "tier unchanged when the purchase unwinds")

				refunds, err := f.storage.Transaction().ListTransactions(t.Context(), f.account.ID, repository.ListTransactionsOpts{
					Kinds: []string{models.TransactionKindPlanPurchase},
				})
				require.NoError(t, err)
				require.Len(t, refunds, 2, "the debit and its refund stay on the ledger")
			})
		})

		t.Run("wallet too small", func(t *testing.T) {
			withFixture(t, models.TierFree, "10.00", func(f fixture) {
				_, err := f.service.PurchasePlan(t.Context(), f.account, models.TierStart)

				require.ErrorIs(t, err, apperrors.ErrInsufficientFunds)

				stored, err := f.storage.Account().GetAccountByID(t.Context(), f.account.ID)
				require.NoError(t, err)
				require.Equal(t, models.TierFree, stored.PlanTier, "tier unchanged when payment fails")
			})
		})
	})
}
