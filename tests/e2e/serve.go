package e2e

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/stretchr/testify/require"

	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/handlers"
	"github.com/consultaplus/carteira/internal/ledgerapi"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/repository"
	"github.com/consultaplus/carteira/internal/repository/postgres"
	"github.com/consultaplus/carteira/internal/service/account"
	"github.com/consultaplus/carteira/internal/service/billing"
	"github.com/consultaplus/carteira/internal/service/coupon"
	"github.com/consultaplus/carteira/internal/service/ledger"
	"github.com/consultaplus/carteira/internal/service/referral"
	"github.com/consultaplus/carteira/internal/service/spend"
	"github.com/consultaplus/carteira/internal/testutil"
)

type Services struct {
	Accounts  *account.Service
	Billing   *billing.Service
	Coupons   *coupon.Service
	Referrals *referral.Engine
	Balances  *balance.Store
	Ledger    *testutil.FakeLedger
	Storage   repository.Storage
}

// localCodesOnly declines every referral code the database does not know
type localCodesOnly struct{}

func (localCodesOnly) ValidateReferralCode(_ context.Context, _ string) (uuid.UUID, error) {
	return uuid.Nil, ledgerapi.NewError(ledgerapi.CodeNotFound, 0, nil)
}

// fakeRedeemer applies coupon credits straight to the fake ledger
type fakeRedeemer struct {
	ledger *testutil.FakeLedger
}

func (r fakeRedeemer) UseCoupon(ctx context.Context, req ledgerapi.UseCouponRequest) (decimal.Decimal, error) {
	err := r.ledger.Credit(ctx, req.AccountID, req.Pool, req.Amount, req.InvocationID)
	return req.Amount, err
}

// Create db transaction and run the server with that connection (one
// connection cause one transaction). The created transaction is passed to
// the inner function: so, you can safely use testutil.InTx with it
func ServeInTx(dbpool *pgxpool.Pool, t *testing.T, fn func(tx pgx.Tx, srvURL string, services Services)) {
	testutil.InTx(dbpool, t, func(tx pgx.Tx) {
		noop := logger.NewNoOp()
		storage := postgres.NewStorage(tx)
		fakeLedger := testutil.NewFakeLedger()
		fakeMirror := testutil.NewFakeMirror()
		notifier := balance.NewNotifier()

		store := balance.NewStore(fakeLedger, fakeMirror, storage, notifier, noop)
		ledgerService := ledger.NewService(storage, store, fakeMirror, notifier, noop)
		authorizer := spend.NewAuthorizer(store, noop)

		engine := referral.NewEngine(storage, store, localCodesOnly{}, fakeMirror, referral.Config{
			CommissionPercent: decimal.NewFromInt(10),
			Policy:            referral.PolicyEvery,
			WelcomeBonus:      decimal.RequireFromString("5.00"),
		}, noop)
		engine.Subscribe(notifier)

		tokens, err := account.NewTokenManager(account.TokenConfig{SecretKey: "test-secret"})
		require.NoError(t, err, "token manager should be created without errors")
		accountService := account.NewService(storage, engine, tokens, noop)

		billingService := billing.NewService(storage, store, ledgerService, authorizer, nil, noop)
		couponService := coupon.NewService(storage, fakeRedeemer{fakeLedger}, store, notifier, noop)

		// Run http server with the router in transaction
		srv := httptest.NewServer(handlers.NewRouter(
			accountService, store, ledgerService, billingService, couponService, engine, noop,
		))
		defer srv.Close()

		fn(tx, srv.URL, Services{
			Accounts:  accountService,
			Billing:   billingService,
			Coupons:   couponService,
			Referrals: engine,
			Balances:  store,
			Ledger:    fakeLedger,
			Storage:   storage,
		})
	})
}
