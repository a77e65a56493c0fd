// Package handlers exposes the wallet over HTTP. Handlers are closures
// over narrow service interfaces; money leaves the process as floats only
// at this JSON edge.
package handlers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/handlers/middleware"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
	"github.com/consultaplus/carteira/internal/service/account"
	"github.com/consultaplus/carteira/internal/service/billing"
)

// chain applies middlewares in the given order: m1(m2(...(h)))
func chain(h http.Handler, mds ...func(next http.Handler) http.Handler) http.Handler {
	for i := len(mds) - 1; i >= 0; i-- {
		h = mds[i](h)
	}
	return h
}

func NewRouter(
	accountService accountService,
	balances balanceReader,
	ledgerService ledgerService,
	billingService billingService,
	couponService couponService,
	referralService referralService,
	logger logger.Logger,
) http.Handler {
	authMiddleware := middleware.AuthMiddleware(accountService)
	withAuth := func(h http.Handler) http.Handler {
		return authMiddleware(h)
	}

	api := http.NewServeMux()

	api.Handle("POST /register", handleRegister(accountService, logger))
	api.Handle("POST /login", handleLogin(accountService, logger))

	// Gateway callback authenticates via its own shared secret upstream,
	// not via an account token
	api.Handle("POST /recharges/confirm", handleRechargeCallback(billingService, logger))

	api.Handle("GET /balance", withAuth(handleBalance(balances, logger)))
	api.Handle("GET /transactions", withAuth(handleListTransactions(ledgerService, logger)))
	api.Handle("POST /recharges", withAuth(handleCreateRecharge(billingService, logger)))
	api.Handle("POST /charges", withAuth(handleCharge(billingService, logger)))
	api.Handle("POST /plans", withAuth(handlePurchasePlan(billingService, logger)))
	api.Handle("POST /coupons/redeem", withAuth(handleRedeemCoupon(couponService, logger)))
	api.Handle("GET /referrals", withAuth(handleListReferrals(referralService, logger)))

	root := http.NewServeMux()
	root.Handle("/api/", http.StripPrefix("/api", api))

	handler := chain(root,
		middleware.LoggerMiddleware(logger),
	)

	return handler
}

type accountService interface {
	// Register account with email, password and an optional referral code
	// Has to return apperrors.ErrAccountAlreadyExists on duplicated email
	// Has to return apperrors.ErrReferralCodeInvalid on unknown code
	Register(ctx context.Context, email string, password string, referralCode string) (models.Account, account.IssuedToken, error)

	// Has to return apperrors.ErrAccountNotFound for both unknown email and
	// wrong password
	Login(ctx context.Context, email string, password string) (models.Account, account.IssuedToken, error)

	// Map an access token to the account it was issued for
	Authenticate(ctx context.Context, access string) (models.Account, error)
}

type balanceReader interface {
	// Display read: may fall back to the mirror, flagged stale
	Get(ctx context.Context, accountID uuid.UUID) (models.BalanceSnapshot, error)
}

type ledgerService interface {
	History(ctx context.Context, accountID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.Transaction, error)
}

type billingService interface {
	CreateRecharge(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, paymentID string) (models.Transaction, error)
	SettleRecharge(ctx context.Context, paymentID string, approved bool) (models.Transaction, error)
	Charge(ctx context.Context, account models.Account, listPrice decimal.Decimal, document string, description string) (billing.ChargeResult, error)
	PurchasePlan(ctx context.Context, account models.Account, tier string) (models.Account, error)
}

type couponService interface {
	Redeem(ctx context.Context, code string, accountID uuid.UUID, invocationID string, baseAmount decimal.Decimal) (models.Transaction, error)
}

type referralService interface {
	Earnings(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralRecord, error)
}
