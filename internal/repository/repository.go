package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/models"
)

// Storage aggregates the repositories and allows running them in one
// database transaction via InTx
type Storage interface {
	Account() AccountRepo
	Transaction() TransactionRepo
	Referral() ReferralRepo
	Coupon() CouponRepo

	// InTx runs fn with a Storage bound to a single transaction.
	// Commits when fn returns nil, rolls back otherwise.
	InTx(ctx context.Context, fn func(Storage) error) error
}

type CreateAccountParams struct {
	Email          string
	HashedPassword string
	PlanTier       string
	ReferralCode   string
	ReferredBy     *uuid.UUID
}

type AccountRepo interface {
	// Create account
	// Has to return apperrors.ErrAccountAlreadyExists on duplicated email
	CreateAccount(ctx context.Context, arg CreateAccountParams) (models.Account, error)

	// Has to return apperrors.ErrAccountNotFound when missing
	GetAccountByID(ctx context.Context, id uuid.UUID) (models.Account, error)
	GetAccountByEmail(ctx context.Context, email string) (models.Account, error)
	GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error)

	SetPlanTier(ctx context.Context, id uuid.UUID, tier string) (models.Account, error)
}

type ListTransactionsOpts struct {
	Limit  int
	Offset int

	// Optional filters, nil means all
	Statuses []string
	Kinds    []string
}

type TransactionRepo interface {
	CreateTransaction(ctx context.Context, tx models.Transaction) (models.Transaction, error)

	GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error)

	// Find a non-failed transaction by kind and external reference
	GetByReference(ctx context.Context, kind string, referenceID string) (models.Transaction, error)

	// Transition to a terminal status. Never overwrites a terminal status:
	// returns the stored row unchanged in that case.
	SetStatus(ctx context.Context, id uuid.UUID, status string) (models.Transaction, error)

	// Most-recent-first, ties broken by id descending
	ListTransactions(ctx context.Context, accountID uuid.UUID, opts ListTransactionsOpts) ([]models.Transaction, error)

	// Pending transactions across all accounts, oldest first
	ListPending(ctx context.Context, limit int) ([]models.Transaction, error)
}

type ReferralRepo interface {
	// Has to return apperrors.ErrReferralAlreadyExists when the pair (or the
	// referred account) is already registered
	CreateReferral(ctx context.Context, referrerID uuid.UUID, referredID uuid.UUID) (models.ReferralRecord, error)

	// Record for the account that was referred
	// Has to return apperrors.ErrAccountNotFound when no record exists
	GetByReferredID(ctx context.Context, referredID uuid.UUID) (models.ReferralRecord, error)

	ListByReferrerID(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralRecord, error)

	// Move a pending record to active. The guard is atomic: exactly one
	// of any set of concurrent callers gets claimed=true
	Activate(ctx context.Context, id uuid.UUID) (record models.ReferralRecord, claimed bool, err error)

	// Add a credited commission and move the record to the given status
	AddEarned(ctx context.Context, id uuid.UUID, amount decimal.Decimal, status string) (models.ReferralRecord, error)
}

type CouponRepo interface {
	CreateCoupon(ctx context.Context, coupon models.Coupon) (models.Coupon, error)

	// Has to return apperrors.ErrCouponNotFound when missing
	GetCouponByCode(ctx context.Context, code string) (models.Coupon, error)

	// Increment used_count
	// Has to return apperrors.ErrCouponExhausted when the cap is reached
	IncrementUsage(ctx context.Context, id uuid.UUID) (models.Coupon, error)

	// Has to return apperrors.ErrDuplicateOperation when the
	// (coupon, account, invocation) triple was already recorded
	CreateRedemption(ctx context.Context, redemption models.CouponRedemption) (models.CouponRedemption, error)

	GetRedemption(ctx context.Context, couponID uuid.UUID, accountID uuid.UUID, invocationID string) (models.CouponRedemption, error)
}
