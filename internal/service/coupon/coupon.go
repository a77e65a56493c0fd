// Package coupon redeems promotional codes into account pools. A
// redemption is idempotent per (coupon, account, invocation id): replaying
// the same invocation returns the originally credited transaction.
package coupon

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/ledgerapi"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
)

// RemoteRedeemer registers the redemption on the remote ledger, which
// applies the pool credit itself
type RemoteRedeemer interface {
	UseCoupon(ctx context.Context, req ledgerapi.UseCouponRequest) (decimal.Decimal, error)
}

type Service struct {
	storage  repository.Storage
	remote   RemoteRedeemer
	store    *balance.Store
	notifier *balance.Notifier
	logger   logger.Logger

	now func() time.Time
}

func NewService(storage repository.Storage, remote RemoteRedeemer, store *balance.Store, notifier *balance.Notifier, l logger.Logger) *Service {
	return &Service{
		storage:  storage,
		remote:   remote,
		store:    store,
		notifier: notifier,
		logger:   l,
		now:      time.Now,
	}
}

// Redeem credits the coupon's value into its pool. baseAmount is the
// amount a percentage coupon applies to; fixed coupons ignore it. The
// usage counter, the redemption record, the ledger row and the remote
// credit commit together or not at all.
func (s *Service) Redeem(ctx context.Context, code string, accountID uuid.UUID, invocationID string, baseAmount decimal.Decimal) (models.Transaction, error) {
	var created models.Transaction

	coupon, err := s.storage.Coupon().GetCouponByCode(ctx, code)
	if err != nil {
		return created, err
	}

	switch {
	case !coupon.ValidAt(s.now()):
		return created, apperrors.ErrCouponExpired
	case !coupon.AllowedFor(accountID):
		return created, apperrors.ErrCouponNotAllowed
	case coupon.Exhausted():
		return created, apperrors.ErrCouponExhausted
	}

	amount, err := creditAmount(coupon, baseAmount)
	if err != nil {
		return created, err
	}

	// The account lock serializes the remote credit against concurrent
	// debits of the same account, so a read-check-debit in flight cannot
	// interleave with the coupon credit.
	err = s.store.WithAccountLock(accountID, func() error {
		return s.storage.InTx(ctx, func(st repository.Storage) error {
			// The guarded counter update serializes concurrent redemptions of
			// the same coupon and enforces the cap
			if _, err := st.Coupon().IncrementUsage(ctx, coupon.ID); err != nil {
				return err
			}

			created, err = st.Transaction().CreateTransaction(ctx, models.Transaction{
				AccountID:   accountID,
				Amount:      amount,
				Pool:        coupon.Pool,
				Kind:        models.TransactionKindCoupon,
				Description: fmt.Sprintf("Cupom %s", coupon.Code),
				Status:      models.TransactionStatusConfirmed,
				ReferenceID: &coupon.Code,
			})
			if err != nil {
				return err
			}

			_, err = st.Coupon().CreateRedemption(ctx, models.CouponRedemption{
				CouponID:      coupon.ID,
				AccountID:     accountID,
				InvocationID:  invocationID,
				TransactionID: created.ID,
			})
			if err != nil {
				return err
			}

			_, err = s.remote.UseCoupon(ctx, ledgerapi.UseCouponRequest{
				Code:         coupon.Code,
				AccountID:    accountID,
				InvocationID: invocationID,
				Amount:       amount,
				Pool:         coupon.Pool,
			})
			return err
		})
	})

	if errors.Is(err, apperrors.ErrDuplicateOperation) {
		return s.priorRedemption(ctx, coupon.ID, accountID, invocationID)
	}
	if err != nil {
		return created, fmt.Errorf("redeem coupon %s for account %s: %w", code, accountID, err)
	}

	s.logger.Info("Coupon redeemed",
		"coupon", coupon.Code, "account_id", accountID, "amount", amount, "pool", coupon.Pool)
	s.notifier.Notify(created)
	return created, nil
}

// priorRedemption resolves a replayed invocation to its original outcome
func (s *Service) priorRedemption(ctx context.Context, couponID uuid.UUID, accountID uuid.UUID, invocationID string) (models.Transaction, error) {
	redemption, err := s.storage.Coupon().GetRedemption(ctx, couponID, accountID, invocationID)
	if err != nil {
		return models.Transaction{}, fmt.Errorf("resolve replayed redemption: %w", err)
	}
	return s.storage.Transaction().GetTransaction(ctx, redemption.TransactionID)
}

func creditAmount(coupon models.Coupon, baseAmount decimal.Decimal) (decimal.Decimal, error) {
	switch coupon.Kind {
	case models.CouponKindFixed:
		return coupon.Value, nil
	case models.CouponKindPercentage:
		if !baseAmount.IsPositive() {
			return decimal.Zero, fmt.Errorf("percentage coupon needs a positive base amount, got %s", baseAmount)
		}
		return baseAmount.Mul(coupon.Value).Div(decimal.NewFromInt(100)).Round(2), nil
	default:
		return decimal.Zero, fmt.Errorf("unknown coupon kind %q", coupon.Kind)
	}
}
