package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/models"
)

type CouponRepo struct {
	DB DBTX
}

const couponColumns = "id, created_at, code, kind, value, pool, usage_cap, used_count, allowed_accounts, valid_from, valid_until"

const createCoupon = `-- name: CreateCoupon
INSERT INTO coupons (id, code, kind, value, pool, usage_cap, used_count, allowed_accounts, valid_from, valid_until)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING ` + couponColumns

func (r *CouponRepo) CreateCoupon(ctx context.Context, c models.Coupon) (models.Coupon, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	allowed := c.AllowedAccounts
	if allowed == nil {
		allowed = []uuid.UUID{}
	}

	rows, _ := r.DB.Query(ctx, createCoupon,
		c.ID, c.Code, c.Kind, c.Value, c.Pool, c.UsageCap, c.UsedCount, allowed, c.ValidFrom, c.ValidUntil)
	coupon, err := pgx.CollectOneRow(rows, rowToCoupon)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return coupon, fmt.Errorf("coupon code already exists: %w", err)
		}

		return coupon, fmt.Errorf("db error: %w", err)
	}

	return coupon, nil
}

const getCouponByCode = `-- name: GetCouponByCode
SELECT ` + couponColumns + ` FROM coupons
WHERE code = $1
`

func (r *CouponRepo) GetCouponByCode(ctx context.Context, code string) (models.Coupon, error) {
	rows, _ := r.DB.Query(ctx, getCouponByCode, code)
	coupon, err := pgx.CollectOneRow(rows, rowToCoupon)

	switch {
	case err == nil:
		return coupon, nil
	case errors.Is(err, pgx.ErrNoRows):
		return coupon, apperrors.ErrCouponNotFound
	default:
		return coupon, fmt.Errorf("db error: %w", err)
	}
}

// The WHERE guard keeps concurrent redemptions from overrunning the cap:
// the row simply stops matching once used_count reaches it
const incrementUsage = `-- name: IncrementCouponUsage
UPDATE coupons
SET used_count = used_count + 1
WHERE id = $1 AND used_count < usage_cap
RETURNING ` + couponColumns

func (r *CouponRepo) IncrementUsage(ctx context.Context, id uuid.UUID) (models.Coupon, error) {
	rows, _ := r.DB.Query(ctx, incrementUsage, id)
	coupon, err := pgx.CollectOneRow(rows, rowToCoupon)

	switch {
	case err == nil:
		return coupon, nil
	case errors.Is(err, pgx.ErrNoRows):
		return coupon, apperrors.ErrCouponExhausted
	default:
		return coupon, fmt.Errorf("db error: %w", err)
	}
}

const createRedemption = `-- name: CreateCouponRedemption
INSERT INTO coupon_redemptions (id, coupon_id, account_id, invocation_id, transaction_id)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, created_at, coupon_id, account_id, invocation_id, transaction_id
`

func (r *CouponRepo) CreateRedemption(ctx context.Context, redemption models.CouponRedemption) (models.CouponRedemption, error) {
	if redemption.ID == uuid.Nil {
		redemption.ID = uuid.New()
	}

	rows, _ := r.DB.Query(ctx, createRedemption,
		redemption.ID, redemption.CouponID, redemption.AccountID, redemption.InvocationID, redemption.TransactionID)
	created, err := pgx.CollectOneRow(rows, rowToRedemption)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return created, apperrors.ErrDuplicateOperation
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getRedemption = `-- name: GetCouponRedemption
SELECT id, created_at, coupon_id, account_id, invocation_id, transaction_id FROM coupon_redemptions
WHERE coupon_id = $1 AND account_id = $2 AND invocation_id = $3
`

func (r *CouponRepo) GetRedemption(ctx context.Context, couponID uuid.UUID, accountID uuid.UUID, invocationID string) (models.CouponRedemption, error) {
	rows, _ := r.DB.Query(ctx, getRedemption, couponID, accountID, invocationID)
	redemption, err := pgx.CollectOneRow(rows, rowToRedemption)

	switch {
	case err == nil:
		return redemption, nil
	case errors.Is(err, pgx.ErrNoRows):
		return redemption, apperrors.ErrCouponNotFound
	default:
		return redemption, fmt.Errorf("db error: %w", err)
	}
}

func rowToCoupon(row pgx.CollectableRow) (models.Coupon, error) {
	var c models.Coupon
	err := row.Scan(&c.ID, &c.CreatedAt, &c.Code, &c.Kind, &c.Value, &c.Pool, &c.UsageCap, &c.UsedCount, &c.AllowedAccounts, &c.ValidFrom, &c.ValidUntil)
	return c, err
}

func rowToRedemption(row pgx.CollectableRow) (models.CouponRedemption, error) {
	var cr models.CouponRedemption
	err := row.Scan(&cr.ID, &cr.CreatedAt, &cr.CouponID, &cr.AccountID, &cr.InvocationID, &cr.TransactionID)
	return cr, err
}
