package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/models"
)

type ReferralRepo struct {
	DB DBTX
}

const referralColumns = "id, created_at, referrer_id, referred_id, earned, status"

const createReferral = `-- name: CreateReferral
INSERT INTO referrals (id, referrer_id, referred_id, earned, status)
VALUES ($1, $2, $3, 0, 'pending')
RETURNING ` + referralColumns

func (r *ReferralRepo) CreateReferral(ctx context.Context, referrerID uuid.UUID, referredID uuid.UUID) (models.ReferralRecord, error) {
	rows, _ := r.DB.Query(ctx, createReferral, uuid.New(), referrerID, referredID)
	record, err := pgx.CollectOneRow(rows, rowToReferral)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgerrcode.UniqueViolation:
				return record, apperrors.ErrReferralAlreadyExists
			case pgErr.Code == pgerrcode.CheckViolation:
				return record, apperrors.ErrSelfReferral
			case pgErr.Code == pgerrcode.ForeignKeyViolation:
				return record, apperrors.ErrAccountNotFound
			}
		}

		return record, fmt.Errorf("db error: %w", err)
	}

	return record, nil
}

const getByReferredID = `-- name: GetReferralByReferredID
SELECT ` + referralColumns + ` FROM referrals
WHERE referred_id = $1
`

func (r *ReferralRepo) GetByReferredID(ctx context.Context, referredID uuid.UUID) (models.ReferralRecord, error) {
	rows, _ := r.DB.Query(ctx, getByReferredID, referredID)
	record, err := pgx.CollectOneRow(rows, rowToReferral)

	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, pgx.ErrNoRows):
		return record, apperrors.ErrAccountNotFound
	default:
		return record, fmt.Errorf("db error: %w", err)
	}
}

const listByReferrerID = `-- name: ListReferralsByReferrerID
SELECT ` + referralColumns + ` FROM referrals
WHERE referrer_id = $1
ORDER BY created_at DESC
`

func (r *ReferralRepo) ListByReferrerID(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralRecord, error) {
	rows, _ := r.DB.Query(ctx, listByReferrerID, referrerID)
	records, err := pgx.CollectRows(rows, rowToReferral)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return records, nil
}

const activateReferral = `-- name: ActivateReferral
UPDATE referrals
SET status = 'active'
WHERE id = $1 AND status = 'pending'
RETURNING ` + referralColumns

func (r *ReferralRepo) Activate(ctx context.Context, id uuid.UUID) (models.ReferralRecord, bool, error) {
	rows, _ := r.DB.Query(ctx, activateReferral, id)
	record, err := pgx.CollectOneRow(rows, rowToReferral)

	switch {
	case err == nil:
		return record, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		return record, false, nil
	default:
		return record, false, fmt.Errorf("db error: %w", err)
	}
}

const addEarned = `-- name: AddReferralEarned
UPDATE referrals
SET earned = earned + $2, status = $3
WHERE id = $1
RETURNING ` + referralColumns

func (r *ReferralRepo) AddEarned(ctx context.Context, id uuid.UUID, amount decimal.Decimal, status string) (models.ReferralRecord, error) {
	rows, _ := r.DB.Query(ctx, addEarned, id, amount, status)
	record, err := pgx.CollectOneRow(rows, rowToReferral)

	switch {
	case err == nil:
		return record, nil
	case errors.Is(err, pgx.ErrNoRows):
		return record, apperrors.ErrAccountNotFound
	default:
		return record, fmt.Errorf("db error: %w", err)
	}
}

func rowToReferral(row pgx.CollectableRow) (models.ReferralRecord, error) {
	var rec models.ReferralRecord
	err := row.Scan(&rec.ID, &rec.CreatedAt, &rec.ReferrerID, &rec.ReferredID, &rec.Earned, &rec.Status)
	return rec, err
}
