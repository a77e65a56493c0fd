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
	"github.com/consultaplus/carteira/internal/repository"
)

type AccountRepo struct {
	DB DBTX
}

const createAccount = `-- name: CreateAccount
INSERT INTO accounts (id, email, password_hash, plan_tier, referral_code, referred_by)
VALUES ($1, $2, $3, $4, $5, $6)
RETURNING id, created_at, email, password_hash, plan_tier, referral_code, referred_by
`

func (r *AccountRepo) CreateAccount(ctx context.Context, arg repository.CreateAccountParams) (models.Account, error) {
	tier := arg.PlanTier
	if tier == "" {
		tier = models.TierFree
	}

	rows, _ := r.DB.Query(ctx, createAccount, uuid.New(), arg.Email, arg.HashedPassword, tier, arg.ReferralCode, arg.ReferredBy)
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return account, apperrors.ErrAccountAlreadyExists
		}

		return account, fmt.Errorf("db error: %w", err)
	}

	return account, nil
}

const getAccountByID = `-- name: GetAccountByID
SELECT id, created_at, email, password_hash, plan_tier, referral_code, referred_by FROM accounts
WHERE id = $1
`

func (r *AccountRepo) GetAccountByID(ctx context.Context, id uuid.UUID) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByID, id)
	return collectAccount(rows)
}

const getAccountByEmail = `-- name: GetAccountByEmail
SELECT id, created_at, email, password_hash, plan_tier, referral_code, referred_by FROM accounts
WHERE email = $1
`

func (r *AccountRepo) GetAccountByEmail(ctx context.Context, email string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByEmail, email)
	return collectAccount(rows)
}

const getAccountByReferralCode = `-- name: GetAccountByReferralCode
SELECT id, created_at, email, password_hash, plan_tier, referral_code, referred_by FROM accounts
WHERE referral_code = $1
`

func (r *AccountRepo) GetAccountByReferralCode(ctx context.Context, code string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, getAccountByReferralCode, code)
	return collectAccount(rows)
}

const setPlanTier = `-- name: SetPlanTier
UPDATE accounts
SET plan_tier = $2
WHERE id = $1
RETURNING id, created_at, email, password_hash, plan_tier, referral_code, referred_by
`

func (r *AccountRepo) SetPlanTier(ctx context.Context, id uuid.UUID, tier string) (models.Account, error) {
	rows, _ := r.DB.Query(ctx, setPlanTier, id, tier)
	return collectAccount(rows)
}

func collectAccount(rows pgx.Rows) (models.Account, error) {
	account, err := pgx.CollectOneRow(rows, rowToAccount)

	switch {
	case err == nil:
		return account, nil
	case errors.Is(err, pgx.ErrNoRows):
		return account, apperrors.ErrAccountNotFound
	default:
		return account, fmt.Errorf("db error: %w", err)
	}
}

func rowToAccount(row pgx.CollectableRow) (models.Account, error) {
	var a models.Account
	err := row.Scan(&a.ID, &a.CreatedAt, &a.Email, &a.HashedPassword, &a.PlanTier, &a.ReferralCode, &a.ReferredBy)
	return a, err
}
