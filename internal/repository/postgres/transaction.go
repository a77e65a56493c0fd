package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
)

type TransactionRepo struct {
	DB DBTX
}

const transactionColumns = "id, created_at, account_id, amount, pool, kind, description, status, reference_id"

const createTransaction = `-- name: CreateTransaction
INSERT INTO transactions (id, created_at, account_id, amount, pool, kind, description, status, reference_id)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING ` + transactionColumns

func (r *TransactionRepo) CreateTransaction(ctx context.Context, t models.Transaction) (models.Transaction, error) {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	if t.Status == "" {
		t.Status = models.TransactionStatusPending
	}

	rows, _ := r.DB.Query(ctx, createTransaction,
		t.ID, t.CreatedAt, t.AccountID, t.Amount, t.Pool, t.Kind, t.Description, t.Status, t.ReferenceID)
	created, err := pgx.CollectOneRow(rows, rowToTransaction)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch {
			case pgErr.Code == pgerrcode.UniqueViolation:
				return created, apperrors.ErrDuplicateOperation
			case pgErr.Code == pgerrcode.ForeignKeyViolation:
				return created, apperrors.ErrAccountNotFound
			}
		}

		return created, fmt.Errorf("db error: %w", err)
	}

	return created, nil
}

const getTransaction = `-- name: GetTransaction
SELECT ` + transactionColumns + ` FROM transactions
WHERE id = $1
`

func (r *TransactionRepo) GetTransaction(ctx context.Context, id uuid.UUID) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getTransaction, id)
	return collectTransaction(rows)
}

const getByReference = `-- name: GetTransactionByReference
SELECT ` + transactionColumns + ` FROM transactions
WHERE kind = $1 AND reference_id = $2 AND status <> 'failed'
ORDER BY created_at DESC, id DESC
LIMIT 1
`

func (r *TransactionRepo) GetByReference(ctx context.Context, kind string, referenceID string) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, getByReference, kind, referenceID)
	return collectTransaction(rows)
}

// Transition is applied only while the row is still pending, so a terminal
// status is never overwritten. The stored row is returned either way.
const setStatus = `-- name: SetTransactionStatus
WITH updated AS (
	UPDATE transactions
	SET status = $2
	WHERE id = $1 AND status = 'pending'
	RETURNING ` + transactionColumns + `
)
SELECT * FROM updated
UNION
SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1 AND NOT EXISTS (SELECT 1 FROM updated)
`

func (r *TransactionRepo) SetStatus(ctx context.Context, id uuid.UUID, status string) (models.Transaction, error) {
	rows, _ := r.DB.Query(ctx, setStatus, id, status)
	return collectTransaction(rows)
}

const listTransactions = `-- name: ListTransactions
SELECT ` + transactionColumns + ` FROM transactions
WHERE account_id = $1
	AND ($2::text[] IS NULL OR status = ANY($2))
	AND ($3::text[] IS NULL OR kind = ANY($3))
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5
`

func (r *TransactionRepo) ListTransactions(ctx context.Context, accountID uuid.UUID, opts repository.ListTransactionsOpts) ([]models.Transaction, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	rows, _ := r.DB.Query(ctx, listTransactions, accountID, opts.Statuses, opts.Kinds, limit, opts.Offset)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

const listPending = `-- name: ListPendingTransactions
SELECT ` + transactionColumns + ` FROM transactions
WHERE status = 'pending'
ORDER BY created_at
LIMIT $1
`

func (r *TransactionRepo) ListPending(ctx context.Context, limit int) ([]models.Transaction, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, _ := r.DB.Query(ctx, listPending, limit)
	transactions, err := pgx.CollectRows(rows, rowToTransaction)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return transactions, nil
}

func collectTransaction(rows pgx.Rows) (models.Transaction, error) {
	t, err := pgx.CollectOneRow(rows, rowToTransaction)

	switch {
	case err == nil:
		return t, nil
	case errors.Is(err, pgx.ErrNoRows):
		return t, apperrors.ErrTransactionNotFound
	default:
		return t, fmt.Errorf("db error: %w", err)
	}
}

func rowToTransaction(row pgx.CollectableRow) (models.Transaction, error) {
	var t models.Transaction
	err := row.Scan(&t.ID, &t.CreatedAt, &t.AccountID, &t.Amount, &t.Pool, &t.Kind, &t.Description, &t.Status, &t.ReferenceID)
	return t, err
}
