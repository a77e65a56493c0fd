// Package spend authorizes debit attempts against a live balance. It is
// the only caller allowed to split a charge across the plan and wallet
// pools: plan funds burn first, the wallet covers the remainder.
package spend

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
)

type Authorizer struct {
	store  *balance.Store
	logger logger.Logger
}

func NewAuthorizer(store *balance.Store, l logger.Logger) *Authorizer {
	return &Authorizer{store: store, logger: l}
}

// AuthorizeAndDebit checks the combined balance against amount and, when
// covered, debits plan first and wallet for the remainder. The whole
// read-check-debit sequence holds the account lock, and the balance read
// never degrades to the mirror. Returns one confirmed transaction per
// debited pool.
func (a *Authorizer) AuthorizeAndDebit(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, meta balance.TxMeta) ([]models.Transaction, error) {
	if !amount.IsPositive() {
		return nil, fmt.Errorf("charge amount must be positive, got %s", amount)
	}

	var created []models.Transaction
	err := a.store.WithAccountLock(accountID, func() error {
		snapshot, err := a.store.Fresh(ctx, accountID)
		if err != nil {
			return err
		}

		if snapshot.Available().LessThan(amount) {
			return &apperrors.InsufficientFundsError{
				Requested: amount,
				Available: snapshot.Available(),
			}
		}

		fromPlan := decimal.Min(snapshot.Plan, amount)
		fromWallet := amount.Sub(fromPlan)

		created, err = a.store.DebitPools(ctx, accountID, fromPlan, fromWallet, meta)
		return err
	})
	if err != nil {
		return nil, err
	}

	a.logger.Info("Charge authorized",
		"account_id", accountID, "amount", amount, "kind", meta.Kind, "parts", len(created))
	return created, nil
}
