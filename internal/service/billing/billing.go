// Package billing ties money movement to business events: wallet recharges
// settled by the payment gateway, consultation charges priced by tier, and
// plan purchases.
package billing

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/pricing"
	"github.com/consultaplus/carteira/internal/repository"
	"github.com/consultaplus/carteira/internal/service/ledger"
	"github.com/consultaplus/carteira/internal/service/spend"
)

// Plan is a purchasable subscription tier: the wallet price and the
// consultation credit loaded into the plan pool
type Plan struct {
	Tier   string
	Price  decimal.Decimal
	Credit decimal.Decimal
}

// DefaultPlans is the standard catalog; deployments may override it
var DefaultPlans = []Plan{
	{Tier: models.TierStart, Price: decimal.NewFromInt(49), Credit: decimal.NewFromInt(55)},
	{Tier: models.TierPro, Price: decimal.NewFromInt(99), Credit: decimal.NewFromInt(120)},
	{Tier: models.TierMaster, Price: decimal.NewFromInt(199), Credit: decimal.NewFromInt(260)},
}

type Service struct {
	storage repository.Storage
	store   *balance.Store
	ledger  *ledger.Service
	spend   *spend.Authorizer
	plans   map[string]Plan
	logger  logger.Logger
}

func NewService(storage repository.Storage, store *balance.Store, l *ledger.Service, authorizer *spend.Authorizer, plans []Plan, log logger.Logger) *Service {
	if len(plans) == 0 {
		plans = DefaultPlans
	}

	byTier := make(map[string]Plan, len(plans))
	for _, p := range plans {
		byTier[p.Tier] = p
	}

	return &Service{
		storage: storage,
		store:   store,
		ledger:  l,
		spend:   authorizer,
		plans:   byTier,
		logger:  log,
	}
}

// CreateRecharge records a pending wallet credit referencing the external
// payment. The wallet is only touched when the payment settles. A second
// recharge for the same payment id is rejected.
func (s *Service) CreateRecharge(ctx context.Context, accountID uuid.UUID, amount decimal.Decimal, paymentID string) (models.Transaction, error) {
	if !amount.IsPositive() {
		return models.Transaction{}, fmt.Errorf("recharge amount must be positive, got %s", amount)
	}

	return s.ledger.Record(ctx, accountID, models.PoolWallet, amount, balance.TxMeta{
		Kind:        models.TransactionKindRecharge,
		Description: "Recarga de carteira",
		ReferenceID: &paymentID,
	})
}

// SettleRecharge maps a gateway verdict for a payment onto the pending
// recharge transaction.
func (s *Service) SettleRecharge(ctx context.Context, paymentID string, approved bool) (models.Transaction, error) {
	t, err := s.storage.Transaction().GetByReference(ctx, models.TransactionKindRecharge, paymentID)
	if err != nil {
		return t, fmt.Errorf("recharge for payment %s: %w", paymentID, err)
	}

	if approved {
		return s.ledger.Confirm(ctx, t.ID)
	}
	return s.ledger.Fail(ctx, t.ID)
}

// ChargeResult reports how a consultation charge was priced and debited
type ChargeResult struct {
	ListPrice       decimal.Decimal
	FinalPrice      decimal.Decimal
	DiscountPercent decimal.Decimal
	Transactions    []models.Transaction
}

// Charge prices the consultation for the account's tier and debits the
// discounted amount, plan pool first. The consulted document is kept as
// the ledger reference so charges can be traced back to it.
func (s *Service) Charge(ctx context.Context, account models.Account, listPrice decimal.Decimal, document string, description string) (ChargeResult, error) {
	final, percent, err := pricing.FinalPrice(listPrice, account.PlanTier)
	if err != nil {
		return ChargeResult{}, err
	}

	meta := balance.TxMeta{
		Kind:        models.TransactionKindConsultation,
		Description: description,
	}
	if document != "" {
		meta.ReferenceID = &document
	}

	transactions, err := s.spend.AuthorizeAndDebit(ctx, account.ID, final, meta)
	if err != nil {
		return ChargeResult{}, err
	}

	return ChargeResult{
		ListPrice:       listPrice,
		FinalPrice:      final,
		DiscountPercent: percent,
		Transactions:    transactions,
	}, nil
}

// PurchasePlan debits the plan's price from the wallet, loads the plan
// credit into the plan pool and moves the account to the new tier.
func (s *Service) PurchasePlan(ctx context.Context, account models.Account, tier string) (models.Account, error) {
	plan, ok := s.plans[tier]
	if !ok {
		return account, fmt.Errorf("tier %q: %w", tier, apperrors.ErrPlanUnknown)
	}

	reference := plan.Tier
	_, err := s.store.Debit(ctx, account.ID, models.PoolWallet, plan.Price, balance.TxMeta{
		Kind:        models.TransactionKindPlanPurchase,
		Description: fmt.Sprintf("Assinatura do plano %s", plan.Tier),
		ReferenceID: &reference,
	})
	if err != nil {
		return account, err
	}

	_, err = s.store.Credit(ctx, account.ID, models.PoolPlan, plan.Credit, balance.TxMeta{
		Kind:        models.TransactionKindPlanPurchase,
		Description: fmt.Sprintf("Créditos do plano %s", plan.Tier),
		ReferenceID: &reference,
	})
	if err != nil {
		s.refundPurchase(ctx, account.ID, plan)
		return account, fmt.Errorf("plan credit after paid purchase, account %s: %w", account.ID, err)
	}

	updated, err := s.storage.Account().SetPlanTier(ctx, account.ID, plan.Tier)
	if err != nil {
		if _, debitErr := s.store.Debit(ctx, account.ID, models.PoolPlan, plan.Credit, balance.TxMeta{
			Kind:        models.TransactionKindPlanPurchase,
			Description: fmt.Sprintf("Estorno dos créditos do plano %s", plan.Tier),
			ReferenceID: &reference,
		}); debitErr != nil {
			s.logger.Error("Plan credit reversal failed, account left overcredited",
				"account_id", account.ID, "tier", plan.Tier, "error", debitErr)
		}
		s.refundPurchase(ctx, account.ID, plan)
		return account, fmt.Errorf("set tier after paid purchase, account %s: %w", account.ID, err)
	}

	s.logger.Info("Plan purchased", "account_id", account.ID, "tier", plan.Tier, "price", plan.Price)
	return updated, nil
}

// refundPurchase returns the plan price to the wallet after a purchase
// step failed past the debit. A refund that fails too leaves the account
// short and needs manual reconciliation, so it is logged loudly.
func (s *Service) refundPurchase(ctx context.Context, accountID uuid.UUID, plan Plan) {
	reference := plan.Tier
	_, err := s.store.Credit(ctx, accountID, models.PoolWallet, plan.Price, balance.TxMeta{
		Kind:        models.TransactionKindPlanPurchase,
		Description: fmt.Sprintf("Estorno do plano %s", plan.Tier),
		ReferenceID: &reference,
	})
	if err != nil {
		s.logger.Error("Plan purchase refund failed, wallet debit is unrecovered",
			"account_id", accountID, "tier", plan.Tier, "price", plan.Price, "error", err)
		return
	}

	s.logger.Warn("Plan purchase refunded", "account_id", accountID, "tier", plan.Tier, "price", plan.Price)
}
