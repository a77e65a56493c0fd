// Package referral pays out the referral program: a welcome bonus to both
// sides when a referred account registers, and a commission to the
// referrer on the referred account's confirmed recharges.
package referral

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/balance"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/mirror"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
)

const (
	// Commission on every confirmed recharge of the referred account
	PolicyEvery = "every"
	// Commission only on the referred account's first confirmed recharge
	PolicyFirst = "first"
)

// handleTimeout bounds the post-commit work done inside a notifier callback
const handleTimeout = 15 * time.Second

// CodeValidator resolves referral codes the local database does not know,
// i.e. codes issued by the ledger before accounts were migrated here
type CodeValidator interface {
	ValidateReferralCode(ctx context.Context, code string) (uuid.UUID, error)
}

type Config struct {
	// Percent of the recharge amount paid to the referrer, e.g. 10 for 10%
	CommissionPercent decimal.Decimal
	// PolicyEvery or PolicyFirst
	Policy string
	// Plan-pool credit both sides receive at registration; zero disables it
	WelcomeBonus decimal.Decimal
}

type Engine struct {
	storage   repository.Storage
	store     *balance.Store
	validator CodeValidator
	mirror    mirror.Mirror
	cfg       Config
	logger    logger.Logger
}

func NewEngine(storage repository.Storage, store *balance.Store, validator CodeValidator, m mirror.Mirror, cfg Config, l logger.Logger) *Engine {
	return &Engine{
		storage:   storage,
		store:     store,
		validator: validator,
		mirror:    m,
		cfg:       cfg,
		logger:    l,
	}
}

// Subscribe registers the engine on the balance notifier so confirmed
// recharges trigger commission payouts.
func (e *Engine) Subscribe(notifier *balance.Notifier) {
	notifier.Subscribe(func(t models.Transaction) {
		ctx, cancel := context.WithTimeout(context.Background(), handleTimeout)
		defer cancel()

		if err := e.OnRecharge(ctx, t); err != nil {
			e.logger.Error("Commission payout failed",
				"transaction_id", t.ID, "account_id", t.AccountID, "error", err)
		}
	})
}

// ResolveCode maps a referral code to the referrer's account. Codes the
// local database does not know are checked against the remote ledger,
// which issued codes before accounts were migrated here.
func (e *Engine) ResolveCode(ctx context.Context, code string) (models.Account, error) {
	account, err := e.storage.Account().GetAccountByReferralCode(ctx, code)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, apperrors.ErrAccountNotFound) {
		return account, err
	}

	referrerID, err := e.validator.ValidateReferralCode(ctx, code)
	if err != nil {
		return models.Account{}, fmt.Errorf("referral code %q: %w", code, apperrors.ErrReferralCodeInvalid)
	}

	account, err = e.storage.Account().GetAccountByID(ctx, referrerID)
	if err != nil {
		return account, fmt.Errorf("referral code %q: %w", code, apperrors.ErrReferralCodeInvalid)
	}
	return account, nil
}

// Link records the referrer/referred pair and pays the welcome bonus to
// both sides. Link is idempotent and retryable: an existing pair still
// walks the bonus payouts, and a bonus that already landed is skipped,
// so a retry after a half-paid failure completes the missing side.
func (e *Engine) Link(ctx context.Context, referrerID uuid.UUID, referredID uuid.UUID) error {
	if referrerID == referredID {
		return apperrors.ErrSelfReferral
	}

	_, err := e.storage.Referral().CreateReferral(ctx, referrerID, referredID)
	switch {
	case errors.Is(err, apperrors.ErrReferralAlreadyExists):
	case err != nil:
		return fmt.Errorf("link referral %s -> %s: %w", referrerID, referredID, err)
	default:
		e.logger.Info("Referral linked", "referrer_id", referrerID, "referred_id", referredID)
	}

	if !e.cfg.WelcomeBonus.IsPositive() {
		return nil
	}

	for _, bonus := range []struct {
		accountID uuid.UUID
		reference uuid.UUID
	}{
		{referredID, referrerID},
		{referrerID, referredID},
	} {
		reference := bonus.reference.String()
		_, err := e.store.Credit(ctx, bonus.accountID, models.PoolPlan, e.cfg.WelcomeBonus, balance.TxMeta{
			Kind:        models.TransactionKindReferralBonus,
			Description: "Bônus de indicação",
			ReferenceID: &reference,
		})
		switch {
		case errors.Is(err, apperrors.ErrDuplicateOperation):
			// Bonus already paid on an earlier attempt
		case err != nil:
			return fmt.Errorf("welcome bonus for account %s: %w", bonus.accountID, err)
		}
	}

	return nil
}

// OnRecharge credits the referrer's wallet with a share of the referred
// account's confirmed recharge. Accounts without a referrer and recharges
// that do not qualify under the policy are skipped silently.
func (e *Engine) OnRecharge(ctx context.Context, t models.Transaction) error {
	if t.Kind != models.TransactionKindRecharge ||
		t.Status != models.TransactionStatusConfirmed ||
		!t.Amount.IsPositive() {
		return nil
	}

	record, err := e.storage.Referral().GetByReferredID(ctx, t.AccountID)
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound):
		return nil
	case err != nil:
		return err
	}

	if record.Status == models.ReferralStatusInactive {
		return nil
	}

	commission := t.Amount.Mul(e.cfg.CommissionPercent).Div(decimal.NewFromInt(100)).Round(2)
	if !commission.IsPositive() {
		return nil
	}

	// Settlements run concurrently, so under PolicyFirst the record is
	// claimed before the payout: the guarded pending->active transition
	// admits exactly one recharge. A failed payout releases the claim so
	// a later recharge can pay instead.
	if e.cfg.Policy == PolicyFirst {
		if record.Status == models.ReferralStatusActive {
			return nil
		}
		_, claimed, err := e.storage.Referral().Activate(ctx, record.ID)
		if err != nil {
			return fmt.Errorf("claim referral record %s: %w", record.ID, err)
		}
		if !claimed {
			return nil
		}
	}

	reference := t.AccountID.String()
	_, err = e.store.Credit(ctx, record.ReferrerID, models.PoolWallet, commission, balance.TxMeta{
		Kind:        models.TransactionKindReferralCommission,
		Description: "Comissão de indicação",
		ReferenceID: &reference,
	})
	if err != nil {
		if e.cfg.Policy == PolicyFirst {
			if _, revertErr := e.storage.Referral().AddEarned(ctx, record.ID, decimal.Zero, models.ReferralStatusPending); revertErr != nil {
				e.logger.Error("Claim release failed",
					"referral_id", record.ID, "error", revertErr)
			}
		}
		return fmt.Errorf("commission for referrer %s: %w", record.ReferrerID, err)
	}

	_, err = e.storage.Referral().AddEarned(ctx, record.ID, commission, models.ReferralStatusActive)
	if err != nil {
		return fmt.Errorf("update referral record %s: %w", record.ID, err)
	}

	e.logger.Info("Commission paid",
		"referrer_id", record.ReferrerID, "referred_id", record.ReferredID, "amount", commission)
	return nil
}

// Earnings lists the referrer's records and keeps the display mirror warm.
func (e *Engine) Earnings(ctx context.Context, referrerID uuid.UUID) ([]models.ReferralRecord, error) {
	records, err := e.storage.Referral().ListByReferrerID(ctx, referrerID)
	if err != nil {
		return nil, fmt.Errorf("list referrals for account %s: %w", referrerID, err)
	}

	mirrored := make([]mirror.ReferralEarning, 0, len(records))
	for _, r := range records {
		mirrored = append(mirrored, mirror.ReferralEarning{
			ReferredID: r.ReferredID,
			Earned:     r.Earned,
			Status:     r.Status,
		})
	}
	if err := e.mirror.SaveReferralEarnings(ctx, referrerID, mirrored); err != nil {
		e.logger.Warn("Mirror update failed", "account_id", referrerID, "error", err)
	}

	return records, nil
}
