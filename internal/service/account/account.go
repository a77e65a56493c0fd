// Package account registers and authenticates accounts. Every account gets
// a referral code at registration; supplying somebody else's code links the
// two accounts for the referral program.
package account

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/consultaplus/carteira/internal/apperrors"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
	"github.com/consultaplus/carteira/internal/repository"
)

// ReferralLinker is the part of the referral engine registration needs
type ReferralLinker interface {
	ResolveCode(ctx context.Context, code string) (models.Account, error)
	Link(ctx context.Context, referrerID uuid.UUID, referredID uuid.UUID) error
}

type Service struct {
	storage   repository.Storage
	referrals ReferralLinker
	hasher    PasswordHasher
	tokens    *TokenManager
	logger    logger.Logger
}

func NewService(storage repository.Storage, referrals ReferralLinker, tokens *TokenManager, l logger.Logger) *Service {
	return &Service{
		storage:   storage,
		referrals: referrals,
		hasher:    BcryptHasher{},
		tokens:    tokens,
		logger:    l,
	}
}

// Register creates an account and returns it with a signed access token.
// referralCode is optional; when present it must resolve to an existing
// account or registration is rejected. Linking failures after the account
// exists do not undo the registration; the payout is replayed on the
// account's next login.
func (s *Service) Register(ctx context.Context, email string, password string, referralCode string) (models.Account, IssuedToken, error) {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return models.Account{}, IssuedToken{}, fmt.Errorf("can't use this as password, error=%w", err)
	}

	var referrer *models.Account
	if referralCode != "" {
		resolved, err := s.referrals.ResolveCode(ctx, referralCode)
		if err != nil {
			return models.Account{}, IssuedToken{}, err
		}
		referrer = &resolved
	}

	params := repository.CreateAccountParams{
		Email:          email,
		HashedPassword: hash,
		PlanTier:       models.TierFree,
		ReferralCode:   newReferralCode(),
	}
	if referrer != nil {
		params.ReferredBy = &referrer.ID
	}

	created, err := s.storage.Account().CreateAccount(ctx, params)
	if err != nil {
		return created, IssuedToken{}, err
	}

	if referrer != nil {
		if err := s.referrals.Link(ctx, referrer.ID, created.ID); err != nil {
			s.logger.Error("Referral link failed",
				"referrer_id", referrer.ID, "referred_id", created.ID, "error", err)
		}
	}

	token, err := s.tokens.Issue(created.ID)
	if err != nil {
		return created, token, fmt.Errorf("token could not be generated: %w", err)
	}

	s.logger.Info("Account registered", "account_id", created.ID, "referred", referrer != nil)
	return created, token, nil
}

// Login verifies the credentials and returns a signed access token.
// Reports ErrAccountNotFound for both unknown email and wrong password so
// callers can not probe which emails exist.
func (s *Service) Login(ctx context.Context, email string, password string) (models.Account, IssuedToken, error) {
	stored, err := s.storage.Account().GetAccountByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperrors.ErrAccountNotFound) {
			// Burn comparable time so a miss is indistinguishable
			_ = s.hasher.Compare(dummyHash, password)
			return stored, IssuedToken{}, apperrors.ErrAccountNotFound
		}
		return stored, IssuedToken{}, err
	}

	if err := s.hasher.Compare(stored.HashedPassword, password); err != nil {
		return stored, IssuedToken{}, apperrors.ErrAccountNotFound
	}

	if stored.ReferredBy != nil {
		s.replayReferralLink(ctx, stored)
	}

	token, err := s.tokens.Issue(stored.ID)
	if err != nil {
		return stored, token, fmt.Errorf("token could not be generated: %w", err)
	}

	return stored, token, nil
}

// replayReferralLink re-runs the referral payout for accounts whose link
// failed at registration. Link is idempotent: a half-paid welcome bonus
// finishes its missing side, a completed one is a no-op. Records past
// pending have settled long ago and are skipped.
func (s *Service) replayReferralLink(ctx context.Context, account models.Account) {
	record, err := s.storage.Referral().GetByReferredID(ctx, account.ID)
	switch {
	case err == nil && record.Status != models.ReferralStatusPending:
		return
	case err != nil && !errors.Is(err, apperrors.ErrAccountNotFound):
		s.logger.Warn("Referral record lookup failed", "account_id", account.ID, "error", err)
		return
	}

	if err := s.referrals.Link(ctx, *account.ReferredBy, account.ID); err != nil {
		s.logger.Warn("Referral link replay failed",
			"referrer_id", *account.ReferredBy, "referred_id", account.ID, "error", err)
	}
}

// Get returns the account by id
func (s *Service) Get(ctx context.Context, id uuid.UUID) (models.Account, error) {
	return s.storage.Account().GetAccountByID(ctx, id)
}

// Authenticate maps an access token to the account it was issued for
func (s *Service) Authenticate(ctx context.Context, access string) (models.Account, error) {
	accountID, err := s.tokens.Parse(access)
	if err != nil {
		return models.Account{}, err
	}
	return s.storage.Account().GetAccountByID(ctx, accountID)
}

// Generated once, compared against on login misses
var dummyHash, _ = BcryptHasher{}.Hash("timing-equalizer")

func newReferralCode() string {
	b := make([]byte, 4)
	_, _ = rand.Read(b)
	return strings.ToUpper(hex.EncodeToString(b))
}
