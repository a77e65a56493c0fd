package models

import (
	"time"

	"github.com/google/uuid"
)

type Account struct {
	ID             uuid.UUID
	CreatedAt      time.Time
	Email          string
	HashedPassword string
	PlanTier       string

	// Code this account shares with others
	ReferralCode string

	// Account that referred this one, nil when registered without a code.
	// Relation only: the referrer does not own this account.
	ReferredBy *uuid.UUID
}
