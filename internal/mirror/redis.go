package mirror

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/consultaplus/carteira/internal/models"
)

const (
	// How many mirrored transactions to keep per account
	transactionsKept = 50

	// Mirrored state outlives short ledger outages but not forever
	defaultTTL = 72 * time.Hour
)

type Config struct {
	Addr     string
	Password string
	DB       int
}

// RedisMirror keeps the per-account JSON blobs in redis
type RedisMirror struct {
	db  *redis.Client
	ttl time.Duration
}

func NewRedis(ctx context.Context, cfg Config) (*RedisMirror, error) {
	db := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := db.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("mirror: can't reach redis: %w", err)
	}

	return &RedisMirror{db: db, ttl: defaultTTL}, nil
}

func (m *RedisMirror) SaveBalance(ctx context.Context, snapshot models.BalanceSnapshot) error {
	return m.set(ctx, balanceKey(snapshot.AccountID), snapshot)
}

func (m *RedisMirror) LoadBalance(ctx context.Context, accountID uuid.UUID) (models.BalanceSnapshot, bool, error) {
	var snapshot models.BalanceSnapshot
	found, err := m.get(ctx, balanceKey(accountID), &snapshot)
	return snapshot, found, err
}

func (m *RedisMirror) SaveTransactions(ctx context.Context, accountID uuid.UUID, transactions []models.Transaction) error {
	if len(transactions) > transactionsKept {
		transactions = transactions[:transactionsKept]
	}
	return m.set(ctx, transactionsKey(accountID), transactions)
}

func (m *RedisMirror) LoadTransactions(ctx context.Context, accountID uuid.UUID) ([]models.Transaction, bool, error) {
	var transactions []models.Transaction
	found, err := m.get(ctx, transactionsKey(accountID), &transactions)
	return transactions, found, err
}

func (m *RedisMirror) SaveReferralEarnings(ctx context.Context, accountID uuid.UUID, earnings []ReferralEarning) error {
	return m.set(ctx, referralsKey(accountID), earnings)
}

func (m *RedisMirror) LoadReferralEarnings(ctx context.Context, accountID uuid.UUID) ([]ReferralEarning, bool, error) {
	var earnings []ReferralEarning
	found, err := m.get(ctx, referralsKey(accountID), &earnings)
	return earnings, found, err
}

func (m *RedisMirror) set(ctx context.Context, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("mirror: encode %s: %w", key, err)
	}

	if err := m.db.Set(ctx, key, data, m.ttl).Err(); err != nil {
		return fmt.Errorf("mirror: set %s: %w", key, err)
	}
	return nil
}

func (m *RedisMirror) get(ctx context.Context, key string, out any) (bool, error) {
	val, err := m.db.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("mirror: get %s: %w", key, err)
	}

	if err := json.Unmarshal([]byte(val), out); err != nil {
		return false, fmt.Errorf("mirror: decode %s: %w", key, err)
	}
	return true, nil
}

func balanceKey(accountID uuid.UUID) string {
	return "mirror:balance:" + accountID.String()
}

func transactionsKey(accountID uuid.UUID) string {
	return "mirror:transactions:" + accountID.String()
}

func referralsKey(accountID uuid.UUID) string {
	return "mirror:referrals:" + accountID.String()
}
