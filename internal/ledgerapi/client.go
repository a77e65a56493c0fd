// Package ledgerapi is the HTTP client for the remote ledger, the
// authoritative store of account balances. The wire format is owned by the
// remote side; this client only consumes it.
package ledgerapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/consultaplus/carteira/internal/logger"
)

const (
	CodeTransport    = "transport"
	CodeThrottled    = "throttled"
	CodeDeclined     = "declined"
	CodeNotFound     = "not-found"
	CodeUnauthorized = "unauthorized"
	CodeUnknown      = "unknown"
)

type Error struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func NewError(code string, retryAfter int, err error) *Error {
	return &Error{
		Code:       code,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        err,
	}
}

// IsTransport reports whether the ledger was unreachable, as opposed to
// reachable but refusing
func IsTransport(err error) bool {
	var lerr *Error
	return errors.As(err, &lerr) && lerr.Code == CodeTransport
}

type Balance struct {
	Wallet decimal.Decimal `json:"wallet_balance"`
	Plan   decimal.Decimal `json:"plan_balance"`
}

type Transaction struct {
	ID          uuid.UUID       `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	Amount      decimal.Decimal `json:"amount"`
	Pool        string          `json:"pool"`
	Kind        string          `json:"kind"`
	Description string          `json:"description"`
}

// DebitAmounts is the per-pool split of one debit. The remote ledger applies
// both pools in a single atomic operation.
type DebitAmounts struct {
	Plan   decimal.Decimal `json:"plan"`
	Wallet decimal.Decimal `json:"wallet"`
}

type UseCouponRequest struct {
	Code         string          `json:"code"`
	AccountID    uuid.UUID       `json:"account_id"`
	InvocationID string          `json:"invocation_id"`
	Amount       decimal.Decimal `json:"amount"`
	Pool         string          `json:"pool"`
}

type Client struct {
	addr  string
	token string

	client *http.Client
	logger logger.Logger
}

// NewClient builds a ledger client. The bearer token is supplied by the
// session layer, it is not managed here.
func NewClient(addr string, token string, l logger.Logger) *Client {
	return &Client{
		addr:   strings.TrimSuffix(addr, "/"),
		token:  token,
		client: &http.Client{},
		logger: l,
	}
}

func (c *Client) Balance(ctx context.Context, accountID uuid.UUID) (Balance, error) {
	var balance Balance
	err := c.do(ctx, http.MethodGet, "/api/accounts/"+accountID.String()+"/balance", nil, &balance)
	return balance, err
}

func (c *Client) Credit(ctx context.Context, accountID uuid.UUID, pool string, amount decimal.Decimal, reference string) error {
	body := map[string]any{
		"pool":      pool,
		"amount":    amount,
		"reference": reference,
	}
	return c.do(ctx, http.MethodPost, "/api/accounts/"+accountID.String()+"/credit", body, nil)
}

func (c *Client) Debit(ctx context.Context, accountID uuid.UUID, amounts DebitAmounts, reference string) error {
	body := map[string]any{
		"plan":      amounts.Plan,
		"wallet":    amounts.Wallet,
		"reference": reference,
	}
	return c.do(ctx, http.MethodPost, "/api/accounts/"+accountID.String()+"/debit", body, nil)
}

func (c *Client) Transactions(ctx context.Context, accountID uuid.UUID, limit int) ([]Transaction, error) {
	var transactions []Transaction
	path := fmt.Sprintf("/api/accounts/%s/transactions?limit=%d", accountID, limit)
	err := c.do(ctx, http.MethodGet, path, nil, &transactions)
	return transactions, err
}

// ValidateReferralCode resolves a referral code to the owning account
func (c *Client) ValidateReferralCode(ctx context.Context, code string) (uuid.UUID, error) {
	var response struct {
		AccountID uuid.UUID `json:"account_id"`
	}

	err := c.do(ctx, http.MethodPost, "/api/referral-codes/validate", map[string]any{"code": code}, &response)
	return response.AccountID, err
}

// UseCoupon registers a redemption remotely. The remote ledger performs the
// pool credit itself and reports the applied amount.
func (c *Client) UseCoupon(ctx context.Context, req UseCouponRequest) (decimal.Decimal, error) {
	var response struct {
		Applied decimal.Decimal `json:"applied"`
	}

	err := c.do(ctx, http.MethodPost, "/api/coupons/use", req, &response)
	return response.Applied, err
}

func (c *Client) do(ctx context.Context, method string, path string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return NewError(CodeUnknown, 0, fmt.Errorf("failed to encode request: %w", err))
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.addr+path, reader)
	if err != nil {
		return NewError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return NewError(CodeTransport, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			c.logger.Warn("Failed to decode ledger response", "path", path, "error", err)
			return NewError(CodeUnknown, 0, fmt.Errorf("failed to decode response: %w", err))
		}
		return nil

	case http.StatusTooManyRequests:
		return c.throttledError(resp)

	case http.StatusPaymentRequired, http.StatusUnprocessableEntity:
		return NewError(CodeDeclined, 0, fmt.Errorf("ledger declined %s %s", method, path))

	case http.StatusNotFound:
		return NewError(CodeNotFound, 0, fmt.Errorf("not found: %s", path))

	case http.StatusUnauthorized, http.StatusForbidden:
		return NewError(CodeUnauthorized, 0, fmt.Errorf("ledger rejected token for %s", path))

	default:
		c.logger.Warn("Unexpected ledger status", "status_code", resp.StatusCode, "path", path)
		return NewError(CodeUnknown, 0, fmt.Errorf("unknown status code %d for %s", resp.StatusCode, path))
	}
}

func (c *Client) throttledError(resp *http.Response) error {
	header := resp.Header.Get("Retry-After")
	retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
	if err != nil {
		retryAfter = 60 // default when header is missing or malformed
	}

	c.logger.Warn("Ledger throttled", "retry_after", retryAfter)
	return NewError(CodeThrottled, retryAfter, fmt.Errorf("retry after %d seconds", retryAfter))
}
