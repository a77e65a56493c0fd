// Package gateway polls the external payment gateway for the terminal state
// of a payment. The gateway itself (PIX/card authorization) is a black box
// that either approves or declines.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/consultaplus/carteira/internal/logger"
)

const (
	StatusApproved = "approved"
	StatusDeclined = "declined"
	StatusPending  = "pending"
)

const (
	CodeThrottled = "throttled"
	CodeNotFound  = "not-found"
	CodeUnknown   = "unknown"
)

type Error struct {
	Code string

	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	return fmt.Sprintf("code: %s, retry_after: %s, error: %v", e.Code, e.RetryAfter, e.Err)
}

func NewError(code string, retryAfter int, err error) *Error {
	return &Error{
		Code:       code,
		RetryAfter: time.Duration(retryAfter) * time.Second,
		Err:        err,
	}
}

type PaymentStatus struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

type Client struct {
	addr string

	client *http.Client
	logger logger.Logger
}

func NewClient(addr string, l logger.Logger) *Client {
	return &Client{
		addr:   strings.TrimSuffix(addr, "/"),
		client: &http.Client{},
		logger: l,
	}
}

func (c *Client) GetPaymentStatus(ctx context.Context, paymentID string) (PaymentStatus, error) {
	var status PaymentStatus

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.addr+"/api/payments/"+paymentID, nil)
	if err != nil {
		return status, NewError(CodeUnknown, 0, fmt.Errorf("failed to create request: %w", err))
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return status, NewError(CodeUnknown, 0, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close() // nolint:errcheck

	switch resp.StatusCode {
	case http.StatusOK:
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			c.logger.Warn("Failed to decode gateway response", "error", err)
			return status, fmt.Errorf("failed to decode response: %w", err)
		}
		return status, nil

	case http.StatusTooManyRequests:
		header := resp.Header.Get("Retry-After")
		retryAfter, err := strconv.Atoi(strings.TrimSpace(header))
		if err != nil {
			retryAfter = 60
		}
		c.logger.Warn("Payment gateway throttled", "retry_after", retryAfter)
		return status, NewError(CodeThrottled, retryAfter, fmt.Errorf("retry after %d seconds", retryAfter))

	case http.StatusNotFound:
		return status, NewError(CodeNotFound, 0, fmt.Errorf("no payment %s", paymentID))

	default:
		c.logger.Warn("Unexpected gateway status", "status_code", resp.StatusCode, "payment_id", paymentID)
		return status, NewError(CodeUnknown, 0, fmt.Errorf("unknown status code %d for payment %s", resp.StatusCode, paymentID))
	}
}
