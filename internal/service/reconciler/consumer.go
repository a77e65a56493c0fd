package reconciler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/consultaplus/carteira/internal/gateway"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
)

type Consumer struct {
	countWorkers int
	deadline     time.Duration

	// The gateway may rate-limit polling
	// When it does, workers wait until the shared time is up
	waitUntil atomic.Int64

	client  paymentGateway
	settler settler
	logger  logger.Logger
}

func (c *Consumer) Consume(ctx context.Context, in <-chan models.Transaction) <-chan struct{} {
	idleStopped := make(chan struct{})

	var wg sync.WaitGroup
	for i := 0; i < c.countWorkers; i++ {
		wg.Add(1)
		go func() {
			c.worker(ctx, in)
			wg.Done()
		}()
	}

	go func() {
		defer close(idleStopped)
		wg.Wait()
		c.logger.Debug("Consumer stopped")
	}()

	return idleStopped
}

func (c *Consumer) worker(ctx context.Context, in <-chan models.Transaction) {
	for {
		// Wait until rate limit is passed or context is done
		waitUntil := time.Unix(c.waitUntil.Load(), 0)
		if waitUntil.After(time.Now()) {
			c.logger.Debug("Worker is waiting for rate limit to reset", "wait_until", waitUntil)

			select {
			case <-ctx.Done():
				continue
			case <-time.After(time.Until(waitUntil)):
				c.logger.Debug("Worker finished waiting for rate limit to reset")
				continue
			}
		}

		select {
		case <-ctx.Done():
			return

		case t, ok := <-in:
			if !ok {
				c.logger.Debug("Consumer worker stopped, input channel closed")
				return
			}

			c.settle(ctx, t)
		}
	}
}

func (c *Consumer) settle(ctx context.Context, t models.Transaction) {
	// Only recharges are settled by the gateway. Anything else pending is
	// somebody's bug, but it still must not sit forever.
	if t.Kind != models.TransactionKindRecharge || t.ReferenceID == nil {
		if time.Since(t.CreatedAt) > c.deadline {
			c.fail(ctx, t, "not settleable")
		}
		return
	}

	if time.Since(t.CreatedAt) > c.deadline {
		c.fail(ctx, t, "settlement deadline passed")
		return
	}

	status, err := c.client.GetPaymentStatus(ctx, *t.ReferenceID)
	var gwErr *gateway.Error

	switch {
	case err == nil:
		switch status.Status {
		case gateway.StatusApproved:
			if _, err := c.settler.Confirm(ctx, t.ID); err != nil {
				c.logger.Error("Failed to confirm transaction", "error", err, "transaction_id", t.ID)
			}

		case gateway.StatusDeclined:
			c.fail(ctx, t, "payment declined")

		default:
			c.logger.Debug("Payment still pending", "payment_id", *t.ReferenceID)
		}

	case errors.As(err, &gwErr):
		switch gwErr.Code {
		case gateway.CodeThrottled:
			c.logger.Info("Rate limit exceeded, waiting", "retry_after", gwErr.RetryAfter)
			c.waitUntil.Store(time.Now().Add(gwErr.RetryAfter).Unix())

		case gateway.CodeNotFound:
			c.logger.Info("Payment unknown to the gateway", "payment_id", *t.ReferenceID)
			c.fail(ctx, t, "payment unknown")

		default:
			c.logger.Error("Unknown error from payment gateway", "error", err, "transaction_id", t.ID)
		}

	default:
		c.logger.Error("Unexpected error from payment gateway", "error", err, "transaction_id", t.ID)
	}
}

func (c *Consumer) fail(ctx context.Context, t models.Transaction, reason string) {
	if _, err := c.settler.Fail(ctx, t.ID); err != nil {
		c.logger.Error("Failed to fail transaction", "error", err, "transaction_id", t.ID, "reason", reason)
		return
	}
	c.logger.Info("Transaction failed", "transaction_id", t.ID, "reason", reason)
}
