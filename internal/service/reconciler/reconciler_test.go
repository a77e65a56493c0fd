package reconciler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/consultaplus/carteira/internal/gateway"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
)

type stubGateway struct {
	mu       sync.Mutex
	statuses map[string]string
	throttle map[string]int
	polls    int
}

func (s *stubGateway) GetPaymentStatus(_ context.Context, paymentID string) (gateway.PaymentStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.polls++

	if retryAfter, ok := s.throttle[paymentID]; ok {
		return gateway.PaymentStatus{}, gateway.NewError(gateway.CodeThrottled, retryAfter, nil)
	}

	status, ok := s.statuses[paymentID]
	if !ok {
		return gateway.PaymentStatus{}, gateway.NewError(gateway.CodeNotFound, 0, nil)
	}
	return gateway.PaymentStatus{PaymentID: paymentID, Status: status}, nil
}

type stubSettler struct {
	mu        sync.Mutex
	confirmed []uuid.UUID
	failed    []uuid.UUID
}

func (s *stubSettler) Confirm(_ context.Context, id uuid.UUID) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.confirmed = append(s.confirmed, id)
	return models.Transaction{ID: id, Status: models.TransactionStatusConfirmed}, nil
}

func (s *stubSettler) Fail(_ context.Context, id uuid.UUID) (models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failed = append(s.failed, id)
	return models.Transaction{ID: id, Status: models.TransactionStatusFailed}, nil
}

func (s *stubSettler) results() (confirmed []uuid.UUID, failed []uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.confirmed...), append([]uuid.UUID(nil), s.failed...)
}

type stubLister struct {
	mu      sync.Mutex
	pending []models.Transaction
}

func (s *stubLister) ListPending(_ context.Context, _ int) ([]models.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Transaction(nil), s.pending...), nil
}

func pendingRecharge(paymentID string, age time.Duration) models.Transaction {
	return models.Transaction{
		ID:          uuid.New(),
		CreatedAt:   time.Now().Add(-age),
		AccountID:   uuid.New(),
		Amount:      decimal.RequireFromString("100.00"),
		Pool:        models.PoolWallet,
		Kind:        models.TransactionKindRecharge,
		Status:      models.TransactionStatusPending,
		ReferenceID: &paymentID,
	}
}

func TestReconciler(t *testing.T) {
	t.Parallel()

	run := func(t *testing.T, gw *stubGateway, pending ...models.Transaction) *stubSettler {
		t.Helper()

		settler := &stubSettler{}
		r := New(Config{
			CountWorkers:    2,
			ProduceInterval: 10 * time.Millisecond,
			Deadline:        time.Hour,
		}, gw, settler, &stubLister{pending: pending}, logger.NewNoOp())

		ctx, cancel := context.WithCancel(context.Background())
		stopped := r.Run(ctx)
		t.Cleanup(func() {
			cancel()
			<-stopped
		})

		return settler
	}

	t.Run("approved payment confirms the transaction", func(t *testing.T) {
		t.Parallel()

		recharge := pendingRecharge("pay-ok", time.Minute)
		gw := &stubGateway{statuses: map[string]string{"pay-ok": gateway.StatusApproved}}

		settler := run(t, gw, recharge)

		require.Eventually(t, func() bool {
			confirmed, _ := settler.results()
			return len(confirmed) > 0 && confirmed[0] == recharge.ID
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("declined payment fails the transaction", func(t *testing.T) {
		t.Parallel()

		recharge := pendingRecharge("pay-bad", time.Minute)
		gw := &stubGateway{statuses: map[string]string{"pay-bad": gateway.StatusDeclined}}

		settler := run(t, gw, recharge)

		require.Eventually(t, func() bool {
			_, failed := settler.results()
			return len(failed) > 0 && failed[0] == recharge.ID
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("still pending payment is left alone", func(t *testing.T) {
		t.Parallel()

		recharge := pendingRecharge("pay-wait", time.Minute)
		gw := &stubGateway{statuses: map[string]string{"pay-wait": gateway.StatusPending}}

		settler := run(t, gw, recharge)

		// Let several polls happen, nothing must settle
		require.Eventually(t, func() bool {
			gw.mu.Lock()
			defer gw.mu.Unlock()
			return gw.polls >= 3
		}, 2*time.Second, 10*time.Millisecond)

		confirmed, failed := settler.results()
		require.Empty(t, confirmed)
		require.Empty(t, failed)
	})

	t.Run("transaction older than the deadline is failed without polling", func(t *testing.T) {
		t.Parallel()

		recharge := pendingRecharge("pay-old", 2*time.Hour)
		gw := &stubGateway{statuses: map[string]string{"pay-old": gateway.StatusApproved}}

		settler := run(t, gw, recharge)

		require.Eventually(t, func() bool {
			_, failed := settler.results()
			return len(failed) > 0 && failed[0] == recharge.ID
		}, 2*time.Second, 10*time.Millisecond)

		gw.mu.Lock()
		defer gw.mu.Unlock()
		require.Zero(t, gw.polls, "an expired recharge is failed, not polled")
	})

	t.Run("payment unknown to the gateway is failed", func(t *testing.T) {
		t.Parallel()

		recharge := pendingRecharge("pay-ghost", time.Minute)
		gw := &stubGateway{statuses: map[string]string{}}

		settler := run(t, gw, recharge)

		require.Eventually(t, func() bool {
			_, failed := settler.results()
			return len(failed) > 0
		}, 2*time.Second, 10*time.Millisecond)
	})

	t.Run("throttled gateway pauses polling", func(t *testing.T) {
		t.Parallel()

		recharge := pendingRecharge("pay-slow", time.Minute)
		gw := &stubGateway{throttle: map[string]int{"pay-slow": 60}}

		settler := run(t, gw, recharge)

		// First poll trips the rate limit; after that workers must hold off
		require.Eventually(t, func() bool {
			gw.mu.Lock()
			defer gw.mu.Unlock()
			return gw.polls >= 1
		}, 2*time.Second, 10*time.Millisecond)

		time.Sleep(100 * time.Millisecond)

		gw.mu.Lock()
		polls := gw.polls
		gw.mu.Unlock()
		require.LessOrEqual(t, polls, 2, "workers must wait out the rate limit")

		confirmed, failed := settler.results()
		require.Empty(t, confirmed)
		require.Empty(t, failed)
	})
}
