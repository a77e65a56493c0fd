// Package reconciler settles pending recharge transactions against the
// payment gateway. A producer periodically lists pending entries, a pool
// of workers polls the gateway verdict for each. Entries older than the
// settlement deadline are failed so the ledger never accumulates limbo.
package reconciler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/consultaplus/carteira/internal/gateway"
	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
)

const (
	defaultCountWorkers    = 5
	defaultProduceInterval = 10 * time.Second
	defaultBatchSize       = 100
	defaultDeadline        = 48 * time.Hour
)

type paymentGateway interface {
	GetPaymentStatus(ctx context.Context, paymentID string) (gateway.PaymentStatus, error)
}

type settler interface {
	Confirm(ctx context.Context, id uuid.UUID) (models.Transaction, error)
	Fail(ctx context.Context, id uuid.UUID) (models.Transaction, error)
}

type pendingLister interface {
	ListPending(ctx context.Context, limit int) ([]models.Transaction, error)
}

type Config struct {
	// Workers polling the gateway concurrently
	CountWorkers int

	// How often pending transactions are listed
	ProduceInterval time.Duration

	// Pending transactions fetched per tick
	BatchSize int

	// Pending entries older than this are failed
	Deadline time.Duration
}

type Reconciler struct {
	consumer *Consumer
	producer *Producer
}

func New(cfg Config, client paymentGateway, settler settler, transactions pendingLister, l logger.Logger) *Reconciler {
	if cfg.CountWorkers == 0 {
		cfg.CountWorkers = defaultCountWorkers
	}
	if cfg.ProduceInterval == 0 {
		cfg.ProduceInterval = defaultProduceInterval
	}
	if cfg.BatchSize == 0 {
		cfg.BatchSize = defaultBatchSize
	}
	if cfg.Deadline == 0 {
		cfg.Deadline = defaultDeadline
	}

	return &Reconciler{
		consumer: &Consumer{
			countWorkers: cfg.CountWorkers,
			deadline:     cfg.Deadline,
			client:       client,
			settler:      settler,
			logger:       l,
		},
		producer: &Producer{
			interval:     cfg.ProduceInterval,
			batchSize:    cfg.BatchSize,
			transactions: transactions,
			logger:       l,
		},
	}
}

// Run starts the producer and the worker pool. The returned channel closes
// when both have drained after ctx is cancelled.
func (r *Reconciler) Run(ctx context.Context) <-chan struct{} {
	idleStopped := make(chan struct{})

	pending := make(chan models.Transaction)

	producerStopped := r.producer.Produce(ctx, pending)
	consumerStopped := r.consumer.Consume(ctx, pending)

	go func() {
		defer close(idleStopped)
		defer close(pending)
		<-producerStopped
		<-consumerStopped
		r.consumer.logger.Debug("Reconciler stopped")
	}()

	return idleStopped
}
