package reconciler

import (
	"context"
	"time"

	"github.com/consultaplus/carteira/internal/logger"
	"github.com/consultaplus/carteira/internal/models"
)

type Producer struct {
	interval     time.Duration
	batchSize    int
	transactions pendingLister
	logger       logger.Logger
}

func (p *Producer) Produce(ctx context.Context, out chan<- models.Transaction) <-chan struct{} {
	idleStopped := make(chan struct{})
	p.logger.Debug("Starting producer", "interval", p.interval, "batch_size", p.batchSize)

	go func() {
		defer close(idleStopped)

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("Producer stopped by context")
				return

			case <-ticker.C:
				p.logger.Debug("Producer tick: fetching pending transactions")

				pending, err := p.transactions.ListPending(ctx, p.batchSize)
				if err != nil {
					p.logger.Error("Failed to list pending transactions", "error", err)
					continue
				}

				for _, t := range pending {
					select {
					case <-ctx.Done():
						p.logger.Debug("Producer stopped by context while sending")
						return
					case out <- t:
						p.logger.Debug("Pending transaction sent to channel", "transaction_id", t.ID)
					}
				}
			}
		}
	}()

	return idleStopped
}
