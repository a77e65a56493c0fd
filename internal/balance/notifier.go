package balance

import (
	"sync"

	"github.com/consultaplus/carteira/internal/models"
)

// Subscriber receives every confirmed balance-affecting transaction.
// Called synchronously after the mutation commits; delivery mechanics
// beyond that (fan-out, UI refresh) are the consumer's concern.
type Subscriber func(models.Transaction)

type Notifier struct {
	mu   sync.RWMutex
	subs []Subscriber
}

func NewNotifier() *Notifier {
	return &Notifier{}
}

func (n *Notifier) Subscribe(fn Subscriber) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs = append(n.subs, fn)
}

func (n *Notifier) Notify(t models.Transaction) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	for _, fn := range n.subs {
		fn(t)
	}
}
