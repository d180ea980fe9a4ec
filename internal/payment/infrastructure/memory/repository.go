package memory

import (
	"context"
	"sync"

	"github.com/dmehra2102/smart-food-ordering/internal/payment/domain"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

type Repository struct {
	mu       sync.Mutex
	payments map[string]domain.Payment
	outbox   *outbox.MemoryStore
}

func NewRepository(store *outbox.MemoryStore) *Repository {
	return &Repository{payments: map[string]domain.Payment{}, outbox: store}
}

func (r *Repository) GetByOrder(_ context.Context, orderID string) (domain.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[orderID]
	if !ok {
		return domain.Payment{}, domain.ErrNotFound
	}
	return p, nil
}

func (r *Repository) SaveWithOutbox(_ context.Context, p domain.Payment, events ...outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.payments[p.OrderID]; ok {
		return domain.ErrAlreadyProcessed
	}
	r.payments[p.OrderID] = p
	r.outbox.Append(events...)
	return nil
}
