package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

// Repository keeps orders in process and shares its lock with the outbox
// append, so an order and its events are stored together or not at all.
type Repository struct {
	mu     sync.Mutex
	orders map[string]domain.Order
	outbox *outbox.MemoryStore
}

func NewRepository(store *outbox.MemoryStore) *Repository {
	return &Repository{orders: map[string]domain.Order{}, outbox: store}
}

func (r *Repository) SaveWithOutbox(_ context.Context, o domain.Order, events ...outbox.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	o.Items = slices.Clone(o.Items)
	r.orders[o.ID] = o
	r.outbox.Append(events...)
	return nil
}

func (r *Repository) Get(_ context.Context, id string) (domain.Order, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrNotFound
	}
	o.Items = slices.Clone(o.Items)
	return o, nil
}

func (r *Repository) ListByUser(_ context.Context, userID string, limit, offset int) ([]domain.Order, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var all []domain.Order
	for _, o := range r.orders {
		if o.UserID == userID {
			all = append(all, o)
		}
	}
	slices.SortFunc(all, func(a, b domain.Order) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})

	total := len(all)
	if offset >= total {
		return []domain.Order{}, total, nil
	}
	end := min(offset+limit, total)
	return all[offset:end], total, nil
}

func (r *Repository) UpdateStatus(_ context.Context, id string, from, to domain.Status, payment domain.PaymentStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return domain.ErrNotFound
	}
	if o.Status != from {
		return domain.ErrConcurrentUpdate
	}
	o.Status = to
	o.PaymentStatus = payment
	o.UpdatedAt = at
	r.orders[id] = o
	return nil
}
