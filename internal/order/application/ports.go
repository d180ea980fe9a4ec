package application

import (
	"context"
	"time"

	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

type OrderRepository interface {
	// SaveWithOutbox stores a new order and its outbox events atomically.
	SaveWithOutbox(ctx context.Context, o domain.Order, events ...outbox.Event) error
	Get(ctx context.Context, id string) (domain.Order, error)
	// ListByUser returns one page of a user's orders, newest first, and the
	// total number of orders the user has.
	ListByUser(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error)
	// UpdateStatus applies the change only while the stored status is still
	// from, otherwise it returns domain.ErrConcurrentUpdate.
	UpdateStatus(ctx context.Context, id string, from, to domain.Status, payment domain.PaymentStatus, at time.Time) error
}
