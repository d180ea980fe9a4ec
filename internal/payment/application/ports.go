package application

import (
	"context"

	"github.com/dmehra2102/smart-food-ordering/internal/payment/domain"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

type PaymentRepository interface {
	// GetByOrder returns domain.ErrNotFound when no payment exists for the order.
	GetByOrder(ctx context.Context, orderID string) (domain.Payment, error)
	// SaveWithOutbox stores the payment and its events atomically. It returns
	// domain.ErrAlreadyProcessed if the order already has a payment.
	SaveWithOutbox(ctx context.Context, p domain.Payment, events ...outbox.Event) error
}
