package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dmehra2102/smart-food-ordering/internal/clock"
	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100

	aggregateType     = "order"
	transitionRetries = 3
)

type CreateOrderInput = domain.Draft

// Coordinator owns the order aggregate and starts the payment saga.
type Coordinator struct {
	log   *slog.Logger
	repo  OrderRepository
	clock clock.Clock
	newID func() string
}

func NewCoordinator(log *slog.Logger, repo OrderRepository, clk clock.Clock) *Coordinator {
	return &Coordinator{log: log, repo: repo, clock: clk, newID: uuid.NewString}
}

func (c *Coordinator) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	now := c.clock.Now()
	o, err := domain.NewOrder(c.newID(), in, now)
	if err != nil {
		return domain.Order{}, err
	}

	msg, err := saga.NewMessage(ctx, saga.TopicOrderCreated, o.ID, saga.OrderCreated{
		OrderID:       o.ID,
		UserID:        o.UserID,
		RestaurantID:  o.RestaurantID,
		TotalAmount:   o.TotalAmount,
		PaymentMethod: o.PaymentMethod,
	}, now)
	if err != nil {
		return domain.Order{}, err
	}
	if err := c.repo.SaveWithOutbox(ctx, o, outbox.FromMessage(aggregateType, msg)); err != nil {
		return domain.Order{}, fmt.Errorf("save order %s: %w", o.ID, err)
	}

	c.log.Info("order created", "order_id", o.ID, "user_id", o.UserID, "total_amount", o.TotalAmount.String())
	return o, nil
}

func (c *Coordinator) GetOrder(ctx context.Context, id string) (domain.Order, error) {
	if id == "" {
		return domain.Order{}, fmt.Errorf("%w: order id is required", domain.ErrValidation)
	}
	return c.repo.Get(ctx, id)
}

func (c *Coordinator) ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]domain.Order, int, error) {
	if userID == "" {
		return nil, 0, fmt.Errorf("%w: user id is required", domain.ErrValidation)
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return c.repo.ListByUser(ctx, userID, limit, offset)
}

func (c *Coordinator) OnPaymentCompleted(ctx context.Context, orderID string) error {
	return c.transition(ctx, orderID, domain.StatusConfirmed)
}

func (c *Coordinator) OnPaymentFailed(ctx context.Context, orderID string) error {
	return c.transition(ctx, orderID, domain.StatusCancelled)
}

// OnStatusUpdated applies an order.status_updated event. Only terminal
// statuses can be requested.
func (c *Coordinator) OnStatusUpdated(ctx context.Context, orderID, status string) error {
	st, err := domain.ParseStatus(status)
	if err != nil || !st.Terminal() {
		return fmt.Errorf("%w: requested status %q", domain.ErrInvalidTransition, status)
	}
	return c.transition(ctx, orderID, st)
}

func (c *Coordinator) transition(ctx context.Context, orderID string, to domain.Status) error {
	for attempt := 0; attempt < transitionRetries; attempt++ {
		o, err := c.repo.Get(ctx, orderID)
		if err != nil {
			return err
		}
		from := o.Status
		now := c.clock.Now()
		changed, err := o.Transition(to, now)
		if err != nil {
			return err
		}
		if !changed {
			c.log.Debug("order already in status", "order_id", orderID, "status", to)
			return nil
		}

		err = c.repo.UpdateStatus(ctx, orderID, from, o.Status, o.PaymentStatus, now)
		if errors.Is(err, domain.ErrConcurrentUpdate) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update order %s: %w", orderID, err)
		}
		c.log.Info("order status changed", "order_id", orderID, "from", from, "to", o.Status)
		return nil
	}
	return domain.ErrConcurrentUpdate
}
