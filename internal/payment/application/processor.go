package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmehra2102/smart-food-ordering/internal/clock"
	"github.com/dmehra2102/smart-food-ordering/internal/payment/domain"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

const aggregateType = "payment"

type Processor struct {
	log    *slog.Logger
	repo   PaymentRepository
	policy Policy
	clock  clock.Clock
	delay  time.Duration
}

// NewProcessor builds the saga participant. delay simulates the time a real
// payment provider takes before answering.
func NewProcessor(log *slog.Logger, repo PaymentRepository, policy Policy, clk clock.Clock, delay time.Duration) *Processor {
	return &Processor{log: log, repo: repo, policy: policy, clock: clk, delay: delay}
}

// OnOrderCreated decides the payment for an order once. Any later delivery of
// the same order finds the stored payment and does nothing, so the decision
// and its events are never recomputed.
func (p *Processor) OnOrderCreated(ctx context.Context, evt saga.OrderCreated) error {
	if evt.OrderID == "" {
		return fmt.Errorf("%w: order.created without order_id", saga.ErrMalformed)
	}

	existing, err := p.repo.GetByOrder(ctx, evt.OrderID)
	switch {
	case err == nil:
		p.log.Info("payment already decided", "order_id", evt.OrderID, "payment_id", existing.ID, "status", existing.Status)
		return nil
	case !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("load payment for %s: %w", evt.OrderID, err)
	}

	if p.delay > 0 {
		t := time.NewTimer(p.delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
	}

	outcome := p.policy.Decide(ctx, evt)
	now := p.clock.Now()
	payment := domain.New(evt.OrderID, evt.UserID, evt.TotalAmount, evt.PaymentMethod, outcome, now)

	msgs, err := p.outcomeEvents(ctx, payment, now)
	if err != nil {
		return err
	}
	events := make([]outbox.Event, 0, len(msgs))
	for _, m := range msgs {
		events = append(events, outbox.FromMessage(aggregateType, m))
	}

	err = p.repo.SaveWithOutbox(ctx, payment, events...)
	if errors.Is(err, domain.ErrAlreadyProcessed) {
		p.log.Info("payment stored by a concurrent delivery", "order_id", evt.OrderID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("save payment for %s: %w", evt.OrderID, err)
	}

	p.log.Info("payment decided", "order_id", evt.OrderID, "payment_id", payment.ID, "status", payment.Status, "reason", payment.Reason)
	return nil
}

func (p *Processor) outcomeEvents(ctx context.Context, pay domain.Payment, at time.Time) ([]eventbus.Message, error) {
	var first, second eventbus.Message
	var err error
	if pay.Status == domain.StatusCompleted {
		first, err = saga.NewMessage(ctx, saga.TopicPaymentCompleted, pay.OrderID, saga.PaymentCompleted{
			OrderID:       pay.OrderID,
			PaymentID:     pay.ID,
			Amount:        pay.Amount,
			PaymentMethod: pay.PaymentMethod,
		}, at)
		if err != nil {
			return nil, err
		}
		second, err = saga.NewMessage(ctx, saga.TopicOrderStatusUpdated, pay.OrderID, saga.OrderStatusUpdated{
			OrderID:   pay.OrderID,
			NewStatus: saga.StatusConfirmed,
		}, at)
	} else {
		first, err = saga.NewMessage(ctx, saga.TopicPaymentFailed, pay.OrderID, saga.PaymentFailed{
			OrderID: pay.OrderID,
			Reason:  pay.Reason,
		}, at)
		if err != nil {
			return nil, err
		}
		second, err = saga.NewMessage(ctx, saga.TopicOrderStatusUpdated, pay.OrderID, saga.OrderStatusUpdated{
			OrderID:   pay.OrderID,
			NewStatus: saga.StatusCancelled,
			Reason:    pay.Reason,
		}, at)
	}
	if err != nil {
		return nil, err
	}
	return []eventbus.Message{first, second}, nil
}
