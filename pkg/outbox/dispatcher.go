package outbox

import (
	"context"
	"log/slog"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
)

type Dispatcher struct {
	log       *slog.Logger
	publisher eventbus.Publisher
}

func NewDispatcher(log *slog.Logger, publisher eventbus.Publisher) *Dispatcher {
	return &Dispatcher{log: log, publisher: publisher}
}

func (d *Dispatcher) Dispatch(ctx context.Context, event Event) error {
	if err := d.publisher.Publish(ctx, event.Message()); err != nil {
		d.log.Error("outbox dispatch failed", "event_id", event.EventID, "type", event.Type, "order_id", event.AggregateID, "err", err)
		return err
	}
	d.log.Info("outbox dispatched", "event_id", event.EventID, "type", event.Type, "order_id", event.AggregateID)
	return nil
}
