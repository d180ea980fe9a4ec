package events

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/smart-food-ordering/internal/payment/application"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/tracing"
)

// Consumer feeds order.created events into the payment processor.
type Consumer struct {
	log    *slog.Logger
	sub    eventbus.Subscriber
	proc   *application.Processor
	mws    []eventbus.Middleware
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, sub eventbus.Subscriber, proc *application.Processor, mws ...eventbus.Middleware) *Consumer {
	return &Consumer{
		log:    log,
		sub:    sub,
		proc:   proc,
		mws:    mws,
		tracer: otel.Tracer("payment-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.sub.Subscribe(ctx, saga.TopicOrderCreated, eventbus.Chain(c.Handle, c.mws...))
}

// Handle processes one delivery. Malformed events are dropped; any other
// failure is returned so the transport redelivers.
func (c *Consumer) Handle(ctx context.Context, msg eventbus.Message) error {
	msgCtx := tracing.ExtractHeaders(ctx, msg.Headers)
	msgCtx, span := c.tracer.Start(msgCtx, "ConsumeOrderCreated",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(attribute.String("order_id", msg.Key), attribute.String("event_id", msg.ID)))
	defer span.End()

	evt, err := saga.Decode[saga.OrderCreated](msg)
	if err == nil {
		err = c.proc.OnOrderCreated(msgCtx, evt)
	}
	if errors.Is(err, saga.ErrMalformed) {
		c.log.Error("dropping malformed event", "topic", msg.Topic, "event_id", msg.ID, "err", err)
		return nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.log.Error("payment process failed", "order_id", evt.OrderID, "err", err)
		return err
	}
	return nil
}
