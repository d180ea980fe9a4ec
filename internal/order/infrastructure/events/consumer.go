package events

import (
	"context"
	"errors"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/tracing"
)

// Coordinator is the part of the order coordinator driven by payment events.
type Coordinator interface {
	OnPaymentCompleted(ctx context.Context, orderID string) error
	OnPaymentFailed(ctx context.Context, orderID string) error
	OnStatusUpdated(ctx context.Context, orderID, status string) error
}

// Consumer runs one subscription per saga topic the order service listens to.
type Consumer struct {
	log    *slog.Logger
	sub    eventbus.Subscriber
	coord  Coordinator
	mws    []eventbus.Middleware
	tracer trace.Tracer
}

func NewConsumer(log *slog.Logger, sub eventbus.Subscriber, coord Coordinator, mws ...eventbus.Middleware) *Consumer {
	return &Consumer{
		log:    log,
		sub:    sub,
		coord:  coord,
		mws:    mws,
		tracer: otel.Tracer("order-consumer"),
	}
}

func (c *Consumer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for topic, h := range c.handlers() {
		g.Go(func() error {
			return c.sub.Subscribe(ctx, topic, eventbus.Chain(c.traced(h), c.mws...))
		})
	}
	return g.Wait()
}

func (c *Consumer) handlers() map[string]eventbus.Handler {
	return map[string]eventbus.Handler{
		saga.TopicPaymentCompleted:   c.HandlePaymentCompleted,
		saga.TopicPaymentFailed:      c.HandlePaymentFailed,
		saga.TopicOrderStatusUpdated: c.HandleStatusUpdated,
	}
}

func (c *Consumer) HandlePaymentCompleted(ctx context.Context, msg eventbus.Message) error {
	evt, err := saga.Decode[saga.PaymentCompleted](msg)
	if err != nil {
		return c.settle(msg, "", err)
	}
	return c.settle(msg, evt.OrderID, c.coord.OnPaymentCompleted(ctx, evt.OrderID))
}

func (c *Consumer) HandlePaymentFailed(ctx context.Context, msg eventbus.Message) error {
	evt, err := saga.Decode[saga.PaymentFailed](msg)
	if err != nil {
		return c.settle(msg, "", err)
	}
	return c.settle(msg, evt.OrderID, c.coord.OnPaymentFailed(ctx, evt.OrderID))
}

func (c *Consumer) HandleStatusUpdated(ctx context.Context, msg eventbus.Message) error {
	evt, err := saga.Decode[saga.OrderStatusUpdated](msg)
	if err != nil {
		return c.settle(msg, "", err)
	}
	return c.settle(msg, evt.OrderID, c.coord.OnStatusUpdated(ctx, evt.OrderID, evt.NewStatus))
}

// settle decides whether a handler error asks for redelivery. Unknown orders,
// rejected transitions and malformed payloads can never succeed, so they are
// logged and acknowledged.
func (c *Consumer) settle(msg eventbus.Message, orderID string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, saga.ErrMalformed):
		c.log.Error("dropping malformed event", "topic", msg.Topic, "event_id", msg.ID, "err", err)
		return nil
	case errors.Is(err, domain.ErrNotFound):
		c.log.Warn("event for unknown order", "topic", msg.Topic, "event_id", msg.ID, "order_id", orderID)
		return nil
	case errors.Is(err, domain.ErrInvalidTransition):
		c.log.Warn("event rejected by order state", "topic", msg.Topic, "event_id", msg.ID, "order_id", orderID, "err", err)
		return nil
	default:
		c.log.Error("order event handling failed", "topic", msg.Topic, "event_id", msg.ID, "order_id", orderID, "err", err)
		return err
	}
}

func (c *Consumer) traced(h eventbus.Handler) eventbus.Handler {
	return func(ctx context.Context, msg eventbus.Message) error {
		msgCtx := tracing.ExtractHeaders(ctx, msg.Headers)
		msgCtx, span := c.tracer.Start(msgCtx, "Consume "+msg.Topic,
			trace.WithSpanKind(trace.SpanKindConsumer),
			trace.WithAttributes(attribute.String("order_id", msg.Key), attribute.String("event_id", msg.ID)))
		defer span.End()

		err := h(msgCtx, msg)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		return err
	}
}
