package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/rabbitmq/amqp091-go"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
)

type Config struct {
	URL      string
	Exchange string
	// Queues are named "<QueuePrefix>.<topic>", one durable queue per service and topic.
	QueuePrefix string
	Prefetch    int
	// Queues maps a queue prefix to the topics it consumes. Dial declares and
	// binds them so events published before a consumer starts are kept.
	Queues map[string][]string
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.URL) == "" {
		return fmt.Errorf("rabbitmq url is required")
	}
	if c.Exchange == "" {
		return fmt.Errorf("rabbitmq exchange is required")
	}
	if c.QueuePrefix == "" {
		return fmt.Errorf("rabbitmq queue prefix is required")
	}
	return nil
}

// Broker publishes to a durable topic exchange (routing key = event type) and
// consumes with manual acks.
type Broker struct {
	cfg   Config
	log   *slog.Logger
	retry eventbus.RetryConfig
	conn  *amqp091.Connection

	mu      sync.Mutex
	pubCh   *amqp091.Channel
	returns chan amqp091.Return
}

func Dial(cfg Config, log *slog.Logger, retry eventbus.RetryConfig) (*Broker, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Prefetch < 1 {
		cfg.Prefetch = 1
	}
	conn, err := amqp091.Dial(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("dial rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open rabbitmq channel: %w", err)
	}
	defer ch.Close()
	if err := ch.ExchangeDeclare(cfg.Exchange, "topic", true, false, false, false, nil); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	if err := declareQueues(ch, cfg); err != nil {
		conn.Close()
		return nil, err
	}
	return &Broker{cfg: cfg, log: log, retry: retry, conn: conn}, nil
}

type queueDeclarer interface {
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp091.Table) (amqp091.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp091.Table) error
}

func declareQueues(ch queueDeclarer, cfg Config) error {
	for prefix, topics := range cfg.Queues {
		for _, topic := range topics {
			if err := declareQueue(ch, cfg.Exchange, prefix+"."+topic, topic); err != nil {
				return err
			}
		}
	}
	return nil
}

func declareQueue(ch queueDeclarer, exchange, queue, topic string) error {
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("%w: declare queue %s: %w", eventbus.ErrChannel, queue, err)
	}
	if err := ch.QueueBind(queue, topic, exchange, false, nil); err != nil {
		return fmt.Errorf("%w: bind queue %s: %w", eventbus.ErrChannel, queue, err)
	}
	return nil
}

// Publish sends msgs as mandatory publishes and waits for each confirm. A
// message no queue is bound for comes back as a return and fails the call.
func (b *Broker) Publish(ctx context.Context, msgs ...eventbus.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, err := b.publishChannel()
	if err != nil {
		return fmt.Errorf("%w: %w", eventbus.ErrChannel, err)
	}
	for _, m := range msgs {
		dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, b.cfg.Exchange, m.Topic, true, false, toPublishing(m))
		if err != nil {
			b.resetPublishChannel()
			return fmt.Errorf("%w: publish %s: %w", eventbus.ErrChannel, m.Topic, err)
		}
		acked, err := dc.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("%w: confirm %s: %w", eventbus.ErrChannel, m.Topic, err)
		}
		if !acked {
			return fmt.Errorf("%w: broker nacked %s", eventbus.ErrChannel, m.Topic)
		}
		if ret, ok := returned(b.returns, m.ID); ok {
			return fmt.Errorf("%w: %s unroutable: %s", eventbus.ErrChannel, m.Topic, ret.ReplyText)
		}
	}
	return nil
}

// returned drains returns and reports whether the message with id came back.
// The broker sends basic.return ahead of the confirm, so after a confirm any
// return for that message is already queued.
func returned(returns <-chan amqp091.Return, id string) (amqp091.Return, bool) {
	var (
		match amqp091.Return
		found bool
	)
	for {
		select {
		case r, ok := <-returns:
			if !ok {
				return match, found
			}
			if r.MessageId == id {
				match, found = r, true
			}
		default:
			return match, found
		}
	}
}

func (b *Broker) publishChannel() (*amqp091.Channel, error) {
	if b.pubCh != nil && !b.pubCh.IsClosed() {
		return b.pubCh, nil
	}
	ch, err := b.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	b.returns = ch.NotifyReturn(make(chan amqp091.Return, 16))
	b.pubCh = ch
	return ch, nil
}

func (b *Broker) resetPublishChannel() {
	if b.pubCh != nil {
		_ = b.pubCh.Close()
		b.pubCh = nil
	}
}

func (b *Broker) Subscribe(ctx context.Context, topic string, h eventbus.Handler) error {
	ch, err := b.conn.Channel()
	if err != nil {
		return fmt.Errorf("%w: open consume channel: %w", eventbus.ErrChannel, err)
	}
	defer ch.Close()

	if err := ch.Qos(b.cfg.Prefetch, 0, false); err != nil {
		return fmt.Errorf("%w: set prefetch: %w", eventbus.ErrChannel, err)
	}
	queue := b.cfg.QueuePrefix + "." + topic
	if err := declareQueue(ch, b.cfg.Exchange, queue, topic); err != nil {
		return err
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("%w: consume %s: %w", eventbus.ErrChannel, queue, err)
	}

	b.log.Info("rabbitmq subscription started", "topic", topic, "queue", queue)
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				if ctx.Err() != nil {
					return nil
				}
				return fmt.Errorf("%w: delivery channel closed for %s", eventbus.ErrChannel, queue)
			}
			b.process(ctx, h, d)
		}
	}
}

func (b *Broker) process(ctx context.Context, h eventbus.Handler, d amqp091.Delivery) {
	if err := eventbus.Deliver(ctx, b.log, b.retry, h, fromDelivery(d)); err != nil {
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

func (b *Broker) Close() error {
	b.mu.Lock()
	b.resetPublishChannel()
	b.mu.Unlock()
	if err := b.conn.Close(); err != nil && !errors.Is(err, amqp091.ErrClosed) {
		return err
	}
	return nil
}

func toPublishing(m eventbus.Message) amqp091.Publishing {
	table := amqp091.Table{}
	for k, v := range m.AllHeaders() {
		table[k] = v
	}
	return amqp091.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		MessageId:     m.ID,
		CorrelationId: m.Key,
		Timestamp:     m.EmittedAt,
		Type:          m.Topic,
		Headers:       table,
		Body:          m.Payload,
	}
}

func fromDelivery(d amqp091.Delivery) eventbus.Message {
	headers := make(map[string]string, len(d.Headers))
	for k, v := range d.Headers {
		headers[k] = fmt.Sprint(v)
	}
	id := d.MessageId
	if id == "" {
		id = headers[eventbus.HeaderEventID]
	}
	key := d.CorrelationId
	if key == "" {
		key = headers[eventbus.HeaderCorrelationID]
	}
	return eventbus.Message{
		ID:        id,
		Topic:     d.RoutingKey,
		Key:       key,
		Payload:   d.Body,
		Headers:   headers,
		EmittedAt: d.Timestamp,
	}
}
