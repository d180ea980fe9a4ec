package kafka

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
)

// Publisher writes each message to the topic named by its type. The hash
// balancer keys on the order id so one order's events share a partition.
type Publisher struct {
	w *kafka.Writer
}

func NewPublisher(brokers []string) *Publisher {
	return &Publisher{
		w: &kafka.Writer{
			Addr:                   kafka.TCP(brokers...),
			Balancer:               &kafka.Hash{},
			RequiredAcks:           kafka.RequireAll,
			AllowAutoTopicCreation: true,
		},
	}
}

func (p *Publisher) Publish(ctx context.Context, msgs ...eventbus.Message) error {
	out := make([]kafka.Message, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toKafka(m))
	}
	if err := p.w.WriteMessages(ctx, out...); err != nil {
		return fmt.Errorf("%w: kafka write: %w", eventbus.ErrChannel, err)
	}
	return nil
}

func (p *Publisher) Close() error {
	return p.w.Close()
}

// Subscriber reads topics as one consumer group. Offsets are committed only
// after the handler succeeded.
type Subscriber struct {
	log     *slog.Logger
	brokers []string
	group   string
	retry   eventbus.RetryConfig
}

func NewSubscriber(log *slog.Logger, brokers []string, group string, retry eventbus.RetryConfig) *Subscriber {
	return &Subscriber{log: log, brokers: brokers, group: group, retry: retry}
}

func (s *Subscriber) Subscribe(ctx context.Context, topic string, h eventbus.Handler) error {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     s.brokers,
		Topic:       topic,
		GroupID:     s.group,
		StartOffset: kafka.FirstOffset,
		MaxWait:     500 * time.Millisecond,
	})
	defer r.Close()

	s.log.Info("kafka subscription started", "topic", topic, "group", s.group)
	for {
		km, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			return fmt.Errorf("%w: kafka fetch %s: %w", eventbus.ErrChannel, topic, err)
		}

		if err := eventbus.Deliver(ctx, s.log, s.retry, h, fromKafka(km)); err != nil {
			return nil
		}
		if err := r.CommitMessages(ctx, km); err != nil {
			s.log.Error("kafka commit failed", "topic", topic, "partition", km.Partition, "offset", km.Offset, "err", err)
		}
	}
}

func toKafka(m eventbus.Message) kafka.Message {
	headers := m.AllHeaders()
	kh := make([]kafka.Header, 0, len(headers))
	for k, v := range headers {
		kh = append(kh, kafka.Header{Key: k, Value: []byte(v)})
	}
	return kafka.Message{
		Topic:   m.Topic,
		Key:     []byte(m.Key),
		Value:   m.Payload,
		Headers: kh,
		Time:    m.EmittedAt,
	}
}

func fromKafka(km kafka.Message) eventbus.Message {
	headers := make(map[string]string, len(km.Headers))
	for _, h := range km.Headers {
		headers[h.Key] = string(h.Value)
	}
	emitted := km.Time
	if raw, ok := headers[eventbus.HeaderEmittedAt]; ok {
		if t, err := time.Parse(time.RFC3339Nano, raw); err == nil {
			emitted = t
		}
	}
	return eventbus.Message{
		ID:        headers[eventbus.HeaderEventID],
		Topic:     km.Topic,
		Key:       string(km.Key),
		Payload:   km.Value,
		Headers:   headers,
		EmittedAt: emitted,
	}
}
