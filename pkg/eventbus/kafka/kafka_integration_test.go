//go:build integration

package kafka_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus/kafka"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
	"github.com/dmehra2102/smart-food-ordering/test/integration"
)

func TestPublishSubscribe(t *testing.T) {
	brokers := integration.KafkaBrokers(t)
	log := logging.Discard()

	pub := kafka.NewPublisher(brokers)
	defer pub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sent := eventbus.Message{
		ID:        "3c9b2f0e-5f64-4c53-9a4e-6f1b5a1d2e7f",
		Topic:     "order.created",
		Key:       "o-1",
		Payload:   []byte(`{"order_id":"o-1"}`),
		Headers:   map[string]string{"traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"},
		EmittedAt: time.Now().UTC().Truncate(time.Millisecond),
	}
	// Topic auto-creation can reject the first write while the leader is elected.
	require.NoError(t, eventbus.NewRetrying(log, pub, eventbus.RetryConfig{MaxElapsedTime: 30 * time.Second}).Publish(ctx, sent))

	got := make(chan eventbus.Message, 1)
	sub := kafka.NewSubscriber(log, brokers, "payment-service", eventbus.DefaultRetryConfig())
	go func() {
		_ = sub.Subscribe(ctx, "order.created", func(_ context.Context, m eventbus.Message) error {
			got <- m
			cancel()
			return nil
		})
	}()

	select {
	case m := <-got:
		assert.Equal(t, sent.ID, m.ID)
		assert.Equal(t, sent.Key, m.Key)
		assert.JSONEq(t, string(sent.Payload), string(m.Payload))
		assert.Equal(t, sent.Headers["traceparent"], m.Headers["traceparent"])
	case <-time.After(time.Minute):
		t.Fatal("message not consumed")
	}
}
