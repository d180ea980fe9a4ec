//go:build integration

package rabbitmq_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus/rabbitmq"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
	"github.com/dmehra2102/smart-food-ordering/test/integration"
)

func TestPublishSubscribeWithRedelivery(t *testing.T) {
	url := integration.RabbitMQURL(t)
	retry := eventbus.RetryConfig{InitialInterval: 10 * time.Millisecond, MaxInterval: 50 * time.Millisecond, MaxElapsedTime: time.Second}

	b, err := rabbitmq.Dial(rabbitmq.Config{
		URL:         url,
		Exchange:    "order_events",
		QueuePrefix: "order-service",
		Queues:      map[string][]string{"order-service": {"payment.completed"}},
	}, logging.Discard(), retry)
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sent := eventbus.Message{
		ID:        "5d4c7b1a-2b8e-4f0c-8d7e-1a2b3c4d5e6f",
		Topic:     "payment.completed",
		Key:       "o-1",
		Payload:   []byte(`{"order_id":"o-1","payment_id":"PAY_o-1_1"}`),
		EmittedAt: time.Now().UTC().Truncate(time.Second),
	}
	// The queue was declared at dial, so this is kept until the consumer starts.
	require.NoError(t, b.Publish(ctx, sent))

	var attempts atomic.Int32
	got := make(chan eventbus.Message, 1)
	go func() {
		_ = b.Subscribe(ctx, "payment.completed", func(_ context.Context, m eventbus.Message) error {
			if attempts.Add(1) == 1 {
				return errors.New("first delivery fails")
			}
			got <- m
			return nil
		})
	}()
	select {
	case m := <-got:
		assert.Equal(t, sent.ID, m.ID)
		assert.Equal(t, sent.Key, m.Key)
		assert.Equal(t, "payment.completed", m.Topic)
		assert.JSONEq(t, string(sent.Payload), string(m.Payload))
		assert.GreaterOrEqual(t, attempts.Load(), int32(2))
	case <-ctx.Done():
		t.Fatal("message not consumed")
	}
}

func TestPublishWithoutBoundQueueFails(t *testing.T) {
	url := integration.RabbitMQURL(t)
	b, err := rabbitmq.Dial(rabbitmq.Config{URL: url, Exchange: "order_events", QueuePrefix: "order-service"}, logging.Discard(), eventbus.DefaultRetryConfig())
	require.NoError(t, err)
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	err = b.Publish(ctx, eventbus.Message{ID: "evt-unbound", Topic: "nobody.listens", Key: "o-2", Payload: []byte(`{}`)})
	assert.ErrorIs(t, err, eventbus.ErrChannel)
}
