package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
)

type fakeCoordinator struct {
	err       error
	completed []string
	failed    []string
	updated   []string
}

func (f *fakeCoordinator) OnPaymentCompleted(_ context.Context, id string) error {
	f.completed = append(f.completed, id)
	return f.err
}

func (f *fakeCoordinator) OnPaymentFailed(_ context.Context, id string) error {
	f.failed = append(f.failed, id)
	return f.err
}

func (f *fakeCoordinator) OnStatusUpdated(_ context.Context, id, status string) error {
	f.updated = append(f.updated, id+":"+status)
	return f.err
}

func newConsumer(coord Coordinator) *Consumer {
	bus := eventbus.NewBus(logging.Discard(), eventbus.DefaultRetryConfig())
	return NewConsumer(logging.Discard(), bus.Group("order"), coord)
}

func message(t *testing.T, topic string, payload any) eventbus.Message {
	t.Helper()
	msg, err := saga.NewMessage(context.Background(), topic, "o-1", payload, time.Now())
	require.NoError(t, err)
	return msg
}

func TestHandlersRouteToCoordinator(t *testing.T) {
	coord := &fakeCoordinator{}
	c := newConsumer(coord)
	ctx := context.Background()

	require.NoError(t, c.HandlePaymentCompleted(ctx, message(t, saga.TopicPaymentCompleted, saga.PaymentCompleted{OrderID: "o-1"})))
	require.NoError(t, c.HandlePaymentFailed(ctx, message(t, saga.TopicPaymentFailed, saga.PaymentFailed{OrderID: "o-2"})))
	require.NoError(t, c.HandleStatusUpdated(ctx, message(t, saga.TopicOrderStatusUpdated, saga.OrderStatusUpdated{OrderID: "o-3", NewStatus: saga.StatusConfirmed})))

	assert.Equal(t, []string{"o-1"}, coord.completed)
	assert.Equal(t, []string{"o-2"}, coord.failed)
	assert.Equal(t, []string{"o-3:CONFIRMED"}, coord.updated)
}

func TestHandlersAcknowledgeUnprocessableEvents(t *testing.T) {
	ctx := context.Background()
	for _, err := range []error{domain.ErrNotFound, domain.ErrInvalidTransition} {
		c := newConsumer(&fakeCoordinator{err: err})
		assert.NoError(t, c.HandlePaymentCompleted(ctx, message(t, saga.TopicPaymentCompleted, saga.PaymentCompleted{OrderID: "o-1"})))
	}

	c := newConsumer(&fakeCoordinator{})
	assert.NoError(t, c.HandlePaymentFailed(ctx, eventbus.Message{Topic: saga.TopicPaymentFailed, Payload: []byte("nope")}))
}

func TestHandlersReturnInfrastructureErrors(t *testing.T) {
	c := newConsumer(&fakeCoordinator{err: errors.New("pool closed")})
	err := c.HandlePaymentCompleted(context.Background(), message(t, saga.TopicPaymentCompleted, saga.PaymentCompleted{OrderID: "o-1"}))
	assert.Error(t, err)
}

func TestRunSubscribesToEveryTopic(t *testing.T) {
	coord := &syncCoordinator{done: make(chan string, 3)}
	bus := eventbus.NewBus(logging.Discard(), eventbus.DefaultRetryConfig())
	c := NewConsumer(logging.Discard(), bus.Group("order"), coord)

	require.NoError(t, bus.Publish(context.Background(),
		message(t, saga.TopicPaymentCompleted, saga.PaymentCompleted{OrderID: "o-1"}),
		message(t, saga.TopicPaymentFailed, saga.PaymentFailed{OrderID: "o-2"}),
		message(t, saga.TopicOrderStatusUpdated, saga.OrderStatusUpdated{OrderID: "o-3", NewStatus: saga.StatusCancelled}),
	))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	got := map[string]bool{}
	for i := 0; i < 3; i++ {
		select {
		case s := <-coord.done:
			got[s] = true
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for deliveries")
		}
	}
	assert.Equal(t, map[string]bool{"completed:o-1": true, "failed:o-2": true, "updated:o-3": true}, got)

	cancel()
	assert.NoError(t, <-done)
}

type syncCoordinator struct {
	done chan string
}

func (s *syncCoordinator) OnPaymentCompleted(_ context.Context, id string) error {
	s.done <- "completed:" + id
	return nil
}

func (s *syncCoordinator) OnPaymentFailed(_ context.Context, id string) error {
	s.done <- "failed:" + id
	return nil
}

func (s *syncCoordinator) OnStatusUpdated(_ context.Context, id, _ string) error {
	s.done <- "updated:" + id
	return nil
}
