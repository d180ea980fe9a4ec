package outbox

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
)

func newRelay(store Store, bus *eventbus.Bus) *Relay {
	return NewRelay(logging.Discard(), store, NewDispatcher(logging.Discard(), bus), "relay-test",
		WithInterval(5*time.Millisecond), WithBatchSize(10), WithLease(time.Second))
}

func event(id, orderID, typ string) Event {
	return FromMessage("order", eventbus.Message{
		ID:      id,
		Topic:   typ,
		Key:     orderID,
		Payload: []byte(`{"order_id":"` + orderID + `"}`),
		Headers: map[string]string{"traceparent": "00-abc-def-01", "source": "test"},
	})
}

func TestFlushPublishesPendingEventsOnce(t *testing.T) {
	store := NewMemoryStore()
	bus := eventbus.NewBus(logging.Discard(), eventbus.DefaultRetryConfig())
	relay := newRelay(store, bus)
	store.Append(event("e-1", "o-1", "order.created"), event("e-2", "o-2", "order.created"))

	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	msgs := bus.Messages("order.created")
	require.Len(t, msgs, 2)
	assert.Equal(t, "e-1", msgs[0].ID)
	assert.Equal(t, "o-1", msgs[0].Key)
	assert.Equal(t, "00-abc-def-01", msgs[0].Headers["traceparent"])
	assert.Equal(t, "test", msgs[0].Headers["source"])
	assert.Equal(t, 0, store.Pending())
}

func TestFlushKeepsFailedEventPendingAndRetries(t *testing.T) {
	store := NewMemoryStore()
	bus := eventbus.NewBus(logging.Discard(), eventbus.DefaultRetryConfig())
	relay := newRelay(store, bus)
	store.Append(event("e-1", "o-1", "order.created"))

	bus.FailNext(1)
	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	events := store.Events()
	require.Len(t, events, 1)
	assert.Equal(t, StatusFailed, events[0].Status)
	assert.Equal(t, 1, events[0].RetryCount)
	require.NotNil(t, events[0].LastError)
	assert.Empty(t, bus.Messages("order.created"))

	n, err = relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, bus.Messages("order.created"), 1)
}

func TestFlushHoldsLaterEventsOfFailedAggregate(t *testing.T) {
	store := NewMemoryStore()
	bus := eventbus.NewBus(logging.Discard(), eventbus.DefaultRetryConfig())
	relay := newRelay(store, bus)
	store.Append(
		event("e-1", "o-1", "payment.completed"),
		event("e-2", "o-1", "order.status_updated"),
		event("e-3", "o-2", "payment.completed"),
	)

	bus.FailNext(1)
	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	events := store.Events()
	assert.Equal(t, StatusFailed, events[0].Status)
	assert.Equal(t, StatusPending, events[1].Status)
	assert.Equal(t, 0, events[1].RetryCount)
	assert.Equal(t, StatusSent, events[2].Status)

	_, err = relay.Flush(context.Background())
	require.NoError(t, err)
	require.Len(t, bus.Messages("payment.completed"), 2)
	require.Len(t, bus.Messages("order.status_updated"), 1)
	assert.Equal(t, "e-1", bus.Messages("payment.completed")[1].ID)
}

func TestLockBatchSkipsLeasedEvents(t *testing.T) {
	store := NewMemoryStore()
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }
	store.Append(event("e-1", "o-1", "order.created"))

	got, err := store.LockBatch(context.Background(), "a", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, got, 1)

	got, err = store.LockBatch(context.Background(), "b", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, got)

	now = now.Add(2 * time.Minute)
	got, err = store.LockBatch(context.Background(), "b", 10, time.Minute)
	require.NoError(t, err)
	assert.Len(t, got, 1)
}

func TestRunStopsOnCancel(t *testing.T) {
	store := NewMemoryStore()
	bus := eventbus.NewBus(logging.Discard(), eventbus.DefaultRetryConfig())
	relay := newRelay(store, bus)
	store.Append(event("e-1", "o-1", "order.created"))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- relay.Run(ctx) }()

	require.Eventually(t, func() bool { return len(bus.Messages("order.created")) == 1 }, time.Second, 5*time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

// stalledPublisher blocks every publish until its context ends.
type stalledPublisher struct{ calls int }

func (p *stalledPublisher) Publish(ctx context.Context, _ ...eventbus.Message) error {
	p.calls++
	<-ctx.Done()
	return ctx.Err()
}

func TestFlushStopsDispatchingBeforeLeaseRunsOut(t *testing.T) {
	store := NewMemoryStore()
	pub := &stalledPublisher{}
	lease := 100 * time.Millisecond
	relay := NewRelay(logging.Discard(), store, NewDispatcher(logging.Discard(), pub), "relay-test", WithLease(lease))
	store.Append(event("e-1", "o-1", "order.created"), event("e-2", "o-2", "order.created"))

	start := time.Now()
	n, err := relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Less(t, time.Since(start), lease)
	assert.Equal(t, 1, pub.calls)

	for _, e := range store.Events() {
		assert.Equal(t, StatusPending, e.Status, e.EventID)
		assert.Zero(t, e.RetryCount, e.EventID)
	}
}
