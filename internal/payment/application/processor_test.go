package application_test

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/smart-food-ordering/internal/clock"
	"github.com/dmehra2102/smart-food-ordering/internal/config"
	"github.com/dmehra2102/smart-food-ordering/internal/payment/application"
	"github.com/dmehra2102/smart-food-ordering/internal/payment/domain"
	"github.com/dmehra2102/smart-food-ordering/internal/payment/infrastructure/memory"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

var at = time.Date(2026, 4, 2, 18, 31, 0, 0, time.UTC)

type countingPolicy struct {
	calls   atomic.Int32
	outcome domain.Outcome
}

func (p *countingPolicy) Decide(context.Context, saga.OrderCreated) domain.Outcome {
	p.calls.Add(1)
	return p.outcome
}

func orderCreated() saga.OrderCreated {
	return saga.OrderCreated{
		OrderID:       "o-1",
		UserID:        "42",
		RestaurantID:  "r-1",
		TotalAmount:   decimal.RequireFromString("25.98"),
		PaymentMethod: "CARD",
	}
}

func newProcessor(policy application.Policy) (*application.Processor, *outbox.MemoryStore, *memory.Repository) {
	box := outbox.NewMemoryStore()
	repo := memory.NewRepository(box)
	return application.NewProcessor(logging.Discard(), repo, policy, clock.NewFixed(at), 0), box, repo
}

func TestSuccessfulPaymentEmitsCompletedAndConfirmed(t *testing.T) {
	proc, box, repo := newProcessor(application.AlwaysSucceed{})

	require.NoError(t, proc.OnOrderCreated(context.Background(), orderCreated()))

	p, err := repo.GetByOrder(context.Background(), "o-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusCompleted, p.Status)

	events := box.Events()
	require.Len(t, events, 2)
	assert.Equal(t, saga.TopicPaymentCompleted, events[0].Type)
	assert.Equal(t, saga.TopicOrderStatusUpdated, events[1].Type)

	var completed saga.PaymentCompleted
	require.NoError(t, json.Unmarshal(events[0].Payload, &completed))
	assert.Equal(t, "PAY_o-1_"+strconv.FormatInt(at.Unix(), 10), completed.PaymentID)
	assert.True(t, completed.Amount.Equal(decimal.RequireFromString("25.98")))
	assert.Equal(t, "CARD", completed.PaymentMethod)

	var status saga.OrderStatusUpdated
	require.NoError(t, json.Unmarshal(events[1].Payload, &status))
	assert.Equal(t, saga.StatusConfirmed, status.NewStatus)
}

func TestFailedPaymentEmitsFailedAndCancelled(t *testing.T) {
	proc, box, _ := newProcessor(application.AlwaysFail{Reason: "card declined"})

	require.NoError(t, proc.OnOrderCreated(context.Background(), orderCreated()))

	events := box.Events()
	require.Len(t, events, 2)
	assert.Equal(t, saga.TopicPaymentFailed, events[0].Type)

	var failed saga.PaymentFailed
	require.NoError(t, json.Unmarshal(events[0].Payload, &failed))
	assert.Equal(t, "card declined", failed.Reason)

	var status saga.OrderStatusUpdated
	require.NoError(t, json.Unmarshal(events[1].Payload, &status))
	assert.Equal(t, saga.StatusCancelled, status.NewStatus)
	assert.Equal(t, "card declined", status.Reason)
}

func TestRedeliveryDoesNotDecideAgain(t *testing.T) {
	policy := &countingPolicy{outcome: domain.Outcome{Success: true}}
	proc, box, _ := newProcessor(policy)

	require.NoError(t, proc.OnOrderCreated(context.Background(), orderCreated()))
	require.NoError(t, proc.OnOrderCreated(context.Background(), orderCreated()))

	assert.Equal(t, int32(1), policy.calls.Load())
	assert.Len(t, box.Events(), 2)
}

func TestConcurrentDeliveriesStoreOnePayment(t *testing.T) {
	policy := &countingPolicy{outcome: domain.Outcome{Success: true}}
	proc, box, _ := newProcessor(policy)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, proc.OnOrderCreated(context.Background(), orderCreated()))
		}()
	}
	wg.Wait()
	assert.Len(t, box.Events(), 2)
}

func TestMissingOrderIDIsMalformed(t *testing.T) {
	proc, _, _ := newProcessor(application.AlwaysSucceed{})
	err := proc.OnOrderCreated(context.Background(), saga.OrderCreated{})
	assert.ErrorIs(t, err, saga.ErrMalformed)
}

func TestDelayHonoursCancellation(t *testing.T) {
	box := outbox.NewMemoryStore()
	proc := application.NewProcessor(logging.Discard(), memory.NewRepository(box), application.AlwaysSucceed{}, clock.NewFixed(at), time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := proc.OnOrderCreated(ctx, orderCreated())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, box.Events())
}

func TestPolicies(t *testing.T) {
	ctx := context.Background()
	order := orderCreated()

	assert.True(t, application.ProbabilityPolicy{Success: 0.9, Rand: func() float64 { return 0.89 }}.Decide(ctx, order).Success)
	assert.False(t, application.ProbabilityPolicy{Success: 0.9, Rand: func() float64 { return 0.9 }}.Decide(ctx, order).Success)

	limit := application.AmountLimitPolicy{Limit: decimal.RequireFromString("20")}
	out := limit.Decide(ctx, order)
	assert.False(t, out.Success)
	assert.Contains(t, out.Reason, "exceeds limit")

	order.TotalAmount = decimal.RequireFromString("20")
	assert.True(t, limit.Decide(ctx, order).Success)
}

func TestPolicyFromConfig(t *testing.T) {
	p, err := application.PolicyFromConfig(config.PaymentConfig{Policy: "amount_limit", AmountLimit: "10.50"})
	require.NoError(t, err)
	assert.IsType(t, application.AmountLimitPolicy{}, p)

	p, err = application.PolicyFromConfig(config.PaymentConfig{Policy: "probability", SuccessProbability: 1})
	require.NoError(t, err)
	assert.True(t, p.Decide(context.Background(), orderCreated()).Success)

	_, err = application.PolicyFromConfig(config.PaymentConfig{Policy: "nope"})
	assert.Error(t, err)
}
