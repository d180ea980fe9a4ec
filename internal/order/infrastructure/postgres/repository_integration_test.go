//go:build integration

package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
	orderpg "github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/postgres"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
	"github.com/dmehra2102/smart-food-ordering/migrations"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
	outboxpg "github.com/dmehra2102/smart-food-ordering/pkg/outbox/postgres"
	"github.com/dmehra2102/smart-food-ordering/test/integration"
)

func TestRepositoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	pool := integration.Postgres(t)
	require.NoError(t, migrations.ApplyOrder(ctx, pool))
	// A second run finds every migration applied.
	require.NoError(t, migrations.ApplyOrder(ctx, pool))

	log := logging.Discard()
	repo := orderpg.NewRepository(log, pool)
	store := outboxpg.NewStore(log, pool)

	now := time.Now().UTC().Truncate(time.Microsecond)
	o, err := domain.NewOrder("6f1f7c55-8f8e-4d3b-9a51-0c7d1f4f3a10", domain.Draft{
		UserID:       "u-1",
		RestaurantID: "r-1",
		Items: []domain.Item{
			{ItemID: "pizza", Quantity: 2, Price: decimal.RequireFromString("12.99")},
			{ItemID: "cola", Quantity: 1, Price: decimal.RequireFromString("1.5")},
		},
		TotalAmount: decimal.RequireFromString("27.48"),
	}, now)
	require.NoError(t, err)

	msg, err := saga.NewMessage(ctx, saga.TopicOrderCreated, o.ID, saga.OrderCreated{OrderID: o.ID, TotalAmount: o.TotalAmount}, now)
	require.NoError(t, err)
	require.NoError(t, repo.SaveWithOutbox(ctx, o, outbox.FromMessage("order", msg)))

	got, err := repo.Get(ctx, o.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPending, got.Status)
	assert.True(t, o.TotalAmount.Equal(got.TotalAmount), "total %s", got.TotalAmount)
	require.Len(t, got.Items, 2)
	assert.Equal(t, "pizza", got.Items[0].ItemID)
	assert.True(t, got.Items[0].Price.Equal(decimal.RequireFromString("12.99")))

	list, total, err := repo.ListByUser(ctx, "u-1", 10, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, list, 1)

	batch, err := store.LockBatch(ctx, "relay-a", 10, time.Minute)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, msg.ID, batch[0].EventID)
	assert.JSONEq(t, string(msg.Payload), string(batch[0].Payload))

	// The lease hides the event from a second relay.
	other, err := store.LockBatch(ctx, "relay-b", 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, other)

	require.NoError(t, store.MarkSent(ctx, []int64{batch[0].ID}))
	pending, err := store.Pending(ctx)
	require.NoError(t, err)
	assert.Zero(t, pending)

	require.NoError(t, repo.UpdateStatus(ctx, o.ID, domain.StatusPending, domain.StatusConfirmed, domain.PaymentCompleted, now))
	err = repo.UpdateStatus(ctx, o.ID, domain.StatusPending, domain.StatusCancelled, domain.PaymentFailed, now)
	assert.ErrorIs(t, err, domain.ErrConcurrentUpdate)

	err = repo.UpdateStatus(ctx, "00000000-0000-0000-0000-000000000000", domain.StatusPending, domain.StatusConfirmed, domain.PaymentCompleted, now)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = repo.Get(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
