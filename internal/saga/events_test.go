package saga

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
)

func TestNewMessageUsesFlatJSONPayload(t *testing.T) {
	at := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	msg, err := NewMessage(context.Background(), TopicOrderCreated, "o-1", OrderCreated{
		OrderID:       "o-1",
		UserID:        "42",
		RestaurantID:  "r-7",
		TotalAmount:   decimal.RequireFromString("25.98"),
		PaymentMethod: "CARD",
	}, at)
	require.NoError(t, err)

	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "o-1", msg.Key)
	assert.Equal(t, at, msg.EmittedAt)
	assert.JSONEq(t, `{"order_id":"o-1","user_id":"42","restaurant_id":"r-7","total_amount":"25.98","payment_method":"CARD"}`, string(msg.Payload))
}

func TestNewMessageGivesEachEventItsOwnID(t *testing.T) {
	a, err := NewMessage(context.Background(), TopicPaymentFailed, "o-1", PaymentFailed{OrderID: "o-1"}, time.Now())
	require.NoError(t, err)
	b, err := NewMessage(context.Background(), TopicPaymentFailed, "o-1", PaymentFailed{OrderID: "o-1"}, time.Now())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestDecode(t *testing.T) {
	got, err := Decode[OrderStatusUpdated](eventbus.Message{Payload: []byte(`{"order_id":"o-2","new_status":"CANCELLED","reason":"declined"}`)})
	require.NoError(t, err)
	assert.Equal(t, OrderStatusUpdated{OrderID: "o-2", NewStatus: StatusCancelled, Reason: "declined"}, got)

	_, err = Decode[OrderStatusUpdated](eventbus.Message{Topic: TopicOrderStatusUpdated, Payload: []byte(`{not json`)})
	assert.ErrorIs(t, err, ErrMalformed)
}
