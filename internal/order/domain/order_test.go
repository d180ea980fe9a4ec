package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 4, 2, 18, 30, 0, 0, time.UTC)

func draft() Draft {
	return Draft{
		UserID:       "42",
		RestaurantID: "r-1",
		Items: []Item{
			{ItemID: "pizza", Quantity: 2, Price: decimal.RequireFromString("12.99")},
		},
		TotalAmount:     decimal.RequireFromString("25.98"),
		DeliveryAddress: "1 Main St",
	}
}

func TestNewOrderStartsPending(t *testing.T) {
	o, err := NewOrder("o-1", draft(), now)
	require.NoError(t, err)

	assert.Equal(t, StatusPending, o.Status)
	assert.Equal(t, PaymentPending, o.PaymentStatus)
	assert.Equal(t, DefaultPaymentMethod, o.PaymentMethod)
	assert.Equal(t, now, o.CreatedAt)
	assert.True(t, o.TotalAmount.Equal(decimal.RequireFromString("25.98")))
}

func TestNewOrderValidation(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Draft)
	}{
		{"mismatched total", func(d *Draft) { d.TotalAmount = decimal.RequireFromString("20.00") }},
		{"no items", func(d *Draft) { d.Items = nil }},
		{"zero quantity", func(d *Draft) { d.Items[0].Quantity = 0 }},
		{"negative price", func(d *Draft) { d.Items[0].Price = decimal.RequireFromString("-1"); d.TotalAmount = decimal.RequireFromString("-2") }},
		{"missing user", func(d *Draft) { d.UserID = "" }},
		{"missing restaurant", func(d *Draft) { d.RestaurantID = " " }},
		{"missing item id", func(d *Draft) { d.Items[0].ItemID = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d := draft()
			tc.mutate(&d)
			_, err := NewOrder("o-1", d, now)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}
}

func TestNewOrderAllowsFreeItems(t *testing.T) {
	d := draft()
	d.Items = append(d.Items, Item{ItemID: "napkin", Quantity: 3, Price: decimal.Zero})
	_, err := NewOrder("o-1", d, now)
	assert.NoError(t, err)
}

func TestTransition(t *testing.T) {
	o, err := NewOrder("o-1", draft(), now)
	require.NoError(t, err)

	changed, err := o.Transition(StatusConfirmed, now.Add(time.Minute))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, PaymentCompleted, o.PaymentStatus)
	assert.Equal(t, now.Add(time.Minute), o.UpdatedAt)

	changed, err = o.Transition(StatusConfirmed, now.Add(2*time.Minute))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, now.Add(time.Minute), o.UpdatedAt)

	_, err = o.Transition(StatusCancelled, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	assert.Equal(t, StatusConfirmed, o.Status)
}

func TestTransitionBackToPendingIsRejected(t *testing.T) {
	o, err := NewOrder("o-1", draft(), now)
	require.NoError(t, err)
	_, err = o.Transition(StatusPending, now)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("cancelled")
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, s)

	_, err = ParseStatus("SHIPPED")
	assert.ErrorIs(t, err, ErrValidation)
}
