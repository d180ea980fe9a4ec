package domain

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
)

func (s Status) Terminal() bool {
	return s == StatusConfirmed || s == StatusCancelled
}

func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusConfirmed, StatusCancelled:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, s)
	}
}

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
)

const DefaultPaymentMethod = "CARD"

// Item is a line of an order. Items never change after the order is created.
type Item struct {
	ItemID   string
	Quantity int
	Price    decimal.Decimal
}

func (i Item) Subtotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Draft is what a client submits to place an order.
type Draft struct {
	UserID          string
	RestaurantID    string
	Items           []Item
	TotalAmount     decimal.Decimal
	DeliveryAddress string
	PaymentMethod   string
}

type Order struct {
	ID              string
	UserID          string
	RestaurantID    string
	Items           []Item
	TotalAmount     decimal.Decimal
	DeliveryAddress string
	PaymentMethod   string
	Status          Status
	PaymentStatus   PaymentStatus
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// NewOrder validates d and returns a PENDING order. The declared total must
// equal the sum of price times quantity over all items.
func NewOrder(id string, d Draft, now time.Time) (Order, error) {
	if strings.TrimSpace(d.UserID) == "" {
		return Order{}, fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if strings.TrimSpace(d.RestaurantID) == "" {
		return Order{}, fmt.Errorf("%w: restaurant_id is required", ErrValidation)
	}
	if len(d.Items) == 0 {
		return Order{}, fmt.Errorf("%w: order has no items", ErrValidation)
	}

	sum := decimal.Zero
	items := make([]Item, len(d.Items))
	for i, item := range d.Items {
		if strings.TrimSpace(item.ItemID) == "" {
			return Order{}, fmt.Errorf("%w: item %d has no item_id", ErrValidation, i)
		}
		if item.Quantity <= 0 {
			return Order{}, fmt.Errorf("%w: item %s quantity must be positive", ErrValidation, item.ItemID)
		}
		if item.Price.IsNegative() {
			return Order{}, fmt.Errorf("%w: item %s price must not be negative", ErrValidation, item.ItemID)
		}
		sum = sum.Add(item.Subtotal())
		items[i] = item
	}
	if !sum.Equal(d.TotalAmount) {
		return Order{}, fmt.Errorf("%w: total_amount %s does not match items total %s", ErrValidation, d.TotalAmount, sum)
	}

	method := strings.ToUpper(strings.TrimSpace(d.PaymentMethod))
	if method == "" {
		method = DefaultPaymentMethod
	}
	now = now.UTC()
	return Order{
		ID:              id,
		UserID:          d.UserID,
		RestaurantID:    d.RestaurantID,
		Items:           items,
		TotalAmount:     d.TotalAmount,
		DeliveryAddress: d.DeliveryAddress,
		PaymentMethod:   method,
		Status:          StatusPending,
		PaymentStatus:   PaymentPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}

// Transition moves a PENDING order to a terminal status. Repeating the
// transition the order already went through is a no-op and reports false.
func (o *Order) Transition(to Status, at time.Time) (bool, error) {
	if o.Status == to && to.Terminal() {
		return false, nil
	}
	if o.Status != StatusPending || !to.Terminal() {
		return false, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, o.Status, to)
	}
	o.Status = to
	o.PaymentStatus = PaymentStatusFor(to)
	o.UpdatedAt = at.UTC()
	return true, nil
}

// PaymentStatusFor is the payment status recorded alongside a terminal order status.
func PaymentStatusFor(s Status) PaymentStatus {
	switch s {
	case StatusConfirmed:
		return PaymentCompleted
	case StatusCancelled:
		return PaymentFailed
	default:
		return PaymentPending
	}
}
