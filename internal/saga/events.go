// Package saga holds the event contracts shared by the order and payment
// services.
package saga

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/tracing"
)

const (
	TopicOrderCreated       = "order.created"
	TopicPaymentCompleted   = "payment.completed"
	TopicPaymentFailed      = "payment.failed"
	TopicOrderStatusUpdated = "order.status_updated"
)

// Subscriptions lists the topics each service consumes, keyed by service name.
var Subscriptions = map[string][]string{
	"order-service":   {TopicPaymentCompleted, TopicPaymentFailed, TopicOrderStatusUpdated},
	"payment-service": {TopicOrderCreated},
}

// Order statuses as they appear in order.status_updated payloads.
const (
	StatusConfirmed = "CONFIRMED"
	StatusCancelled = "CANCELLED"
)

type OrderCreated struct {
	OrderID       string          `json:"order_id"`
	UserID        string          `json:"user_id"`
	RestaurantID  string          `json:"restaurant_id"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	PaymentMethod string          `json:"payment_method"`
}

type PaymentCompleted struct {
	OrderID       string          `json:"order_id"`
	PaymentID     string          `json:"payment_id"`
	Amount        decimal.Decimal `json:"amount"`
	PaymentMethod string          `json:"payment_method"`
}

type PaymentFailed struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type OrderStatusUpdated struct {
	OrderID   string `json:"order_id"`
	NewStatus string `json:"new_status"`
	Reason    string `json:"reason,omitempty"`
}

// NewMessage builds a saga event keyed by orderID with a fresh event id and
// the caller's trace context in its headers.
func NewMessage(ctx context.Context, topic, orderID string, payload any, at time.Time) (eventbus.Message, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return eventbus.Message{}, fmt.Errorf("encode %s: %w", topic, err)
	}
	headers := map[string]string{}
	tracing.InjectHeaders(ctx, headers)
	return eventbus.Message{
		ID:        uuid.NewString(),
		Topic:     topic,
		Key:       orderID,
		Payload:   body,
		Headers:   headers,
		EmittedAt: at.UTC(),
	}, nil
}

// ErrMalformed marks a payload that can never be processed. Consumers drop
// such messages instead of redelivering them.
var ErrMalformed = errors.New("malformed saga event")

func Decode[T any](msg eventbus.Message) (T, error) {
	var v T
	if err := json.Unmarshal(msg.Payload, &v); err != nil {
		return v, fmt.Errorf("%w: %s: %w", ErrMalformed, msg.Topic, err)
	}
	return v, nil
}
