package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound = errors.New("payment not found")
	// ErrAlreadyProcessed means a payment for the order was stored first by
	// another delivery of the same order.created event.
	ErrAlreadyProcessed = errors.New("payment already processed")
)

type Status string

const (
	StatusCompleted Status = "COMPLETED"
	StatusFailed    Status = "FAILED"
)

// Outcome is the decision taken for one order. It is stored with the payment
// and never recomputed.
type Outcome struct {
	Success bool
	Reason  string
}

type Payment struct {
	ID            string
	OrderID       string
	UserID        string
	Amount        decimal.Decimal
	PaymentMethod string
	Status        Status
	Reason        string
	CreatedAt     time.Time
}

func NewPaymentID(orderID string, at time.Time) string {
	return fmt.Sprintf("PAY_%s_%d", orderID, at.Unix())
}

func New(orderID, userID string, amount decimal.Decimal, method string, outcome Outcome, at time.Time) Payment {
	p := Payment{
		ID:            NewPaymentID(orderID, at),
		OrderID:       orderID,
		UserID:        userID,
		Amount:        amount,
		PaymentMethod: method,
		Status:        StatusCompleted,
		CreatedAt:     at.UTC(),
	}
	if !outcome.Success {
		p.Status = StatusFailed
		p.Reason = outcome.Reason
	}
	return p
}
