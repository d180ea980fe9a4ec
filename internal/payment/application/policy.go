package application

import (
	"context"
	"fmt"
	"math/rand/v2"

	"github.com/shopspring/decimal"

	"github.com/dmehra2102/smart-food-ordering/internal/config"
	"github.com/dmehra2102/smart-food-ordering/internal/payment/domain"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
)

// Policy decides whether the payment for an order goes through.
type Policy interface {
	Decide(ctx context.Context, order saga.OrderCreated) domain.Outcome
}

type AlwaysSucceed struct{}

func (AlwaysSucceed) Decide(context.Context, saga.OrderCreated) domain.Outcome {
	return domain.Outcome{Success: true}
}

type AlwaysFail struct {
	Reason string
}

func (p AlwaysFail) Decide(context.Context, saga.OrderCreated) domain.Outcome {
	reason := p.Reason
	if reason == "" {
		reason = "payment declined"
	}
	return domain.Outcome{Reason: reason}
}

// ProbabilityPolicy succeeds with probability Success. Rand defaults to
// math/rand/v2 and can be replaced in tests.
type ProbabilityPolicy struct {
	Success float64
	Rand    func() float64
}

func (p ProbabilityPolicy) Decide(context.Context, saga.OrderCreated) domain.Outcome {
	draw := rand.Float64
	if p.Rand != nil {
		draw = p.Rand
	}
	if draw() < p.Success {
		return domain.Outcome{Success: true}
	}
	return domain.Outcome{Reason: "payment processing failed"}
}

// AmountLimitPolicy declines orders whose total exceeds Limit.
type AmountLimitPolicy struct {
	Limit decimal.Decimal
}

func (p AmountLimitPolicy) Decide(_ context.Context, order saga.OrderCreated) domain.Outcome {
	if order.TotalAmount.GreaterThan(p.Limit) {
		return domain.Outcome{Reason: fmt.Sprintf("amount %s exceeds limit %s", order.TotalAmount, p.Limit)}
	}
	return domain.Outcome{Success: true}
}

func PolicyFromConfig(cfg config.PaymentConfig) (Policy, error) {
	switch cfg.Policy {
	case "always_succeed":
		return AlwaysSucceed{}, nil
	case "always_fail":
		return AlwaysFail{}, nil
	case "probability":
		return ProbabilityPolicy{Success: cfg.SuccessProbability}, nil
	case "amount_limit":
		limit, err := decimal.NewFromString(cfg.AmountLimit)
		if err != nil {
			return nil, fmt.Errorf("payment amount limit: %w", err)
		}
		return AmountLimitPolicy{Limit: limit}, nil
	default:
		return nil, fmt.Errorf("unknown payment policy %q", cfg.Policy)
	}
}
