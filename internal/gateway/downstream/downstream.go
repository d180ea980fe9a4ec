// Package downstream holds the gateway's clients for the services behind it
// and the rule deciding which of their errors trip a circuit breaker.
package downstream

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrTimeout means the downstream did not answer within the call timeout.
	ErrTimeout = errors.New("downstream timeout")
	// ErrUnavailable covers transport failures and 5xx style answers.
	ErrUnavailable = errors.New("downstream unavailable")
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid request")
)

// IsFailure reports whether err should count against the target's breaker.
// Business rejections and calls abandoned by the client do not.
func IsFailure(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrInvalid):
		return false
	case errors.Is(err, context.Canceled):
		return false
	default:
		return true
	}
}

// classify maps a context error from a finished call onto ErrTimeout.
func classify(ctx context.Context, target string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s", ErrTimeout, target)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return ctx.Err()
	}
	return fmt.Errorf("%w: %s: %w", ErrUnavailable, target, err)
}
