package eventbus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

type RetryConfig struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	// MaxElapsedTime of zero retries until the context is done.
	MaxElapsedTime time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		InitialInterval: 200 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		MaxElapsedTime:  30 * time.Second,
	}
}

// BackOff builds a fresh exponential backoff. BackOff values are stateful, so
// every retry loop needs its own.
func (c RetryConfig) BackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	if c.InitialInterval > 0 {
		b.InitialInterval = c.InitialInterval
	}
	if c.MaxInterval > 0 {
		b.MaxInterval = c.MaxInterval
	}
	b.MaxElapsedTime = c.MaxElapsedTime
	b.Reset()
	return b
}

// Retrying wraps a publisher with retry-with-backoff. When retries run out the
// failure is logged as an alert and returned wrapped in ErrChannel.
type Retrying struct {
	log  *slog.Logger
	next Publisher
	cfg  RetryConfig
}

func NewRetrying(log *slog.Logger, next Publisher, cfg RetryConfig) *Retrying {
	return &Retrying{log: log, next: next, cfg: cfg}
}

func (r *Retrying) Publish(ctx context.Context, msgs ...Message) error {
	attempts := 0
	op := func() error {
		attempts++
		return r.next.Publish(ctx, msgs...)
	}
	notify := func(err error, wait time.Duration) {
		r.log.Warn("publish failed, retrying", "attempt", attempts, "backoff", wait, "err", err)
	}

	if err := backoff.RetryNotify(op, backoff.WithContext(r.cfg.BackOff(), ctx), notify); err != nil {
		topics := make([]string, 0, len(msgs))
		for _, m := range msgs {
			topics = append(topics, m.Topic)
		}
		r.log.Error("event emission failed", "alert", true, "attempts", attempts, "topics", topics, "err", err)
		return fmt.Errorf("%w: %w", ErrChannel, err)
	}
	return nil
}

// Deliver runs h until it succeeds or ctx is done, backing off between tries.
func Deliver(ctx context.Context, log *slog.Logger, cfg RetryConfig, h Handler, msg Message) error {
	cfg.MaxElapsedTime = 0
	op := func() error { return h(ctx, msg) }
	notify := func(err error, wait time.Duration) {
		log.Warn("event handler failed, redelivering",
			"topic", msg.Topic, "event_id", msg.ID, "key", msg.Key, "backoff", wait, "err", err)
	}
	return backoff.RetryNotify(op, backoff.WithContext(cfg.BackOff(), ctx), notify)
}
