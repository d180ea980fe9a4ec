// Package breaker implements a per-target circuit breaker.
//
// A breaker starts CLOSED. Threshold consecutive failures open it; while OPEN
// calls fail with ErrOpen without reaching the target. Once OpenDuration has
// passed the next call becomes the single HALF_OPEN trial: its success closes
// the breaker, its failure opens it again. A trial cancelled by its caller
// leaves the breaker HALF_OPEN so the next call can try again.
package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmehra2102/smart-food-ordering/internal/clock"
)

type State string

const (
	StateClosed   State = "CLOSED"
	StateOpen     State = "OPEN"
	StateHalfOpen State = "HALF_OPEN"
)

var ErrOpen = errors.New("circuit open")

// OpenError is returned while a breaker rejects calls.
type OpenError struct {
	Target     string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit open for %s", e.Target)
}

func (e *OpenError) Unwrap() error { return ErrOpen }

type Config struct {
	Threshold    int
	OpenDuration time.Duration
	// IsFailure classifies the error returned by a call. Nil errors are always
	// successes. Defaults to counting every error.
	IsFailure func(error) bool
}

func DefaultConfig() Config {
	return Config{Threshold: 5, OpenDuration: 60 * time.Second}
}

// Status is a point-in-time view of a breaker.
type Status struct {
	Target        string     `json:"target"`
	State         State      `json:"state"`
	Failures      int        `json:"failures"`
	Threshold     int        `json:"threshold"`
	OpenDuration  string     `json:"open_duration"`
	LastFailureAt *time.Time `json:"last_failure_at,omitempty"`
	OpenedAt      *time.Time `json:"opened_at,omitempty"`
}

type Breaker struct {
	target string
	cfg    Config
	clock  clock.Clock

	mu          sync.Mutex
	state       State
	failures    int
	lastFailure time.Time
	openedAt    time.Time
	trial       bool
}

func New(target string, cfg Config, clk clock.Clock) *Breaker {
	if cfg.Threshold < 1 {
		cfg.Threshold = 1
	}
	if cfg.IsFailure == nil {
		cfg.IsFailure = func(error) bool { return true }
	}
	if clk == nil {
		clk = clock.NewSystem()
	}
	return &Breaker{target: target, cfg: cfg, clock: clk, state: StateClosed}
}

type outcome int

const (
	succeeded outcome = iota
	failed
	// abandoned calls were cancelled by the caller and say nothing about the
	// target's health.
	abandoned
)

// Execute runs fn unless the breaker rejects the call. The error from fn is
// returned unchanged; only errors classified as failures move the breaker.
// A call cancelled by its caller leaves the breaker as it was, and an
// abandoned HALF_OPEN trial frees the slot for the next caller.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	isTrial, err := b.acquire()
	if err != nil {
		return err
	}

	done := false
	defer func() {
		if !done {
			// fn panicked; count it and let the panic continue.
			b.record(isTrial, failed)
		}
	}()

	err = fn(ctx)
	done = true
	b.record(isTrial, b.classify(ctx, err))
	return err
}

func (b *Breaker) classify(ctx context.Context, err error) outcome {
	switch {
	case err == nil:
		return succeeded
	case errors.Is(err, context.Canceled), errors.Is(ctx.Err(), context.Canceled):
		return abandoned
	case b.cfg.IsFailure(err):
		return failed
	default:
		return succeeded
	}
}

func (b *Breaker) acquire() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return false, nil
	case StateOpen:
		elapsed := b.clock.Now().Sub(b.openedAt)
		if elapsed < b.cfg.OpenDuration {
			return false, &OpenError{Target: b.target, RetryAfter: b.cfg.OpenDuration - elapsed}
		}
		b.state = StateHalfOpen
		b.trial = true
		return true, nil
	default:
		if b.trial {
			return false, &OpenError{Target: b.target, RetryAfter: time.Second}
		}
		b.trial = true
		return true, nil
	}
}

func (b *Breaker) record(trial bool, o outcome) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if trial {
		b.trial = false
	}
	switch o {
	case abandoned:
		return
	case succeeded:
		if trial || b.state == StateClosed {
			b.state = StateClosed
			b.failures = 0
		}
		return
	}

	now := b.clock.Now()
	b.lastFailure = now
	switch {
	case trial:
		b.state = StateOpen
		b.openedAt = now
	case b.state == StateClosed:
		b.failures++
		if b.failures >= b.cfg.Threshold {
			b.state = StateOpen
			b.openedAt = now
		}
	}
}

// Status reports the stored state. An OPEN breaker whose open duration has
// passed still reads OPEN until the next call moves it to HALF_OPEN.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()
	s := Status{
		Target:       b.target,
		State:        b.state,
		Failures:     b.failures,
		Threshold:    b.cfg.Threshold,
		OpenDuration: b.cfg.OpenDuration.String(),
	}
	if !b.lastFailure.IsZero() {
		t := b.lastFailure
		s.LastFailureAt = &t
	}
	if b.state != StateClosed {
		t := b.openedAt
		s.OpenedAt = &t
	}
	return s
}

func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
