package outbox

import (
	"context"
	"log/slog"
	"time"
)

type Store interface {
	LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]Event, error)
	MarkSent(ctx context.Context, ids []int64) error
	MarkFailed(ctx context.Context, id int64, errMsg string) error
	// Release hands locked events back as pending without counting a retry.
	Release(ctx context.Context, ids []int64) error
}

type Relay struct {
	log        *slog.Logger
	store      Store
	dispatch   *Dispatcher
	relayID    string
	batchSize  int
	interval   time.Duration
	lease      time.Duration
	alertAfter int
}

type Option func(*Relay)

func WithInterval(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.interval = d
		}
	}
}

func WithBatchSize(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.batchSize = n
		}
	}
}

func WithLease(d time.Duration) Option {
	return func(r *Relay) {
		if d > 0 {
			r.lease = d
		}
	}
}

// WithAlertAfter sets how many failed dispatches of one event are tolerated
// before every further failure is logged as an alert.
func WithAlertAfter(n int) Option {
	return func(r *Relay) {
		if n > 0 {
			r.alertAfter = n
		}
	}
}

func NewRelay(log *slog.Logger, store Store, dispatch *Dispatcher, relayID string, opts ...Option) *Relay {
	r := &Relay{
		log:        log,
		store:      store,
		dispatch:   dispatch,
		relayID:    relayID,
		batchSize:  100,
		interval:   500 * time.Millisecond,
		lease:      5 * time.Second,
		alertAfter: 5,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Relay) Run(ctx context.Context) error {
	t := time.NewTicker(r.interval)
	defer t.Stop()

	r.log.Info("relay started", "relay_id", r.relayID, "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("relay stopping", "relay_id", r.relayID)
			return nil
		case <-t.C:
			if _, err := r.Flush(ctx); err != nil && ctx.Err() == nil {
				r.log.Error("relay flush error", "relay_id", r.relayID, "err", err)
			}
		}
	}
}

// Flush dispatches one batch and returns how many events were sent. Once an
// event of an aggregate fails, its later events in the batch are released
// untouched so they are never emitted ahead of it.
//
// Dispatching stops at four fifths of the lease, leaving the rest for the
// bookkeeping writes. Events not dispatched by then are released uncounted
// so no other relay can lock them while this one still might publish.
func (r *Relay) Flush(ctx context.Context) (int, error) {
	events, err := r.store.LockBatch(ctx, r.relayID, r.batchSize, r.lease)
	if err != nil {
		return 0, err
	}
	if len(events) == 0 {
		return 0, nil
	}

	dctx, cancel := context.WithTimeout(ctx, r.lease*4/5)
	defer cancel()

	blocked := map[string]bool{}
	sent := make([]int64, 0, len(events))
	var held []int64
	for _, e := range events {
		if blocked[e.AggregateID] || dctx.Err() != nil {
			held = append(held, e.ID)
			continue
		}
		if err := r.dispatch.Dispatch(dctx, e); err != nil {
			blocked[e.AggregateID] = true
			if dctx.Err() != nil && ctx.Err() == nil {
				r.log.Warn("relay lease budget spent", "relay_id", r.relayID, "event_id", e.EventID, "lease", r.lease)
				held = append(held, e.ID)
				continue
			}
			if e.RetryCount+1 >= r.alertAfter {
				r.log.Error("outbox event keeps failing", "alert", true, "event_id", e.EventID, "type", e.Type,
					"order_id", e.AggregateID, "attempts", e.RetryCount+1, "err", err)
			}
			if mErr := r.store.MarkFailed(ctx, e.ID, err.Error()); mErr != nil {
				r.log.Error("relay mark failed error", "event_id", e.EventID, "err", mErr)
			}
			continue
		}
		sent = append(sent, e.ID)
	}

	if len(held) > 0 {
		if err := r.store.Release(ctx, held); err != nil {
			r.log.Error("relay release error", "err", err)
		}
	}
	if len(sent) > 0 {
		if err := r.store.MarkSent(ctx, sent); err != nil {
			return 0, err
		}
	}
	return len(sent), nil
}
