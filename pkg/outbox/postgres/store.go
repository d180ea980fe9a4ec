package postgres

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

// Execer is satisfied by pgx.Tx and *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Insert writes events as pending rows. Callers pass their open transaction so
// the events commit together with the state change they describe.
func Insert(ctx context.Context, db Execer, events ...outbox.Event) error {
	for _, e := range events {
		headers, err := json.Marshal(e.Headers)
		if err != nil {
			return fmt.Errorf("encode outbox headers: %w", err)
		}
		_, err = db.Exec(ctx, `INSERT INTO outbox (event_id, aggregate_type, aggregate_id, type, payload, headers, traceparent, status, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, 'pending', $8)`,
			e.EventID, e.AggregateType, e.AggregateID, e.Type, e.Payload, headers, e.Traceparent, e.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert outbox event %s: %w", e.Type, err)
		}
	}
	return nil
}

type Store struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewStore(log *slog.Logger, pool *pgxpool.Pool) *Store {
	return &Store{log: log, pool: pool}
}

func (s *Store) LockBatch(ctx context.Context, relayID string, batchSize int, lease time.Duration) ([]outbox.Event, error) {
	rows, err := s.pool.Query(ctx, `
		WITH batch AS (
			SELECT id FROM outbox
			WHERE status IN ('pending', 'failed')
			   OR (status = 'in_progress' AND lease_until < now())
			ORDER BY id
			LIMIT $1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE outbox o
		SET status = 'in_progress', relay_id = $2, lease_until = now() + make_interval(secs => $3)
		FROM batch
		WHERE o.id = batch.id
		RETURNING o.id, o.event_id::text, o.aggregate_type, o.aggregate_id, o.type, o.payload, o.headers,
			o.traceparent, o.created_at, o.retry_count`,
		batchSize, relayID, lease.Seconds())
	if err != nil {
		return nil, fmt.Errorf("lock outbox batch: %w", err)
	}
	defer rows.Close()

	var events []outbox.Event
	for rows.Next() {
		var e outbox.Event
		var headers []byte
		if err := rows.Scan(&e.ID, &e.EventID, &e.AggregateType, &e.AggregateID, &e.Type, &e.Payload, &headers,
			&e.Traceparent, &e.CreatedAt, &e.RetryCount); err != nil {
			return nil, err
		}
		if len(headers) > 0 {
			if err := json.Unmarshal(headers, &e.Headers); err != nil {
				return nil, fmt.Errorf("decode outbox headers %d: %w", e.ID, err)
			}
		}
		e.Status = outbox.StatusInProgress
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	// RETURNING does not keep the CTE order.
	slices.SortFunc(events, func(a, b outbox.Event) int { return cmp.Compare(a.ID, b.ID) })
	return events, nil
}

func (s *Store) MarkSent(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'sent', sent_at = now(), lease_until = NULL WHERE id = ANY($1)`, ids)
	return err
}

func (s *Store) MarkFailed(ctx context.Context, id int64, errMsg string) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'failed', last_error = $2, retry_count = retry_count + 1, lease_until = NULL WHERE id = $1`, id, errMsg)
	return err
}

func (s *Store) Release(ctx context.Context, ids []int64) error {
	_, err := s.pool.Exec(ctx, `UPDATE outbox SET status = 'pending', relay_id = NULL, lease_until = NULL WHERE id = ANY($1)`, ids)
	return err
}

// Pending counts rows not yet sent. Used by health checks and tests.
func (s *Store) Pending(ctx context.Context) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM outbox WHERE status <> 'sent'`).Scan(&n)
	return n, err
}
