package idempotency

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
)

// Store remembers which event ids a consumer already handled.
type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewStore(rdb *redis.Client, ttl time.Duration) *Store {
	return &Store{rdb: rdb, ttl: ttl}
}

func (s *Store) Key(scope, eventID string) string {
	return fmt.Sprintf("idem:%s:%s", scope, eventID)
}

func (s *Store) Seen(ctx context.Context, key string) (bool, error) {
	n, err := s.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Mark records key as handled. It reports false when the key was already set.
func (s *Store) Mark(ctx context.Context, key string) (bool, error) {
	return s.rdb.SetNX(ctx, key, "1", s.ttl).Result()
}

// Middleware drops deliveries whose event id was already handled in scope. The
// id is only marked after the handler succeeds, so a failed attempt is
// redelivered. A Redis outage falls back to the handler's own idempotence.
func Middleware(log *slog.Logger, store *Store, scope string) eventbus.Middleware {
	return func(next eventbus.Handler) eventbus.Handler {
		return func(ctx context.Context, msg eventbus.Message) error {
			if msg.ID == "" {
				return next(ctx, msg)
			}
			key := store.Key(scope, msg.ID)
			seen, err := store.Seen(ctx, key)
			if err != nil {
				log.Warn("idempotency check failed, processing anyway", "key", key, "err", err)
			} else if seen {
				log.Info("duplicate delivery skipped", "topic", msg.Topic, "event_id", msg.ID, "order_id", msg.Key)
				return nil
			}

			if err := next(ctx, msg); err != nil {
				return err
			}
			if _, err := store.Mark(ctx, key); err != nil {
				log.Warn("idempotency mark failed", "key", key, "err", err)
			}
			return nil
		}
	}
}
