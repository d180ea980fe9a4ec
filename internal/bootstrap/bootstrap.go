// Package bootstrap wires config into the shared infrastructure each service
// binary starts with.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/dmehra2102/smart-food-ordering/internal/config"
	"github.com/dmehra2102/smart-food-ordering/internal/saga"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus/kafka"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus/rabbitmq"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
	"github.com/dmehra2102/smart-food-ordering/pkg/tracing"
)

func Retry(c config.RetryConfig) eventbus.RetryConfig {
	return eventbus.RetryConfig{
		InitialInterval: c.InitialInterval,
		MaxInterval:     c.MaxInterval,
		MaxElapsedTime:  c.MaxElapsedTime,
	}
}

func Tracing(c config.TracingConfig) tracing.Config {
	return tracing.Config{Enabled: c.Enabled, Endpoint: c.Endpoint, SampleRate: c.SampleRate}
}

// Broker is the publish side, wrapped with retry, and the subscribe side of
// the configured transport.
type Broker struct {
	Publisher  eventbus.Publisher
	Subscriber eventbus.Subscriber
	close      func() error
}

func (b *Broker) Close() error {
	if b.close == nil {
		return nil
	}
	return b.close()
}

func OpenBroker(cfg config.Config, log *slog.Logger) (*Broker, error) {
	retry := Retry(cfg.Retry)
	switch cfg.Broker.Driver {
	case "kafka":
		pub := kafka.NewPublisher(cfg.Broker.Kafka.Brokers)
		sub := kafka.NewSubscriber(log, cfg.Broker.Kafka.Brokers, cfg.Broker.Kafka.Group, retry)
		return &Broker{Publisher: eventbus.NewRetrying(log, pub, retry), Subscriber: sub, close: pub.Close}, nil
	case "rabbitmq":
		rb, err := rabbitmq.Dial(rabbitmq.Config{
			URL:         cfg.Broker.RabbitMQ.URL,
			Exchange:    cfg.Broker.RabbitMQ.Exchange,
			QueuePrefix: cfg.Service.Name,
			Prefetch:    cfg.Broker.RabbitMQ.Prefetch,
			Queues:      saga.Subscriptions,
		}, log, retry)
		if err != nil {
			return nil, err
		}
		return &Broker{Publisher: eventbus.NewRetrying(log, rb, retry), Subscriber: rb, close: rb.Close}, nil
	default:
		return nil, fmt.Errorf("unknown broker driver %q", cfg.Broker.Driver)
	}
}

func Postgres(ctx context.Context, c config.PostgresConfig) (*pgxpool.Pool, error) {
	pcfg, err := pgxpool.ParseConfig(c.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if c.MaxConns > 0 {
		pcfg.MaxConns = c.MaxConns
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg connect: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pg ping: %w", err)
	}
	return pool, nil
}

// Redis returns a client even when the first ping fails. Idempotency checks
// degrade to processing every delivery until Redis comes back.
func Redis(ctx context.Context, log *slog.Logger, c config.RedisConfig) *redis.Client {
	rdb := redis.NewClient(&redis.Options{Addr: c.Addr})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis unreachable, duplicate deliveries fall back to state checks", "addr", c.Addr, "err", err)
	}
	return rdb
}

func Relay(log *slog.Logger, cfg config.Config, store outbox.Store, pub eventbus.Publisher) *outbox.Relay {
	return outbox.NewRelay(log, store, outbox.NewDispatcher(log, pub), cfg.Service.Name+"-relay",
		outbox.WithInterval(cfg.Outbox.Interval),
		outbox.WithBatchSize(cfg.Outbox.BatchSize),
		outbox.WithLease(cfg.Outbox.Lease),
		outbox.WithAlertAfter(cfg.Outbox.AlertAfter),
	)
}

// ServeHTTP runs srv until ctx is done, then shuts it down within timeout.
func ServeHTTP(ctx context.Context, log *slog.Logger, srv *http.Server, timeout time.Duration) error {
	errc := make(chan error, 1)
	go func() {
		log.Info("http listening", "addr", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
