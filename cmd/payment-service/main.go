package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/smart-food-ordering/internal/bootstrap"
	"github.com/dmehra2102/smart-food-ordering/internal/clock"
	"github.com/dmehra2102/smart-food-ordering/internal/config"
	"github.com/dmehra2102/smart-food-ordering/internal/payment/application"
	paymentevents "github.com/dmehra2102/smart-food-ordering/internal/payment/infrastructure/events"
	paymentpg "github.com/dmehra2102/smart-food-ordering/internal/payment/infrastructure/postgres"
	"github.com/dmehra2102/smart-food-ordering/migrations"
	"github.com/dmehra2102/smart-food-ordering/pkg/idempotency"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
	outboxpg "github.com/dmehra2102/smart-food-ordering/pkg/outbox/postgres"
	"github.com/dmehra2102/smart-food-ordering/pkg/shutdown"
	"github.com/dmehra2102/smart-food-ordering/pkg/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("FOOD_CONFIG"), "path to a YAML or TOML config file")
	flag.Parse()

	cfg, err := config.LoadFor("payment-service", *configPath)
	if err != nil {
		logging.New("payment-service", "info").Error("load config failed", "err", err)
		os.Exit(1)
	}
	log := logging.New(cfg.Service.Name, cfg.Log.Level)

	ctx, cancel := shutdown.WithSignals(context.Background(), log)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Service.Name, bootstrap.Tracing(cfg.Tracing), log)
	if err != nil {
		log.Error("otel init failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = tp.Shutdown(context.Background()) }()

	policy, err := application.PolicyFromConfig(cfg.Payment)
	if err != nil {
		log.Error("payment policy invalid", "err", err)
		os.Exit(1)
	}

	pool, err := bootstrap.Postgres(ctx, cfg.Postgres)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.ApplyPayment(ctx, pool); err != nil {
		log.Error("migrations failed", "err", err)
		os.Exit(1)
	}

	broker, err := bootstrap.OpenBroker(cfg, log)
	if err != nil {
		log.Error("broker connect failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = broker.Close() }()

	rdb := bootstrap.Redis(ctx, log, cfg.Redis)
	defer func() { _ = rdb.Close() }()
	idem := idempotency.NewStore(rdb, cfg.Redis.IdempotencyTTL)

	repo := paymentpg.NewRepository(log, pool)
	relay := bootstrap.Relay(log, cfg, outboxpg.NewStore(log, pool), broker.Publisher)
	proc := application.NewProcessor(log, repo, policy, clock.NewSystem(), cfg.Payment.ProcessingDelay)
	consumer := paymentevents.NewConsumer(log, broker.Subscriber, proc,
		idempotency.Middleware(log, idem, cfg.Service.Name))

	log.Info("payment-service started", "policy", cfg.Payment.Policy, "broker", cfg.Broker.Driver)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("payment-service stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("payment-service shutdown complete")
}
