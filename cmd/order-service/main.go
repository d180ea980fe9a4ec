package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/smart-food-ordering/internal/bootstrap"
	"github.com/dmehra2102/smart-food-ordering/internal/clock"
	"github.com/dmehra2102/smart-food-ordering/internal/config"
	"github.com/dmehra2102/smart-food-ordering/internal/order/application"
	orderevents "github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/events"
	ordergrpc "github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/grpc"
	orderhttp "github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/http"
	orderpg "github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/postgres"
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

	cfg, err := config.LoadFor("order-service", *configPath)
	if err != nil {
		logging.New("order-service", "info").Error("load config failed", "err", err)
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

	pool, err := bootstrap.Postgres(ctx, cfg.Postgres)
	if err != nil {
		log.Error("pg connect failed", "err", err)
		os.Exit(1)
	}
	defer pool.Close()

	if err := migrations.ApplyOrder(ctx, pool); err != nil {
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

	repo := orderpg.NewRepository(log, pool)
	relay := bootstrap.Relay(log, cfg, outboxpg.NewStore(log, pool), broker.Publisher)
	coord := application.NewCoordinator(log, repo, clock.NewSystem())
	consumer := orderevents.NewConsumer(log, broker.Subscriber, coord,
		idempotency.Middleware(log, idem, cfg.Service.Name))

	r := chi.NewRouter()
	r.Mount("/", orderhttp.NewHandler(log, coord).Routes())
	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	gs, err := ordergrpc.Run(cfg.GRPC.Addr, ordergrpc.NewServer(log, coord))
	if err != nil {
		log.Error("grpc listen failed", "addr", cfg.GRPC.Addr, "err", err)
		os.Exit(1)
	}
	log.Info("grpc listening", "addr", cfg.GRPC.Addr)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return relay.Run(gctx) })
	g.Go(func() error { return consumer.Run(gctx) })
	g.Go(func() error { return bootstrap.ServeHTTP(gctx, log, srv, cfg.HTTP.ShutdownTimeout) })
	g.Go(func() error {
		<-gctx.Done()
		gs.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("order-service stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("order-service shutdown complete")
}
