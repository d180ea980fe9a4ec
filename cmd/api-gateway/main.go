package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dmehra2102/smart-food-ordering/internal/bootstrap"
	"github.com/dmehra2102/smart-food-ordering/internal/clock"
	"github.com/dmehra2102/smart-food-ordering/internal/config"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/auth"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/breaker"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/downstream"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/ratelimit"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/router"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
	"github.com/dmehra2102/smart-food-ordering/pkg/shutdown"
	"github.com/dmehra2102/smart-food-ordering/pkg/tracing"
)

func main() {
	configPath := flag.String("config", os.Getenv("FOOD_CONFIG"), "path to a YAML or TOML config file")
	flag.Parse()

	cfg, err := config.LoadFor("api-gateway", *configPath)
	if err == nil {
		err = cfg.Gateway.Validate()
	}
	if err != nil {
		logging.New("api-gateway", "info").Error("load config failed", "err", err)
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

	orders, conn, err := downstream.DialOrder(cfg.Gateway.Targets.OrderGRPC)
	if err != nil {
		log.Error("order client failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = conn.Close() }()

	targets := map[string]string{
		router.TargetUser:           cfg.Gateway.Targets.User,
		router.TargetRestaurant:     cfg.Gateway.Targets.Restaurant,
		router.TargetRecommendation: cfg.Gateway.Targets.Recommendation,
	}
	fwd := make(map[string]*downstream.HTTPTarget, len(targets))
	for name, url := range targets {
		t, err := downstream.NewHTTPTarget(name, url, nil)
		if err != nil {
			log.Error("bad downstream url", "target", name, "err", err)
			os.Exit(1)
		}
		fwd[name] = t
	}

	clk := clock.NewSystem()
	breakers := breaker.NewRegistry(breaker.Config{
		Threshold:    cfg.Gateway.Breaker.Threshold,
		OpenDuration: cfg.Gateway.Breaker.OpenDuration,
		IsFailure:    downstream.IsFailure,
	}, clk, router.Targets...)
	limiter := ratelimit.PerMinute(cfg.Gateway.Rate.PerMinute, cfg.Gateway.Rate.Burst, cfg.Gateway.Rate.IdleTTL, clk)

	handler := router.New(router.Deps{
		Log:            log,
		Verifier:       auth.NewJWTVerifier(cfg.Gateway.JWTSecret),
		Limiter:        limiter,
		Breakers:       breakers,
		Timeout:        cfg.Gateway.Timeout,
		Orders:         orders,
		Users:          fwd[router.TargetUser],
		Restaurants:    fwd[router.TargetRestaurant],
		Recommendation: fwd[router.TargetRecommendation],
	})

	srv := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: cfg.Gateway.Timeout + 5*time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		limiter.Run(gctx, time.Minute)
		return nil
	})
	g.Go(func() error { return bootstrap.ServeHTTP(gctx, log, srv, cfg.HTTP.ShutdownTimeout) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("api-gateway stopped with error", "err", err)
		os.Exit(1)
	}
	log.Info("api-gateway shutdown complete")
}
