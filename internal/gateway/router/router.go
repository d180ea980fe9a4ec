// Package router is the gateway's HTTP surface. Every downstream call goes
// through the target's circuit breaker under a fixed timeout.
package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/dmehra2102/smart-food-ordering/internal/gateway/auth"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/breaker"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/downstream"
	"github.com/dmehra2102/smart-food-ordering/internal/gateway/ratelimit"
	"github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/grpc/orderpb"
)

// Breaker targets, one per downstream service.
const (
	TargetUser           = "user"
	TargetRestaurant     = "restaurant"
	TargetOrder          = "order"
	TargetRecommendation = "recommendation"
)

// Targets lists every downstream the gateway builds a breaker for.
var Targets = []string{TargetUser, TargetRestaurant, TargetOrder, TargetRecommendation}

const DefaultTimeout = 5 * time.Second

type OrderService interface {
	CreateOrder(ctx context.Context, req *orderpb.CreateOrderRequest) (*orderpb.Order, error)
	GetOrder(ctx context.Context, id string) (*orderpb.Order, error)
	ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*orderpb.Order, int, error)
}

type Forwarder interface {
	Forward(ctx context.Context, r *http.Request, path string) (downstream.Response, error)
}

type Deps struct {
	Log      *slog.Logger
	Verifier auth.Verifier
	Limiter  *ratelimit.Limiter
	Breakers *breaker.Registry
	Timeout  time.Duration

	Orders         OrderService
	Users          Forwarder
	Restaurants    Forwarder
	Recommendation Forwarder
}

type Router struct {
	log      *slog.Logger
	breakers *breaker.Registry
	timeout  time.Duration

	orders         OrderService
	users          Forwarder
	restaurants    Forwarder
	recommendation Forwarder
}

func New(d Deps) http.Handler {
	if d.Timeout <= 0 {
		d.Timeout = DefaultTimeout
	}
	rt := &Router{
		log:            d.Log,
		breakers:       d.Breakers,
		timeout:        d.Timeout,
		orders:         d.Orders,
		users:          d.Users,
		restaurants:    d.Restaurants,
		recommendation: d.Recommendation,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(d.Log))
	if d.Limiter != nil {
		r.Use(rateLimit(d.Limiter))
	}

	r.Get("/health", rt.health)
	r.Get("/health/breakers", rt.breakerStatus)

	authed := requireAuth(d.Verifier)
	r.Route("/api", func(r chi.Router) {
		r.With(validateBody(registerSchema)).Post("/users/register", rt.proxy(TargetUser, rt.users, ""))
		r.With(validateBody(loginSchema)).Post("/users/login", rt.proxy(TargetUser, rt.users, ""))
		r.With(authed).Get("/users/{id}", rt.proxy(TargetUser, rt.users, ""))

		r.Get("/restaurants", rt.proxy(TargetRestaurant, rt.restaurants, ""))
		r.Get("/restaurants/{id}", rt.proxy(TargetRestaurant, rt.restaurants, ""))
		r.Get("/restaurants/{id}/menu", rt.proxy(TargetRestaurant, rt.restaurants, ""))

		r.With(authed, validateBody(graphQLSchema)).Post("/recommendations", rt.proxy(TargetRecommendation, rt.recommendation, "/graphql"))

		r.Group(func(r chi.Router) {
			r.Use(authed)
			r.With(validateBody(createOrderSchema)).Post("/orders", rt.createOrder)
			r.Get("/orders", rt.listOrders)
			r.Get("/orders/{id}", rt.getOrder)
		})
	})
	return r
}

// call runs fn through target's breaker with the per-call timeout.
func (rt *Router) call(ctx context.Context, target string, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, rt.timeout)
	defer cancel()
	err := rt.breakers.Execute(ctx, target, fn)
	if err != nil && downstream.IsFailure(err) {
		rt.log.Warn("downstream call failed", "target", target, "err", err)
	}
	return err
}

func (rt *Router) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": "api-gateway"})
}

func (rt *Router) breakerStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"breakers": rt.breakers.Snapshot()})
}
