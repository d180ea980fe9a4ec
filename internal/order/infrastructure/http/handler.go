package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/dmehra2102/smart-food-ordering/internal/order/application"
	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
)

type Handler struct {
	log     *slog.Logger
	service *application.Coordinator
	tracer  trace.Tracer
}

func NewHandler(log *slog.Logger, service *application.Coordinator) *Handler {
	return &Handler{
		log:     log,
		service: service,
		tracer:  otel.Tracer("order-http"),
	}
}

type itemReq struct {
	ItemID   string          `json:"item_id"`
	Quantity int             `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type createOrderReq struct {
	UserID          string          `json:"user_id"`
	RestaurantID    string          `json:"restaurant_id"`
	Items           []itemReq       `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	PaymentMethod   string          `json:"payment_method"`
}

type itemResp struct {
	ItemID   string `json:"item_id"`
	Quantity int    `json:"quantity"`
	Price    string `json:"price"`
}

type orderResp struct {
	ID              string     `json:"id"`
	UserID          string     `json:"user_id"`
	RestaurantID    string     `json:"restaurant_id"`
	Items           []itemResp `json:"items"`
	TotalAmount     string     `json:"total_amount"`
	DeliveryAddress string     `json:"delivery_address"`
	PaymentMethod   string     `json:"payment_method"`
	Status          string     `json:"status"`
	PaymentStatus   string     `json:"payment_status"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recoverer)
	r.Get("/health", Health)
	r.Post("/orders", h.createOrder)
	r.Get("/orders/{id}", h.getOrder)

	return r
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "CreateOrder")
	defer span.End()

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid body")
		return
	}

	in := application.CreateOrderInput{
		UserID:          req.UserID,
		RestaurantID:    req.RestaurantID,
		TotalAmount:     req.TotalAmount,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, domain.Item{ItemID: it.ItemID, Quantity: it.Quantity, Price: it.Price})
	}

	o, err := h.service.CreateOrder(ctx, in)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toResp(o))
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "GetOrder")
	defer span.End()

	o, err := h.service.GetOrder(ctx, chi.URLParam(r, "id"))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toResp(o))
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		writeError(w, http.StatusBadRequest, codeValidation, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
	default:
		h.log.Error("order request failed", "err", err)
		writeError(w, http.StatusInternalServerError, codeInternalError, "internal error")
	}
}

func toResp(o domain.Order) orderResp {
	items := make([]itemResp, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, itemResp{ItemID: it.ItemID, Quantity: it.Quantity, Price: it.Price.String()})
	}
	return orderResp{
		ID:              o.ID,
		UserID:          o.UserID,
		RestaurantID:    o.RestaurantID,
		Items:           items,
		TotalAmount:     o.TotalAmount.String(),
		DeliveryAddress: o.DeliveryAddress,
		PaymentMethod:   o.PaymentMethod,
		Status:          string(o.Status),
		PaymentStatus:   string(o.PaymentStatus),
		CreatedAt:       o.CreatedAt,
		UpdatedAt:       o.UpdatedAt,
	}
}

// Health reports basic liveness for the service.
func Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
