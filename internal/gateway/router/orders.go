package router

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/dmehra2102/smart-food-ordering/internal/gateway/auth"
	"github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/grpc/orderpb"
)

type itemReq struct {
	ItemID   flexString      `json:"item_id"`
	Quantity int32           `json:"quantity"`
	Price    decimal.Decimal `json:"price"`
}

type createOrderReq struct {
	RestaurantID    flexString      `json:"restaurant_id"`
	Items           []itemReq       `json:"items"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	DeliveryAddress string          `json:"delivery_address"`
	PaymentMethod   string          `json:"payment_method"`
}

type listOrdersResp struct {
	Orders []*orderpb.Order `json:"orders"`
	Total  int              `json:"total"`
}

func (rt *Router) createOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, "invalid JSON body")
		return
	}

	in := &orderpb.CreateOrderRequest{
		UserID:          id.UserID,
		RestaurantID:    string(req.RestaurantID),
		TotalAmount:     req.TotalAmount.String(),
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, &orderpb.Item{ItemID: string(it.ItemID), Quantity: it.Quantity, Price: it.Price.String()})
	}

	var created *orderpb.Order
	err := rt.call(r.Context(), TargetOrder, func(ctx context.Context) error {
		var err error
		created, err = rt.orders.CreateOrder(ctx, in)
		return err
	})
	if err != nil {
		writeDownstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (rt *Router) getOrder(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	var o *orderpb.Order
	err := rt.call(r.Context(), TargetOrder, func(ctx context.Context) error {
		var err error
		o, err = rt.orders.GetOrder(ctx, chi.URLParam(r, "id"))
		return err
	})
	if err != nil {
		writeDownstreamError(w, err)
		return
	}
	// Another user's order is reported as missing.
	if o.UserID != id.UserID {
		writeError(w, http.StatusNotFound, codeNotFound, "order not found")
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (rt *Router) listOrders(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())

	limit, err := queryInt(r, "limit")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, "limit must be a non-negative integer")
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidQuery, "offset must be a non-negative integer")
		return
	}

	var resp listOrdersResp
	err = rt.call(r.Context(), TargetOrder, func(ctx context.Context) error {
		var err error
		resp.Orders, resp.Total, err = rt.orders.ListUserOrders(ctx, id.UserID, limit, offset)
		return err
	})
	if err != nil {
		writeDownstreamError(w, err)
		return
	}
	if resp.Orders == nil {
		resp.Orders = []*orderpb.Order{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func queryInt(r *http.Request, key string) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	// Paging values travel as int32 on the order service's wire.
	n, err := strconv.ParseInt(v, 10, 32)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, strconv.ErrSyntax
	}
	return int(n), nil
}
