package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"github.com/shopspring/decimal"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/smart-food-ordering/internal/order/application"
	"github.com/dmehra2102/smart-food-ordering/internal/order/domain"
	"github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/grpc/orderpb"
)

type Server struct {
	orderpb.UnimplementedOrderServiceServer
	log   *slog.Logger
	coord *application.Coordinator
}

func NewServer(log *slog.Logger, coord *application.Coordinator) *Server {
	return &Server{log: log, coord: coord}
}

func (s *Server) CreateOrder(ctx context.Context, req *orderpb.CreateOrderRequest) (*orderpb.CreateOrderResponse, error) {
	in, err := createInput(req)
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}
	o, err := s.coord.CreateOrder(ctx, in)
	if err != nil {
		return nil, s.toStatus("CreateOrder", err)
	}
	return &orderpb.CreateOrderResponse{Order: ToPB(o)}, nil
}

func (s *Server) GetOrder(ctx context.Context, req *orderpb.GetOrderRequest) (*orderpb.GetOrderResponse, error) {
	o, err := s.coord.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, s.toStatus("GetOrder", err)
	}
	return &orderpb.GetOrderResponse{Order: ToPB(o)}, nil
}

func (s *Server) ListUserOrders(ctx context.Context, req *orderpb.ListUserOrdersRequest) (*orderpb.ListUserOrdersResponse, error) {
	orders, total, err := s.coord.ListUserOrders(ctx, req.UserID, int(req.Limit), int(req.Offset))
	if err != nil {
		return nil, s.toStatus("ListUserOrders", err)
	}
	out := &orderpb.ListUserOrdersResponse{Orders: make([]*orderpb.Order, 0, len(orders)), Total: int32(total)}
	for _, o := range orders {
		out.Orders = append(out.Orders, ToPB(o))
	}
	return out, nil
}

func (s *Server) toStatus(method string, err error) error {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, domain.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	default:
		s.log.Error("grpc call failed", "method", method, "err", err)
		return status.Error(codes.Internal, "internal error")
	}
}

func createInput(req *orderpb.CreateOrderRequest) (application.CreateOrderInput, error) {
	total, err := decimal.NewFromString(req.TotalAmount)
	if err != nil {
		return application.CreateOrderInput{}, errors.New("total_amount must be a decimal number")
	}
	items := make([]domain.Item, 0, len(req.Items))
	for _, it := range req.Items {
		if it == nil {
			continue
		}
		price, err := decimal.NewFromString(it.Price)
		if err != nil {
			return application.CreateOrderInput{}, errors.New("item price must be a decimal number")
		}
		items = append(items, domain.Item{ItemID: it.ItemID, Quantity: int(it.Quantity), Price: price})
	}
	return application.CreateOrderInput{
		UserID:          req.UserID,
		RestaurantID:    req.RestaurantID,
		Items:           items,
		TotalAmount:     total,
		DeliveryAddress: req.DeliveryAddress,
		PaymentMethod:   req.PaymentMethod,
	}, nil
}

func ToPB(o domain.Order) *orderpb.Order {
	items := make([]*orderpb.Item, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, &orderpb.Item{ItemID: it.ItemID, Quantity: int32(it.Quantity), Price: it.Price.String()})
	}
	return &orderpb.Order{
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

func NewGRPCServer(srv *Server, opts ...grpc.ServerOption) *grpc.Server {
	gs := grpc.NewServer(opts...)
	orderpb.RegisterOrderServiceServer(gs, srv)
	return gs
}

// Run serves srv on addr in the background. The caller stops the returned
// server.
func Run(addr string, srv *Server, opts ...grpc.ServerOption) (*grpc.Server, error) {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	gs := NewGRPCServer(srv, opts...)
	go func() {
		if err := gs.Serve(lis); err != nil {
			srv.log.Error("grpc server stopped", "addr", addr, "err", err)
		}
	}()
	return gs, nil
}
