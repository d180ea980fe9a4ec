package downstream

import (
	"context"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/grpc/orderpb"
)

// OrderClient calls the order service over gRPC and folds status codes into
// this package's errors.
type OrderClient struct {
	cc orderpb.OrderServiceClient
}

func NewOrderClient(cc grpc.ClientConnInterface) *OrderClient {
	return &OrderClient{cc: orderpb.NewOrderServiceClient(cc)}
}

func DialOrder(addr string) (*OrderClient, *grpc.ClientConn, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, nil, fmt.Errorf("dial order service: %w", err)
	}
	return NewOrderClient(conn), conn, nil
}

func (c *OrderClient) CreateOrder(ctx context.Context, req *orderpb.CreateOrderRequest) (*orderpb.Order, error) {
	resp, err := c.cc.CreateOrder(ctx, req)
	if err != nil {
		return nil, fromStatus(ctx, err)
	}
	return resp.Order, nil
}

func (c *OrderClient) GetOrder(ctx context.Context, id string) (*orderpb.Order, error) {
	resp, err := c.cc.GetOrder(ctx, &orderpb.GetOrderRequest{OrderID: id})
	if err != nil {
		return nil, fromStatus(ctx, err)
	}
	return resp.Order, nil
}

func (c *OrderClient) ListUserOrders(ctx context.Context, userID string, limit, offset int) ([]*orderpb.Order, int, error) {
	resp, err := c.cc.ListUserOrders(ctx, &orderpb.ListUserOrdersRequest{UserID: userID, Limit: int32(limit), Offset: int32(offset)})
	if err != nil {
		return nil, 0, fromStatus(ctx, err)
	}
	return resp.Orders, int(resp.Total), nil
}

func fromStatus(ctx context.Context, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return classify(ctx, "order", err)
	}
	switch st.Code() {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange, codes.AlreadyExists:
		return fmt.Errorf("%w: %s", ErrInvalid, st.Message())
	case codes.NotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, st.Message())
	case codes.DeadlineExceeded:
		return fmt.Errorf("%w: order", ErrTimeout)
	case codes.Canceled:
		if ctx.Err() != nil {
			return classify(ctx, "order", err)
		}
		return fmt.Errorf("%w: order: %s", ErrUnavailable, st.Message())
	default:
		return fmt.Errorf("%w: order: %s: %s", ErrUnavailable, st.Code(), st.Message())
	}
}
