package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/dmehra2102/smart-food-ordering/internal/clock"
	"github.com/dmehra2102/smart-food-ordering/internal/order/application"
	"github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/grpc/orderpb"
	"github.com/dmehra2102/smart-food-ordering/internal/order/infrastructure/memory"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
	"github.com/dmehra2102/smart-food-ordering/pkg/outbox"
)

func newClient(t *testing.T) (orderpb.OrderServiceClient, *outbox.MemoryStore) {
	t.Helper()
	box := outbox.NewMemoryStore()
	coord := application.NewCoordinator(logging.Discard(), memory.NewRepository(box), clock.NewManual(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))

	lis := bufconn.Listen(1 << 20)
	gs := NewGRPCServer(NewServer(logging.Discard(), coord))
	go func() { _ = gs.Serve(lis) }()
	t.Cleanup(gs.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return orderpb.NewOrderServiceClient(conn), box
}

func createRequest() *orderpb.CreateOrderRequest {
	return &orderpb.CreateOrderRequest{
		UserID:       "42",
		RestaurantID: "r-1",
		Items:        []*orderpb.Item{{ItemID: "pizza", Quantity: 2, Price: "12.99"}},
		TotalAmount:  "25.98",
	}
}

func TestCreateAndGetOrder(t *testing.T) {
	client, box := newClient(t)
	ctx := context.Background()

	created, err := client.CreateOrder(ctx, createRequest())
	require.NoError(t, err)
	assert.Equal(t, "PENDING", created.Order.Status)
	assert.Equal(t, "25.98", created.Order.TotalAmount)
	assert.Len(t, box.Events(), 1)

	got, err := client.GetOrder(ctx, &orderpb.GetOrderRequest{OrderID: created.Order.ID})
	require.NoError(t, err)
	assert.Equal(t, created.Order.ID, got.Order.ID)
	require.Len(t, got.Order.Items, 1)
	assert.Equal(t, "12.99", got.Order.Items[0].Price)
}

func TestStatusCodes(t *testing.T) {
	client, box := newClient(t)
	ctx := context.Background()

	req := createRequest()
	req.TotalAmount = "20.00"
	_, err := client.CreateOrder(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))

	req = createRequest()
	req.Items[0].Price = "twelve"
	_, err = client.CreateOrder(ctx, req)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Empty(t, box.Events())

	_, err = client.GetOrder(ctx, &orderpb.GetOrderRequest{OrderID: "missing"})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestListUserOrders(t *testing.T) {
	client, _ := newClient(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := client.CreateOrder(ctx, createRequest())
		require.NoError(t, err)
	}

	resp, err := client.ListUserOrders(ctx, &orderpb.ListUserOrdersRequest{UserID: "42", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int32(3), resp.Total)
	assert.Len(t, resp.Orders, 2)
}
