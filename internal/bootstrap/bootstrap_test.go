package bootstrap

import (
	"context"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmehra2102/smart-food-ordering/internal/config"
	"github.com/dmehra2102/smart-food-ordering/pkg/eventbus"
	"github.com/dmehra2102/smart-food-ordering/pkg/logging"
)

func TestRetry(t *testing.T) {
	got := Retry(config.RetryConfig{InitialInterval: time.Second, MaxInterval: 2 * time.Second, MaxElapsedTime: time.Minute})
	assert.Equal(t, eventbus.RetryConfig{InitialInterval: time.Second, MaxInterval: 2 * time.Second, MaxElapsedTime: time.Minute}, got)
}

func TestOpenBrokerKafka(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)

	b, err := OpenBroker(cfg, logging.Discard())
	require.NoError(t, err)
	assert.IsType(t, &eventbus.Retrying{}, b.Publisher)
	assert.NotNil(t, b.Subscriber)
	assert.NoError(t, b.Close())
}

func TestOpenBrokerUnknownDriver(t *testing.T) {
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Broker.Driver = "carrier-pigeon"

	_, err = OpenBroker(cfg, logging.Discard())
	assert.ErrorContains(t, err, "carrier-pigeon")
}

func TestServeHTTPStopsOnCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	srv := &http.Server{Addr: addr, Handler: http.NotFoundHandler()}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ServeHTTP(ctx, logging.Discard(), srv, time.Second) }()

	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + addr)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServeHTTPReportsListenError(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer lis.Close()

	srv := &http.Server{Addr: lis.Addr().String()}
	err = ServeHTTP(context.Background(), logging.Discard(), srv, time.Second)
	assert.Error(t, err)
}
