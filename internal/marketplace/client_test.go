package marketplace

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, tokenCalls *int32, orderStatus int) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/auth/o2/token", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","expires_in":3600}`))
	})
	mux.HandleFunc("/orders/v0/orders/", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-amz-access-token") != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if orderStatus != http.StatusOK {
			w.WriteHeader(orderStatus)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"payload":{"AmazonOrderId":"171-001","OrderStatus":"Shipped","PurchaseDate":"2024-05-01T10:00:00Z"}}`))
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(srv *httptest.Server) *Client {
	return NewClient(&Config{
		AuthEndpoint:      srv.URL + "/auth/o2/token",
		APIBaseURL:        srv.URL,
		ClientID:          "client",
		ClientSecret:      "secret",
		RefreshToken:      "refresh",
		RequestsPerSecond: 100,
		RequestTimeout:    5 * time.Second,
	}, slog.New(slog.DiscardHandler))
}

func TestGetOrder(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls, http.StatusOK)
	c := newTestClient(srv)

	order, err := c.GetOrder(context.Background(), "171-001")
	require.NoError(t, err)

	assert.Equal(t, "171-001", order.OrderID)
	assert.Equal(t, "Shipped", order.Status)
	assert.Equal(t, 2024, order.PurchaseDate.Year())
}

func TestTokenIsReused(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls, http.StatusOK)
	c := newTestClient(srv)

	for i := 0; i < 3; i++ {
		_, err := c.GetOrder(context.Background(), "171-001")
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), atomic.LoadInt32(&tokenCalls))
}

func TestGetOrderUpstreamFailure(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls, http.StatusTooManyRequests)
	c := newTestClient(srv)

	_, err := c.GetOrder(context.Background(), "171-001")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}

func TestGetOrderContextCancelled(t *testing.T) {
	var tokenCalls int32
	srv := newTestServer(t, &tokenCalls, http.StatusOK)
	c := newTestClient(srv)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.GetOrder(ctx, "171-001")
	assert.Error(t, err)
}
