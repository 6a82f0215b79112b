package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"order-payments/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOrder(id int64, amount string) *models.Order {
	return &models.Order{
		ID:           id,
		CustomerName: "Jane Doe",
		Amount:       decimal.RequireFromString(amount),
		Status:       models.OrderStatusPending,
	}
}

func newTestClient(t *testing.T, baseURL string, strategy Strategy) *HTTPClient {
	t.Helper()
	c, err := NewHTTPClient(Options{
		BaseURL:    baseURL,
		Timeout:    200 * time.Millisecond,
		Retries:    3,
		RetryDelay: time.Millisecond,
		Strategy:   strategy,
	})
	require.NoError(t, err)
	c.now = func() time.Time { return time.Unix(1700000000, 0) }
	return c
}

// mockGateway mimics the hosted mock: /payment-success approves, /payment-failed declines
func mockGateway(t *testing.T) (*httptest.Server, *[]string) {
	t.Helper()
	var paths []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		paths = append(paths, r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case EndpointSuccess:
			_, _ = w.Write([]byte(`{"status":"approved","message":"Payment processed successfully","transaction_id":"txn_123"}`))
		case EndpointFailure:
			_, _ = w.Write([]byte(`{"status":"declined","message":"Insufficient funds"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &paths
}

func TestCharge_EvenAmountApproved(t *testing.T) {
	var received chargeRequest
	var headers http.Header
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		headers = r.Header.Clone()
		assert.Equal(t, EndpointSuccess, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&received))
		_, _ = w.Write([]byte(`{"status":"approved","message":"ok","transaction_id":"txn_123"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL, StrategyAmountBased)
	result := c.Charge(context.Background(), newOrder(7, "100.00"))

	assert.True(t, result.Success)
	assert.Equal(t, StatusApproved, result.GatewayStatus)
	assert.Equal(t, "ok", result.Message)
	assert.Equal(t, "txn_123", result.TransactionID())
	assert.Equal(t, 200, result.HTTPStatus)
	assert.Equal(t, EndpointSuccess, result.Endpoint)
	assert.Equal(t, StrategyAmountBased, result.Strategy)

	assert.Equal(t, int64(7), received.OrderID)
	assert.Equal(t, json.Number("100.00"), received.Amount)
	assert.Equal(t, "USD", received.Currency)
	assert.Equal(t, "ORD_7_1700000000", received.Reference)
	assert.Equal(t, StrategyAmountBased, received.MockStrategy)

	assert.Equal(t, "application/json", headers.Get("Content-Type"))
	assert.Equal(t, "application/json", headers.Get("Accept"))
	assert.Equal(t, "amount_based", headers.Get("X-Mock-Strategy"))
	assert.NotEmpty(t, headers.Get("User-Agent"))
}

func TestCharge_OddAmountDeclined(t *testing.T) {
	srv, paths := mockGateway(t)
	c := newTestClient(t, srv.URL, StrategyAmountBased)

	result := c.Charge(context.Background(), newOrder(1, "99.99"))

	assert.False(t, result.Success)
	assert.Equal(t, StatusDeclined, result.GatewayStatus)
	assert.Equal(t, "Insufficient funds", result.Message)
	assert.Nil(t, result.ExternalID)
	assert.Equal(t, []string{EndpointFailure}, *paths)
}

func TestCharge_FixedStrategiesIgnoreAmount(t *testing.T) {
	srv, paths := mockGateway(t)

	ok := newTestClient(t, srv.URL, StrategyAlwaysSuccess).Charge(context.Background(), newOrder(1, "99.99"))
	ko := newTestClient(t, srv.URL, StrategyAlwaysFailure).Charge(context.Background(), newOrder(2, "100.00"))

	assert.True(t, ok.Success)
	assert.False(t, ko.Success)
	assert.Equal(t, []string{EndpointSuccess, EndpointFailure}, *paths)
}

func TestCharge_OnlyApprovedIsSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"pending_review"}`))
	}))
	defer srv.Close()

	result := newTestClient(t, srv.URL, StrategyAlwaysSuccess).Charge(context.Background(), newOrder(1, "10.00"))

	assert.False(t, result.Success)
	assert.Equal(t, "pending_review", result.GatewayStatus)
	assert.Equal(t, "payment was declined", result.Message)
}

func TestCharge_ServerErrorRetriedThenHTTPError(t *testing.T) {
	var tries int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tries, 1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	result := newTestClient(t, srv.URL, StrategyAlwaysSuccess).Charge(context.Background(), newOrder(1, "10.00"))

	assert.False(t, result.Success)
	assert.Equal(t, StatusHTTPError, result.GatewayStatus)
	assert.Equal(t, http.StatusBadGateway, result.HTTPStatus)
	assert.Equal(t, int32(3), atomic.LoadInt32(&tries))
}

func TestCharge_ClientErrorNotRetried(t *testing.T) {
	var tries int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tries, 1)
		w.WriteHeader(http.StatusUnprocessableEntity)
	}))
	defer srv.Close()

	result := newTestClient(t, srv.URL, StrategyAlwaysSuccess).Charge(context.Background(), newOrder(1, "10.00"))

	assert.Equal(t, StatusHTTPError, result.GatewayStatus)
	assert.Equal(t, http.StatusUnprocessableEntity, result.HTTPStatus)
	assert.Equal(t, int32(1), atomic.LoadInt32(&tries))
}

func TestCharge_RecoversAfterTransientFailure(t *testing.T) {
	var tries int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&tries, 1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"status":"approved","transaction_id":"txn_retry"}`))
	}))
	defer srv.Close()

	result := newTestClient(t, srv.URL, StrategyAlwaysSuccess).Charge(context.Background(), newOrder(1, "10.00"))

	assert.True(t, result.Success)
	assert.Equal(t, "txn_retry", result.TransactionID())
	assert.Equal(t, "payment processed successfully", result.Message)
	assert.Equal(t, int32(2), atomic.LoadInt32(&tries))
}

func TestCharge_DeclineNotRetried(t *testing.T) {
	var tries int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tries, 1)
		_, _ = w.Write([]byte(`{"status":"declined"}`))
	}))
	defer srv.Close()

	newTestClient(t, srv.URL, StrategyAlwaysFailure).Charge(context.Background(), newOrder(1, "10.00"))

	assert.Equal(t, int32(1), atomic.LoadInt32(&tries))
}

func TestCharge_MalformedBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html>not json</html>`))
	}))
	defer srv.Close()

	result := newTestClient(t, srv.URL, StrategyAlwaysSuccess).Charge(context.Background(), newOrder(1, "10.00"))

	assert.False(t, result.Success)
	assert.Equal(t, StatusUnknown, result.GatewayStatus)
	assert.Equal(t, 200, result.HTTPStatus)
}

func TestCharge_TimeoutBecomesTransportError(t *testing.T) {
	var tries int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&tries, 1)
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()

	c, err := NewHTTPClient(Options{
		BaseURL:    srv.URL,
		Timeout:    30 * time.Millisecond,
		Retries:    2,
		RetryDelay: time.Millisecond,
		Strategy:   StrategyAlwaysSuccess,
	})
	require.NoError(t, err)

	result := c.Charge(context.Background(), newOrder(1, "10.00"))

	assert.False(t, result.Success)
	assert.Equal(t, StatusError, result.GatewayStatus)
	assert.Equal(t, 500, result.HTTPStatus)
	assert.True(t, strings.HasPrefix(result.Message, "gateway transport error:"))
	assert.Equal(t, int32(2), atomic.LoadInt32(&tries))
}

func TestCharge_UnreachableHost(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	result := newTestClient(t, url, StrategyAlwaysSuccess).Charge(context.Background(), newOrder(1, "10.00"))

	assert.False(t, result.Success)
	assert.Equal(t, StatusError, result.GatewayStatus)
	assert.Equal(t, 500, result.HTTPStatus)
}

func TestChargeResult_PayloadRoundTrip(t *testing.T) {
	srv, _ := mockGateway(t)
	result := newTestClient(t, srv.URL, StrategyAlwaysSuccess).Charge(context.Background(), newOrder(1, "10.00"))

	payload, err := result.Payload()
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(payload, &decoded))
	assert.Equal(t, true, decoded["success"])
	assert.Equal(t, "txn_123", decoded["external_id"])
	assert.Equal(t, "approved", decoded["gateway_status"])
	assert.Equal(t, EndpointSuccess, decoded["mock_endpoint"])
	assert.Equal(t, "always_success", decoded["mock_strategy"])
	assert.Equal(t, "txn_123", decoded["data"].(map[string]any)["transaction_id"])
}

func TestHealthCheck(t *testing.T) {
	srv, _ := mockGateway(t)
	assert.NoError(t, newTestClient(t, srv.URL, StrategyAmountBased).HealthCheck(context.Background()))

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	err := newTestClient(t, down.URL, StrategyAmountBased).HealthCheck(context.Background())
	assert.ErrorIs(t, err, ErrGatewayUnavailable)
}

func TestNewHTTPClient_Validation(t *testing.T) {
	_, err := NewHTTPClient(Options{Timeout: time.Second})
	assert.Error(t, err)

	_, err = NewHTTPClient(Options{BaseURL: "http://x", Timeout: time.Second, Strategy: "coin_flip"})
	assert.Error(t, err)

	c, err := NewHTTPClient(Options{BaseURL: "http://x/", Timeout: time.Second})
	require.NoError(t, err)
	assert.Equal(t, StrategyAmountBased, c.Strategy())
	assert.Equal(t, "http://x", c.baseURL)
}

func TestRetryBudget(t *testing.T) {
	assert.Equal(t, 3800*time.Millisecond, RetryBudget(1200*time.Millisecond, 3, 100*time.Millisecond))
	assert.Equal(t, time.Second, RetryBudget(time.Second, 0, time.Second))
}
