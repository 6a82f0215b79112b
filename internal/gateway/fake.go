package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"order-payments/internal/models"
)

// FakeClient answers charges locally. It is used in tests and when
// GATEWAY_USE_FAKE is set.
type FakeClient struct {
	mu            sync.Mutex
	shouldSucceed bool
	message       string
	txID          string
	timeout       bool
	delay         time.Duration
	calls         []int64
	now           func() time.Time
}

// NewFakeClient returns a fake that approves or declines every charge
func NewFakeClient(shouldSucceed bool) *FakeClient {
	return &FakeClient{shouldSucceed: shouldSucceed, now: time.Now}
}

// ForceSuccess makes every following charge approved with the given message and id
func (f *FakeClient) ForceSuccess(message, txID string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldSucceed = true
	f.timeout = false
	f.message = message
	f.txID = txID
	return f
}

// ForceFailure makes every following charge declined with the given message
func (f *FakeClient) ForceFailure(message string) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shouldSucceed = false
	f.timeout = false
	f.message = message
	f.txID = ""
	return f
}

// SimulateTimeout makes every following charge fail as a transport error
func (f *FakeClient) SimulateTimeout() *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.timeout = true
	return f
}

// WithDelay makes each charge block for d or until ctx is done
func (f *FakeClient) WithDelay(d time.Duration) *FakeClient {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.delay = d
	return f
}

// Calls returns the order ids charged so far, in call order
func (f *FakeClient) Calls() []int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]int64, len(f.calls))
	copy(out, f.calls)
	return out
}

func (f *FakeClient) Charge(ctx context.Context, order *models.Order) *ChargeResult {
	f.mu.Lock()
	f.calls = append(f.calls, order.ID)
	succeed, message, txID, timeout, delay := f.shouldSucceed, f.message, f.txID, f.timeout, f.delay
	f.mu.Unlock()

	endpoint := EndpointFailure
	if succeed {
		endpoint = EndpointSuccess
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			r := errorResult("gateway transport error: "+ctx.Err().Error(), 500)
			r.Endpoint = endpoint
			return r
		}
	}

	if timeout {
		r := errorResult("gateway transport error: request timed out", 500)
		r.Endpoint = endpoint
		return r
	}

	ts := f.now().Unix()
	if succeed {
		if message == "" {
			message = "Payment processed successfully"
		}
		if txID == "" {
			txID = fmt.Sprintf("txn_fake_%d", ts)
		}
		data, _ := json.Marshal(map[string]any{
			"status":         StatusApproved,
			"message":        message,
			"transaction_id": txID,
			"amount":         json.Number(order.Amount.StringFixed(2)),
			"timestamp":      ts,
		})
		return &ChargeResult{
			Success:       true,
			Message:       message,
			ExternalID:    &txID,
			GatewayStatus: StatusApproved,
			Data:          data,
			HTTPStatus:    200,
			Endpoint:      endpoint,
		}
	}

	if message == "" {
		message = "Payment declined - insufficient funds"
	}
	data, _ := json.Marshal(map[string]any{
		"status":     StatusDeclined,
		"message":    message,
		"error_code": "INSUFFICIENT_FUNDS",
		"timestamp":  ts,
	})
	return &ChargeResult{
		Success:       false,
		Message:       message,
		GatewayStatus: StatusDeclined,
		Data:          data,
		HTTPStatus:    200,
		Endpoint:      endpoint,
	}
}

// HealthCheck reports unavailable only while a timeout is simulated
func (f *FakeClient) HealthCheck(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.timeout {
		return fmt.Errorf("%w: simulated timeout", ErrGatewayUnavailable)
	}
	return nil
}

var (
	_ Client = (*HTTPClient)(nil)
	_ Client = (*FakeClient)(nil)
)
