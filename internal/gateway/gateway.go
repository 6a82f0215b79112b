package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"order-payments/internal/models"
)

// ErrGatewayUnavailable is returned when the gateway cannot be reached at all
var ErrGatewayUnavailable = errors.New("payment gateway unavailable")

// Gateway status values recorded on normalized results
const (
	StatusApproved  = "approved"
	StatusDeclined  = "declined"
	StatusHTTPError = "http_error"
	StatusError     = "error"
	StatusUnknown   = "unknown"
)

// Mock endpoints exposed by the settlement gateway
const (
	EndpointSuccess = "/payment-success"
	EndpointFailure = "/payment-failed"
)

// Client charges orders against the settlement gateway.
// Charge never returns an error: every failure is folded into a declined result.
type Client interface {
	Charge(ctx context.Context, order *models.Order) *ChargeResult
	HealthCheck(ctx context.Context) error
}

// ChargeResult is the normalized outcome of one charge call
type ChargeResult struct {
	Success       bool            `json:"success"`
	Message       string          `json:"message"`
	ExternalID    *string         `json:"external_id"`
	GatewayStatus string          `json:"gateway_status"`
	Data          json.RawMessage `json:"data"`
	HTTPStatus    int             `json:"http_status"`
	Endpoint      string          `json:"mock_endpoint,omitempty"`
	Strategy      Strategy        `json:"mock_strategy,omitempty"`
}

// Payload encodes the result as the audit document stored with the payment
func (r *ChargeResult) Payload() (models.JSONPayload, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("failed to encode charge result: %w", err)
	}
	return models.JSONPayload(b), nil
}

// TransactionID returns the external id or an empty string
func (r *ChargeResult) TransactionID() string {
	if r.ExternalID == nil {
		return ""
	}
	return *r.ExternalID
}

// RetryBudget is the worst-case duration of a charge when every try times out
func RetryBudget(timeout time.Duration, retries int, delay time.Duration) time.Duration {
	if retries < 1 {
		retries = 1
	}
	return time.Duration(retries)*timeout + time.Duration(retries-1)*delay
}

// chargeRequest is the wire body posted to the gateway
type chargeRequest struct {
	OrderID      int64       `json:"order_id"`
	Amount       json.Number `json:"amount"`
	CustomerName string      `json:"customer_name"`
	Currency     string      `json:"currency"`
	Timestamp    string      `json:"timestamp"`
	Reference    string      `json:"reference"`
	MockStrategy Strategy    `json:"mock_strategy"`
}

// chargeResponse is the subset of the gateway body the client interprets
type chargeResponse struct {
	Status        string  `json:"status"`
	Message       string  `json:"message"`
	TransactionID *string `json:"transaction_id"`
}

func buildRequest(order *models.Order, strategy Strategy, now time.Time) chargeRequest {
	return chargeRequest{
		OrderID:      order.ID,
		Amount:       json.Number(order.Amount.StringFixed(2)),
		CustomerName: order.CustomerName,
		Currency:     "USD",
		Timestamp:    now.UTC().Format(time.RFC3339Nano),
		Reference:    fmt.Sprintf("ORD_%d_%d", order.ID, now.Unix()),
		MockStrategy: strategy,
	}
}

func errorResult(message string, httpStatus int) *ChargeResult {
	return &ChargeResult{
		Success:       false,
		Message:       message,
		GatewayStatus: StatusError,
		HTTPStatus:    httpStatus,
	}
}
