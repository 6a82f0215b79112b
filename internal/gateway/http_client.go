package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"order-payments/internal/models"
	"order-payments/internal/util"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const maxResponseBody = 1 << 20

// Options configures an HTTPClient
type Options struct {
	BaseURL    string
	Timeout    time.Duration
	Retries    int
	RetryDelay time.Duration
	Strategy   Strategy
	HTTP       *http.Client
}

// HTTPClient charges orders against the mock settlement gateway over HTTP
type HTTPClient struct {
	baseURL    string
	timeout    time.Duration
	retries    int
	retryDelay time.Duration
	strategy   Strategy
	http       *http.Client
	logger     *zap.Logger
	now        func() time.Time
}

// NewHTTPClient creates a gateway client
func NewHTTPClient(opts Options) (*HTTPClient, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("gateway base url is required")
	}
	if opts.Timeout <= 0 {
		return nil, errors.New("gateway timeout must be positive")
	}
	if opts.Retries < 1 {
		opts.Retries = 1
	}
	strategy, err := ParseStrategy(string(opts.Strategy))
	if err != nil {
		return nil, err
	}
	httpClient := opts.HTTP
	if httpClient == nil {
		httpClient = &http.Client{}
	}

	return &HTTPClient{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		timeout:    opts.Timeout,
		retries:    opts.Retries,
		retryDelay: opts.RetryDelay,
		strategy:   strategy,
		http:       httpClient,
		logger:     util.GetLogger(),
		now:        time.Now,
	}, nil
}

// Strategy returns the configured endpoint selection strategy
func (c *HTTPClient) Strategy() Strategy {
	return c.strategy
}

// statusError is a non-2xx gateway reply
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("gateway returned HTTP %d", e.code)
}

type rawResponse struct {
	status int
	body   []byte
}

// Charge posts the order to the endpoint chosen by the strategy. Transport
// failures and 5xx replies are retried with a fixed delay; declines are not.
func (c *HTTPClient) Charge(ctx context.Context, order *models.Order) *ChargeResult {
	ctx, span := util.StartOrderSpan(ctx, "GatewayClient.Charge", order.ID)
	defer span.End()

	endpoint := c.strategy.Endpoint(order)
	url := c.baseURL + endpoint
	logFields := []zap.Field{
		zap.Int64("order_id", order.ID),
		zap.String("endpoint", endpoint),
		zap.String("strategy", string(c.strategy)),
		zap.String("amount", order.Amount.StringFixed(2)),
	}

	body, err := json.Marshal(buildRequest(order, c.strategy, c.now()))
	if err != nil {
		return c.annotate(errorResult("failed to encode gateway request: "+err.Error(), 500), endpoint)
	}

	c.logger.Info("Charging order", append(logFields, zap.String("url", url))...)

	start := time.Now()
	attempt := 0
	resp, err := backoff.Retry(ctx, func() (*rawResponse, error) {
		attempt++
		r, err := c.post(ctx, url, body)
		if err != nil {
			c.logger.Warn("Gateway call failed",
				append(logFields, zap.Int("attempt", attempt), zap.Error(err))...)
		}
		return r, err
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(c.retryDelay)),
		backoff.WithMaxTries(uint(c.retries)),
	)
	util.GatewayRequestLatency.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())

	if err != nil {
		var se *statusError
		if errors.As(err, &se) {
			c.logger.Error("Gateway HTTP error",
				append(logFields, zap.Int("http_status", se.code), zap.String("response_body", se.body))...)
			util.GatewayRequestsTotal.WithLabelValues(endpoint, StatusHTTPError).Inc()
			util.FailSpan(span, err)
			return c.annotate(&ChargeResult{
				Success:       false,
				Message:       fmt.Sprintf("gateway HTTP error: %d", se.code),
				GatewayStatus: StatusHTTPError,
				HTTPStatus:    se.code,
			}, endpoint)
		}

		c.logger.Error("Gateway transport error", append(logFields, zap.Error(err))...)
		util.GatewayRequestsTotal.WithLabelValues(endpoint, StatusError).Inc()
		util.FailSpan(span, err)
		return c.annotate(errorResult("gateway transport error: "+err.Error(), 500), endpoint)
	}

	result := normalize(resp)
	c.logger.Info("Gateway response",
		append(logFields,
			zap.Int("http_status", resp.status),
			zap.String("gateway_status", result.GatewayStatus),
			zap.Bool("success", result.Success),
			zap.String("message", result.Message))...)
	util.GatewayRequestsTotal.WithLabelValues(endpoint, result.GatewayStatus).Inc()

	return c.annotate(result, endpoint)
}

// post performs one bounded try. Permanent errors stop the retry loop.
func (c *HTTPClient) post(ctx context.Context, url string, body []byte) (*rawResponse, error) {
	tryCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(tryCtx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "order-payments/1.0")
	req.Header.Set("X-Mock-Strategy", string(c.strategy))

	res, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("failed to read gateway response: %w", err)
	}

	switch {
	case res.StatusCode >= 500:
		return nil, &statusError{code: res.StatusCode, body: string(payload)}
	case res.StatusCode < 200 || res.StatusCode > 299:
		return nil, backoff.Permanent(&statusError{code: res.StatusCode, body: string(payload)})
	}

	return &rawResponse{status: res.StatusCode, body: payload}, nil
}

func (c *HTTPClient) annotate(r *ChargeResult, endpoint string) *ChargeResult {
	r.Endpoint = endpoint
	r.Strategy = c.strategy
	return r
}

// normalize interprets a 2xx body. Only status "approved" counts as success.
func normalize(resp *rawResponse) *ChargeResult {
	var parsed chargeResponse
	if !json.Valid(resp.body) || json.Unmarshal(resp.body, &parsed) != nil {
		return &ChargeResult{
			Success:       false,
			Message:       "malformed gateway response",
			GatewayStatus: StatusUnknown,
			HTTPStatus:    resp.status,
		}
	}

	success := parsed.Status == StatusApproved
	message := parsed.Message
	if message == "" {
		if success {
			message = "payment processed successfully"
		} else {
			message = "payment was declined"
		}
	}
	status := parsed.Status
	if status == "" {
		status = StatusUnknown
	}

	return &ChargeResult{
		Success:       success,
		Message:       message,
		ExternalID:    parsed.TransactionID,
		GatewayStatus: status,
		Data:          json.RawMessage(resp.body),
		HTTPStatus:    resp.status,
	}
}

// HealthCheck probes the gateway base URL with a single bounded request
func (c *HTTPClient) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/", nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, maxResponseBody))

	if res.StatusCode >= 500 {
		return fmt.Errorf("%w: HTTP %d", ErrGatewayUnavailable, res.StatusCode)
	}
	return nil
}
