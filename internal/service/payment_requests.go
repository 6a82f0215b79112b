package service

import (
	"context"
	"fmt"
	"time"

	"order-payments/internal/models"
	"order-payments/internal/util"

	"go.uber.org/zap"
)

const idempotencyTTL = 24 * time.Hour

// PaymentRequestPublisher hands payment requests to the async worker
type PaymentRequestPublisher interface {
	PublishPaymentRequested(ctx context.Context, event *models.PaymentRequestedEvent) error
}

// IdempotencyStore remembers client supplied request keys
type IdempotencyStore interface {
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) (bool, error)
	GetIdempotencyKey(ctx context.Context, key string) (string, error)
	DelIdempotencyKey(ctx context.Context, key string) error
}

// PaymentRequest is the receipt of an accepted async payment request
type PaymentRequest struct {
	EventID   string `json:"event_id"`
	OrderID   int64  `json:"order_id"`
	Duplicate bool   `json:"duplicate"`
}

// PaymentRequester queues payment attempts for the async worker
type PaymentRequester struct {
	orders    *OrderService
	publisher PaymentRequestPublisher
	keys      IdempotencyStore
	logger    *zap.Logger
}

// NewPaymentRequester creates a requester. keys may be nil, which disables
// idempotency key handling.
func NewPaymentRequester(orders *OrderService, publisher PaymentRequestPublisher, keys IdempotencyStore) *PaymentRequester {
	return &PaymentRequester{
		orders:    orders,
		publisher: publisher,
		keys:      keys,
		logger:    util.GetLogger(),
	}
}

// RequestPayment publishes a payment request for the order. Orders already
// paid are refused up front; every other rule is applied by the worker.
// Repeating a request with the same idempotency key returns the first receipt.
func (r *PaymentRequester) RequestPayment(ctx context.Context, orderID int64, idempotencyKey string) (*PaymentRequest, error) {
	ctx, span := util.StartOrderSpan(ctx, "PaymentRequester.RequestPayment", orderID)
	defer span.End()

	order, err := r.orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusPaid {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrAlreadyPaid)
	}

	event := &models.PaymentRequestedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentRequested),
		OrderID:   orderID,
	}

	var key string
	if idempotencyKey != "" && r.keys != nil {
		key = fmt.Sprintf("pay:%d:%s", orderID, idempotencyKey)
		fresh, err := r.keys.SetIdempotencyKey(ctx, key, event.EventID, idempotencyTTL)
		if err != nil {
			return nil, fmt.Errorf("failed to check idempotency: %w", err)
		}
		if !fresh {
			existing, err := r.keys.GetIdempotencyKey(ctx, key)
			if err != nil {
				return nil, fmt.Errorf("failed to check idempotency: %w", err)
			}
			r.logger.Info("Duplicate payment request detected",
				zap.Int64("order_id", orderID),
				zap.String("idempotency_key", idempotencyKey))
			return &PaymentRequest{EventID: existing, OrderID: orderID, Duplicate: true}, nil
		}
	}

	if err := r.publisher.PublishPaymentRequested(ctx, event); err != nil {
		util.FailSpan(span, err)
		// The event never left; a retry with the same key must publish again.
		if key != "" {
			if derr := r.keys.DelIdempotencyKey(context.WithoutCancel(ctx), key); derr != nil {
				r.logger.Error("Failed to clear idempotency key",
					zap.Int64("order_id", orderID),
					zap.String("idempotency_key", idempotencyKey),
					zap.Error(derr))
			}
		}
		return nil, fmt.Errorf("failed to publish payment request: %w", err)
	}

	r.logger.Info("Payment request queued",
		zap.Int64("order_id", orderID),
		zap.String("event_id", event.EventID))

	return &PaymentRequest{EventID: event.EventID, OrderID: orderID}, nil
}
