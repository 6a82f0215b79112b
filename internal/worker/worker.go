package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-payments/internal/broker"
	"order-payments/internal/models"
	"order-payments/internal/service"
	"order-payments/internal/util"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
)

const (
	defaultRetryDelay      = 200 * time.Millisecond
	defaultRetryMaxElapsed = 5 * time.Second
)

// Processor runs a payment attempt
type Processor interface {
	ProcessPayment(ctx context.Context, orderID int64) (*service.PaymentResult, error)
}

// EventLedger records which events were already handled
type EventLedger interface {
	IsEventProcessed(ctx context.Context, eventID string) (bool, error)
	MarkEventProcessed(ctx context.Context, eventID, eventType string) error
}

// PaymentWorker charges orders requested through PAYMENT_REQUESTED events
type PaymentWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	processor    Processor
	ledger       EventLedger
	retryDelay   time.Duration
	retryWindow  time.Duration
	logger       *zap.Logger
}

// NewPaymentWorker creates a new payment worker
func NewPaymentWorker(consumer *broker.Consumer, processor Processor, ledger EventLedger) *PaymentWorker {
	pw := &PaymentWorker{
		consumer:  consumer,
		processor: processor,
		ledger:      ledger,
		retryDelay:  defaultRetryDelay,
		retryWindow: defaultRetryMaxElapsed,
		logger:      util.GetLogger(),
	}
	pw.eventHandler = broker.NewEventHandler()
	pw.eventHandler.OnPaymentRequested(pw.HandlePaymentRequested)
	return pw
}

// WithRetry sets how long a busy order or a transient failure is retried
// before the event is left for redelivery. window should cover the order
// lock lease so a held lock expires within it.
func (pw *PaymentWorker) WithRetry(delay, window time.Duration) *PaymentWorker {
	pw.retryDelay = delay
	pw.retryWindow = window
	return pw
}

// Start consumes until ctx is cancelled
func (pw *PaymentWorker) Start(ctx context.Context) error {
	pw.logger.Info("Starting payment worker")
	return pw.consumer.StartConsuming(ctx, pw.eventHandler.HandleMessage)
}

// Stop stops the payment worker
func (pw *PaymentWorker) Stop() error {
	pw.logger.Info("Stopping payment worker")
	return pw.consumer.Close()
}

// HandlePaymentRequested runs one payment attempt per event. Business
// rejections are final. A held order lock or an infrastructure failure is
// retried in place and only asks for redelivery once the retry window is spent.
func (pw *PaymentWorker) HandlePaymentRequested(ctx context.Context, event *models.PaymentRequestedEvent) error {
	ctx, span := util.StartOrderSpan(ctx, "PaymentWorker.HandlePaymentRequested", event.OrderID)
	defer span.End()

	processed, err := pw.ledger.IsEventProcessed(ctx, event.EventID)
	if err != nil {
		return fmt.Errorf("failed to check event processed: %w: %w", err, broker.ErrRetryLater)
	}
	if processed {
		pw.logger.Info("Event already processed", zap.String("event_id", event.EventID))
		return nil
	}

	result, err := pw.process(ctx, event)
	switch {
	case err == nil:
		pw.logger.Info("Async payment completed",
			zap.Int64("order_id", event.OrderID),
			zap.Int64("payment_id", result.Payment.ID),
			zap.String("payment_status", string(result.Payment.Status)))

	case isRetryable(err):
		util.FailSpan(span, err)
		pw.logger.Error("Payment request still failing after retries",
			zap.Int64("order_id", event.OrderID),
			zap.String("event_id", event.EventID),
			zap.Error(err))
		return fmt.Errorf("payment for order %d: %w: %w", event.OrderID, err, broker.ErrRetryLater)

	default:
		pw.logger.Info("Async payment rejected",
			zap.Int64("order_id", event.OrderID),
			zap.String("reason", service.ErrorKind(err)),
			zap.Error(err))
	}

	if err := pw.ledger.MarkEventProcessed(ctx, event.EventID, event.EventType); err != nil {
		pw.logger.Error("Failed to mark event processed",
			zap.String("event_id", event.EventID), zap.Error(err))
	}
	return nil
}

// process retries busy orders and infrastructure failures with exponential
// back-off. Business rejections stop the retry at once.
func (pw *PaymentWorker) process(ctx context.Context, event *models.PaymentRequestedEvent) (*service.PaymentResult, error) {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = pw.retryDelay
	b.MaxInterval = pw.retryWindow

	return backoff.Retry(ctx, func() (*service.PaymentResult, error) {
		result, err := pw.processor.ProcessPayment(ctx, event.OrderID)
		if err != nil && !isRetryable(err) {
			return nil, backoff.Permanent(err)
		}
		return result, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxElapsedTime(pw.retryWindow),
		backoff.WithNotify(func(err error, next time.Duration) {
			pw.logger.Warn("Retrying payment request",
				zap.Int64("order_id", event.OrderID),
				zap.Duration("next", next),
				zap.Error(err))
		}),
	)
}

func isRetryable(err error) bool {
	return errors.Is(err, service.ErrConcurrentAttempt) || service.ErrorKind(err) == service.KindInternal
}
