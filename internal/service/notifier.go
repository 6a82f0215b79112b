package service

import (
	"context"
	"errors"

	"order-payments/internal/models"
	"order-payments/internal/util"

	"go.uber.org/zap"
)

// Notifier receives order lifecycle events after they are committed
type Notifier interface {
	OrderPaid(ctx context.Context, event *models.OrderPaidEvent) error
	OrderFailed(ctx context.Context, event *models.OrderFailedEvent) error
	OrderReset(ctx context.Context, event *models.OrderResetEvent) error
}

// Notification is a committed event waiting to be delivered
type Notification interface {
	Type() string
	Deliver(ctx context.Context, n Notifier) error
}

type paidNotification struct{ event *models.OrderPaidEvent }

func (p paidNotification) Type() string { return p.event.EventType }
func (p paidNotification) Deliver(ctx context.Context, n Notifier) error {
	return n.OrderPaid(ctx, p.event)
}

type failedNotification struct{ event *models.OrderFailedEvent }

func (f failedNotification) Type() string { return f.event.EventType }
func (f failedNotification) Deliver(ctx context.Context, n Notifier) error {
	return n.OrderFailed(ctx, f.event)
}

type resetNotification struct{ event *models.OrderResetEvent }

func (r resetNotification) Type() string { return r.event.EventType }
func (r resetNotification) Deliver(ctx context.Context, n Notifier) error {
	return n.OrderReset(ctx, r.event)
}

// LogNotifier writes every event to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

func NewLogNotifier() *LogNotifier {
	return &LogNotifier{logger: util.GetLogger()}
}

func (l *LogNotifier) OrderPaid(_ context.Context, e *models.OrderPaidEvent) error {
	l.logger.Info("Order paid",
		zap.Int64("order_id", e.OrderID),
		zap.Int64("payment_id", e.PaymentID),
		zap.String("amount", e.Amount.StringFixed(2)),
		zap.String("customer_name", e.CustomerName),
		zap.String("tx_id", e.TxID))
	return nil
}

func (l *LogNotifier) OrderFailed(_ context.Context, e *models.OrderFailedEvent) error {
	l.logger.Warn("Order payment failed",
		zap.Int64("order_id", e.OrderID),
		zap.Int64("payment_id", e.PaymentID),
		zap.Int("attempts", e.Attempts),
		zap.String("customer_name", e.CustomerName),
		zap.String("gateway_message", e.GatewayMessage))
	return nil
}

func (l *LogNotifier) OrderReset(_ context.Context, e *models.OrderResetEvent) error {
	l.logger.Info("Order reset to pending",
		zap.Int64("order_id", e.OrderID),
		zap.String("previous_status", string(e.PreviousStatus)))
	return nil
}

// MultiNotifier fans events out to every notifier and joins their errors
type MultiNotifier []Notifier

func (m MultiNotifier) OrderPaid(ctx context.Context, e *models.OrderPaidEvent) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.OrderPaid(ctx, e))
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) OrderFailed(ctx context.Context, e *models.OrderFailedEvent) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.OrderFailed(ctx, e))
	}
	return errors.Join(errs...)
}

func (m MultiNotifier) OrderReset(ctx context.Context, e *models.OrderResetEvent) error {
	var errs []error
	for _, n := range m {
		errs = append(errs, n.OrderReset(ctx, e))
	}
	return errors.Join(errs...)
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = MultiNotifier(nil)
)
