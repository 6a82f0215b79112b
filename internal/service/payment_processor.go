package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-payments/internal/gateway"
	"order-payments/internal/lock"
	"order-payments/internal/models"
	"order-payments/internal/store"
	"order-payments/internal/util"

	"go.uber.org/zap"
)

const releaseTimeout = 2 * time.Second

// PaymentStore is the persistence the processor depends on
type PaymentStore interface {
	GetOrderByID(ctx context.Context, id int64) (*models.Order, error)
	CountRecentFailedPayments(ctx context.Context, orderID int64, window time.Duration) (int, error)
	GetProcessingStats(ctx context.Context, orderID int64) (*models.ProcessingStats, error)
	ListPayments(ctx context.Context, orderID int64, limit, offset int) ([]models.Payment, int, error)
	WithTx(ctx context.Context, fn func(store.Tx) error) error
}

// ProcessorConfig holds the payment policy
type ProcessorConfig struct {
	LockLease         time.Duration
	ThrottleWindow    time.Duration
	MaxFailedAttempts int
}

// PaymentResult is a recorded attempt together with the order it settled
type PaymentResult struct {
	Payment *models.Payment `json:"payment"`
	Order   *models.Order   `json:"order"`
}

// PaymentHistory is one page of the attempts recorded for an order
type PaymentHistory struct {
	Order    *models.Order           `json:"-"`
	Payments []models.Payment        `json:"data"`
	Stats    *models.ProcessingStats `json:"stats"`
	Total    int                     `json:"total"`
	Page     int                     `json:"current_page"`
	PerPage  int                     `json:"per_page"`
	LastPage int                     `json:"last_page"`
}

// PaymentProcessor charges orders and records each attempt atomically with
// the resulting order status
type PaymentProcessor struct {
	store    PaymentStore
	gateway  gateway.Client
	locker   lock.Locker
	notifier Notifier
	guard    *AttemptGuard
	machine  OrderStateMachine
	lease    time.Duration
	logger   *zap.Logger
}

func NewPaymentProcessor(
	store PaymentStore,
	gw gateway.Client,
	locker lock.Locker,
	notifier Notifier,
	cfg ProcessorConfig,
) *PaymentProcessor {
	if notifier == nil {
		notifier = NewLogNotifier()
	}
	return &PaymentProcessor{
		store:    store,
		gateway:  gw,
		locker:   locker,
		notifier: notifier,
		guard:    NewAttemptGuard(cfg.ThrottleWindow, cfg.MaxFailedAttempts),
		lease:    cfg.LockLease,
		logger:   util.GetLogger(),
	}
}

// ProcessPayment runs one payment attempt for the order. Business rejections
// return a typed error and write nothing. A declined or failed charge is not
// an error: it is recorded as a failed payment and the order moves to failed.
func (p *PaymentProcessor) ProcessPayment(ctx context.Context, orderID int64) (*PaymentResult, error) {
	ctx, span := util.StartOrderSpan(ctx, "PaymentProcessor.ProcessPayment", orderID)
	defer span.End()

	start := time.Now()
	defer func() {
		util.PaymentProcessingLatency.Observe(time.Since(start).Seconds())
	}()

	handle, err := p.locker.Acquire(ctx, orderID, p.lease)
	if errors.Is(err, lock.ErrBusy) {
		util.OrderLockBusyTotal.Inc()
		util.PaymentRejectionsTotal.WithLabelValues(KindConcurrentAttempt).Inc()
		p.logger.Warn("Payment already in progress", zap.Int64("order_id", orderID))
		return nil, fmt.Errorf("order %d: %w", orderID, ErrConcurrentAttempt)
	}
	if err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	defer p.release(handle)

	order, err := p.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	failures, err := p.store.CountRecentFailedPayments(ctx, orderID, p.guard.Window())
	if err != nil {
		util.FailSpan(span, err)
		return nil, fmt.Errorf("failed to count recent failures: %w", err)
	}

	if err := p.guard.Check(order, failures); err != nil {
		util.PaymentRejectionsTotal.WithLabelValues(ErrorKind(err)).Inc()
		p.logger.Info("Payment rejected",
			zap.Int64("order_id", orderID),
			zap.String("status", string(order.Status)),
			zap.Int("recent_failures", failures),
			zap.Error(err))
		return nil, err
	}

	p.logger.Info("Processing payment",
		zap.Int64("order_id", orderID),
		zap.String("current_status", string(order.Status)),
		zap.String("amount", order.Amount.StringFixed(2)))

	// From here on the attempt runs to completion even if the caller goes away.
	work := context.WithoutCancel(ctx)

	util.PaymentAttemptsTotal.Inc()
	charge := p.gateway.Charge(work, order)

	payload, err := charge.Payload()
	if err != nil {
		util.FailSpan(span, err)
		return nil, err
	}
	payment := &models.Payment{
		OrderID:          orderID,
		Status:           models.PaymentStatusFor(charge.Success),
		ExternalResponse: payload,
	}
	target := models.OrderStatusFailed
	if charge.Success {
		target = models.OrderStatusPaid
	}

	var note Notification
	err = p.store.WithTx(work, func(tx store.Tx) error {
		locked, err := tx.GetOrderForUpdate(work, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
		}
		if err != nil {
			return err
		}
		if locked.Status == models.OrderStatusPaid {
			return fmt.Errorf("order %d: %w", orderID, ErrAlreadyPaid)
		}
		if !locked.Status.CanTransitionTo(target) {
			return fmt.Errorf("order %d %s -> %s: %w", orderID, locked.Status, target, ErrInvalidTransition)
		}
		if err := tx.CreatePayment(work, payment); err != nil {
			return err
		}
		note, err = p.machine.Apply(work, tx, locked, target, payment)
		if err != nil {
			return err
		}
		order = locked
		return nil
	})
	if err != nil {
		// The gateway has already answered; keep its verdict for reconciliation.
		p.logger.Error("Failed to record payment attempt",
			zap.Int64("order_id", orderID),
			zap.Bool("charge_success", charge.Success),
			zap.String("gateway_status", charge.GatewayStatus),
			zap.String("external_id", charge.TransactionID()),
			zap.Error(err))
		util.FailSpan(span, err)
		return nil, err
	}

	if charge.Success {
		util.PaymentSuccessTotal.Inc()
		p.logger.Info("Payment succeeded",
			zap.Int64("order_id", orderID),
			zap.Int64("payment_id", payment.ID),
			zap.String("tx_id", charge.TransactionID()))
	} else {
		util.PaymentFailedTotal.WithLabelValues(charge.GatewayStatus).Inc()
		p.logger.Warn("Payment failed",
			zap.Int64("order_id", orderID),
			zap.Int64("payment_id", payment.ID),
			zap.String("gateway_status", charge.GatewayStatus),
			zap.String("message", charge.Message))
	}

	p.deliver(work, note)

	return &PaymentResult{Payment: payment, Order: order}, nil
}

// ResetOrder returns a failed order to pending under the order lock.
// Resetting a pending order changes nothing.
func (p *PaymentProcessor) ResetOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	ctx, span := util.StartOrderSpan(ctx, "PaymentProcessor.ResetOrder", orderID)
	defer span.End()

	handle, err := p.locker.Acquire(ctx, orderID, p.lease)
	if errors.Is(err, lock.ErrBusy) {
		util.OrderLockBusyTotal.Inc()
		return nil, fmt.Errorf("order %d: %w", orderID, ErrConcurrentAttempt)
	}
	if err != nil {
		return nil, err
	}
	defer p.release(handle)

	var order *models.Order
	var note Notification
	err = p.store.WithTx(ctx, func(tx store.Tx) error {
		locked, err := tx.GetOrderForUpdate(ctx, orderID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
		}
		if err != nil {
			return err
		}
		note, err = p.machine.Apply(ctx, tx, locked, models.OrderStatusPending, nil)
		if err != nil {
			return err
		}
		order = locked
		return nil
	})
	if err != nil {
		util.FailSpan(span, err)
		return nil, err
	}

	p.deliver(ctx, note)
	return order, nil
}

// GetProcessingStats summarises the attempts recorded for an order
func (p *PaymentProcessor) GetProcessingStats(ctx context.Context, orderID int64) (*models.ProcessingStats, error) {
	stats, err := p.store.GetProcessingStats(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to load processing stats: %w", err)
	}
	return stats, nil
}

// ListPayments returns one page of the order's attempts, newest first
func (p *PaymentProcessor) ListPayments(ctx context.Context, orderID int64, page, perPage int) (*PaymentHistory, error) {
	page, perPage = normalizePage(page, perPage)

	order, err := p.loadOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	payments, total, err := p.store.ListPayments(ctx, orderID, perPage, (page-1)*perPage)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	stats, err := p.GetProcessingStats(ctx, orderID)
	if err != nil {
		return nil, err
	}

	return &PaymentHistory{
		Order:    order,
		Payments: payments,
		Stats:    stats,
		Total:    total,
		Page:     page,
		PerPage:  perPage,
		LastPage: lastPage(total, perPage),
	}, nil
}

// GatewayHealth reports whether the settlement gateway is reachable
func (p *PaymentProcessor) GatewayHealth(ctx context.Context) error {
	return p.gateway.HealthCheck(ctx)
}

func (p *PaymentProcessor) loadOrder(ctx context.Context, orderID int64) (*models.Order, error) {
	order, err := p.store.GetOrderByID(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("order %d: %w", orderID, ErrOrderNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load order: %w", err)
	}
	return order, nil
}

func (p *PaymentProcessor) release(h *lock.Handle) {
	ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
	defer cancel()
	if err := p.locker.Release(ctx, h); err != nil {
		p.logger.Error("Failed to release order lock", zap.Int64("order_id", h.OrderID), zap.Error(err))
	}
}

// deliver emits a committed notification. Failures are logged only.
func (p *PaymentProcessor) deliver(ctx context.Context, note Notification) {
	if note == nil {
		return
	}
	switch note.Type() {
	case models.EventTypeOrderPaid:
		util.OrdersPaidTotal.Inc()
	case models.EventTypeOrderFailed:
		util.OrdersFailedTotal.Inc()
	case models.EventTypeOrderReset:
		util.OrdersResetTotal.Inc()
	}
	if err := note.Deliver(ctx, p.notifier); err != nil {
		util.NotificationFailuresTotal.WithLabelValues(note.Type()).Inc()
		p.logger.Error("Failed to deliver order notification",
			zap.String("event_type", note.Type()),
			zap.Error(err))
	}
}
