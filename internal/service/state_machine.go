package service

import (
	"context"
	"fmt"

	"order-payments/internal/models"
	"order-payments/internal/store"
)

// OrderStateMachine applies status transitions inside the caller's transaction
type OrderStateMachine struct{}

// Apply moves order to the target status and returns the notification to
// deliver once the transaction commits. payment is the attempt that caused
// the transition, nil for resets. A pending to pending reset is a no-op and
// returns a nil notification.
func (OrderStateMachine) Apply(ctx context.Context, tx store.Tx, order *models.Order, to models.OrderStatus, payment *models.Payment) (Notification, error) {
	from := order.Status
	if from == models.OrderStatusPending && to == models.OrderStatusPending {
		return nil, nil
	}
	if !to.Valid() || !from.CanTransitionTo(to) {
		return nil, fmt.Errorf("order %d %s -> %s: %w", order.ID, from, to, ErrInvalidTransition)
	}

	if err := tx.UpdateOrderStatus(ctx, order, to); err != nil {
		return nil, err
	}

	switch to {
	case models.OrderStatusPaid:
		event := &models.OrderPaidEvent{
			BaseEvent:    models.NewBaseEvent(models.EventTypeOrderPaid),
			OrderID:      order.ID,
			Amount:       order.Amount,
			CustomerName: order.CustomerName,
		}
		if payment != nil {
			event.PaymentID = payment.ID
			event.TxID = payment.ExternalTransactionID()
		}
		return paidNotification{event}, nil

	case models.OrderStatusFailed:
		attempts, err := tx.CountPayments(ctx, order.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to count payment attempts: %w", err)
		}
		event := &models.OrderFailedEvent{
			BaseEvent:    models.NewBaseEvent(models.EventTypeOrderFailed),
			OrderID:      order.ID,
			Attempts:     attempts,
			CustomerName: order.CustomerName,
		}
		if payment != nil {
			event.PaymentID = payment.ID
			event.GatewayMessage = payment.ExternalMessage()
		}
		return failedNotification{event}, nil

	default:
		return resetNotification{&models.OrderResetEvent{
			BaseEvent:      models.NewBaseEvent(models.EventTypeOrderReset),
			OrderID:        order.ID,
			PreviousStatus: from,
			CustomerName:   order.CustomerName,
		}}, nil
	}
}
