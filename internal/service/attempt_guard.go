package service

import (
	"fmt"
	"time"

	"order-payments/internal/models"
)

// AttemptGuard decides whether an order may be charged right now
type AttemptGuard struct {
	window      time.Duration
	maxFailures int
}

func NewAttemptGuard(window time.Duration, maxFailures int) *AttemptGuard {
	return &AttemptGuard{window: window, maxFailures: maxFailures}
}

// Window is how far back failed attempts count towards the throttle. The
// store measures it against the clock that stamped the payments.
func (g *AttemptGuard) Window() time.Duration {
	return g.window
}

// Check applies the admission rules in order. recentFailures must count
// failed payments created within Window.
func (g *AttemptGuard) Check(order *models.Order, recentFailures int) error {
	if order.Status == models.OrderStatusPaid {
		return fmt.Errorf("order %d: %w", order.ID, ErrAlreadyPaid)
	}
	if !order.Status.AcceptsPayment() {
		return fmt.Errorf("order %d in status %q: %w", order.ID, order.Status, ErrInvalidOrderState)
	}
	if !order.Amount.IsPositive() {
		return fmt.Errorf("order %d amount %s: %w", order.ID, order.Amount.StringFixed(2), ErrInvalidAmount)
	}
	if recentFailures >= g.maxFailures {
		return fmt.Errorf("order %d has %d failures in the last %s: %w",
			order.ID, recentFailures, g.window, ErrTooManyAttempts)
	}
	return nil
}
