// Package lock serializes payment attempts per order with expiring leases.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBusy is returned when another holder owns the order lock
var ErrBusy = errors.New("order lock is held")

// Locker grants at most one live lease per order
type Locker interface {
	Acquire(ctx context.Context, orderID int64, lease time.Duration) (*Handle, error)
	Release(ctx context.Context, h *Handle) error
}

// Handle identifies one granted lease. Releasing it twice is a no-op.
type Handle struct {
	Key     string
	OrderID int64
	Token   string

	released bool
}

// Key returns the lock name for an order
func Key(orderID int64) string {
	return fmt.Sprintf("order_payment:%d", orderID)
}
