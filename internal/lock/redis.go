package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"order-payments/internal/util"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// LeaseStore is the Redis surface the locker needs
type LeaseStore interface {
	AcquireLock(ctx context.Context, lockKey, token string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, lockKey, token string) (bool, error)
}

// RedisLocker holds leases as SET NX PX keys shared by every instance
type RedisLocker struct {
	store  LeaseStore
	logger *zap.Logger
}

func NewRedisLocker(store LeaseStore) *RedisLocker {
	return &RedisLocker{store: store, logger: util.GetLogger()}
}

func (l *RedisLocker) Acquire(ctx context.Context, orderID int64, lease time.Duration) (*Handle, error) {
	if lease <= 0 {
		return nil, errors.New("lock lease must be positive")
	}
	key := Key(orderID)
	token := uuid.NewString()

	ok, err := l.store.AcquireLock(ctx, key, token, lease)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire order lock: %w", err)
	}
	if !ok {
		return nil, ErrBusy
	}

	l.logger.Debug("Order lock acquired", zap.Int64("order_id", orderID), zap.Duration("lease", lease))
	return &Handle{Key: key, OrderID: orderID, Token: token}, nil
}

// Release drops the lease if it is still ours. An expired lease that was
// taken over by another holder is left untouched.
func (l *RedisLocker) Release(ctx context.Context, h *Handle) error {
	if h == nil || h.released {
		return nil
	}
	deleted, err := l.store.ReleaseLock(ctx, h.Key, h.Token)
	if err != nil {
		return fmt.Errorf("failed to release order lock: %w", err)
	}
	h.released = true
	if !deleted {
		l.logger.Warn("Order lock expired before release", zap.Int64("order_id", h.OrderID))
	}
	return nil
}

var _ Locker = (*RedisLocker)(nil)
