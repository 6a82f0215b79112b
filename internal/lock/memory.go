package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"order-payments/internal/clock"

	"github.com/google/uuid"
)

type lease struct {
	token     string
	expiresAt time.Time
}

// MemoryLocker keeps leases in process memory. It only serializes callers
// sharing the same instance.
type MemoryLocker struct {
	mu     sync.Mutex
	clock  clock.Clock
	leases map[string]lease
}

func NewMemoryLocker(c clock.Clock) *MemoryLocker {
	if c == nil {
		c = clock.New()
	}
	return &MemoryLocker{clock: c, leases: make(map[string]lease)}
}

func (l *MemoryLocker) Acquire(ctx context.Context, orderID int64, d time.Duration) (*Handle, error) {
	if d <= 0 {
		return nil, errors.New("lock lease must be positive")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := Key(orderID)
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[key]; ok && now.Before(cur.expiresAt) {
		return nil, ErrBusy
	}

	token := uuid.NewString()
	l.leases[key] = lease{token: token, expiresAt: now.Add(d)}
	return &Handle{Key: key, OrderID: orderID, Token: token}, nil
}

func (l *MemoryLocker) Release(_ context.Context, h *Handle) error {
	if h == nil || h.released {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if cur, ok := l.leases[h.Key]; ok && cur.token == h.Token {
		delete(l.leases, h.Key)
	}
	h.released = true
	return nil
}

var _ Locker = (*MemoryLocker)(nil)
