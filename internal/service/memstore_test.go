package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"order-payments/internal/clock"
	"order-payments/internal/models"
	"order-payments/internal/store"

	"github.com/shopspring/decimal"
)

// memStore is an in-memory store. Transactions run under the store mutex on
// a copy of the data and are applied only when fn succeeds.
type memStore struct {
	mu          sync.Mutex
	clock       clock.Clock
	orders      map[int64]models.Order
	payments    []models.Payment
	nextOrder   int64
	nextPayment int64
	commitErr   error
}

func newMemStore(c clock.Clock) *memStore {
	return &memStore{clock: c, orders: make(map[int64]models.Order)}
}

var (
	_ PaymentStore = (*memStore)(nil)
	_ OrderStore   = (*memStore)(nil)
	_ store.Tx     = (*memTx)(nil)
)

func (s *memStore) seedOrder(name, amount string, status models.OrderStatus) *models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrder++
	now := s.clock.Now()
	o := models.Order{
		ID:           s.nextOrder,
		CustomerName: name,
		Amount:       decimal.RequireFromString(amount),
		Status:       status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	s.orders[o.ID] = o
	return &o
}

func (s *memStore) seedPayment(orderID int64, status models.PaymentStatus, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextPayment++
	s.payments = append(s.payments, models.Payment{
		ID: s.nextPayment, OrderID: orderID, Status: status, CreatedAt: at, UpdatedAt: at,
	})
}

func (s *memStore) setStatus(orderID int64, status models.OrderStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o := s.orders[orderID]
	o.Status = status
	s.orders[orderID] = o
}

func (s *memStore) order(id int64) models.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.orders[id]
}

func (s *memStore) paymentsFor(orderID int64) []models.Payment {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payment
	for _, p := range s.payments {
		if p.OrderID == orderID {
			out = append(out, p)
		}
	}
	return out
}

func (s *memStore) CreateOrder(_ context.Context, order *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextOrder++
	order.ID = s.nextOrder
	order.CreatedAt = s.clock.Now()
	order.UpdatedAt = order.CreatedAt
	s.orders[order.ID] = *order
	return nil
}

func (s *memStore) GetOrderByID(_ context.Context, id int64) (*models.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	for _, p := range s.payments {
		if p.OrderID == id {
			o.PaymentAttempts++
		}
	}
	return &o, nil
}

func (s *memStore) ListOrders(_ context.Context, limit, offset int) ([]models.Order, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	all := make([]models.Order, 0, len(s.orders))
	for _, o := range s.orders {
		all = append(all, o)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].ID > all[j].ID })
	return window(all, limit, offset), len(all), nil
}

func (s *memStore) GetOrderSummary(_ context.Context) (*models.OrderSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sum := &models.OrderSummary{}
	for _, o := range s.orders {
		sum.Total++
		switch o.Status {
		case models.OrderStatusPending:
			sum.Pending++
		case models.OrderStatusPaid:
			sum.Paid++
			sum.TotalRevenue = sum.TotalRevenue.Add(o.Amount)
		case models.OrderStatusFailed:
			sum.Failed++
		}
	}
	if sum.Paid > 0 {
		sum.AverageOrderValue = sum.TotalRevenue.Div(decimal.NewFromInt(int64(sum.Paid))).Round(2)
	}
	return sum, nil
}

func (s *memStore) CountRecentFailedPayments(_ context.Context, orderID int64, window time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	since := s.clock.Now().Add(-window)
	n := 0
	for _, p := range s.payments {
		if p.OrderID == orderID && p.Status == models.PaymentStatusFailed && !p.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (s *memStore) GetProcessingStats(_ context.Context, orderID int64) (*models.ProcessingStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats := &models.ProcessingStats{}
	for _, p := range s.payments {
		if p.OrderID != orderID {
			continue
		}
		stats.TotalAttempts++
		if p.Status == models.PaymentStatusSuccess {
			stats.SuccessfulAttempts++
		} else {
			stats.FailedAttempts++
		}
		if stats.LastAttemptAt == nil || p.CreatedAt.After(*stats.LastAttemptAt) {
			at := p.CreatedAt
			stats.LastAttemptAt = &at
		}
	}
	return stats, nil
}

func (s *memStore) ListPayments(_ context.Context, orderID int64, limit, offset int) ([]models.Payment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var all []models.Payment
	for i := len(s.payments) - 1; i >= 0; i-- {
		if s.payments[i].OrderID == orderID {
			all = append(all, s.payments[i])
		}
	}
	return window(all, limit, offset), len(all), nil
}

func (s *memStore) WithTx(ctx context.Context, fn func(store.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{
		clock:       s.clock,
		orders:      make(map[int64]models.Order, len(s.orders)),
		payments:    append([]models.Payment(nil), s.payments...),
		nextPayment: s.nextPayment,
	}
	for k, v := range s.orders {
		tx.orders[k] = v
	}

	if err := fn(tx); err != nil {
		return err
	}
	if s.commitErr != nil {
		return s.commitErr
	}

	s.orders = tx.orders
	s.payments = tx.payments
	s.nextPayment = tx.nextPayment
	return nil
}

type memTx struct {
	clock       clock.Clock
	orders      map[int64]models.Order
	payments    []models.Payment
	nextPayment int64
}

func (t *memTx) GetOrderForUpdate(_ context.Context, id int64) (*models.Order, error) {
	o, ok := t.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, store.ErrNotFound)
	}
	return &o, nil
}

func (t *memTx) CreatePayment(_ context.Context, p *models.Payment) error {
	t.nextPayment++
	p.ID = t.nextPayment
	p.CreatedAt = t.clock.Now()
	p.UpdatedAt = p.CreatedAt
	t.payments = append(t.payments, *p)
	return nil
}

func (t *memTx) UpdateOrderStatus(_ context.Context, order *models.Order, status models.OrderStatus) error {
	o, ok := t.orders[order.ID]
	if !ok {
		return fmt.Errorf("order %d: %w", order.ID, store.ErrNotFound)
	}
	o.Status = status
	o.UpdatedAt = t.clock.Now()
	t.orders[order.ID] = o
	order.Status = status
	order.UpdatedAt = o.UpdatedAt
	return nil
}

func (t *memTx) CountPayments(_ context.Context, orderID int64) (int, error) {
	n := 0
	for _, p := range t.payments {
		if p.OrderID == orderID {
			n++
		}
	}
	return n, nil
}

func window[T any](all []T, limit, offset int) []T {
	if offset >= len(all) {
		return []T{}
	}
	end := offset + limit
	if end > len(all) {
		end = len(all)
	}
	return all[offset:end]
}
