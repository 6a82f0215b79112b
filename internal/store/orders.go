package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"order-payments/internal/models"
)

const orderWithAttempts = `
	SELECT o.*, (SELECT COUNT(*) FROM payments p WHERE p.order_id = o.id) AS payment_attempts
	FROM orders o`

// CreateOrder creates a new order
func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	query := `
		INSERT INTO orders (customer_name, amount, status)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	return s.db.GetContext(ctx, order, query,
		order.CustomerName, order.Amount, order.Status)
}

// GetOrderByID retrieves an order by ID together with its attempt count
func (s *Store) GetOrderByID(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := s.db.GetContext(ctx, &order, orderWithAttempts+" WHERE o.id = $1", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// ListOrders returns a page of orders, newest first, and the total count
func (s *Store) ListOrders(ctx context.Context, limit, offset int) ([]models.Order, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM orders"); err != nil {
		return nil, 0, err
	}

	orders := []models.Order{}
	err := s.db.SelectContext(ctx, &orders,
		orderWithAttempts+" ORDER BY o.created_at DESC, o.id DESC LIMIT $1 OFFSET $2", limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// GetOrderSummary counts orders per status and aggregates paid amounts
func (s *Store) GetOrderSummary(ctx context.Context) (*models.OrderSummary, error) {
	var summary models.OrderSummary
	err := s.db.GetContext(ctx, &summary, `
		SELECT
			COUNT(*) AS total,
			COUNT(*) FILTER (WHERE status = 'pending') AS pending,
			COUNT(*) FILTER (WHERE status = 'paid') AS paid,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed,
			COALESCE(SUM(amount) FILTER (WHERE status = 'paid'), 0) AS total_revenue,
			ROUND(COALESCE(AVG(amount) FILTER (WHERE status = 'paid'), 0), 2) AS average_order_value
		FROM orders`)
	if err != nil {
		return nil, err
	}
	return &summary, nil
}

// GetOrderForUpdate reads the order row and locks it until the transaction ends
func (t *sqlTx) GetOrderForUpdate(ctx context.Context, id int64) (*models.Order, error) {
	var order models.Order
	err := t.tx.GetContext(ctx, &order, "SELECT * FROM orders WHERE id = $1 FOR UPDATE", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateOrderStatus persists the new status and refreshes order in place
func (t *sqlTx) UpdateOrderStatus(ctx context.Context, order *models.Order, status models.OrderStatus) error {
	err := t.tx.GetContext(ctx, &order.UpdatedAt,
		"UPDATE orders SET status = $1, updated_at = NOW() WHERE id = $2 RETURNING updated_at",
		status, order.ID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("order %d: %w", order.ID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("failed to update order status: %w", err)
	}
	order.Status = status
	return nil
}
