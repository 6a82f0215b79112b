package store

import (
	"context"
	"fmt"
	"time"

	"order-payments/internal/models"
)

// CreatePayment inserts a payment attempt
func (t *sqlTx) CreatePayment(ctx context.Context, payment *models.Payment) error {
	query := `
		INSERT INTO payments (order_id, status, external_response)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`

	if err := t.tx.GetContext(ctx, payment, query,
		payment.OrderID, payment.Status, payment.ExternalResponse); err != nil {
		return fmt.Errorf("failed to insert payment: %w", err)
	}
	return nil
}

// CountPayments counts every attempt recorded for an order
func (t *sqlTx) CountPayments(ctx context.Context, orderID int64) (int, error) {
	var n int
	err := t.tx.GetContext(ctx, &n, "SELECT COUNT(*) FROM payments WHERE order_id = $1", orderID)
	return n, err
}

// CountRecentFailedPayments counts failed attempts created within window of
// the database clock, the same clock that stamps created_at
func (s *Store) CountRecentFailedPayments(ctx context.Context, orderID int64, window time.Duration) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM payments
		WHERE order_id = $1 AND status = $2
		  AND created_at >= NOW() - make_interval(secs => $3)`,
		orderID, models.PaymentStatusFailed, window.Seconds())
	return n, err
}

// GetProcessingStats aggregates the attempt history of an order
func (s *Store) GetProcessingStats(ctx context.Context, orderID int64) (*models.ProcessingStats, error) {
	var stats models.ProcessingStats
	err := s.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_attempts,
			COUNT(*) FILTER (WHERE status = 'success') AS successful_attempts,
			COUNT(*) FILTER (WHERE status = 'failed') AS failed_attempts,
			MAX(created_at) AS last_attempt_at
		FROM payments
		WHERE order_id = $1`, orderID)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// ListPayments returns a page of attempts for an order, newest first, and the total count
func (s *Store) ListPayments(ctx context.Context, orderID int64, limit, offset int) ([]models.Payment, int, error) {
	var total int
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM payments WHERE order_id = $1", orderID); err != nil {
		return nil, 0, err
	}

	payments := []models.Payment{}
	err := s.db.SelectContext(ctx, &payments,
		"SELECT * FROM payments WHERE order_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2 OFFSET $3",
		orderID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return payments, total, nil
}

// IsEventProcessed checks if an event has been processed
func (s *Store) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		"SELECT EXISTS(SELECT 1 FROM processed_events WHERE event_id = $1)", eventID)
	return exists, err
}

// MarkEventProcessed marks an event as processed
func (s *Store) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO processed_events (event_id, event_type) VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING",
		eventID, eventType)
	return err
}
