package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Order represents a customer order awaiting settlement
type Order struct {
	ID           int64           `db:"id" json:"id"`
	CustomerName string          `db:"customer_name" json:"customer_name"`
	Amount       decimal.Decimal `db:"amount" json:"amount"`
	Status       OrderStatus     `db:"status" json:"status"`
	CreatedAt    time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time       `db:"updated_at" json:"updated_at"`

	// PaymentAttempts is only populated by queries that join the payment count
	PaymentAttempts int `db:"payment_attempts" json:"payment_attempts"`
}

// AmountInCents converts the order amount to integer cents, rounding half away from zero
func (o *Order) AmountInCents() int64 {
	return o.Amount.Shift(2).Round(0).IntPart()
}

// Payment represents a single settlement attempt against an order
type Payment struct {
	ID               int64         `db:"id" json:"id"`
	OrderID          int64         `db:"order_id" json:"order_id"`
	Status           PaymentStatus `db:"status" json:"status"`
	ExternalResponse JSONPayload   `db:"external_response" json:"external_response,omitempty"`
	CreatedAt        time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time     `db:"updated_at" json:"updated_at"`
}

// IsSuccessful reports whether the gateway approved the attempt
func (p *Payment) IsSuccessful() bool {
	return p.Status == PaymentStatusSuccess
}

// ExternalMessage returns the gateway message captured with the attempt
func (p *Payment) ExternalMessage() string {
	var body struct {
		Message string `json:"message"`
	}
	if len(p.ExternalResponse) == 0 || json.Unmarshal(p.ExternalResponse, &body) != nil || body.Message == "" {
		return "no message"
	}
	return body.Message
}

// ExternalTransactionID returns the gateway transaction id, if the gateway issued one
func (p *Payment) ExternalTransactionID() string {
	var body struct {
		ExternalID    *string `json:"external_id"`
		TransactionID *string `json:"transaction_id"`
	}
	if len(p.ExternalResponse) == 0 || json.Unmarshal(p.ExternalResponse, &body) != nil {
		return ""
	}
	if body.ExternalID != nil && *body.ExternalID != "" {
		return *body.ExternalID
	}
	if body.TransactionID != nil {
		return *body.TransactionID
	}
	return ""
}

// ProcessingStats summarises the attempt history of an order
type ProcessingStats struct {
	TotalAttempts      int        `db:"total_attempts" json:"total_attempts"`
	SuccessfulAttempts int        `db:"successful_attempts" json:"successful_attempts"`
	FailedAttempts     int        `db:"failed_attempts" json:"failed_attempts"`
	LastAttemptAt      *time.Time `db:"last_attempt_at" json:"last_attempt,omitempty"`
}

// OrderSummary counts orders per status and aggregates paid revenue
type OrderSummary struct {
	Total             int             `db:"total" json:"total_orders"`
	Pending           int             `db:"pending" json:"pending_orders"`
	Paid              int             `db:"paid" json:"paid_orders"`
	Failed            int             `db:"failed" json:"failed_orders"`
	TotalRevenue      decimal.Decimal `db:"total_revenue" json:"total_revenue"`
	AverageOrderValue decimal.Decimal `db:"average_order_value" json:"average_order_value"`
}

// JSONPayload is a JSON document stored byte for byte in a nullable JSON column
type JSONPayload []byte

// Scan implements sql.Scanner
func (p *JSONPayload) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*p = nil
	case []byte:
		*p = append((*p)[:0], v...)
	case string:
		*p = JSONPayload(v)
	default:
		return fmt.Errorf("unsupported external_response type %T", src)
	}
	return nil
}

// Value implements driver.Valuer
func (p JSONPayload) Value() (driver.Value, error) {
	if len(p) == 0 {
		return nil, nil
	}
	return []byte(p), nil
}

// MarshalJSON emits the stored document unchanged
func (p JSONPayload) MarshalJSON() ([]byte, error) {
	if len(p) == 0 {
		return []byte("null"), nil
	}
	return p, nil
}

// UnmarshalJSON keeps a copy of the raw document
func (p *JSONPayload) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = nil
		return nil
	}
	*p = append((*p)[:0], data...)
	return nil
}
