package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Event types
const (
	EventTypeOrderPaid        = "ORDER_PAID"
	EventTypeOrderFailed      = "ORDER_FAILED"
	EventTypeOrderReset       = "ORDER_RESET"
	EventTypePaymentRequested = "PAYMENT_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// NewBaseEvent stamps a fresh event envelope
func NewBaseEvent(eventType string) BaseEvent {
	return BaseEvent{
		EventID:   uuid.New().String(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
	}
}

// OrderPaidEvent published when an order settles
type OrderPaidEvent struct {
	BaseEvent
	OrderID      int64           `json:"order_id"`
	PaymentID    int64           `json:"payment_id"`
	Amount       decimal.Decimal `json:"amount"`
	CustomerName string          `json:"customer_name"`
	TxID         string          `json:"tx_id,omitempty"`
}

// OrderFailedEvent published when a payment attempt leaves the order failed
type OrderFailedEvent struct {
	BaseEvent
	OrderID        int64  `json:"order_id"`
	PaymentID      int64  `json:"payment_id"`
	Attempts       int    `json:"attempts"`
	CustomerName   string `json:"customer_name"`
	GatewayMessage string `json:"gateway_message"`
}

// OrderResetEvent published when a failed order is returned to pending
type OrderResetEvent struct {
	BaseEvent
	OrderID        int64       `json:"order_id"`
	PreviousStatus OrderStatus `json:"previous_status"`
	CustomerName   string      `json:"customer_name"`
}

// PaymentRequestedEvent asks the payment worker to charge an order
type PaymentRequestedEvent struct {
	BaseEvent
	OrderID int64 `json:"order_id"`
}
