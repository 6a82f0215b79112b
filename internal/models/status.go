package models

import "fmt"

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusFailed  OrderStatus = "failed"
)

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending: {OrderStatusPaid, OrderStatusFailed},
	OrderStatusFailed:  {OrderStatusPaid, OrderStatusFailed, OrderStatusPending},
	OrderStatusPaid:    {},
}

// ParseOrderStatus converts a stored or user supplied value into an OrderStatus
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if !status.Valid() {
		return "", fmt.Errorf("invalid order status %q", s)
	}
	return status, nil
}

// Valid reports whether s is one of the known statuses
func (s OrderStatus) Valid() bool {
	_, ok := orderTransitions[s]
	return ok
}

// IsTerminal reports whether no transition may leave s
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusPaid
}

// AcceptsPayment reports whether a payment attempt may start from s
func (s OrderStatus) AcceptsPayment() bool {
	return s == OrderStatusPending || s == OrderStatusFailed
}

// CanTransitionTo reports whether the state machine allows s -> to
func (s OrderStatus) CanTransitionTo(to OrderStatus) bool {
	for _, allowed := range orderTransitions[s] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Label returns a human readable status name
func (s OrderStatus) Label() string {
	switch s {
	case OrderStatusPending:
		return "Pending"
	case OrderStatusPaid:
		return "Paid"
	case OrderStatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Scan implements sql.Scanner and rejects unknown values
func (s *OrderStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported order status type %T", src)
	}
	parsed, err := ParseOrderStatus(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// PaymentStatus is the immutable outcome of a payment attempt
type PaymentStatus string

// Payment statuses
const (
	PaymentStatusSuccess PaymentStatus = "success"
	PaymentStatusFailed  PaymentStatus = "failed"
)

// PaymentStatusFor maps a gateway outcome onto a payment status
func PaymentStatusFor(success bool) PaymentStatus {
	if success {
		return PaymentStatusSuccess
	}
	return PaymentStatusFailed
}

// Label returns a human readable status name
func (s PaymentStatus) Label() string {
	if s == PaymentStatusSuccess {
		return "Succeeded"
	}
	return "Failed"
}

// Scan implements sql.Scanner and rejects unknown values
func (s *PaymentStatus) Scan(src interface{}) error {
	var raw string
	switch v := src.(type) {
	case string:
		raw = v
	case []byte:
		raw = string(v)
	default:
		return fmt.Errorf("unsupported payment status type %T", src)
	}
	switch PaymentStatus(raw) {
	case PaymentStatusSuccess, PaymentStatusFailed:
		*s = PaymentStatus(raw)
		return nil
	}
	return fmt.Errorf("invalid payment status %q", raw)
}
