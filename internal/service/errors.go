package service

import (
	"errors"

	"order-payments/internal/gateway"
)

var (
	ErrOrderNotFound      = errors.New("order not found")
	ErrAlreadyPaid        = errors.New("order has already been paid")
	ErrInvalidOrderState  = errors.New("order is not in a payable state")
	ErrInvalidAmount      = errors.New("order amount must be greater than zero")
	ErrTooManyAttempts    = errors.New("too many failed payment attempts recently")
	ErrConcurrentAttempt  = errors.New("order payment is already being processed")
	ErrInvalidTransition  = errors.New("invalid order status transition")
	ErrInvalidOrderInput  = errors.New("invalid order input")
	ErrGatewayUnavailable = gateway.ErrGatewayUnavailable
)

// Error kinds returned by ErrorKind
const (
	KindNotFound           = "not_found"
	KindAlreadyPaid        = "already_paid"
	KindInvalidState       = "invalid_state"
	KindInvalidAmount      = "invalid_amount"
	KindTooManyAttempts    = "too_many_attempts"
	KindConcurrentAttempt  = "concurrent_attempt"
	KindGatewayUnavailable = "gateway_unavailable"
	KindInvalidTransition  = "invalid_transition"
	KindValidation         = "validation"
	KindInternal           = "internal"
)

var kinds = []struct {
	err  error
	kind string
}{
	{ErrOrderNotFound, KindNotFound},
	{ErrAlreadyPaid, KindAlreadyPaid},
	{ErrInvalidOrderState, KindInvalidState},
	{ErrInvalidAmount, KindInvalidAmount},
	{ErrTooManyAttempts, KindTooManyAttempts},
	{ErrConcurrentAttempt, KindConcurrentAttempt},
	{ErrGatewayUnavailable, KindGatewayUnavailable},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrInvalidOrderInput, KindValidation},
}

// ErrorKind maps err to a stable code for transport layers
func ErrorKind(err error) string {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}
