package gateway

import (
	"fmt"
	"math/rand"

	"order-payments/internal/models"
)

// Strategy decides which mock endpoint a charge is routed to
type Strategy string

const (
	StrategyAlwaysSuccess Strategy = "always_success"
	StrategyAlwaysFailure Strategy = "always_failure"
	StrategyAmountBased   Strategy = "amount_based"
	StrategyRandom        Strategy = "random"
)

// ParseStrategy validates a configured strategy name. Empty selects amount_based.
func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(s) {
	case "":
		return StrategyAmountBased, nil
	case StrategyAlwaysSuccess, StrategyAlwaysFailure, StrategyAmountBased, StrategyRandom:
		return Strategy(s), nil
	}
	return "", fmt.Errorf("invalid mock strategy %q", s)
}

// Endpoint returns the gateway path the order is charged against
func (s Strategy) Endpoint(order *models.Order) string {
	switch s {
	case StrategyAlwaysSuccess:
		return EndpointSuccess
	case StrategyAlwaysFailure:
		return EndpointFailure
	case StrategyRandom:
		if rand.Intn(2) == 1 {
			return EndpointSuccess
		}
		return EndpointFailure
	default:
		return endpointByAmount(order)
	}
}

// endpointByAmount routes even cent amounts to success and odd ones to failure
func endpointByAmount(order *models.Order) string {
	if order.AmountInCents()%2 == 0 {
		return EndpointSuccess
	}
	return EndpointFailure
}
