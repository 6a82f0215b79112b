package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to OrderStatus
		allowed  bool
	}{
		{OrderStatusPending, OrderStatusPaid, true},
		{OrderStatusPending, OrderStatusFailed, true},
		{OrderStatusPending, OrderStatusPending, false},
		{OrderStatusFailed, OrderStatusPaid, true},
		{OrderStatusFailed, OrderStatusFailed, true},
		{OrderStatusFailed, OrderStatusPending, true},
		{OrderStatusPaid, OrderStatusPaid, false},
		{OrderStatusPaid, OrderStatusFailed, false},
		{OrderStatusPaid, OrderStatusPending, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, tt.from.CanTransitionTo(tt.to))
		})
	}
}

func TestOrderStatusScanRejectsUnknown(t *testing.T) {
	var s OrderStatus
	require.NoError(t, s.Scan([]byte("failed")))
	assert.Equal(t, OrderStatusFailed, s)

	assert.Error(t, s.Scan("PAID"))
	assert.Error(t, s.Scan(42))
	assert.True(t, OrderStatusPaid.IsTerminal())
	assert.False(t, OrderStatusFailed.IsTerminal())
}

func TestAmountInCents(t *testing.T) {
	tests := []struct {
		amount string
		cents  int64
	}{
		{"100.00", 10000},
		{"99.99", 9999},
		{"0.01", 1},
		{"10.005", 1001},
		{"19.994", 1999},
	}

	for _, tt := range tests {
		order := &Order{Amount: decimal.RequireFromString(tt.amount)}
		assert.Equal(t, tt.cents, order.AmountInCents(), tt.amount)
	}
}

func TestPaymentExternalAccessors(t *testing.T) {
	p := &Payment{ExternalResponse: JSONPayload(`{"message":"Insufficient funds","external_id":null,"data":{"transaction_id":"x"}}`)}
	assert.Equal(t, "Insufficient funds", p.ExternalMessage())
	assert.Equal(t, "", p.ExternalTransactionID())

	p = &Payment{ExternalResponse: JSONPayload(`{"external_id":"txn_1"}`)}
	assert.Equal(t, "txn_1", p.ExternalTransactionID())
	assert.Equal(t, "no message", p.ExternalMessage())

	p = &Payment{}
	assert.Equal(t, "no message", p.ExternalMessage())
}

func TestJSONPayloadScan(t *testing.T) {
	var p JSONPayload
	require.NoError(t, p.Scan(nil))
	assert.Nil(t, p)

	require.NoError(t, p.Scan([]byte(`{"a":1}`)))
	assert.JSONEq(t, `{"a":1}`, string(p))

	v, err := JSONPayload(nil).Value()
	require.NoError(t, err)
	assert.Nil(t, v)
}
