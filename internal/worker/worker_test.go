package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"order-payments/internal/broker"
	"order-payments/internal/models"
	"order-payments/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

type mockProcessor struct {
	mock.Mock
}

func (m *mockProcessor) ProcessPayment(ctx context.Context, orderID int64) (*service.PaymentResult, error) {
	args := m.Called(ctx, orderID)
	if r := args.Get(0); r != nil {
		return r.(*service.PaymentResult), args.Error(1)
	}
	return nil, args.Error(1)
}

type mockLedger struct {
	mock.Mock
}

func (m *mockLedger) IsEventProcessed(ctx context.Context, eventID string) (bool, error) {
	args := m.Called(ctx, eventID)
	return args.Bool(0), args.Error(1)
}

func (m *mockLedger) MarkEventProcessed(ctx context.Context, eventID, eventType string) error {
	return m.Called(ctx, eventID, eventType).Error(0)
}

func newEvent(orderID int64) *models.PaymentRequestedEvent {
	return &models.PaymentRequestedEvent{
		BaseEvent: models.NewBaseEvent(models.EventTypePaymentRequested),
		OrderID:   orderID,
	}
}

func TestHandlePaymentRequested_Processes(t *testing.T) {
	proc, ledger := new(mockProcessor), new(mockLedger)
	event := newEvent(7)

	ledger.On("IsEventProcessed", mock.Anything, event.EventID).Return(false, nil)
	proc.On("ProcessPayment", mock.Anything, int64(7)).Return(&service.PaymentResult{
		Payment: &models.Payment{ID: 1, OrderID: 7, Status: models.PaymentStatusSuccess},
		Order:   &models.Order{ID: 7, Status: models.OrderStatusPaid},
	}, nil)
	ledger.On("MarkEventProcessed", mock.Anything, event.EventID, models.EventTypePaymentRequested).Return(nil)

	w := NewPaymentWorker(nil, proc, ledger)
	assert.NoError(t, w.HandlePaymentRequested(context.Background(), event))

	proc.AssertExpectations(t)
	ledger.AssertExpectations(t)
}

func TestHandlePaymentRequested_SkipsDuplicates(t *testing.T) {
	proc, ledger := new(mockProcessor), new(mockLedger)
	event := newEvent(7)
	ledger.On("IsEventProcessed", mock.Anything, event.EventID).Return(true, nil)

	w := NewPaymentWorker(nil, proc, ledger)
	assert.NoError(t, w.HandlePaymentRequested(context.Background(), event))

	proc.AssertNotCalled(t, "ProcessPayment", mock.Anything, mock.Anything)
}

func TestHandlePaymentRequested_RejectionIsFinal(t *testing.T) {
	proc, ledger := new(mockProcessor), new(mockLedger)
	event := newEvent(7)

	ledger.On("IsEventProcessed", mock.Anything, event.EventID).Return(false, nil)
	proc.On("ProcessPayment", mock.Anything, int64(7)).
		Return(nil, fmt.Errorf("order 7: %w", service.ErrAlreadyPaid))
	ledger.On("MarkEventProcessed", mock.Anything, event.EventID, mock.Anything).Return(nil)

	w := NewPaymentWorker(nil, proc, ledger)
	assert.NoError(t, w.HandlePaymentRequested(context.Background(), event))
	ledger.AssertCalled(t, "MarkEventProcessed", mock.Anything, event.EventID, mock.Anything)
}

func TestHandlePaymentRequested_BusyOrderRetriedUntilLockFrees(t *testing.T) {
	proc, ledger := new(mockProcessor), new(mockLedger)
	event := newEvent(7)

	ledger.On("IsEventProcessed", mock.Anything, event.EventID).Return(false, nil)
	proc.On("ProcessPayment", mock.Anything, int64(7)).
		Return(nil, fmt.Errorf("order 7: %w", service.ErrConcurrentAttempt)).Once()
	proc.On("ProcessPayment", mock.Anything, int64(7)).Return(&service.PaymentResult{
		Payment: &models.Payment{ID: 2, OrderID: 7, Status: models.PaymentStatusSuccess},
		Order:   &models.Order{ID: 7, Status: models.OrderStatusPaid},
	}, nil).Once()
	ledger.On("MarkEventProcessed", mock.Anything, event.EventID, models.EventTypePaymentRequested).Return(nil)

	w := NewPaymentWorker(nil, proc, ledger).WithRetry(time.Millisecond, time.Second)
	assert.NoError(t, w.HandlePaymentRequested(context.Background(), event))

	proc.AssertNumberOfCalls(t, "ProcessPayment", 2)
	ledger.AssertExpectations(t)
}

func TestHandlePaymentRequested_BusyPastWindowIsRedelivered(t *testing.T) {
	proc, ledger := new(mockProcessor), new(mockLedger)
	event := newEvent(7)

	ledger.On("IsEventProcessed", mock.Anything, event.EventID).Return(false, nil)
	proc.On("ProcessPayment", mock.Anything, int64(7)).
		Return(nil, fmt.Errorf("order 7: %w", service.ErrConcurrentAttempt))

	w := NewPaymentWorker(nil, proc, ledger).WithRetry(time.Millisecond, 20*time.Millisecond)
	err := w.HandlePaymentRequested(context.Background(), event)

	assert.ErrorIs(t, err, broker.ErrRetryLater)
	assert.ErrorIs(t, err, service.ErrConcurrentAttempt)
	assert.Greater(t, len(proc.Calls), 1)
	ledger.AssertNotCalled(t, "MarkEventProcessed", mock.Anything, mock.Anything, mock.Anything)
}

func TestHandlePaymentRequested_RejectionIsNotRetried(t *testing.T) {
	proc, ledger := new(mockProcessor), new(mockLedger)
	event := newEvent(7)

	ledger.On("IsEventProcessed", mock.Anything, event.EventID).Return(false, nil)
	proc.On("ProcessPayment", mock.Anything, int64(7)).
		Return(nil, fmt.Errorf("order 7: %w", service.ErrTooManyAttempts))
	ledger.On("MarkEventProcessed", mock.Anything, event.EventID, mock.Anything).Return(nil)

	w := NewPaymentWorker(nil, proc, ledger).WithRetry(time.Millisecond, time.Second)
	assert.NoError(t, w.HandlePaymentRequested(context.Background(), event))

	proc.AssertNumberOfCalls(t, "ProcessPayment", 1)
}

func TestHandlePaymentRequested_InfrastructureErrorIsRetried(t *testing.T) {
	proc, ledger := new(mockProcessor), new(mockLedger)
	event := newEvent(7)

	ledger.On("IsEventProcessed", mock.Anything, event.EventID).Return(false, nil)
	proc.On("ProcessPayment", mock.Anything, int64(7)).Return(nil, errors.New("connection reset"))

	w := NewPaymentWorker(nil, proc, ledger).WithRetry(time.Millisecond, 20*time.Millisecond)
	err := w.HandlePaymentRequested(context.Background(), event)

	assert.ErrorIs(t, err, broker.ErrRetryLater)
}
