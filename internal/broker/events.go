package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"order-payments/internal/models"
	"order-payments/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher publishes order lifecycle events and payment requests
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

func orderKey(orderID int64) string {
	return fmt.Sprintf("order-%d", orderID)
}

// OrderPaid publishes ORDER_PAID
func (ep *EventPublisher) OrderPaid(ctx context.Context, event *models.OrderPaidEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// OrderFailed publishes ORDER_FAILED
func (ep *EventPublisher) OrderFailed(ctx context.Context, event *models.OrderFailedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// OrderReset publishes ORDER_RESET
func (ep *EventPublisher) OrderReset(ctx context.Context, event *models.OrderResetEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// PublishPaymentRequested publishes PAYMENT_REQUESTED for the payment worker
func (ep *EventPublisher) PublishPaymentRequested(ctx context.Context, event *models.PaymentRequestedEvent) error {
	return ep.producer.PublishEvent(ctx, orderKey(event.OrderID), event.EventType, event)
}

// EventHandler routes incoming events by type
type EventHandler struct {
	onPaymentRequested func(context.Context, *models.PaymentRequestedEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnPaymentRequested registers a handler for PAYMENT_REQUESTED events
func (eh *EventHandler) OnPaymentRequested(handler func(context.Context, *models.PaymentRequestedEvent) error) {
	eh.onPaymentRequested = handler
}

// HandleMessage routes messages to the registered handlers. Lifecycle events
// published on the same topic are ignored.
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("failed to unmarshal base event: %w", err)
	}

	switch baseEvent.EventType {
	case models.EventTypePaymentRequested:
		if eh.onPaymentRequested == nil {
			return nil
		}
		var event models.PaymentRequestedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			return fmt.Errorf("failed to unmarshal PaymentRequested event: %w", err)
		}
		return eh.onPaymentRequested(ctx, &event)

	case models.EventTypeOrderPaid, models.EventTypeOrderFailed, models.EventTypeOrderReset:
		return nil

	default:
		eh.logger.Warn("Unhandled event type",
			zap.String("event_type", baseEvent.EventType),
			zap.String("event_id", baseEvent.EventID))
	}

	return nil
}
