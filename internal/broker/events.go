package broker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"till-service/internal/models"
	"till-service/internal/util"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// EventPublisher handles publishing till events. Events are keyed by till so a
// till's history stays ordered within one partition.
type EventPublisher struct {
	producer *Producer
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(producer *Producer) *EventPublisher {
	return &EventPublisher{producer: producer}
}

// PublishSaleSettled publishes SaleSettled event
func (ep *EventPublisher) PublishSaleSettled(ctx context.Context, event *models.SaleSettledEvent) error {
	if err := ep.producer.PublishEvent(ctx, tillKey(event.TillID), event); err != nil {
		return err
	}
	util.EventsPublishedTotal.WithLabelValues(event.EventType).Inc()
	return nil
}

// PublishTransactionReset publishes TransactionReset event
func (ep *EventPublisher) PublishTransactionReset(ctx context.Context, event *models.TransactionResetEvent) error {
	if err := ep.producer.PublishEvent(ctx, tillKey(event.TillID), event); err != nil {
		return err
	}
	util.EventsPublishedTotal.WithLabelValues(event.EventType).Inc()
	return nil
}

func tillKey(tillID string) string {
	return fmt.Sprintf("till-%s", tillID)
}

// ErrMalformedMessage marks a message that can never be handled, so the
// consumer skips it instead of retrying.
var ErrMalformedMessage = errors.New("malformed message")

// EventHandler handles incoming events
type EventHandler struct {
	onSaleSettled      func(context.Context, *models.SaleSettledEvent) error
	onTransactionReset func(context.Context, *models.TransactionResetEvent) error
	logger             *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.GetLogger()}
}

// OnSaleSettled registers a handler for SaleSettled events
func (eh *EventHandler) OnSaleSettled(handler func(context.Context, *models.SaleSettledEvent) error) {
	eh.onSaleSettled = handler
}

// OnTransactionReset registers a handler for TransactionReset events
func (eh *EventHandler) OnTransactionReset(handler func(context.Context, *models.TransactionResetEvent) error) {
	eh.onTransactionReset = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	var baseEvent models.BaseEvent
	if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
		return fmt.Errorf("%w: base event: %v", ErrMalformedMessage, err)
	}

	eh.logger.Debug("Handling event",
		zap.String("event_type", baseEvent.EventType),
		zap.String("event_id", baseEvent.EventID))

	switch baseEvent.EventType {
	case models.EventTypeSaleSettled:
		if eh.onSaleSettled != nil {
			var event models.SaleSettledEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: SaleSettled event: %v", ErrMalformedMessage, err)
			}
			return eh.onSaleSettled(ctx, &event)
		}

	case models.EventTypeTransactionReset:
		if eh.onTransactionReset != nil {
			var event models.TransactionResetEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("%w: TransactionReset event: %v", ErrMalformedMessage, err)
			}
			return eh.onTransactionReset(ctx, &event)
		}

	default:
		eh.logger.Warn("Unhandled event type", zap.String("event_type", baseEvent.EventType))
	}

	return nil
}
