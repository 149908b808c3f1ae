// Package registry decides where each outbox event type is published and
// how its payload decodes.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenstock-backend/pkg/config"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/payloads"
)

// EventDescriptor routes one event type.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string
	// PayloadFactory returns a pointer for the payload to be decoded into.
	PayloadFactory func() any
}

// ResolvedEvent is a validated outbox row with its decoded payload.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that will never publish as stored. The relay
// parks it in the DLQ instead of retrying.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

func nonRetryable(format string, args ...any) error {
	return NonRetryableError{Err: fmt.Errorf(format, args...)}
}

// EventRegistry is read-only after construction.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

func factory[T any]() func() any {
	return func() any { return new(T) }
}

// payloadTypes lists every event the engine emits.
var payloadTypes = map[enums.OutboxEventType]func() any{
	enums.EventOrderConsumed:               factory[payloads.OrderConsumedEvent](),
	enums.EventStockLevelChanged:           factory[payloads.StockLevelChangedEvent](),
	enums.EventStockAlertRaised:            factory[payloads.StockAlertEvent](),
	enums.EventStockAlertResolved:          factory[payloads.StockAlertEvent](),
	enums.EventMenuItemAvailabilityChanged: factory[payloads.MenuItemAvailabilityChangedEvent](),
}

// NewEventRegistry sends alert and availability events to the notification
// topic and stock movements to the stock events topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	switch {
	case cfg.StockEventsTopic == "":
		return nil, errors.New("stock events topic is required")
	case cfg.NotificationTopic == "":
		return nil, errors.New("notification topic is required")
	}

	reg := &EventRegistry{entries: make(map[enums.OutboxEventType]EventDescriptor, len(payloadTypes))}
	for eventType, newPayload := range payloadTypes {
		topic := cfg.StockEventsTopic
		if eventType.IsNotification() {
			topic = cfg.NotificationTopic
		}
		reg.entries[eventType] = EventDescriptor{
			EventType:      eventType,
			AggregateType:  eventType.Aggregate(),
			Topic:          topic,
			PayloadFactory: newPayload,
		}
	}
	return reg, nil
}

// Descriptor returns the routing for eventType.
func (r *EventRegistry) Descriptor(eventType enums.OutboxEventType) (EventDescriptor, bool) {
	desc, ok := r.entries[eventType]
	return desc, ok
}

// Resolve validates the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(event models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[event.EventType]
	switch {
	case !ok:
		return nil, nonRetryable("unsupported event type %s", event.EventType)
	case desc.AggregateType != event.AggregateType:
		return nil, nonRetryable("aggregate mismatch: %s events belong to %s, row has %s", event.EventType, desc.AggregateType, event.AggregateType)
	case event.AggregateID == uuid.Nil:
		return nil, nonRetryable("%s row has no aggregate id", event.EventType)
	}

	envelope, err := outbox.DecodeEnvelope(event.Payload)
	if err != nil {
		return nil, nonRetryable("%s: %w", event.EventType, err)
	}
	payload := desc.PayloadFactory()
	if err := json.Unmarshal(envelope.Data, payload); err != nil {
		return nil, nonRetryable("decode %s payload: %w", event.EventType, err)
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
