package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateIngredient OutboxAggregateType = "ingredient"
	AggregateMenuItem   OutboxAggregateType = "menu_item"
	AggregateStockAlert OutboxAggregateType = "stock_alert"
	AggregateOrder      OutboxAggregateType = "order"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateIngredient,
	AggregateMenuItem,
	AggregateStockAlert,
	AggregateOrder,
}

// IsValid reports whether the value matches the canonical aggregate_type enum.
func (a OutboxAggregateType) IsValid() bool {
	return oneOf(a, validAggregateTypes)
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parse("aggregate type", value, validAggregateTypes)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderConsumed               OutboxEventType = "order_consumed"
	EventStockLevelChanged           OutboxEventType = "stock_level_changed"
	EventStockAlertRaised            OutboxEventType = "stock_alert_raised"
	EventStockAlertResolved          OutboxEventType = "stock_alert_resolved"
	EventMenuItemAvailabilityChanged OutboxEventType = "menu_item_availability_changed"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderConsumed,
	EventStockLevelChanged,
	EventStockAlertRaised,
	EventStockAlertResolved,
	EventMenuItemAvailabilityChanged,
}

// IsValid reports whether the value matches the canonical event_type enum.
func (e OutboxEventType) IsValid() bool {
	return oneOf(e, validOutboxEventTypes)
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parse("event type", value, validOutboxEventTypes)
}

// IsNotification reports whether the event is routed to the notification sink topic.
func (e OutboxEventType) IsNotification() bool {
	switch e {
	case EventStockAlertRaised, EventStockAlertResolved, EventMenuItemAvailabilityChanged:
		return true
	default:
		return false
	}
}

// Aggregate is the aggregate type every event of this type is keyed by.
func (e OutboxEventType) Aggregate() OutboxAggregateType {
	switch e {
	case EventOrderConsumed:
		return AggregateOrder
	case EventStockLevelChanged:
		return AggregateIngredient
	case EventStockAlertRaised, EventStockAlertResolved:
		return AggregateStockAlert
	case EventMenuItemAvailabilityChanged:
		return AggregateMenuItem
	default:
		return ""
	}
}
