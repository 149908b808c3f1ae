package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// StockLevelChangedEvent is emitted for every committed stock write.
type StockLevelChangedEvent struct {
	IngredientID   uuid.UUID         `json:"ingredient_id"`
	Name           string            `json:"name"`
	Unit           string            `json:"unit"`
	PreviousStock  decimal.Decimal   `json:"previous_stock"`
	NewStock       decimal.Decimal   `json:"new_stock"`
	PreviousStatus enums.StockStatus `json:"previous_status"`
	NewStatus      enums.StockStatus `json:"new_status"`
	Cause          string            `json:"cause"`
	OrderID        *uuid.UUID        `json:"order_id,omitempty"`
}

// ConsumedIngredient is one ingredient line of an OrderConsumedEvent.
type ConsumedIngredient struct {
	IngredientID uuid.UUID         `json:"ingredient_id"`
	Quantity     decimal.Decimal   `json:"quantity"`
	NewStock     decimal.Decimal   `json:"new_stock"`
	NewStatus    enums.StockStatus `json:"new_status"`
}

// OrderConsumedEvent summarises a fully committed order.
type OrderConsumedEvent struct {
	OrderID     uuid.UUID            `json:"order_id"`
	Ingredients []ConsumedIngredient `json:"ingredients"`
	ConsumedAt  time.Time            `json:"consumed_at"`
}

// StockAlertEvent is emitted when an alert is raised or resolved.
type StockAlertEvent struct {
	AlertID        uuid.UUID       `json:"alert_id"`
	Type           enums.AlertType `json:"type"`
	IngredientID   uuid.UUID       `json:"ingredient_id"`
	IngredientName string          `json:"ingredient_name"`
	Stock          decimal.Decimal `json:"stock"`
	Unit           string          `json:"unit"`
	Message        string          `json:"message"`
}

// MenuItemAvailabilityChangedEvent is emitted when inventory flips a menu item.
type MenuItemAvailabilityChangedEvent struct {
	MenuItemID   uuid.UUID            `json:"menu_item_id"`
	Name         string               `json:"name"`
	From         enums.MenuItemStatus `json:"from"`
	To           enums.MenuItemStatus `json:"to"`
	IngredientID *uuid.UUID           `json:"ingredient_id,omitempty"`
}
