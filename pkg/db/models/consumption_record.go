package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// ConsumptionRecord is an append-only ledger entry, one per ingredient per
// order line.
type ConsumptionRecord struct {
	ID               uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	IngredientID     uuid.UUID               `gorm:"column:ingredient_id;type:uuid;not null;uniqueIndex:ux_consumption_records_order_line,priority:2;index:idx_consumption_records_ingredient"`
	MenuItemID       uuid.UUID               `gorm:"column:menu_item_id;type:uuid;not null"`
	OrderID          uuid.UUID               `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_consumption_records_order_line,priority:1"`
	LineIndex        int                     `gorm:"column:line_index;not null;uniqueIndex:ux_consumption_records_order_line,priority:3"`
	QuantityConsumed decimal.Decimal         `gorm:"column:quantity_consumed;type:numeric(14,3);not null"`
	Unit             string                  `gorm:"column:unit;type:text;not null"`
	Reason           enums.ConsumptionReason `gorm:"column:reason;type:text;not null"`
	RecordedBy       string                  `gorm:"column:recorded_by;type:text;not null"`
	RecordedAt       time.Time               `gorm:"column:recorded_at;not null"`
}

// StockClaim is the per-order, per-ingredient idempotency key. It is written
// in the same transaction as the ingredient's guarded decrement.
type StockClaim struct {
	OrderID      uuid.UUID       `gorm:"column:order_id;type:uuid;primaryKey"`
	IngredientID uuid.UUID       `gorm:"column:ingredient_id;type:uuid;primaryKey"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:numeric(14,3);not null"`
	OrderDigest  string          `gorm:"column:order_digest;type:text;not null;default:''"`
	CreatedAt    time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// StockAdjustment logs every manual stock write.
type StockAdjustment struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	IngredientID  uuid.UUID              `gorm:"column:ingredient_id;type:uuid;not null;index:idx_stock_adjustments_ingredient"`
	Delta         decimal.Decimal        `gorm:"column:delta;type:numeric(14,3);not null"`
	PreviousStock decimal.Decimal        `gorm:"column:previous_stock;type:numeric(14,3);not null"`
	NewStock      decimal.Decimal        `gorm:"column:new_stock;type:numeric(14,3);not null"`
	Reason        enums.AdjustmentReason `gorm:"column:reason;type:text;not null"`
	Note          *string                `gorm:"column:note;type:text"`
	RecordedBy    string                 `gorm:"column:recorded_by;type:text;not null"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
