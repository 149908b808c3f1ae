package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// InventoryItem is the stock ledger row for one ingredient. Status is written
// only by the derivation expression that accompanies every stock or
// threshold change.
type InventoryItem struct {
	IngredientID  uuid.UUID         `gorm:"column:ingredient_id;type:uuid;primaryKey"`
	Name          string            `gorm:"column:name;type:text;not null"`
	Unit          string            `gorm:"column:unit;type:text;not null"`
	CurrentStock  decimal.Decimal   `gorm:"column:current_stock;type:numeric(14,3);not null;check:chk_inventory_items_current_stock,current_stock >= 0"`
	MinStockLevel decimal.Decimal   `gorm:"column:min_stock_level;type:numeric(14,3);not null"`
	MaxStockLevel decimal.Decimal   `gorm:"column:max_stock_level;type:numeric(14,3);not null"`
	InitialStock  decimal.Decimal   `gorm:"column:initial_stock;type:numeric(14,3);not null"`
	Status        enums.StockStatus `gorm:"column:status;type:text;not null"`
	LastUpdated   time.Time         `gorm:"column:last_updated;not null"`
	CreatedAt     time.Time         `gorm:"column:created_at;autoCreateTime"`
}

// DerivedStatus recomputes the status from the row's stock and thresholds.
func (i InventoryItem) DerivedStatus() enums.StockStatus {
	return enums.DeriveStockStatus(i.CurrentStock, i.MinStockLevel)
}
