package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// MenuItem is the sellable item synced from the menu catalog.
type MenuItem struct {
	ID          uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Name        string               `gorm:"column:name;type:text;not null"`
	Status      enums.MenuItemStatus `gorm:"column:status;type:text;not null"`
	Ingredients []MenuItemIngredient `gorm:"foreignKey:MenuItemID;references:ID"`
	CreatedAt   time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}

// MenuItemIngredient is one entry of a menu item's ordered ingredient list.
type MenuItemIngredient struct {
	MenuItemID     uuid.UUID       `gorm:"column:menu_item_id;type:uuid;primaryKey"`
	IngredientID   uuid.UUID       `gorm:"column:ingredient_id;type:uuid;primaryKey;index:idx_menu_item_ingredients_ingredient"`
	Position       int             `gorm:"column:position;not null"`
	PortionPerUnit decimal.Decimal `gorm:"column:portion_per_unit;type:numeric(14,3);not null"`
	Required       bool            `gorm:"column:required;not null"`
}
