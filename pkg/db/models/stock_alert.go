package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// StockAlert is an open or resolved low/out-of-stock condition. At most one
// unresolved row exists per (type, related_id).
type StockAlert struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Type           enums.AlertType `gorm:"column:type;type:text;not null;uniqueIndex:ux_stock_alerts_open,where:is_resolved = false"`
	RelatedID      uuid.UUID       `gorm:"column:related_id;type:uuid;not null;uniqueIndex:ux_stock_alerts_open"`
	IsResolved     bool            `gorm:"column:is_resolved;not null"`
	StockAtTrigger decimal.Decimal `gorm:"column:stock_at_trigger;type:numeric(14,3);not null"`
	Message        string          `gorm:"column:message;type:text;not null"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
	ResolvedAt     *time.Time      `gorm:"column:resolved_at"`
}
