package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// Notification stores in-app notifications delivered to back-office staff.
type Notification struct {
	ID            uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	SourceEventID uuid.UUID              `gorm:"column:source_event_id;type:uuid;not null;uniqueIndex:ux_notifications_source_event"`
	Type          enums.NotificationType `gorm:"column:type;type:text;not null"`
	RelatedID     uuid.UUID              `gorm:"column:related_id;type:uuid;not null"`
	Title         string                 `gorm:"column:title;type:text;not null"`
	Message       string                 `gorm:"column:message;type:text;not null"`
	ReadAt        *time.Time             `gorm:"column:read_at"`
	CreatedAt     time.Time              `gorm:"column:created_at;autoCreateTime"`
}
