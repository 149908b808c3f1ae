package controllers

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

type inventoryItemDTO struct {
	IngredientID  uuid.UUID         `json:"ingredientId"`
	Name          string            `json:"name"`
	Unit          string            `json:"unit"`
	CurrentStock  decimal.Decimal   `json:"currentStock"`
	MinStockLevel decimal.Decimal   `json:"minStockLevel"`
	MaxStockLevel decimal.Decimal   `json:"maxStockLevel"`
	Status        enums.StockStatus `json:"status"`
	LastUpdated   time.Time         `json:"lastUpdated"`
}

func toInventoryItem(item models.InventoryItem) inventoryItemDTO {
	return inventoryItemDTO{
		IngredientID:  item.IngredientID,
		Name:          item.Name,
		Unit:          item.Unit,
		CurrentStock:  item.CurrentStock,
		MinStockLevel: item.MinStockLevel,
		MaxStockLevel: item.MaxStockLevel,
		Status:        item.Status,
		LastUpdated:   item.LastUpdated,
	}
}

func toInventoryItems(items []models.InventoryItem) []inventoryItemDTO {
	out := make([]inventoryItemDTO, 0, len(items))
	for _, item := range items {
		out = append(out, toInventoryItem(item))
	}
	return out
}

type adjustmentDTO struct {
	ID            uuid.UUID              `json:"id"`
	IngredientID  uuid.UUID              `json:"ingredientId"`
	Reason        enums.AdjustmentReason `json:"reason"`
	Delta         decimal.Decimal        `json:"delta"`
	PreviousStock decimal.Decimal        `json:"previousStock"`
	NewStock      decimal.Decimal        `json:"newStock"`
	Note          *string                `json:"note,omitempty"`
	RecordedBy    string                 `json:"recordedBy"`
	CreatedAt     time.Time              `json:"createdAt"`
}

func toAdjustment(a models.StockAdjustment) adjustmentDTO {
	return adjustmentDTO{
		ID:            a.ID,
		IngredientID:  a.IngredientID,
		Reason:        a.Reason,
		Delta:         a.Delta,
		PreviousStock: a.PreviousStock,
		NewStock:      a.NewStock,
		Note:          a.Note,
		RecordedBy:    a.RecordedBy,
		CreatedAt:     a.CreatedAt,
	}
}

type menuIngredientDTO struct {
	IngredientID   uuid.UUID       `json:"ingredientId"`
	PortionPerUnit decimal.Decimal `json:"portionPerUnit"`
	Required       bool            `json:"required"`
}

type menuItemDTO struct {
	ID          uuid.UUID            `json:"id"`
	Name        string               `json:"name"`
	Status      enums.MenuItemStatus `json:"status"`
	Ingredients []menuIngredientDTO  `json:"ingredients"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

func toMenuItem(item models.MenuItem) menuItemDTO {
	ingredients := make([]menuIngredientDTO, 0, len(item.Ingredients))
	for _, ing := range item.Ingredients {
		ingredients = append(ingredients, menuIngredientDTO{
			IngredientID:   ing.IngredientID,
			PortionPerUnit: ing.PortionPerUnit,
			Required:       ing.Required,
		})
	}
	return menuItemDTO{
		ID:          item.ID,
		Name:        item.Name,
		Status:      item.Status,
		Ingredients: ingredients,
		UpdatedAt:   item.UpdatedAt,
	}
}

type consumptionRecordDTO struct {
	ID               uuid.UUID               `json:"id"`
	OrderID          uuid.UUID               `json:"orderId"`
	MenuItemID       uuid.UUID               `json:"menuItemId"`
	IngredientID     uuid.UUID               `json:"ingredientId"`
	LineIndex        int                     `json:"lineIndex"`
	QuantityConsumed decimal.Decimal         `json:"quantityConsumed"`
	Unit             string                  `json:"unit"`
	Reason           enums.ConsumptionReason `json:"reason"`
	RecordedBy       string                  `json:"recordedBy"`
	RecordedAt       time.Time               `json:"recordedAt"`
}

func toConsumptionRecords(records []models.ConsumptionRecord) []consumptionRecordDTO {
	out := make([]consumptionRecordDTO, 0, len(records))
	for _, r := range records {
		out = append(out, consumptionRecordDTO{
			ID:               r.ID,
			OrderID:          r.OrderID,
			MenuItemID:       r.MenuItemID,
			IngredientID:     r.IngredientID,
			LineIndex:        r.LineIndex,
			QuantityConsumed: r.QuantityConsumed,
			Unit:             r.Unit,
			Reason:           r.Reason,
			RecordedBy:       r.RecordedBy,
			RecordedAt:       r.RecordedAt,
		})
	}
	return out
}

type alertDTO struct {
	ID             uuid.UUID       `json:"id"`
	Type           enums.AlertType `json:"type"`
	RelatedID      uuid.UUID       `json:"relatedId"`
	IsResolved     bool            `json:"isResolved"`
	StockAtTrigger decimal.Decimal `json:"stockAtTrigger"`
	Message        string          `json:"message"`
	CreatedAt      time.Time       `json:"createdAt"`
	ResolvedAt     *time.Time      `json:"resolvedAt,omitempty"`
}

func toAlert(a models.StockAlert) alertDTO {
	return alertDTO{
		ID:             a.ID,
		Type:           a.Type,
		RelatedID:      a.RelatedID,
		IsResolved:     a.IsResolved,
		StockAtTrigger: a.StockAtTrigger,
		Message:        a.Message,
		CreatedAt:      a.CreatedAt,
		ResolvedAt:     a.ResolvedAt,
	}
}

type notificationDTO struct {
	ID        uuid.UUID              `json:"id"`
	Type      enums.NotificationType `json:"type"`
	RelatedID uuid.UUID              `json:"relatedId"`
	Title     string                 `json:"title"`
	Message   string                 `json:"message"`
	ReadAt    *time.Time             `json:"readAt,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

func toNotifications(rows []models.Notification) []notificationDTO {
	out := make([]notificationDTO, 0, len(rows))
	for _, n := range rows {
		out = append(out, notificationDTO{
			ID:        n.ID,
			Type:      n.Type,
			RelatedID: n.RelatedID,
			Title:     n.Title,
			Message:   n.Message,
			ReadAt:    n.ReadAt,
			CreatedAt: n.CreatedAt,
		})
	}
	return out
}
