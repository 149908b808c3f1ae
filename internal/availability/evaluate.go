package availability

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// Blocker is a required ingredient that keeps a menu item unavailable.
type Blocker struct {
	IngredientID uuid.UUID         `json:"ingredientId"`
	Name         string            `json:"name,omitempty"`
	Status       enums.StockStatus `json:"status,omitempty"`
	Missing      bool              `json:"missing,omitempty"`
}

// Verdict is the stock-derived status of a menu item.
type Verdict struct {
	// Status is empty when the stock cannot decide, e.g. a required
	// ingredient has no ledger row.
	Status   enums.MenuItemStatus `json:"status,omitempty"`
	Blockers []Blocker            `json:"blockers,omitempty"`
}

func (v Verdict) cause() *uuid.UUID {
	for _, b := range v.Blockers {
		if !b.Missing {
			id := b.IngredientID
			return &id
		}
	}
	return nil
}

// Evaluate derives the menu item status from its required ingredients. An
// item is active only when every required ingredient is in_stock or
// low_stock, and out_of_stock only when at least one is out_of_stock.
// Status is recomputed from stock and thresholds rather than read from the
// stored column.
func Evaluate(item models.MenuItem, stock map[uuid.UUID]models.InventoryItem) Verdict {
	var (
		verdict    Verdict
		outOfStock bool
		missing    bool
	)
	for _, ingredient := range item.Ingredients {
		if !ingredient.Required {
			continue
		}
		row, ok := stock[ingredient.IngredientID]
		if !ok {
			missing = true
			verdict.Blockers = append(verdict.Blockers, Blocker{IngredientID: ingredient.IngredientID, Missing: true})
			continue
		}
		status := row.DerivedStatus()
		if status.IsAvailable() {
			continue
		}
		outOfStock = true
		verdict.Blockers = append(verdict.Blockers, Blocker{IngredientID: row.IngredientID, Name: row.Name, Status: status})
	}
	switch {
	case outOfStock:
		verdict.Status = enums.MenuItemStatusOutOfStock
	case !missing:
		verdict.Status = enums.MenuItemStatusActive
	}
	return verdict
}
