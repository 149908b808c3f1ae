package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// Transition describes one committed stock write for an ingredient.
type Transition struct {
	IngredientID  uuid.UUID
	Name          string
	Unit          string
	PreviousStock decimal.Decimal
	NewStock      decimal.Decimal
	MinStockLevel decimal.Decimal
	OldStatus     enums.StockStatus
	NewStatus     enums.StockStatus
}

// Changed reports whether the derived status moved.
func (t Transition) Changed() bool {
	return t.OldStatus != t.NewStatus
}

// NewTransition builds a transition from the rows read before and after a write.
func NewTransition(before *models.InventoryItem, after models.InventoryItem) Transition {
	t := Transition{
		IngredientID:  after.IngredientID,
		Name:          after.Name,
		Unit:          after.Unit,
		NewStock:      after.CurrentStock,
		MinStockLevel: after.MinStockLevel,
		NewStatus:     after.Status,
	}
	if before != nil {
		t.PreviousStock = before.CurrentStock
		t.OldStatus = before.Status
	}
	return t
}

// TransitionHandler reacts to committed stock writes. Implementations are
// best-effort and never fail the write that produced the transitions.
type TransitionHandler interface {
	HandleTransitions(ctx context.Context, transitions []Transition)
}

// ConsumptionTotals reports the total consumed per ingredient from the ledger.
type ConsumptionTotals interface {
	ConsumedTotals(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error)
}
