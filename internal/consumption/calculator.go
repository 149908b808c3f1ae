package consumption

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/internal/batch"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
)

// Fetcher is the batch read side used by the calculator.
type Fetcher interface {
	FetchMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error)
	FetchInventory(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error)
}

// Calculator turns order lines into one aggregated demand per ingredient.
type Calculator struct {
	fetcher Fetcher
}

// NewCalculator builds a calculator over the batch fetch layer.
func NewCalculator(fetcher Fetcher) *Calculator {
	return &Calculator{fetcher: fetcher}
}

// Calculate resolves every line and sums demand across the whole order
// before anything is validated against stock.
func (c *Calculator) Calculate(ctx context.Context, orderID uuid.UUID, lines []LineItem) (*Plan, error) {
	if err := validateLines(orderID, lines); err != nil {
		return nil, err
	}

	menuIDs := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		menuIDs = append(menuIDs, line.MenuItemID)
	}
	menuItems, err := c.fetcher.FetchMenuItems(ctx, menuIDs)
	if err != nil {
		return nil, err
	}
	if missing := batch.Missing(menuIDs, menuItems); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownMenuItem, "order references unknown menu items").
			WithDetails(map[string]any{"menuItemIds": missing})
	}

	plan := &Plan{
		OrderID:   orderID,
		Digest:    LinesDigest(lines),
		Demand:    make(map[uuid.UUID]decimal.Decimal),
		MenuItems: menuItems,
	}
	ingredientIDs := make([]uuid.UUID, 0)
	for index, line := range lines {
		item := menuItems[line.MenuItemID]
		ordered := decimal.NewFromInt(int64(line.Quantity))
		for _, ingredient := range item.Ingredients {
			qty := ingredient.PortionPerUnit.Mul(ordered)
			plan.Demand[ingredient.IngredientID] = plan.Demand[ingredient.IngredientID].Add(qty)
			plan.Provenance = append(plan.Provenance, Contribution{
				IngredientID: ingredient.IngredientID,
				MenuItemID:   item.ID,
				LineIndex:    index,
				Quantity:     qty,
			})
			ingredientIDs = append(ingredientIDs, ingredient.IngredientID)
		}
	}

	inventory, err := c.fetcher.FetchInventory(ctx, ingredientIDs)
	if err != nil {
		return nil, err
	}
	if missing := batch.Missing(ingredientIDs, inventory); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeUnknownIngredient, "menu item references unknown ingredients").
			WithDetails(map[string]any{"ingredientIds": missing})
	}
	plan.Inventory = inventory
	return plan, nil
}

func validateLines(orderID uuid.UUID, lines []LineItem) error {
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}
	if len(lines) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "order has no line items")
	}
	for i, line := range lines {
		if line.MenuItemID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "line item menu item id is required").
				WithDetails(map[string]any{"lineIndex": i})
		}
		if line.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "line item quantity must be positive").
				WithDetails(map[string]any{"lineIndex": i})
		}
	}
	return nil
}
