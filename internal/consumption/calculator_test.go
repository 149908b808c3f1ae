package consumption

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
)

type fakeFetcher struct {
	menu         map[uuid.UUID]models.MenuItem
	inventory    map[uuid.UUID]models.InventoryItem
	menuErr      error
	inventoryErr error
	inventoryIDs []uuid.UUID
}

func (f *fakeFetcher) FetchMenuItems(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	if f.menuErr != nil {
		return nil, f.menuErr
	}
	out := map[uuid.UUID]models.MenuItem{}
	for _, id := range ids {
		if item, ok := f.menu[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func (f *fakeFetcher) FetchInventory(_ context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error) {
	f.inventoryIDs = ids
	if f.inventoryErr != nil {
		return nil, f.inventoryErr
	}
	out := map[uuid.UUID]models.InventoryItem{}
	for _, id := range ids {
		if item, ok := f.inventory[id]; ok {
			out[id] = item
		}
	}
	return out, nil
}

func menuItem(id uuid.UUID, portions map[uuid.UUID]decimal.Decimal) models.MenuItem {
	item := models.MenuItem{ID: id, Name: "item", Status: enums.MenuItemStatusActive}
	pos := 0
	for ingredient, portion := range portions {
		item.Ingredients = append(item.Ingredients, models.MenuItemIngredient{
			MenuItemID:     id,
			IngredientID:   ingredient,
			Position:       pos,
			PortionPerUnit: portion,
			Required:       true,
		})
		pos++
	}
	return item
}

func stockRow(id uuid.UUID, stock int64) models.InventoryItem {
	return models.InventoryItem{IngredientID: id, Name: "ingredient", Unit: "kg", CurrentStock: decimal.NewFromInt(stock)}
}

func TestCalculateAggregatesDemandAcrossLines(t *testing.T) {
	cheese, dough := uuid.New(), uuid.New()
	pizza, calzone := uuid.New(), uuid.New()
	fetcher := &fakeFetcher{
		menu: map[uuid.UUID]models.MenuItem{
			pizza:   menuItem(pizza, map[uuid.UUID]decimal.Decimal{cheese: decimal.NewFromInt(3), dough: decimal.NewFromInt(1)}),
			calzone: menuItem(calzone, map[uuid.UUID]decimal.Decimal{cheese: decimal.NewFromInt(6)}),
		},
		inventory: map[uuid.UUID]models.InventoryItem{
			cheese: stockRow(cheese, 10),
			dough:  stockRow(dough, 10),
		},
	}

	plan, err := NewCalculator(fetcher).Calculate(context.Background(), uuid.New(), []LineItem{
		{MenuItemID: pizza, Quantity: 2},
		{MenuItemID: calzone, Quantity: 1},
	})
	require.NoError(t, err)

	assert.True(t, plan.Demand[cheese].Equal(decimal.NewFromInt(12)), "cheese demand %s", plan.Demand[cheese])
	assert.True(t, plan.Demand[dough].Equal(decimal.NewFromInt(2)))
	assert.Len(t, plan.Provenance, 3)

	cheeseLines := plan.ContributionsFor(cheese)
	require.Len(t, cheeseLines, 2)
	assert.Equal(t, 0, cheeseLines[0].LineIndex)
	assert.Equal(t, pizza, cheeseLines[0].MenuItemID)
	assert.True(t, cheeseLines[0].Quantity.Equal(decimal.NewFromInt(6)))
	assert.Equal(t, 1, cheeseLines[1].LineIndex)
	assert.Equal(t, calzone, cheeseLines[1].MenuItemID)

	assert.Len(t, plan.Inventory, 2)
}

func TestCalculateHandlesFractionalPortions(t *testing.T) {
	oil := uuid.New()
	salad := uuid.New()
	fetcher := &fakeFetcher{
		menu:      map[uuid.UUID]models.MenuItem{salad: menuItem(salad, map[uuid.UUID]decimal.Decimal{oil: decimal.RequireFromString("0.015")})},
		inventory: map[uuid.UUID]models.InventoryItem{oil: stockRow(oil, 1)},
	}

	plan, err := NewCalculator(fetcher).Calculate(context.Background(), uuid.New(), []LineItem{{MenuItemID: salad, Quantity: 3}})
	require.NoError(t, err)
	assert.True(t, plan.Demand[oil].Equal(decimal.RequireFromString("0.045")))
}

func TestCalculateRejectsUnknownMenuItem(t *testing.T) {
	known := uuid.New()
	unknown := uuid.New()
	fetcher := &fakeFetcher{menu: map[uuid.UUID]models.MenuItem{known: menuItem(known, nil)}}

	_, err := NewCalculator(fetcher).Calculate(context.Background(), uuid.New(), []LineItem{
		{MenuItemID: known, Quantity: 1},
		{MenuItemID: unknown, Quantity: 1},
	})
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeUnknownMenuItem, typed.Code())
	assert.Equal(t, map[string]any{"menuItemIds": []uuid.UUID{unknown}}, typed.Details())
}

func TestCalculateRejectsUnknownIngredient(t *testing.T) {
	present, absent := uuid.New(), uuid.New()
	burger := uuid.New()
	fetcher := &fakeFetcher{
		menu: map[uuid.UUID]models.MenuItem{
			burger: menuItem(burger, map[uuid.UUID]decimal.Decimal{present: decimal.NewFromInt(1), absent: decimal.NewFromInt(1)}),
		},
		inventory: map[uuid.UUID]models.InventoryItem{present: stockRow(present, 5)},
	}

	_, err := NewCalculator(fetcher).Calculate(context.Background(), uuid.New(), []LineItem{{MenuItemID: burger, Quantity: 1}})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnknownIngredient), "got %v", err)
}

func TestCalculatePropagatesFetchErrors(t *testing.T) {
	burger := uuid.New()
	storageErr := pkgerrors.New(pkgerrors.CodeStorageUnavailable, "fetch inventory")
	fetcher := &fakeFetcher{
		menu:         map[uuid.UUID]models.MenuItem{burger: menuItem(burger, map[uuid.UUID]decimal.Decimal{uuid.New(): decimal.NewFromInt(1)})},
		inventoryErr: storageErr,
	}

	_, err := NewCalculator(fetcher).Calculate(context.Background(), uuid.New(), []LineItem{{MenuItemID: burger, Quantity: 1}})
	assert.True(t, errors.Is(err, storageErr))
	assert.False(t, pkgerrors.IsCode(err, pkgerrors.CodeUnknownIngredient))
}

func TestCalculateValidatesInput(t *testing.T) {
	calc := NewCalculator(&fakeFetcher{})
	cases := []struct {
		name    string
		orderID uuid.UUID
		lines   []LineItem
	}{
		{"missing order id", uuid.Nil, []LineItem{{MenuItemID: uuid.New(), Quantity: 1}}},
		{"no lines", uuid.New(), nil},
		{"zero quantity", uuid.New(), []LineItem{{MenuItemID: uuid.New(), Quantity: 0}}},
		{"negative quantity", uuid.New(), []LineItem{{MenuItemID: uuid.New(), Quantity: -2}}},
		{"missing menu item", uuid.New(), []LineItem{{Quantity: 1}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := calc.Calculate(context.Background(), tc.orderID, tc.lines)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestPlanWithoutAndOrdering(t *testing.T) {
	a := uuid.MustParse("00000000-0000-0000-0000-00000000000a")
	b := uuid.MustParse("00000000-0000-0000-0000-00000000000b")
	plan := &Plan{
		OrderID: uuid.New(),
		Demand:  map[uuid.UUID]decimal.Decimal{b: decimal.NewFromInt(1), a: decimal.NewFromInt(2)},
		Provenance: []Contribution{
			{IngredientID: b, Quantity: decimal.NewFromInt(1)},
			{IngredientID: a, Quantity: decimal.NewFromInt(2)},
		},
	}
	assert.Equal(t, []uuid.UUID{a, b}, plan.IngredientIDs())

	rest := plan.Without(map[uuid.UUID]struct{}{a: {}})
	assert.Equal(t, []uuid.UUID{b}, rest.IngredientIDs())
	assert.Len(t, rest.Provenance, 1)
	assert.False(t, rest.Empty())
	assert.True(t, rest.Without(map[uuid.UUID]struct{}{b: {}}).Empty())
}

func TestLinesDigestIgnoresLineLayout(t *testing.T) {
	soup := uuid.New()
	bread := uuid.New()

	base := LinesDigest([]LineItem{{MenuItemID: soup, Quantity: 2}, {MenuItemID: bread, Quantity: 1}})
	assert.Equal(t, base, LinesDigest([]LineItem{{MenuItemID: bread, Quantity: 1}, {MenuItemID: soup, Quantity: 1}, {MenuItemID: soup, Quantity: 1}}))
	assert.NotEqual(t, base, LinesDigest([]LineItem{{MenuItemID: soup, Quantity: 3}, {MenuItemID: bread, Quantity: 1}}))
	assert.NotEqual(t, base, LinesDigest([]LineItem{{MenuItemID: soup, Quantity: 2}}))
}
