package availability

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/internal/batch"
	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	"github.com/angelmondragon/kitchenstock-backend/internal/menu"
	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
)

type harness struct {
	t         *testing.T
	conn      *gorm.DB
	inventory inventory.Repository
	menu      menu.Repository
	cascader  *Cascader
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dsn := "file:availability_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	logg := logger.New(logger.Options{ServiceName: "availability-test", Output: io.Discard})
	invRepo := inventory.NewRepository(conn)
	menuRepo := menu.NewRepository(conn)
	cascader, err := NewCascader(Params{
		DB:      dbpkg.NewFromConn(conn),
		Menu:    menuRepo,
		Fetcher: batch.NewFetcher(menuRepo, invRepo),
		Outbox:  outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:  logg,
	})
	require.NoError(t, err)
	return &harness{t: t, conn: conn, inventory: invRepo, menu: menuRepo, cascader: cascader}
}

func (h *harness) ingredient(stock int64) uuid.UUID {
	h.t.Helper()
	item := models.InventoryItem{
		IngredientID:  uuid.New(),
		Name:          "ingredient",
		Unit:          "kg",
		CurrentStock:  decimal.NewFromInt(stock),
		InitialStock:  decimal.NewFromInt(stock),
		MinStockLevel: decimal.NewFromInt(2),
		LastUpdated:   time.Now().UTC(),
	}
	require.NoError(h.t, h.inventory.Create(context.Background(), &item))
	return item.IngredientID
}

type ingredientRef struct {
	id       uuid.UUID
	required bool
}

func (h *harness) menuItem(status enums.MenuItemStatus, refs ...ingredientRef) uuid.UUID {
	h.t.Helper()
	item := models.MenuItem{ID: uuid.New(), Name: "dish", Status: status}
	for i, ref := range refs {
		item.Ingredients = append(item.Ingredients, models.MenuItemIngredient{
			IngredientID:   ref.id,
			Position:       i,
			PortionPerUnit: decimal.NewFromInt(1),
			Required:       ref.required,
		})
	}
	_, err := h.menu.Upsert(context.Background(), &item)
	require.NoError(h.t, err)
	return item.ID
}

func (h *harness) setStock(id uuid.UUID, stock int64) inventory.Transition {
	h.t.Helper()
	ctx := context.Background()
	before, err := h.inventory.FindByID(ctx, id)
	require.NoError(h.t, err)
	ok, err := h.inventory.CompareAndSetStock(ctx, id, before.CurrentStock, decimal.NewFromInt(stock), time.Now())
	require.NoError(h.t, err)
	require.True(h.t, ok)
	after, err := h.inventory.FindByID(ctx, id)
	require.NoError(h.t, err)
	return inventory.NewTransition(before, *after)
}

func (h *harness) status(id uuid.UUID) enums.MenuItemStatus {
	h.t.Helper()
	item, err := h.menu.FindByID(context.Background(), id)
	require.NoError(h.t, err)
	return item.Status
}

func TestApplyDisablesActiveDependentsOnly(t *testing.T) {
	h := newHarness(t)
	cheese := h.ingredient(5)
	pizza := h.menuItem(enums.MenuItemStatusActive, ingredientRef{cheese, true})
	salad := h.menuItem(enums.MenuItemStatusActive, ingredientRef{cheese, false})
	retired := h.menuItem(enums.MenuItemStatusInactive, ingredientRef{cheese, true})

	changes, err := h.cascader.Apply(context.Background(), []inventory.Transition{h.setStock(cheese, 0)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, pizza, changes[0].MenuItemID)
	assert.Equal(t, enums.MenuItemStatusOutOfStock, changes[0].To)
	require.NotNil(t, changes[0].IngredientID)
	assert.Equal(t, cheese, *changes[0].IngredientID)

	assert.Equal(t, enums.MenuItemStatusOutOfStock, h.status(pizza))
	assert.Equal(t, enums.MenuItemStatusActive, h.status(salad))
	assert.Equal(t, enums.MenuItemStatusInactive, h.status(retired))

	var events int64
	require.NoError(t, h.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventMenuItemAvailabilityChanged).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestApplyReenablesOnlyWhenEveryRequiredIngredientRecovers(t *testing.T) {
	h := newHarness(t)
	a := h.ingredient(5)
	b := h.ingredient(5)
	dish := h.menuItem(enums.MenuItemStatusActive, ingredientRef{a, true}, ingredientRef{b, true})
	ctx := context.Background()

	_, err := h.cascader.Apply(ctx, []inventory.Transition{h.setStock(a, 0), h.setStock(b, 0)})
	require.NoError(t, err)
	assert.Equal(t, enums.MenuItemStatusOutOfStock, h.status(dish))

	changes, err := h.cascader.Apply(ctx, []inventory.Transition{h.setStock(a, 10)})
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, enums.MenuItemStatusOutOfStock, h.status(dish), "b is still out")

	changes, err = h.cascader.Apply(ctx, []inventory.Transition{h.setStock(b, 1)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, enums.MenuItemStatusActive, changes[0].To)
	assert.Equal(t, enums.MenuItemStatusActive, h.status(dish), "low_stock counts as available")
}

func TestApplyIgnoresUnchangedTransitions(t *testing.T) {
	h := newHarness(t)
	cheese := h.ingredient(10)
	pizza := h.menuItem(enums.MenuItemStatusActive, ingredientRef{cheese, true})

	changes, err := h.cascader.Apply(context.Background(), []inventory.Transition{{
		IngredientID: cheese,
		OldStatus:    enums.StockStatusOutOfStock,
		NewStatus:    enums.StockStatusOutOfStock,
	}})
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Equal(t, enums.MenuItemStatusActive, h.status(pizza))
}

func TestResyncConvergesMissedCascades(t *testing.T) {
	h := newHarness(t)
	empty := h.ingredient(0)
	full := h.ingredient(9)
	stale := h.menuItem(enums.MenuItemStatusActive, ingredientRef{empty, true})
	stuck := h.menuItem(enums.MenuItemStatusOutOfStock, ingredientRef{full, true})
	retired := h.menuItem(enums.MenuItemStatusInactive, ingredientRef{full, true})

	changes, err := h.cascader.Resync(context.Background())
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Equal(t, enums.MenuItemStatusOutOfStock, h.status(stale))
	assert.Equal(t, enums.MenuItemStatusActive, h.status(stuck))
	assert.Equal(t, enums.MenuItemStatusInactive, h.status(retired))

	changes, err = h.cascader.Resync(context.Background())
	require.NoError(t, err)
	assert.Empty(t, changes, "second pass is a no-op")
}

func TestSetManualStatus(t *testing.T) {
	h := newHarness(t)
	empty := h.ingredient(0)
	dish := h.menuItem(enums.MenuItemStatusInactive, ingredientRef{empty, true})
	ctx := context.Background()

	change, err := h.cascader.SetManualStatus(ctx, dish, enums.MenuItemStatusActive)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, enums.MenuItemStatusOutOfStock, change.To, "activation lands on out_of_stock while an ingredient is out")

	change, err = h.cascader.SetManualStatus(ctx, dish, enums.MenuItemStatusInactive)
	require.NoError(t, err)
	require.NotNil(t, change)
	assert.Equal(t, enums.MenuItemStatusInactive, h.status(dish))

	_, err = h.cascader.SetManualStatus(ctx, dish, enums.MenuItemStatusOutOfStock)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = h.cascader.SetManualStatus(ctx, uuid.New(), enums.MenuItemStatusActive)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCheckReportsBlockers(t *testing.T) {
	h := newHarness(t)
	empty := h.ingredient(0)
	full := h.ingredient(9)
	dish := h.menuItem(enums.MenuItemStatusActive, ingredientRef{empty, true}, ingredientRef{full, true})

	_, err := h.cascader.Apply(context.Background(), []inventory.Transition{{
		IngredientID: empty,
		OldStatus:    enums.StockStatusLowStock,
		NewStatus:    enums.StockStatusOutOfStock,
	}})
	require.NoError(t, err)

	availability, err := h.cascader.Check(context.Background(), dish)
	require.NoError(t, err)
	assert.False(t, availability.Orderable)
	assert.Equal(t, enums.MenuItemStatusOutOfStock, availability.Status)
	require.Len(t, availability.Blockers, 1)
	assert.Equal(t, empty, availability.Blockers[0].IngredientID)
	assert.Equal(t, enums.StockStatusOutOfStock, availability.Blockers[0].Status)
}

func TestEvaluateTreatsMissingIngredientsAsUndecided(t *testing.T) {
	known := uuid.New()
	item := models.MenuItem{Ingredients: []models.MenuItemIngredient{
		{IngredientID: known, Required: true},
		{IngredientID: uuid.New(), Required: true},
	}}
	stock := map[uuid.UUID]models.InventoryItem{known: {IngredientID: known, CurrentStock: decimal.NewFromInt(4), MinStockLevel: decimal.NewFromInt(1)}}

	verdict := Evaluate(item, stock)
	assert.Equal(t, enums.MenuItemStatus(""), verdict.Status)
	require.Len(t, verdict.Blockers, 1)
	assert.True(t, verdict.Blockers[0].Missing)
}
