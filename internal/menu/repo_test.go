package menu

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:menu_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))
	return conn
}

func newTestService(t *testing.T, conn *gorm.DB) Service {
	t.Helper()
	svc, err := NewService(dbpkg.NewFromConn(conn), NewRepository(conn))
	require.NoError(t, err)
	return svc
}

func TestSyncCreatesItemWithOrderedIngredients(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	ctx := context.Background()

	dough, sauce, basil := uuid.New(), uuid.New(), uuid.New()
	result, err := svc.Sync(ctx, SyncInput{
		ID:   uuid.New(),
		Name: "Margherita",
		Ingredients: []IngredientInput{
			{IngredientID: dough, PortionPerUnit: decimal.NewFromInt(1), Required: true},
			{IngredientID: sauce, PortionPerUnit: decimal.RequireFromString("0.2"), Required: true},
			{IngredientID: basil, PortionPerUnit: decimal.NewFromInt(3), Required: false},
		},
	})
	require.NoError(t, err)
	assert.True(t, result.Created)
	assert.Equal(t, enums.MenuItemStatusActive, result.Item.Status)

	stored, err := svc.Get(ctx, result.Item.ID)
	require.NoError(t, err)
	require.Len(t, stored.Ingredients, 3)
	assert.Equal(t, []uuid.UUID{dough, sauce, basil}, []uuid.UUID{
		stored.Ingredients[0].IngredientID,
		stored.Ingredients[1].IngredientID,
		stored.Ingredients[2].IngredientID,
	})
	assert.True(t, stored.Ingredients[1].PortionPerUnit.Equal(decimal.RequireFromString("0.2")))
}

func TestSyncKeepsStatusOfExistingItem(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	repo := NewRepository(conn)
	ctx := context.Background()

	id, ingredient := uuid.New(), uuid.New()
	_, err := svc.Sync(ctx, SyncInput{ID: id, Name: "Soup", Ingredients: []IngredientInput{{IngredientID: ingredient, PortionPerUnit: decimal.NewFromInt(1), Required: true}}})
	require.NoError(t, err)

	ok, err := repo.TransitionStatus(ctx, id, enums.MenuItemStatusActive, enums.MenuItemStatusOutOfStock)
	require.NoError(t, err)
	require.True(t, ok)

	other := uuid.New()
	result, err := svc.Sync(ctx, SyncInput{ID: id, Name: "Soup of the day", Ingredients: []IngredientInput{{IngredientID: other, PortionPerUnit: decimal.NewFromInt(2), Required: true}}})
	require.NoError(t, err)
	assert.False(t, result.Created)
	assert.Equal(t, enums.MenuItemStatusOutOfStock, result.Item.Status)

	stored, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Soup of the day", stored.Name)
	assert.Equal(t, enums.MenuItemStatusOutOfStock, stored.Status)
	require.Len(t, stored.Ingredients, 1)
	assert.Equal(t, other, stored.Ingredients[0].IngredientID)
}

func TestSyncValidation(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	ingredient := uuid.New()

	cases := map[string]SyncInput{
		"missing id":        {Name: "x", Ingredients: []IngredientInput{{IngredientID: ingredient, PortionPerUnit: decimal.NewFromInt(1)}}},
		"missing name":      {ID: uuid.New(), Ingredients: []IngredientInput{{IngredientID: ingredient, PortionPerUnit: decimal.NewFromInt(1)}}},
		"no ingredients":    {ID: uuid.New(), Name: "x"},
		"zero portion":      {ID: uuid.New(), Name: "x", Ingredients: []IngredientInput{{IngredientID: ingredient}}},
		"duplicate lines":   {ID: uuid.New(), Name: "x", Ingredients: []IngredientInput{{IngredientID: ingredient, PortionPerUnit: decimal.NewFromInt(1)}, {IngredientID: ingredient, PortionPerUnit: decimal.NewFromInt(1)}}},
		"nil ingredient id": {ID: uuid.New(), Name: "x", Ingredients: []IngredientInput{{PortionPerUnit: decimal.NewFromInt(1)}}},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Sync(context.Background(), input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}
}

func TestFindRequiringOnlyMatchesRequiredIngredientsInStatus(t *testing.T) {
	conn := newTestDB(t)
	svc := newTestService(t, conn)
	repo := NewRepository(conn)
	ctx := context.Background()

	cheese := uuid.New()
	pizza, garnish, inactive := uuid.New(), uuid.New(), uuid.New()
	_, err := svc.Sync(ctx, SyncInput{ID: pizza, Name: "Pizza", Ingredients: []IngredientInput{{IngredientID: cheese, PortionPerUnit: decimal.NewFromInt(1), Required: true}}})
	require.NoError(t, err)
	_, err = svc.Sync(ctx, SyncInput{ID: garnish, Name: "Salad", Ingredients: []IngredientInput{{IngredientID: cheese, PortionPerUnit: decimal.NewFromInt(1), Required: false}}})
	require.NoError(t, err)
	_, err = svc.Sync(ctx, SyncInput{ID: inactive, Name: "Old Pizza", Inactive: true, Ingredients: []IngredientInput{{IngredientID: cheese, PortionPerUnit: decimal.NewFromInt(1), Required: true}}})
	require.NoError(t, err)

	rows, err := repo.FindRequiring(ctx, cheese, enums.MenuItemStatusActive)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, pizza, rows[0].ID)

	ok, err := repo.TransitionStatus(ctx, inactive, enums.MenuItemStatusActive, enums.MenuItemStatusOutOfStock)
	require.NoError(t, err)
	assert.False(t, ok, "inactive item must not be flipped")
}

func TestGetUnknownMenuItem(t *testing.T) {
	svc := newTestService(t, newTestDB(t))
	_, err := svc.Get(context.Background(), uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
