package alerts

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

	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
)

func newTestDeduplicator(t *testing.T) (*Deduplicator, inventory.Repository, *gorm.DB) {
	t.Helper()
	dsn := "file:alerts_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(models.All()...))

	logg := logger.New(logger.Options{ServiceName: "alerts-test", Output: io.Discard})
	invRepo := inventory.NewRepository(conn)
	dedup, err := NewDeduplicator(Params{
		DB:        dbpkg.NewFromConn(conn),
		Repo:      NewRepository(conn),
		Inventory: invRepo,
		Outbox:    outbox.NewService(outbox.NewRepository(conn), logg),
		Logger:    logg,
	})
	require.NoError(t, err)
	return dedup, invRepo, conn
}

func transition(id uuid.UUID, stock int64, from, to enums.StockStatus) inventory.Transition {
	return inventory.Transition{
		IngredientID:  id,
		Name:          "flour",
		Unit:          "kg",
		NewStock:      decimal.NewFromInt(stock),
		MinStockLevel: decimal.NewFromInt(5),
		OldStatus:     from,
		NewStatus:     to,
	}
}

func openAlerts(t *testing.T, d *Deduplicator, id uuid.UUID) []models.StockAlert {
	t.Helper()
	rows, err := d.List(context.Background(), ListParams{RelatedID: &id})
	require.NoError(t, err)
	return rows
}

func TestApplyRaisesOneAlertPerCondition(t *testing.T) {
	d, _, conn := newTestDeduplicator(t)
	ctx := context.Background()
	flour := uuid.New()

	changes, err := d.Apply(ctx, []inventory.Transition{transition(flour, 4, enums.StockStatusInStock, enums.StockStatusLowStock)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ActionRaised, changes[0].Action)
	assert.Equal(t, enums.AlertTypeLowStock, changes[0].Type)

	// a second crossing report while the alert is still open is a no-op
	changes, err = d.Apply(ctx, []inventory.Transition{transition(flour, 3, enums.StockStatusInStock, enums.StockStatusLowStock)})
	require.NoError(t, err)
	assert.Empty(t, changes)

	open := openAlerts(t, d, flour)
	require.Len(t, open, 1)
	assert.True(t, open[0].StockAtTrigger.Equal(decimal.NewFromInt(4)))
	assert.Contains(t, open[0].Message, "flour is running low")

	var raised int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventStockAlertRaised).Count(&raised).Error)
	assert.Equal(t, int64(1), raised)
}

func TestApplyIgnoresUnchangedTransitions(t *testing.T) {
	d, _, _ := newTestDeduplicator(t)
	flour := uuid.New()

	changes, err := d.Apply(context.Background(), []inventory.Transition{transition(flour, 2, enums.StockStatusLowStock, enums.StockStatusLowStock)})
	require.NoError(t, err)
	assert.Empty(t, changes)
	assert.Empty(t, openAlerts(t, d, flour))
}

func TestApplyKeepsOnlyTheCurrentCondition(t *testing.T) {
	d, _, _ := newTestDeduplicator(t)
	ctx := context.Background()
	flour := uuid.New()

	_, err := d.Apply(ctx, []inventory.Transition{transition(flour, 3, enums.StockStatusInStock, enums.StockStatusLowStock)})
	require.NoError(t, err)

	changes, err := d.Apply(ctx, []inventory.Transition{transition(flour, 0, enums.StockStatusLowStock, enums.StockStatusOutOfStock)})
	require.NoError(t, err)
	require.Len(t, changes, 2)
	assert.Equal(t, ActionResolved, changes[0].Action)
	assert.Equal(t, enums.AlertTypeLowStock, changes[0].Type)
	assert.Equal(t, ActionRaised, changes[1].Action)
	assert.Equal(t, enums.AlertTypeOutOfStock, changes[1].Type)

	open := openAlerts(t, d, flour)
	require.Len(t, open, 1)
	assert.Equal(t, enums.AlertTypeOutOfStock, open[0].Type)
}

func TestRecoveryResolvesAndLaterDropRaisesAgain(t *testing.T) {
	d, _, _ := newTestDeduplicator(t)
	ctx := context.Background()
	flour := uuid.New()

	first, err := d.Apply(ctx, []inventory.Transition{transition(flour, 2, enums.StockStatusInStock, enums.StockStatusLowStock)})
	require.NoError(t, err)
	require.Len(t, first, 1)

	changes, err := d.Apply(ctx, []inventory.Transition{transition(flour, 50, enums.StockStatusLowStock, enums.StockStatusInStock)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, ActionResolved, changes[0].Action)
	assert.Empty(t, openAlerts(t, d, flour))

	changes, err = d.Apply(ctx, []inventory.Transition{transition(flour, 1, enums.StockStatusInStock, enums.StockStatusLowStock)})
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.NotEqual(t, first[0].AlertID, changes[0].AlertID)

	all, err := d.List(ctx, ListParams{RelatedID: &flour, IncludeResolved: true})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestSyncDerivesFromLedger(t *testing.T) {
	d, invRepo, _ := newTestDeduplicator(t)
	ctx := context.Background()

	low := models.InventoryItem{Name: "salt", Unit: "kg", CurrentStock: decimal.NewFromInt(1), MinStockLevel: decimal.NewFromInt(5), LastUpdated: time.Now()}
	full := models.InventoryItem{Name: "rice", Unit: "kg", CurrentStock: decimal.NewFromInt(40), MinStockLevel: decimal.NewFromInt(5), LastUpdated: time.Now()}
	require.NoError(t, invRepo.Create(ctx, &low))
	require.NoError(t, invRepo.Create(ctx, &full))

	// stale alert left behind for an ingredient that has recovered
	_, err := d.Apply(ctx, []inventory.Transition{{
		IngredientID: full.IngredientID,
		Name:         "rice",
		NewStock:     decimal.Zero,
		OldStatus:    enums.StockStatusInStock,
		NewStatus:    enums.StockStatusOutOfStock,
	}})
	require.NoError(t, err)

	changes, err := d.Sync(ctx)
	require.NoError(t, err)
	assert.Len(t, changes, 2)
	assert.Empty(t, openAlerts(t, d, full.IngredientID))
	require.Len(t, openAlerts(t, d, low.IngredientID), 1)

	changes, err = d.Sync(ctx)
	require.NoError(t, err)
	assert.Empty(t, changes)
}

func TestManualResolve(t *testing.T) {
	d, _, _ := newTestDeduplicator(t)
	ctx := context.Background()
	flour := uuid.New()

	changes, err := d.Apply(ctx, []inventory.Transition{transition(flour, 0, enums.StockStatusLowStock, enums.StockStatusOutOfStock)})
	require.NoError(t, err)
	require.Len(t, changes, 1)

	resolved, err := d.Resolve(ctx, changes[0].AlertID)
	require.NoError(t, err)
	assert.True(t, resolved.IsResolved)
	require.NotNil(t, resolved.ResolvedAt)

	_, err = d.Resolve(ctx, changes[0].AlertID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = d.Resolve(ctx, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestRaiseToleratesConcurrentInsert(t *testing.T) {
	d, _, _ := newTestDeduplicator(t)
	ctx := context.Background()
	flour := uuid.New()
	require.NoError(t, d.repo.Create(ctx, &models.StockAlert{
		Type:           enums.AlertTypeLowStock,
		RelatedID:      flour,
		StockAtTrigger: decimal.NewFromInt(2),
		Message:        "flour is running low",
	}))

	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		alert, err := d.raise(ctx, tx, enums.AlertTypeLowStock, models.InventoryItem{IngredientID: flour, Name: "flour"})
		assert.Nil(t, alert)
		return err
	})
	require.NoError(t, err)
	assert.Len(t, openAlerts(t, d, flour), 1)
}
