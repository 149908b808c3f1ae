package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// ErrNotFound is returned when the ingredient has no ledger row.
var ErrNotFound = errors.New("inventory item not found")

// statusCase renders the status derivation for a stock expression, so that
// status is always written by the same statement that changes stock. Both
// expressions are rendered more than once, so they may only reference named
// arguments (@qty, @stock, @min), never positional placeholders.
func statusCase(stockExpr, minExpr string) string {
	return fmt.Sprintf(
		"CASE WHEN %[1]s <= 0 THEN '%[3]s' WHEN %[1]s <= %[2]s THEN '%[4]s' ELSE '%[5]s' END",
		stockExpr, minExpr,
		enums.StockStatusOutOfStock, enums.StockStatusLowStock, enums.StockStatusInStock,
	)
}

// Repository exposes stock ledger persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryItem, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	List(ctx context.Context, params ListParams) ([]models.InventoryItem, error)
	Create(ctx context.Context, item *models.InventoryItem) error
	GuardedDecrement(ctx context.Context, id uuid.UUID, qty decimal.Decimal, now time.Time) (bool, error)
	Increment(ctx context.Context, id uuid.UUID, qty decimal.Decimal, now time.Time) error
	CompareAndSetStock(ctx context.Context, id uuid.UUID, expected, stock decimal.Decimal, now time.Time) (bool, error)
	UpdateThresholds(ctx context.Context, id uuid.UUID, minLevel, maxLevel decimal.Decimal, now time.Time) error
	CreateAdjustment(ctx context.Context, adjustment *models.StockAdjustment) error
	ListAdjustments(ctx context.Context, id uuid.UUID, limit int) ([]models.StockAdjustment, error)
	AdjustmentTotals(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error)
}

// ListParams filters inventory listings.
type ListParams struct {
	Status *enums.StockStatus
	Limit  int
	Offset int
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.InventoryItem
	if err := r.db.WithContext(ctx).
		Where("ingredient_id IN ?", ids).
		Order("ingredient_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("ingredient_id = ?", id).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) List(ctx context.Context, params ListParams) ([]models.InventoryItem, error) {
	query := r.db.WithContext(ctx).Model(&models.InventoryItem{})
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}
	var rows []models.InventoryItem
	if err := query.Order("name ASC, ingredient_id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) Create(ctx context.Context, item *models.InventoryItem) error {
	if item.IngredientID == uuid.Nil {
		item.IngredientID = uuid.New()
	}
	item.Status = item.DerivedStatus()
	return r.db.WithContext(ctx).Create(item).Error
}

// GuardedDecrement subtracts qty only when the row still holds at least qty.
// It reports false when the guard rejected the update.
func (r *repositoryImpl) GuardedDecrement(ctx context.Context, id uuid.UUID, qty decimal.Decimal, now time.Time) (bool, error) {
	stmt := fmt.Sprintf(
		"UPDATE inventory_items SET current_stock = current_stock - @qty, status = %s, last_updated = @now WHERE ingredient_id = @id AND current_stock >= @qty",
		statusCase("(current_stock - @qty)", "min_stock_level"),
	)
	result := r.db.WithContext(ctx).Exec(stmt, map[string]any{"qty": qty, "now": now, "id": id})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repositoryImpl) Increment(ctx context.Context, id uuid.UUID, qty decimal.Decimal, now time.Time) error {
	stmt := fmt.Sprintf(
		"UPDATE inventory_items SET current_stock = current_stock + @qty, status = %s, last_updated = @now WHERE ingredient_id = @id",
		statusCase("(current_stock + @qty)", "min_stock_level"),
	)
	result := r.db.WithContext(ctx).Exec(stmt, map[string]any{"qty": qty, "now": now, "id": id})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// CompareAndSetStock overwrites the stock only while it still equals expected.
func (r *repositoryImpl) CompareAndSetStock(ctx context.Context, id uuid.UUID, expected, stock decimal.Decimal, now time.Time) (bool, error) {
	stmt := fmt.Sprintf(
		"UPDATE inventory_items SET current_stock = @stock, status = %s, last_updated = @now WHERE ingredient_id = @id AND current_stock = @expected",
		statusCase("CAST(@stock AS NUMERIC)", "min_stock_level"),
	)
	result := r.db.WithContext(ctx).Exec(stmt, map[string]any{"stock": stock, "expected": expected, "now": now, "id": id})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repositoryImpl) UpdateThresholds(ctx context.Context, id uuid.UUID, minLevel, maxLevel decimal.Decimal, now time.Time) error {
	stmt := fmt.Sprintf(
		"UPDATE inventory_items SET min_stock_level = @min, max_stock_level = @max, status = %s, last_updated = @now WHERE ingredient_id = @id",
		statusCase("current_stock", "@min"),
	)
	result := r.db.WithContext(ctx).Exec(stmt, map[string]any{"min": minLevel, "max": maxLevel, "now": now, "id": id})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repositoryImpl) CreateAdjustment(ctx context.Context, adjustment *models.StockAdjustment) error {
	if adjustment.ID == uuid.Nil {
		adjustment.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(adjustment).Error
}

func (r *repositoryImpl) ListAdjustments(ctx context.Context, id uuid.UUID, limit int) ([]models.StockAdjustment, error) {
	query := r.db.WithContext(ctx).Where("ingredient_id = ?", id).Order("created_at DESC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.StockAdjustment
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type ingredientTotal struct {
	IngredientID uuid.UUID       `gorm:"column:ingredient_id"`
	Total        decimal.Decimal `gorm:"column:total"`
}

// AdjustmentTotals sums manual deltas per ingredient.
func (r *repositoryImpl) AdjustmentTotals(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	var rows []ingredientTotal
	if err := r.db.WithContext(ctx).
		Model(&models.StockAdjustment{}).
		Select("ingredient_id, SUM(delta) AS total").
		Group("ingredient_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	totals := make(map[uuid.UUID]decimal.Decimal, len(rows))
	for _, row := range rows {
		totals[row.IngredientID] = row.Total
	}
	return totals, nil
}
