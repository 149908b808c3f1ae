package consumption

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
)

// ErrAlreadyClaimed is returned when the (order, ingredient) key is taken.
var ErrAlreadyClaimed = errors.New("ingredient already consumed for order")

// Repository persists stock claims and the consumption ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	InsertClaim(ctx context.Context, claim *models.StockClaim) error
	DeleteClaim(ctx context.Context, orderID, ingredientID uuid.UUID) error
	ClaimsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockClaim, error)
	AppendRecords(ctx context.Context, records []models.ConsumptionRecord) error
	DeleteRecords(ctx context.Context, orderID, ingredientID uuid.UUID) error
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ConsumptionRecord, error)
	ListByIngredient(ctx context.Context, ingredientID uuid.UUID, limit int) ([]models.ConsumptionRecord, error)
	ConsumedTotals(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error)
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a consumption repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) InsertClaim(ctx context.Context, claim *models.StockClaim) error {
	if err := r.db.WithContext(ctx).Create(claim).Error; err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return ErrAlreadyClaimed
		}
		return err
	}
	return nil
}

func (r *repositoryImpl) DeleteClaim(ctx context.Context, orderID, ingredientID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ? AND ingredient_id = ?", orderID, ingredientID).
		Delete(&models.StockClaim{}).Error
}

func (r *repositoryImpl) ClaimsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockClaim, error) {
	var rows []models.StockClaim
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("ingredient_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) AppendRecords(ctx context.Context, records []models.ConsumptionRecord) error {
	if len(records) == 0 {
		return nil
	}
	for i := range records {
		if records[i].ID == uuid.Nil {
			records[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&records).Error
}

// DeleteRecords removes the records of one order and ingredient. Only the
// saga compensation of a failed order calls it.
func (r *repositoryImpl) DeleteRecords(ctx context.Context, orderID, ingredientID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("order_id = ? AND ingredient_id = ?", orderID, ingredientID).
		Delete(&models.ConsumptionRecord{}).Error
}

func (r *repositoryImpl) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ConsumptionRecord, error) {
	var rows []models.ConsumptionRecord
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("line_index ASC, ingredient_id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) ListByIngredient(ctx context.Context, ingredientID uuid.UUID, limit int) ([]models.ConsumptionRecord, error) {
	query := r.db.WithContext(ctx).
		Where("ingredient_id = ?", ingredientID).
		Order("recorded_at DESC, id ASC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	var rows []models.ConsumptionRecord
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

type ingredientTotal struct {
	IngredientID uuid.UUID       `gorm:"column:ingredient_id"`
	Total        decimal.Decimal `gorm:"column:total"`
}

// ConsumedTotals sums quantity_consumed per ingredient.
func (r *repositoryImpl) ConsumedTotals(ctx context.Context) (map[uuid.UUID]decimal.Decimal, error) {
	var rows []ingredientTotal
	if err := r.db.WithContext(ctx).
		Model(&models.ConsumptionRecord{}).
		Select("ingredient_id, SUM(quantity_consumed) AS total").
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
