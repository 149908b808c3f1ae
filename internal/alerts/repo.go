package alerts

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

var ErrNotFound = errors.New("stock alert not found")

// Repository persists stock alerts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.StockAlert, error)
	OpenForIngredient(ctx context.Context, relatedID uuid.UUID) ([]models.StockAlert, error)
	Create(ctx context.Context, alert *models.StockAlert) error
	Resolve(ctx context.Context, id uuid.UUID, now time.Time) (bool, error)
	List(ctx context.Context, params ListParams) ([]models.StockAlert, error)
}

// ListParams filters alert listings. Resolved alerts are excluded unless
// IncludeResolved is set.
type ListParams struct {
	Type            *enums.AlertType
	RelatedID       *uuid.UUID
	IncludeResolved bool
	Limit           int
	Offset          int
}

type repositoryImpl struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.StockAlert, error) {
	var alert models.StockAlert
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&alert).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &alert, nil
}

func (r *repositoryImpl) OpenForIngredient(ctx context.Context, relatedID uuid.UUID) ([]models.StockAlert, error) {
	var rows []models.StockAlert
	if err := r.db.WithContext(ctx).
		Where("related_id = ? AND is_resolved = ?", relatedID, false).
		Order("created_at ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) Create(ctx context.Context, alert *models.StockAlert) error {
	if alert.ID == uuid.Nil {
		alert.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(alert).Error
}

// Resolve closes an open alert. It reports false when the alert was already
// resolved or does not exist.
func (r *repositoryImpl) Resolve(ctx context.Context, id uuid.UUID, now time.Time) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.StockAlert{}).
		Where("id = ? AND is_resolved = ?", id, false).
		Updates(map[string]any{"is_resolved": true, "resolved_at": now})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repositoryImpl) List(ctx context.Context, params ListParams) ([]models.StockAlert, error) {
	query := r.db.WithContext(ctx).Model(&models.StockAlert{})
	if !params.IncludeResolved {
		query = query.Where("is_resolved = ?", false)
	}
	if params.Type != nil {
		query = query.Where("type = ?", *params.Type)
	}
	if params.RelatedID != nil {
		query = query.Where("related_id = ?", *params.RelatedID)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}
	var rows []models.StockAlert
	if err := query.Order("created_at DESC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
