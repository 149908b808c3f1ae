package menu

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

// ErrNotFound is returned when a menu item does not exist.
var ErrNotFound = errors.New("menu item not found")

// Repository exposes menu item persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.MenuItem, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.MenuItem, error)
	List(ctx context.Context, params ListParams) ([]models.MenuItem, error)
	FindRequiring(ctx context.Context, ingredientID uuid.UUID, status enums.MenuItemStatus) ([]models.MenuItem, error)
	TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.MenuItemStatus) (bool, error)
	Upsert(ctx context.Context, item *models.MenuItem) (bool, error)
}

// ListParams filters menu item listings.
type ListParams struct {
	Status *enums.MenuItemStatus
	Limit  int
	Offset int
}

type repositoryImpl struct {
	db *gorm.DB
}

// NewRepository returns a menu repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repositoryImpl{db: tx}
}

func orderedIngredients(db *gorm.DB) *gorm.DB {
	return db.Order("position ASC")
}

func (r *repositoryImpl) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.MenuItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var rows []models.MenuItem
	if err := r.db.WithContext(ctx).
		Preload("Ingredients", orderedIngredients).
		Where("id IN ?", ids).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repositoryImpl) FindByID(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.WithContext(ctx).
		Preload("Ingredients", orderedIngredients).
		Where("id = ?", id).
		First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &item, nil
}

func (r *repositoryImpl) List(ctx context.Context, params ListParams) ([]models.MenuItem, error) {
	query := r.db.WithContext(ctx).Preload("Ingredients", orderedIngredients)
	if params.Status != nil {
		query = query.Where("status = ?", *params.Status)
	}
	if params.Limit > 0 {
		query = query.Limit(params.Limit)
	}
	if params.Offset > 0 {
		query = query.Offset(params.Offset)
	}
	var rows []models.MenuItem
	if err := query.Order("name ASC, id ASC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// FindRequiring returns menu items in the given status that list the
// ingredient as required.
func (r *repositoryImpl) FindRequiring(ctx context.Context, ingredientID uuid.UUID, status enums.MenuItemStatus) ([]models.MenuItem, error) {
	dependents := r.db.Model(&models.MenuItemIngredient{}).
		Select("menu_item_id").
		Where("ingredient_id = ? AND required = ?", ingredientID, true)

	var rows []models.MenuItem
	if err := r.db.WithContext(ctx).
		Preload("Ingredients", orderedIngredients).
		Where("status = ? AND id IN (?)", status, dependents).
		Order("id ASC").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

// TransitionStatus flips the status only while the row still holds from.
func (r *repositoryImpl) TransitionStatus(ctx context.Context, id uuid.UUID, from, to enums.MenuItemStatus) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.MenuItem{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

// Upsert creates the item or replaces the name and ingredient list of an
// existing one. The status of an existing item is never modified. It reports
// whether the item was created.
func (r *repositoryImpl) Upsert(ctx context.Context, item *models.MenuItem) (bool, error) {
	db := r.db.WithContext(ctx)
	ingredients := item.Ingredients
	for i := range ingredients {
		ingredients[i].MenuItemID = item.ID
	}

	var existing models.MenuItem
	err := db.Where("id = ?", item.ID).First(&existing).Error
	created := errors.Is(err, gorm.ErrRecordNotFound)
	switch {
	case created:
		item.Ingredients = nil
		if err := db.Create(item).Error; err != nil {
			return false, err
		}
	case err != nil:
		return false, err
	default:
		if err := db.Model(&models.MenuItem{}).Where("id = ?", item.ID).Update("name", item.Name).Error; err != nil {
			return false, err
		}
		item.Status = existing.Status
		if err := db.Where("menu_item_id = ?", item.ID).Delete(&models.MenuItemIngredient{}).Error; err != nil {
			return false, err
		}
	}

	if len(ingredients) > 0 {
		if err := db.Create(&ingredients).Error; err != nil {
			return false, err
		}
	}
	item.Ingredients = ingredients
	return created, nil
}
