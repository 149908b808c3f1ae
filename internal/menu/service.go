package menu

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service syncs menu definitions from the catalog and serves reads.
type Service interface {
	Sync(ctx context.Context, input SyncInput) (*SyncResult, error)
	Get(ctx context.Context, id uuid.UUID) (*models.MenuItem, error)
	List(ctx context.Context, params ListParams) ([]models.MenuItem, error)
}

// IngredientInput is one entry of a synced ingredient list, in order.
type IngredientInput struct {
	IngredientID   uuid.UUID
	PortionPerUnit decimal.Decimal
	Required       bool
}

// SyncInput carries a catalog definition.
type SyncInput struct {
	ID          uuid.UUID
	Name        string
	Inactive    bool
	Ingredients []IngredientInput
}

// SyncResult reports the stored item.
type SyncResult struct {
	Item    models.MenuItem
	Created bool
}

type service struct {
	db   txRunner
	repo Repository
}

// NewService wires the menu service.
func NewService(db txRunner, repo Repository) (Service, error) {
	if db == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "menu repository required")
	}
	return &service{db: db, repo: repo}, nil
}

func (s *service) Sync(ctx context.Context, input SyncInput) (*SyncResult, error) {
	if input.ID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id is required")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name is required")
	}
	if len(input.Ingredients) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one ingredient is required")
	}

	seen := make(map[uuid.UUID]struct{}, len(input.Ingredients))
	ingredients := make([]models.MenuItemIngredient, 0, len(input.Ingredients))
	for i, in := range input.Ingredients {
		if in.IngredientID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ingredient id is required")
		}
		if !in.PortionPerUnit.IsPositive() {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "portion per unit must be positive")
		}
		if _, dup := seen[in.IngredientID]; dup {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "ingredient listed twice").WithDetails(map[string]any{
				"ingredientId": in.IngredientID,
			})
		}
		seen[in.IngredientID] = struct{}{}
		ingredients = append(ingredients, models.MenuItemIngredient{
			MenuItemID:     input.ID,
			IngredientID:   in.IngredientID,
			Position:       i,
			PortionPerUnit: in.PortionPerUnit,
			Required:       in.Required,
		})
	}

	status := enums.MenuItemStatusActive
	if input.Inactive {
		status = enums.MenuItemStatusInactive
	}
	item := models.MenuItem{ID: input.ID, Name: name, Status: status, Ingredients: ingredients}

	var created bool
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		created, err = s.repo.WithTx(tx).Upsert(ctx, &item)
		return err
	})
	if err != nil {
		return nil, dbpkg.StorageError(err, "sync menu item")
	}
	return &SyncResult{Item: item, Created: created}, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "menu item not found")
		}
		return nil, dbpkg.StorageError(err, "load menu item")
	}
	return item, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]models.MenuItem, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid menu item status filter %q", *params.Status)
	}
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, dbpkg.StorageError(err, "list menu items")
	}
	return rows, nil
}
