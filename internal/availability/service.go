package availability

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenstock-backend/internal/batch"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
)

// Availability is the orderability of one menu item.
type Availability struct {
	MenuItemID uuid.UUID            `json:"menuItemId"`
	Name       string               `json:"name"`
	Status     enums.MenuItemStatus `json:"status"`
	Orderable  bool                 `json:"orderable"`
	Blockers   []Blocker            `json:"blockers"`
}

// Check reports the stored status together with the ingredients blocking it.
func (c *Cascader) Check(ctx context.Context, id uuid.UUID) (*Availability, error) {
	item, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}
	stock, err := c.fetcher.FetchInventory(ctx, requiredIngredients(*item))
	if err != nil {
		return nil, err
	}
	verdict := Evaluate(*item, stock)
	blockers := verdict.Blockers
	if blockers == nil {
		blockers = []Blocker{}
	}
	return &Availability{
		MenuItemID: item.ID,
		Name:       item.Name,
		Status:     item.Status,
		Orderable:  item.Status == enums.MenuItemStatusActive,
		Blockers:   blockers,
	}, nil
}

// SetManualStatus handles an administrator switching a menu item off
// (inactive) or back on. Switching on lands on out_of_stock when a required
// ingredient is out.
func (c *Cascader) SetManualStatus(ctx context.Context, id uuid.UUID, status enums.MenuItemStatus) (*StatusChange, error) {
	item, err := c.load(ctx, id)
	if err != nil {
		return nil, err
	}

	switch status {
	case enums.MenuItemStatusInactive:
		if item.Status == enums.MenuItemStatusInactive {
			return nil, nil
		}
		return c.manualFlip(ctx, *item, enums.MenuItemStatusInactive, nil)
	case enums.MenuItemStatusActive:
		if item.Status != enums.MenuItemStatusInactive {
			return nil, nil
		}
		stock, err := c.fetcher.FetchInventory(ctx, requiredIngredients(*item))
		if err != nil {
			return nil, err
		}
		verdict := Evaluate(*item, stock)
		target := verdict.Status
		if target == "" {
			target = enums.MenuItemStatusActive
		}
		return c.manualFlip(ctx, *item, target, verdict.cause())
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be active or inactive")
	}
}

func (c *Cascader) manualFlip(ctx context.Context, item models.MenuItem, to enums.MenuItemStatus, cause *uuid.UUID) (*StatusChange, error) {
	change, err := c.flip(ctx, item, item.Status, to, cause)
	if err != nil {
		return nil, err
	}
	if change == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "menu item status changed concurrently")
	}
	return change, nil
}

func (c *Cascader) load(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	items, err := c.fetcher.FetchMenuItems(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	if missing := batch.Missing([]uuid.UUID{id}, items); len(missing) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
	}
	item := items[id]
	return &item, nil
}
