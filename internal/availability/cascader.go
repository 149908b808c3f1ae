// Package availability keeps menu item status in step with ingredient stock.
// It only ever moves items between active and out_of_stock.
package availability

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	"github.com/angelmondragon/kitchenstock-backend/internal/menu"
	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/payloads"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Fetcher is the batch read side used to evaluate ingredient availability.
type Fetcher interface {
	FetchMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error)
	FetchInventory(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error)
}

// StatusChange is one applied menu item flip.
type StatusChange struct {
	MenuItemID   uuid.UUID            `json:"menuItemId"`
	Name         string               `json:"name"`
	From         enums.MenuItemStatus `json:"from"`
	To           enums.MenuItemStatus `json:"to"`
	IngredientID *uuid.UUID           `json:"ingredientId,omitempty"`
}

// Params wires the cascader.
type Params struct {
	DB      txRunner
	Menu    menu.Repository
	Fetcher Fetcher
	Outbox  outbox.Emitter
	Logger  *logger.Logger
	Metrics *metrics.EngineMetrics
}

// Cascader flips menu items when their required ingredients run out or recover.
type Cascader struct {
	db      txRunner
	menu    menu.Repository
	fetcher Fetcher
	outbox  outbox.Emitter
	logg    *logger.Logger
	metrics *metrics.EngineMetrics
}

// NewCascader validates dependencies and builds a Cascader.
func NewCascader(p Params) (*Cascader, error) {
	if p.DB == nil || p.Menu == nil || p.Fetcher == nil || p.Outbox == nil || p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "cascader dependencies required")
	}
	return &Cascader{
		db:      p.DB,
		menu:    p.Menu,
		fetcher: p.Fetcher,
		outbox:  p.Outbox,
		logg:    p.Logger,
		metrics: p.Metrics,
	}, nil
}

// Apply reacts to status transitions. Unchanged transitions are ignored.
// Failures for one transition do not stop the others; they are combined in
// the returned error alongside the changes that did apply.
func (c *Cascader) Apply(ctx context.Context, transitions []inventory.Transition) ([]StatusChange, error) {
	var (
		changes []StatusChange
		errs    error
	)
	for _, t := range transitions {
		if !t.Changed() {
			continue
		}
		var (
			applied []StatusChange
			err     error
		)
		switch {
		case t.NewStatus == enums.StockStatusOutOfStock:
			applied, err = c.disableDependents(ctx, t.IngredientID)
		case t.OldStatus == enums.StockStatusOutOfStock:
			applied, err = c.reenableDependents(ctx, t.IngredientID)
		}
		changes = append(changes, applied...)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("cascade ingredient %s: %w", t.IngredientID, err))
		}
	}
	return changes, errs
}

func (c *Cascader) disableDependents(ctx context.Context, ingredientID uuid.UUID) ([]StatusChange, error) {
	items, err := c.menu.FindRequiring(ctx, ingredientID, enums.MenuItemStatusActive)
	if err != nil {
		return nil, dbpkg.StorageError(err, "find dependent menu items")
	}
	var (
		changes []StatusChange
		errs    error
	)
	for _, item := range items {
		change, err := c.flip(ctx, item, enums.MenuItemStatusActive, enums.MenuItemStatusOutOfStock, &ingredientID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, errs
}

func (c *Cascader) reenableDependents(ctx context.Context, ingredientID uuid.UUID) ([]StatusChange, error) {
	items, err := c.menu.FindRequiring(ctx, ingredientID, enums.MenuItemStatusOutOfStock)
	if err != nil {
		return nil, dbpkg.StorageError(err, "find dependent menu items")
	}
	if len(items) == 0 {
		return nil, nil
	}
	stock, err := c.fetcher.FetchInventory(ctx, requiredIngredients(items...))
	if err != nil {
		return nil, err
	}
	var (
		changes []StatusChange
		errs    error
	)
	for _, item := range items {
		if Evaluate(item, stock).Status != enums.MenuItemStatusActive {
			continue
		}
		change, err := c.flip(ctx, item, enums.MenuItemStatusOutOfStock, enums.MenuItemStatusActive, &ingredientID)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, errs
}

// Recompute re-evaluates the given menu items from current stock. Inactive
// items are skipped.
func (c *Cascader) Recompute(ctx context.Context, ids []uuid.UUID) ([]StatusChange, error) {
	items, err := c.fetcher.FetchMenuItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	list := make([]models.MenuItem, 0, len(items))
	for _, item := range items {
		list = append(list, item)
	}
	return c.recompute(ctx, list)
}

// Resync re-evaluates every active and out_of_stock menu item. It converges
// any cascade that failed after a committed stock write.
func (c *Cascader) Resync(ctx context.Context) ([]StatusChange, error) {
	var items []models.MenuItem
	for _, status := range []enums.MenuItemStatus{enums.MenuItemStatusActive, enums.MenuItemStatusOutOfStock} {
		s := status
		rows, err := c.menu.List(ctx, menu.ListParams{Status: &s})
		if err != nil {
			return nil, dbpkg.StorageError(err, "list menu items")
		}
		items = append(items, rows...)
	}
	return c.recompute(ctx, items)
}

func (c *Cascader) recompute(ctx context.Context, items []models.MenuItem) ([]StatusChange, error) {
	if len(items) == 0 {
		return nil, nil
	}
	stock, err := c.fetcher.FetchInventory(ctx, requiredIngredients(items...))
	if err != nil {
		return nil, err
	}
	var (
		changes []StatusChange
		errs    error
	)
	for _, item := range items {
		if item.Status == enums.MenuItemStatusInactive {
			continue
		}
		want := Evaluate(item, stock)
		if want.Status == "" || want.Status == item.Status {
			continue
		}
		change, err := c.flip(ctx, item, item.Status, want.Status, want.cause())
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if change != nil {
			changes = append(changes, *change)
		}
	}
	return changes, errs
}

// flip applies a conditional status change and emits its event in the same
// transaction. A nil change means the row no longer held from.
func (c *Cascader) flip(ctx context.Context, item models.MenuItem, from, to enums.MenuItemStatus, ingredientID *uuid.UUID) (*StatusChange, error) {
	var change *StatusChange
	err := c.db.WithTx(ctx, func(tx *gorm.DB) error {
		ok, err := c.menu.WithTx(tx).TransitionStatus(ctx, item.ID, from, to)
		if err != nil || !ok {
			return err
		}
		change = &StatusChange{MenuItemID: item.ID, Name: item.Name, From: from, To: to, IngredientID: ingredientID}
		return c.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMenuItemAvailabilityChanged,
			AggregateType: enums.AggregateMenuItem,
			AggregateID:   item.ID,
			Data: payloads.MenuItemAvailabilityChangedEvent{
				MenuItemID:   item.ID,
				Name:         item.Name,
				From:         from,
				To:           to,
				IngredientID: ingredientID,
			},
		})
	})
	if err != nil {
		return nil, dbpkg.StorageError(err, "flip menu item status")
	}
	if change != nil {
		c.metrics.IncMenuFlip(string(to))
		logCtx := c.logg.WithFields(c.logg.WithMenuItemID(ctx, item.ID.String()), map[string]any{
			"from": from,
			"to":   to,
		})
		c.logg.Info(logCtx, "menu item availability changed")
	}
	return change, nil
}

func requiredIngredients(items ...models.MenuItem) []uuid.UUID {
	var ids []uuid.UUID
	for _, item := range items {
		for _, ingredient := range item.Ingredients {
			if ingredient.Required {
				ids = append(ids, ingredient.IngredientID)
			}
		}
	}
	return ids
}
