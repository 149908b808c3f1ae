// Package alerts keeps at most one open low/out-of-stock alert per
// ingredient and condition, and resolves alerts once stock recovers.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/payloads"
)

const (
	ActionRaised   = "raised"
	ActionResolved = "resolved"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockLister interface {
	List(ctx context.Context, params inventory.ListParams) ([]models.InventoryItem, error)
}

// Change is one alert raised or resolved.
type Change struct {
	AlertID      uuid.UUID       `json:"alertId"`
	Type         enums.AlertType `json:"type"`
	IngredientID uuid.UUID       `json:"ingredientId"`
	Action       string          `json:"action"`
}

// Params wires the deduplicator.
type Params struct {
	DB        txRunner
	Repo      Repository
	Inventory stockLister
	Outbox    outbox.Emitter
	Logger    *logger.Logger
	Metrics   *metrics.EngineMetrics
	Clock     func() time.Time
}

// Deduplicator raises and resolves stock alerts from ingredient status.
type Deduplicator struct {
	db        txRunner
	repo      Repository
	inventory stockLister
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.EngineMetrics
	clock     func() time.Time
}

func NewDeduplicator(p Params) (*Deduplicator, error) {
	if p.DB == nil || p.Repo == nil || p.Inventory == nil || p.Outbox == nil || p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "alert deduplicator dependencies required")
	}
	clock := p.Clock
	if clock == nil {
		clock = time.Now
	}
	return &Deduplicator{
		db:        p.DB,
		repo:      p.Repo,
		inventory: p.Inventory,
		outbox:    p.Outbox,
		logg:      p.Logger,
		metrics:   p.Metrics,
		clock:     clock,
	}, nil
}

// Apply reconciles alerts for every transition that changed status.
func (d *Deduplicator) Apply(ctx context.Context, transitions []inventory.Transition) ([]Change, error) {
	var (
		changes []Change
		errs    error
	)
	for _, t := range transitions {
		if !t.Changed() {
			continue
		}
		applied, err := d.reconcile(ctx, models.InventoryItem{
			IngredientID:  t.IngredientID,
			Name:          t.Name,
			Unit:          t.Unit,
			CurrentStock:  t.NewStock,
			MinStockLevel: t.MinStockLevel,
			Status:        t.NewStatus,
		})
		changes = append(changes, applied...)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("alerts ingredient %s: %w", t.IngredientID, err))
		}
	}
	return changes, errs
}

// Sync reconciles alerts against the whole ledger. Status is re-derived from
// stock so a stale stored status cannot keep an alert open.
func (d *Deduplicator) Sync(ctx context.Context) ([]Change, error) {
	items, err := d.inventory.List(ctx, inventory.ListParams{})
	if err != nil {
		return nil, dbpkg.StorageError(err, "list inventory")
	}
	var (
		changes []Change
		errs    error
	)
	for _, item := range items {
		item.Status = item.DerivedStatus()
		applied, err := d.reconcile(ctx, item)
		changes = append(changes, applied...)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("alerts ingredient %s: %w", item.IngredientID, err))
		}
	}
	return changes, errs
}

// reconcile leaves open only the alert matching the ingredient's status.
func (d *Deduplicator) reconcile(ctx context.Context, item models.InventoryItem) ([]Change, error) {
	want, raise := enums.AlertTypeForStatus(item.Status)
	var changes []Change
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		changes = changes[:0]
		repo := d.repo.WithTx(tx)
		open, err := repo.OpenForIngredient(ctx, item.IngredientID)
		if err != nil {
			return err
		}
		hasWanted := false
		for _, alert := range open {
			if raise && alert.Type == want {
				hasWanted = true
				continue
			}
			ok, err := d.resolve(ctx, tx, alert, item)
			if err != nil {
				return err
			}
			if ok {
				changes = append(changes, Change{AlertID: alert.ID, Type: alert.Type, IngredientID: item.IngredientID, Action: ActionResolved})
			}
		}
		if !raise || hasWanted {
			return nil
		}
		alert, err := d.raise(ctx, tx, want, item)
		if err != nil {
			return err
		}
		if alert != nil {
			changes = append(changes, Change{AlertID: alert.ID, Type: want, IngredientID: item.IngredientID, Action: ActionRaised})
		}
		return nil
	})
	if err != nil {
		return nil, dbpkg.StorageError(err, "reconcile stock alerts")
	}
	d.record(ctx, changes)
	return changes, nil
}

// raise inserts the alert inside a savepoint. A unique violation means a
// concurrent writer opened the same alert first, which is the desired state.
func (d *Deduplicator) raise(ctx context.Context, tx *gorm.DB, alertType enums.AlertType, item models.InventoryItem) (*models.StockAlert, error) {
	alert := &models.StockAlert{
		ID:             uuid.New(),
		Type:           alertType,
		RelatedID:      item.IngredientID,
		StockAtTrigger: item.CurrentStock,
		Message:        alertMessage(alertType, item),
		CreatedAt:      d.clock().UTC(),
	}
	err := tx.Transaction(func(sp *gorm.DB) error {
		if err := d.repo.WithTx(sp).Create(ctx, alert); err != nil {
			return err
		}
		return d.emit(ctx, sp, enums.EventStockAlertRaised, *alert, item)
	})
	if dbpkg.IsUniqueViolation(err, "") {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return alert, nil
}

func (d *Deduplicator) resolve(ctx context.Context, tx *gorm.DB, alert models.StockAlert, item models.InventoryItem) (bool, error) {
	ok, err := d.repo.WithTx(tx).Resolve(ctx, alert.ID, d.clock().UTC())
	if err != nil || !ok {
		return false, err
	}
	return true, d.emit(ctx, tx, enums.EventStockAlertResolved, alert, item)
}

func (d *Deduplicator) emit(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, alert models.StockAlert, item models.InventoryItem) error {
	return d.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateStockAlert,
		AggregateID:   alert.ID,
		Data: payloads.StockAlertEvent{
			AlertID:        alert.ID,
			Type:           alert.Type,
			IngredientID:   item.IngredientID,
			IngredientName: item.Name,
			Stock:          item.CurrentStock,
			Unit:           item.Unit,
			Message:        alert.Message,
		},
	})
}

func (d *Deduplicator) record(ctx context.Context, changes []Change) {
	for _, change := range changes {
		d.metrics.IncAlert(change.Action, string(change.Type))
		logCtx := d.logg.WithFields(d.logg.WithIngredientID(ctx, change.IngredientID.String()), map[string]any{
			"alert_id":   change.AlertID.String(),
			"alert_type": change.Type,
		})
		d.logg.Info(logCtx, "stock alert "+change.Action)
	}
}

// List returns alerts matching params.
func (d *Deduplicator) List(ctx context.Context, params ListParams) ([]models.StockAlert, error) {
	rows, err := d.repo.List(ctx, params)
	if err != nil {
		return nil, dbpkg.StorageError(err, "list stock alerts")
	}
	return rows, nil
}

// Resolve closes an alert on staff request. The alert is raised again on the
// next status change if the condition persists.
func (d *Deduplicator) Resolve(ctx context.Context, id uuid.UUID) (*models.StockAlert, error) {
	var resolved *models.StockAlert
	err := d.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := d.repo.WithTx(tx)
		alert, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}
		if alert.IsResolved {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "alert already resolved")
		}
		ok, err := d.resolve(ctx, tx, *alert, models.InventoryItem{IngredientID: alert.RelatedID, CurrentStock: alert.StockAtTrigger})
		if err != nil {
			return err
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "alert already resolved")
		}
		resolved, err = repo.FindByID(ctx, id)
		return err
	})
	if errors.Is(err, ErrNotFound) {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "alert not found")
	}
	if err != nil {
		return nil, dbpkg.StorageError(err, "resolve stock alert")
	}
	d.record(ctx, []Change{{AlertID: resolved.ID, Type: resolved.Type, IngredientID: resolved.RelatedID, Action: ActionResolved}})
	return resolved, nil
}

func alertMessage(alertType enums.AlertType, item models.InventoryItem) string {
	switch alertType {
	case enums.AlertTypeOutOfStock:
		return fmt.Sprintf("%s is out of stock", item.Name)
	default:
		return fmt.Sprintf("%s is running low: %s %s left (minimum %s)",
			item.Name, item.CurrentStock.String(), item.Unit, item.MinStockLevel.String())
	}
}
