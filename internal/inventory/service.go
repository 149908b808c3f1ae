package inventory

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/payloads"
)

const maxCompareAndSetAttempts = 3

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes the admin operations on the stock ledger.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.InventoryItem, error)
	Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	List(ctx context.Context, params ListParams) ([]models.InventoryItem, error)
	Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error)
	UpdateThresholds(ctx context.Context, input ThresholdInput) (*models.InventoryItem, error)
	History(ctx context.Context, id uuid.UUID, limit int) ([]models.StockAdjustment, error)
	Reconcile(ctx context.Context) ([]Drift, error)
}

// CreateInput registers a new ingredient in the ledger.
type CreateInput struct {
	IngredientID  uuid.UUID
	Name          string
	Unit          string
	InitialStock  decimal.Decimal
	MinStockLevel decimal.Decimal
	MaxStockLevel decimal.Decimal
}

// AdjustInput is a manual stock write. Restock and waste apply Quantity as a
// delta; corrections and stocktakes set the stock to Quantity.
type AdjustInput struct {
	IngredientID uuid.UUID
	Reason       enums.AdjustmentReason
	Quantity     decimal.Decimal
	Note         *string
	Actor        *outbox.ActorRef
}

// AdjustResult reports the ledger row after the write.
type AdjustResult struct {
	Item       models.InventoryItem
	Adjustment models.StockAdjustment
	Transition Transition
}

// ThresholdInput replaces the min/max stock levels.
type ThresholdInput struct {
	IngredientID  uuid.UUID
	MinStockLevel decimal.Decimal
	MaxStockLevel decimal.Decimal
	Actor         *outbox.ActorRef
}

// Drift is an ingredient whose stock disagrees with its ledger history.
type Drift struct {
	IngredientID uuid.UUID       `json:"ingredientId"`
	Name         string          `json:"name"`
	Expected     decimal.Decimal `json:"expected"`
	Actual       decimal.Decimal `json:"actual"`
}

// ServiceParams wires the inventory service.
type ServiceParams struct {
	DB          txRunner
	Repo        Repository
	Outbox      outbox.Emitter
	Consumption ConsumptionTotals
	Handler     TransitionHandler
	Logger      *logger.Logger
	Clock       func() time.Time
}

type service struct {
	db          txRunner
	repo        Repository
	outbox      outbox.Emitter
	consumption ConsumptionTotals
	handler     TransitionHandler
	logg        *logger.Logger
	now         func() time.Time
}

// NewService validates dependencies and builds the inventory service.
func NewService(params ServiceParams) (Service, error) {
	if params.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory repository required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if params.Consumption == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "consumption totals required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	clock := params.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:          params.DB,
		repo:        params.Repo,
		outbox:      params.Outbox,
		consumption: params.Consumption,
		handler:     params.Handler,
		logg:        params.Logger,
		now:         clock,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.InventoryItem, error) {
	name := strings.TrimSpace(input.Name)
	unit := strings.TrimSpace(input.Unit)
	if name == "" || unit == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "name and unit are required")
	}
	if err := validateLevels(input.MinStockLevel, input.MaxStockLevel); err != nil {
		return nil, err
	}
	if input.InitialStock.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "initial stock must not be negative")
	}

	item := models.InventoryItem{
		IngredientID:  input.IngredientID,
		Name:          name,
		Unit:          unit,
		CurrentStock:  input.InitialStock,
		InitialStock:  input.InitialStock,
		MinStockLevel: input.MinStockLevel,
		MaxStockLevel: input.MaxStockLevel,
		LastUpdated:   s.now(),
	}
	if err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		return s.repo.WithTx(tx).Create(ctx, &item)
	}); err != nil {
		if dbpkg.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "ingredient already exists")
		}
		return nil, dbpkg.StorageError(err, "create inventory item")
	}

	s.react(ctx, []Transition{NewTransition(nil, item)})
	return &item, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, mapLookupError(err)
	}
	return item, nil
}

func (s *service) List(ctx context.Context, params ListParams) ([]models.InventoryItem, error) {
	if params.Status != nil && !params.Status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid stock status filter %q", *params.Status)
	}
	rows, err := s.repo.List(ctx, params)
	if err != nil {
		return nil, dbpkg.StorageError(err, "list inventory")
	}
	return rows, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*AdjustResult, error) {
	if input.IngredientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ingredient id is required")
	}
	if !input.Reason.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid adjustment reason %q", input.Reason)
	}
	if isDeltaReason(input.Reason) && !input.Quantity.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.Quantity.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "stock must not be negative")
	}

	ctx = s.logg.WithIngredientID(ctx, input.IngredientID.String())
	var result *AdjustResult
	for attempt := 1; attempt <= maxCompareAndSetAttempts; attempt++ {
		applied, err := s.tryAdjust(ctx, input)
		if err != nil {
			return nil, err
		}
		if applied != nil {
			result = applied
			break
		}
		s.logg.Warn(s.logg.WithField(ctx, "attempt", attempt), "stock changed during manual adjustment, retrying")
	}
	if result == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStockConflict, "stock changed concurrently, retry the adjustment")
	}

	logCtx := s.logg.WithFields(ctx, map[string]any{
		"reason":         input.Reason,
		"previous_stock": result.Adjustment.PreviousStock.String(),
		"new_stock":      result.Adjustment.NewStock.String(),
		"recorded_by":    result.Adjustment.RecordedBy,
	})
	s.logg.Info(logCtx, "stock adjusted")

	s.react(ctx, []Transition{result.Transition})
	return result, nil
}

// tryAdjust returns nil without error when the compare-and-set lost a race.
func (s *service) tryAdjust(ctx context.Context, input AdjustInput) (*AdjustResult, error) {
	var result *AdjustResult
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		before, err := repo.FindByID(ctx, input.IngredientID)
		if err != nil {
			return err
		}

		target := input.Quantity
		switch input.Reason {
		case enums.AdjustmentReasonRestock:
			target = before.CurrentStock.Add(input.Quantity)
		case enums.AdjustmentReasonWaste:
			target = before.CurrentStock.Sub(input.Quantity)
		}
		if target.IsNegative() {
			return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(map[string]any{
				"ingredientId": before.IngredientID,
				"required":     input.Quantity,
				"available":    before.CurrentStock,
			})
		}

		now := s.now()
		ok, err := repo.CompareAndSetStock(ctx, before.IngredientID, before.CurrentStock, target, now)
		if err != nil || !ok {
			return err
		}
		after, err := repo.FindByID(ctx, before.IngredientID)
		if err != nil {
			return err
		}

		adjustment := models.StockAdjustment{
			IngredientID:  before.IngredientID,
			Delta:         target.Sub(before.CurrentStock),
			PreviousStock: before.CurrentStock,
			NewStock:      target,
			Reason:        input.Reason,
			Note:          input.Note,
			RecordedBy:    actorID(input.Actor),
			CreatedAt:     now,
		}
		if err := repo.CreateAdjustment(ctx, &adjustment); err != nil {
			return err
		}

		transition := NewTransition(before, *after)
		if err := s.emitLevelChanged(ctx, tx, transition, string(input.Reason), input.Actor); err != nil {
			return err
		}
		result = &AdjustResult{Item: *after, Adjustment: adjustment, Transition: transition}
		return nil
	})
	if err != nil {
		return nil, mapLookupError(err)
	}
	return result, nil
}

func (s *service) UpdateThresholds(ctx context.Context, input ThresholdInput) (*models.InventoryItem, error) {
	if err := validateLevels(input.MinStockLevel, input.MaxStockLevel); err != nil {
		return nil, err
	}
	var (
		updated    models.InventoryItem
		transition Transition
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		before, err := repo.FindByID(ctx, input.IngredientID)
		if err != nil {
			return err
		}
		if err := repo.UpdateThresholds(ctx, input.IngredientID, input.MinStockLevel, input.MaxStockLevel, s.now()); err != nil {
			return err
		}
		after, err := repo.FindByID(ctx, input.IngredientID)
		if err != nil {
			return err
		}
		updated = *after
		transition = NewTransition(before, *after)
		if !transition.Changed() {
			return nil
		}
		return s.emitLevelChanged(ctx, tx, transition, "threshold_update", input.Actor)
	})
	if err != nil {
		return nil, mapLookupError(err)
	}

	s.react(ctx, []Transition{transition})
	return &updated, nil
}

func (s *service) History(ctx context.Context, id uuid.UUID, limit int) ([]models.StockAdjustment, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	rows, err := s.repo.ListAdjustments(ctx, id, limit)
	if err != nil {
		return nil, dbpkg.StorageError(err, "list stock adjustments")
	}
	return rows, nil
}

// Reconcile checks initial + adjustments - consumption == current for every
// ingredient.
func (s *service) Reconcile(ctx context.Context) ([]Drift, error) {
	items, err := s.repo.List(ctx, ListParams{})
	if err != nil {
		return nil, dbpkg.StorageError(err, "list inventory")
	}
	adjustments, err := s.repo.AdjustmentTotals(ctx)
	if err != nil {
		return nil, dbpkg.StorageError(err, "sum stock adjustments")
	}
	consumed, err := s.consumption.ConsumedTotals(ctx)
	if err != nil {
		return nil, dbpkg.StorageError(err, "sum consumption records")
	}

	var drift []Drift
	for _, item := range items {
		expected := item.InitialStock.Add(adjustments[item.IngredientID]).Sub(consumed[item.IngredientID])
		if expected.Equal(item.CurrentStock) {
			continue
		}
		drift = append(drift, Drift{
			IngredientID: item.IngredientID,
			Name:         item.Name,
			Expected:     expected,
			Actual:       item.CurrentStock,
		})
	}
	return drift, nil
}

func (s *service) emitLevelChanged(ctx context.Context, tx *gorm.DB, t Transition, cause string, actor *outbox.ActorRef) error {
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventStockLevelChanged,
		AggregateType: enums.AggregateIngredient,
		AggregateID:   t.IngredientID,
		Actor:         actor,
		Data: payloads.StockLevelChangedEvent{
			IngredientID:   t.IngredientID,
			Name:           t.Name,
			Unit:           t.Unit,
			PreviousStock:  t.PreviousStock,
			NewStock:       t.NewStock,
			PreviousStatus: t.OldStatus,
			NewStatus:      t.NewStatus,
			Cause:          cause,
		},
	})
}

func (s *service) react(ctx context.Context, transitions []Transition) {
	if s.handler == nil {
		return
	}
	s.handler.HandleTransitions(ctx, transitions)
}

func validateLevels(minLevel, maxLevel decimal.Decimal) error {
	if minLevel.IsNegative() || maxLevel.IsNegative() {
		return pkgerrors.New(pkgerrors.CodeValidation, "stock levels must not be negative")
	}
	if maxLevel.IsPositive() && maxLevel.LessThan(minLevel) {
		return pkgerrors.New(pkgerrors.CodeValidation, "max stock level must not be below min stock level")
	}
	return nil
}

func isDeltaReason(reason enums.AdjustmentReason) bool {
	return reason == enums.AdjustmentReasonRestock || reason == enums.AdjustmentReasonWaste
}

func actorID(actor *outbox.ActorRef) string {
	if actor == nil || actor.StaffID == "" {
		return outbox.SystemActor.StaffID
	}
	return actor.StaffID
}

func mapLookupError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "ingredient not found")
	}
	return dbpkg.StorageError(err, "inventory storage")
}
