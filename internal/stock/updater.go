// Package stock validates and applies an order's aggregated demand against
// the stock ledger.
package stock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/internal/consumption"
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
	causeOrder        = "order"
	causeCompensation = "compensation"
)

var errGuardRejected = errors.New("guarded decrement rejected")

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Shortfall is one ingredient that cannot cover its demand.
type Shortfall struct {
	IngredientID uuid.UUID       `json:"ingredientId"`
	Name         string          `json:"name"`
	Unit         string          `json:"unit"`
	Required     decimal.Decimal `json:"required"`
	Available    decimal.Decimal `json:"available"`
}

// Consumed is the committed outcome for one ingredient.
type Consumed struct {
	IngredientID uuid.UUID         `json:"ingredientId"`
	Quantity     decimal.Decimal   `json:"quantity"`
	NewStock     decimal.Decimal   `json:"newStock"`
	NewStatus    enums.StockStatus `json:"newStatus"`
}

// CommitResult lists what an order consumed and the status transitions it
// caused.
type CommitResult struct {
	Consumed    []Consumed
	Transitions []inventory.Transition
}

// Params wires the updater.
type Params struct {
	DB                   txRunner
	Inventory            inventory.Repository
	Ledger               consumption.Repository
	Outbox               outbox.Emitter
	Logger               *logger.Logger
	Metrics              *metrics.EngineMetrics
	CompensationAttempts int
	CommitTimeout        time.Duration
	Clock                func() time.Time
}

// Updater is the only writer of order-driven stock decrements.
type Updater struct {
	db                   txRunner
	inventory            inventory.Repository
	ledger               consumption.Repository
	outbox               outbox.Emitter
	logg                 *logger.Logger
	metrics              *metrics.EngineMetrics
	compensationAttempts int
	commitTimeout        time.Duration
	now                  func() time.Time
}

// NewUpdater validates dependencies and builds an Updater.
func NewUpdater(p Params) (*Updater, error) {
	if p.DB == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "transaction runner required")
	}
	if p.Inventory == nil || p.Ledger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "inventory and ledger repositories required")
	}
	if p.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "outbox emitter required")
	}
	if p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logger required")
	}
	attempts := p.CompensationAttempts
	if attempts < 1 {
		attempts = 1
	}
	clock := p.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &Updater{
		db:                   p.DB,
		inventory:            p.Inventory,
		ledger:               p.Ledger,
		outbox:               p.Outbox,
		logg:                 p.Logger,
		metrics:              p.Metrics,
		compensationAttempts: attempts,
		commitTimeout:        p.CommitTimeout,
		now:                  clock,
	}, nil
}

// Validate checks every demanded ingredient against the plan's snapshot and
// reports all shortfalls at once. It never writes.
func (u *Updater) Validate(plan *consumption.Plan) error {
	var shortfalls []Shortfall
	for _, id := range plan.IngredientIDs() {
		demand := plan.Demand[id]
		item, ok := plan.Inventory[id]
		if !ok {
			return pkgerrors.New(pkgerrors.CodeUnknownIngredient, "menu item references unknown ingredients").
				WithDetails(map[string]any{"ingredientIds": []uuid.UUID{id}})
		}
		if item.CurrentStock.LessThan(demand) {
			shortfalls = append(shortfalls, Shortfall{
				IngredientID: id,
				Name:         item.Name,
				Unit:         item.Unit,
				Required:     demand,
				Available:    item.CurrentStock,
			})
		}
	}
	if len(shortfalls) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").
			WithDetails(map[string]any{"shortfalls": shortfalls})
	}
	return nil
}

type committedIngredient struct {
	id       uuid.UUID
	quantity decimal.Decimal
}

// Commit applies the plan one ingredient at a time in ascending id order.
// Each ingredient commits its claim, guarded decrement and ledger records
// in one transaction. If any ingredient fails, the ones already committed
// are restored before the error is returned.
func (u *Updater) Commit(ctx context.Context, plan *consumption.Plan, actor *outbox.ActorRef) (*CommitResult, error) {
	if u.commitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, u.commitTimeout)
		defer cancel()
	}
	start := time.Now()
	defer func() { u.metrics.ObserveCommit(time.Since(start)) }()

	result := &CommitResult{}
	committed := make([]committedIngredient, 0, len(plan.Demand))
	for _, id := range plan.IngredientIDs() {
		qty := plan.Demand[id]
		transition, err := u.commitIngredient(ctx, plan, id, qty, actor)
		if err == nil {
			committed = append(committed, committedIngredient{id: id, quantity: qty})
			result.Transitions = append(result.Transitions, transition)
			result.Consumed = append(result.Consumed, Consumed{
				IngredientID: id,
				Quantity:     qty,
				NewStock:     transition.NewStock,
				NewStatus:    transition.NewStatus,
			})
			continue
		}

		failCtx := u.logg.WithIngredientID(ctx, id.String())
		if compErr := u.compensate(ctx, plan.OrderID, committed, actor); compErr != nil {
			u.logg.Error(failCtx, "stock compensation incomplete", compErr)
			return nil, pkgerrors.Wrap(pkgerrors.CodeStorageUnavailable, multierr.Append(err, compErr), "stock commit interrupted")
		}
		if errors.Is(err, errGuardRejected) || errors.Is(err, consumption.ErrAlreadyClaimed) {
			u.logg.Warn(failCtx, "guarded decrement rejected, order rolled back")
			return nil, pkgerrors.Wrap(pkgerrors.CodeStockConflict, err, "stock changed concurrently, retry the order").
				WithDetails(map[string]any{"ingredientId": id})
		}
		if errors.Is(err, inventory.ErrNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeUnknownIngredient, err, "menu item references unknown ingredients").
				WithDetails(map[string]any{"ingredientIds": []uuid.UUID{id}})
		}
		return nil, dbpkg.StorageError(err, "commit stock")
	}
	return result, nil
}

func (u *Updater) commitIngredient(ctx context.Context, plan *consumption.Plan, id uuid.UUID, qty decimal.Decimal, actor *outbox.ActorRef) (inventory.Transition, error) {
	var transition inventory.Transition
	err := u.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := u.inventory.WithTx(tx)
		ledger := u.ledger.WithTx(tx)
		now := u.now()

		if err := ledger.InsertClaim(ctx, &models.StockClaim{
			OrderID:      plan.OrderID,
			IngredientID: id,
			Quantity:     qty,
			OrderDigest:  plan.Digest,
			CreatedAt:    now,
		}); err != nil {
			return err
		}
		ok, err := repo.GuardedDecrement(ctx, id, qty, now)
		if err != nil {
			return err
		}
		if !ok {
			return errGuardRejected
		}
		after, err := repo.FindByID(ctx, id)
		if err != nil {
			return err
		}

		contributions := plan.ContributionsFor(id)
		records := make([]models.ConsumptionRecord, 0, len(contributions))
		for _, c := range contributions {
			records = append(records, models.ConsumptionRecord{
				IngredientID:     id,
				MenuItemID:       c.MenuItemID,
				OrderID:          plan.OrderID,
				LineIndex:        c.LineIndex,
				QuantityConsumed: c.Quantity,
				Unit:             after.Unit,
				Reason:           enums.ConsumptionReasonOrder,
				RecordedBy:       recorder(actor),
				RecordedAt:       now,
			})
		}
		if err := ledger.AppendRecords(ctx, records); err != nil {
			return err
		}

		previous := after.CurrentStock.Add(qty)
		transition = inventory.Transition{
			IngredientID:  id,
			Name:          after.Name,
			Unit:          after.Unit,
			PreviousStock: previous,
			NewStock:      after.CurrentStock,
			MinStockLevel: after.MinStockLevel,
			OldStatus:     enums.DeriveStockStatus(previous, after.MinStockLevel),
			NewStatus:     after.Status,
		}
		return u.emitLevelChanged(ctx, tx, transition, causeOrder, plan.OrderID, actor)
	})
	return transition, err
}

// compensate restores every committed ingredient in reverse order. It keeps
// going after a failure so that as much stock as possible is restored, and
// runs detached from the caller's cancellation.
func (u *Updater) compensate(ctx context.Context, orderID uuid.UUID, committed []committedIngredient, actor *outbox.ActorRef) error {
	if len(committed) == 0 {
		return nil
	}
	ctx = context.WithoutCancel(ctx)
	ctx = u.logg.WithOrderID(ctx, orderID.String())

	var errs error
	for i := len(committed) - 1; i >= 0; i-- {
		c := committed[i]
		var err error
		for attempt := 1; attempt <= u.compensationAttempts; attempt++ {
			if err = u.restoreIngredient(ctx, orderID, c, actor); err == nil {
				break
			}
		}
		logCtx := u.logg.WithFields(ctx, map[string]any{
			"ingredient_id": c.id.String(),
			"quantity":      c.quantity.String(),
		})
		if err != nil {
			u.metrics.IncCompensation("failed")
			errs = multierr.Append(errs, fmt.Errorf("restore ingredient %s: %w", c.id, err))
			continue
		}
		u.metrics.IncCompensation("ok")
		u.logg.Info(logCtx, "stock.compensated")
	}
	return errs
}

func (u *Updater) restoreIngredient(ctx context.Context, orderID uuid.UUID, c committedIngredient, actor *outbox.ActorRef) error {
	return u.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := u.inventory.WithTx(tx)
		ledger := u.ledger.WithTx(tx)

		if err := ledger.DeleteRecords(ctx, orderID, c.id); err != nil {
			return err
		}
		if err := ledger.DeleteClaim(ctx, orderID, c.id); err != nil {
			return err
		}
		if err := repo.Increment(ctx, c.id, c.quantity, u.now()); err != nil {
			return err
		}
		after, err := repo.FindByID(ctx, c.id)
		if err != nil {
			return err
		}
		previous := after.CurrentStock.Sub(c.quantity)
		return u.emitLevelChanged(ctx, tx, inventory.Transition{
			IngredientID:  c.id,
			Name:          after.Name,
			Unit:          after.Unit,
			PreviousStock: previous,
			NewStock:      after.CurrentStock,
			OldStatus:     enums.DeriveStockStatus(previous, after.MinStockLevel),
			NewStatus:     after.Status,
		}, causeCompensation, orderID, actor)
	})
}

func (u *Updater) emitLevelChanged(ctx context.Context, tx *gorm.DB, t inventory.Transition, cause string, orderID uuid.UUID, actor *outbox.ActorRef) error {
	return u.outbox.Emit(ctx, tx, outbox.DomainEvent{
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
			OrderID:        &orderID,
		},
	})
}

func recorder(actor *outbox.ActorRef) string {
	if actor == nil || actor.StaffID == "" {
		return outbox.SystemActor.StaffID
	}
	return actor.StaffID
}
