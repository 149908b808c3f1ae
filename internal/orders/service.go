// Package orders runs an order submission through the consumption engine:
// calculate demand, validate, commit, then react.
package orders

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/internal/alerts"
	"github.com/angelmondragon/kitchenstock-backend/internal/availability"
	"github.com/angelmondragon/kitchenstock-backend/internal/consumption"
	"github.com/angelmondragon/kitchenstock-backend/internal/stock"
	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/kitchenstock-backend/pkg/redis"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type calculator interface {
	Calculate(ctx context.Context, orderID uuid.UUID, lines []consumption.LineItem) (*consumption.Plan, error)
}

type updater interface {
	Validate(plan *consumption.Plan) error
	Commit(ctx context.Context, plan *consumption.Plan, actor *outbox.ActorRef) (*stock.CommitResult, error)
}

type claimReader interface {
	ClaimsForOrder(ctx context.Context, orderID uuid.UUID) ([]models.StockClaim, error)
}

// Cache is the redis surface used for order locks and replay responses.
type Cache interface {
	redis.LockStore
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	OrderLockKey(orderID string) string
	ReplayKey(orderID string) string
}

// Submission is one order handed to the engine.
type Submission struct {
	OrderID uuid.UUID
	Items   []consumption.LineItem
	Actor   *outbox.ActorRef
}

// Result is the outcome of a committed (or replayed) order.
type Result struct {
	OrderID                 uuid.UUID                   `json:"orderId"`
	Replayed                bool                        `json:"replayed"`
	ConsumedIngredients     []stock.Consumed            `json:"consumedIngredients"`
	UpdatedMenuItemStatuses []availability.StatusChange `json:"updatedMenuItemStatuses"`
	Alerts                  []alerts.Change             `json:"alerts"`
}

// Service submits orders to the engine.
type Service interface {
	Submit(ctx context.Context, submission Submission) (*Result, error)
}

// ServiceParams wires the order service. Cache is optional; without it the
// stock claims alone make resubmission safe.
type ServiceParams struct {
	DB         txRunner
	Calculator calculator
	Updater    updater
	Claims     claimReader
	Reactor    *Reactor
	Outbox     outbox.Emitter
	Cache      Cache
	Logger     *logger.Logger
	Metrics    *metrics.EngineMetrics
	LockTTL    time.Duration
	ReplayTTL  time.Duration
	Clock      func() time.Time
}

type service struct {
	db         txRunner
	calculator calculator
	updater    updater
	claims     claimReader
	reactor    *Reactor
	outbox     outbox.Emitter
	cache      Cache
	logg       *logger.Logger
	metrics    *metrics.EngineMetrics
	lockTTL    time.Duration
	replayTTL  time.Duration
	now        func() time.Time
}

const defaultLockTTL = 30 * time.Second

func NewService(p ServiceParams) (Service, error) {
	if p.DB == nil || p.Calculator == nil || p.Updater == nil || p.Claims == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order engine dependencies required")
	}
	if p.Reactor == nil || p.Outbox == nil || p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "order reactor, outbox and logger required")
	}
	lockTTL := p.LockTTL
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	clock := p.Clock
	if clock == nil {
		clock = func() time.Time { return time.Now().UTC() }
	}
	return &service{
		db:         p.DB,
		calculator: p.Calculator,
		updater:    p.Updater,
		claims:     p.Claims,
		reactor:    p.Reactor,
		outbox:     p.Outbox,
		cache:      p.Cache,
		logg:       p.Logger,
		metrics:    p.Metrics,
		lockTTL:    lockTTL,
		replayTTL:  p.ReplayTTL,
		now:        clock,
	}, nil
}

// Submit either consumes the whole order or rejects it with an itemized
// reason. Resubmitting a committed order returns the original outcome
// without consuming again.
func (s *service) Submit(ctx context.Context, submission Submission) (*Result, error) {
	ctx = s.logg.WithOrderID(ctx, submission.OrderID.String())
	result, err := s.submit(ctx, submission)
	switch {
	case err != nil:
		s.metrics.IncOrder(string(pkgerrors.CodeOf(err)))
	case result.Replayed:
		s.metrics.IncOrder("replayed")
	default:
		s.metrics.IncOrder("committed")
	}
	return result, err
}

func (s *service) submit(ctx context.Context, submission Submission) (*Result, error) {
	if submission.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id is required")
	}

	release, err := s.lock(ctx, submission.OrderID)
	if err != nil {
		return nil, err
	}
	defer release()

	digest := consumption.LinesDigest(submission.Items)
	cached, err := s.cachedResult(ctx, submission.OrderID, digest)
	if err != nil {
		return nil, err
	}
	if cached != nil {
		return cached, nil
	}

	plan, err := s.calculator.Calculate(ctx, submission.OrderID, submission.Items)
	if err != nil {
		return nil, err
	}

	claims, err := s.claims.ClaimsForOrder(ctx, submission.OrderID)
	if err != nil {
		return nil, dbpkg.StorageError(err, "load order claims")
	}
	if len(claims) > 0 {
		claimed := make(map[uuid.UUID]struct{}, len(claims))
		for _, claim := range claims {
			if claim.OrderDigest != plan.Digest {
				return nil, errOrderReused(submission.OrderID)
			}
			claimed[claim.IngredientID] = struct{}{}
		}
		remaining := plan.Without(claimed)
		if remaining.Empty() {
			s.logg.Info(ctx, "order already consumed, replaying")
			return replayFromClaims(plan, claims), nil
		}
		s.logg.Warn(s.logg.WithField(ctx, "claimed_ingredients", len(claims)), "resuming partially consumed order")
		plan = remaining
	}

	if err := s.updater.Validate(plan); err != nil {
		return nil, err
	}
	committed, err := s.updater.Commit(ctx, plan, submission.Actor)
	if err != nil {
		return nil, err
	}

	reaction := s.reactor.React(ctx, committed.Transitions)
	result := &Result{
		OrderID:                 submission.OrderID,
		ConsumedIngredients:     committed.Consumed,
		UpdatedMenuItemStatuses: nonNilChanges(reaction.StatusChanges),
		Alerts:                  nonNilAlerts(reaction.AlertChanges),
	}
	s.emitConsumed(ctx, submission, committed)
	s.cacheResult(ctx, digest, result)

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"ingredients":        len(committed.Consumed),
		"menu_status_change": len(result.UpdatedMenuItemStatuses),
	}), "order consumed")
	return result, nil
}

// lock serializes submissions of the same order id. Redis being unavailable
// degrades to claim-only protection rather than failing the order.
func (s *service) lock(ctx context.Context, orderID uuid.UUID) (func(), error) {
	noop := func() {}
	if s.cache == nil {
		return noop, nil
	}
	lock, err := redis.NewLock(s.cache, s.cache.OrderLockKey(orderID.String()), s.lockTTL)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build order lock")
	}
	ok, err := lock.Acquire(ctx)
	if err != nil {
		s.logg.Error(ctx, "order lock unavailable, continuing without it", err)
		return noop, nil
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStockConflict, "order is already being processed").
			WithDetails(map[string]any{"orderId": orderID})
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "release order lock")
		}
	}, nil
}

// replayEntry is the cached outcome of a committed order together with the
// digest of the lines that produced it.
type replayEntry struct {
	Digest string `json:"digest"`
	Result Result `json:"result"`
}

func (s *service) cachedResult(ctx context.Context, orderID uuid.UUID, digest string) (*Result, error) {
	if s.cache == nil || s.replayTTL <= 0 {
		return nil, nil
	}
	raw, err := s.cache.Get(ctx, s.cache.ReplayKey(orderID.String()))
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "read replay cache")
		}
		return nil, nil
	}
	var entry replayEntry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "decode replay cache")
		return nil, nil
	}
	if entry.Digest != digest {
		return nil, errOrderReused(orderID)
	}
	result := entry.Result
	result.Replayed = true
	return &result, nil
}

func (s *service) cacheResult(ctx context.Context, digest string, result *Result) {
	if s.cache == nil || s.replayTTL <= 0 {
		return
	}
	raw, err := json.Marshal(replayEntry{Digest: digest, Result: *result})
	if err != nil {
		return
	}
	if err := s.cache.Set(context.WithoutCancel(ctx), s.cache.ReplayKey(result.OrderID.String()), string(raw), s.replayTTL); err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "write replay cache")
	}
}

func errOrderReused(orderID uuid.UUID) error {
	return pkgerrors.New(pkgerrors.CodeIdempotency, "order id was already consumed with different items").
		WithDetails(map[string]any{"orderId": orderID})
}

// emitConsumed publishes the order summary. The stock writes are already
// committed, so a failure here is only logged.
func (s *service) emitConsumed(ctx context.Context, submission Submission, committed *stock.CommitResult) {
	ingredients := make([]payloads.ConsumedIngredient, 0, len(committed.Consumed))
	for _, c := range committed.Consumed {
		ingredients = append(ingredients, payloads.ConsumedIngredient{
			IngredientID: c.IngredientID,
			Quantity:     c.Quantity,
			NewStock:     c.NewStock,
			NewStatus:    c.NewStatus,
		})
	}
	err := s.db.WithTx(context.WithoutCancel(ctx), func(tx *gorm.DB) error {
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderConsumed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   submission.OrderID,
			Actor:         submission.Actor,
			Data: payloads.OrderConsumedEvent{
				OrderID:     submission.OrderID,
				Ingredients: ingredients,
				ConsumedAt:  s.now(),
			},
		})
	})
	if err != nil {
		s.metrics.IncReactionFailure("order_event")
		s.logg.Error(ctx, "emit order consumed event", err)
	}
}

// replayFromClaims rebuilds the consumed list of an already committed order.
// Menu status changes of the original submission are not recoverable here.
func replayFromClaims(plan *consumption.Plan, claims []models.StockClaim) *Result {
	consumed := make([]stock.Consumed, 0, len(claims))
	for _, claim := range claims {
		c := stock.Consumed{IngredientID: claim.IngredientID, Quantity: claim.Quantity}
		if item, ok := plan.Inventory[claim.IngredientID]; ok {
			c.NewStock = item.CurrentStock
			c.NewStatus = item.DerivedStatus()
		}
		consumed = append(consumed, c)
	}
	return &Result{
		OrderID:                 plan.OrderID,
		Replayed:                true,
		ConsumedIngredients:     consumed,
		UpdatedMenuItemStatuses: []availability.StatusChange{},
		Alerts:                  []alerts.Change{},
	}
}

func nonNilChanges(changes []availability.StatusChange) []availability.StatusChange {
	if changes == nil {
		return []availability.StatusChange{}
	}
	return changes
}

func nonNilAlerts(changes []alerts.Change) []alerts.Change {
	if changes == nil {
		return []alerts.Change{}
	}
	return changes
}
