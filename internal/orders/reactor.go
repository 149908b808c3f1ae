package orders

import (
	"context"

	"github.com/angelmondragon/kitchenstock-backend/internal/alerts"
	"github.com/angelmondragon/kitchenstock-backend/internal/availability"
	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
)

type cascader interface {
	Apply(ctx context.Context, transitions []inventory.Transition) ([]availability.StatusChange, error)
}

type alertApplier interface {
	Apply(ctx context.Context, transitions []inventory.Transition) ([]alerts.Change, error)
}

// Reaction is what a set of committed stock transitions changed downstream.
type Reaction struct {
	StatusChanges []availability.StatusChange
	AlertChanges  []alerts.Change
}

// ReactorParams wires the reactor.
type ReactorParams struct {
	Cascader cascader
	Alerts   alertApplier
	Logger   *logger.Logger
	Metrics  *metrics.EngineMetrics
	Retries  int
}

// Reactor runs the cascade and alert steps that follow a committed stock
// write. Its failures are logged and counted; the stock write stands.
type Reactor struct {
	cascader cascader
	alerts   alertApplier
	logg     *logger.Logger
	metrics  *metrics.EngineMetrics
	retries  int
}

func NewReactor(p ReactorParams) (*Reactor, error) {
	if p.Cascader == nil || p.Alerts == nil || p.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "reactor dependencies required")
	}
	retries := p.Retries
	if retries < 0 {
		retries = 0
	}
	return &Reactor{
		cascader: p.Cascader,
		alerts:   p.Alerts,
		logg:     p.Logger,
		metrics:  p.Metrics,
		retries:  retries,
	}, nil
}

// React applies the cascade and then the alerts. Both steps are idempotent,
// so a failed attempt is simply repeated; changes made by earlier attempts
// are kept in the result.
func (r *Reactor) React(ctx context.Context, transitions []inventory.Transition) Reaction {
	var reaction Reaction
	if len(transitions) == 0 {
		return reaction
	}
	ctx = context.WithoutCancel(ctx)

	for attempt := 0; attempt <= r.retries; attempt++ {
		changes, err := r.cascader.Apply(ctx, transitions)
		reaction.StatusChanges = append(reaction.StatusChanges, changes...)
		if err == nil {
			break
		}
		if attempt == r.retries {
			r.metrics.IncReactionFailure("cascade")
			r.logg.Error(r.logg.WithField(ctx, "attempts", attempt+1), "availability cascade failed", err)
		}
	}

	for attempt := 0; attempt <= r.retries; attempt++ {
		changes, err := r.alerts.Apply(ctx, transitions)
		reaction.AlertChanges = append(reaction.AlertChanges, changes...)
		if err == nil {
			break
		}
		if attempt == r.retries {
			r.metrics.IncReactionFailure("alerts")
			r.logg.Error(r.logg.WithField(ctx, "attempts", attempt+1), "stock alert update failed", err)
		}
	}
	return reaction
}

// HandleTransitions lets manual stock writes share the order reaction path.
func (r *Reactor) HandleTransitions(ctx context.Context, transitions []inventory.Transition) {
	r.React(ctx, transitions)
}
