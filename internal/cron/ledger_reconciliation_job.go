package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
)

type reconciler interface {
	Reconcile(ctx context.Context) ([]inventory.Drift, error)
}

type LedgerReconciliationJobParams struct {
	Logger     *logger.Logger
	Reconciler reconciler
	Metrics    *metrics.EngineMetrics
}

func NewLedgerReconciliationJob(params LedgerReconciliationJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	return &ledgerReconciliationJob{
		logg:       params.Logger,
		reconciler: params.Reconciler,
		metrics:    params.Metrics,
	}, nil
}

// ledgerReconciliationJob audits current stock against initial stock,
// manual adjustments and recorded consumption. It reports drift and never
// rewrites stock.
type ledgerReconciliationJob struct {
	logg       *logger.Logger
	reconciler reconciler
	metrics    *metrics.EngineMetrics
}

func (j *ledgerReconciliationJob) Name() string { return "ledger-reconciliation" }

func (j *ledgerReconciliationJob) Run(ctx context.Context) error {
	drifts, err := j.reconciler.Reconcile(ctx)
	if err != nil {
		return fmt.Errorf("ledger reconciliation: %w", err)
	}
	j.metrics.SetLedgerDrift(len(drifts))
	for _, drift := range drifts {
		logCtx := j.logg.WithFields(j.logg.WithIngredientID(ctx, drift.IngredientID.String()), map[string]any{
			"name":     drift.Name,
			"expected": drift.Expected.String(),
			"actual":   drift.Actual.String(),
		})
		j.logg.Warn(logCtx, "stock ledger drift")
	}
	j.logg.Info(j.logg.WithField(ctx, "drifted_ingredients", len(drifts)), "ledger reconciliation complete")
	return nil
}
