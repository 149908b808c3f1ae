package cron

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/internal/alerts"
	"github.com/angelmondragon/kitchenstock-backend/internal/availability"
	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/metrics"
)

type fakeResyncer struct {
	changes []availability.StatusChange
	err     error
	calls   int
}

func (f *fakeResyncer) Resync(context.Context) ([]availability.StatusChange, error) {
	f.calls++
	return f.changes, f.err
}

type fakeAlertSyncer struct {
	changes []alerts.Change
	err     error
	calls   int
}

func (f *fakeAlertSyncer) Sync(context.Context) ([]alerts.Change, error) {
	f.calls++
	return f.changes, f.err
}

func discardLogger() *logger.Logger {
	return logger.New(logger.Options{ServiceName: "cron-test", Output: io.Discard})
}

func TestAvailabilityResyncRunsBothStepsAndJoinsErrors(t *testing.T) {
	cascade := &fakeResyncer{err: errors.New("menu down")}
	syncer := &fakeAlertSyncer{changes: []alerts.Change{{Action: alerts.ActionResolved}}}
	job, err := NewAvailabilityResyncJob(AvailabilityResyncJobParams{Logger: discardLogger(), Cascader: cascade, Alerts: syncer})
	if err != nil {
		t.Fatalf("NewAvailabilityResyncJob: %v", err)
	}

	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected menu resync error")
	}
	if cascade.calls != 1 || syncer.calls != 1 {
		t.Fatalf("alert sync must run even when menu resync fails, calls=%d/%d", cascade.calls, syncer.calls)
	}
}

func TestAvailabilityResyncRequiresDependencies(t *testing.T) {
	if _, err := NewAvailabilityResyncJob(AvailabilityResyncJobParams{Logger: discardLogger()}); err == nil {
		t.Fatal("expected error without cascader")
	}
}

type fakeReconciler struct {
	drifts []inventory.Drift
	err    error
}

func (f *fakeReconciler) Reconcile(context.Context) ([]inventory.Drift, error) {
	return f.drifts, f.err
}

func TestLedgerReconciliationReportsDrift(t *testing.T) {
	reg := prometheus.NewRegistry()
	engineMetrics := metrics.NewEngineMetrics(reg)
	job, err := NewLedgerReconciliationJob(LedgerReconciliationJobParams{
		Logger: discardLogger(),
		Reconciler: &fakeReconciler{drifts: []inventory.Drift{
			{IngredientID: uuid.New(), Name: "flour", Expected: decimal.NewFromInt(10), Actual: decimal.NewFromInt(9)},
			{IngredientID: uuid.New(), Name: "salt", Expected: decimal.NewFromInt(1), Actual: decimal.NewFromInt(2)},
		}},
		Metrics: engineMetrics,
	})
	if err != nil {
		t.Fatalf("NewLedgerReconciliationJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, family := range families {
		if family.GetName() != "stock_ledger_drift_ingredients" {
			continue
		}
		found = true
		if got := family.GetMetric()[0].GetGauge().GetValue(); got != 2 {
			t.Fatalf("expected drift gauge 2, got %v", got)
		}
	}
	if !found {
		t.Fatal("drift gauge not exported")
	}
}

func TestLedgerReconciliationPropagatesError(t *testing.T) {
	job, _ := NewLedgerReconciliationJob(LedgerReconciliationJobParams{
		Logger:     discardLogger(),
		Reconciler: &fakeReconciler{err: errors.New("db down")},
	})
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
}
