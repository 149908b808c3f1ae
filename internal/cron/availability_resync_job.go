package cron

import (
	"context"
	"fmt"

	"go.uber.org/multierr"

	"github.com/angelmondragon/kitchenstock-backend/internal/alerts"
	"github.com/angelmondragon/kitchenstock-backend/internal/availability"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

type menuResyncer interface {
	Resync(ctx context.Context) ([]availability.StatusChange, error)
}

type alertSyncer interface {
	Sync(ctx context.Context) ([]alerts.Change, error)
}

type AvailabilityResyncJobParams struct {
	Logger   *logger.Logger
	Cascader menuResyncer
	Alerts   alertSyncer
}

func NewAvailabilityResyncJob(params AvailabilityResyncJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Cascader == nil || params.Alerts == nil {
		return nil, fmt.Errorf("cascader and alerts required")
	}
	return &availabilityResyncJob{
		logg:     params.Logger,
		cascader: params.Cascader,
		alerts:   params.Alerts,
	}, nil
}

// availabilityResyncJob converges menu item status and open alerts with the
// stock ledger after best-effort reactions failed.
type availabilityResyncJob struct {
	logg     *logger.Logger
	cascader menuResyncer
	alerts   alertSyncer
}

func (j *availabilityResyncJob) Name() string { return "availability-resync" }

func (j *availabilityResyncJob) Run(ctx context.Context) error {
	var errs error
	flips, err := j.cascader.Resync(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("menu resync: %w", err))
	}
	alertChanges, err := j.alerts.Sync(ctx)
	if err != nil {
		errs = multierr.Append(errs, fmt.Errorf("alert sync: %w", err))
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"menu_flips":    len(flips),
		"alert_changes": len(alertChanges),
	})
	if len(flips) > 0 || len(alertChanges) > 0 {
		j.logg.Warn(logCtx, "availability drift corrected")
	} else {
		j.logg.Info(logCtx, "availability in sync")
	}
	return errs
}
