package cron

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

const (
	defaultNotificationRetention  = 30 * 24 * time.Hour
	defaultNotificationBatch      = 500
	defaultNotificationMaxBatches = 40
)

// NotificationCleanupJobParams configure the read-notification purge. A run
// deletes at most BatchSize*MaxBatches rows; the rest wait for the next cycle.
type NotificationCleanupJobParams struct {
	Logger     *logger.Logger
	Repository notificationsCleanupRepo
	Retention  time.Duration
	BatchSize  int
	MaxBatches int
}

type notificationsCleanupRepo interface {
	DeleteReadBefore(ctx context.Context, cutoff time.Time, batch int) (int64, error)
}

func NewNotificationCleanupJob(params NotificationCleanupJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, errors.New("notification cleanup: logger required")
	case params.Repository == nil:
		return nil, errors.New("notification cleanup: repository required")
	}
	return &notificationCleanupJob{
		logg:       params.Logger,
		repo:       params.Repository,
		retention:  positiveOr(params.Retention, defaultNotificationRetention),
		batch:      positiveOr(params.BatchSize, defaultNotificationBatch),
		maxBatches: positiveOr(params.MaxBatches, defaultNotificationMaxBatches),
		now:        time.Now,
	}, nil
}

func positiveOr[T int | time.Duration](value, fallback T) T {
	if value <= 0 {
		return fallback
	}
	return value
}

// notificationCleanupJob deletes read staff notifications past retention,
// one bounded batch per statement. Unread notifications are never removed.
type notificationCleanupJob struct {
	logg       *logger.Logger
	repo       notificationsCleanupRepo
	retention  time.Duration
	batch      int
	maxBatches int
	now        func() time.Time
}

func (j *notificationCleanupJob) Name() string { return "notification-cleanup" }

func (j *notificationCleanupJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	batches, drained := 0, false
	for !drained && batches < j.maxBatches {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("notification cleanup stopped after %d rows: %w", total, err)
		}
		deleted, err := j.repo.DeleteReadBefore(ctx, cutoff, j.batch)
		if err != nil {
			return fmt.Errorf("notification cleanup: %w", err)
		}
		total += deleted
		batches++
		drained = deleted < int64(j.batch)
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"batches":      batches,
		"rows_deleted": total,
	})
	if !drained {
		j.logg.Warn(logCtx, "notification cleanup hit its batch cap; backlog carries over")
		return nil
	}
	j.logg.Info(logCtx, "notification cleanup complete")
	return nil
}
