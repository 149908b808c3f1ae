package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

const (
	defaultOutboxRetention = 30 * 24 * time.Hour
	defaultDLQRetention    = 90 * 24 * time.Hour
)

type outboxRetentionRepo interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	CountPending(ctx context.Context, maxAttempts int) (int64, error)
}

type deadLetterPruner interface {
	PruneFailedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	Count(ctx context.Context) (int64, error)
}

// OutboxRetentionJobParams configures outbox housekeeping. DeadLetters is
// optional; without it parked events are kept forever. A positive
// BacklogWarn turns a large undelivered backlog into a warning.
type OutboxRetentionJobParams struct {
	Logger       *logger.Logger
	Repository   outboxRetentionRepo
	DeadLetters  deadLetterPruner
	Retention    time.Duration
	DLQRetention time.Duration
	MaxAttempts  int
	BacklogWarn  int64
}

func NewOutboxRetentionJob(params OutboxRetentionJobParams) (Job, error) {
	switch {
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	case params.Repository == nil:
		return nil, fmt.Errorf("outbox repository required")
	}
	job := &outboxRetentionJob{
		logg:         params.Logger,
		repo:         params.Repository,
		dlq:          params.DeadLetters,
		retention:    params.Retention,
		dlqRetention: params.DLQRetention,
		maxAttempts:  params.MaxAttempts,
		backlogWarn:  params.BacklogWarn,
		now:          time.Now,
	}
	if job.retention <= 0 {
		job.retention = defaultOutboxRetention
	}
	if job.dlqRetention <= 0 {
		job.dlqRetention = defaultDLQRetention
	}
	return job, nil
}

// outboxRetentionJob deletes delivered outbox rows and expired dead letters,
// then reports what is still waiting for the relay.
type outboxRetentionJob struct {
	logg         *logger.Logger
	repo         outboxRetentionRepo
	dlq          deadLetterPruner
	retention    time.Duration
	dlqRetention time.Duration
	maxAttempts  int
	backlogWarn  int64
	now          func() time.Time
}

func (j *outboxRetentionJob) Name() string { return "outbox-retention" }

func (j *outboxRetentionJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	fields := map[string]any{"retention": j.retention.String()}

	deleted, err := j.repo.DeleteOlderThan(ctx, now.Add(-j.retention))
	if err != nil {
		return fmt.Errorf("outbox retention: %w", err)
	}
	fields["rows_deleted"] = deleted

	if j.dlq != nil {
		pruned, err := j.dlq.PruneFailedBefore(ctx, now.Add(-j.dlqRetention))
		if err != nil {
			return fmt.Errorf("dlq retention: %w", err)
		}
		parked, err := j.dlq.Count(ctx)
		if err != nil {
			return fmt.Errorf("dlq count: %w", err)
		}
		fields["dlq_pruned"] = pruned
		fields["dlq_parked"] = parked
	}

	pending, err := j.repo.CountPending(ctx, j.maxAttempts)
	if err != nil {
		return fmt.Errorf("outbox backlog: %w", err)
	}
	fields["pending_events"] = pending

	logCtx := j.logg.WithFields(ctx, fields)
	if j.backlogWarn > 0 && pending >= j.backlogWarn {
		j.logg.Warn(logCtx, "outbox backlog above threshold, check the publisher")
		return nil
	}
	j.logg.Info(logCtx, "outbox retention cleanup complete")
	return nil
}
