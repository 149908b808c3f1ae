package cron

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

type fakeOutboxRetentionRepo struct {
	cutoff      time.Time
	maxAttempts int
	pending     int64
	err         error
}

func (f *fakeOutboxRetentionRepo) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 7, f.err
}

func (f *fakeOutboxRetentionRepo) CountPending(_ context.Context, maxAttempts int) (int64, error) {
	f.maxAttempts = maxAttempts
	return f.pending, nil
}

type fakeDeadLetters struct {
	cutoff time.Time
	err    error
}

func (f *fakeDeadLetters) PruneFailedBefore(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 3, f.err
}

func (f *fakeDeadLetters) Count(context.Context) (int64, error) { return 4, nil }

func retentionJob(t *testing.T, params OutboxRetentionJobParams, now time.Time) *outboxRetentionJob {
	t.Helper()
	job, err := NewOutboxRetentionJob(params)
	require.NoError(t, err)
	typed := job.(*outboxRetentionJob)
	typed.now = func() time.Time { return now }
	return typed
}

func TestOutboxRetentionJobUsesDefaultWindows(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	repo := &fakeOutboxRetentionRepo{pending: 2}
	dlq := &fakeDeadLetters{}
	var buf bytes.Buffer
	job := retentionJob(t, OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test", Output: &buf}),
		Repository:  repo,
		DeadLetters: dlq,
		MaxAttempts: 10,
	}, now)

	require.NoError(t, job.Run(context.Background()))
	require.Equal(t, now.Add(-defaultOutboxRetention), repo.cutoff)
	require.Equal(t, now.Add(-defaultDLQRetention), dlq.cutoff)
	require.Equal(t, 10, repo.maxAttempts)
	require.Contains(t, buf.String(), `"dlq_pruned":3`)
	require.Contains(t, buf.String(), `"level":"info"`)
}

func TestOutboxRetentionJobWarnsOnBacklog(t *testing.T) {
	var buf bytes.Buffer
	job := retentionJob(t, OutboxRetentionJobParams{
		Logger:      logger.New(logger.Options{ServiceName: "cron-test", Output: &buf}),
		Repository:  &fakeOutboxRetentionRepo{pending: 900},
		BacklogWarn: 500,
	}, time.Now())

	require.NoError(t, job.Run(context.Background()))
	require.Contains(t, buf.String(), `"level":"warn"`)
	require.NotContains(t, buf.String(), "dlq_pruned", "dead letters are optional")
}

func TestOutboxRetentionJobPropagatesErrors(t *testing.T) {
	logg := logger.New(logger.Options{ServiceName: "cron-test", Output: &bytes.Buffer{}})

	job := retentionJob(t, OutboxRetentionJobParams{Logger: logg, Repository: &fakeOutboxRetentionRepo{err: errors.New("boom")}}, time.Now())
	require.ErrorContains(t, job.Run(context.Background()), "outbox retention")

	job = retentionJob(t, OutboxRetentionJobParams{
		Logger:      logg,
		Repository:  &fakeOutboxRetentionRepo{},
		DeadLetters: &fakeDeadLetters{err: errors.New("locked")},
	}, time.Now())
	require.ErrorContains(t, job.Run(context.Background()), "dlq retention")

	_, err := NewOutboxRetentionJob(OutboxRetentionJobParams{Logger: logg})
	require.Error(t, err)
}
