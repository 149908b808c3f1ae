package cron

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeNotificationRepo struct {
	backlog int64
	cutoffs []time.Time
	err     error
}

func (f *fakeNotificationRepo) DeleteReadBefore(_ context.Context, cutoff time.Time, batch int) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	if f.err != nil {
		return 0, f.err
	}
	n := min(f.backlog, int64(batch))
	f.backlog -= n
	return n, nil
}

func newNotificationCleanupJob(t *testing.T, repo *fakeNotificationRepo, batch int) *notificationCleanupJob {
	t.Helper()
	return cappedNotificationCleanupJob(t, repo, batch, 0)
}

func cappedNotificationCleanupJob(t *testing.T, repo *fakeNotificationRepo, batch, maxBatches int) *notificationCleanupJob {
	t.Helper()
	job, err := NewNotificationCleanupJob(NotificationCleanupJobParams{
		Logger:     discardLogger(),
		Repository: repo,
		BatchSize:  batch,
		MaxBatches: maxBatches,
	})
	require.NoError(t, err)
	return job.(*notificationCleanupJob)
}

func TestNotificationCleanupJobDrainsBacklogInBatches(t *testing.T) {
	now := time.Date(2026, 1, 31, 0, 0, 0, 0, time.UTC)
	repo := &fakeNotificationRepo{backlog: 25}
	job := newNotificationCleanupJob(t, repo, 10)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))
	require.Zero(t, repo.backlog)
	require.Len(t, repo.cutoffs, 3)
	for _, cutoff := range repo.cutoffs {
		require.True(t, cutoff.Equal(now.Add(-defaultNotificationRetention)))
	}
}

func TestNotificationCleanupJobExactBatchChecksOnceMore(t *testing.T) {
	repo := &fakeNotificationRepo{backlog: 10}
	require.NoError(t, newNotificationCleanupJob(t, repo, 10).Run(context.Background()))
	require.Len(t, repo.cutoffs, 2)
}

func TestNotificationCleanupJobPropagatesErrors(t *testing.T) {
	repo := &fakeNotificationRepo{err: errors.New("boom")}
	require.Error(t, newNotificationCleanupJob(t, repo, 10).Run(context.Background()))
}

func TestNotificationCleanupJobStopsWhenCanceled(t *testing.T) {
	repo := &fakeNotificationRepo{backlog: 100}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.ErrorIs(t, newNotificationCleanupJob(t, repo, 10).Run(ctx), context.Canceled)
	require.Empty(t, repo.cutoffs)
}

func TestNotificationCleanupJobCapsBatchesPerRun(t *testing.T) {
	repo := &fakeNotificationRepo{backlog: 100}
	job := cappedNotificationCleanupJob(t, repo, 10, 3)

	require.NoError(t, job.Run(context.Background()))
	require.Len(t, repo.cutoffs, 3)
	require.EqualValues(t, 70, repo.backlog, "the rest is left for the next cycle")
}
