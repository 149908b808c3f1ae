package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
)

func newOutboxTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:outbox_" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := conn.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, conn.AutoMigrate(&models.OutboxEvent{}, &models.OutboxDLQ{}))
	return conn
}

func insertEvent(t *testing.T, repo *Repository, conn *gorm.DB) models.OutboxEvent {
	t.Helper()
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventStockAlertRaised,
		AggregateType: enums.AggregateStockAlert,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"data":{}}`),
	}
	require.NoError(t, repo.Insert(conn, event))
	return event
}

func TestRepositoryFetchSkipsExhaustedRows(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)

	pending := insertEvent(t, repo, conn)
	exhausted := insertEvent(t, repo, conn)
	require.NoError(t, repo.MarkTerminalTx(conn, exhausted.ID, errors.New("bad payload"), 5))

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 5)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, pending.ID, rows[0].ID)

	count, err := repo.CountPending(context.Background(), 5)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	require.NoError(t, repo.MarkPublishedTx(conn, pending.ID))
	count, err = repo.CountPending(context.Background(), 5)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestRepositoryMarkFailedIncrementsAttempts(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	event := insertEvent(t, repo, conn)

	require.NoError(t, repo.MarkFailedTx(conn, event.ID, errors.New(strings.Repeat("x", 2000))))
	require.NoError(t, repo.MarkFailedTx(conn, event.ID, errors.New("timeout")))

	var stored models.OutboxEvent
	require.NoError(t, conn.First(&stored, "id = ?", event.ID).Error)
	require.Equal(t, 2, stored.AttemptCount)
	require.NotNil(t, stored.LastError)
	require.Equal(t, "timeout", *stored.LastError)
}

func TestRepositoryDeleteOlderThanKeepsPending(t *testing.T) {
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	published := insertEvent(t, repo, conn)
	pending := insertEvent(t, repo, conn)
	require.NoError(t, repo.MarkPublishedTx(conn, published.ID))

	deleted, err := repo.DeleteOlderThan(context.Background(), time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	var remaining []models.OutboxEvent
	require.NoError(t, conn.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	require.Equal(t, pending.ID, remaining[0].ID)
}

func TestDLQRepositoryRequeueRestoresEvent(t *testing.T) {
	ctx := context.Background()
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)

	event := insertEvent(t, repo, conn)
	require.NoError(t, repo.MarkTerminalTx(conn, event.ID, errors.New("unknown event"), 10))

	msg := strings.Repeat("e", maxDLQErrorLen+50)
	require.NoError(t, dlq.InsertTx(conn, models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   enums.OutboxDLQReasonNonRetryable,
		ErrorMessage:  &msg,
		AttemptCount:  10,
	}))

	entry, err := dlq.FindByEventID(ctx, event.ID)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Len(t, *entry.ErrorMessage, maxDLQErrorLen)

	listed, err := dlq.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonNonRetryable}, 0)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	listed, err = dlq.List(ctx, DLQFilter{Reason: enums.OutboxDLQReasonMaxAttempts}, 0)
	require.NoError(t, err)
	require.Empty(t, listed)

	require.NoError(t, dlq.Requeue(ctx, event.ID))

	entry, err = dlq.FindByEventID(ctx, event.ID)
	require.NoError(t, err)
	require.Nil(t, entry)

	rows, err := repo.FetchUnpublishedForPublish(conn, 10, 10)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Zero(t, rows[0].AttemptCount)
}

func TestTruncateDLQErrorKeepsRunesWhole(t *testing.T) {
	msg := strings.Repeat("a", maxDLQErrorLen-1) + "é"
	got := truncateDLQError(msg)
	require.Len(t, got, maxDLQErrorLen-1)
	require.True(t, utf8.ValidString(got))
	require.Equal(t, "short", truncateDLQError("short"))
}

func TestDLQRepositoryRequeueUnknownEvent(t *testing.T) {
	dlq := NewDLQRepository(newOutboxTestDB(t))
	err := dlq.Requeue(context.Background(), uuid.New())
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}

func TestDLQRepositoryPruneDropsExpiredEntriesWithParkedRows(t *testing.T) {
	ctx := context.Background()
	conn := newOutboxTestDB(t)
	repo := NewRepository(conn)
	dlq := NewDLQRepository(conn)
	now := time.Now().UTC()

	park := func(failedAt time.Time) models.OutboxEvent {
		event := insertEvent(t, repo, conn)
		require.NoError(t, repo.MarkTerminalTx(conn, event.ID, errors.New("rejected"), 10))
		require.NoError(t, dlq.InsertTx(conn, event.DeadLetter(enums.OutboxDLQReasonNonRetryable, "rejected", failedAt)))
		return event
	}
	expired := park(now.Add(-100 * 24 * time.Hour))
	recent := park(now.Add(-time.Hour))

	pruned, err := dlq.PruneFailedBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 1, pruned)

	parked, err := dlq.Count(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, parked)

	var ids []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Pluck("id", &ids).Error)
	require.Equal(t, []uuid.UUID{recent.ID}, ids)
	require.NotContains(t, ids, expired.ID)

	pruned, err = dlq.PruneFailedBefore(ctx, now.Add(-90*24*time.Hour))
	require.NoError(t, err)
	require.Zero(t, pruned)
}
