package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/payloads"
)

type memoryStore struct {
	values map[string]string
}

func (m *memoryStore) Get(_ context.Context, key string) (string, error) {
	if v, ok := m.values[key]; ok {
		return v, nil
	}
	return "", goredis.Nil
}

func (m *memoryStore) Set(_ context.Context, key string, value any, _ time.Duration) error {
	m.values[key] = value.(string)
	return nil
}

func (m *memoryStore) SetNX(_ context.Context, key string, value any, _ time.Duration) (bool, error) {
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.values[key] = value.(string)
	return true, nil
}

func (m *memoryStore) IdempotencyKey(scope, id string) string { return scope + ":" + id }

func (m *memoryStore) Del(_ context.Context, keys ...string) error {
	for _, key := range keys {
		delete(m.values, key)
	}
	return nil
}

type recordingRepo struct {
	created []models.Notification
	err     error
}

func (r *recordingRepo) Create(_ context.Context, n *models.Notification) (bool, error) {
	if r.err != nil {
		return false, r.err
	}
	r.created = append(r.created, *n)
	return true, nil
}

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

func newTestConsumer(t *testing.T, repo *recordingRepo) *Consumer {
	t.Helper()
	manager, err := idempotency.NewManager(&memoryStore{values: map[string]string{}}, time.Hour)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	logg := logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
	consumer, err := NewConsumer(repo, noopReceiver{}, manager, logg)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}
	return consumer
}

func message(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, data any) *pubsub.Message {
	t.Helper()
	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}
	envelope, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return &pubsub.Message{
		ID:         uuid.NewString(),
		Data:       envelope,
		Attributes: map[string]string{"event_type": string(eventType)},
	}
}

func TestConsumerStoresAlertNotificationOnce(t *testing.T) {
	repo := &recordingRepo{}
	consumer := newTestConsumer(t, repo)
	ingredient := uuid.New()
	msg := message(t, enums.EventStockAlertRaised, uuid.New(), payloads.StockAlertEvent{
		AlertID:        uuid.New(),
		Type:           enums.AlertTypeLowStock,
		IngredientID:   ingredient,
		IngredientName: "basil",
		Stock:          decimal.NewFromInt(2),
		Unit:           "bunch",
		Message:        "basil is running low",
	})

	if !consumer.process(context.Background(), msg) {
		t.Fatalf("expected ack")
	}
	if !consumer.process(context.Background(), msg) {
		t.Fatalf("expected ack for redelivery")
	}
	if len(repo.created) != 1 {
		t.Fatalf("expected one notification, got %d", len(repo.created))
	}
	got := repo.created[0]
	if got.Type != enums.NotificationTypeLowStock || got.RelatedID != ingredient {
		t.Fatalf("unexpected notification %+v", got)
	}
}

func TestConsumerMapsResolvedAndMenuEvents(t *testing.T) {
	repo := &recordingRepo{}
	consumer := newTestConsumer(t, repo)

	consumer.process(context.Background(), message(t, enums.EventStockAlertResolved, uuid.New(), payloads.StockAlertEvent{
		Type:           enums.AlertTypeOutOfStock,
		IngredientID:   uuid.New(),
		IngredientName: "basil",
	}))
	consumer.process(context.Background(), message(t, enums.EventMenuItemAvailabilityChanged, uuid.New(), payloads.MenuItemAvailabilityChangedEvent{
		MenuItemID: uuid.New(),
		Name:       "pesto pasta",
		From:       enums.MenuItemStatusActive,
		To:         enums.MenuItemStatusOutOfStock,
	}))
	// manual deactivation is not a stock event worth notifying
	consumer.process(context.Background(), message(t, enums.EventMenuItemAvailabilityChanged, uuid.New(), payloads.MenuItemAvailabilityChangedEvent{
		MenuItemID: uuid.New(),
		Name:       "soup",
		From:       enums.MenuItemStatusActive,
		To:         enums.MenuItemStatusInactive,
	}))

	if len(repo.created) != 2 {
		t.Fatalf("expected two notifications, got %d", len(repo.created))
	}
	if repo.created[0].Type != enums.NotificationTypeStockRecovered || repo.created[0].Message != "basil is no longer out of stock." {
		t.Fatalf("unexpected recovery notification %+v", repo.created[0])
	}
	if repo.created[1].Type != enums.NotificationTypeMenuAvailability {
		t.Fatalf("unexpected menu notification %+v", repo.created[1])
	}
}

func TestConsumerAcksMalformedAndSkipsOtherEvents(t *testing.T) {
	repo := &recordingRepo{}
	consumer := newTestConsumer(t, repo)

	if !consumer.process(context.Background(), message(t, enums.EventOrderConsumed, uuid.New(), map[string]any{})) {
		t.Fatalf("non-notification events are acked")
	}
	bad := &pubsub.Message{Data: []byte("{"), Attributes: map[string]string{"event_type": string(enums.EventStockAlertRaised)}}
	if !consumer.process(context.Background(), bad) {
		t.Fatalf("malformed envelope should be acked")
	}
	if len(repo.created) != 0 {
		t.Fatalf("nothing should be stored")
	}
}

func TestConsumerNacksAndRetriesOnStorageFailure(t *testing.T) {
	repo := &recordingRepo{err: errors.New("db down")}
	consumer := newTestConsumer(t, repo)
	msg := message(t, enums.EventStockAlertRaised, uuid.New(), payloads.StockAlertEvent{Type: enums.AlertTypeOutOfStock, IngredientID: uuid.New()})

	if consumer.process(context.Background(), msg) {
		t.Fatalf("expected nack on storage failure")
	}
	repo.err = nil
	if !consumer.process(context.Background(), msg) {
		t.Fatalf("expected ack on redelivery")
	}
	if len(repo.created) != 1 {
		t.Fatalf("redelivery should store the notification, got %d", len(repo.created))
	}
}

func TestConsumerNacksWhileAnotherDeliveryHoldsTheEvent(t *testing.T) {
	store := &memoryStore{values: map[string]string{}}
	manager, err := idempotency.NewManager(store, time.Hour)
	if err != nil {
		t.Fatalf("manager: %v", err)
	}
	repo := &recordingRepo{}
	logg := logger.New(logger.Options{ServiceName: "notifications-test", Output: io.Discard})
	consumer, err := NewConsumer(repo, noopReceiver{}, manager, logg)
	if err != nil {
		t.Fatalf("consumer: %v", err)
	}

	eventID := uuid.New()
	store.values["evt:"+stockNotificationConsumer+":"+eventID.String()] = "processing"
	msg := message(t, enums.EventStockAlertRaised, eventID, payloads.StockAlertEvent{Type: enums.AlertTypeLowStock, IngredientID: uuid.New()})

	if consumer.process(context.Background(), msg) {
		t.Fatalf("expected nack while the event is claimed elsewhere")
	}
	if len(repo.created) != 0 {
		t.Fatalf("handler must not run for a claimed event")
	}
}
