package notifications

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/payloads"
)

const stockNotificationConsumer = "stock-notifications"

type repository interface {
	Create(ctx context.Context, notification *models.Notification) (bool, error)
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

// Consumer turns stock alert and menu availability events into in-app
// notifications. Delivery runs after the stock write has committed, so a
// failure here only delays the notification.
type Consumer struct {
	repo         repository
	subscription receiver
	idempotency  *idempotency.Manager
	logg         *logger.Logger
}

// NewConsumer builds a stock notification consumer.
func NewConsumer(repo repository, subscription receiver, manager *idempotency.Manager, logg *logger.Logger) (*Consumer, error) {
	if repo == nil {
		return nil, fmt.Errorf("notifications repository required")
	}
	if subscription == nil {
		return nil, fmt.Errorf("notification subscription required")
	}
	if manager == nil {
		return nil, fmt.Errorf("idempotency manager required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         repo,
		subscription: subscription,
		idempotency:  manager,
		logg:         logg,
	}, nil
}

// Run starts the consumer loop until the context is canceled.
func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked. Malformed messages
// are acked and dropped; transient failures are nacked for redelivery.
func (c *Consumer) process(ctx context.Context, msg *pubsub.Message) bool {
	eventType := enums.OutboxEventType(msg.Attributes["event_type"])
	logCtx := c.logg.WithFields(ctx, map[string]any{
		"message_id": msg.ID,
		"event_type": eventType,
	})

	if !eventType.IsNotification() {
		c.logg.Debug(logCtx, "skipping non-notification event")
		return true
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(msg.Data, &envelope); err != nil {
		c.logg.Error(logCtx, "failed to decode envelope", err)
		return true
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(logCtx, "invalid event id", err)
		return true
	}

	notification, err := buildNotification(eventType, eventID, envelope.Data)
	if err != nil {
		c.logg.Error(logCtx, "failed to parse payload", err)
		return true
	}
	if notification == nil {
		return true
	}

	stored := false
	outcome, err := c.idempotency.Process(ctx, stockNotificationConsumer, eventID, func(ctx context.Context) error {
		created, err := c.repo.Create(ctx, notification)
		if err != nil {
			return err
		}
		stored = true
		if !created {
			c.logg.Info(logCtx, "notification already stored")
		}
		return nil
	})
	switch {
	case err != nil && stored:
		// Stored, but the done mark failed; the source event id still dedupes.
		c.logg.Warn(c.logg.WithField(logCtx, "error", err.Error()), "notification stored without done mark")
		return true
	case err != nil:
		c.logg.Error(logCtx, "notification delivery failed", err)
		return false
	case outcome == idempotency.Duplicate:
		c.logg.Info(logCtx, "event already processed")
		return true
	case outcome == idempotency.InProgress:
		c.logg.Info(logCtx, "event claimed by another delivery, nacking")
		return false
	}
	c.logg.Info(c.logg.WithField(logCtx, "notification_type", notification.Type), "staff notified")
	return true
}

// buildNotification maps an event to its notification. A nil notification
// means the event carries nothing staff need to see.
func buildNotification(eventType enums.OutboxEventType, eventID uuid.UUID, data json.RawMessage) (*models.Notification, error) {
	switch eventType {
	case enums.EventStockAlertRaised, enums.EventStockAlertResolved:
		var payload payloads.StockAlertEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		resolved := eventType == enums.EventStockAlertResolved
		notificationType := enums.NotificationTypeForAlert(payload.Type, resolved)
		message := payload.Message
		if resolved {
			message = fmt.Sprintf("%s is no longer %s.", ingredientLabel(payload), humanize(payload.Type))
		}
		return &models.Notification{
			SourceEventID: eventID,
			Type:          notificationType,
			RelatedID:     payload.IngredientID,
			Title:         notificationType.Title(),
			Message:       message,
		}, nil
	case enums.EventMenuItemAvailabilityChanged:
		var payload payloads.MenuItemAvailabilityChangedEvent
		if err := json.Unmarshal(data, &payload); err != nil {
			return nil, err
		}
		if payload.To == enums.MenuItemStatusInactive || payload.From == enums.MenuItemStatusInactive {
			return nil, nil
		}
		message := fmt.Sprintf("%s is available again.", payload.Name)
		if payload.To == enums.MenuItemStatusOutOfStock {
			message = fmt.Sprintf("%s was taken off the menu: an ingredient ran out.", payload.Name)
		}
		return &models.Notification{
			SourceEventID: eventID,
			Type:          enums.NotificationTypeMenuAvailability,
			RelatedID:     payload.MenuItemID,
			Title:         enums.NotificationTypeMenuAvailability.Title(),
			Message:       message,
		}, nil
	default:
		return nil, nil
	}
}

func ingredientLabel(p payloads.StockAlertEvent) string {
	if p.IngredientName != "" {
		return p.IngredientName
	}
	return "Ingredient " + p.IngredientID.String()
}

func humanize(t enums.AlertType) string {
	if t == enums.AlertTypeOutOfStock {
		return "out of stock"
	}
	return "running low"
}
