package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox/registry"
)

type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeDeadLettered
)

type batchStats struct {
	published, retried, deadLettered int
}

func (b *batchStats) add(o outcome) {
	switch o {
	case outcomePublished:
		b.published++
	case outcomeRetry:
		b.retried++
	case outcomeDeadLettered:
		b.deadLettered++
	}
}

// processBatch claims one batch inside a transaction and settles every row
// in it. A failed publish never blocks the rest of the batch. The returned
// bool reports whether any rows were claimed.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	var stats batchStats
	claimed := 0
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.settings.batchSize, s.settings.maxAttempts)
		if err != nil {
			return err
		}
		claimed = len(events)
		for _, event := range events {
			result, err := s.dispatch(ctx, tx, event)
			if err != nil {
				return err
			}
			stats.add(result)
		}
		return nil
	})
	if err != nil || claimed == 0 {
		return claimed > 0, err
	}

	fields := map[string]any{
		"claimed":       claimed,
		"published":     stats.published,
		"retried":       stats.retried,
		"dead_lettered": stats.deadLettered,
	}
	if stats.retried+stats.deadLettered > 0 {
		s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox batch settled with failures")
	} else {
		s.logg.Debug(s.logg.WithFields(ctx, fields), "outbox batch settled")
	}
	return true, nil
}

// dispatch publishes one row and records its outcome on the row. Only
// bookkeeping failures are returned; they abort the batch transaction.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) (outcome, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.deadLetter(ctx, tx, event, "", enums.OutboxDLQReasonNonRetryable, err)
	}
	topic := resolved.Descriptor.Topic

	pubErr := s.publish(ctx, event, resolved)
	if pubErr == nil {
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return outcomePublished, fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		return outcomePublished, nil
	}

	var nonRetry registry.NonRetryableError
	switch {
	case errors.Is(pubErr, errNoPublisher):
		return s.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonUnroutable, pubErr)
	case errors.As(pubErr, &nonRetry):
		return s.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonNonRetryable, pubErr)
	case event.AttemptCount+1 >= s.settings.maxAttempts:
		return s.deadLetter(ctx, tx, event, topic, enums.OutboxDLQReasonMaxAttempts,
			fmt.Errorf("gave up after %d attempts: %w", event.AttemptCount+1, pubErr))
	}

	logCtx := s.logg.WithFields(ctx, eventFields(event, topic))
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"attempt": event.AttemptCount + 1,
		"error":   pubErr.Error(),
	})
	s.logg.Warn(logCtx, "outbox publish failed, will retry")
	s.metrics.IncFailed(string(event.EventType))
	if err := s.repo.MarkFailedTx(tx, event.ID, pubErr); err != nil {
		return outcomeRetry, fmt.Errorf("mark failure %s: %w", event.ID, err)
	}
	return outcomeRetry, nil
}

// deadLetter copies the row into the DLQ and parks it so it is never
// claimed again. The copy and the parking commit together.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, topic string, reason enums.OutboxDLQErrorReason, cause error) (outcome, error) {
	logCtx := s.logg.WithFields(ctx, eventFields(event, topic))
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"error_reason": reason,
		"error":        cause.Error(),
	})
	s.logg.Warn(logCtx, "outbox event dead-lettered")

	entry := event.DeadLetter(reason, cause.Error(), s.now())
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return outcomeDeadLettered, fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.settings.maxAttempts); err != nil {
		return outcomeDeadLettered, fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	s.metrics.IncDeadLettered(string(event.EventType), string(reason))
	return outcomeDeadLettered, nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, resolved *registry.ResolvedEvent) error {
	topic := resolved.Descriptor.Topic
	pub := s.publishers.get(topic)
	if pub == nil {
		return fmt.Errorf("%w: %s", errNoPublisher, topic)
	}

	msg := s.message(event, resolved)
	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()

	result := pub.Publish(publishCtx, msg)
	if result == nil {
		return fmt.Errorf("%w: %s returned no result", errNoPublisher, topic)
	}
	if _, err := result.Get(publishCtx); err != nil {
		// A failed ordered publish pauses its key until resumed.
		if msg.OrderingKey != "" {
			if r, ok := pub.(resumer); ok {
				r.ResumePublish(msg.OrderingKey)
			}
		}
		return err
	}
	return nil
}

func (s *Service) message(event models.OutboxEvent, resolved *registry.ResolvedEvent) *gcppubsub.Message {
	msg := &gcppubsub.Message{
		Data: event.Payload,
		Attributes: map[string]string{
			"event_id":       resolved.Envelope.EventID,
			"event_type":     string(event.EventType),
			"aggregate_type": string(event.AggregateType),
			"aggregate_id":   event.AggregateID.String(),
			"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
		},
	}
	if actor := resolved.Envelope.Actor; actor != nil && actor.Role != "" {
		msg.Attributes["actor_role"] = actor.Role
	}
	if s.settings.ordered {
		msg.OrderingKey = event.OrderingKey()
	}
	return msg
}

func eventFields(event models.OutboxEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
	}
	if topic != "" {
		fields["topic"] = topic
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}
