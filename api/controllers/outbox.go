package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/kitchenstock-backend/api/responses"
	"github.com/angelmondragon/kitchenstock-backend/api/validators"
	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
	"github.com/angelmondragon/kitchenstock-backend/pkg/outbox"
)

// DeadLetterStore is the DLQ surface exposed to managers.
type DeadLetterStore interface {
	List(ctx context.Context, filter outbox.DLQFilter, limit int) ([]models.OutboxDLQ, error)
	FindByEventID(ctx context.Context, eventID uuid.UUID) (*models.OutboxDLQ, error)
	Requeue(ctx context.Context, eventID uuid.UUID) error
}

type deadLetterDTO struct {
	EventID       uuid.UUID                  `json:"eventId"`
	EventType     enums.OutboxEventType      `json:"eventType"`
	AggregateType enums.OutboxAggregateType  `json:"aggregateType"`
	AggregateID   uuid.UUID                  `json:"aggregateId"`
	Payload       json.RawMessage            `json:"payload"`
	ErrorReason   enums.OutboxDLQErrorReason `json:"errorReason"`
	ErrorMessage  *string                    `json:"errorMessage,omitempty"`
	AttemptCount  int                        `json:"attemptCount"`
	FailedAt      time.Time                  `json:"failedAt"`
}

func toDeadLetterDTO(row models.OutboxDLQ) deadLetterDTO {
	return deadLetterDTO{
		EventID:       row.EventID,
		EventType:     row.EventType,
		AggregateType: row.AggregateType,
		AggregateID:   row.AggregateID,
		Payload:       row.Payload,
		ErrorReason:   row.ErrorReason,
		ErrorMessage:  row.ErrorMessage,
		AttemptCount:  row.AttemptCount,
		FailedAt:      row.FailedAt,
	}
}

// ListDeadLetters returns events the publisher gave up on, optionally
// filtered by ?reason= and ?eventType=.
func ListDeadLetters(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		filter, err := parseDeadLetterFilter(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := store.List(r.Context(), filter, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, dbpkg.StorageError(err, "list dead letters"))
			return
		}
		out := make([]deadLetterDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, toDeadLetterDTO(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// GetDeadLetter returns the DLQ entry for one event.
func GetDeadLetter(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		row, err := store.FindByEventID(r.Context(), eventID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, dbpkg.StorageError(err, "load dead letter"))
			return
		}
		if row == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "dead letter not found"))
			return
		}
		responses.WriteSuccess(w, toDeadLetterDTO(*row))
	}
}

// RequeueDeadLetter hands a dead-lettered event back to the publisher.
func RequeueDeadLetter(store DeadLetterStore, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		eventID, err := validators.ParseUUIDParam(r, "eventId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := store.Requeue(r.Context(), eventID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "unpublished event not found"))
				return
			}
			responses.WriteError(r.Context(), logg, w, dbpkg.StorageError(err, "requeue dead letter"))
			return
		}
		logg.Info(logg.WithField(r.Context(), "event_id", eventID.String()), "dead letter requeued")
		responses.WriteSuccessStatus(w, http.StatusAccepted, map[string]any{"eventId": eventID, "requeued": true})
	}
}

func parseDeadLetterFilter(r *http.Request) (outbox.DLQFilter, error) {
	var filter outbox.DLQFilter
	query := r.URL.Query()
	if raw := query.Get("reason"); raw != "" {
		reason, err := enums.ParseOutboxDLQErrorReason(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid reason filter")
		}
		filter.Reason = reason
	}
	if raw := query.Get("eventType"); raw != "" {
		eventType, err := enums.ParseOutboxEventType(raw)
		if err != nil {
			return filter, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid eventType filter")
		}
		filter.EventType = eventType
	}
	return filter, nil
}
