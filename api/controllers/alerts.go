package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenstock-backend/api/responses"
	"github.com/angelmondragon/kitchenstock-backend/api/validators"
	"github.com/angelmondragon/kitchenstock-backend/internal/alerts"
	"github.com/angelmondragon/kitchenstock-backend/internal/availability"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

// AlertService is the alert surface the API uses.
type AlertService interface {
	List(ctx context.Context, params alerts.ListParams) ([]models.StockAlert, error)
	Resolve(ctx context.Context, id uuid.UUID) (*models.StockAlert, error)
	Sync(ctx context.Context) ([]alerts.Change, error)
}

// ListAlerts returns open alerts, or all alerts when includeResolved is set.
func ListAlerts(svc AlertService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := alerts.ListParams{}
		if raw := strings.TrimSpace(r.URL.Query().Get("type")); raw != "" {
			alertType, err := enums.ParseAlertType(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid alert type"))
				return
			}
			params.Type = &alertType
		}

		var err error
		if params.RelatedID, err = validators.ParseQueryUUID(r, "ingredientId"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.IncludeResolved, err = validators.ParseQueryBool(r, "includeResolved"); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.Limit, err = validators.ParseQueryInt(r, "limit", 100, 1, 500); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.Offset, err = validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		rows, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]alertDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, toAlert(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// ResolveAlert closes an open alert on staff request.
func ResolveAlert(svc AlertService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "alertId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alert, err := svc.Resolve(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toAlert(*alert))
	}
}

// ResyncAvailability re-derives every menu item status and open alert from
// current stock.
func ResyncAvailability(avail AvailabilityService, alertSvc AlertService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		menuChanges, err := avail.Resync(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		alertChanges, err := alertSvc.Sync(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if menuChanges == nil {
			menuChanges = []availability.StatusChange{}
		}
		if alertChanges == nil {
			alertChanges = []alerts.Change{}
		}
		responses.WriteSuccess(w, map[string]any{
			"menuItems": menuChanges,
			"alerts":    alertChanges,
		})
	}
}
