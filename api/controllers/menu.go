package controllers

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/api/responses"
	"github.com/angelmondragon/kitchenstock-backend/api/validators"
	"github.com/angelmondragon/kitchenstock-backend/internal/availability"
	"github.com/angelmondragon/kitchenstock-backend/internal/menu"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

// AvailabilityService is the availability surface the menu endpoints use.
type AvailabilityService interface {
	Check(ctx context.Context, id uuid.UUID) (*availability.Availability, error)
	SetManualStatus(ctx context.Context, id uuid.UUID, status enums.MenuItemStatus) (*availability.StatusChange, error)
	Recompute(ctx context.Context, ids []uuid.UUID) ([]availability.StatusChange, error)
	Resync(ctx context.Context) ([]availability.StatusChange, error)
}

// ListMenuItems returns menu items, optionally filtered by status.
func ListMenuItems(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := menu.ListParams{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseMenuItemStatus(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status filter"))
				return
			}
			params.Status = &status
		}

		var err error
		if params.Limit, err = validators.ParseQueryInt(r, "limit", 100, 1, 500); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if params.Offset, err = validators.ParseQueryInt(r, "offset", 0, 0, 1_000_000); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items, err := svc.List(r.Context(), params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]menuItemDTO, 0, len(items))
		for _, item := range items {
			out = append(out, toMenuItem(item))
		}
		responses.WriteSuccess(w, out)
	}
}

// GetMenuItem returns one menu item with its ingredient list.
func GetMenuItem(svc menu.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "menuItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toMenuItem(*item))
	}
}

// MenuItemAvailability reports whether a menu item can be ordered and which
// ingredients block it.
func MenuItemAvailability(svc AvailabilityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "menuItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		result, err := svc.Check(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

type syncIngredientRequest struct {
	IngredientID   string          `json:"ingredientId" validate:"required,uuid"`
	PortionPerUnit decimal.Decimal `json:"portionPerUnit" validate:"decimal_positive"`
	Required       *bool           `json:"required"`
}

type syncMenuItemRequest struct {
	Name        string                  `json:"name" validate:"required,max=120"`
	Inactive    bool                    `json:"inactive"`
	Ingredients []syncIngredientRequest `json:"ingredients" validate:"required,min=1,dive"`
}

type syncMenuItemResponse struct {
	Item    menuItemDTO                 `json:"item"`
	Created bool                        `json:"created"`
	Changes []availability.StatusChange `json:"changes"`
}

// SyncMenuItem stores a catalog definition and re-evaluates the item's
// availability against current stock.
func SyncMenuItem(svc menu.Service, avail AvailabilityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "menuItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body syncMenuItemRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ingredients := make([]menu.IngredientInput, 0, len(body.Ingredients))
		for _, in := range body.Ingredients {
			ingredientID, _ := uuid.Parse(in.IngredientID)
			required := true
			if in.Required != nil {
				required = *in.Required
			}
			ingredients = append(ingredients, menu.IngredientInput{
				IngredientID:   ingredientID,
				PortionPerUnit: in.PortionPerUnit,
				Required:       required,
			})
		}

		result, err := svc.Sync(r.Context(), menu.SyncInput{
			ID:          id,
			Name:        validators.SanitizeString(body.Name, 120),
			Inactive:    body.Inactive,
			Ingredients: ingredients,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		item := result.Item
		changes, err := avail.Recompute(r.Context(), []uuid.UUID{id})
		if err != nil {
			logg.Error(logg.WithMenuItemID(r.Context(), id.String()), "recompute availability after sync failed", err)
		} else if len(changes) > 0 {
			item.Status = changes[len(changes)-1].To
		}
		if changes == nil {
			changes = []availability.StatusChange{}
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, syncMenuItemResponse{
			Item:    toMenuItem(item),
			Created: result.Created,
			Changes: changes,
		})
	}
}

type menuStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active inactive"`
}

// SetMenuItemStatus switches a menu item off, or back on subject to stock.
func SetMenuItemStatus(svc AvailabilityService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "menuItemId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body menuStatusRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		change, err := svc.SetManualStatus(r.Context(), id, enums.MenuItemStatus(body.Status))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"changed": change != nil, "change": change})
	}
}
