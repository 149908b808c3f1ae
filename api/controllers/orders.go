package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/kitchenstock-backend/api/middleware"
	"github.com/angelmondragon/kitchenstock-backend/api/responses"
	"github.com/angelmondragon/kitchenstock-backend/api/validators"
	"github.com/angelmondragon/kitchenstock-backend/internal/consumption"
	"github.com/angelmondragon/kitchenstock-backend/internal/orders"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

type consumeOrderLine struct {
	MenuItemID string `json:"menuItemId" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,gt=0"`
}

type consumeOrderRequest struct {
	OrderID string             `json:"orderId" validate:"required,uuid"`
	Items   []consumeOrderLine `json:"items" validate:"required,min=1,dive"`
}

// ConsumeOrder submits a completed order to the consumption engine.
func ConsumeOrder(svc orders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable"))
			return
		}

		var body consumeOrderRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		orderID, _ := uuid.Parse(body.OrderID)
		lines := make([]consumption.LineItem, 0, len(body.Items))
		for _, item := range body.Items {
			menuItemID, _ := uuid.Parse(item.MenuItemID)
			lines = append(lines, consumption.LineItem{MenuItemID: menuItemID, Quantity: item.Quantity})
		}

		result, err := svc.Submit(r.Context(), orders.Submission{
			OrderID: orderID,
			Items:   lines,
			Actor:   middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

type orderHistory interface {
	ByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ConsumptionRecord, error)
	ByIngredient(ctx context.Context, ingredientID uuid.UUID, limit int) ([]models.ConsumptionRecord, error)
}

// OrderConsumption lists the ledger entries one order wrote.
func OrderConsumption(history orderHistory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		records, err := history.ByOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toConsumptionRecords(records))
	}
}

// IngredientConsumption lists recent ledger entries for one ingredient.
func IngredientConsumption(history orderHistory, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ingredientID, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		records, err := history.ByIngredient(r.Context(), ingredientID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toConsumptionRecords(records))
	}
}
