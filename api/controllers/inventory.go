package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/api/middleware"
	"github.com/angelmondragon/kitchenstock-backend/api/responses"
	"github.com/angelmondragon/kitchenstock-backend/api/validators"
	"github.com/angelmondragon/kitchenstock-backend/internal/inventory"
	"github.com/angelmondragon/kitchenstock-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
	"github.com/angelmondragon/kitchenstock-backend/pkg/logger"
)

type createInventoryRequest struct {
	IngredientID  *string         `json:"ingredientId" validate:"omitempty,uuid"`
	Name          string          `json:"name" validate:"required,max=120"`
	Unit          string          `json:"unit" validate:"required,max=16"`
	InitialStock  decimal.Decimal `json:"initialStock" validate:"decimal_nonneg"`
	MinStockLevel decimal.Decimal `json:"minStockLevel" validate:"decimal_nonneg"`
	MaxStockLevel decimal.Decimal `json:"maxStockLevel" validate:"decimal_nonneg"`
}

// CreateInventoryItem registers an ingredient in the stock ledger.
func CreateInventoryItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body createInventoryRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		id := uuid.New()
		if body.IngredientID != nil {
			id, _ = uuid.Parse(*body.IngredientID)
		}

		item, err := svc.Create(r.Context(), inventory.CreateInput{
			IngredientID:  id,
			Name:          validators.SanitizeString(body.Name, 120),
			Unit:          validators.SanitizeString(body.Unit, 16),
			InitialStock:  body.InitialStock,
			MinStockLevel: body.MinStockLevel,
			MaxStockLevel: body.MaxStockLevel,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, toInventoryItem(*item))
	}
}

// ListInventory returns ingredients, optionally filtered by stock status.
func ListInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		params := inventory.ListParams{}
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			status, err := enums.ParseStockStatus(raw)
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
		responses.WriteSuccess(w, toInventoryItems(items))
	}
}

// GetInventoryItem returns one ingredient.
func GetInventoryItem(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toInventoryItem(*item))
	}
}

type quantityRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"decimal_positive"`
	Note     *string         `json:"note" validate:"omitempty,max=500"`
}

type setStockRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"decimal_nonneg"`
	Reason   string          `json:"reason" validate:"omitempty,oneof=manual_correction stocktake"`
	Note     *string         `json:"note" validate:"omitempty,max=500"`
}

type adjustResponse struct {
	Item       inventoryItemDTO `json:"item"`
	Adjustment adjustmentDTO    `json:"adjustment"`
}

// RestockInventory adds a delivery to an ingredient's stock.
func RestockInventory(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return adjustByDelta(svc, enums.AdjustmentReasonRestock, logg)
}

// RecordWaste removes spoiled or discarded stock.
func RecordWaste(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return adjustByDelta(svc, enums.AdjustmentReasonWaste, logg)
}

func adjustByDelta(svc inventory.Service, reason enums.AdjustmentReason, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body quantityRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		writeAdjustment(w, r, svc, logg, inventory.AdjustInput{
			IngredientID: id,
			Reason:       reason,
			Quantity:     body.Quantity,
			Note:         body.Note,
			Actor:        middleware.ActorFromContext(r.Context()),
		})
	}
}

// SetStockLevel overwrites an ingredient's stock after a correction or stocktake.
func SetStockLevel(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body setStockRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		reason := enums.AdjustmentReasonCorrection
		if body.Reason != "" {
			reason = enums.AdjustmentReason(body.Reason)
		}
		writeAdjustment(w, r, svc, logg, inventory.AdjustInput{
			IngredientID: id,
			Reason:       reason,
			Quantity:     body.Quantity,
			Note:         body.Note,
			Actor:        middleware.ActorFromContext(r.Context()),
		})
	}
}

func writeAdjustment(w http.ResponseWriter, r *http.Request, svc inventory.Service, logg *logger.Logger, input inventory.AdjustInput) {
	result, err := svc.Adjust(r.Context(), input)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return
	}
	responses.WriteSuccess(w, adjustResponse{
		Item:       toInventoryItem(result.Item),
		Adjustment: toAdjustment(result.Adjustment),
	})
}

type thresholdsRequest struct {
	MinStockLevel decimal.Decimal `json:"minStockLevel" validate:"decimal_nonneg"`
	MaxStockLevel decimal.Decimal `json:"maxStockLevel" validate:"decimal_nonneg"`
}

// UpdateThresholds replaces an ingredient's min/max stock levels.
func UpdateThresholds(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body thresholdsRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.UpdateThresholds(r.Context(), inventory.ThresholdInput{
			IngredientID:  id,
			MinStockLevel: body.MinStockLevel,
			MaxStockLevel: body.MaxStockLevel,
			Actor:         middleware.ActorFromContext(r.Context()),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, toInventoryItem(*item))
	}
}

// InventoryAdjustments lists the manual adjustment log for one ingredient.
func InventoryAdjustments(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 500)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		rows, err := svc.History(r.Context(), id, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]adjustmentDTO, 0, len(rows))
		for _, row := range rows {
			out = append(out, toAdjustment(row))
		}
		responses.WriteSuccess(w, out)
	}
}

// InventoryReconciliation reports ingredients whose stock disagrees with
// the consumption and adjustment ledgers.
func InventoryReconciliation(svc inventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		drift, err := svc.Reconcile(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if drift == nil {
			drift = []inventory.Drift{}
		}
		responses.WriteSuccess(w, map[string]any{"drift": drift})
	}
}
