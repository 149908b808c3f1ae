package consumption

import (
	"context"

	"github.com/google/uuid"

	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/kitchenstock-backend/pkg/errors"
)

const maxHistoryLimit = 500

// History serves consumption ledger reads.
type History struct {
	repo Repository
}

// NewHistory builds the ledger read service.
func NewHistory(repo Repository) *History {
	return &History{repo: repo}
}

// ByOrder returns every record written for the order. An unknown order
// yields NOT_FOUND.
func (h *History) ByOrder(ctx context.Context, orderID uuid.UUID) ([]models.ConsumptionRecord, error) {
	rows, err := h.repo.ListByOrder(ctx, orderID)
	if err != nil {
		return nil, dbpkg.StorageError(err, "list consumption by order")
	}
	if len(rows) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "no consumption recorded for order")
	}
	return rows, nil
}

// ByIngredient returns the most recent records of one ingredient.
func (h *History) ByIngredient(ctx context.Context, ingredientID uuid.UUID, limit int) ([]models.ConsumptionRecord, error) {
	if limit <= 0 || limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	rows, err := h.repo.ListByIngredient(ctx, ingredientID, limit)
	if err != nil {
		return nil, dbpkg.StorageError(err, "list consumption by ingredient")
	}
	return rows, nil
}
