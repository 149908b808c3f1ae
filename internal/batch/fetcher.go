// Package batch loads menu definitions and inventory rows for a whole order
// in one round trip per table.
package batch

import (
	"context"
	"sort"

	"github.com/google/uuid"

	dbpkg "github.com/angelmondragon/kitchenstock-backend/pkg/db"
	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
)

type menuReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.MenuItem, error)
}

type inventoryReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]models.InventoryItem, error)
}

// Fetcher resolves ids to rows. Missing ids are absent from the result; any
// storage failure is returned as an error and never as an empty map.
type Fetcher struct {
	menu      menuReader
	inventory inventoryReader
}

// NewFetcher builds a Fetcher over the menu and inventory repositories.
func NewFetcher(menu menuReader, inventory inventoryReader) *Fetcher {
	return &Fetcher{menu: menu, inventory: inventory}
}

// FetchMenuItems loads menu definitions keyed by id.
func (f *Fetcher) FetchMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	unique := Dedupe(ids)
	found := make(map[uuid.UUID]models.MenuItem, len(unique))
	if len(unique) == 0 {
		return found, nil
	}
	rows, err := f.menu.FindByIDs(ctx, unique)
	if err != nil {
		return nil, dbpkg.StorageError(err, "fetch menu items")
	}
	for _, row := range rows {
		found[row.ID] = row
	}
	return found, nil
}

// FetchInventory loads inventory rows keyed by ingredient id.
func (f *Fetcher) FetchInventory(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error) {
	unique := Dedupe(ids)
	found := make(map[uuid.UUID]models.InventoryItem, len(unique))
	if len(unique) == 0 {
		return found, nil
	}
	rows, err := f.inventory.FindByIDs(ctx, unique)
	if err != nil {
		return nil, dbpkg.StorageError(err, "fetch inventory")
	}
	for _, row := range rows {
		found[row.IngredientID] = row
	}
	return found, nil
}

// Missing returns the ids absent from found, sorted and without duplicates.
func Missing[V any](ids []uuid.UUID, found map[uuid.UUID]V) []uuid.UUID {
	var missing []uuid.UUID
	for _, id := range Dedupe(ids) {
		if _, ok := found[id]; !ok {
			missing = append(missing, id)
		}
	}
	return missing
}

// Dedupe returns the distinct ids in ascending order.
func Dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
