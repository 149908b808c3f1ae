package consumption

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strconv"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/kitchenstock-backend/pkg/db/models"
)

// LineItem is one line of a submitted order.
type LineItem struct {
	MenuItemID uuid.UUID
	Quantity   int
}

// Contribution is the share of one order line in an ingredient's demand.
type Contribution struct {
	IngredientID uuid.UUID
	MenuItemID   uuid.UUID
	LineIndex    int
	Quantity     decimal.Decimal
}

// Plan is the aggregated demand of a whole order together with the
// snapshot it was computed against.
type Plan struct {
	OrderID    uuid.UUID
	// Digest identifies the submitted lines; see LinesDigest.
	Digest     string
	Demand     map[uuid.UUID]decimal.Decimal
	Provenance []Contribution
	Inventory  map[uuid.UUID]models.InventoryItem
	MenuItems  map[uuid.UUID]models.MenuItem
}

// IngredientIDs returns the demanded ingredients in ascending id order. The
// updater commits in this order so concurrent orders never interleave on
// the same pair of ingredients in opposite directions.
func (p *Plan) IngredientIDs() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(p.Demand))
	for id := range p.Demand {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	return ids
}

// ContributionsFor returns the provenance entries of one ingredient.
func (p *Plan) ContributionsFor(ingredientID uuid.UUID) []Contribution {
	var out []Contribution
	for _, c := range p.Provenance {
		if c.IngredientID == ingredientID {
			out = append(out, c)
		}
	}
	return out
}

// Without returns a copy of the plan minus the given ingredients.
func (p *Plan) Without(skip map[uuid.UUID]struct{}) *Plan {
	out := &Plan{
		OrderID:   p.OrderID,
		Digest:    p.Digest,
		Demand:    make(map[uuid.UUID]decimal.Decimal, len(p.Demand)),
		Inventory: p.Inventory,
		MenuItems: p.MenuItems,
	}
	for id, qty := range p.Demand {
		if _, ok := skip[id]; ok {
			continue
		}
		out.Demand[id] = qty
	}
	for _, c := range p.Provenance {
		if _, ok := skip[c.IngredientID]; ok {
			continue
		}
		out.Provenance = append(out.Provenance, c)
	}
	return out
}

// Empty reports whether nothing is left to consume.
func (p *Plan) Empty() bool {
	return len(p.Demand) == 0
}

// LinesDigest fingerprints an order's lines as ordered quantity per menu
// item. Line order and splitting one item across lines do not change it.
func LinesDigest(lines []LineItem) string {
	totals := make(map[uuid.UUID]int, len(lines))
	for _, line := range lines {
		totals[line.MenuItemID] += line.Quantity
	}
	ids := make([]uuid.UUID, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })

	h := sha256.New()
	for _, id := range ids {
		h.Write([]byte(id.String() + ":" + strconv.Itoa(totals[id]) + "\n"))
	}
	return hex.EncodeToString(h.Sum(nil))
}
