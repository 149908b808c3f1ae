package enums

import "github.com/shopspring/decimal"

// StockStatus is the derived availability state of an ingredient.
type StockStatus string

const (
	StockStatusInStock    StockStatus = "in_stock"
	StockStatusLowStock   StockStatus = "low_stock"
	StockStatusOutOfStock StockStatus = "out_of_stock"
)

var validStockStatuses = []StockStatus{
	StockStatusInStock,
	StockStatusLowStock,
	StockStatusOutOfStock,
}

// DeriveStockStatus is the only way a StockStatus is produced for an ingredient.
func DeriveStockStatus(current, minLevel decimal.Decimal) StockStatus {
	switch {
	case current.Sign() <= 0:
		return StockStatusOutOfStock
	case current.LessThanOrEqual(minLevel):
		return StockStatusLowStock
	default:
		return StockStatusInStock
	}
}

// String implements fmt.Stringer.
func (s StockStatus) String() string {
	return string(s)
}

// IsAvailable reports whether menu items depending on the ingredient can be sold.
func (s StockStatus) IsAvailable() bool {
	return s == StockStatusInStock || s == StockStatusLowStock
}

// IsValid reports whether the value is a known StockStatus.
func (s StockStatus) IsValid() bool {
	return oneOf(s, validStockStatuses)
}

// ParseStockStatus converts raw input into a StockStatus.
func ParseStockStatus(value string) (StockStatus, error) {
	return parse("stock status", value, validStockStatuses)
}
