package enums

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestDeriveStockStatus(t *testing.T) {
	tests := []struct {
		name    string
		current string
		min     string
		want    StockStatus
	}{
		{name: "zero is out of stock", current: "0", min: "5", want: StockStatusOutOfStock},
		{name: "zero with zero threshold", current: "0", min: "0", want: StockStatusOutOfStock},
		{name: "negative treated as out of stock", current: "-1", min: "5", want: StockStatusOutOfStock},
		{name: "fraction above zero under threshold", current: "0.001", min: "5", want: StockStatusLowStock},
		{name: "exactly at threshold is low", current: "5", min: "5", want: StockStatusLowStock},
		{name: "just above threshold", current: "5.001", min: "5", want: StockStatusInStock},
		{name: "positive with zero threshold", current: "1", min: "0", want: StockStatusInStock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := DeriveStockStatus(decimal.RequireFromString(tt.current), decimal.RequireFromString(tt.min))
			require.Equal(t, tt.want, got)
		})
	}
}

func TestDeriveStockStatusNeverInStockAtZero(t *testing.T) {
	for min := 0; min <= 50; min++ {
		for stock := 0; stock <= 60; stock++ {
			status := DeriveStockStatus(decimal.NewFromInt(int64(stock)), decimal.NewFromInt(int64(min)))
			if stock == 0 && status != StockStatusOutOfStock {
				t.Fatalf("stock 0 min %d derived %s", min, status)
			}
			if stock > 0 && stock <= min && status != StockStatusLowStock {
				t.Fatalf("stock %d min %d derived %s", stock, min, status)
			}
			if stock > min && stock > 0 && status != StockStatusInStock {
				t.Fatalf("stock %d min %d derived %s", stock, min, status)
			}
		}
	}
}

func TestStockStatusAvailability(t *testing.T) {
	require.True(t, StockStatusInStock.IsAvailable())
	require.True(t, StockStatusLowStock.IsAvailable())
	require.False(t, StockStatusOutOfStock.IsAvailable())
}

func TestAlertTypeForStatus(t *testing.T) {
	typ, ok := AlertTypeForStatus(StockStatusLowStock)
	require.True(t, ok)
	require.Equal(t, AlertTypeLowStock, typ)

	typ, ok = AlertTypeForStatus(StockStatusOutOfStock)
	require.True(t, ok)
	require.Equal(t, AlertTypeOutOfStock, typ)

	_, ok = AlertTypeForStatus(StockStatusInStock)
	require.False(t, ok)
}

func TestParseStockStatus(t *testing.T) {
	_, err := ParseStockStatus("gone")
	require.Error(t, err)
	got, err := ParseStockStatus("low_stock")
	require.NoError(t, err)
	require.Equal(t, StockStatusLowStock, got)
}
