package enums

// AlertType identifies the stock condition an alert was raised for.
type AlertType string

const (
	AlertTypeLowStock   AlertType = "low_stock"
	AlertTypeOutOfStock AlertType = "out_of_stock"
)

var validAlertTypes = []AlertType{
	AlertTypeLowStock,
	AlertTypeOutOfStock,
}

// AlertTypeForStatus maps a stock status to the alert it should keep open.
// in_stock has no alert.
func AlertTypeForStatus(status StockStatus) (AlertType, bool) {
	switch status {
	case StockStatusLowStock:
		return AlertTypeLowStock, true
	case StockStatusOutOfStock:
		return AlertTypeOutOfStock, true
	default:
		return "", false
	}
}

func (a AlertType) String() string {
	return string(a)
}

func (a AlertType) IsValid() bool {
	return oneOf(a, validAlertTypes)
}

// ParseAlertType converts raw input into an AlertType.
func ParseAlertType(value string) (AlertType, error) {
	return parse("alert type", value, validAlertTypes)
}
