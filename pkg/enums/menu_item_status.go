package enums

// MenuItemStatus tracks whether a menu item can be ordered.
type MenuItemStatus string

const (
	MenuItemStatusActive     MenuItemStatus = "active"
	MenuItemStatusInactive   MenuItemStatus = "inactive"
	MenuItemStatusOutOfStock MenuItemStatus = "out_of_stock"
)

var validMenuItemStatuses = []MenuItemStatus{
	MenuItemStatusActive,
	MenuItemStatusInactive,
	MenuItemStatusOutOfStock,
}

// String implements fmt.Stringer.
func (m MenuItemStatus) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MenuItemStatus.
func (m MenuItemStatus) IsValid() bool {
	return oneOf(m, validMenuItemStatuses)
}

// ParseMenuItemStatus converts raw input into a MenuItemStatus.
func ParseMenuItemStatus(value string) (MenuItemStatus, error) {
	return parse("menu item status", value, validMenuItemStatuses)
}
