package enums

// NotificationType maps to the notification_type column of in-app notifications.
type NotificationType string

const (
	NotificationTypeLowStock         NotificationType = "low_stock"
	NotificationTypeOutOfStock       NotificationType = "out_of_stock"
	NotificationTypeStockRecovered   NotificationType = "stock_recovered"
	NotificationTypeMenuAvailability NotificationType = "menu_availability"
)

var validNotificationTypes = []NotificationType{
	NotificationTypeLowStock,
	NotificationTypeOutOfStock,
	NotificationTypeStockRecovered,
	NotificationTypeMenuAvailability,
}

// IsValid checks whether the given type matches the canonical enum.
func (n NotificationType) IsValid() bool {
	return oneOf(n, validNotificationTypes)
}

// ParseNotificationType converts raw strings into NotificationType.
func ParseNotificationType(value string) (NotificationType, error) {
	return parse("notification type", value, validNotificationTypes)
}

// NotificationTypeForAlert is the notification shown when an alert of type
// alert is raised, or resolved.
func NotificationTypeForAlert(alert AlertType, resolved bool) NotificationType {
	switch {
	case resolved:
		return NotificationTypeStockRecovered
	case alert == AlertTypeOutOfStock:
		return NotificationTypeOutOfStock
	default:
		return NotificationTypeLowStock
	}
}

// Title is the headline staff see for the notification.
func (n NotificationType) Title() string {
	switch n {
	case NotificationTypeLowStock:
		return "Low stock"
	case NotificationTypeOutOfStock:
		return "Out of stock"
	case NotificationTypeStockRecovered:
		return "Stock recovered"
	case NotificationTypeMenuAvailability:
		return "Menu availability changed"
	default:
		return string(n)
	}
}
