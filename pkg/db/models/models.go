package models

// All lists every persisted model, used for schema bootstrap on sqlite.
func All() []any {
	return []any{
		&InventoryItem{},
		&MenuItem{},
		&MenuItemIngredient{},
		&ConsumptionRecord{},
		&StockClaim{},
		&StockAdjustment{},
		&StockAlert{},
		&Notification{},
		&OutboxEvent{},
		&OutboxDLQ{},
	}
}
