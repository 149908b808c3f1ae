package enums

// ConsumptionReason labels why stock left the ledger.
type ConsumptionReason string

const (
	ConsumptionReasonOrder ConsumptionReason = "order"
)

// AdjustmentReason labels a manual stock write.
type AdjustmentReason string

const (
	AdjustmentReasonCorrection AdjustmentReason = "manual_correction"
	AdjustmentReasonRestock    AdjustmentReason = "restock"
	AdjustmentReasonWaste      AdjustmentReason = "waste"
	AdjustmentReasonStocktake  AdjustmentReason = "stocktake"
)

var validAdjustmentReasons = []AdjustmentReason{
	AdjustmentReasonCorrection,
	AdjustmentReasonRestock,
	AdjustmentReasonWaste,
	AdjustmentReasonStocktake,
}

func (a AdjustmentReason) IsValid() bool {
	return oneOf(a, validAdjustmentReasons)
}

// ParseAdjustmentReason converts raw input into an AdjustmentReason.
func ParseAdjustmentReason(value string) (AdjustmentReason, error) {
	return parse("adjustment reason", value, validAdjustmentReasons)
}
