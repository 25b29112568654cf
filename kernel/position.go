package kernel

// Leg selector for fills
const (
	Leg1 = 1
	Leg2 = 2
)

// GridPosition is the running quantity and volume-weighted average cost held
// at one grid level of one pair. Quantities are signed (positive = net long).
// Mutated only by ApplyFill; created lazily on the first fill that references
// its tag and cleared implicitly when the owning pair is removed.
type GridPosition struct {
	Tag string

	Leg1Quantity    float64
	Leg2Quantity    float64
	Leg1AverageCost float64
	Leg2AverageCost float64
}

// Invested reports whether either leg holds quantity
func (gp *GridPosition) Invested() bool {
	return gp.Leg1Quantity != 0 || gp.Leg2Quantity != 0
}

// ApplyFill applies a signed fill to one leg.
//
// A fill that adds exposure in the current direction (or fills a flat leg)
// updates the average cost incrementally:
//
//	newAvg = (oldQty*oldAvg + fillQty*fillPrice) / (oldQty + fillQty)
//
// A fill that reduces the position leaves the average cost untouched. A fill
// that crosses through zero flips the position and resets the average cost
// to the fill price, since all remaining exposure was acquired at that fill.
// The cross-through-zero reset is an interpretation of reducing-fill
// semantics and is flagged for review.
func (gp *GridPosition) ApplyFill(leg int, quantityDelta, fillPrice float64) {
	switch leg {
	case Leg1:
		gp.Leg1Quantity, gp.Leg1AverageCost = applyLegFill(gp.Leg1Quantity, gp.Leg1AverageCost, quantityDelta, fillPrice)
	case Leg2:
		gp.Leg2Quantity, gp.Leg2AverageCost = applyLegFill(gp.Leg2Quantity, gp.Leg2AverageCost, quantityDelta, fillPrice)
	}
}

func applyLegFill(quantity, averageCost, delta, price float64) (float64, float64) {
	if delta == 0 {
		return quantity, averageCost
	}

	newQuantity := quantity + delta

	switch {
	case quantity == 0:
		// Opening a flat leg
		return newQuantity, price

	case sameSign(quantity, delta):
		// Adding exposure: incremental weighted average
		avg := (quantity*averageCost + delta*price) / newQuantity
		return newQuantity, avg

	case sameSign(quantity, newQuantity):
		// Reducing: average cost only changes when exposure is added
		return newQuantity, averageCost

	case newQuantity == 0:
		// Fully closed
		return 0, averageCost

	default:
		// Crossed through zero: the new position consists entirely of the
		// crossing fill
		return newQuantity, price
	}
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}
