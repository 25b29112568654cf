package kernel

import (
	"math"
	"testing"
)

func TestApplyFillWeightedAverage(t *testing.T) {
	pos := &GridPosition{}

	// 0.2 @ 50000 then 0.3 @ 51000 => qty 0.5, avg (0.2*50000+0.3*51000)/0.5 = 50600
	pos.ApplyFill(Leg1, 0.2, 50000)
	pos.ApplyFill(Leg1, 0.3, 51000)

	if math.Abs(pos.Leg1Quantity-0.5) > 1e-12 {
		t.Errorf("Leg1Quantity = %v, want 0.5", pos.Leg1Quantity)
	}
	if math.Abs(pos.Leg1AverageCost-50600) > 1e-9 {
		t.Errorf("Leg1AverageCost = %v, want 50600", pos.Leg1AverageCost)
	}
	if !pos.Invested() {
		t.Error("position with quantity should be invested")
	}
}

func TestApplyFillShortSideAverage(t *testing.T) {
	pos := &GridPosition{}

	pos.ApplyFill(Leg2, -1.0, 200)
	pos.ApplyFill(Leg2, -1.0, 210)

	if pos.Leg2Quantity != -2.0 {
		t.Errorf("Leg2Quantity = %v, want -2.0", pos.Leg2Quantity)
	}
	if math.Abs(pos.Leg2AverageCost-205) > 1e-9 {
		t.Errorf("Leg2AverageCost = %v, want 205", pos.Leg2AverageCost)
	}
}

func TestApplyFillReduceKeepsAverage(t *testing.T) {
	pos := &GridPosition{}
	pos.ApplyFill(Leg1, 1.0, 100)
	pos.ApplyFill(Leg1, 1.0, 110)

	// reducing fill: quantity adjusts, average cost untouched
	pos.ApplyFill(Leg1, -0.5, 130)

	if math.Abs(pos.Leg1Quantity-1.5) > 1e-12 {
		t.Errorf("Leg1Quantity = %v, want 1.5", pos.Leg1Quantity)
	}
	if math.Abs(pos.Leg1AverageCost-105) > 1e-9 {
		t.Errorf("Leg1AverageCost = %v, want 105", pos.Leg1AverageCost)
	}
}

func TestApplyFillCloseToFlat(t *testing.T) {
	pos := &GridPosition{}
	pos.ApplyFill(Leg1, 2.0, 100)
	pos.ApplyFill(Leg1, -2.0, 120)

	if pos.Leg1Quantity != 0 {
		t.Errorf("Leg1Quantity = %v, want 0", pos.Leg1Quantity)
	}
	if pos.Invested() {
		t.Error("flat position must not be invested")
	}

	// re-opening after flat takes the new fill price as basis
	pos.ApplyFill(Leg1, 1.0, 90)
	if pos.Leg1AverageCost != 90 {
		t.Errorf("Leg1AverageCost = %v, want 90", pos.Leg1AverageCost)
	}
}

func TestApplyFillCrossThroughZeroResetsBasis(t *testing.T) {
	pos := &GridPosition{}
	pos.ApplyFill(Leg1, 1.0, 100)

	// flip long 1.0 into short 2.0: basis resets to the crossing fill price
	pos.ApplyFill(Leg1, -3.0, 95)

	if math.Abs(pos.Leg1Quantity+2.0) > 1e-12 {
		t.Errorf("Leg1Quantity = %v, want -2.0", pos.Leg1Quantity)
	}
	if pos.Leg1AverageCost != 95 {
		t.Errorf("Leg1AverageCost = %v, want 95", pos.Leg1AverageCost)
	}
}

func TestApplyFillLegsIndependent(t *testing.T) {
	pos := &GridPosition{}
	pos.ApplyFill(Leg1, 1.0, 100)
	pos.ApplyFill(Leg2, -4.0, 25)

	if pos.Leg1Quantity != 1.0 || pos.Leg2Quantity != -4.0 {
		t.Errorf("quantities = (%v, %v), want (1.0, -4.0)", pos.Leg1Quantity, pos.Leg2Quantity)
	}
	if pos.Leg1AverageCost != 100 || pos.Leg2AverageCost != 25 {
		t.Errorf("average costs = (%v, %v), want (100, 25)", pos.Leg1AverageCost, pos.Leg2AverageCost)
	}
}
