package kernel

import (
	"fmt"
	"math"

	"pairarb/market"
)

// Matching strategy selection
type MatchStrategy int

const (
	// MatchAutoDetect picks the strategy from available depth
	MatchAutoDetect MatchStrategy = iota
	// MatchDualOrderbook walks both legs' depth ladders
	MatchDualOrderbook
	// MatchSingleOrderbook walks one leg's ladder against the other leg's
	// best price treated as infinite depth
	MatchSingleOrderbook
	// MatchBestPrices treats both legs as infinite depth at best bid/ask
	MatchBestPrices
)

// Size stand-in for a leg without a depth ladder
const syntheticDepth = 1e18

// MatchTarget describes the spread trade whose executable size is wanted
type MatchTarget struct {
	Leg1Symbol     string
	Leg2Symbol     string
	Direction      string  // DirectionLongSpread (buy leg1) or DirectionShortSpread (sell leg1)
	ExpectedSpread float64 // the grid level's spread threshold
	TargetNotional float64 // desired market value to execute
	Strategy       MatchStrategy
}

// MatchedLevel records one price level consumed by the match
type MatchedLevel struct {
	Leg1Price    float64
	Leg2Price    float64
	Leg1Quantity float64 // unsigned at level granularity
	Leg2Quantity float64
	Notional     float64
	Spread       float64
}

// MatchResult is the aggregate outcome of a match. Quantities are signed:
// positive = net buy, negative = net sell, directly usable as order sizes.
type MatchResult struct {
	Executable   bool
	RejectReason string

	Leg1Quantity float64
	Leg2Quantity float64
	Leg1AvgPrice float64
	Leg2AvgPrice float64
	Leg1Notional float64
	Leg2Notional float64
	AvgSpread    float64

	Levels []MatchedLevel
}

func reject(reason string) *MatchResult {
	return &MatchResult{Executable: false, RejectReason: reason}
}

type ladderLevel struct {
	price float64
	size  float64
}

// MatchPair computes the maximum mutually consistent fill size for the target
// spread trade against available depth. Pure function: safe for concurrent
// use across pairs. Violated preconditions and unusable market data yield a
// non-executable result with a reason, never a panic.
func MatchPair(target *MatchTarget, securities market.SecurityProvider, books market.BookProvider) *MatchResult {
	if target == nil {
		return reject("no match target")
	}
	if target.TargetNotional <= 0 {
		return reject("target notional must be positive")
	}
	if target.Direction != DirectionLongSpread && target.Direction != DirectionShortSpread {
		return reject(fmt.Sprintf("invalid direction %q", target.Direction))
	}

	sec1, ok := securities.GetSecurity(target.Leg1Symbol)
	if !ok {
		return reject(fmt.Sprintf("unknown security %s", target.Leg1Symbol))
	}
	sec2, ok := securities.GetSecurity(target.Leg2Symbol)
	if !ok {
		return reject(fmt.Sprintf("unknown security %s", target.Leg2Symbol))
	}

	var book1, book2 *market.OrderBook
	if books != nil {
		book1 = books.GetOrderBook(target.Leg1Symbol)
		book2 = books.GetOrderBook(target.Leg2Symbol)
	}

	strategy := target.Strategy
	if strategy == MatchAutoDetect {
		switch {
		case book1.HasDepth() && book2.HasDepth():
			strategy = MatchDualOrderbook
		case book1.HasDepth() || book2.HasDepth():
			strategy = MatchSingleOrderbook
		default:
			strategy = MatchBestPrices
		}
	}

	// Buy leg is leg1 for a long spread, leg2 for a short spread.
	// The buy side walks asks, the sell side walks bids.
	longSpread := target.Direction == DirectionLongSpread

	var buyLadder, sellLadder []ladderLevel
	var err error
	if longSpread {
		buyLadder, err = sideLadder(strategy, book1, sec1, true)
		if err == nil {
			sellLadder, err = sideLadder(strategy, book2, sec2, false)
		}
	} else {
		buyLadder, err = sideLadder(strategy, book2, sec2, true)
		if err == nil {
			sellLadder, err = sideLadder(strategy, book1, sec1, false)
		}
	}
	if err != nil {
		return reject(err.Error())
	}

	buyLot, sellLot := sec1.LotSize, sec2.LotSize
	if !longSpread {
		buyLot, sellLot = sec2.LotSize, sec1.LotSize
	}

	levels := walkLadders(target, buyLadder, sellLadder, buyLot, sellLot, longSpread)
	if len(levels) == 0 {
		return reject("no order book level satisfied the expected spread")
	}

	return aggregateLevels(levels, longSpread)
}

// sideLadder returns the ladder to walk for one leg: the real depth ladder
// when the strategy uses it, otherwise a single synthetic level at the best
// price with effectively infinite size
func sideLadder(strategy MatchStrategy, book *market.OrderBook, sec *market.Security, buying bool) ([]ladderLevel, error) {
	useDepth := strategy == MatchDualOrderbook ||
		(strategy == MatchSingleOrderbook && book.HasDepth())

	if useDepth {
		if !book.HasDepth() {
			return nil, fmt.Errorf("no depth available for %s", sec.Symbol)
		}
		src := book.Bids
		if buying {
			src = book.Asks
		}
		ladder := make([]ladderLevel, 0, len(src))
		for _, lv := range src {
			if lv.Price > 0 && lv.Size > 0 {
				ladder = append(ladder, ladderLevel{price: lv.Price, size: lv.Size})
			}
		}
		if len(ladder) == 0 {
			return nil, fmt.Errorf("no usable depth for %s", sec.Symbol)
		}
		return ladder, nil
	}

	price := sec.Bid
	if buying {
		price = sec.Ask
	}
	if price <= 0 {
		return nil, fmt.Errorf("no valid price for %s", sec.Symbol)
	}
	return []ladderLevel{{price: price, size: syntheticDepth}}, nil
}

// walkLadders runs the two-pointer walk over the buy and sell ladders,
// enforcing market-value equality at every matched level
func walkLadders(target *MatchTarget, buy, sell []ladderLevel, buyLot, sellLot float64, longSpread bool) []MatchedLevel {
	var levels []MatchedLevel
	accumulated := 0.0
	buyIdx, sellIdx := 0, 0

	for accumulated < target.TargetNotional && buyIdx < len(buy) && sellIdx < len(sell) {
		bl := &buy[buyIdx]
		sl := &sell[sellIdx]

		// Unified spread formula, always relative to leg1's price
		leg1Price, leg2Price := bl.price, sl.price
		if !longSpread {
			leg1Price, leg2Price = sl.price, bl.price
		}
		spread := (leg1Price - leg2Price) / leg1Price

		// Direction-aware validation: buying leg1 wants the spread at or
		// below the threshold, selling leg1 wants it at or above
		valid := spread <= target.ExpectedSpread
		if !longSpread {
			valid = spread >= target.ExpectedSpread
		}
		if !valid {
			sellIdx++
			continue
		}

		remaining := target.TargetNotional - accumulated

		// Start from the buy side capped by remaining target notional
		buyQty := floorToLot(math.Min(bl.size, remaining/bl.price), buyLot)
		sellQty := floorToLot(buyQty*bl.price/sl.price, sellLot)

		// If the sell side cannot cover the implied size, the sell side is
		// the binding constraint: cap it and re-derive the buy size from the
		// cap so the two legs keep equal market value
		if sellQty > sl.size {
			sellQty = floorToLot(sl.size, sellLot)
			buyQty = math.Min(floorToLot(sellQty*sl.price/bl.price, buyLot), buyQty)
		} else if alt := math.Min(floorToLot(sellQty*sl.price/bl.price, buyLot), buyQty); alt > 0 &&
			math.Abs(alt*bl.price-sellQty*sl.price) < math.Abs(buyQty*bl.price-sellQty*sl.price) {
			// Re-derive the buy size when that leaves the two legs' market
			// value closer than the first rounding did
			buyQty = alt
		}

		if buyQty <= 0 || sellQty <= 0 {
			advanced := false
			if floorToLot(bl.size, buyLot) <= 0 {
				buyIdx++
				advanced = true
			}
			if floorToLot(sl.size, sellLot) <= 0 {
				sellIdx++
				advanced = true
			}
			if !advanced {
				if sellQty > 0 {
					// Sell-level residue cannot support one buy lot
					sellIdx++
					continue
				}
				if remaining > bl.size*bl.price {
					// Buy-level residue too small to pair one sell lot
					buyIdx++
					continue
				}
				// Remaining target is below one lot's worth of notional
				break
			}
			continue
		}

		notional := buyQty * bl.price
		lv := MatchedLevel{Notional: notional, Spread: spread}
		if longSpread {
			lv.Leg1Price, lv.Leg1Quantity = bl.price, buyQty
			lv.Leg2Price, lv.Leg2Quantity = sl.price, sellQty
		} else {
			lv.Leg1Price, lv.Leg1Quantity = sl.price, sellQty
			lv.Leg2Price, lv.Leg2Quantity = bl.price, buyQty
		}
		levels = append(levels, lv)

		accumulated += notional
		bl.size -= buyQty
		sl.size -= sellQty

		// Advance cursors that are within 10% of a lot of exhaustion
		if bl.size <= 0.1*buyLot {
			buyIdx++
		}
		if sl.size <= 0.1*sellLot {
			sellIdx++
		}
	}

	return levels
}

// aggregateLevels folds matched levels into volume-weighted totals with
// signed per-leg quantities
func aggregateLevels(levels []MatchedLevel, longSpread bool) *MatchResult {
	var qty1, qty2, notional1, notional2, matched, weightedSpread float64
	for _, lv := range levels {
		qty1 += lv.Leg1Quantity
		qty2 += lv.Leg2Quantity
		notional1 += lv.Leg1Quantity * lv.Leg1Price
		notional2 += lv.Leg2Quantity * lv.Leg2Price
		matched += lv.Notional
		weightedSpread += lv.Spread * lv.Notional
	}

	if qty1 <= 0 || qty2 <= 0 {
		return reject("matched quantity is not positive")
	}

	r := &MatchResult{
		Executable:   true,
		Leg1AvgPrice: notional1 / qty1,
		Leg2AvgPrice: notional2 / qty2,
		Leg1Notional: notional1,
		Leg2Notional: notional2,
		AvgSpread:    weightedSpread / matched,
		Levels:       levels,
	}
	if longSpread {
		r.Leg1Quantity = qty1
		r.Leg2Quantity = -qty2
	} else {
		r.Leg1Quantity = -qty1
		r.Leg2Quantity = qty2
	}
	return r
}

// floorToLot rounds a quantity down to the symbol's lot size.
// Lot size zero means the venue imposes no granularity.
func floorToLot(qty, lot float64) float64 {
	if qty <= 0 {
		return 0
	}
	if lot <= 0 {
		return qty
	}
	return math.Floor(qty/lot+1e-9) * lot
}
