// Package kernel contains the pair-arbitrage core: spread/market-state
// evaluation, grid levels, the per-level position ledger and the order-book
// matching engine. Everything in this package is pure computation; market
// data is injected and no I/O happens here.
package kernel

import (
	"fmt"
	"math"
	"sync"
)

// MarketState classifies the current two-sided market of a pair
type MarketState int

const (
	// MarketStateUnknown means the pair has no usable prices yet
	MarketStateUnknown MarketState = iota
	// MarketStateNoOpportunity means prices are valid but no dislocation exists
	MarketStateNoOpportunity
	// MarketStateLimitOpportunity means the books overlap in a pattern that
	// allows passive (limit) execution of the spread
	MarketStateLimitOpportunity
	// MarketStateCrossed means one leg's bid trades through the other leg's ask
	MarketStateCrossed
)

func (s MarketState) String() string {
	switch s {
	case MarketStateNoOpportunity:
		return "NoOpportunity"
	case MarketStateLimitOpportunity:
		return "LimitOpportunity"
	case MarketStateCrossed:
		return "Crossed"
	default:
		return "Unknown"
	}
}

// Trade direction of a spread position
const (
	DirectionLongSpread  = "LONG_SPREAD"  // buy leg1, sell leg2
	DirectionShortSpread = "SHORT_SPREAD" // sell leg1, buy leg2
	DirectionNone        = "none"
)

// TradingPair holds the live quote state and per-level positions of one
// leg1/leg2 pair. Quotes are pushed in from the market layer on every tick;
// all derived values are recomputed from the four prices on demand.
type TradingPair struct {
	Leg1Symbol string
	Leg2Symbol string
	PairType   string

	// quoteMu guards the four prices: the websocket stream pushes quotes
	// while API handlers evaluate the pair concurrently
	quoteMu sync.RWMutex
	leg1Bid float64
	leg1Ask float64
	leg2Bid float64
	leg2Ask float64

	// Positions maps grid tag -> position. Owned exclusively by this pair,
	// tags embed both leg identities so no cross-pair aliasing is possible.
	Positions map[string]*GridPosition

	// IsPendingRemoval marks a pair that should be removed once flat.
	// It still accepts fills but no new entry intent.
	IsPendingRemoval bool
}

// NewTradingPair creates a pair with no quotes and no positions
func NewTradingPair(leg1, leg2, pairType string) *TradingPair {
	return &TradingPair{
		Leg1Symbol: leg1,
		Leg2Symbol: leg2,
		PairType:   pairType,
		Positions:  make(map[string]*GridPosition),
	}
}

// Key returns the registry key for this pair
func (p *TradingPair) Key() string {
	return PairKey(p.Leg1Symbol, p.Leg2Symbol)
}

// PairKey builds the registry key for an ordered leg pair
func PairKey(leg1, leg2 string) string {
	return fmt.Sprintf("%s/%s", leg1, leg2)
}

// SetLeg1Quote updates leg1's best bid/ask
func (p *TradingPair) SetLeg1Quote(bid, ask float64) {
	p.quoteMu.Lock()
	p.leg1Bid = bid
	p.leg1Ask = ask
	p.quoteMu.Unlock()
}

// SetLeg2Quote updates leg2's best bid/ask
func (p *TradingPair) SetLeg2Quote(bid, ask float64) {
	p.quoteMu.Lock()
	p.leg2Bid = bid
	p.leg2Ask = ask
	p.quoteMu.Unlock()
}

// Quotes returns a consistent snapshot of the four prices
func (p *TradingPair) Quotes() (bid1, ask1, bid2, ask2 float64) {
	p.quoteMu.RLock()
	defer p.quoteMu.RUnlock()
	return p.leg1Bid, p.leg1Ask, p.leg2Bid, p.leg2Ask
}

// HasValidPrices reports whether all four prices are strictly positive and
// each leg's bid does not exceed its ask. No epsilon tolerance is applied.
func (p *TradingPair) HasValidPrices() bool {
	bid1, ask1, bid2, ask2 := p.Quotes()
	return validQuotes(bid1, ask1, bid2, ask2)
}

func validQuotes(bid1, ask1, bid2, ask2 float64) bool {
	return bid1 > 0 && ask1 > 0 && bid2 > 0 && ask2 > 0 &&
		bid1 <= ask1 && bid2 <= ask2
}

// ShortSpread is the relative spread captured by selling leg1 and buying leg2
func (p *TradingPair) ShortSpread() float64 {
	bid1, _, _, ask2 := p.Quotes()
	return shortSpreadOf(bid1, ask2)
}

func shortSpreadOf(bid1, ask2 float64) float64 {
	if bid1 == 0 {
		return 0
	}
	return (bid1 - ask2) / bid1
}

// LongSpread is the relative spread captured by buying leg1 and selling leg2
func (p *TradingPair) LongSpread() float64 {
	_, ask1, bid2, _ := p.Quotes()
	return longSpreadOf(ask1, bid2)
}

func longSpreadOf(ask1, bid2 float64) float64 {
	if ask1 == 0 {
		return 0
	}
	return (ask1 - bid2) / ask1
}

// TheoreticalSpread is whichever of short/long spread has the larger
// absolute value
func (p *TradingPair) TheoreticalSpread() float64 {
	bid1, ask1, bid2, ask2 := p.Quotes()
	short, long := shortSpreadOf(bid1, ask2), longSpreadOf(ask1, bid2)
	if math.Abs(short) > math.Abs(long) {
		return short
	}
	return long
}

// Evaluate classifies the market and returns the state together with the
// direction in which the dislocation (if any) can be traded
func (p *TradingPair) Evaluate() (MarketState, string) {
	bid1, ask1, bid2, ask2 := p.Quotes()
	return classifyQuotes(bid1, ask1, bid2, ask2)
}

func classifyQuotes(bid1, ask1, bid2, ask2 float64) (MarketState, string) {
	if !validQuotes(bid1, ask1, bid2, ask2) {
		return MarketStateUnknown, DirectionNone
	}

	if bid1 > ask2 {
		return MarketStateCrossed, DirectionShortSpread
	}
	if bid2 > ask1 {
		return MarketStateCrossed, DirectionLongSpread
	}

	if ask1 > ask2 && ask2 > bid1 && bid1 > bid2 {
		return MarketStateLimitOpportunity, DirectionShortSpread
	}
	if ask2 > ask1 && ask1 > bid2 && bid2 > bid1 {
		return MarketStateLimitOpportunity, DirectionLongSpread
	}

	return MarketStateNoOpportunity, DirectionNone
}

// ExecutableSpread returns the spread actually attainable under the current
// market state. The second return value is false when no spread is executable
// (NoOpportunity or Unknown).
func (p *TradingPair) ExecutableSpread() (float64, bool) {
	bid1, ask1, bid2, ask2 := p.Quotes()
	state, direction := classifyQuotes(bid1, ask1, bid2, ask2)

	switch state {
	case MarketStateCrossed:
		if direction == DirectionShortSpread {
			return shortSpreadOf(bid1, ask2), true
		}
		return longSpreadOf(ask1, bid2), true

	case MarketStateLimitOpportunity:
		if direction == DirectionShortSpread {
			a := (ask1 - ask2) / ask1
			b := (bid1 - bid2) / bid1
			return math.Max(a, b), true
		}
		a := (ask1 - bid2) / ask1
		b := (bid1 - ask2) / bid1
		return math.Min(a, b), true
	}

	return 0, false
}

// GetOrCreatePosition returns the position owned by this pair for the given
// level pair, creating a zero position on first use
func (p *TradingPair) GetOrCreatePosition(lp *GridLevelPair) *GridPosition {
	tag := EncodeGridTag(p.Leg1Symbol, p.Leg2Symbol, lp)
	return p.GetOrCreatePositionByTag(tag)
}

// GetOrCreatePositionByTag returns the position for an already-encoded tag
func (p *TradingPair) GetOrCreatePositionByTag(tag string) *GridPosition {
	if pos, ok := p.Positions[tag]; ok {
		return pos
	}
	pos := &GridPosition{Tag: tag}
	p.Positions[tag] = pos
	return pos
}

// HasOpenPosition reports whether any grid level of this pair holds quantity
// on either leg
func (p *TradingPair) HasOpenPosition() bool {
	for _, pos := range p.Positions {
		if pos.Invested() {
			return true
		}
	}
	return false
}
