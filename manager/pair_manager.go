// Package manager owns the trading-pair registry: fill routing into the
// per-level ledger, execution deduplication, per-market watermarks, the
// holdings baseline and gap reconciliation against venue execution history.
package manager

import (
	"fmt"
	"sync"
	"time"

	"pairarb/kernel"
	"pairarb/logger"
	"pairarb/market"
	"pairarb/trader"
)

// How far behind the earliest watermark a reconciliation pass reaches
const reconcileLookback = 5 * time.Minute

// FillEvent is a live or replayed fill delivered to the registry
type FillEvent struct {
	Symbol      string
	Quantity    float64 // signed
	Price       float64
	Time        time.Time
	Tag         string
	ExecutionID string // optional; empty disables deduplication for this event
}

// PairObserver is notified when pairs enter or leave the registry
type PairObserver interface {
	OnPairAdded(pair *kernel.TradingPair)
	OnPairRemoved(pair *kernel.TradingPair)
}

// executionSnapshot is the dedup bookkeeping kept per seen executionId
type executionSnapshot struct {
	Time   time.Time
	Market string
}

// TradingPairManager is the pair registry and reconciler. Public entry
// points are safe for concurrent use. Idempotence of fill application plus
// monotonic watermarks make at-least-once delivery safe.
type TradingPairManager struct {
	securities market.SecurityProvider
	history    trader.ExecutionHistoryProvider // optional, reconciliation degrades without it

	mu sync.RWMutex

	pairs         map[string]*kernel.TradingPair
	watermarks    map[string]time.Time         // market (symbol) -> latest incorporated fill time
	processed     map[string]executionSnapshot // executionId -> snapshot
	baseline      map[string]float64           // symbol -> reported minus tracked, non-zero only
	baselineReady bool

	observers []PairObserver

	now func() time.Time
}

// New creates an empty registry validating legs against the given security
// universe
func New(securities market.SecurityProvider) *TradingPairManager {
	return &TradingPairManager{
		securities: securities,
		pairs:      make(map[string]*kernel.TradingPair),
		watermarks: make(map[string]time.Time),
		processed:  make(map[string]executionSnapshot),
		now:        time.Now,
	}
}

// SetExecutionHistory wires the venue execution-history collaborator.
// Without one, Reconcile is a no-op.
func (m *TradingPairManager) SetExecutionHistory(p trader.ExecutionHistoryProvider) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history = p
}

// Subscribe registers an observer for pair added/removed events
func (m *TradingPairManager) Subscribe(obs PairObserver) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
}

// GetPair returns the pair registered under (leg1, leg2), if any
func (m *TradingPairManager) GetPair(leg1, leg2 string) (*kernel.TradingPair, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.pairs[kernel.PairKey(leg1, leg2)]
	return p, ok
}

// Pairs returns all registered pairs
func (m *TradingPairManager) Pairs() []*kernel.TradingPair {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*kernel.TradingPair, 0, len(m.pairs))
	for _, p := range m.pairs {
		out = append(out, p)
	}
	return out
}

// ApplyQuote routes a best bid/ask update to every pair trading the symbol
func (m *TradingPairManager) ApplyQuote(symbol string, bid, ask float64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, pair := range m.pairs {
		switch symbol {
		case pair.Leg1Symbol:
			pair.SetLeg1Quote(bid, ask)
		case pair.Leg2Symbol:
			pair.SetLeg2Quote(bid, ask)
		}
	}
}

// AddPair registers a new trading pair. Both legs must exist in the security
// universe, otherwise a configuration error is returned. Re-adding a pair
// that is pending removal clears the flag and returns the same instance with
// its positions preserved.
func (m *TradingPairManager) AddPair(leg1, leg2, pairType string) (*kernel.TradingPair, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.securities.GetSecurity(leg1); !ok {
		return nil, fmt.Errorf("unknown security %s: cannot add pair %s", leg1, kernel.PairKey(leg1, leg2))
	}
	if _, ok := m.securities.GetSecurity(leg2); !ok {
		return nil, fmt.Errorf("unknown security %s: cannot add pair %s", leg2, kernel.PairKey(leg1, leg2))
	}

	key := kernel.PairKey(leg1, leg2)
	if existing, ok := m.pairs[key]; ok {
		if existing.IsPendingRemoval {
			existing.IsPendingRemoval = false
			logger.Infof("♻️  Pair %s resurrected from pending removal, positions preserved", key)
		}
		return existing, nil
	}

	pair := kernel.NewTradingPair(leg1, leg2, pairType)
	m.pairs[key] = pair
	logger.Infof("➕ Pair added: %s (type: %s)", key, pairType)
	m.notifyAdded(pair)
	return pair, nil
}

// RemovePair removes a pair from the registry. A pair with open quantity is
// soft-deleted: it keeps accepting fills and is removed once flat. Returns
// false if the pair does not exist.
func (m *TradingPairManager) RemovePair(leg1, leg2 string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := kernel.PairKey(leg1, leg2)
	pair, ok := m.pairs[key]
	if !ok {
		return false
	}

	if pair.HasOpenPosition() {
		pair.IsPendingRemoval = true
		logger.Infof("⏳ Pair %s has open positions, flagged for removal", key)
		return true
	}

	m.deletePair(pair)
	return true
}

func (m *TradingPairManager) deletePair(pair *kernel.TradingPair) {
	delete(m.pairs, pair.Key())
	logger.Infof("➖ Pair removed: %s", pair.Key())
	m.notifyRemoved(pair)
}

// ProcessFillEvent routes a fill to the grid position its tag identifies.
// Malformed tags, unknown pairs and duplicate executionIds are absorbed
// silently; the event is applied at most once. The market's watermark only
// ever advances. Returns true when the fill mutated the ledger.
func (m *TradingPairManager) ProcessFillEvent(ev FillEvent) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.processFill(ev)
}

func (m *TradingPairManager) processFill(ev FillEvent) bool {
	leg1, leg2, _, ok := kernel.DecodeGridTag(ev.Tag)
	if !ok {
		return false
	}

	pair, ok := m.pairs[kernel.PairKey(leg1, leg2)]
	if !ok {
		logger.Debugf("fill for unregistered pair %s ignored", kernel.PairKey(leg1, leg2))
		return false
	}

	if ev.ExecutionID != "" {
		if _, seen := m.processed[ev.ExecutionID]; seen {
			return false
		}
	}

	leg := kernel.Leg1
	switch ev.Symbol {
	case pair.Leg1Symbol:
		leg = kernel.Leg1
	case pair.Leg2Symbol:
		leg = kernel.Leg2
	default:
		logger.Debugf("fill symbol %s does not match pair %s", ev.Symbol, pair.Key())
		return false
	}

	pos := pair.GetOrCreatePositionByTag(ev.Tag)
	pos.ApplyFill(leg, ev.Quantity, ev.Price)

	if ev.ExecutionID != "" {
		m.processed[ev.ExecutionID] = executionSnapshot{Time: ev.Time, Market: ev.Symbol}
	}

	// Watermarks move forward only, out-of-order delivery cannot rewind them
	if wm, ok := m.watermarks[ev.Symbol]; !ok || ev.Time.After(wm) {
		m.watermarks[ev.Symbol] = ev.Time
	}

	if pair.IsPendingRemoval && !pair.HasOpenPosition() {
		m.deletePair(pair)
	}

	return true
}

// AggregateGridPositions sums every grid position of every pair into a
// per-symbol net quantity. Symbols whose net is exactly zero are included.
func (m *TradingPairManager) AggregateGridPositions() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.aggregate()
}

func (m *TradingPairManager) aggregate() map[string]float64 {
	agg := make(map[string]float64)
	for _, pair := range m.pairs {
		// Registered symbols appear even when their net is exactly zero
		if _, ok := agg[pair.Leg1Symbol]; !ok {
			agg[pair.Leg1Symbol] = 0
		}
		if _, ok := agg[pair.Leg2Symbol]; !ok {
			agg[pair.Leg2Symbol] = 0
		}
		for _, pos := range pair.Positions {
			agg[pair.Leg1Symbol] += pos.Leg1Quantity
			agg[pair.Leg2Symbol] += pos.Leg2Quantity
		}
	}
	return agg
}

// computeBaseline is reported holdings minus ledger aggregate, non-zero
// entries only
func (m *TradingPairManager) computeBaseline(holdings map[string]float64) map[string]float64 {
	agg := m.aggregate()

	diff := make(map[string]float64)
	for symbol, qty := range holdings {
		if d := qty - agg[symbol]; d != 0 {
			diff[symbol] = d
		}
	}
	for symbol, qty := range agg {
		if _, ok := holdings[symbol]; !ok && qty != 0 {
			diff[symbol] = -qty
		}
	}
	return diff
}

// InitializeBaseline records the starting discrepancy between venue holdings
// and the tracked ledger. Only the first call takes effect, so a reconnect
// cannot clobber state accumulated from live fills since startup.
func (m *TradingPairManager) InitializeBaseline(holdings map[string]float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.baselineReady {
		return
	}
	m.baseline = m.computeBaseline(holdings)
	m.baselineReady = true
	logger.Infof("📐 Baseline initialized with %d non-zero entries", len(m.baseline))
}

// CompareBaseline recomputes the holdings/ledger diff and compares it against
// the stored baseline. Any changed, appeared or disappeared symbol is a
// discrepancy; discrepancies trigger a reconciliation pass, after which the
// stored baseline is replaced with the fresh diff. Returns the discrepant
// symbols.
func (m *TradingPairManager) CompareBaseline(holdings map[string]float64) []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	fresh := m.computeBaseline(holdings)
	if !m.baselineReady {
		m.baseline = fresh
		m.baselineReady = true
		return nil
	}

	var discrepancies []string
	for symbol, d := range fresh {
		if prev, ok := m.baseline[symbol]; !ok || prev != d {
			discrepancies = append(discrepancies, symbol)
		}
	}
	for symbol := range m.baseline {
		if _, ok := fresh[symbol]; !ok {
			discrepancies = append(discrepancies, symbol)
		}
	}

	if len(discrepancies) > 0 {
		for _, symbol := range discrepancies {
			logger.Warnf("⚠️  Baseline discrepancy on %s: stored %.8f, current %.8f",
				symbol, m.baseline[symbol], fresh[symbol])
		}
		m.reconcile()
		m.baseline = fresh
	}

	return discrepancies
}

// Reconcile replays venue executions for the gap window (earliest watermark
// minus the lookback, up to now) through the regular fill path. Duplicate
// executionIds make the replay idempotent. Safe to call with no history
// provider (no-op) and with an empty result set.
func (m *TradingPairManager) Reconcile() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reconcile()
}

func (m *TradingPairManager) reconcile() {
	if m.history == nil {
		return
	}

	end := m.now()
	start := end.Add(-reconcileLookback)
	for _, wm := range m.watermarks {
		if candidate := wm.Add(-reconcileLookback); candidate.Before(start) {
			start = candidate
		}
	}

	executions, err := m.history.GetExecutionHistory(start, end)
	if err != nil {
		logger.Warnf("⚠️  Execution history unavailable, skipping reconciliation: %v", err)
		return
	}
	if len(executions) == 0 {
		return
	}

	replayed := 0
	for _, ex := range executions {
		if m.processFill(FillEvent{
			Symbol:      ex.Symbol,
			Quantity:    ex.Quantity,
			Price:       ex.Price,
			Time:        ex.Time,
			Tag:         ex.Tag,
			ExecutionID: ex.ExecutionID,
		}) {
			replayed++
		}
	}
	if replayed > 0 {
		logger.Infof("🔄 Reconciliation replayed %d of %d executions", replayed, len(executions))
	}

	m.pruneProcessed()
}

// pruneProcessed drops dedup snapshots too old to re-enter any future
// replay window. Entries within the lookback of their market's watermark
// must be retained, or the next reconcile would re-apply the same
// executions.
func (m *TradingPairManager) pruneProcessed() {
	for id, snap := range m.processed {
		if wm, ok := m.watermarks[snap.Market]; ok && snap.Time.Before(wm.Add(-reconcileLookback)) {
			delete(m.processed, id)
		}
	}
}

// Watermark returns the incorporated-fill watermark for a market
func (m *TradingPairManager) Watermark(market string) (time.Time, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	wm, ok := m.watermarks[market]
	return wm, ok
}

// Baseline returns the stored baseline diff
func (m *TradingPairManager) Baseline() map[string]float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]float64, len(m.baseline))
	for k, v := range m.baseline {
		out[k] = v
	}
	return out
}

func (m *TradingPairManager) notifyAdded(pair *kernel.TradingPair) {
	for _, obs := range m.observers {
		obs.OnPairAdded(pair)
	}
}

func (m *TradingPairManager) notifyRemoved(pair *kernel.TradingPair) {
	for _, obs := range m.observers {
		obs.OnPairRemoved(pair)
	}
}
