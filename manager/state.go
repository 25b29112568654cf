package manager

import (
	"sort"
	"time"

	"pairarb/kernel"
	"pairarb/store"
)

// ExportState captures the registry for persistence: pair set, per-tag
// ledger, watermarks and baseline
func (m *TradingPairManager) ExportState() *store.StateSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	snapshot := &store.StateSnapshot{
		Watermarks:    make(map[string]time.Time, len(m.watermarks)),
		Baseline:      make(map[string]float64, len(m.baseline)),
		BaselineReady: m.baselineReady,
	}
	for symbol, qty := range m.baseline {
		snapshot.Baseline[symbol] = qty
	}
	for market, wm := range m.watermarks {
		snapshot.Watermarks[market] = wm
	}

	keys := make([]string, 0, len(m.pairs))
	for key := range m.pairs {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	for _, key := range keys {
		pair := m.pairs[key]
		rec := store.PairRecord{
			PairKey:        key,
			Leg1:           pair.Leg1Symbol,
			Leg2:           pair.Leg2Symbol,
			PairType:       pair.PairType,
			PendingRemoval: pair.IsPendingRemoval,
		}

		tags := make([]string, 0, len(pair.Positions))
		for tag := range pair.Positions {
			tags = append(tags, tag)
		}
		sort.Strings(tags)

		for _, tag := range tags {
			pos := pair.Positions[tag]
			rec.Positions = append(rec.Positions, store.PositionRecord{
				Tag:          tag,
				Leg1Quantity: pos.Leg1Quantity,
				Leg2Quantity: pos.Leg2Quantity,
				Leg1AvgCost:  pos.Leg1AverageCost,
				Leg2AvgCost:  pos.Leg2AverageCost,
			})
		}
		snapshot.Pairs = append(snapshot.Pairs, rec)
	}

	return snapshot
}

// ImportState restores a persisted snapshot into an empty registry. Called
// on startup before any live fills arrive so that baseline initialization
// and dedup behave as if the process had never stopped.
func (m *TradingPairManager) ImportState(snapshot *store.StateSnapshot) {
	if snapshot == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range snapshot.Pairs {
		pair := kernel.NewTradingPair(rec.Leg1, rec.Leg2, rec.PairType)
		pair.IsPendingRemoval = rec.PendingRemoval
		for _, pos := range rec.Positions {
			pair.Positions[pos.Tag] = &kernel.GridPosition{
				Tag:             pos.Tag,
				Leg1Quantity:    pos.Leg1Quantity,
				Leg2Quantity:    pos.Leg2Quantity,
				Leg1AverageCost: pos.Leg1AvgCost,
				Leg2AverageCost: pos.Leg2AvgCost,
			}
		}
		m.pairs[pair.Key()] = pair
	}

	for market, wm := range snapshot.Watermarks {
		m.watermarks[market] = wm
	}

	if len(snapshot.Baseline) > 0 || snapshot.BaselineReady {
		m.baseline = make(map[string]float64, len(snapshot.Baseline))
		for symbol, qty := range snapshot.Baseline {
			m.baseline[symbol] = qty
		}
		m.baselineReady = snapshot.BaselineReady
	}
}
