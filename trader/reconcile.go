package trader

import (
	"sync"
	"time"

	"pairarb/logger"
)

// Reconciler is the slice of the pair registry the periodic loop drives
type Reconciler interface {
	InitializeBaseline(holdings map[string]float64)
	CompareBaseline(holdings map[string]float64) []string
	Reconcile()
}

// ReconcileManager periodically pulls account holdings and checks them
// against the registry's baseline, triggering execution replay when the
// account drifted away from what the grids account for.
type ReconcileManager struct {
	registry Reconciler
	holdings HoldingsProvider
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

func NewReconcileManager(registry Reconciler, holdings HoldingsProvider, interval time.Duration) *ReconcileManager {
	if interval == 0 {
		interval = 30 * time.Second
	}
	return &ReconcileManager{
		registry: registry,
		holdings: holdings,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the reconciliation loop
func (m *ReconcileManager) Start() {
	m.wg.Add(1)
	go m.run()
	logger.Info("🔄 Reconcile manager started")
}

// Stop stops the loop and waits for the current cycle to finish
func (m *ReconcileManager) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	logger.Info("🔄 Reconcile manager stopped")
}

func (m *ReconcileManager) run() {
	defer m.wg.Done()

	// First cycle immediately so the baseline exists before trading starts
	m.cycle()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.cycle()
		}
	}
}

func (m *ReconcileManager) cycle() {
	holdings, err := m.holdings.GetHoldings()
	if err != nil {
		logger.Warnf("⚠️  Failed to get holdings: %v", err)
		return
	}

	m.registry.InitializeBaseline(holdings)

	// A discrepancy compare replays executions on its own; clean cycles
	// still replay the recent window to catch fills the stream missed.
	if discrepancies := m.registry.CompareBaseline(holdings); len(discrepancies) > 0 {
		logger.Infof("🔄 Baseline discrepancies resolved: %v", discrepancies)
	} else {
		m.registry.Reconcile()
	}
}
