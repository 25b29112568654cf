package trader

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReconciler struct {
	mu            sync.Mutex
	initCalls     []map[string]float64
	compareCalls  int
	reconcileRuns int
	discrepancies []string
}

func (f *fakeReconciler) InitializeBaseline(holdings map[string]float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls = append(f.initCalls, holdings)
}

func (f *fakeReconciler) CompareBaseline(holdings map[string]float64) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.compareCalls++
	return f.discrepancies
}

func (f *fakeReconciler) Reconcile() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reconcileRuns++
}

func (f *fakeReconciler) snapshot() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.initCalls), f.compareCalls, f.reconcileRuns
}

type fakeHoldings struct {
	mu       sync.Mutex
	holdings map[string]float64
	err      error
	calls    int
}

func (f *fakeHoldings) GetHoldings() (map[string]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.holdings, f.err
}

func TestReconcileManagerRunsImmediately(t *testing.T) {
	registry := &fakeReconciler{}
	holdings := &fakeHoldings{holdings: map[string]float64{"BTCUSDT": 1}}

	m := NewReconcileManager(registry, holdings, time.Hour)
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		inits, compares, _ := registry.snapshot()
		return inits == 1 && compares == 1
	}, time.Second, 10*time.Millisecond)

	// clean compare falls through to a plain replay
	_, _, runs := registry.snapshot()
	assert.Equal(t, 1, runs)
}

func TestReconcileManagerSkipsReplayOnDiscrepancy(t *testing.T) {
	registry := &fakeReconciler{discrepancies: []string{"BTCUSDT"}}
	holdings := &fakeHoldings{holdings: map[string]float64{"BTCUSDT": 2}}

	m := NewReconcileManager(registry, holdings, time.Hour)
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		_, compares, _ := registry.snapshot()
		return compares == 1
	}, time.Second, 10*time.Millisecond)

	// the compare itself replayed, the loop must not do it again
	_, _, runs := registry.snapshot()
	assert.Equal(t, 0, runs)
}

func TestReconcileManagerHoldingsErrorSkipsCycle(t *testing.T) {
	registry := &fakeReconciler{}
	holdings := &fakeHoldings{err: assert.AnError}

	m := NewReconcileManager(registry, holdings, time.Hour)
	m.Start()
	defer m.Stop()

	require.Eventually(t, func() bool {
		holdings.mu.Lock()
		defer holdings.mu.Unlock()
		return holdings.calls >= 1
	}, time.Second, 10*time.Millisecond)

	inits, compares, runs := registry.snapshot()
	assert.Zero(t, inits)
	assert.Zero(t, compares)
	assert.Zero(t, runs)
}

func TestReconcileManagerTicks(t *testing.T) {
	registry := &fakeReconciler{}
	holdings := &fakeHoldings{holdings: map[string]float64{}}

	m := NewReconcileManager(registry, holdings, 20*time.Millisecond)
	m.Start()

	require.Eventually(t, func() bool {
		_, compares, _ := registry.snapshot()
		return compares >= 3
	}, 2*time.Second, 10*time.Millisecond)

	m.Stop()
	_, after, _ := registry.snapshot()

	// no cycles after Stop returns
	time.Sleep(60 * time.Millisecond)
	_, final, _ := registry.snapshot()
	assert.Equal(t, after, final)
}
