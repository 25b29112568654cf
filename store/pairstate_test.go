package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "pairarb.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPairStateRoundTrip(t *testing.T) {
	s := newTestStore(t)

	snapshot := &StateSnapshot{
		Pairs: []PairRecord{
			{
				PairKey:        "IVV/SPY",
				Leg1:           "IVV",
				Leg2:           "SPY",
				PairType:       "etf",
				PendingRemoval: false,
				Positions: []PositionRecord{
					{Tag: "PAIR|IVV|SPY|0.0100|0.0020|SHORT_SPREAD|0.2500", Leg1Quantity: -5, Leg2Quantity: 5, Leg1AvgCost: 100, Leg2AvgCost: 99},
					{Tag: "PAIR|IVV|SPY|0.0200|0.0050|SHORT_SPREAD|0.2500", Leg1Quantity: 0, Leg2Quantity: 0},
				},
			},
			{
				PairKey:        "GLD/IAU",
				Leg1:           "GLD",
				Leg2:           "IAU",
				PairType:       "etf",
				PendingRemoval: true,
			},
		},
		Watermarks: map[string]time.Time{
			"IVV": time.Date(2026, 8, 30, 11, 59, 30, 123456789, time.UTC),
			"SPY": time.Date(2026, 8, 30, 11, 58, 0, 0, time.UTC),
		},
		Baseline:      map[string]float64{"IVV": 3, "GLD": -1.5},
		BaselineReady: true,
	}

	require.NoError(t, s.PairState().SaveState(snapshot))

	loaded, err := s.PairState().LoadState()
	require.NoError(t, err)

	require.Len(t, loaded.Pairs, 2)
	byKey := map[string]PairRecord{}
	for _, p := range loaded.Pairs {
		byKey[p.PairKey] = p
	}

	ivv := byKey["IVV/SPY"]
	assert.Equal(t, "IVV", ivv.Leg1)
	assert.Equal(t, "SPY", ivv.Leg2)
	assert.False(t, ivv.PendingRemoval)
	require.Len(t, ivv.Positions, 2)

	gld := byKey["GLD/IAU"]
	assert.True(t, gld.PendingRemoval)
	assert.Empty(t, gld.Positions)

	assert.True(t, loaded.Watermarks["IVV"].Equal(snapshot.Watermarks["IVV"]))
	assert.True(t, loaded.Watermarks["SPY"].Equal(snapshot.Watermarks["SPY"]))
	assert.Equal(t, snapshot.Baseline, loaded.Baseline)
	assert.True(t, loaded.BaselineReady)
}

func TestSaveStateReplacesPrevious(t *testing.T) {
	s := newTestStore(t)

	first := &StateSnapshot{
		Pairs:      []PairRecord{{PairKey: "IVV/SPY", Leg1: "IVV", Leg2: "SPY", PairType: "etf"}},
		Watermarks: map[string]time.Time{"IVV": time.Now().UTC()},
		Baseline:   map[string]float64{"IVV": 1},
	}
	require.NoError(t, s.PairState().SaveState(first))

	second := &StateSnapshot{
		Pairs: []PairRecord{{PairKey: "GLD/IAU", Leg1: "GLD", Leg2: "IAU", PairType: "etf"}},
	}
	require.NoError(t, s.PairState().SaveState(second))

	loaded, err := s.PairState().LoadState()
	require.NoError(t, err)
	require.Len(t, loaded.Pairs, 1)
	assert.Equal(t, "GLD/IAU", loaded.Pairs[0].PairKey)
	assert.Empty(t, loaded.Watermarks)
	assert.Empty(t, loaded.Baseline)
	assert.False(t, loaded.BaselineReady)
}

func TestLoadStateEmptyDatabase(t *testing.T) {
	s := newTestStore(t)

	loaded, err := s.PairState().LoadState()
	require.NoError(t, err)
	assert.Empty(t, loaded.Pairs)
	assert.Empty(t, loaded.Watermarks)
	assert.False(t, loaded.BaselineReady)
}

func TestSystemConfigRoundTrip(t *testing.T) {
	s := newTestStore(t)

	v, err := s.GetSystemConfig("missing")
	require.NoError(t, err)
	assert.Equal(t, "", v)

	require.NoError(t, s.SetSystemConfig("instance_id", "abc-123"))
	v, err = s.GetSystemConfig("instance_id")
	require.NoError(t, err)
	assert.Equal(t, "abc-123", v)

	require.NoError(t, s.SetSystemConfig("instance_id", "def-456"))
	v, err = s.GetSystemConfig("instance_id")
	require.NoError(t, err)
	assert.Equal(t, "def-456", v)
}
