package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pairarb/kernel"
	"pairarb/manager"
	"pairarb/market"
)

type stubSecurities map[string]*market.Security

func (s stubSecurities) GetSecurity(symbol string) (*market.Security, bool) {
	sec, ok := s[symbol]
	return sec, ok
}

func newTestServer(t *testing.T) (*Server, *manager.TradingPairManager) {
	t.Helper()
	securities := stubSecurities{
		"IVV": {Symbol: "IVV", LotSize: 1},
		"SPY": {Symbol: "SPY", LotSize: 1},
	}
	pm := manager.New(securities)
	return NewServer(pm, 0), pm
}

func doRequest(s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHandleHealth(t *testing.T) {
	s, _ := newTestServer(t)

	w := doRequest(s, http.MethodGet, "/api/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, resp["instance_id"])
}

func TestPairLifecycleEndpoints(t *testing.T) {
	s, _ := newTestServer(t)

	// add
	w := doRequest(s, http.MethodPost, "/api/pairs", map[string]string{
		"leg1": "IVV", "leg2": "SPY", "pair_type": "etf",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var added pairView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &added))
	assert.Equal(t, "IVV/SPY", added.PairKey)
	assert.Equal(t, "Unknown", added.MarketState)

	// unknown security rejected
	w = doRequest(s, http.MethodPost, "/api/pairs", map[string]string{
		"leg1": "IVV", "leg2": "QQQ",
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// missing fields rejected
	w = doRequest(s, http.MethodPost, "/api/pairs", map[string]string{"leg1": "IVV"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// list
	w = doRequest(s, http.MethodGet, "/api/pairs", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var list struct {
		Pairs []pairView `json:"pairs"`
		Count int        `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &list))
	assert.Equal(t, 1, list.Count)

	// remove
	w = doRequest(s, http.MethodDelete, "/api/pairs/IVV/SPY", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w = doRequest(s, http.MethodDelete, "/api/pairs/IVV/SPY", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandlePairPositions(t *testing.T) {
	s, pm := newTestServer(t)

	_, err := pm.AddPair("IVV", "SPY", "etf")
	require.NoError(t, err)

	lp := kernel.NewGridLevelPair(0.01, 0.002, kernel.DirectionShortSpread, 0.25)
	tag := kernel.EncodeGridTag("IVV", "SPY", lp)
	pm.ProcessFillEvent(manager.FillEvent{
		Symbol: "IVV", Quantity: -5, Price: 100, Time: time.Now(), Tag: tag, ExecutionID: "e1",
	})

	w := doRequest(s, http.MethodGet, "/api/pairs/IVV/SPY/positions", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		PairKey   string `json:"pair_key"`
		Positions []struct {
			Tag          string  `json:"tag"`
			Leg1Quantity float64 `json:"leg1_quantity"`
		} `json:"positions"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "IVV/SPY", resp.PairKey)
	require.Len(t, resp.Positions, 1)
	assert.Equal(t, tag, resp.Positions[0].Tag)
	assert.Equal(t, -5.0, resp.Positions[0].Leg1Quantity)

	w = doRequest(s, http.MethodGet, "/api/pairs/IVV/QQQ/positions", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHandleAggregateAndBaseline(t *testing.T) {
	s, pm := newTestServer(t)

	_, err := pm.AddPair("IVV", "SPY", "etf")
	require.NoError(t, err)
	pm.InitializeBaseline(map[string]float64{"IVV": 2})

	w := doRequest(s, http.MethodGet, "/api/aggregate", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var agg struct {
		Aggregate map[string]float64 `json:"aggregate"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &agg))
	assert.Contains(t, agg.Aggregate, "IVV")
	assert.Contains(t, agg.Aggregate, "SPY")

	w = doRequest(s, http.MethodGet, "/api/baseline", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var base struct {
		Baseline map[string]float64 `json:"baseline"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &base))
	assert.Equal(t, 2.0, base.Baseline["IVV"])
}
