package store

import (
	"database/sql"
	"fmt"
	"time"
)

// PositionRecord is one persisted grid position
type PositionRecord struct {
	Tag          string  `json:"tag"`
	Leg1Quantity float64 `json:"leg1_quantity"`
	Leg2Quantity float64 `json:"leg2_quantity"`
	Leg1AvgCost  float64 `json:"leg1_avg_cost"`
	Leg2AvgCost  float64 `json:"leg2_avg_cost"`
}

// PairRecord is one persisted trading pair with its positions
type PairRecord struct {
	PairKey        string           `json:"pair_key"`
	Leg1           string           `json:"leg1"`
	Leg2           string           `json:"leg2"`
	PairType       string           `json:"pair_type"`
	PendingRemoval bool             `json:"pending_removal"`
	Positions      []PositionRecord `json:"positions"`
}

// StateSnapshot is the full persisted registry state: pair set, ledger,
// per-market watermarks and the reconciliation baseline. Restoring it before
// live fills arrive preserves the no-double-count guarantee across restarts.
type StateSnapshot struct {
	Pairs         []PairRecord         `json:"pairs"`
	Watermarks    map[string]time.Time `json:"watermarks"`
	Baseline      map[string]float64   `json:"baseline"`
	BaselineReady bool                 `json:"baseline_ready"`
}

// PairStateStore persists the trading-pair registry state
type PairStateStore struct {
	db *sql.DB
}

// initTables initializes pair state tables
func (s *PairStateStore) initTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS trading_pairs (
			pair_key TEXT PRIMARY KEY,
			leg1 TEXT NOT NULL,
			leg2 TEXT NOT NULL,
			pair_type TEXT NOT NULL DEFAULT '',
			pending_removal INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS grid_positions (
			tag TEXT PRIMARY KEY,
			pair_key TEXT NOT NULL,
			leg1_qty REAL NOT NULL DEFAULT 0,
			leg2_qty REAL NOT NULL DEFAULT 0,
			leg1_avg REAL NOT NULL DEFAULT 0,
			leg2_avg REAL NOT NULL DEFAULT 0
		)`,
		`CREATE INDEX IF NOT EXISTS idx_grid_positions_pair ON grid_positions(pair_key)`,
		`CREATE TABLE IF NOT EXISTS market_watermarks (
			market TEXT PRIMARY KEY,
			watermark DATETIME NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS baseline (
			symbol TEXT PRIMARY KEY,
			quantity REAL NOT NULL
		)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// SaveState replaces the persisted snapshot atomically
func (s *PairStateStore) SaveState(snapshot *StateSnapshot) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"trading_pairs", "grid_positions", "market_watermarks", "baseline"} {
		if _, err := tx.Exec("DELETE FROM " + table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	for _, pair := range snapshot.Pairs {
		if _, err := tx.Exec(
			`INSERT INTO trading_pairs (pair_key, leg1, leg2, pair_type, pending_removal)
			 VALUES (?, ?, ?, ?, ?)`,
			pair.PairKey, pair.Leg1, pair.Leg2, pair.PairType, boolToInt(pair.PendingRemoval),
		); err != nil {
			return fmt.Errorf("failed to insert pair %s: %w", pair.PairKey, err)
		}

		for _, pos := range pair.Positions {
			if _, err := tx.Exec(
				`INSERT INTO grid_positions (tag, pair_key, leg1_qty, leg2_qty, leg1_avg, leg2_avg)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				pos.Tag, pair.PairKey, pos.Leg1Quantity, pos.Leg2Quantity, pos.Leg1AvgCost, pos.Leg2AvgCost,
			); err != nil {
				return fmt.Errorf("failed to insert position %s: %w", pos.Tag, err)
			}
		}
	}

	for market, wm := range snapshot.Watermarks {
		if _, err := tx.Exec(
			`INSERT INTO market_watermarks (market, watermark) VALUES (?, ?)`,
			market, wm.UTC().Format(time.RFC3339Nano),
		); err != nil {
			return fmt.Errorf("failed to insert watermark for %s: %w", market, err)
		}
	}

	for symbol, qty := range snapshot.Baseline {
		if _, err := tx.Exec(
			`INSERT INTO baseline (symbol, quantity) VALUES (?, ?)`,
			symbol, qty,
		); err != nil {
			return fmt.Errorf("failed to insert baseline for %s: %w", symbol, err)
		}
	}

	ready := "0"
	if snapshot.BaselineReady {
		ready = "1"
	}
	if _, err := tx.Exec(`
		INSERT INTO system_config (key, value) VALUES ('baseline_ready', ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, ready); err != nil {
		return fmt.Errorf("failed to store baseline flag: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// LoadState reads the persisted snapshot. An empty database yields an empty
// snapshot, not an error.
func (s *PairStateStore) LoadState() (*StateSnapshot, error) {
	snapshot := &StateSnapshot{
		Watermarks: make(map[string]time.Time),
		Baseline:   make(map[string]float64),
	}

	rows, err := s.db.Query(`SELECT pair_key, leg1, leg2, pair_type, pending_removal FROM trading_pairs`)
	if err != nil {
		return nil, fmt.Errorf("failed to query pairs: %w", err)
	}
	defer rows.Close()

	byKey := make(map[string]*PairRecord)
	var order []string
	for rows.Next() {
		var rec PairRecord
		var pending int
		if err := rows.Scan(&rec.PairKey, &rec.Leg1, &rec.Leg2, &rec.PairType, &pending); err != nil {
			return nil, fmt.Errorf("failed to scan pair: %w", err)
		}
		rec.PendingRemoval = pending != 0
		byKey[rec.PairKey] = &rec
		order = append(order, rec.PairKey)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	posRows, err := s.db.Query(`SELECT tag, pair_key, leg1_qty, leg2_qty, leg1_avg, leg2_avg FROM grid_positions`)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer posRows.Close()

	for posRows.Next() {
		var pos PositionRecord
		var pairKey string
		if err := posRows.Scan(&pos.Tag, &pairKey, &pos.Leg1Quantity, &pos.Leg2Quantity, &pos.Leg1AvgCost, &pos.Leg2AvgCost); err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		if pair, ok := byKey[pairKey]; ok {
			pair.Positions = append(pair.Positions, pos)
		}
	}
	if err := posRows.Err(); err != nil {
		return nil, err
	}

	for _, key := range order {
		snapshot.Pairs = append(snapshot.Pairs, *byKey[key])
	}

	wmRows, err := s.db.Query(`SELECT market, watermark FROM market_watermarks`)
	if err != nil {
		return nil, fmt.Errorf("failed to query watermarks: %w", err)
	}
	defer wmRows.Close()

	for wmRows.Next() {
		var market, raw string
		if err := wmRows.Scan(&market, &raw); err != nil {
			return nil, fmt.Errorf("failed to scan watermark: %w", err)
		}
		wm, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("failed to parse watermark for %s: %w", market, err)
		}
		snapshot.Watermarks[market] = wm
	}
	if err := wmRows.Err(); err != nil {
		return nil, err
	}

	blRows, err := s.db.Query(`SELECT symbol, quantity FROM baseline`)
	if err != nil {
		return nil, fmt.Errorf("failed to query baseline: %w", err)
	}
	defer blRows.Close()

	for blRows.Next() {
		var symbol string
		var qty float64
		if err := blRows.Scan(&symbol, &qty); err != nil {
			return nil, fmt.Errorf("failed to scan baseline: %w", err)
		}
		snapshot.Baseline[symbol] = qty
	}
	if err := blRows.Err(); err != nil {
		return nil, err
	}

	var ready string
	err = s.db.QueryRow(`SELECT value FROM system_config WHERE key = 'baseline_ready'`).Scan(&ready)
	if err != nil && err != sql.ErrNoRows {
		return nil, err
	}
	snapshot.BaselineReady = ready == "1"

	return snapshot, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
