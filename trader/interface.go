// Package trader holds the external-venue collaborators of the core: the
// execution-history and holdings providers, the Binance futures adapter that
// implements them, and the periodic reconciliation loop.
package trader

import "time"

// Execution is a single past trade execution reported by the venue
type Execution struct {
	Symbol      string    `json:"symbol"`
	Quantity    float64   `json:"quantity"` // signed: positive = buy, negative = sell
	Price       float64   `json:"price"`
	Time        time.Time `json:"time"`
	ExecutionID string    `json:"execution_id"`
	Tag         string    `json:"tag"` // grid tag attached to the originating order
	Fee         float64   `json:"fee"`
}

// ExecutionHistoryProvider returns past executions inside a time window,
// ordered by execution time. May legitimately return an empty list.
type ExecutionHistoryProvider interface {
	GetExecutionHistory(startUtc, endUtc time.Time) ([]Execution, error)
}

// HoldingsProvider reports the venue's current net quantity per symbol
type HoldingsProvider interface {
	GetHoldings() (map[string]float64, error)
}
