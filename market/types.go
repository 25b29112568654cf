// Package market provides the market-data model consumed by the core
// (quotes, order-book ladders, security metadata) plus the Binance futures
// adapters that feed it.
package market

// Quote is the best bid/ask of one symbol
type Quote struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid"`
	Ask    float64 `json:"ask"`
}

// BookLevel holds one price/size rung of an order-book ladder
type BookLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderBook is a depth snapshot for one symbol.
// Bids are ordered best (highest) first, asks best (lowest) first.
type OrderBook struct {
	Symbol string      `json:"symbol"`
	Bids   []BookLevel `json:"bids"`
	Asks   []BookLevel `json:"asks"`
}

// HasDepth reports whether both sides of the ladder are populated
func (b *OrderBook) HasDepth() bool {
	return b != nil && len(b.Bids) > 0 && len(b.Asks) > 0
}

// Security is the venue metadata of one tradable symbol
type Security struct {
	Symbol  string  `json:"symbol"`
	LotSize float64 `json:"lot_size"`
	Bid     float64 `json:"bid"`
	Ask     float64 `json:"ask"`
}

// SecurityProvider resolves a symbol to lot size and current best prices.
// Returns ok=false for symbols outside the tradable universe.
type SecurityProvider interface {
	GetSecurity(symbol string) (*Security, bool)
}

// BookProvider exposes per-symbol depth ladders. A nil/empty book is a valid
// answer meaning no depth is available for that symbol.
type BookProvider interface {
	GetOrderBook(symbol string) *OrderBook
}
