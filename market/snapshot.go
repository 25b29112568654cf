package market

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"pairarb/logger"
)

const defaultDepthLimit = 20

// BinanceMarketData serves security metadata, live quotes and order-book
// snapshots from Binance futures. Quotes are cached and refreshed by the
// websocket monitor; depth is fetched on demand.
type BinanceMarketData struct {
	client     *futures.Client
	mu         sync.RWMutex
	securities map[string]*Security
	depthLimit int
	timeout    time.Duration
}

func NewBinanceMarketData(baseURL string) *BinanceMarketData {
	client := futures.NewClient("", "")
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceMarketData{
		client:     client,
		securities: make(map[string]*Security),
		depthLimit: defaultDepthLimit,
		timeout:    10 * time.Second,
	}
}

// LoadUniverse registers the given symbols, pulling lot sizes from exchange
// info and seeding quotes from the book ticker endpoint.
func (d *BinanceMarketData) LoadUniverse(ctx context.Context, symbols []string) error {
	wanted := make(map[string]bool, len(symbols))
	for _, s := range symbols {
		wanted[s] = true
	}

	info, err := d.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get exchange info: %w", err)
	}

	d.mu.Lock()
	for _, sym := range info.Symbols {
		if !wanted[sym.Symbol] {
			continue
		}
		lot := 0.0
		if f := sym.LotSizeFilter(); f != nil {
			lot, _ = strconv.ParseFloat(f.StepSize, 64)
		}
		d.securities[sym.Symbol] = &Security{Symbol: sym.Symbol, LotSize: lot}
	}
	d.mu.Unlock()

	for _, s := range symbols {
		if _, ok := d.GetSecurity(s); !ok {
			return fmt.Errorf("symbol %s not found in exchange info", s)
		}
	}

	if err := d.RefreshQuotes(ctx); err != nil {
		return err
	}

	logger.Infof("✅ Market universe loaded: %d symbols", len(symbols))
	return nil
}

// RefreshQuotes pulls best bid/ask for every registered symbol
func (d *BinanceMarketData) RefreshQuotes(ctx context.Context) error {
	tickers, err := d.client.NewListBookTickersService().Do(ctx)
	if err != nil {
		return fmt.Errorf("failed to get book tickers: %w", err)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, t := range tickers {
		sec, ok := d.securities[t.Symbol]
		if !ok {
			continue
		}
		bid, _ := strconv.ParseFloat(t.BidPrice, 64)
		ask, _ := strconv.ParseFloat(t.AskPrice, 64)
		sec.Bid = bid
		sec.Ask = ask
	}
	return nil
}

// UpdateQuote replaces the cached best bid/ask for a symbol. Called by the
// websocket monitor on every book ticker event.
func (d *BinanceMarketData) UpdateQuote(symbol string, bid, ask float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sec, ok := d.securities[symbol]
	if !ok {
		return
	}
	sec.Bid = bid
	sec.Ask = ask
}

// GetSecurity returns a copy of the registered security
func (d *BinanceMarketData) GetSecurity(symbol string) (*Security, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	sec, ok := d.securities[symbol]
	if !ok {
		return nil, false
	}
	cp := *sec
	return &cp, true
}

// Symbols returns all registered symbols
func (d *BinanceMarketData) Symbols() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.securities))
	for s := range d.securities {
		out = append(out, s)
	}
	return out
}

// GetOrderBook fetches a fresh depth snapshot. Returns a book without depth
// when the request fails so matching can fall back to best prices.
func (d *BinanceMarketData) GetOrderBook(symbol string) *OrderBook {
	ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
	defer cancel()

	resp, err := d.client.NewDepthService().Symbol(symbol).Limit(d.depthLimit).Do(ctx)
	if err != nil {
		logger.Warnf("Failed to get %s depth: %v", symbol, err)
		return &OrderBook{Symbol: symbol}
	}

	book := &OrderBook{
		Symbol: symbol,
		Bids:   make([]BookLevel, 0, len(resp.Bids)),
		Asks:   make([]BookLevel, 0, len(resp.Asks)),
	}
	for _, b := range resp.Bids {
		price, _ := strconv.ParseFloat(b.Price, 64)
		size, _ := strconv.ParseFloat(b.Quantity, 64)
		if price > 0 && size > 0 {
			book.Bids = append(book.Bids, BookLevel{Price: price, Size: size})
		}
	}
	for _, a := range resp.Asks {
		price, _ := strconv.ParseFloat(a.Price, 64)
		size, _ := strconv.ParseFloat(a.Quantity, 64)
		if price > 0 && size > 0 {
			book.Asks = append(book.Asks, BookLevel{Price: price, Size: size})
		}
	}
	return book
}
