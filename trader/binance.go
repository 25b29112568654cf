package trader

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"pairarb/logger"
)

// BinanceFutures reads executions and holdings from the Binance futures
// account. Trade records carry no tag of their own, so the order layer
// registers grid tags by order id and the adapter resolves them on read.
type BinanceFutures struct {
	client  *futures.Client
	timeout time.Duration

	mu        sync.RWMutex
	symbols   []string
	orderTags map[int64]string
}

func NewBinanceFutures(apiKey, secretKey, baseURL string) *BinanceFutures {
	client := futures.NewClient(apiKey, secretKey)
	if baseURL != "" {
		client.BaseURL = baseURL
	}
	return &BinanceFutures{
		client:    client,
		timeout:   10 * time.Second,
		orderTags: make(map[int64]string),
	}
}

// SetSymbols restricts execution-history queries to the given symbols.
// The account trades endpoint is per-symbol, so the adapter needs to know
// the universe to fan out.
func (b *BinanceFutures) SetSymbols(symbols []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.symbols = append([]string(nil), symbols...)
}

// RegisterOrderTag remembers the grid tag an order was placed under
func (b *BinanceFutures) RegisterOrderTag(orderID int64, tag string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.orderTags[orderID] = tag
}

func (b *BinanceFutures) tagForOrder(orderID int64) string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.orderTags[orderID]
}

// GetExecutionHistory returns account trades across the registered symbols,
// sorted by execution time ascending.
func (b *BinanceFutures) GetExecutionHistory(startUtc, endUtc time.Time) ([]Execution, error) {
	b.mu.RLock()
	symbols := append([]string(nil), b.symbols...)
	b.mu.RUnlock()

	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	var executions []Execution
	for _, symbol := range symbols {
		trades, err := b.client.NewListAccountTradeService().
			Symbol(symbol).
			StartTime(startUtc.UnixMilli()).
			EndTime(endUtc.UnixMilli()).
			Do(ctx)
		if err != nil {
			return nil, fmt.Errorf("failed to get %s trades: %w", symbol, err)
		}

		for _, trade := range trades {
			price, _ := strconv.ParseFloat(trade.Price, 64)
			qty, _ := strconv.ParseFloat(trade.Quantity, 64)
			fee, _ := strconv.ParseFloat(trade.Commission, 64)
			if trade.Side == futures.SideTypeSell {
				qty = -qty
			}
			executions = append(executions, Execution{
				Symbol:      trade.Symbol,
				Quantity:    qty,
				Price:       price,
				Time:        time.UnixMilli(trade.Time).UTC(),
				ExecutionID: fmt.Sprintf("%s-%d", trade.Symbol, trade.ID),
				Tag:         b.tagForOrder(trade.OrderID),
				Fee:         fee,
			})
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].Time.Before(executions[j].Time)
	})
	return executions, nil
}

// GetHoldings returns net position quantity per symbol. Flat symbols are
// omitted, matching how the exchange reports positions.
func (b *BinanceFutures) GetHoldings() (map[string]float64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), b.timeout)
	defer cancel()

	positions, err := b.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get positions: %w", err)
	}

	holdings := make(map[string]float64)
	for _, pos := range positions {
		amt, err := strconv.ParseFloat(pos.PositionAmt, 64)
		if err != nil {
			logger.Warnf("Unparseable position amount for %s: %q", pos.Symbol, pos.PositionAmt)
			continue
		}
		if amt != 0 {
			holdings[pos.Symbol] += amt
		}
	}
	return holdings, nil
}
