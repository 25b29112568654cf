package market

import (
	"encoding/json"
	"strconv"

	"pairarb/logger"
)

// QuoteHandler receives every best bid/ask update from the stream
type QuoteHandler func(symbol string, bid, ask float64)

// bookTickerEvent is the payload of a <symbol>@bookTicker stream message
type bookTickerEvent struct {
	Symbol   string `json:"s"`
	BidPrice string `json:"b"`
	BidQty   string `json:"B"`
	AskPrice string `json:"a"`
	AskQty   string `json:"A"`
}

// QuoteMonitor subscribes to book ticker streams for a set of symbols and
// forwards every quote to the registered handler.
type QuoteMonitor struct {
	combinedClient *CombinedStreamsClient
	symbols        []string
	onQuote        QuoteHandler
}

func NewQuoteMonitor(wsURL string, batchSize int, onQuote QuoteHandler) *QuoteMonitor {
	return &QuoteMonitor{
		combinedClient: NewCombinedStreamsClient(wsURL, batchSize),
		onQuote:        onQuote,
	}
}

func (m *QuoteMonitor) Start(symbols []string) error {
	logger.Info("Starting WebSocket quote monitoring...")
	m.symbols = symbols

	if err := m.combinedClient.Connect(); err != nil {
		logger.Errorf("❌ Failed to connect quote stream: %v", err)
		return err
	}

	// Register listeners before subscribing so no event is dropped
	for _, symbol := range m.symbols {
		ch := m.combinedClient.AddSubscriber(BookTickerStream(symbol), 100)
		go m.handleBookTicker(symbol, ch)
	}

	if err := m.combinedClient.BatchSubscribeBookTickers(m.symbols); err != nil {
		logger.Errorf("❌ Failed to subscribe to book tickers: %v", err)
		return err
	}

	logger.Infof("All quote subscriptions completed: %d symbols", len(m.symbols))
	return nil
}

func (m *QuoteMonitor) handleBookTicker(symbol string, ch <-chan []byte) {
	for data := range ch {
		var event bookTickerEvent
		if err := json.Unmarshal(data, &event); err != nil {
			logger.Warnf("Failed to parse book ticker data: %v", err)
			continue
		}

		bid, errB := strconv.ParseFloat(event.BidPrice, 64)
		ask, errA := strconv.ParseFloat(event.AskPrice, 64)
		if errB != nil || errA != nil {
			continue
		}

		if m.onQuote != nil {
			m.onQuote(symbol, bid, ask)
		}
	}
}

func (m *QuoteMonitor) Stop() {
	m.combinedClient.Close()
}
