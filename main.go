package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"pairarb/api"
	"pairarb/config"
	"pairarb/logger"
	"pairarb/manager"
	"pairarb/market"
	"pairarb/store"
	"pairarb/trader"
)

// configFile overlays config.json on top of the env-backed configuration
type configFile struct {
	APIServerPort        int      `json:"api_server_port"`
	WatchSymbols         []string `json:"watch_symbols"`
	ReconcileIntervalSec int      `json:"reconcile_interval_sec"`
	DBPath               string   `json:"db_path"`
	BinanceBaseURL       string   `json:"binance_base_url"`
	BinanceWSURL         string   `json:"binance_ws_url"`
}

func applyConfigFile(cfg *config.Config) error {
	if _, err := os.Stat("config.json"); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile("config.json")
	if err != nil {
		return fmt.Errorf("failed to read config.json: %w", err)
	}

	var file configFile
	if err := json.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("failed to parse config.json: %w", err)
	}

	if file.APIServerPort > 0 {
		cfg.APIServerPort = file.APIServerPort
	}
	for _, s := range file.WatchSymbols {
		if s = strings.ToUpper(strings.TrimSpace(s)); s != "" {
			cfg.WatchSymbols = append(cfg.WatchSymbols, s)
		}
	}
	if file.ReconcileIntervalSec > 0 {
		cfg.ReconcileInterval = time.Duration(file.ReconcileIntervalSec) * time.Second
	}
	if file.DBPath != "" {
		cfg.DBPath = file.DBPath
	}
	if file.BinanceBaseURL != "" {
		cfg.BinanceBaseURL = file.BinanceBaseURL
	}
	if file.BinanceWSURL != "" {
		cfg.BinanceWSURL = file.BinanceWSURL
	}
	return nil
}

// watchedSymbols merges the configured watch list with the legs of every
// persisted pair, so a restart keeps streaming what it already trades.
func watchedSymbols(cfg *config.Config, snapshot *store.StateSnapshot) []string {
	set := make(map[string]bool)
	for _, s := range cfg.WatchSymbols {
		set[s] = true
	}
	if snapshot != nil {
		for _, rec := range snapshot.Pairs {
			set[rec.Leg1] = true
			set[rec.Leg2] = true
		}
	}

	symbols := make([]string, 0, len(set))
	for s := range set {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)
	return symbols
}

func main() {
	// Load environment variables from .env file if present (for local/dev runs)
	_ = godotenv.Load()

	config.Init()
	logger.Init(nil)
	cfg := config.Get()
	if err := applyConfigFile(cfg); err != nil {
		logger.Fatalf("❌ %v", err)
	}

	logger.Info("╔════════════════════════════════════════════╗")
	logger.Info("║   📐 Spread Arbitrage Pair Engine          ║")
	logger.Info("╚════════════════════════════════════════════╝")

	logger.Infof("📋 Initializing database: %s", cfg.DBPath)
	st, err := store.New(cfg.DBPath)
	if err != nil {
		logger.Fatalf("❌ Failed to initialize database: %v", err)
	}

	snapshot, err := st.PairState().LoadState()
	if err != nil {
		logger.Fatalf("❌ Failed to load persisted state: %v", err)
	}

	marketData := market.NewBinanceMarketData(cfg.BinanceBaseURL)
	pairManager := manager.New(marketData)

	symbols := watchedSymbols(cfg, snapshot)
	if len(symbols) == 0 {
		logger.Warn("⚠️  No symbols to watch; set WATCH_SYMBOLS or add pairs via the API after restart")
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		if err := marketData.LoadUniverse(ctx, symbols); err != nil {
			cancel()
			logger.Fatalf("❌ Failed to load market universe: %v", err)
		}
		cancel()
	}

	// Restore only after the universe exists so restored pairs stay valid
	pairManager.ImportState(snapshot)
	if len(snapshot.Pairs) > 0 {
		logger.Infof("💾 Restored %d pairs from persisted state", len(snapshot.Pairs))
	}

	broker := trader.NewBinanceFutures(cfg.BinanceAPIKey, cfg.BinanceSecretKey, cfg.BinanceBaseURL)
	broker.SetSymbols(symbols)
	pairManager.SetExecutionHistory(broker)

	reconcileManager := trader.NewReconcileManager(pairManager, broker, cfg.ReconcileInterval)
	reconcileManager.Start()

	quoteMonitor := market.NewQuoteMonitor(cfg.BinanceWSURL, 150, func(symbol string, bid, ask float64) {
		marketData.UpdateQuote(symbol, bid, ask)
		pairManager.ApplyQuote(symbol, bid, ask)
	})
	if len(symbols) > 0 {
		go func() {
			if err := quoteMonitor.Start(symbols); err != nil {
				logger.Errorf("❌ Quote monitor error: %v", err)
			}
		}()
	}

	apiServer := api.NewServer(pairManager, cfg.APIServerPort)
	go func() {
		if err := apiServer.Start(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("❌ API server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	logger.Info("📛 Shutdown signal received, closing gracefully...")

	quoteMonitor.Stop()

	logger.Info("🔄 Stopping reconcile manager...")
	reconcileManager.Stop()

	logger.Info("🛑 Stopping API server...")
	if err := apiServer.Shutdown(); err != nil {
		logger.Warnf("⚠️  Error shutting down API server: %v", err)
	}

	logger.Info("💾 Persisting registry state...")
	if err := st.PairState().SaveState(pairManager.ExportState()); err != nil {
		logger.Errorf("❌ Failed to persist state: %v", err)
	}

	if err := st.Close(); err != nil {
		logger.Errorf("❌ Failed to close database: %v", err)
	} else {
		logger.Info("✅ Database closed, all state persisted")
	}
}
