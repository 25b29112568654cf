package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Global config instance
var global *Config

// Config global configuration (loaded from .env)
// Only truly global settings live here; per-pair parameters are configured
// on the pairs themselves.
type Config struct {
	// Service settings
	APIServerPort int

	// Market data
	BinanceBaseURL string
	BinanceWSURL   string
	WatchSymbols   []string

	// Venue credentials (read-only endpoints)
	BinanceAPIKey    string
	BinanceSecretKey string

	// Reconciliation
	ReconcileInterval time.Duration

	// Persistence
	DBPath string
}

// Init initializes the global configuration (loaded from .env)
func Init() {
	cfg := &Config{
		APIServerPort:     8080,
		BinanceBaseURL:    "https://fapi.binance.com",
		BinanceWSURL:      "wss://fstream.binance.com/stream",
		ReconcileInterval: 60 * time.Second,
		DBPath:            "data/pairarb.db",
	}

	if v := os.Getenv("API_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			cfg.APIServerPort = port
		}
	}

	if v := os.Getenv("BINANCE_BASE_URL"); v != "" {
		cfg.BinanceBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("BINANCE_WS_URL"); v != "" {
		cfg.BinanceWSURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("WATCH_SYMBOLS"); v != "" {
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				cfg.WatchSymbols = append(cfg.WatchSymbols, strings.ToUpper(s))
			}
		}
	}

	cfg.BinanceAPIKey = strings.TrimSpace(os.Getenv("BINANCE_API_KEY"))
	cfg.BinanceSecretKey = strings.TrimSpace(os.Getenv("BINANCE_SECRET_KEY"))

	if v := os.Getenv("RECONCILE_INTERVAL_SEC"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			cfg.ReconcileInterval = time.Duration(sec) * time.Second
		}
	}

	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.DBPath = strings.TrimSpace(v)
	}

	global = cfg
}

// Get returns the global configuration
func Get() *Config {
	if global == nil {
		Init()
	}
	return global
}
