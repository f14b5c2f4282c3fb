package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"charting-terminalv1/internal/indicator"
	"charting-terminalv1/internal/model"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	// Listeners
	ListenAddr  string `env:"LISTEN_ADDR" envDefault:":8080"`
	MetricsAddr string `env:"METRICS_ADDR" envDefault:":9090"`

	// Upstream
	HistoryBaseURL string        `env:"HISTORY_BASE_URL" envDefault:"http://localhost:3000"`
	TickerWSURL    string        `env:"TICKER_WS_URL" envDefault:"ws://localhost:3000/ws/tickers"`
	Markets        []string      `env:"MARKETS" envSeparator:"," envDefault:"BI:SPOT:BTCUSDT,BI:SPOT:ETHUSDT,BI:SPOT:SOLUSDT,BY:PERP:BTCUSDT"`
	FetchTimeout   time.Duration `env:"FETCH_TIMEOUT" envDefault:"10s"`
	FetchRetries   int           `env:"FETCH_RETRIES" envDefault:"2"`

	// Infrastructure; an empty address disables the store
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
	SQLitePath    string `env:"SQLITE_PATH" envDefault:"data/terminal.db"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	LogFile  string `env:"LOG_FILE"`

	// Grid defaults
	DefaultTimeframe string `env:"DEFAULT_TIMEFRAME" envDefault:"1h"`
	DefaultLayout    string `env:"DEFAULT_LAYOUT" envDefault:"4x4"`
	EnabledTFs       string `env:"ENABLED_TIMEFRAMES" envDefault:"1m,5m,15m,1h,4h,1D,1W"`
	IndicatorConfig  string `env:"INDICATOR_CONFIG"`

	// History cache
	CacheMaxAge time.Duration `env:"CACHE_MAX_AGE" envDefault:"30s"`
	CacheL2TTL  time.Duration `env:"CACHE_L2_TTL" envDefault:"2m"`

	// Chart loading and backfill
	InitialLimit      int           `env:"INITIAL_LIMIT" envDefault:"300"`
	BackfillLimit     int           `env:"BACKFILL_LIMIT" envDefault:"500"`
	BackfillEdgeBars  float64       `env:"BACKFILL_EDGE_BARS" envDefault:"60"`
	BackfillDebounce  time.Duration `env:"BACKFILL_DEBOUNCE" envDefault:"250ms"`
	BackfillMinBars   int           `env:"BACKFILL_MIN_BARS" envDefault:"20"`
	RecomputeDebounce time.Duration `env:"RECOMPUTE_DEBOUNCE" envDefault:"120ms"`

	// Ticker stream reconnect
	StreamBackoffMin time.Duration `env:"STREAM_BACKOFF_MIN" envDefault:"1s"`
	StreamBackoffMax time.Duration `env:"STREAM_BACKOFF_MAX" envDefault:"30s"`
}

// Load reads .env (if present) and the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if _, err := model.ParseTimeframe(cfg.DefaultTimeframe); err != nil {
		return nil, fmt.Errorf("DEFAULT_TIMEFRAME: %w", err)
	}
	if cfg.InitialLimit <= 0 || cfg.BackfillLimit <= 0 {
		return nil, fmt.Errorf("INITIAL_LIMIT and BACKFILL_LIMIT must be positive")
	}
	return cfg, nil
}

// ParseTimeframes parses EnabledTFs, skipping unknown values.
func (c *Config) ParseTimeframes() []model.Timeframe {
	parts := strings.Split(c.EnabledTFs, ",")
	tfs := make([]model.Timeframe, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		tf, err := model.ParseTimeframe(p)
		if err != nil {
			log.Printf("[config] skipping invalid timeframe: %q", p)
			continue
		}
		tfs = append(tfs, tf)
	}
	return tfs
}

// ParseMarkets parses Markets into the market universe, skipping malformed
// IDs.
func (c *Config) ParseMarkets() []model.Market {
	out := make([]model.Market, 0, len(c.Markets))
	for _, id := range c.Markets {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		m, err := model.ParseMarketID(id)
		if err != nil {
			log.Printf("[config] skipping invalid market: %v", err)
			continue
		}
		out = append(out, m)
	}
	return out
}

// indicatorFile mirrors the YAML layout of INDICATOR_CONFIG.
type indicatorFile struct {
	Indicators indicator.Params `yaml:"indicators"`
}

// LoadIndicatorParams reads indicator parameters from path, starting from
// indicator.DefaultParams so the file may override a subset. An empty path
// returns the defaults.
func LoadIndicatorParams(path string) (indicator.Params, error) {
	f := indicatorFile{Indicators: indicator.DefaultParams()}
	if path == "" {
		return f.Indicators, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return indicator.Params{}, fmt.Errorf("read indicator config: %w", err)
	}
	if err := yaml.Unmarshal(data, &f); err != nil {
		return indicator.Params{}, fmt.Errorf("parse indicator config: %w", err)
	}
	if err := f.Indicators.Validate(); err != nil {
		return indicator.Params{}, fmt.Errorf("indicator config: %w", err)
	}
	log.Printf("[config] loaded indicator params from %s", path)
	return f.Indicators, nil
}
