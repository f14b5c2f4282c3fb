package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/indicator"
	"charting-terminalv1/internal/model"
)

func chdirTemp(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(t.TempDir()))
	t.Cleanup(func() { os.Chdir(wd) })
}

func TestLoad_Defaults(t *testing.T) {
	chdirTemp(t) // no .env
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, 300, cfg.InitialLimit)
	assert.Equal(t, 500, cfg.BackfillLimit)
	assert.Equal(t, 250*time.Millisecond, cfg.BackfillDebounce)
	assert.Equal(t, 120*time.Millisecond, cfg.RecomputeDebounce)
	assert.Equal(t, "", cfg.RedisAddr)
	assert.Len(t, cfg.Markets, 4)
}

func TestLoad_EnvOverrides(t *testing.T) {
	chdirTemp(t)
	t.Setenv("INITIAL_LIMIT", "150")
	t.Setenv("BACKFILL_DEBOUNCE", "1s")
	t.Setenv("MARKETS", "BI:SPOT:BTCUSDT,BY:PERP:ETHUSDT")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 150, cfg.InitialLimit)
	assert.Equal(t, time.Second, cfg.BackfillDebounce)
	assert.Equal(t, []string{"BI:SPOT:BTCUSDT", "BY:PERP:ETHUSDT"}, cfg.Markets)
}

func TestLoad_RejectsBadTimeframe(t *testing.T) {
	chdirTemp(t)
	t.Setenv("DEFAULT_TIMEFRAME", "2h")
	_, err := Load()
	assert.Error(t, err)
}

func TestParseTimeframes(t *testing.T) {
	cfg := &Config{EnabledTFs: "1m, 5m,bogus,,1D"}
	assert.Equal(t, []model.Timeframe{model.TF1m, model.TF5m, model.TF1D}, cfg.ParseTimeframes())
}

func TestParseMarkets(t *testing.T) {
	cfg := &Config{Markets: []string{"bi:spot:btcusdt", "XX:SPOT:BAD", " BY:PERP:SOLUSDT "}}
	got := cfg.ParseMarkets()
	require.Len(t, got, 2)
	assert.Equal(t, "BI:SPOT:BTCUSDT", got[0].MarketID)
	assert.Equal(t, "bybit", got[1].Exchange)
}

func TestLoadIndicatorParams(t *testing.T) {
	p, err := LoadIndicatorParams("")
	require.NoError(t, err)
	assert.Equal(t, indicator.DefaultParams(), p)

	path := filepath.Join(t.TempDir(), "indicators.yaml")
	require.NoError(t, os.WriteFile(path, []byte("indicators:\n  rsi_period: 21\n  ema_periods: [9, 21]\n"), 0o644))
	p, err = LoadIndicatorParams(path)
	require.NoError(t, err)
	assert.Equal(t, 21, p.RSIPeriod)
	assert.Equal(t, []int{9, 21}, p.EMAPeriods)
	assert.Equal(t, 26, p.MACDSlow, "unset fields keep defaults")

	require.NoError(t, os.WriteFile(path, []byte("indicators:\n  rsi_period: -1\n"), 0o644))
	_, err = LoadIndicatorParams(path)
	assert.Error(t, err)
}
