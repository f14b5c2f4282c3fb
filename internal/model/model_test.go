package model

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBucket(t *testing.T) {
	cases := []struct {
		ts, tf, want int64
	}{
		{7300, 3600, 7200},
		{9000, 3600, 7200},
		{10800, 3600, 10800},
		{59, 60, 0},
		{-1, 60, -60},
		{123, 0, 123},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, Bucket(c.ts, c.tf), "Bucket(%d, %d)", c.ts, c.tf)
	}
}

func TestParseTimeframe(t *testing.T) {
	tf, err := ParseTimeframe("4h")
	require.NoError(t, err)
	assert.Equal(t, int64(14400), tf.Seconds())

	_, err = ParseTimeframe("2h")
	assert.True(t, errors.Is(err, ErrUnknownTimeframe))
	assert.False(t, Timeframe("2h").Valid())
}

func TestParseMarketID(t *testing.T) {
	m, err := ParseMarketID("bi:perp:btcusdt")
	require.NoError(t, err)
	assert.Equal(t, "BI:PERP:BTCUSDT", m.MarketID)
	assert.Equal(t, "binance", m.Exchange)
	assert.Equal(t, "perp", m.MarketType)
	assert.Equal(t, "BTCUSDT", m.Symbol)
	assert.Equal(t, m.MarketID, m.ID())

	for _, bad := range []string{"", "BI:SPOT", "XX:SPOT:BTC", "BY:OPT:BTC", "BY:SPOT:"} {
		_, err := ParseMarketID(bad)
		assert.True(t, errors.Is(err, ErrInvalidMarketID), bad)
	}
}

func TestCandle_UnmarshalMixedEncodings(t *testing.T) {
	var c Candle
	err := json.Unmarshal([]byte(`{"time":1700000000.7,"open":"101.5","high":102,"low":"100.25","close":101,"volume":"12.5"}`), &c)
	require.NoError(t, err)
	assert.Equal(t, int64(1700000000), c.Time)
	assert.Equal(t, 101.5, c.Open)
	assert.Equal(t, 100.25, c.Low)
	assert.Equal(t, 12.5, c.Volume)
	assert.True(t, c.Valid())

	c.High = math.Inf(1)
	assert.False(t, c.Valid())
}

func TestParseTickerFrame(t *testing.T) {
	raw := []byte(`{"type":"ticker","marketId":"BI:SPOT:ETHUSDT","symbol":"ETHUSDT","exchange":"binance","marketType":"spot","price":"3120.55","change24h":-1.2,"volume24h":"1000","timestamp":1700000000123}`)
	tk, ok := ParseTickerFrame(raw)
	require.True(t, ok)
	assert.Equal(t, "BI:SPOT:ETHUSDT", tk.MarketID)
	assert.Equal(t, 3120.55, tk.Price)
	assert.Equal(t, -1.2, tk.Change24h)
	assert.Equal(t, int64(1700000000), tk.Timestamp)

	_, ok = ParseTickerFrame([]byte(`{"type":"pong"}`))
	assert.False(t, ok)
	_, ok = ParseTickerFrame([]byte(`{"type":"ticker"}`))
	assert.False(t, ok)
	_, ok = ParseTickerFrame([]byte(`not json`))
	assert.False(t, ok)
}

func TestFetchError(t *testing.T) {
	base := errors.New("boom")
	err := error(&FetchError{Op: "candles", MarketID: "BI:SPOT:BTCUSDT", Timeframe: TF1h, Status: 502, Err: base, Retriable: true})
	assert.True(t, errors.Is(err, base))
	assert.True(t, IsRetriable(err))
	assert.False(t, IsRetriable(base))
	assert.Contains(t, err.Error(), "status 502")
}
