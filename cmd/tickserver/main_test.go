package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/marketdata/rest"
	"charting-terminalv1/internal/model"
)

func newServer(t *testing.T, now time.Time) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{marketId}/candles", candlesHandler(func() time.Time { return now }))
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestCandles_ServedThroughRESTClient(t *testing.T) {
	now := time.Unix(1_700_003_700, 0)
	srv := newServer(t, now)
	c := rest.New(rest.Config{BaseURL: srv.URL})

	candles, err := c.FetchCandles(context.Background(), "BI:SPOT:BTCUSDT", model.TF1h, 5, 0)
	require.NoError(t, err)
	require.Len(t, candles, 5)
	assert.Equal(t, model.Bucket(now.Unix(), 3600), candles[4].Time)
	for i := 1; i < len(candles); i++ {
		assert.Equal(t, int64(3600), candles[i].Time-candles[i-1].Time)
		assert.GreaterOrEqual(t, candles[i].High, candles[i].Low)
	}

	// Backfill pages agree with the initial load.
	end := candles[2].Time - 1
	older, err := c.FetchCandles(context.Background(), "BI:SPOT:BTCUSDT", model.TF1h, 3, end)
	require.NoError(t, err)
	require.Len(t, older, 3)
	assert.Equal(t, candles[1], older[2])
	assert.Equal(t, candles[0], older[1])
}

func TestCandles_RejectsUnknownMarket(t *testing.T) {
	srv := newServer(t, time.Unix(1_700_000_000, 0))
	_, err := rest.New(rest.Config{BaseURL: srv.URL}).
		FetchCandles(context.Background(), "XX:SPOT:BTCUSDT", model.TF1h, 5, 0)

	var fe *model.FetchError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, http.StatusNotFound, fe.Status)
	assert.False(t, fe.Retriable)
}
