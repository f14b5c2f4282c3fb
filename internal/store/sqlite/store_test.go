package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/model"
)

func openTemp(t *testing.T) *Store {
	t.Helper()
	s, err := Open(Config{DBPath: filepath.Join(t.TempDir(), "terminal.db")})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestKV_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	kv := NewKV(openTemp(t))

	_, err := kv.Get(ctx, "slots")
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, kv.Set(ctx, "slots", []byte(`{"version":3}`)))
	require.NoError(t, kv.Set(ctx, "slots", []byte(`{"version":3,"data":{}}`)))
	got, err := kv.Get(ctx, "slots")
	require.NoError(t, err)
	assert.JSONEq(t, `{"version":3,"data":{}}`, string(got))

	require.NoError(t, kv.Delete(ctx, "slots"))
	_, err = kv.Get(ctx, "slots")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestKV_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "terminal.db")

	s, err := Open(Config{DBPath: path})
	require.NoError(t, err)
	require.NoError(t, NewKV(s).Set(ctx, "watchlist", []byte(`["BI:SPOT:BTCUSDT"]`)))
	require.NoError(t, s.Close())

	s, err = Open(Config{DBPath: path})
	require.NoError(t, err)
	defer s.Close()
	got, err := NewKV(s).Get(ctx, "watchlist")
	require.NoError(t, err)
	assert.Equal(t, `["BI:SPOT:BTCUSDT"]`, string(got))
}

func TestSeriesCache_TTL(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	c := NewSeriesCache(openTemp(t))
	c.now = func() time.Time { return now }

	candles := []model.Candle{
		{Time: 3600, Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 10},
		{Time: 7200, Open: 1.5, High: 3, Low: 1, Close: 2, Volume: 12},
	}
	require.NoError(t, c.SetSeries(ctx, "BI:SPOT:BTCUSDT|1h|300", candles, time.Minute))

	got, ok, err := c.GetSeries(ctx, "BI:SPOT:BTCUSDT|1h|300")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, candles, got)

	now = now.Add(2 * time.Minute)
	_, ok, err = c.GetSeries(ctx, "BI:SPOT:BTCUSDT|1h|300")
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := c.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
