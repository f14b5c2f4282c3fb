package history

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/model"
)

type fakeFetcher struct {
	calls atomic.Int32
	gate  chan struct{}
	errs  []error // returned in order before succeeding
	mu    sync.Mutex
	ends  []int64
}

func (f *fakeFetcher) FetchCandles(ctx context.Context, marketID string, tf model.Timeframe, limit int, end int64) ([]model.Candle, error) {
	n := f.calls.Add(1)
	f.mu.Lock()
	f.ends = append(f.ends, end)
	f.mu.Unlock()
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if int(n) <= len(f.errs) {
		return nil, f.errs[n-1]
	}
	return []model.Candle{{Time: 60, Open: 1, High: 1, Low: 1, Close: 1}, {Time: 120, Open: 1, High: 2, Low: 1, Close: 2}}, nil
}

type memL2 struct {
	mu   sync.Mutex
	data map[string][]model.Candle
	ttls map[string]time.Duration
}

func newMemL2() *memL2 {
	return &memL2{data: map[string][]model.Candle{}, ttls: map[string]time.Duration{}}
}

func (m *memL2) GetSeries(_ context.Context, key string) ([]model.Candle, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.data[key]
	return c, ok, nil
}

func (m *memL2) SetSeries(_ context.Context, key string, candles []model.Candle, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = candles
	m.ttls[key] = ttl
	return nil
}

func testConfig() LoaderConfig {
	return LoaderConfig{MaxAge: time.Minute, L2TTL: 5 * time.Minute, Timeout: time.Second, Retries: 2, RetryBase: time.Millisecond}
}

var btcKey = Key{MarketID: "BI:SPOT:BTCUSDT", Timeframe: model.TF1h, Limit: 300}

func TestCache_TTLOnRead(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	c := NewCache().WithClock(func() time.Time { return now })
	c.Set(btcKey, []model.Candle{{Time: 3600}})

	got, ok := c.Get(btcKey, 30*time.Second)
	require.True(t, ok)
	assert.Len(t, got, 1)

	now = now.Add(30 * time.Second)
	_, ok = c.Get(btcKey, 30*time.Second)
	assert.True(t, ok, "age equal to maxAge is still fresh")

	now = now.Add(time.Millisecond)
	_, ok = c.Get(btcKey, 30*time.Second)
	assert.False(t, ok, "stale entry must miss")
	assert.Equal(t, 1, c.Len(), "stale entries are not purged")

	c.Set(btcKey, []model.Candle{{Time: 7200}, {Time: 10800}})
	got, ok = c.Get(btcKey, 30*time.Second)
	require.True(t, ok)
	assert.Len(t, got, 2, "set overwrites unconditionally")
}

func TestCache_KeyIncludesLimit(t *testing.T) {
	c := NewCache()
	c.Set(btcKey, []model.Candle{{Time: 3600}})
	other := btcKey
	other.Limit = 500
	_, ok := c.Get(other, time.Hour)
	assert.False(t, ok)
}

func TestCache_ReturnsCopy(t *testing.T) {
	c := NewCache()
	c.Set(btcKey, []model.Candle{{Time: 3600, Close: 1}})
	got, _ := c.Get(btcKey, time.Hour)
	got[0].Close = 99
	again, _ := c.Get(btcKey, time.Hour)
	assert.Equal(t, 1.0, again[0].Close)
}

func TestLoader_CachesAndCoalesces(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	l := NewLoader(NewCache(), nil, f, testConfig())

	var wg sync.WaitGroup
	results := make([][]model.Candle, 5)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			c, err := l.Load(context.Background(), btcKey)
			assert.NoError(t, err)
			results[i] = c
		}(i)
	}
	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load(), "concurrent loads should share one fetch")
	for _, r := range results {
		assert.Len(t, r, 2)
	}

	_, err := l.Load(context.Background(), btcKey)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load(), "fresh cache entry should be served from memory")
}

func TestLoader_RetriesRetriableErrors(t *testing.T) {
	f := &fakeFetcher{errs: []error{
		&model.FetchError{Op: "candles", Err: errors.New("502"), Retriable: true},
		&model.FetchError{Op: "candles", Err: errors.New("timeout"), Retriable: true},
	}}
	var fetchErr error
	l := NewLoader(NewCache(), nil, f, testConfig())
	l.OnFetch = func(op string, d time.Duration, err error) { fetchErr = err }

	got, err := l.Load(context.Background(), btcKey)
	require.NoError(t, err)
	assert.Len(t, got, 2)
	assert.Equal(t, int32(3), f.calls.Load())
	assert.NoError(t, fetchErr)
}

func TestLoader_DoesNotRetryPermanentErrors(t *testing.T) {
	perm := &model.FetchError{Op: "candles", Status: 404, Err: errors.New("unknown market")}
	f := &fakeFetcher{errs: []error{perm}}
	l := NewLoader(NewCache(), nil, f, testConfig())

	_, err := l.Load(context.Background(), btcKey)
	require.Error(t, err)
	var fe *model.FetchError
	assert.True(t, errors.As(err, &fe))
	assert.Equal(t, int32(1), f.calls.Load())
}

func TestLoader_SecondaryTier(t *testing.T) {
	l2 := newMemL2()
	f := &fakeFetcher{}
	l := NewLoader(NewCache(), l2, f, testConfig())
	var tiers []string
	l.OnCacheHit = func(tier string) { tiers = append(tiers, tier) }

	_, err := l.Load(context.Background(), btcKey)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, l2.ttls[btcKey.String()], "network result is written through to l2")

	// A second loader sharing only the l2 should not hit the network.
	l2only := NewLoader(NewCache(), l2, f, testConfig())
	l2only.OnCacheHit = l.OnCacheHit
	_, err = l2only.Load(context.Background(), btcKey)
	require.NoError(t, err)
	_, err = l2only.Load(context.Background(), btcKey)
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, []string{"l2", "memory"}, tiers)
}

func TestLoader_LoadBeforeIsNeverCached(t *testing.T) {
	f := &fakeFetcher{}
	cache := NewCache()
	l := NewLoader(cache, nil, f, testConfig())

	for i := 0; i < 2; i++ {
		_, err := l.LoadBefore(context.Background(), "BI:SPOT:BTCUSDT", model.TF1h, 500, 7199)
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, 0, cache.Len())
	assert.Equal(t, []int64{7199, 7199}, f.ends)
}

func TestLoader_CallerCancellation(t *testing.T) {
	f := &fakeFetcher{gate: make(chan struct{})}
	defer close(f.gate)
	l := NewLoader(NewCache(), nil, f, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := l.Load(ctx, btcKey)
	assert.ErrorIs(t, err, context.Canceled)
}
