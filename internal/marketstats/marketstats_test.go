package marketstats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/history"
	"charting-terminalv1/internal/model"
)

type countingHistory struct {
	calls   atomic.Int32
	gate    chan struct{}
	err     error
	candles []model.Candle
	lastKey history.Key
	mu      sync.Mutex
}

func (h *countingHistory) Load(ctx context.Context, key history.Key) ([]model.Candle, error) {
	h.calls.Add(1)
	h.mu.Lock()
	h.lastKey = key
	h.mu.Unlock()
	if h.gate != nil {
		<-h.gate
	}
	return h.candles, h.err
}

func flat(n int, price float64) []model.Candle {
	out := make([]model.Candle, n)
	for i := range out {
		out[i] = model.Candle{Time: int64(i) * 300, Open: price, High: price + 1, Low: price - 1, Close: price}
	}
	return out
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func newService(h History) (*Service, *clock) {
	clk := &clock{t: time.Unix(1_700_000_000, 0)}
	cfg := DefaultConfig()
	cfg.Now = clk.now
	return New(cfg, h), clk
}

const btc = "BI:SPOT:BTCUSDT"

func TestGet_ComputesNATRAndUsesLiveTicker(t *testing.T) {
	h := &countingHistory{candles: flat(80, 100)}
	s, _ := newService(h)
	s.Observe(model.Ticker{MarketID: btc, Price: 101, Change24h: 2.5, Volume24h: 900})

	st, err := s.Get(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, 101.0, st.Price)
	assert.Equal(t, 2.5, st.ChangeTodayPct)
	assert.Equal(t, 900.0, st.Volume24h)
	// True range is a constant 2 on a flat 100 close.
	assert.InDelta(t, 2.0, st.NATR5m14, 1e-9)
	assert.Equal(t, history.Key{MarketID: btc, Timeframe: model.TF5m, Limit: 80}, h.lastKey)
}

func TestGet_FallsBackToLastClose(t *testing.T) {
	s, _ := newService(&countingHistory{candles: flat(5, 42)})

	st, err := s.Get(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, 42.0, st.Price)
	assert.Zero(t, st.NATR5m14)
}

func TestGet_CachesForMaxAge(t *testing.T) {
	h := &countingHistory{candles: flat(80, 100)}
	s, clk := newService(h)
	ctx := context.Background()

	_, err := s.Get(ctx, btc)
	require.NoError(t, err)
	clk.t = clk.t.Add(30 * time.Second)
	_, err = s.Get(ctx, btc)
	require.NoError(t, err)
	assert.Equal(t, int32(1), h.calls.Load())

	clk.t = clk.t.Add(time.Second)
	_, err = s.Get(ctx, btc)
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestGet_ConcurrentMissesShareOneLoad(t *testing.T) {
	h := &countingHistory{candles: flat(80, 100), gate: make(chan struct{})}
	s, _ := newService(h)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.Get(context.Background(), btc)
			assert.NoError(t, err)
		}()
	}
	require.Eventually(t, func() bool { return h.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(h.gate)
	wg.Wait()
	assert.Equal(t, int32(1), h.calls.Load())
}

func TestGet_ErrorsAreNotCached(t *testing.T) {
	h := &countingHistory{err: errors.New("down")}
	s, _ := newService(h)
	ctx := context.Background()

	_, err := s.Get(ctx, btc)
	require.Error(t, err)

	h.err, h.candles = nil, flat(80, 100)
	_, err = s.Get(ctx, btc)
	require.NoError(t, err)
	assert.Equal(t, int32(2), h.calls.Load())
}

func TestGet_RejectsBadMarketID(t *testing.T) {
	s, _ := newService(&countingHistory{})
	_, err := s.Get(context.Background(), "nope")
	assert.ErrorIs(t, err, model.ErrInvalidMarketID)
}

func TestRun_ObservesUntilClosed(t *testing.T) {
	s, _ := newService(&countingHistory{candles: flat(80, 100)})
	ch := make(chan model.Ticker, 1)
	ch <- model.Ticker{MarketID: btc, Price: 7}
	close(ch)
	require.NoError(t, s.Run(context.Background(), ch))

	st, err := s.Get(context.Background(), btc)
	require.NoError(t, err)
	assert.Equal(t, 7.0, st.Price)
}
