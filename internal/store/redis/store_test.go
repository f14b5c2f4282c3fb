package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"charting-terminalv1/internal/history"
	"charting-terminalv1/internal/model"
)

// deadRedis points at a port nothing listens on so every command fails fast.
func deadRedis(t *testing.T) *goredis.Client {
	t.Helper()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestSeriesKey(t *testing.T) {
	key := history.Key{MarketID: "BI:SPOT:BTCUSDT", Timeframe: model.TF1h, Limit: 300}
	if got := SeriesKey(key.String()); got != "history:BI:SPOT:BTCUSDT|1h|300" {
		t.Errorf("unexpected key %q", got)
	}
}

func TestSeriesCache_BreakerOpensOnDeadServer(t *testing.T) {
	cb := NewCircuitBreaker("test", 2, time.Minute)
	cache := newSeriesCache(deadRedis(t), cb)
	ctx := context.Background()
	key := history.Key{MarketID: "BI:SPOT:BTCUSDT", Timeframe: model.TF1h, Limit: 300}.String()

	for i := 0; i < 2; i++ {
		if _, _, err := cache.GetSeries(ctx, key); err == nil {
			t.Fatal("expected dial error")
		}
	}
	if cb.CurrentState() != StateOpen {
		t.Fatalf("expected Open, got %v", cb.CurrentState())
	}

	_, ok, err := cache.GetSeries(ctx, key)
	if ok || !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen miss, got ok=%v err=%v", ok, err)
	}
	if err := cache.SetSeries(ctx, key, nil, time.Minute); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}

func TestKV_BreakerWrapsCommands(t *testing.T) {
	kv := &KV{rdb: deadRedis(t), Breaker: NewCircuitBreaker("test", 1, time.Minute)}
	ctx := context.Background()

	if err := kv.Set(ctx, "watchlist", []byte("[]")); err == nil {
		t.Fatal("expected dial error")
	}
	if _, err := kv.Get(ctx, "watchlist"); !errors.Is(err, ErrCircuitOpen) {
		t.Errorf("expected ErrCircuitOpen, got %v", err)
	}
}
