package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"charting-terminalv1/internal/logger"
	"charting-terminalv1/internal/model"
)

// SecondaryCache is a shared cache tier behind the in-memory Cache (Redis in
// production). Misses and errors both fall through to the network.
type SecondaryCache interface {
	GetSeries(ctx context.Context, key string) ([]model.Candle, bool, error)
	SetSeries(ctx context.Context, key string, candles []model.Candle, ttl time.Duration) error
}

// LoaderConfig bounds the fetch path.
type LoaderConfig struct {
	MaxAge    time.Duration // in-memory freshness window
	L2TTL     time.Duration // TTL written to the secondary tier
	Timeout   time.Duration // per attempt
	Retries   int           // extra attempts for retriable errors
	RetryBase time.Duration // first backoff, doubled per attempt
}

// DefaultLoaderConfig returns a 30s memory window, 2m L2 TTL, 10s attempt
// timeout and two retries starting at 500ms.
func DefaultLoaderConfig() LoaderConfig {
	return LoaderConfig{
		MaxAge:    30 * time.Second,
		L2TTL:     2 * time.Minute,
		Timeout:   10 * time.Second,
		Retries:   2,
		RetryBase: 500 * time.Millisecond,
	}
}

// Loader resolves series through memory, the optional secondary tier and the
// history API. Concurrent loads of the same key share one network request.
type Loader struct {
	cache   *Cache
	l2      SecondaryCache
	fetcher model.CandleFetcher
	cfg     LoaderConfig
	group   singleflight.Group

	// Metrics hooks (optional)
	OnFetch     func(op string, d time.Duration, err error)
	OnCacheHit  func(tier string)
	OnCacheMiss func()
}

// NewLoader creates a loader. l2 may be nil.
func NewLoader(cache *Cache, l2 SecondaryCache, fetcher model.CandleFetcher, cfg LoaderConfig) *Loader {
	return &Loader{cache: cache, l2: l2, fetcher: fetcher, cfg: cfg}
}

// Load returns the most recent key.Limit bars for the key's market and
// timeframe.
func (l *Loader) Load(ctx context.Context, key Key) ([]model.Candle, error) {
	if candles, ok := l.cache.Get(key, l.cfg.MaxAge); ok {
		l.hit("memory")
		return candles, nil
	}

	ch := l.group.DoChan(key.String(), func() (interface{}, error) {
		// Shared by every waiter, so one caller's cancellation must not
		// abort it.
		sctx := context.WithoutCancel(ctx)

		if l.l2 != nil {
			candles, ok, err := l.l2.GetSeries(sctx, key.String())
			if err != nil {
				slog.Warn("history l2 get failed", "key", key.String(), "error", err)
			} else if ok && len(candles) > 0 {
				l.hit("l2")
				l.cache.Set(key, candles)
				return candles, nil
			}
		}
		if l.OnCacheMiss != nil {
			l.OnCacheMiss()
		}

		candles, err := l.fetch(sctx, "candles", key.MarketID, key.Timeframe, key.Limit, 0)
		if err != nil {
			return nil, err
		}
		l.cache.Set(key, candles)
		if l.l2 != nil {
			if err := l.l2.SetSeries(sctx, key.String(), candles, l.cfg.L2TTL); err != nil {
				slog.Warn("history l2 set failed", "key", key.String(), "error", err)
			}
		}
		return candles, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		src := res.Val.([]model.Candle)
		out := make([]model.Candle, len(src))
		copy(out, src)
		return out, nil
	}
}

// LoadBefore fetches up to limit bars strictly before endTimeExclusive.
// Backfill pages are never cached.
func (l *Loader) LoadBefore(ctx context.Context, marketID string, tf model.Timeframe, limit int, endTimeExclusive int64) ([]model.Candle, error) {
	return l.fetch(ctx, "backfill", marketID, tf, limit, endTimeExclusive)
}

func (l *Loader) fetch(ctx context.Context, op, marketID string, tf model.Timeframe, limit int, end int64) ([]model.Candle, error) {
	ctx = logger.WithTraceID(ctx, logger.GenerateTraceID(marketID, time.Now()))
	start := time.Now()

	var lastErr error
	for attempt := 0; attempt <= l.cfg.Retries; attempt++ {
		if attempt > 0 {
			wait := l.cfg.RetryBase << (attempt - 1)
			slog.Debug("history fetch retry", append(logger.LogWithTrace(ctx), "attempt", attempt, "wait", wait, "error", lastErr)...)
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s %s: %w", op, marketID, ctx.Err())
			case <-time.After(wait):
			}
		}

		actx, cancel := context.WithTimeout(ctx, l.cfg.Timeout)
		candles, err := l.fetcher.FetchCandles(actx, marketID, tf, limit, end)
		cancel()
		if err == nil {
			slog.Debug("history fetched", append(logger.LogWithTrace(ctx),
				"op", op, "market", marketID, "tf", tf, "limit", limit, "end", end, "bars", len(candles))...)
			l.observe(op, start, nil)
			return candles, nil
		}
		lastErr = err
		if !model.IsRetriable(err) {
			break
		}
	}
	l.observe(op, start, lastErr)
	return nil, lastErr
}

func (l *Loader) hit(tier string) {
	if l.OnCacheHit != nil {
		l.OnCacheHit(tier)
	}
}

func (l *Loader) observe(op string, start time.Time, err error) {
	if l.OnFetch != nil {
		l.OnFetch(op, time.Since(start), err)
	}
}
