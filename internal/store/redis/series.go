package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"charting-terminalv1/internal/history"
	"charting-terminalv1/internal/model"
)

const seriesPrefix = "history:"

// SeriesCache stores fetched candle series as JSON with a TTL. It is the
// second tier behind the in-process history.Cache.
type SeriesCache struct {
	rdb     goredis.Cmdable
	Breaker *CircuitBreaker
}

// NewSeriesCache creates a series cache on c.
func NewSeriesCache(c *Client) *SeriesCache {
	return newSeriesCache(c.rdb, c.breaker("redis-series"))
}

func newSeriesCache(rdb goredis.Cmdable, cb *CircuitBreaker) *SeriesCache {
	return &SeriesCache{rdb: rdb, Breaker: cb}
}

// SeriesKey is the Redis key for a history.Key string.
func SeriesKey(key string) string { return seriesPrefix + key }

// GetSeries returns the cached series; ok is false on a miss.
func (s *SeriesCache) GetSeries(ctx context.Context, key string) ([]model.Candle, bool, error) {
	var raw []byte
	err := s.Breaker.Execute(func() error {
		var err error
		raw, err = s.rdb.Get(ctx, SeriesKey(key)).Bytes()
		return err
	}, goredis.Nil)
	if errors.Is(err, goredis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get %s: %w", SeriesKey(key), err)
	}
	var candles []model.Candle
	if err := json.Unmarshal(raw, &candles); err != nil {
		return nil, false, fmt.Errorf("decode %s: %w", SeriesKey(key), err)
	}
	return candles, len(candles) > 0, nil
}

// SetSeries stores candles under key for ttl.
func (s *SeriesCache) SetSeries(ctx context.Context, key string, candles []model.Candle, ttl time.Duration) error {
	raw, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	return s.Breaker.Execute(func() error {
		return s.rdb.Set(ctx, SeriesKey(key), raw, ttl).Err()
	})
}

var _ history.SecondaryCache = (*SeriesCache)(nil)
