package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"charting-terminalv1/internal/history"
	"charting-terminalv1/internal/model"
)

// SeriesCache implements history.SecondaryCache on the series_cache table.
// Expired rows are ignored on read and removed by Prune.
type SeriesCache struct {
	db  *sql.DB
	now func() time.Time
}

// NewSeriesCache returns the series cache view of s.
func NewSeriesCache(s *Store) *SeriesCache {
	return &SeriesCache{db: s.db, now: time.Now}
}

func (c *SeriesCache) GetSeries(ctx context.Context, key string) ([]model.Candle, bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx,
		`SELECT candles FROM series_cache WHERE key = ? AND expires_at > ?`,
		key, c.now().UnixMilli()).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("sqlite series get %s: %w", key, err)
	}
	var candles []model.Candle
	if err := json.Unmarshal([]byte(raw), &candles); err != nil {
		return nil, false, fmt.Errorf("decode series %s: %w", key, err)
	}
	return candles, len(candles) > 0, nil
}

func (c *SeriesCache) SetSeries(ctx context.Context, key string, candles []model.Candle, ttl time.Duration) error {
	raw, err := json.Marshal(candles)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO series_cache (key, candles, expires_at) VALUES (?, ?, ?)`,
		key, string(raw), c.now().Add(ttl).UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlite series set %s: %w", key, err)
	}
	return nil
}

// Prune deletes expired rows and returns how many were removed.
func (c *SeriesCache) Prune(ctx context.Context) (int64, error) {
	res, err := c.db.ExecContext(ctx, `DELETE FROM series_cache WHERE expires_at <= ?`, c.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("sqlite series prune: %w", err)
	}
	return res.RowsAffected()
}

// RunPruner calls Prune every interval until ctx is cancelled.
func (c *SeriesCache) RunPruner(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := c.Prune(ctx)
			if err != nil {
				log.Printf("[sqlite] prune error: %v", err)
			} else if n > 0 {
				log.Printf("[sqlite] pruned %d expired series", n)
			}
		}
	}
}

var _ history.SecondaryCache = (*SeriesCache)(nil)
