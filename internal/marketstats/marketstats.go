// Package marketstats serves per-market summary figures for chart headers:
// last price, 24h change and volume, and a short-horizon NATR.
package marketstats

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"charting-terminalv1/internal/history"
	"charting-terminalv1/internal/indicator"
	"charting-terminalv1/internal/model"
)

// Stats is the summary for one market.
type Stats struct {
	MarketID       string  `json:"marketId"`
	Price          float64 `json:"price"`
	ChangeTodayPct float64 `json:"changeTodayPct"`
	Volume24h      float64 `json:"volume24h"`
	NATR5m14       float64 `json:"natr5m14"`
	FetchedAt      int64   `json:"fetchedAt"`
}

// History loads candles for the NATR window.
type History interface {
	Load(ctx context.Context, key history.Key) ([]model.Candle, error)
}

// Config tunes the service.
type Config struct {
	MaxAge     time.Duration
	Timeframe  model.Timeframe
	Bars       int
	NATRPeriod int
	Now        func() time.Time
}

// DefaultConfig returns a 30s max age and NATR(14) over 80 five-minute bars.
func DefaultConfig() Config {
	return Config{
		MaxAge:     30 * time.Second,
		Timeframe:  model.TF5m,
		Bars:       80,
		NATRPeriod: 14,
		Now:        time.Now,
	}
}

type entry struct {
	stats Stats
	at    time.Time
}

// Service memoizes Stats per market for MaxAge. Concurrent misses for the
// same market share one computation.
type Service struct {
	cfg  Config
	hist History

	mu      sync.Mutex
	entries map[string]entry
	tickers map[string]model.Ticker

	group singleflight.Group

	// OnCompute is called after every cache miss (optional).
	OnCompute func(marketID string, err error)
}

// New creates a service over hist.
func New(cfg Config, hist History) *Service {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Service{
		cfg:     cfg,
		hist:    hist,
		entries: make(map[string]entry),
		tickers: make(map[string]model.Ticker),
	}
}

// Observe records the latest ticker for its market.
func (s *Service) Observe(t model.Ticker) {
	s.mu.Lock()
	s.tickers[t.MarketID] = t
	s.mu.Unlock()
}

// Run feeds tickers into Observe until ctx is cancelled or the channel
// closes.
func (s *Service) Run(ctx context.Context, tickers <-chan model.Ticker) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-tickers:
			if !ok {
				return nil
			}
			s.Observe(t)
		}
	}
}

// Get returns the stats for marketID, computing them when the cached entry
// is missing or older than MaxAge.
func (s *Service) Get(ctx context.Context, marketID string) (Stats, error) {
	if _, err := model.ParseMarketID(marketID); err != nil {
		return Stats{}, err
	}

	s.mu.Lock()
	e, ok := s.entries[marketID]
	s.mu.Unlock()
	if ok && s.cfg.Now().Sub(e.at) <= s.cfg.MaxAge {
		return e.stats, nil
	}

	v, err, _ := s.group.Do(marketID, func() (interface{}, error) {
		st, err := s.compute(ctx, marketID)
		if s.OnCompute != nil {
			s.OnCompute(marketID, err)
		}
		if err != nil {
			return Stats{}, err
		}
		s.mu.Lock()
		s.entries[marketID] = entry{stats: st, at: s.cfg.Now()}
		s.mu.Unlock()
		return st, nil
	})
	if err != nil {
		return Stats{}, err
	}
	return v.(Stats), nil
}

func (s *Service) compute(ctx context.Context, marketID string) (Stats, error) {
	candles, err := s.hist.Load(ctx, history.Key{MarketID: marketID, Timeframe: s.cfg.Timeframe, Limit: s.cfg.Bars})
	if err != nil {
		return Stats{}, fmt.Errorf("market stats %s: %w", marketID, err)
	}

	st := Stats{MarketID: marketID, FetchedAt: s.cfg.Now().Unix()}
	st.NATR5m14, _ = indicator.ComputeNATR(candles, s.cfg.NATRPeriod)

	s.mu.Lock()
	t, live := s.tickers[marketID]
	s.mu.Unlock()
	switch {
	case live:
		st.Price, st.ChangeTodayPct, st.Volume24h = t.Price, t.Change24h, t.Volume24h
	case len(candles) > 0:
		st.Price = candles[len(candles)-1].Close
	}
	return st, nil
}
