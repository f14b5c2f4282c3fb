// Package series holds the canonical candle sequence for one
// (market, timeframe) pair. The trailing bar is mutated in place by live
// ticks; older history is only ever prepended by backfill.
package series

import (
	"fmt"
	"math"

	"charting-terminalv1/internal/model"
)

// TickResult describes what ApplyTick did with a tick.
type TickResult int

const (
	TickIgnored  TickResult = iota // empty series or non-finite price
	TickUpdated                    // trailing bar mutated
	TickAppended                   // new trailing bar
	TickStale                      // bucket older than the trailing bar
)

func (r TickResult) String() string {
	switch r {
	case TickUpdated:
		return "updated"
	case TickAppended:
		return "appended"
	case TickStale:
		return "stale"
	default:
		return "ignored"
	}
}

// Series is an ordered candle sequence with strictly increasing unique times.
// Designed for single-goroutine usage (the session loop); no locks.
type Series struct {
	marketID string
	tf       model.Timeframe

	candles []model.Candle
	dirty   bool
	version uint64

	// OnStaleTick is called when a tick is discarded as stale (optional).
	OnStaleTick func(bucket, last int64)
}

// New creates an empty series for the given market and timeframe.
func New(marketID string, tf model.Timeframe) *Series {
	return &Series{marketID: marketID, tf: tf}
}

func (s *Series) MarketID() string           { return s.marketID }
func (s *Series) Timeframe() model.Timeframe { return s.tf }
func (s *Series) Len() int                   { return len(s.candles) }

// Dirty reports whether the series changed since the last MarkClean.
func (s *Series) Dirty() bool { return s.dirty }

// MarkClean clears the dirty flag after an indicator recompute.
func (s *Series) MarkClean() { s.dirty = false }

// Version increments every time the bar count changes.
func (s *Series) Version() uint64 { return s.version }

// Candles returns a copy of the bars.
func (s *Series) Candles() []model.Candle {
	out := make([]model.Candle, len(s.candles))
	copy(out, s.candles)
	return out
}

// First returns the oldest bar.
func (s *Series) First() (model.Candle, bool) {
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	return s.candles[0], true
}

// Last returns the trailing (possibly in-progress) bar.
func (s *Series) Last() (model.Candle, bool) {
	if len(s.candles) == 0 {
		return model.Candle{}, false
	}
	return s.candles[len(s.candles)-1], true
}

// Replace normalizes candles and stores them as the canonical series.
func (s *Series) Replace(candles []model.Candle) error {
	if len(candles) == 0 {
		return fmt.Errorf("%w: %s/%s: empty input", model.ErrInvalidSeries, s.marketID, s.tf)
	}
	norm := Normalize(candles)
	if len(norm) == 0 {
		return fmt.Errorf("%w: %s/%s: no finite candles in %d", model.ErrInvalidSeries, s.marketID, s.tf, len(candles))
	}
	s.candles = norm
	s.touch(true)
	return nil
}

// MergeOlder unions older bars into the series and returns how many new
// bars were added. Existing bars win on time collisions and bars newer than
// the trailing bar are dropped, so a backfill page can never overwrite the
// live bar. Zero means the page brought nothing new.
func (s *Series) MergeOlder(older []model.Candle) int {
	norm := Normalize(older)
	if len(norm) == 0 {
		return 0
	}
	if len(s.candles) == 0 {
		s.candles = norm
		s.touch(true)
		return len(norm)
	}

	last := s.candles[len(s.candles)-1].Time
	existing := make(map[int64]struct{}, len(s.candles))
	for _, c := range s.candles {
		existing[c.Time] = struct{}{}
	}

	fresh := make([]model.Candle, 0, len(norm))
	for _, c := range norm {
		if c.Time > last {
			continue
		}
		if _, ok := existing[c.Time]; ok {
			continue
		}
		fresh = append(fresh, c)
	}
	if len(fresh) == 0 {
		return 0
	}

	// Both slices are sorted; merge them.
	merged := make([]model.Candle, 0, len(s.candles)+len(fresh))
	i, j := 0, 0
	for i < len(fresh) || j < len(s.candles) {
		if j == len(s.candles) || (i < len(fresh) && fresh[i].Time < s.candles[j].Time) {
			merged = append(merged, fresh[i])
			i++
			continue
		}
		merged = append(merged, s.candles[j])
		j++
	}
	s.candles = merged
	s.touch(true)
	return len(fresh)
}

// ApplyTick merges a live trade price into the trailing bar. A tick in the
// trailing bar's bucket updates high/low/close; a tick in a later bucket
// appends a bar opened at the previous close; an earlier bucket is stale and
// discarded.
func (s *Series) ApplyTick(price float64, tickTS, tfSeconds int64) TickResult {
	if math.IsNaN(price) || math.IsInf(price, 0) || len(s.candles) == 0 {
		return TickIgnored
	}
	bucket := model.Bucket(tickTS, tfSeconds)
	last := &s.candles[len(s.candles)-1]

	switch {
	case bucket == last.Time:
		if price > last.High {
			last.High = price
		}
		if price < last.Low {
			last.Low = price
		}
		last.Close = price
		s.touch(false)
		return TickUpdated

	case bucket > last.Time:
		// The new bar opens at the prior close; its range starts at the tick.
		bar := model.Candle{
			Time:  bucket,
			Open:  last.Close,
			High:  price,
			Low:   price,
			Close: price,
		}
		s.candles = append(s.candles, bar)
		s.touch(true)
		return TickAppended

	default:
		if s.OnStaleTick != nil {
			s.OnStaleTick(bucket, last.Time)
		}
		return TickStale
	}
}

func (s *Series) touch(countChanged bool) {
	s.dirty = true
	if countChanged {
		s.version++
	}
}
