package indicator

import (
	"math"

	"charting-terminalv1/internal/model"
)

// minPivotBars is the fewest closed bars a pivot window may have.
const minPivotBars = 5

// PivotLevels are classic floor pivots over a closed window. From and To are
// the times of the first and last bar in that window.
type PivotLevels struct {
	From  int64   `json:"from"`
	To    int64   `json:"to"`
	Pivot float64 `json:"pivot"`
	R1    float64 `json:"r1"`
	S1    float64 `json:"s1"`
	R2    float64 `json:"r2"`
	S2    float64 `json:"s2"`
}

// ComputePivots computes levels over the most recent lookback closed bars.
// The last candle is the in-progress bar and is excluded. ok is false when
// fewer than five closed bars are available.
func ComputePivots(candles []model.Candle, lookback int) (PivotLevels, bool) {
	if len(candles) < 2 {
		return PivotLevels{}, false
	}
	closed := candles[:len(candles)-1]
	if lookback > 0 && len(closed) > lookback {
		closed = closed[len(closed)-lookback:]
	}
	if len(closed) < minPivotBars {
		return PivotLevels{}, false
	}

	high, low := math.Inf(-1), math.Inf(1)
	for _, c := range closed {
		high = math.Max(high, c.High)
		low = math.Min(low, c.Low)
	}
	last := closed[len(closed)-1]
	p := (high + low + last.Close) / 3
	rng := high - low

	return PivotLevels{
		From:  closed[0].Time,
		To:    last.Time,
		Pivot: p,
		R1:    2*p - low,
		S1:    2*p - high,
		R2:    p + rng,
		S2:    p - rng,
	}, true
}
