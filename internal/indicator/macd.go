package indicator

import "charting-terminalv1/internal/model"

// MACD holds the three MACD outputs.
type MACD struct {
	MACD      []Point          `json:"macd"`
	Signal    []Point          `json:"signal"`
	Histogram []HistogramPoint `json:"histogram"`
}

// ComputeMACD returns EMA(fast) − EMA(slow) aligned by time, its
// EMA(signal) line and the histogram between them. Returns an empty result
// unless there are at least slow+signal candles.
func ComputeMACD(candles []model.Candle, fast, slow, signal int) MACD {
	if fast <= 0 || slow <= 0 || signal <= 0 || len(candles) < slow+signal {
		return MACD{}
	}

	fastPts := ComputeEMA(candles, fast)
	slowPts := ComputeEMA(candles, slow)
	slowByTime := make(map[int64]float64, len(slowPts))
	for _, p := range slowPts {
		slowByTime[p.Time] = p.Value
	}

	line := make([]Point, 0, len(slowPts))
	for _, p := range fastPts {
		sv, ok := slowByTime[p.Time]
		if !ok {
			continue
		}
		line = append(line, Point{Time: p.Time, Value: p.Value - sv})
	}

	// Signal is an EMA over the macd line treated as a close series.
	sig := NewEMA(signal)
	out := MACD{MACD: line}
	for _, p := range line {
		sig.Update(p.Value)
		if !sig.Ready() {
			continue
		}
		sv := sig.Value()
		h := p.Value - sv
		out.Signal = append(out.Signal, Point{Time: p.Time, Value: sv})
		out.Histogram = append(out.Histogram, HistogramPoint{Time: p.Time, Value: h, Color: HistogramColor(h)})
	}
	return out
}
