package indicator

import "charting-terminalv1/internal/model"

// Bands is a Bollinger Bands overlay. The three slices share timestamps.
type Bands struct {
	Upper  []Point `json:"upper"`
	Middle []Point `json:"middle"`
	Lower  []Point `json:"lower"`
}

// ComputeEMA returns one point per candle from index period-1 onward.
// Emits nothing when len(candles) < period.
func ComputeEMA(candles []model.Candle, period int) []Point {
	if period <= 0 || len(candles) < period {
		return nil
	}
	ema := NewEMA(period)
	out := make([]Point, 0, len(candles)-period+1)
	for _, c := range candles {
		ema.Update(c.Close)
		if ema.Ready() {
			out = append(out, Point{Time: c.Time, Value: ema.Value()})
		}
	}
	return out
}

// ComputeSMA returns the sliding-window mean of closes.
func ComputeSMA(candles []model.Candle, period int) []Point {
	if period <= 0 || len(candles) < period {
		return nil
	}
	sma := NewSMA(period)
	out := make([]Point, 0, len(candles)-period+1)
	for _, c := range candles {
		sma.Update(c.Close)
		if sma.Ready() {
			out = append(out, Point{Time: c.Time, Value: sma.Value()})
		}
	}
	return out
}

// ComputeBollinger returns mean ± multiplier·stddev over a sliding window,
// using population variance from running sums.
func ComputeBollinger(candles []model.Candle, period int, multiplier float64) Bands {
	if period <= 0 || len(candles) < period {
		return Bands{}
	}
	n := len(candles) - period + 1
	b := Bands{
		Upper:  make([]Point, 0, n),
		Middle: make([]Point, 0, n),
		Lower:  make([]Point, 0, n),
	}
	sma := NewSMA(period)
	for _, c := range candles {
		sma.Update(c.Close)
		if !sma.Ready() {
			continue
		}
		mean := sma.Value()
		dev := multiplier * sma.StdDev()
		b.Upper = append(b.Upper, Point{Time: c.Time, Value: mean + dev})
		b.Middle = append(b.Middle, Point{Time: c.Time, Value: mean})
		b.Lower = append(b.Lower, Point{Time: c.Time, Value: mean - dev})
	}
	return b
}

// ComputeRSI returns Wilder RSI points starting at index period. Needs at
// least period+1 candles.
func ComputeRSI(candles []model.Candle, period int) []Point {
	if period <= 0 || len(candles) < period+1 {
		return nil
	}
	rsi := NewRSI(period)
	out := make([]Point, 0, len(candles)-period)
	for _, c := range candles {
		rsi.Update(c.Close)
		if rsi.Ready() {
			out = append(out, Point{Time: c.Time, Value: rsi.Value()})
		}
	}
	return out
}
