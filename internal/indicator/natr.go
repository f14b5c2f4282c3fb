package indicator

import (
	"math"

	"charting-terminalv1/internal/model"
)

// ComputeNATR returns the normalized average true range of the series: the
// Wilder ATR over period bars as a percentage of the last close. ok is false
// with fewer than period+1 candles or a zero last close.
func ComputeNATR(candles []model.Candle, period int) (float64, bool) {
	if period <= 0 || len(candles) < period+1 {
		return 0, false
	}
	atr := NewSMMA(period)
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1].Close
		tr := math.Max(c.High-c.Low, math.Max(math.Abs(c.High-prev), math.Abs(c.Low-prev)))
		atr.Update(tr)
	}
	last := candles[len(candles)-1].Close
	if !atr.Ready() || last == 0 {
		return 0, false
	}
	return atr.Value() / last * 100, true
}
