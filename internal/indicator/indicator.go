// Package indicator computes technical indicator overlays over a candle
// series.
//
// The incremental cores (EMA, SMA, SMMA, RSI) consume one close at a time in
// O(1). The Compute* functions drive those cores over a whole series and are
// pure: no mutation of the input, identical output for identical input.
// Insufficient data yields an empty result, never an error.
package indicator

// Indicator is the interface for the incremental indicator cores.
type Indicator interface {
	// Name returns the indicator name (e.g., "SMA", "EMA").
	Name() string

	// Update feeds the next value (usually a close) and recalculates.
	Update(value float64)

	// Value returns the current calculated value. Returns 0 if not enough data.
	Value() float64

	// Ready returns true when enough data has been accumulated.
	Ready() bool
}

// Point is one overlay sample. Time always exists in the source series.
type Point struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
}

// HistogramPoint is a Point carrying a sign-keyed color.
type HistogramPoint struct {
	Time  int64   `json:"time"`
	Value float64 `json:"value"`
	Color string  `json:"color"`
}

// Histogram colors keyed by sign.
const (
	ColorPositive = "rgba(34, 197, 94, 0.8)"
	ColorNegative = "rgba(239, 68, 68, 0.8)"
)

// HistogramColor returns the color for a histogram value; zero counts as positive.
func HistogramColor(v float64) string {
	if v >= 0 {
		return ColorPositive
	}
	return ColorNegative
}
