package series

import (
	"sort"

	"charting-terminalv1/internal/model"
)

// Normalize drops candles with non-finite values, sorts ascending by time and
// collapses duplicate times keeping the last-seen value. The input is not
// modified.
func Normalize(in []model.Candle) []model.Candle {
	byTime := make(map[int64]model.Candle, len(in))
	for _, c := range in {
		if !c.Valid() {
			continue
		}
		byTime[c.Time] = c
	}
	out := make([]model.Candle, 0, len(byTime))
	for _, c := range byTime {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out
}
