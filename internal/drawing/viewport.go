package drawing

// Viewport is the linear time/price to pixel mapping a renderer reports with
// a hit-test request.
type Viewport struct {
	FromTime int64   `json:"fromTime"`
	ToTime   int64   `json:"toTime"`
	Width    float64 `json:"width"`
	MinPrice float64 `json:"minPrice"`
	MaxPrice float64 `json:"maxPrice"`
	Height   float64 `json:"height"`
}

// Valid reports whether both axes have a non-empty span.
func (v Viewport) Valid() bool {
	return v.ToTime > v.FromTime && v.MaxPrice > v.MinPrice && v.Width > 0 && v.Height > 0
}

// TimeToX maps time linearly onto [0, Width]. Times outside the span still
// map; only an invalid viewport fails.
func (v Viewport) TimeToX(t int64) (float64, bool) {
	if !v.Valid() {
		return 0, false
	}
	return float64(t-v.FromTime) / float64(v.ToTime-v.FromTime) * v.Width, true
}

// PriceToY maps price onto [Height, 0]; higher prices are nearer the top.
func (v Viewport) PriceToY(p float64) (float64, bool) {
	if !v.Valid() {
		return 0, false
	}
	return (v.MaxPrice - p) / (v.MaxPrice - v.MinPrice) * v.Height, true
}
