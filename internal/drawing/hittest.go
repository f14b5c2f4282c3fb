package drawing

import "math"

// DefaultThreshold is the hit radius in pixels.
const DefaultThreshold = 6.0

// rayExtent is the x the ray is extended to; any value past the right edge of
// a realistic viewport works.
const rayExtent = 1e9

// CoordFunc maps a chart coordinate to a screen coordinate. ok is false when
// the value cannot be placed (e.g. a time outside the loaded series).
type (
	TimeToX  func(t int64) (x float64, ok bool)
	PriceToY func(p float64) (y float64, ok bool)
)

// HitTest returns the most recently added drawing within threshold pixels of
// (px, py). drawings are in insertion order; the scan runs newest-first.
// Rectangles are hit on their edges only.
func HitTest(drawings []Drawing, px, py float64, timeToX TimeToX, priceToY PriceToY, threshold float64) (Drawing, bool) {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	for i := len(drawings) - 1; i >= 0; i-- {
		d := drawings[i]
		if hit(d, px, py, timeToX, priceToY, threshold) {
			return d, true
		}
	}
	return Drawing{}, false
}

func hit(d Drawing, px, py float64, timeToX TimeToX, priceToY PriceToY, threshold float64) bool {
	if d.Validate() != nil {
		return false
	}
	pts := make([][2]float64, len(d.Points))
	for i, p := range d.Points {
		x, ok := timeToX(p.Time)
		if !ok {
			return false
		}
		y, ok := priceToY(p.Price)
		if !ok {
			return false
		}
		pts[i] = [2]float64{x, y}
	}

	switch d.Type {
	case TypeRay:
		a := pts[0]
		return segmentDistance(px, py, a[0], a[1], rayExtent, a[1]) <= threshold
	case TypeTrendline:
		a, b := pts[0], pts[1]
		return segmentDistance(px, py, a[0], a[1], b[0], b[1]) <= threshold
	case TypeRectangle:
		x1, x2 := math.Min(pts[0][0], pts[1][0]), math.Max(pts[0][0], pts[1][0])
		y1, y2 := math.Min(pts[0][1], pts[1][1]), math.Max(pts[0][1], pts[1][1])
		edges := [4][4]float64{
			{x1, y1, x2, y1},
			{x2, y1, x2, y2},
			{x2, y2, x1, y2},
			{x1, y2, x1, y1},
		}
		for _, e := range edges {
			if segmentDistance(px, py, e[0], e[1], e[2], e[3]) <= threshold {
				return true
			}
		}
	}
	return false
}

// segmentDistance is the distance from p to the closed segment a-b.
func segmentDistance(px, py, ax, ay, bx, by float64) float64 {
	dx, dy := bx-ax, by-ay
	lenSq := dx*dx + dy*dy
	if lenSq == 0 {
		return math.Hypot(px-ax, py-ay)
	}
	t := ((px-ax)*dx + (py-ay)*dy) / lenSq
	t = math.Max(0, math.Min(1, t))
	return math.Hypot(px-(ax+t*dx), py-(ay+t*dy))
}
