// Package drawing holds user annotations per (market, timeframe) scope and
// hit-tests them in screen space.
package drawing

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"charting-terminalv1/internal/model"
)

// Type is the drawing tool that produced an annotation.
type Type string

const (
	TypeTrendline Type = "trendline"
	TypeRay       Type = "ray"
	TypeRectangle Type = "rectangle"
)

// Valid reports whether t is a known drawing type.
func (t Type) Valid() bool {
	switch t {
	case TypeTrendline, TypeRay, TypeRectangle:
		return true
	}
	return false
}

// pointCount is the number of anchors each type carries.
func (t Type) pointCount() int {
	if t == TypeRay {
		return 1
	}
	return 2
}

// Point is an anchor in chart coordinates.
type Point struct {
	Time  int64   `json:"time"`
	Price float64 `json:"price"`
}

// Drawing is one persisted annotation.
type Drawing struct {
	ID        string  `json:"id"`
	Type      Type    `json:"type"`
	Points    []Point `json:"points"`
	CreatedAt int64   `json:"createdAt"` // unix ms
}

// New creates a drawing with a fresh ID.
func New(t Type, points []Point, now time.Time) (Drawing, error) {
	d := Drawing{
		ID:        uuid.NewString(),
		Type:      t,
		Points:    append([]Point(nil), points...),
		CreatedAt: now.UnixMilli(),
	}
	if err := d.Validate(); err != nil {
		return Drawing{}, err
	}
	return d, nil
}

// Validate checks the type and the number of anchors.
func (d Drawing) Validate() error {
	if d.ID == "" {
		return fmt.Errorf("drawing: empty id")
	}
	if !d.Type.Valid() {
		return fmt.Errorf("drawing %s: unknown type %q", d.ID, d.Type)
	}
	if want := d.Type.pointCount(); len(d.Points) != want {
		return fmt.Errorf("drawing %s: %s needs %d points, got %d", d.ID, d.Type, want, len(d.Points))
	}
	return nil
}

// StateKey is the scope drawings are grouped under. Changing the timeframe
// changes the visible set.
func StateKey(marketID string, tf model.Timeframe) string {
	return marketID + ":" + string(tf)
}
