package terminal

import (
	"context"
	"fmt"
	"time"

	"charting-terminalv1/internal/drawing"
	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/slot"
)

// ChartConfig returns the config of a grid slot or of the focus chart.
func (s *Session) ChartConfig(chartID string) (slot.Config, error) {
	if fc, ok := s.deps.Slots.FocusChart(); ok && fc.SlotID == chartID {
		return fc, nil
	}
	if c, ok := s.deps.Slots.Slot(chartID); ok {
		return c, nil
	}
	return slot.Config{}, fmt.Errorf("%w: %s", ErrUnknownChart, chartID)
}

// Drawings lists the drawings in the chart's scope.
func (s *Session) Drawings(ctx context.Context, chartID string) ([]drawing.Drawing, error) {
	cfg, err := s.ChartConfig(chartID)
	if err != nil {
		return nil, err
	}
	return s.deps.Drawings.List(ctx, cfg.DrawingStateKey)
}

// AddDrawing stores a new drawing in the chart's drawing scope.
func (s *Session) AddDrawing(ctx context.Context, chartID string, t drawing.Type, points []drawing.Point) (drawing.Drawing, error) {
	cfg, err := s.ChartConfig(chartID)
	if err != nil {
		return drawing.Drawing{}, err
	}
	d, err := drawing.New(t, points, s.cfg.Now())
	if err != nil {
		return drawing.Drawing{}, err
	}
	return d, s.deps.Drawings.Add(ctx, cfg.DrawingStateKey, d)
}

// RemoveDrawing deletes a drawing from the chart's scope.
func (s *Session) RemoveDrawing(ctx context.Context, chartID, id string) (bool, error) {
	cfg, err := s.ChartConfig(chartID)
	if err != nil {
		return false, err
	}
	return s.deps.Drawings.Remove(ctx, cfg.DrawingStateKey, id)
}

// ClearDrawings deletes every drawing in the chart's scope.
func (s *Session) ClearDrawings(ctx context.Context, chartID string) error {
	cfg, err := s.ChartConfig(chartID)
	if err != nil {
		return err
	}
	return s.deps.Drawings.Clear(ctx, cfg.DrawingStateKey)
}

// HitTest finds the topmost drawing near (px, py) using the renderer's
// viewport mapping. Hidden drawings are never hit.
func (s *Session) HitTest(ctx context.Context, chartID string, px, py float64, vp drawing.Viewport) (drawing.Drawing, bool, error) {
	cfg, err := s.ChartConfig(chartID)
	if err != nil {
		return drawing.Drawing{}, false, err
	}
	if !cfg.UI.ShowDrawings {
		return drawing.Drawing{}, false, nil
	}
	return s.deps.Drawings.HitTest(ctx, cfg.DrawingStateKey, px, py, vp.TimeToX, vp.PriceToY, drawing.DefaultThreshold)
}

// ToggleWatchlist flips a market's watchlist membership and refreshes the
// watchlisted flag on every slot showing it.
func (s *Session) ToggleWatchlist(ctx context.Context, marketID string) (bool, error) {
	if marketID == "" {
		return false, model.ErrInvalidMarketID
	}
	// Membership changes in memory even when the write fails.
	on, err := s.deps.Watchlist.Toggle(ctx, marketID)
	s.deps.Slots.SetWatchlisted(marketID, on)
	s.publish(Update{Kind: UpdateWatchlist, Watchlist: s.deps.Watchlist.List()})
	return on, err
}

// persistTimeout bounds one slot state write.
const persistTimeout = 5 * time.Second
