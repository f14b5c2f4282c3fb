package gateway

import (
	"context"
	"errors"
	"fmt"
	"time"

	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/slot"
)

var errBadCommand = errors.New("bad command")

// Execute runs one renderer command against the slot orchestrator or the
// session. Slot mutations reach the session through orchestrator events.
func (h *Hub) Execute(ctx context.Context, cmd Command) Ack {
	start := time.Now()
	result, err := h.execute(ctx, cmd)
	if h.Latency != nil {
		h.Latency.Observe(time.Since(start))
	}
	if h.OnCommand != nil {
		h.OnCommand(cmd.Type, err)
	}

	ack := Ack{Type: "ack", ReqID: cmd.ReqID, OK: err == nil, Result: result, err: err}
	if err != nil {
		ack.Error = err.Error()
	}
	return ack
}

func (h *Hub) execute(ctx context.Context, cmd Command) (interface{}, error) {
	s, o := h.Session, h.Slots

	switch cmd.Type {
	case "snapshot":
		return s.Snapshot(ctx)

	// Grid
	case "set_layout":
		l, err := slot.ParseLayout(cmd.Layout)
		if err != nil {
			return nil, err
		}
		return nil, o.SetLayout(l)
	case "set_page":
		o.SetPage(cmd.Page)
		return nil, nil
	case "next_page":
		o.NextPage()
		return nil, nil
	case "prev_page":
		o.PrevPage()
		return nil, nil
	case "set_market":
		m, err := h.resolveMarket(cmd.MarketID)
		if err != nil {
			return nil, err
		}
		return nil, o.SetSlotMarket(cmd.ChartID, m)
	case "select":
		return nil, o.Select(cmd.ChartID)

	// Timeframes
	case "set_timeframe":
		return nil, o.SetGlobalTimeframe(cmd.Timeframe)
	case "set_override":
		return nil, o.SetTimeframeOverride(cmd.ChartID, cmd.Timeframe)
	case "set_focus_timeframe":
		return nil, o.SetFocusTimeframe(cmd.MarketID, cmd.Timeframe)

	// Per-chart UI
	case "toggle_indicator":
		return o.ToggleIndicator(cmd.ChartID, cmd.Indicator)
	case "show_drawings":
		return nil, o.SetShowDrawings(cmd.ChartID, cmd.Show)

	// Focus
	case "focus_market":
		return nil, o.OpenFocusMarket(cmd.MarketID)
	case "focus_slot":
		return nil, o.OpenFocusSlot(cmd.ChartID)
	case "close_focus":
		o.CloseFocus()
		return nil, nil

	// Series
	case "viewport":
		if cmd.Range == nil {
			return nil, fmt.Errorf("%w: viewport needs range", errBadCommand)
		}
		return nil, s.SetViewport(ctx, cmd.ChartID, *cmd.Range)
	case "reload":
		return nil, s.Reload(ctx, cmd.ChartID)

	// Drawings
	case "list_drawings":
		return s.Drawings(ctx, cmd.ChartID)
	case "add_drawing":
		return s.AddDrawing(ctx, cmd.ChartID, cmd.DrawingType, cmd.Points)
	case "remove_drawing":
		return s.RemoveDrawing(ctx, cmd.ChartID, cmd.DrawingID)
	case "clear_drawings":
		return nil, s.ClearDrawings(ctx, cmd.ChartID)
	case "hit_test":
		if cmd.Viewport == nil {
			return nil, fmt.Errorf("%w: hit_test needs viewport", errBadCommand)
		}
		d, ok, err := s.HitTest(ctx, cmd.ChartID, cmd.X, cmd.Y, *cmd.Viewport)
		if err != nil || !ok {
			return nil, err
		}
		return d, nil

	// Watchlist
	case "toggle_watchlist":
		return s.ToggleWatchlist(ctx, cmd.MarketID)
	}
	return nil, fmt.Errorf("%w: unknown type %q", errBadCommand, cmd.Type)
}

// resolveMarket prefers the universe entry so symbol and exchange are
// filled in, and falls back to parsing the ID.
func (h *Hub) resolveMarket(id string) (model.Market, error) {
	for _, m := range h.Slots.Universe() {
		if m.MarketID == id {
			return m, nil
		}
	}
	return model.ParseMarketID(id)
}
