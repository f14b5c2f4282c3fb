package terminal

import (
	"charting-terminalv1/internal/backfill"
	"charting-terminalv1/internal/drawing"
	"charting-terminalv1/internal/indicator"
	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/slot"
)

// Status is a chart's load state.
type Status string

const (
	StatusLoading Status = "loading"
	StatusReady   Status = "ready"
	StatusError   Status = "error"
)

// UpdateKind names what an Update carries.
type UpdateKind string

const (
	UpdateSlots     UpdateKind = "slots"     // State, Visible
	UpdateStatus    UpdateKind = "status"    // ChartID, Status, Error
	UpdateSeries    UpdateKind = "series"    // ChartID, Candles, Range, Exhausted
	UpdateBar       UpdateKind = "bar"       // ChartID, Bar
	UpdateOverlay   UpdateKind = "overlay"   // ChartID, Overlay
	UpdateTicker    UpdateKind = "ticker"    // Ticker
	UpdateDrawings  UpdateKind = "drawings"  // DrawingKey, Drawings
	UpdateOnline    UpdateKind = "online"    // Online
	UpdateWatchlist UpdateKind = "watchlist" // Watchlist
)

// Update is pushed to observers (renderers) as session state changes.
type Update struct {
	Kind    UpdateKind `json:"kind"`
	ChartID string     `json:"chartId,omitempty"`

	MarketID  string          `json:"marketId,omitempty"`
	Timeframe model.Timeframe `json:"timeframe,omitempty"`
	Status    Status          `json:"status,omitempty"`
	Error     string          `json:"error,omitempty"`

	Candles   []model.Candle     `json:"candles,omitempty"`
	Bar       *model.Candle      `json:"bar,omitempty"`
	Range     *backfill.Range    `json:"range,omitempty"`
	Exhausted bool               `json:"exhausted,omitempty"`
	Overlay   *indicator.Overlay `json:"overlay,omitempty"`
	Ticker    *model.Ticker      `json:"ticker,omitempty"`

	DrawingKey string            `json:"drawingKey,omitempty"`
	Drawings   []drawing.Drawing `json:"drawings,omitempty"`

	Online    *bool       `json:"online,omitempty"`
	State     *slot.State `json:"state,omitempty"`
	Visible   []string    `json:"visible,omitempty"`
	Watchlist []string    `json:"watchlist,omitempty"`
}

// ChartView is one chart in a Snapshot.
type ChartView struct {
	ID        string            `json:"chartId"`
	Config    slot.Config       `json:"config"`
	Status    Status            `json:"status"`
	Error     string            `json:"error,omitempty"`
	Candles   []model.Candle    `json:"candles"`
	Overlay   indicator.Overlay `json:"overlay"`
	Range     *backfill.Range   `json:"range,omitempty"`
	Exhausted bool              `json:"exhausted"`
	Drawings  []drawing.Drawing `json:"drawings,omitempty"`
}

// Snapshot is the full session state a renderer needs on connect.
type Snapshot struct {
	State     slot.State  `json:"state"`
	Visible   []string    `json:"visible"`
	Charts    []ChartView `json:"charts"`
	Online    bool        `json:"online"`
	Watchlist []string    `json:"watchlist"`
}
