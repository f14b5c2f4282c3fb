package gateway

import (
	"charting-terminalv1/internal/backfill"
	"charting-terminalv1/internal/drawing"
	"charting-terminalv1/internal/model"
)

// Command is a renderer request, sent over the WebSocket or POSTed to
// /api/command. Only the fields its Type needs are read.
type Command struct {
	Type  string `json:"type"`
	ReqID string `json:"reqId,omitempty"`
	Ping  int64  `json:"ping,omitempty"`

	ChartID   string          `json:"chartId,omitempty"`
	MarketID  string          `json:"marketId,omitempty"`
	Layout    string          `json:"layout,omitempty"`
	Page      int             `json:"page,omitempty"`
	Timeframe model.Timeframe `json:"timeframe,omitempty"`
	Indicator string          `json:"indicator,omitempty"`
	Show      bool            `json:"show,omitempty"`

	Range *backfill.Range `json:"range,omitempty"`

	DrawingType drawing.Type      `json:"drawingType,omitempty"`
	Points      []drawing.Point   `json:"points,omitempty"`
	DrawingID   string            `json:"drawingId,omitempty"`
	X           float64           `json:"x,omitempty"`
	Y           float64           `json:"y,omitempty"`
	Viewport    *drawing.Viewport `json:"viewport,omitempty"`
}

// Ack answers one Command.
type Ack struct {
	Type   string      `json:"type"`
	ReqID  string      `json:"reqId,omitempty"`
	OK     bool        `json:"ok"`
	Error  string      `json:"error,omitempty"`
	Result interface{} `json:"result,omitempty"`

	err error
}

// TimeframeInfo is the REST response item for /api/timeframes.
type TimeframeInfo struct {
	Timeframe model.Timeframe `json:"timeframe"`
	Seconds   int64           `json:"seconds"`
}
