package model

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Control frame types sent to the ticker stream.
const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameTicker      = "ticker"
)

// ControlFrame is the only client→server message of the ticker stream.
type ControlFrame struct {
	Type    string   `json:"type"`
	Markets []string `json:"markets"`
}

// TickerEvent is the server→client frame as it appears on the wire. Prices
// arrive either as numbers or quoted decimals.
type TickerEvent struct {
	Type       string          `json:"type"`
	MarketID   string          `json:"marketId"`
	Symbol     string          `json:"symbol"`
	Exchange   string          `json:"exchange"`
	MarketType string          `json:"marketType"`
	Price      decimal.Decimal `json:"price"`
	Change24h  decimal.Decimal `json:"change24h"`
	Volume24h  decimal.Decimal `json:"volume24h"`
	Timestamp  int64           `json:"timestamp"`
}

// Ticker is the decoded view of a TickerEvent used by the engine.
// Timestamp is unix seconds.
type Ticker struct {
	MarketID   string  `json:"marketId"`
	Symbol     string  `json:"symbol"`
	Exchange   string  `json:"exchange"`
	MarketType string  `json:"marketType"`
	Price      float64 `json:"price"`
	Change24h  float64 `json:"change24h"`
	Volume24h  float64 `json:"volume24h"`
	Timestamp  int64   `json:"timestamp"`
}

// ParseTickerFrame decodes a raw stream frame. ok is false for frames that
// are not tickers or carry no market ID.
func ParseTickerFrame(raw []byte) (Ticker, bool) {
	var ev TickerEvent
	if err := json.Unmarshal(raw, &ev); err != nil {
		return Ticker{}, false
	}
	if ev.Type != FrameTicker || ev.MarketID == "" {
		return Ticker{}, false
	}
	return ev.Ticker(), true
}

// Ticker converts the wire event. Millisecond timestamps are normalized to
// seconds.
func (ev TickerEvent) Ticker() Ticker {
	ts := ev.Timestamp
	if ts > 1e12 {
		ts /= 1000
	}
	return Ticker{
		MarketID:   ev.MarketID,
		Symbol:     ev.Symbol,
		Exchange:   ev.Exchange,
		MarketType: ev.MarketType,
		Price:      ev.Price.InexactFloat64(),
		Change24h:  ev.Change24h.InexactFloat64(),
		Volume24h:  ev.Volume24h.InexactFloat64(),
		Timestamp:  ts,
	}
}
