package model

import (
	"encoding/json"
	"math"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Time is the bucket start in unix seconds and is
// always a multiple of the timeframe length.
type Candle struct {
	Time   int64   `json:"time"`
	Open   float64 `json:"open"`
	High   float64 `json:"high"`
	Low    float64 `json:"low"`
	Close  float64 `json:"close"`
	Volume float64 `json:"volume"`
}

// Valid reports whether every price and volume field is finite.
func (c Candle) Valid() bool {
	return finite(c.Open) && finite(c.High) && finite(c.Low) && finite(c.Close) && finite(c.Volume)
}

// JSON returns the JSON-encoded candle (ignoring errors for hot-path usage).
func (c Candle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// candleWire accepts both numeric and quoted-decimal encodings, which the
// exchanges behind the history API mix freely.
type candleWire struct {
	Time   decimal.Decimal `json:"time"`
	Open   decimal.Decimal `json:"open"`
	High   decimal.Decimal `json:"high"`
	Low    decimal.Decimal `json:"low"`
	Close  decimal.Decimal `json:"close"`
	Volume decimal.Decimal `json:"volume"`
}

// UnmarshalJSON decodes a candle, coercing the time to whole seconds.
func (c *Candle) UnmarshalJSON(b []byte) error {
	var w candleWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	c.Time = w.Time.Floor().IntPart()
	c.Open = w.Open.InexactFloat64()
	c.High = w.High.InexactFloat64()
	c.Low = w.Low.InexactFloat64()
	c.Close = w.Close.InexactFloat64()
	c.Volume = w.Volume.InexactFloat64()
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
