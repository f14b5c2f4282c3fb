package model

import (
	"fmt"
	"strings"
)

// Market is immutable reference data for one tradable instrument. The core
// only ever uses MarketID as an opaque lookup key.
type Market struct {
	MarketID   string `json:"marketId"`
	Symbol     string `json:"symbol"`
	Base       string `json:"base"`
	Quote      string `json:"quote"`
	Exchange   string `json:"exchange"`
	MarketType string `json:"marketType"`
}

var exchangeTags = map[string]string{"BI": "binance", "BY": "bybit"}
var marketTypeTags = map[string]string{"SPOT": "spot", "PERP": "perp"}

// ParseMarketID splits a market ID of the form "BI|BY:SPOT|PERP:SYMBOL" into
// a Market with exchange, market type and symbol filled in.
func ParseMarketID(id string) (Market, error) {
	parts := strings.Split(id, ":")
	if len(parts) != 3 {
		return Market{}, fmt.Errorf("%w: %q", ErrInvalidMarketID, id)
	}
	exchange, ok := exchangeTags[strings.ToUpper(parts[0])]
	if !ok {
		return Market{}, fmt.Errorf("%w: unknown exchange tag %q", ErrInvalidMarketID, parts[0])
	}
	marketType, ok := marketTypeTags[strings.ToUpper(parts[1])]
	if !ok {
		return Market{}, fmt.Errorf("%w: unknown market type %q", ErrInvalidMarketID, parts[1])
	}
	symbol := strings.ToUpper(parts[2])
	if symbol == "" {
		return Market{}, fmt.Errorf("%w: empty symbol", ErrInvalidMarketID)
	}
	return Market{
		MarketID:   strings.ToUpper(parts[0]) + ":" + strings.ToUpper(parts[1]) + ":" + symbol,
		Symbol:     symbol,
		Exchange:   exchange,
		MarketType: marketType,
	}, nil
}

// ID builds the canonical market ID from exchange, market type and symbol.
// Returns "" when the exchange or market type has no tag.
func (m Market) ID() string {
	var ex, mt string
	for tag, name := range exchangeTags {
		if strings.EqualFold(name, m.Exchange) {
			ex = tag
		}
	}
	for tag, name := range marketTypeTags {
		if strings.EqualFold(name, m.MarketType) {
			mt = tag
		}
	}
	if ex == "" || mt == "" || m.Symbol == "" {
		return ""
	}
	return ex + ":" + mt + ":" + strings.ToUpper(m.Symbol)
}
