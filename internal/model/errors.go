package model

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidSeries is returned for empty or malformed candle input.
	ErrInvalidSeries = errors.New("invalid candle series")

	// ErrStreamUnavailable is returned when the ticker stream cannot be reached.
	ErrStreamUnavailable = errors.New("ticker stream unavailable")

	ErrUnknownTimeframe = errors.New("unknown timeframe")
	ErrInvalidMarketID  = errors.New("invalid market id")
	ErrNotFound         = errors.New("not found")
)

// FetchError is a failed history request. It is surfaced as a per-slot error
// state and never affects other slots.
type FetchError struct {
	Op        string
	MarketID  string
	Timeframe Timeframe
	Status    int
	Err       error
	Retriable bool
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s %s/%s: status %d: %v", e.Op, e.MarketID, e.Timeframe, e.Status, e.Err)
	}
	return fmt.Sprintf("%s %s/%s: %v", e.Op, e.MarketID, e.Timeframe, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// IsRetriable reports whether err is a FetchError marked retriable.
func IsRetriable(err error) bool {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Retriable
	}
	return false
}
