package model

import "context"

// ── Ports ──
// These interfaces decouple the engine from its external collaborators
// (history API, ticker stream, key-value persistence).

// CandleFetcher is the history API. With endTimeExclusive > 0 it returns up
// to limit bars strictly before that time, otherwise the most recent limit
// bars. Results are ascending by time.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, marketID string, tf Timeframe, limit int, endTimeExclusive int64) ([]Candle, error)
}

// FrameSender writes control frames to the ticker stream.
type FrameSender interface {
	Send(ctx context.Context, frame ControlFrame) error
}

// KV is the key-value persistence surface for drawings, watchlist and slot
// state. Get returns ErrNotFound for missing keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}
