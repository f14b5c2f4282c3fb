package model

import "fmt"

// Timeframe is the bucket width of a candle series, e.g. "1m" or "1h".
type Timeframe string

const (
	TF1m  Timeframe = "1m"
	TF5m  Timeframe = "5m"
	TF15m Timeframe = "15m"
	TF1h  Timeframe = "1h"
	TF4h  Timeframe = "4h"
	TF1D  Timeframe = "1D"
	TF1W  Timeframe = "1W"
)

var timeframeSeconds = map[Timeframe]int64{
	TF1m:  60,
	TF5m:  300,
	TF15m: 900,
	TF1h:  3600,
	TF4h:  14400,
	TF1D:  86400,
	TF1W:  604800,
}

// AllTimeframes lists the supported timeframes from shortest to longest.
var AllTimeframes = []Timeframe{TF1m, TF5m, TF15m, TF1h, TF4h, TF1D, TF1W}

// ParseTimeframe validates s as a supported timeframe.
func ParseTimeframe(s string) (Timeframe, error) {
	tf := Timeframe(s)
	if _, ok := timeframeSeconds[tf]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownTimeframe, s)
	}
	return tf, nil
}

// Seconds returns the bucket length. Unknown timeframes return 0.
func (tf Timeframe) Seconds() int64 { return timeframeSeconds[tf] }

// Valid reports whether tf is one of the supported timeframes.
func (tf Timeframe) Valid() bool { return tf.Seconds() > 0 }

func (tf Timeframe) String() string { return string(tf) }

// Bucket returns the start of the bucket containing ts for a bucket length
// of tfSeconds. Floors toward negative infinity.
func Bucket(ts, tfSeconds int64) int64 {
	if tfSeconds <= 0 {
		return ts
	}
	b := ts - ts%tfSeconds
	if ts < 0 && ts%tfSeconds != 0 {
		b -= tfSeconds
	}
	return b
}
