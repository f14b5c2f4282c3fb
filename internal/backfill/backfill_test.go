package backfill

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/series"
)

const tf = int64(3600)

func seriesFrom(first int64, n int) *series.Series {
	s := series.New("BI:SPOT:BTCUSDT", model.TF1h)
	cs := make([]model.Candle, n)
	for i := range cs {
		cs[i] = model.Candle{Time: first + int64(i)*tf, Open: 1, High: 1, Low: 1, Close: 1}
	}
	_ = s.Replace(cs)
	return s
}

func page(first int64, n int) []model.Candle {
	cs := make([]model.Candle, n)
	for i := range cs {
		cs[i] = model.Candle{Time: first + int64(i)*tf, Open: 2, High: 2, Low: 2, Close: 2}
	}
	return cs
}

var t0 = time.Unix(1_700_000_000, 0)

func TestBegin_ComputesEndTimeExclusive(t *testing.T) {
	c := NewController(DefaultConfig())
	var seen []Request
	c.OnRequest = func(r Request) { seen = append(seen, r) }
	s := seriesFrom(100*tf, 300)

	req, ok := c.Begin(s, Range{From: 10, To: 80}, t0)
	require.True(t, ok)
	assert.Equal(t, 100*tf-1, req.EndTimeExclusive)
	assert.Equal(t, 500, req.Limit)
	assert.Equal(t, model.TF1h, req.Timeframe)
	assert.True(t, c.InFlight())
	assert.Len(t, seen, 1)
}

func TestBegin_Guards(t *testing.T) {
	s := seriesFrom(100*tf, 300)

	c := NewController(DefaultConfig())
	_, ok := c.Begin(s, Range{From: 120, To: 200}, t0)
	assert.False(t, ok, "far from the edge")

	_, ok = c.Begin(s, Range{From: 10, To: 80}, t0)
	require.True(t, ok)
	_, ok = c.Begin(s, Range{From: 10, To: 80}, t0.Add(time.Second))
	assert.False(t, ok, "in flight")

	c.Fail(errors.New("boom"))
	_, ok = c.Begin(s, Range{From: 10, To: 80}, t0.Add(100*time.Millisecond))
	assert.False(t, ok, "debounced")
	assert.Equal(t, 150*time.Millisecond, c.RetryIn(t0.Add(100*time.Millisecond)))

	_, ok = c.Begin(s, Range{From: 10, To: 80}, t0.Add(250*time.Millisecond))
	assert.True(t, ok, "debounce elapsed")

	short := seriesFrom(100*tf, 19)
	_, ok = NewController(DefaultConfig()).Begin(short, Range{From: 0, To: 19}, t0)
	assert.False(t, ok, "series below MinBars")
}

func TestComplete_EmptyPageExhausts(t *testing.T) {
	c := NewController(DefaultConfig())
	var exhausted int
	c.OnExhausted = func(string, model.Timeframe) { exhausted++ }
	s := seriesFrom(100*tf, 300)

	_, ok := c.Begin(s, Range{From: 5, To: 70}, t0)
	require.True(t, ok)
	res := c.Complete(s, nil, Range{From: 5, To: 70})
	assert.True(t, res.Exhausted)
	assert.True(t, c.Exhausted())
	assert.False(t, c.InFlight())
	assert.Equal(t, 1, exhausted)

	// No further request, however long we wait.
	_, ok = c.Begin(s, Range{From: 0, To: 70}, t0.Add(time.Hour))
	assert.False(t, ok)
}

func TestComplete_RepeatedPageExhausts(t *testing.T) {
	c := NewController(DefaultConfig())
	s := seriesFrom(100*tf, 300)
	older := page(50*tf, 50)

	_, _ = c.Begin(s, Range{From: 5, To: 70}, t0)
	res := c.Complete(s, older, Range{From: 5, To: 70})
	require.Equal(t, 50, res.Added)
	require.False(t, res.Exhausted)

	// Upstream ignores endTime and returns the same page again.
	_, ok := c.Begin(s, Range{From: 5, To: 70}, t0.Add(time.Second))
	require.True(t, ok)
	res = c.Complete(s, older, Range{From: 5, To: 70})
	assert.True(t, res.Exhausted)
	assert.Equal(t, 0, res.Added)
	assert.Equal(t, 350, s.Len())
}

func TestComplete_ShiftsRangeAndRetriggers(t *testing.T) {
	c := NewController(DefaultConfig())
	s := seriesFrom(1000*tf, 300)

	_, _ = c.Begin(s, Range{From: 2.5, To: 80}, t0)
	res := c.Complete(s, page(990*tf, 10), Range{From: 2.5, To: 80})
	assert.Equal(t, 10, res.Added)
	assert.Equal(t, Range{From: 12.5, To: 90}, res.Range)
	assert.True(t, res.Retrigger, "still within 60 bars of the edge")

	_, _ = c.Begin(s, res.Range, t0.Add(time.Second))
	res = c.Complete(s, page(890*tf, 100), res.Range)
	assert.Equal(t, 100, res.Added)
	assert.Equal(t, Range{From: 112.5, To: 190}, res.Range)
	assert.False(t, res.Retrigger)

	first, _ := s.First()
	assert.Equal(t, 890*tf, first.Time)
}

func TestReset_ClearsExhaustion(t *testing.T) {
	c := NewController(DefaultConfig())
	s := seriesFrom(100*tf, 300)
	_, _ = c.Begin(s, Range{From: 0, To: 50}, t0)
	c.Complete(s, nil, Range{From: 0, To: 50})
	require.True(t, c.Exhausted())

	c.Reset()
	assert.False(t, c.Exhausted())
	assert.True(t, c.LastRequestAt().IsZero())
	_, ok := c.Begin(s, Range{From: 0, To: 50}, t0)
	assert.True(t, ok)
}
