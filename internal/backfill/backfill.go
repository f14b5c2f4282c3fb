// Package backfill extends a chart slot's series backward in time as the
// viewport approaches its oldest bar.
//
// The Controller is a plain state machine owned by the session loop: Begin
// decides whether to fetch and what to ask for, the caller performs the fetch
// asynchronously, and Complete or Fail reports the outcome. One Controller
// serves one slot+market+timeframe; Reset it when any of those change.
package backfill

import (
	"log/slog"
	"time"

	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/series"
)

// Range is the visible logical range of the chart in bar indices, where 0 is
// the first bar of the series. Renderers report fractional values.
type Range struct {
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// Shift moves the range right by n bars.
func (r Range) Shift(n int) Range {
	return Range{From: r.From + float64(n), To: r.To + float64(n)}
}

// Config tunes the trigger.
type Config struct {
	EdgeBars  float64       // trigger when the range starts within this many bars of the first bar
	Debounce  time.Duration // minimum spacing between requests
	MinBars   int           // do not backfill a series shorter than this
	PageLimit int           // bars per request
}

// DefaultConfig triggers within 60 bars of the edge, at most every 250ms,
// for series of at least 20 bars, 500 bars per page.
func DefaultConfig() Config {
	return Config{EdgeBars: 60, Debounce: 250 * time.Millisecond, MinBars: 20, PageLimit: 500}
}

// Request is one page to fetch.
type Request struct {
	MarketID         string
	Timeframe        model.Timeframe
	Limit            int
	EndTimeExclusive int64
}

// Result is the outcome of a completed request.
type Result struct {
	Added     int   // bars prepended
	Exhausted bool  // no further backfill for this slot
	Range     Range // viewport to apply so the visible bars stay put
	Retrigger bool  // viewport is still near the edge
}

// Controller holds {inFlight, exhausted, lastRequestAt} for one slot.
type Controller struct {
	cfg Config

	inFlight      bool
	exhausted     bool
	lastRequestAt time.Time

	// Hooks (optional)
	OnRequest   func(Request)
	OnExhausted func(marketID string, tf model.Timeframe)
}

// NewController creates an idle controller.
func NewController(cfg Config) *Controller {
	return &Controller{cfg: cfg}
}

func (c *Controller) InFlight() bool           { return c.inFlight }
func (c *Controller) Exhausted() bool          { return c.exhausted }
func (c *Controller) LastRequestAt() time.Time { return c.lastRequestAt }

// NearEdge reports whether view starts within EdgeBars of the first bar.
func (c *Controller) NearEdge(view Range) bool {
	return view.From < c.cfg.EdgeBars
}

// Begin checks the trigger guards and, if they pass, marks the controller in
// flight and returns the page to request. It rejects while in flight, once
// exhausted, within the debounce window, and for short series.
func (c *Controller) Begin(s *series.Series, view Range, now time.Time) (Request, bool) {
	if !c.NearEdge(view) || c.inFlight || c.exhausted {
		return Request{}, false
	}
	if !c.lastRequestAt.IsZero() && now.Sub(c.lastRequestAt) < c.cfg.Debounce {
		return Request{}, false
	}
	if s.Len() < c.cfg.MinBars {
		return Request{}, false
	}
	first, _ := s.First()
	if first.Time <= 0 {
		c.markExhausted(s)
		return Request{}, false
	}

	c.inFlight = true
	c.lastRequestAt = now
	req := Request{
		MarketID:         s.MarketID(),
		Timeframe:        s.Timeframe(),
		Limit:            c.cfg.PageLimit,
		EndTimeExclusive: first.Time - 1,
	}
	if c.OnRequest != nil {
		c.OnRequest(req)
	}
	return req, true
}

// Complete merges a fetched page into s. An empty page, or one that adds no
// new bars, exhausts the controller permanently.
func (c *Controller) Complete(s *series.Series, page []model.Candle, view Range) Result {
	c.inFlight = false
	if len(page) == 0 {
		c.markExhausted(s)
		return Result{Exhausted: true, Range: view}
	}

	added := s.MergeOlder(page)
	if added == 0 {
		slog.Debug("backfill page added nothing", "market", s.MarketID(), "tf", s.Timeframe(), "page", len(page))
		c.markExhausted(s)
		return Result{Exhausted: true, Range: view}
	}

	shifted := view.Shift(added)
	return Result{
		Added:     added,
		Range:     shifted,
		Retrigger: c.NearEdge(shifted),
	}
}

// Fail clears the in-flight flag after a failed request. The debounce window
// still applies to the next attempt.
func (c *Controller) Fail(err error) {
	c.inFlight = false
	slog.Debug("backfill failed", "error", err)
}

// RetryIn returns how long until the debounce window allows another request.
func (c *Controller) RetryIn(now time.Time) time.Duration {
	if c.lastRequestAt.IsZero() {
		return 0
	}
	d := c.cfg.Debounce - now.Sub(c.lastRequestAt)
	if d < 0 {
		return 0
	}
	return d
}

// Reset returns the controller to idle; used on market/timeframe change.
func (c *Controller) Reset() {
	c.inFlight = false
	c.exhausted = false
	c.lastRequestAt = time.Time{}
}

func (c *Controller) markExhausted(s *series.Series) {
	c.exhausted = true
	if c.OnExhausted != nil {
		c.OnExhausted(s.MarketID(), s.Timeframe())
	}
}
