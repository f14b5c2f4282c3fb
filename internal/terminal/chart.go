package terminal

import (
	"sort"

	"charting-terminalv1/internal/backfill"
	"charting-terminalv1/internal/indicator"
	"charting-terminalv1/internal/series"
	"charting-terminalv1/internal/slot"
)

// chart is one live chart: a grid slot or the market focus view.
type chart struct {
	id  string
	cfg slot.Config
	gen uint64 // changes whenever the chart is (re)loaded; stale results are dropped

	series   *series.Series
	backfill *backfill.Controller
	view     *backfill.Range // nil until the renderer reports one
	overlay  indicator.Overlay

	status     Status
	err        string
	retryArmed bool
}

func newChart(id string, cfg slot.Config, gen uint64, bf backfill.Config) *chart {
	return &chart{
		id:       id,
		cfg:      cfg,
		gen:      gen,
		series:   series.New(cfg.MarketID, cfg.Timeframe),
		backfill: backfill.NewController(bf),
		status:   StatusLoading,
	}
}

func (c *chart) snapshot() ChartView {
	v := ChartView{
		ID:        c.id,
		Config:    c.cfg,
		Status:    c.status,
		Error:     c.err,
		Candles:   c.series.Candles(),
		Overlay:   c.overlay,
		Exhausted: c.backfill.Exhausted(),
	}
	if c.view != nil {
		r := *c.view
		v.Range = &r
	}
	return v
}

// chartIDs returns chart IDs in a stable order.
func (s *Session) chartIDs() []string {
	ids := make([]string, 0, len(s.charts))
	for id := range s.charts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
