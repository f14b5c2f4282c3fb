package slot

import (
	"charting-terminalv1/internal/drawing"
	"charting-terminalv1/internal/indicator"
	"charting-terminalv1/internal/model"
)

// DefaultTimeframe is the global timeframe of a fresh terminal.
const DefaultTimeframe = model.TF1h

// FocusID is the slot ID of the chart shown in market focus mode.
const FocusID = "focus"

// TimeframeMode says whether a slot follows the global timeframe.
type TimeframeMode string

const (
	ModeGlobal   TimeframeMode = "global"
	ModeOverride TimeframeMode = "override"
)

// UI is per-slot presentation state.
type UI struct {
	ShowDrawings bool              `json:"showDrawings"`
	Indicators   indicator.Toggles `json:"indicators"`
}

// Config is one chart slot.
type Config struct {
	SlotID          string          `json:"chartId"`
	MarketID        string          `json:"marketId"`
	Symbol          string          `json:"symbol"`
	Exchange        string          `json:"exchange"`
	MarketType      string          `json:"marketType"`
	Timeframe       model.Timeframe `json:"timeframe"`
	TimeframeMode   TimeframeMode   `json:"timeframeMode"`
	UI              UI              `json:"ui"`
	DrawingStateKey string          `json:"drawingStateKey"`
	Watchlisted     bool            `json:"watchlisted"`
}

func defaultConfig(slotID string, m model.Market, tf model.Timeframe) Config {
	c := Config{
		SlotID:        slotID,
		TimeframeMode: ModeGlobal,
		UI:            UI{ShowDrawings: true},
	}
	c.assign(m, tf)
	return c
}

// assign points the slot at m with timeframe tf.
func (c *Config) assign(m model.Market, tf model.Timeframe) {
	c.MarketID = m.MarketID
	c.Symbol = m.Symbol
	c.Exchange = m.Exchange
	c.MarketType = m.MarketType
	c.setTimeframe(tf)
}

func (c *Config) setTimeframe(tf model.Timeframe) {
	c.Timeframe = tf
	c.DrawingStateKey = drawing.StateKey(c.MarketID, tf)
}

// FocusKind is what opened focus mode.
type FocusKind string

const (
	FocusMarket FocusKind = "market"
	FocusTile   FocusKind = "tile"
)

// Focus is the single-chart zoom state.
type Focus struct {
	Open     bool      `json:"open"`
	Kind     FocusKind `json:"kind"`
	MarketID string    `json:"marketId,omitempty"`
	SlotID   string    `json:"chartId,omitempty"`
}

func closedFocus() Focus { return Focus{Kind: FocusMarket} }

// State is everything the orchestrator persists.
type State struct {
	Layout          Layout                     `json:"layout"`
	Page            int                        `json:"page"`
	GlobalTimeframe model.Timeframe            `json:"globalTimeframe"`
	SelectedSlotID  string                     `json:"selectedChartId"`
	Focus           Focus                      `json:"focus"`
	Slots           map[string]Config          `json:"charts"`
	FocusTimeframes map[string]model.Timeframe `json:"focusTimeframes"`
}

// DefaultState is a 4x4 grid on 1h with no markets assigned.
func DefaultState() State {
	return State{
		Layout:          DefaultLayout,
		GlobalTimeframe: DefaultTimeframe,
		SelectedSlotID:  ID(0),
		Focus:           closedFocus(),
		Slots:           map[string]Config{},
		FocusTimeframes: map[string]model.Timeframe{},
	}
}

// clone deep-copies the maps.
func (s State) clone() State {
	out := s
	out.Slots = make(map[string]Config, len(s.Slots))
	for k, v := range s.Slots {
		out.Slots[k] = v
	}
	out.FocusTimeframes = make(map[string]model.Timeframe, len(s.FocusTimeframes))
	for k, v := range s.FocusTimeframes {
		out.FocusTimeframes[k] = v
	}
	return out
}

// normalize repairs values a stored or migrated state may carry: unknown
// layout or timeframe, slots outside the grid, stale derived fields.
func (s *State) normalize() {
	if _, err := ParseLayout(string(s.Layout)); err != nil {
		s.Layout = DefaultLayout
	}
	if !s.GlobalTimeframe.Valid() {
		s.GlobalTimeframe = DefaultTimeframe
	}
	if s.Page < 0 {
		s.Page = 0
	}
	if s.Slots == nil {
		s.Slots = map[string]Config{}
	}
	if s.FocusTimeframes == nil {
		s.FocusTimeframes = map[string]model.Timeframe{}
	}
	for m, tf := range s.FocusTimeframes {
		if !tf.Valid() {
			delete(s.FocusTimeframes, m)
		}
	}
	size := s.Layout.Size()
	for id, c := range s.Slots {
		i, ok := Index(id)
		if !ok || i >= size || c.MarketID == "" {
			delete(s.Slots, id)
			continue
		}
		c.SlotID = id
		if c.TimeframeMode != ModeOverride || !c.Timeframe.Valid() {
			c.TimeframeMode = ModeGlobal
			c.Timeframe = s.GlobalTimeframe
		}
		c.setTimeframe(c.Timeframe)
		s.Slots[id] = c
	}
	if _, ok := s.Slots[s.SelectedSlotID]; !ok {
		s.SelectedSlotID = ID(0)
	}
	if s.Focus.Kind == "" {
		s.Focus.Kind = FocusMarket
	}
}
