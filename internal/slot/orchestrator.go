// Package slot owns the chart grid: layout and paging over the market
// universe, per-slot market/timeframe/indicator configuration, and focus
// mode. It is the single writer of that state; readers subscribe to Events.
package slot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"charting-terminalv1/internal/model"
)

const kvKey = "slots"

// ErrUnknownSlot is returned for slot IDs outside the current layout.
var ErrUnknownSlot = errors.New("unknown slot")

// EventKind names what changed.
type EventKind string

const (
	EventLayout     EventKind = "layout"
	EventPage       EventKind = "page"
	EventTimeframe  EventKind = "timeframe"
	EventMarket     EventKind = "market"
	EventIndicators EventKind = "indicators"
	EventUI         EventKind = "ui"
	EventSelection  EventKind = "selection"
	EventFocus      EventKind = "focus"
)

// Event is published after every mutation.
type Event struct {
	Kind    EventKind `json:"kind"`
	SlotIDs []string  `json:"slotIds,omitempty"` // slots whose config changed; empty means all
	Visible []string  `json:"visible"`           // VisibleMarkets after the change
}

// Orchestrator holds the grid state.
type Orchestrator struct {
	kv model.KV

	mu       sync.RWMutex
	st       State
	universe []model.Market
	subs     []chan Event
	closed   bool

	// IsWatchlisted fills Config.Watchlisted when a slot gets a new market
	// (optional).
	IsWatchlisted func(marketID string) bool
}

// New creates an orchestrator with DefaultState. kv may be nil, in which
// case Load and Save are no-ops.
func New(kv model.KV) *Orchestrator {
	return &Orchestrator{kv: kv, st: DefaultState()}
}

// Load restores persisted state, migrating older versions. A missing key
// keeps the defaults.
func (o *Orchestrator) Load(ctx context.Context) error {
	if o.kv == nil {
		return nil
	}
	raw, err := o.kv.Get(ctx, kvKey)
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("load slots: %w", err)
	}
	st, err := Decode(raw)
	if err != nil {
		return err
	}
	o.mu.Lock()
	o.st = st
	o.mu.Unlock()
	slog.Info("slot state restored", "layout", st.Layout, "slots", len(st.Slots), "timeframe", st.GlobalTimeframe)
	return nil
}

// Save persists the current state.
func (o *Orchestrator) Save(ctx context.Context) error {
	if o.kv == nil {
		return nil
	}
	raw, err := Encode(o.Snapshot())
	if err != nil {
		return err
	}
	if err := o.kv.Set(ctx, kvKey, raw); err != nil {
		return fmt.Errorf("save slots: %w", err)
	}
	return nil
}

// Snapshot returns a copy of the state.
func (o *Orchestrator) Snapshot() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.st.clone()
}

// ── Layout and paging ──

// SetLayout resizes the grid. Slots beyond the new size are dropped, the
// page is re-clamped and the page's markets fill any empty positions.
func (o *Orchestrator) SetLayout(l Layout) error {
	if _, err := ParseLayout(string(l)); err != nil {
		return err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.st.Layout = l
	size := l.Size()
	for id := range o.st.Slots {
		if i, _ := Index(id); i >= size {
			delete(o.st.Slots, id)
		}
	}
	if _, ok := o.st.Slots[o.st.SelectedSlotID]; !ok {
		o.st.SelectedSlotID = ID(0)
	}
	o.st.Page = o.clampPage(o.st.Page)
	o.applyPageLocked()
	o.publish(Event{Kind: EventLayout})
	return nil
}

// SetUniverse sets the ordered list of markets the grid pages over, then
// re-clamps the page and applies it.
func (o *Orchestrator) SetUniverse(markets []model.Market) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.universe = append([]model.Market(nil), markets...)
	o.st.Page = o.clampPage(o.st.Page)
	o.applyPageLocked()
	o.publish(Event{Kind: EventPage})
}

// Universe returns the markets the grid pages over.
func (o *Orchestrator) Universe() []model.Market {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]model.Market(nil), o.universe...)
}

// PageCount is the number of pages the universe spans, at least 1.
func (o *Orchestrator) PageCount() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.pageCount()
}

// SetPage moves to page p, clamped to [0, PageCount-1].
func (o *Orchestrator) SetPage(p int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	p = o.clampPage(p)
	if p == o.st.Page && len(o.st.Slots) > 0 {
		return
	}
	o.st.Page = p
	o.applyPageLocked()
	o.publish(Event{Kind: EventPage})
}

func (o *Orchestrator) NextPage() { o.SetPage(o.Snapshot().Page + 1) }
func (o *Orchestrator) PrevPage() { o.SetPage(o.Snapshot().Page - 1) }

// ApplyMarkets assigns markets to the grid positions in order, keeping each
// slot's toggles and timeframe override. Positions past len(markets) keep
// their current market.
func (o *Orchestrator) ApplyMarkets(markets []model.Market) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.applyLocked(markets)
	o.publish(Event{Kind: EventMarket})
}

// SetSlotMarket points one slot at m.
func (o *Orchestrator) SetSlotMarket(slotID string, m model.Market) error {
	if m.MarketID == "" {
		return model.ErrInvalidMarketID
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	i, ok := Index(slotID)
	if !ok || i >= o.st.Layout.Size() {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	o.assignLocked(slotID, m)
	o.publish(Event{Kind: EventMarket, SlotIDs: []string{slotID}})
	return nil
}

// ── Timeframes ──

// SetGlobalTimeframe switches the shared timeframe. Every slot returns to
// global mode, including slots that had an override.
func (o *Orchestrator) SetGlobalTimeframe(tf model.Timeframe) error {
	if !tf.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownTimeframe, tf)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.st.GlobalTimeframe = tf
	for id, c := range o.st.Slots {
		c.TimeframeMode = ModeGlobal
		c.setTimeframe(tf)
		o.st.Slots[id] = c
	}
	o.publish(Event{Kind: EventTimeframe})
	return nil
}

// SetTimeframeOverride pins a slot to tf. An empty tf clears the override
// and the slot follows the global timeframe again.
func (o *Orchestrator) SetTimeframeOverride(slotID string, tf model.Timeframe) error {
	if tf != "" && !tf.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownTimeframe, tf)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.st.Slots[slotID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	if tf == "" {
		c.TimeframeMode = ModeGlobal
		c.setTimeframe(o.st.GlobalTimeframe)
	} else {
		c.TimeframeMode = ModeOverride
		c.setTimeframe(tf)
	}
	o.st.Slots[slotID] = c
	o.publish(Event{Kind: EventTimeframe, SlotIDs: []string{slotID}})
	return nil
}

// SetFocusTimeframe remembers the timeframe used when marketID is focused.
func (o *Orchestrator) SetFocusTimeframe(marketID string, tf model.Timeframe) error {
	if marketID == "" {
		return model.ErrInvalidMarketID
	}
	if !tf.Valid() {
		return fmt.Errorf("%w: %q", model.ErrUnknownTimeframe, tf)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.st.FocusTimeframes[marketID] = tf
	if o.st.Focus.Open && o.st.Focus.Kind == FocusMarket && o.st.Focus.MarketID == marketID {
		o.publish(Event{Kind: EventTimeframe, SlotIDs: []string{FocusID}})
	}
	return nil
}

// FocusTimeframe returns the remembered focus timeframe for marketID.
func (o *Orchestrator) FocusTimeframe(marketID string) (model.Timeframe, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	tf, ok := o.st.FocusTimeframes[marketID]
	return tf, ok
}

// ── Per-slot UI ──

// ToggleIndicator flips one indicator ("ma", "bollinger", "rsi", "macd",
// "pivots") and returns its new value.
func (o *Orchestrator) ToggleIndicator(slotID, name string) (bool, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.st.Slots[slotID]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	t := &c.UI.Indicators
	var flag *bool
	switch name {
	case "ma":
		flag = &t.MA
	case "bollinger":
		flag = &t.Bollinger
	case "rsi":
		flag = &t.RSI
	case "macd":
		flag = &t.MACD
	case "pivots":
		flag = &t.Pivots
	default:
		return false, fmt.Errorf("unknown indicator %q", name)
	}
	*flag = !*flag
	o.st.Slots[slotID] = c
	o.publish(Event{Kind: EventIndicators, SlotIDs: []string{slotID}})
	return *flag, nil
}

// SetShowDrawings shows or hides a slot's drawings.
func (o *Orchestrator) SetShowDrawings(slotID string, show bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.st.Slots[slotID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	c.UI.ShowDrawings = show
	o.st.Slots[slotID] = c
	o.publish(Event{Kind: EventUI, SlotIDs: []string{slotID}})
	return nil
}

// SetWatchlisted mirrors watchlist membership onto every slot showing
// marketID.
func (o *Orchestrator) SetWatchlisted(marketID string, on bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	var changed []string
	for id, c := range o.st.Slots {
		if c.MarketID == marketID && c.Watchlisted != on {
			c.Watchlisted = on
			o.st.Slots[id] = c
			changed = append(changed, id)
		}
	}
	if len(changed) > 0 {
		sort.Strings(changed)
		o.publish(Event{Kind: EventUI, SlotIDs: changed})
	}
}

// Select marks a slot as the target of keyboard shortcuts.
func (o *Orchestrator) Select(slotID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if _, ok := o.st.Slots[slotID]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	o.st.SelectedSlotID = slotID
	o.publish(Event{Kind: EventSelection, SlotIDs: []string{slotID}})
	return nil
}

// ── Focus ──

// OpenFocusMarket zooms to a single chart of marketID.
func (o *Orchestrator) OpenFocusMarket(marketID string) error {
	if marketID == "" {
		return model.ErrInvalidMarketID
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.st.Focus = Focus{Open: true, Kind: FocusMarket, MarketID: marketID}
	o.publish(Event{Kind: EventFocus})
	return nil
}

// OpenFocusSlot zooms to an existing slot.
func (o *Orchestrator) OpenFocusSlot(slotID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	c, ok := o.st.Slots[slotID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSlot, slotID)
	}
	o.st.Focus = Focus{Open: true, Kind: FocusTile, MarketID: c.MarketID, SlotID: slotID}
	o.publish(Event{Kind: EventFocus})
	return nil
}

// CloseFocus returns to the grid.
func (o *Orchestrator) CloseFocus() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if !o.st.Focus.Open {
		return
	}
	o.st.Focus = closedFocus()
	o.publish(Event{Kind: EventFocus})
}

// FocusChart returns the chart focus mode shows: the focused slot itself,
// or a synthetic FocusID chart for market focus using the remembered focus
// timeframe.
func (o *Orchestrator) FocusChart() (Config, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	f := o.st.Focus
	if !f.Open {
		return Config{}, false
	}
	if f.Kind == FocusTile {
		c, ok := o.st.Slots[f.SlotID]
		return c, ok
	}
	tf, ok := o.st.FocusTimeframes[f.MarketID]
	if !ok {
		tf = o.st.GlobalTimeframe
	}
	m := model.Market{MarketID: f.MarketID}
	for _, u := range o.universe {
		if u.MarketID == f.MarketID {
			m = u
			break
		}
	}
	return defaultConfig(FocusID, m, tf), true
}

// ── Readers ──

// Slots returns the slot configs in grid order.
func (o *Orchestrator) Slots() []Config {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.slotsLocked()
}

// Slot returns one slot config.
func (o *Orchestrator) Slot(slotID string) (Config, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	c, ok := o.st.Slots[slotID]
	return c, ok
}

// VisibleMarkets is the set the ticker stream should be subscribed to: the
// focused market while focus is open, otherwise the distinct markets of the
// grid in slot order.
func (o *Orchestrator) VisibleMarkets() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.visibleLocked()
}

// Subscribe returns a channel of events. Slow subscribers miss events
// rather than block mutations.
func (o *Orchestrator) Subscribe(buffer int) <-chan Event {
	ch := make(chan Event, buffer)
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		close(ch)
		return ch
	}
	o.subs = append(o.subs, ch)
	return ch
}

// Close closes all subscriber channels.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.closed = true
	for _, ch := range o.subs {
		close(ch)
	}
	o.subs = nil
}

// ── internals; callers hold mu ──

func (o *Orchestrator) pageCount() int {
	size := o.st.Layout.Size()
	if size == 0 || len(o.universe) == 0 {
		return 1
	}
	return (len(o.universe) + size - 1) / size
}

func (o *Orchestrator) clampPage(p int) int {
	if n := o.pageCount(); p > n-1 {
		p = n - 1
	}
	if p < 0 {
		p = 0
	}
	return p
}

func (o *Orchestrator) applyPageLocked() {
	size := o.st.Layout.Size()
	start := o.st.Page * size
	if start >= len(o.universe) {
		return
	}
	end := start + size
	if end > len(o.universe) {
		end = len(o.universe)
	}
	o.applyLocked(o.universe[start:end])
}

func (o *Orchestrator) applyLocked(markets []model.Market) {
	size := o.st.Layout.Size()
	for i := 0; i < size && i < len(markets); i++ {
		if markets[i].MarketID == "" {
			continue
		}
		o.assignLocked(ID(i), markets[i])
	}
}

func (o *Orchestrator) assignLocked(slotID string, m model.Market) {
	c, ok := o.st.Slots[slotID]
	if !ok {
		c = defaultConfig(slotID, m, o.st.GlobalTimeframe)
	} else {
		tf := o.st.GlobalTimeframe
		if c.TimeframeMode == ModeOverride {
			tf = c.Timeframe
		}
		if c.MarketID != m.MarketID {
			c.Watchlisted = false
		}
		c.assign(m, tf)
	}
	if o.IsWatchlisted != nil {
		c.Watchlisted = o.IsWatchlisted(m.MarketID)
	}
	o.st.Slots[slotID] = c
}

func (o *Orchestrator) slotsLocked() []Config {
	out := make([]Config, 0, len(o.st.Slots))
	for _, c := range o.st.Slots {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		a, _ := Index(out[i].SlotID)
		b, _ := Index(out[j].SlotID)
		return a < b
	})
	return out
}

func (o *Orchestrator) visibleLocked() []string {
	if o.st.Focus.Open {
		if o.st.Focus.MarketID == "" {
			return nil
		}
		return []string{o.st.Focus.MarketID}
	}
	seen := make(map[string]struct{})
	var out []string
	for _, c := range o.slotsLocked() {
		if _, ok := seen[c.MarketID]; ok {
			continue
		}
		seen[c.MarketID] = struct{}{}
		out = append(out, c.MarketID)
	}
	return out
}

func (o *Orchestrator) publish(ev Event) {
	ev.Visible = o.visibleLocked()
	for _, ch := range o.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("slot event dropped", "kind", ev.Kind)
		}
	}
}
