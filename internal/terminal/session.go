// Package terminal runs the charting session: one event loop that owns every
// chart's series, backfill controller and overlay, reacts to slot changes,
// live tickers and stream reconnects, and pushes Updates to renderers.
//
// All chart state is touched only by the loop goroutine. History fetches
// run in their own goroutines and post results back; commands from other
// goroutines are posted as closures.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"log"
	"log/slog"
	"sync"
	"time"

	"charting-terminalv1/internal/backfill"
	"charting-terminalv1/internal/drawing"
	"charting-terminalv1/internal/history"
	"charting-terminalv1/internal/indicator"
	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/series"
	"charting-terminalv1/internal/slot"
	"charting-terminalv1/internal/submux"
	"charting-terminalv1/internal/watchlist"
)

// ErrUnknownChart is returned for chart IDs the session is not showing.
var ErrUnknownChart = errors.New("unknown chart")

// errClosed is returned by commands posted after Run has returned.
var errClosed = errors.New("session closed")

// History is the candle source (history.Loader).
type History interface {
	Load(ctx context.Context, key history.Key) ([]model.Candle, error)
	LoadBefore(ctx context.Context, marketID string, tf model.Timeframe, limit int, endTimeExclusive int64) ([]model.Candle, error)
}

// Subscriptions is the ticker stream subscription set (submux.Multiplexer).
type Subscriptions interface {
	Sync(ctx context.Context, desired []string) (submux.Diff, error)
	Reset()
	IsSubscribed(marketID string) bool
}

// Config tunes the session.
type Config struct {
	InitialLimit      int
	Backfill          backfill.Config
	RecomputeDebounce time.Duration
	Now               func() time.Time
}

// DefaultConfig loads 300 bars per chart and coalesces overlay recomputes
// over 120ms.
func DefaultConfig() Config {
	return Config{
		InitialLimit:      300,
		Backfill:          backfill.DefaultConfig(),
		RecomputeDebounce: 120 * time.Millisecond,
		Now:               time.Now,
	}
}

// Deps are the collaborators the session drives.
type Deps struct {
	Slots     *slot.Orchestrator
	History   History
	Engine    *indicator.Engine
	Subs      Subscriptions
	Drawings  *drawing.Store
	Watchlist *watchlist.Store
	Tickers   <-chan model.Ticker
}

type loadResult struct {
	id      string
	gen     uint64
	candles []model.Candle
	err     error
}

type pageResult struct {
	id   string
	gen  uint64
	page []model.Candle
	err  error
}

// Session is the charting event loop.
type Session struct {
	cfg  Config
	deps Deps

	slotEvents     <-chan slot.Event
	drawingChanges <-chan drawing.Change

	// Loop-owned state.
	ctx        context.Context
	charts     map[string]*chart
	gen        uint64
	online     bool
	pending    map[string]struct{}
	recomputeC <-chan time.Time

	cmds    chan func()
	persist chan struct{}
	conn    chan bool
	loads chan loadResult
	pages chan pageResult
	done  chan struct{}

	obsMu     sync.Mutex
	observers map[chan Update]struct{}

	// Hooks (optional)
	OnTick          func(result string)
	OnBackfill      func(req backfill.Request)
	OnBackfillAdded func(n int)
	OnExhausted     func(marketID string, tf model.Timeframe)
	OnUpdateDrop    func()
}

// New creates a session. It subscribes to slot and drawing changes right
// away so nothing published before Run is missed.
func New(cfg Config, deps Deps) (*Session, error) {
	if deps.Slots == nil || deps.History == nil || deps.Engine == nil || deps.Subs == nil ||
		deps.Drawings == nil || deps.Watchlist == nil {
		return nil, fmt.Errorf("terminal: missing dependency")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.InitialLimit <= 0 {
		cfg.InitialLimit = DefaultConfig().InitialLimit
	}
	deps.Slots.IsWatchlisted = deps.Watchlist.Has

	return &Session{
		cfg:            cfg,
		deps:           deps,
		slotEvents:     deps.Slots.Subscribe(64),
		drawingChanges: deps.Drawings.Subscribe(64),
		charts:         make(map[string]*chart),
		pending:        make(map[string]struct{}),
		cmds:           make(chan func(), 64),
		conn:           make(chan bool, 8),
		persist:        make(chan struct{}, 1),
		loads:          make(chan loadResult, 16),
		pages:          make(chan pageResult, 16),
		done:           make(chan struct{}),
		observers:      make(map[chan Update]struct{}),
	}, nil
}

// Run processes events until ctx is cancelled.
func (s *Session) Run(ctx context.Context) error {
	s.ctx = ctx
	defer close(s.done)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.persistLoop(ctx)
	}()
	defer wg.Wait()

	log.Printf("[session] started")
	s.reconcile()

	tickers := s.deps.Tickers
	for {
		select {
		case <-ctx.Done():
			log.Printf("[session] stopped")
			return nil

		case ev, ok := <-s.slotEvents:
			if !ok {
				s.slotEvents = nil
				continue
			}
			slog.Debug("slot event", "kind", ev.Kind, "slots", ev.SlotIDs)
			s.reconcile()
			s.requestPersist()

		case t, ok := <-tickers:
			if !ok {
				tickers = nil
				continue
			}
			s.handleTicker(t)

		case r := <-s.loads:
			s.handleLoad(r)

		case r := <-s.pages:
			s.handlePage(r)

		case up := <-s.conn:
			s.handleOnline(up)

		case ch, ok := <-s.drawingChanges:
			if !ok {
				s.drawingChanges = nil
				continue
			}
			s.publish(Update{Kind: UpdateDrawings, DrawingKey: ch.Key, Drawings: ch.Drawings})

		case fn := <-s.cmds:
			fn()

		case <-s.recomputeC:
			s.recomputeC = nil
			s.flushRecompute()
		}
	}
}

// ── Commands from other goroutines ──

// exec runs fn on the loop and waits for it.
func (s *Session) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		defer close(finished)
		fn()
	}
	select {
	case s.cmds <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errClosed
	}
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return errClosed
	}
}

// post queues fn on the loop without waiting.
func (s *Session) post(fn func()) {
	select {
	case s.cmds <- fn:
	case <-s.done:
	}
}

// SetOnline reports the ticker stream connection state. Wire it to the
// stream's OnConnect/OnDisconnect hooks.
func (s *Session) SetOnline(up bool) {
	select {
	case s.conn <- up:
	case <-s.done:
	}
}

// SetViewport records a chart's visible logical range and triggers
// backfill when it nears the first bar.
func (s *Session) SetViewport(ctx context.Context, chartID string, r backfill.Range) error {
	var err error
	if e := s.exec(ctx, func() {
		c, ok := s.charts[chartID]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownChart, chartID)
			return
		}
		c.view = &r
		if c.status == StatusReady {
			s.maybeBackfill(c)
		}
	}); e != nil {
		return e
	}
	return err
}

// Reload restarts loading a chart, typically after an error.
func (s *Session) Reload(ctx context.Context, chartID string) error {
	var err error
	if e := s.exec(ctx, func() {
		c, ok := s.charts[chartID]
		if !ok {
			err = fmt.Errorf("%w: %s", ErrUnknownChart, chartID)
			return
		}
		s.startChart(chartID, c.cfg)
	}); e != nil {
		return e
	}
	return err
}

// Snapshot returns the full session state.
func (s *Session) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := s.exec(ctx, func() {
		snap = Snapshot{
			State:     s.deps.Slots.Snapshot(),
			Visible:   s.deps.Slots.VisibleMarkets(),
			Online:    s.online,
			Watchlist: s.deps.Watchlist.List(),
			Charts:    make([]ChartView, 0, len(s.charts)),
		}
		for _, id := range s.chartIDs() {
			snap.Charts = append(snap.Charts, s.charts[id].snapshot())
		}
	})
	if err != nil {
		return Snapshot{}, err
	}
	for i := range snap.Charts {
		cv := &snap.Charts[i]
		if ds, err := s.deps.Drawings.List(ctx, cv.Config.DrawingStateKey); err == nil {
			cv.Drawings = ds
		}
	}
	return snap, nil
}

// ── Observers ──

// Subscribe registers an observer. Updates are dropped for observers whose
// buffer is full. Call the returned func to unsubscribe.
func (s *Session) Subscribe(buffer int) (<-chan Update, func()) {
	ch := make(chan Update, buffer)
	s.obsMu.Lock()
	s.observers[ch] = struct{}{}
	s.obsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.obsMu.Lock()
			delete(s.observers, ch)
			s.obsMu.Unlock()
		})
	}
}

func (s *Session) publish(u Update) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	for ch := range s.observers {
		select {
		case ch <- u:
		default:
			if s.OnUpdateDrop != nil {
				s.OnUpdateDrop()
			}
		}
	}
}

// ── Loop handlers ──

// reconcile brings the chart set in line with the orchestrator: charts for
// slots that left are dropped, charts whose market or timeframe changed are
// reloaded, and the stream subscription set is re-synced.
func (s *Session) reconcile() {
	desired := s.desiredCharts()
	for id := range s.charts {
		if _, ok := desired[id]; !ok {
			delete(s.charts, id)
			delete(s.pending, id)
		}
	}
	for id, cfg := range desired {
		c, ok := s.charts[id]
		if ok && c.cfg.MarketID == cfg.MarketID && c.cfg.Timeframe == cfg.Timeframe {
			toggled := c.cfg.UI.Indicators != cfg.UI.Indicators
			c.cfg = cfg
			if toggled && c.status == StatusReady {
				s.markDirty(c)
			}
			continue
		}
		s.startChart(id, cfg)
	}

	s.syncSubscriptions()

	st := s.deps.Slots.Snapshot()
	s.publish(Update{Kind: UpdateSlots, State: &st, Visible: s.deps.Slots.VisibleMarkets()})
}

func (s *Session) desiredCharts() map[string]slot.Config {
	out := make(map[string]slot.Config)
	if fc, ok := s.deps.Slots.FocusChart(); ok {
		out[fc.SlotID] = fc
		return out
	}
	for _, c := range s.deps.Slots.Slots() {
		out[c.SlotID] = c
	}
	return out
}

func (s *Session) startChart(id string, cfg slot.Config) {
	s.gen++
	c := newChart(id, cfg, s.gen, s.cfg.Backfill)
	c.backfill.OnRequest = s.OnBackfill
	c.backfill.OnExhausted = s.OnExhausted
	s.charts[id] = c
	delete(s.pending, id)

	s.publish(Update{Kind: UpdateStatus, ChartID: id, MarketID: cfg.MarketID, Timeframe: cfg.Timeframe, Status: StatusLoading})

	ctx, gen := s.ctx, c.gen
	key := history.Key{MarketID: cfg.MarketID, Timeframe: cfg.Timeframe, Limit: s.cfg.InitialLimit}
	go func() {
		candles, err := s.deps.History.Load(ctx, key)
		select {
		case s.loads <- loadResult{id: id, gen: gen, candles: candles, err: err}:
		case <-s.done:
		}
	}()
}

func (s *Session) handleLoad(r loadResult) {
	c, ok := s.charts[r.id]
	if !ok || c.gen != r.gen {
		return
	}
	if r.err == nil {
		r.err = c.series.Replace(r.candles)
	}
	if r.err != nil {
		c.status, c.err = StatusError, r.err.Error()
		slog.Warn("chart load failed", "chart", c.id, "market", c.cfg.MarketID, "tf", c.cfg.Timeframe, "error", r.err)
		s.publish(Update{Kind: UpdateStatus, ChartID: c.id, MarketID: c.cfg.MarketID, Timeframe: c.cfg.Timeframe, Status: StatusError, Error: c.err})
		return
	}

	c.status, c.err = StatusReady, ""
	s.publish(Update{Kind: UpdateStatus, ChartID: c.id, MarketID: c.cfg.MarketID, Timeframe: c.cfg.Timeframe, Status: StatusReady})
	s.publish(Update{Kind: UpdateSeries, ChartID: c.id, Candles: c.series.Candles()})
	s.computeOverlay(c)

	if ds, err := s.deps.Drawings.List(s.ctx, c.cfg.DrawingStateKey); err != nil {
		slog.Warn("drawings load failed", "key", c.cfg.DrawingStateKey, "error", err)
	} else {
		s.publish(Update{Kind: UpdateDrawings, DrawingKey: c.cfg.DrawingStateKey, Drawings: ds})
	}

	if c.view != nil {
		s.maybeBackfill(c)
	}
}

func (s *Session) handleTicker(t model.Ticker) {
	tk := t
	s.publish(Update{Kind: UpdateTicker, Ticker: &tk})

	if !s.deps.Subs.IsSubscribed(t.MarketID) {
		s.tick("unsubscribed")
		return
	}
	for _, id := range s.chartIDs() {
		c := s.charts[id]
		if c.cfg.MarketID != t.MarketID || c.status != StatusReady {
			continue
		}
		res := c.series.ApplyTick(t.Price, t.Timestamp, c.cfg.Timeframe.Seconds())
		s.tick(res.String())
		switch res {
		case series.TickUpdated, series.TickAppended:
			if bar, ok := c.series.Last(); ok {
				s.publish(Update{Kind: UpdateBar, ChartID: c.id, Bar: &bar})
			}
			s.markDirty(c)
		case series.TickStale:
			slog.Debug("stale tick discarded", "chart", c.id, "market", t.MarketID, "ts", t.Timestamp)
		}
	}
}

func (s *Session) maybeBackfill(c *chart) {
	if c.view == nil {
		return
	}
	now := s.cfg.Now()
	req, ok := c.backfill.Begin(c.series, *c.view, now)
	if !ok {
		s.armRetry(c, now)
		return
	}

	ctx, id, gen := s.ctx, c.id, c.gen
	go func() {
		page, err := s.deps.History.LoadBefore(ctx, req.MarketID, req.Timeframe, req.Limit, req.EndTimeExclusive)
		select {
		case s.pages <- pageResult{id: id, gen: gen, page: page, err: err}:
		case <-s.done:
		}
	}()
}

// armRetry re-checks backfill once the debounce window closes when the
// viewport is still at the edge.
func (s *Session) armRetry(c *chart, now time.Time) {
	b := c.backfill
	if c.retryArmed || b.InFlight() || b.Exhausted() || !b.NearEdge(*c.view) {
		return
	}
	d := b.RetryIn(now)
	if d <= 0 {
		return
	}
	c.retryArmed = true
	id, gen := c.id, c.gen
	time.AfterFunc(d, func() {
		s.post(func() {
			if cur, ok := s.charts[id]; ok && cur.gen == gen {
				cur.retryArmed = false
				s.maybeBackfill(cur)
			}
		})
	})
}

func (s *Session) handlePage(r pageResult) {
	c, ok := s.charts[r.id]
	if !ok || c.gen != r.gen {
		return
	}
	if r.err != nil {
		c.backfill.Fail(r.err)
		slog.Warn("backfill failed", "chart", c.id, "market", c.cfg.MarketID, "tf", c.cfg.Timeframe, "error", r.err)
		s.armRetry(c, s.cfg.Now())
		return
	}

	view := backfill.Range{}
	if c.view != nil {
		view = *c.view
	}
	res := c.backfill.Complete(c.series, r.page, view)
	if res.Added > 0 {
		c.view = &res.Range
		if s.OnBackfillAdded != nil {
			s.OnBackfillAdded(res.Added)
		}
		s.markDirty(c)
	}
	rng := res.Range
	s.publish(Update{Kind: UpdateSeries, ChartID: c.id, Candles: c.series.Candles(), Range: &rng, Exhausted: res.Exhausted})

	if res.Retrigger {
		s.maybeBackfill(c)
	}
}

func (s *Session) handleOnline(up bool) {
	if up == s.online {
		return
	}
	s.online = up
	log.Printf("[session] ticker stream online=%v", up)
	if up {
		// The transport does not remember subscriptions across connections.
		s.deps.Subs.Reset()
		s.syncSubscriptions()
	}
	online := up
	s.publish(Update{Kind: UpdateOnline, Online: &online})
}

func (s *Session) syncSubscriptions() {
	visible := s.deps.Slots.VisibleMarkets()
	diff, err := s.deps.Subs.Sync(s.ctx, visible)
	if err != nil {
		slog.Debug("subscription sync incomplete", "error", err)
	}
	if !diff.Empty() {
		log.Printf("[session] subscribed=%v unsubscribed=%v", diff.Subscribed, diff.Unsubscribed)
	}
}

func (s *Session) markDirty(c *chart) {
	s.pending[c.id] = struct{}{}
	if s.recomputeC == nil {
		s.recomputeC = time.After(s.cfg.RecomputeDebounce)
	}
}

func (s *Session) flushRecompute() {
	for id := range s.pending {
		if c, ok := s.charts[id]; ok && c.status == StatusReady {
			s.computeOverlay(c)
		}
	}
	s.pending = make(map[string]struct{})
}

func (s *Session) computeOverlay(c *chart) {
	c.overlay = s.deps.Engine.Compute(c.series.Candles(), c.cfg.UI.Indicators)
	c.series.MarkClean()
	ov := c.overlay
	s.publish(Update{Kind: UpdateOverlay, ChartID: c.id, Overlay: &ov})
}

// requestPersist asks the writer goroutine to save slot state. Requests made
// while a write is pending collapse into one.
func (s *Session) requestPersist() {
	select {
	case s.persist <- struct{}{}:
	default:
	}
}

// persistLoop writes slot state off the event loop. Save snapshots the
// orchestrator when it runs, so the last write always carries the newest
// state.
func (s *Session) persistLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.persist:
			saveCtx, cancel := context.WithTimeout(ctx, persistTimeout)
			if err := s.deps.Slots.Save(saveCtx); err != nil {
				slog.Warn("slot state not saved", "error", err)
			}
			cancel()
		}
	}
}

func (s *Session) tick(result string) {
	if s.OnTick != nil {
		s.OnTick(result)
	}
}
