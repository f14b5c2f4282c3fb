package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds all Prometheus metrics for the charting terminal.
type Metrics struct {
	// Live ticks
	TicksTotal *prometheus.CounterVec // labels: result=applied|appended|stale|ignored|unsubscribed

	// History
	FetchDur       *prometheus.HistogramVec // labels: op=candles|backfill
	FetchErrors    *prometheus.CounterVec   // labels: op
	CacheHits      *prometheus.CounterVec   // labels: tier=memory|l2
	CacheMisses    prometheus.Counter
	BackfillTotal  prometheus.Counter
	BackfillAdded  prometheus.Counter
	ExhaustedTotal prometheus.Counter

	// Indicators
	RecomputeDur prometheus.Histogram

	// Ticker stream
	StreamConnected  prometheus.Gauge
	StreamReconnects prometheus.Counter
	Subscriptions    prometheus.Gauge
	FanoutDropsTotal *prometheus.CounterVec // labels: subscriber
	EventDrops       prometheus.Counter

	// Stores
	CircuitBreakerState *prometheus.GaugeVec   // labels: breaker; 0=closed, 1=open, 2=half-open
	CircuitBreakerTrips *prometheus.CounterVec // labels: breaker
	KVErrors            prometheus.Counter

	// Renderer gateway
	RendererClients prometheus.Gauge
	CommandsTotal   *prometheus.CounterVec // labels: type, status=ok|error
	SlowClientDrops prometheus.Counter
	UpdateDrops     prometheus.Counter
}

// NewMetrics creates all metrics and registers them with reg, or with the
// default registry when reg is nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		TicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_ticks_total",
			Help: "Ticker events received, by what the series did with them",
		}, []string{"result"}),

		FetchDur: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "terminal_fetch_duration_seconds",
			Help:    "History API request latency including retries",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"op"}),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_fetch_errors_total",
			Help: "Failed history API requests after retries",
		}, []string{"op"}),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_history_cache_hits_total",
			Help: "History cache hits by tier",
		}, []string{"tier"}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_history_cache_misses_total",
			Help: "History loads that went to the network",
		}),
		BackfillTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_backfill_requests_total",
			Help: "Backfill pages requested",
		}),
		BackfillAdded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_backfill_bars_added_total",
			Help: "Bars prepended by backfill",
		}),
		ExhaustedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_backfill_exhausted_total",
			Help: "Slots whose history reached its start",
		}),

		RecomputeDur: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "terminal_indicator_recompute_duration_seconds",
			Help:    "Overlay recompute latency per chart",
			Buckets: []float64{0.00001, 0.00005, 0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05},
		}),

		StreamConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_stream_connected",
			Help: "Ticker stream connection state (0=down, 1=up)",
		}),
		StreamReconnects: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_stream_reconnects_total",
			Help: "Ticker stream connections established after the first",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_subscriptions",
			Help: "Markets currently subscribed on the ticker stream",
		}),
		FanoutDropsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_fanout_drops_total",
			Help: "Tickers dropped by the fan-out bus per subscriber",
		}, []string{"subscriber"}),
		EventDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_stream_event_drops_total",
			Help: "Ticker events dropped because the reader fell behind",
		}),

		CircuitBreakerState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "terminal_redis_circuit_breaker_state",
			Help: "Redis circuit breaker state (0=closed, 1=open, 2=half-open)",
		}, []string{"breaker"}),
		CircuitBreakerTrips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_redis_circuit_breaker_trips_total",
			Help: "Times a Redis circuit breaker tripped open",
		}, []string{"breaker"}),
		KVErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_kv_errors_total",
			Help: "Failed drawing/watchlist/slot persistence writes",
		}),

		RendererClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "terminal_renderer_clients",
			Help: "Connected renderer WebSocket clients",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "terminal_commands_total",
			Help: "Renderer commands handled",
		}, []string{"type", "status"}),
		SlowClientDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_slow_client_drops_total",
			Help: "Updates dropped for renderer clients with full send buffers",
		}),
		UpdateDrops: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "terminal_session_update_drops_total",
			Help: "Session updates dropped for observers with full buffers",
		}),
	}

	reg.MustRegister(
		m.TicksTotal,
		m.FetchDur,
		m.FetchErrors,
		m.CacheHits,
		m.CacheMisses,
		m.BackfillTotal,
		m.BackfillAdded,
		m.ExhaustedTotal,
		m.RecomputeDur,
		m.StreamConnected,
		m.StreamReconnects,
		m.Subscriptions,
		m.FanoutDropsTotal,
		m.EventDrops,
		m.CircuitBreakerState,
		m.CircuitBreakerTrips,
		m.KVErrors,
		m.RendererClients,
		m.CommandsTotal,
		m.SlowClientDrops,
		m.UpdateDrops,
	)

	return m
}

// ── Hook adapters ──
// Components expose optional func fields; these methods match their
// signatures so main can wire them directly.

// ObserveFetch matches history.Loader.OnFetch.
func (m *Metrics) ObserveFetch(op string, d time.Duration, err error) {
	m.FetchDur.WithLabelValues(op).Observe(d.Seconds())
	if err != nil {
		m.FetchErrors.WithLabelValues(op).Inc()
	}
}

// CacheHit matches history.Loader.OnCacheHit.
func (m *Metrics) CacheHit(tier string) { m.CacheHits.WithLabelValues(tier).Inc() }

// CacheMiss matches history.Loader.OnCacheMiss.
func (m *Metrics) CacheMiss() { m.CacheMisses.Inc() }

// Tick counts one ticker event by outcome.
func (m *Metrics) Tick(result string) { m.TicksTotal.WithLabelValues(result).Inc() }

// ObserveRecompute matches indicator.Engine.OnCompute.
func (m *Metrics) ObserveRecompute(d time.Duration) { m.RecomputeDur.Observe(d.Seconds()) }

// SetSubscriptions matches submux.Multiplexer.OnChange.
func (m *Metrics) SetSubscriptions(n int) { m.Subscriptions.Set(float64(n)) }

// FanoutDrop matches bus.FanOut.OnDrop.
func (m *Metrics) FanoutDrop(subscriber string) { m.FanoutDropsTotal.WithLabelValues(subscriber).Inc() }

// SetStreamConnected records the stream connection state.
func (m *Metrics) SetStreamConnected(up bool) {
	if up {
		m.StreamConnected.Set(1)
	} else {
		m.StreamConnected.Set(0)
	}
}

// BreakerState records a circuit breaker transition; to is the numeric
// state (0=closed, 1=open, 2=half-open).
func (m *Metrics) BreakerState(name string, to int) {
	m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
	if to == 1 {
		m.CircuitBreakerTrips.WithLabelValues(name).Inc()
	}
}

// Command counts one renderer command.
func (m *Metrics) Command(typ string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.CommandsTotal.WithLabelValues(typ, status).Inc()
}
