// Command terminald runs the multi-market charting engine: it loads candle
// history, keeps every visible chart live from the ticker stream and serves
// renderers over WebSocket.
package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"charting-terminalv1/config"
	"charting-terminalv1/internal/backfill"
	"charting-terminalv1/internal/drawing"
	"charting-terminalv1/internal/gateway"
	"charting-terminalv1/internal/history"
	"charting-terminalv1/internal/indicator"
	"charting-terminalv1/internal/logger"
	"charting-terminalv1/internal/marketdata/bus"
	"charting-terminalv1/internal/marketdata/rest"
	"charting-terminalv1/internal/marketdata/stream"
	"charting-terminalv1/internal/marketstats"
	"charting-terminalv1/internal/metrics"
	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/slot"
	redisstore "charting-terminalv1/internal/store/redis"
	"charting-terminalv1/internal/submux"
	"charting-terminalv1/internal/terminal"
	"charting-terminalv1/internal/watchlist"
)

var processStart = time.Now()

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[terminald] starting...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[terminald] %v", err)
	}

	var logOpts []logger.Option
	if cfg.LogFile != "" {
		logOpts = append(logOpts, logger.WithFile(cfg.LogFile, 50, 5))
	}
	_, logCloser := logger.Init("terminald", logger.ParseLevel(cfg.LogLevel), logOpts...)
	defer logCloser.Close()

	params := indicator.DefaultParams()
	if cfg.IndicatorConfig != "" {
		if params, err = config.LoadIndicatorParams(cfg.IndicatorConfig); err != nil {
			log.Fatalf("[terminald] indicator config: %v", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ---- Metrics & health ----
	prom := metrics.NewMetrics(nil)
	health := metrics.NewHealthStatus()
	pingers := map[string]metrics.Pinger{}

	// ---- Storage ----
	st, err := openStorage(ctx, cfg, func(name string, from, to redisstore.State) {
		log.Printf("[redis] circuit breaker %s: %s -> %s", name, from, to)
		prom.BreakerState(name, int(to))
	})
	if err != nil {
		log.Fatalf("[terminald] storage: %v", err)
	}
	defer st.Close()
	for name, p := range st.pingers {
		pingers[name] = p
	}
	kv, l2 := st.kv, st.l2
	kv = countingKV{KV: kv, onError: func() { prom.KVErrors.Inc() }}

	// ---- History ----
	fetcher := rest.New(rest.Config{BaseURL: cfg.HistoryBaseURL})
	loaderCfg := history.DefaultLoaderConfig()
	loaderCfg.MaxAge = cfg.CacheMaxAge
	loaderCfg.L2TTL = cfg.CacheL2TTL
	loaderCfg.Timeout = cfg.FetchTimeout
	loaderCfg.Retries = cfg.FetchRetries
	loader := history.NewLoader(history.NewCache(), l2, fetcher, loaderCfg)
	loader.OnFetch = prom.ObserveFetch
	loader.OnCacheHit = prom.CacheHit
	loader.OnCacheMiss = prom.CacheMiss

	// ---- Ticker stream ----
	streamCfg := stream.DefaultConfig(cfg.TickerWSURL)
	streamCfg.BackoffMin = cfg.StreamBackoffMin
	streamCfg.BackoffMax = cfg.StreamBackoffMax
	tickers := stream.New(streamCfg)
	tickers.OnDrop = func() { prom.EventDrops.Inc() }

	fanout := bus.New(4096)
	fanout.OnDrop = prom.FanoutDrop
	sessionTicks := fanout.Subscribe("session")
	healthTicks := fanout.Subscribe("health")
	statsTicks := fanout.Subscribe("stats")

	mux := submux.New(tickers)
	mux.OnChange = func(n int) {
		prom.SetSubscriptions(n)
		health.SetSubscriptions(n)
	}

	// ---- Slots, drawings, watchlist ----
	slots := slot.New(kv)
	if l, err := slot.ParseLayout(cfg.DefaultLayout); err == nil {
		slots.SetLayout(l)
	}
	if tf, err := model.ParseTimeframe(cfg.DefaultTimeframe); err == nil {
		slots.SetGlobalTimeframe(tf)
	}
	if err := slots.Load(ctx); err != nil {
		slog.Warn("slot state not restored, using defaults", "error", err)
	}
	slots.SetUniverse(cfg.ParseMarkets())

	wl := watchlist.NewStore(kv)
	if err := wl.Load(ctx); err != nil {
		slog.Warn("watchlist not restored", "error", err)
	}
	drawings := drawing.NewStore(kv)
	defer drawings.Close()

	engine := indicator.NewEngine(params)
	engine.OnCompute = prom.ObserveRecompute

	// ---- Session ----
	sessCfg := terminal.DefaultConfig()
	sessCfg.InitialLimit = cfg.InitialLimit
	sessCfg.RecomputeDebounce = cfg.RecomputeDebounce
	sessCfg.Backfill = backfill.Config{
		EdgeBars:  cfg.BackfillEdgeBars,
		Debounce:  cfg.BackfillDebounce,
		MinBars:   cfg.BackfillMinBars,
		PageLimit: cfg.BackfillLimit,
	}
	sess, err := terminal.New(sessCfg, terminal.Deps{
		Slots:     slots,
		History:   loader,
		Engine:    engine,
		Subs:      mux,
		Drawings:  drawings,
		Watchlist: wl,
		Tickers:   sessionTicks,
	})
	if err != nil {
		log.Fatalf("[terminald] session: %v", err)
	}
	sess.OnTick = prom.Tick
	sess.OnBackfill = func(backfill.Request) { prom.BackfillTotal.Inc() }
	sess.OnBackfillAdded = func(n int) { prom.BackfillAdded.Add(float64(n)) }
	sess.OnExhausted = func(string, model.Timeframe) { prom.ExhaustedTotal.Inc() }
	sess.OnUpdateDrop = func() { prom.UpdateDrops.Inc() }

	tickers.OnConnect = func() {
		prom.SetStreamConnected(true)
		health.SetStreamConnected(true)
		sess.SetOnline(true)
	}
	tickers.OnDisconnect = func(err error) {
		prom.SetStreamConnected(false)
		prom.StreamReconnects.Inc()
		health.SetStreamConnected(false)
		sess.SetOnline(false)
	}

	// ---- Renderer gateway ----
	hub := gateway.NewHub(sess, slots)
	hub.OnClients = func(n int) { prom.RendererClients.Set(float64(n)) }
	hub.OnCommand = prom.Command
	hub.OnSlowClient = func() { prom.SlowClientDrops.Inc() }

	stats := marketstats.New(marketstats.DefaultConfig(), loader)
	stats.OnCompute = func(marketID string, err error) {
		if err != nil {
			slog.Warn("market stats failed", "market", marketID, "error", err)
		}
	}
	hub.Stats = stats

	httpMux := http.NewServeMux()
	gateway.RegisterRoutes(httpMux, hub, cfg.ParseTimeframes(), processStart)
	httpMux.Handle("/healthz", health)
	srv := &http.Server{Addr: cfg.ListenAddr, Handler: httpMux, ReadHeaderTimeout: 5 * time.Second}

	health.StartLivenessChecker(ctx, pingers, 15*time.Second)

	// ---- Run ----
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return tickers.Run(gctx) })
	g.Go(func() error {
		fanout.Run(gctx, tickers.Events())
		return nil
	})
	g.Go(func() error { return sess.Run(gctx) })
	g.Go(func() error { return stats.Run(gctx, statsTicks) })
	g.Go(func() error {
		hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		hub.StartMetricsBroadcast(gctx, processStart)
		return nil
	})
	g.Go(func() error {
		for range healthTicks {
			health.SetLastTickTime(time.Now())
		}
		return nil
	})
	g.Go(func() error {
		events := slots.Subscribe(16)
		health.SetSlots(len(slots.Slots()))
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-events:
				health.SetSlots(len(slots.Slots()))
			}
		}
	})
	g.Go(func() error { return metrics.NewServer(cfg.MetricsAddr, health).Run(gctx) })
	g.Go(func() error {
		log.Printf("[terminald] listening on %s", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	log.Printf("[terminald] %d markets, layout %s, timeframe %s", len(slots.Universe()), slots.Snapshot().Layout, slots.Snapshot().GlobalTimeframe)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Printf("[terminald] stopped with error: %v", err)
	}

	saveCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := slots.Save(saveCtx); err != nil {
		log.Printf("[terminald] WARNING: slot state not saved: %v", err)
	}
	log.Println("[terminald] shutdown complete.")
}

// countingKV counts write failures for the metrics endpoint.
type countingKV struct {
	model.KV
	onError func()
}

func (k countingKV) Set(ctx context.Context, key string, value []byte) error {
	err := k.KV.Set(ctx, key, value)
	if err != nil {
		k.onError()
	}
	return err
}

func (k countingKV) Delete(ctx context.Context, key string) error {
	err := k.KV.Delete(ctx, key)
	if err != nil {
		k.onError()
	}
	return err
}
