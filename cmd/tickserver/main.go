// Command tickserver is a demo market data server.
// Serves simulated candle history and a ticker stream so terminald can run
// without exchange access.
//
// Endpoints match what terminald expects from the real backend:
//
//	GET /api/markets/{marketId}/candles?interval=1h&limit=300[&endTime=...]
//	WS  /ws   {"type":"subscribe","markets":["BI:SPOT:BTCUSDT"]}
//
// History is deterministic per (market, bucket) so repeated loads and
// backfills agree with each other.
//
// Config (env vars):
//
//	TICK_SERVER_ADDR  listen address  (default: ":9001")
//	TICK_INTERVAL_MS  ticker interval milliseconds (default: "500")
package main

import (
	"encoding/json"
	"fmt"
	"hash/fnv"
	"log"
	"math"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"charting-terminalv1/internal/model"
)

const maxLimit = 1000

// ─── Simulated prices ─────────────────────────────────────────────────────────

// basePrice picks a stable starting level for a market.
func basePrice(marketID string) float64 {
	switch marketID {
	case "BI:SPOT:BTCUSDT", "BY:PERP:BTCUSDT":
		return 65000
	case "BI:SPOT:ETHUSDT", "BY:PERP:ETHUSDT":
		return 3200
	}
	return 100 + float64(hash(marketID, 0)%900)
}

func hash(marketID string, bucket int64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(marketID))
	h.Write([]byte(strconv.FormatInt(bucket, 10)))
	return h.Sum64()
}

// priceAt is a slow sine drift plus per-bucket noise.
func priceAt(marketID string, ts int64) float64 {
	base := basePrice(marketID)
	drift := 0.08 * math.Sin(float64(ts)/(86400*3))
	noise := (float64(hash(marketID, ts)%2000)/1000 - 1) * 0.004
	return base * (1 + drift + noise)
}

func candleAt(marketID string, bucket, tfSec int64) model.Candle {
	open := priceAt(marketID, bucket)
	cl := priceAt(marketID, bucket+tfSec)
	spread := math.Abs(cl-open) + open*0.001*float64(hash(marketID, bucket+1)%5+1)
	return model.Candle{
		Time:   bucket,
		Open:   open,
		High:   math.Max(open, cl) + spread/2,
		Low:    math.Min(open, cl) - spread/2,
		Close:  cl,
		Volume: float64(hash(marketID, bucket+2)%10000) / 10,
	}
}

// ─── History ──────────────────────────────────────────────────────────────────

func candlesHandler(now func() time.Time) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		marketID := r.PathValue("marketId")
		if _, err := model.ParseMarketID(marketID); err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		tf, err := model.ParseTimeframe(r.URL.Query().Get("interval"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil || limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		if limit > maxLimit {
			limit = maxLimit
		}

		tfSec := tf.Seconds()
		last := model.Bucket(now().Unix(), tfSec)
		if s := r.URL.Query().Get("endTime"); s != "" {
			end, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				http.Error(w, "bad endTime", http.StatusBadRequest)
				return
			}
			if b := model.Bucket(end, tfSec); b < last {
				last = b
			}
		}

		candles := make([]model.Candle, 0, limit)
		first := last - int64(limit-1)*tfSec
		if first < 0 {
			first = 0
		}
		for b := first; b <= last; b += tfSec {
			candles = append(candles, candleAt(marketID, b, tfSec))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{"candles": candles})
	}
}

// ─── Ticker stream ────────────────────────────────────────────────────────────

type conn struct {
	mu      sync.Mutex
	markets map[string]bool
	send    chan []byte
}

func (c *conn) apply(f model.ControlFrame) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range f.Markets {
		switch f.Type {
		case model.FrameSubscribe:
			c.markets[m] = true
		case model.FrameUnsubscribe:
			delete(c.markets, m)
		}
	}
}

func (c *conn) subscribed() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.markets))
	for m := range c.markets {
		out = append(out, m)
	}
	return out
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(_ *http.Request) bool { return true },
}

func wsHandler(interval time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[tickserver] upgrade error: %v", err)
			return
		}
		log.Printf("[tickserver] client connected: %s", r.RemoteAddr)

		c := &conn{markets: make(map[string]bool), send: make(chan []byte, 256)}
		done := make(chan struct{})
		defer func() {
			close(done)
			ws.Close()
			log.Printf("[tickserver] client disconnected: %s", r.RemoteAddr)
		}()

		go generate(c, interval, done)

		// Write pump: sends ticker JSON to this client.
		go func() {
			for {
				select {
				case <-done:
					return
				case msg := <-c.send:
					ws.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := ws.WriteMessage(websocket.TextMessage, msg); err != nil {
						return
					}
				}
			}
		}()

		for {
			var f model.ControlFrame
			if err := ws.ReadJSON(&f); err != nil {
				return
			}
			c.apply(f)
		}
	}
}

// generate emits a ticker for every subscribed market each interval,
// walking the live price ±0.1% per step.
func generate(c *conn, interval time.Duration, done <-chan struct{}) {
	t := time.NewTicker(interval)
	defer t.Stop()

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	prices := make(map[string]float64)
	for {
		select {
		case <-done:
			return
		case now := <-t.C:
			for _, id := range c.subscribed() {
				m, err := model.ParseMarketID(id)
				if err != nil {
					continue
				}
				p, ok := prices[id]
				if !ok {
					p = priceAt(id, now.Unix())
				}
				p *= 1 + (rng.Float64()*0.2-0.1)/100
				prices[id] = p

				open24 := priceAt(id, now.Unix()-86400)
				b, err := json.Marshal(model.TickerEvent{
					Type:       model.FrameTicker,
					MarketID:   id,
					Symbol:     m.Symbol,
					Exchange:   m.Exchange,
					MarketType: m.MarketType,
					Price:      decimal.NewFromFloat(p).Round(8),
					Change24h:  decimal.NewFromFloat((p - open24) / open24 * 100).Round(2),
					Volume24h:  decimal.NewFromInt(int64(hash(id, now.Unix()/3600) % 1_000_000)),
					Timestamp:  now.UnixMilli(),
				})
				if err != nil {
					continue
				}
				select {
				case c.send <- b:
				default: // slow client, drop ticker
				}
			}
		}
	}
}

// ─── main ─────────────────────────────────────────────────────────────────────

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)
	log.Println("[tickserver] starting demo market data server...")

	addr := envOrDefault("TICK_SERVER_ADDR", ":9001")
	intervalMs := envIntOrDefault("TICK_INTERVAL_MS", 500)
	log.Printf("[tickserver] ticker interval: %dms", intervalMs)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/markets/{marketId}/candles", candlesHandler(time.Now))
	mux.HandleFunc("/ws", wsHandler(time.Duration(intervalMs)*time.Millisecond))
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintln(w, `{"status":"ok","service":"tickserver"}`)
	})

	log.Printf("[tickserver] listening on %s  (WebSocket: ws://localhost%s/ws)", addr, addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		log.Fatalf("[tickserver] server error: %v", err)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntOrDefault(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}
