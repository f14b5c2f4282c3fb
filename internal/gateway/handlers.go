package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"charting-terminalv1/internal/drawing"
	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/slot"
	"charting-terminalv1/internal/terminal"
)

var upgrader = websocket.Upgrader{
	CheckOrigin:       func(r *http.Request) bool { return true },
	EnableCompression: true,
}

// SetCORS sets CORS headers for REST endpoints.
func SetCORS(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// RegisterRoutes registers the renderer endpoints on mux. timeframes is the
// enabled timeframe list offered to the UI.
func RegisterRoutes(mux *http.ServeMux, hub *Hub, timeframes []model.Timeframe, processStart time.Time) {
	// WebSocket endpoint
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("[gateway] ws upgrade error: %v", err)
			return
		}
		lastSeq, _ := strconv.ParseInt(r.URL.Query().Get("last_seq"), 10, 64)
		hub.HandleWSRequest(conn, lastSeq)
	})

	// REST: full session snapshot
	mux.HandleFunc("/api/state", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		snap, err := hub.Session.Snapshot(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, snap)
	})

	// REST: commands, same shape as over the WebSocket
	mux.HandleFunc("/api/command", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, errors.New("POST only"))
			return
		}
		var cmd Command
		if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
			writeError(w, http.StatusBadRequest, errors.New("invalid JSON"))
			return
		}
		ack := hub.Execute(r.Context(), cmd)
		if !ack.OK {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(statusFor(ack.err))
			json.NewEncoder(w).Encode(ack)
			return
		}
		writeJSON(w, ack)
	})

	// REST: drawings of one chart
	mux.HandleFunc("/api/drawings", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		ds, err := hub.Session.Drawings(r.Context(), r.URL.Query().Get("chartId"))
		if err != nil {
			if errors.Is(err, terminal.ErrUnknownChart) {
				writeError(w, http.StatusNotFound, err)
				return
			}
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if ds == nil {
			ds = []drawing.Drawing{}
		}
		writeJSON(w, ds)
	})

	// REST: watchlist
	mux.HandleFunc("/api/watchlist", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		snap, err := hub.Session.Snapshot(r.Context())
		if err != nil {
			writeError(w, http.StatusServiceUnavailable, err)
			return
		}
		writeJSON(w, snap.Watchlist)
	})

	// REST: market universe
	mux.HandleFunc("/api/markets", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		writeJSON(w, hub.Slots.Universe())
	})

	// REST: per-market header figures
	mux.HandleFunc("GET /api/markets/{marketId}/metrics", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		if hub.Stats == nil {
			writeError(w, http.StatusNotFound, errors.New("market stats not enabled"))
			return
		}
		st, err := hub.Stats.Get(r.Context(), r.PathValue("marketId"))
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, model.ErrInvalidMarketID) {
				status = http.StatusBadRequest
			}
			writeError(w, status, err)
			return
		}
		writeJSON(w, st)
	})

	// REST: available timeframes
	mux.HandleFunc("/api/timeframes", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		out := make([]TimeframeInfo, len(timeframes))
		for i, tf := range timeframes {
			out[i] = TimeframeInfo{Timeframe: tf, Seconds: tf.Seconds()}
		}
		writeJSON(w, out)
	})

	// REST: process metrics snapshot
	mux.HandleFunc("/api/metrics", func(w http.ResponseWriter, r *http.Request) {
		SetCORS(w)
		m := CollectMetrics(processStart)
		m.Clients = hub.ClientCount()
		m.CommandP50, m.CommandP95, m.CommandP99 = hub.Latency.Percentiles()
		writeJSON(w, m)
	})
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

// statusFor maps a command error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, terminal.ErrUnknownChart), errors.Is(err, slot.ErrUnknownSlot):
		return http.StatusNotFound
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadRequest
	}
}
