// Package gateway is the renderer surface: a WebSocket hub that pushes
// session updates to every connected renderer and accepts commands, plus a
// small REST API for state, drawings and reference data.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"charting-terminalv1/internal/backfill"
	"charting-terminalv1/internal/drawing"
	"charting-terminalv1/internal/marketstats"
	"charting-terminalv1/internal/slot"
	"charting-terminalv1/internal/terminal"
)

// Session is the part of the terminal session the gateway drives.
type Session interface {
	Subscribe(buffer int) (<-chan terminal.Update, func())
	Snapshot(ctx context.Context) (terminal.Snapshot, error)
	SetViewport(ctx context.Context, chartID string, r backfill.Range) error
	Reload(ctx context.Context, chartID string) error
	Drawings(ctx context.Context, chartID string) ([]drawing.Drawing, error)
	AddDrawing(ctx context.Context, chartID string, t drawing.Type, points []drawing.Point) (drawing.Drawing, error)
	RemoveDrawing(ctx context.Context, chartID, id string) (bool, error)
	ClearDrawings(ctx context.Context, chartID string) error
	HitTest(ctx context.Context, chartID string, px, py float64, vp drawing.Viewport) (drawing.Drawing, bool, error)
	ToggleWatchlist(ctx context.Context, marketID string) (bool, error)
}

// StatsSource returns the header figures for one market.
type StatsSource interface {
	Get(ctx context.Context, marketID string) (marketstats.Stats, error)
}

// Hub fans session updates out to WebSocket clients. Every envelope carries
// a global sequence number; recent envelopes are kept so a reconnecting
// renderer can resume instead of refetching the snapshot.
type Hub struct {
	Session Session
	Slots   *slot.Orchestrator

	// Stats serves per-market header figures (optional).
	Stats StatsSource

	mu      sync.RWMutex
	clients map[*Client]bool
	seq     int64
	replay  *ReplayBuffer

	// Command handling latency
	Latency *LatencyTracker

	// Hooks (optional)
	OnClients    func(n int)
	OnCommand    func(typ string, err error)
	OnSlowClient func()
}

// NewHub creates a hub over the session.
func NewHub(sess Session, slots *slot.Orchestrator) *Hub {
	return &Hub{
		Session: sess,
		Slots:   slots,
		clients: make(map[*Client]bool),
		replay:  NewReplayBuffer(2048),
		Latency: NewLatencyTracker(10000),
	}
}

// Run forwards session updates to clients until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) {
	updates, cancel := h.Session.Subscribe(4096)
	defer cancel()

	for {
		select {
		case <-ctx.Done():
			return
		case u := <-updates:
			data, err := json.Marshal(u)
			if err != nil {
				log.Printf("[gateway] marshal %s update: %v", u.Kind, err)
				continue
			}
			h.Broadcast(string(u.Kind), data)
		}
	}
}

// HandleWSRequest registers an upgraded connection. lastSeq > 0 asks for a
// replay of everything after it; when the replay buffer no longer covers it
// the client gets a fresh snapshot instead.
func (h *Hub) HandleWSRequest(conn *websocket.Conn, lastSeq int64) {
	client := &Client{
		conn: conn,
		send: make(chan []byte, 512),
		done: make(chan struct{}),
		hub:  h,
	}
	conn.EnableWriteCompression(true)

	h.mu.Lock()
	h.clients[client] = true
	count := len(h.clients)
	h.mu.Unlock()
	h.clientsChanged(count)

	log.Printf("[gateway] ws client connected (%d total)", count)

	go client.sendInitialState(lastSeq)
	go client.writePump()
	go client.readPump()
}

// RemoveClient removes a client from the hub.
func (h *Hub) RemoveClient(c *Client) {
	h.mu.Lock()
	if !h.clients[c] {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	count := len(h.clients)
	close(c.done)
	h.mu.Unlock()
	h.clientsChanged(count)
}

// ClientCount returns the number of connected WS clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Seq returns the sequence number of the last broadcast envelope.
func (h *Hub) Seq() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.seq
}

// StartMetricsBroadcast sends process metrics to all WS clients every 2s.
func (h *Hub) StartMetricsBroadcast(ctx context.Context, start time.Time) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m := CollectMetrics(start)
			m.Clients = h.ClientCount()
			if h.Latency != nil {
				m.CommandP50, m.CommandP95, m.CommandP99 = h.Latency.Percentiles()
			}
			data, _ := json.Marshal(m)
			// Not sequenced: metrics are not replayed.
			env := envelope("metrics", 0, time.Now().UTC(), data)
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- env:
				default:
				}
			}
			h.mu.RUnlock()
		}
	}
}

func (h *Hub) clientsChanged(n int) {
	if h.OnClients != nil {
		h.OnClients(n)
	}
}
