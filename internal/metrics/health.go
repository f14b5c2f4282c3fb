package metrics

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pinger is a dependency the liveness checker pings.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthStatus represents the system health.
type HealthStatus struct {
	mu sync.RWMutex

	StreamConnected bool      `json:"stream_connected"`
	LastTickTime    time.Time `json:"last_tick_time"`
	Subscriptions   int       `json:"subscriptions"`
	Slots           int       `json:"slots"`

	// Liveness check results, keyed by dependency name
	deps        map[string]depStatus
	LastCheckAt time.Time `json:"last_check_at"`
	StartedAt   time.Time `json:"started_at"`
}

type depStatus struct {
	OK        bool    `json:"ok"`
	LatencyMs float64 `json:"latency_ms"`
	Error     string  `json:"error,omitempty"`
}

// NewHealthStatus returns a default health status.
func NewHealthStatus() *HealthStatus {
	return &HealthStatus{
		StartedAt: time.Now(),
		deps:      make(map[string]depStatus),
	}
}

func (h *HealthStatus) SetStreamConnected(v bool) {
	h.mu.Lock()
	h.StreamConnected = v
	h.mu.Unlock()
}

func (h *HealthStatus) SetLastTickTime(t time.Time) {
	h.mu.Lock()
	h.LastTickTime = t
	h.mu.Unlock()
}

func (h *HealthStatus) SetSubscriptions(n int) {
	h.mu.Lock()
	h.Subscriptions = n
	h.mu.Unlock()
}

func (h *HealthStatus) SetSlots(n int) {
	h.mu.Lock()
	h.Slots = n
	h.mu.Unlock()
}

// Check pings one dependency and records latency and result.
func (h *HealthStatus) Check(ctx context.Context, name string, p Pinger) {
	start := time.Now()
	err := p.Ping(ctx)
	latency := time.Since(start)

	st := depStatus{OK: err == nil, LatencyMs: float64(latency.Microseconds()) / 1000.0}
	if err != nil {
		st.Error = err.Error()
	}
	h.mu.Lock()
	h.deps[name] = st
	h.LastCheckAt = time.Now()
	h.mu.Unlock()
}

// StartLivenessChecker pings deps every interval until ctx is cancelled.
func (h *HealthStatus) StartLivenessChecker(ctx context.Context, deps map[string]Pinger, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
				for name, p := range deps {
					h.Check(pingCtx, name, p)
				}
				cancel()
			}
		}
	}()
}

// ServeHTTP handles the /healthz endpoint. The terminal is degraded while
// the ticker stream is down or a checked dependency fails.
func (h *HealthStatus) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	overallStatus := "healthy"
	httpCode := http.StatusOK

	failing := 0
	for _, d := range h.deps {
		if !d.OK {
			failing++
		}
	}
	if !h.StreamConnected || failing > 0 {
		overallStatus = "degraded"
		httpCode = http.StatusServiceUnavailable
	}
	if len(h.deps) > 0 && failing == len(h.deps) {
		overallStatus = "unhealthy"
	}

	tickAge := ""
	if !h.LastTickTime.IsZero() {
		tickAge = time.Since(h.LastTickTime).Round(time.Millisecond).String()
	}

	status := struct {
		Status          string               `json:"status"`
		Uptime          string               `json:"uptime"`
		StreamConnected bool                 `json:"stream_connected"`
		LastTickTime    string               `json:"last_tick_time"`
		TickAge         string               `json:"tick_age"`
		Subscriptions   int                  `json:"subscriptions"`
		Slots           int                  `json:"slots"`
		Dependencies    map[string]depStatus `json:"dependencies"`
		LastCheckAt     string               `json:"last_check_at"`
	}{
		Status:          overallStatus,
		Uptime:          time.Since(h.StartedAt).Round(time.Second).String(),
		StreamConnected: h.StreamConnected,
		LastTickTime:    h.LastTickTime.Format(time.RFC3339),
		TickAge:         tickAge,
		Subscriptions:   h.Subscriptions,
		Slots:           h.Slots,
		Dependencies:    h.deps,
		LastCheckAt:     h.LastCheckAt.Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if httpCode != http.StatusOK {
		w.WriteHeader(httpCode)
	}
	json.NewEncoder(w).Encode(status)
}

// Server runs an HTTP server exposing /metrics and /healthz.
type Server struct {
	addr string
	srv  *http.Server
}

// NewServer creates a metrics and health server.
func NewServer(addr string, health *HealthStatus) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", health)

	return &Server{
		addr: addr,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		log.Printf("[metrics] server listening on %s", s.addr)
		if err := s.srv.ListenAndServe(); err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.srv.Shutdown(shutdownCtx)
	}
}
