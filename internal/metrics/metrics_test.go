package metrics

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// read returns the current value of a counter or gauge.
func read(t *testing.T, m prometheus.Metric) float64 {
	t.Helper()
	var pb dto.Metric
	require.NoError(t, m.Write(&pb))
	switch {
	case pb.Counter != nil:
		return pb.Counter.GetValue()
	case pb.Gauge != nil:
		return pb.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %v", pb.String())
	return 0
}

func TestHooks(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	m.ObserveFetch("candles", 120*time.Millisecond, nil)
	m.ObserveFetch("backfill", time.Second, errors.New("timeout"))
	m.CacheHit("memory")
	m.CacheHit("memory")
	m.CacheMiss()
	m.Tick("stale")
	m.SetSubscriptions(7)
	m.BreakerState("redis-kv", 1)
	m.BreakerState("redis-kv", 2)
	m.Command("set_layout", nil)

	assert.Equal(t, 1.0, read(t, m.FetchErrors.WithLabelValues("backfill")))
	assert.Equal(t, 0.0, read(t, m.FetchErrors.WithLabelValues("candles")))
	assert.Equal(t, 2.0, read(t, m.CacheHits.WithLabelValues("memory")))
	assert.Equal(t, 1.0, read(t, m.TicksTotal.WithLabelValues("stale")))
	assert.Equal(t, 7.0, read(t, m.Subscriptions))
	assert.Equal(t, 2.0, read(t, m.CircuitBreakerState.WithLabelValues("redis-kv")))
	assert.Equal(t, 1.0, read(t, m.CircuitBreakerTrips.WithLabelValues("redis-kv")))
	assert.Equal(t, 1.0, read(t, m.CommandsTotal.WithLabelValues("set_layout", "ok")))
}

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestHealthStatus_ServeHTTP(t *testing.T) {
	h := NewHealthStatus()
	h.SetStreamConnected(true)
	h.Check(context.Background(), "sqlite", pingFunc(func(context.Context) error { return nil }))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	h.Check(context.Background(), "redis", pingFunc(func(context.Context) error { return errors.New("refused") }))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body struct {
		Status       string `json:"status"`
		Dependencies map[string]struct {
			OK    bool   `json:"ok"`
			Error string `json:"error"`
		} `json:"dependencies"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "degraded", body.Status)
	assert.False(t, body.Dependencies["redis"].OK)
	assert.Equal(t, "refused", body.Dependencies["redis"].Error)
}
