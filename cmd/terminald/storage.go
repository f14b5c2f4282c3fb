package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"charting-terminalv1/config"
	"charting-terminalv1/internal/history"
	"charting-terminalv1/internal/metrics"
	"charting-terminalv1/internal/model"
	"charting-terminalv1/internal/store/memory"
	redisstore "charting-terminalv1/internal/store/redis"
	sqlitestore "charting-terminalv1/internal/store/sqlite"
)

// storage is the persistence backend picked at startup.
type storage struct {
	backend string // "redis", "sqlite" or "memory"
	kv      model.KV
	l2      history.SecondaryCache
	pingers map[string]metrics.Pinger
	closers []io.Closer
}

func (s *storage) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i].Close()
	}
}

// openStorage uses Redis when configured and reachable, SQLite as the
// fallback, and memory when neither is available. Exactly one backend is
// opened.
func openStorage(ctx context.Context, cfg *config.Config, onBreaker func(name string, from, to redisstore.State)) (*storage, error) {
	st := &storage{pingers: map[string]metrics.Pinger{}}

	if cfg.RedisAddr != "" {
		rc, err := redisstore.New(redisstore.Config{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			log.Printf("[terminald] WARNING: redis unavailable, falling back to local storage: %v", err)
		} else {
			st.closers = append(st.closers, rc)
			st.pingers["redis"] = rc
			rkv, rseries := redisstore.NewKV(rc), redisstore.NewSeriesCache(rc)
			for _, cb := range []*redisstore.CircuitBreaker{rkv.Breaker, rseries.Breaker} {
				cb.OnStateChange = onBreaker
			}
			st.backend, st.kv, st.l2 = "redis", rkv, rseries
			log.Printf("[terminald] redis connected at %s", cfg.RedisAddr)
			return st, nil
		}
	}

	if cfg.SQLitePath != "" {
		if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("sqlite dir %s: %w", dir, err)
			}
		}
		sq, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.SQLitePath})
		if err != nil {
			return nil, fmt.Errorf("sqlite init: %w", err)
		}
		st.closers = append(st.closers, sq)
		st.pingers["sqlite"] = sq
		sc := sqlitestore.NewSeriesCache(sq)
		go sc.RunPruner(ctx, 10*time.Minute)
		st.backend, st.kv, st.l2 = "sqlite", sqlitestore.NewKV(sq), sc
		log.Printf("[terminald] sqlite ready at %s", cfg.SQLitePath)
		return st, nil
	}

	log.Println("[terminald] WARNING: no durable store configured, state is kept in memory")
	st.backend, st.kv = "memory", memory.NewKV()
	return st, nil
}
