// Package redis is the shared second-tier store: candle series cached across
// terminal processes and the key-value surface for drawings, watchlist and
// slot state.
package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	goredis "github.com/go-redis/redis/v8"
)

// Config configures the Redis connection.
type Config struct {
	Addr     string // e.g. "localhost:6379"
	Password string
	DB       int

	// Breaker settings shared by SeriesCache and KV.
	MaxFailures  int
	ResetTimeout time.Duration
}

// Client wraps the go-redis client.
type Client struct {
	rdb *goredis.Client
	cfg Config
}

// New connects and pings the server.
func New(cfg Config) (*Client, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	log.Printf("[redis] connected to %s", cfg.Addr)
	return &Client{rdb: rdb, cfg: cfg}, nil
}

// Redis returns the underlying client for health checks.
func (c *Client) Redis() *goredis.Client { return c.rdb }

// Ping checks connectivity.
func (c *Client) Ping(ctx context.Context) error { return c.rdb.Ping(ctx).Err() }

// Close closes the connection pool.
func (c *Client) Close() error { return c.rdb.Close() }

func (c *Client) breaker(name string) *CircuitBreaker {
	maxFailures, reset := c.cfg.MaxFailures, c.cfg.ResetTimeout
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if reset <= 0 {
		reset = 10 * time.Second
	}
	return NewCircuitBreaker(name, maxFailures, reset)
}
