// Package stream is the duplex ticker stream transport. It owns the single
// process-wide WebSocket connection, reconnects with exponential backoff and
// decodes ticker frames. It does not remember subscriptions: after every
// (re)connect the owner must re-drive its desired set.
package stream

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"charting-terminalv1/internal/model"
)

// Config configures the stream client.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	BackoffMin       time.Duration
	BackoffMax       time.Duration
	PingInterval     time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	EventBuffer      int
}

// DefaultConfig returns a 10s handshake, 1s→30s backoff, 30s ping and 60s
// read deadline.
func DefaultConfig(url string) Config {
	return Config{
		URL:              url,
		HandshakeTimeout: 10 * time.Second,
		BackoffMin:       time.Second,
		BackoffMax:       30 * time.Second,
		PingInterval:     30 * time.Second,
		ReadTimeout:      60 * time.Second,
		WriteTimeout:     10 * time.Second,
		EventBuffer:      4096,
	}
}

// Client is the ticker stream connection. Send is safe for concurrent use
// but only the subscription multiplexer should call it.
type Client struct {
	cfg    Config
	dialer websocket.Dialer

	mu      sync.Mutex
	conn    *websocket.Conn
	writeMu sync.Mutex

	connected atomic.Bool
	wake      chan struct{}
	events    chan model.Ticker

	// Lifecycle hooks (optional). OnConnect runs on the Run goroutine after
	// every successful dial.
	OnConnect    func()
	OnDisconnect func(err error)
	OnDrop       func()
}

// New creates a client. Nothing is dialed until the first Send or Connect.
func New(cfg Config) *Client {
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = 4096
	}
	return &Client{
		cfg: cfg,
		dialer: websocket.Dialer{
			HandshakeTimeout:  cfg.HandshakeTimeout,
			EnableCompression: true,
		},
		wake:   make(chan struct{}, 1),
		events: make(chan model.Ticker, cfg.EventBuffer),
	}
}

// Events returns decoded ticker events. The channel is closed when Run returns.
func (c *Client) Events() <-chan model.Ticker { return c.events }

// Connected reports whether a connection is currently established.
func (c *Client) Connected() bool { return c.connected.Load() }

// Connect asks Run to establish the connection if it is not up yet.
func (c *Client) Connect() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// Send writes a control frame. When no connection is up it requests one and
// returns ErrStreamUnavailable; the caller re-sends from OnConnect.
func (c *Client) Send(ctx context.Context, frame model.ControlFrame) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		c.Connect()
		return model.ErrStreamUnavailable
	}

	deadline := time.Now().Add(c.cfg.WriteTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(frame); err != nil {
		return fmt.Errorf("%w: write %s: %v", model.ErrStreamUnavailable, frame.Type, err)
	}
	return nil
}

// Run waits for the first Connect/Send, then keeps the connection alive until
// ctx is cancelled.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.events)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-c.wake:
	}

	backoff := c.cfg.BackoffMin
	for {
		established, err := c.runOnce(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if established {
			backoff = c.cfg.BackoffMin
		}
		log.Printf("[stream] disconnected: %v (retry in %v)", err, backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < c.cfg.BackoffMax {
			backoff *= 2
			if backoff > c.cfg.BackoffMax {
				backoff = c.cfg.BackoffMax
			}
		}
	}
}

func (c *Client) runOnce(ctx context.Context) (bool, error) {
	conn, _, err := c.dialer.DialContext(ctx, c.cfg.URL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		return nil
	})

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.connected.Store(true)
	log.Printf("[stream] connected to %s", c.cfg.URL)

	done := make(chan struct{})
	defer func() {
		close(done)
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		c.connected.Store(false)
		conn.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()
	go c.pingLoop(conn, done)

	if c.OnConnect != nil {
		c.OnConnect()
	}

	err = c.readLoop(conn)
	if c.OnDisconnect != nil {
		c.OnDisconnect(err)
	}
	return true, err
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return errors.New("closed by server")
			}
			return err
		}
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))

		tk, ok := model.ParseTickerFrame(msg)
		if !ok {
			continue
		}
		select {
		case c.events <- tk:
		default:
			if c.OnDrop != nil {
				c.OnDrop()
			} else {
				log.Printf("[stream] event buffer full, dropping ticker %s", tk.MarketID)
			}
		}
	}
}

func (c *Client) pingLoop(conn *websocket.Conn, done <-chan struct{}) {
	if c.cfg.PingInterval <= 0 {
		return
	}
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout)); err != nil {
				return
			}
		}
	}
}
