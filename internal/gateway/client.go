package gateway

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

// Client represents a single renderer connection.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{} // closed by Hub.RemoveClient
	hub  *Hub
}

// sendInitialState replays missed envelopes when possible, otherwise sends
// a snapshot tagged with the current sequence number. Updates with a seq at
// or below it are already reflected in the snapshot.
func (c *Client) sendInitialState(lastSeq int64) {
	if lastSeq > 0 {
		if missed, ok := c.hub.replay.Since(lastSeq); ok {
			for _, env := range missed {
				if !c.trySend(env) {
					return
				}
			}
			log.Printf("[gateway] resumed client from seq %d (%d envelopes)", lastSeq, len(missed))
			return
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	seq := c.hub.Seq()
	snap, err := c.hub.Session.Snapshot(ctx)
	if err != nil {
		log.Printf("[gateway] snapshot for new client: %v", err)
		return
	}
	data, err := json.Marshal(snap)
	if err != nil {
		log.Printf("[gateway] marshal snapshot: %v", err)
		return
	}
	c.trySend(envelope("snapshot", seq, time.Now().UTC(), data))
}

// trySend queues msg without blocking. It reports false when the client is
// gone or its buffer is full.
func (c *Client) trySend(msg []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))

			// Coalesce queued envelopes into one frame, newline separated.
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Client) readPump() {
	defer func() {
		c.hub.RemoveClient(c)
		c.conn.Close()
		log.Println("[gateway] ws client disconnected")
	}()

	c.conn.SetReadLimit(16 * 1024)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			break
		}

		var cmd Command
		if err := json.Unmarshal(msg, &cmd); err != nil {
			c.reply(Ack{Type: "ack", OK: false, Error: "invalid command: " + err.Error()})
			continue
		}
		if cmd.Type == "ping" {
			pong, _ := json.Marshal(map[string]interface{}{
				"type":      "pong",
				"ping":      cmd.Ping,
				"server_ts": time.Now().UnixMilli(),
			})
			c.trySend(pong)
			continue
		}

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		ack := c.hub.Execute(ctx, cmd)
		cancel()
		c.reply(ack)
	}
}

func (c *Client) reply(ack Ack) {
	data, err := json.Marshal(ack)
	if err != nil {
		log.Printf("[gateway] marshal ack: %v", err)
		return
	}
	c.trySend(data)
}
