package gateway

import (
	"strconv"
	"time"
)

// Broadcast wraps data in a sequenced envelope, records it for replay and
// sends it to every client. Clients whose buffer is full miss the message
// and are expected to resync from the snapshot.
func (h *Hub) Broadcast(kind string, data []byte) {
	now := time.Now().UTC()

	h.mu.Lock()
	h.seq++
	seq := h.seq
	env := envelope(kind, seq, now, data)
	h.replay.Push(seq, env)
	h.mu.Unlock()

	h.mu.RLock()
	defer h.mu.RUnlock()
	for client := range h.clients {
		select {
		case client.send <- env:
		default:
			if h.OnSlowClient != nil {
				h.OnSlowClient()
			}
		}
	}
}

// envelope hand-crafts {"type":..,"seq":..,"ts":..,"data":..}. data must
// already be valid JSON; kind must not need escaping.
func envelope(kind string, seq int64, now time.Time, data []byte) []byte {
	buf := make([]byte, 0, len(kind)+len(data)+96)
	buf = append(buf, `{"type":"`...)
	buf = append(buf, kind...)
	buf = append(buf, `","seq":`...)
	buf = strconv.AppendInt(buf, seq, 10)
	buf = append(buf, `,"ts":"`...)
	buf = now.AppendFormat(buf, time.RFC3339Nano)
	buf = append(buf, `","data":`...)
	if len(data) == 0 {
		buf = append(buf, "null"...)
	} else {
		buf = append(buf, data...)
	}
	buf = append(buf, '}')
	return buf
}
