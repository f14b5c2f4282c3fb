package gateway

import "sync"

// replayEntry holds a single broadcast envelope.
type replayEntry struct {
	Seq  int64
	Data []byte
}

// ReplayBuffer is a fixed-size circular buffer of recent envelopes, used to
// resume a reconnecting renderer without a full snapshot.
type ReplayBuffer struct {
	mu   sync.RWMutex
	buf  []replayEntry
	cap  int
	pos  int // next write position
	full bool
}

// NewReplayBuffer creates a replay buffer with the given capacity.
func NewReplayBuffer(capacity int) *ReplayBuffer {
	if capacity <= 0 {
		capacity = 500
	}
	return &ReplayBuffer{
		buf: make([]replayEntry, capacity),
		cap: capacity,
	}
}

// Push appends an envelope, overwriting the oldest when full. Seqs must be
// pushed in increasing order.
func (rb *ReplayBuffer) Push(seq int64, data []byte) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.buf[rb.pos] = replayEntry{Seq: seq, Data: append([]byte(nil), data...)}
	rb.pos = (rb.pos + 1) % rb.cap
	if rb.pos == 0 {
		rb.full = true
	}
}

// Since returns every envelope after seq in order. ok is false when the
// entries right after seq were already evicted, or when seq is ahead of the
// buffer (the sequence restarted), so the caller cannot resume gap-free.
func (rb *ReplayBuffer) Since(seq int64) (out [][]byte, ok bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	n := rb.len()
	if n == 0 {
		return nil, false
	}
	oldest, newest := rb.buf[rb.index(0)].Seq, rb.buf[rb.index(n-1)].Seq
	if oldest > seq+1 || seq > newest {
		return nil, false
	}
	for i := 0; i < n; i++ {
		if e := rb.buf[rb.index(i)]; e.Seq > seq {
			out = append(out, e.Data)
		}
	}
	return out, true
}

// Len returns the number of entries currently in the buffer.
func (rb *ReplayBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.len()
}

func (rb *ReplayBuffer) len() int {
	if rb.full {
		return rb.cap
	}
	return rb.pos
}

// index converts a logical index (0 = oldest) to a physical buffer index.
func (rb *ReplayBuffer) index(logical int) int {
	if rb.full {
		return (rb.pos + logical) % rb.cap
	}
	return logical
}
