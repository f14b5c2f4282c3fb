// Package bus fans the single ticker stream out to every consumer (the
// session loop, the renderer gateway's ticker panel).
package bus

import (
	"context"
	"log"
	"sync"

	"charting-terminalv1/internal/model"
)

// FanOut broadcasts tickers from a single input channel to N output channels.
// If an output channel is full, the ticker is dropped for that consumer to
// prevent a slow consumer from blocking the stream reader.
type FanOut struct {
	mu      sync.RWMutex
	outputs []chan model.Ticker
	names   []string
	bufSize int

	// OnDrop is called when a ticker is dropped for a subscriber.
	OnDrop func(subscriber string)
}

// New creates a FanOut with the given buffer size for output channels.
func New(outputBufferSize int) *FanOut {
	return &FanOut{bufSize: outputBufferSize}
}

// Subscribe creates and returns a new named output channel. Subscribe before
// Run starts.
func (f *FanOut) Subscribe(name string) <-chan model.Ticker {
	ch := make(chan model.Ticker, f.bufSize)
	f.mu.Lock()
	f.outputs = append(f.outputs, ch)
	f.names = append(f.names, name)
	f.mu.Unlock()
	return ch
}

// Run reads from the input channel and fans out to all subscribers.
// Blocks until ctx is cancelled or input is closed; outputs are closed on return.
func (f *FanOut) Run(ctx context.Context, input <-chan model.Ticker) {
	defer func() {
		f.mu.RLock()
		for _, ch := range f.outputs {
			close(ch)
		}
		f.mu.RUnlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case tk, ok := <-input:
			if !ok {
				return
			}
			f.mu.RLock()
			for i, ch := range f.outputs {
				select {
				case ch <- tk:
				default:
					if f.OnDrop != nil {
						f.OnDrop(f.names[i])
					} else {
						log.Printf("[bus] output %s full, dropping ticker %s", f.names[i], tk.MarketID)
					}
				}
			}
			f.mu.RUnlock()
		}
	}
}

// ChannelStat is the (length, capacity) of one subscriber channel.
type ChannelStat struct {
	Name string
	Len  int
	Cap  int
}

// ChannelStats reports subscriber channel saturation.
func (f *FanOut) ChannelStats() []ChannelStat {
	f.mu.RLock()
	defer f.mu.RUnlock()
	stats := make([]ChannelStat, len(f.outputs))
	for i, ch := range f.outputs {
		stats[i] = ChannelStat{Name: f.names[i], Len: len(ch), Cap: cap(ch)}
	}
	return stats
}
