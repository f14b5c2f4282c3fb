// Package submux maps the markets of the visible chart slots onto the single
// ticker stream. It is the only component allowed to send control frames.
package submux

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"charting-terminalv1/internal/model"
)

// Diff is what one Sync sent.
type Diff struct {
	Subscribed   []string
	Unsubscribed []string
}

// Empty reports whether Sync sent nothing.
func (d Diff) Empty() bool { return len(d.Subscribed) == 0 && len(d.Unsubscribed) == 0 }

// Multiplexer tracks the current subscription set of the stream.
type Multiplexer struct {
	sender model.FrameSender

	mu      sync.Mutex
	current map[string]struct{}

	// OnChange is called with the size of the current set after every Sync
	// or Reset (optional).
	OnChange func(n int)
}

// New creates a multiplexer writing through sender.
func New(sender model.FrameSender) *Multiplexer {
	return &Multiplexer{sender: sender, current: make(map[string]struct{})}
}

// Sync diffs desired against the current set, sends one unsubscribe frame for
// the markets that left and one subscribe frame for the markets that joined,
// and records desired as current. Duplicates and empty IDs in desired are
// ignored. If a frame fails, the markets it carried keep their previous
// state so the next Sync retries them.
func (m *Multiplexer) Sync(ctx context.Context, desired []string) (Diff, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	want := make(map[string]struct{}, len(desired))
	for _, id := range desired {
		if id != "" {
			want[id] = struct{}{}
		}
	}

	var diff Diff
	for id := range m.current {
		if _, ok := want[id]; !ok {
			diff.Unsubscribed = append(diff.Unsubscribed, id)
		}
	}
	for id := range want {
		if _, ok := m.current[id]; !ok {
			diff.Subscribed = append(diff.Subscribed, id)
		}
	}
	sort.Strings(diff.Unsubscribed)
	sort.Strings(diff.Subscribed)

	var errs []error
	sent := Diff{}
	if len(diff.Unsubscribed) > 0 {
		if err := m.sender.Send(ctx, model.ControlFrame{Type: model.FrameUnsubscribe, Markets: diff.Unsubscribed}); err != nil {
			errs = append(errs, fmt.Errorf("unsubscribe %d markets: %w", len(diff.Unsubscribed), err))
		} else {
			for _, id := range diff.Unsubscribed {
				delete(m.current, id)
			}
			sent.Unsubscribed = diff.Unsubscribed
		}
	}
	if len(diff.Subscribed) > 0 {
		if err := m.sender.Send(ctx, model.ControlFrame{Type: model.FrameSubscribe, Markets: diff.Subscribed}); err != nil {
			errs = append(errs, fmt.Errorf("subscribe %d markets: %w", len(diff.Subscribed), err))
		} else {
			for _, id := range diff.Subscribed {
				m.current[id] = struct{}{}
			}
			sent.Subscribed = diff.Subscribed
		}
	}

	if !sent.Empty() {
		slog.Debug("subscriptions synced", "subscribed", sent.Subscribed, "unsubscribed", sent.Unsubscribed, "current", len(m.current))
	}
	m.changed()
	if len(errs) > 0 {
		return sent, errors.Join(errs...)
	}
	return sent, nil
}

// Reset forgets the current set. Call it when the stream reconnects, since
// the server starts with no subscriptions, then Sync again.
func (m *Multiplexer) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = make(map[string]struct{})
	m.changed()
}

// Current returns the subscribed markets, sorted.
func (m *Multiplexer) Current() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.current))
	for id := range m.current {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// IsSubscribed reports whether ticks for marketID should be consumed.
func (m *Multiplexer) IsSubscribed(marketID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.current[marketID]
	return ok
}

func (m *Multiplexer) changed() {
	if m.OnChange != nil {
		m.OnChange(len(m.current))
	}
}
