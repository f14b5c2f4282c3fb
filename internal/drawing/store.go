package drawing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"charting-terminalv1/internal/model"
)

const kvPrefix = "drawings:"

// ChangeKind identifies a Store mutation.
type ChangeKind string

const (
	ChangeAdded   ChangeKind = "added"
	ChangeRemoved ChangeKind = "removed"
	ChangeCleared ChangeKind = "cleared"
)

// Change is published to subscribers after every mutation.
type Change struct {
	Key      string     `json:"key"`
	Kind     ChangeKind `json:"kind"`
	ID       string     `json:"id,omitempty"`
	Drawings []Drawing  `json:"drawings"` // full set for Key after the change
}

// Store keeps drawings per state key. Each key's full set is loaded from KV
// on first access and written back whole after every mutation. Memory is
// updated even when the write fails; the error is returned to the caller.
type Store struct {
	kv model.KV

	mu     sync.Mutex
	sets   map[string][]Drawing
	subs   []chan Change
	closed bool
}

// NewStore creates a store persisting through kv.
func NewStore(kv model.KV) *Store {
	return &Store{kv: kv, sets: make(map[string][]Drawing)}
}

// List returns the drawings under key in insertion order.
func (s *Store) List(ctx context.Context, key string) ([]Drawing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.load(ctx, key)
	if err != nil {
		return nil, err
	}
	return append([]Drawing(nil), set...), nil
}

// Add appends d under key.
func (s *Store) Add(ctx context.Context, key string, d Drawing) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	d.Points = append([]Point(nil), d.Points...)
	set = append(set, d)
	return s.commit(ctx, key, set, Change{Key: key, Kind: ChangeAdded, ID: d.ID})
}

// Upsert replaces the drawing with d's ID in place, or appends it.
func (s *Store) Upsert(ctx context.Context, key string, d Drawing) error {
	if err := d.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.load(ctx, key)
	if err != nil {
		return err
	}
	d.Points = append([]Point(nil), d.Points...)
	next := append([]Drawing(nil), set...)
	replaced := false
	for i := range next {
		if next[i].ID == d.ID {
			next[i] = d
			replaced = true
			break
		}
	}
	if !replaced {
		next = append(next, d)
	}
	return s.commit(ctx, key, next, Change{Key: key, Kind: ChangeAdded, ID: d.ID})
}

// Remove deletes the drawing with id. It reports false if none matched.
func (s *Store) Remove(ctx context.Context, key, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set, err := s.load(ctx, key)
	if err != nil {
		return false, err
	}
	next := make([]Drawing, 0, len(set))
	for _, d := range set {
		if d.ID != id {
			next = append(next, d)
		}
	}
	if len(next) == len(set) {
		return false, nil
	}
	return true, s.commit(ctx, key, next, Change{Key: key, Kind: ChangeRemoved, ID: id})
}

// Clear removes every drawing under key.
func (s *Store) Clear(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[key] = nil
	s.publish(Change{Key: key, Kind: ChangeCleared})
	if err := s.kv.Delete(ctx, kvPrefix+key); err != nil && !errors.Is(err, model.ErrNotFound) {
		return fmt.Errorf("clear drawings %s: %w", key, err)
	}
	return nil
}

// HitTest hit-tests the drawings under key. See HitTest.
func (s *Store) HitTest(ctx context.Context, key string, px, py float64, timeToX TimeToX, priceToY PriceToY, threshold float64) (Drawing, bool, error) {
	set, err := s.List(ctx, key)
	if err != nil {
		return Drawing{}, false, err
	}
	d, ok := HitTest(set, px, py, timeToX, priceToY, threshold)
	return d, ok, nil
}

// Subscribe returns a channel of changes. Slow subscribers miss changes
// rather than block writers.
func (s *Store) Subscribe(buffer int) <-chan Change {
	ch := make(chan Change, buffer)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		close(ch)
		return ch
	}
	s.subs = append(s.subs, ch)
	return ch
}

// Close closes all subscriber channels.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	for _, ch := range s.subs {
		close(ch)
	}
	s.subs = nil
}

// load returns the cached set for key, reading it from KV on first access.
// Must be called with mu held.
func (s *Store) load(ctx context.Context, key string) ([]Drawing, error) {
	if set, ok := s.sets[key]; ok {
		return set, nil
	}
	raw, err := s.kv.Get(ctx, kvPrefix+key)
	if errors.Is(err, model.ErrNotFound) {
		s.sets[key] = nil
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load drawings %s: %w", key, err)
	}
	var set []Drawing
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, fmt.Errorf("decode drawings %s: %w", key, err)
	}
	valid := set[:0]
	for _, d := range set {
		if err := d.Validate(); err != nil {
			slog.Warn("dropping invalid stored drawing", "key", key, "error", err)
			continue
		}
		valid = append(valid, d)
	}
	s.sets[key] = valid
	return valid, nil
}

// commit stores set in memory, notifies subscribers, and persists.
// Must be called with mu held.
func (s *Store) commit(ctx context.Context, key string, set []Drawing, ch Change) error {
	s.sets[key] = set
	ch.Drawings = append([]Drawing(nil), set...)
	s.publish(ch)

	raw, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode drawings %s: %w", key, err)
	}
	if err := s.kv.Set(ctx, kvPrefix+key, raw); err != nil {
		return fmt.Errorf("persist drawings %s: %w", key, err)
	}
	return nil
}

func (s *Store) publish(ch Change) {
	for _, sub := range s.subs {
		select {
		case sub <- ch:
		default:
		}
	}
}
