// Package watchlist keeps the user's starred markets, newest first.
package watchlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"charting-terminalv1/internal/model"
)

const kvKey = "watchlist"

// Store is the watchlist, persisted as a whole under one KV key.
type Store struct {
	kv model.KV

	mu  sync.RWMutex
	ids []string

	// OnChange is called with the new list after every mutation (optional).
	OnChange func(ids []string)
}

// NewStore creates a store persisting through kv. Call Load before use.
func NewStore(kv model.KV) *Store {
	return &Store{kv: kv}
}

// Load reads the persisted list. A missing key is an empty list.
func (s *Store) Load(ctx context.Context) error {
	raw, err := s.kv.Get(ctx, kvKey)
	s.mu.Lock()
	defer s.mu.Unlock()
	if errors.Is(err, model.ErrNotFound) {
		s.ids = nil
		return nil
	}
	if err != nil {
		return fmt.Errorf("load watchlist: %w", err)
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return fmt.Errorf("decode watchlist: %w", err)
	}
	s.ids = dedupe(ids)
	return nil
}

// Has reports whether marketID is on the list.
func (s *Store) Has(marketID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return index(s.ids, marketID) >= 0
}

// List returns the list, newest first.
func (s *Store) List() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.ids...)
}

// Add prepends marketID. Adding a present market is a no-op.
func (s *Store) Add(ctx context.Context, marketID string) error {
	if marketID == "" {
		return model.ErrInvalidMarketID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if index(s.ids, marketID) >= 0 {
		return nil
	}
	next := append([]string{marketID}, s.ids...)
	return s.commit(ctx, next)
}

// Remove drops marketID if present.
func (s *Store) Remove(ctx context.Context, marketID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := index(s.ids, marketID)
	if i < 0 {
		return nil
	}
	next := append(append([]string(nil), s.ids[:i]...), s.ids[i+1:]...)
	return s.commit(ctx, next)
}

// Toggle adds or removes marketID and returns the new membership.
func (s *Store) Toggle(ctx context.Context, marketID string) (bool, error) {
	if s.Has(marketID) {
		return false, s.Remove(ctx, marketID)
	}
	return true, s.Add(ctx, marketID)
}

// commit must be called with mu held.
func (s *Store) commit(ctx context.Context, ids []string) error {
	s.ids = ids
	if s.OnChange != nil {
		s.OnChange(append([]string(nil), ids...))
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := s.kv.Set(ctx, kvKey, raw); err != nil {
		return fmt.Errorf("persist watchlist: %w", err)
	}
	return nil
}

func index(ids []string, id string) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok || id == "" {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
