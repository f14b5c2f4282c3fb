// Package memory is a process-local KV used when no durable store is
// configured, and as the store in tests.
package memory

import (
	"context"
	"sync"

	"charting-terminalv1/internal/model"
)

// KV is a map guarded by a RWMutex. Values are copied in and out.
type KV struct {
	mu   sync.RWMutex
	data map[string][]byte

	// FailWith, when set, is returned by every Set and Delete.
	FailWith error
}

// NewKV creates an empty store.
func NewKV() *KV {
	return &KV{data: make(map[string][]byte)}
}

func (k *KV) Get(_ context.Context, key string) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	v, ok := k.data[key]
	if !ok {
		return nil, model.ErrNotFound
	}
	return append([]byte(nil), v...), nil
}

func (k *KV) Set(_ context.Context, key string, value []byte) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.FailWith != nil {
		return k.FailWith
	}
	k.data[key] = append([]byte(nil), value...)
	return nil
}

func (k *KV) Delete(_ context.Context, key string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.FailWith != nil {
		return k.FailWith
	}
	delete(k.data, key)
	return nil
}

// Len returns the number of stored keys.
func (k *KV) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.data)
}
