package watchlist

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/store/memory"
)

func TestStore_AddPrependsAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.NewKV())
	require.NoError(t, s.Load(ctx))

	require.NoError(t, s.Add(ctx, "A"))
	require.NoError(t, s.Add(ctx, "B"))
	require.NoError(t, s.Add(ctx, "A"))
	assert.Equal(t, []string{"B", "A"}, s.List())
	assert.True(t, s.Has("A"))
}

func TestStore_ToggleAndRemove(t *testing.T) {
	ctx := context.Background()
	s := NewStore(memory.NewKV())
	var notified [][]string
	s.OnChange = func(ids []string) { notified = append(notified, ids) }

	on, err := s.Toggle(ctx, "A")
	require.NoError(t, err)
	assert.True(t, on)
	on, err = s.Toggle(ctx, "A")
	require.NoError(t, err)
	assert.False(t, on)
	assert.Empty(t, s.List())

	require.NoError(t, s.Remove(ctx, "missing"))
	assert.Len(t, notified, 2)
}

func TestStore_PersistsAcrossLoads(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKV()
	s := NewStore(kv)
	require.NoError(t, s.Add(ctx, "A"))
	require.NoError(t, s.Add(ctx, "B"))

	again := NewStore(kv)
	require.NoError(t, again.Load(ctx))
	assert.Equal(t, []string{"B", "A"}, again.List())
}

func TestStore_LoadDedupesStoredList(t *testing.T) {
	ctx := context.Background()
	kv := memory.NewKV()
	require.NoError(t, kv.Set(ctx, "watchlist", []byte(`["A","B","A",""]`)))

	s := NewStore(kv)
	require.NoError(t, s.Load(ctx))
	assert.Equal(t, []string{"A", "B"}, s.List())
}
