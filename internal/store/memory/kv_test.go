package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/model"
)

func TestKV_RoundTrip(t *testing.T) {
	ctx := context.Background()
	kv := NewKV()

	_, err := kv.Get(ctx, "watchlist")
	assert.ErrorIs(t, err, model.ErrNotFound)

	buf := []byte(`["A"]`)
	require.NoError(t, kv.Set(ctx, "watchlist", buf))
	buf[2] = 'Z'
	got, err := kv.Get(ctx, "watchlist")
	require.NoError(t, err)
	assert.Equal(t, `["A"]`, string(got), "stored value must not alias the caller's buffer")

	require.NoError(t, kv.Delete(ctx, "watchlist"))
	assert.Equal(t, 0, kv.Len())
}

func TestKV_FailWith(t *testing.T) {
	kv := NewKV()
	kv.FailWith = errors.New("disk full")
	assert.EqualError(t, kv.Set(context.Background(), "k", nil), "disk full")
}
