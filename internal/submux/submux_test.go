package submux

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charting-terminalv1/internal/model"
)

type recordingSender struct {
	mu     sync.Mutex
	frames []model.ControlFrame
	fail   map[string]error // by frame type
}

func (r *recordingSender) Send(_ context.Context, f model.ControlFrame) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fail[f.Type]; err != nil {
		return err
	}
	r.frames = append(r.frames, f)
	return nil
}

func (r *recordingSender) take() []model.ControlFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.frames
	r.frames = nil
	return out
}

func TestSync_DiffsVisibleMarkets(t *testing.T) {
	s := &recordingSender{}
	m := New(s)
	ctx := context.Background()

	_, err := m.Sync(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []model.ControlFrame{{Type: model.FrameSubscribe, Markets: []string{"A", "B"}}}, s.take())

	diff, err := m.Sync(ctx, []string{"B", "C"})
	require.NoError(t, err)
	assert.Equal(t, []string{"C"}, diff.Subscribed)
	assert.Equal(t, []string{"A"}, diff.Unsubscribed)
	assert.Equal(t, []model.ControlFrame{
		{Type: model.FrameUnsubscribe, Markets: []string{"A"}},
		{Type: model.FrameSubscribe, Markets: []string{"C"}},
	}, s.take())
	assert.Equal(t, []string{"B", "C"}, m.Current())
}

func TestSync_NoChangeSendsNothing(t *testing.T) {
	s := &recordingSender{}
	m := New(s)
	ctx := context.Background()

	_, _ = m.Sync(ctx, []string{"A", "B"})
	s.take()

	diff, err := m.Sync(ctx, []string{"B", "A", "A", ""})
	require.NoError(t, err)
	assert.True(t, diff.Empty())
	assert.Empty(t, s.take())
}

func TestSync_EmptyDesiredUnsubscribesAll(t *testing.T) {
	s := &recordingSender{}
	m := New(s)
	var sizes []int
	m.OnChange = func(n int) { sizes = append(sizes, n) }
	ctx := context.Background()

	_, _ = m.Sync(ctx, []string{"A"})
	_, _ = m.Sync(ctx, nil)
	assert.Equal(t, []model.ControlFrame{
		{Type: model.FrameSubscribe, Markets: []string{"A"}},
		{Type: model.FrameUnsubscribe, Markets: []string{"A"}},
	}, s.take())
	assert.Equal(t, []int{1, 0}, sizes)
	assert.False(t, m.IsSubscribed("A"))
}

func TestSync_FailedSubscribeIsRetried(t *testing.T) {
	s := &recordingSender{fail: map[string]error{model.FrameSubscribe: model.ErrStreamUnavailable}}
	m := New(s)
	ctx := context.Background()

	_, err := m.Sync(ctx, []string{"A"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrStreamUnavailable))
	assert.Empty(t, m.Current())

	s.fail = nil
	diff, err := m.Sync(ctx, []string{"A"})
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, diff.Subscribed)
}

func TestReset_ResubscribesEverythingAfterReconnect(t *testing.T) {
	s := &recordingSender{}
	m := New(s)
	ctx := context.Background()

	_, _ = m.Sync(ctx, []string{"A", "B"})
	s.take()

	m.Reset()
	assert.False(t, m.IsSubscribed("A"))

	_, err := m.Sync(ctx, []string{"A", "B"})
	require.NoError(t, err)
	assert.Equal(t, []model.ControlFrame{{Type: model.FrameSubscribe, Markets: []string{"A", "B"}}}, s.take())
}
