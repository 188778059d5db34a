package relay

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHubCreatesOnePerStream(t *testing.T) {
	h := NewHub(&scriptedFetcher{}, testConfig(), time.Minute)
	defer h.Close()

	a := h.Relay("one")
	assert.Same(t, a, h.Relay("one"))
	assert.NotSame(t, a, h.Relay("two"))
	assert.Equal(t, 2, h.Len())

	got, ok := h.Get("one")
	require.True(t, ok)
	assert.Same(t, a, got)
	_, ok = h.Get("missing")
	assert.False(t, ok)
}

func TestHubReapsIdleRelays(t *testing.T) {
	h := NewHub(&scriptedFetcher{}, testConfig(), time.Minute)
	defer h.Close()

	busy := h.Relay("busy")
	detach, err := busy.Attach(&recorder{id: "s"}, "raw")
	require.NoError(t, err)
	defer detach()
	idle := h.Relay("idle")

	assert.Equal(t, 0, h.ReapIdle(), "nothing is idle long enough yet")

	h.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	assert.Equal(t, 1, h.ReapIdle())
	_, ok := h.Get("idle")
	assert.False(t, ok)
	_, ok = h.Get("busy")
	assert.True(t, ok)

	_, err = idle.Attach(&recorder{id: "late"}, "raw")
	assert.ErrorIs(t, err, ErrClosed)
}

func TestHubSnapshot(t *testing.T) {
	h := NewHub(&scriptedFetcher{}, testConfig(), 0)
	defer h.Close()

	r := h.Relay("b-stream")
	require.NoError(t, r.Initialize(context.Background(), bootstrap("tok")))
	detach, err := r.Attach(&recorder{id: "s"}, "subathon")
	require.NoError(t, err)
	defer detach()
	h.Relay("a-stream")

	snap := h.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, "a-stream", snap[0].StreamID)
	assert.Equal(t, "uninitialized", snap[0].State)
	assert.NotNil(t, snap[0].IdleSince)
	assert.Equal(t, "b-stream", snap[1].StreamID)
	assert.Equal(t, "initialized", snap[1].State)
	assert.Equal(t, "UCchannel", snap[1].ChannelID)
	assert.Equal(t, map[string]int{"subathon": 1}, snap[1].Subscribers)
	assert.Nil(t, snap[1].IdleSince)

	assert.Equal(t, 0, h.ReapIdle(), "reaping is disabled without a timeout")
}

func TestHubClose(t *testing.T) {
	h := NewHub(&scriptedFetcher{}, testConfig(), time.Minute)
	r := h.Relay("x")
	h.Close()
	assert.Equal(t, 0, h.Len())
	_, err := r.Attach(&recorder{id: "s"}, "raw")
	assert.ErrorIs(t, err, ErrClosed)

	late := h.Relay("y")
	_, err = late.Attach(&recorder{id: "s"}, "raw")
	assert.ErrorIs(t, err, ErrClosed)
}
