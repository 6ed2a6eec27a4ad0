package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/chatsphere/internal/shared/id"
)

func TestPendingSetOrder(t *testing.T) {
	p := newPendingSet()
	for _, reqID := range []id.RequestID{"req_a", "req_b", "req_c"} {
		p.add(&pendingRequest{id: reqID, conversationID: "conv_1"})
	}
	require.Equal(t, 3, p.len())

	req, ok := p.resolve("req_b")
	require.True(t, ok)
	assert.Equal(t, id.RequestID("req_b"), req.id)

	req, ok = p.resolve("")
	require.True(t, ok)
	assert.Equal(t, id.RequestID("req_a"), req.id)

	_, ok = p.resolve("req_b")
	assert.False(t, ok)

	assert.Equal(t, 1, p.countFor("conv_1"))
	assert.Zero(t, p.countFor("conv_2"))
}

func TestPendingSetStopsTimers(t *testing.T) {
	p := newPendingSet()
	fired := make(chan struct{}, 2)

	for _, reqID := range []id.RequestID{"req_a", "req_b"} {
		p.add(&pendingRequest{
			id:    reqID,
			timer: time.AfterFunc(20*time.Millisecond, func() { fired <- struct{}{} }),
		})
	}

	_, ok := p.take("req_a")
	require.True(t, ok)
	drained := p.drain()
	assert.Len(t, drained, 1)
	assert.Zero(t, p.len())

	_, ok = p.takeOldest()
	assert.False(t, ok)

	time.Sleep(40 * time.Millisecond)
	assert.Empty(t, fired)
}

func TestPendingSetKeepsExpiredPlace(t *testing.T) {
	p := newPendingSet()
	p.add(&pendingRequest{id: "req_a", conversationID: "conv_1"})
	p.add(&pendingRequest{id: "req_b", conversationID: "conv_2"})

	_, ok := p.expire("req_a")
	require.True(t, ok)
	_, ok = p.expire("req_a")
	assert.False(t, ok, "already expired")
	assert.Equal(t, 1, p.len())
	assert.Zero(t, p.countFor("conv_1"))

	req, ok := p.resolve("")
	require.True(t, ok)
	assert.Equal(t, id.RequestID("req_a"), req.id)
	assert.True(t, req.expired)

	req, ok = p.resolve("")
	require.True(t, ok)
	assert.Equal(t, id.RequestID("req_b"), req.id)
	assert.False(t, req.expired)
}

func TestPendingSetTakeLiveSkipsExpired(t *testing.T) {
	p := newPendingSet()
	p.add(&pendingRequest{id: "req_a"})
	p.expire("req_a")

	_, ok := p.takeLive("req_a")
	assert.False(t, ok)
	_, ok = p.oldest()
	assert.False(t, ok, "marker consumed")
	assert.Empty(t, p.drain())
}

func TestPendingSetBoundsExpiredMarkers(t *testing.T) {
	p := newPendingSet()
	for i := 0; i < maxExpired+5; i++ {
		reqID := id.NewRequestID()
		p.add(&pendingRequest{id: reqID})
		p.expire(reqID)
	}
	p.add(&pendingRequest{id: "req_live"})

	assert.Len(t, p.order, maxExpired+1)
	assert.Equal(t, maxExpired, p.expired)
	assert.Equal(t, 1, p.len())
}
