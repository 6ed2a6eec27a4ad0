package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/channel/memory"
	"github.com/GriffinCanCode/chatsphere/internal/domain/session"
	"github.com/GriffinCanCode/chatsphere/internal/relay"
	"github.com/GriffinCanCode/chatsphere/internal/render"
)

// syncBuffer is a bytes.Buffer safe for the redraw goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newTestApp(t *testing.T) (*app, *syncBuffer) {
	t.Helper()
	near, far := memory.NewPair()
	relay.NewDispatcher(relay.EchoResponder{Prefix: "echo: "}).Bind(context.Background(), far)

	mgr := session.NewManager(near, session.DefaultConfig())
	mgr.Attach()

	out := &syncBuffer{}
	a := &app{mgr: mgr, view: render.New(out, false), out: out, logger: zap.NewNop()}

	ctx, cancel := context.WithCancel(context.Background())
	go a.redraw(ctx)
	t.Cleanup(func() {
		cancel()
		mgr.Close()
		near.Close()
		far.Close()
	})
	return a, out
}

func TestAppConversation(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	assert.False(t, a.handle(ctx, "hello"))
	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "ai: echo: hello")
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, out.String(), "you: hello")

	state := a.mgr.State()
	require.Len(t, state.Conversations, 1)
	assert.Equal(t, "New Chat", state.Conversations[0].Title)
}

func TestAppCommands(t *testing.T) {
	a, out := newTestApp(t)
	ctx := context.Background()

	a.handle(ctx, "first")
	require.Eventually(t, func() bool { return a.mgr.State().Pending == 0 }, 2*time.Second, 5*time.Millisecond)

	a.handle(ctx, "/new")
	state := a.mgr.State()
	require.Len(t, state.Conversations, 2)
	assert.Equal(t, state.Conversations[0].ID, state.ActiveID)

	a.handle(ctx, "/select 2")
	assert.Equal(t, state.Conversations[1].ID, a.mgr.State().ActiveID)

	a.handle(ctx, "/select 9")
	assert.Contains(t, out.String(), `no conversation "9"`)

	a.handle(ctx, "/sidebar")
	assert.True(t, a.mgr.State().SidebarOpen)

	a.handle(ctx, "/list")
	assert.Contains(t, out.String(), "Chats")

	a.handle(ctx, "/help")
	assert.Contains(t, out.String(), "/select N")

	a.handle(ctx, "/bogus")
	assert.Contains(t, out.String(), "unknown command /bogus")

	assert.True(t, a.handle(ctx, "/quit"))
}

func TestAppRunStopsOnQuitAndEOF(t *testing.T) {
	a, _ := newTestApp(t)

	require.NoError(t, a.run(context.Background(), strings.NewReader("   \n/quit\nnever sent\n")))
	assert.Empty(t, a.mgr.State().Conversations)

	require.NoError(t, a.run(context.Background(), strings.NewReader("")))
}

func TestAppSendsLineAsTyped(t *testing.T) {
	a, _ := newTestApp(t)

	assert.False(t, a.handle(context.Background(), "  indented <code>  "))
	require.Eventually(t, func() bool { return a.mgr.State().Pending == 0 }, 2*time.Second, 5*time.Millisecond)

	conv, ok := a.mgr.Active()
	require.True(t, ok)
	require.Len(t, conv.Messages, 2)
	assert.Equal(t, "  indented <code>  ", conv.Messages[0].Text)
	assert.Equal(t, "echo:   indented <code>  ", conv.Messages[1].Text)

	assert.False(t, a.handle(context.Background(), "   /sidebar"))
	assert.True(t, a.mgr.State().SidebarOpen, "commands are recognised after leading spaces")
}
