//go:build integration
// +build integration

package integration

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/channel/wire"
	"github.com/GriffinCanCode/chatsphere/internal/channel/ws"
	"github.com/GriffinCanCode/chatsphere/internal/domain/conversation"
	"github.com/GriffinCanCode/chatsphere/internal/domain/session"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/server"
	"github.com/GriffinCanCode/chatsphere/internal/relay"
)

var framings = []struct {
	name  string
	codec wire.Codec
	path  string
}{
	{name: "envelope", codec: wire.Envelope{}, path: relay.PathStream},
	{name: "socketio", codec: wire.SocketIO{}, path: "/"},
}

// startRelay runs a relay server answering with responder.
func startRelay(t *testing.T, responder relay.Responder) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Logging.Development = true
	cfg.RateLimit.Enabled = false

	srv, err := server.NewServer(cfg, server.WithLogger(zap.NewNop()), server.WithResponder(responder))
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(ctx)
		ts.Close()
	})
	return ts
}

// connect dials the relay and returns an attached session manager.
func connect(t *testing.T, url string, codec wire.Codec, cfg session.Config) (*session.Manager, *monitoring.Metrics) {
	t.Helper()
	metrics := monitoring.NewMetrics(nil)

	client, err := ws.New(ws.Options{URL: url, Codec: codec, Metrics: metrics})
	require.NoError(t, err)
	require.NoError(t, client.Connect(context.Background()))

	mgr := session.NewManager(client, cfg).WithMetrics(metrics)
	mgr.Attach()
	t.Cleanup(func() {
		mgr.Close()
		client.Close()
	})
	return mgr, metrics
}

func messages(conv conversation.Conversation) []string {
	out := make([]string, len(conv.Messages))
	for i, m := range conv.Messages {
		out[i] = string(m.Role) + ":" + m.Text
	}
	return out
}

func indexOf(items []string, want string) int {
	for i, item := range items {
		if item == want {
			return i
		}
	}
	return -1
}

func TestChatThroughRelay(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	for _, f := range framings {
		t.Run(f.name, func(t *testing.T) {
			ts := startRelay(t, relay.EchoResponder{Prefix: "echo: "})
			mgr, metrics := connect(t, ts.URL+f.path, f.codec, session.DefaultConfig())
			ctx := context.Background()

			_, err := mgr.Send(ctx, "hello")
			require.NoError(t, err)
			_, err = mgr.Send(ctx, "again")
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				s := mgr.State()
				return s.Pending == 0 && !s.Composing
			}, 3*time.Second, 10*time.Millisecond)

			conv, ok := mgr.Active()
			require.True(t, ok)
			// Replies may interleave with the second prompt but keep their order
			got := messages(conv)
			assert.ElementsMatch(t, []string{
				"user:hello", "user:again", "assistant:echo: hello", "assistant:echo: again",
			}, got)
			assert.Less(t, indexOf(got, "assistant:echo: hello"), indexOf(got, "assistant:echo: again"))
			assert.Empty(t, conv.Failures)

			snap := metrics.Snapshot()
			assert.Equal(t, int64(2), snap.ChatRequests)
			assert.Equal(t, int64(2), snap.ChatAnswered)
		})
	}
}

func TestReplyFollowsOriginatingConversation(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	release := make(chan struct{})
	gated := relay.ResponderFunc(func(ctx context.Context, prompt string) (string, error) {
		select {
		case <-release:
			return "answer to " + prompt, nil
		case <-ctx.Done():
			return "", ctx.Err()
		}
	})

	ts := startRelay(t, gated)
	mgr, _ := connect(t, ts.URL+relay.PathStream, wire.Envelope{}, session.DefaultConfig())

	_, err := mgr.Send(context.Background(), "question")
	require.NoError(t, err)
	first, _ := mgr.Active()

	second := mgr.NewConversation()
	close(release)

	require.Eventually(t, func() bool { return mgr.State().Pending == 0 }, 3*time.Second, 10*time.Millisecond)

	got, ok := mgr.Conversation(first.ID)
	require.True(t, ok)
	assert.Equal(t, []string{"user:question", "assistant:answer to question"}, messages(got))

	active, _ := mgr.Active()
	assert.Equal(t, second.ID, active.ID)
	assert.Empty(t, active.Messages)
}

func TestSilentRelayTimesOut(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	release := make(chan struct{})
	defer close(release)
	silent := relay.ResponderFunc(func(ctx context.Context, prompt string) (string, error) {
		select {
		case <-release:
		case <-ctx.Done():
		}
		return "", errors.New("unreachable")
	})

	ts := startRelay(t, silent)
	mgr, metrics := connect(t, ts.URL+relay.PathStream, wire.Envelope{}, session.Config{
		RequestTimeout: 100 * time.Millisecond,
		DefaultTitle:   "New Chat",
	})

	_, err := mgr.Send(context.Background(), "anyone there?")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		conv, _ := mgr.Active()
		return len(conv.Failures) == 1
	}, 3*time.Second, 10*time.Millisecond)

	conv, _ := mgr.Active()
	assert.Equal(t, conversation.ReasonTimeout, conv.Failures[0].Reason)
	assert.Equal(t, "anyone there?", conv.Failures[0].Prompt)
	assert.False(t, mgr.State().Composing)
	assert.Equal(t, int64(1), metrics.Snapshot().ChatFailures)
}

func TestRemoteErrorBecomesFailure(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping end-to-end test in short mode")
	}

	broken := relay.ResponderFunc(func(context.Context, string) (string, error) {
		return "", errors.New("model overloaded")
	})

	for _, f := range framings {
		t.Run(f.name, func(t *testing.T) {
			ts := startRelay(t, broken)
			mgr, _ := connect(t, ts.URL+f.path, f.codec, session.DefaultConfig())

			_, err := mgr.Send(context.Background(), "hi")
			require.NoError(t, err)

			require.Eventually(t, func() bool {
				conv, _ := mgr.Active()
				return len(conv.Failures) == 1
			}, 3*time.Second, 10*time.Millisecond)

			conv, _ := mgr.Active()
			assert.Equal(t, conversation.ReasonRemote, conv.Failures[0].Reason)
			assert.Equal(t, "model overloaded", conv.Failures[0].Detail)
			assert.Equal(t, 1, conv.Failures[0].AfterMessage)
		})
	}
}
