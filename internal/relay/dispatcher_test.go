package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"

	"github.com/GriffinCanCode/chatsphere/internal/channel"
	"github.com/GriffinCanCode/chatsphere/internal/channel/memory"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/tracing"
	helpers "github.com/GriffinCanCode/chatsphere/tests/helpers/testutil"
)

func events(emitted []helpers.Emitted) []string {
	names := make([]string, len(emitted))
	for i, e := range emitted {
		names[i] = e.Event
	}
	return names
}

func TestDispatcherHandle(t *testing.T) {
	tests := []struct {
		name      string
		req       channel.PromptRequest
		wantReply string
	}{
		{
			name:      "request id echoed",
			req:       channel.PromptRequest{Prompt: "hi", RequestID: "req_1"},
			wantReply: `{"request_id":"req_1","text":"echo: hi"}`,
		},
		{
			name:      "legacy bare string",
			req:       channel.PromptRequest{Prompt: "hi"},
			wantReply: `"echo: hi"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			metrics := monitoring.NewMetrics(nil)
			out := helpers.NewRecordingChannel()
			d := NewDispatcher(EchoResponder{Prefix: "echo: "}, WithDispatcherMetrics(metrics))

			require.NoError(t, d.Handle(context.Background(), out, tt.req))

			emitted := out.Emitted()
			require.Equal(t, []string{channel.EventTyping, channel.EventResponse, channel.EventTyping}, events(emitted))
			assert.JSONEq(t, `true`, string(emitted[0].Payload))
			assert.JSONEq(t, tt.wantReply, string(emitted[1].Payload))
			assert.JSONEq(t, `false`, string(emitted[2].Payload))
			assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RelayExchanges.WithLabelValues(StatusOK)))
		})
	}
}

func TestDispatcherReportsResponderError(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	out := helpers.NewRecordingChannel()
	failing := ResponderFunc(func(ctx context.Context, prompt string) (string, error) {
		return "", errors.New("model unavailable")
	})
	d := NewDispatcher(failing, WithDispatcherMetrics(metrics))

	require.NoError(t, d.Handle(context.Background(), out, channel.PromptRequest{Prompt: "hi", RequestID: "req_1"}))

	emitted := out.Emitted()
	require.Equal(t, []string{channel.EventTyping, channel.EventError, channel.EventTyping}, events(emitted))
	assert.JSONEq(t, `{"request_id":"req_1","error":"model unavailable"}`, string(emitted[1].Payload))
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RelayExchanges.WithLabelValues(StatusError)))
}

func TestDispatcherResponseTimeout(t *testing.T) {
	metrics := monitoring.NewMetrics(nil)
	out := helpers.NewRecordingChannel()
	d := NewDispatcher(EchoResponder{Delay: time.Hour},
		WithResponseTimeout(10*time.Millisecond),
		WithDispatcherMetrics(metrics),
	)

	require.NoError(t, d.Handle(context.Background(), out, channel.PromptRequest{Prompt: "hi"}))

	emitted := out.Emitted()
	require.Len(t, emitted, 3)
	assert.Equal(t, channel.EventError, emitted[1].Event)
	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.RelayExchanges.WithLabelValues(StatusTimeout)))
}

func TestDispatcherReturnsEmitError(t *testing.T) {
	out := helpers.NewRecordingChannel()
	out.FailWith(errors.New("socket gone"))
	called := false
	d := NewDispatcher(ResponderFunc(func(context.Context, string) (string, error) {
		called = true
		return "x", nil
	}))

	err := d.Handle(context.Background(), out, channel.PromptRequest{Prompt: "hi"})
	assert.EqualError(t, err, "socket gone")
	assert.False(t, called)
}

func TestDispatcherTracesWithRequestID(t *testing.T) {
	logger, logs := helpers.ObservedLogger(zapcore.DebugLevel)
	tracer := tracing.New("relay", logger)
	out := helpers.NewRecordingChannel()

	var traceID tracing.TraceID
	d := NewDispatcher(ResponderFunc(func(ctx context.Context, prompt string) (string, error) {
		traceID = tracing.GetTraceID(ctx)
		return "ok", nil
	}), WithTracer(tracer))

	require.NoError(t, d.Handle(context.Background(), out, channel.PromptRequest{Prompt: "hi", RequestID: "req_7"}))
	tracer.Close()

	assert.Equal(t, tracing.TraceID("req_7"), traceID)
	spans := logs.FilterMessage("span completed").All()
	require.Len(t, spans, 1)
	assert.Equal(t, "relay.exchange", spans[0].ContextMap()["operation"])
	assert.Equal(t, "req_7", spans[0].ContextMap()["trace_id"])
}

func TestDispatcherBindOverLoopback(t *testing.T) {
	client, far := memory.NewPair()
	defer client.Close()
	defer far.Close()

	NewDispatcher(EchoResponder{Prefix: "echo: "}).Bind(context.Background(), far)

	replies := make(chan channel.Response, 2)
	client.On(channel.EventResponse, func(p json.RawMessage) {
		resp, err := channel.DecodeResponse(p)
		if assert.NoError(t, err) {
			replies <- resp
		}
	})

	ctx := context.Background()
	require.NoError(t, client.Emit(ctx, channel.EventMessage, channel.PromptRequest{Prompt: "a", RequestID: "req_a"}))
	require.NoError(t, client.Emit(ctx, channel.EventMessage, json.RawMessage(`{"not":"a prompt"}`)))
	require.NoError(t, client.Emit(ctx, channel.EventMessage, channel.PromptRequest{Prompt: "b", RequestID: "req_b"}))

	for _, want := range []channel.Response{{RequestID: "req_a", Text: "echo: a"}, {RequestID: "req_b", Text: "echo: b"}} {
		select {
		case got := <-replies:
			assert.Equal(t, want, got)
		case <-time.After(2 * time.Second):
			t.Fatal("no reply over loopback")
		}
	}
}
