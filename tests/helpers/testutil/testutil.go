// Package testutil provides fakes and helpers shared by package and
// integration tests.
package testutil

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/GriffinCanCode/chatsphere/internal/channel"
)

// Emitted is one recorded outbound event.
type Emitted struct {
	Event   string
	Payload json.RawMessage
}

// Prompt decodes the payload as an ai-message request.
func (e Emitted) Prompt(t *testing.T) channel.PromptRequest {
	t.Helper()
	req, err := channel.DecodePrompt(e.Payload)
	require.NoError(t, err)
	return req
}

// RecordingChannel is a channel.Channel that records emits and lets tests
// deliver inbound events synchronously.
type RecordingChannel struct {
	handlers *channel.Handlers

	mu      sync.Mutex
	emitted []Emitted
	err     error
	onEmit  func(Emitted)
}

var _ channel.Channel = (*RecordingChannel)(nil)

// NewRecordingChannel creates an empty recording channel.
func NewRecordingChannel() *RecordingChannel {
	return &RecordingChannel{handlers: channel.NewHandlers()}
}

// Emit records the event, or returns the error set by FailWith.
func (r *RecordingChannel) Emit(ctx context.Context, event string, payload any) error {
	data, err := channel.Marshal(payload)
	if err != nil {
		return err
	}

	r.mu.Lock()
	if r.err != nil {
		err := r.err
		r.mu.Unlock()
		return err
	}
	e := Emitted{Event: event, Payload: data}
	r.emitted = append(r.emitted, e)
	hook := r.onEmit
	r.mu.Unlock()

	if hook != nil {
		hook(e)
	}
	return nil
}

// On registers a handler.
func (r *RecordingChannel) On(event string, h channel.Handler) {
	r.handlers.On(event, h)
}

// Off removes a handler.
func (r *RecordingChannel) Off(event string) {
	r.handlers.Off(event)
}

// FailWith makes subsequent emits fail with err. Nil restores success.
func (r *RecordingChannel) FailWith(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

// OnEmit installs a hook called after every successful emit.
func (r *RecordingChannel) OnEmit(hook func(Emitted)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onEmit = hook
}

// Emitted returns a copy of all recorded emits.
func (r *RecordingChannel) Emitted() []Emitted {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Emitted(nil), r.emitted...)
}

// HasHandler reports whether a handler is registered for event.
func (r *RecordingChannel) HasHandler(event string) bool {
	return r.handlers.Has(event)
}

// Deliver encodes payload and runs the registered handler inline.
func (r *RecordingChannel) Deliver(t *testing.T, event string, payload any) bool {
	t.Helper()
	data, err := channel.Marshal(payload)
	require.NoError(t, err)
	return r.handlers.Dispatch(event, data)
}

// DeliverRaw runs the registered handler with a raw payload.
func (r *RecordingChannel) DeliverRaw(event, payload string) bool {
	return r.handlers.Dispatch(event, json.RawMessage(payload))
}

// MockChannel is a testify mock of channel.Channel.
type MockChannel struct {
	mock.Mock
}

// Emit mocks the Emit method.
func (m *MockChannel) Emit(ctx context.Context, event string, payload any) error {
	args := m.Called(ctx, event, payload)
	return args.Error(0)
}

// On mocks the On method.
func (m *MockChannel) On(event string, h channel.Handler) {
	m.Called(event, h)
}

// Off mocks the Off method.
func (m *MockChannel) Off(event string) {
	m.Called(event)
}

// NewMockChannel creates a mock channel that accepts handler registration.
func NewMockChannel(t *testing.T) *MockChannel {
	t.Helper()
	m := new(MockChannel)
	// MockChannel.On shadows mock.Mock.On, so expectations go through m.Mock
	m.Mock.On("On", mock.Anything, mock.Anything).Return().Maybe()
	m.Mock.On("Off", mock.Anything).Return().Maybe()
	return m
}

// ObservedLogger returns a logger whose entries can be inspected.
func ObservedLogger(level zapcore.Level) (*zap.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return zap.New(core), logs
}

// WaitSignal waits for one value on ch or fails the test.
func WaitSignal(t *testing.T, ch <-chan struct{}, timeout time.Duration) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for signal")
	}
}
