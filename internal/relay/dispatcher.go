package relay

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/channel"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/tracing"
)

// Exchange statuses recorded in metrics.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusTimeout = "timeout"
)

// Emitter is the outbound half of a channel.
type Emitter interface {
	Emit(ctx context.Context, event string, payload any) error
}

// Dispatcher answers prompts with a Responder.
type Dispatcher struct {
	responder Responder
	timeout   time.Duration
	tracer    *tracing.Tracer
	logger    *zap.Logger
	metrics   *monitoring.Metrics
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithResponseTimeout bounds each Respond call. Zero disables the bound.
func WithResponseTimeout(timeout time.Duration) DispatcherOption {
	return func(d *Dispatcher) { d.timeout = timeout }
}

// WithTracer records one span per exchange.
func WithTracer(t *tracing.Tracer) DispatcherOption {
	return func(d *Dispatcher) { d.tracer = t }
}

// WithDispatcherLogger sets the logger.
func WithDispatcherLogger(l *zap.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l.Named("dispatch")
		}
	}
}

// WithDispatcherMetrics records exchange counts and durations.
func WithDispatcherMetrics(m *monitoring.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

// NewDispatcher creates a dispatcher around r.
func NewDispatcher(r Responder, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		responder: r,
		timeout:   2 * time.Minute,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle runs one exchange: typing on, reply or error, typing off.
// It returns the first emit error; responder failures are reported to the
// peer as ai-error and are not returned.
func (d *Dispatcher) Handle(ctx context.Context, out Emitter, req channel.PromptRequest) error {
	ctx = tracing.WithTraceID(ctx, req.RequestID)
	var span *tracing.Span
	if d.tracer != nil {
		span, ctx = d.tracer.StartSpan(ctx, "relay.exchange")
		if req.RequestID != "" {
			span.SetTag("request_id", req.RequestID)
		}
		defer func() {
			span.Finish()
			d.tracer.Submit(span)
		}()
	}

	logger := d.logger.With(zap.String("request_id", req.RequestID))

	if err := out.Emit(ctx, channel.EventTyping, true); err != nil {
		return err
	}

	start := time.Now()
	text, err := d.respond(ctx, req.Prompt)
	elapsed := time.Since(start)

	var emitErr error
	switch {
	case err != nil:
		status := StatusError
		if errors.Is(err, context.DeadlineExceeded) {
			status = StatusTimeout
		}
		d.metrics.RecordRelayExchange(status, elapsed)
		if span != nil {
			span.SetError(err)
		}
		logger.Warn("responder failed", zap.Error(err), zap.Duration("duration", elapsed))
		emitErr = out.Emit(ctx, channel.EventError, channel.RemoteError{RequestID: req.RequestID, Message: err.Error()})
	default:
		d.metrics.RecordRelayExchange(StatusOK, elapsed)
		logger.Debug("prompt answered", zap.Duration("duration", elapsed))
		emitErr = out.Emit(ctx, channel.EventResponse, responsePayload(req.RequestID, text))
	}

	if err := out.Emit(ctx, channel.EventTyping, false); err != nil && emitErr == nil {
		emitErr = err
	}
	return emitErr
}

// Bind answers every ai-message arriving on ch. Exchanges run on ch's
// delivery goroutine, so prompts are answered in arrival order.
func (d *Dispatcher) Bind(ctx context.Context, ch channel.Channel) {
	ch.On(channel.EventMessage, func(payload json.RawMessage) {
		req, err := channel.DecodePrompt(payload)
		if err != nil {
			d.logger.Warn("dropping malformed prompt", zap.Error(err))
			return
		}
		if err := d.Handle(ctx, ch, req); err != nil {
			d.logger.Debug("exchange aborted", zap.String("request_id", req.RequestID), zap.Error(err))
		}
	})
}

func (d *Dispatcher) respond(ctx context.Context, prompt string) (string, error) {
	if d.timeout <= 0 {
		return d.responder.Respond(ctx, prompt)
	}
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()
	return d.responder.Respond(ctx, prompt)
}

// responsePayload echoes the request id when the client sent one and falls
// back to the bare string form otherwise.
func responsePayload(requestID, text string) any {
	if requestID == "" {
		return text
	}
	return channel.Response{RequestID: requestID, Text: text}
}
