package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
)

// Event names shared with the inference service.
const (
	EventMessage  = "ai-message"
	EventResponse = "ai-message-response"
	EventTyping   = "ai-typing"
	EventError    = "ai-error"
)

// ErrMalformedPayload is returned when an inbound payload has the wrong shape.
var ErrMalformedPayload = errors.New("malformed payload")

// Handler receives the raw JSON payload of one inbound event.
type Handler func(payload json.RawMessage)

// Channel is a bidirectional named-event channel.
// On replaces any handler previously registered for the same event.
type Channel interface {
	Emit(ctx context.Context, event string, payload any) error
	On(event string, h Handler)
	Off(event string)
}

// PromptRequest is the ai-message payload.
type PromptRequest struct {
	Prompt    string `json:"prompt"`
	RequestID string `json:"request_id,omitempty"`
}

// Response is an ai-message-response payload. RequestID is empty for the
// legacy bare-string form.
type Response struct {
	RequestID string `json:"request_id,omitempty"`
	Text      string `json:"text"`
}

// RemoteError is the ai-error payload.
type RemoteError struct {
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"error"`
}

func (e RemoteError) Error() string {
	return e.Message
}

// Marshal encodes a payload the way every channel implementation does.
func Marshal(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return raw, nil
	}
	data, err := sonic.ConfigStd.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to encode payload: %w", err)
	}
	return data, nil
}

// DecodePrompt parses an ai-message payload. A bare string is accepted as
// the prompt.
func DecodePrompt(payload json.RawMessage) (PromptRequest, error) {
	var req PromptRequest
	switch firstByte(payload) {
	case '"':
		if err := sonic.ConfigStd.Unmarshal(payload, &req.Prompt); err != nil {
			return req, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	case '{':
		var obj struct {
			Prompt    *string `json:"prompt"`
			RequestID string  `json:"request_id"`
		}
		if err := sonic.ConfigStd.Unmarshal(payload, &obj); err != nil {
			return req, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if obj.Prompt == nil {
			return req, fmt.Errorf("%w: prompt missing", ErrMalformedPayload)
		}
		req = PromptRequest{Prompt: *obj.Prompt, RequestID: obj.RequestID}
	default:
		return req, fmt.Errorf("%w: %s payload must be a string or object", ErrMalformedPayload, EventMessage)
	}
	return req, nil
}

// DecodeResponse parses an ai-message-response payload in either form.
func DecodeResponse(payload json.RawMessage) (Response, error) {
	var resp Response
	switch firstByte(payload) {
	case '"':
		if err := sonic.ConfigStd.Unmarshal(payload, &resp.Text); err != nil {
			return resp, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	case '{':
		var obj struct {
			RequestID string  `json:"request_id"`
			Text      *string `json:"text"`
		}
		if err := sonic.ConfigStd.Unmarshal(payload, &obj); err != nil {
			return resp, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		if obj.Text == nil {
			return resp, fmt.Errorf("%w: text missing", ErrMalformedPayload)
		}
		resp = Response{RequestID: obj.RequestID, Text: *obj.Text}
	default:
		return resp, fmt.Errorf("%w: %s payload must be a string or object", ErrMalformedPayload, EventResponse)
	}
	return resp, nil
}

// DecodeTyping parses an ai-typing payload.
func DecodeTyping(payload json.RawMessage) (bool, error) {
	var typing bool
	switch firstByte(payload) {
	case 't', 'f':
		if err := sonic.ConfigStd.Unmarshal(payload, &typing); err != nil {
			return false, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
		return typing, nil
	default:
		return false, fmt.Errorf("%w: %s payload must be a boolean", ErrMalformedPayload, EventTyping)
	}
}

// DecodeError parses an ai-error payload. A bare string is the message.
func DecodeError(payload json.RawMessage) (RemoteError, error) {
	var remote RemoteError
	switch firstByte(payload) {
	case '"':
		if err := sonic.ConfigStd.Unmarshal(payload, &remote.Message); err != nil {
			return remote, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	case '{':
		if err := sonic.ConfigStd.Unmarshal(payload, &remote); err != nil {
			return remote, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
		}
	default:
		return remote, fmt.Errorf("%w: %s payload must be a string or object", ErrMalformedPayload, EventError)
	}
	if remote.Message == "" {
		remote.Message = "remote error"
	}
	return remote, nil
}

func firstByte(payload json.RawMessage) byte {
	trimmed := bytes.TrimSpace(payload)
	if len(trimmed) == 0 {
		return 0
	}
	return trimmed[0]
}

// Handlers is a concurrency-safe event to handler table for Channel
// implementations.
type Handlers struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewHandlers creates an empty handler table.
func NewHandlers() *Handlers {
	return &Handlers{handlers: make(map[string]Handler)}
}

// On registers h for event, replacing any previous handler.
func (t *Handlers) On(event string, h Handler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if h == nil {
		delete(t.handlers, event)
		return
	}
	t.handlers[event] = h
}

// Off removes the handler for event.
func (t *Handlers) Off(event string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.handlers, event)
}

// Has reports whether a handler is registered for event.
func (t *Handlers) Has(event string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.handlers[event]
	return ok
}

// Dispatch calls the handler for event, reporting whether one was registered.
func (t *Handlers) Dispatch(event string, payload json.RawMessage) bool {
	t.mu.RLock()
	h, ok := t.handlers[event]
	t.mu.RUnlock()
	if !ok {
		return false
	}
	h(payload)
	return true
}
