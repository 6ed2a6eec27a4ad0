package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/resilience"
)

// ErrEmptyPrompt is returned for prompts with no text.
var ErrEmptyPrompt = errors.New("empty prompt")

// Responder produces the assistant reply for one prompt.
type Responder interface {
	Respond(ctx context.Context, prompt string) (string, error)
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, prompt string) (string, error)

func (f ResponderFunc) Respond(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// EchoResponder replies with the prompt behind Prefix.
type EchoResponder struct {
	Prefix string
	// Delay simulates inference time
	Delay time.Duration
}

func (e EchoResponder) Respond(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}
	if e.Delay > 0 {
		timer := time.NewTimer(e.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-timer.C:
		}
	}
	return e.Prefix + prompt, nil
}

// HTTPResponder forwards prompts to an upstream inference endpoint.
//
// The request body is {"prompt": "..."}. The reply may be a JSON object with
// a "text" field, a JSON string, or plain text.
type HTTPResponder struct {
	url     string
	resty   *resty.Client
	breaker *resilience.Breaker
	logger  *zap.Logger
}

// HTTPOptions configures an HTTPResponder.
type HTTPOptions struct {
	URL     string
	Timeout time.Duration
	Headers map[string]string
	Logger  *zap.Logger
	Breaker *resilience.Breaker
}

// NewHTTPResponder creates a responder for opts.URL.
func NewHTTPResponder(opts HTTPOptions) (*HTTPResponder, error) {
	if opts.URL == "" {
		return nil, errors.New("upstream url is required")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Breaker == nil {
		opts.Breaker = resilience.New("relay-upstream", resilience.UpstreamSettings(opts.Logger))
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", "ChatSphere-Relay/1.0").
		SetHeader("Accept", "application/json, text/plain")
	client.SetHeaders(opts.Headers)

	return &HTTPResponder{
		url:     opts.URL,
		resty:   client,
		breaker: opts.Breaker,
		logger:  opts.Logger.Named("upstream").With(zap.String("url", opts.URL)),
	}, nil
}

type upstreamRequest struct {
	Prompt string `json:"prompt"`
}

func (h *HTTPResponder) Respond(ctx context.Context, prompt string) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", ErrEmptyPrompt
	}

	body, err := sonic.ConfigStd.Marshal(upstreamRequest{Prompt: prompt})
	if err != nil {
		return "", fmt.Errorf("failed to encode upstream request: %w", err)
	}

	resp, err := resilience.Do(ctx, h.breaker, func(ctx context.Context) (*resty.Response, error) {
		resp, err := h.resty.R().
			SetContext(ctx).
			SetHeader("Content-Type", "application/json").
			SetBody(body).
			Post(h.url)
		if err != nil {
			return nil, err
		}
		if resp.IsError() {
			return nil, fmt.Errorf("upstream returned %s", resp.Status())
		}
		return resp, nil
	})
	if err != nil {
		h.logger.Warn("upstream call failed", zap.Error(err))
		return "", fmt.Errorf("upstream request failed: %w", err)
	}

	text, err := parseReply(resp.Body())
	if err != nil {
		return "", err
	}
	h.logger.Debug("upstream replied",
		zap.Int("status", resp.StatusCode()),
		zap.Duration("duration", resp.Time()),
		zap.Int("size", len(text)),
	)
	return text, nil
}

func parseReply(body []byte) (string, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return "", errors.New("upstream returned an empty body")
	}

	switch trimmed[0] {
	case '{':
		var obj struct {
			Text *string `json:"text"`
		}
		if err := sonic.ConfigStd.Unmarshal(trimmed, &obj); err != nil {
			return "", fmt.Errorf("failed to decode upstream reply: %w", err)
		}
		if obj.Text == nil {
			return "", errors.New("upstream reply has no text field")
		}
		return *obj.Text, nil
	case '"':
		var text string
		if err := sonic.ConfigStd.Unmarshal(trimmed, &text); err != nil {
			return "", fmt.Errorf("failed to decode upstream reply: %w", err)
		}
		return text, nil
	}
	return string(trimmed), nil
}
