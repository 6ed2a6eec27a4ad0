package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	// Channel config
	assert.Equal(t, "ws://localhost:8000/stream", cfg.Channel.URL)
	assert.Equal(t, ProtocolEnvelope, cfg.Channel.Protocol)
	assert.Equal(t, 10*time.Second, cfg.Channel.DialTimeout)
	assert.Equal(t, 3*time.Second, cfg.Channel.ReconnectInterval)

	// Session config
	assert.Equal(t, 2*time.Minute, cfg.Session.RequestTimeout)
	assert.Equal(t, "New Chat", cfg.Session.DefaultTitle)

	// Relay config
	assert.Equal(t, "8000", cfg.Relay.Port)
	assert.Equal(t, "0.0.0.0", cfg.Relay.Host)
	assert.Empty(t, cfg.Relay.UpstreamURL)

	// Logging config
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.False(t, cfg.Logging.Development)

	// Rate limit config
	assert.Equal(t, 100, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 200, cfg.RateLimit.Burst)
	assert.True(t, cfg.RateLimit.Enabled)

	require.NoError(t, cfg.Validate())
}

// unsetEnv clears keys for the duration of the test.
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		if prev, ok := os.LookupEnv(key); ok {
			require.NoError(t, os.Unsetenv(key))
			t.Cleanup(func() { os.Setenv(key, prev) })
		}
	}
}

var allKeys = []string{
	"CHAT_SERVER_URL", "CHAT_PROTOCOL", "CHAT_DIAL_TIMEOUT", "CHAT_WRITE_TIMEOUT", "CHAT_RECONNECT_INTERVAL",
	"CHAT_REQUEST_TIMEOUT", "CHAT_DEFAULT_TITLE",
	"PORT", "HOST", "RELAY_UPSTREAM_URL", "RELAY_RESPONSE_TIMEOUT", "RELAY_ECHO_PREFIX", "RELAY_PING_INTERVAL",
	"LOG_LEVEL", "LOG_DEV",
	"RATE_LIMIT_RPS", "RATE_LIMIT_BURST", "RATE_LIMIT_ENABLED",
}

func TestLoadMatchesDefault(t *testing.T) {
	unsetEnv(t, allKeys...)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, Default(), cfg)
}

func TestLoadWithEnvironmentVariables(t *testing.T) {
	envVars := map[string]string{
		"CHAT_SERVER_URL":         "https://chat.example.com/",
		"CHAT_PROTOCOL":           "socketio",
		"CHAT_DIAL_TIMEOUT":       "1s",
		"CHAT_WRITE_TIMEOUT":      "2s",
		"CHAT_RECONNECT_INTERVAL": "0s",
		"CHAT_REQUEST_TIMEOUT":    "30s",
		"CHAT_DEFAULT_TITLE":      "Untitled",
		"PORT":                    "9000",
		"HOST":                    "127.0.0.1",
		"RELAY_UPSTREAM_URL":      "http://llm:8080/generate",
		"LOG_LEVEL":               "debug",
		"LOG_DEV":                 "true",
		"RATE_LIMIT_RPS":          "5",
		"RATE_LIMIT_BURST":        "10",
		"RATE_LIMIT_ENABLED":      "false",
	}
	for key, value := range envVars {
		t.Setenv(key, value)
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://chat.example.com/", cfg.Channel.URL)
	assert.Equal(t, ProtocolSocketIO, cfg.Channel.Protocol)
	assert.Equal(t, time.Second, cfg.Channel.DialTimeout)
	assert.Equal(t, 2*time.Second, cfg.Channel.WriteTimeout)
	assert.Zero(t, cfg.Channel.ReconnectInterval)

	assert.Equal(t, 30*time.Second, cfg.Session.RequestTimeout)
	assert.Equal(t, "Untitled", cfg.Session.DefaultTitle)

	assert.Equal(t, "9000", cfg.Relay.Port)
	assert.Equal(t, "127.0.0.1", cfg.Relay.Host)
	assert.Equal(t, "http://llm:8080/generate", cfg.Relay.UpstreamURL)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.True(t, cfg.Logging.Development)

	assert.Equal(t, 5, cfg.RateLimit.RequestsPerSecond)
	assert.Equal(t, 10, cfg.RateLimit.Burst)
	assert.False(t, cfg.RateLimit.Enabled)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{name: "unknown protocol", key: "CHAT_PROTOCOL", value: "grpc"},
		{name: "negative timeout", key: "CHAT_REQUEST_TIMEOUT", value: "-1s"},
		{name: "unparsable duration", key: "CHAT_DIAL_TIMEOUT", value: "soon"},
		{name: "unparsable bool", key: "LOG_DEV", value: "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t, allKeys...)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)

			// LoadOrDefault falls back instead of failing
			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}

func TestSessionConfig(t *testing.T) {
	tests := []struct {
		name        string
		timeout     string
		title       string
		wantTimeout time.Duration
		wantTitle   string
	}{
		{
			name:        "default values",
			wantTimeout: 2 * time.Minute,
			wantTitle:   "New Chat",
		},
		{
			name:        "timeout disabled",
			timeout:     "0s",
			wantTimeout: 0,
			wantTitle:   "New Chat",
		},
		{
			name:        "custom title",
			title:       "Chat",
			wantTimeout: 2 * time.Minute,
			wantTitle:   "Chat",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unsetEnv(t, allKeys...)
			if tt.timeout != "" {
				t.Setenv("CHAT_REQUEST_TIMEOUT", tt.timeout)
			}
			if tt.title != "" {
				t.Setenv("CHAT_DEFAULT_TITLE", tt.title)
			}

			cfg := LoadOrDefault()

			assert.Equal(t, tt.wantTimeout, cfg.Session.RequestTimeout)
			assert.Equal(t, tt.wantTitle, cfg.Session.DefaultTitle)
		})
	}
}
