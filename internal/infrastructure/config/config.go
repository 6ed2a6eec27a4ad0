package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Protocol names accepted by Channel.Protocol.
const (
	ProtocolEnvelope = "envelope"
	ProtocolSocketIO = "socketio"
)

// Config holds all application configuration.
type Config struct {
	Channel   ChannelConfig
	Session   SessionConfig
	Relay     RelayConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ChannelConfig holds real-time channel configuration.
type ChannelConfig struct {
	URL               string        `envconfig:"CHAT_SERVER_URL" default:"ws://localhost:8000/stream"`
	Protocol          string        `envconfig:"CHAT_PROTOCOL" default:"envelope"`
	DialTimeout       time.Duration `envconfig:"CHAT_DIAL_TIMEOUT" default:"10s"`
	WriteTimeout      time.Duration `envconfig:"CHAT_WRITE_TIMEOUT" default:"5s"`
	ReconnectInterval time.Duration `envconfig:"CHAT_RECONNECT_INTERVAL" default:"3s"`
}

// SessionConfig holds conversation session configuration.
type SessionConfig struct {
	RequestTimeout time.Duration `envconfig:"CHAT_REQUEST_TIMEOUT" default:"2m"`
	DefaultTitle   string        `envconfig:"CHAT_DEFAULT_TITLE" default:"New Chat"`
}

// RelayConfig holds development relay server configuration.
type RelayConfig struct {
	Port            string        `envconfig:"PORT" default:"8000"`
	Host            string        `envconfig:"HOST" default:"0.0.0.0"`
	UpstreamURL     string        `envconfig:"RELAY_UPSTREAM_URL"`
	ResponseTimeout time.Duration `envconfig:"RELAY_RESPONSE_TIMEOUT" default:"2m"`
	EchoPrefix      string        `envconfig:"RELAY_ECHO_PREFIX" default:"You said: "`
	PingInterval    time.Duration `envconfig:"RELAY_PING_INTERVAL" default:"25s"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Channel: ChannelConfig{
			URL:               "ws://localhost:8000/stream",
			Protocol:          ProtocolEnvelope,
			DialTimeout:       10 * time.Second,
			WriteTimeout:      5 * time.Second,
			ReconnectInterval: 3 * time.Second,
		},
		Session: SessionConfig{
			RequestTimeout: 2 * time.Minute,
			DefaultTitle:   "New Chat",
		},
		Relay: RelayConfig{
			Port:            "8000",
			Host:            "0.0.0.0",
			ResponseTimeout: 2 * time.Minute,
			EchoPrefix:      "You said: ",
			PingInterval:    25 * time.Second,
		},
		Logging: LogConfig{
			Level:       "info",
			Development: false,
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}

// Validate rejects values the components cannot run with.
func (c *Config) Validate() error {
	switch c.Channel.Protocol {
	case ProtocolEnvelope, ProtocolSocketIO:
	default:
		return fmt.Errorf("invalid CHAT_PROTOCOL %q: want %q or %q", c.Channel.Protocol, ProtocolEnvelope, ProtocolSocketIO)
	}
	if c.Session.RequestTimeout < 0 {
		return fmt.Errorf("invalid CHAT_REQUEST_TIMEOUT %s: must not be negative", c.Session.RequestTimeout)
	}
	if c.Session.DefaultTitle == "" {
		return fmt.Errorf("CHAT_DEFAULT_TITLE must not be empty")
	}
	return nil
}
