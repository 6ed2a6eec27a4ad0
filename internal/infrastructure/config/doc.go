// Package config provides 12-factor configuration management for ChatSphere.
//
// Configuration is loaded from environment variables with sensible defaults.
// CLI flags can override environment variables for development flexibility.
//
// Configuration Sections:
//   - Channel: real-time channel endpoint, framing and socket timeouts
//   - Session: per-request deadline and default conversation title
//   - Relay: development relay server (port, host, upstream inference)
//   - Logging: Log level and output format
//   - RateLimit: Per-IP rate limiting on the relay
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	fmt.Printf("Connecting to %s (%s)\n", cfg.Channel.URL, cfg.Channel.Protocol)
//
// Environment Variables:
//   - CHAT_SERVER_URL, CHAT_PROTOCOL, CHAT_DIAL_TIMEOUT, CHAT_WRITE_TIMEOUT, CHAT_RECONNECT_INTERVAL
//   - CHAT_REQUEST_TIMEOUT, CHAT_DEFAULT_TITLE
//   - PORT, HOST, RELAY_UPSTREAM_URL, RELAY_RESPONSE_TIMEOUT, RELAY_ECHO_PREFIX, RELAY_PING_INTERVAL
//   - LOG_LEVEL, LOG_DEV
//   - RATE_LIMIT_RPS, RATE_LIMIT_BURST, RATE_LIMIT_ENABLED
package config
