// Package main is the entry point for the ChatSphere development relay.
//
// The relay stands in for the remote inference service: it accepts chat
// client sessions over websocket and answers every ai-message prompt, either
// by echoing it back or by forwarding it to an upstream HTTP endpoint.
//
//	chatsphere (CLI) → relay → upstream inference (optional)
//
// Configuration:
//   - Environment variables (PORT, HOST, RELAY_*, LOG_*, RATE_LIMIT_*)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Echo replies on :8000
//	./relay
//
//	# Forward prompts upstream, development logging
//	./relay -port 9000 -upstream http://localhost:8080/generate -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
package main
