// Package server wires the development relay into an HTTP server.
//
// Middleware stack, outermost first:
//   - gin recovery
//   - tracing (one span per request, X-Trace-ID / X-Span-ID headers)
//   - Prometheus request metrics
//   - CORS
//   - per-IP rate limiting, when enabled
//
// Routes:
//
//	GET /              service info
//	GET /health        health check
//	GET /metrics       Prometheus exposition of the server's registry
//	GET /metrics/json  counter snapshot
//	GET /stream        relay session, envelope framing
//	GET /socket.io/    relay session, Socket.IO framing
//
// Example Usage:
//
//	cfg := config.LoadOrDefault()
//	srv, err := server.NewServer(cfg)
//	if err != nil { ... }
//	go srv.Run()
//	defer srv.Shutdown(ctx)
package server
