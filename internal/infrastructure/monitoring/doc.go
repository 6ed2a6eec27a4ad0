/*
Package monitoring provides Prometheus metrics for the chat client and relay.

# Overview

Metrics are registered on an injected prometheus.Registerer so every process
(and every test) owns its registry. A nil *Metrics records nothing.

# Features

- Chat request metrics (sent, outcome, reply latency, pending depth)
- Conversation and composing-indicator metrics
- Relay exchange metrics (status, responder duration)
- HTTP request metrics for the relay (latency, size, status)
- WebSocket connection and message metrics
- Process uptime

# Usage

	reg := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(reg)

	router.Use(monitoring.Middleware(metrics))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	metrics.RecordChatRequest()
	metrics.RecordRequestOutcome(monitoring.OutcomeAnswered, time.Since(sentAt))
*/
package monitoring
