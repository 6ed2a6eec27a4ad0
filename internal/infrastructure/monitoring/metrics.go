package monitoring

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Request outcomes recorded by RecordRequestOutcome.
const (
	OutcomeAnswered = "answered"
	OutcomeTimeout  = "timeout"
	OutcomeFailed   = "failed"
	OutcomeDropped  = "dropped"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is a valid no-op
// recorder, so components can run without a registry.
type Metrics struct {
	// HTTP metrics (relay)
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
	RequestSize     *prometheus.HistogramVec
	ResponseSize    *prometheus.HistogramVec

	// Chat metrics (session manager)
	ChatRequests         prometheus.Counter
	ChatOutcomes         *prometheus.CounterVec
	ChatLatency          prometheus.Histogram
	ChatPending          prometheus.Gauge
	ConversationsCreated prometheus.Counter
	Composing            prometheus.Gauge

	// Relay metrics
	RelayExchanges *prometheus.CounterVec
	RelayDuration  prometheus.Histogram

	// WebSocket metrics
	WSConnections prometheus.Gauge
	WSMessages    *prometheus.CounterVec

	// System metrics
	Uptime    prometheus.GaugeFunc
	startTime time.Time

	snapshot MetricsSnapshot

	mu sync.RWMutex
}

// MetricsSnapshot holds current metric values for JSON views
type MetricsSnapshot struct {
	TotalRequests     int64 `json:"total_requests"`
	TotalErrors       int64 `json:"total_errors"`
	ChatRequests      int64 `json:"chat_requests"`
	ChatAnswered      int64 `json:"chat_answered"`
	ChatFailures      int64 `json:"chat_failures"`
	ActiveConnections int64 `json:"active_connections"`
}

// NewMetrics creates a metrics collector registered on reg.
// A nil reg registers on a private registry, which keeps tests isolated.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	m := &Metrics{
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsphere_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatsphere_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		RequestSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatsphere_http_request_size_bytes",
				Help:    "HTTP request size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),
		ResponseSize: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "chatsphere_http_response_size_bytes",
				Help:    "HTTP response size in bytes",
				Buckets: []float64{100, 1000, 10000, 100000, 1000000},
			},
			[]string{"method", "path"},
		),

		ChatRequests: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsphere_chat_requests_total",
				Help: "Total number of prompts sent on the channel",
			},
		),
		ChatOutcomes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsphere_chat_outcomes_total",
				Help: "Resolved prompts by outcome",
			},
			[]string{"outcome"},
		),
		ChatLatency: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatsphere_chat_response_seconds",
				Help:    "Time from prompt to assistant reply",
				Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 120},
			},
		),
		ChatPending: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsphere_chat_pending",
				Help: "Prompts awaiting a reply",
			},
		),
		ConversationsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "chatsphere_conversations_created_total",
				Help: "Total number of conversations created",
			},
		),
		Composing: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsphere_remote_composing",
				Help: "1 while the remote peer reports it is composing",
			},
		),

		RelayExchanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsphere_relay_exchanges_total",
				Help: "Prompts handled by the relay",
			},
			[]string{"status"},
		),
		RelayDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "chatsphere_relay_exchange_seconds",
				Help:    "Relay responder duration in seconds",
				Buckets: []float64{.001, .01, .1, .5, 1, 2.5, 5, 10, 30, 60},
			},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "chatsphere_ws_connections",
				Help: "Number of active WebSocket connections",
			},
		),
		WSMessages: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "chatsphere_ws_messages_total",
				Help: "Total number of WebSocket messages",
			},
			[]string{"direction", "type"},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "chatsphere_uptime_seconds",
			Help: "Process uptime in seconds",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration, reqSize, respSize int64) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	m.RequestSize.WithLabelValues(method, path).Observe(float64(reqSize))
	m.ResponseSize.WithLabelValues(method, path).Observe(float64(respSize))

	m.mu.Lock()
	m.snapshot.TotalRequests++
	if len(status) > 0 && (status[0] == '4' || status[0] == '5') {
		m.snapshot.TotalErrors++
	}
	m.mu.Unlock()
}

// RecordChatRequest records a prompt leaving the client
func (m *Metrics) RecordChatRequest() {
	if m == nil {
		return
	}
	m.ChatRequests.Inc()
	m.mu.Lock()
	m.snapshot.ChatRequests++
	m.mu.Unlock()
}

// RecordRequestOutcome records how a prompt was resolved
func (m *Metrics) RecordRequestOutcome(outcome string, latency time.Duration) {
	if m == nil {
		return
	}
	m.ChatOutcomes.WithLabelValues(outcome).Inc()
	if outcome == OutcomeAnswered {
		m.ChatLatency.Observe(latency.Seconds())
	}

	m.mu.Lock()
	switch outcome {
	case OutcomeAnswered:
		m.snapshot.ChatAnswered++
	case OutcomeTimeout, OutcomeFailed:
		m.snapshot.ChatFailures++
	}
	m.mu.Unlock()
}

// SetPending sets the number of prompts awaiting a reply
func (m *Metrics) SetPending(count int) {
	if m == nil {
		return
	}
	m.ChatPending.Set(float64(count))
}

// IncConversations increments the conversations created counter
func (m *Metrics) IncConversations() {
	if m == nil {
		return
	}
	m.ConversationsCreated.Inc()
}

// SetComposing mirrors the remote composing indicator
func (m *Metrics) SetComposing(composing bool) {
	if m == nil {
		return
	}
	if composing {
		m.Composing.Set(1)
		return
	}
	m.Composing.Set(0)
}

// RecordRelayExchange records one relay prompt/response exchange
func (m *Metrics) RecordRelayExchange(status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RelayExchanges.WithLabelValues(status).Inc()
	m.RelayDuration.Observe(duration.Seconds())
}

// RecordWSMessage records a WebSocket message
func (m *Metrics) RecordWSMessage(direction, msgType string) {
	if m == nil {
		return
	}
	m.WSMessages.WithLabelValues(direction, msgType).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
	m.mu.Lock()
	m.snapshot.ActiveConnections++
	m.mu.Unlock()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
	m.mu.Lock()
	m.snapshot.ActiveConnections--
	m.mu.Unlock()
}

// Snapshot returns current counter values
func (m *Metrics) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshot
}
