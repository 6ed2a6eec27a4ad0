package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/api/middleware"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/logging"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/tracing"
	"github.com/GriffinCanCode/chatsphere/internal/relay"
)

// Server wraps the relay HTTP server and dependencies
type Server struct {
	router   *gin.Engine
	http     *http.Server
	relay    *relay.Handler
	tracer   *tracing.Tracer
	registry *prometheus.Registry
	metrics  *monitoring.Metrics
	logger   *zap.Logger
	config   *config.Config
	started  time.Time
}

// Option customizes a Server.
type Option func(*options)

type options struct {
	logger    *zap.Logger
	responder relay.Responder
}

// WithLogger sets the server logger. By default one is built from cfg.Logging.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithResponder overrides the responder chosen from cfg.Relay.
func WithResponder(r relay.Responder) Option {
	return func(o *options) { o.responder = r }
}

// NewServer creates a new relay server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development).Logger
	}

	logger.Info("Initializing ChatSphere relay",
		zap.String("host", cfg.Relay.Host),
		zap.String("port", cfg.Relay.Port),
		zap.String("upstream", cfg.Relay.UpstreamURL),
	)

	// Each server owns its registry so tests can run several side by side
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := monitoring.NewMetrics(registry)

	tracer := tracing.New("relay", logger)

	responder := o.responder
	if responder == nil {
		var err error
		responder, err = newResponder(cfg, logger)
		if err != nil {
			tracer.Close()
			return nil, err
		}
	}

	dispatcher := relay.NewDispatcher(responder,
		relay.WithResponseTimeout(cfg.Relay.ResponseTimeout),
		relay.WithTracer(tracer),
		relay.WithDispatcherLogger(logger),
		relay.WithDispatcherMetrics(metrics),
	)
	relayHandler := relay.NewHandler(dispatcher, relay.HandlerOptions{
		PingInterval: cfg.Relay.PingInterval,
		Logger:       logger,
		Metrics:      metrics,
	})

	// Create router
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	// Add middleware
	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(tracer))
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	s := &Server{
		router:   router,
		relay:    relayHandler,
		tracer:   tracer,
		registry: registry,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
		started:  time.Now(),
	}

	// Register routes
	router.GET("/", s.root)
	router.GET("/health", s.health)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})))
	router.GET("/metrics/json", s.metricsJSON)
	relayHandler.Register(router)

	s.http = &http.Server{
		Addr:              net.JoinHostPort(cfg.Relay.Host, cfg.Relay.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

func newResponder(cfg *config.Config, logger *zap.Logger) (relay.Responder, error) {
	if cfg.Relay.UpstreamURL == "" {
		logger.Info("Using echo responder", zap.String("prefix", cfg.Relay.EchoPrefix))
		return relay.EchoResponder{Prefix: cfg.Relay.EchoPrefix}, nil
	}
	r, err := relay.NewHTTPResponder(relay.HTTPOptions{
		URL:     cfg.Relay.UpstreamURL,
		Timeout: cfg.Relay.ResponseTimeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream responder: %w", err)
	}
	logger.Info("Forwarding prompts upstream", zap.String("url", cfg.Relay.UpstreamURL))
	return r, nil
}

// Handler returns the router, for embedding in tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Metrics returns the server's collectors.
func (s *Server) Metrics() *monitoring.Metrics {
	return s.metrics
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.http.Addr
}

// Run starts the HTTP server and blocks until Shutdown.
func (s *Server) Run() error {
	l, err := net.Listen("tcp", s.http.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.http.Addr, err)
	}
	return s.Serve(l)
}

// Serve accepts connections on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("Starting HTTP server", zap.String("addr", l.Addr().String()))
	if err := s.http.Serve(l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown ends websocket sessions, stops accepting requests and flushes spans.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	// Hijacked websocket connections are not tracked by http.Server
	s.relay.Close()

	err := s.http.Shutdown(ctx)
	if err != nil {
		s.logger.Error("Failed to shut down HTTP server", zap.Error(err))
		err = fmt.Errorf("failed to shut down http server: %w", err)
	}

	s.tracer.Close()
	_ = s.logger.Sync()
	return err
}

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "chatsphere-relay",
		"status":  "running",
		"endpoints": gin.H{
			"envelope": relay.PathStream,
			"socketio": relay.PathSocketIO,
			"health":   "/health",
			"metrics":  "/metrics",
		},
	})
}

func (s *Server) health(c *gin.Context) {
	snap := s.metrics.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"uptime":      time.Since(s.started).Round(time.Second).String(),
		"connections": snap.ActiveConnections,
	})
}

func (s *Server) metricsJSON(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}
