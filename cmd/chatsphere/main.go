package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/chatsphere/internal/channel"
	"github.com/GriffinCanCode/chatsphere/internal/channel/memory"
	"github.com/GriffinCanCode/chatsphere/internal/channel/wire"
	"github.com/GriffinCanCode/chatsphere/internal/channel/ws"
	"github.com/GriffinCanCode/chatsphere/internal/domain/session"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/logging"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/chatsphere/internal/relay"
	"github.com/GriffinCanCode/chatsphere/internal/render"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, color.RedString("chatsphere: %v", err))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid environment, using defaults: %v\n", err)
		cfg = config.Default()
	}

	// Parse flags
	serverURL := flag.String("server", cfg.Channel.URL, "Chat server URL")
	protocol := flag.String("protocol", cfg.Channel.Protocol, "Wire framing: envelope or socketio")
	timeout := flag.Duration("timeout", cfg.Session.RequestTimeout, "Reply timeout per message (0 disables)")
	offline := flag.Bool("offline", false, "Chat with a built-in echo relay instead of a server")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (console logs, debug level)")
	noColor := flag.Bool("no-color", false, "Disable colored output")
	metricsAddr := flag.String("metrics", "", "Serve Prometheus metrics on this address")
	flag.Parse()

	cfg.Channel.URL = *serverURL
	cfg.Channel.Protocol = *protocol
	cfg.Session.RequestTimeout = *timeout
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := logging.FromSettings(cfg.Logging.Level, cfg.Logging.Development, "stderr")
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	metrics := monitoring.NewMetrics(registry)
	if *metricsAddr != "" {
		go serveMetrics(*metricsAddr, registry, logger.Logger)
	}

	ch, closeChannel, err := openChannel(ctx, cfg, *offline, logger.Logger, metrics)
	if err != nil {
		return err
	}
	defer closeChannel()

	mgr := session.NewManager(ch, session.Config{
		RequestTimeout: cfg.Session.RequestTimeout,
		DefaultTitle:   cfg.Session.DefaultTitle,
	}).WithLogger(logger.Logger).WithMetrics(metrics)
	mgr.Attach()
	defer mgr.Close()

	view := render.New(os.Stdout, !color.NoColor && !*noColor)
	a := &app{mgr: mgr, view: view, out: os.Stdout, logger: logger.Logger}

	fmt.Fprintln(os.Stdout, "ChatSphere, type /help for commands")
	view.Screen(mgr.State())
	go a.redraw(ctx)

	if err := a.run(ctx, os.Stdin); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	snap := metrics.Snapshot()
	logger.Info("session ended",
		zap.Int64("sent", snap.ChatRequests),
		zap.Int64("answered", snap.ChatAnswered),
		zap.Int64("failed", snap.ChatFailures),
	)
	return nil
}

// openChannel connects the websocket client, or in offline mode wires a
// loopback pair to an in-process echo relay.
func openChannel(ctx context.Context, cfg *config.Config, offline bool, logger *zap.Logger, metrics *monitoring.Metrics) (channel.Channel, func(), error) {
	if offline {
		near, far := memory.NewPair()
		dispatcher := relay.NewDispatcher(
			relay.EchoResponder{Prefix: cfg.Relay.EchoPrefix, Delay: 300 * time.Millisecond},
			relay.WithResponseTimeout(cfg.Relay.ResponseTimeout),
			relay.WithDispatcherLogger(logger),
		)
		dispatcher.Bind(ctx, far)
		logger.Info("offline mode, replies come from the built-in echo relay")
		return near, func() {
			_ = near.Close()
			_ = far.Close()
		}, nil
	}

	codec, err := wire.Lookup(cfg.Channel.Protocol)
	if err != nil {
		return nil, nil, err
	}
	client, err := ws.New(ws.Options{
		URL:               cfg.Channel.URL,
		Codec:             codec,
		DialTimeout:       cfg.Channel.DialTimeout,
		WriteTimeout:      cfg.Channel.WriteTimeout,
		ReconnectInterval: cfg.Channel.ReconnectInterval,
		Logger:            logger,
		Metrics:           metrics,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := client.Connect(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to connect to %s: %w", client.URL(), err)
	}
	return client, func() { _ = client.Close() }, nil
}

func serveMetrics(addr string, registry *prometheus.Registry, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
