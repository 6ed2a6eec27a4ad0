package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/config"
	"github.com/GriffinCanCode/chatsphere/internal/infrastructure/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Printf("Invalid environment, using defaults: %v", err)
		cfg = config.Default()
	}

	// Parse flags
	port := flag.String("port", cfg.Relay.Port, "Server port")
	host := flag.String("host", cfg.Relay.Host, "Server host")
	upstream := flag.String("upstream", cfg.Relay.UpstreamURL, "Upstream inference URL (empty echoes prompts)")
	dev := flag.Bool("dev", cfg.Logging.Development, "Development mode (console logs, debug level)")
	flag.Parse()

	cfg.Relay.Port = *port
	cfg.Relay.Host = *host
	cfg.Relay.UpstreamURL = *upstream
	if *dev {
		cfg.Logging.Development = true
		cfg.Logging.Level = "debug"
	}

	banner := color.New(color.FgCyan, color.Bold)
	banner.Fprintln(os.Stderr, "ChatSphere relay")
	if cfg.Relay.UpstreamURL == "" {
		color.New(color.Faint).Fprintln(os.Stderr, "echo mode, set -upstream to forward prompts")
	}

	// Create server
	srv, err := server.NewServer(cfg)
	if err != nil {
		log.Fatalf("Failed to create server: %v", err)
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Run()
	}()

	// Wait for shutdown signal or error
	select {
	case <-sigChan:
		log.Println("Shutting down gracefully...")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("Error during shutdown: %v", err)
		}
	case err := <-errChan:
		if err != nil {
			log.Fatalf("Server error: %v", err)
		}
	}
}
