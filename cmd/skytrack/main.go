// Package main implements the Skyking telemetry service entry point.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/skyking-delivery/skytrack/internal/api"
	"github.com/skyking-delivery/skytrack/internal/audit"
	"github.com/skyking-delivery/skytrack/internal/cloud"
	"github.com/skyking-delivery/skytrack/internal/config"
	"github.com/skyking-delivery/skytrack/internal/emitter"
	"github.com/skyking-delivery/skytrack/internal/fetcher"
	"github.com/skyking-delivery/skytrack/internal/logging"
	"github.com/skyking-delivery/skytrack/internal/store"
	"github.com/skyking-delivery/skytrack/internal/telemetry"
)

const Version = "1.0.0"

func main() {
	if err := run(); err != nil {
		log.Fatalf("skytrack: %v", err)
	}
}

func run() error {
	// Step 1: Load configuration
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logWriter := logging.NewWriter(&cfg.Log)
	logger := logging.NewLogger(logWriter, "skytrack")
	logger.Printf("starting Skyking telemetry service v%s", Version)

	// Step 2: Open the telemetry store
	startupCtx, startupCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer startupCancel()

	telemetryStore, err := store.Open(startupCtx, &cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to open telemetry store: %w", err)
	}
	defer telemetryStore.Close()

	if err := telemetryStore.EnsureSchema(startupCtx); err != nil {
		return fmt.Errorf("failed to ensure telemetry schema: %w", err)
	}
	logger.Printf("telemetry store ready")

	// Step 3: Initialize the pipeline journal
	journal, err := audit.NewLogger(cfg.Log.Dir)
	if err != nil {
		return fmt.Errorf("failed to initialize pipeline journal: %w", err)
	}
	logger.Printf("pipeline journal: %s", journal.FilePath())

	// Step 4: Initialize the stream hub
	hub := telemetry.NewHub(&cfg.Stream, logging.NewLogger(logWriter, "hub"))
	logger.Printf("stream hub initialized")

	// Step 5: Start the cloud telemetry fetcher
	cloudClient := cloud.NewClient(&cfg.Cloud)
	poller := fetcher.New(cloudClient, telemetryStore, &cfg.Cloud, logging.NewLogger(logWriter, "fetcher"))
	poller.SetJournal(journal)
	poller.Start()

	// Step 6: Start the change-tail emitter
	tail := emitter.New(telemetryStore, hub, &cfg.Emitter, logging.NewLogger(logWriter, "emitter"))
	tail.SetJournal(journal)
	tail.Start()

	// Step 7: Start the HTTP server
	server := api.NewServer(hub, telemetryStore, cfg, logging.NewLogger(logWriter, "api"))

	serverErr := make(chan error, 1)
	go func() {
		if err := server.Start(cfg.Server.Addr); err != nil {
			serverErr <- fmt.Errorf("HTTP server failed: %w", err)
		}
	}()

	logger.Printf("HTTP server listening on %s", cfg.Server.Addr)
	logger.Printf("snapshot endpoint: http://localhost%s/api/v1/telemetry/snapshot", cfg.Server.Addr)
	logger.Printf("stream endpoint:   http://localhost%s/api/v1/telemetry/stream", cfg.Server.Addr)

	// Wait for shutdown signal or server error
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Printf("received signal %v, initiating graceful shutdown", sig)
	case err := <-serverErr:
		logger.Printf("server error: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	poller.Stop()
	logger.Printf("fetcher stopped")

	tail.Stop()
	logger.Printf("emitter stopped")

	hub.Stop()
	logger.Printf("stream hub stopped")

	if err := journal.Close(); err != nil {
		logger.Printf("error closing pipeline journal: %v", err)
	}

	if err := server.Stop(ctx); err != nil {
		logger.Printf("error stopping HTTP server: %v", err)
	} else {
		logger.Printf("HTTP server stopped gracefully")
	}

	logger.Printf("shutdown complete")
	return nil
}
