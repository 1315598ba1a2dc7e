package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/api"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/config"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/core"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/driver"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/factory"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/logger"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/session"
	"github.com/hasirciogluhq/xlogistic/cmd/logistic/internal/transform"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration from environment
	cfg, err := config.LoadFromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger.Configure(cfg.Debug, cfg.LogFormat)
	logger.Info("Starting xlogistic...",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
		"driver_clients", cfg.DriverClients,
		"discovery", cfg.DiscoveryMode)

	// Bind the listening socket; the server cannot run without it
	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Fatal("Failed to bind", "addr", cfg.ListenAddr, "error", err)
	}
	tcpListener, ok := ln.(*net.TCPListener)
	if !ok {
		logger.Fatal("Listener does not support accept deadlines", "addr", cfg.ListenAddr)
	}
	logger.Info("Server listening", "addr", tcpListener.Addr())

	ids := core.NewClientIDs()
	server := &core.Server{
		Listener:          tcpListener,
		ConnectionHandler: session.NewHandler(transform.Logistic),
		Running:           core.NewRunningFlag(),
		IDs:               ids,
		PollInterval:      cfg.PollInterval,
	}

	var healthServer *api.HealthServer
	if cfg.HealthServerEnabled {
		healthServer = api.NewHealthServer(":"+cfg.HealthServerPort, server)
		healthServer.Start()
	}

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- server.Serve()
	}()
	if healthServer != nil {
		healthServer.SetReady(true)
	}

	exitCode := 0
	if cfg.DriverClients == 0 {
		logger.Info("No driver clients configured, serving until terminated")
		select {
		case <-ctx.Done():
		case err := <-serveErr:
			// Serve already stopped on its own; hand the result back for the join below
			serveErr <- err
		}
	} else if !runDrivers(ctx, cfg, ids) {
		exitCode = 1
	}

	// Drivers are done: stop accepting and wait for the listener loop to notice
	server.Running.Stop()
	if healthServer != nil {
		healthServer.SetReady(false)
	}
	if err := <-serveErr; err != nil {
		logger.Error("Listener loop failed", "error", err)
		exitCode = 1
	}
	server.Wait()

	if healthServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Warn("Failed to stop health server", "error", err)
		}
		cancel()
	}

	stats := server.Stats()
	logger.Info("Shutdown complete", "accepted", stats.Accepted)
	stop()
	os.Exit(exitCode)
}

// runDrivers runs the configured driver fleet to completion and reports
// whether every client finished its exchanges.
func runDrivers(ctx context.Context, cfg *config.Config, ids *core.ClientIDs) bool {
	resolver, err := factory.NewResolverFactory(cfg).Create(ctx)
	if err != nil {
		logger.Error("Failed to create backend resolver", "error", err)
		return false
	}

	fleet := &driver.Fleet{
		Resolver: resolver,
		Metadata: cfg.TargetMetadata(),
		IDs:      ids,
		Clients:  cfg.DriverClients,
		Messages: cfg.DriverMessages,
		Initial:  cfg.DriverInitial,
		Step:     cfg.DriverStep,
		Delay:    cfg.DriverDelay,
	}

	ok := true
	for _, res := range fleet.RunAll(ctx) {
		if res.Err != nil {
			ok = false
			continue
		}
		logger.Info("Client finished", "client_id", res.ID, "initial", res.Initial, "messages", len(res.Trajectory))
	}
	return ok
}
