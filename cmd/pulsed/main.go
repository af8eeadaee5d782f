// Package main is the entry point for the pulse daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/agentpulse/agentpulse/internal/api"
	"github.com/agentpulse/agentpulse/internal/core/process"
	"github.com/agentpulse/agentpulse/internal/core/reaper"
	"github.com/agentpulse/agentpulse/internal/core/registry"
	"github.com/agentpulse/agentpulse/internal/core/status"
	"github.com/agentpulse/agentpulse/internal/hub"
	"github.com/agentpulse/agentpulse/pkg/types"
)

var (
	configPath  = flag.String("config", "", "Path to config file")
	showVersion = flag.Bool("version", false, "Show version")
)

const version = "0.1.0"

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("pulsed version %s\n", version)
		os.Exit(0)
	}

	config, err := loadConfig(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	if err := run(config); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*types.Config, error) {
	// Try common paths if none specified
	if path == "" {
		candidates := []string{
			"pulse.yaml",
			"pulse.yml",
			".pulse/config.yaml",
		}
		for _, c := range candidates {
			if _, err := os.Stat(c); err == nil {
				path = c
				break
			}
		}
	}

	// Defaults when no file found
	if path == "" {
		return types.DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := types.DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	return config, nil
}

func run(config *types.Config) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	logger.Info("starting pulse daemon", "version", version)

	reg := registry.New()
	broadcastHub := hub.New(reg, logger)
	manager := status.NewManager(reg, broadcastHub, config.DebounceDelay(), logger)

	staleReaper := reaper.New(manager, process.Alive, config.ReapInterval(), config.StaleAfter(), logger)
	staleReaper.Start()

	router := api.NewRouter(manager, broadcastHub, version)

	// Listen before serving so an ephemeral port (port 0) can be
	// reported to whatever started the daemon.
	addr := fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	server := &http.Server{
		Handler: router.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", listener.Addr().String(),
			"ws", fmt.Sprintf("ws://%s/ws", listener.Addr()))
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	logger.Info("shutting down")

	// Pending debounce timers first, then the sweep loop, then the
	// observer connections, then the listener.
	manager.Close()
	staleReaper.Stop()
	broadcastHub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	logger.Info("server stopped")
	return nil
}
