package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpapi "github.com/fyrsmithlabs/ragstore/internal/http"
	"github.com/fyrsmithlabs/ragstore/pkg/bootstrap"
	"github.com/fyrsmithlabs/ragstore/pkg/config"
)

func newServeCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the ragstore HTTP API.

Endpoints:
  GET  /health
  GET  /metrics
  POST /api/v1/documents
  POST /api/v1/search

Examples:
  # Serve the store from ~/.config/ragstore/config.yaml
  ragstore serve

  # Override the provider through the environment
  RAGSTORE_VECTORSTORE_PROVIDER=chromem ragstore serve`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts.configPath, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address host:port (overrides server.host and server.port)")
	return cmd
}

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.LoadWithFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}

// runServe blocks until ctx is cancelled or the server fails.
func runServe(ctx context.Context, configPath, addr string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if addr != "" {
		if err := applyAddr(&cfg.Server, addr); err != nil {
			return err
		}
	}

	rt, err := bootstrap.Open(ctx, bootstrap.Options{Config: cfg})
	if err != nil {
		return err
	}
	logger := rt.Logger().Underlying()

	server, err := httpapi.NewServer(rt.Store(), logger.Named("http"), httpapi.FromSection(cfg.Server),
		httpapi.WithMetricsHandler(rt.MetricsHandler()))
	if err != nil {
		return errors.Join(err, rt.Close(context.Background()))
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	var serveErr error
	select {
	case serveErr = <-errCh:
		if serveErr != nil {
			logger.Error("http server failed", zap.Error(serveErr))
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration())
	defer cancel()

	return errors.Join(serveErr, server.Shutdown(shutdownCtx), rt.Close(shutdownCtx))
}

// applyAddr overrides the configured listen address.
func applyAddr(section *config.ServerConfig, addr string) error {
	host, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("invalid --addr %q: %w", addr, err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid --addr port %q: %w", portStr, err)
	}
	section.Host = host
	section.Port = port
	return section.Validate()
}
