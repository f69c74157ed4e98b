package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/oshokin/update-gateway/internal/config"
	"github.com/oshokin/update-gateway/internal/github"
	"github.com/oshokin/update-gateway/internal/logger"
)

// Options controls the update-gateway process.
type Options struct {
	// ListenAddress provides an optional listen address override
	// (e.g. ":8080", "0.0.0.0:4000"). Defaults to the configured port.
	ListenAddress string
	// Delegate serves requests the gateway does not claim. Optional.
	Delegate http.Handler
}

const (
	// shutdownTimeout bounds graceful shutdown on termination.
	shutdownTimeout = 10 * time.Second

	// readHeaderTimeout protects the listener from slow-header clients.
	readHeaderTimeout = 10 * time.Second
)

// Run starts the HTTP server and blocks until the context is canceled or
// the server stops. Configuration is resolved from the environment first.
func Run(ctx context.Context, opts *Options) error {
	// Set context with logger name for tracking.
	ctx = logger.WithName(ctx, "update-gateway")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if level, ok := logger.ParseLogLevel(cfg.LogLevel); ok {
		logger.SetLevel(level)
	}

	// Startup summary mirrors what operators need to diagnose a
	// misconfigured deployment without reading the environment themselves.
	logger.InfoKV(ctx, "Resolved configuration",
		"account", cfg.Account,
		"repository", cfg.Repository,
		"token_loaded", cfg.Token != "",
		"base_url", cfg.BaseURL,
		"proxy_enabled", !cfg.NoProxy,
		"prereleases", cfg.Prerelease)

	if !cfg.HasRepo() {
		logger.Warn(ctx, "Repository identity is missing, serving the configuration diagnostic only")
	}

	client := github.NewClient(cfg.Account, cfg.Repository,
		github.WithToken(cfg.Token),
		github.WithTimeout(cfg.Timeout))

	svc := NewService(cfg, client, opts.Delegate)

	listenAddress := opts.ListenAddress
	if listenAddress == "" {
		listenAddress = fmt.Sprintf(":%d", cfg.Port)
	}

	//nolint:exhaustruct // Zero values are fine for the remaining fields.
	server := &http.Server{
		Addr:              listenAddress,
		Handler:           svc,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	// Done channel is closed after Shutdown finishes to ensure we block
	// until in-flight requests drain before returning.
	done := make(chan struct{})

	go func() {
		<-ctx.Done()
		logger.Info(ctx, "Shutting down HTTP server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.ErrorKV(ctx, "HTTP server shutdown failed", "error", err)
		}

		close(done)
	}()

	logger.InfoKV(ctx, "Update gateway listening",
		"listen_address", listenAddress, "repository", cfg.Slug())

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve HTTP: %w", err)
	}

	<-done
	logger.Info(ctx, "HTTP server stopped")

	return nil
}
