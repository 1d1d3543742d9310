package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jobrunner/modisfetch/internal/app"
	"github.com/jobrunner/modisfetch/internal/ports/input"
)

var serveCmd = &cobra.Command{
	Use:   "serve [DEST]",
	Short: "Run scheduled downloads with a status API",
	Long: `Run a download session every --interval and serve the status API,
health checks and Prometheus metrics. Deleting a granule from DEST
schedules a session that downloads it again.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runServe,
}

var serveBindings = []flagBinding{
	{"host", "server.host"},
	{"port", "server.port"},
	{"interval", "sync.interval"},
	{"watch", "sync.watch"},
	{"tls", "tls.enabled"},
	{"tls-domains", "tls.domains"},
	{"tls-email", "tls.email"},
	{"cors", "server.cors.allowed_origins"},
}

func init() {
	addSourceFlags(serveCmd)
	addDownloadFlags(serveCmd)

	// Server flags
	serveCmd.Flags().String("host", "0.0.0.0", "server host")
	serveCmd.Flags().Int("port", 8080, "server port")
	serveCmd.Flags().Duration("interval", 0, "time between sessions (default 6h)")
	serveCmd.Flags().Bool("watch", true, "resync when granule files are deleted")
	serveCmd.Flags().Bool("tls", false, "enable TLS")
	serveCmd.Flags().StringSlice("tls-domains", nil, "TLS domains")
	serveCmd.Flags().String("tls-email", "", "TLS email for Let's Encrypt")
	serveCmd.Flags().StringSlice("cors", nil, "allowed CORS origins (e.g., https://example.com,*.sub.domain.tld)")
}

func runServe(cmd *cobra.Command, args []string) error {
	bindFlags(cmd, sourceBindings)
	bindFlags(cmd, downloadBindings)
	bindFlags(cmd, serveBindings)

	cfg, logger, closeLog, err := loadConfig(args)
	if err != nil {
		return err
	}
	defer closeLog()

	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.ValidateServer(); err != nil {
		return err
	}
	req, err := app.BuildRequest(cfg)
	if err != nil {
		return err
	}

	logger.Info("starting modisfetch server",
		"version", version,
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
		"source", cfg.SourceType(),
		"product", cfg.Source.Product,
		"interval", cfg.Sync.Interval,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Setup signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Initialize application
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing application: %w", err)
	}
	if err := a.InitDownloader(ctx); err != nil {
		_ = a.Close()
		return err
	}
	if err := a.InitServer(func() input.Request { return req }); err != nil {
		_ = a.Close()
		return err
	}

	// Start server in background
	serverErr := make(chan error, 1)
	go func() {
		if err := a.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for shutdown signal or server error
	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig)
	case runErr = <-serverErr:
		logger.Error("server error", "error", runErr)
	case <-ctx.Done():
	}
	cancel()

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := a.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		return err
	}
	if err := a.WriteMetrics(); err != nil {
		logger.Warn("failed to write metrics textfile", "path", cfg.Metrics.Textfile, "error", err)
	}

	logger.Info("server stopped")
	return runErr
}
