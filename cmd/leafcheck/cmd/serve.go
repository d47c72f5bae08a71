package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MeKo-Tech/leafcheck/internal/server"
	"github.com/spf13/cobra"
)

// serveCmd represents the serve command.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start HTTP server for the diagnosis API",
	Long: `Start an HTTP server that diagnoses uploaded leaf photos.

The server provides the following endpoints:
  POST /analyze        - Diagnose an uploaded photo (multipart field "image")
  GET  /ws/analyze     - Diagnose over WebSocket with live stage updates
  GET  /diseases       - Disease knowledge base
  GET  /diseases/{id}  - One knowledge base entry
  GET  /health         - Health check endpoint
  GET  /metrics        - Prometheus metrics

Examples:
  leafcheck serve
  leafcheck serve --port 8080
  leafcheck serve --host 0.0.0.0 --port 3000 --preload`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := GetConfig()

		host := cfg.Server.Host
		if cmd.Flags().Changed("host") {
			host, _ = cmd.Flags().GetString("host")
		}

		port := cfg.Server.Port
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		corsOrigin := cfg.Server.CORSOrigin
		if cmd.Flags().Changed("cors-origin") {
			corsOrigin, _ = cmd.Flags().GetString("cors-origin")
		}

		maxUploadSize := cfg.Server.MaxUploadMB
		if cmd.Flags().Changed("max-upload-size") {
			maxUploadSize, _ = cmd.Flags().GetInt("max-upload-size")
		}

		timeout := cfg.Server.TimeoutSec
		if cmd.Flags().Changed("timeout") {
			timeout, _ = cmd.Flags().GetInt("timeout")
		}

		shutdownTimeout := cfg.Server.ShutdownTimeout
		if cmd.Flags().Changed("shutdown-timeout") {
			shutdownTimeout, _ = cmd.Flags().GetInt("shutdown-timeout")
		}

		rl := cfg.Server.RateLimit
		if cmd.Flags().Changed("rate-limit-enabled") {
			rl.Enabled, _ = cmd.Flags().GetBool("rate-limit-enabled")
		}
		if cmd.Flags().Changed("requests-per-minute") {
			rl.RequestsPerMinute, _ = cmd.Flags().GetInt("requests-per-minute")
		}
		if cmd.Flags().Changed("requests-per-hour") {
			rl.RequestsPerHour, _ = cmd.Flags().GetInt("requests-per-hour")
		}

		if port < 1 || port > 65535 {
			return fmt.Errorf("invalid port number: %d (must be between 1 and 65535)", port)
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		logger := slog.Default()
		comps, err := buildComponents(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize analysis components: %w", err)
		}
		defer func() { _ = comps.Close() }()

		serverConfig := server.Config{
			Host:        host,
			Port:        port,
			CORSOrigin:  corsOrigin,
			MaxUploadMB: int64(maxUploadSize),
			TimeoutSec:  timeout,
			RateLimit: server.RateLimitConfig{
				Enabled:           rl.Enabled,
				RequestsPerMinute: rl.RequestsPerMinute,
				RequestsPerHour:   rl.RequestsPerHour,
				MaxRequestsPerDay: rl.MaxRequestsPerDay,
				MaxDataPerDay:     int64(rl.MaxDataPerDayMB) * 1024 * 1024,
			},
		}

		srv, err := server.NewServer(serverConfig, comps.deps, comps.interpreter.Catalog(), logger)
		if err != nil {
			return fmt.Errorf("failed to initialize server: %w", err)
		}
		go srv.PruneRateLimits(ctx, time.Hour)

		if preload, _ := cmd.Flags().GetBool("preload"); preload {
			go func() {
				if _, err := comps.loader.EnsureInitialized(ctx); err != nil {
					logger.Warn("Classifier preload failed; offline analysis will retry on demand", "error", err)
				}
			}()
		}

		httpServer := &http.Server{
			Addr:              fmt.Sprintf("%s:%d", host, port),
			Handler:           srv.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       time.Duration(timeout) * time.Second,
		}

		go func() {
			logger.Info("Starting leafcheck server", "host", host, "port", port)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Server error", "error", err)
				cancel()
			}
		}()

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
		defer signal.Stop(sigChan)

		select {
		case sig := <-sigChan:
			logger.Info("Received shutdown signal", "signal", sig.String())
		case <-ctx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Starting graceful shutdown", "timeout", fmt.Sprintf("%ds", shutdownTimeout))
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Duration(shutdownTimeout)*time.Second)
		defer shutdownCancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		cancel()
		if err := comps.Close(); err != nil {
			logger.Error("Classifier cleanup error", "error", err)
		}

		logger.Info("Graceful shutdown completed")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringP("host", "H", "localhost", "server host")
	serveCmd.Flags().IntP("port", "p", 8080, "server port")
	serveCmd.Flags().String("cors-origin", "*", "CORS allowed origins")
	serveCmd.Flags().Int("max-upload-size", 20, "maximum upload size in MB")
	serveCmd.Flags().Int("timeout", 60, "analysis timeout in seconds")
	serveCmd.Flags().Int("shutdown-timeout", 10, "shutdown timeout in seconds")
	serveCmd.Flags().Bool("preload", false, "load the on-device classifier at startup")
	serveCmd.Flags().Bool("rate-limit-enabled", false, "enable per-client rate limiting")
	serveCmd.Flags().Int("requests-per-minute", 30, "maximum requests per minute per client")
	serveCmd.Flags().Int("requests-per-hour", 600, "maximum requests per hour per client")
}
