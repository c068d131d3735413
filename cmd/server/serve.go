package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/pegut0/ClassificadorSomIA/internal/metrics"
	"github.com/pegut0/ClassificadorSomIA/internal/pipeline"
	"github.com/pegut0/ClassificadorSomIA/internal/server"
)

func newServeCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP prediction service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), *configFlag)
		},
	}
}

func runServe(parent context.Context, configPath string) error {
	cfg, path, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Logging)

	logger.Info("Service starting",
		slog.String("service", serviceName),
		slog.String("version", serviceVersion),
		slog.String("config_path", path),
	)

	logger.Info("Configuration loaded",
		slog.Int("http_port", cfg.HTTP.Port),
		slog.Int64("max_body_bytes", cfg.HTTP.MaxBodyBytes),
		slog.Int("sample_rate", cfg.Audio.SampleRate),
		slog.Float64("duration", cfg.Audio.Duration),
		slog.Float64("silence_threshold", cfg.Gates.Silence),
		slog.Float64("stationarity_threshold", cfg.Gates.Stationarity),
		slog.Float64("clarity_threshold", cfg.Gates.Clarity),
		slog.String("model_name", cfg.Model.Name),
		slog.Int("classes", len(cfg.Model.Classes)),
		slog.String("log_level", cfg.Logging.Level),
	)

	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	appMetrics := metrics.NewMetrics(prometheus.DefaultRegisterer)
	logger.Info("Prometheus metrics initialized")

	engine, model, err := buildEngine(cfg, logger, appMetrics)
	if err != nil {
		logger.Error("Failed to create pipeline", slog.String("error", err.Error()))
		return err
	}
	defer model.Close()

	verifyCtx, verifyCancel := context.WithTimeout(ctx, cfg.Model.GetTimeoutDuration())
	err = engine.Verify(verifyCtx)
	verifyCancel()
	if err != nil {
		if cfg.Model.FailFast {
			return fmt.Errorf("model check failed: %w", err)
		}
		logger.Warn("Serving without a verified model, predictions will fail until it recovers")
	}

	if interval := cfg.Model.GetVerifyIntervalDuration(); interval > 0 {
		go reverify(ctx, engine, interval, cfg.Model.GetTimeoutDuration(), logger)
	}

	httpServer := server.NewHTTPServer(cfg.HTTP, logger, cfg, engine, server.Options{
		Model:   model,
		Metrics: appMetrics,
	})
	if err := httpServer.Start(); err != nil {
		logger.Error("Failed to start HTTP server", slog.String("error", err.Error()))
		return err
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	logger.Info("Service started successfully, waiting for signals...",
		slog.String("http_address", fmt.Sprintf("%s:%d", cfg.HTTP.Address, cfg.HTTP.Port)),
	)

	select {
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
	case <-ctx.Done():
		logger.Info("Context cancelled, shutting down")
	}

	logger.Info("Starting graceful shutdown...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := httpServer.Stop(shutdownCtx); err != nil {
		logger.Error("Error stopping HTTP server", slog.String("error", err.Error()))
	}

	stats := engine.GetStats()
	logger.Info("Final pipeline statistics",
		slog.Uint64("requests", stats.Requests),
		slog.Uint64("recognized", stats.Recognized),
		slog.Uint64("unrecognized", stats.Unrecognized),
		slog.Uint64("failed", stats.Failed),
	)

	logger.Info("Service stopped")
	return nil
}

// reverify repeats the model check every interval so a model that was down
// at startup, or went down later, is picked up without a restart.
func reverify(ctx context.Context, engine *pipeline.Engine, interval, timeout time.Duration, logger *slog.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			checkCtx, cancel := context.WithTimeout(ctx, timeout)
			wasReady := engine.Ready() == nil
			err := engine.Verify(checkCtx)
			cancel()
			if err == nil && !wasReady {
				logger.Info("Model recovered")
			}
		}
	}
}
