// Package main is the entrypoint for the Click Log Writer: the queue
// consumer that drains the raw click stream into Postgres (spec.md §4.6).
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/clickplane/core/internal/cache"
	"github.com/clickplane/core/internal/clicklog"
	"github.com/clickplane/core/internal/config"
	"github.com/clickplane/core/internal/metrics"
	"github.com/clickplane/core/internal/repository"
)

var rootCmd = &cobra.Command{
	Use:   "clicklog-worker",
	Short: "Drains the raw click queue into the raw click log",
	RunE: func(cmd *cobra.Command, args []string) error {
		return run()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer repo.Close()

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect to redis: %w", err)
	}
	defer cacheClient.Close()

	var recorder metrics.Recorder = metrics.NewNoop()
	if cfg.MetricsEnabled {
		recorder = metrics.NewPrometheus(prometheus.DefaultRegisterer)
	}

	consumerID, err := os.Hostname()
	if err != nil || consumerID == "" {
		consumerID = "clicklog-worker"
	}

	worker := clicklog.NewWorker(
		cacheClient.Client(), repo,
		cfg.ClickQueueStream, cfg.ClickQueueConsumerGroup,
		logger, consumerID, recorder,
	)
	worker.SetBatchSize(int(cfg.ClickQueueBatchSize))

	logger.Info("click log worker starting", "consumer_id", consumerID, "stream", cfg.ClickQueueStream)

	runErr := make(chan error, 1)
	go func() {
		runErr <- worker.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received, draining worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := worker.Shutdown(shutdownCtx); err != nil {
			logger.Error("worker shutdown error", "error", err)
		}
		return nil
	case err := <-runErr:
		return err
	}
}

func newLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(h)
	slog.SetDefault(logger)
	return logger
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
