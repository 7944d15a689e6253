// Package main is the entrypoint for the four scheduled data-plane jobs:
// the aggregator, the retention job, and the billing reporter and
// reconciler (spec.md §4.7-4.9). Each runs on its own ticker; there is no
// cron-style scheduling library in this stack, so a fixed-interval ticker
// loop — the same shape the teacher uses for its worker run-loops — is the
// idiomatic fit here too.
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

	"github.com/clickplane/core/internal/aggregator"
	"github.com/clickplane/core/internal/billing"
	"github.com/clickplane/core/internal/cache"
	"github.com/clickplane/core/internal/config"
	"github.com/clickplane/core/internal/counter"
	"github.com/clickplane/core/internal/metrics"
	"github.com/clickplane/core/internal/repository"
	"github.com/clickplane/core/internal/retention"
)

var rootCmd = &cobra.Command{
	Use:   "scheduler",
	Short: "Runs the aggregator, retention, and billing jobs",
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run all scheduled jobs on their configured intervals until stopped",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runLoop()
	},
}

var runOnceCmd = &cobra.Command{
	Use:   "run-once [aggregator|retention|billing-report|billing-reconcile]",
	Short: "Run a single job pass once and exit",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(args[0])
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(runOnceCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

type jobs struct {
	cfg         *config.Config
	logger      *slog.Logger
	aggregator  *aggregator.Aggregator
	retention   *retention.Job
	reporter    *billing.Reporter
	reconciler  *billing.Reconciler
	closeRepo   func()
	closeCache  func()
}

func buildJobs(ctx context.Context) (*jobs, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := newLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		repo.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	var recorder metrics.Recorder = metrics.NewNoop()
	if cfg.MetricsEnabled {
		recorder = metrics.NewPrometheus(prometheus.DefaultRegisterer)
	}

	ctr := counter.New(cacheClient.Client())

	if cfg.StripeAPIKey == "" {
		logger.Warn("STRIPE_API_KEY not set; billing reporter will fail to create invoice items for any workspace with overage")
	}
	invoices := billing.NewStripeInvoicer(cfg.StripeAPIKey)

	reporter := billing.NewReporter(
		repo, ctr, invoices,
		cfg.ProIncludedClicks, cfg.ProOverageUnitClicks, cfg.ProOverageUnitPrice,
		logger, recorder,
	)
	reconciler := billing.NewReconciler(repo, ctr, cfg.ReconciliationToleranceClicks, logger, recorder)

	agg := aggregator.New(repo, logger, recorder)
	agg.SetBatchSize(cfg.AggregationBatchSize)

	ret := retention.New(repo, logger, recorder)
	ret.SetBatchSize(cfg.RetentionBatchSize)
	ret.SetHorizon(time.Duration(cfg.RetentionDaysFree) * 24 * time.Hour)

	return &jobs{
		cfg:        cfg,
		logger:     logger,
		aggregator: agg,
		retention:  ret,
		reporter:   reporter,
		reconciler: reconciler,
		closeRepo:  repo.Close,
		closeCache: func() { cacheClient.Close() },
	}, nil
}

func (j *jobs) close() {
	j.closeRepo()
	j.closeCache()
}

func runOnce(name string) error {
	ctx := context.Background()
	j, err := buildJobs(ctx)
	if err != nil {
		return err
	}
	defer j.close()

	switch name {
	case "aggregator":
		return j.aggregator.RunOnce(ctx)
	case "retention":
		return j.retention.RunOnce(ctx)
	case "billing-report":
		return j.reporter.RunOnce(ctx)
	case "billing-reconcile":
		return j.reconciler.RunOnce(ctx)
	default:
		return fmt.Errorf("unknown job %q: want one of aggregator, retention, billing-report, billing-reconcile", name)
	}
}

func runLoop() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	j, err := buildJobs(ctx)
	if err != nil {
		return err
	}
	defer j.close()

	j.logger.Info("scheduler starting",
		"aggregation_interval", j.cfg.AggregationPollInterval,
		"retention_interval", j.cfg.RetentionPollInterval,
		"billing_interval", j.cfg.BillingPollInterval,
		"reconciliation_interval", j.cfg.ReconciliationPollInterval,
	)

	runTicker(ctx, j.logger, "aggregator", j.cfg.AggregationPollInterval, j.aggregator.RunOnce)
	runTicker(ctx, j.logger, "retention", j.cfg.RetentionPollInterval, j.retention.RunOnce)
	runTicker(ctx, j.logger, "billing-report", j.cfg.BillingPollInterval, j.reporter.RunOnce)
	runTicker(ctx, j.logger, "billing-reconcile", j.cfg.ReconciliationPollInterval, j.reconciler.RunOnce)

	<-ctx.Done()
	j.logger.Info("scheduler stopping")
	return nil
}

// runTicker starts a goroutine that runs fn once immediately, then again
// every interval, until ctx is cancelled. A failing pass is logged and
// does not stop the ticker — the next tick tries again.
func runTicker(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, fn func(context.Context) error) {
	go func() {
		runAndLog(ctx, logger, name, fn)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				runAndLog(ctx, logger, name, fn)
			}
		}
	}()
}

func runAndLog(ctx context.Context, logger *slog.Logger, name string, fn func(context.Context) error) {
	start := time.Now()
	if err := fn(ctx); err != nil {
		logger.Error("job run failed", "job", name, "error", err, "duration", time.Since(start))
		return
	}
	logger.Info("job run completed", "job", name, "duration", time.Since(start))
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
