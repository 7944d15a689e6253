// Package main is the entrypoint for the clickplane data-plane API server:
// the redirect handler and the authenticated analytics read API.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clickplane/core/internal/cache"
	"github.com/clickplane/core/internal/catalog"
	"github.com/clickplane/core/internal/clicklog"
	"github.com/clickplane/core/internal/config"
	"github.com/clickplane/core/internal/counter"
	"github.com/clickplane/core/internal/detached"
	"github.com/clickplane/core/internal/handler"
	"github.com/clickplane/core/internal/metrics"
	"github.com/clickplane/core/internal/middleware"
	"github.com/clickplane/core/internal/repository"
	"github.com/clickplane/core/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	recorder := newRecorder(cfg)

	// Read path: catalog -> resolver, workspace plan cache, workspace
	// counter, and the detached post-response pipeline.
	store := catalog.New(repo.Pool())
	plans := catalog.NewPlanCache(store, cfg.PlanCacheTTL, logger)
	if cfg.PlanOverridesFile != "" {
		watchCtx, cancelWatch := context.WithCancel(ctx)
		if err := plans.WatchOverridesFile(watchCtx, cfg.PlanOverridesFile); err != nil {
			logger.Warn("plan overrides watch failed to start", "path", cfg.PlanOverridesFile, "error", err)
		}
		defer cancelWatch()
	}

	ctr := counter.New(cacheClient.Client())
	publisher := clicklog.NewPublisher(cacheClient.Client(), cfg.ClickQueueStream, logger, recorder)

	pool := detached.New(cfg.DetachedWorkers, cfg.DetachedQueueSize, cfg.DetachedTaskDeadline, logger, recorder)
	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()
	pool.Run(poolCtx, cfg.DetachedWorkers)

	redirectHandler := handler.NewRedirectHandler(
		store, plans, ctr, publisher, pool,
		handler.RedirectConfig{FreeMonthlyCap: cfg.FreeMonthlyCap},
		logger, recorder,
	)

	analyticsHandler := handler.NewAnalyticsHandler(repo, plans, logger)

	h := handler.New()
	healthHandler := handler.NewHealthHandler(repo, cacheClient)

	r := setupRouter(h, healthHandler, redirectHandler, analyticsHandler, repo, cacheClient, cfg, logger)

	srv := server.New(r, cfg.AppPort, cfg.ReadTimeout, cfg.WriteTimeout, cfg.ShutdownTimeout, logger)
	srv.OnShutdown("detached-pool", func(ctx context.Context) error {
		cancelPool()
		return pool.Shutdown(ctx)
	})

	logger.Info("starting server",
		"port", cfg.AppPort,
		"base_url", cfg.BaseURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// newRecorder builds the metrics.Recorder the process exports, falling
// back to a no-op when metrics are disabled.
func newRecorder(cfg *config.Config) metrics.Recorder {
	if !cfg.MetricsEnabled {
		return metrics.NewNoop()
	}
	return metrics.NewPrometheus(prometheus.DefaultRegisterer)
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	level := parseLogLevel(cfg.LogLevel)

	opts := &slog.HandlerOptions{
		Level: level,
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
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

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	h *handler.Handler,
	healthHandler *handler.HealthHandler,
	redirectHandler *handler.RedirectHandler,
	analyticsHandler *handler.AnalyticsHandler,
	repo *repository.Repository,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	securityCfg := middleware.DefaultSecurityConfig()
	securityCfg.IsDevelopment = cfg.IsDevelopment()
	securityCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.Security(securityCfg))
	r.Use(middleware.MaxBodySize(cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)
	if cfg.MetricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	r.Get("/", h.Hello)

	authCfg := middleware.AuthConfig{
		Logger:     logger,
		Repository: repo,
		Cache:      cacheClient,
	}

	rateLimitCfg := middleware.RateLimitConfig{
		Logger:          logger,
		Cache:           cacheClient,
		APIEnabled:      cfg.RateLimitAPIEnabled,
		RedirectEnabled: cfg.RateLimitRedirectEnabled,
		RedirectRPS:     cfg.RateLimitRedirectRPS,
		RedirectBurst:   cfg.RateLimitRedirectBurst,
	}

	// Authenticated analytics read API (spec.md §4.10).
	r.Route("/api/v1/analytics", func(r chi.Router) {
		r.Use(middleware.Auth(authCfg))
		r.Use(middleware.RateLimitAPI(rateLimitCfg))
		r.Use(middleware.RequireRead())

		r.Get("/overview", analyticsHandler.Overview)
		r.Get("/links", analyticsHandler.Links)
		r.Get("/referrers", analyticsHandler.Referrers)
		r.Get("/countries", analyticsHandler.Countries)
		r.Get("/devices", analyticsHandler.Devices)
	})

	// Redirect handler, IP rate-limited, unauthenticated (spec.md §4.2).
	r.With(middleware.RateLimitIP(rateLimitCfg)).Get("/{slug}", redirectHandler.Redirect)

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
