// Package main is the entrypoint for the licensegate API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/licensegate/licensegate/internal/audit"
	"github.com/licensegate/licensegate/internal/cache"
	"github.com/licensegate/licensegate/internal/config"
	"github.com/licensegate/licensegate/internal/handler"
	"github.com/licensegate/licensegate/internal/metrics"
	"github.com/licensegate/licensegate/internal/middleware"
	"github.com/licensegate/licensegate/internal/model"
	"github.com/licensegate/licensegate/internal/repository"
	"github.com/licensegate/licensegate/internal/server"
	"github.com/licensegate/licensegate/internal/service"
)

// licenseStore is what the API needs from either store driver.
type licenseStore interface {
	service.LicenseStore
	handler.HealthChecker
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	srv := server.New(nil, server.Config{
		Port:            cfg.AppPort,
		ReadTimeout:     cfg.ReadTimeout,
		WriteTimeout:    cfg.WriteTimeout,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, logger)

	store, err := openStore(ctx, cfg, logger, srv)
	if err != nil {
		logger.Error("failed to open license store",
			slog.String("driver", cfg.StoreDriver),
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}

	checks := map[string]handler.HealthChecker{cfg.StoreDriver: store}

	var (
		cacheClient *cache.Cache
		locker      service.Locker
		limiter     middleware.IPRateLimiter
	)
	if cfg.NeedsRedis() {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
		if err != nil {
			logger.Error("failed to connect to Redis",
				slog.String("error", sanitizeError(err, cfg.RedisURL)),
				slog.String("redis_url", redactURL(cfg.RedisURL)),
			)
			os.Exit(1)
		}
		srv.OnShutdown("redis", func(context.Context) error { return cacheClient.Close() })
		checks["redis"] = cacheClient
		logger.Info("connected to Redis")

		if cfg.LicenseLockEnabled {
			locker = cache.NewLicenseLocker(cacheClient, cfg.LicenseLockTTL)
		}
		if cfg.RateLimitEnabled {
			limiter = cacheClient
		}
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	recorder, err := metrics.NewPrometheus(registry)
	if err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	activationService := service.NewActivationService(store, locker, recorder, logger, service.ActivationOptions{
		StoreTimeout:       cfg.StoreTimeout,
		MaxRetries:         cfg.ActivationMaxRetries,
		StrictLookupErrors: cfg.StrictLookupErrors,
	})

	if cfg.AuditEnabled {
		if err := startAudit(ctx, cfg, logger, srv, store, cacheClient, recorder, activationService); err != nil {
			logger.Error("failed to start audit pipeline", "error", err)
			os.Exit(1)
		}
	}

	r := setupRouter(routerDeps{
		cfg:        cfg,
		logger:     logger,
		handler:    handler.New(),
		health:     handler.NewHealthHandler(checks),
		activation: handler.NewActivationHandler(activationService, logger),
		metrics:    handler.NewMetricsHandler(registry),
		limiter:    limiter,
	})
	srv.SetHandler(r)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"env", cfg.AppEnv,
		"store", cfg.StoreDriver,
		"license_lock", locker != nil,
		"rate_limit", limiter != nil,
		"audit", cfg.AuditEnabled,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// openStore connects the configured store driver and registers its shutdown hook.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger, srv *server.Server) (licenseStore, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		store := repository.NewMemoryStore()
		seeds, err := cfg.GetDevLicenses()
		if err != nil {
			return nil, err
		}
		if err := seedMemoryStore(ctx, store, seeds); err != nil {
			return nil, err
		}
		logger.Warn("using in-memory license store; activations are lost on restart",
			"seeded_licenses", len(seeds),
		)
		return store, nil

	case config.StoreDriverPostgres:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		repo, err := repository.New(connectCtx, cfg.DatabaseURL, repository.PoolConfig{
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		srv.OnShutdown("postgres", func(context.Context) error {
			repo.Close()
			return nil
		})
		logger.Info("connected to database")
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// startAudit publishes activation events to Redis and runs the worker that
// persists them. Hooks run in reverse, so the publisher drains before the worker.
func startAudit(ctx context.Context, cfg *config.Config, logger *slog.Logger, srv *server.Server,
	store licenseStore, cacheClient *cache.Cache, recorder metrics.Recorder, svc *service.ActivationService) error {
	repo, ok := store.(*repository.Repository)
	if !ok {
		return fmt.Errorf("audit needs the %s store, have %T", config.StoreDriverPostgres, store)
	}
	if cacheClient == nil {
		return errors.New("audit needs Redis")
	}

	worker := audit.NewWorker(cacheClient.Client(), repo, logger, audit.NewConsumerID(), recorder)
	worker.SetBatchSize(cfg.AuditBatchSize)
	go func() {
		if err := worker.Run(ctx); err != nil {
			logger.Error("audit worker stopped", "error", err)
		}
	}()
	srv.OnShutdown("audit-worker", worker.Shutdown)

	publisher := audit.NewPublisher(cacheClient.Client(), logger, recorder)
	svc.SetEventSink(publisher)
	srv.OnShutdown("audit-publisher", publisher.Shutdown)

	logger.Info("activation audit enabled", "batch_size", cfg.AuditBatchSize)
	return nil
}

func seedMemoryStore(ctx context.Context, store *repository.MemoryStore, seeds map[string]int) error {
	for key, maxDevices := range seeds {
		if err := store.CreateLicense(ctx, &model.License{Key: key, MaxDevices: maxDevices}); err != nil {
			return fmt.Errorf("seed license: %w", err)
		}
	}
	return nil
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	var h slog.Handler
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h).With("service", "licensegate")
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type routerDeps struct {
	cfg        *config.Config
	logger     *slog.Logger
	handler    *handler.Handler
	health     *handler.HealthHandler
	activation *handler.ActivationHandler
	metrics    *handler.MetricsHandler
	limiter    middleware.IPRateLimiter
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(d routerDeps) *chi.Mux {
	r := chi.NewRouter()

	corsCfg := middleware.DefaultCORSConfig()
	if origins := d.cfg.GetCORSAllowedOrigins(); len(origins) > 0 {
		corsCfg.AllowedOrigins = origins
	}

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(d.logger))
	r.Use(middleware.Recoverer(d.logger, d.cfg.IsDevelopment()))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment: d.cfg.IsDevelopment(),
	}))
	r.Use(middleware.CORS(corsCfg))

	r.Get("/healthz", d.health.Healthz)
	r.Get("/readyz", d.health.Readyz)
	r.Get("/metrics", d.metrics.Metrics)
	r.Get("/", d.handler.Hello)

	activate := r.With(
		middleware.MaxBodySize(d.cfg.MaxRequestBodySize),
		middleware.RateLimitIP(middleware.RateLimitConfig{
			Logger:  d.logger,
			Limiter: d.limiter,
			Enabled: d.cfg.RateLimitEnabled,
			RPS:     d.cfg.RateLimitRPS,
			Burst:   d.cfg.RateLimitBurst,
		}),
	)
	activate.Post("/api/v1/activate", d.activation.Activate)
	// Unversioned path for older clients.
	activate.Post("/activate", d.activation.Activate)

	r.NotFound(d.handler.NotFound)
	r.MethodNotAllowed(d.handler.MethodNotAllowed)

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
