package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"estate_backoffice/internal/config"
	"estate_backoffice/internal/handlers"
	"estate_backoffice/internal/metrics"
	"estate_backoffice/internal/middleware"
	"estate_backoffice/internal/reconcile"
	"estate_backoffice/internal/services"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	log, err := services.NewLogger(cfg.IsProduction())
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if err := cfg.RequireDatabase(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Auth stays disabled (503) until valid credentials are provided
	var (
		verifier middleware.SessionVerifier
		issuer   handlers.SessionIssuer
	)
	authClient, err := services.InitFirebase(ctx, cfg.FirebaseCredentialsPath)
	if err != nil {
		log.Warn("firebase initialization failed, auth endpoints disabled", zap.Error(err))
	} else {
		verifier, issuer = authClient, authClient
	}

	db, err := services.InitDB(cfg.DatabaseURL, log, cfg.IsProduction())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := services.AutoMigrate(db, log); err != nil {
		log.Fatal("failed to run database migrations", zap.Error(err))
	}

	var (
		cache       *services.RedisCache
		invalidator services.TenantCacheInvalidator
		locker      services.Locker = services.NewLocalLocker()
	)
	if cfg.RedisURL != "" {
		cache, err = services.NewRedisCache(cfg.RedisURL, log)
		if err != nil {
			log.Fatal("failed to connect to redis", zap.Error(err))
		}
		defer func() { _ = cache.Close() }()
		invalidator = cache
		locker = services.NewRedisLocker(cache, log)
	} else {
		log.Warn("REDIS_URL not set, using in-process locks and no report cache")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	tenants := services.NewTenantService(db, log)
	engine := reconcile.NewEngine(db, log,
		reconcile.WithLocker(locker),
		reconcile.WithCache(invalidator),
		reconcile.WithMetrics(m),
		reconcile.WithIdempotencyWindow(cfg.IdempotencyWindow),
		reconcile.WithLockTTL(cfg.LockTTL),
		reconcile.WithNotifyMaxAttempt(cfg.NotificationMaxAttempt),
	)

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = middleware.NewErrorHandler(log)
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))
	e.Use(echomw.Recover())

	e.GET("/healthz", func(c echo.Context) error {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request().Context())
		}
		if err != nil {
			return echo.NewHTTPError(http.StatusServiceUnavailable, "database unreachable")
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	handlers.RegisterRoutes(e, handlers.Handlers{
		Auth:      handlers.NewAuthHandler(issuer, cfg.IsProduction()),
		Inventory: handlers.NewInventoryHandler(services.NewInventoryService(db, log, invalidator)),
		Sales:     handlers.NewSalesHandler(services.NewSalesService(db, log, invalidator, m, cfg.NotificationMaxAttempt)),
		Reconcile: handlers.NewReconcileHandler(engine),
		Expenses: handlers.NewExpenseHandler(
			services.NewExpenseService(db, invalidator),
			services.NewReportService(db, cache, cfg.ReportCacheTTL),
		),
		Users:   handlers.NewUserHandler(tenants),
		Console: handlers.NewConsoleHandler(tenants),
	}, middleware.RequireAuth(verifier, tenants, log))

	go func() {
		log.Info("server starting", zap.String("port", cfg.Port))
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server stopped", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", zap.Error(err))
	}
}
