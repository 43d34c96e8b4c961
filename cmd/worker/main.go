package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"estate_backoffice/internal/config"
	"estate_backoffice/internal/metrics"
	"estate_backoffice/internal/services"
	"estate_backoffice/internal/tasks"
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

	db, err := services.InitDB(cfg.DatabaseURL, log, cfg.IsProduction())
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}

	registry := tasks.NewRegistry()
	tasks.DefineTasks(registry, tasks.Deps{
		Log:      log,
		Email:    services.NewEmailService(cfg.SMTP),
		Whatsapp: services.NewWahaService(cfg.Waha),
	})
	log.Info("tasks registered", zap.Strings("tasks", registry.Names()))

	// Create context that cancels on interrupt
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	runner := tasks.NewRunner(db, registry, log, metrics.New(reg))

	// An empty WORKER_METRICS_ADDR disables the scrape endpoint
	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		srv := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics endpoint stopped", zap.Error(err))
			}
		}()
		defer func() { _ = srv.Close() }()
	}

	log.Info("worker started", zap.Duration("interval", cfg.WorkerInterval))
	runner.Start(ctx, cfg.WorkerInterval)
	log.Info("worker stopped")
}
