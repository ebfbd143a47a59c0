package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maintstack/maint-opt/internal/api"
	"github.com/maintstack/maint-opt/internal/bus"
	"github.com/maintstack/maint-opt/internal/config"
	"github.com/maintstack/maint-opt/internal/engine"
	"github.com/maintstack/maint-opt/internal/metrics"
	"github.com/maintstack/maint-opt/internal/repo"
	"github.com/maintstack/maint-opt/internal/scheduler"
	"github.com/maintstack/maint-opt/internal/services"
	"github.com/maintstack/maint-opt/internal/utils"
)

// datastore is the full persistence surface the services need. Both the
// Postgres store and the in-memory store satisfy it.
type datastore interface {
	engine.AnalyzerStore
	engine.OptimizerStore
	services.ApplierStore
	services.AutomationStore
	services.WorkOrderStore
}

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to configuration file")
	flag.Parse()

	cfg, err := config.Load(configPath)
	if err != nil {
		slog.Error("failed to load config", slog.String("path", configPath), slog.Any("error", err))
		os.Exit(1)
	}

	logger := utils.NewLogger(cfg.Logging.Level, cfg.Logging.JSON, "maint-opt")
	logger.Info("starting maint-opt", slog.String("address", cfg.Server.Address))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		logger.Error("failed to register metrics", slog.Any("error", err))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var store datastore
	if cfg.Database.DSN != "" {
		pg, err := repo.NewPostgres(ctx, cfg.Database.DSN, cfg.Database.ConnectTimeout, cfg.Database.MaxConnectWait, logger)
		if err != nil {
			logger.Error("failed to connect to database", slog.Any("error", err))
			os.Exit(1)
		}
		defer pg.Close()
		store = pg
	} else {
		logger.Warn("no database configured, using in-memory store")
		store = repo.NewMemory()
	}

	var publisher bus.Publisher = bus.Noop{}
	if cfg.Bus.Enabled {
		natsPublisher, err := bus.NewNATSPublisher(cfg.Bus.URL, cfg.Bus.Subject)
		if err != nil {
			logger.Warn("event bus unavailable, adjustments will not be published", slog.Any("error", err))
		} else {
			publisher = natsPublisher
		}
	}
	defer publisher.Close()

	analyzer := engine.NewAnalyzer(store, logger)
	optimizer := engine.NewOptimizer(store, analyzer, logger)
	applier := services.NewApplier(store, publisher, logger)
	automation := services.NewAutomation(store, optimizer, applier, cfg.Optimization.LookBackDays, logger)
	generator := services.NewWorkOrderGenerator(store, logger)

	sched := scheduler.New(cfg.Scheduler, automation, generator, logger)
	if cfg.Scheduler.Enabled {
		if err := sched.Start(ctx); err != nil {
			logger.Error("failed to start scheduler", slog.Any("error", err))
			os.Exit(1)
		}
	}

	handlers := api.NewHandlers(ctx, optimizer, applier, automation, generator, sched, cfg.Optimization.LookBackDays, logger)
	server := api.NewServer(cfg.Server, handlers.Router(), logger)

	var metricsServer *http.Server
	if cfg.Server.MetricsAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Server.MetricsAddress,
			Handler:      mux,
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			logger.Info("metrics server listening", slog.String("address", cfg.Server.MetricsAddress))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server exited", slog.Any("error", err))
				stop()
			}
		}()
	}

	go func() {
		if serveErr := server.Start(); serveErr != nil {
			logger.Error("http server exited", slog.Any("error", serveErr))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown signal received")

	sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.GracefulTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", slog.Any("error", err))
	}

	if metricsServer != nil {
		metricsCtx, cancelMetrics := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(metricsCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server shutdown", slog.Any("error", err))
		}
		cancelMetrics()
	}

	// Give remaining goroutines time to finish logging
	time.Sleep(100 * time.Millisecond)
	logger.Info("maint-opt stopped")
}
