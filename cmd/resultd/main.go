package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"mes-result-backend/config"
	"mes-result-backend/internal/api"
	"mes-result-backend/internal/db"
	"mes-result-backend/internal/defect"
	"mes-result-backend/internal/erpsync"
	"mes-result-backend/internal/guard"
	"mes-result-backend/internal/metrics"
	"mes-result-backend/internal/mw"
	"mes-result-backend/internal/notification"
	"mes-result-backend/internal/results"
	"mes-result-backend/internal/store"
	"mes-result-backend/internal/workflow"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config/config.yaml" // Default path for local development
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration from %s: %v\n", configPath, err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	zap.S().Infof("configuration loaded from %s", configPath)

	gormDB, err := db.Init(&cfg.Database)
	if err != nil {
		zap.S().Fatalf("failed to initialize database: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	appStore := store.NewGormStore(gormDB)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	resultStore := results.NewStore(appStore, results.NewContextCache(cfg.Commit.ResultsCacheTTL))
	pending := defect.NewPending()

	opts := []workflow.Option{
		workflow.WithLogger(logger.Sugar().Named("workflow")),
		workflow.WithMetrics(metrics.NewCommit(registry)),
		workflow.WithPersistTimeout(cfg.Commit.PersistTimeout),
	}

	var webpushOptions *webpush.Options
	if cfg.Push.PublicKey != "" && cfg.Push.PrivateKey != "" {
		webpushOptions = &webpush.Options{
			VAPIDPublicKey:  cfg.Push.PublicKey,
			VAPIDPrivateKey: cfg.Push.PrivateKey,
			Subscriber:      cfg.Push.Subject,
			TTL:             cfg.Push.TTL,
		}
		pool := notification.NewWorkerPool(cfg.WorkerPool.Size, cfg.WorkerPool.QueueSize, gormDB, webpushOptions)
		pool.Start(ctx)
		opts = append(opts, workflow.WithDefectAlerter(pool))
	} else {
		zap.S().Warn("VAPID keys are not configured; defect alerts are disabled")
	}

	wf := workflow.New(resultStore, guard.New(), pending, appStore, opts...)

	syncSvc := erpsync.NewService(&cfg.Sync, appStore)
	limiter := mw.NewIPRateLimiter(rate.Limit(cfg.Server.RateLimitPerSec), cfg.Server.RateLimitBurst)

	handler := api.NewHandler(api.Deps{
		Store:     appStore,
		Results:   resultStore,
		Workflow:  wf,
		Pending:   pending,
		Webpush:   webpushOptions,
		Responses: mw.NewResponseCache(time.Duration(cfg.Server.CacheTTLSeconds) * time.Second),
	})
	router := api.NewRouter(handler, api.RouterOptions{
		Logger:         logger,
		Limiter:        limiter,
		Gatherer:       registry,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		syncSvc.Run(gctx)
		return nil
	})
	g.Go(func() error {
		limiter.RunPruner(gctx, time.Minute, 10*time.Minute)
		return nil
	})
	g.Go(func() error {
		zap.S().Infof("HTTP server starting on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server ListenAndServe: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		select {
		case <-stop:
			zap.S().Info("shutdown signal received, stopping services")
		case <-gctx.Done():
		}
		defer cancel()

		// Commits waiting for defect input hold their requests open until resolved.
		for _, id := range pending.Close() {
			zap.S().Infof("cancelled pending defect input for result %s", id)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Commit.PersistTimeout+5*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server Shutdown: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		zap.S().Errorf("server stopped with error: %v", err)
		logger.Sync()
		os.Exit(1)
	}
	zap.S().Info("server gracefully stopped")
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	zc.Level = level
	return zc.Build()
}
