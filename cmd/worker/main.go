package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dunamismax/tileflow/internal/config"
	"github.com/dunamismax/tileflow/internal/logging"
	"github.com/dunamismax/tileflow/internal/pipeline"
	"github.com/dunamismax/tileflow/internal/ratelimit"
	"github.com/dunamismax/tileflow/internal/storage"
	"github.com/dunamismax/tileflow/internal/store"
	"github.com/dunamismax/tileflow/internal/telemetry"
	"github.com/dunamismax/tileflow/internal/webhook"
	"github.com/dunamismax/tileflow/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		_, _ = os.Stderr.WriteString("load config: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger, err := logging.New(cfg.Log)
	if err != nil {
		_, _ = os.Stderr.WriteString("build logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	logger = logger.Named("worker")
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("worker failed", zap.Error(err))
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := telemetry.SetupTracing(ctx, cfg.Telemetry, logger)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	if err := pipeline.Startup(); err != nil {
		return err
	}
	defer pipeline.Shutdown()

	registry := worker.NewRegistry()
	renderer, err := pipeline.NewRenderer(
		pipeline.EncodeOptions{JPEGQuality: cfg.Render.JPEGQuality},
		pipeline.WithLogger(logger.Named("pipeline")),
		pipeline.WithMetrics(pipeline.NewMetrics(registry)),
	)
	if err != nil {
		return err
	}

	fetcher := pipeline.SourceFetcher{Local: pipeline.LocalFileFetcher{Root: cfg.Worker.LocalSourceRoot}}
	var emitter pipeline.Emitter = pipeline.LocalFileEmitter{OutputDir: cfg.Worker.LocalOutputDir}
	if cfg.Storage.Enabled {
		objects, err := storage.NewClient(storage.Config{
			Endpoint:       cfg.Storage.Endpoint,
			Access:         cfg.Storage.AccessKey,
			Secret:         cfg.Storage.SecretKey,
			Bucket:         cfg.Storage.Bucket,
			UseSSL:         cfg.Storage.UseSSL,
			MaxObjectBytes: cfg.Storage.MaxObjectBytes,
		})
		if err != nil {
			return err
		}
		if err := objects.EnsureBucket(ctx); err != nil {
			return err
		}
		fetcher.ObjectStore = &pipeline.ObjectStoreFetcher{Store: objects}
		emitter = pipeline.ObjectStoreEmitter{Store: objects, Prefix: cfg.Storage.OutputPrefix}
	}

	var renderStore store.RenderStore = store.NewMemoryRenderStore()
	if cfg.Database.DSN != "" {
		pg, err := store.NewPostgresRenderStore(ctx, cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer func() { _ = pg.Close() }()
		renderStore = pg
	}

	var limiter *ratelimit.RedisTokenBucket
	if cfg.RateLimit.Enabled {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Queue.RedisAddr,
			Password: cfg.Queue.RedisPassword,
			DB:       cfg.Queue.RedisDB,
		})
		defer func() { _ = rdb.Close() }()

		limiter, err = ratelimit.NewRedisTokenBucket(rdb, cfg.RateLimit.Capacity, cfg.RateLimit.Window, "")
		if err != nil {
			return err
		}
	}

	srv, err := worker.NewServer(logger, cfg.Queue, cfg.Worker, worker.Deps{
		Processor: pipeline.NewProcessor(fetcher, renderer, emitter),
		Limiter:   limiter,
		Webhook: webhook.NewClient(webhook.Config{
			SigningSecret:  cfg.Webhook.SigningSecret,
			Timeout:        cfg.Webhook.Timeout,
			MaxAttempts:    cfg.Webhook.MaxAttempts,
			InitialBackoff: cfg.Webhook.InitialBackoff,
			MaxBackoff:     cfg.Webhook.MaxBackoff,
		}),
		RenderStore: renderStore,
		Registry:    registry,
	})
	if err != nil {
		return err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", srv.MetricsHandler())
	metricsServer := &http.Server{
		Addr:              cfg.Worker.MetricsAddr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("serving metrics", zap.String("addr", cfg.Worker.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server failed", zap.Error(err))
		}
	}()

	logger.Info("starting worker",
		zap.String("backend", pipeline.Backend()),
		zap.Int("concurrency", cfg.Worker.Concurrency),
		zap.Int("max_active_jobs", cfg.Worker.MaxActiveJobs),
		zap.String("queue", cfg.Queue.Name),
		zap.String("redis", cfg.Queue.RedisAddr),
		zap.Bool("object_storage", cfg.Storage.Enabled),
		zap.Bool("rate_limit", cfg.RateLimit.Enabled),
	)

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run() }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	}

	srv.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown failed", zap.Error(err))
	}
	return nil
}
