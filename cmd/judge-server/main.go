package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"judgebox/internal/common/cache"
	commonmw "judgebox/internal/common/http/middleware"
	"judgebox/internal/common/mq"
	"judgebox/internal/judge/controller"
	"judgebox/internal/judge/metrics"
	"judgebox/internal/judge/repository"
	"judgebox/internal/judge/sandbox"
	"judgebox/internal/judge/service"
	"judgebox/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzhttp"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/judge_server.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "judge server stopped", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	ctx := context.Background()
	judgeMetrics := metrics.New()

	store, closeStore, err := buildStore(appCfg.Store)
	if err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	defer closeStore()

	publisher, closePublisher, err := buildPublisher(appCfg.Kafka)
	if err != nil {
		return fmt.Errorf("init verdict publisher: %w", err)
	}
	defer closePublisher()

	sb, err := sandbox.New(appCfg.Sandbox.toSandboxConfig(appCfg.App.Env, appCfg.Limits.Ceiling), nil)
	if err != nil {
		return fmt.Errorf("init sandbox: %w", err)
	}
	if iso, ok := sb.(*sandbox.Isolate); ok {
		judgeMetrics.TrackBoxes(iso.Pool().InUse)
	} else {
		logger.Warn(ctx, "running with the degraded sandbox; submissions are NOT isolated",
			zap.String("env", appCfg.App.Env))
	}

	pool := service.NewPool(appCfg.Worker.PoolSize, appCfg.Worker.QueueSize)
	judgeMetrics.TrackPool(pool.Queued, pool.Running)

	orchestrator, err := service.NewOrchestrator(service.OrchestratorConfig{
		Store:     store,
		Sandbox:   sb,
		Publisher: publisher,
		Observer:  judgeMetrics,
		Timeout:   appCfg.Worker.Timeout,
	})
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	submissions, err := service.NewSubmissionService(service.Config{
		Store:          store,
		Pool:           pool,
		Orchestrator:   orchestrator,
		Observer:       judgeMetrics,
		DefaultLimits:  appCfg.Limits.Defaults,
		MaxLimits:      appCfg.Limits.Ceiling,
		MaxSourceBytes: appCfg.Limits.MaxSourceBytes,
	})
	if err != nil {
		return fmt.Errorf("init submission service: %w", err)
	}

	var limiter *commonmw.RateLimiter
	if appCfg.RateLimit.Enabled {
		limiter = commonmw.NewRateLimiter(appCfg.RateLimit.RateLimitConfig, judgeMetrics.RateLimited)
		cleanupCtx, stopCleanup := context.WithCancel(ctx)
		defer stopCleanup()
		go limiter.RunCleanup(cleanupCtx, limiter.IdleTTL())
	}

	httpServer := &http.Server{
		Addr:         appCfg.Server.Addr,
		Handler:      buildHandler(appCfg, submissions, judgeMetrics, limiter),
		ReadTimeout:  appCfg.Server.ReadTimeout,
		WriteTimeout: appCfg.Server.WriteTimeout,
		IdleTimeout:  appCfg.Server.IdleTimeout,
	}
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(ctx, "judge http server started",
			zap.String("addr", appCfg.Server.Addr),
			zap.String("sandbox", sb.Name()),
			zap.String("store", appCfg.Store.Driver),
			zap.Int("workers", pool.Workers()),
			zap.Int("queue", pool.Capacity()),
		)
		errCh <- httpServer.Serve(listener)
	}()

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var serveErr error
	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr = err
		}
	case <-signalCtx.Done():
		logger.Info(ctx, "shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, appCfg.Server.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "http server shutdown failed", zap.Error(err))
	}
	if err := submissions.Shutdown(shutdownCtx); err != nil {
		logger.Error(ctx, "worker pool did not drain", zap.Error(err), zap.Int("queued", pool.Queued()))
	}
	return serveErr
}

func buildStore(cfg StoreConfig) (repository.Store, func(), error) {
	if cfg.Driver != storeRedis {
		return repository.NewMemoryStore(), func() {}, nil
	}
	redisCache, err := cache.NewRedisCacheWithConfig(&cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		_ = redisCache.Close()
	}
	return repository.NewRedisStore(redisCache, cfg.Prefix, cfg.TTL), closeFn, nil
}

func buildPublisher(cfg KafkaConfig) (repository.VerdictPublisher, func(), error) {
	if len(cfg.Brokers) == 0 {
		return repository.NoopPublisher{}, func() {}, nil
	}
	producer, err := mq.NewKafkaProducer(cfg.toProducerConfig())
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		_ = producer.Close()
	}
	return repository.NewMQVerdictPublisher(producer, cfg.Topic), closeFn, nil
}

func buildHandler(cfg *AppConfig, submissions controller.SubmissionService, judgeMetrics *metrics.Metrics, limiter *commonmw.RateLimiter) http.Handler {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.TraceContextMiddleware())
	router.Use(commonmw.AccessLogMiddleware(judgeMetrics))
	router.Use(commonmw.CORSMiddleware(cfg.CORS))

	if cfg.Metrics.Enabled != nil && *cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.HandlerFor(judgeMetrics.Registry(), promhttp.HandlerOpts{})))
	}

	var guard gin.HandlerFunc
	if limiter != nil {
		guard = commonmw.RateLimitMiddleware(limiter)
	}
	controller.Register(router,
		controller.NewSubmissionController(submissions, controller.StreamConfig{
			PollInterval: cfg.Stream.PollInterval,
			MaxDuration:  cfg.Stream.MaxDuration,
		}),
		controller.NewCatalogController(),
		guard,
	)

	if !cfg.Server.Gzip {
		return router
	}
	compressed := gzhttp.GzipHandler(router)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Websocket upgrades need the raw connection.
		if strings.EqualFold(r.Header.Get("Upgrade"), "websocket") {
			router.ServeHTTP(w, r)
			return
		}
		compressed.ServeHTTP(w, r)
	})
}
