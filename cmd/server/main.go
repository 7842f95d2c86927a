package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"docparser/cache"
	"docparser/config"
	"docparser/events"
	"docparser/fetch"
	"docparser/handlers"
	"docparser/middleware"
	"docparser/models"
	"docparser/parser"
	"docparser/pool"
	"docparser/registry"
	"docparser/tracker"
)

func main() {
	cfg := config.Load()

	var logger *zap.Logger
	var err error
	if cfg.Env == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	logger.Info("docparser starting",
		zap.String("version", config.Version),
		zap.String("port", cfg.Port),
		zap.Int("max_concurrent", cfg.MaxConcurrent),
	)

	ctx := context.Background()

	reg, closeReg, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize task registry", zap.Error(err))
	}
	defer closeReg()

	var snapshots tracker.Snapshots
	if cfg.RedisAddr != "" {
		sc, err := cache.NewSnapshotCache(cfg.RedisAddr)
		if err != nil {
			logger.Fatal("Failed to connect to redis", zap.Error(err))
		}
		defer sc.Close()
		snapshots = sc
		logger.Info("Snapshot cache enabled", zap.String("addr", cfg.RedisAddr))
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.KafkaBrokers != "" {
		publisher, err = events.NewKafkaPublisher(splitBrokers(cfg.KafkaBrokers), cfg.KafkaTopic)
		if err != nil {
			logger.Fatal("Failed to connect to kafka", zap.Error(err))
		}
		defer publisher.Close()
		logger.Info("Task event publishing enabled", zap.String("topic", cfg.KafkaTopic))
	}

	selector := buildBackends(cfg, logger)
	limiter := pool.NewLimiter(cfg.MaxConcurrent)
	workers := pool.NewWorkerPool(cfg.MaxConcurrent, cfg.QueueSize)
	defer workers.Shutdown()

	trk := tracker.New(tracker.Config{
		Registry:  reg,
		Backends:  selector,
		Pool:      workers,
		Limiter:   limiter,
		Snapshots: snapshots,
		Publisher: publisher,
		Retention: cfg.TaskRetention,
		Logger:    logger,
	})

	janitorCtx, stopJanitor := context.WithCancel(ctx)
	defer stopJanitor()
	go runJanitor(janitorCtx, trk, cfg.StallTimeout, logger)

	router := buildRouter(cfg, trk, selector, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  10 * time.Minute,
		WriteTimeout: 15 * time.Minute,
	}

	go func() {
		logger.Info("Server started", zap.String("address", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}
}

func buildRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (registry.Registry, func(), error) {
	if cfg.DatabaseURL != "" {
		pg, err := registry.NewPostgresRegistry(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Using postgres task registry")
		return pg, pg.Close, nil
	}
	logger.Info("Using in-memory task registry", zap.Int("max_tasks", cfg.MaxTasks))
	return registry.NewMemoryRegistry(cfg.MaxTasks), func() {}, nil
}

func buildBackends(cfg *config.Config, logger *zap.Logger) *parser.Selector {
	backends := []parser.Backend{
		parser.NewPipelineBackend(config.Version, logger),
	}
	if cfg.VLMServerURL != "" {
		backends = append(backends,
			parser.NewRemoteBackend(models.BackendVLMHTTP, cfg.VLMServerURL, logger),
			parser.NewRemoteBackend(models.BackendHybridHTTP, cfg.VLMServerURL, logger),
		)
		logger.Info("Remote backends enabled", zap.String("server", cfg.VLMServerURL))
	}
	return parser.NewSelector(backends...)
}

func buildRouter(cfg *config.Config, trk *tracker.Tracker, selector *parser.Selector, logger *zap.Logger) http.Handler {
	fetcher := fetch.NewFetcher(cfg.MaxFileSize)
	parseHandler := handlers.NewParseHandler(trk, fetcher, cfg.MaxFileSize, logger)
	systemHandler := handlers.NewSystemHandler(cfg, selector.Available())

	r := chi.NewRouter()
	r.Use(middleware.TraceID(logger))
	r.Use(middleware.Logging)
	r.Use(middleware.Recovery)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: false,
	}))

	r.Get("/", systemHandler.Root)
	r.Get("/health", systemHandler.Health)
	r.Get("/version", systemHandler.Version)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(cfg.APIToken))
		r.Post("/parse", parseHandler.Parse)
		r.Post("/parse_url", parseHandler.ParseURL)
		r.Post("/parse_async", parseHandler.ParseAsync)
		r.Get("/tasks/{task_id}", parseHandler.TaskStatus)
	})

	return r
}

// runJanitor evicts expired tasks hourly and, when a stall timeout is
// configured, fails processing tasks that stopped reporting.
func runJanitor(ctx context.Context, trk *tracker.Tracker, stallTimeout time.Duration, logger *zap.Logger) {
	evictTicker := time.NewTicker(time.Hour)
	defer evictTicker.Stop()

	stallTicker := time.NewTicker(time.Minute)
	defer stallTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-evictTicker.C:
			if n, err := trk.EvictExpired(ctx); err != nil {
				logger.Error("Eviction failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("Evicted expired tasks", zap.Int("count", n))
			}
		case <-stallTicker.C:
			if stallTimeout <= 0 {
				continue
			}
			if n, err := trk.FailStalled(ctx, stallTimeout); err != nil {
				logger.Error("Stall check failed", zap.Error(err))
			} else if n > 0 {
				logger.Warn("Failed stalled tasks", zap.Int("count", n))
			}
		}
	}
}

func splitBrokers(brokers string) []string {
	var out []string
	for _, b := range strings.Split(brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}
