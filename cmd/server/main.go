package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/dealopia/deals-service/config"
	"github.com/dealopia/deals-service/internal/cache"
	"github.com/dealopia/deals-service/internal/database"
	"github.com/dealopia/deals-service/internal/engine"
	"github.com/dealopia/deals-service/internal/events"
	"github.com/dealopia/deals-service/internal/handlers"
	"github.com/dealopia/deals-service/internal/jobs"
	"github.com/dealopia/deals-service/internal/middleware"
	"github.com/dealopia/deals-service/internal/sweepers"
	"github.com/dealopia/deals-service/internal/taskqueue"
	"github.com/dealopia/deals-service/internal/telemetry"
	"github.com/dealopia/deals-service/internal/workers"
)

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger := initLogger(cfg.Logging)

	logger.Info().Msg("Starting deals service")

	ctx := context.Background()

	telemetryCleanup := telemetry.MustInit(ctx, telemetry.GetConfigFromEnv())
	defer telemetryCleanup(ctx)

	dbURL := config.GetDatabaseURL()
	if dbURL == "" {
		logger.Fatal().Msg("DATABASE_URL not set")
	}

	if err := database.Connect(
		ctx,
		dbURL,
		cfg.Database.MaxConnections,
		cfg.Database.MinConnections,
		cfg.Database.MaxConnLifetime,
		cfg.Database.MaxConnIdleTime,
	); err != nil {
		logger.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer database.Close()

	logger.Info().Msg("Database connected")

	// Redis is optional. Without it the cache falls back to an in-process
	// backend and mutation events are not consumed.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn().Err(err).Msg("Redis unreachable, using in-process cache")
			redisClient = nil
		} else {
			logger.Info().Str("addr", cfg.Redis.Addr).Msg("Redis connected")
		}
	}

	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()

	cacheLayer := buildCacheLayer(runCtx, cfg, redisClient, logger)
	dispatcher := cache.NewDispatcher(cacheLayer)

	store := database.NewDealStore(database.Pool())
	eng := engine.New(store, cacheLayer, buildEngineConfig(cfg))

	queue := taskqueue.New(database.Pool())
	handlers.Init(eng, queue)
	if redisClient != nil {
		handlers.RegisterCachePing(func(ctx context.Context) error {
			return redisClient.Ping(ctx).Err()
		})
	}

	if cfg.Workers.Enabled {
		worker := workers.New(queue, workers.WorkerConfig{
			WorkerID:   fmt.Sprintf("deals-worker-%d", os.Getpid()),
			TaskTypes:  []string{taskqueue.TaskTypeScoreRecompute, taskqueue.TaskTypeCacheWarmup},
			MaxTasks:   cfg.Workers.MaxTasks,
			NumWorkers: cfg.Workers.NumWorkers,
			PollDelay:  cfg.Workers.PollDelay,
		})
		worker.RegisterHandler(taskqueue.TaskTypeScoreRecompute, workers.NewScoreRecomputeHandler(eng))
		worker.RegisterHandler(taskqueue.TaskTypeCacheWarmup, workers.NewCacheWarmupHandler(eng))
		worker.Start(runCtx)
		defer worker.Stop()
	}

	taskSweeper := sweepers.NewTaskQueueSweeper(queue, logger, 5*time.Minute, 10*time.Minute)
	go taskSweeper.Start(runCtx)

	maintenance := jobs.NewManager(jobs.DefaultManagerConfig(), database.Pool(), eng, logger)
	maintenance.OnDealsDeleted(func(ctx context.Context) {
		for _, g := range []string{
			cache.GroupFeatured, cache.GroupNearby, cache.GroupSustainable,
			cache.GroupRelated, cache.GroupExpiring, cache.GroupNew, cache.GroupPopular,
		} {
			if err := cacheLayer.InvalidateGroup(ctx, g); err != nil {
				logger.Warn().Err(err).Str("group", g).Msg("Post-cleanup invalidation failed")
			}
		}
	})
	maintenance.Start()
	defer maintenance.Stop()

	if cfg.Events.Enabled && redisClient != nil {
		consumer := events.NewConsumer(events.NewQueue(redisClient, cfg.Events.QueueKey), dispatcher)
		consumer.OnDeal = func(ctx context.Context, ev events.MutationEvent) {
			_, err := queue.ScheduleTask(ctx, taskqueue.ScheduleTaskInput{
				TaskType: taskqueue.TaskTypeScoreRecompute,
				Payload:  workers.ScoreRecomputePayload{DealID: ev.ID},
			})
			if err != nil {
				logger.Error().Err(err).Int64("deal_id", ev.ID).Msg("Failed to schedule score recompute")
			}
		}
		go consumer.Run(runCtx)
	}

	if cfg.Logging.Level == "info" || cfg.Logging.Level == "debug" {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	setupMiddleware(router, logger)

	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.Use(middleware.RateLimitMiddleware(middleware.RateLimiterConfig{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	}))
	{
		deals := api.Group("/deals")
		{
			deals.GET("/nearby", handlers.GetNearbyDeals)
			deals.GET("/featured", handlers.GetFeaturedDeals)
			deals.GET("/sustainable", handlers.GetSustainableDeals)
			deals.GET("/:dealId/related", handlers.GetRelatedDeals)
			deals.POST("/:dealId/interactions", handlers.RecordInteraction)
		}

		api.GET("/categories/:categoryId/deals", handlers.GetDealsByCategory)
	}

	internal := router.Group("/internal")
	internal.Use(middleware.InternalAuthMiddleware(cfg.Auth.InternalAPIKey))
	internal.Use(middleware.ServiceRateLimitMiddleware(50, 100))
	{
		internal.GET("/health", handlers.HealthCheck)

		admin := internal.Group("/admin")
		{
			admin.POST("/deals/:dealId/recompute-score", handlers.RecomputeDealScore)
			admin.POST("/cache/warmup", handlers.ScheduleCacheWarmup)
			admin.GET("/tasks/:taskId", handlers.GetTask)
		}
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info().Str("addr", addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("Shutting down server...")
	cancelRun()
	taskSweeper.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Server forced to shutdown")
	}

	logger.Info().Msg("Server exited")
}

// buildCacheLayer picks the cache backend: Redis when available, otherwise
// the in-process backend so single-instance deployments still get caching.
func buildCacheLayer(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger *zerolog.Logger) *cache.Layer {
	if !cfg.Cache.Enabled {
		logger.Info().Msg("Cache disabled")
		return nil
	}

	if redisClient != nil {
		return cache.NewLayer(cache.NewRedisBackend(redisClient), cfg.Cache.GroupTTL)
	}

	backend := cache.NewMemoryBackend()
	go backend.RunCleanup(ctx, time.Minute)
	return cache.NewLayer(backend, cfg.Cache.GroupTTL)
}

func buildEngineConfig(cfg *config.Config) *engine.EngineConfig {
	ec := engine.DefaultEngineConfig()

	if cfg.Engine.MinRadiusKm > 0 {
		ec.MinRadiusKm = cfg.Engine.MinRadiusKm
	}
	if cfg.Engine.MaxRadiusKm > 0 {
		ec.MaxRadiusKm = cfg.Engine.MaxRadiusKm
	}
	if cfg.Engine.MaxLimit > 0 {
		ec.MaxLimit = cfg.Engine.MaxLimit
	}
	if cfg.Engine.HighSustainability > 0 {
		ec.HighSustainability = cfg.Engine.HighSustainability
	}
	if cfg.Engine.MidSustainability > 0 {
		ec.MidSustainability = cfg.Engine.MidSustainability
	}
	if cfg.Engine.NearDistanceKm > 0 {
		ec.NearDistanceKm = cfg.Engine.NearDistanceKm
	}
	if cfg.Engine.MidDistanceKm > 0 {
		ec.MidDistanceKm = cfg.Engine.MidDistanceKm
	}

	if cfg.Cache.NearbyTTL > 0 {
		ec.NearbyTTL = cfg.Cache.NearbyTTL
	}
	if cfg.Cache.FeaturedTTL > 0 {
		ec.FeaturedTTL = cfg.Cache.FeaturedTTL
	}
	if cfg.Cache.SustainableTTL > 0 {
		ec.SustainableTTL = cfg.Cache.SustainableTTL
	}
	if cfg.Cache.RelatedTTL > 0 {
		ec.RelatedTTL = cfg.Cache.RelatedTTL
	}
	if cfg.Cache.CategoryTTL > 0 {
		ec.CategoryTTL = cfg.Cache.CategoryTTL
	}

	return ec
}

func initLogger(cfg config.LoggingConfig) *zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var output io.Writer
	if cfg.Format == "json" {
		output = os.Stdout
	} else {
		output = zerolog.ConsoleWriter{Out: os.Stdout, NoColor: cfg.NoColor}
	}

	logger := zerolog.New(output).Level(level).With().Timestamp().Str("service", "deals-service").Logger()
	return &logger
}

func setupMiddleware(router *gin.Engine, logger *zerolog.Logger) {
	router.Use(middleware.RequestIDMiddleware())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		end := time.Now()
		latency := end.Sub(start)

		logger.Info().
			Str("method", c.Request.Method).
			Str("path", path).
			Str("query", query).
			Int("status", c.Writer.Status()).
			Dur("latency", latency).
			Str("ip", c.ClientIP()).
			Str("request_id", middleware.RequestID(c)).
			Msg("HTTP request")
	})
}
