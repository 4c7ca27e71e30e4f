package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/duynhne/mc-profile-service/config"
	database "github.com/duynhne/mc-profile-service/internal/core"
	"github.com/duynhne/mc-profile-service/internal/core/domain"
	"github.com/duynhne/mc-profile-service/internal/core/lock"
	"github.com/duynhne/mc-profile-service/internal/core/repository/psql"
	"github.com/duynhne/mc-profile-service/internal/core/storage/gcs"
	logicv1 "github.com/duynhne/mc-profile-service/internal/logic/v1"
	v1 "github.com/duynhne/mc-profile-service/internal/web/v1"
	"github.com/duynhne/mc-profile-service/middleware"
)

func main() {
	// Load configuration from environment variables (with .env file support for local dev)
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	logger, err := middleware.NewLoggerFromConfig(cfg.Logging)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)

	logger.Info("Service starting",
		zap.String("service", cfg.Service.Name),
		zap.String("version", cfg.Service.Version),
		zap.String("env", cfg.Service.Env),
		zap.String("port", cfg.Service.Port),
	)

	// Tracing must be initialized before TracingMiddleware captures the provider
	tracingOn := false
	if cfg.Tracing.Enabled {
		if _, err := middleware.InitTracing(cfg); err != nil {
			logger.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			tracingOn = true
			logger.Info("Tracing initialized",
				zap.String("endpoint", cfg.Tracing.Endpoint),
				zap.Float64("sample_rate", cfg.Tracing.SampleRate),
			)
		}
	} else {
		logger.Info("Tracing disabled (TRACING_ENABLED=false)")
	}

	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg.Profiling, cfg.Service); err != nil {
			logger.Warn("Failed to initialize profiling", zap.Error(err))
		} else {
			logger.Info("Profiling initialized", zap.String("endpoint", cfg.Profiling.Endpoint))
			defer middleware.StopProfiling()
		}
	} else {
		logger.Info("Profiling disabled (PROFILING_ENABLED=false)")
	}

	startupCtx, cancelStartup := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelStartup()

	pool, err := database.Connect(startupCtx, cfg.Database)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer pool.Close()
	logger.Info("Database connection pool established")

	bucket, err := gcs.New(startupCtx, cfg.Storage, logger)
	if err != nil {
		logger.Fatal("Failed to initialize asset bucket", zap.Error(err))
	}

	// Profile saves are serialized per mcId; Redis extends that across replicas
	var (
		locker      domain.Locker
		redisClient *redis.Client
	)
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(startupCtx).Err(); err != nil {
			logger.Fatal("Failed to connect to redis", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		locker = lock.NewRedisLocker(redisClient, cfg.GetLockTTLDuration(), cfg.GetLockWaitDuration(), logger)
		logger.Info("Using redis profile locks", zap.String("addr", cfg.Redis.Addr))
	} else {
		locker = lock.NewKeyedMutex(cfg.GetLockWaitDuration())
		logger.Info("Using in-process profile locks (REDIS_ADDR not set)")
	}

	repo := psql.NewProfileRepository(pool)
	uploader := logicv1.NewAssetUploader(bucket, cfg.Reconcile.UploadMaxBytes, logger)

	opts := []logicv1.ReconcilerOption{
		logicv1.WithLocker(locker),
		logicv1.WithDefaultLanguage(cfg.Reconcile.DefaultLanguage),
	}
	if cfg.Reconcile.Transactional {
		opts = append(opts, logicv1.WithTxRunner(repo))
	}
	reconciler := logicv1.NewReconciler(repo, uploader, logger, opts...)
	profileService := logicv1.NewProfileService(repo, reconciler, uploader, logger)
	profileHandler := v1.NewProfileHandler(profileService, cfg.Reconcile.UploadMaxBytes)
	logger.Info("Profile reconciler ready", zap.Bool("transactional", cfg.Reconcile.Transactional))

	r := gin.New()
	r.Use(gin.Recovery())

	var isShuttingDown atomic.Bool

	// Tracing middleware (must be first for context propagation)
	r.Use(middleware.TracingMiddleware())

	// Logging middleware (must be before Prometheus middleware)
	r.Use(middleware.LoggingMiddleware(logger))

	r.Use(middleware.PrometheusMiddleware())
	r.Use(middleware.CORS(cfg.HTTP.CORSAllowedOrigins))

	authClient := middleware.NewAuthClient(cfg.Admin.AuthServiceURL)
	logger.Info("Auth client initialized", zap.String("auth_service_url", cfg.Admin.AuthServiceURL))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "database_unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	profileHandler.RegisterRoutes(r.Group("/api/v1"),
		middleware.AdminAuthMiddleware(authClient, cfg.Admin.Role, logger, cfg.Admin.AllowUnauthenticatedFallback),
		middleware.WriteRateLimit(cfg.HTTP.WriteRateLimit, cfg.HTTP.WriteBurst),
	)

	srv := &http.Server{
		Addr:              ":" + cfg.Service.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Starting mc profile service", zap.String("port", cfg.Service.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	<-ctx.Done()
	logger.Info("Shutdown signal received")

	// Fail readiness first and wait for propagation.
	isShuttingDown.Store(true)
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 {
		logger.Info("Readiness drain delay started", zap.Duration("delay", drainDelay))
		time.Sleep(drainDelay)
		logger.Info("Readiness drain delay completed", zap.Duration("delay", drainDelay))
	}

	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	logger.Info("Shutting down server...", zap.Duration("timeout", shutdownTimeout))

	// Cleanup order: HTTP Server → Database → Bucket → Redis → Tracer

	// 1. In-flight saves finish before their stores go away
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	} else {
		logger.Info("HTTP server shutdown complete")
	}

	// 2. Database
	pool.Close()
	logger.Info("Database pool closed")

	// 3. Bucket
	if err := bucket.Close(); err != nil {
		logger.Error("Bucket client close error", zap.Error(err))
	}

	// 4. Redis
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.Error("Redis client close error", zap.Error(err))
		}
	}

	// 5. Flush pending spans
	if tracingOn {
		if err := middleware.Shutdown(shutdownCtx); err != nil {
			logger.Error("Tracer shutdown error", zap.Error(err))
		} else {
			logger.Info("Tracer shutdown complete")
		}
	}

	logger.Info("Graceful shutdown complete")
}
