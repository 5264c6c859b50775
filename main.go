package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/packportal/rsvp-service/internal/di"
	"github.com/packportal/rsvp-service/internal/metrics"
	"github.com/packportal/rsvp-service/internal/service"
	"github.com/packportal/rsvp-service/internal/worker"
	"github.com/packportal/rsvp-service/pkg/config"
	"github.com/packportal/rsvp-service/pkg/database"
	"github.com/packportal/rsvp-service/pkg/kafka"
	"github.com/packportal/rsvp-service/pkg/logger"
	"github.com/packportal/rsvp-service/pkg/middleware"
	pkgredis "github.com/packportal/rsvp-service/pkg/redis"
	"github.com/packportal/rsvp-service/pkg/telemetry"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logLevel := "info"
	if cfg.App.Debug {
		logLevel = "debug"
	}
	logCfg := &logger.Config{
		Level:       logLevel,
		ServiceName: cfg.App.Name,
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting RSVP service...")

	ctx := context.Background()

	// Initialize tracing
	if _, err := telemetry.Init(ctx, &telemetry.Config{
		Enabled:        cfg.OTel.Enabled,
		ServiceName:    cfg.OTel.ServiceName,
		ServiceVersion: cfg.App.Version,
		Environment:    cfg.App.Environment,
		CollectorAddr:  cfg.OTel.CollectorAddr,
		SampleRatio:    cfg.OTel.SampleRatio,
	}); err != nil {
		appLog.Warnf("Telemetry init failed, continuing without tracing: %v", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telemetry.Shutdown(shutdownCtx)
	}()

	if err := metrics.Init(); err != nil {
		appLog.Warnf("Metrics init failed: %v", err)
	}

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:            cfg.Database.Host,
		Port:            cfg.Database.Port,
		User:            cfg.Database.User,
		Password:        cfg.Database.Password,
		Database:        cfg.Database.DBName,
		SSLMode:         cfg.Database.SSLMode,
		MaxConns:        int32(cfg.Database.MaxOpenConns),
		MinConns:        int32(cfg.Database.MaxIdleConns),
		MaxConnLifetime: cfg.Database.ConnMaxLifetime,
		MaxConnIdleTime: cfg.Database.ConnMaxIdleTime,
		ConnectTimeout:  5 * time.Second,
		MaxRetries:      3,
		RetryInterval:   1 * time.Second,
		EnableTracing:   cfg.OTel.Enabled,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Database connection failed: %v", err))
	}
	defer db.Close()
	appLog.Infof("Database connected (pool: min=%d, max=%d)", dbCfg.MinConns, dbCfg.MaxConns)

	// Initialize Redis connection. Redis only backs the stats mirror and
	// idempotency cache; the service runs degraded without it.
	var redisClient *pkgredis.Client
	redisCfg := &pkgredis.Config{
		Host:          cfg.Redis.Host,
		Port:          cfg.Redis.Port,
		Password:      cfg.Redis.Password,
		DB:            cfg.Redis.DB,
		PoolSize:      cfg.Redis.PoolSize,
		MinIdleConns:  cfg.Redis.MinIdleConns,
		MaxRetries:    3,
		RetryInterval: 100 * time.Millisecond,
		DialTimeout:   cfg.Redis.DialTimeout,
		ReadTimeout:   cfg.Redis.ReadTimeout,
		WriteTimeout:  cfg.Redis.WriteTimeout,
	}
	redisClient, err = pkgredis.NewClient(ctx, redisCfg)
	if err != nil {
		appLog.Warnf("Redis connection failed, continuing without stats mirror: %v", err)
		redisClient = nil
	} else {
		defer redisClient.Close()
		appLog.Infof("Redis connected (pool: %d)", redisCfg.PoolSize)
	}

	// Initialize Kafka producer for outbox notifications
	var producer *kafka.Producer
	producer, err = kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      cfg.Kafka.ClientID,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      10,
	})
	if err != nil {
		appLog.Warnf("Kafka connection failed, notifications stay queued in the outbox: %v", err)
		producer = nil
	} else {
		defer producer.Close()
		appLog.Info("Kafka producer connected")
	}

	// Build dependency injection container
	container := di.NewContainer(&di.ContainerConfig{
		DB:                db,
		Redis:             redisClient,
		Producer:          producer,
		NotificationTopic: cfg.Kafka.NotificationTopic,
		ServiceConfig: &service.RSVPServiceConfig{
			MaxAttendees: cfg.RSVP.MaxAttendees,
		},
		WorkerConfig: &worker.OutboxWorkerConfig{
			PollInterval:         cfg.RSVP.OutboxPollInterval,
			BatchSize:            cfg.RSVP.OutboxBatchSize,
			RetryInterval:        5 * time.Second,
			CleanupInterval:      1 * time.Hour,
			CleanupRetentionDays: 7,
		},
	})

	// Start the outbox worker
	if container.OutboxWorker != nil {
		if err := container.OutboxWorker.Start(ctx); err != nil {
			appLog.Fatal(fmt.Sprintf("Failed to start outbox worker: %v", err))
		}
		defer container.OutboxWorker.Stop()
	}

	// Setup Gin
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
		gin.DisableConsoleColor()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(telemetry.TracingMiddleware(cfg.App.Name))

	// Health check endpoints
	router.GET("/health", container.HealthHandler.Health)
	router.GET("/ready", container.HealthHandler.Ready)

	// Pool stats for monitoring
	router.GET("/metrics", func(c *gin.Context) {
		stats := db.Stats()
		c.JSON(http.StatusOK, gin.H{
			"db_pool": gin.H{
				"total_conns":    stats.TotalConns(),
				"acquired_conns": stats.AcquiredConns(),
				"idle_conns":     stats.IdleConns(),
				"max_conns":      stats.MaxConns(),
			},
		})
	})

	authMW := middleware.AuthMiddleware(middleware.AuthConfig{
		Secret: cfg.JWT.Secret,
		Issuer: cfg.JWT.Issuer,
	})

	var idemMW gin.HandlerFunc
	if redisClient != nil {
		idemCfg := middleware.DefaultIdempotencyConfig(redisClient.Client())
		idemCfg.SkipPaths = []string{"/health", "/ready", "/metrics"}
		idemMW = middleware.IdempotencyMiddleware(idemCfg)
	} else {
		idemMW = func(c *gin.Context) { c.Next() }
	}

	v1 := router.Group("/api/v1")
	{
		v1.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{
				"status":  "ok",
				"version": cfg.App.Version,
				"service": cfg.App.Name,
			})
		})

		// Counts are public; display surfaces poll them without a token
		events := v1.Group("/events")
		{
			events.GET("/:event_id/count", container.RSVPHandler.GetCount)
			events.POST("/counts", container.RSVPHandler.GetBatchCounts)

			events.POST("/:event_id/rsvps", authMW, idemMW, container.RSVPHandler.CreateRSVP)
			events.GET("/:event_id/rsvps", authMW, container.RSVPHandler.ListEventRSVPs)
		}

		rsvps := v1.Group("/rsvps")
		rsvps.Use(authMW)
		{
			rsvps.GET("", container.RSVPHandler.ListOwnRSVPs)
			rsvps.PUT("/:id", idemMW, container.RSVPHandler.UpdateRSVP)
			rsvps.DELETE("/:id", idemMW, container.RSVPHandler.DeleteRSVP)
			rsvps.POST("/:id/payment-completed", idemMW, container.RSVPHandler.MarkPaymentCompleted)
		}

		admin := v1.Group("/admin")
		admin.Use(authMW)
		{
			admin.POST("/events", container.RSVPHandler.CreateEvent)
			admin.POST("/events/:event_id/reopen", container.RSVPHandler.ReopenEvent)
		}
	}

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadTimeout:       cfg.Server.ReadTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
		ReadHeaderTimeout: 2 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1MB
	}

	go func() {
		appLog.Infof("RSVP service listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLog.Fatal(fmt.Sprintf("Failed to start server: %v", err))
		}
	}()

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	appLog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLog.Fatal(fmt.Sprintf("Server forced to shutdown: %v", err))
	}

	appLog.Info("Server exited gracefully")
}
