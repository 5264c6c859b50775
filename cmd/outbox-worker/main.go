package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/packportal/rsvp-service/internal/repository"
	"github.com/packportal/rsvp-service/internal/worker"
	"github.com/packportal/rsvp-service/pkg/config"
	"github.com/packportal/rsvp-service/pkg/database"
	"github.com/packportal/rsvp-service/pkg/kafka"
	"github.com/packportal/rsvp-service/pkg/logger"
	"github.com/packportal/rsvp-service/pkg/retry"
)

// Standalone outbox relay. The API binary runs the same worker in-process;
// this binary exists for deployments that scale the relay separately.
func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logCfg := &logger.Config{
		Level:       "info",
		ServiceName: "outbox-worker",
		Development: cfg.IsDevelopment(),
	}
	if err := logger.Init(logCfg); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	appLog := logger.Get()
	appLog.Info("Starting outbox worker...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize database connection
	dbCfg := &database.PostgresConfig{
		Host:          cfg.Database.Host,
		Port:          cfg.Database.Port,
		User:          cfg.Database.User,
		Password:      cfg.Database.Password,
		Database:      cfg.Database.DBName,
		SSLMode:       cfg.Database.SSLMode,
		MaxConns:      10,
		MinConns:      2,
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
	}
	db, err := database.NewPostgres(ctx, dbCfg)
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to connect to database: %v", err))
	}
	defer db.Close()
	appLog.Info("Database connected")

	// Initialize Kafka producer
	producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
		Brokers:       cfg.Kafka.Brokers,
		ClientID:      "outbox-worker",
		MaxRetries:    3,
		RetryInterval: 2 * time.Second,
		BatchSize:     100,
		LingerMs:      10,
	})
	if err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to create Kafka producer: %v", err))
	}
	defer producer.Close()
	appLog.Info("Kafka producer connected")

	outboxRepo := repository.NewPostgresOutboxRepository(db.Pool())
	dlq := retry.NewKafkaDLQPublisher(producer, &retry.DLQConfig{
		TopicSuffix: ".dlq",
		Source:      "rsvp-service",
	})

	outboxWorker := worker.NewOutboxWorker(
		outboxRepo,
		producer,
		dlq,
		&worker.OutboxWorkerConfig{
			PollInterval:         cfg.RSVP.OutboxPollInterval,
			BatchSize:            cfg.RSVP.OutboxBatchSize,
			RetryInterval:        5 * time.Second,
			CleanupInterval:      1 * time.Hour,
			CleanupRetentionDays: 7,
		},
	)

	if err := outboxWorker.Start(ctx); err != nil {
		appLog.Fatal(fmt.Sprintf("Failed to start worker: %v", err))
	}

	appLog.Info("Outbox worker started successfully")

	// Wait for interrupt signal for graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLog.Info("Shutting down worker...")
	cancel()
	outboxWorker.Stop()

	appLog.Info("Worker exited gracefully")
}
