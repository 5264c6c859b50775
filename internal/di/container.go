package di

import (
	"github.com/packportal/rsvp-service/internal/handler"
	"github.com/packportal/rsvp-service/internal/repository"
	"github.com/packportal/rsvp-service/internal/service"
	"github.com/packportal/rsvp-service/internal/worker"
	"github.com/packportal/rsvp-service/pkg/database"
	"github.com/packportal/rsvp-service/pkg/kafka"
	"github.com/packportal/rsvp-service/pkg/redis"
	"github.com/packportal/rsvp-service/pkg/retry"
)

// Container holds all dependencies for the reservation service
type Container struct {
	// Infrastructure
	DB       *database.PostgresDB
	Redis    *redis.Client
	Producer *kafka.Producer

	// Repositories
	LedgerRepo repository.LedgerRepository
	EventRepo  repository.EventRepository
	OutboxRepo repository.OutboxRepository
	AuditRepo  repository.AuditRepository
	StatsRepo  repository.StatsCacheRepository

	// Services
	RSVPService service.RSVPService

	// Handlers
	HealthHandler *handler.HealthHandler
	RSVPHandler   *handler.RSVPHandler

	// Workers
	OutboxWorker *worker.OutboxWorker
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	DB                *database.PostgresDB
	Redis             *redis.Client
	Producer          *kafka.Producer
	NotificationTopic string
	ServiceConfig     *service.RSVPServiceConfig
	WorkerConfig      *worker.OutboxWorkerConfig
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	c := &Container{
		DB:       cfg.DB,
		Redis:    cfg.Redis,
		Producer: cfg.Producer,
	}

	pool := cfg.DB.Pool()
	c.LedgerRepo = repository.NewPostgresLedgerRepository(pool, cfg.NotificationTopic)
	c.EventRepo = repository.NewPostgresEventRepository(pool)
	c.OutboxRepo = repository.NewPostgresOutboxRepository(pool)
	c.AuditRepo = repository.NewPostgresAuditRepository(pool)
	if cfg.Redis != nil {
		c.StatsRepo = repository.NewRedisStatsRepository(cfg.Redis.Client())
	}

	c.RSVPService = service.NewRSVPService(
		c.LedgerRepo,
		c.EventRepo,
		c.AuditRepo,
		c.StatsRepo,
		cfg.ServiceConfig,
	)

	c.HealthHandler = handler.NewHealthHandler(c.DB, c.Redis)
	c.RSVPHandler = handler.NewRSVPHandler(c.RSVPService)

	if cfg.Producer != nil {
		dlq := retry.NewKafkaDLQPublisher(cfg.Producer, &retry.DLQConfig{
			TopicSuffix: ".dlq",
			Source:      "rsvp-service",
		})
		c.OutboxWorker = worker.NewOutboxWorker(c.OutboxRepo, cfg.Producer, dlq, cfg.WorkerConfig)
	}

	return c
}
