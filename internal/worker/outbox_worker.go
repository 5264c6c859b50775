package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/packportal/rsvp-service/internal/domain"
	"github.com/packportal/rsvp-service/internal/metrics"
	"github.com/packportal/rsvp-service/internal/repository"
	"github.com/packportal/rsvp-service/pkg/logger"
	"github.com/packportal/rsvp-service/pkg/retry"
)

// MessageProducer is the producer surface the worker needs
type MessageProducer interface {
	Produce(ctx context.Context, topic, key string, value []byte, headers map[string]string) error
}

// OutboxWorkerConfig contains configuration for the outbox worker
type OutboxWorkerConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages to fetch in each poll
	BatchSize int
	// RetryInterval is the interval between retrying failed messages
	RetryInterval time.Duration
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// CleanupRetentionDays is the number of days to retain published messages
	CleanupRetentionDays int
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() *OutboxWorkerConfig {
	return &OutboxWorkerConfig{
		PollInterval:         500 * time.Millisecond,
		BatchSize:            100,
		RetryInterval:        5 * time.Second,
		CleanupInterval:      1 * time.Hour,
		CleanupRetentionDays: 7,
	}
}

// OutboxWorker polls the outbox table and publishes notifications to Kafka.
// Messages that exhaust their retries are parked on the dead letter queue.
type OutboxWorker struct {
	outboxRepo repository.OutboxRepository
	producer   MessageProducer
	dlq        retry.DLQPublisher
	config     *OutboxWorkerConfig
	log        *logger.Logger
	stopCh     chan struct{}
	wg         sync.WaitGroup
	mu         sync.Mutex
	running    bool
}

// NewOutboxWorker creates a new outbox worker. A nil dlq disables parking.
func NewOutboxWorker(
	outboxRepo repository.OutboxRepository,
	producer MessageProducer,
	dlq retry.DLQPublisher,
	config *OutboxWorkerConfig,
) *OutboxWorker {
	if config == nil {
		config = DefaultOutboxWorkerConfig()
	}
	if dlq == nil {
		dlq = retry.NewNoOpDLQPublisher()
	}

	return &OutboxWorker{
		outboxRepo: outboxRepo,
		producer:   producer,
		dlq:        dlq,
		config:     config,
		log:        logger.Get(),
		stopCh:     make(chan struct{}),
	}
}

// Start starts the outbox worker
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting outbox worker")

	w.wg.Add(1)
	go w.pollPendingMessages(ctx)

	w.wg.Add(1)
	go w.retryFailedMessages(ctx)

	w.wg.Add(1)
	go w.cleanupOldMessages(ctx)

	return nil
}

// Stop stops the outbox worker
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping outbox worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("Outbox worker stopped")
}

// pollPendingMessages polls for pending messages and publishes them
func (w *OutboxWorker) pollPendingMessages(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processPendingMessages(ctx)
		}
	}
}

// processPendingMessages fetches and processes pending messages
func (w *OutboxWorker) processPendingMessages(ctx context.Context) {
	messages, err := w.outboxRepo.GetPendingMessages(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to get pending messages: %v", err))
		return
	}

	metrics.RecordOutboxBacklog(ctx, len(messages))

	for _, msg := range messages {
		w.deliver(ctx, msg)
	}
}

// retryFailedMessages retries failed messages
func (w *OutboxWorker) retryFailedMessages(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.processFailedMessages(ctx)
		}
	}
}

// processFailedMessages fetches retryable failed messages and retries them
func (w *OutboxWorker) processFailedMessages(ctx context.Context) {
	messages, err := w.outboxRepo.GetFailedMessages(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error(fmt.Sprintf("Failed to get failed messages: %v", err))
		return
	}

	for _, msg := range messages {
		if w.deliver(ctx, msg) {
			w.log.Info(fmt.Sprintf("Successfully retried message %s after %d attempts", msg.ID, msg.RetryCount+1))
		}
	}
}

// deliver publishes one message, marking it published or failed. Exhausted
// messages are parked on the DLQ so operators keep the payload.
func (w *OutboxWorker) deliver(ctx context.Context, msg *domain.OutboxMessage) bool {
	err := w.publishMessage(ctx, msg)
	metrics.RecordNotification(ctx, msg.EventType, err == nil)

	if err == nil {
		if markErr := w.outboxRepo.MarkAsPublished(ctx, msg.ID); markErr != nil {
			w.log.Error(fmt.Sprintf("Failed to mark message as published %s: %v", msg.ID, markErr))
		}
		return true
	}

	attempt := msg.RetryCount + 1
	w.log.Error(fmt.Sprintf("Failed to publish message %s (attempt %d/%d): %v", msg.ID, attempt, msg.MaxRetries, err))
	if markErr := w.outboxRepo.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
		w.log.Error(fmt.Sprintf("Failed to mark message as failed %s: %v", msg.ID, markErr))
	}

	if attempt >= msg.MaxRetries {
		w.parkMessage(ctx, msg, err, attempt)
	}
	return false
}

// parkMessage publishes an exhausted message to the dead letter queue
func (w *OutboxWorker) parkMessage(ctx context.Context, msg *domain.OutboxMessage, deliveryErr error, attempts int) {
	dlqMsg := &retry.DLQMessage{
		ID:            msg.ID,
		OriginalTopic: msg.Topic,
		OriginalKey:   msg.PartitionKey,
		Payload:       msg.Payload,
		Headers: map[string]string{
			"event_type":     msg.EventType,
			"aggregate_type": msg.AggregateType,
			"aggregate_id":   msg.AggregateID,
		},
		Error:          deliveryErr.Error(),
		Attempts:       attempts,
		FirstAttemptAt: msg.CreatedAt,
		LastAttemptAt:  time.Now(),
	}

	if err := w.dlq.PublishToDLQ(ctx, dlqMsg); err != nil {
		w.log.Error(fmt.Sprintf("Failed to park message %s on DLQ: %v", msg.ID, err))
		return
	}
	w.log.Warnf("Parked message %s on %s after %d attempts", msg.ID, w.dlq.GetDLQTopic(msg.Topic), dlqMsg.Attempts)
}

// cleanupOldMessages deletes old published messages
func (w *OutboxWorker) cleanupOldMessages(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			deleted, err := w.outboxRepo.DeletePublished(ctx, w.config.CleanupRetentionDays)
			if err != nil {
				w.log.Error(fmt.Sprintf("Failed to cleanup old messages: %v", err))
			} else if deleted > 0 {
				w.log.Info(fmt.Sprintf("Cleaned up %d old published messages", deleted))
			}
		}
	}
}

// publishMessage publishes a message to Kafka
func (w *OutboxWorker) publishMessage(ctx context.Context, msg *domain.OutboxMessage) error {
	headers := map[string]string{
		"event_type":     msg.EventType,
		"aggregate_type": msg.AggregateType,
		"aggregate_id":   msg.AggregateID,
		"content_type":   "application/json",
		"source":         "outbox-worker",
	}

	return w.producer.Produce(ctx, msg.Topic, msg.PartitionKey, msg.Payload, headers)
}
