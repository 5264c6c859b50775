package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// IsValid checks if the status is a valid OutboxStatus
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusPending, OutboxStatusPublished, OutboxStatusFailed:
		return true
	}
	return false
}

func (s OutboxStatus) String() string {
	return string(s)
}

// RSVP event types published to the notification topic
const (
	RSVPCreatedEvent          = "rsvp.created"
	RSVPUpdatedEvent          = "rsvp.updated"
	RSVPDeletedEvent          = "rsvp.deleted"
	RSVPPaymentCompletedEvent = "rsvp.payment_completed"
	EventClosedEvent          = "event.closed"
	EventReopenedEvent        = "event.reopened"
)

// OutboxMessage is a notification staged in the same transaction as the
// reservation change and published after commit
type OutboxMessage struct {
	ID            string       `json:"id"`
	AggregateType string       `json:"aggregate_type"`
	AggregateID   string       `json:"aggregate_id"`
	EventType     string       `json:"event_type"`
	Payload       []byte       `json:"payload"`
	Topic         string       `json:"topic"`
	PartitionKey  string       `json:"partition_key"`
	Status        OutboxStatus `json:"status"`
	RetryCount    int          `json:"retry_count"`
	MaxRetries    int          `json:"max_retries"`
	LastError     string       `json:"last_error,omitempty"`
	CreatedAt     time.Time    `json:"created_at"`
	ProcessedAt   *time.Time   `json:"processed_at,omitempty"`
	PublishedAt   *time.Time   `json:"published_at,omitempty"`
}

// NewOutboxMessage creates a pending outbox message
func NewOutboxMessage(aggregateType, aggregateID, eventType, topic string, payload interface{}) (*OutboxMessage, error) {
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	return &OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   aggregateID,
		EventType:     eventType,
		Payload:       payloadBytes,
		Topic:         topic,
		PartitionKey:  aggregateID,
		Status:        OutboxStatusPending,
		RetryCount:    0,
		MaxRetries:    5,
		CreatedAt:     time.Now(),
	}, nil
}

// CanRetry checks if the message can be retried
func (m *OutboxMessage) CanRetry() bool {
	return m.Status == OutboxStatusFailed && m.RetryCount < m.MaxRetries
}

// MarkAsPublished marks the message as successfully published
func (m *OutboxMessage) MarkAsPublished() {
	now := time.Now()
	m.Status = OutboxStatusPublished
	m.PublishedAt = &now
	m.ProcessedAt = &now
}

// MarkAsFailed marks the message as failed and counts the attempt
func (m *OutboxMessage) MarkAsFailed(err string) {
	now := time.Now()
	m.Status = OutboxStatusFailed
	m.LastError = err
	m.RetryCount++
	m.ProcessedAt = &now
}

// ResetForRetry resets the message for retry
func (m *OutboxMessage) ResetForRetry() {
	m.Status = OutboxStatusPending
	m.ProcessedAt = nil
}

// GetPayload unmarshals the payload into the given interface
func (m *OutboxMessage) GetPayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

// RSVPNotification is the payload shape published for reservation changes
type RSVPNotification struct {
	EventType     string    `json:"event_type"`
	RSVPID        string    `json:"rsvp_id,omitempty"`
	EventID       string    `json:"event_id"`
	UserID        string    `json:"user_id,omitempty"`
	FamilyName    string    `json:"family_name,omitempty"`
	AttendeeCount int       `json:"attendee_count,omitempty"`
	CachedCount   int       `json:"cached_count"`
	EventClosed   bool      `json:"event_closed"`
	OccurredAt    time.Time `json:"occurred_at"`
}

// RSVPOutboxEvent stages a reservation notification for the given topic
func RSVPOutboxEvent(eventType, topic string, rsvp *RSVP, cachedCount int, closed bool) (*OutboxMessage, error) {
	notification := RSVPNotification{
		EventType:     eventType,
		RSVPID:        rsvp.ID,
		EventID:       rsvp.EventID,
		UserID:        rsvp.UserID,
		FamilyName:    rsvp.FamilyName,
		AttendeeCount: rsvp.AttendeeCount(),
		CachedCount:   cachedCount,
		EventClosed:   closed,
		OccurredAt:    time.Now(),
	}
	return NewOutboxMessage("rsvp", rsvp.EventID, eventType, topic, notification)
}
