package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/packportal/rsvp-service/internal/domain"
)

// LedgerResult reports the committed outcome of a ledger transaction
type LedgerResult struct {
	RSVP        *domain.RSVP
	CachedCount int
	RSVPCount   int
	Closed      bool
	// JustClosed is true when this transaction tripped auto-close
	JustClosed bool
}

// RSVPWithEvent pairs a reservation with its event summary for listings
type RSVPWithEvent struct {
	RSVP  *domain.RSVP
	Event domain.EventSummary
}

// LedgerRepository is the transactional reservation store. Every mutation
// recomputes the countable total from the reservation rows inside the same
// transaction that commits the write, with the event row locked.
type LedgerRepository interface {
	// CreateRSVP inserts a reservation after an in-transaction capacity check
	CreateRSVP(ctx context.Context, rsvp *domain.RSVP) (*LedgerResult, error)

	// UpdateRSVP replaces the attendee list and contact fields, recomputing
	// capacity with the reservation's own prior contribution excluded
	UpdateRSVP(ctx context.Context, rsvp *domain.RSVP) (*LedgerResult, error)

	// DeleteRSVP removes a reservation and decrements the cached count,
	// floored at zero. Deletion never reopens a closed event.
	DeleteRSVP(ctx context.Context, id string) (*LedgerResult, error)

	// MarkPaymentCompleted flips payment_status to completed, which makes
	// the reservation countable. Idempotent.
	MarkPaymentCompleted(ctx context.Context, id string) (*LedgerResult, error)

	// ReopenEvent clears the closed flag. Fails with ErrEventNotClosed when
	// the event is open.
	ReopenEvent(ctx context.Context, eventID string) (*domain.Event, error)

	// GetRSVP fetches a reservation by id
	GetRSVP(ctx context.Context, id string) (*domain.RSVP, error)

	// GetRSVPByEventAndUser fetches a user's reservation for an event
	GetRSVPByEventAndUser(ctx context.Context, eventID, userID string) (*domain.RSVP, error)

	// ListByUser returns the caller's reservations with event summaries,
	// newest first
	ListByUser(ctx context.Context, userID string) ([]*RSVPWithEvent, error)

	// ListByEvent returns every reservation for an event
	ListByEvent(ctx context.Context, eventID string) ([]*domain.RSVP, error)

	// CountEvent recomputes the countable total for one event
	CountEvent(ctx context.Context, eventID string) (*domain.EventCount, error)

	// BatchCounts recomputes countable totals for several events in one
	// grouped scan. Events with no reservations report zero.
	BatchCounts(ctx context.Context, eventIDs []string) (map[string]int, error)
}

// EventRepository reads and seeds event descriptors
type EventRepository interface {
	GetByID(ctx context.Context, id string) (*domain.Event, error)
	Create(ctx context.Context, event *domain.Event) error
}

// OutboxRepository defines the interface for outbox data access
type OutboxRepository interface {
	Create(ctx context.Context, msg *domain.OutboxMessage) error
	CreateTx(ctx context.Context, tx pgx.Tx, msg *domain.OutboxMessage) error
	GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)
	MarkAsPublished(ctx context.Context, id string) error
	MarkAsFailed(ctx context.Context, id string, errMsg string) error
	DeletePublished(ctx context.Context, olderThanDays int) (int64, error)
}

// AuditRepository appends admin action records
type AuditRepository interface {
	Append(ctx context.Context, action *domain.AdminAction) error
}

// StatsCacheRepository mirrors the stats rollup for cheap display reads.
// Never consulted for capacity decisions.
type StatsCacheRepository interface {
	SetStats(ctx context.Context, stats *domain.StatsRollup) error
	GetStats(ctx context.Context, eventID string) (*domain.StatsRollup, error)
}
