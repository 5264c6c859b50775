package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packportal/rsvp-service/internal/domain"
	"github.com/packportal/rsvp-service/pkg/telemetry"
)

// PostgresEventRepository reads and seeds event descriptors. Events are
// owned by the external event-management system; this store carries the
// minimum needed to run the ledger.
type PostgresEventRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresEventRepository creates a new PostgresEventRepository
func NewPostgresEventRepository(pool *pgxpool.Pool) *PostgresEventRepository {
	return &PostgresEventRepository{pool: pool}
}

// GetByID retrieves an event by its ID
func (r *PostgresEventRepository) GetByID(ctx context.Context, id string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get_by_id")
	defer span.End()

	query := `
		SELECT
			id, title, description, location, start_at, end_at,
			max_capacity, closed, cached_count,
			payment_required, payment_amount, payment_currency,
			created_at, updated_at
		FROM events
		WHERE id = $1
	`

	event, err := scanEvent(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, spanErr(span, fmt.Errorf("failed to get event: %w", err))
	}
	return event, nil
}

// Create inserts an event descriptor
func (r *PostgresEventRepository) Create(ctx context.Context, event *domain.Event) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	now := time.Now()
	event.CreatedAt = now
	event.UpdatedAt = now
	if event.PaymentCurrency == "" {
		event.PaymentCurrency = "USD"
	}

	query := `
		INSERT INTO events (
			id, title, description, location, start_at, end_at,
			max_capacity, closed, cached_count,
			payment_required, payment_amount, payment_currency,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, false, 0, $8, $9, $10, $11, $12)
	`

	var startAt, endAt *time.Time
	if !event.StartAt.IsZero() {
		startAt = &event.StartAt
	}
	if !event.EndAt.IsZero() {
		endAt = &event.EndAt
	}

	_, err := r.pool.Exec(ctx, query,
		event.ID, event.Title, event.Description, event.Location, startAt, endAt,
		event.MaxCapacity, event.PaymentRequired, event.PaymentAmount, event.PaymentCurrency,
		event.CreatedAt, event.UpdatedAt,
	)
	if err != nil {
		return spanErr(span, fmt.Errorf("failed to create event: %w", err))
	}
	return nil
}

// Ensure PostgresEventRepository implements EventRepository
var _ EventRepository = (*PostgresEventRepository)(nil)
