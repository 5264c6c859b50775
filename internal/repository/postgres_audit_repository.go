package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/packportal/rsvp-service/internal/domain"
)

// PostgresAuditRepository appends admin action records. Callers treat a
// failed append as non-fatal.
type PostgresAuditRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresAuditRepository creates a new PostgresAuditRepository
func NewPostgresAuditRepository(pool *pgxpool.Pool) *PostgresAuditRepository {
	return &PostgresAuditRepository{pool: pool}
}

// Append inserts an audit record
func (r *PostgresAuditRepository) Append(ctx context.Context, action *domain.AdminAction) error {
	if action.ID == "" {
		action.ID = uuid.New().String()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO admin_actions (
			id, action_type, actor_id, actor_email,
			rsvp_id, event_id, attendee_count, success, detail, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.pool.Exec(ctx, query,
		action.ID, action.ActionType, action.ActorID, action.ActorEmail,
		action.RSVPID, action.EventID, action.AttendeeCount, action.Success,
		action.Detail, action.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append admin action: %w", err)
	}
	return nil
}

// Ensure PostgresAuditRepository implements AuditRepository
var _ AuditRepository = (*PostgresAuditRepository)(nil)
