package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/packportal/rsvp-service/internal/domain"
	"github.com/packportal/rsvp-service/pkg/telemetry"
)

const uniqueViolationCode = "23505"

// PostgresLedgerRepository implements LedgerRepository using PostgreSQL.
// Every mutation locks the event row FOR UPDATE, recomputes the countable
// total from the rsvps table and commits the write, the cached count, the
// stats rollup and the outbox notification as one transaction.
type PostgresLedgerRepository struct {
	pool              *pgxpool.Pool
	outboxRepo        *PostgresOutboxRepository
	notificationTopic string
}

// NewPostgresLedgerRepository creates a new PostgresLedgerRepository
func NewPostgresLedgerRepository(pool *pgxpool.Pool, notificationTopic string) *PostgresLedgerRepository {
	return &PostgresLedgerRepository{
		pool:              pool,
		outboxRepo:        NewPostgresOutboxRepository(pool),
		notificationTopic: notificationTopic,
	}
}

// lockEvent loads the event row under FOR UPDATE, serializing all ledger
// transactions for the same event
func (r *PostgresLedgerRepository) lockEvent(ctx context.Context, tx pgx.Tx, eventID string) (*domain.Event, error) {
	query := `
		SELECT
			id, title, description, location, start_at, end_at,
			max_capacity, closed, cached_count,
			payment_required, payment_amount, payment_currency,
			created_at, updated_at
		FROM events
		WHERE id = $1
		FOR UPDATE
	`

	event, err := scanEvent(tx.QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return event, nil
}

// countableTotalTx recomputes the countable attendee total from the
// reservation rows. excludeID removes one reservation's own contribution.
func (r *PostgresLedgerRepository) countableTotalTx(ctx context.Context, tx pgx.Tx, eventID string, paymentRequired bool, excludeID string) (attendees int, rsvps int, err error) {
	query := `
		SELECT
			COALESCE(SUM(GREATEST(jsonb_array_length(attendees), 1)), 0),
			COUNT(*)
		FROM rsvps
		WHERE event_id = $1
		  AND ($2 = false OR payment_status = 'completed')
		  AND ($3 = '' OR id::text <> $3)
	`

	if err := tx.QueryRow(ctx, query, eventID, paymentRequired, excludeID).Scan(&attendees, &rsvps); err != nil {
		return 0, 0, fmt.Errorf("failed to recompute countable total: %w", err)
	}
	return attendees, rsvps, nil
}

// finishTx applies the counter, stats and outbox writes shared by every
// mutation, then commits
func (r *PostgresLedgerRepository) finishTx(ctx context.Context, tx pgx.Tx, event *domain.Event, rsvp *domain.RSVP, eventType string, newCount, rsvpCount int, closed bool) (*LedgerResult, error) {
	now := time.Now()

	_, err := tx.Exec(ctx,
		`UPDATE events SET cached_count = $2, closed = $3, updated_at = $4 WHERE id = $1`,
		event.ID, newCount, closed, now,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to update event counters: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO event_stats (event_id, rsvp_count, attendee_count, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (event_id) DO UPDATE SET
			rsvp_count = EXCLUDED.rsvp_count,
			attendee_count = EXCLUDED.attendee_count,
			updated_at = EXCLUDED.updated_at
	`, event.ID, rsvpCount, newCount, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert stats rollup: %w", err)
	}

	justClosed := closed && !event.Closed

	msg, err := domain.RSVPOutboxEvent(eventType, r.notificationTopic, rsvp, newCount, closed)
	if err != nil {
		return nil, fmt.Errorf("failed to build outbox event: %w", err)
	}
	if err := r.outboxRepo.CreateTx(ctx, tx, msg); err != nil {
		return nil, err
	}

	if justClosed {
		closedMsg, err := domain.RSVPOutboxEvent(domain.EventClosedEvent, r.notificationTopic, rsvp, newCount, true)
		if err != nil {
			return nil, fmt.Errorf("failed to build outbox event: %w", err)
		}
		if err := r.outboxRepo.CreateTx(ctx, tx, closedMsg); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return &LedgerResult{
		RSVP:        rsvp,
		CachedCount: newCount,
		RSVPCount:   rsvpCount,
		Closed:      closed,
		JustClosed:  justClosed,
	}, nil
}

// CreateRSVP inserts a reservation after an in-transaction capacity check
func (r *PostgresLedgerRepository) CreateRSVP(ctx context.Context, rsvp *domain.RSVP) (*LedgerResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", rsvp.EventID),
		attribute.String("user_id", rsvp.UserID),
		attribute.Int("attendees", rsvp.AttendeeCount()),
	)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	event, err := r.lockEvent(ctx, tx, rsvp.EventID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	// Decision order matters: duplicate before capacity before closed, so a
	// retried create on a full (auto-closed) event reports the existing
	// reservation, and a fresh create on it reports the capacity rejection.
	var duplicate bool
	err = tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM rsvps WHERE event_id = $1 AND user_id = $2)`,
		rsvp.EventID, rsvp.UserID,
	).Scan(&duplicate)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to check existing rsvp: %w", err))
	}
	if duplicate {
		return nil, spanErr(span, domain.ErrAlreadyReserved)
	}

	total, rsvpCount, err := r.countableTotalTx(ctx, tx, event.ID, event.PaymentRequired, "")
	if err != nil {
		return nil, spanErr(span, err)
	}

	rsvp.PaymentStatus = domain.InitialPaymentStatus(event.PaymentRequired)
	countable := rsvp.Countable(event.PaymentRequired)
	n := rsvp.AttendeeCount()

	// Capacity guards every create, countable or not: a payment-pending
	// party is admitted against the countable total here, which is what
	// lets MarkPaymentCompleted honor it later without a recheck.
	if !event.Fits(total, n) {
		return nil, spanErr(span, domain.NewCapacityError(event.Remaining(total)))
	}

	if event.Closed {
		return nil, spanErr(span, domain.ErrEventClosed)
	}

	if rsvp.ID == "" {
		rsvp.ID = uuid.New().String()
	}
	now := time.Now()
	rsvp.CreatedAt = now
	rsvp.UpdatedAt = now

	attendeesJSON, err := json.Marshal(rsvp.Attendees)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to encode attendees: %w", err))
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO rsvps (
			id, event_id, user_id, family_name, email, phone,
			attendees, dietary_restrictions, special_needs, notes,
			payment_status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		rsvp.ID, rsvp.EventID, rsvp.UserID, rsvp.FamilyName, rsvp.Email, rsvp.Phone,
		attendeesJSON, rsvp.DietaryRestrictions, rsvp.SpecialNeeds, rsvp.Notes,
		rsvp.PaymentStatus.String(), rsvp.CreatedAt, rsvp.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, spanErr(span, domain.ErrAlreadyReserved)
		}
		return nil, spanErr(span, fmt.Errorf("failed to insert rsvp: %w", err))
	}

	newCount := total
	if countable {
		newCount += n
		rsvpCount++
	}
	closed := event.Closed || event.ShouldClose(newCount)

	result, err := r.finishTx(ctx, tx, event, rsvp, domain.RSVPCreatedEvent, newCount, rsvpCount, closed)
	if err != nil {
		return nil, spanErr(span, err)
	}

	span.SetAttributes(attribute.Int("cached_count", result.CachedCount))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// UpdateRSVP replaces the attendee list and contact fields. Capacity is
// rechecked with the reservation's own prior contribution excluded; a
// rejection leaves the stored reservation untouched.
func (r *PostgresLedgerRepository) UpdateRSVP(ctx context.Context, rsvp *domain.RSVP) (*LedgerResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.update")
	defer span.End()

	span.SetAttributes(attribute.String("rsvp_id", rsvp.ID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := r.getRSVPTx(ctx, tx, rsvp.ID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	event, err := r.lockEvent(ctx, tx, existing.EventID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	// Re-read under the event lock so the row cannot have moved between
	// the first read and the lock acquisition
	existing, err = r.getRSVPTx(ctx, tx, rsvp.ID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	total, rsvpCount, err := r.countableTotalTx(ctx, tx, event.ID, event.PaymentRequired, existing.ID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	countable := existing.Countable(event.PaymentRequired)
	n := len(rsvp.Attendees)

	// Same unconditional guard as create: a pending party may not grow
	// past capacity either, or completing its payment would overshoot
	if !event.Fits(total, n) {
		return nil, spanErr(span, domain.NewCapacityError(event.Remaining(total)))
	}

	updated := *existing
	updated.Attendees = rsvp.Attendees
	if rsvp.FamilyName != "" {
		updated.FamilyName = rsvp.FamilyName
	}
	if rsvp.Email != "" {
		updated.Email = rsvp.Email
	}
	updated.Phone = rsvp.Phone
	updated.DietaryRestrictions = rsvp.DietaryRestrictions
	updated.SpecialNeeds = rsvp.SpecialNeeds
	updated.Notes = rsvp.Notes
	updated.UpdatedAt = time.Now()

	attendeesJSON, err := json.Marshal(updated.Attendees)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to encode attendees: %w", err))
	}

	_, err = tx.Exec(ctx, `
		UPDATE rsvps SET
			family_name = $2, email = $3, phone = $4, attendees = $5,
			dietary_restrictions = $6, special_needs = $7, notes = $8,
			updated_at = $9
		WHERE id = $1
	`,
		updated.ID, updated.FamilyName, updated.Email, updated.Phone, attendeesJSON,
		updated.DietaryRestrictions, updated.SpecialNeeds, updated.Notes, updated.UpdatedAt,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to update rsvp: %w", err))
	}

	newCount := total
	if countable {
		newCount += n
		rsvpCount++
	}
	closed := event.Closed || event.ShouldClose(newCount)

	result, err := r.finishTx(ctx, tx, event, &updated, domain.RSVPUpdatedEvent, newCount, rsvpCount, closed)
	if err != nil {
		return nil, spanErr(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// DeleteRSVP removes a reservation. The cached count drops by the
// reservation's countable contribution, floored at zero; the closed flag
// is never cleared here.
func (r *PostgresLedgerRepository) DeleteRSVP(ctx context.Context, id string) (*LedgerResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.delete")
	defer span.End()

	span.SetAttributes(attribute.String("rsvp_id", id))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := r.getRSVPTx(ctx, tx, id)
	if err != nil {
		return nil, spanErr(span, err)
	}

	event, err := r.lockEvent(ctx, tx, existing.EventID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	existing, err = r.getRSVPTx(ctx, tx, id)
	if err != nil {
		return nil, spanErr(span, err)
	}

	total, rsvpCount, err := r.countableTotalTx(ctx, tx, event.ID, event.PaymentRequired, existing.ID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM rsvps WHERE id = $1`, id); err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to delete rsvp: %w", err))
	}

	// total already excludes this reservation, so it is the new count
	result, err := r.finishTx(ctx, tx, event, existing, domain.RSVPDeletedEvent, total, rsvpCount, event.Closed)
	if err != nil {
		return nil, spanErr(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// MarkPaymentCompleted flips payment_status to completed inside a capacity
// transaction, since the reservation becomes countable. A reservation that
// no longer fits is still honored; capacity was checked at submission.
func (r *PostgresLedgerRepository) MarkPaymentCompleted(ctx context.Context, id string) (*LedgerResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.payment_completed")
	defer span.End()

	span.SetAttributes(attribute.String("rsvp_id", id))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	existing, err := r.getRSVPTx(ctx, tx, id)
	if err != nil {
		return nil, spanErr(span, err)
	}

	event, err := r.lockEvent(ctx, tx, existing.EventID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	existing, err = r.getRSVPTx(ctx, tx, id)
	if err != nil {
		return nil, spanErr(span, err)
	}

	if existing.PaymentStatus == domain.PaymentCompleted {
		// Idempotent: report the committed state without rewriting it
		total, _, err := r.countableTotalTx(ctx, tx, event.ID, event.PaymentRequired, "")
		if err != nil {
			return nil, spanErr(span, err)
		}
		span.SetStatus(codes.Ok, "")
		return &LedgerResult{RSVP: existing, CachedCount: total, Closed: event.Closed}, nil
	}

	total, rsvpCount, err := r.countableTotalTx(ctx, tx, event.ID, event.PaymentRequired, existing.ID)
	if err != nil {
		return nil, spanErr(span, err)
	}

	now := time.Now()
	_, err = tx.Exec(ctx,
		`UPDATE rsvps SET payment_status = $2, updated_at = $3 WHERE id = $1`,
		id, domain.PaymentCompleted.String(), now,
	)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to update payment status: %w", err))
	}

	updated := *existing
	updated.PaymentStatus = domain.PaymentCompleted
	updated.UpdatedAt = now

	newCount := total + updated.AttendeeCount()
	closed := event.Closed || event.ShouldClose(newCount)

	result, err := r.finishTx(ctx, tx, event, &updated, domain.RSVPPaymentCompletedEvent, newCount, rsvpCount+1, closed)
	if err != nil {
		return nil, spanErr(span, err)
	}

	span.SetStatus(codes.Ok, "")
	return result, nil
}

// ReopenEvent clears the closed flag. Reopening does not bypass capacity;
// a still-full event rejects the next create on the capacity check.
func (r *PostgresLedgerRepository) ReopenEvent(ctx context.Context, eventID string) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.reopen")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	event, err := r.lockEvent(ctx, tx, eventID)
	if err != nil {
		return nil, spanErr(span, err)
	}
	if !event.Closed {
		return nil, spanErr(span, domain.ErrEventNotClosed)
	}

	now := time.Now()
	if _, err := tx.Exec(ctx,
		`UPDATE events SET closed = false, updated_at = $2 WHERE id = $1`,
		eventID, now,
	); err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to reopen event: %w", err))
	}

	notification := domain.RSVPNotification{
		EventType:   domain.EventReopenedEvent,
		EventID:     eventID,
		CachedCount: event.CachedCount,
		EventClosed: false,
		OccurredAt:  now,
	}
	msg, err := domain.NewOutboxMessage("event", eventID, domain.EventReopenedEvent, r.notificationTopic, notification)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to build outbox event: %w", err))
	}
	if err := r.outboxRepo.CreateTx(ctx, tx, msg); err != nil {
		return nil, spanErr(span, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to commit transaction: %w", err))
	}

	event.Closed = false
	event.UpdatedAt = now
	span.SetStatus(codes.Ok, "")
	return event, nil
}

// GetRSVP fetches a reservation by id
func (r *PostgresLedgerRepository) GetRSVP(ctx context.Context, id string) (*domain.RSVP, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.get_rsvp")
	defer span.End()

	rsvp, err := scanRSVP(r.pool.QueryRow(ctx, rsvpSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRSVPNotFound
		}
		return nil, spanErr(span, fmt.Errorf("failed to get rsvp: %w", err))
	}
	return rsvp, nil
}

// GetRSVPByEventAndUser fetches a user's reservation for an event
func (r *PostgresLedgerRepository) GetRSVPByEventAndUser(ctx context.Context, eventID, userID string) (*domain.RSVP, error) {
	rsvp, err := scanRSVP(r.pool.QueryRow(ctx, rsvpSelect+` WHERE event_id = $1 AND user_id = $2`, eventID, userID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRSVPNotFound
		}
		return nil, fmt.Errorf("failed to get rsvp by event and user: %w", err)
	}
	return rsvp, nil
}

// ListByUser returns the caller's reservations with event summaries
func (r *PostgresLedgerRepository) ListByUser(ctx context.Context, userID string) ([]*RSVPWithEvent, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.list_by_user")
	defer span.End()

	query := `
		SELECT
			r.id, r.event_id, r.user_id, r.family_name, r.email, r.phone,
			r.attendees, r.dietary_restrictions, r.special_needs, r.notes,
			r.payment_status, r.created_at, r.updated_at,
			e.title, e.location, e.start_at, e.closed
		FROM rsvps r
		JOIN events e ON e.id = r.event_id
		WHERE r.user_id = $1
		ORDER BY r.created_at DESC
	`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to list rsvps by user: %w", err))
	}
	defer rows.Close()

	var results []*RSVPWithEvent
	for rows.Next() {
		rsvp := &domain.RSVP{}
		var (
			attendeesJSON []byte
			status        string
			startAt       *time.Time
			summary       domain.EventSummary
		)
		err := rows.Scan(
			&rsvp.ID, &rsvp.EventID, &rsvp.UserID, &rsvp.FamilyName, &rsvp.Email, &rsvp.Phone,
			&attendeesJSON, &rsvp.DietaryRestrictions, &rsvp.SpecialNeeds, &rsvp.Notes,
			&status, &rsvp.CreatedAt, &rsvp.UpdatedAt,
			&summary.Title, &summary.Location, &startAt, &summary.Closed,
		)
		if err != nil {
			return nil, spanErr(span, fmt.Errorf("failed to scan rsvp row: %w", err))
		}
		rsvp.PaymentStatus = domain.PaymentStatus(status)
		if err := json.Unmarshal(attendeesJSON, &rsvp.Attendees); err != nil {
			return nil, spanErr(span, fmt.Errorf("failed to decode attendees: %w", err))
		}
		summary.ID = rsvp.EventID
		if startAt != nil {
			summary.StartAt = *startAt
		}
		results = append(results, &RSVPWithEvent{RSVP: rsvp, Event: summary})
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("error iterating rsvp rows: %w", err))
	}

	return results, nil
}

// ListByEvent returns every reservation for an event
func (r *PostgresLedgerRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.RSVP, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.list_by_event")
	defer span.End()

	rows, err := r.pool.Query(ctx, rsvpSelect+` WHERE event_id = $1 ORDER BY created_at ASC`, eventID)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to list rsvps by event: %w", err))
	}
	defer rows.Close()

	var results []*domain.RSVP
	for rows.Next() {
		rsvp, err := scanRSVP(rows)
		if err != nil {
			return nil, spanErr(span, fmt.Errorf("failed to scan rsvp row: %w", err))
		}
		results = append(results, rsvp)
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("error iterating rsvp rows: %w", err))
	}

	return results, nil
}

// CountEvent recomputes the countable total for one event
func (r *PostgresLedgerRepository) CountEvent(ctx context.Context, eventID string) (*domain.EventCount, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.count")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `
		SELECT
			COALESCE(SUM(GREATEST(jsonb_array_length(r.attendees), 1)), 0),
			COUNT(r.id)
		FROM events e
		LEFT JOIN rsvps r ON r.event_id = e.id
			AND (e.payment_required = false OR r.payment_status = 'completed')
		WHERE e.id = $1
		GROUP BY e.id
	`

	count := &domain.EventCount{EventID: eventID}
	err := r.pool.QueryRow(ctx, query, eventID).Scan(&count.AttendeeCount, &count.RSVPCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrEventNotFound
		}
		return nil, spanErr(span, fmt.Errorf("failed to count event: %w", err))
	}

	return count, nil
}

// BatchCounts recomputes countable totals for several events in one
// grouped scan. Payment gating applies exactly as in CountEvent.
func (r *PostgresLedgerRepository) BatchCounts(ctx context.Context, eventIDs []string) (map[string]int, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ledger.batch_counts")
	defer span.End()

	span.SetAttributes(attribute.Int("events", len(eventIDs)))

	counts := make(map[string]int, len(eventIDs))
	for _, id := range eventIDs {
		counts[id] = 0
	}

	query := `
		SELECT
			e.id,
			COALESCE(SUM(GREATEST(jsonb_array_length(r.attendees), 1)), 0)
		FROM events e
		LEFT JOIN rsvps r ON r.event_id = e.id
			AND (e.payment_required = false OR r.payment_status = 'completed')
		WHERE e.id = ANY($1)
		GROUP BY e.id
	`

	rows, err := r.pool.Query(ctx, query, eventIDs)
	if err != nil {
		return nil, spanErr(span, fmt.Errorf("failed to batch count: %w", err))
	}
	defer rows.Close()

	for rows.Next() {
		var id string
		var total int
		if err := rows.Scan(&id, &total); err != nil {
			return nil, spanErr(span, fmt.Errorf("failed to scan count row: %w", err))
		}
		counts[id] = total
	}
	if err := rows.Err(); err != nil {
		return nil, spanErr(span, fmt.Errorf("error iterating count rows: %w", err))
	}

	return counts, nil
}

const rsvpSelect = `
	SELECT
		id, event_id, user_id, family_name, email, phone,
		attendees, dietary_restrictions, special_needs, notes,
		payment_status, created_at, updated_at
	FROM rsvps
`

func (r *PostgresLedgerRepository) getRSVPTx(ctx context.Context, tx pgx.Tx, id string) (*domain.RSVP, error) {
	rsvp, err := scanRSVP(tx.QueryRow(ctx, rsvpSelect+` WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRSVPNotFound
		}
		return nil, fmt.Errorf("failed to get rsvp: %w", err)
	}
	return rsvp, nil
}

func scanRSVP(row pgx.Row) (*domain.RSVP, error) {
	rsvp := &domain.RSVP{}
	var (
		attendeesJSON []byte
		status        string
	)
	err := row.Scan(
		&rsvp.ID, &rsvp.EventID, &rsvp.UserID, &rsvp.FamilyName, &rsvp.Email, &rsvp.Phone,
		&attendeesJSON, &rsvp.DietaryRestrictions, &rsvp.SpecialNeeds, &rsvp.Notes,
		&status, &rsvp.CreatedAt, &rsvp.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rsvp.PaymentStatus = domain.PaymentStatus(status)
	if err := json.Unmarshal(attendeesJSON, &rsvp.Attendees); err != nil {
		return nil, fmt.Errorf("failed to decode attendees: %w", err)
	}
	return rsvp, nil
}

func scanEvent(row pgx.Row) (*domain.Event, error) {
	event := &domain.Event{}
	var startAt, endAt *time.Time
	err := row.Scan(
		&event.ID, &event.Title, &event.Description, &event.Location, &startAt, &endAt,
		&event.MaxCapacity, &event.Closed, &event.CachedCount,
		&event.PaymentRequired, &event.PaymentAmount, &event.PaymentCurrency,
		&event.CreatedAt, &event.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if startAt != nil {
		event.StartAt = *startAt
	}
	if endAt != nil {
		event.EndAt = *endAt
	}
	return event, nil
}

// spanErr records the error on the span and passes it through
func spanErr(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}

// Ensure PostgresLedgerRepository implements LedgerRepository
var _ LedgerRepository = (*PostgresLedgerRepository)(nil)
