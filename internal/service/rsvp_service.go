package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/packportal/rsvp-service/internal/domain"
	"github.com/packportal/rsvp-service/internal/dto"
	"github.com/packportal/rsvp-service/internal/metrics"
	"github.com/packportal/rsvp-service/internal/repository"
	"github.com/packportal/rsvp-service/pkg/logger"
	"github.com/packportal/rsvp-service/pkg/telemetry"
)

// RSVPService defines the interface for reservation business logic
type RSVPService interface {
	// CreateRSVP reserves spots at an event for the requester
	CreateRSVP(ctx context.Context, requester *domain.Requester, eventID string, req *dto.CreateRSVPRequest) (*dto.RSVPResponse, error)

	// UpdateRSVP changes an existing reservation
	UpdateRSVP(ctx context.Context, requester *domain.Requester, rsvpID string, req *dto.UpdateRSVPRequest) (*dto.RSVPResponse, error)

	// DeleteRSVP removes a reservation (owner, or rsvp:delete:any)
	DeleteRSVP(ctx context.Context, requester *domain.Requester, rsvpID string) error

	// MarkPaymentCompleted records settled payment for a reservation
	MarkPaymentCompleted(ctx context.Context, requester *domain.Requester, rsvpID string) (*dto.RSVPResponse, error)

	// GetCount returns the countable attendee total for one event
	GetCount(ctx context.Context, eventID string) (*dto.CountResponse, error)

	// GetBatchCounts returns countable totals for several events
	GetBatchCounts(ctx context.Context, req *dto.BatchCountsRequest) (*dto.BatchCountsResponse, error)

	// ListOwnRSVPs returns the requester's reservations, newest first
	ListOwnRSVPs(ctx context.Context, requester *domain.Requester) ([]*dto.RSVPResponse, error)

	// ListEventRSVPs returns all reservations for an event (rsvp:read:event)
	ListEventRSVPs(ctx context.Context, requester *domain.Requester, eventID string) ([]*dto.RSVPResponse, error)

	// ReopenEvent clears a closed event's flag (event:reopen)
	ReopenEvent(ctx context.Context, requester *domain.Requester, eventID string) (*dto.ReopenEventResponse, error)

	// CreateEvent seeds an event descriptor (event:create)
	CreateEvent(ctx context.Context, requester *domain.Requester, req *dto.CreateEventRequest) (*domain.Event, error)
}

// rsvpService implements RSVPService
type rsvpService struct {
	ledger       repository.LedgerRepository
	events       repository.EventRepository
	audit        repository.AuditRepository
	statsCache   repository.StatsCacheRepository
	log          *logger.Logger
	maxAttendees int
}

// RSVPServiceConfig contains configuration for the reservation service
type RSVPServiceConfig struct {
	MaxAttendees int
}

// NewRSVPService creates a new reservation service
func NewRSVPService(
	ledger repository.LedgerRepository,
	events repository.EventRepository,
	audit repository.AuditRepository,
	statsCache repository.StatsCacheRepository,
	cfg *RSVPServiceConfig,
) RSVPService {
	maxAttendees := domain.MaxAttendees
	if cfg != nil && cfg.MaxAttendees > 0 {
		maxAttendees = cfg.MaxAttendees
	}
	return &rsvpService{
		ledger:       ledger,
		events:       events,
		audit:        audit,
		statsCache:   statsCache,
		log:          logger.Get(),
		maxAttendees: maxAttendees,
	}
}

func requireAuth(requester *domain.Requester) error {
	if requester == nil || requester.UserID == "" {
		return domain.ErrUnauthenticated
	}
	return nil
}

// CreateRSVP reserves spots at an event for the requester
func (s *rsvpService) CreateRSVP(ctx context.Context, requester *domain.Requester, eventID string, req *dto.CreateRSVPRequest) (*dto.RSVPResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.create")
	defer span.End()

	if err := requireAuth(requester); err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if req == nil {
		span.SetStatus(codes.Error, "missing body")
		return nil, domain.ErrMissingFields
	}

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("user_id", requester.UserID),
		attribute.Int("attendees", len(req.Attendees)),
	)

	rsvp := &domain.RSVP{
		EventID:             eventID,
		UserID:              requester.UserID,
		FamilyName:          req.FamilyName,
		Email:               req.Email,
		Phone:               req.Phone,
		Attendees:           dto.ToAttendees(req.Attendees),
		DietaryRestrictions: req.DietaryRestrictions,
		SpecialNeeds:        req.SpecialNeeds,
		Notes:               req.Notes,
	}
	if err := rsvp.Validate(); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(rsvp.Attendees) > s.maxAttendees {
		span.SetStatus(codes.Error, "too many attendees")
		return nil, domain.ErrInvalidAttendees
	}

	start := time.Now()
	result, err := s.ledger.CreateRSVP(ctx, rsvp)
	metrics.RecordLedgerTx(ctx, "create", time.Since(start).Seconds())
	if err != nil {
		s.recordRejection(ctx, eventID, "create", err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.mirrorStats(ctx, eventID, result)
	metrics.RecordCreate(ctx, eventID, rsvp.AttendeeCount(), result.JustClosed)

	if result.JustClosed {
		s.log.Infof("Event %s reached capacity and closed at %d attendees", eventID, result.CachedCount)
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(result.RSVP), nil
}

// UpdateRSVP changes an existing reservation. A capacity rejection leaves
// the stored reservation untouched.
func (s *rsvpService) UpdateRSVP(ctx context.Context, requester *domain.Requester, rsvpID string, req *dto.UpdateRSVPRequest) (*dto.RSVPResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.update")
	defer span.End()

	if err := requireAuth(requester); err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}
	if rsvpID == "" {
		span.SetStatus(codes.Error, "invalid rsvp_id")
		return nil, domain.ErrInvalidRSVPID
	}
	if req == nil {
		span.SetStatus(codes.Error, "missing body")
		return nil, domain.ErrMissingFields
	}

	span.SetAttributes(attribute.String("rsvp_id", rsvpID))

	attendees := dto.ToAttendees(req.Attendees)
	if err := domain.ValidateAttendees(attendees); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if len(attendees) > s.maxAttendees {
		span.SetStatus(codes.Error, "too many attendees")
		return nil, domain.ErrInvalidAttendees
	}

	existing, err := s.ledger.GetRSVP(ctx, rsvpID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	if existing.UserID != requester.UserID {
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrNotOwner
	}

	update := &domain.RSVP{
		ID:                  rsvpID,
		EventID:             existing.EventID,
		FamilyName:          req.FamilyName,
		Email:               req.Email,
		Phone:               req.Phone,
		Attendees:           attendees,
		DietaryRestrictions: req.DietaryRestrictions,
		SpecialNeeds:        req.SpecialNeeds,
		Notes:               req.Notes,
	}

	start := time.Now()
	result, err := s.ledger.UpdateRSVP(ctx, update)
	metrics.RecordLedgerTx(ctx, "update", time.Since(start).Seconds())
	if err != nil {
		s.recordRejection(ctx, existing.EventID, "update", err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.mirrorStats(ctx, existing.EventID, result)
	metrics.RecordUpdate(ctx, existing.EventID, result.JustClosed)

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(result.RSVP), nil
}

// DeleteRSVP removes a reservation. The owner may always delete their own;
// others need the rsvp:delete:any capability, and such deletes are audited.
func (s *rsvpService) DeleteRSVP(ctx context.Context, requester *domain.Requester, rsvpID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.delete")
	defer span.End()

	if err := requireAuth(requester); err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return err
	}
	if rsvpID == "" {
		span.SetStatus(codes.Error, "invalid rsvp_id")
		return domain.ErrInvalidRSVPID
	}

	span.SetAttributes(attribute.String("rsvp_id", rsvpID))

	existing, err := s.ledger.GetRSVP(ctx, rsvpID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	if !requester.CanActOn(existing, domain.CapRSVPDeleteAny) {
		span.SetStatus(codes.Error, "not owner")
		return domain.ErrNotOwner
	}
	adminDelete := existing.UserID != requester.UserID

	start := time.Now()
	result, err := s.ledger.DeleteRSVP(ctx, rsvpID)
	metrics.RecordLedgerTx(ctx, "delete", time.Since(start).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	s.mirrorStats(ctx, existing.EventID, result)
	metrics.RecordDelete(ctx, existing.EventID)

	if adminDelete {
		s.appendAudit(ctx, &domain.AdminAction{
			ActionType:    domain.AuditRSVPDeleted,
			ActorID:       requester.UserID,
			ActorEmail:    requester.Email,
			RSVPID:        rsvpID,
			EventID:       existing.EventID,
			AttendeeCount: existing.AttendeeCount(),
			Success:       true,
		})
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// MarkPaymentCompleted records settled payment, making the reservation
// countable. Idempotent; callable by the owner.
func (s *rsvpService) MarkPaymentCompleted(ctx context.Context, requester *domain.Requester, rsvpID string) (*dto.RSVPResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.payment_completed")
	defer span.End()

	if err := requireAuth(requester); err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}
	if rsvpID == "" {
		span.SetStatus(codes.Error, "invalid rsvp_id")
		return nil, domain.ErrInvalidRSVPID
	}

	span.SetAttributes(attribute.String("rsvp_id", rsvpID))

	existing, err := s.ledger.GetRSVP(ctx, rsvpID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	// Strictly the owner: moderation capabilities do not settle someone
	// else's payment
	if existing.UserID != requester.UserID {
		span.SetStatus(codes.Error, "not owner")
		return nil, domain.ErrNotOwner
	}

	start := time.Now()
	result, err := s.ledger.MarkPaymentCompleted(ctx, rsvpID)
	metrics.RecordLedgerTx(ctx, "payment_completed", time.Since(start).Seconds())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.mirrorStats(ctx, existing.EventID, result)
	if result.JustClosed {
		s.log.Infof("Event %s reached capacity and closed at %d attendees after payment", existing.EventID, result.CachedCount)
	}

	span.SetStatus(codes.Ok, "")
	return dto.FromDomain(result.RSVP), nil
}

// GetCount returns the countable attendee total for one event, from a
// fresh recomputation
func (s *rsvpService) GetCount(ctx context.Context, eventID string) (*dto.CountResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.get_count")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}

	event, err := s.events.GetByID(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	count, err := s.ledger.CountEvent(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	resp := &dto.CountResponse{
		EventID:       eventID,
		AttendeeCount: count.AttendeeCount,
		RSVPCount:     count.RSVPCount,
		Closed:        event.Closed,
	}
	if event.HasCapacityLimit() {
		remaining := event.Remaining(count.AttendeeCount)
		resp.Remaining = &remaining
	}

	span.SetStatus(codes.Ok, "")
	return resp, nil
}

// GetBatchCounts returns countable totals for several events in one scan
func (s *rsvpService) GetBatchCounts(ctx context.Context, req *dto.BatchCountsRequest) (*dto.BatchCountsResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.batch_counts")
	defer span.End()

	if req == nil || len(req.EventIDs) == 0 {
		span.SetStatus(codes.Error, "missing event_ids")
		return nil, domain.ErrInvalidEventID
	}

	span.SetAttributes(attribute.Int("events", len(req.EventIDs)))

	counts, err := s.ledger.BatchCounts(ctx, req.EventIDs)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetStatus(codes.Ok, "")
	return &dto.BatchCountsResponse{Counts: counts}, nil
}

// ListOwnRSVPs returns the requester's reservations, newest first
func (s *rsvpService) ListOwnRSVPs(ctx context.Context, requester *domain.Requester) ([]*dto.RSVPResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.list_own")
	defer span.End()

	if err := requireAuth(requester); err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}

	rows, err := s.ledger.ListByUser(ctx, requester.UserID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]*dto.RSVPResponse, 0, len(rows))
	for _, row := range rows {
		resp := dto.FromDomain(row.RSVP)
		summary := row.Event
		resp.Event = &summary
		results = append(results, resp)
	}

	span.SetStatus(codes.Ok, "")
	return results, nil
}

// ListEventRSVPs returns all reservations for an event. Requires the
// rsvp:read:event capability.
func (s *rsvpService) ListEventRSVPs(ctx context.Context, requester *domain.Requester, eventID string) ([]*dto.RSVPResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.list_event")
	defer span.End()

	if err := requireAuth(requester); err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if !requester.Capabilities.Has(domain.CapRSVPReadEvent) {
		span.SetStatus(codes.Error, "permission denied")
		return nil, domain.ErrPermissionDenied
	}

	if _, err := s.events.GetByID(ctx, eventID); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	rsvps, err := s.ledger.ListByEvent(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	results := make([]*dto.RSVPResponse, 0, len(rsvps))
	for _, rsvp := range rsvps {
		results = append(results, dto.FromDomain(rsvp))
	}

	span.SetStatus(codes.Ok, "")
	return results, nil
}

// ReopenEvent clears a closed event's flag. Requires the event:reopen
// capability; the action is audited. Capacity still applies afterwards.
func (s *rsvpService) ReopenEvent(ctx context.Context, requester *domain.Requester, eventID string) (*dto.ReopenEventResponse, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.reopen_event")
	defer span.End()

	if err := requireAuth(requester); err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	if !requester.Capabilities.Has(domain.CapEventReopen) {
		span.SetStatus(codes.Error, "permission denied")
		return nil, domain.ErrPermissionDenied
	}

	event, err := s.ledger.ReopenEvent(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.appendAudit(ctx, &domain.AdminAction{
		ActionType: domain.AuditEventReopened,
		ActorID:    requester.UserID,
		ActorEmail: requester.Email,
		EventID:    eventID,
		Success:    true,
	})

	span.SetStatus(codes.Ok, "")
	return &dto.ReopenEventResponse{EventID: event.ID, Closed: event.Closed}, nil
}

// CreateEvent seeds an event descriptor. Requires the event:create
// capability; the action is audited.
func (s *rsvpService) CreateEvent(ctx context.Context, requester *domain.Requester, req *dto.CreateEventRequest) (*domain.Event, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.rsvp.create_event")
	defer span.End()

	if err := requireAuth(requester); err != nil {
		span.SetStatus(codes.Error, "unauthenticated")
		return nil, err
	}
	if !requester.Capabilities.Has(domain.CapEventCreate) {
		span.SetStatus(codes.Error, "permission denied")
		return nil, domain.ErrPermissionDenied
	}
	if req == nil || req.Title == "" {
		span.SetStatus(codes.Error, "missing title")
		return nil, domain.ErrMissingFields
	}

	event := &domain.Event{
		Title:           req.Title,
		Description:     req.Description,
		Location:        req.Location,
		MaxCapacity:     req.MaxCapacity,
		PaymentRequired: req.PaymentRequired,
		PaymentAmount:   req.PaymentAmount,
		PaymentCurrency: req.PaymentCurrency,
	}
	if req.StartAt != nil {
		event.StartAt = *req.StartAt
	}
	if req.EndAt != nil {
		event.EndAt = *req.EndAt
	}

	if err := s.events.Create(ctx, event); err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	s.appendAudit(ctx, &domain.AdminAction{
		ActionType: domain.AuditEventCreated,
		ActorID:    requester.UserID,
		ActorEmail: requester.Email,
		EventID:    event.ID,
		Success:    true,
	})

	span.SetStatus(codes.Ok, "")
	return event, nil
}

// mirrorStats mirrors the committed rollup to Redis. Failures are logged
// and dropped; the ledger row is the authority.
func (s *rsvpService) mirrorStats(ctx context.Context, eventID string, result *repository.LedgerResult) {
	if s.statsCache == nil {
		return
	}
	err := s.statsCache.SetStats(ctx, &domain.StatsRollup{
		EventID:       eventID,
		RSVPCount:     result.RSVPCount,
		AttendeeCount: result.CachedCount,
		UpdatedAt:     time.Now(),
	})
	if err != nil {
		s.log.Warnf("Failed to mirror stats rollup for event %s: %v", eventID, err)
	}
}

// appendAudit appends an audit record, fire-and-forget
func (s *rsvpService) appendAudit(ctx context.Context, action *domain.AdminAction) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Append(ctx, action); err != nil {
		s.log.Warnf("Failed to append %s audit record: %v", action.ActionType, err)
	}
}

func (s *rsvpService) recordRejection(ctx context.Context, eventID, operation string, err error) {
	switch {
	case domain.IsConflictError(err):
		metrics.RecordRejection(ctx, eventID, "conflict")
	case domain.IsValidationError(err):
		metrics.RecordRejection(ctx, eventID, "validation")
	default:
		metrics.RecordError(ctx, "internal", operation)
	}
}
