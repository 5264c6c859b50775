package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/packportal/rsvp-service/internal/domain"
	"github.com/packportal/rsvp-service/internal/dto"
	"github.com/packportal/rsvp-service/internal/service"
	"github.com/packportal/rsvp-service/pkg/middleware"
	"github.com/packportal/rsvp-service/pkg/response"
	"github.com/packportal/rsvp-service/pkg/telemetry"
)

// RSVPHandler handles reservation HTTP requests
type RSVPHandler struct {
	rsvpService service.RSVPService
}

// NewRSVPHandler creates a new reservation handler
func NewRSVPHandler(rsvpService service.RSVPService) *RSVPHandler {
	return &RSVPHandler{rsvpService: rsvpService}
}

// requesterFrom builds the verified caller identity from the auth
// middleware's claims. Returns nil when the request is unauthenticated.
func requesterFrom(c *gin.Context) *domain.Requester {
	claims, ok := middleware.GetClaims(c)
	if !ok || claims.UserID == "" {
		return nil
	}
	return &domain.Requester{
		UserID:       claims.UserID,
		Email:        claims.Email,
		Capabilities: domain.ResolveCapabilities(claims.Role, claims.Admin, claims.Permissions),
	}
}

// CreateRSVP handles POST /events/:event_id/rsvps
func (h *RSVPHandler) CreateRSVP(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.create")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	requester := requesterFrom(c)
	if requester == nil {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	eventID := c.Param("event_id")
	var req dto.CreateRSVPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("user_id", requester.UserID),
		attribute.Int("attendees", len(req.Attendees)),
	)

	result, err := h.rsvpService.CreateRSVP(ctx, requester, eventID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("rsvp_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// UpdateRSVP handles PUT /rsvps/:id
func (h *RSVPHandler) UpdateRSVP(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.update")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	requester := requesterFrom(c)
	if requester == nil {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	rsvpID := c.Param("id")
	var req dto.UpdateRSVPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err.Error())
		return
	}

	span.SetAttributes(
		attribute.String("rsvp_id", rsvpID),
		attribute.String("user_id", requester.UserID),
	)

	result, err := h.rsvpService.UpdateRSVP(ctx, requester, rsvpID, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// DeleteRSVP handles DELETE /rsvps/:id
func (h *RSVPHandler) DeleteRSVP(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.delete")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	requester := requesterFrom(c)
	if requester == nil {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	rsvpID := c.Param("id")
	span.SetAttributes(
		attribute.String("rsvp_id", rsvpID),
		attribute.String("user_id", requester.UserID),
	)

	if err := h.rsvpService.DeleteRSVP(ctx, requester, rsvpID); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, gin.H{"deleted": true})
}

// MarkPaymentCompleted handles POST /rsvps/:id/payment-completed
func (h *RSVPHandler) MarkPaymentCompleted(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.payment_completed")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	requester := requesterFrom(c)
	if requester == nil {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	rsvpID := c.Param("id")
	span.SetAttributes(
		attribute.String("rsvp_id", rsvpID),
		attribute.String("user_id", requester.UserID),
	)

	result, err := h.rsvpService.MarkPaymentCompleted(ctx, requester, rsvpID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetCount handles GET /events/:event_id/count
func (h *RSVPHandler) GetCount(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.count")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	eventID := c.Param("event_id")
	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := h.rsvpService.GetCount(ctx, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// GetBatchCounts handles POST /events/counts
func (h *RSVPHandler) GetBatchCounts(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.batch_counts")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	var req dto.BatchCountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err.Error())
		return
	}

	span.SetAttributes(attribute.Int("events", len(req.EventIDs)))

	result, err := h.rsvpService.GetBatchCounts(ctx, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// ListOwnRSVPs handles GET /rsvps
func (h *RSVPHandler) ListOwnRSVPs(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.list_own")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	requester := requesterFrom(c)
	if requester == nil {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	span.SetAttributes(attribute.String("user_id", requester.UserID))

	result, err := h.rsvpService.ListOwnRSVPs(ctx, requester)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.SuccessWithMeta(c, result, gin.H{"count": len(result)})
}

// ListEventRSVPs handles GET /events/:event_id/rsvps
func (h *RSVPHandler) ListEventRSVPs(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.list_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	requester := requesterFrom(c)
	if requester == nil {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	eventID := c.Param("event_id")
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("user_id", requester.UserID),
	)

	result, err := h.rsvpService.ListEventRSVPs(ctx, requester, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.SuccessWithMeta(c, result, gin.H{"count": len(result)})
}

// ReopenEvent handles POST /admin/events/:event_id/reopen
func (h *RSVPHandler) ReopenEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.reopen_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	requester := requesterFrom(c)
	if requester == nil {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	eventID := c.Param("event_id")
	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("user_id", requester.UserID),
	)

	result, err := h.rsvpService.ReopenEvent(ctx, requester, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, result)
}

// CreateEvent handles POST /admin/events
func (h *RSVPHandler) CreateEvent(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.rsvp.create_event")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	requester := requesterFrom(c)
	if requester == nil {
		span.SetStatus(codes.Error, "unauthorized")
		response.Unauthorized(c, "authentication required")
		return
	}

	var req dto.CreateEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid request")
		response.Error(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid request body", err.Error())
		return
	}

	span.SetAttributes(attribute.String("user_id", requester.UserID))

	result, err := h.rsvpService.CreateEvent(ctx, requester, &req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		h.handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("event_id", result.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, result)
}

// handleError converts domain errors to HTTP responses
func (h *RSVPHandler) handleError(c *gin.Context, err error) {
	switch {
	case domain.IsNotFoundError(err):
		response.NotFound(c, err.Error())
	case errors.Is(err, domain.ErrUnauthenticated):
		response.Unauthorized(c, err.Error())
	case errors.Is(err, domain.ErrAlreadyReserved):
		response.Conflict(c, "ALREADY_RESERVED", err.Error())
	case errors.Is(err, domain.ErrEventFull):
		response.Conflict(c, "EVENT_FULL", err.Error())
	case errors.Is(err, domain.ErrEventClosed):
		response.Error(c, http.StatusPreconditionFailed, "EVENT_CLOSED", err.Error(), "")
	case errors.Is(err, domain.ErrEventNotClosed):
		response.Conflict(c, "EVENT_NOT_CLOSED", err.Error())
	case domain.IsPermissionError(err):
		response.Forbidden(c, err.Error())
	case domain.IsValidationError(err):
		response.BadRequest(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
