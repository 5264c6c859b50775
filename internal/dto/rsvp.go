package dto

import (
	"time"

	"github.com/packportal/rsvp-service/internal/domain"
)

// AttendeeInput is one attendee in a create/update request
type AttendeeInput struct {
	Name    string `json:"name" binding:"required"`
	Age     int    `json:"age,omitempty"`
	IsAdult bool   `json:"is_adult"`
}

// CreateRSVPRequest represents a request to reserve spots at an event
type CreateRSVPRequest struct {
	FamilyName          string          `json:"family_name" binding:"required"`
	Email               string          `json:"email" binding:"required,email"`
	Phone               string          `json:"phone,omitempty"`
	Attendees           []AttendeeInput `json:"attendees" binding:"required"`
	DietaryRestrictions string          `json:"dietary_restrictions,omitempty"`
	SpecialNeeds        string          `json:"special_needs,omitempty"`
	Notes               string          `json:"notes,omitempty"`
}

// UpdateRSVPRequest represents a request to change an existing reservation
type UpdateRSVPRequest struct {
	FamilyName          string          `json:"family_name,omitempty"`
	Email               string          `json:"email,omitempty"`
	Phone               string          `json:"phone,omitempty"`
	Attendees           []AttendeeInput `json:"attendees" binding:"required"`
	DietaryRestrictions string          `json:"dietary_restrictions,omitempty"`
	SpecialNeeds        string          `json:"special_needs,omitempty"`
	Notes               string          `json:"notes,omitempty"`
}

// RSVPResponse represents a reservation in API responses
type RSVPResponse struct {
	ID                  string                `json:"id"`
	EventID             string                `json:"event_id"`
	UserID              string                `json:"user_id"`
	FamilyName          string                `json:"family_name"`
	Email               string                `json:"email"`
	Phone               string                `json:"phone,omitempty"`
	Attendees           []domain.Attendee     `json:"attendees"`
	DietaryRestrictions string                `json:"dietary_restrictions,omitempty"`
	SpecialNeeds        string                `json:"special_needs,omitempty"`
	Notes               string                `json:"notes,omitempty"`
	PaymentStatus       string                `json:"payment_status"`
	Event               *domain.EventSummary  `json:"event,omitempty"`
	CreatedAt           time.Time             `json:"created_at"`
	UpdatedAt           time.Time             `json:"updated_at"`
}

// CountResponse represents a countable-attendee total for one event
type CountResponse struct {
	EventID       string `json:"event_id"`
	AttendeeCount int    `json:"attendee_count"`
	RSVPCount     int    `json:"rsvp_count"`
	Remaining     *int   `json:"remaining,omitempty"` // absent when unlimited
	Closed        bool   `json:"closed"`
}

// BatchCountsRequest asks for countable totals across several events
type BatchCountsRequest struct {
	EventIDs []string `json:"event_ids" binding:"required,min=1,max=100"`
}

// BatchCountsResponse maps event id to its countable total
type BatchCountsResponse struct {
	Counts map[string]int `json:"counts"`
}

// ReopenEventResponse confirms an admin reopen
type ReopenEventResponse struct {
	EventID string `json:"event_id"`
	Closed  bool   `json:"closed"`
}

// CreateEventRequest seeds an event descriptor (admin)
type CreateEventRequest struct {
	Title           string     `json:"title" binding:"required"`
	Description     string     `json:"description,omitempty"`
	Location        string     `json:"location,omitempty"`
	StartAt         *time.Time `json:"start_at,omitempty"`
	EndAt           *time.Time `json:"end_at,omitempty"`
	MaxCapacity     *int       `json:"max_capacity,omitempty"`
	PaymentRequired bool       `json:"payment_required,omitempty"`
	PaymentAmount   int64      `json:"payment_amount,omitempty"`
	PaymentCurrency string     `json:"payment_currency,omitempty"`
}

// FromDomain converts a domain RSVP to its API response shape
func FromDomain(r *domain.RSVP) *RSVPResponse {
	return &RSVPResponse{
		ID:                  r.ID,
		EventID:             r.EventID,
		UserID:              r.UserID,
		FamilyName:          r.FamilyName,
		Email:               r.Email,
		Phone:               r.Phone,
		Attendees:           r.Attendees,
		DietaryRestrictions: r.DietaryRestrictions,
		SpecialNeeds:        r.SpecialNeeds,
		Notes:               r.Notes,
		PaymentStatus:       string(r.PaymentStatus),
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
	}
}

// ToAttendees converts request attendees to their domain shape
func ToAttendees(in []AttendeeInput) []domain.Attendee {
	out := make([]domain.Attendee, 0, len(in))
	for _, a := range in {
		out = append(out, domain.Attendee{
			Name:    a.Name,
			Age:     a.Age,
			IsAdult: a.IsAdult,
		})
	}
	return out
}
