package domain

import (
	"strings"
	"time"
)

// PaymentStatus tracks whether a reservation has settled payment with the
// external payment collaborator
type PaymentStatus string

const (
	PaymentNotRequired PaymentStatus = "not_required"
	PaymentPending     PaymentStatus = "pending"
	PaymentCompleted   PaymentStatus = "completed"
)

// IsValid checks if the status is a valid PaymentStatus
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentNotRequired, PaymentPending, PaymentCompleted:
		return true
	}
	return false
}

func (s PaymentStatus) String() string {
	return string(s)
}

// Attendee bounds per reservation
const (
	MinAttendees = 1
	MaxAttendees = 20
)

// Attendee is one named person on a reservation
type Attendee struct {
	Name    string `json:"name"`
	Age     int    `json:"age,omitempty"`
	IsAdult bool   `json:"is_adult"`
}

// RSVP is one family's reservation against an event
type RSVP struct {
	ID                  string        `json:"id"`
	EventID             string        `json:"event_id"`
	UserID              string        `json:"user_id"`
	FamilyName          string        `json:"family_name"`
	Email               string        `json:"email"`
	Phone               string        `json:"phone,omitempty"`
	Attendees           []Attendee    `json:"attendees"`
	DietaryRestrictions string        `json:"dietary_restrictions,omitempty"`
	SpecialNeeds        string        `json:"special_needs,omitempty"`
	Notes               string        `json:"notes,omitempty"`
	PaymentStatus       PaymentStatus `json:"payment_status"`
	CreatedAt           time.Time     `json:"created_at"`
	UpdatedAt           time.Time     `json:"updated_at"`
}

// AttendeeCount returns how many people this reservation represents.
// A reservation with no attendee list still counts as one person.
func (r *RSVP) AttendeeCount() int {
	if len(r.Attendees) == 0 {
		return 1
	}
	return len(r.Attendees)
}

// Countable reports whether this reservation counts against capacity for
// the given event: free events always count, paid events only once
// payment has completed.
func (r *RSVP) Countable(paymentRequired bool) bool {
	if !paymentRequired {
		return true
	}
	return r.PaymentStatus == PaymentCompleted
}

// Validate checks the reservation fields a caller controls
func (r *RSVP) Validate() error {
	if r.EventID == "" {
		return ErrInvalidEventID
	}
	if r.UserID == "" {
		return ErrInvalidUserID
	}
	if strings.TrimSpace(r.FamilyName) == "" || strings.TrimSpace(r.Email) == "" {
		return ErrMissingFields
	}
	if err := ValidateAttendees(r.Attendees); err != nil {
		return err
	}
	return nil
}

// ValidateAttendees enforces the attendee list bounds
func ValidateAttendees(attendees []Attendee) error {
	if len(attendees) < MinAttendees || len(attendees) > MaxAttendees {
		return ErrInvalidAttendees
	}
	for _, a := range attendees {
		if strings.TrimSpace(a.Name) == "" {
			return ErrMissingFields
		}
	}
	return nil
}

// InitialPaymentStatus returns the payment status a new reservation starts
// with for an event
func InitialPaymentStatus(paymentRequired bool) PaymentStatus {
	if paymentRequired {
		return PaymentPending
	}
	return PaymentNotRequired
}
