package domain

import (
	"errors"
	"fmt"
)

// Domain errors
var (
	// Identity errors
	ErrUnauthenticated  = errors.New("authentication required")
	ErrNotOwner         = errors.New("reservation belongs to another user")
	ErrPermissionDenied = errors.New("permission denied")

	// Validation errors
	ErrInvalidEventID   = errors.New("invalid event id")
	ErrInvalidRSVPID    = errors.New("invalid rsvp id")
	ErrInvalidUserID    = errors.New("invalid user id")
	ErrMissingFields    = errors.New("missing required fields")
	ErrInvalidAttendees = errors.New("Must have 1-20 attendees")

	// Lookup errors
	ErrEventNotFound = errors.New("event not found")
	ErrRSVPNotFound  = errors.New("rsvp not found")

	// Capacity and state errors
	ErrAlreadyReserved = errors.New("user already has a reservation for this event")
	ErrEventClosed     = errors.New("event is closed for reservations")
	ErrEventFull       = errors.New("event is at capacity")
	ErrEventNotClosed  = errors.New("event is not closed")
)

// CapacityError reports a capacity rejection with the exact number of spots
// that remained at decision time. Unwraps to ErrEventFull.
type CapacityError struct {
	Remaining int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("Event is at capacity. Only %d spots remaining.", e.Remaining)
}

func (e *CapacityError) Unwrap() error {
	return ErrEventFull
}

// NewCapacityError creates a capacity rejection for the given remaining spots
func NewCapacityError(remaining int) error {
	if remaining < 0 {
		remaining = 0
	}
	return &CapacityError{Remaining: remaining}
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrRSVPNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidRSVPID) ||
		errors.Is(err, ErrInvalidUserID) ||
		errors.Is(err, ErrMissingFields) ||
		errors.Is(err, ErrInvalidAttendees)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrAlreadyReserved) ||
		errors.Is(err, ErrEventFull)
}

// IsPermissionError checks if the error is a permission error
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrNotOwner) ||
		errors.Is(err, ErrPermissionDenied)
}
