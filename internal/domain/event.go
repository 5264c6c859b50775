package domain

import (
	"time"
)

// Event represents an event whose reservations this service manages. The
// descriptor fields come from the external event-management system; only
// Closed and CachedCount are mutated here, and only by the ledger.
type Event struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Description     string    `json:"description"`
	Location        string    `json:"location"`
	StartAt         time.Time `json:"start_at"`
	EndAt           time.Time `json:"end_at"`
	MaxCapacity     *int      `json:"max_capacity"` // nil = unlimited
	Closed          bool      `json:"closed"`
	CachedCount     int       `json:"cached_count"`
	PaymentRequired bool      `json:"payment_required"`
	PaymentAmount   int64     `json:"payment_amount"` // minor units
	PaymentCurrency string    `json:"payment_currency"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// HasCapacityLimit reports whether the event enforces a capacity
func (e *Event) HasCapacityLimit() bool {
	return e.MaxCapacity != nil && *e.MaxCapacity > 0
}

// Remaining returns the number of open spots given the countable total.
// Events without a capacity limit report -1.
func (e *Event) Remaining(countableTotal int) int {
	if !e.HasCapacityLimit() {
		return -1
	}
	remaining := *e.MaxCapacity - countableTotal
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Fits reports whether adding n countable attendees to the given total
// stays within capacity
func (e *Event) Fits(countableTotal, n int) bool {
	if !e.HasCapacityLimit() {
		return true
	}
	return countableTotal+n <= *e.MaxCapacity
}

// ShouldClose reports whether the event reached capacity with the given
// count. Closing is monotonic: once closed the event never auto-reopens.
func (e *Event) ShouldClose(count int) bool {
	return e.HasCapacityLimit() && count >= *e.MaxCapacity
}

// EventSummary is the slim event view attached to reservation listings
type EventSummary struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Location string    `json:"location"`
	StartAt  time.Time `json:"start_at"`
	Closed   bool      `json:"closed"`
}

// Summary returns the slim listing view of the event
func (e *Event) Summary() EventSummary {
	return EventSummary{
		ID:       e.ID,
		Title:    e.Title,
		Location: e.Location,
		StartAt:  e.StartAt,
		Closed:   e.Closed,
	}
}
