package domain

import "time"

// StatsRollup is the display-only aggregate for an event. It is written
// through in the same transaction as the reservation change but never
// consulted for capacity decisions.
type StatsRollup struct {
	EventID       string    `json:"event_id"`
	RSVPCount     int       `json:"rsvp_count"`
	AttendeeCount int       `json:"attendee_count"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// EventCount is the authoritative countable total for one event, produced
// by a fresh scan of the reservation rows
type EventCount struct {
	EventID       string `json:"event_id"`
	AttendeeCount int    `json:"attendee_count"`
	RSVPCount     int    `json:"rsvp_count"`
}
