package domain

import "time"

// Audit action types
const (
	AuditRSVPDeleted   = "rsvp_deleted"
	AuditEventReopened = "event_reopened"
	AuditEventCreated  = "event_created"
)

// AdminAction is a fire-and-forget audit record for privileged operations.
// A failed append is logged and dropped; it never blocks the operation.
type AdminAction struct {
	ID            string    `json:"id"`
	ActionType    string    `json:"action_type"`
	ActorID       string    `json:"actor_id"`
	ActorEmail    string    `json:"actor_email,omitempty"`
	RSVPID        string    `json:"rsvp_id,omitempty"`
	EventID       string    `json:"event_id,omitempty"`
	AttendeeCount int       `json:"attendee_count,omitempty"`
	Success       bool      `json:"success"`
	Detail        string    `json:"detail,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}
