package domain

import (
	"time"
)

// ReservationToken proves that one capacity slot was claimed for an event.
// The ticket issuer consumes it exactly once.
type ReservationToken struct {
	ID         string    `json:"id"`
	EventID    string    `json:"event_id"`
	Slot       int64     `json:"slot"` // sold count right after the claim
	ReservedAt time.Time `json:"reserved_at"`
}

// BoundTo reports whether the token was issued for the given event
func (t *ReservationToken) BoundTo(eventID string) bool {
	return t != nil && t.ID != "" && t.EventID != "" && t.EventID == eventID
}
