package domain

import (
	"time"
)

// Ticket is an admission right issued against a reservation.
// EventID and BuyerID never change after issuance; CheckedIn only goes false -> true.
type Ticket struct {
	ID            string     `json:"id"`
	ReservationID string     `json:"reservation_id"`
	BuyerID       string     `json:"buyer_id"`
	EventID       string     `json:"event_id"`
	CheckedIn     bool       `json:"checked_in"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty"`
	IssuedAt      time.Time  `json:"issued_at"`
}

// NewTicket creates an unused ticket bound to buyer and event
func NewTicket(id string, token *ReservationToken, buyerID string, issuedAt time.Time) *Ticket {
	return &Ticket{
		ID:            id,
		ReservationID: token.ID,
		BuyerID:       buyerID,
		EventID:       token.EventID,
		CheckedIn:     false,
		IssuedAt:      issuedAt,
	}
}

// State returns the check-in state of the ticket
func (t *Ticket) State() CheckInState {
	if t.CheckedIn {
		return CheckInStateUsed
	}
	return CheckInStateUnused
}

// CheckInState is the two-state machine of a ticket at the door
type CheckInState string

const (
	CheckInStateUnused CheckInState = "unused"
	CheckInStateUsed   CheckInState = "used"
)

// String returns the string representation of CheckInState
func (s CheckInState) String() string {
	return string(s)
}

// Attendee is what door staff see after a successful scan
type Attendee struct {
	TicketID    string    `json:"ticket_id"`
	BuyerID     string    `json:"buyer_id"`
	EventID     string    `json:"event_id"`
	CheckedInAt time.Time `json:"checked_in_at"`
}
