package domain

import (
	"time"

	"github.com/google/uuid"
)

// TicketEventType names a ticket lifecycle event published to Kafka
type TicketEventType string

const (
	TicketEventIssued    TicketEventType = "ticket.issued"
	TicketEventCheckedIn TicketEventType = "ticket.checked_in"
	TicketEventPurged    TicketEventType = "ticket.purged"
)

// DefaultTicketEventsTopic is the Kafka topic ticket events go to when none is configured
const DefaultTicketEventsTopic = "ticket-events"

// TicketEvent is the payload published for ticket lifecycle changes
type TicketEvent struct {
	ID            string          `json:"id"`
	Type          TicketEventType `json:"type"`
	TicketID      string          `json:"ticket_id"`
	ReservationID string          `json:"reservation_id,omitempty"`
	BuyerID       string          `json:"buyer_id"`
	EventID       string          `json:"event_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
}

// NewTicketEvent builds an event from the ticket's current state
func NewTicketEvent(eventType TicketEventType, t *Ticket, at time.Time) *TicketEvent {
	return &TicketEvent{
		ID:            uuid.New().String(),
		Type:          eventType,
		TicketID:      t.ID,
		ReservationID: t.ReservationID,
		BuyerID:       t.BuyerID,
		EventID:       t.EventID,
		OccurredAt:    at,
	}
}

// Key is the Kafka partition key
func (e *TicketEvent) Key() string {
	return e.EventID
}
