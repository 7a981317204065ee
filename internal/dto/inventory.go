package dto

import (
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
)

// PublishEventRequest represents request to open inventory for an event
type PublishEventRequest struct {
	EventID       string `json:"event_id" binding:"required"`
	CapacityTotal int64  `json:"capacity_total" binding:"required,min=1"`
}

// CheckInRequest represents a ticket scan at the door
type CheckInRequest struct {
	TicketID string `json:"ticket_id" binding:"required"`
}

// EventResponse represents an event's inventory record
type EventResponse struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	CapacityTotal int64     `json:"capacity_total"`
	SoldCount     int64     `json:"sold_count"`
	Remaining     int64     `json:"remaining"`
	Deleted       bool      `json:"deleted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TicketResponse represents a ticket in API response
type TicketResponse struct {
	ID            string     `json:"id"`
	ReservationID string     `json:"reservation_id"`
	BuyerID       string     `json:"buyer_id"`
	EventID       string     `json:"event_id"`
	State         string     `json:"state"`
	CheckedInAt   *time.Time `json:"checked_in_at,omitempty"`
	IssuedAt      time.Time  `json:"issued_at"`
}

// PurgeResponse reports how many tickets a buyer purge removed
type PurgeResponse struct {
	BuyerID string `json:"buyer_id"`
	Purged  int    `json:"purged"`
}

// HealthResponse reports the state of the service and its backends
type HealthResponse struct {
	Status   string            `json:"status"`
	Service  string            `json:"service"`
	Backends map[string]string `json:"backends,omitempty"`
}

// FromEvent converts an inventory record to its response shape
func FromEvent(e *domain.EventInventory) *EventResponse {
	return &EventResponse{
		ID:            e.ID,
		TenantID:      e.TenantID,
		CapacityTotal: e.CapacityTotal,
		SoldCount:     e.SoldCount,
		Remaining:     e.Remaining(),
		Deleted:       e.Deleted,
		CreatedAt:     e.CreatedAt,
		UpdatedAt:     e.UpdatedAt,
	}
}

// FromEvents converts a list of inventory records
func FromEvents(events []*domain.EventInventory) []*EventResponse {
	out := make([]*EventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, FromEvent(e))
	}
	return out
}

// FromTicket converts a ticket to its response shape
func FromTicket(t *domain.Ticket) *TicketResponse {
	return &TicketResponse{
		ID:            t.ID,
		ReservationID: t.ReservationID,
		BuyerID:       t.BuyerID,
		EventID:       t.EventID,
		State:         t.State().String(),
		CheckedInAt:   t.CheckedInAt,
		IssuedAt:      t.IssuedAt,
	}
}

// FromTickets converts a list of tickets
func FromTickets(tickets []*domain.Ticket) []*TicketResponse {
	out := make([]*TicketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, FromTicket(t))
	}
	return out
}
