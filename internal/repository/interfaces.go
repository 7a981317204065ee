package repository

import (
	"context"
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
)

// Error codes reported by ledger backends. The Redis Lua scripts return the same strings.
const (
	CodeEventNotFound    = "EVENT_NOT_FOUND"
	CodeEventDeleted     = "EVENT_DELETED"
	CodeSoldOut          = "SOLD_OUT"
	CodeAlreadyReleased  = "ALREADY_RELEASED"
	CodeNothingToRelease = "NOTHING_TO_RELEASE"
)

// IncrementResult is the outcome of a conditional sold count increment
type IncrementResult struct {
	Success       bool
	SoldCount     int64
	CapacityTotal int64
	ErrorCode     string
	ErrorMessage  string
}

// ReleaseResult is the outcome of giving a reserved slot back
type ReleaseResult struct {
	Success      bool
	SoldCount    int64
	ErrorCode    string
	ErrorMessage string
}

// InventoryRepository is the capacity ledger's storage port
type InventoryRepository interface {
	// ConditionalIncrement tests sold_count < capacity_total on a live event and increments
	// sold_count in the same atomic step. Business rejections come back in the result.
	ConditionalIncrement(ctx context.Context, eventID string) (*IncrementResult, error)

	// Release decrements sold_count once per reservation ID
	Release(ctx context.Context, eventID, reservationID string) (*ReleaseResult, error)

	// GetInventory returns the ledger's current view of an event
	GetInventory(ctx context.Context, eventID string) (*domain.EventInventory, error)
}

// LedgerSyncer is implemented by ledgers that cache event records outside the event store
type LedgerSyncer interface {
	// SyncEvent copies an event into the ledger unless it is already there.
	// A deleted flag is always propagated.
	SyncEvent(ctx context.Context, event *domain.EventInventory) error
}

// SoldCountSnapshot is one ledger counter copied back to the event store
type SoldCountSnapshot struct {
	EventID   string
	SoldCount int64
}

// DirtyTracker is implemented by ledgers that remember which events changed since the last snapshot
type DirtyTracker interface {
	// PopDirty removes up to limit changed events and returns their current counters
	PopDirty(ctx context.Context, limit int) ([]SoldCountSnapshot, error)
	// MarkDirty re-queues events, typically after a failed snapshot write
	MarkDirty(ctx context.Context, eventIDs ...string) error
}

// EventRepository stores event inventory records
type EventRepository interface {
	// CreateEvent inserts a new event; duplicates return domain.ErrEventAlreadyExists
	CreateEvent(ctx context.Context, event *domain.EventInventory) error

	// GetEvent gets an event by ID, including logically deleted ones
	GetEvent(ctx context.Context, eventID string) (*domain.EventInventory, error)

	// SoftDeleteEvent flags an event as deleted without removing it
	SoftDeleteEvent(ctx context.Context, eventID string) error

	// ListByTenant lists a tenant's events
	ListByTenant(ctx context.Context, tenantID string) ([]*domain.EventInventory, error)

	// UpdateSoldCount stores a ledger snapshot; values above capacity are rejected
	UpdateSoldCount(ctx context.Context, eventID string, soldCount int64) error
}

// TicketRepository stores issued tickets
type TicketRepository interface {
	// CreateTicket persists a new ticket. A second ticket for the same reservation
	// returns domain.ErrReservationConsumed.
	CreateTicket(ctx context.Context, ticket *domain.Ticket) error

	// ConditionalSetCheckedIn flips checked_in from false to true for a ticket bound to eventID.
	// It reports whether this call performed the transition.
	ConditionalSetCheckedIn(ctx context.Context, ticketID, eventID string, at time.Time) (bool, error)

	// GetTicket gets a ticket by ID
	GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error)

	// GetByReservation gets the ticket issued for a reservation
	GetByReservation(ctx context.Context, reservationID string) (*domain.Ticket, error)

	// ListByBuyer lists a buyer's tickets, newest first
	ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error)

	// ListByEvent lists an event's tickets, oldest first
	ListByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error)

	// CountCheckedIn counts the event's used tickets
	CountCheckedIn(ctx context.Context, eventID string) (int64, error)

	// CountIssued counts the reservations ever redeemed for the event, purged tickets included
	CountIssued(ctx context.Context, eventID string) (int64, error)

	// DeleteByBuyer removes every ticket of a buyer and returns what was removed
	DeleteByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error)
}

// OutboxRepository stores ticket events awaiting relay
type OutboxRepository interface {
	// GetPendingMessages gets pending messages to be published
	GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)

	// GetFailedMessages gets failed messages that can be retried
	GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error)

	// MarkAsPublished marks a message as successfully published
	MarkAsPublished(ctx context.Context, id string, at time.Time) error

	// MarkAsFailed marks a message as failed
	MarkAsFailed(ctx context.Context, id string, reason string) error

	// DeletePublished deletes published messages older than the cutoff
	DeletePublished(ctx context.Context, before time.Time) (int64, error)
}
