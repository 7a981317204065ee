package domain

import (
	"time"
)

// EventInventory is the capacity record of a published event.
// SoldCount only moves through the capacity ledger.
type EventInventory struct {
	ID            string    `json:"id"`
	TenantID      string    `json:"tenant_id"`
	CapacityTotal int64     `json:"capacity_total"`
	SoldCount     int64     `json:"sold_count"`
	Deleted       bool      `json:"deleted"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// NewEventInventory creates an inventory record for a freshly published event
func NewEventInventory(id, tenantID string, capacityTotal int64, now time.Time) (*EventInventory, error) {
	e := &EventInventory{
		ID:            id,
		TenantID:      tenantID,
		CapacityTotal: capacityTotal,
		SoldCount:     0,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := e.Validate(); err != nil {
		return nil, err
	}
	return e, nil
}

// Validate checks the inventory record against its invariants
func (e *EventInventory) Validate() error {
	if e.ID == "" {
		return ErrInvalidEventID
	}
	if e.TenantID == "" {
		return ErrInvalidTenantID
	}
	if e.CapacityTotal < 1 {
		return ErrInvalidCapacity
	}
	if e.SoldCount < 0 || e.SoldCount > e.CapacityTotal {
		return ErrInvalidSoldCount
	}
	return nil
}

// Remaining returns the number of seats that can still be reserved
func (e *EventInventory) Remaining() int64 {
	if e.Deleted {
		return 0
	}
	remaining := e.CapacityTotal - e.SoldCount
	if remaining < 0 {
		return 0
	}
	return remaining
}

// IsSoldOut reports whether every seat has been reserved
func (e *EventInventory) IsSoldOut() bool {
	return e.SoldCount >= e.CapacityTotal
}

// BelongsTo reports whether the event is owned by the tenant
func (e *EventInventory) BelongsTo(tenantID string) bool {
	return e.TenantID == tenantID
}

// Availability is a read-only projection of remaining capacity
type Availability struct {
	EventID       string `json:"event_id"`
	CapacityTotal int64  `json:"capacity_total"`
	SoldCount     int64  `json:"sold_count"`
	Remaining     int64  `json:"remaining"`
	SoldOut       bool   `json:"sold_out"`
	Deleted       bool   `json:"deleted"`
}

// AvailabilityOf builds an availability projection from an inventory snapshot
func AvailabilityOf(e *EventInventory) *Availability {
	return &Availability{
		EventID:       e.ID,
		CapacityTotal: e.CapacityTotal,
		SoldCount:     e.SoldCount,
		Remaining:     e.Remaining(),
		SoldOut:       e.IsSoldOut(),
		Deleted:       e.Deleted,
	}
}

// EventSummary is the tenant staff view of an event's door activity
type EventSummary struct {
	Availability
	TenantID     string `json:"tenant_id"`
	CheckedIn    int64  `json:"checked_in"`
	NotCheckedIn int64  `json:"not_checked_in"`
}
