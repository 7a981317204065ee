package service

import (
	"context"
	"fmt"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/singleflight"
)

// EventSyncer copies event records from the event store into a ledger that caches them
type EventSyncer interface {
	// SyncEvent loads the event and hands it to the ledger. Concurrent calls for
	// the same event share one load.
	SyncEvent(ctx context.Context, eventID string) error
}

type eventSyncer struct {
	events  repository.EventRepository
	tickets repository.TicketRepository
	ledger  repository.LedgerSyncer
	group   singleflight.Group
}

// NewEventSyncer creates a syncer, or returns nil when the ledger keeps no copy of events
func NewEventSyncer(events repository.EventRepository, tickets repository.TicketRepository, inventory repository.InventoryRepository) EventSyncer {
	ledger, ok := inventory.(repository.LedgerSyncer)
	if !ok || events == nil || tickets == nil {
		return nil
	}
	return &eventSyncer{events: events, tickets: tickets, ledger: ledger}
}

func (s *eventSyncer) SyncEvent(ctx context.Context, eventID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.ledger.sync_event")
	defer span.End()
	span.SetAttributes(attribute.String("event_id", eventID))

	_, err, shared := s.group.Do(eventID, func() (interface{}, error) {
		event, err := s.seed(ctx, eventID)
		if err != nil {
			return nil, err
		}
		if err := s.ledger.SyncEvent(ctx, event); err != nil {
			return nil, fmt.Errorf("failed to sync event %s: %w", eventID, err)
		}
		return nil, nil
	})
	span.SetAttributes(attribute.Bool("shared", shared))
	if err != nil && !domain.IsNotFoundError(err) {
		telemetry.RecordError(span, err)
	}
	return err
}

// seed builds the ledger copy of an event. The stored sold_count is only the last
// snapshot, so the count of redeemed reservations is used when it is higher.
func (s *eventSyncer) seed(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	issued, err := s.tickets.CountIssued(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to count issued tickets for %s: %w", eventID, err)
	}

	seeded := *event
	if issued > seeded.SoldCount {
		seeded.SoldCount = min(issued, seeded.CapacityTotal)
	}
	return &seeded, nil
}
