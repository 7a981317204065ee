package service

import (
	"context"
	"errors"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// InventoryQueryService serves read-only views of inventory and tickets.
// Results may be stale relative to in-flight reservations.
type InventoryQueryService interface {
	// RemainingSeats returns capacity_total - sold_count for an event
	RemainingSeats(ctx context.Context, eventID string) (*domain.Availability, error)

	// ListBuyerTickets lists a buyer's tickets, newest first
	ListBuyerTickets(ctx context.Context, buyerID string) ([]*domain.Ticket, error)

	// ListEventTickets lists an event's tickets for a member of the owning tenant
	ListEventTickets(ctx context.Context, tenantID, eventID string) ([]*domain.Ticket, error)

	// EventSummary returns capacity and door counts for a member of the owning tenant
	EventSummary(ctx context.Context, tenantID, eventID string) (*domain.EventSummary, error)
}

type inventoryQueryService struct {
	inventory repository.InventoryRepository
	events    repository.EventRepository
	tickets   repository.TicketRepository
}

// NewInventoryQueryService creates an inventory query service.
// inventory is the ledger; events is the authoritative event store.
func NewInventoryQueryService(
	inventory repository.InventoryRepository,
	events repository.EventRepository,
	tickets repository.TicketRepository,
) InventoryQueryService {
	return &inventoryQueryService{
		inventory: inventory,
		events:    events,
		tickets:   tickets,
	}
}

// RemainingSeats reads the ledger, falling back to the event store for events
// the ledger has not loaded yet
func (s *inventoryQueryService) RemainingSeats(ctx context.Context, eventID string) (*domain.Availability, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.remaining_seats")
	defer span.End()

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	span.SetAttributes(attribute.String("event_id", eventID))

	event, err := s.ledgerView(ctx, eventID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	availability := domain.AvailabilityOf(event)
	span.SetAttributes(attribute.Int64("remaining", availability.Remaining))
	span.SetStatus(codes.Ok, "")
	return availability, nil
}

func (s *inventoryQueryService) ledgerView(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	event, err := s.inventory.GetInventory(ctx, eventID)
	if errors.Is(err, domain.ErrEventNotFound) && s.events != nil {
		return s.events.GetEvent(ctx, eventID)
	}
	return event, err
}

// ListBuyerTickets lists a buyer's tickets
func (s *inventoryQueryService) ListBuyerTickets(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.list_buyer_tickets")
	defer span.End()

	if buyerID == "" {
		span.SetStatus(codes.Error, "invalid buyer_id")
		return nil, domain.ErrInvalidBuyerID
	}
	span.SetAttributes(attribute.String("buyer_id", buyerID))

	tickets, err := s.tickets.ListByBuyer(ctx, buyerID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

// ListEventTickets lists an event's tickets after checking tenant ownership
func (s *inventoryQueryService) ListEventTickets(ctx context.Context, tenantID, eventID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.list_event_tickets")
	defer span.End()

	if _, err := s.ownedEvent(ctx, tenantID, eventID); err != nil {
		return nil, failSpan(span, err)
	}
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("event_id", eventID),
	)

	tickets, err := s.tickets.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

// EventSummary combines the ledger's counters with the number of admitted tickets
func (s *inventoryQueryService) EventSummary(ctx context.Context, tenantID, eventID string) (*domain.EventSummary, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.query.event_summary")
	defer span.End()

	if _, err := s.ownedEvent(ctx, tenantID, eventID); err != nil {
		return nil, failSpan(span, err)
	}
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("event_id", eventID),
	)

	event, err := s.ledgerView(ctx, eventID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	checkedIn, err := s.tickets.CountCheckedIn(ctx, eventID)
	if err != nil {
		return nil, failSpan(span, err)
	}

	// Slots reserved but not admitted, including ones that never became tickets
	notCheckedIn := event.SoldCount - checkedIn
	if notCheckedIn < 0 {
		notCheckedIn = 0
	}

	span.SetStatus(codes.Ok, "")
	return &domain.EventSummary{
		Availability: *domain.AvailabilityOf(event),
		TenantID:     tenantID,
		CheckedIn:    checkedIn,
		NotCheckedIn: notCheckedIn,
	}, nil
}

func (s *inventoryQueryService) ownedEvent(ctx context.Context, tenantID, eventID string) (*domain.EventInventory, error) {
	if tenantID == "" {
		return nil, domain.ErrInvalidTenantID
	}
	if eventID == "" {
		return nil, domain.ErrInvalidEventID
	}
	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if !event.BelongsTo(tenantID) {
		return nil, domain.ErrTenantMismatch
	}
	return event, nil
}

// failSpan classifies err for the caller: domain errors pass through, storage errors are wrapped
func failSpan(span trace.Span, err error) error {
	if isDomainError(err) {
		span.SetStatus(codes.Error, err.Error())
		return err
	}
	telemetry.RecordError(span, err)
	return domain.Persistence(err)
}

// isDomainError reports whether err is a business outcome rather than a storage failure
func isDomainError(err error) bool {
	return domain.IsNotFoundError(err) ||
		domain.IsValidationError(err) ||
		domain.IsConflictError(err) ||
		domain.IsForbiddenError(err) ||
		domain.IsGoneError(err) ||
		domain.IsPersistenceError(err)
}
