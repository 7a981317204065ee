package service

import (
	"context"

	"github.com/prohmpiriya/ticket-inventory/internal/clock"
	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// EventAdminService manages the inventory side of an event's lifecycle
type EventAdminService interface {
	// PublishEvent creates the inventory record of a newly published event
	PublishEvent(ctx context.Context, tenantID, eventID string, capacityTotal int64) (*domain.EventInventory, error)

	// DeleteEvent logically deletes a tenant's event. Tickets and sold count are kept.
	DeleteEvent(ctx context.Context, tenantID, eventID string) error

	// ListEvents lists a tenant's events
	ListEvents(ctx context.Context, tenantID string) ([]*domain.EventInventory, error)

	// PurgeBuyerTickets removes every ticket of a deleted buyer account
	PurgeBuyerTickets(ctx context.Context, buyerID string) (int, error)
}

// EventAdminConfig contains optional collaborators of the admin service
type EventAdminConfig struct {
	Clock     clock.Clock
	Logger    *logger.Logger
	Publisher TicketEventPublisher
}

type eventAdminService struct {
	events    repository.EventRepository
	tickets   repository.TicketRepository
	syncer    EventSyncer
	clock     clock.Clock
	log       *logger.Logger
	publisher TicketEventPublisher
}

// NewEventAdminService creates an event admin service. syncer may be nil.
func NewEventAdminService(
	events repository.EventRepository,
	tickets repository.TicketRepository,
	syncer EventSyncer,
	cfg *EventAdminConfig,
) EventAdminService {
	s := &eventAdminService{
		events:    events,
		tickets:   tickets,
		syncer:    syncer,
		clock:     clock.NewSystem(),
		log:       logger.Get(),
		publisher: NewNoOpEventPublisher(),
	}
	if cfg != nil {
		if cfg.Clock != nil {
			s.clock = cfg.Clock
		}
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
		if cfg.Publisher != nil {
			s.publisher = cfg.Publisher
		}
	}
	return s
}

// PublishEvent stores a fresh inventory record with sold count zero
func (s *eventAdminService) PublishEvent(ctx context.Context, tenantID, eventID string, capacityTotal int64) (*domain.EventInventory, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admin.publish_event")
	defer span.End()

	event, err := domain.NewEventInventory(eventID, tenantID, capacityTotal, s.clock.Now())
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("event_id", eventID),
		attribute.Int64("capacity_total", capacityTotal),
	)

	if err := s.events.CreateEvent(ctx, event); err != nil {
		return nil, failSpan(span, err)
	}

	// The ledger also loads events lazily on first reserve
	if s.syncer != nil {
		if err := s.syncer.SyncEvent(ctx, eventID); err != nil {
			s.log.Warn("failed to preload event into ledger",
				zap.String("event_id", eventID),
				zap.Error(err),
			)
		}
	}

	span.SetStatus(codes.Ok, "")
	return event, nil
}

// DeleteEvent flags the event deleted in the store and in the ledger
func (s *eventAdminService) DeleteEvent(ctx context.Context, tenantID, eventID string) error {
	ctx, span := telemetry.StartSpan(ctx, "service.admin.delete_event")
	defer span.End()

	if tenantID == "" {
		span.SetStatus(codes.Error, "invalid tenant_id")
		return domain.ErrInvalidTenantID
	}
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return domain.ErrInvalidEventID
	}
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("event_id", eventID),
	)

	event, err := s.events.GetEvent(ctx, eventID)
	if err != nil {
		return failSpan(span, err)
	}
	if !event.BelongsTo(tenantID) {
		span.SetStatus(codes.Error, "tenant mismatch")
		return domain.ErrTenantMismatch
	}

	if err := s.events.SoftDeleteEvent(ctx, eventID); err != nil {
		return failSpan(span, err)
	}

	// Until the ledger sees the flag it keeps selling; the delete is safe to repeat
	if s.syncer != nil {
		if err := s.syncer.SyncEvent(ctx, eventID); err != nil {
			s.log.Error("failed to propagate event deletion to ledger",
				zap.String("event_id", eventID),
				zap.Error(err),
			)
			return failSpan(span, err)
		}
	}

	s.log.Info("event deleted",
		zap.String("tenant_id", tenantID),
		zap.String("event_id", eventID),
		zap.Int64("sold_count", event.SoldCount),
	)
	span.SetStatus(codes.Ok, "")
	return nil
}

// ListEvents lists a tenant's events, deleted ones included
func (s *eventAdminService) ListEvents(ctx context.Context, tenantID string) ([]*domain.EventInventory, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admin.list_events")
	defer span.End()

	if tenantID == "" {
		span.SetStatus(codes.Error, "invalid tenant_id")
		return nil, domain.ErrInvalidTenantID
	}
	span.SetAttributes(attribute.String("tenant_id", tenantID))

	events, err := s.events.ListByTenant(ctx, tenantID)
	if err != nil {
		return nil, failSpan(span, err)
	}
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// PurgeBuyerTickets deletes a buyer's tickets. Sold counts are left alone.
func (s *eventAdminService) PurgeBuyerTickets(ctx context.Context, buyerID string) (int, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.admin.purge_buyer_tickets")
	defer span.End()

	if buyerID == "" {
		span.SetStatus(codes.Error, "invalid buyer_id")
		return 0, domain.ErrInvalidBuyerID
	}
	span.SetAttributes(attribute.String("buyer_id", buyerID))

	purged, err := s.tickets.DeleteByBuyer(ctx, buyerID)
	if err != nil {
		return 0, failSpan(span, err)
	}

	now := s.clock.Now()
	for _, ticket := range purged {
		if err := s.publisher.Publish(ctx, domain.NewTicketEvent(domain.TicketEventPurged, ticket, now)); err != nil {
			s.log.Warn("failed to publish ticket purged event",
				zap.String("ticket_id", ticket.ID),
				zap.Error(err),
			)
		}
	}

	s.log.Info("buyer tickets purged",
		zap.String("buyer_id", buyerID),
		zap.Int("count", len(purged)),
	)
	span.SetAttributes(attribute.Int("count", len(purged)))
	span.SetStatus(codes.Ok, "")
	return len(purged), nil
}
