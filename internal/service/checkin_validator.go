package service

import (
	"context"
	"errors"
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/clock"
	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/metrics"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// CheckInValidator admits ticket holders at the door
type CheckInValidator interface {
	// Validate marks the ticket used for the requesting event on behalf of the
	// tenant that owns that event. At most one call per ticket ever succeeds.
	Validate(ctx context.Context, tenantID, ticketID, requestingEventID string) (*domain.Attendee, error)
}

// CheckInValidatorConfig contains optional collaborators of the validator
type CheckInValidatorConfig struct {
	Clock     clock.Clock
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
	Publisher TicketEventPublisher
}

type checkInValidator struct {
	events    repository.EventRepository
	tickets   repository.TicketRepository
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       *logger.Logger
	publisher TicketEventPublisher
}

// NewCheckInValidator creates a check-in validator
func NewCheckInValidator(events repository.EventRepository, tickets repository.TicketRepository, cfg *CheckInValidatorConfig) CheckInValidator {
	v := &checkInValidator{
		events:    events,
		tickets:   tickets,
		clock:     clock.NewSystem(),
		log:       logger.Get(),
		publisher: NewNoOpEventPublisher(),
	}
	if cfg != nil {
		if cfg.Clock != nil {
			v.clock = cfg.Clock
		}
		if cfg.Logger != nil {
			v.log = cfg.Logger
		}
		if cfg.Publisher != nil {
			v.publisher = cfg.Publisher
		}
		v.metrics = cfg.Metrics
	}
	return v
}

// Validate checks event ownership, then ticket existence, then event binding, then
// the used flag, and finally flips the flag with a conditional update
func (v *checkInValidator) Validate(ctx context.Context, tenantID, ticketID, requestingEventID string) (*domain.Attendee, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.checkin.validate")
	defer span.End()
	defer v.metrics.ObserveOperation("checkin", time.Now())

	if tenantID == "" {
		v.reject(span, domain.ErrInvalidTenantID)
		return nil, domain.ErrInvalidTenantID
	}
	if ticketID == "" {
		v.reject(span, domain.ErrInvalidTicketID)
		return nil, domain.ErrInvalidTicketID
	}
	if requestingEventID == "" {
		v.reject(span, domain.ErrInvalidEventID)
		return nil, domain.ErrInvalidEventID
	}
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("ticket_id", ticketID),
		attribute.String("event_id", requestingEventID),
	)

	event, err := v.events.GetEvent(ctx, requestingEventID)
	if err != nil {
		if errors.Is(err, domain.ErrEventNotFound) {
			v.reject(span, domain.ErrEventNotFound)
			return nil, domain.ErrEventNotFound
		}
		v.metrics.RecordCheckIn(metrics.OutcomeError)
		telemetry.RecordError(span, err)
		return nil, domain.Persistence(err)
	}
	// Staff of one tenant never touch another tenant's tickets
	if !event.BelongsTo(tenantID) {
		v.reject(span, domain.ErrTenantMismatch)
		return nil, domain.ErrTenantMismatch
	}

	ticket, err := v.tickets.GetTicket(ctx, ticketID)
	if err != nil {
		if errors.Is(err, domain.ErrTicketNotFound) {
			v.reject(span, domain.ErrTicketNotFound)
			return nil, domain.ErrTicketNotFound
		}
		v.metrics.RecordCheckIn(metrics.OutcomeError)
		telemetry.RecordError(span, err)
		return nil, domain.Persistence(err)
	}

	if ticket.EventID != requestingEventID {
		v.reject(span, domain.ErrWrongEvent)
		return nil, domain.ErrWrongEvent
	}
	if ticket.CheckedIn {
		v.reject(span, domain.ErrAlreadyUsed)
		return nil, domain.ErrAlreadyUsed
	}

	now := v.clock.Now()
	won, err := v.tickets.ConditionalSetCheckedIn(ctx, ticketID, requestingEventID, now)
	if err != nil {
		v.metrics.RecordCheckIn(metrics.OutcomeError)
		telemetry.RecordError(span, err)
		return nil, domain.Persistence(err)
	}
	if !won {
		// Another scan flipped the flag between our read and the update
		v.reject(span, domain.ErrAlreadyUsed)
		return nil, domain.ErrAlreadyUsed
	}

	ticket.CheckedIn = true
	ticket.CheckedInAt = &now
	if err := v.publisher.Publish(ctx, domain.NewTicketEvent(domain.TicketEventCheckedIn, ticket, now)); err != nil {
		v.log.Warn("failed to publish check-in event",
			zap.String("ticket_id", ticketID),
			zap.Error(err),
		)
	}

	v.metrics.RecordCheckIn(metrics.OutcomeOK)
	span.SetStatus(codes.Ok, "")
	return &domain.Attendee{
		TicketID:    ticket.ID,
		BuyerID:     ticket.BuyerID,
		EventID:     ticket.EventID,
		CheckedInAt: now,
	}, nil
}

func (v *checkInValidator) reject(span trace.Span, err error) {
	v.metrics.RecordCheckIn(outcomeOf(err))
	span.SetStatus(codes.Error, err.Error())
}
