package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/prohmpiriya/ticket-inventory/internal/clock"
	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/metrics"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// TicketIssuer turns reservation tokens into tickets
type TicketIssuer interface {
	// Issue creates the single ticket a reservation entitles the buyer to
	Issue(ctx context.Context, token *domain.ReservationToken, buyerID, eventID string) (*domain.Ticket, error)
}

// TicketIssuerConfig contains optional collaborators of the issuer
type TicketIssuerConfig struct {
	Clock   clock.Clock
	Metrics *metrics.Metrics
	// NewID generates ticket IDs. Defaults to random UUIDs.
	NewID func() string
}

type ticketIssuer struct {
	tickets repository.TicketRepository
	clock   clock.Clock
	metrics *metrics.Metrics
	newID   func() string
}

// NewTicketIssuer creates a ticket issuer
func NewTicketIssuer(tickets repository.TicketRepository, cfg *TicketIssuerConfig) TicketIssuer {
	i := &ticketIssuer{
		tickets: tickets,
		clock:   clock.NewSystem(),
		newID:   func() string { return uuid.New().String() },
	}
	if cfg != nil {
		if cfg.Clock != nil {
			i.clock = cfg.Clock
		}
		if cfg.NewID != nil {
			i.newID = cfg.NewID
		}
		i.metrics = cfg.Metrics
	}
	return i
}

// Issue persists one ticket for the token. A reused token fails with ErrReservationConsumed.
// Storage failures are not retried here.
func (i *ticketIssuer) Issue(ctx context.Context, token *domain.ReservationToken, buyerID, eventID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ticket.issue")
	defer span.End()
	defer i.metrics.ObserveOperation("issue", time.Now())

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		i.metrics.RecordIssue(metrics.OutcomeInvalid)
		return nil, domain.ErrInvalidEventID
	}
	if buyerID == "" {
		span.SetStatus(codes.Error, "invalid buyer_id")
		i.metrics.RecordIssue(metrics.OutcomeInvalid)
		return nil, domain.ErrInvalidBuyerID
	}
	if !token.BoundTo(eventID) {
		span.SetStatus(codes.Error, "invalid reservation")
		i.metrics.RecordIssue(metrics.OutcomeInvalid)
		return nil, domain.ErrInvalidReservation
	}

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("buyer_id", buyerID),
		attribute.String("reservation_id", token.ID),
	)

	ticket := domain.NewTicket(i.newID(), token, buyerID, i.clock.Now())

	if err := i.tickets.CreateTicket(ctx, ticket); err != nil {
		switch {
		case errors.Is(err, domain.ErrReservationConsumed), errors.Is(err, domain.ErrEventNotFound):
			i.metrics.RecordIssue(outcomeOf(err))
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		default:
			i.metrics.RecordIssue(metrics.OutcomeError)
			telemetry.RecordError(span, err)
			return nil, domain.Persistence(err)
		}
	}

	i.metrics.RecordIssue(metrics.OutcomeOK)
	span.SetAttributes(attribute.String("ticket_id", ticket.ID))
	span.SetStatus(codes.Ok, "")
	return ticket, nil
}
