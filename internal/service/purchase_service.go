package service

import (
	"context"
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"
)

// PurchaseService runs the buy flow: reserve a slot, then issue the ticket
type PurchaseService interface {
	// Purchase reserves one slot for the event and issues a ticket to the buyer
	Purchase(ctx context.Context, buyerID, eventID string) (*domain.Ticket, error)
}

// PurchaseServiceConfig contains configuration for the purchase flow
type PurchaseServiceConfig struct {
	// ReleaseOnIssueFailure gives the slot back when issuance fails for certain.
	// When false a failed issuance leaves the slot consumed.
	ReleaseOnIssueFailure bool
	// ReleaseTimeout bounds the compensating release
	ReleaseTimeout time.Duration
	Publisher      TicketEventPublisher
	Logger         *logger.Logger
}

type purchaseService struct {
	ledger                CapacityLedger
	issuer                TicketIssuer
	publisher             TicketEventPublisher
	log                   *logger.Logger
	releaseOnIssueFailure bool
	releaseTimeout        time.Duration
}

// NewPurchaseService creates a purchase service
func NewPurchaseService(ledger CapacityLedger, issuer TicketIssuer, cfg *PurchaseServiceConfig) PurchaseService {
	s := &purchaseService{
		ledger:         ledger,
		issuer:         issuer,
		publisher:      NewNoOpEventPublisher(),
		log:            logger.Get(),
		releaseTimeout: 5 * time.Second,
	}
	if cfg != nil {
		s.releaseOnIssueFailure = cfg.ReleaseOnIssueFailure
		if cfg.ReleaseTimeout > 0 {
			s.releaseTimeout = cfg.ReleaseTimeout
		}
		if cfg.Publisher != nil {
			s.publisher = cfg.Publisher
		}
		if cfg.Logger != nil {
			s.log = cfg.Logger
		}
	}
	return s
}

// Purchase reserves then issues. The reservation is never retried.
func (s *purchaseService) Purchase(ctx context.Context, buyerID, eventID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.purchase.purchase")
	defer span.End()

	if buyerID == "" {
		span.SetStatus(codes.Error, "invalid buyer_id")
		return nil, domain.ErrInvalidBuyerID
	}
	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		return nil, domain.ErrInvalidEventID
	}
	span.SetAttributes(
		attribute.String("buyer_id", buyerID),
		attribute.String("event_id", eventID),
	)

	token, err := s.ledger.Reserve(ctx, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.String("reservation_id", token.ID))

	ticket, err := s.issuer.Issue(ctx, token, buyerID, eventID)
	if err != nil {
		telemetry.RecordError(span, err)
		s.compensate(ctx, token, err)
		return nil, err
	}

	now := ticket.IssuedAt
	if pubErr := s.publisher.Publish(ctx, domain.NewTicketEvent(domain.TicketEventIssued, ticket, now)); pubErr != nil {
		s.log.Warn("failed to publish ticket issued event",
			zap.String("ticket_id", ticket.ID),
			zap.Error(pubErr),
		)
	}

	span.SetAttributes(attribute.String("ticket_id", ticket.ID))
	span.SetStatus(codes.Ok, "")
	return ticket, nil
}

// compensate applies the release policy after a failed issuance
func (s *purchaseService) compensate(ctx context.Context, token *domain.ReservationToken, issueErr error) {
	fields := []zap.Field{
		zap.String("event_id", token.EventID),
		zap.String("reservation_id", token.ID),
		zap.Error(issueErr),
	}

	if !s.releaseOnIssueFailure {
		s.log.Warn("issuance failed, slot stays consumed", fields...)
		return
	}
	// A timed out or cancelled write may still have landed
	if domain.IsOutcomeUnknown(issueErr) || !domain.IsPersistenceError(issueErr) {
		s.log.Warn("issuance failed with unknown outcome, slot not released", fields...)
		return
	}

	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.releaseTimeout)
	defer cancel()

	if err := s.ledger.Release(releaseCtx, token); err != nil {
		s.log.Error("failed to release slot after issuance failure", append(fields, zap.NamedError("release_error", err))...)
		return
	}
	s.log.Info("slot released after issuance failure", fields...)
}
