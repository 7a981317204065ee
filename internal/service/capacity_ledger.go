package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
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

// CapacityLedger hands out capacity slots for events
type CapacityLedger interface {
	// Reserve claims one slot. It never sells more than the event's capacity.
	Reserve(ctx context.Context, eventID string) (*domain.ReservationToken, error)

	// Release gives a slot back for a reservation that never became a ticket.
	// Releasing the same reservation twice is a no-op.
	Release(ctx context.Context, token *domain.ReservationToken) error
}

// CapacityLedgerConfig contains optional collaborators of the ledger
type CapacityLedgerConfig struct {
	Clock   clock.Clock
	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

type capacityLedger struct {
	inventory repository.InventoryRepository
	tickets   repository.TicketRepository
	syncer    EventSyncer
	clock     clock.Clock
	metrics   *metrics.Metrics
	log       *logger.Logger
}

// NewCapacityLedger creates a capacity ledger. syncer may be nil when the inventory
// store is also the event store.
func NewCapacityLedger(
	inventory repository.InventoryRepository,
	tickets repository.TicketRepository,
	syncer EventSyncer,
	cfg *CapacityLedgerConfig,
) CapacityLedger {
	l := &capacityLedger{
		inventory: inventory,
		tickets:   tickets,
		syncer:    syncer,
		clock:     clock.NewSystem(),
		log:       logger.Get(),
	}
	if cfg != nil {
		if cfg.Clock != nil {
			l.clock = cfg.Clock
		}
		if cfg.Logger != nil {
			l.log = cfg.Logger
		}
		l.metrics = cfg.Metrics
	}
	return l
}

// Reserve claims one slot with a single conditional increment on the ledger
func (l *capacityLedger) Reserve(ctx context.Context, eventID string) (*domain.ReservationToken, error) {
	ctx, span := telemetry.StartSpan(ctx, "service.ledger.reserve")
	defer span.End()
	defer l.metrics.ObserveOperation("reserve", time.Now())

	if eventID == "" {
		span.SetStatus(codes.Error, "invalid event_id")
		l.metrics.RecordReservation(metrics.OutcomeInvalid)
		return nil, domain.ErrInvalidEventID
	}
	span.SetAttributes(attribute.String("event_id", eventID))

	result, err := l.inventory.ConditionalIncrement(ctx, eventID)
	if err != nil {
		return nil, l.reserveFailed(span, err)
	}

	// The ledger may not have seen the event yet: copy it over and retry once
	if !result.Success && result.ErrorCode == repository.CodeEventNotFound && l.syncer != nil {
		if syncErr := l.syncer.SyncEvent(ctx, eventID); syncErr != nil {
			if errors.Is(syncErr, domain.ErrEventNotFound) {
				l.metrics.RecordReservation(metrics.OutcomeNotFound)
				span.SetStatus(codes.Error, "event not found")
				return nil, domain.ErrEventNotFound
			}
			return nil, l.reserveFailed(span, syncErr)
		}
		span.AddEvent("ledger synced")

		result, err = l.inventory.ConditionalIncrement(ctx, eventID)
		if err != nil {
			return nil, l.reserveFailed(span, err)
		}
	}

	if !result.Success {
		err := ledgerCodeError(result.ErrorCode, result.ErrorMessage)
		l.metrics.RecordReservation(outcomeOf(err))
		span.SetAttributes(attribute.String("error_code", result.ErrorCode))
		span.SetStatus(codes.Error, result.ErrorCode)
		return nil, err
	}

	token := &domain.ReservationToken{
		ID:         uuid.New().String(),
		EventID:    eventID,
		Slot:       result.SoldCount,
		ReservedAt: l.clock.Now(),
	}

	l.metrics.RecordReservation(metrics.OutcomeOK)
	span.SetAttributes(
		attribute.String("reservation_id", token.ID),
		attribute.Int64("slot", token.Slot),
		attribute.Int64("capacity_total", result.CapacityTotal),
	)
	span.SetStatus(codes.Ok, "")
	return token, nil
}

func (l *capacityLedger) reserveFailed(span trace.Span, err error) error {
	l.metrics.RecordReservation(metrics.OutcomeError)
	telemetry.RecordError(span, err)
	return domain.Persistence(err)
}

// Release decrements sold count once for a reservation that holds no ticket
func (l *capacityLedger) Release(ctx context.Context, token *domain.ReservationToken) error {
	ctx, span := telemetry.StartSpan(ctx, "service.ledger.release")
	defer span.End()
	defer l.metrics.ObserveOperation("release", time.Now())

	if token == nil || token.ID == "" || token.EventID == "" {
		span.SetStatus(codes.Error, "invalid reservation")
		l.metrics.RecordRelease(metrics.OutcomeInvalid)
		return domain.ErrInvalidReservation
	}
	span.SetAttributes(
		attribute.String("event_id", token.EventID),
		attribute.String("reservation_id", token.ID),
	)

	if l.tickets != nil {
		ticket, err := l.tickets.GetByReservation(ctx, token.ID)
		switch {
		case err == nil && ticket != nil:
			l.metrics.RecordRelease(metrics.OutcomeConsumed)
			span.SetStatus(codes.Error, "reservation consumed")
			return domain.ErrReservationConsumed
		case err != nil && !errors.Is(err, domain.ErrTicketNotFound):
			l.metrics.RecordRelease(metrics.OutcomeError)
			telemetry.RecordError(span, err)
			return domain.Persistence(err)
		}
	}

	result, err := l.inventory.Release(ctx, token.EventID, token.ID)
	if err != nil {
		l.metrics.RecordRelease(metrics.OutcomeError)
		telemetry.RecordError(span, err)
		return domain.Persistence(err)
	}

	if !result.Success {
		switch result.ErrorCode {
		case repository.CodeAlreadyReleased, repository.CodeNothingToRelease:
			l.log.Info("release skipped",
				zap.String("event_id", token.EventID),
				zap.String("reservation_id", token.ID),
				zap.String("code", result.ErrorCode),
			)
			l.metrics.RecordRelease(metrics.OutcomeNoop)
			span.SetAttributes(attribute.String("error_code", result.ErrorCode))
			span.SetStatus(codes.Ok, "")
			return nil
		default:
			err := ledgerCodeError(result.ErrorCode, result.ErrorMessage)
			l.metrics.RecordRelease(outcomeOf(err))
			span.SetStatus(codes.Error, result.ErrorCode)
			return err
		}
	}

	l.metrics.RecordRelease(metrics.OutcomeOK)
	span.SetAttributes(attribute.Int64("sold_count", result.SoldCount))
	span.SetStatus(codes.Ok, "")
	return nil
}

// ledgerCodeError maps a ledger error code to a domain error
func ledgerCodeError(code, message string) error {
	switch code {
	case repository.CodeEventNotFound:
		return domain.ErrEventNotFound
	case repository.CodeEventDeleted:
		return domain.ErrEventDeleted
	case repository.CodeSoldOut:
		return domain.ErrSoldOut
	default:
		return domain.Persistence(fmt.Errorf("unexpected ledger code %q: %s", code, message))
	}
}

// outcomeOf picks the metrics label for a service error
func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, domain.ErrSoldOut):
		return metrics.OutcomeSoldOut
	case errors.Is(err, domain.ErrEventDeleted):
		return metrics.OutcomeDeleted
	case errors.Is(err, domain.ErrReservationConsumed):
		return metrics.OutcomeConsumed
	case errors.Is(err, domain.ErrAlreadyUsed):
		return metrics.OutcomeAlreadyUsed
	case errors.Is(err, domain.ErrWrongEvent):
		return metrics.OutcomeWrongEvent
	case errors.Is(err, domain.ErrTenantMismatch):
		return metrics.OutcomeTenantMismatch
	case domain.IsNotFoundError(err):
		return metrics.OutcomeNotFound
	case domain.IsValidationError(err):
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}
