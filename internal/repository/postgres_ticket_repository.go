package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
)

const ticketColumns = `id, reservation_id, buyer_id, event_id, checked_in, checked_in_at, issued_at`

// PostgresTicketRepository stores tickets in PostgreSQL.
// When an outbox is attached, ticket events are written in the same transaction as the ticket change.
type PostgresTicketRepository struct {
	pool   *pgxpool.Pool
	outbox *PostgresOutboxRepository
	topic  string
}

// NewPostgresTicketRepository creates a new PostgresTicketRepository without an outbox
func NewPostgresTicketRepository(pool *pgxpool.Pool) *PostgresTicketRepository {
	return &PostgresTicketRepository{pool: pool}
}

// WithOutbox makes ticket changes enqueue events to topic through the outbox
func (r *PostgresTicketRepository) WithOutbox(outbox *PostgresOutboxRepository, topic string) *PostgresTicketRepository {
	if topic == "" {
		topic = domain.DefaultTicketEventsTopic
	}
	r.outbox = outbox
	r.topic = topic
	return r
}

func (r *PostgresTicketRepository) enqueue(ctx context.Context, eventType domain.TicketEventType, t *domain.Ticket, at time.Time) error {
	if r.outbox == nil {
		return nil
	}
	msg, err := domain.NewOutboxMessage(domain.NewTicketEvent(eventType, t, at), r.topic)
	if err != nil {
		return fmt.Errorf("failed to build outbox message: %w", err)
	}
	// The relay continues the trace of the request that wrote the row
	msg.TraceContext = telemetry.InjectMap(ctx)
	return r.outbox.Create(ctx, msg)
}

// CreateTicket consumes the reservation and inserts the ticket in one transaction
func (r *PostgresTicketRepository) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticket.ID),
		attribute.String("reservation_id", ticket.ReservationID),
		attribute.String("event_id", ticket.EventID),
	)

	err := withTx(ctx, r.pool, func(ctx context.Context) error {
		db := conn(ctx, r.pool)

		_, err := db.Exec(ctx, `
			INSERT INTO consumed_reservations (reservation_id, event_id, ticket_id, consumed_at)
			VALUES ($1, $2, $3, $4)
		`, ticket.ReservationID, ticket.EventID, ticket.ID, ticket.IssuedAt)
		if err != nil {
			if isUniqueViolation(err) {
				return domain.ErrReservationConsumed
			}
			if isForeignKeyViolation(err) {
				return domain.ErrEventNotFound
			}
			return err
		}

		_, err = db.Exec(ctx, `
			INSERT INTO tickets (`+ticketColumns+`)
			VALUES ($1, $2, $3, $4, FALSE, NULL, $5)
		`, ticket.ID, ticket.ReservationID, ticket.BuyerID, ticket.EventID, ticket.IssuedAt)
		if err != nil {
			return err
		}

		issued := *ticket
		issued.CheckedIn = false
		issued.CheckedInAt = nil
		return r.enqueue(ctx, domain.TicketEventIssued, &issued, ticket.IssuedAt)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if errors.Is(err, domain.ErrReservationConsumed) || errors.Is(err, domain.ErrEventNotFound) {
			return err
		}
		return fmt.Errorf("failed to create ticket: %w", err)
	}

	ticket.CheckedIn = false
	ticket.CheckedInAt = nil
	span.SetStatus(codes.Ok, "")
	return nil
}

// ConditionalSetCheckedIn flips checked_in only for an unused ticket of the given event
func (r *PostgresTicketRepository) ConditionalSetCheckedIn(ctx context.Context, ticketID, eventID string, at time.Time) (bool, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.conditional_set_checked_in")
	defer span.End()

	span.SetAttributes(
		attribute.String("ticket_id", ticketID),
		attribute.String("event_id", eventID),
	)

	var applied bool
	err := withTx(ctx, r.pool, func(ctx context.Context) error {
		query := `
			UPDATE tickets SET checked_in = TRUE, checked_in_at = $3
			WHERE id = $1 AND event_id = $2 AND NOT checked_in
			RETURNING ` + ticketColumns

		t, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, query, ticketID, eventID, at))
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		applied = true
		return r.enqueue(ctx, domain.TicketEventCheckedIn, t, at)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return false, fmt.Errorf("failed to check in ticket: %w", err)
	}

	span.SetAttributes(attribute.Bool("applied", applied))
	span.SetStatus(codes.Ok, "")
	return applied, nil
}

// GetTicket retrieves a ticket by ID
func (r *PostgresTicketRepository) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get")
	defer span.End()

	span.SetAttributes(attribute.String("ticket_id", ticketID))

	t, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = $1`, ticketID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "ticket not found")
			return nil, domain.ErrTicketNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return t, nil
}

// GetByReservation retrieves the ticket issued for a reservation
func (r *PostgresTicketRepository) GetByReservation(ctx context.Context, reservationID string) (*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.get_by_reservation")
	defer span.End()

	span.SetAttributes(attribute.String("reservation_id", reservationID))

	t, err := scanTicket(conn(ctx, r.pool).QueryRow(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE reservation_id = $1`, reservationID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "ticket not found")
			return nil, domain.ErrTicketNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get ticket by reservation: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return t, nil
}

// ListByBuyer lists a buyer's tickets, newest first
func (r *PostgresTicketRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.list_by_buyer")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", buyerID))

	tickets, err := r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE buyer_id = $1 ORDER BY issued_at DESC, id`, buyerID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list buyer tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

// ListByEvent lists an event's tickets, oldest first
func (r *PostgresTicketRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.list_by_event")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	tickets, err := r.list(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE event_id = $1 ORDER BY issued_at ASC, id`, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list event tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(tickets)))
	span.SetStatus(codes.Ok, "")
	return tickets, nil
}

// CountCheckedIn counts the event's used tickets
func (r *PostgresTicketRepository) CountCheckedIn(ctx context.Context, eventID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.count_checked_in")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	var count int64
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM tickets WHERE event_id = $1 AND checked_in`, eventID).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count checked-in tickets: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return count, nil
}

// CountIssued counts consumed reservations of the event, which outlive purged tickets
func (r *PostgresTicketRepository) CountIssued(ctx context.Context, eventID string) (int64, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.count_issued")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	var count int64
	err := conn(ctx, r.pool).QueryRow(ctx, `SELECT COUNT(*) FROM consumed_reservations WHERE event_id = $1`, eventID).Scan(&count)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return 0, fmt.Errorf("failed to count issued tickets: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return count, nil
}

// DeleteByBuyer removes a buyer's tickets. consumed_reservations keeps the tokens spent.
func (r *PostgresTicketRepository) DeleteByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.ticket.delete_by_buyer")
	defer span.End()

	span.SetAttributes(attribute.String("buyer_id", buyerID))

	var removed []*domain.Ticket
	err := withTx(ctx, r.pool, func(ctx context.Context) error {
		var err error
		removed, err = r.list(ctx, `DELETE FROM tickets WHERE buyer_id = $1 RETURNING `+ticketColumns, buyerID)
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		for _, t := range removed {
			if err := r.enqueue(ctx, domain.TicketEventPurged, t, now); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to delete buyer tickets: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(removed)))
	span.SetStatus(codes.Ok, "")
	return removed, nil
}

func (r *PostgresTicketRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Ticket, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tickets []*domain.Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, err
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

func scanTicket(row pgx.Row) (*domain.Ticket, error) {
	t := &domain.Ticket{}
	var checkedInAt *time.Time
	if err := row.Scan(
		&t.ID,
		&t.ReservationID,
		&t.BuyerID,
		&t.EventID,
		&t.CheckedIn,
		&checkedInAt,
		&t.IssuedAt,
	); err != nil {
		return nil, err
	}
	if checkedInAt != nil {
		at := checkedInAt.UTC()
		t.CheckedInAt = &at
	}
	t.IssuedAt = t.IssuedAt.UTC()
	return t, nil
}

var _ TicketRepository = (*PostgresTicketRepository)(nil)
