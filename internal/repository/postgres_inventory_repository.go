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

const eventColumns = `id, tenant_id, capacity_total, sold_count, deleted, created_at, updated_at`

// PostgresInventoryRepository stores events in PostgreSQL and serves as the capacity ledger
// through single-statement conditional updates.
type PostgresInventoryRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresInventoryRepository creates a new PostgresInventoryRepository
func NewPostgresInventoryRepository(pool *pgxpool.Pool) *PostgresInventoryRepository {
	return &PostgresInventoryRepository{pool: pool}
}

// CreateEvent inserts a new event record
func (r *PostgresInventoryRepository) CreateEvent(ctx context.Context, event *domain.EventInventory) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.create")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", event.ID),
		attribute.String("tenant_id", event.TenantID),
		attribute.Int64("capacity_total", event.CapacityTotal),
	)

	query := `
		INSERT INTO events (` + eventColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		event.ID,
		event.TenantID,
		event.CapacityTotal,
		event.SoldCount,
		event.Deleted,
		event.CreatedAt,
		event.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			span.SetStatus(codes.Error, "event already exists")
			return domain.ErrEventAlreadyExists
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to create event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// GetEvent retrieves an event by ID, deleted or not
func (r *PostgresInventoryRepository) GetEvent(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.get")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `SELECT ` + eventColumns + ` FROM events WHERE id = $1`

	event, err := scanEvent(conn(ctx, r.pool).QueryRow(ctx, query, eventID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			span.SetStatus(codes.Error, "event not found")
			return nil, domain.ErrEventNotFound
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get event: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return event, nil
}

// GetInventory returns the ledger view of an event
func (r *PostgresInventoryRepository) GetInventory(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	return r.GetEvent(ctx, eventID)
}

// SoftDeleteEvent flags the event as deleted; sold_count is left as is
func (r *PostgresInventoryRepository) SoftDeleteEvent(ctx context.Context, eventID string) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.soft_delete")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `UPDATE events SET deleted = TRUE, updated_at = NOW() WHERE id = $1`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, eventID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to delete event: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetStatus(codes.Error, "event not found")
		return domain.ErrEventNotFound
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ListByTenant lists a tenant's events, oldest first
func (r *PostgresInventoryRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.EventInventory, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.list_by_tenant")
	defer span.End()

	span.SetAttributes(attribute.String("tenant_id", tenantID))

	query := `SELECT ` + eventColumns + ` FROM events WHERE tenant_id = $1 ORDER BY created_at ASC`

	rows, err := conn(ctx, r.pool).Query(ctx, query, tenantID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []*domain.EventInventory
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("error iterating events: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(events)))
	span.SetStatus(codes.Ok, "")
	return events, nil
}

// UpdateSoldCount stores a sold count snapshot taken from an external ledger
func (r *PostgresInventoryRepository) UpdateSoldCount(ctx context.Context, eventID string, soldCount int64) error {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.event.update_sold_count")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.Int64("sold_count", soldCount),
	)

	query := `
		UPDATE events SET sold_count = $2, updated_at = NOW()
		WHERE id = $1 AND $2 >= 0 AND $2 <= capacity_total
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, eventID, soldCount)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("failed to update sold count: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := r.GetEvent(ctx, eventID); err != nil {
			span.SetStatus(codes.Error, err.Error())
			return err
		}
		span.SetStatus(codes.Error, "sold count out of range")
		return domain.ErrInvalidSoldCount
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// ConditionalIncrement claims one seat in a single UPDATE. The row is only
// read afterwards when nothing matched, to tell the rejection reasons apart.
func (r *PostgresInventoryRepository) ConditionalIncrement(ctx context.Context, eventID string) (*IncrementResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.conditional_increment")
	defer span.End()

	span.SetAttributes(attribute.String("event_id", eventID))

	query := `
		UPDATE events
		SET sold_count = sold_count + 1, updated_at = NOW()
		WHERE id = $1 AND NOT deleted AND sold_count < capacity_total
		RETURNING sold_count, capacity_total
	`

	result := &IncrementResult{}
	err := conn(ctx, r.pool).QueryRow(ctx, query, eventID).Scan(&result.SoldCount, &result.CapacityTotal)
	if err == nil {
		result.Success = true
		span.SetAttributes(attribute.Int64("sold_count", result.SoldCount))
		span.SetStatus(codes.Ok, "")
		return result, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to increment sold count: %w", err)
	}

	event, err := r.GetEvent(ctx, eventID)
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		result.ErrorCode, result.ErrorMessage = CodeEventNotFound, "event not found"
	case err != nil:
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	case event.Deleted:
		result.ErrorCode, result.ErrorMessage = CodeEventDeleted, "event has been deleted"
	default:
		result.SoldCount = event.SoldCount
		result.CapacityTotal = event.CapacityTotal
		result.ErrorCode, result.ErrorMessage = CodeSoldOut, "no seats remaining"
	}

	span.SetAttributes(attribute.String("error_code", result.ErrorCode))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

// Release gives one seat back, at most once per reservation ID
func (r *PostgresInventoryRepository) Release(ctx context.Context, eventID, reservationID string) (*ReleaseResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.inventory.release")
	defer span.End()

	span.SetAttributes(
		attribute.String("event_id", eventID),
		attribute.String("reservation_id", reservationID),
	)

	result := &ReleaseResult{}
	err := withTx(ctx, r.pool, func(ctx context.Context) error {
		db := conn(ctx, r.pool)

		var exists bool
		if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			result.ErrorCode, result.ErrorMessage = CodeEventNotFound, "event not found"
			return errRollback
		}

		tag, err := db.Exec(ctx, `
			INSERT INTO released_reservations (reservation_id, event_id)
			VALUES ($1, $2)
			ON CONFLICT (reservation_id) DO NOTHING
		`, reservationID, eventID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			result.ErrorCode, result.ErrorMessage = CodeAlreadyReleased, "reservation already released"
			return errRollback
		}

		err = db.QueryRow(ctx, `
			UPDATE events SET sold_count = sold_count - 1, updated_at = NOW()
			WHERE id = $1 AND sold_count > 0
			RETURNING sold_count
		`, eventID).Scan(&result.SoldCount)
		if errors.Is(err, pgx.ErrNoRows) {
			result.ErrorCode, result.ErrorMessage = CodeNothingToRelease, "sold count is zero"
			return errRollback
		}
		if err != nil {
			return err
		}
		result.Success = true
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to release seat: %w", err)
	}

	span.SetAttributes(attribute.Bool("success", result.Success))
	span.SetStatus(codes.Ok, "")
	return result, nil
}

func scanEvent(row pgx.Row) (*domain.EventInventory, error) {
	e := &domain.EventInventory{}
	var createdAt, updatedAt time.Time
	if err := row.Scan(
		&e.ID,
		&e.TenantID,
		&e.CapacityTotal,
		&e.SoldCount,
		&e.Deleted,
		&createdAt,
		&updatedAt,
	); err != nil {
		return nil, err
	}
	e.CreatedAt = createdAt.UTC()
	e.UpdatedAt = updatedAt.UTC()
	return e, nil
}

var (
	_ InventoryRepository = (*PostgresInventoryRepository)(nil)
	_ EventRepository     = (*PostgresInventoryRepository)(nil)
)
