package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
)

// ErrOutboxMessageNotFound is returned when marking an unknown outbox message
var ErrOutboxMessageNotFound = errors.New("outbox message not found")

const outboxColumns = `
	id, ticket_id, event_type, payload, topic, partition_key, trace_context, status,
	retry_count, max_retries, last_error, created_at, published_at`

// PostgresOutboxRepository implements OutboxRepository using PostgreSQL
type PostgresOutboxRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresOutboxRepository creates a new PostgresOutboxRepository
func NewPostgresOutboxRepository(pool *pgxpool.Pool) *PostgresOutboxRepository {
	return &PostgresOutboxRepository{pool: pool}
}

// Create inserts an outbox message, joining the transaction in ctx if there is one
func (r *PostgresOutboxRepository) Create(ctx context.Context, msg *domain.OutboxMessage) error {
	if msg.ID == "" {
		msg.ID = uuid.New().String()
	}
	if msg.TraceContext == nil {
		msg.TraceContext = map[string]string{}
	}

	query := `
		INSERT INTO ticket_outbox (
			id, ticket_id, event_type, payload, topic, partition_key,
			trace_context, status, retry_count, max_retries, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := conn(ctx, r.pool).Exec(ctx, query,
		msg.ID,
		msg.TicketID,
		string(msg.EventType),
		msg.Payload,
		msg.Topic,
		msg.PartitionKey,
		msg.TraceContext,
		string(msg.Status),
		msg.RetryCount,
		msg.MaxRetries,
		msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create outbox message: %w", err)
	}
	return nil
}

// GetPendingMessages gets pending messages to be published
func (r *PostgresOutboxRepository) GetPendingMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.get_pending")
	defer span.End()

	query := `
		SELECT ` + outboxColumns + `
		FROM ticket_outbox
		WHERE status = 'pending'
		ORDER BY created_at ASC
		LIMIT $1
	`

	msgs, err := r.query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get pending messages: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(msgs)))
	span.SetStatus(codes.Ok, "")
	return msgs, nil
}

// GetFailedMessages gets failed messages that can be retried
func (r *PostgresOutboxRepository) GetFailedMessages(ctx context.Context, limit int) ([]*domain.OutboxMessage, error) {
	ctx, span := telemetry.StartSpan(ctx, "repo.postgres.outbox.get_failed")
	defer span.End()

	query := `
		SELECT ` + outboxColumns + `
		FROM ticket_outbox
		WHERE status = 'failed' AND retry_count < max_retries
		ORDER BY created_at ASC
		LIMIT $1
	`

	msgs, err := r.query(ctx, query, limit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to get failed messages: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(msgs)))
	span.SetStatus(codes.Ok, "")
	return msgs, nil
}

// MarkAsPublished marks a message as successfully published
func (r *PostgresOutboxRepository) MarkAsPublished(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE ticket_outbox SET status = 'published', published_at = $2
		WHERE id = $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("failed to mark message as published: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxMessageNotFound
	}
	return nil
}

// MarkAsFailed records a failed attempt and bumps retry_count
func (r *PostgresOutboxRepository) MarkAsFailed(ctx context.Context, id string, reason string) error {
	query := `
		UPDATE ticket_outbox SET
			status = 'failed',
			last_error = $2,
			retry_count = retry_count + 1
		WHERE id = $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, id, reason)
	if err != nil {
		return fmt.Errorf("failed to mark message as failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrOutboxMessageNotFound
	}
	return nil
}

// DeletePublished deletes published messages older than the cutoff
func (r *PostgresOutboxRepository) DeletePublished(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM ticket_outbox
		WHERE status = 'published' AND published_at < $1
	`

	tag, err := conn(ctx, r.pool).Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete published messages: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresOutboxRepository) query(ctx context.Context, query string, args ...any) ([]*domain.OutboxMessage, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanOutboxMessages(rows)
}

// scanOutboxMessages scans rows into OutboxMessage slice
func scanOutboxMessages(rows pgx.Rows) ([]*domain.OutboxMessage, error) {
	var messages []*domain.OutboxMessage

	for rows.Next() {
		msg := &domain.OutboxMessage{}
		var (
			eventType   string
			status      string
			lastError   *string
			publishedAt *time.Time
		)

		err := rows.Scan(
			&msg.ID,
			&msg.TicketID,
			&eventType,
			&msg.Payload,
			&msg.Topic,
			&msg.PartitionKey,
			&msg.TraceContext,
			&status,
			&msg.RetryCount,
			&msg.MaxRetries,
			&lastError,
			&msg.CreatedAt,
			&publishedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}

		msg.EventType = domain.TicketEventType(eventType)
		msg.Status = domain.OutboxStatus(status)
		if lastError != nil {
			msg.LastError = *lastError
		}
		msg.PublishedAt = publishedAt

		messages = append(messages, msg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating outbox messages: %w", err)
	}

	return messages, nil
}

var _ OutboxRepository = (*PostgresOutboxRepository)(nil)
