package domain

import (
	"encoding/json"
	"time"
)

// OutboxStatus represents the status of an outbox message
type OutboxStatus string

const (
	OutboxStatusPending   OutboxStatus = "pending"
	OutboxStatusPublished OutboxStatus = "published"
	OutboxStatusFailed    OutboxStatus = "failed"
)

// IsValid checks if the status is a valid OutboxStatus
func (s OutboxStatus) IsValid() bool {
	switch s {
	case OutboxStatusPending, OutboxStatusPublished, OutboxStatusFailed:
		return true
	}
	return false
}

// OutboxMessage is a ticket event stored next to the ticket row until relayed to Kafka
type OutboxMessage struct {
	ID           string            `json:"id"`
	TicketID     string            `json:"ticket_id"`
	EventType    TicketEventType   `json:"event_type"`
	Payload      []byte            `json:"payload"`
	Topic        string            `json:"topic"`
	PartitionKey string            `json:"partition_key"`
	TraceContext map[string]string `json:"trace_context,omitempty"`
	Status       OutboxStatus      `json:"status"`
	RetryCount   int               `json:"retry_count"`
	MaxRetries   int               `json:"max_retries"`
	LastError    string            `json:"last_error,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	PublishedAt  *time.Time        `json:"published_at,omitempty"`
}

// DefaultOutboxMaxRetries is how many relay attempts a message gets before it stays failed
const DefaultOutboxMaxRetries = 5

// NewOutboxMessage wraps a ticket event for the outbox table. The message shares the event's ID.
// Messages for one event share a partition so consumers see them in order.
func NewOutboxMessage(event *TicketEvent, topic string) (*OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return &OutboxMessage{
		ID:           event.ID,
		TicketID:     event.TicketID,
		EventType:    event.Type,
		Payload:      payload,
		Topic:        topic,
		PartitionKey: event.Key(),
		Status:       OutboxStatusPending,
		MaxRetries:   DefaultOutboxMaxRetries,
		CreatedAt:    event.OccurredAt,
	}, nil
}

// CanRetry checks if the message can be retried
func (m *OutboxMessage) CanRetry() bool {
	return m.Status == OutboxStatusFailed && m.RetryCount < m.MaxRetries
}

// MarkAsPublished marks the message as successfully published
func (m *OutboxMessage) MarkAsPublished(at time.Time) {
	m.Status = OutboxStatusPublished
	m.PublishedAt = &at
}

// MarkAsFailed records a failed relay attempt
func (m *OutboxMessage) MarkAsFailed(err string) {
	m.Status = OutboxStatusFailed
	m.LastError = err
	m.RetryCount++
}
