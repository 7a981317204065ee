package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/pkg/kafka"
)

// TicketEventPublisher publishes ticket lifecycle events
type TicketEventPublisher interface {
	// Publish publishes a ticket event
	Publish(ctx context.Context, event *domain.TicketEvent) error

	// Close closes the event publisher
	Close() error
}

// MessageProducer is the subset of the Kafka producer the publisher needs
type MessageProducer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
	Close()
}

// KafkaEventPublisher implements TicketEventPublisher using Kafka
type KafkaEventPublisher struct {
	producer    MessageProducer
	topic       string
	serviceName string
}

// EventPublisherConfig contains configuration for the event publisher
type EventPublisherConfig struct {
	Topic       string
	ServiceName string
}

// NewKafkaEventPublisher creates a new Kafka event publisher
func NewKafkaEventPublisher(producer MessageProducer, cfg *EventPublisherConfig) (*KafkaEventPublisher, error) {
	if producer == nil {
		return nil, fmt.Errorf("kafka producer is required")
	}

	topic := domain.DefaultTicketEventsTopic
	serviceName := "ticket-inventory"
	if cfg != nil {
		if cfg.Topic != "" {
			topic = cfg.Topic
		}
		if cfg.ServiceName != "" {
			serviceName = cfg.ServiceName
		}
	}

	return &KafkaEventPublisher{
		producer:    producer,
		topic:       topic,
		serviceName: serviceName,
	}, nil
}

// Publish publishes a ticket event keyed by event ID
func (p *KafkaEventPublisher) Publish(ctx context.Context, event *domain.TicketEvent) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &kafka.Message{
		Topic:     p.topic,
		Key:       []byte(event.Key()),
		Value:     value,
		Headers:   EventHeaders(event.Type, event.ID, p.serviceName),
		Timestamp: event.OccurredAt,
	}

	if err := p.producer.Produce(ctx, msg); err != nil {
		return fmt.Errorf("failed to publish %s event: %w", event.Type, err)
	}

	return nil
}

// Close closes the underlying producer
func (p *KafkaEventPublisher) Close() error {
	if p.producer != nil {
		p.producer.Close()
	}
	return nil
}

// EventHeaders are the Kafka headers every ticket event carries
func EventHeaders(eventType domain.TicketEventType, eventID, source string) map[string]string {
	return map[string]string{
		"event_type":   string(eventType),
		"event_id":     eventID,
		"source":       source,
		"content_type": "application/json",
	}
}

// NoOpEventPublisher discards events. Used when Kafka is off or the outbox carries events.
type NoOpEventPublisher struct{}

// NewNoOpEventPublisher creates a new no-op event publisher
func NewNoOpEventPublisher() *NoOpEventPublisher {
	return &NoOpEventPublisher{}
}

// Publish is a no-op
func (p *NoOpEventPublisher) Publish(ctx context.Context, event *domain.TicketEvent) error {
	return nil
}

// Close is a no-op
func (p *NoOpEventPublisher) Close() error {
	return nil
}
