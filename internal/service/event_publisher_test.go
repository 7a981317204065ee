package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
)

func TestNewKafkaEventPublisher(t *testing.T) {
	_, err := NewKafkaEventPublisher(nil, nil)
	assert.Error(t, err)

	p, err := NewKafkaEventPublisher(&MockMessageProducer{}, nil)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTicketEventsTopic, p.topic)
	assert.Equal(t, "ticket-inventory", p.serviceName)

	p, err = NewKafkaEventPublisher(&MockMessageProducer{}, &EventPublisherConfig{Topic: "tickets", ServiceName: "svc"})
	require.NoError(t, err)
	assert.Equal(t, "tickets", p.topic)
	assert.Equal(t, "svc", p.serviceName)
}

func TestKafkaEventPublisher_Publish(t *testing.T) {
	producer := &MockMessageProducer{}
	p, err := NewKafkaEventPublisher(producer, nil)
	require.NoError(t, err)

	ticket := &domain.Ticket{ID: "tkt-1", ReservationID: "res-1", BuyerID: "buyer-1", EventID: "evt-1", IssuedAt: testNow}
	event := domain.NewTicketEvent(domain.TicketEventIssued, ticket, testNow)

	require.NoError(t, p.Publish(context.Background(), event))
	require.Len(t, producer.messages, 1)

	msg := producer.messages[0]
	assert.Equal(t, domain.DefaultTicketEventsTopic, msg.Topic)
	assert.Equal(t, []byte("evt-1"), msg.Key)
	assert.Equal(t, testNow, msg.Timestamp)
	assert.Equal(t, "ticket.issued", msg.Headers["event_type"])
	assert.Equal(t, event.ID, msg.Headers["event_id"])
	assert.Equal(t, "ticket-inventory", msg.Headers["source"])
	assert.Equal(t, "application/json", msg.Headers["content_type"])

	var decoded domain.TicketEvent
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, "tkt-1", decoded.TicketID)
	assert.Equal(t, domain.TicketEventIssued, decoded.Type)
}

func TestKafkaEventPublisher_ProduceError(t *testing.T) {
	producer := &MockMessageProducer{err: errors.New("leader not available")}
	p, err := NewKafkaEventPublisher(producer, nil)
	require.NoError(t, err)

	ticket := &domain.Ticket{ID: "tkt-1", EventID: "evt-1"}
	err = p.Publish(context.Background(), domain.NewTicketEvent(domain.TicketEventCheckedIn, ticket, testNow))
	assert.ErrorContains(t, err, "ticket.checked_in")
}

func TestKafkaEventPublisher_Close(t *testing.T) {
	producer := &MockMessageProducer{}
	p, err := NewKafkaEventPublisher(producer, nil)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	assert.True(t, producer.closed)
}

func TestNoOpEventPublisher(t *testing.T) {
	p := NewNoOpEventPublisher()
	assert.NoError(t, p.Publish(context.Background(), &domain.TicketEvent{}))
	assert.NoError(t, p.Close())
}
