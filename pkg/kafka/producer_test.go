package kafka

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestNewProducer_Validation(t *testing.T) {
	ctx := context.Background()

	_, err := NewProducer(ctx, nil)
	assert.Error(t, err)

	_, err = NewProducer(ctx, &ProducerConfig{})
	assert.Error(t, err)
}

func TestNewProducer_SkipPing(t *testing.T) {
	p, err := NewProducer(context.Background(), &ProducerConfig{
		Brokers:  []string{"127.0.0.1:1"},
		ClientID: "test",
		SkipPing: true,
	})
	require.NoError(t, err)
	defer p.Close()

	assert.Equal(t, 3, p.cfg.MaxRetries)
	assert.Error(t, p.Produce(context.Background(), &Message{}))
}

func TestProducer_RecordFromMessage(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &Message{
		Topic:     "ticket-events",
		Key:       []byte("evt-1"),
		Value:     []byte(`{"type":"ticket.issued"}`),
		Timestamp: ts,
	}

	record := toRecord(msg, map[string]string{"event_type": "ticket.issued"})

	assert.Equal(t, "ticket-events", record.Topic)
	assert.Equal(t, []byte("evt-1"), record.Key)
	assert.Equal(t, ts, record.Timestamp)

	v, ok := headerValue(record, "event_type")
	assert.True(t, ok)
	assert.Equal(t, "ticket.issued", v)

	_, ok = headerValue(record, "missing")
	assert.False(t, ok)
}

func headerValue(record *kgo.Record, key string) (string, bool) {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value), true
		}
	}
	return "", false
}
