package kafka

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"

	"github.com/prohmpiriya/ticket-inventory/pkg/retry"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
)

// ProducerConfig holds Kafka producer settings
type ProducerConfig struct {
	Brokers       []string
	ClientID      string
	MaxRetries    int
	RetryInterval time.Duration
	BatchSize     int
	LingerMs      int
	// SkipPing disables the connectivity check in NewProducer
	SkipPing bool
}

// Message is a record to produce
type Message struct {
	Topic     string
	Key       []byte
	Value     []byte
	Headers   map[string]string
	Timestamp time.Time
}

// Producer wraps a franz-go client used only for producing
type Producer struct {
	client *kgo.Client
	cfg    *ProducerConfig
}

// NewProducer creates a producer and checks that a broker is reachable
func NewProducer(ctx context.Context, cfg *ProducerConfig) (*Producer, error) {
	if cfg == nil {
		return nil, errors.New("producer config is required")
	}
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers are required")
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = time.Second
	}

	opts := []kgo.Opt{
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.RequiredAcks(kgo.AllISRAcks()),
		kgo.RecordRetries(cfg.MaxRetries),
	}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}
	if cfg.BatchSize > 0 {
		opts = append(opts, kgo.MaxBufferedRecords(cfg.BatchSize*10))
	}
	if cfg.LingerMs > 0 {
		opts = append(opts, kgo.ProducerLinger(time.Duration(cfg.LingerMs)*time.Millisecond))
	}

	client, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka client: %w", err)
	}

	if !cfg.SkipPing {
		policy := retry.Policy{MaxAttempts: cfg.MaxRetries, InitialInterval: cfg.RetryInterval}
		if _, err := retry.Do(ctx, policy, client.Ping, nil); err != nil {
			client.Close()
			return nil, fmt.Errorf("failed to ping Kafka: %w", err)
		}
	}

	return &Producer{client: client, cfg: cfg}, nil
}

// Produce sends a message and waits for the broker acknowledgement.
// The current trace context travels in the record headers.
func (p *Producer) Produce(ctx context.Context, msg *Message) error {
	if msg == nil || msg.Topic == "" {
		return errors.New("message topic is required")
	}

	headers := telemetry.InjectMap(ctx)
	for k, v := range msg.Headers {
		headers[k] = v
	}

	record := toRecord(msg, headers)
	if err := p.client.ProduceSync(ctx, record).FirstErr(); err != nil {
		return fmt.Errorf("failed to produce to %s: %w", msg.Topic, err)
	}
	return nil
}

// Close flushes buffered records and closes the client
func (p *Producer) Close() {
	if p.client == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = p.client.Flush(ctx)
	p.client.Close()
}

// HealthCheck pings the cluster
func (p *Producer) HealthCheck(ctx context.Context) error {
	if err := p.client.Ping(ctx); err != nil {
		return fmt.Errorf("kafka health check failed: %w", err)
	}
	return nil
}

// toRecord converts a message into a franz-go record
func toRecord(msg *Message, headers map[string]string) *kgo.Record {
	record := &kgo.Record{
		Topic:     msg.Topic,
		Key:       msg.Key,
		Value:     msg.Value,
		Timestamp: msg.Timestamp,
	}
	for k, v := range headers {
		record.Headers = append(record.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
	}
	return record
}
