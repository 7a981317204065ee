package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/clock"
	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/metrics"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/kafka"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// DeadLetterSuffix is appended to a message's topic once it runs out of retries
const DeadLetterSuffix = ".dlq"

// Producer publishes a message to Kafka
type Producer interface {
	Produce(ctx context.Context, msg *kafka.Message) error
}

// OutboxWorkerConfig contains configuration for the outbox worker
type OutboxWorkerConfig struct {
	// PollInterval is the interval between polling for pending messages
	PollInterval time.Duration
	// BatchSize is the number of messages to fetch in each poll
	BatchSize int
	// RetryInterval is the interval between retrying failed messages
	RetryInterval time.Duration
	// CleanupInterval is the interval between cleanup of old published messages
	CleanupInterval time.Duration
	// Retention is how long published messages are kept
	Retention time.Duration
}

// DefaultOutboxWorkerConfig returns default configuration
func DefaultOutboxWorkerConfig() *OutboxWorkerConfig {
	return &OutboxWorkerConfig{
		PollInterval:    100 * time.Millisecond,
		BatchSize:       100,
		RetryInterval:   5 * time.Second,
		CleanupInterval: time.Hour,
		Retention:       7 * 24 * time.Hour,
	}
}

// OutboxWorker relays ticket events from the outbox table to Kafka
type OutboxWorker struct {
	outbox   repository.OutboxRepository
	producer Producer
	config   *OutboxWorkerConfig
	clock    clock.Clock
	metrics  *metrics.Metrics
	log      *logger.Logger
	stopCh   chan struct{}
	wg       sync.WaitGroup
	mu       sync.Mutex
	running  bool
}

// NewOutboxWorker creates a new outbox worker
func NewOutboxWorker(
	outbox repository.OutboxRepository,
	producer Producer,
	config *OutboxWorkerConfig,
	m *metrics.Metrics,
	log *logger.Logger,
) *OutboxWorker {
	defaults := DefaultOutboxWorkerConfig()
	if config == nil {
		config = defaults
	}
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.RetryInterval <= 0 {
		config.RetryInterval = defaults.RetryInterval
	}
	if config.CleanupInterval <= 0 {
		config.CleanupInterval = defaults.CleanupInterval
	}
	if config.Retention <= 0 {
		config.Retention = defaults.Retention
	}
	if log == nil {
		log = logger.Get()
	}

	return &OutboxWorker{
		outbox:   outbox,
		producer: producer,
		config:   config,
		clock:    clock.NewSystem(),
		metrics:  m,
		log:      log,
		stopCh:   make(chan struct{}),
	}
}

// Start starts the outbox worker
func (w *OutboxWorker) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("outbox worker already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("starting outbox worker",
		zap.Duration("poll_interval", w.config.PollInterval),
		zap.Int("batch_size", w.config.BatchSize),
	)

	w.wg.Add(3)
	go w.loop(ctx, w.config.PollInterval, w.ProcessPending)
	go w.loop(ctx, w.config.RetryInterval, w.ProcessFailed)
	go w.loop(ctx, w.config.CleanupInterval, w.Cleanup)

	return nil
}

// Stop stops the outbox worker and waits for in-flight batches
func (w *OutboxWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("stopping outbox worker")
	close(w.stopCh)
	w.wg.Wait()
	w.log.Info("outbox worker stopped")
}

// IsRunning reports whether Start was called without a matching Stop
func (w *OutboxWorker) IsRunning() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

func (w *OutboxWorker) loop(ctx context.Context, interval time.Duration, fn func(context.Context)) {
	defer w.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			fn(ctx)
		}
	}
}

// ProcessPending publishes one batch of pending messages
func (w *OutboxWorker) ProcessPending(ctx context.Context) {
	messages, err := w.outbox.GetPendingMessages(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to get pending outbox messages", zap.Error(err))
		w.metrics.RecordOutbox(metrics.OutcomeError, 1)
		return
	}
	for _, msg := range messages {
		w.relay(ctx, msg)
	}
}

// ProcessFailed retries one batch of failed messages that still have attempts left
func (w *OutboxWorker) ProcessFailed(ctx context.Context) {
	messages, err := w.outbox.GetFailedMessages(ctx, w.config.BatchSize)
	if err != nil {
		w.log.Error("failed to get failed outbox messages", zap.Error(err))
		w.metrics.RecordOutbox(metrics.OutcomeError, 1)
		return
	}
	for _, msg := range messages {
		w.relay(ctx, msg)
	}
}

// Cleanup deletes published messages older than the retention window
func (w *OutboxWorker) Cleanup(ctx context.Context) {
	deleted, err := w.outbox.DeletePublished(ctx, w.clock.Now().Add(-w.config.Retention))
	if err != nil {
		w.log.Error("failed to clean up published outbox messages", zap.Error(err))
		return
	}
	if deleted > 0 {
		w.log.Info("cleaned up published outbox messages", zap.Int64("deleted", deleted))
	}
}

func (w *OutboxWorker) relay(ctx context.Context, msg *domain.OutboxMessage) {
	ctx, span := telemetry.StartSpan(telemetry.ExtractMap(ctx, msg.TraceContext), "worker.outbox.relay",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("message_id", msg.ID),
			attribute.String("ticket_id", msg.TicketID),
			attribute.Int("attempt", msg.RetryCount+1),
		),
	)
	defer span.End()

	err := w.producer.Produce(ctx, toKafkaMessage(msg, msg.Topic, w.clock.Now()))
	if err == nil {
		w.markPublished(ctx, msg)
		w.metrics.RecordOutbox(metrics.OutcomeOK, 1)
		span.SetStatus(codes.Ok, "")
		return
	}
	telemetry.RecordError(span, err)

	fields := []zap.Field{
		zap.String("message_id", msg.ID),
		zap.String("ticket_id", msg.TicketID),
		zap.Int("attempt", msg.RetryCount+1),
		zap.Int("max_retries", msg.MaxRetries),
		zap.Error(err),
	}

	// Last attempt: park the event on the dead letter topic instead of dropping it
	if msg.RetryCount+1 >= msg.MaxRetries {
		dlq := msg.Topic + DeadLetterSuffix
		if dlqErr := w.producer.Produce(ctx, toKafkaMessage(msg, dlq, w.clock.Now())); dlqErr == nil {
			w.log.Warn("outbox message dead-lettered", append(fields, zap.String("topic", dlq))...)
			w.markPublished(ctx, msg)
			w.metrics.RecordOutbox(metrics.OutcomeDeadLettered, 1)
			return
		}
	}

	w.log.Error("failed to relay outbox message", fields...)
	w.metrics.RecordOutbox(metrics.OutcomeError, 1)
	if markErr := w.outbox.MarkAsFailed(ctx, msg.ID, err.Error()); markErr != nil {
		w.log.Error("failed to mark outbox message as failed",
			zap.String("message_id", msg.ID),
			zap.Error(markErr),
		)
	}
}

func (w *OutboxWorker) markPublished(ctx context.Context, msg *domain.OutboxMessage) {
	if err := w.outbox.MarkAsPublished(ctx, msg.ID, w.clock.Now()); err != nil {
		w.log.Error("failed to mark outbox message as published",
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	}
}

func toKafkaMessage(msg *domain.OutboxMessage, topic string, now time.Time) *kafka.Message {
	return &kafka.Message{
		Topic: topic,
		Key:   []byte(msg.PartitionKey),
		Value: msg.Payload,
		Headers: map[string]string{
			"event_type":   string(msg.EventType),
			"event_id":     msg.ID,
			"ticket_id":    msg.TicketID,
			"content_type": "application/json",
			"source":       "outbox-relay",
		},
		Timestamp: now,
	}
}
