package di

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/prohmpiriya/ticket-inventory/internal/handler"
	"github.com/prohmpiriya/ticket-inventory/internal/migrations"
	"github.com/prohmpiriya/ticket-inventory/internal/service"
	"github.com/prohmpiriya/ticket-inventory/pkg/config"
	"github.com/prohmpiriya/ticket-inventory/pkg/database"
	"github.com/prohmpiriya/ticket-inventory/pkg/kafka"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
	"github.com/prohmpiriya/ticket-inventory/pkg/mongodb"
	pkgredis "github.com/prohmpiriya/ticket-inventory/pkg/redis"
)

// Infrastructure holds the connections opened for the configured backends.
// A nil field means the backend is not in use.
type Infrastructure struct {
	DB    *database.PostgresDB
	Redis *pkgredis.Client
	Mongo *mongodb.Client
	Kafka *kafka.Producer
}

// Connect opens only the backends the configuration selects
func Connect(ctx context.Context, cfg *config.Config, log *logger.Logger) (*Infrastructure, error) {
	if log == nil {
		log = logger.Nop()
	}
	infra := &Infrastructure{}

	notify := func(name string) func(int, error, time.Duration) {
		return func(attempt int, err error, wait time.Duration) {
			log.Warn("Backend not reachable yet",
				zap.String("backend", name),
				zap.Int("attempt", attempt),
				zap.Duration("retry_in", wait),
				zap.Error(err),
			)
		}
	}

	if cfg.UsesPostgres() {
		db, err := database.NewPostgres(ctx, database.FromConfig(&cfg.Database, cfg.OTel.Enabled), notify("postgres"))
		if err != nil {
			return nil, err
		}
		infra.DB = db
		log.Info("Database connected")

		if cfg.Database.AutoMigrate {
			if err := migrations.Apply(ctx, db.Pool(), log); err != nil {
				infra.Close(ctx)
				return nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
		}
	}

	if cfg.UsesMongo() {
		client, err := mongodb.NewClient(ctx, mongodb.FromConfig(&cfg.MongoDB), notify("mongodb"))
		if err != nil {
			infra.Close(ctx)
			return nil, err
		}
		infra.Mongo = client
		log.Info("MongoDB connected")
	}

	if cfg.UsesRedis() {
		client, err := pkgredis.NewClient(ctx, pkgredis.FromConfig(&cfg.Redis), notify("redis"))
		if err != nil {
			infra.Close(ctx)
			return nil, err
		}
		infra.Redis = client
		log.Info("Redis connected")
	}

	if cfg.Kafka.Enabled {
		producer, err := kafka.NewProducer(ctx, &kafka.ProducerConfig{
			Brokers:  cfg.Kafka.Brokers,
			ClientID: cfg.Kafka.ClientID,
		})
		if err != nil {
			infra.Close(ctx)
			return nil, err
		}
		infra.Kafka = producer
		log.Info("Kafka producer connected", zap.Strings("brokers", cfg.Kafka.Brokers))
	}

	return infra, nil
}

// EventPublisher picks how ticket events leave the service. With the outbox on, events
// are written in the ticket transaction and the relay publishes them.
func (i *Infrastructure) EventPublisher(cfg *config.Config) (service.TicketEventPublisher, error) {
	if cfg.Outbox.Enabled || i.Kafka == nil {
		return service.NewNoOpEventPublisher(), nil
	}
	publisher, err := service.NewKafkaEventPublisher(i.Kafka, &service.EventPublisherConfig{
		Topic:       cfg.Kafka.TicketEventsTopic,
		ServiceName: ServiceName,
	})
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

// HealthCheckers lists the open backends for the readiness check
func (i *Infrastructure) HealthCheckers() map[string]handler.HealthChecker {
	checks := make(map[string]handler.HealthChecker)
	if i.DB != nil {
		checks["postgres"] = i.DB
	}
	if i.Redis != nil {
		checks["redis"] = i.Redis
	}
	if i.Mongo != nil {
		checks["mongodb"] = i.Mongo
	}
	if i.Kafka != nil {
		checks["kafka"] = i.Kafka
	}
	return checks
}

// Close releases every open connection
func (i *Infrastructure) Close(ctx context.Context) error {
	var errs []error
	if i.Kafka != nil {
		i.Kafka.Close()
	}
	if i.Redis != nil {
		errs = append(errs, i.Redis.Close())
	}
	if i.Mongo != nil {
		errs = append(errs, i.Mongo.Close(ctx))
	}
	if i.DB != nil {
		i.DB.Close()
	}
	return errors.Join(errs...)
}
