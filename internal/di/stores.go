package di

import (
	"context"
	"errors"
	"fmt"

	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/config"
)

// Stores are the repositories selected by configuration
type Stores struct {
	Inventory repository.InventoryRepository
	Events    repository.EventRepository
	Tickets   repository.TicketRepository

	// Outbox is set when ticket events are written transactionally with tickets
	Outbox *repository.PostgresOutboxRepository
	// Dirty is set when the ledger lives outside the event store and needs snapshots
	Dirty repository.DirtyTracker
}

// NewMemoryStores returns an in-process store set, used by tests and single-node demos
func NewMemoryStores() *Stores {
	inventory := repository.NewMemoryInventoryRepository()
	return &Stores{
		Inventory: inventory,
		Events:    inventory,
		Tickets:   repository.NewMemoryTicketRepository(),
	}
}

// NewStores builds the event store, ticket store and ledger named by cfg over infra
func NewStores(ctx context.Context, cfg *config.Config, infra *Infrastructure) (*Stores, error) {
	if infra == nil {
		infra = &Infrastructure{}
	}
	inv := cfg.Inventory

	var stores *Stores
	switch inv.StoreBackend {
	case config.BackendMemory:
		stores = NewMemoryStores()

	case config.BackendPostgres:
		if infra.DB == nil {
			return nil, errors.New("postgres store selected but no database connection")
		}
		pool := infra.DB.Pool()
		events := repository.NewPostgresInventoryRepository(pool)
		tickets := repository.NewPostgresTicketRepository(pool)
		stores = &Stores{Inventory: events, Events: events, Tickets: tickets}
		if cfg.Outbox.Enabled {
			stores.Outbox = repository.NewPostgresOutboxRepository(pool)
			tickets.WithOutbox(stores.Outbox, cfg.Kafka.TicketEventsTopic)
		}

	case config.BackendMongo:
		if infra.Mongo == nil {
			return nil, errors.New("mongo store selected but no mongodb connection")
		}
		db := infra.Mongo.Database()
		events := repository.NewMongoInventoryRepository(db)
		tickets := repository.NewMongoTicketRepository(db)
		if err := events.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("failed to create event indexes: %w", err)
		}
		if err := tickets.EnsureIndexes(ctx); err != nil {
			return nil, fmt.Errorf("failed to create ticket indexes: %w", err)
		}
		stores = &Stores{Inventory: events, Events: events, Tickets: tickets}

	default:
		return nil, fmt.Errorf("unknown store backend %q", inv.StoreBackend)
	}

	if inv.LedgerBackend == config.BackendRedis {
		if infra.Redis == nil {
			return nil, errors.New("redis ledger selected but no redis connection")
		}
		ledger := repository.NewRedisLedgerRepository(infra.Redis)
		if err := ledger.LoadScripts(ctx); err != nil {
			return nil, fmt.Errorf("failed to load ledger scripts: %w", err)
		}
		stores.Inventory = ledger
		stores.Dirty = ledger
	}

	return stores, nil
}
