package di

import (
	"github.com/prohmpiriya/ticket-inventory/internal/clock"
	"github.com/prohmpiriya/ticket-inventory/internal/handler"
	"github.com/prohmpiriya/ticket-inventory/internal/metrics"
	"github.com/prohmpiriya/ticket-inventory/internal/service"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
)

// ServiceName identifies this service in logs, traces and health responses
const ServiceName = "ticket-inventory"

// Container holds all dependencies for the inventory service
type Container struct {
	// Repositories
	Stores *Stores

	// Publishers
	EventPublisher service.TicketEventPublisher

	// Services
	Syncer       service.EventSyncer
	Ledger       service.CapacityLedger
	Issuer       service.TicketIssuer
	Validator    service.CheckInValidator
	QueryService service.InventoryQueryService
	PurchaseFlow service.PurchaseService
	AdminService service.EventAdminService

	// Handlers
	HealthHandler    *handler.HealthHandler
	InventoryHandler *handler.InventoryHandler
	AdminHandler     *handler.AdminHandler
}

// ContainerConfig contains configuration for building the container
type ContainerConfig struct {
	Stores         *Stores
	EventPublisher service.TicketEventPublisher
	Metrics        *metrics.Metrics
	Logger         *logger.Logger
	Clock          clock.Clock
	Backends       map[string]handler.HealthChecker

	ReleaseOnIssueFailure bool
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *ContainerConfig) *Container {
	stores := cfg.Stores
	if stores == nil {
		stores = NewMemoryStores()
	}
	publisher := cfg.EventPublisher
	if publisher == nil {
		publisher = service.NewNoOpEventPublisher()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.NewSystem()
	}

	c := &Container{
		Stores:         stores,
		EventPublisher: publisher,
	}

	// Initialize services
	c.Syncer = service.NewEventSyncer(stores.Events, stores.Tickets, stores.Inventory)
	c.Ledger = service.NewCapacityLedger(stores.Inventory, stores.Tickets, c.Syncer, &service.CapacityLedgerConfig{
		Clock:   clk,
		Metrics: cfg.Metrics,
		Logger:  log.Named("ledger"),
	})
	c.Issuer = service.NewTicketIssuer(stores.Tickets, &service.TicketIssuerConfig{
		Clock:   clk,
		Metrics: cfg.Metrics,
	})
	c.Validator = service.NewCheckInValidator(stores.Events, stores.Tickets, &service.CheckInValidatorConfig{
		Clock:     clk,
		Metrics:   cfg.Metrics,
		Logger:    log.Named("checkin"),
		Publisher: publisher,
	})
	c.QueryService = service.NewInventoryQueryService(stores.Inventory, stores.Events, stores.Tickets)
	c.PurchaseFlow = service.NewPurchaseService(c.Ledger, c.Issuer, &service.PurchaseServiceConfig{
		ReleaseOnIssueFailure: cfg.ReleaseOnIssueFailure,
		Publisher:             publisher,
		Logger:                log.Named("purchase"),
	})
	c.AdminService = service.NewEventAdminService(stores.Events, stores.Tickets, c.Syncer, &service.EventAdminConfig{
		Clock:     clk,
		Logger:    log.Named("admin"),
		Publisher: publisher,
	})

	// Initialize handlers
	c.HealthHandler = handler.NewHealthHandler(ServiceName, cfg.Backends)
	c.InventoryHandler = handler.NewInventoryHandler(c.PurchaseFlow, c.QueryService)
	c.AdminHandler = handler.NewAdminHandler(c.AdminService, c.QueryService, c.Validator)

	return c
}
