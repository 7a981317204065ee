package service

import (
	"context"
	"sync"
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/kafka"
)

// MockInventoryRepository is a mock implementation of InventoryRepository
type MockInventoryRepository struct {
	ConditionalIncrementFunc func(ctx context.Context, eventID string) (*repository.IncrementResult, error)
	ReleaseFunc              func(ctx context.Context, eventID, reservationID string) (*repository.ReleaseResult, error)
	GetInventoryFunc         func(ctx context.Context, eventID string) (*domain.EventInventory, error)
}

func (m *MockInventoryRepository) ConditionalIncrement(ctx context.Context, eventID string) (*repository.IncrementResult, error) {
	if m.ConditionalIncrementFunc != nil {
		return m.ConditionalIncrementFunc(ctx, eventID)
	}
	return &repository.IncrementResult{Success: true, SoldCount: 1, CapacityTotal: 100}, nil
}

func (m *MockInventoryRepository) Release(ctx context.Context, eventID, reservationID string) (*repository.ReleaseResult, error) {
	if m.ReleaseFunc != nil {
		return m.ReleaseFunc(ctx, eventID, reservationID)
	}
	return &repository.ReleaseResult{Success: true}, nil
}

func (m *MockInventoryRepository) GetInventory(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	if m.GetInventoryFunc != nil {
		return m.GetInventoryFunc(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

// MockEventRepository is a mock implementation of EventRepository
type MockEventRepository struct {
	CreateEventFunc     func(ctx context.Context, event *domain.EventInventory) error
	GetEventFunc        func(ctx context.Context, eventID string) (*domain.EventInventory, error)
	SoftDeleteEventFunc func(ctx context.Context, eventID string) error
	ListByTenantFunc    func(ctx context.Context, tenantID string) ([]*domain.EventInventory, error)
	UpdateSoldCountFunc func(ctx context.Context, eventID string, soldCount int64) error
}

func (m *MockEventRepository) CreateEvent(ctx context.Context, event *domain.EventInventory) error {
	if m.CreateEventFunc != nil {
		return m.CreateEventFunc(ctx, event)
	}
	return nil
}

func (m *MockEventRepository) GetEvent(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	if m.GetEventFunc != nil {
		return m.GetEventFunc(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockEventRepository) SoftDeleteEvent(ctx context.Context, eventID string) error {
	if m.SoftDeleteEventFunc != nil {
		return m.SoftDeleteEventFunc(ctx, eventID)
	}
	return nil
}

func (m *MockEventRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.EventInventory, error) {
	if m.ListByTenantFunc != nil {
		return m.ListByTenantFunc(ctx, tenantID)
	}
	return []*domain.EventInventory{}, nil
}

func (m *MockEventRepository) UpdateSoldCount(ctx context.Context, eventID string, soldCount int64) error {
	if m.UpdateSoldCountFunc != nil {
		return m.UpdateSoldCountFunc(ctx, eventID, soldCount)
	}
	return nil
}

// MockTicketRepository is a mock implementation of TicketRepository
type MockTicketRepository struct {
	CreateTicketFunc            func(ctx context.Context, ticket *domain.Ticket) error
	ConditionalSetCheckedInFunc func(ctx context.Context, ticketID, eventID string, at time.Time) (bool, error)
	GetTicketFunc               func(ctx context.Context, ticketID string) (*domain.Ticket, error)
	GetByReservationFunc        func(ctx context.Context, reservationID string) (*domain.Ticket, error)
	ListByBuyerFunc             func(ctx context.Context, buyerID string) ([]*domain.Ticket, error)
	ListByEventFunc             func(ctx context.Context, eventID string) ([]*domain.Ticket, error)
	CountCheckedInFunc          func(ctx context.Context, eventID string) (int64, error)
	CountIssuedFunc             func(ctx context.Context, eventID string) (int64, error)
	DeleteByBuyerFunc           func(ctx context.Context, buyerID string) ([]*domain.Ticket, error)
}

func (m *MockTicketRepository) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	if m.CreateTicketFunc != nil {
		return m.CreateTicketFunc(ctx, ticket)
	}
	return nil
}

func (m *MockTicketRepository) ConditionalSetCheckedIn(ctx context.Context, ticketID, eventID string, at time.Time) (bool, error) {
	if m.ConditionalSetCheckedInFunc != nil {
		return m.ConditionalSetCheckedInFunc(ctx, ticketID, eventID, at)
	}
	return true, nil
}

func (m *MockTicketRepository) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if m.GetTicketFunc != nil {
		return m.GetTicketFunc(ctx, ticketID)
	}
	return nil, domain.ErrTicketNotFound
}

func (m *MockTicketRepository) GetByReservation(ctx context.Context, reservationID string) (*domain.Ticket, error) {
	if m.GetByReservationFunc != nil {
		return m.GetByReservationFunc(ctx, reservationID)
	}
	return nil, domain.ErrTicketNotFound
}

func (m *MockTicketRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	if m.ListByBuyerFunc != nil {
		return m.ListByBuyerFunc(ctx, buyerID)
	}
	return []*domain.Ticket{}, nil
}

func (m *MockTicketRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
	if m.ListByEventFunc != nil {
		return m.ListByEventFunc(ctx, eventID)
	}
	return []*domain.Ticket{}, nil
}

func (m *MockTicketRepository) CountCheckedIn(ctx context.Context, eventID string) (int64, error) {
	if m.CountCheckedInFunc != nil {
		return m.CountCheckedInFunc(ctx, eventID)
	}
	return 0, nil
}

func (m *MockTicketRepository) CountIssued(ctx context.Context, eventID string) (int64, error) {
	if m.CountIssuedFunc != nil {
		return m.CountIssuedFunc(ctx, eventID)
	}
	return 0, nil
}

func (m *MockTicketRepository) DeleteByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	if m.DeleteByBuyerFunc != nil {
		return m.DeleteByBuyerFunc(ctx, buyerID)
	}
	return []*domain.Ticket{}, nil
}

// MockEventSyncer is a mock implementation of EventSyncer
type MockEventSyncer struct {
	mu    sync.Mutex
	calls []string

	SyncEventFunc func(ctx context.Context, eventID string) error
}

func (m *MockEventSyncer) SyncEvent(ctx context.Context, eventID string) error {
	m.mu.Lock()
	m.calls = append(m.calls, eventID)
	m.mu.Unlock()
	if m.SyncEventFunc != nil {
		return m.SyncEventFunc(ctx, eventID)
	}
	return nil
}

func (m *MockEventSyncer) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.calls...)
}

// MockTicketEventPublisher records published ticket events
type MockTicketEventPublisher struct {
	mu     sync.Mutex
	events []*domain.TicketEvent
	err    error
}

func (m *MockTicketEventPublisher) Publish(ctx context.Context, event *domain.TicketEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}

func (m *MockTicketEventPublisher) Close() error {
	return nil
}

func (m *MockTicketEventPublisher) Events() []*domain.TicketEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*domain.TicketEvent(nil), m.events...)
}

// MockMessageProducer records produced Kafka messages
type MockMessageProducer struct {
	mu       sync.Mutex
	messages []*kafka.Message
	err      error
	closed   bool
}

func (m *MockMessageProducer) Produce(ctx context.Context, msg *kafka.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, msg)
	return nil
}

func (m *MockMessageProducer) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}
