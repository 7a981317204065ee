package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
)

// MockPurchaseService is a mock implementation of PurchaseService for testing
type MockPurchaseService struct {
	PurchaseFunc func(ctx context.Context, buyerID, eventID string) (*domain.Ticket, error)
}

func (m *MockPurchaseService) Purchase(ctx context.Context, buyerID, eventID string) (*domain.Ticket, error) {
	if m.PurchaseFunc != nil {
		return m.PurchaseFunc(ctx, buyerID, eventID)
	}
	return nil, domain.ErrSoldOut
}

// MockInventoryQueryService is a mock implementation of InventoryQueryService for testing
type MockInventoryQueryService struct {
	RemainingSeatsFunc   func(ctx context.Context, eventID string) (*domain.Availability, error)
	ListBuyerTicketsFunc func(ctx context.Context, buyerID string) ([]*domain.Ticket, error)
	ListEventTicketsFunc func(ctx context.Context, tenantID, eventID string) ([]*domain.Ticket, error)
	EventSummaryFunc     func(ctx context.Context, tenantID, eventID string) (*domain.EventSummary, error)
}

func (m *MockInventoryQueryService) RemainingSeats(ctx context.Context, eventID string) (*domain.Availability, error) {
	if m.RemainingSeatsFunc != nil {
		return m.RemainingSeatsFunc(ctx, eventID)
	}
	return nil, domain.ErrEventNotFound
}

func (m *MockInventoryQueryService) ListBuyerTickets(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	if m.ListBuyerTicketsFunc != nil {
		return m.ListBuyerTicketsFunc(ctx, buyerID)
	}
	return nil, nil
}

func (m *MockInventoryQueryService) ListEventTickets(ctx context.Context, tenantID, eventID string) ([]*domain.Ticket, error) {
	if m.ListEventTicketsFunc != nil {
		return m.ListEventTicketsFunc(ctx, tenantID, eventID)
	}
	return nil, nil
}

func (m *MockInventoryQueryService) EventSummary(ctx context.Context, tenantID, eventID string) (*domain.EventSummary, error) {
	if m.EventSummaryFunc != nil {
		return m.EventSummaryFunc(ctx, tenantID, eventID)
	}
	return nil, domain.ErrEventNotFound
}

// MockEventAdminService is a mock implementation of EventAdminService for testing
type MockEventAdminService struct {
	PublishEventFunc      func(ctx context.Context, tenantID, eventID string, capacityTotal int64) (*domain.EventInventory, error)
	DeleteEventFunc       func(ctx context.Context, tenantID, eventID string) error
	ListEventsFunc        func(ctx context.Context, tenantID string) ([]*domain.EventInventory, error)
	PurgeBuyerTicketsFunc func(ctx context.Context, buyerID string) (int, error)
}

func (m *MockEventAdminService) PublishEvent(ctx context.Context, tenantID, eventID string, capacityTotal int64) (*domain.EventInventory, error) {
	if m.PublishEventFunc != nil {
		return m.PublishEventFunc(ctx, tenantID, eventID, capacityTotal)
	}
	return &domain.EventInventory{ID: eventID, TenantID: tenantID, CapacityTotal: capacityTotal}, nil
}

func (m *MockEventAdminService) DeleteEvent(ctx context.Context, tenantID, eventID string) error {
	if m.DeleteEventFunc != nil {
		return m.DeleteEventFunc(ctx, tenantID, eventID)
	}
	return nil
}

func (m *MockEventAdminService) ListEvents(ctx context.Context, tenantID string) ([]*domain.EventInventory, error) {
	if m.ListEventsFunc != nil {
		return m.ListEventsFunc(ctx, tenantID)
	}
	return nil, nil
}

func (m *MockEventAdminService) PurgeBuyerTickets(ctx context.Context, buyerID string) (int, error) {
	if m.PurgeBuyerTicketsFunc != nil {
		return m.PurgeBuyerTicketsFunc(ctx, buyerID)
	}
	return 0, nil
}

// MockCheckInValidator is a mock implementation of CheckInValidator for testing
type MockCheckInValidator struct {
	ValidateFunc func(ctx context.Context, tenantID, ticketID, requestingEventID string) (*domain.Attendee, error)
}

func (m *MockCheckInValidator) Validate(ctx context.Context, tenantID, ticketID, requestingEventID string) (*domain.Attendee, error) {
	if m.ValidateFunc != nil {
		return m.ValidateFunc(ctx, tenantID, ticketID, requestingEventID)
	}
	return nil, domain.ErrTicketNotFound
}

type testServices struct {
	purchase  *MockPurchaseService
	query     *MockInventoryQueryService
	admin     *MockEventAdminService
	validator *MockCheckInValidator
	backends  map[string]HealthChecker
}

func newTestServices() *testServices {
	return &testServices{
		purchase:  &MockPurchaseService{},
		query:     &MockInventoryQueryService{},
		admin:     &MockEventAdminService{},
		validator: &MockCheckInValidator{},
	}
}

func setupTestRouter(s *testServices) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, &Routes{
		Health:    NewHealthHandler("ticket-inventory", s.backends),
		Inventory: NewInventoryHandler(s.purchase, s.query),
		Admin:     NewAdminHandler(s.admin, s.query, s.validator),
	})
	return router
}
