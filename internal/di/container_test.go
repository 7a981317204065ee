package di

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/handler"
	"github.com/prohmpiriya/ticket-inventory/internal/service"
	"github.com/prohmpiriya/ticket-inventory/pkg/config"
	"github.com/prohmpiriya/ticket-inventory/pkg/middleware"
)

func TestNewContainer_MemoryRoundTrip(t *testing.T) {
	c := NewContainer(&ContainerConfig{})
	ctx := context.Background()

	assert.Nil(t, c.Syncer)
	assert.IsType(t, &service.NoOpEventPublisher{}, c.EventPublisher)

	_, err := c.AdminService.PublishEvent(ctx, "tenant-1", "evt-1", 2)
	require.NoError(t, err)

	ticket, err := c.PurchaseFlow.Purchase(ctx, "buyer-1", "evt-1")
	require.NoError(t, err)

	availability, err := c.QueryService.RemainingSeats(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), availability.Remaining)

	attendee, err := c.Validator.Validate(ctx, "tenant-1", ticket.ID, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", attendee.BuyerID)

	_, err = c.Validator.Validate(ctx, "tenant-1", ticket.ID, "evt-1")
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)
}

func TestContainer_CheckInRejectsOtherTenant(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c := NewContainer(&ContainerConfig{})
	ctx := context.Background()

	_, err := c.AdminService.PublishEvent(ctx, "tenant-a", "evt-a", 5)
	require.NoError(t, err)
	ticket, err := c.PurchaseFlow.Purchase(ctx, "buyer-1", "evt-a")
	require.NoError(t, err)

	router := gin.New()
	handler.RegisterRoutes(router, &handler.Routes{
		Health:    c.HealthHandler,
		Inventory: c.InventoryHandler,
		Admin:     c.AdminHandler,
	})

	checkIn := func(tenantID string) *httptest.ResponseRecorder {
		body, err := json.Marshal(map[string]string{"ticket_id": ticket.ID})
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodPost, "/api/v1/admin/events/evt-a/check-ins", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set(middleware.TenantIDHeader, tenantID)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := checkIn("tenant-b")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "TENANT_MISMATCH")

	stored, err := c.Stores.Tickets.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	assert.False(t, stored.CheckedIn)

	w = checkIn("tenant-a")
	assert.Equal(t, http.StatusOK, w.Code)

	w = checkIn("tenant-a")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestNewStores(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		ledger  string
		store   string
		wantErr bool
	}{
		{name: "memory", ledger: config.BackendMemory, store: config.BackendMemory},
		{name: "postgres without database", ledger: config.BackendPostgres, store: config.BackendPostgres, wantErr: true},
		{name: "mongo without client", ledger: config.BackendMongo, store: config.BackendMongo, wantErr: true},
		{name: "redis ledger without client", ledger: config.BackendRedis, store: config.BackendMemory, wantErr: true},
		{name: "unknown store", ledger: config.BackendMemory, store: "cassandra", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{Inventory: config.InventoryConfig{LedgerBackend: tt.ledger, StoreBackend: tt.store}}
			stores, err := NewStores(ctx, cfg, nil)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, stores.Inventory)
			assert.NotNil(t, stores.Events)
			assert.NotNil(t, stores.Tickets)
			assert.Nil(t, stores.Outbox)
			assert.Nil(t, stores.Dirty)
		})
	}
}

func TestInfrastructure_EventPublisher(t *testing.T) {
	infra := &Infrastructure{}

	publisher, err := infra.EventPublisher(&config.Config{})
	require.NoError(t, err)
	assert.IsType(t, &service.NoOpEventPublisher{}, publisher)

	publisher, err = infra.EventPublisher(&config.Config{Outbox: config.OutboxConfig{Enabled: true}})
	require.NoError(t, err)
	assert.IsType(t, &service.NoOpEventPublisher{}, publisher)

	assert.Empty(t, infra.HealthCheckers())
	assert.NoError(t, infra.Close(context.Background()))
}
