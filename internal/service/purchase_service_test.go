package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
)

type purchaseFixture struct {
	inventory *repository.MemoryInventoryRepository
	tickets   *MockTicketRepository
	publisher *MockTicketEventPublisher
	service   PurchaseService
}

func newPurchaseFixture(t *testing.T, capacity int64, releaseOnFailure bool, createErr error) *purchaseFixture {
	t.Helper()
	inventory := repository.NewMemoryInventoryRepository()
	seedMemoryEvent(t, inventory, "evt-1", "tenant-1", capacity)

	backing := repository.NewMemoryTicketRepository()
	tickets := &MockTicketRepository{
		CreateTicketFunc: func(ctx context.Context, ticket *domain.Ticket) error {
			if createErr != nil {
				return createErr
			}
			return backing.CreateTicket(ctx, ticket)
		},
		GetByReservationFunc: backing.GetByReservation,
	}
	publisher := &MockTicketEventPublisher{}

	ledger := newTestLedger(inventory, tickets, nil)
	issuer := NewTicketIssuer(tickets, nil)
	svc := NewPurchaseService(ledger, issuer, &PurchaseServiceConfig{
		ReleaseOnIssueFailure: releaseOnFailure,
		Publisher:             publisher,
		Logger:                logger.Nop(),
	})

	return &purchaseFixture{inventory: inventory, tickets: tickets, publisher: publisher, service: svc}
}

func (f *purchaseFixture) soldCount(t *testing.T) int64 {
	t.Helper()
	event, err := f.inventory.GetInventory(context.Background(), "evt-1")
	require.NoError(t, err)
	return event.SoldCount
}

func TestPurchaseService_Purchase(t *testing.T) {
	f := newPurchaseFixture(t, 2, false, nil)

	ticket, err := f.service.Purchase(context.Background(), "buyer-1", "evt-1")
	require.NoError(t, err)
	assert.Equal(t, "buyer-1", ticket.BuyerID)
	assert.Equal(t, "evt-1", ticket.EventID)
	assert.False(t, ticket.CheckedIn)
	assert.Equal(t, int64(1), f.soldCount(t))

	events := f.publisher.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.TicketEventIssued, events[0].Type)
	assert.Equal(t, ticket.ID, events[0].TicketID)
}

func TestPurchaseService_Validation(t *testing.T) {
	f := newPurchaseFixture(t, 2, false, nil)

	_, err := f.service.Purchase(context.Background(), "", "evt-1")
	assert.ErrorIs(t, err, domain.ErrInvalidBuyerID)
	_, err = f.service.Purchase(context.Background(), "buyer-1", "")
	assert.ErrorIs(t, err, domain.ErrInvalidEventID)

	assert.Equal(t, int64(0), f.soldCount(t))
}

func TestPurchaseService_SoldOut(t *testing.T) {
	f := newPurchaseFixture(t, 1, false, nil)

	_, err := f.service.Purchase(context.Background(), "buyer-1", "evt-1")
	require.NoError(t, err)
	_, err = f.service.Purchase(context.Background(), "buyer-2", "evt-1")
	assert.ErrorIs(t, err, domain.ErrSoldOut)
	assert.Len(t, f.publisher.Events(), 1)
}

func TestPurchaseService_IssueFailurePolicy(t *testing.T) {
	tests := []struct {
		name             string
		releaseOnFailure bool
		createErr        error
		wantSold         int64
	}{
		{
			name:             "strict keeps slot consumed",
			releaseOnFailure: false,
			createErr:        errors.New("insert failed"),
			wantSold:         1,
		},
		{
			name:             "release on definitive failure",
			releaseOnFailure: true,
			createErr:        errors.New("insert failed"),
			wantSold:         0,
		},
		{
			name:             "no release on timeout",
			releaseOnFailure: true,
			createErr:        fmt.Errorf("insert: %w", context.DeadlineExceeded),
			wantSold:         1,
		},
		{
			name:             "no release on cancel",
			releaseOnFailure: true,
			createErr:        context.Canceled,
			wantSold:         1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newPurchaseFixture(t, 3, tt.releaseOnFailure, tt.createErr)

			_, err := f.service.Purchase(context.Background(), "buyer-1", "evt-1")
			require.Error(t, err)
			assert.True(t, domain.IsPersistenceError(err))
			assert.Equal(t, tt.wantSold, f.soldCount(t))
			assert.Empty(t, f.publisher.Events())
		})
	}
}

func TestPurchaseService_ConcurrentBuyersNeverOversell(t *testing.T) {
	const capacity = 25
	f := newPurchaseFixture(t, capacity, false, nil)

	var bought, soldOut atomic.Int32
	var g errgroup.Group
	for i := 0; i < 100; i++ {
		g.Go(func() error {
			_, err := f.service.Purchase(context.Background(), fmt.Sprintf("buyer-%d", i), "evt-1")
			switch {
			case err == nil:
				bought.Add(1)
			case errors.Is(err, domain.ErrSoldOut):
				soldOut.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(capacity), bought.Load())
	assert.Equal(t, int32(100-capacity), soldOut.Load())
	assert.Equal(t, int64(capacity), f.soldCount(t))
	assert.Len(t, f.publisher.Events(), capacity)
}
