package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
)

// syncingLedger is an inventory store that also caches events
type syncingLedger struct {
	MockInventoryRepository
	mu     sync.Mutex
	synced []*domain.EventInventory
}

func (l *syncingLedger) SyncEvent(ctx context.Context, event *domain.EventInventory) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.synced = append(l.synced, event)
	return nil
}

func TestNewEventSyncer_NilForPlainLedger(t *testing.T) {
	syncer := NewEventSyncer(&MockEventRepository{}, &MockTicketRepository{}, repository.NewMemoryInventoryRepository())
	assert.Nil(t, syncer)

	syncer = NewEventSyncer(&MockEventRepository{}, &MockTicketRepository{}, &syncingLedger{})
	assert.NotNil(t, syncer)
}

func TestEventSyncer_SyncEvent(t *testing.T) {
	ledger := &syncingLedger{}
	events := &MockEventRepository{
		GetEventFunc: func(ctx context.Context, eventID string) (*domain.EventInventory, error) {
			return &domain.EventInventory{ID: eventID, TenantID: "tenant-1", CapacityTotal: 10, Deleted: true}, nil
		},
	}
	syncer := NewEventSyncer(events, &MockTicketRepository{}, ledger)

	require.NoError(t, syncer.SyncEvent(context.Background(), "evt-1"))
	require.Len(t, ledger.synced, 1)
	assert.True(t, ledger.synced[0].Deleted)
}

func TestEventSyncer_SeedsFromIssuedCount(t *testing.T) {
	tests := []struct {
		name     string
		snapshot int64
		issued   int64
		want     int64
	}{
		{name: "snapshot behind issued tickets", snapshot: 2, issued: 7, want: 7},
		{name: "snapshot ahead of issued tickets", snapshot: 5, issued: 3, want: 5},
		{name: "issued count capped at capacity", snapshot: 0, issued: 12, want: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ledger := &syncingLedger{}
			events := &MockEventRepository{
				GetEventFunc: func(ctx context.Context, eventID string) (*domain.EventInventory, error) {
					return &domain.EventInventory{ID: eventID, TenantID: "tenant-1", CapacityTotal: 10, SoldCount: tt.snapshot}, nil
				},
			}
			tickets := &MockTicketRepository{
				CountIssuedFunc: func(ctx context.Context, eventID string) (int64, error) {
					return tt.issued, nil
				},
			}

			require.NoError(t, NewEventSyncer(events, tickets, ledger).SyncEvent(context.Background(), "evt-1"))
			require.Len(t, ledger.synced, 1)
			assert.Equal(t, tt.want, ledger.synced[0].SoldCount)
		})
	}
}

func TestEventSyncer_CountFailure(t *testing.T) {
	ledger := &syncingLedger{}
	events := &MockEventRepository{
		GetEventFunc: func(ctx context.Context, eventID string) (*domain.EventInventory, error) {
			return &domain.EventInventory{ID: eventID, TenantID: "tenant-1", CapacityTotal: 10}, nil
		},
	}
	tickets := &MockTicketRepository{
		CountIssuedFunc: func(ctx context.Context, eventID string) (int64, error) {
			return 0, errors.New("connection refused")
		},
	}

	err := NewEventSyncer(events, tickets, ledger).SyncEvent(context.Background(), "evt-1")
	assert.Error(t, err)
	assert.Empty(t, ledger.synced)
}

// evictingLedger is a memory ledger that keeps its own copy of events and can lose it
type evictingLedger struct {
	mu    sync.Mutex
	cache *repository.MemoryInventoryRepository
}

func newEvictingLedger() *evictingLedger {
	return &evictingLedger{cache: repository.NewMemoryInventoryRepository()}
}

func (l *evictingLedger) current() *repository.MemoryInventoryRepository {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cache
}

func (l *evictingLedger) evict() {
	l.mu.Lock()
	l.cache = repository.NewMemoryInventoryRepository()
	l.mu.Unlock()
}

func (l *evictingLedger) ConditionalIncrement(ctx context.Context, eventID string) (*repository.IncrementResult, error) {
	return l.current().ConditionalIncrement(ctx, eventID)
}

func (l *evictingLedger) Release(ctx context.Context, eventID, reservationID string) (*repository.ReleaseResult, error) {
	return l.current().Release(ctx, eventID, reservationID)
}

func (l *evictingLedger) GetInventory(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	return l.current().GetInventory(ctx, eventID)
}

func (l *evictingLedger) SyncEvent(ctx context.Context, event *domain.EventInventory) error {
	cache := l.current()
	if _, err := cache.GetEvent(ctx, event.ID); err == nil {
		if event.Deleted {
			return cache.SoftDeleteEvent(ctx, event.ID)
		}
		return nil
	}
	cp := *event
	return cache.CreateEvent(ctx, &cp)
}

func TestEventSyncer_LostLedgerNeverOversells(t *testing.T) {
	ctx := context.Background()
	const capacity = 10

	// The event store only holds the publish-time snapshot of sold_count
	events := repository.NewMemoryInventoryRepository()
	seedMemoryEvent(t, events, "evt-1", "tenant-1", capacity)
	tickets := repository.NewMemoryTicketRepository()
	ledger := newEvictingLedger()

	syncer := NewEventSyncer(events, tickets, ledger)
	capacityLedger := newTestLedger(ledger, tickets, syncer)
	issuer := NewTicketIssuer(tickets, nil)

	buy := func() error {
		token, err := capacityLedger.Reserve(ctx, "evt-1")
		if err != nil {
			return err
		}
		_, err = issuer.Issue(ctx, token, "buyer-1", "evt-1")
		return err
	}

	for i := 0; i < 7; i++ {
		require.NoError(t, buy())
	}
	ledger.evict()

	for {
		err := buy()
		if errors.Is(err, domain.ErrSoldOut) {
			break
		}
		require.NoError(t, err)
	}

	issued, err := tickets.CountIssued(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(capacity), issued)

	got, err := ledger.GetInventory(ctx, "evt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(capacity), got.SoldCount)
}

func TestEventSyncer_MissingEvent(t *testing.T) {
	syncer := NewEventSyncer(&MockEventRepository{}, &MockTicketRepository{}, &syncingLedger{})
	err := syncer.SyncEvent(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrEventNotFound)
}

func TestEventSyncer_CollapsesConcurrentLoads(t *testing.T) {
	var loads atomic.Int32
	release := make(chan struct{})
	events := &MockEventRepository{
		GetEventFunc: func(ctx context.Context, eventID string) (*domain.EventInventory, error) {
			loads.Add(1)
			<-release
			return &domain.EventInventory{ID: eventID, TenantID: "tenant-1", CapacityTotal: 10}, nil
		},
	}
	syncer := NewEventSyncer(events, &MockTicketRepository{}, &syncingLedger{})

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			return syncer.SyncEvent(context.Background(), "evt-1")
		})
	}
	// Let the callers pile up behind the first load
	time.Sleep(50 * time.Millisecond)
	close(release)
	require.NoError(t, g.Wait())

	assert.Less(t, loads.Load(), int32(10))
}
