package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/prohmpiriya/ticket-inventory/internal/clock"
	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/metrics"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
	"github.com/prohmpiriya/ticket-inventory/pkg/logger"
)

var testNow = time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)

func newTestLedger(inventory repository.InventoryRepository, tickets repository.TicketRepository, syncer EventSyncer) CapacityLedger {
	return NewCapacityLedger(inventory, tickets, syncer, &CapacityLedgerConfig{
		Clock:  clock.NewFixed(testNow),
		Logger: logger.Nop(),
	})
}

func seedMemoryEvent(t *testing.T, repo *repository.MemoryInventoryRepository, id, tenantID string, capacity int64) {
	t.Helper()
	event, err := domain.NewEventInventory(id, tenantID, capacity, testNow)
	require.NoError(t, err)
	require.NoError(t, repo.CreateEvent(context.Background(), event))
}

func TestCapacityLedger_Reserve(t *testing.T) {
	tests := []struct {
		name      string
		eventID   string
		result    *repository.IncrementResult
		repoErr   error
		wantErr   error
		wantSlot  int64
		isStorage bool
	}{
		{
			name:     "success",
			eventID:  "evt-1",
			result:   &repository.IncrementResult{Success: true, SoldCount: 7, CapacityTotal: 10},
			wantSlot: 7,
		},
		{
			name:    "empty event id",
			eventID: "",
			wantErr: domain.ErrInvalidEventID,
		},
		{
			name:    "sold out",
			eventID: "evt-1",
			result:  &repository.IncrementResult{ErrorCode: repository.CodeSoldOut, SoldCount: 10, CapacityTotal: 10},
			wantErr: domain.ErrSoldOut,
		},
		{
			name:    "deleted",
			eventID: "evt-1",
			result:  &repository.IncrementResult{ErrorCode: repository.CodeEventDeleted},
			wantErr: domain.ErrEventDeleted,
		},
		{
			name:    "not found without syncer",
			eventID: "evt-1",
			result:  &repository.IncrementResult{ErrorCode: repository.CodeEventNotFound},
			wantErr: domain.ErrEventNotFound,
		},
		{
			name:      "storage failure",
			eventID:   "evt-1",
			repoErr:   errors.New("connection reset"),
			wantErr:   domain.ErrPersistenceFailure,
			isStorage: true,
		},
		{
			name:      "unknown code",
			eventID:   "evt-1",
			result:    &repository.IncrementResult{ErrorCode: "WAT"},
			wantErr:   domain.ErrPersistenceFailure,
			isStorage: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inventory := &MockInventoryRepository{
				ConditionalIncrementFunc: func(ctx context.Context, eventID string) (*repository.IncrementResult, error) {
					return tt.result, tt.repoErr
				},
			}
			ledger := newTestLedger(inventory, nil, nil)

			token, err := ledger.Reserve(context.Background(), tt.eventID)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, token)
				assert.Equal(t, tt.isStorage, domain.IsPersistenceError(err))
				return
			}

			require.NoError(t, err)
			assert.NotEmpty(t, token.ID)
			assert.Equal(t, tt.eventID, token.EventID)
			assert.Equal(t, tt.wantSlot, token.Slot)
			assert.Equal(t, testNow, token.ReservedAt)
		})
	}
}

func TestCapacityLedger_Reserve_SyncsAndRetriesOnce(t *testing.T) {
	var calls atomic.Int32
	inventory := &MockInventoryRepository{
		ConditionalIncrementFunc: func(ctx context.Context, eventID string) (*repository.IncrementResult, error) {
			if calls.Add(1) == 1 {
				return &repository.IncrementResult{ErrorCode: repository.CodeEventNotFound}, nil
			}
			return &repository.IncrementResult{Success: true, SoldCount: 1, CapacityTotal: 5}, nil
		},
	}
	syncer := &MockEventSyncer{}
	ledger := newTestLedger(inventory, nil, syncer)

	token, err := ledger.Reserve(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), token.Slot)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, []string{"evt-1"}, syncer.Calls())
}

func TestCapacityLedger_Reserve_SyncFailures(t *testing.T) {
	t.Run("event missing from store", func(t *testing.T) {
		var calls atomic.Int32
		inventory := &MockInventoryRepository{
			ConditionalIncrementFunc: func(ctx context.Context, eventID string) (*repository.IncrementResult, error) {
				calls.Add(1)
				return &repository.IncrementResult{ErrorCode: repository.CodeEventNotFound}, nil
			},
		}
		syncer := &MockEventSyncer{
			SyncEventFunc: func(ctx context.Context, eventID string) error {
				return domain.ErrEventNotFound
			},
		}
		ledger := newTestLedger(inventory, nil, syncer)

		_, err := ledger.Reserve(context.Background(), "ghost")
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
		assert.False(t, domain.IsPersistenceError(err))
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("store unavailable", func(t *testing.T) {
		inventory := &MockInventoryRepository{
			ConditionalIncrementFunc: func(ctx context.Context, eventID string) (*repository.IncrementResult, error) {
				return &repository.IncrementResult{ErrorCode: repository.CodeEventNotFound}, nil
			},
		}
		syncer := &MockEventSyncer{
			SyncEventFunc: func(ctx context.Context, eventID string) error {
				return errors.New("redis down")
			},
		}
		ledger := newTestLedger(inventory, nil, syncer)

		_, err := ledger.Reserve(context.Background(), "evt-1")
		assert.True(t, domain.IsPersistenceError(err))
	})

	t.Run("still missing after sync", func(t *testing.T) {
		inventory := &MockInventoryRepository{
			ConditionalIncrementFunc: func(ctx context.Context, eventID string) (*repository.IncrementResult, error) {
				return &repository.IncrementResult{ErrorCode: repository.CodeEventNotFound}, nil
			},
		}
		syncer := &MockEventSyncer{}
		ledger := newTestLedger(inventory, nil, syncer)

		_, err := ledger.Reserve(context.Background(), "evt-1")
		assert.ErrorIs(t, err, domain.ErrEventNotFound)
		assert.Len(t, syncer.Calls(), 1)
	})
}

func TestCapacityLedger_Reserve_NeverOversells(t *testing.T) {
	const capacity = 50
	const buyers = 400

	repo := repository.NewMemoryInventoryRepository()
	seedMemoryEvent(t, repo, "evt-hot", "tenant-1", capacity)
	ledger := newTestLedger(repo, nil, nil)

	var reserved, soldOut atomic.Int64
	slots := make([]int64, buyers)
	var g errgroup.Group
	for i := 0; i < buyers; i++ {
		g.Go(func() error {
			token, err := ledger.Reserve(context.Background(), "evt-hot")
			switch {
			case err == nil:
				reserved.Add(1)
				slots[i] = token.Slot
			case errors.Is(err, domain.ErrSoldOut):
				soldOut.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int64(capacity), reserved.Load())
	assert.Equal(t, int64(buyers-capacity), soldOut.Load())

	seen := make(map[int64]bool)
	for _, slot := range slots {
		if slot == 0 {
			continue
		}
		assert.False(t, seen[slot], "slot %d handed out twice", slot)
		seen[slot] = true
	}
	assert.Len(t, seen, capacity)

	event, err := repo.GetInventory(context.Background(), "evt-hot")
	require.NoError(t, err)
	assert.Equal(t, int64(capacity), event.SoldCount)
}

func TestCapacityLedger_Reserve_DeletedEvent(t *testing.T) {
	repo := repository.NewMemoryInventoryRepository()
	seedMemoryEvent(t, repo, "evt-1", "tenant-1", 10)
	ledger := newTestLedger(repo, nil, nil)

	_, err := ledger.Reserve(context.Background(), "evt-1")
	require.NoError(t, err)
	require.NoError(t, repo.SoftDeleteEvent(context.Background(), "evt-1"))

	_, err = ledger.Reserve(context.Background(), "evt-1")
	assert.ErrorIs(t, err, domain.ErrEventDeleted)

	event, err := repo.GetInventory(context.Background(), "evt-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), event.SoldCount)
}

func TestCapacityLedger_Release(t *testing.T) {
	token := &domain.ReservationToken{ID: "res-1", EventID: "evt-1", Slot: 3, ReservedAt: testNow}

	t.Run("releases once", func(t *testing.T) {
		repo := repository.NewMemoryInventoryRepository()
		seedMemoryEvent(t, repo, "evt-1", "tenant-1", 2)
		tickets := repository.NewMemoryTicketRepository()
		ledger := newTestLedger(repo, tickets, nil)

		tok, err := ledger.Reserve(context.Background(), "evt-1")
		require.NoError(t, err)

		require.NoError(t, ledger.Release(context.Background(), tok))
		require.NoError(t, ledger.Release(context.Background(), tok))

		event, err := repo.GetInventory(context.Background(), "evt-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), event.SoldCount)
	})

	t.Run("refuses consumed reservation", func(t *testing.T) {
		var released bool
		inventory := &MockInventoryRepository{
			ReleaseFunc: func(ctx context.Context, eventID, reservationID string) (*repository.ReleaseResult, error) {
				released = true
				return &repository.ReleaseResult{Success: true}, nil
			},
		}
		tickets := &MockTicketRepository{
			GetByReservationFunc: func(ctx context.Context, reservationID string) (*domain.Ticket, error) {
				return &domain.Ticket{ID: "tkt-1", ReservationID: reservationID}, nil
			},
		}
		ledger := newTestLedger(inventory, tickets, nil)

		err := ledger.Release(context.Background(), token)
		assert.ErrorIs(t, err, domain.ErrReservationConsumed)
		assert.False(t, released)
	})

	t.Run("nothing to release is a no-op", func(t *testing.T) {
		inventory := &MockInventoryRepository{
			ReleaseFunc: func(ctx context.Context, eventID, reservationID string) (*repository.ReleaseResult, error) {
				return &repository.ReleaseResult{ErrorCode: repository.CodeNothingToRelease}, nil
			},
		}
		ledger := newTestLedger(inventory, &MockTicketRepository{}, nil)
		assert.NoError(t, ledger.Release(context.Background(), token))
	})

	t.Run("invalid token", func(t *testing.T) {
		ledger := newTestLedger(&MockInventoryRepository{}, nil, nil)
		assert.ErrorIs(t, ledger.Release(context.Background(), nil), domain.ErrInvalidReservation)
		assert.ErrorIs(t, ledger.Release(context.Background(), &domain.ReservationToken{ID: "res-1"}), domain.ErrInvalidReservation)
	})

	t.Run("ticket lookup failure", func(t *testing.T) {
		tickets := &MockTicketRepository{
			GetByReservationFunc: func(ctx context.Context, reservationID string) (*domain.Ticket, error) {
				return nil, errors.New("timeout")
			},
		}
		ledger := newTestLedger(&MockInventoryRepository{}, tickets, nil)
		assert.True(t, domain.IsPersistenceError(ledger.Release(context.Background(), token)))
	})

	t.Run("unknown event", func(t *testing.T) {
		inventory := &MockInventoryRepository{
			ReleaseFunc: func(ctx context.Context, eventID, reservationID string) (*repository.ReleaseResult, error) {
				return &repository.ReleaseResult{ErrorCode: repository.CodeEventNotFound}, nil
			},
		}
		ledger := newTestLedger(inventory, nil, nil)
		assert.ErrorIs(t, ledger.Release(context.Background(), token), domain.ErrEventNotFound)
	})
}

func TestCapacityLedger_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	repo := repository.NewMemoryInventoryRepository()
	seedMemoryEvent(t, repo, "evt-1", "tenant-1", 1)
	ledger := NewCapacityLedger(repo, nil, nil, &CapacityLedgerConfig{Metrics: m, Logger: logger.Nop()})

	_, err := ledger.Reserve(context.Background(), "evt-1")
	require.NoError(t, err)
	_, err = ledger.Reserve(context.Background(), "evt-1")
	require.ErrorIs(t, err, domain.ErrSoldOut)
	_, err = ledger.Reserve(context.Background(), "missing")
	require.ErrorIs(t, err, domain.ErrEventNotFound)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues(metrics.OutcomeOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues(metrics.OutcomeSoldOut)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Reservations.WithLabelValues(metrics.OutcomeNotFound)))
}
