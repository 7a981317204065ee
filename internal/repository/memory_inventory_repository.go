package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
)

// deletedBit marks a soft-deleted event inside the same word as its sold count,
// so the deleted check and the increment are one compare-and-swap.
const deletedBit = int64(1) << 62

type memoryEvent struct {
	id        string
	tenantID  string
	capacity  int64
	createdAt time.Time

	state     atomic.Int64 // sold count | deletedBit
	updatedAt atomic.Int64 // unix nanos

	releaseMu sync.Mutex
	released  map[string]struct{}
}

func (e *memoryEvent) snapshot() *domain.EventInventory {
	state := e.state.Load()
	return &domain.EventInventory{
		ID:            e.id,
		TenantID:      e.tenantID,
		CapacityTotal: e.capacity,
		SoldCount:     state &^ deletedBit,
		Deleted:       state&deletedBit != 0,
		CreatedAt:     e.createdAt,
		UpdatedAt:     time.Unix(0, e.updatedAt.Load()).UTC(),
	}
}

func (e *memoryEvent) touch() {
	e.updatedAt.Store(time.Now().UnixNano())
}

// MemoryInventoryRepository keeps one record per event with lock-free counters.
// It serves as both the event store and the capacity ledger.
type MemoryInventoryRepository struct {
	events sync.Map // event ID -> *memoryEvent
}

// NewMemoryInventoryRepository creates an empty in-memory inventory
func NewMemoryInventoryRepository() *MemoryInventoryRepository {
	return &MemoryInventoryRepository{}
}

func (r *MemoryInventoryRepository) load(eventID string) (*memoryEvent, bool) {
	v, ok := r.events.Load(eventID)
	if !ok {
		return nil, false
	}
	return v.(*memoryEvent), true
}

// CreateEvent inserts a new event
func (r *MemoryInventoryRepository) CreateEvent(ctx context.Context, event *domain.EventInventory) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec := &memoryEvent{
		id:        event.ID,
		tenantID:  event.TenantID,
		capacity:  event.CapacityTotal,
		createdAt: event.CreatedAt,
		released:  make(map[string]struct{}),
	}
	state := event.SoldCount
	if event.Deleted {
		state |= deletedBit
	}
	rec.state.Store(state)
	rec.updatedAt.Store(event.UpdatedAt.UnixNano())

	if _, loaded := r.events.LoadOrStore(event.ID, rec); loaded {
		return domain.ErrEventAlreadyExists
	}
	return nil
}

// GetEvent gets an event by ID
func (r *MemoryInventoryRepository) GetEvent(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := r.load(eventID)
	if !ok {
		return nil, domain.ErrEventNotFound
	}
	return rec.snapshot(), nil
}

// GetInventory returns the ledger view of an event
func (r *MemoryInventoryRepository) GetInventory(ctx context.Context, eventID string) (*domain.EventInventory, error) {
	return r.GetEvent(ctx, eventID)
}

// SoftDeleteEvent sets the deleted bit; the sold count is left untouched
func (r *MemoryInventoryRepository) SoftDeleteEvent(ctx context.Context, eventID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec, ok := r.load(eventID)
	if !ok {
		return domain.ErrEventNotFound
	}
	for {
		cur := rec.state.Load()
		if cur&deletedBit != 0 {
			return nil
		}
		if rec.state.CompareAndSwap(cur, cur|deletedBit) {
			rec.touch()
			return nil
		}
	}
}

// ListByTenant lists a tenant's events ordered by creation time
func (r *MemoryInventoryRepository) ListByTenant(ctx context.Context, tenantID string) ([]*domain.EventInventory, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var events []*domain.EventInventory
	r.events.Range(func(_, v any) bool {
		rec := v.(*memoryEvent)
		if rec.tenantID == tenantID {
			events = append(events, rec.snapshot())
		}
		return true
	})
	sort.Slice(events, func(i, j int) bool {
		return events[i].CreatedAt.Before(events[j].CreatedAt)
	})
	return events, nil
}

// UpdateSoldCount is a no-op for the in-memory store: it is its own ledger
func (r *MemoryInventoryRepository) UpdateSoldCount(ctx context.Context, eventID string, soldCount int64) error {
	if _, ok := r.load(eventID); !ok {
		return domain.ErrEventNotFound
	}
	return ctx.Err()
}

// ConditionalIncrement claims one seat with a compare-and-swap on the event's state word
func (r *MemoryInventoryRepository) ConditionalIncrement(ctx context.Context, eventID string) (*IncrementResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := r.load(eventID)
	if !ok {
		return &IncrementResult{ErrorCode: CodeEventNotFound, ErrorMessage: "event not found"}, nil
	}

	for {
		cur := rec.state.Load()
		if cur&deletedBit != 0 {
			return &IncrementResult{ErrorCode: CodeEventDeleted, ErrorMessage: "event has been deleted"}, nil
		}
		if cur >= rec.capacity {
			return &IncrementResult{
				SoldCount:     cur,
				CapacityTotal: rec.capacity,
				ErrorCode:     CodeSoldOut,
				ErrorMessage:  "no seats remaining",
			}, nil
		}
		if rec.state.CompareAndSwap(cur, cur+1) {
			rec.touch()
			return &IncrementResult{
				Success:       true,
				SoldCount:     cur + 1,
				CapacityTotal: rec.capacity,
			}, nil
		}
	}
}

// Release gives back one seat per reservation ID
func (r *MemoryInventoryRepository) Release(ctx context.Context, eventID, reservationID string) (*ReleaseResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := r.load(eventID)
	if !ok {
		return &ReleaseResult{ErrorCode: CodeEventNotFound, ErrorMessage: "event not found"}, nil
	}

	rec.releaseMu.Lock()
	defer rec.releaseMu.Unlock()

	if _, done := rec.released[reservationID]; done {
		return &ReleaseResult{
			SoldCount:    rec.state.Load() &^ deletedBit,
			ErrorCode:    CodeAlreadyReleased,
			ErrorMessage: "reservation already released",
		}, nil
	}

	for {
		cur := rec.state.Load()
		sold := cur &^ deletedBit
		if sold == 0 {
			return &ReleaseResult{ErrorCode: CodeNothingToRelease, ErrorMessage: "sold count is zero"}, nil
		}
		if rec.state.CompareAndSwap(cur, cur-1) {
			rec.released[reservationID] = struct{}{}
			rec.touch()
			return &ReleaseResult{Success: true, SoldCount: sold - 1}, nil
		}
	}
}

var (
	_ InventoryRepository = (*MemoryInventoryRepository)(nil)
	_ EventRepository     = (*MemoryInventoryRepository)(nil)
)
