package repository

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
)

type memoryTicket struct {
	ticket      domain.Ticket // immutable after issuance
	checkedIn   atomic.Bool
	checkedInAt atomic.Pointer[time.Time]
}

func (t *memoryTicket) snapshot() *domain.Ticket {
	cp := t.ticket
	cp.CheckedIn = t.checkedIn.Load()
	if at := t.checkedInAt.Load(); at != nil {
		ts := *at
		cp.CheckedInAt = &ts
	}
	return &cp
}

// ticketIndex is a per-buyer or per-event list of ticket IDs
type ticketIndex struct {
	mu  sync.Mutex
	ids []string
}

func (i *ticketIndex) add(id string) {
	i.mu.Lock()
	i.ids = append(i.ids, id)
	i.mu.Unlock()
}

func (i *ticketIndex) remove(drop map[string]struct{}) {
	i.mu.Lock()
	kept := i.ids[:0]
	for _, id := range i.ids {
		if _, ok := drop[id]; !ok {
			kept = append(kept, id)
		}
	}
	i.ids = kept
	i.mu.Unlock()
}

func (i *ticketIndex) list() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.ids))
	copy(out, i.ids)
	return out
}

// MemoryTicketRepository stores tickets in process memory.
// Each ticket carries its own atomic check-in flag.
type MemoryTicketRepository struct {
	tickets       sync.Map // ticket ID -> *memoryTicket
	byReservation sync.Map // reservation ID -> ticket ID
	byBuyer       sync.Map // buyer ID -> *ticketIndex
	byEvent       sync.Map // event ID -> *ticketIndex
	issued        sync.Map // event ID -> *atomic.Int64
}

// NewMemoryTicketRepository creates an empty in-memory ticket store
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{}
}

func (r *MemoryTicketRepository) load(ticketID string) (*memoryTicket, bool) {
	v, ok := r.tickets.Load(ticketID)
	if !ok {
		return nil, false
	}
	return v.(*memoryTicket), true
}

func indexFor(m *sync.Map, key string) *ticketIndex {
	v, _ := m.LoadOrStore(key, &ticketIndex{})
	return v.(*ticketIndex)
}

// CreateTicket stores a ticket; the reservation ID can be used once
func (r *MemoryTicketRepository) CreateTicket(ctx context.Context, ticket *domain.Ticket) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, loaded := r.byReservation.LoadOrStore(ticket.ReservationID, ticket.ID); loaded {
		return domain.ErrReservationConsumed
	}
	counter, _ := r.issued.LoadOrStore(ticket.EventID, &atomic.Int64{})
	counter.(*atomic.Int64).Add(1)

	rec := &memoryTicket{ticket: *ticket}
	rec.ticket.CheckedIn = false
	rec.ticket.CheckedInAt = nil
	r.tickets.Store(ticket.ID, rec)

	indexFor(&r.byBuyer, ticket.BuyerID).add(ticket.ID)
	indexFor(&r.byEvent, ticket.EventID).add(ticket.ID)
	return nil
}

// ConditionalSetCheckedIn flips the ticket's flag with a compare-and-swap
func (r *MemoryTicketRepository) ConditionalSetCheckedIn(ctx context.Context, ticketID, eventID string, at time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	rec, ok := r.load(ticketID)
	if !ok || rec.ticket.EventID != eventID {
		return false, nil
	}
	if !rec.checkedIn.CompareAndSwap(false, true) {
		return false, nil
	}
	rec.checkedInAt.Store(&at)
	return true, nil
}

// GetTicket gets a ticket by ID
func (r *MemoryTicketRepository) GetTicket(ctx context.Context, ticketID string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	rec, ok := r.load(ticketID)
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return rec.snapshot(), nil
}

// GetByReservation gets the ticket issued for a reservation
func (r *MemoryTicketRepository) GetByReservation(ctx context.Context, reservationID string) (*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := r.byReservation.Load(reservationID)
	if !ok {
		return nil, domain.ErrTicketNotFound
	}
	return r.GetTicket(ctx, v.(string))
}

func (r *MemoryTicketRepository) collect(ids []string) []*domain.Ticket {
	tickets := make([]*domain.Ticket, 0, len(ids))
	for _, id := range ids {
		if rec, ok := r.load(id); ok {
			tickets = append(tickets, rec.snapshot())
		}
	}
	return tickets
}

// ListByBuyer lists a buyer's tickets, newest first
func (r *MemoryTicketRepository) ListByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := r.byBuyer.Load(buyerID)
	if !ok {
		return []*domain.Ticket{}, nil
	}
	tickets := r.collect(v.(*ticketIndex).list())
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].IssuedAt.After(tickets[j].IssuedAt)
	})
	return tickets, nil
}

// ListByEvent lists an event's tickets, oldest first
func (r *MemoryTicketRepository) ListByEvent(ctx context.Context, eventID string) ([]*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := r.byEvent.Load(eventID)
	if !ok {
		return []*domain.Ticket{}, nil
	}
	tickets := r.collect(v.(*ticketIndex).list())
	sort.SliceStable(tickets, func(i, j int) bool {
		return tickets[i].IssuedAt.Before(tickets[j].IssuedAt)
	})
	return tickets, nil
}

// CountCheckedIn counts the event's used tickets
func (r *MemoryTicketRepository) CountCheckedIn(ctx context.Context, eventID string) (int64, error) {
	tickets, err := r.ListByEvent(ctx, eventID)
	if err != nil {
		return 0, err
	}
	var n int64
	for _, t := range tickets {
		if t.CheckedIn {
			n++
		}
	}
	return n, nil
}

// CountIssued counts consumed reservations of the event; purges do not lower it
func (r *MemoryTicketRepository) CountIssued(ctx context.Context, eventID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	v, ok := r.issued.Load(eventID)
	if !ok {
		return 0, nil
	}
	return v.(*atomic.Int64).Load(), nil
}

// DeleteByBuyer removes a buyer's tickets. Reservation IDs stay consumed.
func (r *MemoryTicketRepository) DeleteByBuyer(ctx context.Context, buyerID string) ([]*domain.Ticket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	v, ok := r.byBuyer.LoadAndDelete(buyerID)
	if !ok {
		return []*domain.Ticket{}, nil
	}

	ids := v.(*ticketIndex).list()
	removed := make([]*domain.Ticket, 0, len(ids))
	perEvent := make(map[string]map[string]struct{})
	for _, id := range ids {
		rv, ok := r.tickets.LoadAndDelete(id)
		if !ok {
			continue
		}
		t := rv.(*memoryTicket).snapshot()
		removed = append(removed, t)
		if perEvent[t.EventID] == nil {
			perEvent[t.EventID] = make(map[string]struct{})
		}
		perEvent[t.EventID][id] = struct{}{}
	}
	for eventID, drop := range perEvent {
		if idx, ok := r.byEvent.Load(eventID); ok {
			idx.(*ticketIndex).remove(drop)
		}
	}
	return removed, nil
}

var _ TicketRepository = (*MemoryTicketRepository)(nil)
