package service

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/prohmpiriya/ticket-inventory/internal/clock"
	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/internal/repository"
)

func TestTicketIssuer_Issue(t *testing.T) {
	validToken := &domain.ReservationToken{ID: "res-1", EventID: "evt-1", Slot: 1, ReservedAt: testNow}

	tests := []struct {
		name      string
		token     *domain.ReservationToken
		buyerID   string
		eventID   string
		createErr error
		wantErr   error
	}{
		{
			name:    "success",
			token:   validToken,
			buyerID: "buyer-1",
			eventID: "evt-1",
		},
		{
			name:    "empty event id",
			token:   validToken,
			buyerID: "buyer-1",
			eventID: "",
			wantErr: domain.ErrInvalidEventID,
		},
		{
			name:    "empty buyer id",
			token:   validToken,
			buyerID: "",
			eventID: "evt-1",
			wantErr: domain.ErrInvalidBuyerID,
		},
		{
			name:    "nil token",
			token:   nil,
			buyerID: "buyer-1",
			eventID: "evt-1",
			wantErr: domain.ErrInvalidReservation,
		},
		{
			name:    "token for another event",
			token:   validToken,
			buyerID: "buyer-1",
			eventID: "evt-2",
			wantErr: domain.ErrInvalidReservation,
		},
		{
			name:    "token without id",
			token:   &domain.ReservationToken{EventID: "evt-1"},
			buyerID: "buyer-1",
			eventID: "evt-1",
			wantErr: domain.ErrInvalidReservation,
		},
		{
			name:      "reservation consumed",
			token:     validToken,
			buyerID:   "buyer-1",
			eventID:   "evt-1",
			createErr: domain.ErrReservationConsumed,
			wantErr:   domain.ErrReservationConsumed,
		},
		{
			name:      "storage failure",
			token:     validToken,
			buyerID:   "buyer-1",
			eventID:   "evt-1",
			createErr: errors.New("disk full"),
			wantErr:   domain.ErrPersistenceFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var created *domain.Ticket
			tickets := &MockTicketRepository{
				CreateTicketFunc: func(ctx context.Context, ticket *domain.Ticket) error {
					created = ticket
					return tt.createErr
				},
			}
			issuer := NewTicketIssuer(tickets, &TicketIssuerConfig{
				Clock: clock.NewFixed(testNow),
				NewID: func() string { return "tkt-1" },
			})

			ticket, err := issuer.Issue(context.Background(), tt.token, tt.buyerID, tt.eventID)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, ticket)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, "tkt-1", ticket.ID)
			assert.Equal(t, "res-1", ticket.ReservationID)
			assert.Equal(t, "buyer-1", ticket.BuyerID)
			assert.Equal(t, "evt-1", ticket.EventID)
			assert.False(t, ticket.CheckedIn)
			assert.Nil(t, ticket.CheckedInAt)
			assert.Equal(t, testNow, ticket.IssuedAt)
			assert.Same(t, created, ticket)
		})
	}
}

func TestTicketIssuer_ValidationSkipsStore(t *testing.T) {
	var calls atomic.Int32
	tickets := &MockTicketRepository{
		CreateTicketFunc: func(ctx context.Context, ticket *domain.Ticket) error {
			calls.Add(1)
			return nil
		},
	}
	issuer := NewTicketIssuer(tickets, nil)

	_, err := issuer.Issue(context.Background(), &domain.ReservationToken{ID: "res-1", EventID: "evt-1"}, "", "evt-1")
	require.ErrorIs(t, err, domain.ErrInvalidBuyerID)
	assert.Zero(t, calls.Load())
}

func TestTicketIssuer_TokenIssuesOnce(t *testing.T) {
	tickets := repository.NewMemoryTicketRepository()
	issuer := NewTicketIssuer(tickets, nil)
	token := &domain.ReservationToken{ID: "res-1", EventID: "evt-1", Slot: 1, ReservedAt: testNow}

	var issued, consumed atomic.Int32
	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			_, err := issuer.Issue(context.Background(), token, "buyer-1", "evt-1")
			switch {
			case err == nil:
				issued.Add(1)
			case errors.Is(err, domain.ErrReservationConsumed):
				consumed.Add(1)
			default:
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, int32(1), issued.Load())
	assert.Equal(t, int32(19), consumed.Load())

	list, err := tickets.ListByBuyer(context.Background(), "buyer-1")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestTicketIssuer_DistinctIDs(t *testing.T) {
	issuer := NewTicketIssuer(repository.NewMemoryTicketRepository(), nil)

	a, err := issuer.Issue(context.Background(), &domain.ReservationToken{ID: "res-a", EventID: "evt-1"}, "buyer-1", "evt-1")
	require.NoError(t, err)
	b, err := issuer.Issue(context.Background(), &domain.ReservationToken{ID: "res-b", EventID: "evt-1"}, "buyer-1", "evt-1")
	require.NoError(t, err)

	assert.NotEqual(t, a.ID, b.ID)
}
