package dto

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
)

func TestFromTicket_State(t *testing.T) {
	issued := time.Date(2026, 5, 1, 18, 0, 0, 0, time.UTC)
	used := issued.Add(2 * time.Hour)

	unused := FromTicket(&domain.Ticket{ID: "tkt-1", EventID: "evt-1", IssuedAt: issued})
	assert.Equal(t, "unused", unused.State)
	assert.Nil(t, unused.CheckedInAt)

	checked := FromTicket(&domain.Ticket{ID: "tkt-2", EventID: "evt-1", CheckedIn: true, CheckedInAt: &used, IssuedAt: issued})
	assert.Equal(t, "used", checked.State)
	assert.Equal(t, &used, checked.CheckedInAt)
}

func TestFromEvent_DeletedHasNoRemaining(t *testing.T) {
	resp := FromEvent(&domain.EventInventory{ID: "evt-1", TenantID: "t", CapacityTotal: 10, SoldCount: 4, Deleted: true})
	assert.Equal(t, int64(0), resp.Remaining)
	assert.True(t, resp.Deleted)

	assert.Empty(t, FromEvents(nil))
	assert.NotNil(t, FromTickets(nil))
}
