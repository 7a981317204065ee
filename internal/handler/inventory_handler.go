package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/prohmpiriya/ticket-inventory/internal/dto"
	"github.com/prohmpiriya/ticket-inventory/internal/service"
	"github.com/prohmpiriya/ticket-inventory/pkg/middleware"
	"github.com/prohmpiriya/ticket-inventory/pkg/response"
	"github.com/prohmpiriya/ticket-inventory/pkg/telemetry"
)

// InventoryHandler serves buyer-facing purchase and availability requests
type InventoryHandler struct {
	purchase service.PurchaseService
	query    service.InventoryQueryService
}

// NewInventoryHandler creates a new inventory handler
func NewInventoryHandler(purchase service.PurchaseService, query service.InventoryQueryService) *InventoryHandler {
	return &InventoryHandler{
		purchase: purchase,
		query:    query,
	}
}

// Purchase handles POST /events/:id/tickets
func (h *InventoryHandler) Purchase(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.inventory.purchase")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		response.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "User identity is required")
		return
	}
	eventID := c.Param("id")
	span.SetAttributes(
		attribute.String("buyer_id", buyerID),
		attribute.String("event_id", eventID),
	)
	if key, ok := middleware.GetIdempotencyKey(c); ok {
		span.SetAttributes(attribute.String("idempotency_key", key))
	}

	ticket, err := h.purchase.Purchase(ctx, buyerID, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetAttributes(attribute.String("ticket_id", ticket.ID))
	span.SetStatus(codes.Ok, "")
	response.Created(c, dto.FromTicket(ticket))
}

// Availability handles GET /events/:id/availability
func (h *InventoryHandler) Availability(c *gin.Context) {
	availability, err := h.query.RemainingSeats(c.Request.Context(), c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, availability)
}

// MyTickets handles GET /me/tickets
func (h *InventoryHandler) MyTickets(c *gin.Context) {
	buyerID, ok := middleware.GetUserID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "User identity is required")
		return
	}

	tickets, err := h.query.ListBuyerTickets(c.Request.Context(), buyerID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, dto.FromTickets(tickets))
}
