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

// AdminHandler serves tenant staff: event inventory, door check-in and reports
type AdminHandler struct {
	admin     service.EventAdminService
	query     service.InventoryQueryService
	validator service.CheckInValidator
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(admin service.EventAdminService, query service.InventoryQueryService, validator service.CheckInValidator) *AdminHandler {
	return &AdminHandler{
		admin:     admin,
		query:     query,
		validator: validator,
	}
}

func tenantOf(c *gin.Context) (string, bool) {
	tenantID, ok := middleware.GetTenantID(c)
	if !ok {
		response.Fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "Tenant scope is required")
	}
	return tenantID, ok
}

// PublishEvent handles POST /admin/events
func (h *AdminHandler) PublishEvent(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	var req dto.PublishEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, err.Error())
		return
	}

	event, err := h.admin.PublishEvent(c.Request.Context(), tenantID, req.EventID, req.CapacityTotal)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Created(c, dto.FromEvent(event))
}

// ListEvents handles GET /admin/events
func (h *AdminHandler) ListEvents(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	events, err := h.admin.ListEvents(c.Request.Context(), tenantID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, dto.FromEvents(events))
}

// DeleteEvent handles DELETE /admin/events/:id
func (h *AdminHandler) DeleteEvent(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	if err := h.admin.DeleteEvent(c.Request.Context(), tenantID, c.Param("id")); err != nil {
		handleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// EventTickets handles GET /admin/events/:id/tickets
func (h *AdminHandler) EventTickets(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	tickets, err := h.query.ListEventTickets(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.List(c, dto.FromTickets(tickets))
}

// EventSummary handles GET /admin/events/:id/summary
func (h *AdminHandler) EventSummary(c *gin.Context) {
	tenantID, ok := tenantOf(c)
	if !ok {
		return
	}

	summary, err := h.query.EventSummary(c.Request.Context(), tenantID, c.Param("id"))
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, summary)
}

// CheckIn handles POST /admin/events/:id/check-ins
func (h *AdminHandler) CheckIn(c *gin.Context) {
	ctx, span := telemetry.StartSpan(c.Request.Context(), "handler.admin.check_in")
	defer span.End()
	c.Request = c.Request.WithContext(ctx)

	tenantID, ok := tenantOf(c)
	if !ok {
		span.SetStatus(codes.Error, "unauthorized")
		return
	}

	var req dto.CheckInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		span.SetStatus(codes.Error, "invalid request")
		response.BadRequest(c, err.Error())
		return
	}

	eventID := c.Param("id")
	span.SetAttributes(
		attribute.String("tenant_id", tenantID),
		attribute.String("event_id", eventID),
		attribute.String("ticket_id", req.TicketID),
	)

	attendee, err := h.validator.Validate(ctx, tenantID, req.TicketID, eventID)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		handleError(c, err)
		return
	}

	span.SetStatus(codes.Ok, "")
	response.Success(c, attendee)
}

// PurgeBuyerTickets handles DELETE /internal/buyers/:id/tickets
func (h *AdminHandler) PurgeBuyerTickets(c *gin.Context) {
	buyerID := c.Param("id")

	n, err := h.admin.PurgeBuyerTickets(c.Request.Context(), buyerID)
	if err != nil {
		handleError(c, err)
		return
	}
	response.Success(c, &dto.PurgeResponse{BuyerID: buyerID, Purged: n})
}
