package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prohmpiriya/ticket-inventory/internal/domain"
	"github.com/prohmpiriya/ticket-inventory/pkg/middleware"
	"github.com/prohmpiriya/ticket-inventory/pkg/response"
)

// errorStatus maps a domain error to an HTTP status and a stable code
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrEventNotFound):
		return http.StatusNotFound, "EVENT_NOT_FOUND"
	case errors.Is(err, domain.ErrTicketNotFound):
		return http.StatusNotFound, "TICKET_NOT_FOUND"
	case errors.Is(err, domain.ErrReservationNotFound):
		return http.StatusNotFound, "RESERVATION_NOT_FOUND"
	case errors.Is(err, domain.ErrEventDeleted):
		return http.StatusGone, "EVENT_DELETED"
	case errors.Is(err, domain.ErrSoldOut):
		return http.StatusConflict, "SOLD_OUT"
	case errors.Is(err, domain.ErrAlreadyUsed):
		return http.StatusConflict, "ALREADY_USED"
	case errors.Is(err, domain.ErrReservationConsumed):
		return http.StatusConflict, "RESERVATION_CONSUMED"
	case errors.Is(err, domain.ErrEventAlreadyExists):
		return http.StatusConflict, "EVENT_ALREADY_EXISTS"
	case errors.Is(err, domain.ErrWrongEvent):
		return http.StatusForbidden, "WRONG_EVENT"
	case errors.Is(err, domain.ErrTenantMismatch):
		return http.StatusForbidden, "TENANT_MISMATCH"
	case domain.IsValidationError(err):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case domain.IsPersistenceError(err):
		return http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL_ERROR"
	}
}

// handleError writes the error envelope for err.
// Storage details stay in logs and traces; clients get a generic message.
func handleError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		message = "Please try again later"
	}
	// A storage call that was refused outright committed nothing
	if domain.IsPersistenceError(err) && !domain.IsOutcomeUnknown(err) {
		middleware.MarkRetryable(c)
	}
	_ = c.Error(err)
	response.Fail(c, status, code, message)
}
