package domain

import (
	"context"
	"errors"
	"fmt"
)

// Domain errors
var (
	// Event errors
	ErrEventNotFound      = errors.New("event not found")
	ErrEventDeleted       = errors.New("event has been deleted")
	ErrEventAlreadyExists = errors.New("event already exists")
	ErrSoldOut            = errors.New("event is sold out")

	// Ticket errors
	ErrTicketNotFound      = errors.New("ticket not found")
	ErrAlreadyUsed         = errors.New("ticket already checked in")
	ErrWrongEvent          = errors.New("ticket belongs to a different event")
	ErrReservationConsumed = errors.New("reservation already consumed")
	ErrReservationNotFound = errors.New("reservation not found")

	// Tenant errors
	ErrTenantMismatch = errors.New("event belongs to a different tenant")

	// Validation errors
	ErrInvalidEventID     = errors.New("invalid event id")
	ErrInvalidTicketID    = errors.New("invalid ticket id")
	ErrInvalidBuyerID     = errors.New("invalid buyer id")
	ErrInvalidTenantID    = errors.New("invalid tenant id")
	ErrInvalidCapacity    = errors.New("capacity must be at least one")
	ErrInvalidSoldCount   = errors.New("sold count out of range")
	ErrInvalidReservation = errors.New("invalid reservation token")

	// Storage errors
	ErrPersistenceFailure = errors.New("persistence failure")
)

// Persistence wraps a storage error so callers can tell "try again" apart from business outcomes
func Persistence(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPersistenceFailure) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrPersistenceFailure, err)
}

// IsNotFoundError checks if the error is a not found error
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrEventNotFound) ||
		errors.Is(err, ErrTicketNotFound) ||
		errors.Is(err, ErrReservationNotFound)
}

// IsValidationError checks if the error is a validation error
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidEventID) ||
		errors.Is(err, ErrInvalidTicketID) ||
		errors.Is(err, ErrInvalidBuyerID) ||
		errors.Is(err, ErrInvalidTenantID) ||
		errors.Is(err, ErrInvalidCapacity) ||
		errors.Is(err, ErrInvalidSoldCount) ||
		errors.Is(err, ErrInvalidReservation)
}

// IsConflictError checks if the error is a conflict error
func IsConflictError(err error) bool {
	return errors.Is(err, ErrSoldOut) ||
		errors.Is(err, ErrAlreadyUsed) ||
		errors.Is(err, ErrReservationConsumed) ||
		errors.Is(err, ErrEventAlreadyExists)
}

// IsForbiddenError checks if the error is a scoping error
func IsForbiddenError(err error) bool {
	return errors.Is(err, ErrWrongEvent) ||
		errors.Is(err, ErrTenantMismatch)
}

// IsGoneError checks if the error refers to a logically deleted event
func IsGoneError(err error) bool {
	return errors.Is(err, ErrEventDeleted)
}

// IsPersistenceError checks if the error is a storage failure
func IsPersistenceError(err error) bool {
	return errors.Is(err, ErrPersistenceFailure)
}

// IsOutcomeUnknown reports whether the storage call may have applied before the caller gave up
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, context.Canceled)
}
