package domain

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestPersistence(t *testing.T) {
	cause := errors.New("connection refused")
	err := Persistence(cause)

	if !errors.Is(err, ErrPersistenceFailure) {
		t.Error("wrapped error should match ErrPersistenceFailure")
	}
	if !errors.Is(err, cause) {
		t.Error("wrapped error should keep the cause")
	}
	if Persistence(nil) != nil {
		t.Error("Persistence(nil) should be nil")
	}
	if again := Persistence(err); again != err {
		t.Error("Persistence should not double wrap")
	}
}

func TestErrorClassifiers(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		notFound   bool
		conflict   bool
		validation bool
		forbidden  bool
	}{
		{"event not found", ErrEventNotFound, true, false, false, false},
		{"ticket not found", fmt.Errorf("lookup: %w", ErrTicketNotFound), true, false, false, false},
		{"sold out", ErrSoldOut, false, true, false, false},
		{"already used", ErrAlreadyUsed, false, true, false, false},
		{"consumed", ErrReservationConsumed, false, true, false, false},
		{"wrong event", ErrWrongEvent, false, false, false, true},
		{"tenant mismatch", ErrTenantMismatch, false, false, false, true},
		{"invalid capacity", ErrInvalidCapacity, false, false, true, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsNotFoundError(tt.err); got != tt.notFound {
				t.Errorf("IsNotFoundError() = %v, want %v", got, tt.notFound)
			}
			if got := IsConflictError(tt.err); got != tt.conflict {
				t.Errorf("IsConflictError() = %v, want %v", got, tt.conflict)
			}
			if got := IsValidationError(tt.err); got != tt.validation {
				t.Errorf("IsValidationError() = %v, want %v", got, tt.validation)
			}
			if got := IsForbiddenError(tt.err); got != tt.forbidden {
				t.Errorf("IsForbiddenError() = %v, want %v", got, tt.forbidden)
			}
		})
	}
}

func TestIsOutcomeUnknown(t *testing.T) {
	if !IsOutcomeUnknown(Persistence(context.DeadlineExceeded)) {
		t.Error("deadline exceeded should be an unknown outcome")
	}
	if IsOutcomeUnknown(Persistence(errors.New("unique violation"))) {
		t.Error("definitive failure should not be an unknown outcome")
	}
}
