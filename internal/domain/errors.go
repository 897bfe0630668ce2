package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrInvalidInput  = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	ErrStoreFailure  = errors.New("store failure")
	ErrLedgerFailure = errors.New("ledger failure")
)

// LedgerError is a failed points operation. It matches both ErrLedgerFailure
// and ErrStoreFailure; callers on the acceptance/cancellation path log it and
// move on.
type LedgerError struct {
	Op          string
	BookingID   string
	GuarantorID string
	Err         error
}

func (e *LedgerError) Error() string {
	if e.GuarantorID != "" {
		return fmt.Sprintf("ledger %s booking=%s guarantor=%s: %v", e.Op, e.BookingID, e.GuarantorID, e.Err)
	}
	return fmt.Sprintf("ledger %s booking=%s: %v", e.Op, e.BookingID, e.Err)
}

func (e *LedgerError) Unwrap() error { return e.Err }

func (e *LedgerError) Is(target error) bool {
	return target == ErrLedgerFailure || target == ErrStoreFailure
}

// NotFoundf builds an error wrapping ErrNotFound.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

func InvalidInputf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// StoreFailure wraps a persistence error unless it is already classified.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrStoreFailure) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}
