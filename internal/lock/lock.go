// Package lock provides keyed mutual exclusion used to serialize ledger work
// per booking.
package lock

import (
	"errors"
	"fmt"

	"carrental/internal/domain"
)

var (
	// ErrTimeout means the lock stayed held by someone else for the whole wait.
	ErrTimeout = fmt.Errorf("%w: lock wait timed out", domain.ErrStoreFailure)
	// ErrBackendUnavailable marks errors from the lock backend itself.
	ErrBackendUnavailable = errors.New("lock backend unavailable")
)

// BookingKey is the lock key guarding one booking's ledger entries.
func BookingKey(bookingID string) string {
	return "booking:" + bookingID
}

// CarKey guards availability check plus insert of a new booking on one car.
func CarKey(carID string) string {
	return "car:" + carID
}
