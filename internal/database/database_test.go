package database

import (
	"context"
	"testing"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDB_InMemory(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(":memory:", &logger)
	require.NoError(t, err)
	defer db.Close()

	var n int
	err = db.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN
		('users', 'cars', 'bookings', 'guarantor_requests', 'guarantor_points', 'ledger_tasks')`).Scan(&n)
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}

func TestDB_ErrorPaths(t *testing.T) {
	db := setupTestDB(t)
	db.Close()

	ctx := context.Background()

	t.Run("CreateBooking", func(t *testing.T) {
		err := db.CreateBooking(ctx, newBooking("b1", "car-1", "u1", day(2024, 5, 1), day(2024, 5, 2), models.StatusPending))
		assert.ErrorIs(t, err, domain.ErrStoreFailure)
	})

	t.Run("FindLiveBookings", func(t *testing.T) {
		_, err := db.FindLiveBookingsOverlappingDateRange(ctx, time.Now(), time.Now())
		assert.ErrorIs(t, err, domain.ErrStoreFailure)
	})

	t.Run("CreateLedgerTask", func(t *testing.T) {
		err := db.CreateLedgerTask(ctx, &models.LedgerTask{TaskType: models.LedgerTaskAllocate, BookingID: "b1"})
		assert.ErrorIs(t, err, domain.ErrStoreFailure)
	})

	t.Run("WithinTx", func(t *testing.T) {
		err := db.WithinTx(ctx, func(tx domain.LedgerTx) error { return nil })
		assert.ErrorIs(t, err, domain.ErrStoreFailure)
	})
}
