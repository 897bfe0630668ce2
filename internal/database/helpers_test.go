package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"carrental/internal/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "rental.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func newBooking(id, carID, userID string, start, end time.Time, status string) *models.Booking {
	return &models.Booking{
		ID:     id,
		CarID:  carID,
		UserID: userID,
		TripStart: models.TripPoint{
			Location: "Airport",
			Date:     start,
			Time:     "10:00",
		},
		TripEnd: models.TripPoint{
			Location: "Airport",
			Date:     end,
			Time:     "6:00 PM",
		},
		Pricing: models.Pricing{
			BasePrice:  decimal.RequireFromString("2200"),
			Discount:   decimal.RequireFromString("200"),
			FinalPrice: decimal.RequireFromString("2000"),
		},
		Status: status,
	}
}

func seedUser(t *testing.T, db *DB, id string) {
	t.Helper()
	require.NoError(t, db.CreateOrUpdateUser(context.Background(), &models.User{ID: id, Name: "User " + id}))
}
