package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carrental/internal/models"
	"carrental/internal/tripwindow"
)

const bookingColumns = `id, car_id, user_id, guarantor_id,
	start_location, start_latitude, start_longitude, trip_start_date, trip_start_time,
	end_location, end_latitude, end_longitude, trip_end_date, trip_end_time,
	base_price, discount, final_price, status, cancellation_reason,
	created_at, updated_at, version`

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		booking.ID,
		booking.CarID,
		booking.UserID,
		nullString(booking.GuarantorID),
		booking.TripStart.Location,
		booking.TripStart.Latitude,
		booking.TripStart.Longitude,
		formatTime(booking.TripStart.Date),
		nullString(booking.TripStart.Time),
		booking.TripEnd.Location,
		booking.TripEnd.Latitude,
		booking.TripEnd.Longitude,
		formatTime(booking.TripEnd.Date),
		nullString(booking.TripEnd.Time),
		booking.Pricing.BasePrice.String(),
		booking.Pricing.Discount.String(),
		booking.Pricing.FinalPrice.String(),
		booking.Status,
		nullString(booking.CancellationReason),
		formatTime(now),
		formatTime(now),
		1,
	)
	if err != nil {
		return classify("create booking", err)
	}

	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, db, id)
}

func getBooking(ctx context.Context, q querier, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(q.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify("get booking "+id, err)
	}
	return b, nil
}

// UpdateBookingStatusWithVersion changes status only if the row is still at
// the given version.
func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status, reason string) error {
	query := `UPDATE bookings
              SET status = ?, cancellation_reason = COALESCE(?, cancellation_reason), version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, nullString(reason), formatTime(time.Now()), id, version)
	if err != nil {
		return classify("update booking status", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return classify("update booking status", err)
	}
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// FindLiveBookingsOverlappingDateRange is the coarse availability filter: live
// bookings whose calendar date range intersects [from, to], ignoring
// time-of-day. Dates are compared as the stored local calendar day.
func (db *DB) FindLiveBookingsOverlappingDateRange(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE status IN (?, ?, ?)
                AND substr(trip_start_date, 1, 10) <= ?
                AND substr(trip_end_date, 1, 10) >= ?
              ORDER BY trip_start_date ASC`
	rows, err := db.QueryContext(ctx, query,
		models.StatusPending, models.StatusConfirmed, models.StatusActive,
		tripwindow.DateKey(to), tripwindow.DateKey(from))
	if err != nil {
		return nil, classify("find live bookings", err)
	}
	return collectBookings(rows, "find live bookings")
}

func (db *DB) GetUserBookings(ctx context.Context, userID string) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE user_id = ? ORDER BY trip_start_date DESC`
	rows, err := db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, classify("get user bookings", err)
	}
	return collectBookings(rows, "get user bookings")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b                         models.Booking
		guarantorID, cancelReason sql.NullString
		startLoc, endLoc          sql.NullString
		startTime, endTime        sql.NullString
		startLat, startLng        sql.NullFloat64
		endLat, endLng            sql.NullFloat64
		startDate, endDate        string
		createdAt, updatedAt      string
	)
	err := row.Scan(
		&b.ID, &b.CarID, &b.UserID, &guarantorID,
		&startLoc, &startLat, &startLng, &startDate, &startTime,
		&endLoc, &endLat, &endLng, &endDate, &endTime,
		&b.Pricing.BasePrice, &b.Pricing.Discount, &b.Pricing.FinalPrice, &b.Status, &cancelReason,
		&createdAt, &updatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.GuarantorID = guarantorID.String
	b.CancellationReason = cancelReason.String
	b.TripStart.Location = startLoc.String
	b.TripStart.Time = startTime.String
	b.TripStart.Latitude = floatPtr(startLat)
	b.TripStart.Longitude = floatPtr(startLng)
	b.TripEnd.Location = endLoc.String
	b.TripEnd.Time = endTime.String
	b.TripEnd.Latitude = floatPtr(endLat)
	b.TripEnd.Longitude = floatPtr(endLng)

	if b.TripStart.Date, err = parseTime(startDate); err != nil {
		return nil, err
	}
	if b.TripEnd.Date, err = parseTime(endDate); err != nil {
		return nil, err
	}
	if b.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if b.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &b, nil
}

func collectBookings(rows *sql.Rows, op string) ([]*models.Booking, error) {
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, classify(op, fmt.Errorf("scan booking: %w", err))
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return bookings, nil
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
