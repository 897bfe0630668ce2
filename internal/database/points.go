package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"

	"github.com/shopspring/decimal"
)

const pointsColumns = `id, booking_id, guarantor_id, request_id, booking_amount, total_pool_amount,
	total_guarantors, points_allocated, status, reversal_reason, reversed_at, created_at, updated_at`

// WithinTx runs fn inside one IMMEDIATE transaction. fn's error rolls back.
func (db *DB) WithinTx(ctx context.Context, fn func(tx domain.LedgerTx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return classify("begin ledger tx", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(&ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify("commit ledger tx", err)
	}
	return nil
}

func (db *DB) ListPointsByGuarantor(ctx context.Context, guarantorID string) ([]*models.GuarantorPoints, error) {
	query := `SELECT ` + pointsColumns + ` FROM guarantor_points WHERE guarantor_id = ? ORDER BY created_at ASC`
	return listPoints(ctx, db, "list points by guarantor", query, guarantorID)
}

func (db *DB) ListPointsByBooking(ctx context.Context, bookingID string) ([]*models.GuarantorPoints, error) {
	query := `SELECT ` + pointsColumns + ` FROM guarantor_points WHERE booking_id = ? ORDER BY created_at ASC`
	return listPoints(ctx, db, "list points by booking", query, bookingID)
}

type ledgerTx struct {
	tx *sql.Tx
}

func (t *ledgerTx) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	return getBooking(ctx, t.tx, id)
}

func (t *ledgerTx) CountAcceptedGuarantors(ctx context.Context, bookingID string) (int, error) {
	return countAccepted(ctx, t.tx, bookingID)
}

// FindActivePoints returns nil, nil when the guarantor holds no active entry.
func (t *ledgerTx) FindActivePoints(ctx context.Context, bookingID, guarantorID string) (*models.GuarantorPoints, error) {
	query := `SELECT ` + pointsColumns + ` FROM guarantor_points WHERE booking_id = ? AND guarantor_id = ? AND status = ?`
	entry, err := scanPoints(t.tx.QueryRowContext(ctx, query, bookingID, guarantorID, models.PointsActive))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, classify("find active points", err)
	}
	return entry, nil
}

func (t *ledgerTx) FindAllActivePoints(ctx context.Context, bookingID string) ([]*models.GuarantorPoints, error) {
	query := `SELECT ` + pointsColumns + ` FROM guarantor_points WHERE booking_id = ? AND status = ? ORDER BY created_at ASC`
	return listPoints(ctx, t.tx, "find all active points", query, bookingID, models.PointsActive)
}

func (t *ledgerTx) InsertPoints(ctx context.Context, e *models.GuarantorPoints) error {
	query := `INSERT INTO guarantor_points (` + pointsColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := t.tx.ExecContext(ctx, query,
		e.ID, e.BookingID, e.GuarantorID, e.RequestID,
		e.BookingAmount.String(), e.TotalPoolAmount.String(), e.TotalGuarantors, e.PointsAllocated.String(),
		e.Status, nullString(e.ReversalReason), formatTimePtr(e.ReversedAt), formatTime(now), formatTime(now),
	)
	if err != nil {
		return classify("insert points", err)
	}
	e.CreatedAt = now
	e.UpdatedAt = now
	return nil
}

func (t *ledgerTx) UpdatePointsAllocation(ctx context.Context, e *models.GuarantorPoints) error {
	query := `UPDATE guarantor_points
              SET booking_amount = ?, total_pool_amount = ?, total_guarantors = ?, points_allocated = ?, updated_at = ?
              WHERE id = ? AND status = ?`
	now := time.Now()
	res, err := t.tx.ExecContext(ctx, query,
		e.BookingAmount.String(), e.TotalPoolAmount.String(), e.TotalGuarantors, e.PointsAllocated.String(),
		formatTime(now), e.ID, models.PointsActive,
	)
	if err != nil {
		return classify("update points allocation", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Conflictf("points entry %s is no longer active", e.ID)
	}
	e.UpdatedAt = now
	return nil
}

func (t *ledgerTx) MarkPointsReversed(ctx context.Context, id, reason string, at time.Time) error {
	query := `UPDATE guarantor_points SET status = ?, reversal_reason = ?, reversed_at = ?, updated_at = ?
              WHERE id = ? AND status = ?`
	res, err := t.tx.ExecContext(ctx, query,
		models.PointsReversed, reason, formatTime(at), formatTime(at), id, models.PointsActive)
	if err != nil {
		return classify("mark points reversed", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return domain.Conflictf("points entry %s is no longer active", id)
	}
	return nil
}

func (t *ledgerTx) ApplyBalanceDelta(ctx context.Context, userID string, delta decimal.Decimal, floorAtZero bool) (decimal.Decimal, error) {
	return applyBalanceDelta(ctx, t.tx, userID, delta, floorAtZero)
}

func listPoints(ctx context.Context, q querier, op, query string, args ...any) ([]*models.GuarantorPoints, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*models.GuarantorPoints
	for rows.Next() {
		e, err := scanPoints(rows)
		if err != nil {
			return nil, classify(op, fmt.Errorf("scan points: %w", err))
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func scanPoints(row rowScanner) (*models.GuarantorPoints, error) {
	var (
		e                    models.GuarantorPoints
		reason, reversedAt   sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(
		&e.ID, &e.BookingID, &e.GuarantorID, &e.RequestID, &e.BookingAmount, &e.TotalPoolAmount,
		&e.TotalGuarantors, &e.PointsAllocated, &e.Status, &reason, &reversedAt, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	e.ReversalReason = reason.String
	if e.ReversedAt, err = parseNullTime(reversedAt); err != nil {
		return nil, err
	}
	if e.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if e.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &e, nil
}
