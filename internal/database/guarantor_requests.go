package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carrental/internal/domain"
	"carrental/internal/models"
)

const requestColumns = `id, booking_id, user_id, guarantor_id, status, rejection_reason, created_at, updated_at, responded_at`

// CreateGuarantorRequest inserts a pending request. A second pending request
// for the same booking and guarantor violates uq_guarantor_requests_pending
// and surfaces as domain.ErrConflict.
func (db *DB) CreateGuarantorRequest(ctx context.Context, req *models.GuarantorRequest) error {
	query := `INSERT INTO guarantor_requests (` + requestColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		req.ID, req.BookingID, req.UserID, req.GuarantorID, req.Status,
		nullString(req.RejectionReason), formatTime(now), formatTime(now), nil,
	)
	if err != nil {
		return classify("create guarantor request", err)
	}
	req.CreatedAt = now
	req.UpdatedAt = now
	return nil
}

func (db *DB) GetGuarantorRequest(ctx context.Context, id string) (*models.GuarantorRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM guarantor_requests WHERE id = ?`
	req, err := scanRequest(db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, classify("get guarantor request "+id, err)
	}
	return req, nil
}

func (db *DB) HasPendingGuarantorRequest(ctx context.Context, bookingID, guarantorID string) (bool, error) {
	return db.requestExists(ctx, bookingID, guarantorID, models.RequestPending)
}

func (db *DB) IsGuarantorAccepted(ctx context.Context, bookingID, guarantorID string) (bool, error) {
	return db.requestExists(ctx, bookingID, guarantorID, models.RequestAccepted)
}

func (db *DB) requestExists(ctx context.Context, bookingID, guarantorID, status string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM guarantor_requests WHERE booking_id = ? AND guarantor_id = ? AND status = ?)`
	var exists bool
	if err := db.QueryRowContext(ctx, query, bookingID, guarantorID, status).Scan(&exists); err != nil {
		return false, classify("check guarantor request", err)
	}
	return exists, nil
}

func (db *DB) CountAcceptedGuarantors(ctx context.Context, bookingID string) (int, error) {
	return countAccepted(ctx, db, bookingID)
}

func countAccepted(ctx context.Context, q querier, bookingID string) (int, error) {
	query := `SELECT COUNT(DISTINCT guarantor_id) FROM guarantor_requests WHERE booking_id = ? AND status = ?`
	var n int
	if err := q.QueryRowContext(ctx, query, bookingID, models.RequestAccepted).Scan(&n); err != nil {
		return 0, classify("count accepted guarantors", err)
	}
	return n, nil
}

// UpdateGuarantorRequestStatus moves a request from one status to another.
// It fails with domain.ErrConflict when the request is no longer in from.
func (db *DB) UpdateGuarantorRequestStatus(ctx context.Context, id, from, to, reason string) error {
	now := formatTime(time.Now())
	query := `UPDATE guarantor_requests
              SET status = ?, rejection_reason = COALESCE(?, rejection_reason), updated_at = ?, responded_at = ?
              WHERE id = ? AND status = ?`
	res, err := db.ExecContext(ctx, query, to, nullString(reason), now, now, id, from)
	if err != nil {
		return classify("update guarantor request", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return classify("update guarantor request", err)
	}
	if n == 0 {
		return domain.Conflictf("guarantor request %s is not %s", id, from)
	}
	return nil
}

func (db *DB) ListGuarantorRequestsByGuarantor(ctx context.Context, guarantorID string) ([]*models.GuarantorRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM guarantor_requests WHERE guarantor_id = ? ORDER BY created_at DESC`
	return db.listRequests(ctx, "list requests by guarantor", query, guarantorID)
}

func (db *DB) ListGuarantorRequestsByBooking(ctx context.Context, bookingID string) ([]*models.GuarantorRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM guarantor_requests WHERE booking_id = ? ORDER BY created_at ASC`
	return db.listRequests(ctx, "list requests by booking", query, bookingID)
}

func (db *DB) listRequests(ctx context.Context, op, query string, arg any) ([]*models.GuarantorRequest, error) {
	rows, err := db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var out []*models.GuarantorRequest
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, classify(op, fmt.Errorf("scan guarantor request: %w", err))
		}
		out = append(out, req)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func scanRequest(row rowScanner) (*models.GuarantorRequest, error) {
	var (
		r                    models.GuarantorRequest
		reason, respondedAt  sql.NullString
		createdAt, updatedAt string
	)
	err := row.Scan(&r.ID, &r.BookingID, &r.UserID, &r.GuarantorID, &r.Status, &reason, &createdAt, &updatedAt, &respondedAt)
	if err != nil {
		return nil, err
	}
	r.RejectionReason = reason.String
	if r.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if r.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	if r.RespondedAt, err = parseNullTime(respondedAt); err != nil {
		return nil, err
	}
	return &r, nil
}
