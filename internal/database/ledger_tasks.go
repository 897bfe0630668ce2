package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carrental/internal/models"
)

const ledgerTaskColumns = `id, task_type, booking_id, guarantor_id, request_id, reason, status,
	retry_count, last_error, created_at, processed_at, next_retry_at`

func (db *DB) CreateLedgerTask(ctx context.Context, task *models.LedgerTask) error {
	query := `INSERT INTO ledger_tasks (task_type, booking_id, guarantor_id, request_id, reason, status, retry_count, last_error, created_at, next_retry_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if task.Status == "" {
		task.Status = models.TaskStatusPending
	}
	now := time.Now()
	result, err := db.ExecContext(ctx, query,
		task.TaskType,
		task.BookingID,
		nullString(task.GuarantorID),
		nullString(task.RequestID),
		nullString(task.Reason),
		task.Status,
		task.RetryCount,
		task.LastError,
		formatTime(now),
		formatTimePtr(utcPtr(task.NextRetryAt)),
	)
	if err != nil {
		return classify("create ledger task", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return classify("create ledger task", err)
	}
	task.ID = id
	task.CreatedAt = now
	return nil
}

// GetPendingLedgerTasks returns due pending/retry tasks, oldest first.
func (db *DB) GetPendingLedgerTasks(ctx context.Context, limit int) ([]models.LedgerTask, error) {
	query := `SELECT ` + ledgerTaskColumns + ` FROM ledger_tasks
              WHERE status IN (?, ?) AND (next_retry_at IS NULL OR next_retry_at <= ?)
              ORDER BY created_at ASC LIMIT ?`
	return db.listLedgerTasks(ctx, "get pending ledger tasks", query,
		models.TaskStatusPending, models.TaskStatusRetry, formatTime(time.Now().UTC()), limit)
}

func (db *DB) GetFailedLedgerTasks(ctx context.Context) ([]models.LedgerTask, error) {
	query := `SELECT ` + ledgerTaskColumns + ` FROM ledger_tasks WHERE status = ? ORDER BY created_at DESC`
	return db.listLedgerTasks(ctx, "get failed ledger tasks", query, models.TaskStatusFailed)
}

func (db *DB) UpdateLedgerTaskStatus(ctx context.Context, id int64, status, errMsg string, nextRetryAt *time.Time) error {
	var query string
	var args []any
	now := formatTime(time.Now())

	switch status {
	case models.TaskStatusRetry:
		query = `UPDATE ledger_tasks SET status = ?, last_error = ?, next_retry_at = ?, retry_count = retry_count + 1 WHERE id = ?`
		args = []any{status, nullString(errMsg), formatTimePtr(utcPtr(nextRetryAt)), id}
	case models.TaskStatusCompleted, models.TaskStatusFailed:
		query = `UPDATE ledger_tasks SET status = ?, last_error = ?, next_retry_at = ?, processed_at = ? WHERE id = ?`
		args = []any{status, nullString(errMsg), formatTimePtr(utcPtr(nextRetryAt)), now, id}
	default:
		query = `UPDATE ledger_tasks SET status = ?, last_error = ?, next_retry_at = ? WHERE id = ?`
		args = []any{status, nullString(errMsg), formatTimePtr(utcPtr(nextRetryAt)), id}
	}

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return classify("update ledger task status", err)
	}
	return nil
}

func (db *DB) listLedgerTasks(ctx context.Context, op, query string, args ...any) ([]models.LedgerTask, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	defer rows.Close()

	var tasks []models.LedgerTask
	for rows.Next() {
		var (
			t                                       models.LedgerTask
			guarantorID, requestID, reason, lastErr sql.NullString
			createdAt                               string
			processedAt, nextRetryAt                sql.NullString
		)
		err := rows.Scan(&t.ID, &t.TaskType, &t.BookingID, &guarantorID, &requestID, &reason, &t.Status,
			&t.RetryCount, &lastErr, &createdAt, &processedAt, &nextRetryAt)
		if err != nil {
			return nil, classify(op, fmt.Errorf("scan ledger task: %w", err))
		}
		t.GuarantorID = guarantorID.String
		t.RequestID = requestID.String
		t.Reason = reason.String
		if lastErr.Valid {
			msg := lastErr.String
			t.LastError = &msg
		}
		if t.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, classify(op, err)
		}
		if t.ProcessedAt, err = parseNullTime(processedAt); err != nil {
			return nil, classify(op, err)
		}
		if t.NextRetryAt, err = parseNullTime(nextRetryAt); err != nil {
			return nil, classify(op, err)
		}
		tasks = append(tasks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(op, err)
	}
	return tasks, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
