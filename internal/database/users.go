package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"carrental/internal/models"

	"github.com/shopspring/decimal"
)

const userColumns = `id, name, email, phone, role, points_balance, created_at, updated_at`

// CreateOrUpdateUser upserts profile fields. The points balance is never
// written here.
func (db *DB) CreateOrUpdateUser(ctx context.Context, user *models.User) error {
	query := `INSERT INTO users (` + userColumns + `) VALUES (?, ?, ?, ?, ?, '0', ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                name = excluded.name,
                email = excluded.email,
                phone = excluded.phone,
                role = excluded.role,
                updated_at = excluded.updated_at`
	role := user.Role
	if role == "" {
		role = models.RoleRenter
	}
	now := time.Now()
	_, err := db.ExecContext(ctx, query,
		user.ID, user.Name, nullString(user.Email), nullString(user.Phone), role,
		formatTime(now), formatTime(now),
	)
	if err != nil {
		return classify("create or update user", err)
	}
	user.Role = role
	user.UpdatedAt = now
	return nil
}

func (db *DB) GetUser(ctx context.Context, id string) (*models.User, error) {
	return getUser(ctx, db, id)
}

func getUser(ctx context.Context, q querier, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	var (
		u                    models.User
		email, phone         sql.NullString
		createdAt, updatedAt string
	)
	err := q.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Name, &email, &phone, &u.Role, &u.PointsBalance, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, classify("get user "+id, err)
	}
	u.Email = email.String
	u.Phone = phone.String
	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, classify("get user "+id, err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, classify("get user "+id, err)
	}
	return &u, nil
}

func (db *DB) GetAllUsers(ctx context.Context) ([]*models.User, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM users ORDER BY created_at`)
	if err != nil {
		return nil, classify("get all users", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, classify("get all users", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, classify("get all users", err)
	}

	users := make([]*models.User, 0, len(ids))
	for _, id := range ids {
		u, err := db.GetUser(ctx, id)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// applyBalanceDelta adjusts a balance and must run inside WithinTx, which
// holds the sqlite write lock for the whole ledger step. The write is
// conditional on the balance text read here, so an overwrite of a concurrent
// change fails with ErrConcurrentModification instead of losing it. With
// floorAtZero the new balance is clamped at zero and the delta actually
// applied is returned.
func applyBalanceDelta(ctx context.Context, q querier, userID string, delta decimal.Decimal, floorAtZero bool) (decimal.Decimal, error) {
	var raw string
	err := q.QueryRowContext(ctx, `SELECT points_balance FROM users WHERE id = ?`, userID).Scan(&raw)
	if err != nil {
		return decimal.Zero, classify("read balance "+userID, err)
	}
	current, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, classify("read balance "+userID, err)
	}

	next := current.Add(delta)
	applied := delta
	if floorAtZero && next.IsNegative() {
		next = decimal.Zero
		applied = current.Neg()
	}

	res, err := q.ExecContext(ctx, `UPDATE users SET points_balance = ?, updated_at = ? WHERE id = ? AND points_balance = ?`,
		next.String(), formatTime(time.Now()), userID, raw)
	if err != nil {
		return decimal.Zero, classify("apply balance delta", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return decimal.Zero, fmt.Errorf("apply balance delta %s: %w", userID, ErrConcurrentModification)
	}
	return applied, nil
}
